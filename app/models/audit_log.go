package models

import "time"

// Audit actions recorded over a transaction's lifetime. Free-form strings on
// purpose; these constants cover every action the core emits itself.
const (
	AuditActionCreated         = "CREATED"
	AuditActionDMSent          = "DM_SENT"
	AuditActionDMFailed        = "DM_FAILED"
	AuditActionPaymentDetected = "PAYMENT_DETECTED"
	AuditActionCompleted       = "COMPLETED"
	AuditActionRoleAdded       = "ROLE_ADDED"
	AuditActionKeyResent       = "KEY_RESENT"
	AuditActionCancelled       = "CANCELLED"
	AuditActionExpired         = "EXPIRED"
	AuditActionMonitorError    = "MONITOR_ERROR"
	AuditActionError           = "ERROR"
)

// AuditLog is one immutable action record belonging to exactly one transaction.
// Rows are append-only and ordered by timestamp; they are never mutated or
// deleted.
type AuditLog struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TransactionID string    `gorm:"type:varchar(32);not null;index" json:"transaction_id"`
	Action        string    `gorm:"type:varchar(50);not null" json:"action"`
	Details       string    `gorm:"type:text" json:"details"`
	Timestamp     time.Time `gorm:"autoCreateTime;index" json:"timestamp"`
}
