package repository

import (
	"github.com/ManuelReschke/PayFox/app/models"
	"gorm.io/gorm"
)

// auditLogRepository implements the AuditLogRepository interface
type auditLogRepository struct {
	db *gorm.DB
}

// NewAuditLogRepository creates a new audit log repository instance
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{db: db}
}

// Append inserts a new audit entry. Entries are never updated or deleted.
func (r *auditLogRepository) Append(entry *models.AuditLog) error {
	return r.db.Create(entry).Error
}

// ListByTransactionID retrieves the audit trail for a transaction, oldest first
func (r *auditLogRepository) ListByTransactionID(transactionID string) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	err := r.db.Where("transaction_id = ?", transactionID).
		Order("timestamp ASC, id ASC").
		Find(&logs).Error
	return logs, err
}
