package models

import (
	"time"
)

// Transaction status values. Transitions are one-directional: a pending
// transaction may become completed, expired or cancelled; terminal rows
// are never updated again.
const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusExpired   = "expired"
	TxStatusCancelled = "cancelled"
)

// Transaction is a single one-off invoice awaiting an exact-amount USDT payment.
type Transaction struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	TransactionID string     `gorm:"type:varchar(32);not null;uniqueIndex:ux_transactions_transaction_id" json:"transaction_id"`
	UserID        string     `gorm:"type:varchar(64);not null;index" json:"user_id"`
	Amount        int64      `gorm:"not null" json:"amount"` // USDT minor units (6 decimals), exact
	DisplayAmount string     `gorm:"type:varchar(32);not null" json:"display_amount"`
	Status        string     `gorm:"type:varchar(20);not null;index" json:"status"`
	ProductKey    *string    `gorm:"type:varchar(32);default:null" json:"product_key,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	PaidAt        *time.Time `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
}

// IsTerminal reports whether no further status change is permitted.
func (t *Transaction) IsTerminal() bool {
	return t.Status != TxStatusPending
}
