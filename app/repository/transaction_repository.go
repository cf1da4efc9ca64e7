package repository

import (
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// transactionRepository implements the TransactionRepository interface
type transactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new transaction repository instance
func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

// Create inserts a new transaction row. A second insert with the same
// transaction id fails with ErrDuplicateTransaction instead of overwriting.
func (r *transactionRepository) Create(tx *models.Transaction) error {
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "transaction_id"}},
		DoNothing: true,
	}).Create(tx)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuplicateTransaction
	}
	return nil
}

// GetByTransactionID retrieves a transaction by its public id
func (r *transactionRepository) GetByTransactionID(transactionID string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.Where("transaction_id = ?", transactionID).First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// GetWithAuditLogs retrieves a transaction together with its audit trail,
// ordered by timestamp ascending, for presentation.
func (r *transactionRepository) GetWithAuditLogs(transactionID string) (*models.Transaction, []models.AuditLog, error) {
	tx, err := r.GetByTransactionID(transactionID)
	if err != nil {
		return nil, nil, err
	}
	var logs []models.AuditLog
	if err := r.db.Where("transaction_id = ?", transactionID).
		Order("timestamp ASC, id ASC").
		Find(&logs).Error; err != nil {
		return nil, nil, err
	}
	return tx, logs, nil
}

// UpdateStatus moves a pending transaction into a terminal state. paid_at is
// set iff the new status is completed, and the product key is stored only on
// completion. Updating a row that already left pending is refused with
// ErrInvalidStateTransition, so whichever terminal path commits first wins.
func (r *transactionRepository) UpdateStatus(transactionID, status string, productKey *string) error {
	updates := map[string]any{
		"status":      status,
		"product_key": nil,
		"paid_at":     nil,
	}
	if status == models.TxStatusCompleted {
		now := time.Now()
		updates["product_key"] = productKey
		updates["paid_at"] = &now
	}

	res := r.db.Model(&models.Transaction{}).
		Where("transaction_id = ? AND status = ?", transactionID, models.TxStatusPending).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Either the row is missing or it is already terminal; distinguish
		// for the caller.
		var tx models.Transaction
		if err := r.db.Where("transaction_id = ?", transactionID).First(&tx).Error; err != nil {
			return err
		}
		return ErrInvalidStateTransition
	}
	return nil
}

// ListByStatus retrieves transactions in the given status, newest first
func (r *transactionRepository) ListByStatus(status string, offset, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.Where("status = ?", status).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&txs).Error
	return txs, err
}

// Count returns the total number of transactions
func (r *transactionRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Transaction{}).Count(&count).Error
	return count, err
}
