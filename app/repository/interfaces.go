package repository

import (
	"errors"
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"gorm.io/gorm"
)

// Storage-level sentinel errors surfaced to the payment service.
var (
	// ErrDuplicateTransaction is returned when a transaction id is inserted twice.
	ErrDuplicateTransaction = errors.New("transaction id already exists")
	// ErrAmountTaken is returned when an amount reservation loses the
	// unique-constraint race inside the reservation window.
	ErrAmountTaken = errors.New("amount already reserved")
	// ErrInvalidStateTransition is returned when a status update targets a row
	// that is no longer pending.
	ErrInvalidStateTransition = errors.New("transaction is not pending")
)

// TransactionRepository defines the interface for transaction-related database operations
type TransactionRepository interface {
	Create(tx *models.Transaction) error
	GetByTransactionID(transactionID string) (*models.Transaction, error)
	GetWithAuditLogs(transactionID string) (*models.Transaction, []models.AuditLog, error)
	UpdateStatus(transactionID, status string, productKey *string) error
	ListByStatus(status string, offset, limit int) ([]models.Transaction, error)
	Count() (int64, error)
}

// AuditLogRepository defines the interface for audit log database operations
type AuditLogRepository interface {
	Append(entry *models.AuditLog) error
	ListByTransactionID(transactionID string) ([]models.AuditLog, error)
}

// CooldownRepository defines the interface for cooldown database operations
type CooldownRepository interface {
	Get(userID string) (*models.Cooldown, error)
	Upsert(userID string, lastUsed time.Time) error
}

// UsedAmountRepository defines the interface for amount reservation operations
type UsedAmountRepository interface {
	Reserve(amount string, createdAt time.Time) error
	ExistsWithin(amount string, window time.Duration) (bool, error)
	DeleteOlderThan(window time.Duration) (int64, error)
}

// MonitorStatRepository defines the interface for monitor statistics upserts
type MonitorStatRepository interface {
	AddCounts(statDate string, polls, matches, expiries, errs int64) error
}

// Repositories holds all repository instances
type Repositories struct {
	Transaction TransactionRepository
	AuditLog    AuditLogRepository
	Cooldown    CooldownRepository
	UsedAmount  UsedAmountRepository
	MonitorStat MonitorStatRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Transaction: NewTransactionRepository(db),
		AuditLog:    NewAuditLogRepository(db),
		Cooldown:    NewCooldownRepository(db),
		UsedAmount:  NewUsedAmountRepository(db),
		MonitorStat: NewMonitorStatRepository(db),
	}
}
