package repository

import (
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// usedAmountRepository implements the UsedAmountRepository interface
type usedAmountRepository struct {
	db *gorm.DB
}

// NewUsedAmountRepository creates a new used amount repository instance
func NewUsedAmountRepository(db *gorm.DB) UsedAmountRepository {
	return &usedAmountRepository{db: db}
}

// Reserve inserts a reservation for the literal amount string. Losing the
// primary key race returns ErrAmountTaken so the allocator redraws.
func (r *usedAmountRepository) Reserve(amount string, createdAt time.Time) error {
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "amount"}},
		DoNothing: true,
	}).Create(&models.UsedAmount{Amount: amount, CreatedAt: createdAt})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAmountTaken
	}
	return nil
}

// ExistsWithin reports whether the amount was reserved inside the trailing window
func (r *usedAmountRepository) ExistsWithin(amount string, window time.Duration) (bool, error) {
	var count int64
	cutoff := time.Now().Add(-window)
	err := r.db.Model(&models.UsedAmount{}).
		Where("amount = ? AND created_at > ?", amount, cutoff).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// DeleteOlderThan removes reservations that fell out of the window and returns
// how many rows were swept.
func (r *usedAmountRepository) DeleteOlderThan(window time.Duration) (int64, error) {
	cutoff := time.Now().Add(-window)
	res := r.db.Where("created_at < ?", cutoff).Delete(&models.UsedAmount{})
	return res.RowsAffected, res.Error
}
