package repository

import (
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// cooldownRepository implements the CooldownRepository interface
type cooldownRepository struct {
	db *gorm.DB
}

// NewCooldownRepository creates a new cooldown repository instance
func NewCooldownRepository(db *gorm.DB) CooldownRepository {
	return &cooldownRepository{db: db}
}

// Get retrieves the cooldown mark for a user
func (r *cooldownRepository) Get(userID string) (*models.Cooldown, error) {
	var cd models.Cooldown
	err := r.db.Where("user_id = ?", userID).First(&cd).Error
	if err != nil {
		return nil, err
	}
	return &cd, nil
}

// Upsert overwrites the user's cooldown mark with the given timestamp
func (r *cooldownRepository) Upsert(userID string, lastUsed time.Time) error {
	cd := models.Cooldown{UserID: userID, LastUsed: lastUsed}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_used"}),
	}).Create(&cd).Error
}
