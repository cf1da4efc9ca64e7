package models

import "time"

// Cooldown holds the timestamp of a user's most recent invoice creation.
// One row per user, overwritten on each creation; stale rows simply age out
// of the 30 minute window and are never deleted.
type Cooldown struct {
	UserID   string    `gorm:"type:varchar(64);primaryKey" json:"user_id"`
	LastUsed time.Time `gorm:"not null" json:"last_used"`
}

func (Cooldown) TableName() string {
	return "cooldowns"
}
