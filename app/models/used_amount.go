package models

import "time"

// UsedAmount reserves a display amount for uniqueness arbitration. The primary
// key on the literal decimal string closes the check-then-insert race: two
// concurrent allocations of the same candidate cannot both commit, the loser
// sees a duplicate-key error and redraws.
//
// Reservations are independent of transaction rows and are swept once they fall
// out of the 24 hour window.
type UsedAmount struct {
	Amount    string    `gorm:"type:varchar(32);primaryKey" json:"amount"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (UsedAmount) TableName() string {
	return "used_amounts"
}
