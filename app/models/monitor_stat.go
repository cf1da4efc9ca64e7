package models

// MonitorStat is a per-day aggregate of monitor activity, flushed periodically
// from Redis counters.
type MonitorStat struct {
	StatDate string `gorm:"type:varchar(10);primaryKey" json:"stat_date"` // YYYY-MM-DD
	Polls    int64  `gorm:"not null;default:0" json:"polls"`
	Matches  int64  `gorm:"not null;default:0" json:"matches"`
	Expiries int64  `gorm:"not null;default:0" json:"expiries"`
	Errors   int64  `gorm:"not null;default:0" json:"errors"`
}
