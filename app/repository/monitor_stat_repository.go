package repository

import (
	"github.com/ManuelReschke/PayFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// monitorStatRepository implements the MonitorStatRepository interface
type monitorStatRepository struct {
	db *gorm.DB
}

// NewMonitorStatRepository creates a new monitor stat repository instance
func NewMonitorStatRepository(db *gorm.DB) MonitorStatRepository {
	return &monitorStatRepository{db: db}
}

// AddCounts applies batched counter increments to the daily aggregate row
func (r *monitorStatRepository) AddCounts(statDate string, polls, matches, expiries, errs int64) error {
	stat := models.MonitorStat{
		StatDate: statDate,
		Polls:    polls,
		Matches:  matches,
		Expiries: expiries,
		Errors:   errs,
	}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "stat_date"}},
		DoUpdates: clause.Assignments(map[string]any{
			"polls":    gorm.Expr("polls + ?", polls),
			"matches":  gorm.Expr("matches + ?", matches),
			"expiries": gorm.Expr("expiries + ?", expiries),
			"errors":   gorm.Expr("errors + ?", errs),
		}),
	}).Create(&stat).Error
}
