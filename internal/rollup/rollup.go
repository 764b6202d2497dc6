package rollup

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DailyPlanCost is one (date, plan type) slice of the daily aggregate.
type DailyPlanCost struct {
	DateKey         int       `gorm:"column:date_key;primaryKey" json:"date_key"`
	PlanTypeKey     int64     `gorm:"column:plan_type_key;primaryKey" json:"plan_type_key"`
	TotalDeductible float64   `gorm:"column:total_deductible" json:"total_deductible"`
	TotalCopay      float64   `gorm:"column:total_copay" json:"total_copay"`
	TotalCost       float64   `gorm:"column:total_cost" json:"total_cost"`
	PlanCount       int       `gorm:"column:plan_count" json:"plan_count"`
	RefreshedAt     time.Time `gorm:"column:refreshed_at" json:"refreshed_at"`
}

func (DailyPlanCost) TableName() string {
	return "agg_daily_plan_costs"
}

// Rebuilder refreshes agg_daily_plan_costs for the date keys a run touched.
type Rebuilder struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Rebuilder {
	return &Rebuilder{log: log.Named("etl.rollup")}
}

// Rebuild recomputes the touched (date, plan type) slices from the plan-cost
// facts and upserts them. Untouched dates keep their previous aggregates.
func (r *Rebuilder) Rebuild(ctx context.Context, db *gorm.DB, dateKeys []int) error {
	if len(dateKeys) == 0 {
		return nil
	}

	err := db.WithContext(ctx).Exec(
		`INSERT INTO agg_daily_plan_costs (
			date_key, plan_type_key, total_deductible, total_copay,
			total_cost, plan_count, refreshed_at
		)
		SELECT f.date_key, f.plan_type_key,
			SUM(f.deductible), SUM(f.copay), SUM(f.total_cost),
			COUNT(DISTINCT f.plan_key), ?
		FROM fact_plan_costs f
		WHERE f.date_key IN ?
		GROUP BY f.date_key, f.plan_type_key
		ON CONFLICT (date_key, plan_type_key) DO UPDATE SET
			total_deductible = excluded.total_deductible,
			total_copay = excluded.total_copay,
			total_cost = excluded.total_cost,
			plan_count = excluded.plan_count,
			refreshed_at = excluded.refreshed_at`,
		time.Now().UTC(),
		dateKeys,
	).Error
	if err != nil {
		return err
	}

	r.log.Debug("etl.rollup.refreshed", zap.Int("date_keys", len(dateKeys)))
	return nil
}
