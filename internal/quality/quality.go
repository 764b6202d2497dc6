package quality

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/carebase/planmart/internal/observability/metrics"
)

// Checker runs post-load sanity queries over the fact tables. Findings are
// logged and counted, never escalated: the flagged rows already committed, so
// they are an investigation signal rather than a reason to fail the run.
type Checker struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Checker {
	return &Checker{log: log.Named("etl.quality")}
}

type check struct {
	name  string
	query string
	args  []any
}

func checks(maxReasonableCost float64) []check {
	return []check{
		{
			name: "plan_cost_out_of_range",
			query: `SELECT COUNT(*) FROM fact_plan_costs
				WHERE deductible < 0 OR copay < 0 OR total_cost < 0 OR total_cost > ?`,
			args: []any{maxReasonableCost},
		},
		{
			name: "service_cost_out_of_range",
			query: `SELECT COUNT(*) FROM fact_service_costs
				WHERE deductible < 0 OR copay < 0 OR deductible > ? OR copay > ?`,
			args: []any{maxReasonableCost, maxReasonableCost},
		},
		{
			name: "plan_fact_missing_dimension",
			query: `SELECT COUNT(*) FROM fact_plan_costs
				WHERE plan_key = 0 OR org_key = 0 OR plan_type_key = 0 OR date_key = 0`,
		},
		{
			name: "plan_fact_orphaned",
			query: `SELECT COUNT(*) FROM fact_plan_costs f
				LEFT JOIN dim_plan d ON d.plan_key = f.plan_key
				WHERE d.plan_key IS NULL`,
		},
		{
			name: "service_fact_orphaned",
			query: `SELECT COUNT(*) FROM fact_service_costs f
				LEFT JOIN dim_service s ON s.service_key = f.service_key
				WHERE s.service_key IS NULL`,
		},
	}
}

// Run executes every check and returns the total number of flagged rows.
// Query errors are logged and the remaining checks still run.
func (c *Checker) Run(ctx context.Context, db *gorm.DB, maxReasonableCost float64) int64 {
	var flagged int64

	for _, chk := range checks(maxReasonableCost) {
		var count int64
		err := db.WithContext(ctx).Raw(chk.query, chk.args...).Scan(&count).Error
		if err != nil {
			c.log.Warn("quality.check_errored",
				zap.String("check", chk.name),
				zap.Error(err),
			)
			continue
		}
		if count == 0 {
			continue
		}

		flagged += count
		metrics.Etl().AddQualityFailures(chk.name, count)
		c.log.Warn("quality.check_flagged",
			zap.String("check", chk.name),
			zap.Int64("rows", count),
		)
	}

	return flagged
}
