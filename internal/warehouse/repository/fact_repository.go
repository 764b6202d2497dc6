package repository

import (
	"context"

	"github.com/carebase/planmart/internal/warehouse/domain"
	"gorm.io/gorm"
)

type factRepo struct{}

func ProvideFacts() domain.FactRepository {
	return &factRepo{}
}

func (r *factRepo) InsertPlanCost(ctx context.Context, db *gorm.DB, fact *domain.PlanCostFact) error {
	if fact == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO fact_plan_costs (
			fact_key, plan_key, org_key, plan_type_key, date_key,
			deductible, copay, total_cost, load_id, loaded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fact.FactKey,
		fact.PlanKey,
		fact.OrgKey,
		fact.PlanTypeKey,
		fact.DateKey,
		fact.Deductible,
		fact.Copay,
		fact.TotalCost,
		fact.LoadID,
		fact.LoadedAt,
	).Error
}

func (r *factRepo) InsertServiceCosts(ctx context.Context, db *gorm.DB, facts []domain.ServiceCostFact) error {
	for i := range facts {
		fact := &facts[i]
		if err := db.WithContext(ctx).Exec(
			`INSERT INTO fact_service_costs (
				fact_key, plan_key, service_key, org_key, date_key,
				deductible, copay, total_cost, load_id, loaded_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			fact.FactKey,
			fact.PlanKey,
			fact.ServiceKey,
			fact.OrgKey,
			fact.DateKey,
			fact.Deductible,
			fact.Copay,
			fact.TotalCost,
			fact.LoadID,
			fact.LoadedAt,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

// DeleteFactsForPlan clears previous fact rows for a plan inside the caller's
// transaction. Only the idempotent load mode uses this.
func (r *factRepo) DeleteFactsForPlan(ctx context.Context, db *gorm.DB, planKey int64) (int64, error) {
	var deleted int64

	result := db.WithContext(ctx).Exec(`DELETE FROM fact_service_costs WHERE plan_key = ?`, planKey)
	if result.Error != nil {
		return 0, result.Error
	}
	deleted += result.RowsAffected

	result = db.WithContext(ctx).Exec(`DELETE FROM fact_plan_costs WHERE plan_key = ?`, planKey)
	if result.Error != nil {
		return deleted, result.Error
	}
	deleted += result.RowsAffected

	return deleted, nil
}
