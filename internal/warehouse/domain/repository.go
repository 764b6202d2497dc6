package domain

import (
	"context"

	"gorm.io/gorm"
)

// DimensionRepository persists dimension rows through one atomic get-or-create
// upsert per table. Resolve methods return the surviving surrogate key whether
// the row was inserted or already present, and report whether this call
// created it.
type DimensionRepository interface {
	ResolveOrg(ctx context.Context, db *gorm.DB, row OrgDimension) (int64, bool, error)
	ResolvePlanType(ctx context.Context, db *gorm.DB, row PlanTypeDimension) (int64, bool, error)
	ResolvePlan(ctx context.Context, db *gorm.DB, row PlanDimension) (int64, bool, error)
	ResolveService(ctx context.Context, db *gorm.DB, row ServiceDimension) (int64, bool, error)
	EnsureDate(ctx context.Context, db *gorm.DB, row DateDimension) (bool, error)
}

// FactRepository appends fact rows. Facts accumulate, so there is no update
// path, only insert and the optional delete used by idempotent re-loads.
type FactRepository interface {
	InsertPlanCost(ctx context.Context, db *gorm.DB, fact *PlanCostFact) error
	InsertServiceCosts(ctx context.Context, db *gorm.DB, facts []ServiceCostFact) error
	DeleteFactsForPlan(ctx context.Context, db *gorm.DB, planKey int64) (int64, error)
}
