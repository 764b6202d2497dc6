package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/carebase/planmart/internal/warehouse/domain"
	"gorm.io/gorm"
)

// dimensionSpec describes one dimension upsert: the conflict column, the
// columns written on insert, and the columns refreshed in place on conflict.
// An empty update list degrades to a no-op assignment so RETURNING still
// yields the surviving key.
type dimensionSpec struct {
	table     string
	keyColumn string
	conflict  string
	columns   []string
	updates   []string
}

func (s dimensionSpec) sql() string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(s.columns)), ", ")

	set := make([]string, 0, len(s.updates))
	for _, col := range s.updates {
		set = append(set, fmt.Sprintf("%s = excluded.%s", col, col))
	}
	if len(set) == 0 {
		set = append(set, fmt.Sprintf("%s = excluded.%s", s.conflict, s.conflict))
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s RETURNING %s",
		s.table,
		strings.Join(s.columns, ", "),
		placeholders,
		s.conflict,
		strings.Join(set, ", "),
		s.keyColumn,
	)
}

var (
	orgSpec = dimensionSpec{
		table:     "dim_org",
		keyColumn: "org_key",
		conflict:  "org_id",
		columns:   []string{"org_key", "org_id", "org_name", "created_at", "updated_at"},
		updates:   []string{"org_name", "updated_at"},
	}
	planTypeSpec = dimensionSpec{
		table:     "dim_plan_type",
		keyColumn: "plan_type_key",
		conflict:  "plan_type_name",
		columns:   []string{"plan_type_key", "plan_type_name", "display_name", "created_at"},
	}
	planSpec = dimensionSpec{
		table:     "dim_plan",
		keyColumn: "plan_key",
		conflict:  "plan_id",
		columns: []string{
			"plan_key", "plan_id", "plan_name", "org_key", "plan_type_key",
			"creation_date_key", "source_system", "created_at", "updated_at",
		},
		updates: []string{
			"plan_name", "org_key", "plan_type_key",
			"creation_date_key", "source_system", "updated_at",
		},
	}
	serviceSpec = dimensionSpec{
		table:     "dim_service",
		keyColumn: "service_key",
		conflict:  "service_id",
		columns:   []string{"service_key", "service_id", "service_name", "created_at", "updated_at"},
		updates:   []string{"service_name", "updated_at"},
	}
)

type dimensionRepo struct{}

func ProvideDimensions() domain.DimensionRepository {
	return &dimensionRepo{}
}

// resolve runs the single-statement get-or-create. The candidate key survives
// only when this call created the row, so equality doubles as the created
// signal.
func (r *dimensionRepo) resolve(ctx context.Context, db *gorm.DB, spec dimensionSpec, candidate int64, args ...any) (int64, bool, error) {
	var key int64
	if err := db.WithContext(ctx).Raw(spec.sql(), args...).Scan(&key).Error; err != nil {
		return 0, false, err
	}
	if key == 0 {
		return 0, false, fmt.Errorf("upsert %s returned no key", spec.table)
	}
	return key, key == candidate, nil
}

func (r *dimensionRepo) ResolveOrg(ctx context.Context, db *gorm.DB, row domain.OrgDimension) (int64, bool, error) {
	return r.resolve(ctx, db, orgSpec, row.OrgKey,
		row.OrgKey, row.OrgID, row.OrgName, row.CreatedAt, row.UpdatedAt)
}

func (r *dimensionRepo) ResolvePlanType(ctx context.Context, db *gorm.DB, row domain.PlanTypeDimension) (int64, bool, error) {
	return r.resolve(ctx, db, planTypeSpec, row.PlanTypeKey,
		row.PlanTypeKey, row.PlanTypeName, row.DisplayName, row.CreatedAt)
}

func (r *dimensionRepo) ResolvePlan(ctx context.Context, db *gorm.DB, row domain.PlanDimension) (int64, bool, error) {
	return r.resolve(ctx, db, planSpec, row.PlanKey,
		row.PlanKey, row.PlanID, row.PlanName, row.OrgKey, row.PlanTypeKey,
		row.CreationDateKey, row.SourceSystem, row.CreatedAt, row.UpdatedAt)
}

func (r *dimensionRepo) ResolveService(ctx context.Context, db *gorm.DB, row domain.ServiceDimension) (int64, bool, error) {
	return r.resolve(ctx, db, serviceSpec, row.ServiceKey,
		row.ServiceKey, row.ServiceID, row.ServiceName, row.CreatedAt, row.UpdatedAt)
}

func (r *dimensionRepo) EnsureDate(ctx context.Context, db *gorm.DB, row domain.DateDimension) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO dim_date (
			date_key, full_date, year, quarter, month, day,
			day_of_week, iso_week, is_weekend
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (date_key) DO NOTHING`,
		row.DateKey,
		row.FullDate,
		row.Year,
		row.Quarter,
		row.Month,
		row.Day,
		row.DayOfWeek,
		row.ISOWeek,
		row.IsWeekend,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
