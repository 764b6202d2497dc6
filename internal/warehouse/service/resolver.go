package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/carebase/planmart/internal/cache"
	"github.com/carebase/planmart/internal/clock"
	"github.com/carebase/planmart/internal/observability/metrics"
	"github.com/carebase/planmart/internal/warehouse/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("dimension resolver requires logger, snowflake node, clock, cache and repository")

// Params collects the resolver dependencies.
type Params struct {
	fx.In

	Log     *zap.Logger
	Node    *snowflake.Node
	Clock   clock.Clock
	Cache   cache.DimensionKeyCache
	Repo    domain.DimensionRepository
	Metrics *metrics.Metrics `optional:"true"`
}

// Resolver turns natural keys into surrogate keys, creating dimension rows on
// first sighting and applying in-place attribute refreshes after that. All
// methods run against the caller's transaction handle, so a document's
// dimension work commits or rolls back with its facts.
type Resolver struct {
	log     *zap.Logger
	node    *snowflake.Node
	clock   clock.Clock
	cache   cache.DimensionKeyCache
	repo    domain.DimensionRepository
	metrics *metrics.Metrics
}

// NewResolver validates dependencies and builds the resolver.
func NewResolver(p Params) (*Resolver, error) {
	if p.Log == nil || p.Node == nil || p.Clock == nil || p.Cache == nil || p.Repo == nil {
		return nil, ErrInvalidConfig
	}
	return &Resolver{
		log:     p.Log.Named("warehouse.resolver"),
		node:    p.Node,
		clock:   p.Clock,
		cache:   p.Cache,
		repo:    p.Repo,
		metrics: p.Metrics,
	}, nil
}

// ResolveOrg returns the surrogate key for an organization and refreshes its
// name in place when it changed.
func (r *Resolver) ResolveOrg(ctx context.Context, db *gorm.DB, orgID, orgName string) (int64, error) {
	orgID = strings.TrimSpace(orgID)
	orgName = strings.TrimSpace(orgName)
	if orgID == "" {
		return 0, fmt.Errorf("%w: empty org natural key", domain.ErrDimensionResolution)
	}

	if key, ok := r.cache.GetOrgKey(orgID, orgName); ok {
		r.metrics.RecordDimensionHit(ctx, "dim_org")
		return key, nil
	}
	r.metrics.RecordDimensionMiss(ctx, "dim_org")

	now := r.clock.Now().UTC()
	key, created, err := r.repo.ResolveOrg(ctx, db, domain.OrgDimension{
		OrgKey:    r.node.Generate().Int64(),
		OrgID:     orgID,
		OrgName:   orgName,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: org %q: %w", domain.ErrDimensionResolution, orgID, err)
	}
	if created {
		metrics.Etl().AddDimensionRows("dim_org", 1)
		r.log.Debug("warehouse.dimension.created",
			zap.String("dimension", "dim_org"),
			zap.String("natural_key", orgID),
		)
	}

	r.cache.SetOrgKey(orgID, orgName, key)
	return key, nil
}

// ResolvePlanType returns the surrogate key for a plan type. The natural key
// is the lowercased name, so casing differences collapse onto one row.
func (r *Resolver) ResolvePlanType(ctx context.Context, db *gorm.DB, rawType string) (int64, error) {
	normalized := domain.NormalizePlanTypeName(rawType)
	if normalized == "" {
		return 0, fmt.Errorf("%w: empty plan type", domain.ErrDimensionResolution)
	}

	if key, ok := r.cache.GetPlanTypeKey(normalized); ok {
		r.metrics.RecordDimensionHit(ctx, "dim_plan_type")
		return key, nil
	}
	r.metrics.RecordDimensionMiss(ctx, "dim_plan_type")

	key, created, err := r.repo.ResolvePlanType(ctx, db, domain.PlanTypeDimension{
		PlanTypeKey:  r.node.Generate().Int64(),
		PlanTypeName: normalized,
		DisplayName:  domain.PlanTypeDisplayName(rawType),
		CreatedAt:    r.clock.Now().UTC(),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: plan type %q: %w", domain.ErrDimensionResolution, normalized, err)
	}
	if created {
		metrics.Etl().AddDimensionRows("dim_plan_type", 1)
	}

	r.cache.SetPlanTypeKey(normalized, key)
	return key, nil
}

// EnsureDate parses the creation date, lazily creates its dim_date row, and
// returns the YYYYMMDD key.
func (r *Resolver) EnsureDate(ctx context.Context, db *gorm.DB, creationDate string) (int, error) {
	row, err := domain.DateDimensionFromString(creationDate)
	if err != nil {
		return 0, err
	}

	if r.cache.HasDateKey(row.DateKey) {
		r.metrics.RecordDimensionHit(ctx, "dim_date")
		return row.DateKey, nil
	}
	r.metrics.RecordDimensionMiss(ctx, "dim_date")

	created, err := r.repo.EnsureDate(ctx, db, row)
	if err != nil {
		return 0, fmt.Errorf("%w: date %d: %w", domain.ErrDimensionResolution, row.DateKey, err)
	}
	if created {
		metrics.Etl().AddDimensionRows("dim_date", 1)
	}

	r.cache.SetDateKey(row.DateKey)
	return row.DateKey, nil
}

// ResolvePlan upserts the plan dimension. Plans carry several refreshable
// attributes, so every load writes through instead of consulting a cache.
func (r *Resolver) ResolvePlan(ctx context.Context, db *gorm.DB, attrs domain.PlanAttributes) (int64, error) {
	planID := strings.TrimSpace(attrs.PlanID)
	if planID == "" {
		return 0, fmt.Errorf("%w: empty plan natural key", domain.ErrDimensionResolution)
	}

	now := r.clock.Now().UTC()
	key, created, err := r.repo.ResolvePlan(ctx, db, domain.PlanDimension{
		PlanKey:         r.node.Generate().Int64(),
		PlanID:          planID,
		PlanName:        strings.TrimSpace(attrs.PlanName),
		OrgKey:          attrs.OrgKey,
		PlanTypeKey:     attrs.PlanTypeKey,
		CreationDateKey: attrs.CreationDateKey,
		SourceSystem:    strings.TrimSpace(attrs.SourceSystem),
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: plan %q: %w", domain.ErrDimensionResolution, planID, err)
	}
	if created {
		metrics.Etl().AddDimensionRows("dim_plan", 1)
		r.log.Debug("warehouse.dimension.created",
			zap.String("dimension", "dim_plan"),
			zap.String("natural_key", planID),
		)
	}
	return key, nil
}

// ResolveService returns the surrogate key for a linked service, keyed on the
// source objectId or, when absent, on the slugged service name.
func (r *Resolver) ResolveService(ctx context.Context, db *gorm.DB, serviceID, serviceName string) (int64, error) {
	naturalKey := domain.ServiceNaturalKey(serviceID, serviceName)
	if naturalKey == "" {
		return 0, fmt.Errorf("%w: service carries neither id nor name", domain.ErrDimensionResolution)
	}

	now := r.clock.Now().UTC()
	key, created, err := r.repo.ResolveService(ctx, db, domain.ServiceDimension{
		ServiceKey:  r.node.Generate().Int64(),
		ServiceID:   naturalKey,
		ServiceName: strings.TrimSpace(serviceName),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: service %q: %w", domain.ErrDimensionResolution, naturalKey, err)
	}
	if created {
		metrics.Etl().AddDimensionRows("dim_service", 1)
	}
	return key, nil
}
