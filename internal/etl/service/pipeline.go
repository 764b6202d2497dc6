package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/carebase/planmart/internal/audit/domain"
	"github.com/carebase/planmart/internal/clock"
	"github.com/carebase/planmart/internal/config"
	etldomain "github.com/carebase/planmart/internal/etl/domain"
	"github.com/carebase/planmart/internal/observability/logger"
	"github.com/carebase/planmart/internal/observability/metrics"
	"github.com/carebase/planmart/internal/quality"
	"github.com/carebase/planmart/internal/rollup"
	"github.com/carebase/planmart/internal/runlock"
	sourcedomain "github.com/carebase/planmart/internal/source/domain"
	warehousedomain "github.com/carebase/planmart/internal/warehouse/domain"
	warehouseservice "github.com/carebase/planmart/internal/warehouse/service"
	"github.com/carebase/planmart/pkg/telemetry/correlation"
)

const sourceSystem = "plan_store"

var ErrInvalidConfig = errors.New("etl pipeline requires db, logger, clock, node, source, resolver, facts and audit")

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Node     *snowflake.Node
	Config   config.Config
	Tuning   *config.EtlTuningHolder   `optional:"true"`
	Source   sourcedomain.Repository
	Resolver *warehouseservice.Resolver
	Facts    warehousedomain.FactRepository
	Audit    auditdomain.Service
	Lock     runlock.RunLock           `optional:"true"`
	Quality  *quality.Checker          `optional:"true"`
	Rollup   *rollup.Rebuilder         `optional:"true"`
}

// Service is the transform-load pipeline: full source fetch, one transaction
// per document, dimension resolution before fact insertion, one audit row per
// run.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	node       *snowflake.Node
	tuning     *config.EtlTuningHolder
	source     sourcedomain.Repository
	resolver   *warehouseservice.Resolver
	facts      warehousedomain.FactRepository
	audit      auditdomain.Service
	lock       runlock.RunLock
	quality    *quality.Checker
	rollup     *rollup.Rebuilder
	idempotent bool
}

func New(p Params) (etldomain.Runner, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Node == nil ||
		p.Source == nil || p.Resolver == nil || p.Facts == nil || p.Audit == nil {
		return nil, ErrInvalidConfig
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("etl.pipeline"),
		clock:      p.Clock,
		node:       p.Node,
		tuning:     p.Tuning,
		source:     p.Source,
		resolver:   p.Resolver,
		facts:      p.Facts,
		audit:      p.Audit,
		lock:       p.Lock,
		quality:    p.Quality,
		rollup:     p.Rollup,
		idempotent: p.Config.IdempotentFacts,
	}, nil
}

func (s *Service) currentTuning() config.EtlTuning {
	if s.tuning != nil {
		return s.tuning.Get()
	}
	return config.DefaultEtlTuning()
}

// Run executes one full reload. Per-document errors are contained at the
// document boundary; only a source fetch failure propagates to the caller.
func (s *Service) Run(ctx context.Context, trigger string) (etldomain.RunReport, error) {
	trigger = strings.TrimSpace(trigger)
	if trigger == "" {
		trigger = etldomain.TriggerManual
	}

	tuning := s.currentTuning()
	runID := ulid.Make().String()

	// The run owns its deadline: a daemon shutdown or an abandoned caller
	// must not sever the audit append of a run that already started.
	runCtx := context.WithoutCancel(ctx)
	cancel := context.CancelFunc(func() {})
	if tuning.RunTimeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, tuning.RunTimeout)
	}
	defer cancel()

	runCtx, correlationID := correlation.EnsureCorrelationID(runCtx)
	log := logger.WithRun(s.log, runID)

	if s.lock != nil {
		token, ok, err := s.lock.TryAcquire(runCtx)
		switch {
		case err != nil:
			// Lock backend trouble never blocks the load; duplicate runs
			// are cheaper than a stale warehouse.
			log.Warn("etl.run.lock_error", zap.Error(err))
		case !ok:
			metrics.Etl().IncRunSkipped(metrics.EtlRunSkippedReasonLockHeld)
			log.Info("etl.run.skipped",
				zap.String("trigger", trigger),
				zap.String("reason", metrics.EtlRunSkippedReasonLockHeld),
			)
			return etldomain.RunReport{RunID: runID, Trigger: trigger}, etldomain.ErrRunInProgress
		default:
			defer func() {
				if err := s.lock.Release(context.WithoutCancel(runCtx), token); err != nil {
					log.Warn("etl.run.lock_release_failed", zap.Error(err))
				}
			}()
		}
	}

	runCtx, span := otel.Tracer("planmart/etl").Start(runCtx, "etl.run",
		trace.WithAttributes(
			attribute.String("etl.trigger", trigger),
			attribute.String("etl.run_id", runID),
		),
	)
	defer span.End()

	started := s.clock.Now().UTC()
	log.Info("etl.run.started",
		zap.String("trigger", trigger),
		zap.String("correlation_id", correlationID),
	)

	docs, err := s.source.FetchAll(runCtx, s.db)
	if err != nil {
		completed := s.clock.Now().UTC()
		report := etldomain.RunReport{
			RunID:       runID,
			Trigger:     trigger,
			Status:      auditdomain.StatusFailed,
			StartedAt:   started,
			CompletedAt: completed,
			Duration:    completed.Sub(started),
		}
		s.writeAudit(runCtx, report, err.Error())
		metrics.Etl().IncRun(trigger, report.Status)
		metrics.Etl().ObserveRunDuration(trigger, report.Duration)
		span.RecordError(err)
		log.Error("etl.run.failed", zap.Error(err))
		return report, fmt.Errorf("%w: %w", etldomain.ErrStorageUnreachable, err)
	}

	stats := newRunStats()
	for i := range docs {
		s.loadDocument(runCtx, log, stats, &docs[i], runID, tuning)
	}

	completed := s.clock.Now().UTC()
	report := etldomain.RunReport{
		RunID:        runID,
		Trigger:      trigger,
		Status:       stats.status(),
		Processed:    stats.processed,
		Loaded:       stats.loaded,
		Failed:       stats.failed,
		ServiceFacts: stats.serviceFacts,
		StartedAt:    started,
		CompletedAt:  completed,
		Duration:     completed.Sub(started),
	}

	if s.quality != nil {
		s.quality.Run(runCtx, s.db, tuning.MaxReasonableCost)
	}
	if s.rollup != nil {
		if err := s.rollup.Rebuild(runCtx, s.db, stats.touchedDateKeys()); err != nil {
			log.Warn("etl.rollup.failed", zap.Error(err))
		}
	}

	s.writeAudit(runCtx, report, "")
	metrics.Etl().IncRun(trigger, report.Status)
	metrics.Etl().ObserveRunDuration(trigger, report.Duration)
	span.SetAttributes(
		attribute.Int("etl.documents_processed", report.Processed),
		attribute.Int("etl.documents_failed", report.Failed),
	)
	log.Info("etl.run.completed",
		zap.String("trigger", trigger),
		zap.String("status", report.Status),
		zap.Int("processed", report.Processed),
		zap.Int("loaded", report.Loaded),
		zap.Int("failed", report.Failed),
		zap.Int("service_facts", report.ServiceFacts),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (s *Service) loadDocument(ctx context.Context, log *zap.Logger, stats *runStats, doc *sourcedomain.PlanDocument, runID string, tuning config.EtlTuning) {
	docCtx := ctx
	if tuning.DocumentTimeout > 0 {
		var cancel context.CancelFunc
		docCtx, cancel = context.WithTimeout(ctx, tuning.DocumentTimeout)
		defer cancel()
	}

	var result docResult
	plan, err := sourcedomain.ParsePlan(doc.Payload)
	if err == nil {
		err = s.db.WithContext(docCtx).Transaction(func(tx *gorm.DB) error {
			res, txErr := s.loadPlan(docCtx, tx, plan, runID)
			if txErr != nil {
				return txErr
			}
			result = res
			return nil
		})
	}

	if err != nil {
		stats.recordFailed()
		metrics.Etl().IncDocumentProcessed("failed")
		metrics.Etl().IncDocumentError(err)
		log.Warn("etl.document.failed",
			zap.String("object_id", doc.ObjectID),
			zap.String("reason", metrics.ClassifyDocumentFailure(err)),
			zap.Error(err),
		)
		return
	}

	stats.recordLoaded(result)
	metrics.Etl().IncDocumentProcessed("loaded")
	metrics.Etl().AddFactRows("fact_plan_costs", result.planFacts)
	metrics.Etl().AddFactRows("fact_service_costs", result.serviceFacts)
	log.Debug("etl.document.loaded",
		zap.String("object_id", plan.ObjectID),
		zap.Int("service_facts", result.serviceFacts),
	)
}

// loadPlan runs one document's dimension-then-fact sequence inside the
// caller's transaction.
func (s *Service) loadPlan(ctx context.Context, tx *gorm.DB, plan sourcedomain.Plan, runID string) (docResult, error) {
	orgKey, err := s.resolver.ResolveOrg(ctx, tx, plan.OrgID, plan.OrgID)
	if err != nil {
		return docResult{}, err
	}
	typeKey, err := s.resolver.ResolvePlanType(ctx, tx, plan.PlanType)
	if err != nil {
		return docResult{}, err
	}
	dateKey, err := s.resolver.EnsureDate(ctx, tx, plan.CreationDate)
	if err != nil {
		return docResult{}, err
	}
	planKey, err := s.resolver.ResolvePlan(ctx, tx, warehousedomain.PlanAttributes{
		PlanID:          plan.ObjectID,
		PlanName:        plan.PlanName,
		OrgKey:          orgKey,
		PlanTypeKey:     typeKey,
		CreationDateKey: dateKey,
		SourceSystem:    sourceSystem,
	})
	if err != nil {
		return docResult{}, err
	}

	if s.idempotent {
		if _, err := s.facts.DeleteFactsForPlan(ctx, tx, planKey); err != nil {
			return docResult{}, fmt.Errorf("%w: clearing plan %q: %w", warehousedomain.ErrFactInsert, plan.ObjectID, err)
		}
	}

	now := s.clock.Now().UTC()
	planFact := &warehousedomain.PlanCostFact{
		FactKey:     s.node.Generate().Int64(),
		PlanKey:     planKey,
		OrgKey:      orgKey,
		PlanTypeKey: typeKey,
		DateKey:     dateKey,
		Deductible:  plan.CostShares.Deductible,
		Copay:       plan.CostShares.Copay,
		TotalCost:   plan.CostShares.Deductible + plan.CostShares.Copay,
		LoadID:      runID,
		LoadedAt:    now,
	}
	if err := s.facts.InsertPlanCost(ctx, tx, planFact); err != nil {
		return docResult{}, fmt.Errorf("%w: plan %q: %w", warehousedomain.ErrFactInsert, plan.ObjectID, err)
	}

	serviceFacts := make([]warehousedomain.ServiceCostFact, 0, len(plan.Services))
	for _, svc := range plan.Services {
		if warehousedomain.ServiceNaturalKey(svc.ServiceID, svc.ServiceName) == "" {
			// Entry carries nothing resolvable; the lenient parser kept it,
			// the loader drops it.
			continue
		}
		serviceKey, err := s.resolver.ResolveService(ctx, tx, svc.ServiceID, svc.ServiceName)
		if err != nil {
			return docResult{}, err
		}
		serviceFacts = append(serviceFacts, warehousedomain.ServiceCostFact{
			FactKey:    s.node.Generate().Int64(),
			PlanKey:    planKey,
			ServiceKey: serviceKey,
			OrgKey:     orgKey,
			DateKey:    dateKey,
			Deductible: svc.CostShares.Deductible,
			Copay:      svc.CostShares.Copay,
			TotalCost:  svc.CostShares.Deductible + svc.CostShares.Copay,
			LoadID:     runID,
			LoadedAt:   now,
		})
	}
	if len(serviceFacts) > 0 {
		if err := s.facts.InsertServiceCosts(ctx, tx, serviceFacts); err != nil {
			return docResult{}, fmt.Errorf("%w: plan %q services: %w", warehousedomain.ErrFactInsert, plan.ObjectID, err)
		}
	}

	return docResult{planFacts: 1, serviceFacts: len(serviceFacts), dateKey: dateKey}, nil
}

func (s *Service) writeAudit(ctx context.Context, report etldomain.RunReport, errorMessage string) {
	// Audit failures never change the run outcome; the service logs and
	// counts them, and the in-memory report stays authoritative.
	_ = s.audit.RecordRun(ctx, auditdomain.RunRecord{
		RunID:            report.RunID,
		JobName:          etldomain.JobName,
		TriggerSource:    report.Trigger,
		StartedAt:        report.StartedAt,
		CompletedAt:      report.CompletedAt,
		Status:           report.Status,
		RecordsProcessed: report.Processed,
		RecordsInserted:  report.Loaded,
		RecordsFailed:    report.Failed,
		ServicesLoaded:   report.ServiceFacts,
		ErrorMessage:     errorMessage,
	})
}
