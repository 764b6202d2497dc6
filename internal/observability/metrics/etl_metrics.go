package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	auditdomain "github.com/carebase/planmart/internal/audit/domain"
	sourcedomain "github.com/carebase/planmart/internal/source/domain"
	warehousedomain "github.com/carebase/planmart/internal/warehouse/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	EtlErrorReasonMalformed            = "malformed_document"
	EtlErrorReasonDimension            = "dimension_resolution"
	EtlErrorReasonFactInsert           = "fact_insert"
	EtlErrorReasonInvalidDate          = "invalid_date"
	EtlErrorReasonAuditWrite           = "audit_write"
	EtlErrorReasonDeadlineExceeded     = "deadline_exceeded"
	EtlErrorReasonDBLockTimeout        = "db_lock_timeout"
	EtlErrorReasonSerializationFailure = "serialization_failure"
	EtlErrorReasonUniqueViolation      = "unique_violation"
	EtlErrorReasonDB                   = "db"
	EtlErrorReasonUnknown              = "unknown"
)

const (
	EtlRunSkippedReasonLockHeld = "lock_held"
)

// EtlMetrics captures transform-load pipeline health signals.
type EtlMetrics struct {
	runs               *prometheus.CounterVec
	runsSkipped        *prometheus.CounterVec
	runDuration        *prometheus.HistogramVec
	documentsProcessed *prometheus.CounterVec
	documentErrors     *prometheus.CounterVec
	dimensionRows      *prometheus.CounterVec
	factRows           *prometheus.CounterVec
	notifications      prometheus.Counter
	coalesced          prometheus.Counter
	debouncedFollowups prometheus.Counter
	listenerReconnects prometheus.Counter
	auditWriteFailures prometheus.Counter
	qualityFailures    *prometheus.CounterVec
	coordinatorRunning prometheus.Gauge
	pendingFollowups   prometheus.Gauge
}

var (
	etlMetricsOnce sync.Once
	etlMetrics     *EtlMetrics
)

// Etl returns the singleton pipeline metrics registry.
func Etl() *EtlMetrics {
	return EtlWithConfig(Config{})
}

// EtlWithConfig returns the singleton pipeline metrics registry using config labels.
func EtlWithConfig(cfg Config) *EtlMetrics {
	etlMetricsOnce.Do(func() {
		etlMetrics = newEtlMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return etlMetrics
}

// ResetEtlMetricsForTest resets the pipeline metrics singleton for tests.
func ResetEtlMetricsForTest() {
	etlMetricsOnce = sync.Once{}
	etlMetrics = nil
}

func newEtlMetrics(registerer prometheus.Registerer, cfg Config) *EtlMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "planmart"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "planmart_etl_runs_total",
		Help:        "Pipeline runs by trigger and final status.",
		ConstLabels: constLabels,
	}, []string{"trigger", "status"})
	runsSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "planmart_etl_runs_skipped_total",
		Help:        "Pipeline runs skipped by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "planmart_etl_run_duration_seconds",
		Help:        "Pipeline run latency to protect warehouse freshness.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300, 600},
		ConstLabels: constLabels,
	}, []string{"trigger"})
	documentsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "planmart_etl_documents_processed_total",
		Help:        "Plan documents processed by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	documentErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "planmart_etl_document_errors_total",
		Help:        "Per-document failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	dimensionRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "planmart_etl_dimension_rows_created_total",
		Help:        "New dimension rows created by table.",
		ConstLabels: constLabels,
	}, []string{"dimension"})
	factRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "planmart_etl_fact_rows_inserted_total",
		Help:        "Fact rows inserted by table.",
		ConstLabels: constLabels,
	}, []string{"fact_table"})
	notifications := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "planmart_etl_notifications_total",
		Help:        "Change notifications received from the source store.",
		ConstLabels: constLabels,
	})
	coalesced := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "planmart_etl_notifications_coalesced_total",
		Help:        "Notifications absorbed into an already pending follow-up run.",
		ConstLabels: constLabels,
	})
	debouncedFollowups := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "planmart_etl_debounced_followups_total",
		Help:        "Follow-up runs scheduled after a run that received notifications.",
		ConstLabels: constLabels,
	})
	listenerReconnects := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "planmart_etl_listener_reconnects_total",
		Help:        "Notification channel reconnect attempts.",
		ConstLabels: constLabels,
	})
	auditWriteFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "planmart_etl_audit_write_failures_total",
		Help:        "Audit rows that could not be persisted.",
		ConstLabels: constLabels,
	})
	qualityFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "planmart_etl_quality_check_failures_total",
		Help:        "Rows flagged by post-run data-quality checks.",
		ConstLabels: constLabels,
	}, []string{"check"})
	coordinatorRunning := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "planmart_etl_coordinator_running",
		Help:        "1 while the coordinator has a pipeline run in flight.",
		ConstLabels: constLabels,
	})
	pendingFollowups := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "planmart_etl_coordinator_pending",
		Help:        "Notifications waiting to collapse into the next follow-up run.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		runs,
		runsSkipped,
		runDuration,
		documentsProcessed,
		documentErrors,
		dimensionRows,
		factRows,
		notifications,
		coalesced,
		debouncedFollowups,
		listenerReconnects,
		auditWriteFailures,
		qualityFailures,
		coordinatorRunning,
		pendingFollowups,
	)

	return &EtlMetrics{
		runs:               runs,
		runsSkipped:        runsSkipped,
		runDuration:        runDuration,
		documentsProcessed: documentsProcessed,
		documentErrors:     documentErrors,
		dimensionRows:      dimensionRows,
		factRows:           factRows,
		notifications:      notifications,
		coalesced:          coalesced,
		debouncedFollowups: debouncedFollowups,
		listenerReconnects: listenerReconnects,
		auditWriteFailures: auditWriteFailures,
		qualityFailures:    qualityFailures,
		coordinatorRunning: coordinatorRunning,
		pendingFollowups:   pendingFollowups,
	}
}

// IncRun increments the run counter for a trigger and final status.
func (m *EtlMetrics) IncRun(trigger, status string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(trigger, strings.ToLower(status)).Inc()
}

// IncRunSkipped increments the skipped-run counter.
func (m *EtlMetrics) IncRunSkipped(reason string) {
	if m == nil || m.runsSkipped == nil {
		return
	}
	m.runsSkipped.WithLabelValues(reason).Inc()
}

// ObserveRunDuration records pipeline run latency in seconds.
func (m *EtlMetrics) ObserveRunDuration(trigger string, duration time.Duration) {
	if m == nil || m.runDuration == nil {
		return
	}
	m.runDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

// IncDocumentProcessed increments the processed counter for an outcome.
func (m *EtlMetrics) IncDocumentProcessed(outcome string) {
	if m == nil || m.documentsProcessed == nil {
		return
	}
	m.documentsProcessed.WithLabelValues(outcome).Inc()
}

// IncDocumentError increments the per-document error counter with classification.
func (m *EtlMetrics) IncDocumentError(err error) {
	if m == nil || m.documentErrors == nil || err == nil {
		return
	}
	m.documentErrors.WithLabelValues(ClassifyDocumentFailure(err)).Inc()
}

// AddDimensionRows adds newly created dimension rows for a table.
func (m *EtlMetrics) AddDimensionRows(dimension string, count int) {
	if m == nil || m.dimensionRows == nil || count <= 0 {
		return
	}
	m.dimensionRows.WithLabelValues(dimension).Add(float64(count))
}

// AddFactRows adds inserted fact rows for a table.
func (m *EtlMetrics) AddFactRows(table string, count int) {
	if m == nil || m.factRows == nil || count <= 0 {
		return
	}
	m.factRows.WithLabelValues(table).Add(float64(count))
}

// IncNotification counts a change notification from the source store.
func (m *EtlMetrics) IncNotification() {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.Inc()
}

// IncCoalesced counts a notification absorbed into the pending follow-up.
func (m *EtlMetrics) IncCoalesced() {
	if m == nil || m.coalesced == nil {
		return
	}
	m.coalesced.Inc()
}

// IncDebouncedFollowup counts a follow-up run scheduled after a busy run.
func (m *EtlMetrics) IncDebouncedFollowup() {
	if m == nil || m.debouncedFollowups == nil {
		return
	}
	m.debouncedFollowups.Inc()
}

// IncListenerReconnect counts a notification channel reconnect attempt.
func (m *EtlMetrics) IncListenerReconnect() {
	if m == nil || m.listenerReconnects == nil {
		return
	}
	m.listenerReconnects.Inc()
}

// IncAuditWriteFailure counts an audit row that could not be persisted.
func (m *EtlMetrics) IncAuditWriteFailure() {
	if m == nil || m.auditWriteFailures == nil {
		return
	}
	m.auditWriteFailures.Inc()
}

// AddQualityFailures counts rows flagged by a named post-run quality check.
func (m *EtlMetrics) AddQualityFailures(check string, count int64) {
	if m == nil || m.qualityFailures == nil || count <= 0 {
		return
	}
	m.qualityFailures.WithLabelValues(check).Add(float64(count))
}

// SetCoordinatorRunning flags whether a pipeline run is currently in flight.
func (m *EtlMetrics) SetCoordinatorRunning(running bool) {
	if m == nil || m.coordinatorRunning == nil {
		return
	}
	if running {
		m.coordinatorRunning.Set(1)
		return
	}
	m.coordinatorRunning.Set(0)
}

// SetPendingFollowups publishes the coordinator's pending-notification count.
func (m *EtlMetrics) SetPendingFollowups(count int) {
	if m == nil || m.pendingFollowups == nil {
		return
	}
	m.pendingFollowups.Set(float64(count))
}

// ClassifyDocumentFailure maps per-document errors to low-cardinality reasons.
func ClassifyDocumentFailure(err error) string {
	if err == nil {
		return EtlErrorReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return EtlErrorReasonDeadlineExceeded
	}
	switch {
	case errors.Is(err, sourcedomain.ErrMalformedDocument):
		return EtlErrorReasonMalformed
	case errors.Is(err, warehousedomain.ErrDimensionResolution):
		return EtlErrorReasonDimension
	case errors.Is(err, warehousedomain.ErrFactInsert):
		return EtlErrorReasonFactInsert
	case errors.Is(err, warehousedomain.ErrInvalidDate):
		return EtlErrorReasonInvalidDate
	case errors.Is(err, auditdomain.ErrAuditWrite):
		return EtlErrorReasonAuditWrite
	}
	if isDBLockTimeout(err) {
		return EtlErrorReasonDBLockTimeout
	}
	if isSerializationFailure(err) {
		return EtlErrorReasonSerializationFailure
	}
	if isUniqueViolation(err) {
		return EtlErrorReasonUniqueViolation
	}
	if isDBError(err) {
		return EtlErrorReasonDB
	}
	return EtlErrorReasonUnknown
}

func isDBLockTimeout(err error) bool {
	return hasPGCode(err, "55P03")
}

func isSerializationFailure(err error) bool {
	return hasPGCode(err, "40001")
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return hasPGCode(err, "23505")
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
