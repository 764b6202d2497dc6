package domain

import (
	"context"
	"errors"
	"time"

	auditdomain "github.com/carebase/planmart/internal/audit/domain"
)

// JobName identifies this loader in the audit trail.
const JobName = "plan_warehouse_load"

// Trigger sources, recorded on runs and their audit rows.
const (
	TriggerStartup      = "startup"
	TriggerNotification = "notification"
	TriggerDebounce     = "debounce"
	TriggerCron         = "cron"
	TriggerManual       = "manual"
)

var (
	// ErrStorageUnreachable marks a run that failed before any document work.
	ErrStorageUnreachable = errors.New("storage_unreachable")
	// ErrRunInProgress reports that another replica holds the run lock.
	ErrRunInProgress = errors.New("run_in_progress")
)

// RunReport summarizes one pipeline run for callers. The audit row is its
// persisted twin; when the audit write fails this report remains the source
// of truth.
type RunReport struct {
	RunID        string
	Trigger      string
	Status       string
	Processed    int
	Loaded       int
	Failed       int
	ServiceFacts int
	StartedAt    time.Time
	CompletedAt  time.Time
	Duration     time.Duration
}

// Completed reports whether the run got through its document loop, with or
// without per-document failures. Process wrappers exit zero on completed runs.
func (r RunReport) Completed() bool {
	return r.Status == auditdomain.StatusSuccess || r.Status == auditdomain.StatusPartialSuccess
}

// Runner is the coordinator's view of the pipeline.
type Runner interface {
	Run(ctx context.Context, trigger string) (RunReport, error)
}
