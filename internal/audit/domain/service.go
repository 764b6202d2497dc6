package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/carebase/planmart/pkg/db/pagination"
)

var (
	ErrAuditWrite       = errors.New("audit_write_failed")
	ErrInvalidStatus    = errors.New("invalid_run_status")
	ErrInvalidPageToken = errors.New("invalid_page_token")
)

// RunCursor marks the keyset position after one page of run history.
type RunCursor struct {
	AuditID   int64
	StartedAt time.Time
}

// ListRunsFilter narrows a run history page before the keyset is applied.
type ListRunsFilter struct {
	Status  string
	Trigger string
	Cursor  *RunCursor
	Limit   int
}

type ListRunsRequest struct {
	pagination.Pagination
	Status  string
	Trigger string
}

type ListRunsResponse struct {
	Runs []RunLog
	pagination.PageInfo
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *RunLog) error
	ListRecent(ctx context.Context, db *gorm.DB, limit int) ([]RunLog, error)
	List(ctx context.Context, db *gorm.DB, filter ListRunsFilter) ([]*RunLog, error)
}

// Service records pipeline run outcomes. Audit writes never abort a run:
// callers log the returned error and move on.
type Service interface {
	RecordRun(ctx context.Context, record RunRecord) error
	RecentRuns(ctx context.Context, limit int) ([]RunLog, error)
	Runs(ctx context.Context, req ListRunsRequest) (ListRunsResponse, error)
}
