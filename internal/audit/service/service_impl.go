package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/carebase/planmart/internal/audit/domain"
	"github.com/carebase/planmart/internal/clock"
	"github.com/carebase/planmart/internal/observability/metrics"
	"github.com/carebase/planmart/pkg/db/pagination"
	"github.com/carebase/planmart/pkg/telemetry/correlation"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// RecordRun persists one finished run. The write happens outside any
// document transaction, so a failed run still leaves an audit row.
func (s *Service) RecordRun(ctx context.Context, record auditdomain.RunRecord) error {
	if !auditdomain.ValidStatus(record.Status) {
		return fmt.Errorf("%w: %q", auditdomain.ErrInvalidStatus, record.Status)
	}

	entry := auditdomain.RunLog{
		AuditID:          s.genID.Generate().Int64(),
		RunID:            strings.TrimSpace(record.RunID),
		JobName:          strings.TrimSpace(record.JobName),
		TriggerSource:    strings.TrimSpace(record.TriggerSource),
		StartedAt:        record.StartedAt.UTC(),
		CompletedAt:      record.CompletedAt.UTC(),
		Status:           record.Status,
		RecordsProcessed: record.RecordsProcessed,
		RecordsInserted:  record.RecordsInserted,
		RecordsUpdated:   record.RecordsUpdated,
		RecordsFailed:    record.RecordsFailed,
		ServicesLoaded:   record.ServicesLoaded,
		ErrorMessage:     auditdomain.TruncateErrorMessage(record.ErrorMessage),
		CorrelationID:    correlation.ExtractCorrelationID(ctx),
		CreatedAt:        s.clock.Now().UTC(),
	}

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		metrics.Etl().IncAuditWriteFailure()
		s.log.Warn("audit.run.write_failed",
			zap.String("run_id", entry.RunID),
			zap.String("status", entry.Status),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", auditdomain.ErrAuditWrite, err)
	}

	s.log.Info("audit.run.recorded",
		zap.String("run_id", entry.RunID),
		zap.String("trigger", entry.TriggerSource),
		zap.String("status", entry.Status),
		zap.Int("records_processed", entry.RecordsProcessed),
		zap.Int("records_failed", entry.RecordsFailed),
	)
	return nil
}

func (s *Service) RecentRuns(ctx context.Context, limit int) ([]auditdomain.RunLog, error) {
	return s.repo.ListRecent(ctx, s.db, limit)
}

// Runs pages through the run history, newest first. The cursor pins the
// position on (started_at, audit_id) so rows inserted mid-pagination never
// shift later pages.
func (s *Service) Runs(ctx context.Context, req auditdomain.ListRunsRequest) (auditdomain.ListRunsResponse, error) {
	var cursor *auditdomain.RunCursor
	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return auditdomain.ListRunsResponse{}, auditdomain.ErrInvalidPageToken
		}
		startedAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return auditdomain.ListRunsResponse{}, auditdomain.ErrInvalidPageToken
		}
		auditID, err := strconv.ParseInt(strings.TrimSpace(decoded.ID), 10, 64)
		if err != nil || auditID == 0 {
			return auditdomain.ListRunsResponse{}, auditdomain.ErrInvalidPageToken
		}
		cursor = &auditdomain.RunCursor{
			AuditID:   auditID,
			StartedAt: startedAt,
		}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	items, err := s.repo.List(ctx, s.db, auditdomain.ListRunsFilter{
		Status:  strings.ToUpper(strings.TrimSpace(req.Status)),
		Trigger: strings.ToLower(strings.TrimSpace(req.Trigger)),
		Cursor:  cursor,
		Limit:   pageSize,
	})
	if err != nil {
		return auditdomain.ListRunsResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(item *auditdomain.RunLog) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        strconv.FormatInt(item.AuditID, 10),
			CreatedAt: item.StartedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	runs := make([]auditdomain.RunLog, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		runs = append(runs, *item)
	}

	resp := auditdomain.ListRunsResponse{Runs: runs}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}
