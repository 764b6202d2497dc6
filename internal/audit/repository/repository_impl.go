package repository

import (
	"context"
	"strings"

	"github.com/carebase/planmart/internal/audit/domain"
	"gorm.io/gorm"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 250
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.RunLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO etl_audit_log (
			audit_id, run_id, job_name, trigger_source, started_at, completed_at,
			status, records_processed, records_inserted, records_updated,
			records_failed, services_loaded, error_message, correlation_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.AuditID,
		entry.RunID,
		entry.JobName,
		entry.TriggerSource,
		entry.StartedAt,
		entry.CompletedAt,
		entry.Status,
		entry.RecordsProcessed,
		entry.RecordsInserted,
		entry.RecordsUpdated,
		entry.RecordsFailed,
		entry.ServicesLoaded,
		entry.ErrorMessage,
		entry.CorrelationID,
		entry.CreatedAt,
	).Error
}

func (r *repo) ListRecent(ctx context.Context, db *gorm.DB, limit int) ([]domain.RunLog, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	var logs []domain.RunLog
	err := db.WithContext(ctx).Model(&domain.RunLog{}).
		Order("started_at desc, audit_id desc").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListRunsFilter) ([]*domain.RunLog, error) {
	var logs []*domain.RunLog
	stmt := db.WithContext(ctx).Model(&domain.RunLog{})

	if status := strings.TrimSpace(filter.Status); status != "" {
		stmt = stmt.Where("status = ?", status)
	}
	if trigger := strings.TrimSpace(filter.Trigger); trigger != "" {
		stmt = stmt.Where("trigger_source = ?", trigger)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(started_at < ?) OR (started_at = ? AND audit_id < ?)",
			filter.Cursor.StartedAt,
			filter.Cursor.StartedAt,
			filter.Cursor.AuditID,
		)
	}

	stmt = stmt.Order("started_at desc, audit_id desc")
	if filter.Limit > 0 {
		// One extra row tells the service whether another page exists.
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
