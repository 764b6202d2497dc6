package domain

import (
	"strings"
	"time"
)

// Run statuses as persisted in etl_audit_log.
const (
	StatusSuccess        = "SUCCESS"
	StatusPartialSuccess = "PARTIAL_SUCCESS"
	StatusFailed         = "FAILED"
)

const maxErrorMessageLen = 500

// RunLog is one completed pipeline run. RecordsProcessed counts every
// document the run looked at, so RecordsInserted + RecordsFailed never
// exceeds it.
type RunLog struct {
	AuditID          int64     `gorm:"column:audit_id;primaryKey" json:"audit_id"`
	RunID            string    `gorm:"column:run_id" json:"run_id"`
	JobName          string    `gorm:"column:job_name" json:"job_name"`
	TriggerSource    string    `gorm:"column:trigger_source" json:"trigger_source"`
	StartedAt        time.Time `gorm:"column:started_at" json:"started_at"`
	CompletedAt      time.Time `gorm:"column:completed_at" json:"completed_at"`
	Status           string    `gorm:"column:status" json:"status"`
	RecordsProcessed int       `gorm:"column:records_processed" json:"records_processed"`
	RecordsInserted  int       `gorm:"column:records_inserted" json:"records_inserted"`
	RecordsUpdated   int       `gorm:"column:records_updated" json:"records_updated"`
	RecordsFailed    int       `gorm:"column:records_failed" json:"records_failed"`
	ServicesLoaded   int       `gorm:"column:services_loaded" json:"services_loaded"`
	ErrorMessage     string    `gorm:"column:error_message" json:"error_message"`
	CorrelationID    string    `gorm:"column:correlation_id" json:"correlation_id"`
	CreatedAt        time.Time `gorm:"column:created_at" json:"created_at"`
}

func (RunLog) TableName() string {
	return "etl_audit_log"
}

// RunRecord is the pipeline's view of a finished run, before surrogate key,
// correlation id and write timestamp are filled in.
type RunRecord struct {
	RunID            string
	JobName          string
	TriggerSource    string
	StartedAt        time.Time
	CompletedAt      time.Time
	Status           string
	RecordsProcessed int
	RecordsInserted  int
	RecordsUpdated   int
	RecordsFailed    int
	ServicesLoaded   int
	ErrorMessage     string
}

// ValidStatus reports whether status is one of the persisted run statuses.
func ValidStatus(status string) bool {
	switch status {
	case StatusSuccess, StatusPartialSuccess, StatusFailed:
		return true
	}
	return false
}

// TruncateErrorMessage collapses whitespace and bounds the persisted failure
// text so a pathological driver error cannot bloat the audit trail.
func TruncateErrorMessage(msg string) string {
	msg = strings.Join(strings.Fields(msg), " ")
	if len(msg) > maxErrorMessageLen {
		return msg[:maxErrorMessageLen]
	}
	return msg
}
