package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	auditdomain "github.com/carebase/planmart/internal/audit/domain"
)

const recentRunLimit = 10

type runSummary struct {
	RunID        string    `json:"run_id"`
	Trigger      string    `json:"trigger"`
	Status       string    `json:"status"`
	Processed    int       `json:"documents_processed"`
	Loaded       int       `json:"documents_loaded"`
	Failed       int       `json:"documents_failed"`
	ServiceFacts int       `json:"service_facts"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
}

type statusResponse struct {
	State      string               `json:"state"`
	Pending    int                  `json:"pending"`
	LastRun    *runSummary          `json:"last_run,omitempty"`
	RecentRuns []auditdomain.RunLog `json:"recent_runs"`
}

// Status reports the coordinator state and the recent audit trail. Audit
// lookups degrade to an empty list, an ailing warehouse must not take the
// status page down with it.
func (s *Server) Status(c *gin.Context) {
	resp := statusResponse{
		State:      s.coord.State(),
		Pending:    s.coord.Pending(),
		RecentRuns: []auditdomain.RunLog{},
	}

	if report, ok := s.coord.LastReport(); ok {
		resp.LastRun = &runSummary{
			RunID:        report.RunID,
			Trigger:      report.Trigger,
			Status:       report.Status,
			Processed:    report.Processed,
			Loaded:       report.Loaded,
			Failed:       report.Failed,
			ServiceFacts: report.ServiceFacts,
			StartedAt:    report.StartedAt,
			CompletedAt:  report.CompletedAt,
		}
	}

	runs, err := s.audit.RecentRuns(c.Request.Context(), recentRunLimit)
	if err != nil {
		s.log.Warn("server.status.audit_lookup_failed", zap.Error(err))
	} else {
		resp.RecentRuns = runs
	}

	c.JSON(http.StatusOK, resp)
}
