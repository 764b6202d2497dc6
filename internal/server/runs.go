package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	auditdomain "github.com/carebase/planmart/internal/audit/domain"
	"github.com/carebase/planmart/pkg/db/pagination"
)

type listRunsQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
	Status    string `form:"status"`
	Trigger   string `form:"trigger"`
}

// Runs pages through the audit trail, newest run first.
func (s *Server) Runs(c *gin.Context) {
	var query listRunsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}

	resp, err := s.audit.Runs(c.Request.Context(), auditdomain.ListRunsRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		Status:  query.Status,
		Trigger: query.Trigger,
	})
	if err != nil {
		if errors.Is(err, auditdomain.ErrInvalidPageToken) {
			c.JSON(http.StatusBadRequest, gin.H{"error": auditdomain.ErrInvalidPageToken.Error()})
			return
		}
		s.log.Warn("server.runs.list_failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "run history unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Runs, "page_info": resp.PageInfo})
}
