package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/carebase/planmart/internal/audit/domain"
	auditrepository "github.com/carebase/planmart/internal/audit/repository"
	auditservice "github.com/carebase/planmart/internal/audit/service"
	"github.com/carebase/planmart/internal/clock"
	"github.com/carebase/planmart/internal/config"
	"github.com/carebase/planmart/internal/coordinator"
	etldomain "github.com/carebase/planmart/internal/etl/domain"
	"github.com/carebase/planmart/pkg/db/pagination"
)

type stubRunner struct{}

func (stubRunner) Run(context.Context, string) (etldomain.RunReport, error) {
	return etldomain.RunReport{Status: auditdomain.StatusSuccess}, nil
}

func newTestServer(t *testing.T) (*gin.Engine, *Server, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&auditdomain.RunLog{}))

	log := zap.NewNop()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	audit := auditservice.NewService(auditservice.Params{
		DB:    conn,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  auditrepository.Provide(),
	})

	coord, err := coordinator.New(coordinator.Params{
		Log:    log,
		Clock:  fake,
		Config: config.Config{DebounceInterval: time.Millisecond},
		Runner: stubRunner{},
	})
	require.NoError(t, err)

	srv, err := NewServer(Params{
		Log:   log,
		DB:    conn,
		Coord: coord,
		Audit: audit,
	})
	require.NoError(t, err)

	engine := gin.New()
	srv.Register(engine)
	return engine, srv, conn
}

func TestNewServerRequiresDependencies(t *testing.T) {
	_, err := NewServer(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestHealthz(t *testing.T) {
	engine, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReadyzReady(t *testing.T) {
	engine, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestReadyzUnavailableAfterClose(t *testing.T) {
	engine, _, conn := newTestServer(t)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsServed(t *testing.T) {
	engine, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}

func TestStatusReportsStateAndAuditTrail(t *testing.T) {
	engine, srv, _ := newTestServer(t)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, srv.audit.RecordRun(context.Background(), auditdomain.RunRecord{
		RunID:            "01RUN",
		JobName:          etldomain.JobName,
		TriggerSource:    etldomain.TriggerManual,
		StartedAt:        now,
		CompletedAt:      now.Add(3 * time.Second),
		Status:           auditdomain.StatusSuccess,
		RecordsProcessed: 4,
		RecordsInserted:  4,
	}))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, coordinator.StateIdle, resp.State)
	assert.Zero(t, resp.Pending)
	assert.Nil(t, resp.LastRun)
	require.Len(t, resp.RecentRuns, 1)
	assert.Equal(t, "01RUN", resp.RecentRuns[0].RunID)
	assert.Equal(t, 4, resp.RecentRuns[0].RecordsProcessed)
}

func TestRunsEndpointPagesHistory(t *testing.T) {
	engine, srv, _ := newTestServer(t)

	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, srv.audit.RecordRun(context.Background(), auditdomain.RunRecord{
			RunID:         fmt.Sprintf("run-%d", i),
			JobName:       etldomain.JobName,
			TriggerSource: etldomain.TriggerCron,
			StartedAt:     base.Add(time.Duration(i) * time.Minute),
			CompletedAt:   base.Add(time.Duration(i)*time.Minute + time.Second),
			Status:        auditdomain.StatusSuccess,
		}))
	}

	var resp struct {
		Data     []auditdomain.RunLog `json:"data"`
		PageInfo pagination.PageInfo  `json:"page_info"`
	}

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs?page_size=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "run-4", resp.Data[0].RunID)
	assert.Equal(t, "run-3", resp.Data[1].RunID)
	assert.True(t, resp.PageInfo.HasMore)
	require.NotEmpty(t, resp.PageInfo.NextPageToken)

	next := "/runs?page_size=2&page_token=" + url.QueryEscape(resp.PageInfo.NextPageToken)
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, next, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "run-2", resp.Data[0].RunID)
	assert.Equal(t, "run-1", resp.Data[1].RunID)
}

func TestRunsEndpointFiltersByStatus(t *testing.T) {
	engine, srv, _ := newTestServer(t)

	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	for i, status := range []string{auditdomain.StatusSuccess, auditdomain.StatusFailed} {
		require.NoError(t, srv.audit.RecordRun(context.Background(), auditdomain.RunRecord{
			RunID:         fmt.Sprintf("run-%d", i),
			TriggerSource: etldomain.TriggerNotification,
			StartedAt:     now.Add(time.Duration(i) * time.Minute),
			CompletedAt:   now.Add(time.Duration(i)*time.Minute + time.Second),
			Status:        status,
		}))
	}

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs?status=failed", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []auditdomain.RunLog `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "run-1", resp.Data[0].RunID)
}

func TestRunsEndpointRejectsBadToken(t *testing.T) {
	engine, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs?page_token=%21%21", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusDegradesWhenAuditUnavailable(t *testing.T) {
	engine, _, conn := newTestServer(t)

	require.NoError(t, conn.Migrator().DropTable(&auditdomain.RunLog{}))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.RecentRuns)
}
