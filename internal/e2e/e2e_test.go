package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/carebase/planmart/internal/audit"
	auditdomain "github.com/carebase/planmart/internal/audit/domain"
	"github.com/carebase/planmart/internal/clock"
	"github.com/carebase/planmart/internal/config"
	"github.com/carebase/planmart/internal/coordinator"
	"github.com/carebase/planmart/internal/etl"
	etldomain "github.com/carebase/planmart/internal/etl/domain"
	"github.com/carebase/planmart/internal/migration"
	"github.com/carebase/planmart/internal/observability"
	"github.com/carebase/planmart/internal/pushmetrics"
	"github.com/carebase/planmart/internal/rollup"
	"github.com/carebase/planmart/internal/runlock"
	"github.com/carebase/planmart/internal/schedule"
	"github.com/carebase/planmart/internal/seed"
	"github.com/carebase/planmart/internal/server"
	"github.com/carebase/planmart/internal/source"
	sourcedomain "github.com/carebase/planmart/internal/source/domain"
	sourcerepo "github.com/carebase/planmart/internal/source/repository"
	"github.com/carebase/planmart/internal/warehouse"
	warehousedomain "github.com/carebase/planmart/internal/warehouse/domain"
	"github.com/carebase/planmart/internal/watch"
	"github.com/carebase/planmart/pkg/db"
)

// refreshedPlanDoc is demo-plan-1000 with a new name and copay. Re-upserting
// it exercises the in-place dimension refresh and the accumulating facts.
const refreshedPlanDoc = `{
	"objectId": "demo-plan-1000",
	"objectType": "plan",
	"_org": "demo.carebase.com",
	"planType": "inNetwork",
	"name": "Demo In-Network Plan Refresh",
	"creationDate": "2024-01-15",
	"planCostShares": {
		"objectId": "demo-costshare-1000",
		"objectType": "membercostshare",
		"_org": "demo.carebase.com",
		"deductible": 2000,
		"copay": 25
	},
	"linkedPlanServices": [
		{
			"objectId": "demo-planservice-1001",
			"objectType": "planservice",
			"_org": "demo.carebase.com",
			"linkedService": {
				"objectId": "demo-service-1001",
				"objectType": "service",
				"_org": "demo.carebase.com",
				"name": "Yearly physical"
			},
			"planserviceCostShares": {
				"objectId": "demo-costshare-1001",
				"objectType": "membercostshare",
				"_org": "demo.carebase.com",
				"deductible": 10,
				"copay": 0
			}
		},
		{
			"objectId": "demo-planservice-1002",
			"objectType": "planservice",
			"_org": "demo.carebase.com",
			"linkedService": {
				"objectId": "demo-service-1002",
				"objectType": "service",
				"_org": "demo.carebase.com",
				"name": "Well baby check up"
			},
			"planserviceCostShares": {
				"objectId": "demo-costshare-1002",
				"objectType": "membercostshare",
				"_org": "demo.carebase.com",
				"deductible": 10,
				"copay": 175
			}
		}
	]
}`

func TestWarehouseLoadEndToEnd(t *testing.T) {
	t.Setenv("DATABASE_TYPE", "sqlite")
	t.Setenv("DATABASE_NAME", "file:planmart_e2e?mode=memory&cache=shared")
	t.Setenv("DATABASE_MAX_OPEN_CONN", "1")
	t.Setenv("DATABASE_MAX_IDLE_CONN", "1")
	t.Setenv("ETL_CRON_ENABLED", "false")
	t.Setenv("ETL_DEBOUNCE_INTERVAL", "50ms")
	t.Setenv("ENVIRONMENT", "test")
	gin.SetMode(gin.TestMode)

	var (
		conn     *gorm.DB
		coord    *coordinator.Coordinator
		engine   *gin.Engine
		srv      *server.Server
		auditSvc auditdomain.Service
	)

	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(func() *snowflake.Node {
			node, err := snowflake.NewNode(1)
			if err != nil {
				panic(err)
			}
			return node
		}),
		db.Module,
		clock.Module,
		migration.Module,

		source.Module,
		warehouse.Module,
		audit.Module,
		etl.Module,
		runlock.Module,
		pushmetrics.Module,

		// The coordinator is provided but not auto-started so the schema can
		// be prepared before the first run fires.
		fx.Provide(coordinator.New),
		watch.Module,
		schedule.Module,

		fx.Provide(server.NewEngine),
		fx.Provide(server.NewServer),
		fx.Populate(&conn, &coord, &engine, &srv, &auditSvc),
	)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()
	require.NoError(t, app.Start(startCtx))
	defer app.Stop(context.Background())

	require.NoError(t, conn.AutoMigrate(
		&sourcedomain.PlanDocument{},
		&warehousedomain.OrgDimension{},
		&warehousedomain.PlanTypeDimension{},
		&warehousedomain.DateDimension{},
		&warehousedomain.PlanDimension{},
		&warehousedomain.ServiceDimension{},
		&warehousedomain.PlanCostFact{},
		&warehousedomain.ServiceCostFact{},
		&auditdomain.RunLog{},
		&rollup.DailyPlanCost{},
	))
	require.NoError(t, seed.EnsureDemoPlans(conn))

	srv.Register(engine)
	ts := httptest.NewServer(engine)
	defer ts.Close()

	loopCtx, cancelLoop := context.WithCancel(context.Background())
	coord.Start(loopCtx)
	defer func() {
		cancelLoop()
		<-coord.Done()
	}()

	coord.TriggerNow(etldomain.TriggerStartup)
	require.Eventually(t, func() bool {
		report, ok := coord.LastReport()
		return ok && report.Status == auditdomain.StatusSuccess
	}, 15*time.Second, 50*time.Millisecond, "initial load never completed")

	report, ok := coord.LastReport()
	require.True(t, ok)
	assert.Equal(t, etldomain.TriggerStartup, report.Trigger)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 2, report.Loaded)
	assert.Zero(t, report.Failed)
	assert.Equal(t, 3, report.ServiceFacts)

	assertCount(t, conn, &warehousedomain.OrgDimension{}, 1)
	assertCount(t, conn, &warehousedomain.PlanTypeDimension{}, 2)
	assertCount(t, conn, &warehousedomain.PlanDimension{}, 2)
	assertCount(t, conn, &warehousedomain.ServiceDimension{}, 3)
	assertCount(t, conn, &warehousedomain.DateDimension{}, 2)
	assertCount(t, conn, &warehousedomain.PlanCostFact{}, 2)
	assertCount(t, conn, &warehousedomain.ServiceCostFact{}, 3)

	t.Run("ops endpoints", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, getStatusCode(t, ts.URL+"/healthz"))
		assert.Equal(t, http.StatusOK, getStatusCode(t, ts.URL+"/readyz"))

		var status struct {
			State   string `json:"state"`
			Pending int    `json:"pending"`
			LastRun *struct {
				Status string `json:"status"`
			} `json:"last_run"`
			RecentRuns []auditdomain.RunLog `json:"recent_runs"`
		}
		getJSON(t, ts.URL+"/status", &status)
		assert.Equal(t, coordinator.StateIdle, status.State)
		assert.Zero(t, status.Pending)
		require.NotNil(t, status.LastRun)
		assert.Equal(t, auditdomain.StatusSuccess, status.LastRun.Status)
		require.Len(t, status.RecentRuns, 1)
		assert.Equal(t, etldomain.JobName, status.RecentRuns[0].JobName)

		var runs struct {
			Data     []auditdomain.RunLog `json:"data"`
			PageInfo struct {
				HasMore bool `json:"has_more"`
			} `json:"page_info"`
		}
		getJSON(t, ts.URL+"/runs", &runs)
		require.Len(t, runs.Data, 1)
		assert.False(t, runs.PageInfo.HasMore)

		resp, err := http.Get(ts.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("notification triggers refresh", func(t *testing.T) {
		require.NoError(t, sourcerepo.Provide().Upsert(context.Background(), conn, sourcedomain.PlanDocument{
			ObjectID: "demo-plan-1000",
			Payload:  datatypes.JSON(refreshedPlanDoc),
		}))
		coord.Notify()

		require.Eventually(t, func() bool {
			runs, err := auditSvc.RecentRuns(context.Background(), 10)
			return err == nil && len(runs) == 2
		}, 15*time.Second, 50*time.Millisecond, "refresh run never completed")

		// Type-1 refresh: the plan dimension row is rewritten, not duplicated.
		assertCount(t, conn, &warehousedomain.PlanDimension{}, 2)
		var plan warehousedomain.PlanDimension
		require.NoError(t, conn.Where("plan_id = ?", "demo-plan-1000").First(&plan).Error)
		assert.Equal(t, "Demo In-Network Plan Refresh", plan.PlanName)

		// Facts accumulate across runs by default.
		assertCount(t, conn, &warehousedomain.PlanCostFact{}, 4)
		assertCount(t, conn, &warehousedomain.ServiceCostFact{}, 6)
	})
}

func assertCount(t *testing.T, conn *gorm.DB, model any, want int64) {
	t.Helper()
	var got int64
	require.NoError(t, conn.Model(model).Count(&got).Error)
	assert.Equal(t, want, got, "%T", model)
}

func getStatusCode(t *testing.T, url string) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}
