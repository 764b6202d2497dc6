package rollup

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/carebase/planmart/internal/warehouse/domain"
)

func openRollupDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&domain.PlanCostFact{},
		&DailyPlanCost{},
	))
	return conn
}

func insertFact(t *testing.T, conn *gorm.DB, factKey, planKey, planTypeKey int64, dateKey int, deductible, copay float64) {
	t.Helper()
	require.NoError(t, conn.Create(&domain.PlanCostFact{
		FactKey:     factKey,
		PlanKey:     planKey,
		OrgKey:      1,
		PlanTypeKey: planTypeKey,
		DateKey:     dateKey,
		Deductible:  deductible,
		Copay:       copay,
		TotalCost:   deductible + copay,
		LoadedAt:    time.Now().UTC(),
	}).Error)
}

func TestRebuildAggregatesTouchedDates(t *testing.T) {
	conn := openRollupDB(t)
	ctx := context.Background()

	insertFact(t, conn, 100, 1, 3, 20240115, 2000, 23)
	insertFact(t, conn, 101, 2, 3, 20240115, 1000, 7)
	insertFact(t, conn, 102, 3, 3, 20240302, 500, 0)

	require.NoError(t, New(zap.NewNop()).Rebuild(ctx, conn, []int{20240115}))

	var rows []DailyPlanCost
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, 20240115, row.DateKey)
	assert.EqualValues(t, 3, row.PlanTypeKey)
	assert.Equal(t, 3000.0, row.TotalDeductible)
	assert.Equal(t, 30.0, row.TotalCopay)
	assert.Equal(t, 3030.0, row.TotalCost)
	assert.Equal(t, 2, row.PlanCount)
}

func TestRebuildUpsertsChangedSlices(t *testing.T) {
	conn := openRollupDB(t)
	ctx := context.Background()
	rebuilder := New(zap.NewNop())

	insertFact(t, conn, 100, 1, 3, 20240115, 2000, 23)
	require.NoError(t, rebuilder.Rebuild(ctx, conn, []int{20240115}))

	insertFact(t, conn, 101, 2, 3, 20240115, 1000, 7)
	require.NoError(t, rebuilder.Rebuild(ctx, conn, []int{20240115}))

	var rows []DailyPlanCost
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, 3030.0, rows[0].TotalCost)
	assert.Equal(t, 2, rows[0].PlanCount)
}

func TestRebuildNoDates(t *testing.T) {
	conn := openRollupDB(t)
	require.NoError(t, New(zap.NewNop()).Rebuild(context.Background(), conn, nil))
}
