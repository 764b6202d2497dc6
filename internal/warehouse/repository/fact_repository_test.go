package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/carebase/planmart/internal/warehouse/domain"
)

func openFactDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, conn.AutoMigrate(
		&domain.PlanCostFact{},
		&domain.ServiceCostFact{},
	))
	return conn
}

func TestInsertPlanCostAccumulates(t *testing.T) {
	conn := openFactDB(t)
	repo := ProvideFacts()
	ctx := context.Background()
	loadedAt := time.Date(2024, 2, 1, 2, 0, 0, 0, time.UTC)

	fact := domain.PlanCostFact{
		FactKey:     1001,
		PlanKey:     1,
		OrgKey:      2,
		PlanTypeKey: 3,
		DateKey:     20240115,
		Deductible:  2000,
		Copay:       23,
		TotalCost:   2023,
		LoadID:      "run-1",
		LoadedAt:    loadedAt,
	}
	require.NoError(t, repo.InsertPlanCost(ctx, conn, &fact))

	// Facts accumulate: a second load of the same plan adds a second row.
	fact.FactKey = 1002
	fact.LoadID = "run-2"
	require.NoError(t, repo.InsertPlanCost(ctx, conn, &fact))

	var count int64
	require.NoError(t, conn.Model(&domain.PlanCostFact{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)

	var row domain.PlanCostFact
	require.NoError(t, conn.First(&row, "fact_key = ?", 1001).Error)
	assert.Equal(t, 2023.0, row.TotalCost)
	assert.Equal(t, "run-1", row.LoadID)
}

func TestInsertPlanCostIgnoresNil(t *testing.T) {
	conn := openFactDB(t)
	repo := ProvideFacts()

	require.NoError(t, repo.InsertPlanCost(context.Background(), conn, nil))

	var count int64
	require.NoError(t, conn.Model(&domain.PlanCostFact{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestInsertServiceCosts(t *testing.T) {
	conn := openFactDB(t)
	repo := ProvideFacts()
	loadedAt := time.Date(2024, 2, 1, 2, 0, 0, 0, time.UTC)

	facts := []domain.ServiceCostFact{
		{FactKey: 2001, PlanKey: 1, ServiceKey: 10, OrgKey: 2, DateKey: 20240115, Deductible: 10, Copay: 0, TotalCost: 10, LoadID: "run-1", LoadedAt: loadedAt},
		{FactKey: 2002, PlanKey: 1, ServiceKey: 11, OrgKey: 2, DateKey: 20240115, Deductible: 10, Copay: 175, TotalCost: 185, LoadID: "run-1", LoadedAt: loadedAt},
	}
	require.NoError(t, repo.InsertServiceCosts(context.Background(), conn, facts))

	var count int64
	require.NoError(t, conn.Model(&domain.ServiceCostFact{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestDeleteFactsForPlan(t *testing.T) {
	conn := openFactDB(t)
	repo := ProvideFacts()
	ctx := context.Background()
	loadedAt := time.Date(2024, 2, 1, 2, 0, 0, 0, time.UTC)

	require.NoError(t, repo.InsertPlanCost(ctx, conn, &domain.PlanCostFact{
		FactKey: 1001, PlanKey: 1, OrgKey: 2, PlanTypeKey: 3, DateKey: 20240115,
		Deductible: 2000, Copay: 23, TotalCost: 2023, LoadID: "run-1", LoadedAt: loadedAt,
	}))
	require.NoError(t, repo.InsertPlanCost(ctx, conn, &domain.PlanCostFact{
		FactKey: 1002, PlanKey: 9, OrgKey: 2, PlanTypeKey: 3, DateKey: 20240115,
		Deductible: 100, Copay: 5, TotalCost: 105, LoadID: "run-1", LoadedAt: loadedAt,
	}))
	require.NoError(t, repo.InsertServiceCosts(ctx, conn, []domain.ServiceCostFact{
		{FactKey: 2001, PlanKey: 1, ServiceKey: 10, OrgKey: 2, DateKey: 20240115, LoadID: "run-1", LoadedAt: loadedAt},
		{FactKey: 2002, PlanKey: 1, ServiceKey: 11, OrgKey: 2, DateKey: 20240115, LoadID: "run-1", LoadedAt: loadedAt},
	}))

	deleted, err := repo.DeleteFactsForPlan(ctx, conn, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 3, deleted)

	// The other plan's facts survive.
	var count int64
	require.NoError(t, conn.Model(&domain.PlanCostFact{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
	require.NoError(t, conn.Model(&domain.ServiceCostFact{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}
