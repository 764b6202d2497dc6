package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/carebase/planmart/internal/audit"
	"github.com/carebase/planmart/internal/clock"
	"github.com/carebase/planmart/internal/config"
	"github.com/carebase/planmart/internal/coordinator"
	"github.com/carebase/planmart/internal/etl"
	"github.com/carebase/planmart/internal/migration"
	"github.com/carebase/planmart/internal/observability"
	"github.com/carebase/planmart/internal/pushmetrics"
	"github.com/carebase/planmart/internal/runlock"
	"github.com/carebase/planmart/internal/schedule"
	"github.com/carebase/planmart/internal/server"
	"github.com/carebase/planmart/internal/source"
	"github.com/carebase/planmart/internal/warehouse"
	"github.com/carebase/planmart/internal/watch"
	"github.com/carebase/planmart/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Warehouse pipeline
		source.Module,
		warehouse.Module,
		audit.Module,
		etl.Module,
		runlock.Module,

		// Run triggers
		coordinator.Module,
		watch.Module,
		schedule.Module,

		// Operational surface
		server.Module,
		pushmetrics.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
