package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/carebase/planmart/internal/audit"
	"github.com/carebase/planmart/internal/clock"
	"github.com/carebase/planmart/internal/config"
	"github.com/carebase/planmart/internal/etl"
	etldomain "github.com/carebase/planmart/internal/etl/domain"
	"github.com/carebase/planmart/internal/migration"
	"github.com/carebase/planmart/internal/observability"
	"github.com/carebase/planmart/internal/pushmetrics"
	"github.com/carebase/planmart/internal/runlock"
	"github.com/carebase/planmart/internal/source"
	"github.com/carebase/planmart/internal/warehouse"
	"github.com/carebase/planmart/pkg/db"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		log    *zap.Logger
		runner etldomain.Runner
		pusher pushmetrics.Pusher
	)

	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		source.Module,
		warehouse.Module,
		audit.Module,
		etl.Module,
		runlock.Module,

		// No server, watcher or cron here. The loader performs exactly one
		// run and exits, so metrics are pushed rather than scraped.
		fx.Provide(pushmetrics.NewPusher),
		fx.Populate(&log, &runner, &pusher),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer func() {
		stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelStop()
		_ = app.Stop(stopCtx)
	}()

	report, err := runner.Run(context.Background(), etldomain.TriggerManual)

	if pusher != nil {
		pushCtx, cancelPush := context.WithTimeout(context.Background(), 10*time.Second)
		if pushErr := pusher.Push(pushCtx, prometheus.DefaultGatherer); pushErr != nil {
			log.Warn("loader.push_failed", zap.Error(pushErr))
		}
		cancelPush()
	}

	if err != nil {
		log.Error("loader.run_failed", zap.String("trigger", etldomain.TriggerManual), zap.Error(err))
		return 1
	}

	log.Info("loader.run_completed",
		zap.String("run_id", report.RunID),
		zap.String("status", report.Status),
		zap.Int("documents_processed", report.Processed),
		zap.Int("documents_loaded", report.Loaded),
		zap.Int("documents_failed", report.Failed),
		zap.Duration("duration", report.Duration),
	)
	if report.Completed() {
		return 0
	}
	return 1
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
