package watch

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/carebase/planmart/internal/config"
	"github.com/carebase/planmart/internal/coordinator"
)

var Module = fx.Module("watch",
	fx.Provide(func(c *coordinator.Coordinator) Notifier { return c }),
	fx.Provide(New),
	fx.Invoke(StartWatcher),
)

// StartWatcher hosts the watch loop. Change notifications only exist on
// postgres, other backends run on the cron schedule alone.
func StartWatcher(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, w *Watcher) {
	if cfg.DBType != "postgres" {
		log.Named("watch").Info("watch.disabled", zap.String("db_type", cfg.DBType))
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			loopCtx, cancel := context.WithCancel(context.Background())
			w.Start(loopCtx)

			lc.Append(fx.Hook{
				OnStop: func(stopCtx context.Context) error {
					cancel()
					select {
					case <-w.Done():
					case <-stopCtx.Done():
					}
					return nil
				},
			})
			return nil
		},
	})
}
