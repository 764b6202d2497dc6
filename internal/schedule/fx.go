package schedule

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/carebase/planmart/internal/config"
	"github.com/carebase/planmart/internal/coordinator"
)

var Module = fx.Module("schedule",
	fx.Provide(func(c *coordinator.Coordinator) Trigger { return c }),
	fx.Provide(New),
	fx.Invoke(StartSchedule),
)

// StartSchedule hosts the cron loop when the schedule is enabled.
func StartSchedule(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, s *Scheduler) {
	if !cfg.CronEnabled {
		log.Named("schedule").Info("schedule.disabled")
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			select {
			case <-s.Stop():
			case <-ctx.Done():
			}
			return nil
		},
	})
}
