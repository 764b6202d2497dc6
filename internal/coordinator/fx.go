package coordinator

import (
	"context"

	"go.uber.org/fx"

	etldomain "github.com/carebase/planmart/internal/etl/domain"
)

var Module = fx.Module("coordinator",
	fx.Provide(New),
	fx.Invoke(StartCoordinator),
)

// StartCoordinator hosts the run loop for the process lifetime and requests
// the initial warehouse load once the loop is up.
func StartCoordinator(lc fx.Lifecycle, c *Coordinator) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			loopCtx, cancel := context.WithCancel(context.Background())
			c.Start(loopCtx)
			c.TriggerNow(etldomain.TriggerStartup)

			lc.Append(fx.Hook{
				OnStop: func(stopCtx context.Context) error {
					cancel()
					select {
					case <-c.Done():
					case <-stopCtx.Done():
					}
					return nil
				},
			})
			return nil
		},
	})
}
