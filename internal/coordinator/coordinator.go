package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/carebase/planmart/internal/clock"
	"github.com/carebase/planmart/internal/config"
	etldomain "github.com/carebase/planmart/internal/etl/domain"
	"github.com/carebase/planmart/internal/observability/metrics"
)

const (
	StateIdle    = "idle"
	StateRunning = "running"
)

var ErrInvalidConfig = errors.New("coordinator requires logger, clock and runner")

type Params struct {
	fx.In

	Log    *zap.Logger
	Clock  clock.Clock
	Config config.Config
	Runner etldomain.Runner
}

// Coordinator serializes pipeline runs. A request while idle starts a run
// immediately; requests while a run is in flight only bump the pending
// counter, and when the run finishes a nonzero counter collapses into exactly
// one follow-up run after the debounce delay. Total runs are bounded by
// idle-triggered starts plus follow-ups, never by raw notification volume.
type Coordinator struct {
	log      *zap.Logger
	clock    clock.Clock
	runner   etldomain.Runner
	debounce time.Duration

	// wake carries the trigger source of the request that found the
	// coordinator idle. Capacity one: a queued wake absorbs later requests.
	wake chan string
	done chan struct{}

	mu      sync.Mutex
	state   string
	pending int
	last    etldomain.RunReport
	hasLast bool
}

func New(p Params) (*Coordinator, error) {
	if p.Log == nil || p.Clock == nil || p.Runner == nil {
		return nil, ErrInvalidConfig
	}
	debounce := p.Config.DebounceInterval
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Coordinator{
		log:      p.Log.Named("coordinator"),
		clock:    p.Clock,
		runner:   p.Runner,
		debounce: debounce,
		wake:     make(chan string, 1),
		done:     make(chan struct{}),
		state:    StateIdle,
	}, nil
}

// Notify records one change notification from the source store.
func (c *Coordinator) Notify() {
	metrics.Etl().IncNotification()
	c.request(etldomain.TriggerNotification)
}

// TriggerNow requests a run on behalf of a named trigger (cron, manual,
// startup). It shares the notification path, so bursts from any mix of
// sources still collapse.
func (c *Coordinator) TriggerNow(trigger string) {
	c.request(trigger)
}

func (c *Coordinator) request(trigger string) {
	c.mu.Lock()
	if c.state == StateRunning {
		c.pending++
		pending := c.pending
		c.mu.Unlock()
		metrics.Etl().IncCoalesced()
		metrics.Etl().SetPendingFollowups(pending)
		c.log.Debug("coordinator.notification_coalesced",
			zap.String("trigger", trigger),
			zap.Int("pending", pending),
		)
		return
	}
	c.mu.Unlock()

	select {
	case c.wake <- trigger:
	default:
		// A wake is already queued; this request rides along with it.
		metrics.Etl().IncCoalesced()
	}
}

// State reports idle or running.
func (c *Coordinator) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending reports notifications waiting to collapse into the next follow-up.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// LastReport returns the most recent completed run report, if any.
func (c *Coordinator) LastReport() (etldomain.RunReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.hasLast
}

// Start launches the run loop. The loop exits when ctx is cancelled; Done is
// closed once the loop has fully drained.
func (c *Coordinator) Start(ctx context.Context) {
	go c.loop(ctx)
}

// Done is closed when the run loop has exited.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

func (c *Coordinator) loop(ctx context.Context) {
	defer close(c.done)

	for {
		var trigger string
		select {
		case <-ctx.Done():
			return
		case trigger = <-c.wake:
		}

		for {
			c.runOnce(ctx, trigger)

			c.mu.Lock()
			followUp := c.pending > 0
			c.pending = 0
			c.mu.Unlock()
			metrics.Etl().SetPendingFollowups(0)
			if !followUp {
				break
			}

			metrics.Etl().IncDebouncedFollowup()
			c.log.Info("coordinator.followup_scheduled",
				zap.Duration("debounce", c.debounce),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.debounce):
			}
			trigger = etldomain.TriggerDebounce
		}
	}
}

func (c *Coordinator) runOnce(ctx context.Context, trigger string) {
	c.mu.Lock()
	c.state = StateRunning
	c.mu.Unlock()
	metrics.Etl().SetCoordinatorRunning(true)

	started := c.clock.Now()
	report, err := c.runner.Run(ctx, trigger)

	c.mu.Lock()
	c.state = StateIdle
	if err == nil || !errors.Is(err, etldomain.ErrRunInProgress) {
		c.last = report
		c.hasLast = true
	}
	c.mu.Unlock()
	metrics.Etl().SetCoordinatorRunning(false)

	switch {
	case err == nil:
	case errors.Is(err, etldomain.ErrRunInProgress):
		c.log.Info("coordinator.run_yielded", zap.String("trigger", trigger))
	default:
		c.log.Warn("coordinator.run_failed",
			zap.String("trigger", trigger),
			zap.Duration("elapsed", c.clock.Now().Sub(started)),
			zap.Error(err),
		)
	}
}
