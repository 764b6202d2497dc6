package schedule

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/carebase/planmart/internal/config"
	etldomain "github.com/carebase/planmart/internal/etl/domain"
)

const defaultSpec = "0 2 * * *"

var ErrInvalidConfig = errors.New("schedule requires logger and trigger")

// Trigger is the coordinator surface the schedule drives.
type Trigger interface {
	TriggerNow(trigger string)
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Config  config.Config
	Trigger Trigger
}

// Scheduler fires a periodic full reload through the coordinator. The
// coordinator's single-flight makes an overlapping tick harmless, the cron
// chain skips it anyway rather than queueing.
type Scheduler struct {
	log     *zap.Logger
	cron    *cron.Cron
	spec    string
	trigger Trigger
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Trigger == nil {
		return nil, ErrInvalidConfig
	}

	log := p.Log.Named("schedule")
	spec := strings.TrimSpace(p.Config.CronSpec)
	if spec == "" {
		spec = defaultSpec
	}

	s := &Scheduler{
		log:     log,
		spec:    spec,
		trigger: p.Trigger,
	}

	clog := cronLogger{log: log.Sugar()}
	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(clog),
		cron.Recover(clog),
	))
	if _, err := s.cron.AddFunc(spec, s.fire); err != nil {
		return nil, fmt.Errorf("cron spec %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) fire() {
	s.log.Info("schedule.fired", zap.String("spec", s.spec))
	s.trigger.TriggerNow(etldomain.TriggerCron)
}

// Start begins ticking.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for an in-flight tick to return.
func (s *Scheduler) Stop() <-chan struct{} {
	return s.cron.Stop().Done()
}

type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Infow(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
