package watch

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/carebase/planmart/internal/config"
	"github.com/carebase/planmart/internal/observability/metrics"
	"github.com/carebase/planmart/pkg/db"
)

var ErrInvalidConfig = errors.New("watcher requires logger, config and notifier")

// Notifier is the coordinator surface the watcher drives.
type Notifier interface {
	Notify()
}

// listener is the subset of pq.Listener the watch loop drives.
type listener interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Config   config.Config
	Notifier Notifier
}

// Watcher subscribes to the source store's change channel and forwards every
// notification to the coordinator. Connection loss is handled by the
// listener's own reconnect backoff; a handler error never stops watching.
type Watcher struct {
	log          *zap.Logger
	channel      string
	connInfo     string
	notifier     Notifier
	reconnectMin time.Duration
	reconnectMax time.Duration
	retryDelay   time.Duration
	pingInterval time.Duration
	newListener  func() listener
	done         chan struct{}
}

func New(p Params) (*Watcher, error) {
	if p.Log == nil || p.Notifier == nil {
		return nil, ErrInvalidConfig
	}

	channel := strings.TrimSpace(p.Config.ListenChannel)
	if channel == "" {
		channel = "plan_changes"
	}
	reconnectMin := p.Config.ReconnectMinDelay
	if reconnectMin <= 0 {
		reconnectMin = 5 * time.Second
	}
	reconnectMax := p.Config.ReconnectMaxDelay
	if reconnectMax < reconnectMin {
		reconnectMax = reconnectMin
	}

	w := &Watcher{
		log:          p.Log.Named("watch"),
		channel:      channel,
		connInfo:     db.ConnInfo(db.FromApp(p.Config)),
		notifier:     p.Notifier,
		reconnectMin: reconnectMin,
		reconnectMax: reconnectMax,
		retryDelay:   reconnectMin,
		pingInterval: 90 * time.Second,
		done:         make(chan struct{}),
	}
	w.newListener = w.newPqListener
	return w, nil
}

func (w *Watcher) newPqListener() listener {
	return pq.NewListener(w.connInfo, w.reconnectMin, w.reconnectMax, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			w.log.Info("watch.connected", zap.String("channel", w.channel))
		case pq.ListenerEventReconnected:
			metrics.Etl().IncListenerReconnect()
			w.log.Info("watch.reconnected", zap.String("channel", w.channel))
		case pq.ListenerEventConnectionAttemptFailed:
			metrics.Etl().IncListenerReconnect()
			w.log.Warn("watch.connect_failed", zap.Error(err))
		case pq.ListenerEventDisconnected:
			w.log.Warn("watch.disconnected", zap.Error(err))
		}
	})
}

// Start launches the watch loop. The loop exits when ctx is cancelled; Done
// is closed once the listener is shut down.
func (w *Watcher) Start(ctx context.Context) {
	go w.run(ctx)
}

// Done is closed when the watch loop has exited.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	l := w.newListener()
	defer func() {
		if err := l.Close(); err != nil {
			w.log.Warn("watch.close_failed", zap.Error(err))
		}
	}()

	for {
		if err := l.Listen(w.channel); err != nil {
			metrics.Etl().IncListenerReconnect()
			w.log.Error("watch.listen_failed",
				zap.String("channel", w.channel),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.retryDelay):
			}
			continue
		}
		break
	}

	notifications := l.NotificationChannel()
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-notifications:
			w.dispatch(n)
		case <-time.After(w.pingInterval):
			// Keeps half-dead connections from lingering silently.
			go func() {
				if err := l.Ping(); err != nil {
					w.log.Warn("watch.ping_failed", zap.Error(err))
				}
			}()
		}
	}
}

// dispatch forwards one notification. A nil notification is the listener's
// reconnect marker: changes may have been missed while away, so it counts as
// a change signal too. A panicking handler is contained here so the loop
// keeps watching.
func (w *Watcher) dispatch(n *pq.Notification) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("watch.handler_panic", zap.Any("panic", r))
		}
	}()

	if n == nil {
		w.log.Info("watch.resync_after_reconnect", zap.String("channel", w.channel))
		w.notifier.Notify()
		return
	}

	w.log.Debug("watch.notification",
		zap.String("channel", n.Channel),
		zap.String("payload", n.Extra),
	)
	w.notifier.Notify()
}
