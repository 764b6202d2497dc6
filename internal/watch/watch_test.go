package watch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/carebase/planmart/internal/config"
)

type fakeListener struct {
	mu         sync.Mutex
	notify     chan *pq.Notification
	listenErrs []error
	listens    int
	closed     bool
}

func newFakeListener(listenErrs ...error) *fakeListener {
	return &fakeListener{
		notify:     make(chan *pq.Notification, 16),
		listenErrs: listenErrs,
	}
}

func (f *fakeListener) Listen(string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listens++
	if len(f.listenErrs) > 0 {
		err := f.listenErrs[0]
		f.listenErrs = f.listenErrs[1:]
		return err
	}
	return nil
}

func (f *fakeListener) NotificationChannel() <-chan *pq.Notification {
	return f.notify
}

func (f *fakeListener) Ping() error { return nil }

func (f *fakeListener) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeListener) listenCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listens
}

type countingNotifier struct {
	calls     atomic.Int64
	panicNext atomic.Bool
}

func (n *countingNotifier) Notify() {
	if n.panicNext.CompareAndSwap(true, false) {
		panic("handler exploded")
	}
	n.calls.Add(1)
}

func newTestWatcher(t *testing.T, notifier Notifier, l listener) *Watcher {
	t.Helper()

	w, err := New(Params{
		Log:      zap.NewNop(),
		Config:   config.Config{ListenChannel: "plan_changes"},
		Notifier: notifier,
	})
	require.NoError(t, err)
	w.retryDelay = time.Millisecond
	w.newListener = func() listener { return l }
	return w
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestWatcherForwardsNotifications(t *testing.T) {
	notifier := &countingNotifier{}
	l := newFakeListener()
	w := newTestWatcher(t, notifier, l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	l.notify <- &pq.Notification{Channel: "plan_changes", Extra: `{"op":"UPDATE","object_id":"p1"}`}
	l.notify <- &pq.Notification{Channel: "plan_changes", Extra: `{"op":"DELETE","object_id":"p2"}`}

	assert.Eventually(t, func() bool { return notifier.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestWatcherResyncsOnReconnectMarker(t *testing.T) {
	notifier := &countingNotifier{}
	l := newFakeListener()
	w := newTestWatcher(t, notifier, l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	l.notify <- nil

	assert.Eventually(t, func() bool { return notifier.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestWatcherSurvivesPanickingHandler(t *testing.T) {
	notifier := &countingNotifier{}
	notifier.panicNext.Store(true)
	l := newFakeListener()
	w := newTestWatcher(t, notifier, l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	l.notify <- &pq.Notification{Channel: "plan_changes"}
	l.notify <- &pq.Notification{Channel: "plan_changes"}

	assert.Eventually(t, func() bool { return notifier.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestWatcherRetriesFailedListen(t *testing.T) {
	notifier := &countingNotifier{}
	l := newFakeListener(assert.AnError)
	w := newTestWatcher(t, notifier, l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	assert.Eventually(t, func() bool { return l.listenCalls() == 2 }, time.Second, 5*time.Millisecond)

	l.notify <- &pq.Notification{Channel: "plan_changes"}
	assert.Eventually(t, func() bool { return notifier.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestWatcherClosesListenerOnCancel(t *testing.T) {
	notifier := &countingNotifier{}
	l := newFakeListener()
	w := newTestWatcher(t, notifier, l)

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	cancel()

	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("watch loop did not exit")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.True(t, l.closed)
}
