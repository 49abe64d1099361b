// Package facade implements NHM's service façade: the
// three public operations and the AppHealthStatus broadcast, wiring the
// failure tracker and restart policy behind one owning value rather
// than package-level singletons.
package facade

import (
	"context"
	"sync"

	"github.com/wemix/nhm/internal/tracker"
	"github.com/wemix/nhm/internal/types"
	"github.com/wemix/nhm/pkg/logger"
)

// Tracker is the subset of internal/tracker.Tracker the façade delegates to.
type Tracker interface {
	RegisterAppStatus(ctx context.Context, name string, status types.AppStatus)
	ReadStatistics(appName string) (currentFailCount, totalFailures, totalLifecycles uint32, status types.AppErrorStatus)
}

// RestartRequester is the subset of internal/restart.Policy the façade
// delegates RequestNodeRestart to.
type RestartRequester interface {
	RequestNodeRestart(ctx context.Context, appName string) types.AppErrorStatus
}

// Subscriber receives every AppHealthStatus broadcast.
type Subscriber func(name string, status types.AppStatus)

// Facade is the top-level owning value: it is constructed before its
// Tracker (Tracker needs the façade's Signal() as its onSignal callback),
// then Attach binds the two together. Every exported method is safe for
// concurrent use.
type Facade struct {
	log *logger.Logger

	mu          sync.Mutex
	subscribers []Subscriber
	tracker     Tracker
	policy      RestartRequester
}

// New builds an unattached Facade. Call Signal() to obtain the callback
// to pass into tracker.New, then Attach the resulting Tracker and Policy.
func New(log *logger.Logger) *Facade {
	return &Facade{log: log}
}

// Signal returns the callback to thread into tracker.New as its
// StatusSignal — every RegisterAppStatus call broadcasts through here
// unconditionally.
func (f *Facade) Signal() tracker.StatusSignal {
	return f.broadcast
}

// Attach binds the façade to its tracker and restart policy. Must be
// called exactly once, after both have been constructed.
func (f *Facade) Attach(t Tracker, p RestartRequester) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracker = t
	f.policy = p
}

// Subscribe registers fn to receive every future AppHealthStatus
// broadcast. The returned func unsubscribes.
func (f *Facade) Subscribe(fn Subscriber) (unsubscribe func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribers = append(f.subscribers, fn)
	idx := len(f.subscribers) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if idx < len(f.subscribers) {
			f.subscribers[idx] = nil
		}
	}
}

func (f *Facade) broadcast(name string, status types.AppStatus) {
	f.mu.Lock()
	subs := append([]Subscriber(nil), f.subscribers...)
	f.mu.Unlock()
	for _, sub := range subs {
		if sub != nil {
			sub(name, status)
		}
	}
}

// RegisterAppStatus delegates to the failure tracker.
func (f *Facade) RegisterAppStatus(ctx context.Context, name string, status types.AppStatus) {
	f.mu.Lock()
	t := f.tracker
	f.mu.Unlock()
	if t == nil {
		return
	}
	t.RegisterAppStatus(ctx, name, status)
}

// ReadStatistics delegates to the failure tracker.
func (f *Facade) ReadStatistics(appName string) (currentFailCount, totalFailures, totalLifecycles uint32, status types.AppErrorStatus) {
	f.mu.Lock()
	t := f.tracker
	f.mu.Unlock()
	if t == nil {
		return 0, 0, 0, types.AppErrorError
	}
	return t.ReadStatistics(appName)
}

// RequestNodeRestart delegates to the restart policy.
func (f *Facade) RequestNodeRestart(ctx context.Context, appName string) types.AppErrorStatus {
	f.mu.Lock()
	p := f.policy
	f.mu.Unlock()
	if p == nil {
		return types.AppErrorError
	}
	return p.RequestNodeRestart(ctx, appName)
}
