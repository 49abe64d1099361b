package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wemix/nhm/internal/metrics"
	"github.com/wemix/nhm/pkg/logger"
)

// SnapshotProvider is the subset of internal/metrics.Collector the
// evaluator needs.
type SnapshotProvider interface {
	GetSnapshot() metrics.NodeSnapshot
}

// Rule evaluates a NodeSnapshot and reports whether it should fire, with
// the alert to send if so.
type Rule interface {
	Name() string
	Evaluate(snap metrics.NodeSnapshot) (fire bool, alert metrics.Alert)
}

// nearThresholdRule fires once the current failed-app count reaches the
// configured restart threshold (the same point internal/restart.Policy's
// CheckThreshold has already issued its restart request) — this alert is
// the operator-facing echo of that event, not a second trigger.
type nearThresholdRule struct{}

func (nearThresholdRule) Name() string { return "near_threshold" }

func (nearThresholdRule) Evaluate(snap metrics.NodeSnapshot) (bool, metrics.Alert) {
	if snap.MaxFailedApps == 0 || snap.CurrentFailedApps < snap.MaxFailedApps {
		return false, metrics.Alert{}
	}
	return true, metrics.Alert{
		Name:      "near_threshold",
		Level:     metrics.AlertLevelCritical,
		Message:   fmt.Sprintf("current failed apps (%d) reached the restart threshold (%d)", snap.CurrentFailedApps, snap.MaxFailedApps),
		Value:     float64(snap.CurrentFailedApps),
		Threshold: float64(snap.MaxFailedApps),
	}
}

// proberFailureRule fires whenever the most recent user-land probe run
// failed.
type proberFailureRule struct{}

func (proberFailureRule) Name() string { return "prober_failure" }

func (proberFailureRule) Evaluate(snap metrics.NodeSnapshot) (bool, metrics.Alert) {
	if snap.ProberRuns == 0 || snap.ProberLastResult {
		return false, metrics.Alert{}
	}
	return true, metrics.Alert{
		Name:    "prober_failure",
		Level:   metrics.AlertLevelWarning,
		Message: fmt.Sprintf("user-land probe failed at %s", snap.ProberLastRunAt.Format(time.RFC3339)),
		Value:   0,
	}
}

// DefaultRules returns the rules manager.go wires by default.
func DefaultRules() []Rule {
	return []Rule{nearThresholdRule{}, proberFailureRule{}}
}

// Manager periodically evaluates Rules against a SnapshotProvider and
// sends fired alerts to every registered channel, edge-triggered so a
// steady-state failure doesn't renotify on every tick.
type Manager struct {
	log      *logger.Logger
	provider SnapshotProvider
	rules    []Rule
	channels []NotificationChannel
	interval time.Duration

	mu       sync.Mutex
	firing   map[string]bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewManager builds a Manager. A zero interval disables Start (matching
// the prober's own "0 disables" convention).
func NewManager(provider SnapshotProvider, rules []Rule, channels []NotificationChannel, interval time.Duration, log *logger.Logger) *Manager {
	return &Manager{
		log:      log,
		provider: provider,
		rules:    rules,
		channels: channels,
		interval: interval,
		firing:   make(map[string]bool),
	}
}

// Start begins the evaluation ticker. No-op if interval <= 0 or already running.
func (m *Manager) Start() {
	if m.interval <= 0 {
		return
	}
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop(ctx)
}

// Stop halts the ticker and waits for the loop to exit. Idempotent.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()
}

func (m *Manager) loop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.evaluateOnce()
		}
	}
}

// evaluateOnce runs every rule once, firing on the rising edge and
// clearing on recovery. Exported via Evaluate for tests that don't want
// to wait on the ticker.
func (m *Manager) evaluateOnce() {
	snap := m.provider.GetSnapshot()
	for _, rule := range m.rules {
		fire, alert := rule.Evaluate(snap)
		m.mu.Lock()
		wasFiring := m.firing[rule.Name()]
		m.firing[rule.Name()] = fire
		m.mu.Unlock()

		if fire && !wasFiring {
			alert.FiredAt = time.Now()
			m.dispatch(alert)
		}
	}
}

// Evaluate runs one evaluation pass synchronously, for tests that don't
// want to wait on the ticker.
func (m *Manager) Evaluate() {
	m.evaluateOnce()
}

func (m *Manager) dispatch(alert metrics.Alert) {
	for _, ch := range m.channels {
		if err := ch.Send(alert); err != nil && m.log != nil {
			m.log.Warn("alerting: channel send failed", "channel", ch.Name(), "error", err.Error())
		}
	}
}
