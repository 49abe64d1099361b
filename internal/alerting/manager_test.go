package alerting

import (
	"sync"
	"testing"
	"time"

	"github.com/wemix/nhm/internal/metrics"
)

type fakeProvider struct {
	mu   sync.Mutex
	snap metrics.NodeSnapshot
}

func (f *fakeProvider) GetSnapshot() metrics.NodeSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeProvider) set(snap metrics.NodeSnapshot) {
	f.mu.Lock()
	f.snap = snap
	f.mu.Unlock()
}

type recordingChannel struct {
	mu     sync.Mutex
	alerts []metrics.Alert
}

func (r *recordingChannel) Name() string { return "recording" }
func (r *recordingChannel) Send(alert metrics.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
	return nil
}
func (r *recordingChannel) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

func TestNearThresholdRuleFiresAtThreshold(t *testing.T) {
	rule := nearThresholdRule{}
	fire, alert := rule.Evaluate(metrics.NodeSnapshot{CurrentFailedApps: 2, MaxFailedApps: 2})
	if !fire {
		t.Fatal("expected near_threshold to fire when current == max")
	}
	if alert.Level != metrics.AlertLevelCritical {
		t.Errorf("Level = %v, want critical", alert.Level)
	}
}

func TestNearThresholdRuleDisabledWhenMaxIsZero(t *testing.T) {
	rule := nearThresholdRule{}
	fire, _ := rule.Evaluate(metrics.NodeSnapshot{CurrentFailedApps: 5, MaxFailedApps: 0})
	if fire {
		t.Error("near_threshold must not fire when max_failed_apps disables the check")
	}
}

func TestProberFailureRuleFiresOnlyAfterARun(t *testing.T) {
	rule := proberFailureRule{}
	if fire, _ := rule.Evaluate(metrics.NodeSnapshot{ProberRuns: 0}); fire {
		t.Error("must not fire before any prober run has completed")
	}
	if fire, _ := rule.Evaluate(metrics.NodeSnapshot{ProberRuns: 1, ProberLastResult: true}); fire {
		t.Error("must not fire when the last run passed")
	}
	if fire, _ := rule.Evaluate(metrics.NodeSnapshot{ProberRuns: 1, ProberLastResult: false}); !fire {
		t.Error("must fire when the last run failed")
	}
}

func TestManagerFiresOnceOnRisingEdge(t *testing.T) {
	provider := &fakeProvider{snap: metrics.NodeSnapshot{MaxFailedApps: 2, CurrentFailedApps: 0}}
	ch := &recordingChannel{}
	m := NewManager(provider, []Rule{nearThresholdRule{}}, []NotificationChannel{ch}, 0, nil)

	m.Evaluate()
	if ch.count() != 0 {
		t.Fatalf("count = %d, want 0 before threshold reached", ch.count())
	}

	provider.set(metrics.NodeSnapshot{MaxFailedApps: 2, CurrentFailedApps: 2})
	m.Evaluate()
	m.Evaluate()
	if ch.count() != 1 {
		t.Fatalf("count = %d, want exactly 1 (edge-triggered, not renotified on steady state)", ch.count())
	}

	provider.set(metrics.NodeSnapshot{MaxFailedApps: 2, CurrentFailedApps: 0})
	m.Evaluate()
	provider.set(metrics.NodeSnapshot{MaxFailedApps: 2, CurrentFailedApps: 2})
	m.Evaluate()
	if ch.count() != 2 {
		t.Fatalf("count = %d, want 2 after recovery and re-trip", ch.count())
	}
}

func TestManagerStartStopIsIdempotent(t *testing.T) {
	provider := &fakeProvider{}
	m := NewManager(provider, DefaultRules(), nil, 10*time.Millisecond, nil)
	m.Start()
	m.Start()
	time.Sleep(30 * time.Millisecond)
	m.Stop()
	m.Stop()
}

func TestZeroIntervalDisablesStart(t *testing.T) {
	provider := &fakeProvider{}
	m := NewManager(provider, DefaultRules(), nil, 0, nil)
	m.Start()
	m.mu.Lock()
	running := m.cancel != nil
	m.mu.Unlock()
	if running {
		t.Error("Start() with a zero interval must be a no-op")
	}
}
