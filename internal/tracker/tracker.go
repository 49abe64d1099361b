// Package tracker implements NHM's failure tracker: the
// current-life-cycle failed-app set, the bounded life-cycle history, and
// the register/read-statistics operations built on top of them.
package tracker

import (
	"context"
	"sync"

	"github.com/wemix/nhm/internal/types"
	"github.com/wemix/nhm/pkg/logger"
)

// NSMForwarder is the subset of internal/nsm.Client the tracker needs to
// forward app health to.
type NSMForwarder interface {
	SetAppHealthStatus(ctx context.Context, appName string, running bool)
}

// ThresholdChecker is the subset of internal/restart.Policy the tracker
// invokes after a new failure is recorded.
type ThresholdChecker interface {
	CheckThreshold(ctx context.Context, currentFailedCount int)
}

// HistoryWriter is the subset of internal/persistence.Gateway the tracker
// uses to persist node_info after every newly-recorded failure.
type HistoryWriter interface {
	WriteHistory(version uint32, info types.NodeInfo, maxLCCount uint32) error
}

// StatusSignal is invoked for every RegisterAppStatus call, unconditionally,
// before any state mutation.
type StatusSignal func(name string, status types.AppStatus)

// Tracker owns node_info and current_set exactly as
// describes. All state mutation happens under one mutex, matching the
// single-threaded cooperative core described in — callers
// never need their own locking.
type Tracker struct {
	mu         sync.Mutex
	nodeInfo   types.NodeInfo
	currentSet map[string]struct{}

	historicLCCount uint32
	historyVersion  uint32

	nsm       NSMForwarder
	threshold ThresholdChecker
	history   HistoryWriter
	onSignal  StatusSignal
	log       *logger.Logger
}

// New builds a Tracker seeded with nodeInfo (index 0 is the current life
// cycle, typically freshly pushed by the lifecycle participant on
// bus_acquired) and an empty current_set.
func New(nodeInfo types.NodeInfo, historicLCCount, historyVersion uint32, nsm NSMForwarder, threshold ThresholdChecker, history HistoryWriter, onSignal StatusSignal, log *logger.Logger) *Tracker {
	return &Tracker{
		nodeInfo:        nodeInfo,
		currentSet:      make(map[string]struct{}),
		historicLCCount: historicLCCount,
		historyVersion:  historyVersion,
		nsm:             nsm,
		threshold:       threshold,
		history:         history,
		onSignal:        onSignal,
		log:             log,
	}
}

// RegisterAppStatus implementsthe five-step algorithm.
func (t *Tracker) RegisterAppStatus(ctx context.Context, name string, status types.AppStatus) {
	// Step 1: forward to NSM. Failure is the forwarder's concern to log;
	// it never aborts this call.
	if t.nsm != nil {
		t.nsm.SetAppHealthStatus(ctx, name, status == types.AppStatusOk)
	}

	// Step 2: emit the signal unconditionally, before any mutation.
	if t.onSignal != nil {
		t.onSignal(name, status)
	}

	t.mu.Lock()
	_, tracked := t.currentSet[name]

	switch {
	case !tracked && status == types.AppStatusFailed:
		// Step 3.
		t.currentSet[name] = struct{}{}
		if len(t.nodeInfo) == 0 {
			t.nodeInfo = append(t.nodeInfo, types.LcInfo{})
		}
		app := t.nodeInfo[0].FindFailedApp(name)
		if app == nil {
			t.nodeInfo[0].FailedApps = append(t.nodeInfo[0].FailedApps, types.FailedApp{Name: name})
			app = &t.nodeInfo[0].FailedApps[len(t.nodeInfo[0].FailedApps)-1]
		}
		app.FailCount++
		currentFailedCount := len(t.currentSet)
		nodeInfoSnapshot := append(types.NodeInfo(nil), t.nodeInfo...)
		t.mu.Unlock()

		if t.history != nil {
			if err := t.history.WriteHistory(t.historyVersion, nodeInfoSnapshot, t.historicLCCount+1); err != nil && t.log != nil {
				t.log.Warn("tracker: history persist failed", "error", err.Error())
			}
		}
		if t.threshold != nil {
			t.threshold.CheckThreshold(ctx, currentFailedCount)
		}
		return

	case tracked && status != types.AppStatusFailed:
		// Step 4: no history mutation.
		delete(t.currentSet, name)
		t.mu.Unlock()
		return

	default:
		// Step 5: no-op beyond the signal already emitted.
		t.mu.Unlock()
		return
	}
}

// ReadStatistics implementsthe read_statistics. An empty
// appName requests node-wide statistics.
//
// total_lifecycles is the number of life cycles the inspection loop
// iterated, not the configured historic_lc_count — it may exceed
// historic_lc_count by one. This mirrors an intentional quirk in the
// original daemon's loop bounds and is preserved rather than "fixed".
func (t *Tracker) ReadStatistics(appName string) (currentFailCount, totalFailures, totalLifecycles uint32, status types.AppErrorStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	lastIdx := t.inspectBound()

	if appName == "" {
		currentFailCount = uint32(len(t.currentSet))
		for i := 0; i <= lastIdx; i++ {
			if t.nodeInfo[i].StartState != types.NodeShutdownShutdown {
				totalFailures++
			}
		}
		return currentFailCount, totalFailures, uint32(lastIdx + 1), types.AppErrorOk
	}

	if len(t.nodeInfo) > 0 {
		if app := t.nodeInfo[0].FindFailedApp(appName); app != nil {
			currentFailCount = app.FailCount
		}
	}
	for i := 0; i <= lastIdx; i++ {
		if app := t.nodeInfo[i].FindFailedApp(appName); app != nil {
			totalFailures += app.FailCount
		}
	}
	return currentFailCount, totalFailures, uint32(lastIdx + 1), types.AppErrorOk
}

// inspectBound returns the last index the statistics loop inspects:
// min(len(node_info)-1, historic_lc_count), or -1 for an empty
// node_info. Callers must hold t.mu.
func (t *Tracker) inspectBound() int {
	if len(t.nodeInfo) == 0 {
		return -1
	}
	bound := len(t.nodeInfo) - 1
	if uint32(bound) > t.historicLCCount {
		bound = int(t.historicLCCount)
	}
	return bound
}

// CurrentSetSize returns |current_set|, for diagnostics and tests.
func (t *Tracker) CurrentSetSize() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.currentSet)
}

// NodeInfo returns a snapshot copy of node_info, for diagnostics and
// persistence call sites outside normal RegisterAppStatus flow (e.g. the
// lifecycle participant's initial push).
func (t *Tracker) NodeInfo() types.NodeInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append(types.NodeInfo(nil), t.nodeInfo...)
}
