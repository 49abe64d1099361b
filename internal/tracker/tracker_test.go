package tracker

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wemix/nhm/internal/types"
	"github.com/wemix/nhm/pkg/logger"
)

type recordingNSM struct {
	mu    sync.Mutex
	calls []struct {
		name    string
		running bool
	}
}

func (r *recordingNSM) SetAppHealthStatus(ctx context.Context, appName string, running bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, struct {
		name    string
		running bool
	}{appName, running})
}

type recordingThreshold struct {
	mu    sync.Mutex
	calls []int
}

func (r *recordingThreshold) CheckThreshold(ctx context.Context, currentFailedCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, currentFailedCount)
}

type recordingHistory struct {
	mu    sync.Mutex
	calls int
	last  types.NodeInfo
}

func (r *recordingHistory) WriteHistory(version uint32, info types.NodeInfo, maxLCCount uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.last = info
	return nil
}

func newTestTracker(nodeInfo types.NodeInfo, historicLCCount uint32, nsm NSMForwarder, threshold ThresholdChecker, history HistoryWriter) (*Tracker, *[]string, *[]types.AppStatus) {
	var names []string
	var statuses []types.AppStatus
	tr := New(nodeInfo, historicLCCount, 1, nsm, threshold, history, func(name string, status types.AppStatus) {
		names = append(names, name)
		statuses = append(statuses, status)
	}, logger.NewTestLogger())
	return tr, &names, &statuses
}

// TestThresholdTripScenario is end-to-end scenario 1:
// max_failed_apps = 2. RegisterAppStatus("A", Failed) triggers no restart;
// RegisterAppStatus("B", Failed) triggers exactly one threshold check at
// the point |current_set| == 2.
func TestThresholdTripScenario(t *testing.T) {
	nsm := &recordingNSM{}
	threshold := &recordingThreshold{}
	history := &recordingHistory{}
	tr, _, _ := newTestTracker(types.NodeInfo{{}}, 5, nsm, threshold, history)

	tr.RegisterAppStatus(context.Background(), "A", types.AppStatusFailed)
	require.Len(t, threshold.calls, 1)
	assert.Equal(t, 1, threshold.calls[0])

	tr.RegisterAppStatus(context.Background(), "B", types.AppStatusFailed)
	require.Len(t, threshold.calls, 2)
	assert.Equal(t, 2, threshold.calls[1])
}

func TestRegisterAppStatusSignalEmittedUnconditionally(t *testing.T) {
	tr, names, statuses := newTestTracker(types.NodeInfo{{}}, 5, nil, nil, nil)

	tr.RegisterAppStatus(context.Background(), "A", types.AppStatusOk)
	tr.RegisterAppStatus(context.Background(), "A", types.AppStatusFailed)
	tr.RegisterAppStatus(context.Background(), "A", types.AppStatusRestarting)

	assert.Equal(t, []string{"A", "A", "A"}, *names)
	assert.Equal(t, []types.AppStatus{types.AppStatusOk, types.AppStatusFailed, types.AppStatusRestarting}, *statuses)
}

func TestRegisterAppStatusForwardsRunningToNSM(t *testing.T) {
	nsm := &recordingNSM{}
	tr, _, _ := newTestTracker(types.NodeInfo{{}}, 5, nsm, nil, nil)

	tr.RegisterAppStatus(context.Background(), "A", types.AppStatusOk)
	tr.RegisterAppStatus(context.Background(), "A", types.AppStatusFailed)

	require.Len(t, nsm.calls, 2)
	assert.True(t, nsm.calls[0].running)
	assert.False(t, nsm.calls[1].running)
}

func TestRegisterAppStatusInvariant1FailcountAtLeastOneWhileTracked(t *testing.T) {
	history := &recordingHistory{}
	tr, _, _ := newTestTracker(types.NodeInfo{{}}, 5, nil, nil, history)

	tr.RegisterAppStatus(context.Background(), "A", types.AppStatusFailed)

	info := tr.NodeInfo()
	app := info[0].FindFailedApp("A")
	require.NotNil(t, app)
	assert.GreaterOrEqual(t, app.FailCount, uint32(1))
	assert.Equal(t, 1, tr.CurrentSetSize())
}

func TestRegisterAppStatusFailedTwiceDoesNotDoubleCount(t *testing.T) {
	history := &recordingHistory{}
	tr, _, _ := newTestTracker(types.NodeInfo{{}}, 5, nil, nil, history)

	tr.RegisterAppStatus(context.Background(), "A", types.AppStatusFailed)
	tr.RegisterAppStatus(context.Background(), "A", types.AppStatusFailed) // already tracked: step 5 no-op

	info := tr.NodeInfo()
	assert.Equal(t, uint32(1), info[0].FindFailedApp("A").FailCount)
	assert.Equal(t, 1, history.calls, "only the first transition persists history")
}

func TestRegisterAppStatusRecoveryRemovesFromCurrentSetWithoutHistoryMutation(t *testing.T) {
	history := &recordingHistory{}
	tr, _, _ := newTestTracker(types.NodeInfo{{}}, 5, nil, nil, history)

	tr.RegisterAppStatus(context.Background(), "A", types.AppStatusFailed)
	require.Equal(t, 1, tr.CurrentSetSize())

	tr.RegisterAppStatus(context.Background(), "A", types.AppStatusOk)
	assert.Equal(t, 0, tr.CurrentSetSize())

	info := tr.NodeInfo()
	assert.Equal(t, uint32(1), info[0].FindFailedApp("A").FailCount, "failcount unchanged on recovery")
	assert.Equal(t, 1, history.calls, "recovery does not persist history")
}

func scenarioHistory() types.NodeInfo {
	return types.NodeInfo{
		{StartState: types.NodeShutdownStarted, FailedApps: []types.FailedApp{
			{Name: "A", FailCount: 3}, {Name: "B", FailCount: 4}, {Name: "C", FailCount: 5},
		}},
		{StartState: types.NodeShutdownShutdown, FailedApps: []types.FailedApp{
			{Name: "A", FailCount: 4}, {Name: "B", FailCount: 5},
		}},
		{StartState: types.NodeShutdownShutdown, FailedApps: nil},
	}
}

// TestReadStatisticsPerAppScenario is end-to-end scenario 3.
func TestReadStatisticsPerAppScenario(t *testing.T) {
	tr, _, _ := newTestTracker(scenarioHistory(), 5, nil, nil, nil)
	seedCurrentSet(t, tr, "A", "B", "C")

	current, total, lifecycles, status := tr.ReadStatistics("A")
	assert.Equal(t, uint32(3), current)
	assert.Equal(t, uint32(7), total)
	assert.Equal(t, uint32(3), lifecycles)
	assert.Equal(t, types.AppErrorOk, status)

	current, total, lifecycles, status = tr.ReadStatistics("")
	assert.Equal(t, uint32(3), current)
	assert.Equal(t, uint32(1), total)
	assert.Equal(t, uint32(3), lifecycles)
	assert.Equal(t, types.AppErrorOk, status)
}

// TestReadStatisticsNodeStatsWithBoundScenario is end-to-end
// scenario 4: same history, historic_lc_count = 1.
func TestReadStatisticsNodeStatsWithBoundScenario(t *testing.T) {
	tr, _, _ := newTestTracker(scenarioHistory(), 1, nil, nil, nil)
	seedCurrentSet(t, tr, "A", "B", "C")

	current, total, lifecycles, status := tr.ReadStatistics("")
	assert.Equal(t, uint32(3), current)
	assert.Equal(t, uint32(1), total)
	assert.Equal(t, uint32(2), lifecycles)
	assert.Equal(t, types.AppErrorOk, status)
}

func TestReadStatisticsUnknownAppYieldsZeroCounts(t *testing.T) {
	tr, _, _ := newTestTracker(scenarioHistory(), 5, nil, nil, nil)

	current, total, lifecycles, status := tr.ReadStatistics("does-not-exist")
	assert.Zero(t, current)
	assert.Zero(t, total)
	assert.Equal(t, uint32(3), lifecycles)
	assert.Equal(t, types.AppErrorOk, status)
}

// seedCurrentSet places names into current_set directly (bypassing
// RegisterAppStatus, which would also mutate node_info) to reproduce the
// scenario's precondition that current_set = {A,B,C} independent of
// node_info's contents.
func seedCurrentSet(t *testing.T, tr *Tracker, names ...string) {
	t.Helper()
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for _, n := range names {
		tr.currentSet[n] = struct{}{}
	}
}
