package facade

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wemix/nhm/internal/restart"
	"github.com/wemix/nhm/internal/tracker"
	"github.com/wemix/nhm/internal/types"
	"github.com/wemix/nhm/pkg/logger"
)

type fakeNSMRestarter struct {
	calls int
}

func (f *fakeNSMRestarter) RequestNodeRestart(ctx context.Context, reason types.RestartReason, kind types.ShutdownType) types.AppErrorStatus {
	f.calls++
	return types.AppErrorOk
}

func buildWiredFacade(t *testing.T, maxFailedApps uint32) *Facade {
	t.Helper()
	f := New(logger.NewTestLogger())
	nsmRestarter := &fakeNSMRestarter{}
	policy := restart.New(nsmRestarter, nil, maxFailedApps, logger.NewTestLogger())
	trk := tracker.New(types.NodeInfo{{}}, 5, 1, nil, policy, nil, f.Signal(), logger.NewTestLogger())
	f.Attach(trk, policy)
	return f
}

func TestFacadeRegisterAppStatusBroadcasts(t *testing.T) {
	f := buildWiredFacade(t, 0)

	var got []string
	f.Subscribe(func(name string, status types.AppStatus) {
		got = append(got, name)
	})

	f.RegisterAppStatus(context.Background(), "payment-svc", types.AppStatusFailed)
	assert.Equal(t, []string{"payment-svc"}, got)
}

func TestFacadeSubscribeUnsubscribe(t *testing.T) {
	f := buildWiredFacade(t, 0)

	calls := 0
	unsubscribe := f.Subscribe(func(name string, status types.AppStatus) { calls++ })
	f.RegisterAppStatus(context.Background(), "A", types.AppStatusFailed)
	require.Equal(t, 1, calls)

	unsubscribe()
	f.RegisterAppStatus(context.Background(), "A", types.AppStatusOk)
	assert.Equal(t, 1, calls, "unsubscribed callback must not fire again")
}

func TestFacadeReadStatisticsDelegates(t *testing.T) {
	f := buildWiredFacade(t, 0)

	f.RegisterAppStatus(context.Background(), "A", types.AppStatusFailed)
	current, total, lifecycles, status := f.ReadStatistics("A")

	assert.Equal(t, uint32(1), current)
	assert.Equal(t, uint32(1), total)
	assert.Equal(t, uint32(1), lifecycles)
	assert.Equal(t, types.AppErrorOk, status)
}

func TestFacadeRequestNodeRestartDelegates(t *testing.T) {
	f := buildWiredFacade(t, 0)

	status := f.RequestNodeRestart(context.Background(), "A")
	assert.Equal(t, types.AppErrorOk, status)
}
