package lifecycle

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wemix/nhm/internal/servicemgr"
	"github.com/wemix/nhm/pkg/logger"
)

func TestWatchdogPingIntervalIsHalfPeriodInMilliseconds(t *testing.T) {
	// 2,000,000 usec = 2s; half period = 1s = 1000ms.
	assert.Equal(t, time.Second, watchdogPingInterval(2_000_000))
}

func TestWatchdogPingIntervalClampsToU32(t *testing.T) {
	// 2^44 usec / 2 / 1000 is about 8.8e9 ms, above the u32 ceiling.
	interval := watchdogPingInterval(1 << 44)
	assert.Equal(t, time.Duration(math32Max)*time.Millisecond, interval)
}

func TestReadWatchdogUsecAbsentOrUnparseable(t *testing.T) {
	t.Setenv(WatchdogEnvVar, "")
	_, ok := readWatchdogUsec()
	assert.False(t, ok)

	t.Setenv(WatchdogEnvVar, "not-a-number")
	_, ok = readWatchdogUsec()
	assert.False(t, ok)

	t.Setenv(WatchdogEnvVar, "2000000")
	usec, ok := readWatchdogUsec()
	require.True(t, ok)
	assert.Equal(t, uint64(2_000_000), usec)
}

func TestNewWatchdogNoEnvDisablesStart(t *testing.T) {
	os.Unsetenv(WatchdogEnvVar)
	notifier := &servicemgr.NoopNotifier{}
	wd, enabled := NewWatchdog(notifier, logger.NewTestLogger())
	assert.False(t, enabled)

	wd.Start()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, wd.PingCount())
}

func TestWatchdogPingsAtConfiguredCadence(t *testing.T) {
	t.Setenv(WatchdogEnvVar, "20000") // 20ms period -> 10ms ping interval
	notifier := &servicemgr.NoopNotifier{}
	wd, enabled := NewWatchdog(notifier, logger.NewTestLogger())
	require.True(t, enabled)

	wd.Start()
	defer wd.Stop()

	require.Eventually(t, func() bool {
		return wd.PingCount() >= 2
	}, time.Second, 5*time.Millisecond)

	assert.Contains(t, notifier.Sent, servicemgr.NotifyWatchdog)
}
