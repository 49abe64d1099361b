package lifecycle

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/wemix/nhm/internal/servicemgr"
	"github.com/wemix/nhm/pkg/logger"
)

// WatchdogEnvVar is the environment variable holding the service
// manager's configured watchdog period, in microseconds.
const WatchdogEnvVar = "WATCHDOG_USEC"

// readWatchdogUsec parses WATCHDOG_USEC. ok is false if the variable is
// absent or unparseable, in which case no ping timer should be installed
//.
func readWatchdogUsec() (usec uint64, ok bool) {
	raw := os.Getenv(WatchdogEnvVar)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// watchdogPingInterval converts a WATCHDOG_USEC value into the ping
// cadence: half the configured period, in milliseconds, clamped to u32.
func watchdogPingInterval(usec uint64) time.Duration {
	halfMS := usec / 2 / 1000
	if halfMS > math32Max {
		halfMS = math32Max
	}
	return time.Duration(halfMS) * time.Millisecond
}

const math32Max = 1<<32 - 1

// Watchdog pings the service manager at half the configured watchdog
// period. If no period is configured, Start is a no-op.
type Watchdog struct {
	notifier servicemgr.Notifier
	interval time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	pingCount int
}

// NewWatchdog builds a Watchdog from the process environment. The second
// return value is false if WATCHDOG_USEC is absent or unparseable, in
// which case the returned Watchdog's Start is always a no-op.
func NewWatchdog(notifier servicemgr.Notifier, log *logger.Logger) (*Watchdog, bool) {
	usec, ok := readWatchdogUsec()
	if !ok {
		return &Watchdog{notifier: notifier, log: log}, false
	}
	return &Watchdog{notifier: notifier, interval: watchdogPingInterval(usec), log: log}, true
}

// Start begins the ping loop. No-op if no interval was configured.
func (w *Watchdog) Start() {
	if w.interval <= 0 {
		return
	}
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.loop(ctx)
}

func (w *Watchdog) loop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.notifier.Notify(servicemgr.NotifyWatchdog); err != nil && w.log != nil {
				w.log.Warn("lifecycle: watchdog ping failed", "error", err.Error())
			}
			w.mu.Lock()
			w.pingCount++
			w.mu.Unlock()
		}
	}
}

// PingCount returns how many watchdog pings have been sent, for tests and
// metrics.
func (w *Watchdog) PingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pingCount
}

// Stop halts the ping loop and waits for it to exit. Idempotent.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
}
