package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wemix/nhm/internal/types"
	"github.com/wemix/nhm/pkg/logger"
)

// Collector holds NHM's Prometheus registry and the small set of
// counters/gauges scopes the metrics surface to. It has no
// polling loop of its own — every value is pushed in by a caller. In
// this module only internal/api calls it (ObserveAppStatus from its
// AppHealthStatus subscriber, ObserveRestartRequest from its restart
// handler); nothing in cmd/nhm calls ObserveNodeStats or
// ObserveProberResult, so those gauges and snapshot fields keep their
// zero values there.
type Collector struct {
	log      *logger.Logger
	registry *prometheus.Registry

	currentFailedApps prometheus.Gauge
	maxFailedApps     prometheus.Gauge
	lifecyclesTracked prometheus.Gauge
	totalFailures     prometheus.Gauge

	restartRequests *prometheus.CounterVec
	appTransitions  *prometheus.CounterVec

	proberLastResult prometheus.Gauge
	proberRuns       prometheus.Counter

	mu       sync.Mutex
	snapshot NodeSnapshot
}

// NewCollector builds a Collector and registers its metrics with a fresh
// Registry.
func NewCollector(log *logger.Logger) *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{log: log, registry: registry}

	c.currentFailedApps = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nhm_current_failed_apps",
		Help: "Number of applications currently in the Failed state this life cycle.",
	})
	c.maxFailedApps = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nhm_max_failed_apps",
		Help: "Configured node-restart threshold (0 = disabled).",
	})
	c.lifecyclesTracked = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nhm_lifecycles_tracked",
		Help: "Number of life cycles inspected by the last ReadStatistics(\"\") call.",
	})
	c.totalFailures = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nhm_total_failures",
		Help: "Node-wide total failure count across tracked life cycles, per the last ReadStatistics(\"\") call.",
	})
	c.restartRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nhm_restart_requests_total",
		Help: "RequestNodeRestart outcomes by result.",
	}, []string{"result"})
	c.appTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nhm_app_status_transitions_total",
		Help: "RegisterAppStatus calls by resulting AppStatus.",
	}, []string{"status"})
	c.proberLastResult = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nhm_prober_last_result",
		Help: "1 if the most recent user-land probe run passed, 0 otherwise.",
	})
	c.proberRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nhm_prober_runs_total",
		Help: "Number of completed user-land probe runs.",
	})

	registry.MustRegister(
		c.currentFailedApps,
		c.maxFailedApps,
		c.lifecyclesTracked,
		c.totalFailures,
		c.restartRequests,
		c.appTransitions,
		c.proberLastResult,
		c.proberRuns,
	)
	return c
}

// GetRegistry returns the Prometheus registry for the exporter to serve.
func (c *Collector) GetRegistry() *prometheus.Registry {
	return c.registry
}

// SetMaxFailedApps records the configured threshold once at startup.
func (c *Collector) SetMaxFailedApps(n uint32) {
	c.maxFailedApps.Set(float64(n))
	c.mu.Lock()
	c.snapshot.MaxFailedApps = n
	c.mu.Unlock()
}

// ObserveNodeStats records the result of a node-wide ReadStatistics("")
// call (current_fail_count, total_failures, total_lifecycles).
func (c *Collector) ObserveNodeStats(currentFailCount, totalFailures, totalLifecycles uint32) {
	c.currentFailedApps.Set(float64(currentFailCount))
	c.totalFailures.Set(float64(totalFailures))
	c.lifecyclesTracked.Set(float64(totalLifecycles))

	c.mu.Lock()
	c.snapshot.CurrentFailedApps = currentFailCount
	c.snapshot.Timestamp = time.Now()
	c.mu.Unlock()
}

// ObserveAppStatus increments the transition counter for the resulting
// AppStatus of a RegisterAppStatus call.
func (c *Collector) ObserveAppStatus(status types.AppStatus) {
	c.appTransitions.WithLabelValues(status.String()).Inc()
}

// ObserveRestartRequest increments the restart-request counter for the
// AppErrorStatus a RequestNodeRestart call produced.
func (c *Collector) ObserveRestartRequest(status types.AppErrorStatus) {
	result := "error"
	switch status {
	case types.AppErrorOk:
		result = "ok"
	case types.AppErrorRestartNotPossible:
		result = "denied"
	case types.AppErrorUnknownApp:
		result = "unknown_app"
	}
	c.restartRequests.WithLabelValues(result).Inc()

	c.mu.Lock()
	switch result {
	case "ok":
		c.snapshot.RestartRequestsOK++
	case "denied":
		c.snapshot.RestartRequestsDeny++
	default:
		c.snapshot.RestartRequestsErr++
	}
	c.mu.Unlock()
}

// ObserveProberResult records the outcome of one prober run.
func (c *Collector) ObserveProberResult(ok bool) {
	c.proberRuns.Inc()
	if ok {
		c.proberLastResult.Set(1)
	} else {
		c.proberLastResult.Set(0)
	}

	c.mu.Lock()
	c.snapshot.ProberLastResult = ok
	c.snapshot.ProberLastRunAt = time.Now()
	c.snapshot.ProberRuns++
	c.mu.Unlock()
}

// GetSnapshot returns a copy of the collector's last-known values, for
// the API's status endpoint and the alerting evaluator.
func (c *Collector) GetSnapshot() NodeSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.snapshot
	snap.Timestamp = time.Now()
	return snap
}
