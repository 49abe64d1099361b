// Package metrics exposes NHM's Prometheus counters/gauges. Scope is deliberately narrow: the
// failure tracker's current/historic failure counts, restart-request
// outcomes, and the prober's last result.
package metrics

import "time"

// AlertLevel is the severity of an alerting.Rule evaluation.
type AlertLevel string

const (
	AlertLevelInfo     AlertLevel = "info"
	AlertLevelWarning  AlertLevel = "warning"
	AlertLevelCritical AlertLevel = "critical"
)

// Alert is what a fired alerting.Rule hands to a NotificationChannel.
type Alert struct {
	Name        string
	Level       AlertLevel
	Message     string
	Value       float64
	Threshold   float64
	FiredAt     time.Time
}

// NodeSnapshot is a point-in-time read of the collector's current values,
// used by both the alerting evaluator and the API's status endpoint.
type NodeSnapshot struct {
	CurrentFailedApps   uint32
	MaxFailedApps       uint32
	RestartRequestsOK   uint64
	RestartRequestsDeny uint64
	RestartRequestsErr  uint64
	ProberLastResult    bool
	ProberLastRunAt     time.Time
	ProberRuns          uint64
	Timestamp           time.Time
}

// CollectorConfig configures the Collector and its HTTP exporter.
type CollectorConfig struct {
	Enabled bool
	Port    int
	Path    string
}
