// Package config loads NHM's configuration: the node/userland keys the core domain reads
// once at startup, plus the ambient sections (NSM/observer transport
// endpoints, API, metrics, alerting, logging) that are out of the
// scope but present in any deployable build.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// NodeConfig holds the "node" group: the failure tracker and
// restart policy's immutable startup values.
type NodeConfig struct {
	HistoricLcCount uint32   `mapstructure:"historic_lc_count"`
	MaxFailedApps   uint32   `mapstructure:"max_failed_apps"`
	NoRestartApps   []string `mapstructure:"no_restart_apps"`
}

// UserlandConfig holds the "userland" group: the prober's
// battery of checks and its cadence.
type UserlandConfig struct {
	UlChkIntervalSec uint32   `mapstructure:"ul_chk_interval"`
	MonitoredFiles   []string `mapstructure:"monitored_files"`
	MonitoredProgs   []string `mapstructure:"monitored_progs"`
	MonitoredProcs   []string `mapstructure:"monitored_procs"`
	MonitoredDbus    []string `mapstructure:"monitored_dbus"`
}

// UlChkInterval converts the configured seconds to a time.Duration.
func (u UserlandConfig) UlChkInterval() time.Duration {
	return time.Duration(u.UlChkIntervalSec) * time.Second
}

// NSMConfig configures the out-of-scope "concrete IPC/bus implementation"
// used to reach the Node State Manager.
type NSMConfig struct {
	BusName           string        `mapstructure:"bus_name"`
	ObjName           string        `mapstructure:"obj_name"`
	ShutdownTimeoutMS uint32        `mapstructure:"shutdown_timeout_ms"`
	TransportURL      string        `mapstructure:"transport_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// ObserverConfig configures the unit-state observer's supervisor
// connection.
type ObserverConfig struct {
	SupervisorURL string        `mapstructure:"supervisor_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// PersistenceConfig configures the persistence gateway's on-disk roots
//.
type PersistenceConfig struct {
	BaseDir         string `mapstructure:"base_dir"`
	HistoryFileName string `mapstructure:"history_file"`
	HistoryVersion  uint32 `mapstructure:"history_version"`
}

// APIConfig configures the façade's HTTP/WebSocket transport.
type APIConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Port      int    `mapstructure:"port"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// AlertingConfig configures threshold-notification delivery.
type AlertingConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	EvaluationInterval time.Duration `mapstructure:"evaluation_interval"`
	WebhookURL         string        `mapstructure:"webhook_url"`
}

// LoggingConfig configures pkg/logger.
type LoggingConfig struct {
	Debug bool   `mapstructure:"debug"`
	Color bool   `mapstructure:"color"`
	File  string `mapstructure:"file"`
}

// Config is the full set of values NHM reads at startup. Node and
// Userland are the Configuration; everything else is ambient.
type Config struct {
	Home        string `mapstructure:"home"`
	Node        NodeConfig        `mapstructure:"node"`
	Userland    UserlandConfig    `mapstructure:"userland"`
	NSM         NSMConfig         `mapstructure:"nsm"`
	Observer    ObserverConfig    `mapstructure:"observer"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	API         APIConfig         `mapstructure:"api"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// Default returns a Config with every value at its documented
// default (historic_lc_count=0, max_failed_apps=0/disabled,
// ul_chk_interval=0/disabled, empty monitored-* lists and deny-list) plus
// reasonable ambient defaults.
func Default() *Config {
	home := os.Getenv("NHM_HOME")
	if home == "" {
		if h, err := os.UserHomeDir(); err == nil {
			home = filepath.Join(h, ".nhm")
		} else {
			home = ".nhm"
		}
	}
	return &Config{
		Home: home,
		Node: NodeConfig{
			HistoricLcCount: 0,
			MaxFailedApps:   0,
			NoRestartApps:   nil,
		},
		Userland: UserlandConfig{
			UlChkIntervalSec: 0,
		},
		NSM: NSMConfig{
			BusName:           "org.genivi.NodeHealthMonitor",
			ObjName:           "/org/genivi/NodeHealthMonitor",
			ShutdownTimeoutMS: 1000,
			TransportURL:      "http://127.0.0.1:9100/nsm",
			Timeout:           5 * time.Second,
		},
		Observer: ObserverConfig{
			SupervisorURL: "http://127.0.0.1:9101/units",
			Timeout:       5 * time.Second,
		},
		Persistence: PersistenceConfig{
			BaseDir:         filepath.Join(home, "nhm"),
			HistoryFileName: "lc-history.bin",
			HistoryVersion:  0x01000000, // 1.0.0.0
		},
		API: APIConfig{
			Enabled: true,
			Port:    8180,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9190,
			Path:    "/metrics",
		},
		Alerting: AlertingConfig{
			Enabled:            false,
			EvaluationInterval: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Debug: false,
			Color: true,
		},
	}
}

// Validate checks invariants that Load's per-key defaulting cannot catch
// on its own (cross-field and range checks rather than "is this key
// present").
func (c *Config) Validate() error {
	if c.Home == "" {
		return fmt.Errorf("home directory not set")
	}
	if c.API.Enabled && (c.API.Port <= 0 || c.API.Port > 65535) {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port %d out of range", c.Metrics.Port)
	}
	if c.API.Enabled && c.Metrics.Enabled && c.API.Port == c.Metrics.Port {
		return fmt.Errorf("api.port and metrics.port both %d", c.API.Port)
	}
	return nil
}
