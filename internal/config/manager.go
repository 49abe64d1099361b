package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/wemix/nhm/internal/types"
	"github.com/wemix/nhm/pkg/logger"
)

// Manager loads the INI-style configuration file and optionally
// hot-watches it for changes via fsnotify, on top of viper for the
// INI parsing and the watch loop.
type Manager struct {
	v      *viper.Viper
	log    *logger.Logger
	cfg    *Config
	update chan *Config
}

// NewManager loads configPath (always parsed as INI, whatever its
// extension; an empty
// path or a missing file yields pure defaults
// "Configuration error ... non-fatal; default used"). It never returns an
// error: every failure degrades to defaults, logged.
func NewManager(configPath string, log *logger.Logger) *Manager {
	v := viper.New()
	v.SetConfigType("ini")
	setViperDefaults(v)

	m := &Manager{v: v, log: log, update: make(chan *Config, 4)}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if log != nil {
				log.Warn("config: failed to read file, using defaults", "path", configPath, "error", err.Error())
			}
		}
	}

	m.cfg = m.materialize()
	return m
}

// Config returns the most recently loaded configuration.
func (m *Manager) Config() *Config {
	return m.cfg
}

// Watch begins watching the loaded file for changes, re-materializing
// Config on every write and publishing the result on Updates(). A Manager
// with no backing file (configPath == "") has nothing to watch and Watch
// is a no-op.
func (m *Manager) Watch() {
	if m.v.ConfigFileUsed() == "" {
		return
	}
	m.v.OnConfigChange(func(e fsnotify.Event) {
		cfg := m.materialize()
		m.cfg = cfg
		select {
		case m.update <- cfg:
		default:
			if m.log != nil {
				m.log.Warn("config: update channel full, dropping reload notification")
			}
		}
	})
	m.v.WatchConfig()
}

// Updates returns the channel of configurations produced by Watch.
func (m *Manager) Updates() <-chan *Config {
	return m.update
}

func setViperDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("home", d.Home)
	v.SetDefault("node.historic_lc_count", d.Node.HistoricLcCount)
	v.SetDefault("node.max_failed_apps", d.Node.MaxFailedApps)
	v.SetDefault("node.no_restart_apps", d.Node.NoRestartApps)
	v.SetDefault("userland.ul_chk_interval", d.Userland.UlChkIntervalSec)
	v.SetDefault("userland.monitored_files", d.Userland.MonitoredFiles)
	v.SetDefault("userland.monitored_progs", d.Userland.MonitoredProgs)
	v.SetDefault("userland.monitored_procs", d.Userland.MonitoredProcs)
	v.SetDefault("userland.monitored_dbus", d.Userland.MonitoredDbus)
	v.SetDefault("nsm.bus_name", d.NSM.BusName)
	v.SetDefault("nsm.obj_name", d.NSM.ObjName)
	v.SetDefault("nsm.shutdown_timeout_ms", d.NSM.ShutdownTimeoutMS)
	v.SetDefault("nsm.transport_url", d.NSM.TransportURL)
	v.SetDefault("nsm.timeout", d.NSM.Timeout)
	v.SetDefault("observer.supervisor_url", d.Observer.SupervisorURL)
	v.SetDefault("observer.timeout", d.Observer.Timeout)
	v.SetDefault("persistence.base_dir", d.Persistence.BaseDir)
	v.SetDefault("persistence.history_file", d.Persistence.HistoryFileName)
	v.SetDefault("persistence.history_version", d.Persistence.HistoryVersion)
	v.SetDefault("api.enabled", d.API.Enabled)
	v.SetDefault("api.port", d.API.Port)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.port", d.Metrics.Port)
	v.SetDefault("metrics.path", d.Metrics.Path)
	v.SetDefault("alerting.enabled", d.Alerting.Enabled)
	v.SetDefault("alerting.evaluation_interval", d.Alerting.EvaluationInterval)
	v.SetDefault("logging.debug", d.Logging.Debug)
	v.SetDefault("logging.color", d.Logging.Color)
	v.SetDefault("logging.file", d.Logging.File)
}

// materialize reads every key back out of viper, applying the
// "negative integers are rejected with a log and replaced by defaults"
// rule to the u32 fields before they're cast. Viper's blind Unmarshal
// can't express that policy, so each u32 key is fetched and range-checked
// by hand.
func (m *Manager) materialize() *Config {
	d := Default()
	v := m.v

	cfg := &Config{
		Home: v.GetString("home"),
		Node: NodeConfig{
			HistoricLcCount: uintSetting(v, "node.historic_lc_count", d.Node.HistoricLcCount, m.log),
			MaxFailedApps:   uintSetting(v, "node.max_failed_apps", d.Node.MaxFailedApps, m.log),
			NoRestartApps:   stringListSetting(v, "node.no_restart_apps"),
		},
		Userland: UserlandConfig{
			UlChkIntervalSec: uintSetting(v, "userland.ul_chk_interval", d.Userland.UlChkIntervalSec, m.log),
			MonitoredFiles:   stringListSetting(v, "userland.monitored_files"),
			MonitoredProgs:   stringListSetting(v, "userland.monitored_progs"),
			MonitoredProcs:   stringListSetting(v, "userland.monitored_procs"),
			MonitoredDbus:    stringListSetting(v, "userland.monitored_dbus"),
		},
		NSM: NSMConfig{
			BusName:           v.GetString("nsm.bus_name"),
			ObjName:           v.GetString("nsm.obj_name"),
			ShutdownTimeoutMS: uintSetting(v, "nsm.shutdown_timeout_ms", d.NSM.ShutdownTimeoutMS, m.log),
			TransportURL:      v.GetString("nsm.transport_url"),
			Timeout:           durationSetting(v, "nsm.timeout", d.NSM.Timeout),
		},
		Observer: ObserverConfig{
			SupervisorURL: v.GetString("observer.supervisor_url"),
			Timeout:       durationSetting(v, "observer.timeout", d.Observer.Timeout),
		},
		Persistence: PersistenceConfig{
			BaseDir:         v.GetString("persistence.base_dir"),
			HistoryFileName: v.GetString("persistence.history_file"),
			HistoryVersion:  uintSetting(v, "persistence.history_version", d.Persistence.HistoryVersion, m.log),
		},
		API: APIConfig{
			Enabled:   v.GetBool("api.enabled"),
			Port:      v.GetInt("api.port"),
			JWTSecret: v.GetString("api.jwt_secret"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("metrics.enabled"),
			Port:    v.GetInt("metrics.port"),
			Path:    v.GetString("metrics.path"),
		},
		Alerting: AlertingConfig{
			Enabled:            v.GetBool("alerting.enabled"),
			EvaluationInterval: durationSetting(v, "alerting.evaluation_interval", d.Alerting.EvaluationInterval),
			WebhookURL:         v.GetString("alerting.webhook_url"),
		},
		Logging: LoggingConfig{
			Debug: v.GetBool("logging.debug"),
			Color: v.GetBool("logging.color"),
			File:  v.GetString("logging.file"),
		},
	}

	if err := cfg.Validate(); err != nil {
		if m.log != nil {
			m.log.Warn("config: validation failed, keeping previous value", "error", err.Error())
		}
		if m.cfg != nil {
			return m.cfg
		}
		return d
	}
	return cfg
}

// uintSetting fetches key as a signed int (viper has no GetUint) and
// rejects negative values, falling back to def and
// logging the rejection.
func uintSetting(v *viper.Viper, key string, def uint32, log *logger.Logger) uint32 {
	if !v.IsSet(key) {
		return def
	}
	n := v.GetInt(key)
	if n < 0 {
		if log != nil {
			log.Warn("config: negative value rejected, using default", "key", key, "value", n, "default", def)
		}
		return def
	}
	return uint32(n)
}

// stringListSetting reads a comma-separated sequence key. The INI groups
// in (no_restart_apps, monitored_files, ...) are "sequences of
// strings"; viper's ini codec stores them as one string per key, so the
// split happens here rather than relying on GetStringSlice's type-cast
// (which only handles values already shaped as a list, e.g. from TOML/YAML).
func stringListSetting(v *viper.Viper, key string) []string {
	if v.IsSet(key) {
		if raw := v.Get(key); raw != nil {
			if list, ok := raw.([]interface{}); ok {
				out := make([]string, 0, len(list))
				for _, item := range list {
					out = append(out, fmt.Sprintf("%v", item))
				}
				return out
			}
		}
	}
	s := v.GetString(key)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func durationSetting(v *viper.Viper, key string, def time.Duration) time.Duration {
	if !v.IsSet(key) {
		return def
	}
	d := v.GetDuration(key)
	if d <= 0 {
		return def
	}
	return d
}

// ToConfiguration projects the Node/Userland groups onto the core
// domain's types.Configuration, the only view the failure
// tracker, restart policy, and prober are allowed to see.
func (c *Config) ToConfiguration() types.Configuration {
	return types.Configuration{
		HistoricLcCount: c.Node.HistoricLcCount,
		MaxFailedApps:   c.Node.MaxFailedApps,
		NoRestartApps:   c.Node.NoRestartApps,
		UlChkInterval:   c.Userland.UlChkInterval(),
		MonitoredFiles:  c.Userland.MonitoredFiles,
		MonitoredProgs:  c.Userland.MonitoredProgs,
		MonitoredProcs:  c.Userland.MonitoredProcs,
		MonitoredDbus:   c.Userland.MonitoredDbus,
	}
}
