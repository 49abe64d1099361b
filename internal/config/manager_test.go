package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wemix/nhm/pkg/logger"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "nhm.ini")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestNewManagerAppliesDefaultsOnMissingFile(t *testing.T) {
	m := NewManager("", logger.NewTestLogger())
	cfg := m.Config()
	if cfg.Node.HistoricLcCount != 0 || cfg.Node.MaxFailedApps != 0 {
		t.Errorf("Config() = %+v, want spec defaults", cfg.Node)
	}
}

func TestNewManagerParsesNodeAndUserlandGroups(t *testing.T) {
	path := writeTempConfig(t, `
[node]
historic_lc_count = 5
max_failed_apps = 2
no_restart_apps = A1,A2

[userland]
ul_chk_interval = 15
monitored_files = /etc/passwd,/etc/hosts
`)
	m := NewManager(path, logger.NewTestLogger())
	cfg := m.Config()

	if cfg.Node.HistoricLcCount != 5 {
		t.Errorf("HistoricLcCount = %d, want 5", cfg.Node.HistoricLcCount)
	}
	if cfg.Node.MaxFailedApps != 2 {
		t.Errorf("MaxFailedApps = %d, want 2", cfg.Node.MaxFailedApps)
	}
	if cfg.Userland.UlChkIntervalSec != 15 {
		t.Errorf("UlChkIntervalSec = %d, want 15", cfg.Userland.UlChkIntervalSec)
	}
}

func TestNewManagerRejectsNegativeIntAndUsesDefault(t *testing.T) {
	path := writeTempConfig(t, `
[node]
historic_lc_count = -3
`)
	m := NewManager(path, logger.NewTestLogger())
	cfg := m.Config()
	if cfg.Node.HistoricLcCount != 0 {
		t.Errorf("HistoricLcCount = %d, want 0 (negative value rejected)", cfg.Node.HistoricLcCount)
	}
}

func TestWatchPublishesReloadOnFileChange(t *testing.T) {
	path := writeTempConfig(t, "[node]\nmax_failed_apps = 1\n")
	m := NewManager(path, logger.NewTestLogger())
	m.Watch()

	if err := os.WriteFile(path, []byte("[node]\nmax_failed_apps = 9\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-m.Updates():
		if cfg.Node.MaxFailedApps != 9 {
			t.Errorf("reloaded MaxFailedApps = %d, want 9", cfg.Node.MaxFailedApps)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config reload notification")
	}
}
