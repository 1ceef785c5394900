package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	t.Setenv("WEIGHBRIDGE_DEV_MODE", "true")

	cfg, err := LoadFromFile(writeConfig(t, "{}"))
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Server.Port != 8090 {
		t.Errorf("Port = %d, want 8090", cfg.Server.Port)
	}
	if cfg.Queue.Path != "data/weighbridge.db" {
		t.Errorf("Queue.Path = %q", cfg.Queue.Path)
	}
	if cfg.Scale.WindowSize != 5 {
		t.Errorf("WindowSize = %d, want 5", cfg.Scale.WindowSize)
	}
	if cfg.Scale.SpreadTolerance != 0.10 {
		t.Errorf("SpreadTolerance = %v, want 0.10", cfg.Scale.SpreadTolerance)
	}
	if cfg.Scale.HysteresisTolerance != 0.20 {
		t.Errorf("HysteresisTolerance = %v, want 0.20", cfg.Scale.HysteresisTolerance)
	}
	if cfg.Scale.StickyTolerance != 0.15 {
		t.Errorf("StickyTolerance = %v, want 0.15", cfg.Scale.StickyTolerance)
	}
	if cfg.Scale.ZeroEpsilon != 0.01 {
		t.Errorf("ZeroEpsilon = %v, want 0.01", cfg.Scale.ZeroEpsilon)
	}
	if time.Duration(cfg.Scale.InactivityTimeout) != 5*time.Second {
		t.Errorf("InactivityTimeout = %v, want 5s", time.Duration(cfg.Scale.InactivityTimeout))
	}
	if time.Duration(cfg.Scale.TickInterval) != time.Second {
		t.Errorf("TickInterval = %v, want 1s", time.Duration(cfg.Scale.TickInterval))
	}
	if !cfg.Sync.SyncOnSave {
		t.Error("SyncOnSave should default to true")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want json", cfg.Log.Format)
	}
}

func TestYAMLOverrides(t *testing.T) {
	t.Setenv("WEIGHBRIDGE_DEV_MODE", "true")

	yaml := `
server:
  port: 9100
scale:
  window_size: 7
  spread_tolerance: 0.05
  inactivity_timeout: 10s
remote:
  base_url: https://records.example.com
sync:
  auto_interval: 5m
  sync_on_save: false
log:
  level: debug
  format: text
`
	cfg, err := LoadFromFile(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("Port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Scale.WindowSize != 7 {
		t.Errorf("WindowSize = %d, want 7", cfg.Scale.WindowSize)
	}
	if cfg.Scale.SpreadTolerance != 0.05 {
		t.Errorf("SpreadTolerance = %v, want 0.05", cfg.Scale.SpreadTolerance)
	}
	if time.Duration(cfg.Scale.InactivityTimeout) != 10*time.Second {
		t.Errorf("InactivityTimeout = %v, want 10s", time.Duration(cfg.Scale.InactivityTimeout))
	}
	if cfg.Remote.BaseURL != "https://records.example.com" {
		t.Errorf("BaseURL = %q", cfg.Remote.BaseURL)
	}
	if time.Duration(cfg.Sync.AutoInterval) != 5*time.Minute {
		t.Errorf("AutoInterval = %v, want 5m", time.Duration(cfg.Sync.AutoInterval))
	}
	if cfg.Sync.SyncOnSave {
		t.Error("SyncOnSave = true, want false")
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestEnvOverridesWinOverYAML(t *testing.T) {
	t.Setenv("WEIGHBRIDGE_DEV_MODE", "true")
	t.Setenv("WEIGHBRIDGE_PORT", "9200")
	t.Setenv("WEIGHBRIDGE_SPREAD_TOLERANCE", "0.25")
	t.Setenv("WEIGHBRIDGE_REMOTE_URL", "https://env.example.com")
	t.Setenv("WEIGHBRIDGE_SYNC_INTERVAL", "30s")
	t.Setenv("WEIGHBRIDGE_QUEUE_PATH", "/tmp/env-queue.db")

	cfg, err := LoadFromFile(writeConfig(t, "server:\n  port: 9100\n"))
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Server.Port != 9200 {
		t.Errorf("Port = %d, want env override 9200", cfg.Server.Port)
	}
	if cfg.Scale.SpreadTolerance != 0.25 {
		t.Errorf("SpreadTolerance = %v, want 0.25", cfg.Scale.SpreadTolerance)
	}
	if cfg.Remote.BaseURL != "https://env.example.com" {
		t.Errorf("BaseURL = %q", cfg.Remote.BaseURL)
	}
	if time.Duration(cfg.Sync.AutoInterval) != 30*time.Second {
		t.Errorf("AutoInterval = %v, want 30s", time.Duration(cfg.Sync.AutoInterval))
	}
	if cfg.Queue.Path != "/tmp/env-queue.db" {
		t.Errorf("Queue.Path = %q", cfg.Queue.Path)
	}
}

func TestValidate_RequiresAPIKey(t *testing.T) {
	t.Setenv("WEIGHBRIDGE_DEV_MODE", "")
	t.Setenv("WEIGHBRIDGE_API_KEY", "")

	if _, err := LoadFromFile(writeConfig(t, "{}")); err == nil {
		t.Error("missing API key must fail validation outside dev mode")
	}

	t.Setenv("WEIGHBRIDGE_API_KEY", "station-key")
	cfg, err := LoadFromFile(writeConfig(t, "{}"))
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if cfg.Auth.APIKey != "station-key" {
		t.Errorf("APIKey = %q", cfg.Auth.APIKey)
	}
}

func TestValidate_CalibrationBounds(t *testing.T) {
	t.Setenv("WEIGHBRIDGE_DEV_MODE", "true")

	tests := []struct {
		name string
		yaml string
	}{
		{"window too small", "scale:\n  window_size: 1\n"},
		{"negative tolerance", "scale:\n  spread_tolerance: -0.1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFromFile(writeConfig(t, tt.yaml)); err == nil {
				t.Errorf("invalid calibration %q must fail validation", tt.yaml)
			}
		})
	}
}

func TestInvalidDuration(t *testing.T) {
	t.Setenv("WEIGHBRIDGE_DEV_MODE", "true")

	if _, err := LoadFromFile(writeConfig(t, "scale:\n  inactivity_timeout: banana\n")); err == nil {
		t.Error("invalid duration string must fail to parse")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("WEIGHBRIDGE_DEV_MODE", "true")
	t.Setenv("WEIGHBRIDGE_CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8090 {
		t.Errorf("Port = %d, want default 8090", cfg.Server.Port)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "weighbridge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
