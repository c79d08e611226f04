package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "warmup.toml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg.Server.Port != 8090 {
		t.Errorf("default port = %d, want 8090", cfg.Server.Port)
	}
	if cfg.Warming.MaxQueueSize != 50 {
		t.Errorf("default max_queue_size = %d, want 50", cfg.Warming.MaxQueueSize)
	}
	if cfg.Warming.MaxConcurrent != 3 {
		t.Errorf("default max_concurrent = %d, want 3", cfg.Warming.MaxConcurrent)
	}
	if cfg.Conflict.ProtectionWindow.Std() != 30*time.Second {
		t.Errorf("default protection_window = %s, want 30s", cfg.Conflict.ProtectionWindow)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
environment = "production"

[server]
port = 9999

[warming]
max_queue_size = 10
max_concurrent = 2
poll_interval = "500ms"

[maintenance]
interval = "10m"
quiet_hours_start = "22:00"
quiet_hours_end = "06:00"

[conflict]
protection_window = "45s"
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if !cfg.IsProduction() {
		t.Error("expected production environment")
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Warming.MaxQueueSize != 10 {
		t.Errorf("max_queue_size = %d, want 10", cfg.Warming.MaxQueueSize)
	}
	if cfg.Warming.PollInterval.Std() != 500*time.Millisecond {
		t.Errorf("poll_interval = %s, want 500ms", cfg.Warming.PollInterval)
	}
	if cfg.Maintenance.Interval.Std() != 10*time.Minute {
		t.Errorf("maintenance interval = %s, want 10m", cfg.Maintenance.Interval)
	}
	if cfg.Conflict.ProtectionWindow.Std() != 45*time.Second {
		t.Errorf("protection_window = %s, want 45s", cfg.Conflict.ProtectionWindow)
	}
	// Untouched sections keep defaults
	if cfg.Warming.MaxHistorySize != 500 {
		t.Errorf("max_history = %d, want default 500", cfg.Warming.MaxHistorySize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config failed validation: %v", err)
	}
}

func TestLoadFromFileDurationStrings(t *testing.T) {
	path := writeConfigFile(t, `
[remote]
timeout = "30s"

[warming]
poll_interval = "250ms"
profile_ttl = "30m"
log_ttl = "15m"
exercise_ttl = "6h"
warming_timeout = "20s"

[maintenance]
interval = "5m"
stale_after = "10m"
history_retention = "24h"

[conflict]
protection_window = "30s"
concurrent_window = "5s"

[records]
debounce_delay = "2s"
read_cache_ttl = "15m"
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	durations := []struct {
		name string
		got  Duration
		want time.Duration
	}{
		{"remote.timeout", cfg.Remote.Timeout, 30 * time.Second},
		{"warming.poll_interval", cfg.Warming.PollInterval, 250 * time.Millisecond},
		{"warming.profile_ttl", cfg.Warming.ProfileTTL, 30 * time.Minute},
		{"warming.log_ttl", cfg.Warming.LogTTL, 15 * time.Minute},
		{"warming.exercise_ttl", cfg.Warming.ExerciseTTL, 6 * time.Hour},
		{"warming.warming_timeout", cfg.Warming.WarmingTimeout, 20 * time.Second},
		{"maintenance.interval", cfg.Maintenance.Interval, 5 * time.Minute},
		{"maintenance.stale_after", cfg.Maintenance.StaleAfter, 10 * time.Minute},
		{"maintenance.history_retention", cfg.Maintenance.HistoryRetention, 24 * time.Hour},
		{"conflict.protection_window", cfg.Conflict.ProtectionWindow, 30 * time.Second},
		{"conflict.concurrent_window", cfg.Conflict.ConcurrentWindow, 5 * time.Second},
		{"records.debounce_delay", cfg.Records.DebounceDelay, 2 * time.Second},
		{"records.read_cache_ttl", cfg.Records.ReadCacheTTL, 15 * time.Minute},
	}
	for _, d := range durations {
		if d.got.Std() != d.want {
			t.Errorf("%s = %s, want %s", d.name, d.got, d.want)
		}
	}
}

func TestLoadFromFileRejectsBadDuration(t *testing.T) {
	path := writeConfigFile(t, `
[remote]
timeout = "half an hour"
`)

	if _, err := LoadFromFile(path); err == nil {
		t.Fatal("expected error for unparseable duration string")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WARMUP_SERVER_PORT", "7070")
	t.Setenv("WARMUP_LOG_LEVEL", "debug")
	t.Setenv("WARMUP_QUIET_HOURS_START", "23:00")
	t.Setenv("WARMUP_QUIET_HOURS_END", "05:00")

	cfg, err := LoadFromFiles()
	if err != nil {
		t.Fatalf("LoadFromFiles failed: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want 7070 from env", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug from env", cfg.Logging.Level)
	}
	if cfg.Maintenance.QuietHoursStart != "23:00" || cfg.Maintenance.QuietHoursEnd != "05:00" {
		t.Errorf("quiet hours = %q-%q, want 23:00-05:00 from env",
			cfg.Maintenance.QuietHoursStart, cfg.Maintenance.QuietHoursEnd)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero queue size", func(c *Config) { c.Warming.MaxQueueSize = 0 }},
		{"negative concurrency", func(c *Config) { c.Warming.MaxConcurrent = -1 }},
		{"zero history", func(c *Config) { c.Warming.MaxHistorySize = 0 }},
		{"sub-second interval", func(c *Config) { c.Maintenance.Interval = Duration(100 * time.Millisecond) }},
		{"load threshold above one", func(c *Config) { c.Maintenance.HighLoadThreshold = 1.5 }},
		{"half-configured quiet hours", func(c *Config) { c.Maintenance.QuietHoursStart = "22:00" }},
		{"invalid quiet time", func(c *Config) {
			c.Maintenance.QuietHoursStart = "25:99"
			c.Maintenance.QuietHoursEnd = "06:00"
		}},
		{"zero protection window", func(c *Config) { c.Conflict.ProtectionWindow = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}
