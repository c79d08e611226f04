package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string            `toml:"environment"` // "development" or "production"
	Server      ServerConfig      `toml:"server"`
	Remote      RemoteConfig      `toml:"remote"`
	Storage     StorageConfig     `toml:"storage"`
	Warming     WarmingConfig     `toml:"warming"`
	Maintenance MaintenanceConfig `toml:"maintenance"`
	Conflict    ConflictConfig    `toml:"conflict"`
	Records     RecordsConfig     `toml:"records"`
	Seeding     SeedingConfig     `toml:"seeding"`
	Logging     LoggingConfig     `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// RemoteConfig configures the remote record service and its push channel.
type RemoteConfig struct {
	BaseURL   string   `toml:"base_url"`   // Record API base URL
	WSURL     string   `toml:"ws_url"`     // Push-update websocket URL
	APIKey    string   `toml:"api_key"`    // API key sent as x-api-key header
	Timeout   Duration `toml:"timeout"`    // HTTP request timeout
	RateLimit int      `toml:"rate_limit"` // Requests per second against the remote API
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// WarmingConfig controls the warming queue and executor.
type WarmingConfig struct {
	MaxQueueSize   int      `toml:"max_queue_size"`  // Pending request cap before priority eviction
	MaxConcurrent  int      `toml:"max_concurrent"`  // In-flight warming cap
	MaxHistorySize int      `toml:"max_history"`     // Warming event ring-buffer capacity
	MaxRetries     int      `toml:"max_retries"`     // Attempts per warming request
	PollInterval   Duration `toml:"poll_interval"`   // Dispatcher queue poll interval
	RateLimit      int      `toml:"rate_limit"`      // Warmings per second
	PerReadCost    float64  `toml:"per_read_cost"`   // Avoided remote read cost, for savings estimates
	RecentLogCount int      `toml:"recent_logs"`     // Workout logs fetched per subject warm
	ProfileTTL     Duration `toml:"profile_ttl"`     // Cache TTL for user profiles
	LogTTL         Duration `toml:"log_ttl"`         // Cache TTL for workout logs
	ExerciseTTL    Duration `toml:"exercise_ttl"`    // Cache TTL for the exercise catalog
	WarmingTimeout Duration `toml:"warming_timeout"` // Per-subject warming deadline
}

// MaintenanceConfig controls the periodic maintenance scheduler.
type MaintenanceConfig struct {
	Interval          Duration `toml:"interval"`            // Time between maintenance runs
	AutoStart         bool     `toml:"auto_start"`          // Start the scheduler with the app
	QuietHoursStart   string   `toml:"quiet_hours_start"`   // "22:00"; empty disables quiet hours
	QuietHoursEnd     string   `toml:"quiet_hours_end"`     // "06:00"; may wrap past midnight
	HighLoadThreshold float64  `toml:"high_load_threshold"` // Queue utilization (0-1) above which runs skip
	StaleAfter        Duration `toml:"stale_after"`         // Queued requests older than this are dropped
	HistoryRetention  Duration `toml:"history_retention"`   // Warming events older than this are pruned
	ReportRetention   int      `toml:"report_retention"`    // Reports kept in storage
}

// ConflictConfig controls remote-update conflict resolution.
type ConflictConfig struct {
	ProtectionWindow Duration `toml:"protection_window"` // Local edits younger than this win over remote pushes
	ConcurrentWindow Duration `toml:"concurrent_window"` // Same-exercise edits inside this need field merging
}

// RecordsConfig controls save orchestration.
type RecordsConfig struct {
	DebounceDelay Duration `toml:"debounce_delay"` // Delay before a debounced exercise-only save flushes
	ReadCacheTTL  Duration `toml:"read_cache_ttl"` // TTL on entries filled by a read miss
	ActorID       string   `toml:"actor_id"`       // Identity stamped on writes; empty generates one per process
}

// SeedingConfig locates seed scenario definitions.
type SeedingConfig struct {
	ScenarioPath string `toml:"scenario_path"` // YAML scenario file seeded on demand
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability;
// only user-facing settings belong in warmup.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8090,
			Host: "localhost",
		},
		Remote: RemoteConfig{
			BaseURL:   "http://localhost:8080",
			WSURL:     "ws://localhost:8080/realtime",
			Timeout:   Duration(30 * time.Second),
			RateLimit: 10,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Warming: WarmingConfig{
			MaxQueueSize:   50,
			MaxConcurrent:  3,
			MaxHistorySize: 500,
			MaxRetries:     3,
			PollInterval:   Duration(250 * time.Millisecond),
			RateLimit:      5,
			PerReadCost:    0.0004, // modeled per-document read cost avoided by a cache hit
			RecentLogCount: 20,
			ProfileTTL:     Duration(30 * time.Minute),
			LogTTL:         Duration(15 * time.Minute),
			ExerciseTTL:    Duration(6 * time.Hour),
			WarmingTimeout: Duration(20 * time.Second),
		},
		Maintenance: MaintenanceConfig{
			Interval:          Duration(5 * time.Minute),
			AutoStart:         true,
			QuietHoursStart:   "", // disabled unless configured
			QuietHoursEnd:     "",
			HighLoadThreshold: 0.8,
			StaleAfter:        Duration(10 * time.Minute),
			HistoryRetention:  Duration(24 * time.Hour),
			ReportRetention:   50,
		},
		Conflict: ConflictConfig{
			ProtectionWindow: Duration(30 * time.Second),
			ConcurrentWindow: Duration(5 * time.Second),
		},
		Records: RecordsConfig{
			DebounceDelay: Duration(2 * time.Second),
			ReadCacheTTL:  Duration(15 * time.Minute),
		},
		Seeding: SeedingConfig{
			ScenarioPath: "./seed/scenario.yaml",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFile loads configuration with priority: defaults -> file -> env.
// CLI flag overrides are applied afterwards by the caller.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files; later files override
// earlier ones, and environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("WARMUP_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("WARMUP_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("WARMUP_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if baseURL := os.Getenv("WARMUP_REMOTE_BASE_URL"); baseURL != "" {
		config.Remote.BaseURL = baseURL
	}
	if wsURL := os.Getenv("WARMUP_REMOTE_WS_URL"); wsURL != "" {
		config.Remote.WSURL = wsURL
	}
	if apiKey := os.Getenv("WARMUP_REMOTE_API_KEY"); apiKey != "" {
		config.Remote.APIKey = apiKey
	}

	if badgerPath := os.Getenv("WARMUP_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if interval := os.Getenv("WARMUP_MAINTENANCE_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.Maintenance.Interval = Duration(d)
		}
	}
	if start := os.Getenv("WARMUP_QUIET_HOURS_START"); start != "" {
		config.Maintenance.QuietHoursStart = start
	}
	if end := os.Getenv("WARMUP_QUIET_HOURS_END"); end != "" {
		config.Maintenance.QuietHoursEnd = end
	}

	if level := os.Getenv("WARMUP_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("WARMUP_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("WARMUP_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks cross-field constraints that toml decoding cannot express.
func (c *Config) Validate() error {
	if c.Warming.MaxQueueSize <= 0 {
		return fmt.Errorf("warming.max_queue_size must be positive, got %d", c.Warming.MaxQueueSize)
	}
	if c.Warming.MaxConcurrent <= 0 {
		return fmt.Errorf("warming.max_concurrent must be positive, got %d", c.Warming.MaxConcurrent)
	}
	if c.Warming.MaxHistorySize <= 0 {
		return fmt.Errorf("warming.max_history must be positive, got %d", c.Warming.MaxHistorySize)
	}
	if c.Maintenance.Interval.Std() < time.Second {
		return fmt.Errorf("maintenance.interval must be at least 1s, got %s", c.Maintenance.Interval)
	}
	if c.Maintenance.HighLoadThreshold <= 0 || c.Maintenance.HighLoadThreshold > 1 {
		return fmt.Errorf("maintenance.high_load_threshold must be in (0,1], got %v", c.Maintenance.HighLoadThreshold)
	}
	if c.Maintenance.HistoryRetention <= 0 {
		return fmt.Errorf("maintenance.history_retention must be positive, got %s", c.Maintenance.HistoryRetention)
	}
	if (c.Maintenance.QuietHoursStart == "") != (c.Maintenance.QuietHoursEnd == "") {
		return fmt.Errorf("quiet hours require both start and end times")
	}
	for _, v := range []string{c.Maintenance.QuietHoursStart, c.Maintenance.QuietHoursEnd} {
		if v == "" {
			continue
		}
		if _, err := time.Parse("15:04", v); err != nil {
			return fmt.Errorf("invalid quiet hours time %q: %w", v, err)
		}
	}
	if c.Conflict.ProtectionWindow <= 0 {
		return fmt.Errorf("conflict.protection_window must be positive, got %s", c.Conflict.ProtectionWindow)
	}
	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
