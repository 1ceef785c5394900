package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Queue   QueueConfig   `yaml:"queue"`
	Scale   ScaleConfig   `yaml:"scale"`
	Remote  RemoteConfig  `yaml:"remote"`
	Sync    SyncConfig    `yaml:"sync"`
	Archive ArchiveConfig `yaml:"archive"`
	Auth    AuthConfig    `yaml:"auth"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// QueueConfig contains local durable queue settings.
type QueueConfig struct {
	Path string `yaml:"path"`
}

// ScaleConfig contains telemetry decoding and stability calibration.
// The tolerance values are empirically tuned calibration constants; the
// defaults are the shipped contract, not hard-coded behavior.
type ScaleConfig struct {
	WindowSize          int      `yaml:"window_size"`
	SpreadTolerance     float64  `yaml:"spread_tolerance"`
	HysteresisTolerance float64  `yaml:"hysteresis_tolerance"`
	StickyTolerance     float64  `yaml:"sticky_tolerance"`
	ZeroEpsilon         float64  `yaml:"zero_epsilon"`
	InactivityTimeout   Duration `yaml:"inactivity_timeout"`
	TickInterval        Duration `yaml:"tick_interval"`
	MinSampleGap        Duration `yaml:"min_sample_gap"`
	SampleBuffer        int      `yaml:"sample_buffer"`
}

// RemoteConfig contains remote record store settings.
type RemoteConfig struct {
	BaseURL       string   `yaml:"base_url"`
	APIKey        string   `yaml:"-"` // env-only, never in YAML
	UploadTimeout Duration `yaml:"upload_timeout"`
	PingTimeout   Duration `yaml:"ping_timeout"`
	MaxRetries    int      `yaml:"max_retries"`
}

// SyncConfig contains sync engine settings.
type SyncConfig struct {
	// AutoInterval enables the background sync coordinator when > 0.
	AutoInterval Duration `yaml:"auto_interval"`
	// SyncOnSave triggers an opportunistic sync after each saved record.
	SyncOnSave bool `yaml:"sync_on_save"`
}

// ArchiveConfig contains S3-compatible queue archive settings.
// An empty bucket disables archiving entirely.
type ArchiveConfig struct {
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"-"` // env-only, never in YAML
	SecretKey string `yaml:"-"` // env-only, never in YAML
	UseSSL    *bool  `yaml:"use_ssl"`
}

// AuthConfig contains API authentication settings.
type AuthConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("WEIGHBRIDGE_CONFIG_PATH", "config/weighbridge.yaml")

	// Missing file is not an error; defaults apply.
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8090,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Queue: QueueConfig{
			Path: "data/weighbridge.db",
		},
		Scale: ScaleConfig{
			WindowSize:          5,
			SpreadTolerance:     0.10,
			HysteresisTolerance: 0.20,
			StickyTolerance:     0.15,
			ZeroEpsilon:         0.01,
			InactivityTimeout:   Duration(5 * time.Second),
			TickInterval:        Duration(1 * time.Second),
			MinSampleGap:        Duration(0),
			SampleBuffer:        64,
		},
		Remote: RemoteConfig{
			UploadTimeout: Duration(10 * time.Second),
			PingTimeout:   Duration(3 * time.Second),
			MaxRetries:    2,
		},
		Sync: SyncConfig{
			AutoInterval: Duration(0),
			SyncOnSave:   true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("WEIGHBRIDGE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("WEIGHBRIDGE_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = Duration(d)
		}
	}
	if v := os.Getenv("WEIGHBRIDGE_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = Duration(d)
		}
	}
	if v := os.Getenv("WEIGHBRIDGE_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = Duration(d)
		}
	}

	// Queue
	if v := os.Getenv("WEIGHBRIDGE_QUEUE_PATH"); v != "" {
		cfg.Queue.Path = v
	}

	// Scale calibration
	if v := os.Getenv("WEIGHBRIDGE_WINDOW_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scale.WindowSize = n
		}
	}
	if v := os.Getenv("WEIGHBRIDGE_SPREAD_TOLERANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Scale.SpreadTolerance = f
		}
	}
	if v := os.Getenv("WEIGHBRIDGE_HYSTERESIS_TOLERANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Scale.HysteresisTolerance = f
		}
	}
	if v := os.Getenv("WEIGHBRIDGE_STICKY_TOLERANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Scale.StickyTolerance = f
		}
	}
	if v := os.Getenv("WEIGHBRIDGE_INACTIVITY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Scale.InactivityTimeout = Duration(d)
		}
	}
	if v := os.Getenv("WEIGHBRIDGE_MIN_SAMPLE_GAP"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Scale.MinSampleGap = Duration(d)
		}
	}

	// Remote
	if v := os.Getenv("WEIGHBRIDGE_REMOTE_URL"); v != "" {
		cfg.Remote.BaseURL = v
	}
	if v := os.Getenv("WEIGHBRIDGE_REMOTE_API_KEY"); v != "" {
		cfg.Remote.APIKey = v
	}
	if v := os.Getenv("WEIGHBRIDGE_UPLOAD_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Remote.UploadTimeout = Duration(d)
		}
	}
	if v := os.Getenv("WEIGHBRIDGE_REMOTE_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Remote.MaxRetries = n
		}
	}

	// Sync
	if v := os.Getenv("WEIGHBRIDGE_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.AutoInterval = Duration(d)
		}
	}
	if v := os.Getenv("WEIGHBRIDGE_SYNC_ON_SAVE"); v != "" {
		cfg.Sync.SyncOnSave = v == "true" || v == "1"
	}

	// Archive
	if v := os.Getenv("WEIGHBRIDGE_ARCHIVE_BUCKET"); v != "" {
		cfg.Archive.Bucket = v
	}
	if v := os.Getenv("WEIGHBRIDGE_S3_ENDPOINT"); v != "" {
		cfg.Archive.Endpoint = v
	}
	if v := os.Getenv("WEIGHBRIDGE_S3_REGION"); v != "" {
		cfg.Archive.Region = v
	}
	if v := os.Getenv("WEIGHBRIDGE_S3_ACCESS_KEY"); v != "" {
		cfg.Archive.AccessKey = v
	}
	if v := os.Getenv("WEIGHBRIDGE_S3_SECRET_KEY"); v != "" {
		cfg.Archive.SecretKey = v
	}
	if v := os.Getenv("WEIGHBRIDGE_S3_USE_SSL"); v != "" {
		useSSL := v == "true" || v == "1"
		cfg.Archive.UseSSL = &useSSL
	}

	// Auth
	if v := os.Getenv("WEIGHBRIDGE_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}

	// Log
	if v := os.Getenv("WEIGHBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("WEIGHBRIDGE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// validate checks that required configuration values are set and that the
// calibration values are usable. In dev mode (WEIGHBRIDGE_DEV_MODE=true)
// the API key requirement is skipped.
func (c *Config) validate() error {
	if c.Scale.WindowSize < 2 {
		return errors.New("scale.window_size must be >= 2")
	}
	if c.Scale.SpreadTolerance < 0 || c.Scale.HysteresisTolerance < 0 || c.Scale.StickyTolerance < 0 {
		return errors.New("scale tolerances must be >= 0")
	}
	if time.Duration(c.Scale.InactivityTimeout) <= 0 {
		return errors.New("scale.inactivity_timeout must be > 0")
	}
	if time.Duration(c.Scale.TickInterval) <= 0 {
		return errors.New("scale.tick_interval must be > 0")
	}

	if os.Getenv("WEIGHBRIDGE_DEV_MODE") == "true" {
		return nil
	}

	if c.Auth.APIKey == "" {
		return errors.New("WEIGHBRIDGE_API_KEY is required")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
