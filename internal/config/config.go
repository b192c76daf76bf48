// Package config loads agrolink-core settings from defaults, a TOML file,
// an optional .env file and AGROLINK_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "AGROLINK_"

// Storage backends
const (
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config is the full agrolink-core configuration.
type Config struct {
	Storage   StorageConfig   `toml:"storage" envPrefix:"STORAGE_"`
	Sync      SyncConfig      `toml:"sync" envPrefix:"SYNC_"`
	Analytics AnalyticsConfig `toml:"analytics" envPrefix:"ANALYTICS_"`
	Server    ServerConfig    `toml:"server" envPrefix:"SERVER_"`
	Security  SecurityConfig  `toml:"security" envPrefix:"SECURITY_"`
	Log       LogConfig       `toml:"log" envPrefix:"LOG_"`
}

// StorageConfig selects the key-value backend.
type StorageConfig struct {
	Backend     string `toml:"backend" env:"BACKEND"`
	SQLitePath  string `toml:"sqlite_path" env:"SQLITE_PATH"`
	RedisURL    string `toml:"redis_url" env:"REDIS_URL"`
	DatabaseURL string `toml:"database_url" env:"DATABASE_URL"`
	Namespace   string `toml:"namespace" env:"NAMESPACE"`
}

// SyncConfig tunes the queue processor and the drain worker.
type SyncConfig struct {
	MaxRetries   int           `toml:"max_retries" env:"MAX_RETRIES"`
	ItemTimeout  time.Duration `toml:"item_timeout" env:"ITEM_TIMEOUT"`
	Schedule     string        `toml:"schedule" env:"SCHEDULE"`
	LockTTL      time.Duration `toml:"lock_ttl" env:"LOCK_TTL"`
	LockRequired bool          `toml:"lock_required" env:"LOCK_REQUIRED"`
}

// AnalyticsConfig caps the analytics log.
type AnalyticsConfig struct {
	MaxEvents   int    `toml:"max_events" env:"MAX_EVENTS"`
	MaxSessions int    `toml:"max_sessions" env:"MAX_SESSIONS"`
	Platform    string `toml:"platform" env:"PLATFORM"`
	AppVersion  string `toml:"app_version" env:"APP_VERSION"`
}

// ServerConfig configures the local HTTP API.
type ServerConfig struct {
	Host           string   `toml:"host" env:"HOST"`
	Port           int      `toml:"port" env:"PORT"`
	AllowedOrigins []string `toml:"allowed_origins" env:"ALLOWED_ORIGINS"`
}

// SecurityConfig holds secrets. Neither is written by Save.
type SecurityConfig struct {
	// EncryptionKey seals the cloud API key at rest. Empty stores it in plaintext.
	EncryptionKey string `toml:"encryption_key" env:"ENCRYPTION_KEY"`

	// JWTSecret signs local API tokens. Empty disables API authentication,
	// which is only allowed on a loopback address.
	JWTSecret string `toml:"jwt_secret" env:"JWT_SECRET"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `toml:"level" env:"LEVEL"`
	Format string `toml:"format" env:"FORMAT"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:    BackendSQLite,
			SQLitePath: filepath.Join(DataDir(), "agrolink.db"),
			Namespace:  "agrolink",
		},
		Sync: SyncConfig{
			MaxRetries: 5,
			Schedule:   "@every 5m",
			LockTTL:    2 * time.Minute,
		},
		Analytics: AnalyticsConfig{
			MaxEvents:   1000,
			MaxSessions: 50,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8787,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DataDir is where the SQLite database lives by default.
func DataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "agrolink")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "agrolink")
	}
	return "."
}

// ConfigPath returns the default config file location,
// overridable with AGROLINK_CONFIG.
func ConfigPath() string {
	if p := os.Getenv(EnvPrefix + "CONFIG"); p != "" {
		return p
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "agrolink", "config.toml")
	}
	return "agrolink.toml"
}

// Options controls where Load reads from.
type Options struct {
	// Path is the TOML file. A missing file is not an error.
	Path string

	// EnvFile is loaded into the process environment before overrides are
	// applied. Variables already set win. A missing file is not an error.
	EnvFile string
}

// Load builds the configuration: defaults, then the TOML file, then the
// .env file, then AGROLINK_* variables. The result is validated.
func Load(opts Options) (*Config, error) {
	cfg := DefaultConfig()

	if opts.Path != "" {
		if err := cfg.decodeFile(opts.Path); err != nil {
			return nil, err
		}
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", opts.EnvFile, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) decodeFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("decode %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required for the sqlite backend"))
		}
	case BackendRedis:
		if c.Storage.RedisURL == "" {
			errs = append(errs, errors.New("storage.redis_url is required for the redis backend"))
		}
	case BackendPostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("storage.database_url is required for the postgres backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q must be one of sqlite, redis, postgres, memory", c.Storage.Backend))
	}
	if c.Storage.Namespace == "" {
		errs = append(errs, errors.New("storage.namespace is required"))
	}

	if c.Sync.ItemTimeout < 0 {
		errs = append(errs, errors.New("sync.item_timeout must not be negative"))
	}
	if _, err := cron.ParseStandard(c.Sync.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("sync.schedule %q: %w", c.Sync.Schedule, err))
	}
	if c.Sync.LockTTL <= 0 {
		errs = append(errs, errors.New("sync.lock_ttl must be positive"))
	}

	if c.Analytics.MaxEvents <= 0 {
		errs = append(errs, errors.New("analytics.max_events must be positive"))
	}
	if c.Analytics.MaxSessions <= 0 {
		errs = append(errs, errors.New("analytics.max_sessions must be positive"))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if c.Security.JWTSecret == "" && !isLoopback(c.Server.Host) {
		errs = append(errs, fmt.Errorf("security.jwt_secret is required to serve on %q", c.Server.Host))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q must be one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}

	return errors.Join(errs...)
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Save writes the configuration as TOML, creating parent directories.
// Secrets are never written.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	out := *c
	out.Security = SecurityConfig{}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create config: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(out); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
