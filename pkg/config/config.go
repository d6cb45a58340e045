// Package config loads the YAML configuration of a schedule sweeper.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jdziat/device-schedules/pkg/core"
	"github.com/jdziat/device-schedules/pkg/storage"
)

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	// DSN is a file path for SQLite or a connection string for PostgreSQL.
	DSN string `yaml:"dsn"`
	// LogLevel drives GORM's logger: silent, error, warn or info.
	LogLevel string `yaml:"log_level"`

	MaxOpenConns    int           `yaml:"max_open_conns,omitempty"`
	MaxIdleConns    int           `yaml:"max_idle_conns,omitempty"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime,omitempty"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time,omitempty"`
}

// EngineConfig tunes materialization.
type EngineConfig struct {
	// Horizon is how far ahead executions are materialized, either relative
	// ("+5 days", "+36h") or an absolute date.
	Horizon string `yaml:"horizon"`
	// RecalculationLead is how long before the last materialized execution
	// the next pass becomes due.
	RecalculationLead time.Duration `yaml:"recalculation_lead"`
	// MaxOccurrences caps a single rule expansion.
	MaxOccurrences int `yaml:"max_occurrences"`
}

// SweeperConfig tunes the periodic sweep.
type SweeperConfig struct {
	Interval         time.Duration `yaml:"interval"`
	BatchSize        int           `yaml:"batch_size"`
	Concurrency      int           `yaml:"concurrency"`
	RatePerSecond    float64       `yaml:"rate_per_second"`
	DisableExhausted bool          `yaml:"disable_exhausted"`
	EmptyRecheck     time.Duration `yaml:"empty_recheck"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// Config is the top-level configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Sweeper  SweeperConfig  `yaml:"sweeper"`
	Log      LogConfig      `yaml:"log"`

	// Functions maps schedulable channel functions to display names.
	Functions map[int]string `yaml:"functions"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:   "sqlite",
			DSN:      "schedules.db",
			LogLevel: "silent",
		},
		Engine: EngineConfig{
			Horizon:           "+5 days",
			RecalculationLead: 2 * core.Day,
			MaxOccurrences:    10000,
		},
		Sweeper: SweeperConfig{
			Interval:         time.Minute,
			BatchSize:        100,
			Concurrency:      4,
			DisableExhausted: true,
			EmptyRecheck:     24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Functions: map[int]string{},
	}
}

// Normalize fills in missing or invalid values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" {
		c.Database.Driver = def.Database.Driver
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = def.Database.DSN
	}
	if c.Database.LogLevel == "" {
		c.Database.LogLevel = def.Database.LogLevel
	}

	if strings.TrimSpace(c.Engine.Horizon) == "" {
		c.Engine.Horizon = def.Engine.Horizon
	}
	if c.Engine.RecalculationLead < 0 {
		c.Engine.RecalculationLead = def.Engine.RecalculationLead
	}
	if c.Engine.MaxOccurrences <= 0 {
		c.Engine.MaxOccurrences = def.Engine.MaxOccurrences
	}

	if c.Sweeper.Interval <= 0 {
		c.Sweeper.Interval = def.Sweeper.Interval
	}
	if c.Sweeper.BatchSize <= 0 {
		c.Sweeper.BatchSize = def.Sweeper.BatchSize
	}
	if c.Sweeper.Concurrency <= 0 {
		c.Sweeper.Concurrency = def.Sweeper.Concurrency
	}
	if c.Sweeper.RatePerSecond < 0 {
		c.Sweeper.RatePerSecond = 0
	}
	if c.Sweeper.EmptyRecheck <= 0 {
		c.Sweeper.EmptyRecheck = def.Sweeper.EmptyRecheck
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
		c.Log.Level = strings.ToLower(c.Log.Level)
	default:
		c.Log.Level = def.Log.Level
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
		c.Log.Format = strings.ToLower(c.Log.Format)
	default:
		c.Log.Format = def.Log.Format
	}

	if c.Functions == nil {
		c.Functions = map[int]string{}
	}
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := storage.Dialector(c.StorageConfig()); err != nil {
		return fmt.Errorf("config: database: %w", err)
	}
	if _, err := c.Horizon(); err != nil {
		return fmt.Errorf("config: engine.horizon: %w", err)
	}
	return nil
}

// Horizon parses Engine.Horizon.
func (c *Config) Horizon() (core.Horizon, error) {
	return core.ParseHorizon(c.Engine.Horizon)
}

// StorageConfig returns the settings for storage.Open.
func (c *Config) StorageConfig() storage.Config {
	return storage.Config{
		Driver:   c.Database.Driver,
		DSN:      c.Database.DSN,
		LogLevel: c.Database.LogLevel,
		Pool: storage.PoolConfig{
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			ConnMaxIdleTime: c.Database.ConnMaxIdleTime,
		},
	}
}

// Level returns Log.Level as a slog level.
func (c *Config) Level() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger builds a slog.Logger writing to w per the Log section.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	return c.LoggerWithLevel(w, c.Level())
}

// LoggerWithLevel is Logger with the level supplied by the caller, typically
// a *slog.LevelVar that is updated when the file changes.
func (c *Config) LoggerWithLevel(w io.Writer, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written there with
//     0600 permissions and returned.
//   - If the file exists, it is decoded over the defaults and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	return parse(path, data)
}

// Read loads configuration from an existing YAML file without creating it.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parse(path, data)
}

func parse(path string, data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	return cfg, nil
}

// Save writes cfg to path atomically via a temp file and rename, leaving the
// file with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".schedules-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
