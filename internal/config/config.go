package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/meilisync"
	"github.com/kailas-cloud/meilisync/internal/checkpoint"
	"github.com/kailas-cloud/meilisync/internal/store"
)

// Config holds the meilisync process configuration.
type Config struct {
	Meilisearch MeilisearchConfig `yaml:"meilisearch"`
	Database    DatabaseConfig    `yaml:"database"`
	Checkpoint  CheckpointConfig  `yaml:"checkpoint"`
	HTTP        HTTPConfig        `yaml:"http"`
	Auth        AuthConfig        `yaml:"auth"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// MeilisearchConfig holds engine connection and sync behaviour.
type MeilisearchConfig struct {
	HTTPS            bool     `yaml:"https"`
	Host             string   `yaml:"host"`
	Port             int      `yaml:"port"`
	MasterKey        string   `yaml:"master_key"`
	TimeoutSec       int      `yaml:"timeout_sec"`
	ClientAgents     []string `yaml:"client_agents"`
	Debug            bool     `yaml:"debug"`
	Sync             bool     `yaml:"sync"`
	Offline          bool     `yaml:"offline"`
	DefaultBatchSize int      `yaml:"default_batch_size"`
}

// DatabaseConfig holds relational store settings.
type DatabaseConfig struct {
	Driver           string `yaml:"driver"` // sqlite, postgres, mysql (default: sqlite)
	DSN              string `yaml:"dsn"`
	LogLevel         string `yaml:"log_level"`
	SlowThresholdMs  int    `yaml:"slow_threshold_ms"`
	MaxOpenConns     int    `yaml:"max_open_conns"`
	MaxIdleConns     int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeS int    `yaml:"conn_max_lifetime_sec"`
}

// CheckpointConfig selects where bulk sync progress is stored.
// No addrs means in-memory checkpoints.
type CheckpointConfig struct {
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
	Prefix   string   `yaml:"prefix"`
	TTLHours int      `yaml:"ttl_hours"`
}

// HTTPConfig holds admin HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// AuthConfig holds admin API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"` // debug, info, warn, error (default: determined by env)
	File       string `yaml:"file"`  // rotate into this file in addition to stderr
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML, expands ${VAR} references and applies defaults.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Meilisearch.Host == "" {
		c.Meilisearch.Host = meilisync.DefaultHost
	}
	if c.Meilisearch.Port == 0 {
		c.Meilisearch.Port = meilisync.DefaultPort
	}
	if c.Meilisearch.DefaultBatchSize <= 0 {
		c.Meilisearch.DefaultBatchSize = meilisync.DefaultBatchSize
	}
	if c.Database.Driver == "" {
		c.Database.Driver = store.DriverSQLite
	}
	if c.Database.LogLevel == "" {
		c.Database.LogLevel = "warn"
	}
	if c.Checkpoint.Prefix == "" {
		c.Checkpoint.Prefix = checkpoint.DefaultPrefix
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Logging.File != "" {
		if c.Logging.MaxSizeMB <= 0 {
			c.Logging.MaxSizeMB = 100
		}
		if c.Logging.MaxBackups <= 0 {
			c.Logging.MaxBackups = 5
		}
		if c.Logging.MaxAgeDays <= 0 {
			c.Logging.MaxAgeDays = 30
		}
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.Meilisearch.Port < 1 || c.Meilisearch.Port > 65535 {
		return fmt.Errorf("meilisearch.port must be between 1 and 65535, got %d", c.Meilisearch.Port)
	}
	if c.Meilisearch.TimeoutSec < 0 {
		return fmt.Errorf("meilisearch.timeout_sec must not be negative, got %d", c.Meilisearch.TimeoutSec)
	}
	switch c.Database.Driver {
	case store.DriverSQLite, store.DriverPostgres, store.DriverMySQL:
	default:
		return fmt.Errorf("database.driver must be sqlite, postgres or mysql, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	return nil
}

// Settings converts the meilisearch section to library settings.
func (c *Config) Settings() meilisync.Settings {
	m := c.Meilisearch
	return meilisync.Settings{
		HTTPS:        m.HTTPS,
		Host:         m.Host,
		Port:         m.Port,
		MasterKey:    m.MasterKey,
		Timeout:      time.Duration(m.TimeoutSec) * time.Second,
		ClientAgents: m.ClientAgents,
		Debug:        m.Debug,
		Sync:         m.Sync,
		Offline:      m.Offline,
		BatchSize:    m.DefaultBatchSize,
	}
}

// Store converts the database section to a store config.
func (c *Config) Store() store.Config {
	d := c.Database
	return store.Config{
		Driver:          d.Driver,
		DSN:             d.DSN,
		LogLevel:        d.LogLevel,
		SlowThreshold:   time.Duration(d.SlowThresholdMs) * time.Millisecond,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: time.Duration(d.ConnMaxLifetimeS) * time.Second,
	}
}

// Redis converts the checkpoint section to a Redis config.
func (c *Config) Redis() checkpoint.RedisConfig {
	return checkpoint.RedisConfig{
		Addrs:    c.Checkpoint.Addrs,
		Password: c.Checkpoint.Password,
		Prefix:   c.Checkpoint.Prefix,
		TTL:      time.Duration(c.Checkpoint.TTLHours) * time.Hour,
	}
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
