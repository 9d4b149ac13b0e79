// Package config provides CLI configuration management for the airtime
// command-line tool. It supports loading configuration from YAML files,
// environment variables, and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// OutputFormat defines the supported output formats for CLI results.
type OutputFormat string

const (
	// OutputFormatText is human-readable plain text output.
	OutputFormatText OutputFormat = "text"
	// OutputFormatJSON is JSON-formatted output for machine processing.
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML is YAML-formatted output for machine processing.
	OutputFormatYAML OutputFormat = "yaml"
)

// Default configuration values.
const (
	DefaultRedisAddress = "localhost:6379"
	DefaultTickInterval = 100 * time.Millisecond
	DefaultOutputFormat = OutputFormatText
	DefaultConfigDir    = ".airtime"
	DefaultConfigFile   = "config.yaml"
	DefaultDataDirName  = "data"
)

// RedisConfig holds the connection settings for the message channel and
// the optional redis-backed store. The password is not stored here; it
// lives encrypted in the credentials file.
type RedisConfig struct {
	// Address is the redis server address (host:port).
	Address string `yaml:"address"`

	// DB is the redis database number.
	DB int `yaml:"db,omitempty"`

	// Username is the redis ACL username, if the server requires one.
	Username string `yaml:"username,omitempty"`
}

// CLIConfig holds the CLI configuration settings.
type CLIConfig struct {
	// DataDir is where meeting records and the event journal are kept.
	// Supports ~ for home directory expansion.
	DataDir string `yaml:"data_dir"`

	// Redis holds the message-channel connection settings.
	Redis RedisConfig `yaml:"redis"`

	// UseRedisStore persists meeting records in redis instead of the
	// local data directory.
	UseRedisStore bool `yaml:"use_redis_store,omitempty"`

	// TickInterval is the timer display refresh cadence.
	TickInterval time.Duration `yaml:"tick_interval"`

	// OutputFormat specifies the default output format for commands.
	OutputFormat OutputFormat `yaml:"output_format"`

	// Journal enables the per-meeting JSONL event journal in DataDir.
	Journal bool `yaml:"journal,omitempty"`

	// MetricsAddress exposes a Prometheus scrape endpoint on meeting run
	// when non-empty (host:port).
	MetricsAddress string `yaml:"metrics_address,omitempty"`

	// Debug enables verbose debug logging.
	Debug bool `yaml:"debug,omitempty"`
}

// DefaultConfig returns a CLIConfig with default values.
func DefaultConfig() *CLIConfig {
	return &CLIConfig{
		Redis:        RedisConfig{Address: DefaultRedisAddress},
		TickInterval: DefaultTickInterval,
		OutputFormat: DefaultOutputFormat,
	}
}

// ConfigDir returns the configuration directory path.
// Uses $AIRTIME_CONFIG_DIR if set, otherwise ~/.airtime
func ConfigDir() (string, error) {
	if dir := os.Getenv("AIRTIME_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads the CLI configuration from file and environment variables.
// Configuration is loaded in this order (later sources override earlier):
// 1. Default values
// 2. Config file (~/.airtime/config.yaml or $AIRTIME_CONFIG_DIR/config.yaml)
// 3. Environment variables (AIRTIME_DATA_DIR, AIRTIME_REDIS_ADDRESS, ...)
func LoadConfig() (*CLIConfig, error) {
	cfg := DefaultConfig()

	configPath, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *CLIConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	// We need a temp struct for unmarshaling duration as string.
	type configFile struct {
		DataDir        string       `yaml:"data_dir"`
		Redis          RedisConfig  `yaml:"redis"`
		UseRedisStore  bool         `yaml:"use_redis_store"`
		TickInterval   string       `yaml:"tick_interval"`
		OutputFormat   OutputFormat `yaml:"output_format"`
		Journal        bool         `yaml:"journal"`
		MetricsAddress string       `yaml:"metrics_address"`
		Debug          bool         `yaml:"debug"`
	}

	var fileCfg configFile
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if fileCfg.DataDir != "" {
		cfg.DataDir = fileCfg.DataDir
	}
	if fileCfg.Redis.Address != "" {
		cfg.Redis.Address = fileCfg.Redis.Address
	}
	if fileCfg.Redis.DB != 0 {
		cfg.Redis.DB = fileCfg.Redis.DB
	}
	if fileCfg.Redis.Username != "" {
		cfg.Redis.Username = fileCfg.Redis.Username
	}
	if fileCfg.TickInterval != "" {
		tick, err := time.ParseDuration(fileCfg.TickInterval)
		if err != nil {
			return fmt.Errorf("parsing tick_interval: %w", err)
		}
		cfg.TickInterval = tick
	}
	if fileCfg.OutputFormat != "" {
		cfg.OutputFormat = fileCfg.OutputFormat
	}
	if fileCfg.MetricsAddress != "" {
		cfg.MetricsAddress = fileCfg.MetricsAddress
	}
	cfg.UseRedisStore = fileCfg.UseRedisStore
	cfg.Journal = fileCfg.Journal
	cfg.Debug = fileCfg.Debug

	return nil
}

// loadFromEnv overlays environment variables onto the configuration.
func loadFromEnv(cfg *CLIConfig) {
	if v := os.Getenv("AIRTIME_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv("AIRTIME_REDIS_ADDRESS"); v != "" {
		cfg.Redis.Address = v
	}

	if v := os.Getenv("AIRTIME_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}

	if v := os.Getenv("AIRTIME_REDIS_USERNAME"); v != "" {
		cfg.Redis.Username = v
	}

	if v := os.Getenv("AIRTIME_USE_REDIS_STORE"); v == "true" || v == "1" {
		cfg.UseRedisStore = true
	}

	if v := os.Getenv("AIRTIME_TICK_INTERVAL"); v != "" {
		if tick, err := time.ParseDuration(v); err == nil {
			cfg.TickInterval = tick
		}
	}

	if v := os.Getenv("AIRTIME_OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = OutputFormat(v)
	}

	if v := os.Getenv("AIRTIME_JOURNAL"); v == "true" || v == "1" {
		cfg.Journal = true
	}

	if v := os.Getenv("AIRTIME_METRICS_ADDRESS"); v != "" {
		cfg.MetricsAddress = v
	}

	if v := os.Getenv("AIRTIME_DEBUG"); v == "true" || v == "1" {
		cfg.Debug = true
	}
}

// Validate checks that the configuration is valid.
func (c *CLIConfig) Validate() error {
	if c.Redis.Address == "" {
		return fmt.Errorf("redis.address is required")
	}

	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive")
	}

	if !c.OutputFormat.IsValid() {
		return fmt.Errorf("invalid output_format: %q (must be text, json, or yaml)", c.OutputFormat)
	}

	return nil
}

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatText, OutputFormatJSON, OutputFormatYAML:
		return true
	default:
		return false
	}
}

// String returns the string representation of the output format.
func (f OutputFormat) String() string {
	return string(f)
}

// SaveConfig saves the configuration to the config file.
func SaveConfig(cfg *CLIConfig) error {
	configDir, err := ConfigDir()
	if err != nil {
		return fmt.Errorf("getting config directory: %w", err)
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(configDir, DefaultConfigFile)

	// Convert to YAML-friendly format with duration as string.
	type configFile struct {
		DataDir        string       `yaml:"data_dir,omitempty"`
		Redis          RedisConfig  `yaml:"redis"`
		UseRedisStore  bool         `yaml:"use_redis_store,omitempty"`
		TickInterval   string       `yaml:"tick_interval"`
		OutputFormat   OutputFormat `yaml:"output_format"`
		Journal        bool         `yaml:"journal,omitempty"`
		MetricsAddress string       `yaml:"metrics_address,omitempty"`
		Debug          bool         `yaml:"debug,omitempty"`
	}

	fileCfg := configFile{
		DataDir:        cfg.DataDir,
		Redis:          cfg.Redis,
		UseRedisStore:  cfg.UseRedisStore,
		TickInterval:   cfg.TickInterval.String(),
		OutputFormat:   cfg.OutputFormat,
		Journal:        cfg.Journal,
		MetricsAddress: cfg.MetricsAddress,
		Debug:          cfg.Debug,
	}

	data, err := yaml.Marshal(&fileCfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// GetDataDir returns the expanded data directory, defaulting to a data
// subdirectory of the config dir.
func (c *CLIConfig) GetDataDir() (string, error) {
	if c.DataDir != "" {
		return ExpandPath(c.DataDir)
	}

	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultDataDirName), nil
}
