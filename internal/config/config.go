package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the fitsync service.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Data   DataConfig   `mapstructure:"data"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Sync   SyncConfig   `mapstructure:"sync"`
	Misc   MiscConfig   `mapstructure:"misc"`
}

type ServerConfig struct {
	Port               int           `mapstructure:"port"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	ShutDownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	CORSAllowedOrigins string        `mapstructure:"cors_allowed_origins"`
}

type DataConfig struct {
	// StorePath is the bbolt database file. Empty means memory-only
	// (nothing survives a restart; useful for tests and dry runs).
	StorePath string `mapstructure:"store_path"`
	// RulesPath optionally points at a JSON file with cache
	// classification rules. Empty means built-in defaults.
	RulesPath string `mapstructure:"rules_path"`
}

type CacheConfig struct {
	// Versions maps partition names to their current generation.
	// Bumping a number here supersedes that partition on next start.
	Versions     map[string]int `mapstructure:"versions"`
	FetchTimeout time.Duration  `mapstructure:"fetch_timeout"`
	// Upstream is the origin server assets are fetched from.
	Upstream string `mapstructure:"upstream"`
}

type SyncConfig struct {
	// Endpoint receives batched telemetry events.
	Endpoint       string        `mapstructure:"endpoint"`
	BatchSize      int           `mapstructure:"batch_size"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	FlushBase      time.Duration `mapstructure:"flush_base"`
	FlushCeiling   time.Duration `mapstructure:"flush_ceiling"`
	DeadLetterCap  int           `mapstructure:"dead_letter_cap"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type MiscConfig struct {
	GinMode  string `mapstructure:"gin_mode"`
	LogLevel string `mapstructure:"log_level"`
}

// LoadConfig reads configuration from ./config/config.yaml (if present),
// with FITSYNC_* environment variables overriding file values.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	// Defaults to allow running without a config file
	viper.SetDefault("server.port", 8090)
	viper.SetDefault("server.read_timeout", 10*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)
	viper.SetDefault("server.idle_timeout", 120*time.Second)
	viper.SetDefault("server.shutdown_timeout", 5*time.Second)
	viper.SetDefault("server.request_timeout", 15*time.Second)
	viper.SetDefault("server.cors_allowed_origins", "*")
	viper.SetDefault("data.store_path", "./data/fitsync.db")
	viper.SetDefault("data.rules_path", "")
	viper.SetDefault("cache.fetch_timeout", 20*time.Second)
	viper.SetDefault("cache.upstream", "")
	viper.SetDefault("cache.versions", map[string]int{})
	viper.SetDefault("sync.endpoint", "")
	viper.SetDefault("sync.batch_size", 20)
	viper.SetDefault("sync.max_attempts", 8)
	viper.SetDefault("sync.flush_base", 30*time.Second)
	viper.SetDefault("sync.flush_ceiling", 15*time.Minute)
	viper.SetDefault("sync.dead_letter_cap", 100)
	viper.SetDefault("sync.request_timeout", 15*time.Second)
	viper.SetDefault("misc.gin_mode", "release")
	viper.SetDefault("misc.log_level", "info")

	// Environment variables like FITSYNC_SERVER_PORT override everything
	viper.SetEnvPrefix("FITSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// No config file found: defaults and env vars are enough
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return errors.New("server timeouts must be positive")
	}
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync batch size must be positive, got %d", c.Sync.BatchSize)
	}
	if c.Sync.MaxAttempts <= 0 {
		return fmt.Errorf("sync max attempts must be positive, got %d", c.Sync.MaxAttempts)
	}
	if c.Sync.FlushBase <= 0 || c.Sync.FlushCeiling < c.Sync.FlushBase {
		return errors.New("sync flush intervals must satisfy 0 < base <= ceiling")
	}
	if c.Sync.DeadLetterCap <= 0 {
		return fmt.Errorf("sync dead letter cap must be positive, got %d", c.Sync.DeadLetterCap)
	}
	for name, version := range c.Cache.Versions {
		if version < 1 {
			return fmt.Errorf("cache partition %q version must be >= 1, got %d", name, version)
		}
	}
	return nil
}
