// Package config loads the substrate's configuration from a YAML file and
// the environment, following the teacher's viper-based layering: defaults,
// then file, then environment, with four Redis fields singled out for
// explicit env-var override regardless of what key naming the file uses
// (spec §6).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/reactorcore/substrate/internal/scheduler"
)

// Config is the root configuration object, unmarshalled by viper per spec §6.
type Config struct {
	Env         string        `mapstructure:"env"`
	Application Application   `mapstructure:"application"`
	Events      EventsConfig  `mapstructure:"events"`
	Cron        CronConfig    `mapstructure:"cron"`
	Jobs        JobsConfig    `mapstructure:"jobs"`
	Cache       CacheConfig   `mapstructure:"cache"`
	Redis       RedisConfig   `mapstructure:"redis"`
	Log         LogConfig     `mapstructure:"log"`
}

// Application holds the minimal HTTP surface (§0: a /healthz endpoint).
type Application struct {
	Port int `mapstructure:"port"`
}

// EventsConfig controls the Event Store's backend and poll cadence.
type EventsConfig struct {
	Backend         string        `mapstructure:"backend"` // "redis" | "null" | "immediate"
	PollingInterval time.Duration `mapstructure:"polling_interval"`
}

// CronConfig controls the Scheduler's backend, tick cadence, and static
// cron table.
type CronConfig struct {
	Backend         string            `mapstructure:"backend"` // "redis" | "null"
	PollingInterval time.Duration     `mapstructure:"polling_interval"`
	Tasks           []scheduler.Task  `mapstructure:"tasks"`
}

// JobsConfig controls the Job Dispatcher's backend.
type JobsConfig struct {
	Backend   string `mapstructure:"backend"` // "queue" | "immediate"
	Workers   int    `mapstructure:"workers"`
	QueueSize int    `mapstructure:"queue_size"`
}

// CacheConfig controls the Cache component's backend and default TTL.
type CacheConfig struct {
	Backend        string `mapstructure:"backend"` // "redis" | "memory" | "null"
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

func (c CacheConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RedisConfig is the external store connection. Host/Port/DB/Timeout are
// exactly the four fields spec §6 requires REDIS_HOST/REDIS_PORT/REDIS_DB/
// REDIS_TIMEOUT to be able to override regardless of file configuration.
type RedisConfig struct {
	Host    string        `mapstructure:"host"`
	Port    int           `mapstructure:"port"`
	DB      int           `mapstructure:"db"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LogConfig mirrors the teacher's logging configuration (pkg/logger),
// carried as ambient stack regardless of the spec's feature scope (§10).
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// Load reads configuration from configPath (if non-empty) layered over
// defaults, then applies environment overrides. Mirrors the teacher's
// LoadConfig/setDefaults split (internal/config/config.go).
func Load(configPath string) (*Config, error) {
	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindRedisEnv()

	if configPath != "" {
		viper.SetConfigFile(configPath)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config: failed to read %s: %w", configPath, err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return &cfg, nil
}

// bindRedisEnv gives REDIS_HOST/REDIS_PORT/REDIS_DB/REDIS_TIMEOUT explicit
// precedence over the file's redis.* keys, per spec §6 — AutomaticEnv alone
// only wins when the file doesn't set the key, which is not what "override"
// means here.
func bindRedisEnv() {
	_ = viper.BindEnv("redis.host", "REDIS_HOST")
	_ = viper.BindEnv("redis.port", "REDIS_PORT")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("redis.timeout", "REDIS_TIMEOUT")
}

func setDefaults() {
	viper.SetDefault("env", "development")

	viper.SetDefault("application.port", 8080)

	viper.SetDefault("events.backend", "redis")
	viper.SetDefault("events.polling_interval", "1s")

	viper.SetDefault("cron.backend", "redis")
	viper.SetDefault("cron.polling_interval", "30s")

	viper.SetDefault("jobs.backend", "queue")
	viper.SetDefault("jobs.workers", 4)
	viper.SetDefault("jobs.queue_size", 256)

	viper.SetDefault("cache.backend", "redis")
	viper.SetDefault("cache.timeout_seconds", 3600)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.timeout", "5s")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)
}

// Validate rejects configuration combinations that can never produce a
// working substrate.
func (c *Config) Validate() error {
	if c.Application.Port <= 0 || c.Application.Port > 65535 {
		return fmt.Errorf("invalid application.port: %d", c.Application.Port)
	}
	if c.Events.PollingInterval <= 0 {
		return fmt.Errorf("events.polling_interval must be positive")
	}
	if c.Cron.PollingInterval <= 0 {
		return fmt.Errorf("cron.polling_interval must be positive")
	}
	switch c.Events.Backend {
	case "redis", "null", "immediate":
	default:
		return fmt.Errorf("invalid events.backend: %q", c.Events.Backend)
	}
	switch c.Cron.Backend {
	case "redis", "null":
	default:
		return fmt.Errorf("invalid cron.backend: %q", c.Cron.Backend)
	}
	switch c.Jobs.Backend {
	case "queue", "immediate":
	default:
		return fmt.Errorf("invalid jobs.backend: %q", c.Jobs.Backend)
	}
	switch c.Cache.Backend {
	case "redis", "memory", "null":
	default:
		return fmt.Errorf("invalid cache.backend: %q", c.Cache.Backend)
	}
	return nil
}

// IsProduction reports whether env is "production". The logger's level and
// format come from the log section alone; env does not change them.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
