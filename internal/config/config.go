// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Signing   SigningConfig   `mapstructure:"signing"`
	Recovery  RecoveryConfig  `mapstructure:"recovery"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SchedulerConfig sets run defaults applied when a submission leaves a knob
// unset. A non-zero rate_window_ms makes the sliding window the default
// admission discipline instead of the token bucket.
type SchedulerConfig struct {
	Concurrency      int     `mapstructure:"concurrency"`
	RatePerSec       float64 `mapstructure:"rate_per_sec"`
	Burst            int     `mapstructure:"burst"`
	RateWindowMs     int     `mapstructure:"rate_window_ms"`
	WindowLimit      int     `mapstructure:"window_limit"`
	MaxRetries       int     `mapstructure:"max_retries"`
	BackoffInitialMs int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int     `mapstructure:"backoff_max_ms"`
	RateTimeoutSec   int     `mapstructure:"rate_timeout_seconds"`
}

// HTTPConfig configures the outbound request executor.
type HTTPConfig struct {
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	UserAgent      string   `mapstructure:"user_agent"`
	Proxies        []string `mapstructure:"proxies"`
}

// SigningConfig governs the signature subsystem: static credentials plus the
// signature cache backend.
type SigningConfig struct {
	Credentials   map[string]string `mapstructure:"credentials"`
	CacheBackend  string            `mapstructure:"cache_backend"`
	CacheCapacity int               `mapstructure:"cache_capacity"`
	CacheTTLSec   int               `mapstructure:"cache_ttl_seconds"`
	Redis         RedisConfig       `mapstructure:"redis"`
}

// RedisConfig holds connection settings for the Redis signature cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RecoveryConfig controls the fault recovery engine and its history store.
type RecoveryConfig struct {
	HistoryBackend string  `mapstructure:"history_backend"`
	PostgresDSN    string  `mapstructure:"postgres_dsn"`
	HistoryTable   string  `mapstructure:"history_table"`
	RateFloor      float64 `mapstructure:"rate_floor"`
}

// PubSubConfig holds metadata for run completion notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig selects log level and zap development features.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("QUILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("scheduler.concurrency", 4)
	v.SetDefault("scheduler.rate_per_sec", 5.0)
	v.SetDefault("scheduler.burst", 1)
	v.SetDefault("scheduler.max_retries", 2)
	v.SetDefault("scheduler.backoff_initial_ms", 250)
	v.SetDefault("scheduler.backoff_max_ms", 10000)
	v.SetDefault("scheduler.rate_timeout_seconds", 30)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.user_agent", "quill/0.1")
	v.SetDefault("signing.cache_backend", "memory")
	v.SetDefault("signing.cache_capacity", 1024)
	v.SetDefault("signing.cache_ttl_seconds", 30)
	v.SetDefault("signing.redis.addr", "localhost:6379")
	v.SetDefault("recovery.history_backend", "memory")
	v.SetDefault("recovery.history_table", "recovery_outcomes")
	v.SetDefault("recovery.rate_floor", 0.25)
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scheduler.Concurrency <= 0 {
		return fmt.Errorf("scheduler.concurrency must be > 0")
	}
	if c.Scheduler.RateWindowMs > 0 && c.Scheduler.WindowLimit <= 0 {
		return fmt.Errorf("scheduler.window_limit must be > 0 when scheduler.rate_window_ms is set")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	switch c.Signing.CacheBackend {
	case "memory":
		if c.Signing.CacheCapacity <= 0 {
			return fmt.Errorf("signing.cache_capacity must be > 0")
		}
	case "redis":
		if c.Signing.Redis.Addr == "" {
			return fmt.Errorf("signing.redis.addr must be set for the redis cache backend")
		}
	default:
		return fmt.Errorf("signing.cache_backend must be memory or redis, got %q", c.Signing.CacheBackend)
	}
	switch c.Recovery.HistoryBackend {
	case "memory":
	case "postgres":
		if c.Recovery.PostgresDSN == "" {
			return fmt.Errorf("recovery.postgres_dsn must be set for the postgres history backend")
		}
	default:
		return fmt.Errorf("recovery.history_backend must be memory or postgres, got %q", c.Recovery.HistoryBackend)
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// HTTPTimeout converts the executor timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RateWindow converts the sliding-window horizon into a duration. Zero means
// the token bucket discipline.
func (c Config) RateWindow() time.Duration {
	return time.Duration(c.Scheduler.RateWindowMs) * time.Millisecond
}

// BaseBackoff converts the initial backoff into a duration.
func (c Config) BaseBackoff() time.Duration {
	return time.Duration(c.Scheduler.BackoffInitialMs) * time.Millisecond
}

// MaxBackoff converts the backoff cap into a duration.
func (c Config) MaxBackoff() time.Duration {
	return time.Duration(c.Scheduler.BackoffMaxMs) * time.Millisecond
}

// CacheTTL converts the signature cache TTL into a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Signing.CacheTTLSec) * time.Second
}
