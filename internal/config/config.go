// Package config loads and validates gateway configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Backend BackendConfig `mapstructure:"backend"`
	Observe ObserveConfig `mapstructure:"observe"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// BackendConfig locates the analysis backend.
type BackendConfig struct {
	BaseURL               string `mapstructure:"base_url"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
}

// ObserveConfig selects and tunes the status transport.
type ObserveConfig struct {
	// Mode is "poll" or "stream".
	Mode                string `mapstructure:"mode"`
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds"`
	FailureThreshold    int    `mapstructure:"failure_threshold"`
}

// CacheConfig selects the artifact cache provider.
type CacheConfig struct {
	// Provider is one of "memory", "redis", "gcs", or "none".
	Provider   string      `mapstructure:"provider"`
	TTLSeconds int         `mapstructure:"ttl_seconds"`
	Redis      RedisConfig `mapstructure:"redis"`
	GCS        GCSConfig   `mapstructure:"gcs"`
}

// RedisConfig holds connection details for the redis cache provider.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// GCSConfig holds bucket details for the GCS cache provider.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// NotifyConfig configures terminal-event publishing.
type NotifyConfig struct {
	// Provider is one of "none", "memory", or "pubsub".
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GATEWAY")
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
	v.SetDefault("backend.base_url", "http://localhost:8000/api/v1")
	v.SetDefault("backend.request_timeout_seconds", 10)
	v.SetDefault("observe.mode", "poll")
	v.SetDefault("observe.poll_interval_seconds", 5)
	v.SetDefault("observe.failure_threshold", 3)
	v.SetDefault("cache.provider", "memory")
	v.SetDefault("cache.ttl_seconds", 3600)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("notify.provider", "none")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url must be set")
	}
	if c.Backend.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("backend.request_timeout_seconds must be > 0")
	}
	switch c.Observe.Mode {
	case "poll", "stream":
	default:
		return fmt.Errorf("observe.mode must be poll or stream, got %q", c.Observe.Mode)
	}
	if c.Observe.PollIntervalSeconds <= 0 {
		return fmt.Errorf("observe.poll_interval_seconds must be > 0")
	}
	if c.Observe.FailureThreshold <= 0 {
		return fmt.Errorf("observe.failure_threshold must be > 0")
	}
	switch c.Cache.Provider {
	case "memory", "redis", "gcs", "none":
	default:
		return fmt.Errorf("cache.provider must be memory, redis, gcs, or none, got %q", c.Cache.Provider)
	}
	if c.Cache.Provider != "none" && c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache.ttl_seconds must be > 0")
	}
	if c.Cache.Provider == "gcs" && c.Cache.GCS.Bucket == "" {
		return fmt.Errorf("cache.gcs.bucket must be set when cache.provider is gcs")
	}
	switch c.Notify.Provider {
	case "none", "memory", "pubsub":
	default:
		return fmt.Errorf("notify.provider must be none, memory, or pubsub, got %q", c.Notify.Provider)
	}
	if c.Notify.Provider == "pubsub" && (c.Notify.ProjectID == "" || c.Notify.Topic == "") {
		return fmt.Errorf("notify.project_id and notify.topic must be set when notify.provider is pubsub")
	}
	return nil
}

// RequestTimeout returns the backend timeout as a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Backend.RequestTimeoutSeconds) * time.Second
}

// PollInterval returns the poll cadence as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Observe.PollIntervalSeconds) * time.Second
}

// CacheTTL returns the artifact cache lifetime as a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}
