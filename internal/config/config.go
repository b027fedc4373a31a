package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration. Values come from splitd.yaml
// with SPLITD_* environment overrides; every knob has a default so the
// service starts with no file at all.
type Config struct {
	Server struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`

	Reasoning struct {
		BaseURL        string  `mapstructure:"base_url"`
		TimeoutSeconds int     `mapstructure:"timeout_seconds"`
		RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
		RateBurst      int     `mapstructure:"rate_burst"`
		Breaker        struct {
			FailureThreshold int `mapstructure:"failure_threshold"`
			SuccessThreshold int `mapstructure:"success_threshold"`
			HalfOpenRequests int `mapstructure:"half_open_requests"`
			ResetTimeoutMs   int `mapstructure:"reset_timeout_ms"`
			IntervalMs       int `mapstructure:"interval_ms"`
		} `mapstructure:"circuit_breaker"`
	} `mapstructure:"reasoning"`

	Policy struct {
		AtomicMinMinutes   int `mapstructure:"atomic_min_minutes"`
		AtomicMaxMinutes   int `mapstructure:"atomic_max_minutes"`
		MaxEstimateMinutes int `mapstructure:"max_estimate_minutes"`
		SimpleMaxFanout    int `mapstructure:"simple_max_fanout"`
		MaxFanout          int `mapstructure:"max_fanout"`
		StubDefaultMinutes int `mapstructure:"stub_default_minutes"`
	} `mapstructure:"policy"`

	Storage struct {
		Backend string `mapstructure:"backend"` // redis | postgres | sqlite
		Redis   struct {
			Addr     string `mapstructure:"addr"`
			Password string `mapstructure:"password"`
			TTLHours int    `mapstructure:"ttl_hours"`
		} `mapstructure:"redis"`
		Postgres struct {
			Host     string `mapstructure:"host"`
			Port     int    `mapstructure:"port"`
			User     string `mapstructure:"user"`
			Password string `mapstructure:"password"`
			Database string `mapstructure:"database"`
			SSLMode  string `mapstructure:"sslmode"`
		} `mapstructure:"postgres"`
		SQLite struct {
			Path string `mapstructure:"path"`
		} `mapstructure:"sqlite"`
	} `mapstructure:"storage"`

	Streaming struct {
		RingCapacity int `mapstructure:"ring_capacity"`
	} `mapstructure:"streaming"`

	Classifier struct {
		KeywordsPath string `mapstructure:"keywords_path"`
	} `mapstructure:"classifier"`

	Expansion struct {
		JobTimeoutSeconds int `mapstructure:"job_timeout_seconds"`
	} `mapstructure:"expansion"`
}

// Load reads the config file at path (or $CONFIG_PATH when path is empty)
// and merges env overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("SPLITD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, statErr := os.Stat(path); statErr == nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)

	v.SetDefault("reasoning.base_url", "http://reasoning:8000")
	v.SetDefault("reasoning.timeout_seconds", 30)
	v.SetDefault("reasoning.rate_limit_rps", 0)
	v.SetDefault("reasoning.rate_burst", 1)
	v.SetDefault("reasoning.circuit_breaker.failure_threshold", 5)
	v.SetDefault("reasoning.circuit_breaker.success_threshold", 2)
	v.SetDefault("reasoning.circuit_breaker.half_open_requests", 3)
	v.SetDefault("reasoning.circuit_breaker.reset_timeout_ms", 30000)
	v.SetDefault("reasoning.circuit_breaker.interval_ms", 60000)

	v.SetDefault("policy.atomic_min_minutes", 2)
	v.SetDefault("policy.atomic_max_minutes", 5)
	v.SetDefault("policy.max_estimate_minutes", 480)
	v.SetDefault("policy.simple_max_fanout", 2)
	v.SetDefault("policy.max_fanout", 7)
	v.SetDefault("policy.stub_default_minutes", 15)

	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.ttl_hours", 0)
	v.SetDefault("storage.postgres.host", "localhost")
	v.SetDefault("storage.postgres.port", 5432)
	v.SetDefault("storage.postgres.user", "splitd")
	v.SetDefault("storage.postgres.database", "splitd")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.sqlite.path", "splitd.db")

	v.SetDefault("streaming.ring_capacity", 64)
	v.SetDefault("classifier.keywords_path", "")
	v.SetDefault("expansion.job_timeout_seconds", 60)
}

// ReasoningTimeout returns the reasoning call timeout as a duration.
func (c *Config) ReasoningTimeout() time.Duration {
	return time.Duration(c.Reasoning.TimeoutSeconds) * time.Second
}

// JobTimeout returns the end-to-end time limit for one expansion job.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Expansion.JobTimeoutSeconds) * time.Second
}
