package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Roles a server process can run as.
const (
	RoleWorker = "worker"
	RoleFront  = "front"
)

// Default listen ports per role.
const (
	DefaultWorkerPort = "8001"
	DefaultFrontPort  = "8000"
)

// ServerConfig holds all configuration for the server.
// Tags use mapstructure for Viper unmarshalling.
type ServerConfig struct {
	Role        string `mapstructure:"role"`
	HTTPPort    string `mapstructure:"http_port"`
	ServiceName string `mapstructure:"service_name"`

	Log struct {
		Level  string `mapstructure:"level"`
		Pretty bool   `mapstructure:"pretty"`
	} `mapstructure:"log"`

	Store struct {
		Kind string `mapstructure:"kind"` // redis or memory
	} `mapstructure:"store"`

	Redis struct {
		Addr      string        `mapstructure:"addr"`
		Password  string        `mapstructure:"password"`
		DB        int           `mapstructure:"db"`
		OpTimeout time.Duration `mapstructure:"op_timeout"`
	} `mapstructure:"redis"`

	Session struct {
		TTL       time.Duration `mapstructure:"ttl"`
		KeyPrefix string        `mapstructure:"key_prefix"`
		SealKey   string        `mapstructure:"seal_key"` // hex, 32 bytes
	} `mapstructure:"session"`

	Broker struct {
		Kind     string        `mapstructure:"kind"` // neo or fake
		LoginURL string        `mapstructure:"login_url"`
		Timeout  time.Duration `mapstructure:"timeout"`
	} `mapstructure:"broker"`

	Worker struct {
		URL     string        `mapstructure:"url"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"worker"`

	RateLimit struct {
		ValidateRPS   float64 `mapstructure:"validate_rps"`
		ValidateBurst int     `mapstructure:"validate_burst"`
	} `mapstructure:"ratelimit"`

	Tracing struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"tracing"`
}

// SealKeyBytes decodes the optional session seal key.
func (c *ServerConfig) SealKeyBytes() ([]byte, error) {
	if c.Session.SealKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.Session.SealKey)
	if err != nil {
		return nil, fmt.Errorf("session.seal_key is not hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("session.seal_key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

// Validate checks settings that have no usable default.
func (c *ServerConfig) Validate() error {
	switch c.Role {
	case RoleWorker:
		if c.Store.Kind != "redis" && c.Store.Kind != "memory" {
			return fmt.Errorf("unknown store.kind %q", c.Store.Kind)
		}
		if c.Broker.Kind != "neo" && c.Broker.Kind != "fake" {
			return fmt.Errorf("unknown broker.kind %q", c.Broker.Kind)
		}
		if _, err := c.SealKeyBytes(); err != nil {
			return err
		}
	case RoleFront:
		if c.Worker.URL == "" {
			return errors.New("worker.url is required for the front role")
		}
	default:
		return fmt.Errorf("unknown role %q", c.Role)
	}
	return nil
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("/etc/neoproxy/")
	v.AddConfigPath("$HOME/.neoproxy")
	v.AddConfigPath(".")

	// NEOPROXY_REDIS_ADDR -> redis.addr
	v.SetEnvPrefix("NEOPROXY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// http_port has no default, so it must be bound for Unmarshal to see it.
	_ = v.BindEnv("http_port")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// ConfigFileNotFoundError is acceptable, means we use defaults/env vars.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return unmarshal(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("role", RoleWorker)
	v.SetDefault("service_name", "neoproxy")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("store.kind", "redis")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.op_timeout", 2*time.Second)
	v.SetDefault("session.ttl", 18*time.Hour)
	v.SetDefault("session.key_prefix", "session")
	v.SetDefault("session.seal_key", "")
	v.SetDefault("broker.kind", "neo")
	v.SetDefault("broker.login_url", "https://mis.kotaksecurities.com/login/1.0")
	v.SetDefault("broker.timeout", 15*time.Second)
	v.SetDefault("worker.url", "http://localhost:8001")
	v.SetDefault("worker.timeout", 30*time.Second)
	v.SetDefault("ratelimit.validate_rps", 1.0)
	v.SetDefault("ratelimit.validate_burst", 5)
	v.SetDefault("tracing.enabled", false)
}

func unmarshal(v *viper.Viper) (*ServerConfig, error) {
	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	// The two hops usually share a host, so they default to different ports.
	if cfg.HTTPPort == "" {
		cfg.HTTPPort = DefaultWorkerPort
		if cfg.Role == RoleFront {
			cfg.HTTPPort = DefaultFrontPort
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
