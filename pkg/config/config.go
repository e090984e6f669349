package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Redis       RedisConfig       `mapstructure:"redis"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TLS      bool   `mapstructure:"tls"`
}

// EndpointLimit is a per-endpoint override of the default policy.
type EndpointLimit struct {
	Limit  int    `mapstructure:"limit" json:"limit"`
	Window string `mapstructure:"window" json:"window"`
}

type RateLimitConfig struct {
	Storage string        `mapstructure:"storage"` // "redis" or "memory"
	Default EndpointLimit `mapstructure:"default"`
	// Endpoints maps a path (e.g. "/v2/orders") to its policy.
	Endpoints map[string]EndpointLimit `mapstructure:"endpoints"`
	// FailurePolicy is applied when the backing store is unavailable:
	// "closed" denies, "open" permits. Denying is the default.
	FailurePolicy      string `mapstructure:"failure_policy"`
	BreakerMaxFailures uint32 `mapstructure:"breaker_max_failures"`
	BreakerTimeout     string `mapstructure:"breaker_timeout"`
}

type IdempotencyConfig struct {
	Storage string `mapstructure:"storage"`
	TTL     string `mapstructure:"ttl"`
}

var globalConfig Config

func Load(configPath string) error {
	if err := loadConfigFile(configPath, "config", &globalConfig); err != nil {
		return fmt.Errorf("could not load main config file: %w", err)
	}
	setDefaultValues()
	return nil
}

func loadConfigFile(configPath, fileName string, out interface{}) error {
	viper.SetConfigName(fileName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("config file %s.yaml not found, using only environment variables", fileName)
		}
		return fmt.Errorf("error reading config file %s.yaml: %w", fileName, err)
	}

	if err := viper.Unmarshal(out); err != nil {
		return fmt.Errorf("failed to unmarshal %s config: %w", fileName, err)
	}

	return nil
}

func setDefaultValues() {
	if globalConfig.RateLimit.Default.Limit == 0 {
		globalConfig.RateLimit.Default.Limit = 100
	}
	if globalConfig.RateLimit.Default.Window == "" {
		globalConfig.RateLimit.Default.Window = "1m"
	}
	if globalConfig.RateLimit.FailurePolicy == "" {
		globalConfig.RateLimit.FailurePolicy = "closed"
	}
	if globalConfig.RateLimit.BreakerMaxFailures == 0 {
		globalConfig.RateLimit.BreakerMaxFailures = 5
	}
	if globalConfig.RateLimit.BreakerTimeout == "" {
		globalConfig.RateLimit.BreakerTimeout = "30s"
	}
	if globalConfig.Idempotency.TTL == "" {
		globalConfig.Idempotency.TTL = "24h"
	}
}

func GetConfig() *Config {
	return &globalConfig
}
