package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment override, e.g. PRISM_CLIENT_BASE_URL.
const EnvPrefix = "PRISM"

type Config struct {
	Client  ClientConfig  `mapstructure:"client"`
	Log     LogConfig     `mapstructure:"log"`
	Usage   UsageConfig   `mapstructure:"usage"`
	Mock    MockConfig    `mapstructure:"mock"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

type ClientConfig struct {
	BaseURL   string            `mapstructure:"base_url"`
	APIKey    string            `mapstructure:"api_key"`
	Timeout   time.Duration     `mapstructure:"timeout"`
	AppName   string            `mapstructure:"app_name"`
	AppURL    string            `mapstructure:"app_url"`
	Headers   map[string]string `mapstructure:"headers"`
	RateLimit RateLimitConfig   `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type UsageConfig struct {
	// DSN of the sqlite usage ledger; empty disables recording
	DSN string `mapstructure:"dsn"`
}

type MockConfig struct {
	Port   string `mapstructure:"port"`
	Env    string `mapstructure:"env"`
	APIKey string `mapstructure:"api_key"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// Load reads configuration from .env, an optional prism.yaml and PRISM_*
// environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	// Load .env file if present
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("prism")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home + "/.prism")
	}

	setDefaults(v)

	// Environment Variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	cfg.Client.APIKey = resolveSecret(v, cfg.Client.APIKey)
	cfg.Mock.APIKey = resolveSecret(v, cfg.Mock.APIKey)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("client.base_url", "http://localhost:8080/v1")
	v.SetDefault("client.api_key", "")
	v.SetDefault("client.timeout", 60*time.Second)
	v.SetDefault("client.app_name", "")
	v.SetDefault("client.app_url", "")
	v.SetDefault("client.rate_limit.requests_per_second", 0.0)
	v.SetDefault("client.rate_limit.burst", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("usage.dsn", "")
	v.SetDefault("mock.port", "8080")
	v.SetDefault("mock.env", "development")
	v.SetDefault("mock.api_key", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "prism")
}

// resolveSecret expands the "ENV:NAME" indirection.
func resolveSecret(v *viper.Viper, value string) string {
	if !strings.HasPrefix(value, "ENV:") {
		return value
	}
	envVar := strings.TrimPrefix(value, "ENV:")
	// Check process environment first (explicit override)
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	// Then check viper (which might have it from other sources)
	return v.GetString(envVar)
}
