// Package config loads settings from an optional YAML file overlaid by environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultFile is read from the working directory when no path is given.
const DefaultFile = "simplane.yaml"

// Config holds all configuration values for the application.
type Config struct {
	// Database connection string
	DatabaseURL string `mapstructure:"database_url"`

	// HTTP server port for the orchestrator
	HTTPPort int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`

	// External collaborators
	UserServiceURL      string        `mapstructure:"user_service_url"`
	DesignServiceURL    string        `mapstructure:"design_service_url"`
	SimulationEngineURL string        `mapstructure:"simulation_engine_url"`
	AccessTimeout       time.Duration `mapstructure:"access_timeout"`

	// Shared secret presented by the simulation runtime on /internal routes
	InternalSecret string `mapstructure:"internal_secret"`

	// Per-session ingestion limit in records/sec. Zero disables limiting.
	IngestRateLimit float64 `mapstructure:"ingest_rate_limit"`
	IngestRateBurst int     `mapstructure:"ingest_rate_burst"`

	// Live connections
	WSIdleTimeout  time.Duration `mapstructure:"ws_idle_timeout"`
	WSWriteTimeout time.Duration `mapstructure:"ws_write_timeout"`

	// Dispatcher-specific configuration
	DispatcherConcurrency  int           `mapstructure:"dispatcher_concurrency"`
	DispatcherPollInterval time.Duration `mapstructure:"dispatcher_poll_interval"`
	DispatcherMaxBackoff   time.Duration `mapstructure:"dispatcher_max_backoff"`
	EngineTimeout          time.Duration `mapstructure:"engine_timeout"`

	// OpenTelemetry collector (gRPC)
	OTELEndpoint string `mapstructure:"otel_endpoint"`

	// URL of the orchestrator, used by clients
	OrchestratorURL string `mapstructure:"orchestrator_url"`
}

// env names that do not follow the upper-cased key convention.
var envAliases = map[string]string{
	"otel_endpoint": "OTEL_EXPORTER_OTLP_ENDPOINT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_url", "")
	v.SetDefault("port", 8004)
	v.SetDefault("log_level", "info")
	v.SetDefault("user_service_url", "http://localhost:8001")
	v.SetDefault("design_service_url", "http://localhost:8003")
	v.SetDefault("simulation_engine_url", "http://localhost:8080")
	v.SetDefault("access_timeout", 5*time.Second)
	v.SetDefault("internal_secret", "")
	v.SetDefault("ingest_rate_limit", 0.0)
	v.SetDefault("ingest_rate_burst", 100)
	v.SetDefault("ws_idle_timeout", 60*time.Second)
	v.SetDefault("ws_write_timeout", 10*time.Second)
	v.SetDefault("dispatcher_concurrency", 4)
	v.SetDefault("dispatcher_poll_interval", 1*time.Second)
	v.SetDefault("dispatcher_max_backoff", 30*time.Second)
	v.SetDefault("engine_timeout", 10*time.Second)
	v.SetDefault("otel_endpoint", "localhost:4317")
	v.SetDefault("orchestrator_url", "http://localhost:8004")
}

// Load reads configuration from path (or DefaultFile if present) and then
// from environment variables, which take precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envAliases {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required keys and value ranges.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database_url is required (env: DATABASE_URL)")
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid port: %d", c.HTTPPort)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q (expected debug|info|warn|error)", c.LogLevel)
	}
	if c.IngestRateLimit < 0 {
		return fmt.Errorf("invalid ingest_rate_limit: %v", c.IngestRateLimit)
	}
	if c.DispatcherConcurrency < 1 {
		return fmt.Errorf("invalid dispatcher_concurrency: %d", c.DispatcherConcurrency)
	}
	return nil
}
