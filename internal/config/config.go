package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all engine configuration.
type Config struct {
	Server    ServerConfig
	Circuit   CircuitConfig
	Retry     RetryConfig
	Tracker   TrackerConfig
	Cost      CostConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Providers ProvidersConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8090"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	// CORSOrigins lists the origins the admin API accepts cross-origin
	// requests from. Deployments fronting the API publicly should replace
	// the wildcard.
	CORSOrigins []string `envconfig:"CORS_ALLOW_ORIGINS" default:"*"`
}

// CircuitConfig holds circuit breaker configuration. Threshold and cooldown
// are per-deployment constants shared by every strategy key.
type CircuitConfig struct {
	FailureThreshold int `envconfig:"CIRCUIT_FAILURE_THRESHOLD" default:"3"`
	TimeoutMs        int `envconfig:"CIRCUIT_TIMEOUT_MS" default:"60000"`
}

// Timeout returns the open-state cooldown as a duration.
func (c CircuitConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// RetryConfig holds provider-level retry configuration, consumed by metered
// strategy clients (not the dispatcher's sequential loop, which has no
// inter-candidate delay).
type RetryConfig struct {
	MaxAttempts  int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	BackoffMs    int `envconfig:"RETRY_BACKOFF_MS" default:"1000"`
	MaxBackoffMs int `envconfig:"RETRY_MAX_BACKOFF_MS" default:"30000"`
}

// Backoff returns the initial backoff as a duration.
func (c RetryConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffMs) * time.Millisecond
}

// MaxBackoff returns the backoff ceiling as a duration.
func (c RetryConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffMs) * time.Millisecond
}

// TrackerConfig holds performance tracker configuration.
type TrackerConfig struct {
	MaxRetention int `envconfig:"TRACKER_MAX_RETENTION" default:"1000"`
}

// CostConfig holds cost ledger configuration.
type CostConfig struct {
	RetentionDays int `envconfig:"COST_RETENTION_DAYS" default:"30"`
	MaxEntries    int `envconfig:"COST_MAX_ENTRIES" default:"1000"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds per-IP rate limiting for the admin API.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// ProvidersConfig points at the credential seed file for metered providers.
type ProvidersConfig struct {
	CredentialsFile string `envconfig:"CREDENTIALS_FILE" default:""`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8090",
			Host:        "0.0.0.0",
			CORSOrigins: []string{"*"},
		},
		Circuit: CircuitConfig{
			FailureThreshold: 3,
			TimeoutMs:        60000,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			BackoffMs:    1000,
			MaxBackoffMs: 30000,
		},
		Tracker: TrackerConfig{
			MaxRetention: 1000,
		},
		Cost: CostConfig{
			RetentionDays: 30,
			MaxEntries:    1000,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
