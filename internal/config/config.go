// Package config provides configuration loading and management for the application.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds all application configuration
type Config struct {
	// HTTP server port
	Port string `yaml:"port"`

	// Logging
	LogFormat string `yaml:"logFormat"`
	LogLevel  string `yaml:"logLevel"`
	LogFile   string `yaml:"logFile"`

	// Merchant store REST endpoint and credentials
	StoreURL    string `yaml:"storeUrl"`
	StoreAPIKey string `yaml:"storeApiKey"`

	// Optional local seed file merged after the store
	SeedFile string `yaml:"seedFile"`

	// How long a fetched merchant list is reused
	CacheTTL time.Duration `yaml:"cacheTtl"`

	// Timeout for one discovery request including the store fetch
	RequestTimeout time.Duration `yaml:"requestTimeout"`

	// Per-client rate limiting
	RateLimitRPS   float64 `yaml:"rateLimitRps"`
	RateLimitBurst int     `yaml:"rateLimitBurst"`

	// Feed circuit breaker settings
	EnableCircuitBreaker bool          `yaml:"enableCircuitBreaker"`
	MinMerchants         int           `yaml:"minMerchants"`
	MaxCountChange       float64       `yaml:"maxCountChange"`
	MaxRejectedRatio     float64       `yaml:"maxRejectedRatio"`
	CircuitResetDelay    time.Duration `yaml:"circuitResetDelay"`

	// OpenTelemetry endpoint for observability
	OtelEndpoint string `yaml:"otelEndpoint"`

	EnableMetrics bool `yaml:"enableMetrics"`

	// Sign discovery responses
	SignResponses bool `yaml:"signResponses"`

	// Hex encoded secp256k1 key; a fresh key is generated when empty
	SigningKey string `yaml:"signingKey"`

	// Search analytics export
	Analytics AnalyticsConfig `yaml:"analytics"`
}

// AnalyticsConfig configures the search analytics exporter.
type AnalyticsConfig struct {
	WebhookURL string        `yaml:"webhookUrl"`
	APIKey     string        `yaml:"apiKey"`
	BatchSize  int           `yaml:"batchSize"`
	Interval   time.Duration `yaml:"interval"`
}

// Enabled reports whether a webhook is configured.
func (a AnalyticsConfig) Enabled() bool {
	return a.WebhookURL != ""
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Port:                 "8080",
		LogFormat:            "text",
		LogLevel:             "info",
		CacheTTL:             time.Minute,
		RequestTimeout:       10 * time.Second,
		RateLimitRPS:         10,
		RateLimitBurst:       20,
		EnableCircuitBreaker: true,
		MinMerchants:         1,
		MaxCountChange:       0.5, // 50% max shrink between fetches
		MaxRejectedRatio:     0.5,
		CircuitResetDelay:    5 * time.Minute,
		EnableMetrics:        true,
		Analytics: AnalyticsConfig{
			BatchSize: 100,
			Interval:  time.Minute,
		},
	}
}

// Load creates a new Config from environment variables. A .env file in the
// working directory is read first when present.
func Load() Config {
	loadDotEnv()
	return applyEnv(DefaultConfig())
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug(".env file not found, relying on process environment")
	}
}

// applyEnv overrides cfg with any environment variables that are set.
func applyEnv(cfg Config) Config {
	cfg.Port = GetEnvOrDefault("PORT", cfg.Port)
	cfg.LogFormat = strings.ToLower(GetEnvOrDefault("LOG_FORMAT", cfg.LogFormat))
	cfg.LogLevel = strings.ToLower(GetEnvOrDefault("LOG_LEVEL", cfg.LogLevel))
	cfg.LogFile = GetEnvOrDefault("LOG_FILE", cfg.LogFile)
	cfg.StoreURL = GetEnvOrDefault("STORE_URL", cfg.StoreURL)
	cfg.StoreAPIKey = GetEnvOrDefault("STORE_API_KEY", cfg.StoreAPIKey)
	cfg.SeedFile = GetEnvOrDefault("SEED_FILE", cfg.SeedFile)
	cfg.CacheTTL = GetEnvAsDuration("CACHE_TTL", cfg.CacheTTL)
	cfg.RequestTimeout = GetEnvAsDuration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.RateLimitRPS = GetEnvAsFloat("RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.RateLimitBurst = GetEnvAsInt("RATE_LIMIT_BURST", cfg.RateLimitBurst)
	cfg.EnableCircuitBreaker = GetEnvAsBool("ENABLE_CIRCUIT_BREAKER", cfg.EnableCircuitBreaker)
	cfg.MinMerchants = GetEnvAsInt("MIN_MERCHANTS", cfg.MinMerchants)
	cfg.MaxCountChange = GetEnvAsFloat("MAX_COUNT_CHANGE", cfg.MaxCountChange)
	cfg.MaxRejectedRatio = GetEnvAsFloat("MAX_REJECTED_RATIO", cfg.MaxRejectedRatio)
	cfg.CircuitResetDelay = GetEnvAsDuration("CIRCUIT_RESET_DELAY", cfg.CircuitResetDelay)
	cfg.OtelEndpoint = GetEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OtelEndpoint)
	cfg.EnableMetrics = GetEnvAsBool("ENABLE_METRICS", cfg.EnableMetrics)
	cfg.SignResponses = GetEnvAsBool("SIGN_RESPONSES", cfg.SignResponses)
	cfg.SigningKey = GetEnvOrDefault("SIGNING_KEY", cfg.SigningKey)
	cfg.Analytics.WebhookURL = GetEnvOrDefault("ANALYTICS_WEBHOOK_URL", cfg.Analytics.WebhookURL)
	cfg.Analytics.APIKey = GetEnvOrDefault("ANALYTICS_API_KEY", cfg.Analytics.APIKey)
	cfg.Analytics.BatchSize = GetEnvAsInt("ANALYTICS_BATCH_SIZE", cfg.Analytics.BatchSize)
	cfg.Analytics.Interval = GetEnvAsDuration("ANALYTICS_INTERVAL", cfg.Analytics.Interval)
	return cfg
}

// GetEnv retrieves an environment variable and whether it exists
func GetEnv(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	return value, exists
}

// GetEnvOrDefault retrieves an environment variable or returns the default value if not set
func GetEnvOrDefault(key, defaultValue string) string {
	if value, exists := GetEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt retrieves an environment variable as an integer with a default value
func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := GetEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		logrus.Warnf("Invalid integer in %s, using default: %v", key, defaultValue)
	}
	return defaultValue
}

// GetEnvAsFloat retrieves an environment variable as a float with a default value
func GetEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := GetEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
		logrus.Warnf("Invalid float in %s, using default: %v", key, defaultValue)
	}
	return defaultValue
}

// GetEnvAsBool retrieves an environment variable as a boolean with a default value
func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := GetEnv(key); exists {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
		logrus.Warnf("Invalid boolean in %s, using default: %v", key, defaultValue)
	}
	return defaultValue
}

// GetEnvAsDuration retrieves an environment variable as a duration with a default value
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := GetEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		logrus.Warnf("Invalid duration in %s, using default: %v", key, defaultValue)
	}
	return defaultValue
}
