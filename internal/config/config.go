package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the OCPP simulator process.
type Config struct {
	Port      int
	Version   string
	Build     string // "development" | "production" (§6)
	Database  DatabaseConfig
	Telemetry TelemetryConfig
	Session   SessionConfig
	Cache     CacheConfig
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// SessionConfig configures the OCPP session engine (§4.2).
type SessionConfig struct {
	DefaultMessageTimeout time.Duration
	ReconnectBaseDelay    time.Duration
	ReconnectMaxRetries   int
	ReconnectExponential  bool
	OCPPStrictCompliance  bool
}

// CacheConfig configures the process-wide template/configuration LRU (§4.8).
type CacheConfig struct {
	Size          int
	SweepInterval time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("OCPPSIM_PORT", 8081),
		Version: envStr("OCPPSIM_VERSION", "0.1.0"),
		Build:   envStr("BUILD", "development"),
		Database: DatabaseConfig{
			URL:            envStr("DATABASE_URL", ""),
			MaxConnections: envInt("DATABASE_MAX_CONNECTIONS", 10),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "ocpp-simulator"),
		},
		Session: SessionConfig{
			DefaultMessageTimeout: envDuration("OCPPSIM_DEFAULT_MESSAGE_TIMEOUT", 30*time.Second),
			ReconnectBaseDelay:    envDuration("OCPPSIM_RECONNECT_BASE_DELAY", time.Second),
			ReconnectMaxRetries:   envInt("OCPPSIM_RECONNECT_MAX_RETRIES", -1),
			ReconnectExponential:  envBool("OCPPSIM_RECONNECT_EXPONENTIAL", true),
			OCPPStrictCompliance:  envBool("OCPPSIM_STRICT_COMPLIANCE", false),
		},
		Cache: CacheConfig{
			Size:          envInt("OCPPSIM_CACHE_SIZE", 256),
			SweepInterval: envDuration("OCPPSIM_CACHE_SWEEP_INTERVAL", 5*time.Minute),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
