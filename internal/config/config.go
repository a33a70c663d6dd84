// Package config loads and validates the gateway's environment
// configuration. All options come from environment variables; invalid
// combinations are rejected at startup rather than discovered at runtime.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/crewdeck/relay/internal/auth"
	"github.com/crewdeck/relay/internal/notify"
)

// Broadcast strategies.
const (
	StrategyMemory = "memory"
	StrategyKafka  = "kafka"
)

// Config is the fully-resolved gateway configuration.
type Config struct {
	Environment string
	LogLevel    string

	AppAddr     string
	MetricsAddr string

	// BroadcastStrategy selects the backbone: memory for a single
	// process, kafka for multi-process deployments.
	BroadcastStrategy string
	KafkaBrokers      []string
	KafkaTopic        string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	JWTSecret         string
	JWTAlgorithm      string
	JWTIssuer         string
	RefreshCookieName string

	PostgresDSN string

	SMTP notify.SMTPConfig

	PayloadTTL time.Duration
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("LOG_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		AppAddr:     ":" + getEnv("APP_PORT", "8080"),
		MetricsAddr: ":" + getEnv("METRICS_PORT", "9090"),

		BroadcastStrategy: getEnv("BROADCAST_STRATEGY", StrategyMemory),
		KafkaBrokers:      splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:        getEnv("KAFKA_TOPIC", "relay.events"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret:         os.Getenv("JWT_SECRET"),
		JWTAlgorithm:      getEnv("JWT_ALGORITHM", auth.AlgHS256),
		JWTIssuer:         getEnv("JWT_ISSUER", "crewdeck"),
		RefreshCookieName: getEnv("REFRESH_COOKIE_NAME", "refreshToken"),

		PostgresDSN: os.Getenv("POSTGRES_DSN"),

		SMTP: notify.SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
		},

		PayloadTTL: getEnvDuration("BACKBONE_PAYLOAD_TTL", time.Minute),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated options and required combinations.
func (c *Config) Validate() error {
	switch c.BroadcastStrategy {
	case StrategyMemory, StrategyKafka:
	default:
		return errors.Errorf("invalid BROADCAST_STRATEGY %q (want %q or %q)",
			c.BroadcastStrategy, StrategyMemory, StrategyKafka)
	}

	switch c.JWTAlgorithm {
	case auth.AlgHS256, auth.AlgHS384, auth.AlgHS512:
	default:
		return errors.Errorf("invalid JWT_ALGORITHM %q (want HS256, HS384 or HS512)", c.JWTAlgorithm)
	}

	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.PostgresDSN == "" {
		return errors.New("POSTGRES_DSN is required")
	}

	if c.BroadcastStrategy == StrategyKafka {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("BROADCAST_STRATEGY=kafka requires KAFKA_BROKERS")
		}
		if c.RedisHost == "" || c.RedisPort == "" {
			return errors.New("BROADCAST_STRATEGY=kafka requires REDIS_HOST and REDIS_PORT")
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
