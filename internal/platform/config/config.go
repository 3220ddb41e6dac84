// Package config loads the service configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv string `env:"APP_ENV" default:"development"`
	Port   string `env:"PORT" default:"8080"`

	AuthBaseURL   string `env:"AUTH_BASE_URL"`
	AuthAPIKey    string `env:"AUTH_API_KEY"`
	AuthNamespace string `env:"AUTH_NAMESPACE" default:"ecoswap:auth"`

	SessionSecret string `env:"SESSION_SECRET"`

	// RedisURL is optional: without it the credential lives in process
	// memory only.
	RedisURL string `env:"REDIS_URL"`
	// TokenEncryptionKey is optional: 64 hex characters enabling
	// AES-256-GCM encryption of persisted credentials.
	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// AdminSurface switches termination redirects to the admin sign-in.
	AdminSurface bool `env:"ADMIN_SURFACE" default:"false"`

	RenewalThreshold  time.Duration `env:"RENEWAL_THRESHOLD" default:"5m"`
	RefreshTick       time.Duration `env:"REFRESH_TICK" default:"10m"`
	ActivityIdleAfter time.Duration `env:"ACTIVITY_IDLE_AFTER" default:"5m"`
	InactivityTimeout time.Duration `env:"INACTIVITY_TIMEOUT" default:"30m"`

	MaxWebSocketConnections int `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"AUTH_BASE_URL":  cfg.AuthBaseURL,
		"AUTH_API_KEY":   cfg.AuthAPIKey,
		"SESSION_SECRET": cfg.SessionSecret,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if cfg.TokenEncryptionKey != "" {
		keyBytes, err := hex.DecodeString(cfg.TokenEncryptionKey)
		if err != nil {
			return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be exactly 64 hex characters (32 bytes), got %d bytes", len(keyBytes))
		}
	}

	return nil
}
