package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string
	Port           string
	AllowedOrigins string

	DatabaseURL string
	RedisURL    string

	JWTSecret string

	FirebaseCredentialsPath string

	PostmarkServerToken  string
	PostmarkAccountToken string
	EmailFrom            string

	RetryPollInterval time.Duration
	CleanupInterval   time.Duration
	CleanupMaxAge     time.Duration
}

func Load() (*Config, error) {
	// Don't fail if .env doesn't exist (might be prod env vars)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		JWTSecret: getEnv("JWT_SECRET", "12345"),

		FirebaseCredentialsPath: os.Getenv("FIREBASE_CREDENTIALS_PATH"),

		PostmarkServerToken:  os.Getenv("POSTMARK_SERVER_TOKEN"),
		PostmarkAccountToken: os.Getenv("POSTMARK_ACCOUNT_TOKEN"),
		EmailFrom:            getEnv("EMAIL_FROM", "no-reply@wavegram.app"),
	}

	var err error
	cfg.RetryPollInterval, err = parseDuration(getEnv("RETRY_POLL_INTERVAL", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid RETRY_POLL_INTERVAL: %w", err)
	}
	cfg.CleanupInterval, err = parseDuration(getEnv("CLEANUP_INTERVAL", "12h"))
	if err != nil {
		return nil, fmt.Errorf("invalid CLEANUP_INTERVAL: %w", err)
	}
	cfg.CleanupMaxAge, err = parseDuration(getEnv("CLEANUP_MAX_AGE", "720h"))
	if err != nil {
		return nil, fmt.Errorf("invalid CLEANUP_MAX_AGE: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func parseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}
