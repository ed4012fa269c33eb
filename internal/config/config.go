package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port string
	Env  string
}

type PostgresConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MigrationsPath  string
}

type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	BaseURL   string
}

type JobsConfig struct {
	ReconcileInterval time.Duration
	PendingStaleAfter time.Duration
	DeliveryInterval  time.Duration
	CleanupInterval   time.Duration
	FailedRetention   time.Duration
}

type SMTPConfig struct {
	Host string
	Port string
	From string
}

type AuthConfig struct {
	JWTSecret string
}

type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Razorpay RazorpayConfig
	Jobs     JobsConfig
	SMTP     SMTPConfig
	Auth     AuthConfig
}

// Load reads configuration from the environment, optionally seeding it
// from a .env file first. Missing credentials are an error rather than
// a default.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: failed to load %s: %w", path, err)
		}
	}

	cfg := &Config{}

	cfg.App.Port = envOr("APP_PORT", "8080")
	cfg.App.Env = envOr("APP_ENV", "development")

	var err error
	if cfg.Postgres.Host, err = envRequired("DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.Postgres.Port, err = envRequired("DB_PORT"); err != nil {
		return nil, err
	}
	if cfg.Postgres.User, err = envRequired("DB_USER"); err != nil {
		return nil, err
	}
	if cfg.Postgres.Password, err = envRequired("DB_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.Postgres.DBName, err = envRequired("DB_NAME"); err != nil {
		return nil, err
	}
	cfg.Postgres.SSLMode = envOr("DB_SSLMODE", "disable")
	cfg.Postgres.MaxConns = 10
	cfg.Postgres.MinConns = 2
	cfg.Postgres.MaxConnLifetime = 30 * time.Minute
	cfg.Postgres.MigrationsPath = envOr("DB_MIGRATIONS_PATH", "migrations")

	if cfg.Razorpay.KeyID, err = envRequired("RAZORPAY_KEY_ID"); err != nil {
		return nil, err
	}
	if cfg.Razorpay.KeySecret, err = envRequired("RAZORPAY_KEY_SECRET"); err != nil {
		return nil, err
	}
	cfg.Razorpay.BaseURL = envOr("RAZORPAY_BASE_URL", "https://api.razorpay.com/v1")

	if cfg.Jobs.ReconcileInterval, err = envDuration("JOB_RECONCILE_INTERVAL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Jobs.PendingStaleAfter, err = envDuration("JOB_PENDING_STALE_AFTER", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Jobs.DeliveryInterval, err = envDuration("JOB_DELIVERY_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.Jobs.CleanupInterval, err = envDuration("JOB_CLEANUP_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.Jobs.FailedRetention, err = envDuration("JOB_FAILED_RETENTION", 36*time.Hour); err != nil {
		return nil, err
	}

	cfg.SMTP.Host = os.Getenv("SMTP_HOST")
	cfg.SMTP.Port = envOr("SMTP_PORT", "587")
	cfg.SMTP.From = os.Getenv("SMTP_FROM")

	if cfg.Auth.JWTSecret, err = envRequired("JWT_SECRET"); err != nil {
		return nil, err
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envRequired(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("config: %s is required", key)
	}
	return v, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid duration for %s: %w", key, err)
	}
	return d, nil
}
