package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the lifting book needs at startup. Values come from
// the environment, optionally seeded from a .env file in development.
type Config struct {
	// Postgres (RDS, IAM authentication)
	Profile    string // AWS shared-config profile, dev only
	Region     string
	DBEndpoint string
	DBUser     string
	DBName     string
	DBPort     int

	// S3 bucket for authority-approval letters
	ApprovalBucket string

	// Debounce applied by the autosave coordinator between the last field
	// edit and the remote flush.
	AutosaveDebounce time.Duration
}

const defaultAutosaveDebounce = 1500 * time.Millisecond

// Load reads configuration from the environment. A missing .env file is not
// an error; missing required DB settings are.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Profile:          os.Getenv("AWS_PROFILE"),
		Region:           getenvDefault("AWS_REGION", "eu-central-1"),
		DBEndpoint:       os.Getenv("LIFTINGBOOK_DB_ENDPOINT"),
		DBUser:           os.Getenv("LIFTINGBOOK_DB_USER"),
		DBName:           getenvDefault("LIFTINGBOOK_DB_NAME", "liftingbook"),
		DBPort:           5432,
		ApprovalBucket:   os.Getenv("LIFTINGBOOK_APPROVAL_BUCKET"),
		AutosaveDebounce: defaultAutosaveDebounce,
	}

	if v := os.Getenv("LIFTINGBOOK_DB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid LIFTINGBOOK_DB_PORT %q: %w", v, err)
		}
		cfg.DBPort = port
	}

	if v := os.Getenv("LIFTINGBOOK_AUTOSAVE_DEBOUNCE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid LIFTINGBOOK_AUTOSAVE_DEBOUNCE %q: %w", v, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("LIFTINGBOOK_AUTOSAVE_DEBOUNCE must be positive, got %s", d)
		}
		cfg.AutosaveDebounce = d
	}

	if cfg.DBEndpoint == "" {
		return nil, fmt.Errorf("LIFTINGBOOK_DB_ENDPOINT is required")
	}
	if cfg.DBUser == "" {
		return nil, fmt.Errorf("LIFTINGBOOK_DB_USER is required")
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
