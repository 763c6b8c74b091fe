package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the closure core.
type Config struct {
	MetricsPort string

	// Broker API
	BrokerAPIKey      string
	BrokerAPISecret   string
	BrokerSandbox     bool
	TransferStreamURL string

	// Execution
	DryRun bool

	// Sweep
	SweepInterval time.Duration

	// Database
	DBPath string

	// Closure policy override (optional YAML file)
	PolicyPath string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	// Database path: prefer DB_PATH, then DATABASE_PATH for backward compatibility.
	dbPath := getEnv("DB_PATH", "")
	if dbPath == "" {
		dbPath = getEnv("DATABASE_PATH", "./data/closure.db")
	}

	return &Config{
		MetricsPort:       getEnv("METRICS_PORT", "9143"),
		BrokerAPIKey:      os.Getenv("BROKER_API_KEY"),
		BrokerAPISecret:   os.Getenv("BROKER_API_SECRET"),
		BrokerSandbox:     getEnv("BROKER_SANDBOX", "true") == "true",
		TransferStreamURL: getEnv("TRANSFER_STREAM_URL", ""),
		DryRun:            getEnv("DRY_RUN", "false") == "true",
		SweepInterval:     getEnvDuration("SWEEP_INTERVAL", 15*time.Minute),
		DBPath:            dbPath,
		PolicyPath:        getEnv("CLOSURE_POLICY_PATH", ""),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
