package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	DB struct {
		DSN string
	}
	Remote struct {
		BaseURL string
		Timeout time.Duration
	}
	Kafka struct {
		Broker  string
		Topic   string
		GroupID string
	}
	API struct {
		Port     string
		BasePath string
	}
	Cache struct {
		Freshness  time.Duration
		RetryMax   int
		RetryDelay time.Duration
	}
	Sync struct {
		Cooldown time.Duration
	}
	Logging struct {
		Dir   string
		Level string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	cfg.DB.DSN = os.Getenv("DB_DSN")
	cfg.Remote.BaseURL = os.Getenv("REMOTE_BASE_URL")
	cfg.Remote.Timeout = secondsEnv("REMOTE_TIMEOUT_SECONDS")

	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = os.Getenv("KAFKA_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")

	cfg.Cache.Freshness = secondsEnv("CACHE_FRESHNESS_SECONDS")
	if n, err := strconv.Atoi(os.Getenv("CACHE_RETRY_MAX")); err == nil {
		cfg.Cache.RetryMax = n
	}
	cfg.Cache.RetryDelay = secondsEnv("CACHE_RETRY_DELAY_SECONDS")
	cfg.Sync.Cooldown = secondsEnv("SYNC_COOLDOWN_SECONDS")

	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	// Validate required settings
	missing := []string{}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if cfg.Remote.BaseURL == "" {
		missing = append(missing, "REMOTE_BASE_URL")
	}
	if cfg.Kafka.Broker == "" {
		missing = append(missing, "KAFKA_BROKER")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	// Apply defaults
	if cfg.Remote.Timeout == 0 {
		cfg.Remote.Timeout = 10 * time.Second
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "kpi_refresh"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "fleetmetrics"
	}
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v0"
	}
	if cfg.Cache.Freshness == 0 {
		cfg.Cache.Freshness = 30 * time.Second
	}
	if cfg.Cache.RetryMax == 0 {
		cfg.Cache.RetryMax = 2
	}
	if cfg.Cache.RetryDelay == 0 {
		cfg.Cache.RetryDelay = 5 * time.Second
	}
	if cfg.Sync.Cooldown == 0 {
		cfg.Sync.Cooldown = 60 * time.Second
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return cfg, nil
}

func secondsEnv(name string) time.Duration {
	n, err := strconv.Atoi(os.Getenv(name))
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
