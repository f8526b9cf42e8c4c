package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Queue backends.
const (
	QueueMemory = "memory"
	QueueRedis  = "redis"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; DATABASE_URL is required only for the
// postgres store, REDIS_ADDR defaults to localhost for the redis queue.
// Platform credentials are not here: see package settings.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Post store
	StoreDriver string
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	SQLitePath  string

	// Queue
	QueueBackend     string
	QueueCapacity    int
	QueueNativeDelay bool
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisQueueKey    string
	RedisLeaseTTL    time.Duration
	QueueDepthEvery  time.Duration

	// Workers
	Workers              int
	WorkerSchedule       string
	WorkerMaxTasksPerRun int

	// Platform APIs
	GraphAPIBaseURL    string
	PlatformTimeout    time.Duration
	PlatformRateLimit  int
	PublishConcurrency int

	// Collaborators
	SettingsFile       string
	PublicFilesBaseURL string
	StorefrontBaseURL  string
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StorePostgres)),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 25)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 5)),
		SQLitePath:  getEnv("SQLITE_PATH", "data/posts.db"),

		QueueBackend:     strings.ToLower(getEnv("QUEUE_BACKEND", QueueMemory)),
		QueueCapacity:    getInt("QUEUE_CAPACITY", 5000),
		QueueNativeDelay: getBool("QUEUE_NATIVE_DELAY", false),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          getInt("REDIS_DB", 0),
		RedisQueueKey:    getEnv("REDIS_QUEUE_KEY", "social_media_publisher"),
		RedisLeaseTTL:    getDuration("REDIS_LEASE_TTL", 30*time.Second),
		QueueDepthEvery:  getDuration("QUEUE_DEPTH_INTERVAL", 15*time.Second),

		Workers:              getInt("WORKERS", 2),
		WorkerSchedule:       getEnv("WORKER_SCHEDULE", "@every 1m"),
		WorkerMaxTasksPerRun: getInt("WORKER_MAX_TASKS_PER_RUN", 500),

		GraphAPIBaseURL:    strings.TrimRight(getEnv("GRAPH_API_BASE_URL", "https://graph.facebook.com/v18.0"), "/"),
		PlatformTimeout:    getDuration("PLATFORM_TIMEOUT", 15*time.Second),
		PlatformRateLimit:  getInt("PLATFORM_RATE_LIMIT", 5),
		PublishConcurrency: getInt("PUBLISH_CONCURRENCY", 2),

		SettingsFile:       os.Getenv("SETTINGS_FILE"),
		PublicFilesBaseURL: getEnv("PUBLIC_FILES_BASE_URL", "http://localhost:8080/files"),
		StorefrontBaseURL:  getEnv("STOREFRONT_BASE_URL", "http://localhost:8080"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreSQLite:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.QueueBackend {
	case QueueMemory, QueueRedis:
	default:
		return fmt.Errorf("unknown QUEUE_BACKEND %q", c.QueueBackend)
	}

	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be at least 1")
	}
	if c.QueueNativeDelay && c.QueueBackend != QueueRedis {
		return fmt.Errorf("QUEUE_NATIVE_DELAY requires the redis queue backend")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
