package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DBDriver string // postgres, pgx or sqlite3

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	SQLitePath       string

	InputDir        string
	ArchiveDir      string
	ErrorDir        string
	ManifestCSVPath string
	SkipNonBIN      bool

	MarkerPath string
	RedisURL   string
	MarkerKey  string
	LockKey    string
	LockTTLSec int

	FlatDBPath         string
	FlatTable          string
	FlattenBatchSize   int
	FlattenWorkers     int
	FlattenRateLimitMs int // 0 disables the spacing between worker tasks
	LogQueueSize       int

	MaxRetries int
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		DBDriver: strings.ToLower(getEnv("DB_DRIVER", "postgres")),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "auctions"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "auctions123"),
		PostgresDB:       getEnv("POSTGRES_DB", "auctions_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		SQLitePath:       getEnv("SQLITE_PATH", "./data/auctions.db"),

		InputDir:        getEnv("INPUT_DIR", "./raw_data"),
		ArchiveDir:      getEnv("ARCHIVE_DIR", "./archive/raw_archive"),
		ErrorDir:        getEnv("ERROR_DIR", "./bugged_auctions"),
		ManifestCSVPath: getEnv("MANIFEST_CSV_PATH", "./output/load_manifest.csv"),
		SkipNonBIN:      getEnvBool("SKIP_NON_BIN", true),

		MarkerPath: getEnv("MARKER_PATH", "./data/last_updated.txt"),
		RedisURL:   getEnv("REDIS_URL", ""),
		MarkerKey:  getEnv("MARKER_KEY", "auctions:last_updated"),
		LockKey:    getEnv("LOCK_KEY", "auctions:ingest_lock"),
		LockTTLSec: getEnvInt("LOCK_TTL_SEC", 900),

		FlatDBPath:         getEnv("FLAT_DB_PATH", "./data/flat_auctions.db"),
		FlatTable:          getEnv("FLAT_TABLE", "auctions_flat"),
		FlattenBatchSize:   getEnvInt("FLATTEN_BATCH_SIZE", 20),
		FlattenWorkers:     getEnvInt("FLATTEN_WORKERS", 4),
		FlattenRateLimitMs: getEnvInt("FLATTEN_RATE_LIMIT_MS", 0),
		LogQueueSize:       getEnvInt("LOG_QUEUE_SIZE", 1024),

		MaxRetries: getEnvInt("MAX_RETRIES", 3),
	}
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.DBDriver == "sqlite3" {
		return SQLiteDSN(c.SQLitePath)
	}
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// SQLiteDSN returns a go-sqlite3 DSN with foreign keys enforced on every connection.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_foreign_keys=on&_journal_mode=WAL"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}
