package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ストアの種別。
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Store
	StoreDriver        string
	DatabaseURL        string
	SQLitePath         string
	RedisURL           string
	StoreRetryAttempts int

	// Logging
	LogLevel string

	// Server
	ServerPort        string
	CORSAllowedOrigin string
	GatewayToken      string

	// Game
	GameCatalogPath   string
	AbandonThreshold  time.Duration
	FanoutMaxAttempts int

	// Sweep
	SweepInterval      time.Duration
	SweepMaxConcurrent int
	PresenceRetention  int // 日数

	// Notification
	NotifyWebhookURL     string
	TournamentWebhookURL string
	DefaultLanguage      string

	// Archive
	ArchiveBucket          string
	ArchiveEndpoint        string
	ArchiveRegion          string
	ArchiveAccessKeyID     string
	ArchiveSecretAccessKey string

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitAction  int
}

// LoadDotEnv はカレントディレクトリの.envを読み込む。ファイルがない場合は何もしない。
// 既に設定済みの環境変数は上書きしない。
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load .env: %w", err)
	}
	slog.Info("loaded environment variables from .env file")
	return nil
}

// Load は環境変数からConfigを読み込む。
// ストアの種別に必要な環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.StoreDriver = getEnvString("STORE_DRIVER", StoreSQLite)
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.SQLitePath = getEnvString("SQLITE_PATH", "banmen.db")
	cfg.RedisURL = os.Getenv("REDIS_URL")

	var missing []string
	switch cfg.StoreDriver {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case StoreRedis:
		if cfg.RedisURL == "" {
			missing = append(missing, "REDIS_URL")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q (memory, sqlite, postgres, redis)", cfg.StoreDriver)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.StoreRetryAttempts = getEnvInt("STORE_RETRY_ATTEMPTS", 3)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.GatewayToken = os.Getenv("GATEWAY_TOKEN")
	cfg.GameCatalogPath = os.Getenv("GAME_CATALOG_PATH")
	cfg.AbandonThreshold = getEnvDuration("ABANDON_THRESHOLD", 30*24*time.Hour)
	cfg.FanoutMaxAttempts = getEnvInt("FANOUT_MAX_ATTEMPTS", 3)
	cfg.SweepInterval = getEnvDuration("SWEEP_INTERVAL", 5*time.Minute)
	cfg.SweepMaxConcurrent = getEnvInt("SWEEP_MAX_CONCURRENT", 10)
	cfg.PresenceRetention = getEnvInt("PRESENCE_RETENTION_DAYS", 180)
	cfg.NotifyWebhookURL = os.Getenv("NOTIFY_WEBHOOK_URL")
	cfg.TournamentWebhookURL = os.Getenv("TOURNAMENT_WEBHOOK_URL")
	cfg.DefaultLanguage = getEnvString("DEFAULT_LANGUAGE", "en")
	cfg.ArchiveBucket = os.Getenv("ARCHIVE_BUCKET")
	cfg.ArchiveEndpoint = os.Getenv("ARCHIVE_ENDPOINT")
	cfg.ArchiveRegion = os.Getenv("ARCHIVE_REGION")
	cfg.ArchiveAccessKeyID = os.Getenv("ARCHIVE_ACCESS_KEY_ID")
	cfg.ArchiveSecretAccessKey = os.Getenv("ARCHIVE_SECRET_ACCESS_KEY")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAction = getEnvInt("RATE_LIMIT_ACTION", 60)

	if cfg.ArchiveBucket != "" && (cfg.ArchiveAccessKeyID == "") != (cfg.ArchiveSecretAccessKey == "") {
		return nil, fmt.Errorf("ARCHIVE_ACCESS_KEY_ID and ARCHIVE_SECRET_ACCESS_KEY must be set together")
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
