package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Ops      OpsConfig
	Database DatabaseConfig
	Redis    RedisConfig
	AWS      AWSConfig
	Media    MediaConfig
	Cleanup  CleanupConfig
	Merge    MergeConfig
}

// OpsConfig holds the internal ops HTTP server settings.
type OpsConfig struct {
	Port         string
	ReadTimeout  int
	WriteTimeout int
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/assessment?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AWSConfig holds AWS credentials and the durable media bucket.
// An empty MediaBucket disables the remote backend; merged output stays local.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	MediaBucket     string
}

// MediaConfig holds the local media root shared by the merge pipeline and the sweeper.
type MediaConfig struct {
	Root string
}

// CleanupConfig holds retention sweeper settings.
type CleanupConfig struct {
	Enabled          bool
	RetentionMinutes int
	IntervalMinutes  int
	DryRun           bool
}

// MergeConfig holds merge pipeline settings.
type MergeConfig struct {
	DeleteChunksAfterMerge bool
	StaleMinutes           int // processing entries older than this are requeued on startup
	FFmpegPath             string
	FFprobePath            string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Ops: OpsConfig{
			Port:         getEnv("OPS_PORT", "8081"),
			ReadTimeout:  getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout: getEnvInt("WRITE_TIMEOUT_SEC", 30),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "assessment"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			MediaBucket:     getEnv("AWS_S3_MEDIA_BUCKET", ""),
		},
		Media: MediaConfig{
			Root: getEnv("MEDIA_ROOT", "./data/media"),
		},
		Cleanup: CleanupConfig{
			Enabled:          getEnvBool("CLEANUP_ENABLED", true),
			RetentionMinutes: getEnvInt("RETENTION_MINUTES", 120),
			IntervalMinutes:  getEnvInt("CLEANUP_INTERVAL_MINUTES", 60),
			DryRun:           getEnvBool("CLEANUP_DRY_RUN", true),
		},
		Merge: MergeConfig{
			DeleteChunksAfterMerge: getEnvBool("DELETE_CHUNKS_AFTER_MERGE", false),
			StaleMinutes:           getEnvInt("MERGE_STALE_MINUTES", 30),
			FFmpegPath:             getEnv("FFMPEG_PATH", "ffmpeg"),
			FFprobePath:            getEnv("FFPROBE_PATH", "ffprobe"),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
