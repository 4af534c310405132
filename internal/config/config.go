package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the full application configuration, populated from
// environment variables.
type Config struct {
	App        AppConfig
	Redis      RedisConfig
	JWT        JWTConfig
	MinIO      MinIOConfig
	Encryption EncryptionConfig
	Upload     UploadConfig
	Jobs       JobsConfig
}

type AppConfig struct {
	Name        string
	Environment string // development, staging, production
	Port        string
	Version     string
}

type RedisConfig struct {
	Host     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type MinIOConfig struct {
	Endpoint  string // localhost:9000
	AccessKey string // minioadmin
	SecretKey string // minioadmin
	Bucket    string // mods
	UseSSL    bool   // false for local
}

// EncryptionConfig holds the at-rest encryption settings. Key is a
// hex-encoded 32-byte AES key; an empty key leaves the engine
// unconfigured and every upload/download fails with a 500 until it is
// set. DefaultFormat is the tag used when sealing new content (4 or 5).
type EncryptionConfig struct {
	Key           string
	DefaultFormat int
}

type UploadConfig struct {
	MaxSizeMB         int
	AllowedExtensions []string // lowercase, dot-prefixed
	IconMaxSizeMB     int
	StorageQuotaMB    int // per-tenant blob storage quota
}

// JobsConfig holds the background job schedules (standard cron
// format, UTC).
type JobsConfig struct {
	SweepSpec        string
	BackfillSpec     string
	SweepDryRun      bool
	SweepGracePeriod time.Duration // blobs younger than this are never swept
}

// Load reads the configuration from environment variables
func Load() (*Config, error) {
	sweepGrace, err := time.ParseDuration(getEnv("JOB_SWEEP_GRACE_PERIOD", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid JOB_SWEEP_GRACE_PERIOD: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "Mod Hub API"),
			Environment: getEnv("APP_ENV", "development"),
			Port:        getEnv("APP_PORT", "8080"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    getEnv("MINIO_BUCKET", "mods"),
			UseSSL:    getEnv("MINIO_USE_SSL", "false") == "true",
		},
		Encryption: EncryptionConfig{
			Key:           getEnv("ENCRYPTION_KEY", ""),
			DefaultFormat: getEnvInt("ENCRYPTION_DEFAULT_FORMAT", 5),
		},
		Upload: UploadConfig{
			MaxSizeMB:         getEnvInt("UPLOAD_MAX_SIZE_MB", 100),
			AllowedExtensions: splitExtensions(getEnv("UPLOAD_ALLOWED_EXTENSIONS", ".zip,.7z,.rar,.tar,.gz")),
			IconMaxSizeMB:     getEnvInt("UPLOAD_ICON_MAX_SIZE_MB", 5),
			StorageQuotaMB:    getEnvInt("UPLOAD_STORAGE_QUOTA_MB", 10240),
		},
		Jobs: JobsConfig{
			SweepSpec:        getEnv("JOB_SWEEP_SPEC", "0 3 * * *"),
			BackfillSpec:     getEnv("JOB_BACKFILL_SPEC", "30 3 * * *"),
			SweepDryRun:      getEnv("JOB_SWEEP_DRY_RUN", "false") == "true",
			SweepGracePeriod: sweepGrace,
		},
	}

	// Validate critical config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for production readiness
func (c *Config) Validate() error {
	if c.Encryption.DefaultFormat != 4 && c.Encryption.DefaultFormat != 5 {
		return fmt.Errorf("ENCRYPTION_DEFAULT_FORMAT must be 4 or 5, got %d", c.Encryption.DefaultFormat)
	}

	if c.App.Environment == "production" {
		if c.JWT.Secret == "your-secret-key-change-in-production" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}

		// A missing encryption key is deliberately NOT fatal here:
		// uploads and downloads answer 500 until it is configured,
		// but read-only metadata endpoints keep working.
		if c.Encryption.Key == "" {
			fmt.Println("WARNING: ENCRYPTION_KEY not set - uploads and downloads will fail until it is configured")
		}
	}

	return nil
}

// MaxUploadBytes returns the upload limit in bytes
func (c *UploadConfig) MaxUploadBytes() int64 {
	return int64(c.MaxSizeMB) * 1024 * 1024
}

// MaxIconBytes returns the icon upload limit in bytes
func (c *UploadConfig) MaxIconBytes() int64 {
	return int64(c.IconMaxSizeMB) * 1024 * 1024
}

func splitExtensions(raw string) []string {
	parts := strings.Split(raw, ",")
	extensions := make([]string, 0, len(parts))
	for _, part := range parts {
		ext := strings.ToLower(strings.TrimSpace(part))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extensions = append(extensions, ext)
	}
	return extensions
}

// Helper functions
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
