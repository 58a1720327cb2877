package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DriverPostgres selects the PostgreSQL metadata store (pgx stdlib driver).
	DriverPostgres = "postgres"
	// DriverSQLite selects the embedded SQLite metadata store.
	DriverSQLite = "sqlite3"

	// BackendFilesystem stores blobs in a local directory.
	BackendFilesystem = "filesystem"
	// BackendMinIO stores blobs in an S3-compatible bucket.
	BackendMinIO = "minio"

	// DefaultMaxUploadBytes is the largest accepted upload (10 MiB).
	DefaultMaxUploadBytes int64 = 10 << 20
)

// DatabaseConfig holds metadata store connection settings.
// Host/Port/User/Password/Name/SSLMode apply to PostgreSQL, Path to SQLite.
type DatabaseConfig struct {
	Driver             string
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	Path               string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// StorageConfig selects and configures the blob store.
type StorageConfig struct {
	Backend        string
	Dir            string
	MaxUploadBytes int64
	MinIO          MinIOConfig
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level    string
	Location *time.Location
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost        string
	Port           string
	AllowedOrigins []string
	Log            LogConfig
	Database       DatabaseConfig
	Storage        StorageConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost: getEnv("APP_HOST", "localhost:5001"),
		Port:    getEnv("PORT", "5001"),
		AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
			"http://127.0.0.1:5173",
		}),
		Log: LogConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Location: getEnvLocation("APP_TIMEZONE", time.UTC),
		},
		Database: DatabaseConfig{
			Driver:             getEnv("DB_DRIVER", DriverSQLite),
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			Path:               getEnv("DB_PATH", "data/documents.db"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		Storage: StorageConfig{
			Backend:        getEnv("STORAGE_BACKEND", BackendFilesystem),
			Dir:            getEnv("UPLOAD_DIR", "uploads"),
			MaxUploadBytes: getEnvInt64("UPLOAD_MAX_BYTES", DefaultMaxUploadBytes),
			MinIO: MinIOConfig{
				Endpoint:  getEnv("MINIO_ENDPOINT", ""),
				AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
				SecretKey: getEnv("MINIO_SECRET_KEY", ""),
				Bucket:    getEnv("MINIO_BUCKET", ""),
				UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			},
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err == nil && i > 0 {
			return i
		}
	}
	return def
}

// getEnvList splits a comma-separated value, dropping empty entries.
func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	out := make([]string, 0)
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func getEnvLocation(key string, def *time.Location) *time.Location {
	if v := os.Getenv(key); v != "" {
		loc, err := time.LoadLocation(v)
		if err == nil {
			return loc
		}
	}
	return def
}
