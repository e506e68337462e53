package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server           ServerConfig
	Database         DatabaseConfig
	OpenHumans       OpenHumansConfig
	Session          SessionConfig
	Worker           WorkerConfig
	Export           ExportConfig
	Storage          StorageConfig
	Observability    ObservabilityConfig
	LogRetentionDays int
	Environment      string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// OpenHumansConfig holds the Open Humans project credentials and API settings
type OpenHumansConfig struct {
	ClientID     string
	ClientSecret string
	AppBaseURL   string // Public URL of this app, used to build the OAuth2 redirect URI
	BaseURL      string // Open Humans site, e.g. https://www.openhumans.org
	Timeout      time.Duration
	PageRate     float64 // Page requests per second against the log API; 0 disables pacing
}

// RedirectURI returns the OAuth2 callback URL registered with Open Humans
func (c *OpenHumansConfig) RedirectURI() string {
	return strings.TrimSuffix(c.AppBaseURL, "/") + "/auth/callback"
}

// SessionConfig holds session cookie signing settings
type SessionConfig struct {
	Secret string
	TTL    time.Duration
}

// WorkerConfig holds retrieval worker pool settings
type WorkerConfig struct {
	Concurrency  int
	PollInterval time.Duration
	MaxAttempts  int
	StaleAfter   time.Duration
}

// ExportConfig controls CSV rendering of exported logs
type ExportConfig struct {
	EscapeNewlines bool
}

// StorageConfig selects where exported CSV files are delivered
type StorageConfig struct {
	Backend string // openhumans or s3
	S3      S3Config
}

// S3Config holds settings for the S3-compatible storage backend
type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	MetricsEnabled bool
}

const (
	StorageBackendOpenHumans = "openhumans"
	StorageBackendS3         = "s3"
)

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment:      getEnv("ENVIRONMENT", "development"),
		LogRetentionDays: getEnvAsInt("LOG_RETENTION_DAYS", 120),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: loadDatabaseConfig(),
		OpenHumans: OpenHumansConfig{
			ClientID:     getEnv("OPENHUMANS_CLIENT_ID", ""),
			ClientSecret: getEnv("OPENHUMANS_CLIENT_SECRET", ""),
			AppBaseURL:   getEnv("OPENHUMANS_APP_BASE_URL", "http://127.0.0.1:5000"),
			BaseURL:      getEnv("OPENHUMANS_OH_BASE_URL", "https://www.openhumans.org"),
			Timeout:      getEnvAsDuration("OPENHUMANS_TIMEOUT", 60*time.Second),
			PageRate:     getEnvAsFloat("OPENHUMANS_PAGE_RATE", 0),
		},
		Session: SessionConfig{
			Secret: getEnv("SECRET_KEY", ""),
			TTL:    getEnvAsDuration("SESSION_TTL", 7*24*time.Hour),
		},
		Worker: WorkerConfig{
			Concurrency:  getEnvAsInt("WORKER_CONCURRENCY", 2),
			PollInterval: getEnvAsDuration("WORKER_POLL_INTERVAL", time.Second),
			MaxAttempts:  getEnvAsInt("WORKER_MAX_ATTEMPTS", 3),
			StaleAfter:   getEnvAsDuration("WORKER_STALE_AFTER", 30*time.Minute),
		},
		Export: ExportConfig{
			EscapeNewlines: getEnvAsBool("EXPORT_ESCAPE_NEWLINES", false),
		},
		Storage: StorageConfig{
			Backend: getEnv("STORAGE_BACKEND", StorageBackendOpenHumans),
			S3: S3Config{
				Endpoint:  getEnv("S3_ENDPOINT", ""),
				Bucket:    getEnv("S3_BUCKET", "loggather-exports"),
				AccessKey: getEnv("S3_ACCESS_KEY", ""),
				SecretKey: getEnv("S3_SECRET_KEY", ""),
				UseSSL:    getEnvAsBool("S3_USE_SSL", true),
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	// Database validation (DATABASE_URL or DB_* vars)
	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.OpenHumans.BaseURL == "" {
		return fmt.Errorf("open humans base URL is required")
	}
	if _, err := url.Parse(c.OpenHumans.BaseURL); err != nil {
		return fmt.Errorf("invalid open humans base URL: %w", err)
	}

	if c.IsProduction() {
		if c.OpenHumans.ClientID == "" || c.OpenHumans.ClientSecret == "" {
			return fmt.Errorf("open humans client credentials are required in production")
		}
		if c.Session.Secret == "" {
			return fmt.Errorf("SECRET_KEY is required in production")
		}
	}

	switch c.Storage.Backend {
	case StorageBackendOpenHumans:
	case StorageBackendS3:
		if c.Storage.S3.Endpoint == "" || c.Storage.S3.Bucket == "" {
			return fmt.Errorf("s3 storage backend requires S3_ENDPOINT and S3_BUCKET")
		}
	default:
		return fmt.Errorf("unknown storage backend: %s", c.Storage.Backend)
	}

	if c.Worker.Concurrency < 0 {
		return fmt.Errorf("worker concurrency must not be negative")
	}
	if c.Worker.MaxAttempts < 1 {
		return fmt.Errorf("worker max attempts must be at least 1")
	}

	if c.LogRetentionDays < 1 {
		return fmt.Errorf("log retention days must be at least 1")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL (Heroku style) or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "loggather"),
		Password:        getEnv("DB_PASSWORD", "loggather"),
		Database:        getEnv("DB_NAME", "loggather"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 5000)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 5000
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
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

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
