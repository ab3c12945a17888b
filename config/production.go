// Package config loads the application configuration from the environment,
// with optional .env file support for local development.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProductionConfig is the complete application configuration
type ProductionConfig struct {
	Database  DatabaseConfig
	Server    ServerConfig
	JWT       JWTConfig
	Scheduler SchedulerConfig
	Queue     QueueConfig
	Session   SessionConfig
	Media     MediaConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
}

// DatabaseConfig holds postgres connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN builds the postgres connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// ServerConfig holds the HTTP server settings
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Addr returns the listen address
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// JWTConfig holds token signing settings
type JWTConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// SchedulerConfig holds the broadcast poll loop settings
type SchedulerConfig struct {
	Enabled           bool
	PollInterval      time.Duration
	BatchSize         int
	MaxRetries        int
	BaseBackoff       time.Duration
	DeviceConcurrency int
	RateMinDelay      time.Duration
	RateMaxDelay      time.Duration
}

// QueueConfig holds the redis delivery queue settings
type QueueConfig struct {
	Enabled       bool
	Name          string
	Concurrency   int
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// SessionConfig holds the transport session settings
type SessionConfig struct {
	CredentialDir    string
	ReconnectDelay   time.Duration
	ReconnectJitter  time.Duration
	CredSaveDebounce time.Duration
	EventLogSize     int
}

// MediaConfig holds attachment resolution settings
type MediaConfig struct {
	UploadsDir       string
	PublicBaseURL    string
	MaxImageBytes    int64
	MaxVideoBytes    int64
	MaxAudioBytes    int64
	MaxDocumentBytes int64
}

// LoggingConfig holds file logging settings (rotation via lumberjack)
type LoggingConfig struct {
	File       string // empty logs to stdout only
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// MetricsConfig holds prometheus exposure settings. The exporter listens on
// its own address, separate from the API server.
type MetricsConfig struct {
	Enabled bool
	Addr    string
	Path    string
}

// LoadProductionConfig reads configuration from the environment. A .env
// file in the working directory is loaded first without overriding
// variables that are already set.
func LoadProductionConfig() (*ProductionConfig, error) {
	loadEnvFile(".env")

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnvString("DB_USER", "wage"),
			Password:        getEnvString("DB_PASSWORD", ""),
			Name:            getEnvString("DB_NAME", "wage"),
			SSLMode:         getEnvString("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Server: ServerConfig{
			Host:         getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		JWT: JWTConfig{
			Secret:     getEnvString("JWT_SECRET", ""),
			Issuer:     getEnvString("JWT_ISSUER", "wage-backend"),
			AccessTTL:  getEnvDuration("JWT_ACCESS_TTL", 24*time.Hour),
			RefreshTTL: getEnvDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
		},
		Scheduler: SchedulerConfig{
			Enabled:           getEnvBool("SCHEDULER_ENABLED", true),
			PollInterval:      getEnvDuration("SCHEDULER_POLL_INTERVAL", 15*time.Second),
			BatchSize:         getEnvInt("SCHEDULER_BATCH_SIZE", 50),
			MaxRetries:        getEnvInt("SCHEDULER_MAX_RETRIES", 3),
			BaseBackoff:       getEnvDuration("SCHEDULER_BASE_BACKOFF", 60*time.Second),
			DeviceConcurrency: getEnvInt("SCHEDULER_DEVICE_CONCURRENCY", 5),
			RateMinDelay:      getEnvDuration("SCHEDULER_RATE_MIN_DELAY", 300*time.Millisecond),
			RateMaxDelay:      getEnvDuration("SCHEDULER_RATE_MAX_DELAY", time.Second),
		},
		Queue: QueueConfig{
			Enabled:       getEnvBool("QUEUE_ENABLED", false),
			Name:          getEnvString("QUEUE_NAME", "wage-scheduler-queue"),
			Concurrency:   getEnvInt("QUEUE_CONCURRENCY", 10),
			RedisAddr:     getEnvString("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnvString("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
		},
		Session: SessionConfig{
			CredentialDir:    getEnvString("SESSION_CREDENTIAL_DIR", "sessions"),
			ReconnectDelay:   getEnvDuration("SESSION_RECONNECT_DELAY", 1500*time.Millisecond),
			ReconnectJitter:  getEnvDuration("SESSION_RECONNECT_JITTER", 500*time.Millisecond),
			CredSaveDebounce: getEnvDuration("SESSION_CRED_SAVE_DEBOUNCE", 500*time.Millisecond),
			EventLogSize:     getEnvInt("SESSION_EVENT_LOG_SIZE", 32),
		},
		Media: MediaConfig{
			UploadsDir:       getEnvString("MEDIA_UPLOADS_DIR", "uploads"),
			PublicBaseURL:    getEnvString("MEDIA_PUBLIC_BASE_URL", ""),
			MaxImageBytes:    getEnvInt64("MEDIA_MAX_IMAGE_BYTES", 16<<20),
			MaxVideoBytes:    getEnvInt64("MEDIA_MAX_VIDEO_BYTES", 64<<20),
			MaxAudioBytes:    getEnvInt64("MEDIA_MAX_AUDIO_BYTES", 16<<20),
			MaxDocumentBytes: getEnvInt64("MEDIA_MAX_DOCUMENT_BYTES", 100<<20),
		},
		Logging: LoggingConfig{
			File:       getEnvString("LOG_FILE", ""),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Addr:    getEnvString("METRICS_ADDR", ":9091"),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot work
func (c *ProductionConfig) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.Database.Host == "" || c.Database.Name == "" {
		return fmt.Errorf("database host and name are required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Scheduler.PollInterval < time.Second {
		return fmt.Errorf("scheduler poll interval must be at least 1s")
	}
	if c.Scheduler.RateMaxDelay < c.Scheduler.RateMinDelay {
		return fmt.Errorf("scheduler rate window is inverted")
	}
	if c.Queue.Enabled && c.Queue.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required when the queue is enabled")
	}
	return nil
}

// loadEnvFile reads KEY=VALUE lines into the environment without
// overriding variables that are already set
func loadEnvFile(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
}

func getEnvString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
