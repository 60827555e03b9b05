package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	EventStore   EventStoreConfig
	Auth         AuthConfig
	Upload       UploadConfig
	Notification NotificationConfig
	HIS          HISConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// Pool tuning
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// EventStoreConfig holds configuration for EventStoreDB.
type EventStoreConfig struct {
	// Host is the EventStoreDB server hostname
	Host string
	// Port is the gRPC port (default 2113)
	Port int
	// Insecure disables TLS (for development)
	Insecure bool
	// Username for authentication (optional)
	Username string
	// Password for authentication (optional)
	Password string
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// UploadConfig holds configuration for document uploads.
type UploadConfig struct {
	// Dir is the local directory where uploaded files are stored
	Dir string
	// MaxBytes caps the size of a single upload
	MaxBytes int64
}

// NotificationConfig holds configuration for appointment reminders.
type NotificationConfig struct {
	Workers       int
	BufferSize    int
	RetryAttempts int
	RetryDelay    time.Duration
	// ReminderLead is how far ahead of an appointment the reminder fires
	ReminderLead time.Duration
}

// HISConfig holds configuration for the legacy hospital system import.
type HISConfig struct {
	Enabled      bool
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	SSLMode      string
	PollInterval time.Duration
}

func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "vitalink"),
			Password: getEnv("DB_PASSWORD", "vitalink"),
			Database: getEnv("DB_NAME", "vitalink"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),

			MaxConns:        int32(getEnvInt("DB_MAX_CONNS", 20)),
			MinConns:        int32(getEnvInt("DB_MIN_CONNS", 2)),
			MaxConnLifetime: getEnvDuration("DB_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvDuration("DB_CONN_IDLE_TIME", 5*time.Minute),
		},
		EventStore: EventStoreConfig{
			Host:     getEnv("EVENTSTORE_HOST", "localhost"),
			Port:     getEnvInt("EVENTSTORE_PORT", 2113),
			Insecure: getEnvBool("EVENTSTORE_INSECURE", true),
			Username: getEnv("EVENTSTORE_USERNAME", ""),
			Password: getEnv("EVENTSTORE_PASSWORD", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
			Issuer:    getEnv("JWT_ISSUER", "vitalink"),
		},
		Upload: UploadConfig{
			Dir:      getEnv("UPLOAD_DIR", "./uploads"),
			MaxBytes: getEnvInt64("UPLOAD_MAX_BYTES", 25<<20),
		},
		Notification: NotificationConfig{
			Workers:       getEnvInt("NOTIF_WORKERS", 4),
			BufferSize:    getEnvInt("NOTIF_BUFFER_SIZE", 1000),
			RetryAttempts: getEnvInt("NOTIF_RETRY_ATTEMPTS", 3),
			RetryDelay:    getEnvDuration("NOTIF_RETRY_DELAY", 30*time.Second),
			ReminderLead:  getEnvDuration("NOTIF_REMINDER_LEAD", 24*time.Hour),
		},
		HIS: HISConfig{
			Enabled:      getEnvBool("HIS_ENABLED", false),
			Host:         getEnv("HIS_HOST", "localhost"),
			Port:         getEnvInt("HIS_PORT", 1433),
			User:         getEnv("HIS_USER", "sa"),
			Password:     getEnv("HIS_PASSWORD", ""),
			Database:     getEnv("HIS_DATABASE", "hospital"),
			SSLMode:      getEnv("HIS_SSLMODE", "disable"),
			PollInterval: getEnvDuration("HIS_POLL_INTERVAL", 5*time.Minute),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
