package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults applied when the corresponding variable is unset or malformed.
var (
	DefaultResolutionTimeout = 2 * time.Second
	DefaultAuditScanInterval = 6 * time.Hour
)

// Server captures process-wide configuration.
type Server struct {
	Addr              string
	SessionSigningKey string
	AdminToken        string
	ResolutionTimeout time.Duration
	AuditScanInterval time.Duration
	SchemaFile        string
	LogLevel          slog.Level

	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
}

// DatabaseConfig configures the Postgres connection shared by the directory
// stores and the storage engine adapter. An empty URL selects in-memory stores.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the session revocation list. Empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	KeyPrefix    string
}

// KafkaConfig configures the audit event sink. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers         string
	AuditTopic      string
	DeliveryTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:              getEnv("TENANTGUARD_ADDR", ":8080"),
		SessionSigningKey: os.Getenv("SESSION_SIGNING_KEY"),
		AdminToken:        os.Getenv("ADMIN_TOKEN"),
		ResolutionTimeout: getDuration("RESOLUTION_TIMEOUT", DefaultResolutionTimeout),
		AuditScanInterval: getDuration("AUDIT_SCAN_INTERVAL", DefaultAuditScanInterval),
		SchemaFile:        os.Getenv("SCHEMA_FILE"),
		LogLevel:          parseLevel(os.Getenv("LOG_LEVEL")),
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			KeyPrefix:    getEnv("REDIS_KEY_PREFIX", "tenantguard:revoked:"),
		},
		Kafka: KafkaConfig{
			Brokers:         os.Getenv("KAFKA_BROKERS"),
			AuditTopic:      getEnv("KAFKA_AUDIT_TOPIC", "tenantguard.audit"),
			DeliveryTimeout: getDuration("KAFKA_DELIVERY_TIMEOUT", 30*time.Second),
		},
	}
}

// KafkaBrokers splits the comma-separated broker list.
func (k KafkaConfig) KafkaBrokers() []string {
	var out []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
