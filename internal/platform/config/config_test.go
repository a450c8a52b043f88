package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("TENANTGUARD_ADDR", "")
		t.Setenv("RESOLUTION_TIMEOUT", "")
		t.Setenv("LOG_LEVEL", "")

		cfg := FromEnv()
		assert.Equal(t, ":8080", cfg.Addr)
		assert.Equal(t, DefaultResolutionTimeout, cfg.ResolutionTimeout)
		assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
		assert.Equal(t, "tenantguard.audit", cfg.Kafka.AuditTopic)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("TENANTGUARD_ADDR", ":9090")
		t.Setenv("RESOLUTION_TIMEOUT", "750ms")
		t.Setenv("AUDIT_SCAN_INTERVAL", "1h")
		t.Setenv("LOG_LEVEL", "debug")
		t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

		cfg := FromEnv()
		assert.Equal(t, ":9090", cfg.Addr)
		assert.Equal(t, 750*time.Millisecond, cfg.ResolutionTimeout)
		assert.Equal(t, time.Hour, cfg.AuditScanInterval)
		assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.KafkaBrokers())
	})

	t.Run("malformed durations fall back", func(t *testing.T) {
		t.Setenv("RESOLUTION_TIMEOUT", "soon")
		t.Setenv("AUDIT_SCAN_INTERVAL", "-5m")

		cfg := FromEnv()
		assert.Equal(t, DefaultResolutionTimeout, cfg.ResolutionTimeout)
		assert.Equal(t, DefaultAuditScanInterval, cfg.AuditScanInterval)
	})
}
