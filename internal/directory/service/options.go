package service

import (
	"log/slog"

	directorymetrics "tenantguard/internal/directory/metrics"
	"tenantguard/internal/schema"
	"tenantguard/pkg/platform/audit"
)

// serviceConfig holds optional dependencies for the directory service.
type serviceConfig struct {
	logger       *slog.Logger
	auditEmitter audit.Emitter
	metrics      *directorymetrics.Metrics
	tx           StoreTx
	rows         RowCounter
	registry     *schema.Registry
}

// Option configures the service.
type Option func(c *serviceConfig)

func WithLogger(logger *slog.Logger) Option {
	return func(c *serviceConfig) {
		c.logger = logger
	}
}

func WithAuditEmitter(emitter audit.Emitter) Option {
	return func(c *serviceConfig) {
		c.auditEmitter = emitter
	}
}

func WithMetrics(m *directorymetrics.Metrics) Option {
	return func(c *serviceConfig) {
		c.metrics = m
	}
}

// WithTx replaces the default in-memory lock with a database transaction.
func WithTx(tx StoreTx) Option {
	return func(c *serviceConfig) {
		c.tx = tx
	}
}

// WithUsage enables TenantUsage by giving the service read access to row
// counts for the registry's quota tables.
func WithUsage(rows RowCounter, registry *schema.Registry) Option {
	return func(c *serviceConfig) {
		c.rows = rows
		c.registry = registry
	}
}
