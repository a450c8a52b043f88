package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions         *prometheus.CounterVec
	MaintenanceAccess prometheus.Counter
}

// New registers the validator metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the validator metrics on reg; tests pass a fresh registry.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantguard_authorization_decisions_total",
			Help: "Row ownership decisions by operation and reason",
		}, []string{"operation", "reason"}),
		MaintenanceAccess: f.NewCounter(prometheus.CounterOpts{
			Name: "tenantguard_maintenance_cross_tenant_access_total",
			Help: "Cross-tenant accesses granted to system maintenance principals",
		}),
	}
}

func (m *Metrics) IncDecision(operation, reason string) {
	m.Decisions.WithLabelValues(operation, reason).Inc()
}

func (m *Metrics) IncMaintenanceAccess() {
	m.MaintenanceAccess.Inc()
}
