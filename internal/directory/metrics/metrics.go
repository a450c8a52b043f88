package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	TenantCreated       prometheus.Counter
	TenantAssigned      prometheus.Counter
	HintMismatches      prometheus.Counter
	ResolveTenantResult *prometheus.CounterVec
	ResolveDuration     prometheus.Histogram
}

// New registers the directory metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TenantCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "tenantguard_tenants_created_total",
			Help: "Total number of tenants created",
		}),
		TenantAssigned: f.NewCounter(prometheus.CounterOpts{
			Name: "tenantguard_tenant_assignments_total",
			Help: "Successful user-to-tenant assignments",
		}),
		HintMismatches: f.NewCounter(prometheus.CounterOpts{
			Name: "tenantguard_tenant_hint_mismatches_total",
			Help: "Sessions whose tenant claim disagreed with the directory",
		}),
		ResolveTenantResult: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantguard_tenant_resolutions_total",
			Help: "Tenant lookups by outcome",
		}, []string{"outcome"}),
		ResolveDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tenantguard_tenant_resolution_duration_seconds",
			Help:    "Duration of authoritative tenant lookups (on every gateway call)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncrementTenantCreated() {
	m.TenantCreated.Inc()
}

func (m *Metrics) IncrementTenantAssigned() {
	m.TenantAssigned.Inc()
}

func (m *Metrics) IncrementHintMismatch() {
	m.HintMismatches.Inc()
}

func (m *Metrics) ObserveResolve(outcome string, start time.Time) {
	m.ResolveTenantResult.WithLabelValues(outcome).Inc()
	m.ResolveDuration.Observe(time.Since(start).Seconds())
}
