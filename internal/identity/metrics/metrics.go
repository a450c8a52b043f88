package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Resolutions      *prometheus.CounterVec
	RevocationState  prometheus.Gauge
	RevocationErrors prometheus.Counter
}

// New registers the identity metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantguard_identity_resolutions_total",
			Help: "Session token resolutions by outcome",
		}, []string{"outcome"}),
		RevocationState: f.NewGauge(prometheus.GaugeOpts{
			Name: "tenantguard_revocation_circuit_open",
			Help: "1 while the revocation store circuit breaker is open",
		}),
		RevocationErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "tenantguard_revocation_errors_total",
			Help: "Failed revocation store lookups",
		}),
	}
}

func (m *Metrics) IncResolution(outcome string) {
	m.Resolutions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetRevocationCircuit(open bool) {
	if open {
		m.RevocationState.Set(1)
		return
	}
	m.RevocationState.Set(0)
}

func (m *Metrics) IncRevocationError() {
	m.RevocationErrors.Inc()
}
