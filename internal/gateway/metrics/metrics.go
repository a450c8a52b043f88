package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Requests      *prometheus.CounterVec
	Duration      *prometheus.HistogramVec
	LeakedRows    prometheus.Counter
	Compensations *prometheus.CounterVec
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantguard_gateway_requests_total",
			Help: "Gateway calls by table, operation and outcome",
		}, []string{"table", "operation", "outcome"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tenantguard_gateway_duration_seconds",
			Help:    "Gateway call latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"operation"}),
		LeakedRows: f.NewCounter(prometheus.CounterOpts{
			Name: "tenantguard_gateway_leaked_rows_total",
			Help: "Rows returned by the engine that failed tenant re-validation",
		}),
		Compensations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantguard_gateway_compensations_total",
			Help: "Compensating deletes after a failed multi-step create",
		}, []string{"result"}),
	}
}

func (m *Metrics) ObserveRequest(table, operation, outcome string, start time.Time) {
	m.Requests.WithLabelValues(table, operation, outcome).Inc()
	m.Duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncLeakedRow() {
	m.LeakedRows.Inc()
}

func (m *Metrics) IncCompensation(result string) {
	m.Compensations.WithLabelValues(result).Inc()
}
