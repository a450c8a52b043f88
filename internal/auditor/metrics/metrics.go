package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Anomalies    *prometheus.GaugeVec
	ScanDuration prometheus.Histogram
	ScanFailures prometheus.Counter
	Repairs      *prometheus.CounterVec
}

func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Anomalies: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tenantguard_auditor_anomalies",
			Help: "Anomalies found by the most recent full scan, by kind",
		}, []string{"kind"}),
		ScanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tenantguard_auditor_scan_duration_seconds",
			Help:    "Consistency scan duration",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		ScanFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "tenantguard_auditor_scan_failures_total",
			Help: "Scans that ended in an error",
		}),
		Repairs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantguard_auditor_repairs_total",
			Help: "Repairs by strategy and result",
		}, []string{"strategy", "result"}),
	}
}

func (m *Metrics) ObserveScan(start time.Time, err error) {
	m.ScanDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		m.ScanFailures.Inc()
	}
}

func (m *Metrics) SetAnomalies(byKind map[string]int, kinds []string) {
	for _, k := range kinds {
		m.Anomalies.WithLabelValues(k).Set(float64(byKind[k]))
	}
}

func (m *Metrics) IncRepair(strategy, result string) {
	m.Repairs.WithLabelValues(strategy, result).Inc()
}
