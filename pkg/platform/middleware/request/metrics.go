package request

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics labels requests by chi route pattern, never by raw path, so tenant
// and row IDs in URLs do not become label values.
type Metrics struct {
	EndpointLatency *prometheus.HistogramVec
	Responses       *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EndpointLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tenantguard_endpoint_latency_seconds",
			Help:    "Latency of HTTP endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		Responses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantguard_http_responses_total",
			Help: "HTTP responses by route and status class",
		}, []string{"method", "route", "class"}),
	}
}

func (m *Metrics) observe(method, route string, status int, elapsed time.Duration) {
	m.EndpointLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
	m.Responses.WithLabelValues(method, route, strconv.Itoa(status/100)+"xx").Inc()
}

// LatencyMiddleware records latency and status class per route. Requests that
// match no route are recorded under "unmatched".
func LatencyMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}
			m.observe(r.Method, route, wrapped.statusCode, time.Since(start))
		})
	}
}
