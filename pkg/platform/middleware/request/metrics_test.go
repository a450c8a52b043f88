package request

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestLatencyMiddlewareUsesRoutePattern(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(LatencyMiddleware(m))
	r.Get("/admin/tenants/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, path := range []string{"/admin/tenants/a", "/admin/tenants/b", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.InDelta(t, 2, testutil.ToFloat64(m.Responses.WithLabelValues("GET", "/admin/tenants/{id}", "4xx")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Responses.WithLabelValues("GET", "unmatched", "4xx")), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(m.EndpointLatency))
}

func TestLatencyMiddlewareWithoutMetrics(t *testing.T) {
	rec := httptest.NewRecorder()
	LatencyMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
