package request

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantguard/pkg/requestcontext"
)

func TestRequestID(t *testing.T) {
	t.Run("generates UUID when no header provided", func(t *testing.T) {
		var capturedID string
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			capturedID = requestcontext.RequestID(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/v1/execute", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Len(t, capturedID, 36)
		assert.Equal(t, capturedID, w.Header().Get("X-Request-ID"))
	})

	t.Run("accepts valid client-provided ID", func(t *testing.T) {
		var capturedID string
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			capturedID = requestcontext.RequestID(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/v1/execute", nil)
		req.Header.Set("X-Request-ID", "trace.span_1234")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, "trace.span_1234", capturedID)
		assert.Equal(t, "trace.span_1234", w.Header().Get("X-Request-ID"))
	})

	t.Run("replaces IDs that could inject log lines", func(t *testing.T) {
		for _, bad := range []string{"valid\ninjected", "request id", `request"id`, strings.Repeat("a", MaxRequestIDLength+1)} {
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			req := httptest.NewRequest(http.MethodGet, "/v1/execute", nil)
			req.Header.Set("X-Request-ID", bad)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			got := w.Header().Get("X-Request-ID")
			assert.NotEqual(t, bad, got)
			assert.Len(t, got, 36)
		}
	})
}

func TestClientIP(t *testing.T) {
	var captured string
	handler := ClientIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = requestcontext.ClientIP(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "10.1.2.3", captured)
}

func TestClientAgent(t *testing.T) {
	capture := func(header string) string {
		var captured string
		handler := ClientAgent(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			captured = requestcontext.ClientAgent(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("User-Agent", header)
		}
		handler.ServeHTTP(httptest.NewRecorder(), req)
		return captured
	}

	t.Run("desktop browser", func(t *testing.T) {
		got := capture("Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0")
		assert.True(t, strings.HasPrefix(got, "firefox/"), got)
		assert.True(t, strings.HasSuffix(got, "/desktop"), got)
	})

	t.Run("mobile browser", func(t *testing.T) {
		got := capture("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1")
		assert.True(t, strings.HasSuffix(got, "/mobile"), got)
	})

	t.Run("crawler", func(t *testing.T) {
		assert.Equal(t, "bot", capture("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"))
	})

	t.Run("missing header", func(t *testing.T) {
		assert.Equal(t, "unknown", capture(""))
	})
}

func TestLoggerMasksClientAddress(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := ClientIP(ClientAgent(Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))))

	req := httptest.NewRequest(http.MethodGet, "/v1/records", nil)
	req.RemoteAddr = "203.0.113.77:4242"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "203.0.113.0", entry["client_net"])
	assert.Equal(t, "unknown", entry["client"])
	assert.EqualValues(t, http.StatusTeapot, entry["status"])
	assert.NotContains(t, buf.String(), "203.0.113.77")
}

func TestContentTypeJSON(t *testing.T) {
	handler := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/execute", strings.NewReader("x"))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/execute", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRecovery(t *testing.T) {
	handler := Recovery(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestBodyLimit(t *testing.T) {
	var readErr error
	handler := BodyLimit(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64))))
	assert.Error(t, readErr)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}")))
	assert.NoError(t, readErr)
}
