package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	"tenantguard/pkg/requestcontext"
)

// RequireBearerSuite tests bearer token extraction.
//
// Justification: Every gateway call starts here. A request without a token
// must never reach the gateway handler, and the token must reach it unaltered.
type RequireBearerSuite struct {
	suite.Suite
	logger *slog.Logger
}

func TestRequireBearerSuite(t *testing.T) {
	suite.Run(t, new(RequireBearerSuite))
}

func (s *RequireBearerSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

type captureHandler struct {
	called bool
	ctx    context.Context
}

func (h *captureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.ctx = r.Context()
	w.WriteHeader(http.StatusOK)
}

func (s *RequireBearerSuite) TestExtraction() {
	s.Run("valid bearer header stores token", func() {
		next := &captureHandler{}
		req := httptest.NewRequest(http.MethodPost, "/v1/execute", nil)
		req.Header.Set("Authorization", "Bearer abc.def.ghi")
		w := httptest.NewRecorder()

		RequireBearer(s.logger)(next).ServeHTTP(w, req)

		s.True(next.called)
		s.Equal("abc.def.ghi", requestcontext.SessionToken(next.ctx))
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("missing header is rejected", func() {
		next := &captureHandler{}
		w := httptest.NewRecorder()
		RequireBearer(s.logger)(next).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/execute", nil))

		s.False(next.called)
		s.Equal(http.StatusUnauthorized, w.Code)
		s.Contains(w.Body.String(), "unauthorized")
	})

	s.Run("non-bearer scheme is rejected", func() {
		next := &captureHandler{}
		req := httptest.NewRequest(http.MethodPost, "/v1/execute", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		w := httptest.NewRecorder()
		RequireBearer(s.logger)(next).ServeHTTP(w, req)

		s.False(next.called)
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("empty bearer token is rejected", func() {
		next := &captureHandler{}
		req := httptest.NewRequest(http.MethodPost, "/v1/execute", nil)
		req.Header.Set("Authorization", "Bearer   ")
		w := httptest.NewRecorder()
		RequireBearer(s.logger)(next).ServeHTTP(w, req)

		s.False(next.called)
		s.Equal(http.StatusUnauthorized, w.Code)
	})
}
