// Package auth extracts the caller's session token from the Authorization header.
//
// Verification is deliberately absent here: the token is passed through to the
// access gateway, whose identity resolver is the single place sessions are
// interpreted. This middleware only rejects requests that carry no token at all.
package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"tenantguard/pkg/requestcontext"
)

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// BearerToken returns the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// RequireBearer stores the bearer token in the request context and answers
// 401 when the header is missing or malformed.
func RequireBearer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := BearerToken(r)
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithSessionToken(ctx, token)))
		})
	}
}
