// Package admin guards the operator surface: tenant lifecycle, user
// assignment, audits and repairs.
package admin

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"tenantguard/pkg/requestcontext"
)

// MaxActorIDLength caps X-Admin-Actor-ID; the value lands in audit events.
const MaxActorIDLength = 64

var validActorID = regexp.MustCompile(`^[a-zA-Z0-9@._:-]+$`)

type actorKey struct{}

// WithActorID stores the operator identity recorded on audit events.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// GetAdminActorID returns the X-Admin-Actor-ID captured for audit attribution, or "".
func GetAdminActorID(ctx context.Context) string {
	actorID, _ := ctx.Value(actorKey{}).(string)
	return actorID
}

// RequireAdminToken checks X-Admin-Token. The expected value may be a bcrypt
// hash ("$2a$", "$2b$", "$2y$") so the plaintext never has to live in the
// deployment environment. An empty expected token rejects every request.
// A malformed X-Admin-Actor-ID is a 400 rather than being dropped, so audit
// attribution is never silently lost.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	hashed := isBcryptHash(expectedToken)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if !tokenMatches(r.Header.Get("X-Admin-Token"), expectedToken, hashed) {
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestcontext.RequestID(ctx),
				)
				reject(w, http.StatusUnauthorized, "unauthorized", "admin token required")
				return
			}

			if actorID := r.Header.Get("X-Admin-Actor-ID"); actorID != "" {
				if len(actorID) > MaxActorIDLength || !validActorID.MatchString(actorID) {
					reject(w, http.StatusBadRequest, "bad_request", "invalid X-Admin-Actor-ID")
					return
				}
				ctx = WithActorID(ctx, actorID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func reject(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + code + `","error_description":"` + description + `"}`))
}

func tokenMatches(token, expected string, hashed bool) bool {
	if token == "" || expected == "" {
		return false
	}
	if hashed {
		return bcrypt.CompareHashAndPassword([]byte(expected), []byte(token)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
