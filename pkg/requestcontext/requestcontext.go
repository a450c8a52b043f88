// Package requestcontext carries per-request values (request ID, bearer token,
// client address) through context.Context without leaking transport types.
package requestcontext

import (
	"context"
	"time"
)

type (
	requestIDKey    struct{}
	sessionTokenKey struct{}
	clientIPKey     struct{}
	clientAgentKey  struct{}
	nowKey          struct{}
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the request ID stored in ctx, or "" when absent.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// WithSessionToken stores the raw bearer token. It is handed to the gateway
// untouched; only the identity resolver interprets it.
func WithSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, sessionTokenKey{}, token)
}

func SessionToken(ctx context.Context) string {
	v, _ := ctx.Value(sessionTokenKey{}).(string)
	return v
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func ClientIP(ctx context.Context) string {
	v, _ := ctx.Value(clientIPKey{}).(string)
	return v
}

// WithClientAgent stores a coarse client label such as "firefox/linux/desktop".
func WithClientAgent(ctx context.Context, agent string) context.Context {
	return context.WithValue(ctx, clientAgentKey{}, agent)
}

func ClientAgent(ctx context.Context) string {
	v, _ := ctx.Value(clientAgentKey{}).(string)
	return v
}

// WithTime pins the request's notion of "now" so every timestamp written while
// handling one request agrees.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, nowKey{}, t)
}

// Now returns the pinned request time, or the current UTC time.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(nowKey{}).(time.Time); ok && !t.IsZero() {
		return t
	}
	return time.Now().UTC()
}
