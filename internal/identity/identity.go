// Package identity turns a session token into an authenticated identity.
// The tenant claim carried by a session is kept only as a hint; the tenant
// directory is the authority.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	identitymetrics "tenantguard/internal/identity/metrics"
	id "tenantguard/pkg/domain"
	dErrors "tenantguard/pkg/domain-errors"
	"tenantguard/pkg/requestcontext"
)

// Identity is the authenticated caller. Never persisted.
type Identity struct {
	UserID          id.UserID
	SessionID       id.SessionID
	ClaimedTenantID *id.TenantID
	ExpiresAt       time.Time
}

// VerifiedSession is what the authentication subsystem vouches for.
type VerifiedSession struct {
	UserID    string
	SessionID string
	ExpiresAt time.Time
	Claims    map[string]any
}

// SessionVerifier checks a token's signature and expiry.
type SessionVerifier interface {
	VerifySession(ctx context.Context, token string) (*VerifiedSession, error)
}

// RevocationChecker reports whether a session has been revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// Resolver resolves session tokens. It has no side effects beyond logs and metrics.
type Resolver struct {
	verifier   SessionVerifier
	revocation RevocationChecker
	logger     *slog.Logger
	metrics    *identitymetrics.Metrics
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func WithRevocation(checker RevocationChecker) Option {
	return func(r *Resolver) {
		r.revocation = checker
	}
}

func WithMetrics(m *identitymetrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

func NewResolver(verifier SessionVerifier, opts ...Option) *Resolver {
	r := &Resolver{verifier: verifier}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveIdentity verifies token and returns who it belongs to.
//
// Missing, invalid, expired or revoked tokens fail with CodeUnauthorized.
// If ctx expires while verifying, the error wraps context.DeadlineExceeded
// so callers can fail closed with a timeout denial.
func (r *Resolver) ResolveIdentity(ctx context.Context, token string) (*Identity, error) {
	identity, err := r.resolve(ctx, token)
	r.record(err)
	return identity, err
}

func (r *Resolver) resolve(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "session token required")
	}
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "identity resolution aborted")
	}

	session, err := r.verifier.VerifySession(ctx, token)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, dErrors.Wrap(ctxErr, dErrors.CodeTimeout, "identity resolution aborted")
		}
		r.debug(ctx, "session verification failed", "error", err)
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session")
	}

	userID, err := id.ParseUserID(session.UserID)
	if err != nil {
		r.debug(ctx, "session carries an invalid user id", "error", err)
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session")
	}
	if !session.ExpiresAt.IsZero() && !requestcontext.Now(ctx).Before(session.ExpiresAt) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "session expired")
	}

	var sessionID id.SessionID
	if session.SessionID != "" {
		sessionID, err = id.ParseSessionID(session.SessionID)
		if err != nil {
			r.debug(ctx, "session carries an invalid session id", "error", err)
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session")
		}
	}

	if r.revocation != nil && !sessionID.IsNil() {
		revoked, err := r.revocation.IsRevoked(ctx, sessionID.String())
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, dErrors.Wrap(ctxErr, dErrors.CodeTimeout, "identity resolution aborted")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeStorage, "revocation check failed")
		}
		if revoked {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "session revoked")
		}
	}

	return &Identity{
		UserID:          userID,
		SessionID:       sessionID,
		ClaimedTenantID: r.tenantHint(ctx, session.Claims),
		ExpiresAt:       session.ExpiresAt,
	}, nil
}

// tenantHint reads tenant_id, falling back to app_metadata.tenant_id. An
// unusable value is dropped: the hint is never authoritative.
func (r *Resolver) tenantHint(ctx context.Context, claims map[string]any) *id.TenantID {
	raw, ok := claims["tenant_id"].(string)
	if !ok || raw == "" {
		if meta, isMap := claims["app_metadata"].(map[string]any); isMap {
			raw, ok = meta["tenant_id"].(string)
		}
	}
	if !ok || raw == "" {
		return nil
	}
	tenantID, err := id.ParseTenantID(raw)
	if err != nil {
		r.debug(ctx, "dropping unparsable tenant hint", "tenant_hint", raw)
		return nil
	}
	return &tenantID
}

func (r *Resolver) record(err error) {
	if r.metrics == nil {
		return
	}
	switch {
	case err == nil:
		r.metrics.IncResolution("resolved")
	case errors.Is(err, context.DeadlineExceeded):
		r.metrics.IncResolution("timeout")
	default:
		r.metrics.IncResolution(string(dErrors.CodeOf(err)))
	}
}

func (r *Resolver) debug(ctx context.Context, msg string, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.DebugContext(ctx, msg, append(args, "request_id", requestcontext.RequestID(ctx))...)
}
