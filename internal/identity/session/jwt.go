// Package session verifies and mints HS256 session tokens.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"tenantguard/internal/identity"
	id "tenantguard/pkg/domain"
	dErrors "tenantguard/pkg/domain-errors"
	"tenantguard/pkg/requestcontext"
)

// Claims is the token payload. TenantID and AppMetadata carry the tenant
// hint; the subject is the user ID.
type Claims struct {
	SessionID   string         `json:"session_id,omitempty"`
	TenantID    string         `json:"tenant_id,omitempty"`
	AppMetadata map[string]any `json:"app_metadata,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier implements identity.SessionVerifier for HS256 tokens.
type JWTVerifier struct {
	signingKey []byte
	issuer     string
	audience   string
	leeway     time.Duration
}

type VerifierOption func(*JWTVerifier)

func WithIssuer(issuer string) VerifierOption {
	return func(v *JWTVerifier) {
		v.issuer = issuer
	}
}

func WithAudience(audience string) VerifierOption {
	return func(v *JWTVerifier) {
		v.audience = audience
	}
}

func WithLeeway(d time.Duration) VerifierOption {
	return func(v *JWTVerifier) {
		v.leeway = d
	}
}

func NewJWTVerifier(signingKey string, opts ...VerifierOption) *JWTVerifier {
	v := &JWTVerifier{signingKey: []byte(signingKey)}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

var _ identity.SessionVerifier = (*JWTVerifier)(nil)

func (v *JWTVerifier) VerifySession(ctx context.Context, token string) (*identity.VerifiedSession, error) {
	if token == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "empty token")
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return requestcontext.Now(ctx) }),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}

	claims := new(Claims)
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token expired")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	sessionID := claims.SessionID
	if sessionID == "" {
		sessionID = claims.ID
	}

	hints := map[string]any{}
	if claims.TenantID != "" {
		hints["tenant_id"] = claims.TenantID
	}
	if claims.AppMetadata != nil {
		hints["app_metadata"] = claims.AppMetadata
	}

	return &identity.VerifiedSession{
		UserID:    claims.Subject,
		SessionID: sessionID,
		ExpiresAt: claims.ExpiresAt.Time,
		Claims:    hints,
	}, nil
}

// Signer mints tokens the verifier accepts. Used by tenantctl and tests.
type Signer struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewSigner(signingKey, issuer, audience string) *Signer {
	return &Signer{signingKey: []byte(signingKey), issuer: issuer, audience: audience}
}

// IssueParams describes a session token. A zero SessionID gets a fresh one.
type IssueParams struct {
	UserID    id.UserID
	SessionID id.SessionID
	TTL       time.Duration
	// TenantHint is written to tenant_id, or to app_metadata.tenant_id when
	// HintInAppMetadata is set.
	TenantHint        string
	HintInAppMetadata bool
}

func (s *Signer) Issue(ctx context.Context, p IssueParams) (string, error) {
	if p.UserID.IsNil() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "user id required")
	}
	if p.TTL <= 0 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "ttl must be positive")
	}
	sessionID := p.SessionID
	if sessionID.IsNil() {
		sessionID = id.SessionID(uuid.New())
	}
	now := requestcontext.Now(ctx)

	claims := Claims{
		SessionID: sessionID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.TTL)),
			Issuer:    s.issuer,
		},
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}
	if p.TenantHint != "" {
		if p.HintInAppMetadata {
			claims.AppMetadata = map[string]any{"tenant_id": p.TenantHint}
		} else {
			claims.TenantID = p.TenantHint
		}
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
}
