// Package auth verifies bearer tokens that carry the caller's tenant and user.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/retail/ledger/internal/infrastructure/config"
)

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrMissingTenantID  = errors.New("missing tenant_id in claims")
	ErrMissingUserID    = errors.New("missing user_id in claims")
)

// Claims are the ledger's JWT claims. The token is issued by the identity
// provider in front of the ledger; the ledger only reads tenant and user.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
}

// TokenVerifier validates HS256 access tokens
type TokenVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokenVerifier creates a verifier from the auth configuration.
// An empty issuer accepts tokens from any issuer.
func NewTokenVerifier(cfg config.AuthConfig) *TokenVerifier {
	return &TokenVerifier{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.JWTIssuer,
		now:    time.Now,
	}
}

// Verify checks the signature and validity window of token and returns the
// tenant and user it was issued for
func (v *TokenVerifier) Verify(token string) (tenantID, userID uuid.UUID, err error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return uuid.Nil, uuid.Nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return uuid.Nil, uuid.Nil, ErrTokenNotYetValid
		}
		return uuid.Nil, uuid.Nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return uuid.Nil, uuid.Nil, ErrInvalidClaims
	}
	if claims.TenantID == "" {
		return uuid.Nil, uuid.Nil, ErrMissingTenantID
	}
	if claims.UserID == "" {
		return uuid.Nil, uuid.Nil, ErrMissingUserID
	}

	tenantID, err = uuid.Parse(claims.TenantID)
	if err != nil || tenantID == uuid.Nil {
		return uuid.Nil, uuid.Nil, ErrInvalidClaims
	}
	userID, err = uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, uuid.Nil, ErrInvalidClaims
	}
	return tenantID, userID, nil
}

// Issue signs a token for tenant and user valid for ttl. It exists for tests and
// local tooling; production tokens come from the identity provider.
func (v *TokenVerifier) Issue(tenantID, userID uuid.UUID, ttl time.Duration) (string, error) {
	now := v.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    v.issuer,
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		TenantID: tenantID.String(),
		UserID:   userID.String(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
