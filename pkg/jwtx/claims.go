package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token lifetimes for the bearer scheme.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Claims are the access-token claims issued by the dev server.
type Claims struct {
	jwt.RegisteredClaims

	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// NewAccessClaims builds claims for a user access token valid from now
// until now+ttl.
func NewAccessClaims(
	subject, username, email string,
	ttl time.Duration,
	issuer string,
	audience []string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings(audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Username: username,
		Email:    email,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// Validate checks the issuer and that at least one expected audience is
// present. Empty expectations are not checked. Time-based claims are
// enforced by the parser.
func (c *Claims) Validate(issuer string, audience []string) error {
	if issuer != "" && c.Issuer != issuer {
		return ErrIssuer
	}
	if len(audience) == 0 {
		return nil
	}
	if slices.ContainsFunc(audience, func(want string) bool { return slices.Contains(c.Audience, want) }) {
		return nil
	}
	return ErrAudience
}
