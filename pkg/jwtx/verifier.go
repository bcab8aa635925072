package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingKID  = errors.New("jwtx: missing kid")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")
	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrAudience    = errors.New("jwtx: audience mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
)

// Verifier validates a token and returns its claims.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// EdDSAVerifier validates tokens against the Ed25519 keys of a KeySet.
type EdDSAVerifier struct {
	keys   *KeySet
	issuer string
	aud    []string
	leeway time.Duration
}

// NewVerifier returns a verifier enforcing issuer and audience. Empty
// values are not checked.
func NewVerifier(keys *KeySet, issuer string, aud []string) *EdDSAVerifier {
	return &EdDSAVerifier{keys: keys, issuer: issuer, aud: aud, leeway: 5 * time.Second}
}

// Verify parses tokenStr, checks the signature and the registered claims.
func (v *EdDSAVerifier) Verify(tokenStr string) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithLeeway(v.leeway),
	)

	var claims Claims
	token, err := parser.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrMissingKID
		}
		pub, err := v.keys.Get(kid)
		if err != nil {
			return nil, fmt.Errorf("%w %q", ErrUnknownKID, kid)
		}
		return pub, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Claims{}, ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return Claims{}, ErrNotYetValid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return Claims{}, ErrInvalidSig
	case err != nil:
		return Claims{}, fmt.Errorf("jwtx: parse or verify: %w", err)
	case !token.Valid:
		return Claims{}, ErrInvalidSig
	}

	if err := claims.Validate(v.issuer, v.aud); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

var _ Verifier = (*EdDSAVerifier)(nil)
