package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/emstore/pkg/jwtx"
	"github.com/aussiebroadwan/emstore/pkg/slogx"
)

// DefaultSessionCookie names the cookie holding the opaque session token.
const DefaultSessionCookie = "sessionid"

// ErrNoSession is returned by a SessionLookup for unknown or expired tokens.
var ErrNoSession = errors.New("httpx: no such session")

// SessionLookup resolves a session cookie value to its owner.
type SessionLookup func(ctx context.Context, token string) (Principal, error)

// Authenticator accepts either a bearer JWT or a session cookie.
type Authenticator struct {
	Verifier      jwtx.Verifier
	Sessions      SessionLookup
	SessionCookie string
}

// Require rejects requests without valid credentials with 401.
func (a *Authenticator) Require() Middleware {
	return a.middleware(true)
}

// Optional attaches a Principal when credentials are valid and lets
// everything else through anonymously.
func (a *Authenticator) Optional() Middleware {
	return a.middleware(false)
}

func (a *Authenticator) middleware(required bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			p, err := a.authenticate(r)
			if err != nil {
				if !required {
					next.ServeHTTP(w, r)
					return
				}
				slogx.FromContext(ctx).Debug("authentication failed", "err", err)
				if strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
					w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				}
				WriteError(w, http.StatusUnauthorized, "not_authenticated", "Authentication credentials were not provided or are invalid.")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, p)))
		})
	}
}

var errNoCredentials = errors.New("httpx: no credentials")

func (a *Authenticator) authenticate(r *http.Request) (Principal, error) {
	if raw, ok := bearerToken(r); ok {
		if a.Verifier == nil {
			return Principal{}, errNoCredentials
		}
		claims, err := a.Verifier.Verify(raw)
		if err != nil {
			return Principal{}, err
		}
		return Principal{
			UserID:   claims.Subject,
			Username: claims.Username,
			Email:    claims.Email,
			Method:   MethodBearer,
		}, nil
	}

	if a.Sessions == nil {
		return Principal{}, errNoCredentials
	}
	name := a.SessionCookie
	if name == "" {
		name = DefaultSessionCookie
	}
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return Principal{}, errNoCredentials
	}
	p, err := a.Sessions(r.Context(), c.Value)
	if err != nil {
		return Principal{}, err
	}
	p.Method = MethodSession
	return p, nil
}

func bearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	return raw, raw != ""
}
