package httpx

import (
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/emstore/pkg/cryptox"
	"github.com/aussiebroadwan/emstore/pkg/slogx"
)

// Double-submit CSRF defaults.
const (
	DefaultCSRFCookie = "csrftoken"
	DefaultCSRFHeader = "X-CSRFToken"
)

// CSRF implements the double-submit cookie pattern: unsafe requests must
// echo the csrftoken cookie in the X-CSRFToken header.
type CSRF struct {
	CookieName string
	HeaderName string
	MaxAge     time.Duration
	Secure     bool

	// Exempt paths skip the check. An Authorization header is no exemption;
	// mount the middleware only on servers that authenticate by cookie.
	Exempt []string
}

func (c *CSRF) cookieName() string {
	if c.CookieName == "" {
		return DefaultCSRFCookie
	}
	return c.CookieName
}

func (c *CSRF) headerName() string {
	if c.HeaderName == "" {
		return DefaultCSRFHeader
	}
	return c.HeaderName
}

// Issue mints a fresh token, sets it as the cookie and echoes it in the
// response header so clients can pick up the rotation.
func (c *CSRF) Issue(w http.ResponseWriter) (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", err
	}

	maxAge := c.MaxAge
	if maxAge <= 0 {
		maxAge = 365 * 24 * time.Hour
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.cookieName(),
		Value:    token,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set(c.headerName(), token)
	return token, nil
}

// Middleware rejects unsafe requests whose header does not match the cookie.
func (c *CSRF) Middleware() Middleware {
	exempt := make(map[string]struct{}, len(c.Exempt))
	for _, p := range c.Exempt {
		exempt[strings.TrimSuffix(p, "/")] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := exempt[strings.TrimSuffix(r.URL.Path, "/")]; ok {
				next.ServeHTTP(w, r)
				return
			}

			var cookie string
			if ck, err := r.Cookie(c.cookieName()); err == nil {
				cookie = ck.Value
			}
			if !cryptox.EqualTokens(cookie, r.Header.Get(c.headerName())) {
				slogx.FromContext(r.Context()).Info("csrf check failed",
					"path", r.URL.Path,
					"has_cookie", cookie != "",
				)
				WriteError(w, http.StatusForbidden, "csrf_failed", "CSRF token missing or incorrect.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isSafeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
