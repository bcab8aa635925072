package authsdk

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/emstore/pkg/credstore"
	"github.com/aussiebroadwan/emstore/pkg/slogx"
)

// Scheme selects how requests are authenticated. Exactly one scheme is
// active per client.
type Scheme string

const (
	// SchemeCookieCSRF relies on a session cookie kept in the HTTP client's
	// cookie jar, with a CSRF token mirrored into a header on unsafe requests.
	SchemeCookieCSRF Scheme = "cookie+csrf"

	// SchemeBearer sends an access token on every request and exchanges a
	// refresh token when it is rejected.
	SchemeBearer Scheme = "bearer"
)

// ParseScheme validates a scheme name from configuration.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(strings.ToLower(strings.TrimSpace(s))) {
	case SchemeCookieCSRF, "cookie", "csrf", "":
		return SchemeCookieCSRF, nil
	case SchemeBearer:
		return SchemeBearer, nil
	default:
		return "", fmt.Errorf("authsdk: unknown scheme %q (want %q or %q)", s, SchemeCookieCSRF, SchemeBearer)
	}
}

// Default endpoint paths.
const (
	DefaultCSRFPath        = "/api/auth/csrf/"
	DefaultLoginPath       = "/api/auth/login/"
	DefaultRegisterPath    = "/api/auth/register/"
	DefaultLogoutPath      = "/api/auth/logout/"
	DefaultCurrentUserPath = "/api/auth/user/"
	DefaultSessionPath     = "/api/auth/session/"
	DefaultRefreshPath     = "/api/auth/refresh/"
)

// DefaultCSRFHeader is the request header the server reads the CSRF token
// from. Servers may also rotate the token by returning it under the same name.
const DefaultCSRFHeader = "X-CSRFToken"

// Default timeouts.
const (
	DefaultTokenTimeout   = 10 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	DefaultUploadTimeout  = 2 * time.Minute
	DefaultUserCacheTTL   = 5 * time.Minute
)

var ErrNoCookieJar = errors.New("authsdk: cookie+csrf scheme requires an http.Client with a cookie jar")

// Endpoints are paths relative to Config.BaseURL.
type Endpoints struct {
	CSRF        string
	Login       string
	Register    string
	Logout      string
	CurrentUser string
	Session     string
	Refresh     string
}

// Config configures a Client. Zero values fall back to the defaults above.
type Config struct {
	BaseURL   string
	Scheme    Scheme
	Endpoints Endpoints

	// CSRFHeader is the request header carrying the CSRF token.
	CSRFHeader string
	// CSRFRotationHeader is the response header a server uses to hand out a
	// replacement token on success.
	CSRFRotationHeader string

	TokenTimeout   time.Duration // CSRF fetch
	RequestTimeout time.Duration // ordinary calls
	UploadTimeout  time.Duration // multipart attachment uploads

	// UserCacheTTL bounds how long GetCurrentUser serves a cached profile.
	UserCacheTTL time.Duration
	// TokenMaxAge makes a cached CSRF token count as absent once it is
	// older than this. Zero keeps the token until it is rejected.
	TokenMaxAge time.Duration

	// Credentials persists the bearer pair. Defaults to in-memory storage.
	Credentials credstore.Storage

	// HTTPClient performs the requests. The default client has a cookie jar
	// and no global timeout; each call carries its own deadline.
	HTTPClient *http.Client

	// Logger receives refresh and failure events. Defaults to a discarding
	// logger so the library stays quiet unless asked.
	Logger *slog.Logger
}

func (c Config) withDefaults() (Config, error) {
	u, err := url.Parse(strings.TrimSpace(c.BaseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return c, fmt.Errorf("authsdk: invalid base url %q", c.BaseURL)
	}
	c.BaseURL = strings.TrimSuffix(u.String(), "/")

	if c.Scheme, err = ParseScheme(string(c.Scheme)); err != nil {
		return c, err
	}

	c.Endpoints = c.Endpoints.withDefaults()

	c.CSRFHeader = cmp.Or(c.CSRFHeader, DefaultCSRFHeader)
	c.CSRFRotationHeader = cmp.Or(c.CSRFRotationHeader, c.CSRFHeader)

	c.TokenTimeout = durationOr(c.TokenTimeout, DefaultTokenTimeout)
	c.RequestTimeout = durationOr(c.RequestTimeout, DefaultRequestTimeout)
	c.UploadTimeout = durationOr(c.UploadTimeout, DefaultUploadTimeout)
	c.UserCacheTTL = durationOr(c.UserCacheTTL, DefaultUserCacheTTL)

	if c.Credentials == nil {
		c.Credentials = credstore.NewMemory()
	}

	if c.HTTPClient == nil {
		jar, err := NewCookieJar()
		if err != nil {
			return c, err
		}
		c.HTTPClient = &http.Client{Jar: jar}
	}
	if c.Scheme == SchemeCookieCSRF && c.HTTPClient.Jar == nil {
		return c, ErrNoCookieJar
	}

	if c.Logger == nil {
		c.Logger = slogx.Discard()
	}

	return c, nil
}

func (e Endpoints) withDefaults() Endpoints {
	e.CSRF = cmp.Or(e.CSRF, DefaultCSRFPath)
	e.Login = cmp.Or(e.Login, DefaultLoginPath)
	e.Register = cmp.Or(e.Register, DefaultRegisterPath)
	e.Logout = cmp.Or(e.Logout, DefaultLogoutPath)
	e.CurrentUser = cmp.Or(e.CurrentUser, DefaultCurrentUserPath)
	e.Session = cmp.Or(e.Session, DefaultSessionPath)
	e.Refresh = cmp.Or(e.Refresh, DefaultRefreshPath)
	return e
}

// exempt lists the bootstrap endpoints that never carry credentials and
// are never retried.
func (e Endpoints) exempt() map[string]struct{} {
	return map[string]struct{}{
		normalizePath(e.CSRF):     {},
		normalizePath(e.Login):    {},
		normalizePath(e.Register): {},
		normalizePath(e.Refresh):  {},
	}
}

func normalizePath(p string) string {
	if u, err := url.Parse(p); err == nil {
		p = u.Path
	}
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return "/"
	}
	return p
}

func durationOr(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
