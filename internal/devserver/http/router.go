package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/emstore/internal/devserver/service"
	"github.com/aussiebroadwan/emstore/internal/devserver/store"
	"github.com/aussiebroadwan/emstore/pkg/authsdk"
	"github.com/aussiebroadwan/emstore/pkg/httpx"
	"github.com/aussiebroadwan/emstore/pkg/jwtx"
	"github.com/aussiebroadwan/emstore/pkg/slogx"

	_ "github.com/aussiebroadwan/emstore/api/devserver" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// RateLimits assigns a profile to each class of route.
type RateLimits struct {
	Auth   httpx.RateLimitConfig // login, register, refresh
	Write  httpx.RateLimitConfig // authenticated mutations
	Read   httpx.RateLimitConfig // authenticated reads
	Public httpx.RateLimitConfig // csrf, health, jwks
}

// DefaultRateLimits uses the shared httpx profiles.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		Auth:   httpx.StrictLimit,
		Write:  httpx.ModerateLimit,
		Read:   httpx.LenientLimit,
		Public: httpx.PublicLimit,
	}
}

// Router holds shared dependencies for HTTP handlers. A router serves exactly
// one authentication scheme.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	scheme       authsdk.Scheme
	keys         *jwtx.KeySet
	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	csrf  *httpx.CSRF
	authn *httpx.Authenticator

	Limits        RateLimits
	SecureCookies bool

	AuthService     *service.AuthService
	CampaignService *service.CampaignService
	EntryService    *service.EntryService
}

func NewRouter(
	scheme authsdk.Scheme,
	keys *jwtx.KeySet,
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		scheme:       scheme,
		keys:         keys,
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
		Limits:       DefaultRateLimits(),
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.authn = &httpx.Authenticator{}
	if r.scheme == authsdk.SchemeBearer {
		r.authn.Verifier = r.verifier
	} else {
		r.authn.Sessions = r.AuthService.LookupSession
		r.csrf = &httpx.CSRF{
			Secure: r.SecureCookies,
			Exempt: []string{
				authsdk.DefaultCSRFPath,
				authsdk.DefaultLoginPath,
				authsdk.DefaultRegisterPath,
			},
		}
		r.middlewares = append(r.middlewares, r.csrf.Middleware())
	}

	r.registerAuth()
	r.registerCampaigns()
	r.registerEntries()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			emstore Development Server API
//	@version		0.1.0
//	@description	Reference backend for the emstore client. Runs either the cookie+csrf
//	@description	scheme (session cookie plus double-submit CSRF token) or the bearer
//	@description	scheme (EdDSA access tokens with rotating refresh tokens).
//
//	@contact.name	AussieBroadWAN Team
//	@contact.url	https://github.com/aussiebroadwan/emstore
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host			localhost:8000
//	@BasePath		/
//
//	@schemes		http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
//
//	@securityDefinitions.apikey	CSRFToken
//	@in							header
//	@name						X-CSRFToken
//	@description				Value of the csrftoken cookie, required on unsafe methods.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		AuthService: r.AuthService,
		Scheme:      r.scheme,
		CSRF:        r.csrf,
		Secure:      r.SecureCookies,
	}

	if r.csrf != nil {
		r.Mux.Handle("GET "+authsdk.DefaultCSRFPath+"{$}",
			httpx.Chain(CSRFHandler(r.csrf),
				httpx.RateLimitByIP(r.Limits.Public),
			),
		)
	}

	// Login is limited per IP and username to slow down guessing.
	r.Mux.Handle("POST "+authsdk.DefaultLoginPath+"{$}",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIPAndField(r.Limits.Auth, "username"),
			r.authn.Optional(),
		),
	)
	r.Mux.Handle("POST "+authsdk.DefaultRegisterPath+"{$}",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			httpx.RateLimitByIP(r.Limits.Auth),
			r.authn.Optional(),
		),
	)
	r.Mux.Handle("POST "+authsdk.DefaultLogoutPath+"{$}",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			r.authn.Optional(),
			httpx.RateLimitByIP(r.Limits.Write),
		),
	)
	r.Mux.Handle("GET "+authsdk.DefaultCurrentUserPath+"{$}",
		httpx.Chain(http.HandlerFunc(h.HandleUser),
			r.authn.Require(),
			httpx.RateLimitByUser(r.Limits.Read),
		),
	)
	r.Mux.Handle("GET "+authsdk.DefaultSessionPath+"{$}",
		httpx.Chain(http.HandlerFunc(h.HandleSession),
			r.authn.Optional(),
			httpx.RateLimitByIP(r.Limits.Read),
		),
	)

	if r.scheme == authsdk.SchemeBearer {
		r.Mux.Handle("POST "+authsdk.DefaultRefreshPath+"{$}",
			httpx.Chain(http.HandlerFunc(h.HandleRefresh),
				httpx.RateLimitByIP(r.Limits.Auth),
			),
		)
	}
}

func (r *Router) registerCampaigns() {
	h := &CampaignsHandler{CampaignService: r.CampaignService}

	read := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn, r.authn.Require(), httpx.RateLimitByUser(r.Limits.Read))
	}
	write := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn, r.authn.Require(), httpx.RateLimitByUser(r.Limits.Write))
	}

	r.Mux.Handle("POST "+authsdk.CampaignsPath+"{$}", write(h.HandleCreate))
	r.Mux.Handle("GET "+authsdk.CampaignsPath+"{$}", read(h.HandleList))
	r.Mux.Handle("GET "+authsdk.CampaignCheckPath+"{$}", read(h.HandleCheck))
	r.Mux.Handle("GET "+authsdk.CampaignsPath+"{id}/{$}", read(h.HandleGet))
	r.Mux.Handle("POST "+authsdk.CampaignsPath+"{id}/upload_attachments/{$}", write(h.HandleUpload))
}

func (r *Router) registerEntries() {
	h := &EntriesHandler{EntryService: r.EntryService}

	r.Mux.Handle("POST "+authsdk.EmailEntriesPath+"{$}",
		httpx.Chain(h,
			r.authn.Require(),
			httpx.RateLimitByUser(r.Limits.Write),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(r.Limits.Public),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys),
			httpx.RateLimitByIP(r.Limits.Public),
		),
	)
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys),
			httpx.RateLimitByIP(r.Limits.Public),
		),
	)
}
