package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/emstore/pkg/credstore"
)

const (
	csrfRoute      = "GET /api/auth/csrf/"
	refreshRoute   = "POST /api/auth/refresh/"
	campaignsPost  = "POST /api/campaigns/"
	campaignsList  = "GET /api/campaigns/"
	currentUser    = "GET /api/auth/user/"
	barrierTimeout = 5 * time.Second
)

// fakeAPI is a programmable backend that counts calls per route and records
// values handlers choose to remember.
type fakeAPI struct {
	*httptest.Server
	mux *http.ServeMux

	mu   sync.Mutex
	hits map[string]int
	seen map[string][]string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{
		mux:  http.NewServeMux(),
		hits: make(map[string]int),
		seen: make(map[string][]string),
	}
	f.Server = httptest.NewServer(f.mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeAPI) handle(pattern string, h func(w http.ResponseWriter, r *http.Request, n int)) {
	f.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.hits[pattern]++
		n := f.hits[pattern]
		f.mu.Unlock()
		h(w, r, n)
	})
}

// csrf serves tokens in order, repeating the last one.
func (f *fakeAPI) csrf(tokens ...string) {
	f.handle(csrfRoute, func(w http.ResponseWriter, r *http.Request, n int) {
		tok := tokens[min(n, len(tokens))-1]
		writeJSON(w, http.StatusOK, CSRFResponse{CSRFToken: tok})
	})
}

func (f *fakeAPI) record(key, value string) {
	f.mu.Lock()
	f.seen[key] = append(f.seen[key], value)
	f.mu.Unlock()
}

func (f *fakeAPI) calls(pattern string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[pattern]
}

func (f *fakeAPI) values(key string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen[key]...)
}

func (f *fakeAPI) client(t *testing.T, scheme Scheme, creds credstore.Storage) *Client {
	t.Helper()
	c, err := New(Config{
		BaseURL:        f.URL,
		Scheme:         scheme,
		Credentials:    creds,
		RequestTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// barrier holds rejected requests until n of them have arrived, so every
// request is sent with the stale credential before any refresh starts.
type barrier struct {
	n       int32
	arrived atomic.Int32
	ready   chan struct{}
}

func newBarrier(n int) *barrier {
	return &barrier{n: int32(n), ready: make(chan struct{})}
}

func (b *barrier) wait(r *http.Request) {
	if b.arrived.Add(1) == b.n {
		close(b.ready)
	}
	select {
	case <-b.ready:
	case <-r.Context().Done():
	case <-time.After(barrierTimeout):
	}
}

func countOf(values []string, v string) int {
	n := 0
	for _, s := range values {
		if s == v {
			n++
		}
	}
	return n
}

// ============================================================================
// Cookie + CSRF scheme
// ============================================================================

func TestClientAttachesCSRFToken(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	api.csrf("abc123")
	api.handle(campaignsPost, func(w http.ResponseWriter, r *http.Request, _ int) {
		api.record("post", r.Header.Get("X-CSRFToken"))
		writeJSON(w, http.StatusCreated, Campaign{ID: "c1", Name: "Spring"})
	})

	c := api.client(t, SchemeCookieCSRF, nil)
	campaign, err := c.CreateCampaign(t.Context(), CampaignRequest{Name: "Spring"})
	require.NoError(t, err)
	require.Equal(t, "c1", campaign.ID)

	require.Equal(t, []string{"abc123"}, api.values("post"))
	require.Equal(t, 1, api.calls(csrfRoute))
}

func TestClientSafeMethodsSkipToken(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	api.csrf("abc123")
	api.handle(campaignsList, func(w http.ResponseWriter, r *http.Request, _ int) {
		api.record("get", r.Header.Get("X-CSRFToken"))
		writeJSON(w, http.StatusOK, []Campaign{{ID: "c1"}})
	})

	c := api.client(t, SchemeCookieCSRF, nil)
	campaigns, err := c.ListCampaigns(t.Context())
	require.NoError(t, err)
	require.Len(t, campaigns, 1)

	require.Equal(t, []string{""}, api.values("get"))
	require.Zero(t, api.calls(csrfRoute))
	require.Empty(t, c.Store().Token())
}

func TestClientReplaysOnceWithRefreshedToken(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	api.csrf("abc123", "xyz789")
	api.handle(campaignsPost, func(w http.ResponseWriter, r *http.Request, _ int) {
		tok := r.Header.Get("X-CSRFToken")
		api.record("post", tok)
		if tok != "xyz789" {
			writeJSON(w, http.StatusForbidden, ErrCSRFFailed)
			return
		}
		writeJSON(w, http.StatusCreated, Campaign{ID: "c1"})
	})

	c := api.client(t, SchemeCookieCSRF, nil)
	_, err := c.CreateCampaign(t.Context(), CampaignRequest{Name: "Spring"})
	require.NoError(t, err)

	require.Equal(t, []string{"abc123", "xyz789"}, api.values("post"))
	require.Equal(t, 2, api.calls(csrfRoute))
	require.Equal(t, "xyz789", c.Store().Token())
}

func TestClientRefreshFailureRequiresReauthentication(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	api.handle(csrfRoute, func(w http.ResponseWriter, r *http.Request, n int) {
		if n == 1 {
			writeJSON(w, http.StatusOK, CSRFResponse{CSRFToken: "abc123"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, ErrServerError)
	})
	api.handle(campaignsPost, func(w http.ResponseWriter, r *http.Request, _ int) {
		writeJSON(w, http.StatusForbidden, ErrCSRFFailed)
	})

	c := api.client(t, SchemeCookieCSRF, nil)
	_, err := c.CreateCampaign(t.Context(), CampaignRequest{Name: "Spring"})
	require.ErrorIs(t, err, ErrReauthenticationRequired)

	require.Empty(t, c.Store().Token())
	require.Equal(t, 1, api.calls(campaignsPost))
	require.Equal(t, 2, api.calls(csrfRoute))
}

func TestClientNoSecondReplay(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	api.csrf("t1", "t2", "t3")
	api.handle(campaignsPost, func(w http.ResponseWriter, r *http.Request, _ int) {
		api.record("post", r.Header.Get("X-CSRFToken"))
		writeJSON(w, http.StatusForbidden, ErrCSRFFailed)
	})

	c := api.client(t, SchemeCookieCSRF, nil)
	_, err := c.CreateCampaign(t.Context(), CampaignRequest{Name: "Spring"})
	require.ErrorIs(t, err, ErrReauthenticationRequired)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusForbidden, apiErr.StatusCode)

	require.Equal(t, []string{"t1", "t2"}, api.values("post"))
	require.Equal(t, 2, api.calls(csrfRoute))
	require.Empty(t, c.Store().Token())
}

func TestClientSingleRefreshUnderConcurrentRejections(t *testing.T) {
	t.Parallel()

	for _, m := range []int{2, 8} {
		t.Run(fmt.Sprintf("%d requests", m), func(t *testing.T) {
			t.Parallel()

			api := newFakeAPI(t)
			// The first token is already stale when handed out.
			api.csrf("t1", "t2")
			stale := newBarrier(m)
			api.handle(campaignsPost, func(w http.ResponseWriter, r *http.Request, _ int) {
				tok := r.Header.Get("X-CSRFToken")
				api.record("post", tok)
				if tok == "t2" {
					writeJSON(w, http.StatusCreated, Campaign{ID: "c1"})
					return
				}
				stale.wait(r)
				writeJSON(w, http.StatusForbidden, ErrCSRFFailed)
			})

			c := api.client(t, SchemeCookieCSRF, nil)
			require.NoError(t, c.Prime(t.Context()))

			errs := make([]error, m)
			var wg sync.WaitGroup
			for i := range m {
				wg.Go(func() {
					_, errs[i] = c.CreateCampaign(t.Context(), CampaignRequest{Name: "Spring"})
				})
			}
			wg.Wait()

			for _, err := range errs {
				require.NoError(t, err)
			}

			// One fetch from Prime, exactly one refresh.
			require.Equal(t, 2, api.calls(csrfRoute))

			posts := api.values("post")
			require.Len(t, posts, 2*m)
			require.Equal(t, m, countOf(posts, "t1"))
			require.Equal(t, m, countOf(posts, "t2"))
		})
	}
}

func TestClientExemptEndpointsNotRetried(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	api.csrf("abc123")
	api.handle("POST /api/auth/login/", func(w http.ResponseWriter, r *http.Request, _ int) {
		api.record("login", r.Header.Get("X-CSRFToken"))
		writeJSON(w, http.StatusUnauthorized, ErrInvalidCredentials)
	})

	c := api.client(t, SchemeCookieCSRF, nil)
	_, err := c.Login(t.Context(), "alice", "wrong")
	require.ErrorIs(t, err, ErrAuthRejected)
	require.NotErrorIs(t, err, ErrReauthenticationRequired)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, CodeInvalidCredentials, apiErr.Code)

	require.Equal(t, []string{""}, api.values("login"))
	require.Equal(t, 1, api.calls("POST /api/auth/login/"))
	require.Zero(t, api.calls(csrfRoute))
}

func TestClientRotatesTokenFromResponse(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	api.csrf("abc123")
	api.handle(campaignsPost, func(w http.ResponseWriter, r *http.Request, n int) {
		api.record("post", r.Header.Get("X-CSRFToken"))
		w.Header().Set("X-CSRFToken", fmt.Sprintf("rotated-%d", n))
		writeJSON(w, http.StatusCreated, Campaign{ID: "c1"})
	})

	c := api.client(t, SchemeCookieCSRF, nil)
	for range 3 {
		_, err := c.CreateCampaign(t.Context(), CampaignRequest{Name: "Spring"})
		require.NoError(t, err)
	}

	require.Equal(t, []string{"abc123", "rotated-1", "rotated-2"}, api.values("post"))
	require.Equal(t, 1, api.calls(csrfRoute))
}

func TestClientErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		is     error
		kind   Kind
	}{
		{"validation", http.StatusBadRequest, `{"email":["Enter a valid email address."]}`, ErrValidation, KindValidation},
		{"conflict", http.StatusConflict, `{"error":"conflict","detail":"email already exists","status":"duplicate"}`, ErrConflict, KindConflict},
		{"server", http.StatusInternalServerError, `oops`, ErrServer, KindServer},
		{"unavailable", http.StatusServiceUnavailable, ``, ErrServer, KindServer},
		{"not found", http.StatusNotFound, `{"detail":"Not found."}`, nil, KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api := newFakeAPI(t)
			api.csrf("abc123")
			api.handle(campaignsPost, func(w http.ResponseWriter, r *http.Request, _ int) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			c := api.client(t, SchemeCookieCSRF, nil)
			_, err := c.CreateCampaign(t.Context(), CampaignRequest{Name: "Spring"})
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			require.Equal(t, tt.status, apiErr.StatusCode)
			require.Equal(t, tt.kind, apiErr.Kind())
			if tt.is != nil {
				require.ErrorIs(t, err, tt.is)
			}
			require.NotErrorIs(t, err, ErrReauthenticationRequired)

			require.Equal(t, 1, api.calls(campaignsPost))
			require.Equal(t, 1, api.calls(csrfRoute))
		})
	}

	t.Run("field errors", func(t *testing.T) {
		t.Parallel()

		api := newFakeAPI(t)
		api.csrf("abc123")
		api.handle(campaignsPost, func(w http.ResponseWriter, r *http.Request, _ int) {
			writeJSON(w, http.StatusBadRequest, NewValidationError(map[string][]string{
				"email": {"required"},
			}))
		})

		c := api.client(t, SchemeCookieCSRF, nil)
		_, err := c.CreateCampaign(t.Context(), CampaignRequest{})

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, []string{"required"}, apiErr.Fields["email"])
		require.Contains(t, err.Error(), "email: required")
	})
}

func TestClientNetworkErrors(t *testing.T) {
	t.Parallel()

	t.Run("unreachable", func(t *testing.T) {
		t.Parallel()

		api := newFakeAPI(t)
		c := api.client(t, SchemeCookieCSRF, nil)
		api.Close()

		_, err := c.ListCampaigns(t.Context())
		require.ErrorIs(t, err, ErrNetwork)

		var netErr *NetworkError
		require.ErrorAs(t, err, &netErr)
		require.Equal(t, http.MethodGet, netErr.Method)
	})

	t.Run("token fetch fails", func(t *testing.T) {
		t.Parallel()

		api := newFakeAPI(t)
		c := api.client(t, SchemeCookieCSRF, nil)
		api.Close()

		_, err := c.CreateCampaign(t.Context(), CampaignRequest{Name: "Spring"})
		require.ErrorIs(t, err, ErrNetwork)
		require.NotErrorIs(t, err, ErrReauthenticationRequired)
	})

	t.Run("timeout is not retried", func(t *testing.T) {
		t.Parallel()

		api := newFakeAPI(t)
		api.handle(campaignsList, func(w http.ResponseWriter, r *http.Request, _ int) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		})

		c := api.client(t, SchemeCookieCSRF, nil)
		_, err := c.Do(t.Context(), Request{
			Method:  http.MethodGet,
			Path:    "/api/campaigns/",
			Timeout: 50 * time.Millisecond,
		})

		var netErr *NetworkError
		require.ErrorAs(t, err, &netErr)
		require.True(t, netErr.Timeout())
		require.Equal(t, 1, api.calls(campaignsList))
	})
}

// ============================================================================
// Bearer scheme
// ============================================================================

func bearerCreds(t *testing.T, access, refresh string) credstore.Storage {
	t.Helper()
	creds := credstore.NewMemory()
	require.NoError(t, creds.Set(t.Context(), credstore.KeyAccessToken, access))
	require.NoError(t, creds.Set(t.Context(), credstore.KeyRefreshToken, refresh))
	return creds
}

func (f *fakeAPI) refresh(next func(n int) (int, any)) {
	f.handle(refreshRoute, func(w http.ResponseWriter, r *http.Request, n int) {
		var req RefreshRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.record("refresh", req.Refresh)
		f.record("refresh-auth", r.Header.Get("Authorization"))
		status, body := next(n)
		writeJSON(w, status, body)
	})
}

func TestBearerAttachesAccessToken(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	api.handle(campaignsList, func(w http.ResponseWriter, r *http.Request, _ int) {
		api.record("auth", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, []Campaign{})
	})
	api.handle(campaignsPost, func(w http.ResponseWriter, r *http.Request, _ int) {
		api.record("auth", r.Header.Get("Authorization"))
		api.record("csrf", r.Header.Get("X-CSRFToken"))
		writeJSON(w, http.StatusCreated, Campaign{ID: "c1"})
	})

	c := api.client(t, SchemeBearer, bearerCreds(t, "a1", "r1"))
	_, err := c.ListCampaigns(t.Context())
	require.NoError(t, err)
	_, err = c.CreateCampaign(t.Context(), CampaignRequest{Name: "Spring"})
	require.NoError(t, err)

	require.Equal(t, []string{"Bearer a1", "Bearer a1"}, api.values("auth"))
	require.Equal(t, []string{""}, api.values("csrf"))
	require.Zero(t, api.calls(csrfRoute))
}

func TestBearerSingleRefreshUnderConcurrentRejections(t *testing.T) {
	t.Parallel()

	const m = 6
	api := newFakeAPI(t)
	api.refresh(func(n int) (int, any) {
		return http.StatusOK, RefreshResponse{AccessToken: "a2", RefreshToken: "r2"}
	})
	stale := newBarrier(m)
	api.handle(campaignsPost, func(w http.ResponseWriter, r *http.Request, _ int) {
		auth := r.Header.Get("Authorization")
		api.record("auth", auth)
		if auth == "Bearer a2" {
			writeJSON(w, http.StatusCreated, Campaign{ID: "c1"})
			return
		}
		stale.wait(r)
		writeJSON(w, http.StatusUnauthorized, ErrNotAuthenticated)
	})

	creds := bearerCreds(t, "a1", "r1")
	c := api.client(t, SchemeBearer, creds)

	errs := make([]error, m)
	var wg sync.WaitGroup
	for i := range m {
		wg.Go(func() {
			_, errs[i] = c.CreateCampaign(t.Context(), CampaignRequest{Name: "Spring"})
		})
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, api.calls(refreshRoute))
	require.Equal(t, []string{"r1"}, api.values("refresh"))
	require.Equal(t, []string{""}, api.values("refresh-auth"))

	auths := api.values("auth")
	require.Len(t, auths, 2*m)
	require.Equal(t, m, countOf(auths, "Bearer a1"))
	require.Equal(t, m, countOf(auths, "Bearer a2"))

	access, err := creds.Get(t.Context(), credstore.KeyAccessToken)
	require.NoError(t, err)
	require.Equal(t, "a2", access)
	refresh, err := creds.Get(t.Context(), credstore.KeyRefreshToken)
	require.NoError(t, err)
	require.Equal(t, "r2", refresh)
}

func TestBearerRefreshFailureClearsTokens(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	api.refresh(func(int) (int, any) {
		return http.StatusUnauthorized, NewAPIError(http.StatusUnauthorized, "invalid_grant", "refresh token expired")
	})
	api.handle(campaignsPost, func(w http.ResponseWriter, r *http.Request, _ int) {
		writeJSON(w, http.StatusUnauthorized, ErrNotAuthenticated)
	})

	creds := bearerCreds(t, "a1", "r1")
	c := api.client(t, SchemeBearer, creds)

	_, err := c.CreateCampaign(t.Context(), CampaignRequest{Name: "Spring"})
	require.ErrorIs(t, err, ErrReauthenticationRequired)

	_, err = creds.Get(t.Context(), credstore.KeyAccessToken)
	require.ErrorIs(t, err, credstore.ErrNotFound)
	_, err = creds.Get(t.Context(), credstore.KeyRefreshToken)
	require.ErrorIs(t, err, credstore.ErrNotFound)

	require.Equal(t, 1, api.calls(campaignsPost))
	require.Equal(t, 1, api.calls(refreshRoute))
}

func TestBearerNoSecondReplay(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	api.refresh(func(n int) (int, any) {
		return http.StatusOK, RefreshResponse{AccessToken: fmt.Sprintf("a%d", n+1), RefreshToken: fmt.Sprintf("r%d", n+1)}
	})
	api.handle(campaignsPost, func(w http.ResponseWriter, r *http.Request, _ int) {
		api.record("auth", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusForbidden, ErrPermissionDenied)
	})

	creds := bearerCreds(t, "a1", "r1")
	c := api.client(t, SchemeBearer, creds)

	_, err := c.CreateCampaign(t.Context(), CampaignRequest{Name: "Spring"})
	require.ErrorIs(t, err, ErrReauthenticationRequired)

	require.Equal(t, []string{"Bearer a1", "Bearer a2"}, api.values("auth"))
	require.Equal(t, 1, api.calls(refreshRoute))

	pair, err := c.Store().Credential(t.Context())
	require.NoError(t, err)
	require.True(t, pair.IsZero())
}

// ============================================================================
// Session lifecycle
// ============================================================================

func TestClientLoginCookieSession(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	api.csrf("anonymous")
	api.handle("POST /api/auth/login/", func(w http.ResponseWriter, r *http.Request, _ int) {
		var req LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Username != "alice" || req.Password != "hunter2" {
			writeJSON(w, http.StatusUnauthorized, ErrInvalidCredentials)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "s1", Path: "/", HttpOnly: true})
		w.Header().Set("X-CSRFToken", "after-login")
		writeJSON(w, http.StatusOK, AuthResponse{User: &User{ID: "u1", Username: "alice"}})
	})
	api.handle(campaignsPost, func(w http.ResponseWriter, r *http.Request, _ int) {
		cookie, err := r.Cookie("sessionid")
		if err != nil || cookie.Value != "s1" {
			writeJSON(w, http.StatusUnauthorized, ErrNotAuthenticated)
			return
		}
		api.record("post", r.Header.Get("X-CSRFToken"))
		writeJSON(w, http.StatusCreated, Campaign{ID: "c1"})
	})

	c := api.client(t, SchemeCookieCSRF, nil)
	u, err := c.Login(t.Context(), "alice", "hunter2")
	require.NoError(t, err)
	require.Equal(t, "alice", u.Username)

	_, err = c.CreateCampaign(t.Context(), CampaignRequest{Name: "Spring"})
	require.NoError(t, err)
	require.Equal(t, []string{"after-login"}, api.values("post"))
	require.Zero(t, api.calls(csrfRoute))
}

func TestClientLoginBearer(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	api.handle("POST /api/auth/login/", func(w http.ResponseWriter, r *http.Request, _ int) {
		api.record("login-auth", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, AuthResponse{
			User:         &User{ID: "u1", Username: "alice"},
			AccessToken:  "a1",
			RefreshToken: "r1",
		})
	})
	api.handle(currentUser, func(w http.ResponseWriter, r *http.Request, _ int) {
		api.record("user-auth", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, UserResponse{User: &User{ID: "u1", Username: "alice"}})
	})

	creds := credstore.NewMemory()
	c := api.client(t, SchemeBearer, creds)

	ok, err := c.IsAuthenticated(t.Context())
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, api.calls(currentUser))

	_, err = c.Login(t.Context(), "alice", "hunter2")
	require.NoError(t, err)

	access, err := creds.Get(t.Context(), credstore.KeyAccessToken)
	require.NoError(t, err)
	require.Equal(t, "a1", access)

	ok, err = c.IsAuthenticated(t.Context())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"Bearer a1"}, api.values("user-auth"))
	require.Equal(t, []string{""}, api.values("login-auth"))
}

func TestClientCurrentUserCache(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	api.handle("POST /api/auth/login/", func(w http.ResponseWriter, r *http.Request, _ int) {
		writeJSON(w, http.StatusOK, AuthResponse{User: &User{ID: "u1"}})
	})
	api.handle(currentUser, func(w http.ResponseWriter, r *http.Request, n int) {
		writeJSON(w, http.StatusOK, UserResponse{User: &User{ID: "u1", Username: fmt.Sprintf("alice-%d", n)}})
	})

	c := api.client(t, SchemeCookieCSRF, nil)

	u, err := c.CurrentUser(t.Context())
	require.NoError(t, err)
	require.Equal(t, "alice-1", u.Username)
	_, err = c.CurrentUser(t.Context())
	require.NoError(t, err)
	require.Equal(t, 1, api.calls(currentUser))

	require.NoError(t, c.Store().Clear(t.Context()))
	u, err = c.CurrentUser(t.Context())
	require.NoError(t, err)
	require.Equal(t, "alice-2", u.Username)

	_, err = c.Login(t.Context(), "alice", "hunter2")
	require.NoError(t, err)
	u, err = c.CurrentUser(t.Context())
	require.NoError(t, err)
	require.Equal(t, "alice-3", u.Username)

	u, err = c.ReloadCurrentUser(t.Context())
	require.NoError(t, err)
	require.Equal(t, "alice-4", u.Username)
}

func TestClientCurrentUserUnauthenticated(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	api.csrf("abc123")
	api.handle(currentUser, func(w http.ResponseWriter, r *http.Request, _ int) {
		writeJSON(w, http.StatusUnauthorized, ErrNotAuthenticated)
	})

	c := api.client(t, SchemeCookieCSRF, nil)
	u, err := c.CurrentUser(t.Context())
	require.NoError(t, err)
	require.Nil(t, u)

	ok, err := c.IsAuthenticated(t.Context())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClientLogoutAlwaysClears(t *testing.T) {
	t.Parallel()

	t.Run("cookie scheme server error", func(t *testing.T) {
		t.Parallel()

		api := newFakeAPI(t)
		api.csrf("abc123")
		api.handle("POST /api/auth/logout/", func(w http.ResponseWriter, r *http.Request, _ int) {
			api.record("logout", r.Header.Get("X-CSRFToken"))
			writeJSON(w, http.StatusInternalServerError, ErrServerError)
		})

		c := api.client(t, SchemeCookieCSRF, nil)
		require.NoError(t, c.Prime(t.Context()))

		err := c.Logout(t.Context())
		require.ErrorIs(t, err, ErrServer)
		require.Equal(t, []string{"abc123"}, api.values("logout"))
		require.Empty(t, c.Store().Token())
	})

	t.Run("bearer revokes refresh token", func(t *testing.T) {
		t.Parallel()

		api := newFakeAPI(t)
		api.handle("POST /api/auth/logout/", func(w http.ResponseWriter, r *http.Request, _ int) {
			var req LogoutRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			api.record("logout", req.RefreshToken)
			writeJSON(w, http.StatusOK, MessageResponse{Message: "logged out"})
		})

		creds := bearerCreds(t, "a1", "r1")
		c := api.client(t, SchemeBearer, creds)
		require.NoError(t, c.Logout(t.Context()))

		require.Equal(t, []string{"r1"}, api.values("logout"))
		_, err := creds.Get(t.Context(), credstore.KeyAccessToken)
		require.ErrorIs(t, err, credstore.ErrNotFound)
	})

	t.Run("expired session is not an error", func(t *testing.T) {
		t.Parallel()

		api := newFakeAPI(t)
		api.csrf("t1", "t2")
		api.handle("POST /api/auth/logout/", func(w http.ResponseWriter, r *http.Request, _ int) {
			writeJSON(w, http.StatusUnauthorized, ErrNotAuthenticated)
		})

		c := api.client(t, SchemeCookieCSRF, nil)
		require.NoError(t, c.Logout(t.Context()))
		require.Empty(t, c.Store().Token())
	})
}

// ============================================================================
// Campaigns and entries
// ============================================================================

func TestClientUploadAttachments(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	api.csrf("abc123")
	api.handle("POST /api/campaigns/{id}/upload_attachments/", func(w http.ResponseWriter, r *http.Request, _ int) {
		api.record("csrf", r.Header.Get("X-CSRFToken"))
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrInvalidRequest)
			return
		}
		var out []Attachment
		for _, fh := range r.MultipartForm.File["files"] {
			out = append(out, Attachment{
				ID:          "a-" + fh.Filename,
				Filename:    fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Size:        fh.Size,
			})
		}
		writeJSON(w, http.StatusCreated, out)
	})

	c := api.client(t, SchemeCookieCSRF, nil)
	atts, err := c.UploadAttachments(t.Context(), "c1",
		File{Name: "/tmp/brochure.pdf", ContentType: "application/pdf", Content: strings.NewReader("%PDF-1.7")},
		File{Name: "notes.txt", Content: strings.NewReader("hello")},
	)
	require.NoError(t, err)
	require.Len(t, atts, 2)
	require.Equal(t, "brochure.pdf", atts[0].Filename)
	require.Equal(t, "application/pdf", atts[0].ContentType)
	require.Equal(t, int64(5), atts[1].Size)
	require.Equal(t, []string{"abc123"}, api.values("csrf"))
}

func TestClientSubmitEmailEntries(t *testing.T) {
	t.Parallel()

	entries := []EmailEntryRequest{
		{Name: "Ann", Email: "ann@example.com", ClientEmail: "client@example.com"},
		{Name: "Bob", Email: "bob@example.com", ClientEmail: "client@example.com"},
	}

	t.Run("partial duplicates", func(t *testing.T) {
		t.Parallel()

		api := newFakeAPI(t)
		api.csrf("abc123")
		api.handle("POST /api/email-entries/", func(w http.ResponseWriter, r *http.Request, _ int) {
			api.record("campaign", r.URL.Query().Get("campaign_id"))
			var got []EmailEntryRequest
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				writeJSON(w, http.StatusBadRequest, ErrInvalidRequest)
				return
			}
			writeJSON(w, http.StatusMultiStatus, BulkResult{
				Created:         len(got) - 1,
				DuplicateEmails: []string{"bob@example.com"},
				TotalProcessed:  len(got),
				Status:          EntryStatusCompleted,
			})
		})

		c := api.client(t, SchemeCookieCSRF, nil)
		res, err := c.SubmitEmailEntries(t.Context(), "c1", entries)
		require.NoError(t, err)
		require.Equal(t, 1, res.Created)
		require.Equal(t, 1, res.Duplicates)
		require.Equal(t, []string{"bob@example.com"}, res.DuplicateEmails)
		require.Equal(t, []string{"c1"}, api.values("campaign"))
	})

	t.Run("duplicates within the batch", func(t *testing.T) {
		t.Parallel()

		api := newFakeAPI(t)
		api.csrf("abc123")
		api.handle("POST /api/email-entries/", func(w http.ResponseWriter, r *http.Request, _ int) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":            CodeInvalidRequest,
				"detail":           "duplicate emails in request",
				"status":           EntryStatusDuplicateInRequest,
				"duplicate_emails": []string{"ann@example.com"},
			})
		})

		c := api.client(t, SchemeCookieCSRF, nil)
		res, err := c.SubmitEmailEntries(t.Context(), "", entries)
		require.ErrorIs(t, err, ErrValidation)
		require.NotNil(t, res)
		require.Equal(t, EntryStatusDuplicateInRequest, res.Status)
		require.Equal(t, []string{"ann@example.com"}, res.DuplicateEmails)
	})

	t.Run("single conflict", func(t *testing.T) {
		t.Parallel()

		api := newFakeAPI(t)
		api.csrf("abc123")
		api.handle("POST /api/email-entries/", func(w http.ResponseWriter, r *http.Request, _ int) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":  CodeConflict,
				"detail": "email already exists",
				"status": EntryStatusDuplicate,
				"email":  "ann@example.com",
			})
		})

		c := api.client(t, SchemeCookieCSRF, nil)
		_, err := c.SubmitEmailEntry(t.Context(), entries[0])
		require.ErrorIs(t, err, ErrConflict)

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		require.Equal(t, EntryStatusDuplicate, apiErr.Status)
	})
}

// roundTripFunc serves requests in-process.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestClientGetJSONSharesConcurrentReads(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		release := make(chan struct{})
		var hits atomic.Int32
		transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
			hits.Add(1)
			<-release
			return &http.Response{
				StatusCode: http.StatusOK,
				Header:     http.Header{"Content-Type": {"application/json"}},
				Body:       io.NopCloser(strings.NewReader(`[{"id":"c1","name":"Spring","email":"a@example.com"}]`)),
				Request:    r,
			}, nil
		})
		c, err := New(Config{
			BaseURL:    "http://emstore.test",
			Scheme:     SchemeBearer,
			HTTPClient: &http.Client{Transport: transport},
		})
		require.NoError(t, err)

		const n = 5
		got := make([][]Campaign, n)
		errs := make([]error, n)
		var wg sync.WaitGroup
		for i := range n {
			wg.Go(func() {
				errs[i] = c.GetJSON(t.Context(), "/api/campaigns/", nil, &got[i])
			})
		}

		// Every caller is parked on the one request.
		synctest.Wait()
		require.EqualValues(t, 1, hits.Load())

		close(release)
		wg.Wait()

		for i := range n {
			require.NoError(t, errs[i])
			require.Len(t, got[i], 1)
			require.Equal(t, "c1", got[i][0].ID)
		}
		got[0][0].Name = "Autumn"
		require.Equal(t, "Spring", got[1][0].Name)

		// Once the shared read is done the next one goes out again.
		var again []Campaign
		require.NoError(t, c.GetJSON(t.Context(), "/api/campaigns/", nil, &again))
		require.EqualValues(t, 2, hits.Load())
	})
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{BaseURL: "not a url"})
	require.Error(t, err)

	_, err = New(Config{BaseURL: "http://localhost", Scheme: "basic"})
	require.Error(t, err)

	_, err = New(Config{BaseURL: "http://localhost", HTTPClient: &http.Client{}})
	require.ErrorIs(t, err, ErrNoCookieJar)

	_, err = New(Config{BaseURL: "http://localhost", Scheme: SchemeBearer, HTTPClient: &http.Client{}})
	require.NoError(t, err)
}
