package authsdk

import (
	"cmp"
	"context"
	"errors"
	"net/http"
)

// Login authenticates with a username and password. Under the cookie scheme
// the session cookie lands in the client's jar; under the bearer scheme the
// returned pair is persisted. The current-user cache is invalidated.
func (c *Client) Login(ctx context.Context, username, password string) (*User, error) {
	var out AuthResponse
	if _, err := c.doJSON(ctx, http.MethodPost, c.cfg.Endpoints.Login, nil, LoginRequest{
		Username: username,
		Password: password,
	}, &out); err != nil {
		return nil, err
	}
	return c.established(ctx, out)
}

// Register creates an account and logs it in.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	var out AuthResponse
	if _, err := c.doJSON(ctx, http.MethodPost, c.cfg.Endpoints.Register, nil, req, &out); err != nil {
		return nil, err
	}
	return c.established(ctx, out)
}

func (c *Client) established(ctx context.Context, out AuthResponse) (*User, error) {
	var pair TokenPair
	if c.cfg.Scheme == SchemeBearer {
		pair = TokenPair{Access: out.AccessToken, Refresh: out.RefreshToken}
		if pair.Access == "" {
			return nil, errors.New("authsdk: server returned no access token")
		}
	}
	if err := c.store.SetCredential(ctx, pair); err != nil {
		return nil, err
	}
	c.log.DebugContext(ctx, "session established", "scheme", string(c.cfg.Scheme))
	return out.User, nil
}

// Logout ends the session on the server. Local state is cleared whatever the
// server answers. A session the server had already forgotten is not an
// error.
func (c *Client) Logout(ctx context.Context) error {
	var body any
	if c.cfg.Scheme == SchemeBearer {
		pair, err := c.store.Credential(ctx)
		if err == nil && pair.Refresh != "" {
			body = LogoutRequest{RefreshToken: pair.Refresh}
		}
	}

	_, err := c.doJSON(ctx, http.MethodPost, c.cfg.Endpoints.Logout, nil, body, nil)
	if errors.Is(err, ErrReauthenticationRequired) {
		err = nil
	}

	if cerr := c.store.Clear(context.WithoutCancel(ctx)); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// CurrentUser returns the logged-in user, served from cache within
// Config.UserCacheTTL. It returns nil without error when nobody is logged in.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	return c.store.GetCurrentUser(ctx, false)
}

// ReloadCurrentUser bypasses the user cache.
func (c *Client) ReloadCurrentUser(ctx context.Context) (*User, error) {
	return c.store.GetCurrentUser(ctx, true)
}

// IsAuthenticated reports whether the server recognises the session. Under
// the bearer scheme it answers false without a network call when no
// credential is stored.
func (c *Client) IsAuthenticated(ctx context.Context) (bool, error) {
	if c.cfg.Scheme == SchemeBearer {
		pair, err := c.store.Credential(ctx)
		if err != nil {
			return false, err
		}
		if pair.IsZero() {
			return false, nil
		}
	}
	u, err := c.CurrentUser(ctx)
	return u != nil, err
}

// Session probes the server's view of the session without failing when
// nobody is logged in.
func (c *Client) Session(ctx context.Context) (*SessionResponse, error) {
	var out SessionResponse
	if err := c.GetJSON(ctx, c.cfg.Endpoints.Session, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Prime fetches the CSRF token ahead of the first unsafe request, or loads
// the stored bearer pair.
func (c *Client) Prime(ctx context.Context) error {
	if c.cfg.Scheme == SchemeBearer {
		_, err := c.store.Credential(ctx)
		return err
	}
	_, err := c.store.GetToken(ctx)
	return err
}

// ============================================================================
// Fetcher
// ============================================================================

// FetchCSRFToken implements Fetcher.
func (c *Client) FetchCSRFToken(ctx context.Context) (string, error) {
	resp, err := c.Do(ctx, Request{
		Method:  http.MethodGet,
		Path:    c.cfg.Endpoints.CSRF,
		Timeout: c.cfg.TokenTimeout,
	})
	if err != nil {
		return "", err
	}

	var out CSRFResponse
	if err := resp.Decode(&out); err != nil {
		return "", err
	}
	return cmp.Or(out.CSRFToken, resp.Header.Get(c.cfg.CSRFRotationHeader)), nil
}

// ExchangeRefreshToken implements Fetcher.
func (c *Client) ExchangeRefreshToken(ctx context.Context, refresh string) (TokenPair, error) {
	req := Request{
		Method:  http.MethodPost,
		Path:    c.cfg.Endpoints.Refresh,
		Timeout: c.cfg.TokenTimeout,
	}
	body, err := marshal(RefreshRequest{Refresh: refresh})
	if err != nil {
		return TokenPair{}, err
	}
	req.Body = body

	resp, err := c.Do(ctx, req)
	if err != nil {
		return TokenPair{}, err
	}

	var out RefreshResponse
	if err := resp.Decode(&out); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: out.AccessToken, Refresh: out.RefreshToken}, nil
}

// FetchCurrentUser implements Fetcher. A rejected or expired session reads
// as nobody logged in.
func (c *Client) FetchCurrentUser(ctx context.Context) (*User, error) {
	if c.cfg.Scheme == SchemeBearer {
		pair, err := c.store.Credential(ctx)
		if err != nil {
			return nil, err
		}
		if pair.IsZero() {
			return nil, nil
		}
	}

	var out UserResponse
	if _, err := c.doJSON(ctx, http.MethodGet, c.cfg.Endpoints.CurrentUser, nil, nil, &out); err != nil {
		if errors.Is(err, ErrReauthenticationRequired) || errors.Is(err, ErrAuthRejected) {
			return nil, nil
		}
		return nil, err
	}
	return out.User, nil
}
