package authsdk

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/singleflight"
)

// Client is the single path every backend request takes. It attaches the
// active credential, classifies the response and recovers once from a
// rejected credential by refreshing it and replaying the request.
type Client struct {
	cfg    Config
	http   *http.Client
	store  *TokenStore
	exempt map[string]struct{}
	log    *slog.Logger

	reads singleflight.Group
}

// New creates a Client and its TokenStore.
func New(cfg Config) (*Client, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    cfg,
		http:   cfg.HTTPClient,
		exempt: cfg.Endpoints.exempt(),
		log:    cfg.Logger,
	}
	c.store = NewTokenStore(c, StoreOptions{
		Scheme:       cfg.Scheme,
		Credentials:  cfg.Credentials,
		UserCacheTTL: cfg.UserCacheTTL,
		TokenMaxAge:  cfg.TokenMaxAge,
		Logger:       cfg.Logger,
	})
	return c, nil
}

// Store returns the client's token store.
func (c *Client) Store() *TokenStore { return c.store }

// Scheme returns the active authentication scheme.
func (c *Client) Scheme() Scheme { return c.cfg.Scheme }

// BaseURL returns the normalised base URL.
func (c *Client) BaseURL() string { return c.cfg.BaseURL }

// Request describes one logical call. Body is kept as bytes so the request
// can be replayed after a refresh.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte

	// Timeout bounds each network attempt. Zero uses Config.RequestTimeout.
	Timeout time.Duration
}

// Response is a fully read response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the body into v. Empty bodies and nil v are ignored.
func (r *Response) Decode(v any) error {
	if v == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// attempt is the per-request retry state. It is created fresh for every
// logical request and never shared.
type attempt struct {
	retried    bool
	generation uint64
}

// Do sends req and returns the response when it is 2xx.
//
// A 401 or 403 on a non-bootstrap endpoint refreshes the credential and
// replays the request exactly once. Requests rejected with the same stale
// credential share a single refresh. When the refresh fails, or the replay
// is rejected again, the store is cleared and the error wraps
// ErrReauthenticationRequired. Any other non-2xx status is returned as an
// *APIError, and transport failures as a *NetworkError. Neither is retried.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	var at attempt

	for {
		resp, err := c.send(ctx, req, &at)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			c.observe(resp)
			return resp, nil
		}

		apiErr := parseErrorResponse(resp.StatusCode, resp.Body)
		if !isAuthFailure(resp.StatusCode) || c.isExempt(req.Path) {
			return nil, apiErr
		}

		if at.retried {
			c.log.WarnContext(ctx, "request rejected after refresh",
				"method", req.Method, "path", req.Path, "status", resp.StatusCode)
			if err := c.store.expire(ctx, at.generation); err != nil {
				c.log.WarnContext(ctx, "failed to clear credentials", "err", err)
			}
			return nil, reauthenticate(apiErr)
		}

		at.retried = true
		c.log.DebugContext(ctx, "credential rejected, refreshing",
			"method", req.Method, "path", req.Path, "status", resp.StatusCode)

		if err := c.store.recover(ctx, at.generation); err != nil {
			if ctx.Err() != nil {
				return nil, &NetworkError{Method: req.Method, URL: c.url(req.Path, req.Query), Err: ctx.Err()}
			}
			return nil, reauthenticate(err)
		}
	}
}

func (c *Client) send(ctx context.Context, req Request, at *attempt) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, cmp.Or(req.Timeout, c.cfg.RequestTimeout))
	defer cancel()

	target := c.url(req.Path, req.Query)

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	hreq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range req.Header {
		hreq.Header[k] = append([]string(nil), vs...)
	}
	if req.Body != nil && hreq.Header.Get("Content-Type") == "" {
		hreq.Header.Set("Content-Type", "application/json")
	}
	if hreq.Header.Get("Accept") == "" {
		hreq.Header.Set("Accept", "application/json")
	}

	if err := c.authorize(ctx, hreq, req.Path, at); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(hreq)
	if err != nil {
		return nil, &NetworkError{Method: req.Method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Method: req.Method, URL: target, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: b}, nil
}

// authorize attaches the active credential and records the generation it
// belongs to. Bootstrap endpoints are sent bare.
func (c *Client) authorize(ctx context.Context, hreq *http.Request, path string, at *attempt) error {
	if c.isExempt(path) {
		return nil
	}

	if c.cfg.Scheme == SchemeBearer {
		pair, gen, err := c.store.bearer(ctx)
		if err != nil {
			return err
		}
		at.generation = gen
		if pair.Access != "" {
			hreq.Header.Set("Authorization", "Bearer "+pair.Access)
		}
		return nil
	}

	if isSafeMethod(hreq.Method) {
		at.generation = c.store.Generation()
		return nil
	}

	tok, gen, err := c.store.csrfToken(ctx)
	if err != nil {
		return err
	}
	at.generation = gen
	hreq.Header.Set(c.cfg.CSRFHeader, tok)
	return nil
}

// observe picks up a token the server rotated on a successful response.
func (c *Client) observe(resp *Response) {
	if c.cfg.Scheme != SchemeCookieCSRF {
		return
	}
	c.store.SetCSRFToken(resp.Header.Get(c.cfg.CSRFRotationHeader))
}

func (c *Client) isExempt(path string) bool {
	_, ok := c.exempt[normalizePath(path)]
	return ok
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

func isAuthFailure(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}
