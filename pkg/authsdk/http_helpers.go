package authsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// url builds a complete URL from the base URL, a path and optional query.
func (c *Client) url(path string, query url.Values) string {
	u := c.cfg.BaseURL + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// GetJSON performs a GET and decodes the body into out. Identical reads in
// flight at the same time share one request.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	key := c.url(path, query)
	resp, err := share(ctx, &c.reads, key, func(ctx context.Context) (*Response, error) {
		return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
	})
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// PostJSON sends in as JSON and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	_, err := c.doJSON(ctx, http.MethodPost, path, nil, in, out)
	return err
}

// PatchJSON sends a partial update.
func (c *Client) PatchJSON(ctx context.Context, path string, in, out any) error {
	_, err := c.doJSON(ctx, http.MethodPatch, path, nil, in, out)
	return err
}

// DeleteJSON deletes a resource, decoding any response body into out.
func (c *Client) DeleteJSON(ctx context.Context, path string, out any) error {
	_, err := c.doJSON(ctx, http.MethodDelete, path, nil, nil, out)
	return err
}

// doJSON encodes in, runs the request through Do and decodes the result.
// The response is returned so callers can inspect the status code.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, in, out any) (*Response, error) {
	req := Request{Method: method, Path: path, Query: query}
	if in != nil {
		b, err := marshal(in)
		if err != nil {
			return nil, err
		}
		req.Body = b
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := resp.Decode(out); err != nil {
		return resp, err
	}
	return resp, nil
}

func marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return b, nil
}
