package authsdk

import (
	"context"
)

// GetLiveness checks if the service is alive.
func (c *Client) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	var health HealthResponse
	if err := c.GetJSON(ctx, "/livez", nil, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// GetReadiness checks if the service is ready to serve requests.
func (c *Client) GetReadiness(ctx context.Context) (*HealthResponse, error) {
	var health HealthResponse
	if err := c.GetJSON(ctx, "/readyz", nil, &health); err != nil {
		return nil, err
	}
	return &health, nil
}
