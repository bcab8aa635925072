// Package credstore persists the bearer credential pair between process
// runs. Values are opaque strings keyed by fixed names.
package credstore

import (
	"context"
	"errors"
)

// Fixed storage keys for the bearer credential pair.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
)

var ErrNotFound = errors.New("credstore: not found")

// Storage is a small durable key/value store. Implementations must be safe
// for concurrent use.
type Storage interface {
	// Get returns ErrNotFound when key has no value.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Delete removes keys; missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}
