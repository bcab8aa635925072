package authsdk

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// share runs fn once per key across concurrent callers. The shared call is
// detached from the first caller's cancellation so one caller giving up does
// not fail the others; each caller still returns as soon as its own ctx is
// done.
func share[T any](ctx context.Context, g *singleflight.Group, key string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	ch := g.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(T)
		return v, nil
	}
}
