// Package metadata is the client's durable key/value store: the session
// token pair and the anonymous favorites set live here between runs.
package metadata

import (
	"context"
)

// Repository is a flat key/value store. Get returns (nil, nil) for a key
// that was never set.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
