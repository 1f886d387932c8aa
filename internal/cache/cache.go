// Package cache stores fetched tile raster payloads between requests.
package cache

import (
	"context"
	"time"
)

// Store is the raster payload cache. Get returns (nil, nil) on a miss.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}
