package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sentinel-hub/classification-app-backend/internal/observability"
)

// Tiered keeps a small in-process LRU in front of a backing store. The
// backing store may be nil, which leaves a purely local cache.
type Tiered struct {
	front     *lru.Cache[string, []byte]
	back      Store
	opTimeout time.Duration
}

func NewTiered(lruSize int, back Store, opTimeout time.Duration) (*Tiered, error) {
	if lruSize <= 0 {
		lruSize = 256
	}
	front, err := lru.New[string, []byte](lruSize)
	if err != nil {
		return nil, err
	}
	return &Tiered{front: front, back: back, opTimeout: opTimeout}, nil
}

func (t *Tiered) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.opTimeout)
}

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, error) {
	if val, ok := t.front.Get(key); ok {
		observability.IncCacheHit()
		return val, nil
	}
	if t.back == nil {
		observability.IncCacheMiss()
		return nil, nil
	}

	opCtx, cancel := t.withTimeout(ctx)
	defer cancel()
	val, err := t.back.Get(opCtx, key)
	if err != nil {
		return nil, err
	}
	if val == nil {
		observability.IncCacheMiss()
		return nil, nil
	}
	observability.IncCacheHit()
	t.front.Add(key, val)
	return val, nil
}

func (t *Tiered) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	t.front.Add(key, val)
	if t.back == nil {
		return nil
	}
	opCtx, cancel := t.withTimeout(ctx)
	defer cancel()
	return t.back.Set(opCtx, key, val, ttl)
}

func (t *Tiered) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		t.front.Remove(k)
	}
	if t.back == nil {
		return nil
	}
	opCtx, cancel := t.withTimeout(ctx)
	defer cancel()
	return t.back.Del(opCtx, keys...)
}
