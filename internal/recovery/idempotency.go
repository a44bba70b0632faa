package recovery

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// IdempotencyManager guarantees that repeated invocations with the same key
// return the first invocation's result without re-executing side effects.
// Results expire after the configured TTL. Concurrent callers sharing a key
// are collapsed into a single execution.
type IdempotencyManager struct {
	cache *gocache.Cache
	group singleflight.Group
}

func NewIdempotencyManager(ttl time.Duration) *IdempotencyManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyManager{
		cache: gocache.New(ttl, 10*time.Minute),
	}
}

// EnsureIdempotent returns the cached result for key if present; otherwise
// it executes fn once, caches the result, and returns it. The second return
// value reports whether the result was served from cache or a shared
// in-flight execution.
func (m *IdempotencyManager) EnsureIdempotent(ctx context.Context, key string, fn Operation) (any, bool, error) {
	if cached, ok := m.cache.Get(key); ok {
		return cached, true, nil
	}

	result, err, shared := m.group.Do(key, func() (any, error) {
		// Re-check under the flight: a racing caller may have completed
		// between the fast-path miss and entering the group.
		if cached, ok := m.cache.Get(key); ok {
			return cached, nil
		}

		value, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		m.cache.SetDefault(key, value)
		return value, nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, shared, nil
}

// Forget drops the cached result for key, forcing the next call to execute.
func (m *IdempotencyManager) Forget(key string) {
	m.cache.Delete(key)
}
