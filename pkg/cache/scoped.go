package cache

import (
	"context"
	"time"
)

// ScopedCache prefixes every key before delegating to an inner cache.
//
//	registry := cache.Scoped(backend, "registry:")
//	history := cache.Scoped(backend, "npmdash:")
type ScopedCache struct {
	inner  Cache
	prefix string
}

// Scoped wraps inner so that all keys carry prefix. A nil inner is replaced
// with a [NullCache].
func Scoped(inner Cache, prefix string) *ScopedCache {
	if inner == nil {
		inner = NewNullCache()
	}
	return &ScopedCache{inner: inner, prefix: prefix}
}

// Prefix returns the key prefix.
func (s *ScopedCache) Prefix() string { return s.prefix }

func (s *ScopedCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.inner.Get(ctx, s.prefix+key)
}

func (s *ScopedCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return s.inner.Set(ctx, s.prefix+key, data, ttl)
}

func (s *ScopedCache) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, s.prefix+key)
}

// Close closes the inner cache.
func (s *ScopedCache) Close() error { return s.inner.Close() }

var _ Cache = (*ScopedCache)(nil)
