// Package cache provides the key-value backends used for registry responses
// and dashboard history snapshots.
//
// Four backends implement [Cache]:
//
//   - [NullCache]: stores nothing, used when no backend is configured
//   - [FileCache]: one JSON file per key, used by the CLI
//   - [RedisCache]: Redis via go-redis, used by the server
//   - [MongoCache]: a MongoDB collection with a TTL index
//
// Keys are plain strings. [Scoped] prefixes every key of an inner cache so
// that several consumers can share one backend.
package cache

import (
	"context"
	"errors"
	"time"
)

// Cache is a byte-oriented key-value store with per-entry expiry.
//
// Get reports a miss as (nil, false, nil); errors are reserved for backend
// failures. A ttl of zero means the entry does not expire.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Pinger is implemented by backends that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ErrUnavailable is returned when a backend cannot be reached.
var ErrUnavailable = errors.New("cache backend unavailable")

// IsNull reports whether c stores nothing, looking through [Scoped] wrappers.
func IsNull(c Cache) bool {
	for {
		switch v := c.(type) {
		case nil:
			return true
		case *NullCache:
			return true
		case *ScopedCache:
			c = v.inner
		default:
			return false
		}
	}
}

// Ping checks c's health if the backend supports it.
func Ping(ctx context.Context, c Cache) error {
	if s, ok := c.(*ScopedCache); ok {
		return Ping(ctx, s.inner)
	}
	if p, ok := c.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
