// Package cache provides the read-through cache used on the hot redirect
// path. Values are opaque byte slices; callers encode their own records.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when a key is absent or its entry has expired.
var ErrMiss = errors.New("cache miss")

// Cache is a TTL'd key-value store. Expiry is enforced at read time: a
// logically expired entry is a miss regardless of when it gets reclaimed.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
