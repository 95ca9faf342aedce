// Package cache implements the Cache component (spec §4.5): a TTL-scoped
// key/value facade with set, counter, ordered-list, hash, and sorted-set
// operations, backed by either the external store (prefixed "cache:" to
// share the Event Store's connection without colliding on key names) or an
// in-process map for tests and single-node deployments.
package cache

import (
	"context"
	"time"
)

// Cache is the full operation surface spec §4.5 names.
type Cache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	GetInt(ctx context.Context, key string) (int64, bool, error)
	GetArray(ctx context.Context, key string, n int64) ([]string, error)
	GetMulti(ctx context.Context, keys []string) (map[string]string, error)

	Incr(ctx context.Context, key string, by int64) (int64, error)
	Decr(ctx context.Context, key string, by int64) (int64, error)

	// Prepend/Append push value onto the list at key then trim it to cap
	// elements in the same round trip (spec §4.5).
	Prepend(ctx context.Context, key, value string, cap int64) error
	Append(ctx context.Context, key, value string, cap int64) error

	UniqueAdd(ctx context.Context, key, member string) error
	GetUniqueSet(ctx context.Context, key string) ([]string, error)

	SetHash(ctx context.Context, key, field, value string) error
	GetHash(ctx context.Context, key, field string) (string, bool, error)
	GetAllHashes(ctx context.Context, key string) (map[string]string, error)
	GetHashSize(ctx context.Context, key string) (int64, error)
	DeleteHashKey(ctx context.Context, key, field string) error

	SetZSet(ctx context.Context, key string, score float64, member string) error
	GetZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)
	DelZRangeByScore(ctx context.Context, key string, min, max float64) error

	Remove(ctx context.Context, keys ...string) error
	Flush(ctx context.Context, pattern string) error
	FlushAll(ctx context.Context) error
}
