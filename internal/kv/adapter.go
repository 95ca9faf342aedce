// Package kv is the typed facade over the external key/value store that every
// other component in the substrate is built on: strings, sorted sets, sets,
// lists, hashes, pipelined transactions, server time, and a lease lock.
//
// Every operation may fail with a transient storage error (kverr.ErrTransient);
// per the error taxonomy, callers log and return a safe default rather than
// propagate. The adapter itself does not decide what "safe default" means for
// a caller — that is each component's job — but it always returns a typed,
// wrapped error so callers can tell transient storage failure apart from
// "not found".
package kv

import (
	"context"
	"time"
)

// Adapter is the minimum surface the Event Store, Scheduler, and Cache
// require from the external store.
type Adapter interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	MGet(ctx context.Context, keys ...string) ([]*string, error)
	Incr(ctx context.Context, key string, by int64) (int64, error)

	ZAdd(ctx context.Context, key string, score float64, member string) error
	// ZPopByScore atomically reads every member of key scored in [min, max] and
	// removes that same range in one round trip, guaranteeing the read and the
	// remove observe the same snapshot (the Event Store's PopReadyEvents relies
	// on this).
	ZPopByScore(ctx context.Context, key string, min, max float64) ([]string, error)
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)
	ZRemRangeByScore(ctx context.Context, key string, min, max float64) error

	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)

	LPush(ctx context.Context, key string, values ...string) error
	RPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LTrim(ctx context.Context, key string, start, stop int64) error
	// LPushTrim and RPushTrim push value then trim the list in one pipelined
	// round trip (the Cache's Prepend/Append, spec §4.5): LPushTrim pushes to
	// the front and keeps the leading cap elements, RPushTrim pushes to the
	// back and keeps the trailing cap elements.
	LPushTrim(ctx context.Context, key, value string, cap int64) error
	RPushTrim(ctx context.Context, key, value string, cap int64) error

	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HLen(ctx context.Context, key string) (int64, error)
	HDel(ctx context.Context, key string, fields ...string) error

	Keys(ctx context.Context, pattern string) ([]string, error)

	// ServerTime returns the store's own wall clock so every replica shares one
	// reference regardless of local clock skew.
	ServerTime(ctx context.Context) (time.Time, error)

	// Lock builds a lease-lock handle for name with the given TTL. Building the
	// handle performs no I/O; call Acquire to actually contend for it.
	Lock(name string, ttl time.Duration) *Lock

	Close() error
}
