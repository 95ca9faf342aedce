package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/reactorcore/substrate/internal/kv"
	"github.com/reactorcore/substrate/internal/metrics"
)

const keyPrefix = "cache:"

// Store is the production Cache: every key is namespaced under "cache:" so
// it cannot collide with the Event Store's "event"/"event:group:*" keys or
// the Scheduler's "cron:*" lock keys on the same external store connection.
type Store struct {
	kv      kv.Adapter
	timeout time.Duration
	metrics *metrics.Metrics
}

// New builds a Store. timeout is cache.timeout_seconds from configuration
// (§6) — the default TTL applied by Set when the caller passes zero.
func New(adapter kv.Adapter, timeout time.Duration) *Store {
	return &Store{kv: adapter, timeout: timeout}
}

// SetMetrics wires a metrics sink into the Store. Optional; nil is a safe
// no-op, matching the Scheduler/Dispatcher/Driver SetMetrics convention.
func (s *Store) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

func (s *Store) observe(op string, found bool) {
	if s.metrics == nil {
		return
	}
	if found {
		s.metrics.CacheHits.WithLabelValues(op).Inc()
	} else {
		s.metrics.CacheMisses.WithLabelValues(op).Inc()
	}
}

func (s *Store) ns(key string) string {
	return keyPrefix + key
}

func (s *Store) ttl(requested time.Duration) time.Duration {
	if requested > 0 {
		return requested
	}
	return s.timeout
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.kv.Set(ctx, s.ns(key), value, s.ttl(ttl))
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.kv.Get(ctx, s.ns(key))
	if err != nil {
		return "", false, err
	}
	found := val != ""
	s.observe("get", found)
	return val, found, nil
}

func (s *Store) GetInt(ctx context.Context, key string) (int64, bool, error) {
	val, found, err := s.Get(ctx, key)
	if err != nil || !found {
		return 0, found, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("cache: value at %q is not an integer: %w", key, err)
	}
	return n, true, nil
}

func (s *Store) GetArray(ctx context.Context, key string, n int64) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	return s.kv.LRange(ctx, s.ns(key), 0, n-1)
}

func (s *Store) GetMulti(ctx context.Context, keys []string) (map[string]string, error) {
	nsKeys := make([]string, len(keys))
	for i, k := range keys {
		nsKeys[i] = s.ns(k)
	}
	vals, err := s.kv.MGet(ctx, nsKeys...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	for i, v := range vals {
		if v != nil {
			out[keys[i]] = *v
			s.observe("get_multi", true)
		} else {
			s.observe("get_multi", false)
		}
	}
	return out, nil
}

func (s *Store) Incr(ctx context.Context, key string, by int64) (int64, error) {
	return s.kv.Incr(ctx, s.ns(key), by)
}

func (s *Store) Decr(ctx context.Context, key string, by int64) (int64, error) {
	return s.kv.Incr(ctx, s.ns(key), -by)
}

func (s *Store) Prepend(ctx context.Context, key, value string, cap int64) error {
	return s.kv.LPushTrim(ctx, s.ns(key), value, cap)
}

func (s *Store) Append(ctx context.Context, key, value string, cap int64) error {
	return s.kv.RPushTrim(ctx, s.ns(key), value, cap)
}

func (s *Store) UniqueAdd(ctx context.Context, key, member string) error {
	return s.kv.SAdd(ctx, s.ns(key), member)
}

func (s *Store) GetUniqueSet(ctx context.Context, key string) ([]string, error) {
	return s.kv.SMembers(ctx, s.ns(key))
}

func (s *Store) SetHash(ctx context.Context, key, field, value string) error {
	return s.kv.HSet(ctx, s.ns(key), field, value)
}

func (s *Store) GetHash(ctx context.Context, key, field string) (string, bool, error) {
	val, err := s.kv.HGet(ctx, s.ns(key), field)
	if err != nil {
		return "", false, err
	}
	found := val != ""
	s.observe("get_hash", found)
	return val, found, nil
}

func (s *Store) GetAllHashes(ctx context.Context, key string) (map[string]string, error) {
	return s.kv.HGetAll(ctx, s.ns(key))
}

func (s *Store) GetHashSize(ctx context.Context, key string) (int64, error) {
	return s.kv.HLen(ctx, s.ns(key))
}

func (s *Store) DeleteHashKey(ctx context.Context, key, field string) error {
	return s.kv.HDel(ctx, s.ns(key), field)
}

func (s *Store) SetZSet(ctx context.Context, key string, score float64, member string) error {
	return s.kv.ZAdd(ctx, s.ns(key), score, member)
}

func (s *Store) GetZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	return s.kv.ZRangeByScore(ctx, s.ns(key), min, max)
}

func (s *Store) DelZRangeByScore(ctx context.Context, key string, min, max float64) error {
	return s.kv.ZRemRangeByScore(ctx, s.ns(key), min, max)
}

func (s *Store) Remove(ctx context.Context, keys ...string) error {
	nsKeys := make([]string, len(keys))
	for i, k := range keys {
		nsKeys[i] = s.ns(k)
	}
	return s.kv.Del(ctx, nsKeys...)
}

const flushChunkSize = 1000

// Flush deletes every cache key matching pattern (namespaced under
// "cache:"), or every cache key when pattern is empty. Deletes run in
// chunks of at most flushChunkSize keys per round trip (spec §4.5) so a
// large flush never ships one oversized DEL.
func (s *Store) Flush(ctx context.Context, pattern string) error {
	if pattern == "" {
		pattern = "*"
	}
	keys, err := s.kv.Keys(ctx, s.ns(pattern))
	if err != nil {
		return err
	}
	for len(keys) > 0 {
		n := flushChunkSize
		if n > len(keys) {
			n = len(keys)
		}
		if err := s.kv.Del(ctx, keys[:n]...); err != nil {
			return err
		}
		keys = keys[n:]
	}
	return nil
}

// FlushAll deletes every cache key regardless of pattern.
func (s *Store) FlushAll(ctx context.Context) error {
	return s.Flush(ctx, "")
}
