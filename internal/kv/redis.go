package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reactorcore/substrate/internal/kverr"
)

// RedisConfig configures the connection to the external store. Host/Port/DB/
// Timeout are the four fields the substrate's configuration contract (§6)
// singles out for environment-variable override (REDIS_HOST, REDIS_PORT,
// REDIS_DB, REDIS_TIMEOUT win over file config).
type RedisConfig struct {
	Host     string
	Port     int
	DB       int
	Password string
	Timeout  time.Duration
	PoolSize int
}

const (
	defaultMaxRetries   = 3
	defaultRetryBackoff = 100 * time.Millisecond
)

// RedisAdapter is the production Adapter backed by a real Redis (or
// Redis-protocol-compatible) server via go-redis.
type RedisAdapter struct {
	client       *redis.Client
	logger       *slog.Logger
	maxRetries   int
	retryBackoff time.Duration
}

// NewRedisAdapter dials the configured store. Connectivity is not verified
// here; the first operation surfaces a transient error if the store is
// unreachable, consistent with "nothing retries automatically" (§7) — that
// invariant is about business-level recovery (no replaying a failed task or
// event pop), not about a single round trip's own resilience against a
// dropped connection, which the adapter retries a bounded number of times
// before surfacing the failure as transient.
func NewRedisAdapter(cfg RedisConfig, logger *slog.Logger) *RedisAdapter {
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	return &RedisAdapter{client: client, logger: logger, maxRetries: defaultMaxRetries, retryBackoff: defaultRetryBackoff}
}

// NewRedisAdapterFromClient wraps an already-constructed client, used by
// tests to point the adapter at miniredis.
func NewRedisAdapterFromClient(client *redis.Client, logger *slog.Logger) *RedisAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisAdapter{client: client, logger: logger, maxRetries: defaultMaxRetries, retryBackoff: defaultRetryBackoff}
}

func (a *RedisAdapter) wrap(op string, err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return err
	}
	a.logger.Error("kv adapter transient error", "op", op, "error", err)
	return fmt.Errorf("%s: %w: %w", op, kverr.ErrTransient, err)
}

// withRetry runs attempt up to maxRetries+1 times, retrying only on a
// genuine transient failure (redis.Nil is a normal "not found", never
// retried). Between attempts it sleeps a jittered exponential backoff,
// grounded on the teacher's DistributedLock.retryInterval. This bounds a
// single KV round trip's own resilience against a dropped connection; it
// does not retry business-level operations like a cron fire or an event pop
// (spec §7's "nothing retries automatically" is about those).
func (a *RedisAdapter) withRetry(ctx context.Context, op string, attempt func() error) error {
	var err error
	for i := 0; i <= a.maxRetries; i++ {
		err = attempt()
		if err == nil || errors.Is(err, redis.Nil) {
			return err
		}
		if i == a.maxRetries {
			break
		}
		a.logger.Debug("kv adapter retrying after transient error", "op", op, "attempt", i+1, "error", err)
		select {
		case <-ctx.Done():
			return a.wrap(op, err)
		case <-time.After(retryInterval(i, a.retryBackoff)):
		}
	}
	return a.wrap(op, err)
}

// retryInterval is exponential backoff with ±25% jitter, the same formula
// the teacher's DistributedLock.retryInterval uses.
func retryInterval(attempt int, base time.Duration) time.Duration {
	interval := base * time.Duration(1<<attempt)
	jitter := time.Duration(float64(interval) * 0.25 * (2*rand.Float64() - 1))
	return interval + jitter
}

func (a *RedisAdapter) Get(ctx context.Context, key string) (string, error) {
	var val string
	err := a.withRetry(ctx, "get", func() error {
		v, err := a.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			val = ""
			return nil
		}
		if err != nil {
			return err
		}
		val = v
		return nil
	})
	return val, err
}

func (a *RedisAdapter) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return a.withRetry(ctx, "set", func() error {
		return a.client.Set(ctx, key, value, ttl).Err()
	})
}

func (a *RedisAdapter) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return a.withRetry(ctx, "del", func() error {
		return a.client.Del(ctx, keys...).Err()
	})
}

func (a *RedisAdapter) MGet(ctx context.Context, keys ...string) ([]*string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	var vals []interface{}
	err := a.withRetry(ctx, "mget", func() error {
		v, err := a.client.MGet(ctx, keys...).Result()
		if err != nil {
			return err
		}
		vals = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]*string, len(vals))
	for i, v := range vals {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		out[i] = &s
	}
	return out, nil
}

func (a *RedisAdapter) Incr(ctx context.Context, key string, by int64) (int64, error) {
	var n int64
	err := a.withRetry(ctx, "incr", func() error {
		v, err := a.client.IncrBy(ctx, key, by).Result()
		if err != nil {
			return err
		}
		n = v
		return nil
	})
	return n, err
}

func (a *RedisAdapter) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return a.withRetry(ctx, "zadd", func() error {
		return a.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
	})
}

// ZPopByScore is the atomic "read then remove the same range" operation the
// Event Store's PopReadyEvents relies on: ZRangeByScore and ZRemRangeByScore
// run inside one pipeline round trip so no third party can observe the range
// between the read and the remove.
func (a *RedisAdapter) ZPopByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	lo := formatScore(min)
	hi := formatScore(max)

	var members []string
	err := a.withRetry(ctx, "zpop_by_score", func() error {
		pipe := a.client.TxPipeline()
		rangeCmd := pipe.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: lo, Max: hi})
		pipe.ZRemRangeByScore(ctx, key, lo, hi)

		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		members = rangeCmd.Val()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (a *RedisAdapter) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	var vals []string
	err := a.withRetry(ctx, "zrangebyscore", func() error {
		v, err := a.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: formatScore(min), Max: formatScore(max)}).Result()
		if err != nil {
			return err
		}
		vals = v
		return nil
	})
	return vals, err
}

func (a *RedisAdapter) ZRemRangeByScore(ctx context.Context, key string, min, max float64) error {
	return a.withRetry(ctx, "zremrangebyscore", func() error {
		return a.client.ZRemRangeByScore(ctx, key, formatScore(min), formatScore(max)).Err()
	})
}

func (a *RedisAdapter) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	anyMembers := make([]interface{}, len(members))
	for i, m := range members {
		anyMembers[i] = m
	}
	return a.withRetry(ctx, "sadd", func() error {
		return a.client.SAdd(ctx, key, anyMembers...).Err()
	})
}

func (a *RedisAdapter) SMembers(ctx context.Context, key string) ([]string, error) {
	var vals []string
	err := a.withRetry(ctx, "smembers", func() error {
		v, err := a.client.SMembers(ctx, key).Result()
		if err != nil {
			return err
		}
		vals = v
		return nil
	})
	return vals, err
}

func (a *RedisAdapter) LPush(ctx context.Context, key string, values ...string) error {
	anyValues := toAny(values)
	return a.withRetry(ctx, "lpush", func() error {
		return a.client.LPush(ctx, key, anyValues...).Err()
	})
}

func (a *RedisAdapter) RPush(ctx context.Context, key string, values ...string) error {
	anyValues := toAny(values)
	return a.withRetry(ctx, "rpush", func() error {
		return a.client.RPush(ctx, key, anyValues...).Err()
	})
}

func (a *RedisAdapter) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	var vals []string
	err := a.withRetry(ctx, "lrange", func() error {
		v, err := a.client.LRange(ctx, key, start, stop).Result()
		if err != nil {
			return err
		}
		vals = v
		return nil
	})
	return vals, err
}

func (a *RedisAdapter) LTrim(ctx context.Context, key string, start, stop int64) error {
	return a.withRetry(ctx, "ltrim", func() error {
		return a.client.LTrim(ctx, key, start, stop).Err()
	})
}

// LPushTrim pushes value onto the front of key and trims it to its leading
// cap elements in a single pipeline round trip.
func (a *RedisAdapter) LPushTrim(ctx context.Context, key, value string, cap int64) error {
	return a.withRetry(ctx, "lpush_trim", func() error {
		pipe := a.client.TxPipeline()
		pipe.LPush(ctx, key, value)
		pipe.LTrim(ctx, key, 0, cap-1)
		_, err := pipe.Exec(ctx)
		return err
	})
}

// RPushTrim pushes value onto the back of key and trims it to its trailing
// cap elements in a single pipeline round trip.
func (a *RedisAdapter) RPushTrim(ctx context.Context, key, value string, cap int64) error {
	return a.withRetry(ctx, "rpush_trim", func() error {
		pipe := a.client.TxPipeline()
		pipe.RPush(ctx, key, value)
		pipe.LTrim(ctx, key, -cap, -1)
		_, err := pipe.Exec(ctx)
		return err
	})
}

func (a *RedisAdapter) HSet(ctx context.Context, key, field, value string) error {
	return a.withRetry(ctx, "hset", func() error {
		return a.client.HSet(ctx, key, field, value).Err()
	})
}

func (a *RedisAdapter) HGet(ctx context.Context, key, field string) (string, error) {
	var val string
	err := a.withRetry(ctx, "hget", func() error {
		v, err := a.client.HGet(ctx, key, field).Result()
		if errors.Is(err, redis.Nil) {
			val = ""
			return nil
		}
		if err != nil {
			return err
		}
		val = v
		return nil
	})
	return val, err
}

func (a *RedisAdapter) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	var vals map[string]string
	err := a.withRetry(ctx, "hgetall", func() error {
		v, err := a.client.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		vals = v
		return nil
	})
	return vals, err
}

func (a *RedisAdapter) HLen(ctx context.Context, key string) (int64, error) {
	var n int64
	err := a.withRetry(ctx, "hlen", func() error {
		v, err := a.client.HLen(ctx, key).Result()
		if err != nil {
			return err
		}
		n = v
		return nil
	})
	return n, err
}

func (a *RedisAdapter) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return a.withRetry(ctx, "hdel", func() error {
		return a.client.HDel(ctx, key, fields...).Err()
	})
}

func (a *RedisAdapter) Keys(ctx context.Context, pattern string) ([]string, error) {
	var vals []string
	err := a.withRetry(ctx, "keys", func() error {
		v, err := a.client.Keys(ctx, pattern).Result()
		if err != nil {
			return err
		}
		vals = v
		return nil
	})
	return vals, err
}

func (a *RedisAdapter) ServerTime(ctx context.Context) (time.Time, error) {
	var t time.Time
	err := a.withRetry(ctx, "time", func() error {
		v, err := a.client.Time(ctx).Result()
		if err != nil {
			return err
		}
		t = v
		return nil
	})
	return t, err
}

func (a *RedisAdapter) Lock(name string, ttl time.Duration) *Lock {
	return newLock(a.client, name, ttl, a.logger)
}

func (a *RedisAdapter) Close() error {
	return a.client.Close()
}

func toAny(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func formatScore(f float64) string {
	return fmt.Sprintf("%f", f)
}
