package kv

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reactorcore/substrate/internal/kverr"
)

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Lock is a lease-lock handle: a key with a TTL whose presence grants
// exclusive execution rights. Acquire is non-blocking — a single SETNX
// attempt, never a retry loop — because the Scheduler's correctness depends
// on "lock held by someone else" being ordinary control flow, not something
// to contend for.
type Lock struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration
	logger *slog.Logger
}

func newLock(client *redis.Client, name string, ttl time.Duration, logger *slog.Logger) *Lock {
	return &Lock{
		client: client,
		key:    name,
		value:  generateLockValue(),
		ttl:    ttl,
		logger: logger,
	}
}

func generateLockValue() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("lock_%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

// Acquire makes exactly one SET-NX-EX attempt and reports whether it won.
// Losing the race is not an error (kverr.ErrLockContention is never returned
// here; the caller distinguishes "false, nil" from "false, err" instead) —
// only a genuine store failure returns a non-nil error.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		l.logger.Error("lock acquire failed", "key", l.key, "error", err)
		return false, fmt.Errorf("lock acquire %s: %w: %w", l.key, kverr.ErrTransient, err)
	}
	return ok, nil
}

// Release deletes the lock only if it still holds the value it set, via a
// compare-and-delete Lua script, so a lock this handle lost to expiry is
// never accidentally stolen back from whoever acquired it next.
func (l *Lock) Release(ctx context.Context) error {
	result, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.value).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		l.logger.Error("lock release failed", "key", l.key, "error", err)
		return fmt.Errorf("lock release %s: %w: %w", l.key, kverr.ErrTransient, err)
	}

	if n, ok := result.(int64); ok && n == 1 {
		l.logger.Debug("lock released", "key", l.key)
	} else {
		l.logger.Debug("lock already expired or held by another owner", "key", l.key)
	}
	return nil
}
