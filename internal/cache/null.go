package cache

import (
	"context"
	"time"
)

// Null discards every write and reports every read as a miss, for
// cache.backend=null (SPEC_FULL §12), symmetric with event.NullStore and
// scheduler.NullScheduler.
type Null struct{}

func (Null) Set(context.Context, string, string, time.Duration) error            { return nil }
func (Null) Get(context.Context, string) (string, bool, error)                   { return "", false, nil }
func (Null) GetInt(context.Context, string) (int64, bool, error)                 { return 0, false, nil }
func (Null) GetArray(context.Context, string, int64) ([]string, error)           { return nil, nil }
func (Null) GetMulti(context.Context, []string) (map[string]string, error)       { return nil, nil }
func (Null) Incr(context.Context, string, int64) (int64, error)                  { return 0, nil }
func (Null) Decr(context.Context, string, int64) (int64, error)                  { return 0, nil }
func (Null) Prepend(context.Context, string, string, int64) error                { return nil }
func (Null) Append(context.Context, string, string, int64) error                 { return nil }
func (Null) UniqueAdd(context.Context, string, string) error                     { return nil }
func (Null) GetUniqueSet(context.Context, string) ([]string, error)              { return nil, nil }
func (Null) SetHash(context.Context, string, string, string) error               { return nil }
func (Null) GetHash(context.Context, string, string) (string, bool, error)       { return "", false, nil }
func (Null) GetAllHashes(context.Context, string) (map[string]string, error)     { return nil, nil }
func (Null) GetHashSize(context.Context, string) (int64, error)                  { return 0, nil }
func (Null) DeleteHashKey(context.Context, string, string) error                 { return nil }
func (Null) SetZSet(context.Context, string, float64, string) error              { return nil }
func (Null) GetZRangeByScore(context.Context, string, float64, float64) ([]string, error) {
	return nil, nil
}
func (Null) DelZRangeByScore(context.Context, string, float64, float64) error { return nil }
func (Null) Remove(context.Context, ...string) error                         { return nil }
func (Null) Flush(context.Context, string) error                             { return nil }
func (Null) FlushAll(context.Context) error                                  { return nil }
