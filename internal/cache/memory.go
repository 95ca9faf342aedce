package cache

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/reactorcore/substrate/internal/metrics"
)

type memEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory is an in-process Cache: one RWMutex guarding a separate typed map
// per value type (string, list, set, hash, sorted set), for
// cache.backend=memory single-node deployments and tests. Thread-safe,
// no persistence, no capacity limit (the original's FIFO-eviction map
// pattern is the shape; the Cache component has no equivalent size bound in
// spec §4.5 so none is added here).
type Memory struct {
	mu      sync.RWMutex
	strings map[string]memEntry
	lists   map[string][]string
	sets    map[string]map[string]struct{}
	hashes  map[string]map[string]string
	zsets   map[string]map[string]float64
	now     func() time.Time
	metrics *metrics.Metrics
}

// SetMetrics wires a metrics sink into the Memory cache. Optional; nil is a
// safe no-op, matching the Store/Scheduler/Dispatcher/Driver convention.
func (m *Memory) SetMetrics(sink *metrics.Metrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = sink
}

func (m *Memory) observe(op string, found bool) {
	if m.metrics == nil {
		return
	}
	if found {
		m.metrics.CacheHits.WithLabelValues(op).Inc()
	} else {
		m.metrics.CacheMisses.WithLabelValues(op).Inc()
	}
}

// NewMemory builds an empty Memory cache. nowFunc defaults to time.Now.
func NewMemory(nowFunc func() time.Time) *Memory {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &Memory{
		strings: make(map[string]memEntry),
		lists:   make(map[string][]string),
		sets:    make(map[string]map[string]struct{}),
		hashes:  make(map[string]map[string]string),
		zsets:   make(map[string]map[string]float64),
		now:     nowFunc,
	}
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = m.now().Add(ttl)
	}
	m.strings[key] = memEntry{value: value, expiresAt: expiresAt}
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.strings[key]
	if !ok || e.expired(m.now()) {
		delete(m.strings, key)
		m.observe("get", false)
		return "", false, nil
	}
	m.observe("get", true)
	return e.value, true, nil
}

func (m *Memory) GetInt(ctx context.Context, key string) (int64, bool, error) {
	val, found, err := m.Get(ctx, key)
	if err != nil || !found {
		return 0, found, err
	}
	n, parseErr := strconv.ParseInt(val, 10, 64)
	if parseErr != nil {
		return 0, false, parseErr
	}
	return n, true, nil
}

func (m *Memory) GetArray(_ context.Context, key string, n int64) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.lists[key]
	if int64(len(list)) > n {
		list = list[:n]
	}
	out := make([]string, len(list))
	copy(out, list)
	return out, nil
}

func (m *Memory) GetMulti(ctx context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if val, found, _ := m.Get(ctx, k); found {
			out[k] = val
		}
	}
	return out, nil
}

func (m *Memory) Incr(_ context.Context, key string, by int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.strings[key]
	var current int64
	if !e.expired(m.now()) && e.value != "" {
		current, _ = strconv.ParseInt(e.value, 10, 64)
	}
	current += by
	m.strings[key] = memEntry{value: strconv.FormatInt(current, 10), expiresAt: e.expiresAt}
	return current, nil
}

func (m *Memory) Decr(ctx context.Context, key string, by int64) (int64, error) {
	return m.Incr(ctx, key, -by)
}

// Prepend pushes value onto the front of key's list then trims it to its
// leading cap elements, mirroring the Store backend's pipelined LPush+LTrim
// (spec §4.5).
func (m *Memory) Prepend(_ context.Context, key, value string, cap int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := append([]string{value}, m.lists[key]...)
	if cap > 0 && int64(len(list)) > cap {
		list = list[:cap]
	}
	m.lists[key] = list
	return nil
}

// Append pushes value onto the back of key's list then trims it to its
// trailing cap elements.
func (m *Memory) Append(_ context.Context, key, value string, cap int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := append(m.lists[key], value)
	if cap > 0 && int64(len(list)) > cap {
		list = list[int64(len(list))-cap:]
	}
	m.lists[key] = list
	return nil
}

func (m *Memory) UniqueAdd(_ context.Context, key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	set[member] = struct{}{}
	return nil
}

func (m *Memory) GetUniqueSet(_ context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.sets[key]
	out := make([]string, 0, len(set))
	for member := range set {
		out = append(out, member)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) SetHash(_ context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (m *Memory) GetHash(_ context.Context, key, field string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.hashes[key][field]
	m.observe("get_hash", ok)
	return val, ok, nil
}

func (m *Memory) GetAllHashes(_ context.Context, key string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.hashes[key]))
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) GetHashSize(_ context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.hashes[key])), nil
}

func (m *Memory) DeleteHashKey(_ context.Context, key, field string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.hashes[key], field)
	return nil
}

func (m *Memory) SetZSet(_ context.Context, key string, score float64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zsets[key]
	if !ok {
		z = make(map[string]float64)
		m.zsets[key] = z
	}
	z[member] = score
	return nil
}

func (m *Memory) GetZRangeByScore(_ context.Context, key string, min, max float64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	type scored struct {
		member string
		score  float64
	}
	var matches []scored
	for member, score := range m.zsets[key] {
		if score >= min && score <= max {
			matches = append(matches, scored{member, score})
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].score < matches[j].score })
	out := make([]string, len(matches))
	for i, s := range matches {
		out[i] = s.member
	}
	return out, nil
}

func (m *Memory) DelZRangeByScore(_ context.Context, key string, min, max float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	z := m.zsets[key]
	for member, score := range z {
		if score >= min && score <= max {
			delete(z, member)
		}
	}
	return nil
}

func (m *Memory) Remove(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.strings, key)
		delete(m.lists, key)
		delete(m.sets, key)
		delete(m.hashes, key)
		delete(m.zsets, key)
	}
	return nil
}

// globToRegexp translates a "*"-glob pattern into a regular expression
// anchored at both ends (spec §4.5), so Flush matches the same keys a
// Redis-style KEYS pattern would.
func globToRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("^")
	for _, part := range strings.Split(pattern, "*") {
		b.WriteString(regexp.QuoteMeta(part))
		b.WriteString(".*")
	}
	re := b.String()
	re = strings.TrimSuffix(re, ".*") + "$"
	return regexp.MustCompile(re)
}

func (m *Memory) Flush(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pattern == "" {
		pattern = "*"
	}
	re := globToRegexp(pattern)
	for k := range m.strings {
		if re.MatchString(k) {
			delete(m.strings, k)
		}
	}
	for k := range m.lists {
		if re.MatchString(k) {
			delete(m.lists, k)
		}
	}
	for k := range m.sets {
		if re.MatchString(k) {
			delete(m.sets, k)
		}
	}
	for k := range m.hashes {
		if re.MatchString(k) {
			delete(m.hashes, k)
		}
	}
	for k := range m.zsets {
		if re.MatchString(k) {
			delete(m.zsets, k)
		}
	}
	return nil
}

func (m *Memory) FlushAll(ctx context.Context) error {
	return m.Flush(ctx, "")
}
