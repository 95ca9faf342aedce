package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/reactorcore/substrate/internal/kv"
)

const (
	eventSetKey      = "event"
	groupKeyGrace    = 60 * time.Second
	groupKeyTemplate = "event:group:%s-%s-%d"
)

// RedisStore is the production Store, grounded on the KV Adapter's sorted-set
// and pipeline primitives (spec §4.2).
type RedisStore struct {
	kv     kv.Adapter
	logger *slog.Logger
}

// NewRedisStore builds a Store over adapter.
func NewRedisStore(adapter kv.Adapter, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{kv: adapter, logger: logger}
}

func groupKey(groupBy, handler string, readyAfter int64) string {
	return fmt.Sprintf(groupKeyTemplate, groupBy, handler, readyAfter)
}

func (s *RedisStore) CreateEvent(ctx context.Context, handler string, data json.RawMessage, readyAfter int64, groupBy string) (Event, error) {
	now, err := s.kv.ServerTime(ctx)
	if err != nil {
		s.logger.Error("create event: failed to read server time", "handler", handler, "error", err)
		now = time.Now().UTC()
	}

	var group string
	score := float64(now.Unix() + readyAfter)

	if groupBy != "" {
		group = groupKey(groupBy, handler, readyAfter)

		if existing, gerr := s.kv.Get(ctx, group); gerr == nil && existing != "" {
			if parsed, perr := strconv.ParseFloat(existing, 64); perr == nil {
				score = parsed
			}
		} else if gerr != nil {
			s.logger.Error("create event: group key lookup failed, computing fresh score", "group", group, "error", gerr)
		}

		ttl := time.Duration(readyAfter)*time.Second + groupKeyGrace
		if err := s.kv.Set(ctx, group, strconv.FormatFloat(score, 'f', -1, 64), ttl); err != nil {
			// Best-effort per §4.2 step 5: a failed group-key write still lets this
			// event ripen on its own score, it just won't coalesce with latecomers.
			s.logger.Error("create event: failed to record group score", "group", group, "error", err)
		}
	}

	ev := Event{
		Handler:    handler,
		Data:       data,
		ReadyAfter: readyAfter,
		Group:      group,
		CreatedAt:  now,
		Score:      score,
	}

	blob, err := json.Marshal(ev)
	if err != nil {
		return Event{}, fmt.Errorf("create event: marshal: %w", err)
	}

	if err := s.kv.ZAdd(ctx, eventSetKey, score, string(blob)); err != nil {
		s.logger.Error("create event: failed to add to event set", "handler", handler, "error", err)
	}

	return ev, nil
}

func (s *RedisStore) PopReadyEvents(ctx context.Context) ([]Event, error) {
	now, err := s.kv.ServerTime(ctx)
	if err != nil {
		s.logger.Error("pop ready events: failed to read server time", "error", err)
		return nil, nil
	}

	blobs, err := s.kv.ZPopByScore(ctx, eventSetKey, 0, float64(now.Unix()))
	if err != nil {
		s.logger.Error("pop ready events: atomic pop failed", "error", err)
		return nil, nil
	}

	events := make([]Event, 0, len(blobs))
	groups := make(map[string]struct{})

	for _, blob := range blobs {
		var ev Event
		if err := json.Unmarshal([]byte(blob), &ev); err != nil {
			s.logger.Error("pop ready events: failed to decode event, dropping", "error", err)
			continue
		}
		events = append(events, ev)
		if ev.Group != "" {
			groups[ev.Group] = struct{}{}
		}
	}

	if len(groups) > 0 {
		keys := make([]string, 0, len(groups))
		for g := range groups {
			keys = append(keys, g)
		}
		if err := s.kv.Del(ctx, keys...); err != nil {
			s.logger.Error("pop ready events: failed to delete group keys", "count", len(keys), "error", err)
		}
	}

	return events, nil
}
