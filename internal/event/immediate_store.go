package event

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// ImmediateStore is a local, in-process Store for tests: CreateEvent appends
// to a protected slice instead of writing to an external store, and
// PopReadyEvents pops by the same score comparison PopReadyEvents would use
// against a real clock. Grounded on the Python original's
// ImmediateEventService, which keeps created events in a local list for
// assertions.
type ImmediateStore struct {
	mu      sync.Mutex
	events  []Event
	groups  map[string]float64
	nowFunc func() time.Time
}

// NewImmediateStore builds an ImmediateStore. nowFunc defaults to time.Now
// and may be overridden so tests can move the clock without sleeping.
func NewImmediateStore(nowFunc func() time.Time) *ImmediateStore {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &ImmediateStore{
		groups:  make(map[string]float64),
		nowFunc: nowFunc,
	}
}

func (s *ImmediateStore) CreateEvent(_ context.Context, handler string, data json.RawMessage, readyAfter int64, groupBy string) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc().UTC()
	score := float64(now.Unix() + readyAfter)

	var group string
	if groupBy != "" {
		group = groupKey(groupBy, handler, readyAfter)
		if existing, ok := s.groups[group]; ok {
			score = existing
		} else {
			s.groups[group] = score
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
	s.events = append(s.events, ev)
	return ev, nil
}

func (s *ImmediateStore) PopReadyEvents(_ context.Context) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := float64(s.nowFunc().UTC().Unix())

	ready := make([]Event, 0)
	remaining := make([]Event, 0, len(s.events))
	poppedGroups := make(map[string]struct{})

	for _, ev := range s.events {
		if ev.Score <= now {
			ready = append(ready, ev)
			if ev.Group != "" {
				poppedGroups[ev.Group] = struct{}{}
			}
		} else {
			remaining = append(remaining, ev)
		}
	}
	s.events = remaining
	for g := range poppedGroups {
		delete(s.groups, g)
	}

	return ready, nil
}

// Events returns a snapshot of the events created and not yet popped — used
// by tests to assert on what is persisted. Events already returned by
// PopReadyEvents are not included.
func (s *ImmediateStore) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
