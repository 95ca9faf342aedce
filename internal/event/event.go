// Package event implements the deferred-event queue: CreateEvent persists a
// record to ripen at a future server-time score, and PopReadyEvents atomically
// drains everything that has ripened. Events that share a group_by/handler/
// ready_after triple coalesce onto a single score so they ripen, and are
// popped, together.
package event

import (
	"context"
	"encoding/json"
	"time"
)

// Event is an immutable deferred work item. Once popped, it is never
// returned again (invariant 3, spec §8).
type Event struct {
	Handler    string          `json:"handler"`
	Data       json.RawMessage `json:"data"`
	ReadyAfter int64           `json:"ready_after"`
	Group      string          `json:"group,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	Score      float64         `json:"score"`
}

// Store is the Event Store's operation surface.
type Store interface {
	// CreateEvent persists an event, scoring it server_now+ReadyAfter unless it
	// joins an existing group, in which case it reuses the group's score.
	// groupBy is optional; pass "" for an ungrouped event.
	CreateEvent(ctx context.Context, handler string, data json.RawMessage, readyAfter int64, groupBy string) (Event, error)

	// PopReadyEvents atomically removes and returns every event whose score is
	// now due. The returned batch is guaranteed already gone from the store.
	PopReadyEvents(ctx context.Context) ([]Event, error)
}
