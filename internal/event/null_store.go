package event

import (
	"context"
	"encoding/json"
)

// NullStore discards every event; CreateEvent succeeds without persisting
// anything and PopReadyEvents always returns empty. Grounded on the Python
// original's VoidEventService, used when a batch entrypoint must not fire
// background notifications.
type NullStore struct{}

func (NullStore) CreateEvent(_ context.Context, handler string, data json.RawMessage, readyAfter int64, groupBy string) (Event, error) {
	return Event{Handler: handler, Data: data, ReadyAfter: readyAfter, Group: groupBy}, nil
}

func (NullStore) PopReadyEvents(_ context.Context) ([]Event, error) {
	return nil, nil
}
