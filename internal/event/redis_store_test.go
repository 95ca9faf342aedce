package event

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reactorcore/substrate/internal/kv"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	adapter := kv.NewRedisAdapterFromClient(client, nil)
	return NewRedisStore(adapter, nil)
}

// TestRedisStore_GroupedEventsCoalesceOntoOneScoreAndPopTogether is spec §8
// scenario 1: three CreateEvent calls under one group within the same
// ready_after window all share one score and pop together as a batch of
// three once that score is due. ServerTime is the store's real TIME
// command, not miniredis's fast-forwardable TTL clock, so the window is
// driven by a real (short) sleep rather than FastForward.
func TestRedisStore_GroupedEventsCoalesceOntoOneScoreAndPopTogether(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		data, _ := json.Marshal(map[string]int{"id": i})
		_, err := s.CreateEvent(ctx, "notif.digest", data, 1, "u1")
		require.NoError(t, err)
	}

	// Not yet due: ready_after is 1s out, nothing has elapsed yet.
	popped, err := s.PopReadyEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, popped)

	time.Sleep(1200 * time.Millisecond)
	popped, err = s.PopReadyEvents(ctx)
	require.NoError(t, err)
	require.Len(t, popped, 3, "all three grouped events must ripen and pop together")

	for _, ev := range popped {
		assert.Equal(t, "notif.digest", ev.Handler)
		assert.NotEmpty(t, ev.Group)
	}
	assert.Equal(t, popped[0].Score, popped[1].Score, "grouped events share one score (invariant 2, §8)")
	assert.Equal(t, popped[1].Score, popped[2].Score)

	// A second pop must return nothing: already popped, group key cleaned up.
	popped, err = s.PopReadyEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, popped)
}

// TestRedisStore_UngroupedEventPopsOnceAtItsOwnMoment is spec §8 scenario 2.
func TestRedisStore_UngroupedEventPopsOnceAtItsOwnMoment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateEvent(ctx, "x", json.RawMessage(`{}`), 1, "")
	require.NoError(t, err)

	popped, err := s.PopReadyEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, popped)

	time.Sleep(1200 * time.Millisecond)
	popped, err = s.PopReadyEvents(ctx)
	require.NoError(t, err)
	require.Len(t, popped, 1)
	assert.Equal(t, "x", popped[0].Handler)

	popped, err = s.PopReadyEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, popped)
}

// TestRedisStore_CreateEventIsIdempotentAtGroupScoreLevel exercises the
// round-trip/idempotence property from §8: repeated CreateEvent calls within
// the same window reuse the same score even though each call still persists
// its own message.
func TestRedisStore_CreateEventIsIdempotentAtGroupScoreLevel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateEvent(ctx, "h", json.RawMessage(`{}`), 60, "g")
	require.NoError(t, err)

	second, err := s.CreateEvent(ctx, "h", json.RawMessage(`{}`), 60, "g")
	require.NoError(t, err)

	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.Group, second.Group)
}

func TestRedisStore_PopOnEmptyWindowIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	popped, err := s.PopReadyEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, popped)

	popped, err = s.PopReadyEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, popped)
}
