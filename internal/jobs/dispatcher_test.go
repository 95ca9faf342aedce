package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reactorcore/substrate/internal/registry"
)

func TestImmediateDispatcher_RunsInline(t *testing.T) {
	reg := registry.New()
	var ran bool
	reg.RegisterJob("notify.send", func(args []interface{}, kwargs map[string]interface{}) error {
		ran = true
		return nil
	})

	d := NewImmediateDispatcher(reg)
	id, err := d.Add(context.Background(), "notify.send", nil, nil, PriorityHigh, "")
	require.NoError(t, err)
	assert.Len(t, id, 6)
	assert.True(t, ran, "target must have run before Add returned")
}

func TestImmediateDispatcher_UnresolvedTarget(t *testing.T) {
	reg := registry.New()
	d := NewImmediateDispatcher(reg)
	_, err := d.Add(context.Background(), "missing.target", nil, nil, PriorityNormal, "")
	assert.Error(t, err)
}

func TestQueueDispatcher_WorkerPoolProcessesAllPriorities(t *testing.T) {
	reg := registry.New()

	var mu sync.Mutex
	var seen []string
	reg.RegisterJob("work", func(args []interface{}, kwargs map[string]interface{}) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, args[0].(string))
		return nil
	})

	d := NewQueueDispatcher(reg, DefaultQueueDispatcherConfig(), nil)
	d.Start(2)
	defer d.Stop()

	_, err := d.Add(context.Background(), "work", []interface{}{"a"}, nil, PriorityHigh, "")
	require.NoError(t, err)
	_, err = d.Add(context.Background(), "work", []interface{}{"b"}, nil, PriorityLow, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestQueueDispatcher_QueueFullReturnsError(t *testing.T) {
	reg := registry.New()
	reg.RegisterJob("noop", func(args []interface{}, kwargs map[string]interface{}) error { return nil })

	d := NewQueueDispatcher(reg, QueueDispatcherConfig{Workers: 0, QueueSize: 1}, nil)

	_, err := d.Add(context.Background(), "noop", nil, nil, PriorityHigh, "")
	require.NoError(t, err)

	_, err = d.Add(context.Background(), "noop", nil, nil, PriorityHigh, "")
	assert.Error(t, err, "no workers draining the queue, second enqueue must not block or retry")
}
