package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reactorcore/substrate/internal/event"
)

func TestRegistry_HandlerResolvesOrNil(t *testing.T) {
	r := New()
	assert.Nil(t, r.Handler("missing"), "unregistered handler must resolve to nil, not panic")

	r.RegisterHandler("notif.digest", func(events []event.Event) error { return nil })
	assert.NotNil(t, r.Handler("notif.digest"))
}

func TestRegistry_CronTaskResolvesOrNil(t *testing.T) {
	r := New()
	assert.Nil(t, r.CronTask("missing"))

	r.RegisterCronTask("cleanup", func(args []interface{}, kwargs map[string]interface{}) CronTaskFunc {
		return func() error { return nil }
	})
	factory := r.CronTask("cleanup")
	require.NotNil(t, factory)
	fn := factory(nil, nil)
	assert.NoError(t, fn())
}

func TestRegistry_JobResolvesOrNil(t *testing.T) {
	r := New()
	assert.Nil(t, r.Job("missing"))

	called := false
	r.RegisterJob("send_email", func(args []interface{}, kwargs map[string]interface{}) error {
		called = true
		return nil
	})
	fn := r.Job("send_email")
	require.NotNil(t, fn)
	assert.NoError(t, fn(nil, nil))
	assert.True(t, called)
}

func TestRegistry_ReRegisterReplaces(t *testing.T) {
	r := New()
	first := 0
	second := 0
	r.RegisterJob("x", func(args []interface{}, kwargs map[string]interface{}) error { first++; return nil })
	r.RegisterJob("x", func(args []interface{}, kwargs map[string]interface{}) error { second++; return nil })

	_ = r.Job("x")(nil, nil)
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
}
