package jobs

import (
	"context"
	"fmt"

	"github.com/reactorcore/substrate/internal/registry"
)

// ImmediateDispatcher runs the target inline on the caller's goroutine and
// returns only once it has finished, so a caller observes the job's side
// effects before Add returns (spec §4.4, scenario 5). Used in dev/test via
// jobs.backend configuration.
type ImmediateDispatcher struct {
	registry *registry.Registry
}

// NewImmediateDispatcher builds an ImmediateDispatcher over reg.
func NewImmediateDispatcher(reg *registry.Registry) *ImmediateDispatcher {
	return &ImmediateDispatcher{registry: reg}
}

func (d *ImmediateDispatcher) Add(_ context.Context, target string, args []interface{}, kwargs map[string]interface{}, priority Priority, dependsOn string) (string, error) {
	id := newJobID()

	fn := d.registry.Job(target)
	if fn == nil {
		return id, fmt.Errorf("jobs: target %q does not resolve", target)
	}

	if err := fn(args, kwargs); err != nil {
		return id, fmt.Errorf("jobs: target %q failed: %w", target, err)
	}
	return id, nil
}
