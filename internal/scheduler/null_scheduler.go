package scheduler

import "context"

// NullScheduler never fires a task. Grounded on the original's
// VoidSchedulerService, mirroring internal/event.NullStore's role for
// cron.backend configured as "null" (SPEC_FULL §12).
type NullScheduler struct{}

func (NullScheduler) CheckScheduledTasks(_ context.Context) error {
	return nil
}
