package scheduler

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/reactorcore/substrate/internal/kv"
	"github.com/reactorcore/substrate/internal/metrics"
	"github.com/reactorcore/substrate/internal/registry"
)

// Scheduler is the operation surface invoked on every scheduler tick.
type Scheduler interface {
	CheckScheduledTasks(ctx context.Context) error
}

// LeaseScheduler is the production Scheduler: a static cron table, a lease
// lock per task built from the KV Adapter, and a local worker pool (a plain
// goroutine per fire — the store's own connection pool, not this process,
// is the resource that would need bounding; the teacher's locking code gives
// the same "one goroutine per unit of work" shape).
type LeaseScheduler struct {
	kv       kv.Adapter
	registry *registry.Registry
	tasks    []Task
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New builds a LeaseScheduler over the given static cron table.
func New(adapter kv.Adapter, reg *registry.Registry, tasks []Task, logger *slog.Logger) *LeaseScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LeaseScheduler{kv: adapter, registry: reg, tasks: tasks, logger: logger}
}

// SetMetrics wires a metrics sink into the scheduler. Optional; nil is a
// safe no-op.
func (s *LeaseScheduler) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// CheckScheduledTasks implements spec §4.3 steps 1–5.
func (s *LeaseScheduler) CheckScheduledTasks(ctx context.Context) error {
	now, err := s.kv.ServerTime(ctx)
	if err != nil {
		s.logger.Error("scheduler: failed to read server time, skipping tick", "error", err)
		return nil
	}

	month, day, hour, minute := decompose(now)

	for _, task := range s.tasks {
		s.evaluate(ctx, task, month, day, hour, minute)
	}
	return nil
}

func (s *LeaseScheduler) evaluate(ctx context.Context, task Task, month, day, hour, minute int) {
	if !task.Schedule.HasAnyField() {
		s.logger.Error("scheduler: cron task has no schedule fields, skipping", "task", task.Name)
		return
	}

	if !task.Schedule.Ready(month, day, hour, minute) {
		return
	}

	ttl := task.Schedule.MinTTL()
	lock := s.kv.Lock(task.LockName(), ttl)

	acquired, err := lock.Acquire(ctx)
	if err != nil {
		s.logger.Error("scheduler: lock acquire failed, skipping fire", "task", task.Name, "error", err)
		return
	}
	if !acquired {
		// Another replica owns this fire; this is ordinary control flow (§7).
		if s.metrics != nil {
			s.metrics.SchedulerLocksLost.WithLabelValues(task.Name).Inc()
		}
		return
	}
	if s.metrics != nil {
		s.metrics.SchedulerLocksWon.WithLabelValues(task.Name).Inc()
	}

	factory := s.registry.CronTask(task.Target)
	if factory == nil {
		s.logger.Error("scheduler: cron task target does not resolve", "task", task.Name, "target", task.Target)
		return
	}

	fn := factory(task.Args, task.Kwargs)

	start := time.Now()
	go s.run(ctx, task, fn, lock, ttl, start)
}

// run executes fn and evaluates the release guard described in spec §4.3
// step 5 and resolved in DESIGN.md's Open Question #1: release exactly once,
// and only when elapsed execution time met or exceeded the lock's min-TTL.
// A task that finishes quickly leaves its lock to expire, which is what
// prevents the same fire firing twice within one granularity window.
func (s *LeaseScheduler) run(ctx context.Context, task Task, fn registry.CronTaskFunc, lock *kv.Lock, minTTL time.Duration, start time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler: task execution panicked", "task", task.Name, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	if err := fn(); err != nil {
		s.logger.Error("scheduler: task execution failed", "task", task.Name, "error", err)
	}

	elapsed := time.Since(start)
	if elapsed >= minTTL {
		if err := lock.Release(ctx); err != nil {
			s.logger.Error("scheduler: lock release failed", "task", task.Name, "error", err)
		}
		return
	}

	s.logger.Debug("scheduler: task finished before min-TTL elapsed, leaving lock to expire",
		"task", task.Name, "elapsed", elapsed, "min_ttl", minTTL)
}
