// Package driver runs the Periodic Driver (spec §4.6): the single
// cooperative loop that ticks the Event Store's PopReadyEvents and the
// Scheduler's CheckScheduledTasks on their own configured intervals, and
// calls the registered handlers for ready events directly on the loop's own
// goroutine; popped events do not pass through the Job Dispatcher.
package driver

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/reactorcore/substrate/internal/event"
	"github.com/reactorcore/substrate/internal/metrics"
	"github.com/reactorcore/substrate/internal/registry"
	"github.com/reactorcore/substrate/internal/scheduler"
)

// Config controls the driver's two tick intervals (events.polling_interval,
// cron.polling_interval in configuration, §6).
type Config struct {
	EventPollInterval time.Duration
	CronPollInterval  time.Duration
}

// Driver owns the two tickers and the non-reentrancy guard described in
// spec §4.6: a tick that fires while the previous event-poll tick is still
// running is dropped rather than queued, so a slow batch of handlers never
// builds up overlapping pollers against the same store.
type Driver struct {
	store     event.Store
	scheduler scheduler.Scheduler
	registry  *registry.Registry
	cfg       Config
	logger    *slog.Logger

	eventPollBusy int32 // atomic: 1 while an event-poll tick is running
	done          chan struct{}
	metrics       *metrics.Metrics
}

// SetMetrics wires a metrics sink into the driver. Optional; nil is a safe
// no-op.
func (d *Driver) SetMetrics(m *metrics.Metrics) {
	d.metrics = m
}

// New builds a Driver. Call Run to start its loop; Run blocks until ctx is
// cancelled.
func New(store event.Store, sched scheduler.Scheduler, reg *registry.Registry, cfg Config, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		store:     store,
		scheduler: sched,
		registry:  reg,
		cfg:       cfg,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Run starts both tickers and blocks until ctx is cancelled. Grounded on the
// gc-worker ticker loop's shape (immediate-run-then-tick, select across
// ticker channels and ctx.Done), generalized to two independent tickers
// driving two different operations from one loop.
func (d *Driver) Run(ctx context.Context) {
	defer close(d.done)

	eventTicker := time.NewTicker(d.cfg.EventPollInterval)
	defer eventTicker.Stop()

	cronTicker := time.NewTicker(d.cfg.CronPollInterval)
	defer cronTicker.Stop()

	d.pollEvents(ctx)
	// A tick the ticker buffered while the poll ran is dropped, not run late.
	select {
	case <-eventTicker.C:
	default:
	}
	d.tickScheduler(ctx)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("periodic driver stopped")
			return
		case <-eventTicker.C:
			d.pollEvents(ctx)
			select {
			case <-eventTicker.C:
			default:
			}
		case <-cronTicker.C:
			d.tickScheduler(ctx)
		}
	}
}

// Done is closed once Run has returned, for callers that want to wait on
// graceful shutdown the way cmd/server's main does.
func (d *Driver) Done() <-chan struct{} {
	return d.done
}

func (d *Driver) pollEvents(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&d.eventPollBusy, 0, 1) {
		d.logger.Debug("event poll tick dropped: previous tick still running")
		return
	}
	defer atomic.StoreInt32(&d.eventPollBusy, 0)

	events, err := d.store.PopReadyEvents(ctx)
	if err != nil {
		d.logger.Error("event poll failed", "error", err)
		return
	}
	if d.metrics != nil {
		d.metrics.EventsPopped.Observe(float64(len(events)))
	}
	if len(events) == 0 {
		return
	}

	d.dispatch(events)
}

// dispatch partitions the batch by Group (spec §4.7): every ungrouped event
// is its own handler call, while events sharing a non-empty group ripened
// together and are delivered as a single call carrying the whole group. It
// then recovers from a handler panic so one bad handler cannot take the
// whole tick down (spec §7: task execution error, catch+log+never
// propagate).
func (d *Driver) dispatch(events []event.Event) {
	grouped := make(map[string][]event.Event)
	var ungrouped []event.Event

	for _, e := range events {
		if e.Group == "" {
			ungrouped = append(ungrouped, e)
			continue
		}
		grouped[e.Group] = append(grouped[e.Group], e)
	}

	for _, e := range ungrouped {
		d.dispatchBatch(e.Handler, []event.Event{e})
	}
	for _, batch := range grouped {
		d.dispatchBatch(batch[0].Handler, batch)
	}
}

func (d *Driver) dispatchBatch(name string, batch []event.Event) {
	handler := d.registry.Handler(name)
	if handler == nil {
		d.logger.Debug("event handler does not resolve, dropping batch", "handler", name, "count", len(batch))
		return
	}
	d.runHandler(name, handler, batch)
}

func (d *Driver) runHandler(name string, handler registry.EventHandler, batch []event.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked", "handler", name, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	if err := handler(batch); err != nil {
		d.logger.Error("event handler failed", "handler", name, "count", len(batch), "error", err)
	}
}

func (d *Driver) tickScheduler(ctx context.Context) {
	if err := d.scheduler.CheckScheduledTasks(ctx); err != nil {
		d.logger.Error("scheduler tick failed", "error", err)
	}
}
