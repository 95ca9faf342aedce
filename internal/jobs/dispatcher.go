package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/reactorcore/substrate/internal/metrics"
	"github.com/reactorcore/substrate/internal/registry"
)

// QueueDispatcher is the live Dispatcher: three buffered channels, one per
// priority, drained by a pool of worker goroutines that resolve each job's
// Target through the registry. Grounded on the teacher's
// infrastructure/publishing.PublishingQueue, generalized from a single
// alert-publishing job type to the spec's generic
// {target, args, kwargs} record.
type QueueDispatcher struct {
	high   chan *Job
	normal chan *Job
	low    chan *Job

	registry *registry.Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// SetMetrics wires a metrics sink into the dispatcher. Optional; nil is a
// safe no-op, so components can be built before metrics.New runs.
func (d *QueueDispatcher) SetMetrics(m *metrics.Metrics) {
	d.metrics = m
}

// QueueDispatcherConfig sizes the three queues (QueueSize each). Workers is
// not read by NewQueueDispatcher; the worker count is the argument to Start.
type QueueDispatcherConfig struct {
	Workers     int
	QueueSize   int
}

// DefaultQueueDispatcherConfig mirrors the teacher's
// DefaultPublishingQueueConfig proportions, scaled down for a generic job.
func DefaultQueueDispatcherConfig() QueueDispatcherConfig {
	return QueueDispatcherConfig{Workers: 4, QueueSize: 256}
}

// NewQueueDispatcher builds a QueueDispatcher. Call Start to launch workers.
func NewQueueDispatcher(reg *registry.Registry, cfg QueueDispatcherConfig, logger *slog.Logger) *QueueDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &QueueDispatcher{
		high:     make(chan *Job, cfg.QueueSize),
		normal:   make(chan *Job, cfg.QueueSize),
		low:      make(chan *Job, cfg.QueueSize),
		registry: reg,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches workers worker goroutines.
func (d *QueueDispatcher) Start(workers int) {
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
}

// Stop cancels outstanding work and waits for workers to exit.
func (d *QueueDispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
}

func (d *QueueDispatcher) Add(_ context.Context, target string, args []interface{}, kwargs map[string]interface{}, priority Priority, dependsOn string) (string, error) {
	job := &Job{
		ID:        newJobID(),
		Target:    target,
		Args:      args,
		Kwargs:    kwargs,
		Priority:  priority,
		DependsOn: dependsOn,
	}

	q := d.queueFor(priority)

	select {
	case q <- job:
		if d.metrics != nil {
			d.metrics.DispatcherQueued.WithLabelValues(string(priority)).Inc()
		}
		return job.ID, nil
	default:
		if d.metrics != nil {
			d.metrics.DispatcherDropped.WithLabelValues(string(priority)).Inc()
		}
		return "", fmt.Errorf("jobs: queue full (priority=%s)", priority)
	}
}

func (d *QueueDispatcher) queueFor(p Priority) chan *Job {
	switch p {
	case PriorityHigh:
		return d.high
	case PriorityLow:
		return d.low
	default:
		return d.normal
	}
}

// worker drains high before normal before low on every iteration, so a
// steady trickle of high-priority jobs never starves behind a backlog of low
// ones, while an idle high/normal still lets low-priority work through.
func (d *QueueDispatcher) worker(id int) {
	defer d.wg.Done()

	for {
		select {
		case job := <-d.high:
			d.run(id, job)
			continue
		case <-d.ctx.Done():
			return
		default:
		}

		select {
		case job := <-d.high:
			d.run(id, job)
		case job := <-d.normal:
			d.run(id, job)
		case job := <-d.low:
			d.run(id, job)
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *QueueDispatcher) run(workerID int, job *Job) {
	fn := d.registry.Job(job.Target)
	if fn == nil {
		d.logger.Error("job target does not resolve, skipping", "job_id", job.ID, "target", job.Target, "worker", workerID)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("job execution panicked", "job_id", job.ID, "target", job.Target, "panic", r)
		}
	}()

	if err := fn(job.Args, job.Kwargs); err != nil {
		d.logger.Error("job execution failed", "job_id", job.ID, "target", job.Target, "error", err)
	}
}
