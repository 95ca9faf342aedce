// Package registry replaces the original's dotted-name dynamic dispatch
// (handlers and cron task classes addressed by strings like
// "service.notif.digest") with a plain map populated at startup by whatever
// collaborator defines each handler (design note, spec §9).
package registry

import (
	"encoding/json"
	"sync"

	"github.com/reactorcore/substrate/internal/event"
)

// EventHandler processes one batch of events that share a group (or a single
// ungrouped event passed as a one-element batch).
type EventHandler func(events []event.Event) error

// CronTaskFunc is the closure a cron task's registry entry resolves to; args
// and kwargs are already bound by the caller per the task's configuration.
type CronTaskFunc func() error

// CronTaskFactory builds a CronTaskFunc for one invocation, given the task's
// configured args/kwargs (spec §4.3: "instantiate, partially apply configured
// args and kwargs").
type CronTaskFactory func(args []interface{}, kwargs map[string]interface{}) CronTaskFunc

// JobFunc is the closure a dispatched job's target name resolves to. This is
// the worker-side half of the design note's "tagged data record
// {target_name, args, kwargs}" replacement for instance-method pickling.
type JobFunc func(args []interface{}, kwargs map[string]interface{}) error

// Registry is the Go-native stand-in for dotted-name attribute resolution.
// Safe for concurrent use; Register is expected at startup, Lookup at
// runtime on every tick.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]EventHandler
	tasks    map[string]CronTaskFactory
	jobs     map[string]JobFunc
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		handlers: make(map[string]EventHandler),
		tasks:    make(map[string]CronTaskFactory),
		jobs:     make(map[string]JobFunc),
	}
}

// RegisterJob binds name to a job target function.
func (r *Registry) RegisterJob(name string, fn JobFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[name] = fn
}

// Job resolves name to a JobFunc, or nil if unregistered.
func (r *Registry) Job(name string) JobFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jobs[name]
}

// RegisterHandler binds name to handler. A second registration under the
// same name replaces the first — this mirrors module-reload semantics in the
// original, not something callers should rely on.
func (r *Registry) RegisterHandler(name string, handler EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

// Handler resolves name to an EventHandler. A nil return means the handler
// does not resolve; per spec §4.7 and §7 that is a silent skip, not an error.
func (r *Registry) Handler(name string) EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[name]
}

// RegisterCronTask binds name to a task factory.
func (r *Registry) RegisterCronTask(name string, factory CronTaskFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[name] = factory
}

// CronTask resolves name to a CronTaskFactory, or nil if unregistered.
func (r *Registry) CronTask(name string) CronTaskFactory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tasks[name]
}

// DecodeData is a small convenience for handlers that want their event's Data
// field as a concrete type instead of raw JSON.
func DecodeData(data json.RawMessage, into interface{}) error {
	return json.Unmarshal(data, into)
}
