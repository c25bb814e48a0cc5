// Package registry holds the backend identities of a process and the model
// queue that serves each of them.
//
// A Registry is built once at startup from a fixed list of backends and is
// immutable afterwards: there is no Register after construction, so lookups
// need no locking and call sites can share one Registry freely. Registries
// are explicit values passed to the code that submits work; there is no
// process-wide default.
//
// Example:
//
//	reg, err := registry.New(logger,
//	    registry.Backend{Name: "openai-text", Executor: textExec, Concurrency: 4},
//	    registry.Backend{Name: "openai-image", Executor: imageExec, MaxTries: 5},
//	)
//	h, err := reg.Submit(lc, core.Request{Kind: core.KindText, Payload: req})
package registry

import (
	"fmt"
	"sort"
	"time"

	"github.com/hupe1980/genmesh/core"
	"github.com/hupe1980/genmesh/lifecycle"
	"github.com/hupe1980/genmesh/logging"
	"github.com/hupe1980/genmesh/queue"
)

// Backend describes one backend identity: how to call it, what it costs and
// how its queue behaves.
type Backend struct {
	// Name is the unique identity strategies resolve to.
	Name string

	// Executor performs the generation. Required.
	Executor core.Executor

	// Pricing is recorded with every usage entry. Optional rates may be zero.
	Pricing core.Pricing

	// MaxTries is the queue default try policy. 0 selects queue.DefaultMaxTries.
	MaxTries int

	// Concurrency bounds simultaneous generations. Values below 1 mean 1.
	Concurrency int

	// Checks run on every successful result.
	Checks []core.Check

	// Timeout bounds one attempt. 0 disables it.
	Timeout time.Duration

	// Classifier overrides core.Classify for this backend.
	Classifier func(backend string, err error) error
}

// Registry maps backend names to their identities and queues.
type Registry struct {
	backends map[string]Backend
	queues   map[string]*queue.Queue
	logger   logging.Logger
}

// New validates the backends and builds one queue per backend. Names must
// be unique and non-empty and every backend needs an executor.
func New(logger logging.Logger, backends ...Backend) (*Registry, error) {
	logger = logging.OrNoOp(logger)

	r := &Registry{
		backends: make(map[string]Backend, len(backends)),
		queues:   make(map[string]*queue.Queue, len(backends)),
		logger:   logger,
	}

	for _, b := range backends {
		if b.Name == "" {
			return nil, fmt.Errorf("backend name is required")
		}
		if b.Executor == nil {
			return nil, fmt.Errorf("backend %q: executor is required", b.Name)
		}
		if _, dup := r.backends[b.Name]; dup {
			return nil, fmt.Errorf("backend %q registered twice", b.Name)
		}

		r.backends[b.Name] = b
		r.queues[b.Name] = queue.New(b.Name, b.Executor, func(o *queue.Options) {
			if b.MaxTries > 0 {
				o.MaxTries = b.MaxTries
			}
			o.Concurrency = b.Concurrency
			o.Pricing = b.Pricing
			o.Checks = b.Checks
			o.Timeout = b.Timeout
			o.Logger = logger
			if b.Classifier != nil {
				o.Classifier = b.Classifier
			}
		})

		logger.Debug("backend registered", "backend", b.Name, "concurrency", r.queues[b.Name].Concurrency(), "max_tries", r.queues[b.Name].MaxTries())
	}

	return r, nil
}

// Backend returns the identity registered under name.
func (r *Registry) Backend(name string) (Backend, error) {
	b, ok := r.backends[name]
	if !ok {
		return Backend{}, fmt.Errorf("%w: %q", core.ErrUnknownBackend, name)
	}
	return b, nil
}

// Queue returns the queue serving name.
func (r *Registry) Queue(name string) (*queue.Queue, error) {
	q, ok := r.queues[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownBackend, name)
	}
	return q, nil
}

// Names returns the registered backend names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats returns the queue stats of every backend keyed by name.
func (r *Registry) Stats() map[string]queue.Stats {
	out := make(map[string]queue.Stats, len(r.queues))
	for name, q := range r.queues {
		out[name] = q.Stats()
	}
	return out
}

// Submit resolves the backend for req.Kind through the context's strategy,
// reserves one generation from the context budget and enqueues the request.
// Resolution and budget errors are returned before anything is queued.
func (r *Registry) Submit(lc *lifecycle.Context, req core.Request) (*queue.Handle, error) {
	name, err := lc.BackendFor(req.Kind)
	if err != nil {
		return nil, err
	}
	q, err := r.Queue(name)
	if err != nil {
		return nil, err
	}
	if err := lc.ReserveGeneration(); err != nil {
		return nil, err
	}
	return q.Submit(lc, req, nil), nil
}
