// Package genmesh is the high-level façade over the generation orchestration
// packages (registry, queue, lifecycle, dedup). Most applications interact
// with this package by:
//  1. Creating a GenMesh via New() with a set of backends, or via FromConfig()
//  2. Opening one lifecycle context per logical operation (NewContext)
//  3. Generating through the context (Generate / Run), optionally coalesced
//     per logical key (NewCoalescer)
//
// The façade wires the audit sink, result store and logger into everything it
// creates. All defaults are safe for local development and testing: results
// are kept in memory and snapshots are written to the logger. Production
// deployments typically supply a durable store such as store/sqlite.
package genmesh

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/genmesh/audit"
	"github.com/hupe1980/genmesh/core"
	"github.com/hupe1980/genmesh/dedup"
	"github.com/hupe1980/genmesh/lifecycle"
	"github.com/hupe1980/genmesh/logging"
	"github.com/hupe1980/genmesh/queue"
	"github.com/hupe1980/genmesh/registry"
	"github.com/hupe1980/genmesh/store"
)

// Options configures the GenMesh instance.
type Options struct {
	// Registry is a prebuilt registry. When nil one is built from Backends.
	Registry *registry.Registry

	// Backends are registered when Registry is nil.
	Backends []registry.Backend

	// Store persists coalesced results (defaults to an in-memory store).
	Store core.ResultStore

	// Sink receives the terminal snapshot of every context created through
	// NewContext (defaults to a LogSink over Logger).
	Sink core.AuditSink

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger

	// Closers are closed by Close, in order. FromConfig registers the
	// durable store here.
	Closers []io.Closer
}

// GenMesh is the high-level façade aggregating the registry and services.
type GenMesh struct {
	registry *registry.Registry
	store    core.ResultStore
	sink     core.AuditSink
	logger   logging.Logger
	closers  []io.Closer
}

// New creates a new GenMesh instance. Either a Registry or at least one
// backend must be supplied.
func New(optFns ...func(o *Options)) (*GenMesh, error) {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	logger := logging.OrNoOp(opts.Logger)

	reg := opts.Registry
	if reg == nil {
		if len(opts.Backends) == 0 {
			return nil, errors.New("genmesh: a registry or at least one backend is required")
		}
		var err error
		if reg, err = registry.New(logger, opts.Backends...); err != nil {
			return nil, fmt.Errorf("genmesh: %w", err)
		}
	}

	rs := opts.Store
	if rs == nil {
		rs = store.NewInMemoryStore()
	}

	sink := opts.Sink
	if sink == nil {
		sink = audit.NewLogSink(logger)
	}

	return &GenMesh{
		registry: reg,
		store:    rs,
		sink:     sink,
		logger:   logger,
		closers:  opts.Closers,
	}, nil
}

// Registry returns the backend registry.
func (g *GenMesh) Registry() *registry.Registry { return g.registry }

// Store returns the result store used by coalescers.
func (g *GenMesh) Store() core.ResultStore { return g.store }

// Logger returns the configured logger.
func (g *GenMesh) Logger() logging.Logger { return g.logger }

// Stats returns the queue stats of every backend keyed by name.
func (g *GenMesh) Stats() map[string]queue.Stats { return g.registry.Stats() }

// NewContext creates an idle lifecycle context wired to the façade's audit
// sink and logger. optFns may override both.
func (g *GenMesh) NewContext(strategy lifecycle.Strategy, optFns ...func(o *lifecycle.Options)) *lifecycle.Context {
	fns := make([]func(o *lifecycle.Options), 0, len(optFns)+1)
	fns = append(fns, func(o *lifecycle.Options) {
		o.Sink = g.sink
		o.Logger = g.logger
	})
	fns = append(fns, optFns...)
	return lifecycle.New(strategy, fns...)
}

// Generate submits req on behalf of lc and waits for the outcome.
//
// An idle context is started first. If the backend cannot be resolved or the
// context budget is exhausted the context fails with pre-gen-error. A rejected
// generation fails it with generating-error; the queue has already recorded
// the error. If ctx ends first ctx.Err() is returned and the generation keeps
// running; the context is left untouched.
//
// Generate never completes the context: callers register their deferred
// tasks and call Complete themselves, or use Run.
func (g *GenMesh) Generate(ctx context.Context, lc *lifecycle.Context, req core.Request) (core.Result, error) {
	if lc.Status() == core.StatusIdle {
		if err := lc.Start(); err != nil {
			return core.Result{}, err
		}
	}

	h, err := g.registry.Submit(lc, req)
	if err != nil {
		g.fail(lc, core.StatusPreGenError, err)
		return core.Result{}, err
	}

	res, err := h.Wait(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return core.Result{}, err
		}
		g.fail(lc, core.StatusGeneratingError, nil)
		return core.Result{}, err
	}

	return res, nil
}

// Run generates req, registers postGen as deferred tasks and completes the
// context. The primary result is returned even when deferred tasks fail; the
// failures are reported as a *core.AggregateError alongside it.
func (g *GenMesh) Run(ctx context.Context, lc *lifecycle.Context, req core.Request, postGen ...core.Task) (core.Result, error) {
	res, err := g.Generate(ctx, lc, req)
	if err != nil {
		return core.Result{}, err
	}

	for _, task := range postGen {
		if err := lc.AddPostGen(task); err != nil {
			return res, err
		}
	}

	if err := lc.Complete(context.WithoutCancel(ctx)); err != nil {
		return res, err
	}
	return res, nil
}

// Close releases the resources registered in Options.Closers.
func (g *GenMesh) Close() error {
	var errs []error
	for _, c := range g.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (g *GenMesh) fail(lc *lifecycle.Context, status core.Status, err error) {
	if lc.Status().IsTerminal() {
		return
	}
	if ferr := lc.Fail(status, err); ferr != nil {
		g.logger.Warn("cannot fail context", "context_id", lc.ID(), "status", status.String(), "error", ferr)
	}
}

// NewCoalescer returns a coalescer bound to g's result store and logger.
func NewCoalescer[T any](g *GenMesh, name string) *dedup.Coalescer[T] {
	return dedup.New[T](func(o *dedup.Options) {
		o.Name = name
		o.Store = g.store
		o.Logger = g.logger
	})
}
