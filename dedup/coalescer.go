package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/genmesh/core"
	"github.com/hupe1980/genmesh/lifecycle"
	"github.com/hupe1980/genmesh/logging"
)

// Source tells where a Do result came from.
type Source int

const (
	// SourceGenerated means this call ran the generation.
	SourceGenerated Source = iota
	// SourceCoalesced means this call joined an in-flight generation.
	SourceCoalesced
	// SourceStored means the result was found in the ResultStore.
	SourceStored
)

func (s Source) String() string {
	switch s {
	case SourceGenerated:
		return "generated"
	case SourceCoalesced:
		return "coalesced"
	case SourceStored:
		return "stored"
	default:
		return "unknown"
	}
}

// Options configures a Coalescer.
type Options struct {
	// Name labels log entries (e.g. "quiz").
	Name string

	// Store persists completed results. Nil disables lookups and inserts.
	Store core.ResultStore

	// Logger defaults to a NoOp logger.
	Logger logging.Logger
}

// GenerateFunc produces the result for a freshly registered context. The
// context is already started. ctx is detached from the owning caller's
// cancellation: the generation is shared and always runs to a terminal status.
type GenerateFunc[T any] func(ctx context.Context, lc *lifecycle.Context) (T, error)

type flight[T any] struct {
	lc     *lifecycle.Context
	done   chan struct{}
	result T
	err    error
}

// Coalescer guarantees at most one in-flight generation per key. T must be
// JSON encodable when a store is configured.
type Coalescer[T any] struct {
	name    string
	store   core.ResultStore
	logger  logging.Logger
	lookups singleflight.Group

	mu      sync.Mutex
	flights map[string]*flight[T]
}

// New creates an empty coalescer.
func New[T any](optFns ...func(o *Options)) *Coalescer[T] {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Coalescer[T]{
		name:    opts.Name,
		store:   opts.Store,
		logger:  logging.OrNoOp(opts.Logger),
		flights: make(map[string]*flight[T]),
	}
}

// InFlight returns the number of keys currently being generated.
func (c *Coalescer[T]) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.flights)
}

// Do returns the result for key, joining an in-flight generation, reading
// the store, or generating it with a context from newContext.
func (c *Coalescer[T]) Do(ctx context.Context, key string, newContext func() *lifecycle.Context, generate GenerateFunc[T]) (T, Source, error) {
	if f := c.lookup(key); f != nil {
		return c.await(ctx, key, f)
	}

	if res, ok := c.find(ctx, key); ok {
		return res, SourceStored, nil
	}

	c.mu.Lock()
	if f, ok := c.flights[key]; ok {
		c.mu.Unlock()
		return c.await(ctx, key, f)
	}
	f := &flight[T]{lc: newContext(), done: make(chan struct{})}
	c.flights[key] = f
	c.mu.Unlock()

	// The flight settles regardless of this caller; ctx only bounds the wait.
	go c.fly(context.WithoutCancel(ctx), key, f, generate)

	select {
	case <-f.done:
		return f.result, SourceGenerated, f.err
	case <-ctx.Done():
		c.logger.Debug("owner stopped waiting, generation continues", "coalescer", c.name, "key", key, "context_id", f.lc.ID())
		var zero T
		return zero, SourceGenerated, ctx.Err()
	}
}

// fly runs the generation of f and releases the map entry on every path.
func (c *Coalescer[T]) fly(ctx context.Context, key string, f *flight[T], generate GenerateFunc[T]) {
	defer func() {
		c.mu.Lock()
		if c.flights[key] == f {
			delete(c.flights, key)
		}
		c.mu.Unlock()
		close(f.done)
	}()

	_, _ = c.generate(ctx, key, f, generate)
}

func (c *Coalescer[T]) lookup(key string) *flight[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flights[key]
}

func (c *Coalescer[T]) await(ctx context.Context, key string, f *flight[T]) (T, Source, error) {
	var zero T

	c.logger.Debug("joining in-flight generation", "coalescer", c.name, "key", key, "context_id", f.lc.ID())

	st, err := f.lc.WaitUntil(ctx, core.StatusGenerated)
	if err != nil {
		return zero, SourceCoalesced, err
	}
	if st == core.StatusPreGenError || st == core.StatusGeneratingError {
		// The owner publishes the error after the context fails.
		select {
		case <-f.done:
		case <-ctx.Done():
			return zero, SourceCoalesced, ctx.Err()
		}
		if f.err != nil {
			return zero, SourceCoalesced, f.err
		}
		return zero, SourceCoalesced, fmt.Errorf("coalesced generation %s ended in %s", f.lc.ID(), st)
	}
	return f.result, SourceCoalesced, nil
}

func (c *Coalescer[T]) find(ctx context.Context, key string) (T, bool) {
	var zero T
	if c.store == nil {
		return zero, false
	}

	v, err, _ := c.lookups.Do(key, func() (any, error) {
		data, ok, err := c.store.Find(ctx, key)
		if err != nil || !ok {
			return nil, err
		}
		return data, nil
	})
	if err != nil {
		c.logger.Warn("result store lookup failed", "coalescer", c.name, "key", key, "error", err)
		return zero, false
	}
	data, _ := v.([]byte)
	if data == nil {
		return zero, false
	}

	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		c.logger.Warn("stored result is unreadable, regenerating", "coalescer", c.name, "key", key, "error", err)
		return zero, false
	}
	return out, true
}

func (c *Coalescer[T]) generate(ctx context.Context, key string, f *flight[T], generate GenerateFunc[T]) (T, error) {
	var zero T
	lc := f.lc

	if lc.Status() == core.StatusIdle {
		if err := lc.Start(); err != nil {
			f.err = err
			return zero, err
		}
	}

	res, err := c.call(ctx, lc, generate)
	if err != nil {
		f.err = err
		c.failContext(lc, err)
		return zero, err
	}

	f.result = res

	if c.store != nil {
		data, merr := json.Marshal(res)
		if merr != nil {
			lc.AddError(fmt.Errorf("encode result for store: %w", merr))
		} else if aerr := lc.AddPostGen(func(ctx context.Context) error {
			if err := c.store.Insert(ctx, key, data); err != nil {
				return fmt.Errorf("store result %s: %w", key, err)
			}
			return nil
		}); aerr != nil {
			c.logger.Warn("cannot defer result insert", "coalescer", c.name, "key", key, "error", aerr)
		}
	}

	if err := lc.Complete(ctx); err != nil {
		c.logger.Warn("generation settled with errors", "coalescer", c.name, "key", key, "context_id", lc.ID(), "error", err)
	}

	return res, nil
}

// call runs generate, turning a panic into an error so the context still
// reaches a terminal status and waiters are released.
func (c *Coalescer[T]) call(ctx context.Context, lc *lifecycle.Context, generate GenerateFunc[T]) (res T, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("generate panicked", "coalescer", c.name, "context_id", lc.ID(), "panic", r)
			err = fmt.Errorf("generate panic: %v", r)
		}
	}()
	return generate(ctx, lc)
}

// failContext moves the context to generating-error unless generate already
// failed it. err is appended only if the queue has not recorded it yet.
func (c *Coalescer[T]) failContext(lc *lifecycle.Context, err error) {
	if lc.Status().IsTerminal() {
		return
	}
	record := err
	for _, e := range lc.Errors() {
		if errors.Is(err, e) {
			record = nil
			break
		}
	}
	if ferr := lc.Fail(core.StatusGeneratingError, record); ferr != nil {
		c.logger.Warn("cannot fail context", "coalescer", c.name, "context_id", lc.ID(), "error", ferr)
	}
}
