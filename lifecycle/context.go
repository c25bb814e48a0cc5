package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/genmesh/core"
	"github.com/hupe1980/genmesh/logging"
)

// Options configures a Context.
type Options struct {
	// ID overrides the generated identifier. Defaults to a random UUID.
	ID string

	// Reason is a free-text audit tag (e.g. "quiz-generation").
	Reason string

	// MaxTries overrides the queue's default try policy for every generation
	// submitted on behalf of this context. 0 keeps the queue default.
	MaxTries int

	// MaxGenerations caps how many generations may be submitted for this
	// context. 0 means unlimited.
	MaxGenerations int

	// Data is caller-supplied context data copied into the audit snapshot.
	Data map[string]any

	// Sink receives the terminal snapshot. Nil disables auditing.
	Sink core.AuditSink

	// Logger defaults to a NoOp logger.
	Logger logging.Logger
}

// Context is the lifecycle state machine of one logical generation operation.
// It is safe for concurrent use.
type Context struct {
	id        string
	reason    string
	maxTries  int
	strategy  Strategy
	sink      core.AuditSink
	logger    logging.Logger
	limiter   *core.GenerationLimiter
	ledger    core.Ledger
	data      map[string]any
	createdAt time.Time
	emitOnce  sync.Once

	mu         sync.Mutex
	status     core.Status
	errs       []error
	postGen    []core.Task
	settling   bool
	finishedAt time.Time
	waiters    map[core.Status]chan struct{}
}

// New creates an idle context. strategy may be nil for contexts that only
// submit to explicitly named queues.
func New(strategy Strategy, optFns ...func(o *Options)) *Context {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}

	data := make(map[string]any, len(opts.Data))
	for k, v := range opts.Data {
		data[k] = v
	}

	return &Context{
		id:        id,
		reason:    opts.Reason,
		maxTries:  opts.MaxTries,
		strategy:  strategy,
		sink:      opts.Sink,
		logger:    logging.OrNoOp(opts.Logger),
		limiter:   core.NewGenerationLimiter(opts.MaxGenerations),
		data:      data,
		createdAt: time.Now(),
		status:    core.StatusIdle,
		waiters:   make(map[core.Status]chan struct{}),
	}
}

// ID returns the context identifier.
func (c *Context) ID() string { return c.id }

// Reason returns the audit tag.
func (c *Context) Reason() string { return c.reason }

// MaxTries returns the per-context try override, if one was configured.
func (c *Context) MaxTries() (int, bool) { return c.maxTries, c.maxTries > 0 }

// Data returns a copy of the caller-supplied data.
func (c *Context) Data() map[string]any {
	out := make(map[string]any, len(c.data))
	for k, v := range c.data {
		out[k] = v
	}
	return out
}

// Status returns the current status.
func (c *Context) Status() core.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// BackendFor resolves the backend identity for kind via the strategy.
func (c *Context) BackendFor(kind core.GenerationKind) (string, error) {
	if c.strategy == nil {
		return "", fmt.Errorf("%w: context %s has no strategy", core.ErrUnknownBackend, c.id)
	}
	return c.strategy.BackendFor(kind)
}

// Generations returns how many generations were reserved and how many remain
// (-1 when unlimited).
func (c *Context) Generations() (used, remaining int) {
	return c.limiter.Count(), c.limiter.Remaining()
}

// ReserveGeneration counts one more generation against the context budget.
func (c *Context) ReserveGeneration() error {
	if err := c.limiter.Reserve(); err != nil {
		return fmt.Errorf("context %s: %w", c.id, err)
	}
	return nil
}

// AddUsage appends a ledger entry. Usage reported after the context reached
// a terminal status is logged and dropped; the snapshot is already out.
func (c *Context) AddUsage(kind core.GenerationKind, units core.Units, pricing core.Pricing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status.IsTerminal() {
		c.logger.Warn("usage reported after context settled", "context_id", c.id, "status", c.status.String(), "kind", kind.String(), "cost", pricing.Cost(units))
		return
	}
	c.ledger.Add(kind, units, pricing)
}

// Usage derives usage and cost totals from the ledger.
func (c *Context) Usage() core.UsageInfo { return c.ledger.Info() }

// UsageEntries returns the raw ledger entries.
func (c *Context) UsageEntries() []core.UsageEntry { return c.ledger.Entries() }

// AddError records a non-fatal error without changing the status. Errors
// reported once the context is terminal are logged and dropped.
func (c *Context) AddError(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status.IsTerminal() {
		c.logger.Warn("error reported after context settled", "context_id", c.id, "status", c.status.String(), "error", err)
		return
	}
	c.errs = append(c.errs, err)
}

// Errors returns a copy of the recorded errors in order.
func (c *Context) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]error, len(c.errs))
	copy(out, c.errs)
	return out
}

// Start moves the context from idle to pre-gen. Starting twice is a
// programming error and returns core.ErrAlreadyStarted.
func (c *Context) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != core.StatusIdle {
		return fmt.Errorf("%w: context %s is %s", core.ErrAlreadyStarted, c.id, c.status)
	}
	c.setStatusLocked(core.StatusPreGen)
	return nil
}

// Fail moves the context into the terminal error state status. err is
// appended to the error list when non-nil; pass nil when the error was
// already recorded (e.g. by the queue that rejected the generation).
func (c *Context) Fail(status core.Status, err error) error {
	if !status.IsError() {
		return fmt.Errorf("%w: %s is not an error status", core.ErrInvalidTransition, status)
	}

	c.mu.Lock()
	if c.settling || !c.status.CanFail(status) {
		cur := c.status
		c.mu.Unlock()
		return fmt.Errorf("%w: context %s cannot move from %s to %s", core.ErrInvalidTransition, c.id, cur, status)
	}
	if err != nil {
		c.errs = append(c.errs, err)
	}
	c.setStatusLocked(status)
	c.mu.Unlock()

	c.logger.Warn("generation context failed", "context_id", c.id, "status", status.String(), "error", err)
	c.emit()
	return nil
}

// AddPostGen registers a deferred side-effect task settled by Complete.
func (c *Context) AddPostGen(task core.Task) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.settling || c.status.IsTerminal() {
		return fmt.Errorf("%w: context %s no longer accepts post-generation tasks (%s)", core.ErrInvalidTransition, c.id, c.status)
	}
	c.postGen = append(c.postGen, task)
	return nil
}

// Complete marks the primary result as generated, then settles every
// deferred task concurrently. Every task is attempted regardless of the
// others. If all succeed the context becomes completed; otherwise every
// failure is recorded, the context becomes post-gen-error and a
// *core.AggregateError is returned. The primary result is unaffected either way.
func (c *Context) Complete(ctx context.Context) error {
	c.mu.Lock()
	if c.settling || (c.status != core.StatusPreGen && c.status != core.StatusGenerated) {
		cur := c.status
		c.mu.Unlock()
		return fmt.Errorf("%w: context %s cannot complete from %s", core.ErrInvalidTransition, c.id, cur)
	}
	c.settling = true
	c.setStatusLocked(core.StatusGenerated)
	tasks := make([]core.Task, len(c.postGen))
	copy(tasks, c.postGen)
	c.mu.Unlock()

	results := make([]error, len(tasks))

	var g errgroup.Group
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			results[i] = task(ctx)
			return nil
		})
	}
	_ = g.Wait()

	var failures []error
	for _, err := range results {
		if err != nil {
			failures = append(failures, err)
		}
	}

	c.mu.Lock()
	c.settling = false
	if len(failures) > 0 {
		c.errs = append(c.errs, failures...)
		c.setStatusLocked(core.StatusPostGenError)
	} else {
		c.setStatusLocked(core.StatusCompleted)
	}
	c.mu.Unlock()

	c.emit()

	if len(failures) > 0 {
		c.logger.Warn("post-generation tasks failed", "context_id", c.id, "failed", len(failures), "total", len(tasks))
		return &core.AggregateError{Errors: failures}
	}
	return nil
}

// WaitUntil blocks until the context is at or past status, or has reached
// any terminal state. It returns the status observed on release. If ctx ends
// first ctx.Err() is returned; the underlying work is not affected.
func (c *Context) WaitUntil(ctx context.Context, status core.Status) (core.Status, error) {
	c.mu.Lock()
	if c.status.Satisfies(status) {
		cur := c.status
		c.mu.Unlock()
		return cur, nil
	}
	ch, ok := c.waiters[status]
	if !ok {
		ch = make(chan struct{})
		c.waiters[status] = ch
	}
	c.mu.Unlock()

	select {
	case <-ch:
		return c.Status(), nil
	case <-ctx.Done():
		return c.Status(), ctx.Err()
	}
}

// Snapshot returns the audit view of the context. FinishedAt is zero until
// the context is terminal.
func (c *Context) Snapshot() core.Snapshot {
	c.mu.Lock()
	status := c.status
	finished := c.finishedAt
	errs := make([]string, len(c.errs))
	for i, err := range c.errs {
		errs[i] = err.Error()
	}
	c.mu.Unlock()

	data := make(map[string]any, len(c.data))
	if d, ok := c.strategy.(Describer); ok {
		for k, v := range d.Describe() {
			data[k] = v
		}
	}
	for k, v := range c.data {
		data[k] = v
	}

	return core.Snapshot{
		ID:          c.id,
		Reason:      c.reason,
		Status:      status,
		Usage:       c.ledger.Info(),
		Generations: c.limiter.Count(),
		Errors:      errs,
		Data:        data,
		CreatedAt:   c.createdAt,
		FinishedAt:  finished,
	}
}

// setStatusLocked advances the status and releases every waiter whose target
// is now satisfied. Caller must hold c.mu.
func (c *Context) setStatusLocked(s core.Status) {
	c.status = s
	if s.IsTerminal() {
		c.finishedAt = time.Now()
	}
	for target, ch := range c.waiters {
		if s.Satisfies(target) {
			close(ch)
			delete(c.waiters, target)
		}
	}
}

func (c *Context) emit() {
	c.emitOnce.Do(func() {
		if c.sink == nil {
			return
		}
		snap := c.Snapshot()
		if err := c.sink.Append(context.Background(), snap); err != nil {
			c.logger.Error("audit append failed", "context_id", c.id, "error", err)
		}
	})
}
