package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/genmesh/core"
	"github.com/hupe1980/genmesh/logging"
)

// DefaultMaxTries is the queue default try policy when none is configured.
const DefaultMaxTries = 3

// Options configures a Queue.
type Options struct {
	// MaxTries is the default try policy. A context override takes precedence.
	MaxTries int

	// Concurrency bounds how many generations run at once. Values below 1 are
	// raised to 1.
	Concurrency int

	// Pricing is recorded with every usage entry produced by this queue.
	Pricing core.Pricing

	// Checks run on every successful result; the first failing check turns
	// the success into a failure.
	Checks []core.Check

	// Classifier maps executor errors onto the error taxonomy. Defaults to
	// core.Classify.
	Classifier func(backend string, err error) error

	// Timeout bounds a single executor attempt. 0 disables the timeout.
	Timeout time.Duration

	// Logger defaults to a NoOp logger.
	Logger logging.Logger
}

// Stats is a point-in-time view of a queue for monitoring.
type Stats struct {
	Pending   int
	Running   int
	ResumeAt  time.Time
	Submitted int
	Succeeded int
	Failed    int
	Retried   int
}

// Queue is the bounded-concurrency dispatcher of one backend identity. All
// internal state is guarded by mu; executor calls run in their own goroutines
// outside the lock.
//
// Invariant: running <= Concurrency.
type Queue struct {
	name     string
	executor core.Executor
	opts     Options
	logger   logging.Logger

	mu        sync.Mutex
	pending   []*item
	running   int
	resumeAt  time.Time
	gateArmed bool
	stats     Stats
}

// New creates a queue for the backend identified by name. executor is the
// default executor for submissions that do not bind their own.
func New(name string, executor core.Executor, optFns ...func(o *Options)) *Queue {
	opts := Options{
		MaxTries:    DefaultMaxTries,
		Concurrency: 1,
		Classifier:  core.Classify,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.MaxTries < 0 {
		opts.MaxTries = 0
	}
	if opts.Classifier == nil {
		opts.Classifier = core.Classify
	}

	return &Queue{
		name:     name,
		executor: executor,
		opts:     opts,
		logger:   logging.OrNoOp(opts.Logger),
	}
}

// Name returns the backend identity served by this queue.
func (q *Queue) Name() string { return q.name }

// Pricing returns the pricing recorded with usage entries.
func (q *Queue) Pricing() core.Pricing { return q.opts.Pricing }

// MaxTries returns the queue default try policy.
func (q *Queue) MaxTries() int { return q.opts.MaxTries }

// Concurrency returns the concurrency limit.
func (q *Queue) Concurrency() int { return q.opts.Concurrency }

// Submit enqueues a generation at the tail and triggers dispatch. exec binds a
// per-item executor; nil uses the queue's executor.
func (q *Queue) Submit(tracker Tracker, req core.Request, exec core.Executor) *Handle {
	if tracker == nil {
		tracker = noopTracker{}
	}
	if exec == nil {
		exec = q.executor
	}

	h := newHandle()
	if exec == nil {
		err := &core.GenerationError{Backend: q.name, Err: fmt.Errorf("no executor bound")}
		tracker.AddError(err)
		h.reject(err)
		return h
	}

	q.mu.Lock()
	q.pending = append(q.pending, &item{
		tracker:  tracker,
		req:      req,
		executor: exec,
		handle:   h,
		enqueued: time.Now(),
	})
	q.stats.Submitted++
	q.mu.Unlock()

	q.logger.Debug("generation queued", "backend", q.name, "context_id", tracker.ID(), "kind", req.Kind.String())

	q.dispatch()
	return h
}

// Stats returns a snapshot of the queue state.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.stats
	s.Pending = len(q.pending)
	s.Running = q.running
	s.ResumeAt = q.resumeAt
	return s
}

// dispatch starts pending items while capacity remains and the throttle gate
// is open. When the gate is closed a single timer re-enters dispatch once the
// resume time has passed.
func (q *Queue) dispatch() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.pending) > 0 && q.running < q.opts.Concurrency {
		if !q.resumeAt.IsZero() {
			if wait := time.Until(q.resumeAt); wait > 0 {
				q.armGateLocked(wait)
				return
			}
			q.resumeAt = time.Time{}
		}

		it := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.running++

		go q.run(it)
	}
}

// armGateLocked schedules a dispatch after wait unless one is already
// scheduled. Caller must hold q.mu.
func (q *Queue) armGateLocked(wait time.Duration) {
	if q.gateArmed {
		return
	}
	q.gateArmed = true
	time.AfterFunc(wait, func() {
		q.mu.Lock()
		q.gateArmed = false
		q.mu.Unlock()
		q.dispatch()
	})
}

func (q *Queue) run(it *item) {
	start := time.Now()
	res, err := q.execute(it)
	if err == nil {
		it.tracker.AddUsage(it.req.Kind, res.Usage, q.opts.Pricing)
		err = q.validate(res)
	}
	q.logAttempt(it, res, time.Since(start), err)
	q.settle(it, res, err)
}

func (q *Queue) execute(it *item) (res core.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()

	ctx := context.Background()
	if q.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.opts.Timeout)
		defer cancel()
	}

	return it.executor.Execute(ctx, it.req)
}

func (q *Queue) validate(res core.Result) error {
	for _, check := range q.opts.Checks {
		if err := check(res); err != nil {
			return fmt.Errorf("result rejected: %w", err)
		}
	}
	return nil
}

// settle applies the retry policy. The try check happens before the
// increment, so a throttled item runs at most maxTries+1 times.
func (q *Queue) settle(it *item, res core.Result, err error) {
	q.mu.Lock()
	q.running--

	if err == nil {
		q.stats.Succeeded++
		q.mu.Unlock()
		it.handle.resolve(res)
		q.dispatch()
		return
	}

	err = q.opts.Classifier(q.name, err)
	te, throttled := core.IsThrottle(err)

	if it.tries >= q.maxTriesFor(it) || !throttled {
		q.stats.Failed++
		q.mu.Unlock()
		it.tracker.AddError(err)
		it.handle.reject(err)
		q.dispatch()
		return
	}

	it.tries++
	q.stats.Retried++
	if te.ResumeAt.After(q.resumeAt) {
		q.resumeAt = te.ResumeAt
	}
	q.pending = append([]*item{it}, q.pending...)
	resumeAt := q.resumeAt
	q.mu.Unlock()

	q.logger.Info("backend throttled, re-queued at head", "backend", q.name, "context_id", it.tracker.ID(), "tries", it.tries, "resume_at", resumeAt)
	q.dispatch()
}

func (q *Queue) maxTriesFor(it *item) int {
	if n, ok := it.tracker.MaxTries(); ok {
		return n
	}
	return q.opts.MaxTries
}

func (q *Queue) logAttempt(it *item, res core.Result, dur time.Duration, err error) {
	if gl, ok := q.logger.(logging.GenerationLogger); ok {
		u := res.Usage
		gl.LogGeneration(q.name, it.req.Kind.String(), u.Input+u.Output+u.CachedInput+u.CacheWrite, dur, err == nil, err)
		return
	}
	q.logger.Debug("generation attempt finished", "backend", q.name, "context_id", it.tracker.ID(), "duration", dur, "error", err)
}

type noopTracker struct{}

func (noopTracker) ID() string { return "" }

func (noopTracker) MaxTries() (int, bool) { return 0, false }

func (noopTracker) AddUsage(core.GenerationKind, core.Units, core.Pricing) {}

func (noopTracker) AddError(error) {}
