package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/genmesh/core"
)

// Step is one scripted executor outcome.
type Step struct {
	Result core.Result
	Err    error

	// Delay holds the call before returning.
	Delay time.Duration

	// Hold blocks the call until the channel is closed.
	Hold <-chan struct{}
}

// ScriptedExecutor replays Steps in order and then repeats Fallback. It
// records every invocation and the peak number of concurrent calls.
//
//	exec := testutil.NewScriptedExecutor(
//	    testutil.Step{Err: core.NewThrottleError(10*time.Millisecond, nil)},
//	).WithFallback(testutil.Step{Result: core.Result{Output: "ok"}})
type ScriptedExecutor struct {
	mu         sync.Mutex
	steps      []Step
	fallback   Step
	calls      int
	running    int
	maxRunning int
	callTimes  []time.Time
	requests   []core.Request
}

// NewScriptedExecutor creates an executor replaying steps.
func NewScriptedExecutor(steps ...Step) *ScriptedExecutor {
	return &ScriptedExecutor{steps: steps}
}

// WithFallback sets the outcome used once the script is exhausted (chainable).
func (e *ScriptedExecutor) WithFallback(s Step) *ScriptedExecutor {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fallback = s
	return e
}

// Execute implements core.Executor.
func (e *ScriptedExecutor) Execute(ctx context.Context, req core.Request) (core.Result, error) {
	e.mu.Lock()
	step := e.fallback
	if e.calls < len(e.steps) {
		step = e.steps[e.calls]
	}
	e.calls++
	e.running++
	if e.running > e.maxRunning {
		e.maxRunning = e.running
	}
	e.callTimes = append(e.callTimes, time.Now())
	e.requests = append(e.requests, req)
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running--
		e.mu.Unlock()
	}()

	if step.Hold != nil {
		select {
		case <-step.Hold:
		case <-ctx.Done():
			return core.Result{}, ctx.Err()
		}
	}
	if step.Delay > 0 {
		select {
		case <-time.After(step.Delay):
		case <-ctx.Done():
			return core.Result{}, ctx.Err()
		}
	}
	return step.Result, step.Err
}

// Calls returns the number of invocations so far.
func (e *ScriptedExecutor) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// MaxConcurrent returns the peak number of simultaneous invocations.
func (e *ScriptedExecutor) MaxConcurrent() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxRunning
}

// CallTimes returns the start time of every invocation.
func (e *ScriptedExecutor) CallTimes() []time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]time.Time, len(e.callTimes))
	copy(out, e.callTimes)
	return out
}

// Requests returns every request seen, in invocation order.
func (e *ScriptedExecutor) Requests() []core.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]core.Request, len(e.requests))
	copy(out, e.requests)
	return out
}
