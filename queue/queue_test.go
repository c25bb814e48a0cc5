package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/genmesh/core"
	"github.com/hupe1980/genmesh/internal/testutil"
	"github.com/hupe1980/genmesh/lifecycle"
)

func textReq(payload string) core.Request {
	return core.Request{Kind: core.KindText, Payload: payload}
}

func waitAll(t *testing.T, handles ...*Handle) []error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errs := make([]error, len(handles))
	for i, h := range handles {
		_, errs[i] = h.Wait(ctx)
		require.NoError(t, ctx.Err(), "handle %d never settled", i)
	}
	return errs
}

func TestQueue_ConcurrencyBound(t *testing.T) {
	exec := testutil.NewScriptedExecutor().WithFallback(testutil.Step{
		Result: core.Result{Output: "ok"},
		Delay:  20 * time.Millisecond,
	})
	q := New("text", exec, func(o *Options) { o.Concurrency = 2 })
	tracker := &testutil.Tracker{Name: "ctx"}

	var stop sync.WaitGroup
	done := make(chan struct{})
	peak := 0
	stop.Add(1)
	go func() {
		defer stop.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			if r := q.Stats().Running; r > peak {
				peak = r
			}
			time.Sleep(time.Millisecond)
		}
	}()

	handles := make([]*Handle, 5)
	for i := range handles {
		handles[i] = q.Submit(tracker, textReq("item"), nil)
	}
	for _, err := range waitAll(t, handles...) {
		assert.NoError(t, err)
	}
	close(done)
	stop.Wait()

	assert.Equal(t, 5, exec.Calls())
	assert.LessOrEqual(t, exec.MaxConcurrent(), 2)
	assert.LessOrEqual(t, peak, 2)

	stats := q.Stats()
	assert.Equal(t, 5, stats.Submitted)
	assert.Equal(t, 5, stats.Succeeded)
	assert.Zero(t, stats.Running)
	assert.Zero(t, stats.Pending)
}

func TestQueue_ConcurrencyMinimumIsOne(t *testing.T) {
	q := New("text", nil, func(o *Options) { o.Concurrency = 0 })
	assert.Equal(t, 1, q.Concurrency())
}

func TestQueue_ThrottleRetryCountsCheckBeforeIncrement(t *testing.T) {
	throttle := testutil.Step{Err: core.NewThrottleError(time.Millisecond, errors.New("429"))}
	exec := testutil.NewScriptedExecutor(throttle, throttle).WithFallback(testutil.Step{Result: core.Result{Output: "late"}})
	q := New("text", exec, func(o *Options) { o.MaxTries = 1 })
	tracker := &testutil.Tracker{Name: "ctx"}

	errs := waitAll(t, q.Submit(tracker, textReq("a"), nil))

	_, throttled := core.IsThrottle(errs[0])
	assert.True(t, throttled)
	assert.Equal(t, 2, exec.Calls(), "maxTries+1 attempts")
	require.Len(t, tracker.Errors(), 1)
	assert.Equal(t, errs[0], tracker.Errors()[0])
}

func TestQueue_ThrottleRetrySucceeds(t *testing.T) {
	throttle := testutil.Step{Err: core.NewThrottleError(time.Millisecond, nil)}
	exec := testutil.NewScriptedExecutor(throttle, throttle).WithFallback(testutil.Step{
		Result: core.Result{Output: "ok", Usage: core.Units{Input: 3}},
	})
	q := New("text", exec, func(o *Options) { o.MaxTries = 2 })
	tracker := &testutil.Tracker{Name: "ctx"}

	h := q.Submit(tracker, textReq("a"), nil)
	res, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Output)
	assert.Equal(t, 3, exec.Calls())
	assert.Empty(t, tracker.Errors())
	assert.Len(t, tracker.Usage(), 1, "usage only recorded on success")
	assert.Equal(t, 2, q.Stats().Retried)
}

func TestQueue_ContextOverridesMaxTries(t *testing.T) {
	throttle := testutil.Step{Err: core.NewThrottleError(time.Millisecond, nil)}
	exec := testutil.NewScriptedExecutor(throttle, throttle, throttle)
	q := New("text", exec, func(o *Options) { o.MaxTries = 5 })
	tracker := &testutil.Tracker{Name: "ctx", Override: 1}

	errs := waitAll(t, q.Submit(tracker, textReq("a"), nil))
	require.Error(t, errs[0])
	assert.Equal(t, 2, exec.Calls())
}

func TestQueue_NonThrottleErrorIsTerminal(t *testing.T) {
	boom := errors.New("bad request")
	exec := testutil.NewScriptedExecutor(testutil.Step{Err: boom})
	q := New("text", exec, func(o *Options) { o.MaxTries = 5 })
	tracker := &testutil.Tracker{Name: "ctx"}

	errs := waitAll(t, q.Submit(tracker, textReq("a"), nil))

	var ge *core.GenerationError
	require.ErrorAs(t, errs[0], &ge)
	assert.Equal(t, "text", ge.Backend)
	assert.ErrorIs(t, errs[0], boom)
	assert.Equal(t, 1, exec.Calls())
	assert.Len(t, tracker.Errors(), 1)
	assert.Equal(t, 1, q.Stats().Failed)
}

func TestQueue_GateSuspendsDispatch(t *testing.T) {
	resume := time.Now().Add(60 * time.Millisecond)
	exec := testutil.NewScriptedExecutor(testutil.Step{Err: &core.ThrottleError{ResumeAt: resume}}).
		WithFallback(testutil.Step{Result: core.Result{Output: "ok"}})
	q := New("text", exec, func(o *Options) { o.Concurrency = 2 })
	tracker := &testutil.Tracker{Name: "ctx"}

	first := q.Submit(tracker, textReq("a"), nil)
	require.Eventually(t, func() bool { return q.Stats().Retried == 1 }, time.Second, time.Millisecond)

	// Capacity is free but the gate is closed.
	second := q.Submit(tracker, textReq("b"), nil)
	for _, err := range waitAll(t, first, second) {
		assert.NoError(t, err)
	}

	times := exec.CallTimes()
	require.Len(t, times, 3)
	assert.False(t, times[1].Before(resume))
	assert.False(t, times[2].Before(resume))
	assert.True(t, q.Stats().ResumeAt.IsZero(), "gate cleared after expiry")
}

func TestQueue_RetriedItemRunsBeforeLaterArrivals(t *testing.T) {
	exec := testutil.NewScriptedExecutor(testutil.Step{Err: core.NewThrottleError(30*time.Millisecond, nil)}).
		WithFallback(testutil.Step{Result: core.Result{Output: "ok"}})
	q := New("text", exec)
	tracker := &testutil.Tracker{Name: "ctx"}

	a := q.Submit(tracker, textReq("a"), nil)
	b := q.Submit(tracker, textReq("b"), nil)
	c := q.Submit(tracker, textReq("c"), nil)
	for _, err := range waitAll(t, a, b, c) {
		assert.NoError(t, err)
	}

	var order []any
	for _, r := range exec.Requests() {
		order = append(order, r.Payload)
	}
	assert.Equal(t, []any{"a", "a", "b", "c"}, order)
}

func TestQueue_LaterThrottleWins(t *testing.T) {
	hold := make(chan struct{})
	near := time.Now().Add(200 * time.Millisecond)
	far := time.Now().Add(400 * time.Millisecond)
	exec := testutil.NewScriptedExecutor(
		testutil.Step{Hold: hold, Err: &core.ThrottleError{ResumeAt: far}},
		testutil.Step{Hold: hold, Err: &core.ThrottleError{ResumeAt: near}},
	).WithFallback(testutil.Step{Result: core.Result{Output: "ok"}})
	q := New("text", exec, func(o *Options) { o.Concurrency = 2 })
	tracker := &testutil.Tracker{Name: "ctx"}

	a := q.Submit(tracker, textReq("a"), nil)
	b := q.Submit(tracker, textReq("b"), nil)
	require.Eventually(t, func() bool { return exec.Calls() == 2 }, time.Second, time.Millisecond)
	close(hold)

	require.Eventually(t, func() bool { return q.Stats().Retried == 2 }, time.Second, time.Millisecond)
	assert.True(t, q.Stats().ResumeAt.Equal(far))

	for _, err := range waitAll(t, a, b) {
		assert.NoError(t, err)
	}
	times := exec.CallTimes()
	require.Len(t, times, 4)
	assert.False(t, times[2].Before(far))
	assert.False(t, times[3].Before(far))
}

func TestQueue_FailingCheckIsGenerationError(t *testing.T) {
	exec := testutil.NewScriptedExecutor().WithFallback(testutil.Step{
		Result: core.Result{Output: "", Usage: core.Units{Input: 10, Output: 5}},
	})
	pricing := core.Pricing{Per: 1, Input: 1}
	q := New("text", exec, func(o *Options) {
		o.Pricing = pricing
		o.Checks = []core.Check{func(res core.Result) error {
			if res.Output == "" {
				return errors.New("empty output")
			}
			return nil
		}}
	})
	tracker := &testutil.Tracker{Name: "ctx"}

	errs := waitAll(t, q.Submit(tracker, textReq("a"), nil))

	var ge *core.GenerationError
	require.ErrorAs(t, errs[0], &ge)
	assert.Contains(t, errs[0].Error(), "empty output")
	assert.Equal(t, 1, exec.Calls())

	usage := tracker.Usage()
	require.Len(t, usage, 1, "usage of a rejected result is still accounted")
	assert.Equal(t, pricing, usage[0].Pricing)
}

func TestQueue_PerItemExecutor(t *testing.T) {
	fallback := testutil.NewScriptedExecutor()
	bound := testutil.NewScriptedExecutor().WithFallback(testutil.Step{Result: core.Result{Output: "bound"}})
	q := New("text", fallback)

	res, err := q.Submit(&testutil.Tracker{}, textReq("a"), bound).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bound", res.Output)
	assert.Zero(t, fallback.Calls())
}

func TestQueue_NoExecutor(t *testing.T) {
	q := New("text", nil)
	tracker := &testutil.Tracker{}

	_, err := q.Submit(tracker, textReq("a"), nil).Wait(context.Background())
	var ge *core.GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Len(t, tracker.Errors(), 1)
}

func TestQueue_ExecutorPanicIsTerminal(t *testing.T) {
	exec := core.ExecutorFunc(func(context.Context, core.Request) (core.Result, error) {
		panic("boom")
	})
	q := New("text", exec)

	errs := waitAll(t, q.Submit(nil, textReq("a"), nil))
	var ge *core.GenerationError
	require.ErrorAs(t, errs[0], &ge)
	assert.Contains(t, errs[0].Error(), "executor panic")
	assert.Zero(t, q.Stats().Running)
}

func TestQueue_TimeoutBoundsAttempt(t *testing.T) {
	exec := testutil.NewScriptedExecutor().WithFallback(testutil.Step{Delay: time.Second})
	q := New("text", exec, func(o *Options) { o.Timeout = 10 * time.Millisecond })

	errs := waitAll(t, q.Submit(nil, textReq("a"), nil))
	assert.ErrorIs(t, errs[0], context.DeadlineExceeded)
}

func TestHandle_WaitAbandonDoesNotCancelWork(t *testing.T) {
	hold := make(chan struct{})
	exec := testutil.NewScriptedExecutor().WithFallback(testutil.Step{Hold: hold, Result: core.Result{Output: "ok"}})
	q := New("text", exec)
	h := q.Submit(nil, textReq("a"), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := h.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(hold)
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("work did not finish after caller abandoned wait")
	}
	res, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Output)
}

func TestQueue_RejectionReachesLifecycleContext(t *testing.T) {
	boom := errors.New("backend down")
	exec := testutil.NewScriptedExecutor(testutil.Step{Err: boom})
	q := New("text", exec)
	lc := lifecycle.New(nil)
	require.NoError(t, lc.Start())

	_, err := q.Submit(lc, textReq("a"), nil).Wait(context.Background())
	require.Error(t, err)

	errs := lc.Errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)
	assert.Equal(t, core.StatusPreGen, lc.Status(), "queue never changes context status")
}
