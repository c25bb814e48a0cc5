package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/genmesh/audit"
	"github.com/hupe1980/genmesh/core"
)

func newTestContext(t *testing.T, optFns ...func(o *Options)) (*Context, *audit.InMemorySink) {
	t.Helper()
	sink := audit.NewInMemorySink()
	strategy := StaticStrategy{
		Domain:   "quiz",
		Language: "de",
		Backends: map[core.GenerationKind]string{core.KindText: "text-backend"},
	}
	fns := append([]func(o *Options){func(o *Options) {
		o.Reason = "test"
		o.Sink = sink
	}}, optFns...)
	return New(strategy, fns...), sink
}

func TestContext_ForwardOnlyTransitions(t *testing.T) {
	c, sink := newTestContext(t)
	assert.Equal(t, core.StatusIdle, c.Status())

	require.NoError(t, c.Start())
	assert.Equal(t, core.StatusPreGen, c.Status())

	err := c.Start()
	assert.ErrorIs(t, err, core.ErrAlreadyStarted)

	require.NoError(t, c.Complete(context.Background()))
	assert.Equal(t, core.StatusCompleted, c.Status())

	assert.ErrorIs(t, c.Start(), core.ErrAlreadyStarted)
	assert.ErrorIs(t, c.Complete(context.Background()), core.ErrInvalidTransition)
	assert.ErrorIs(t, c.Fail(core.StatusGeneratingError, errors.New("late")), core.ErrInvalidTransition)
	assert.ErrorIs(t, c.AddPostGen(func(context.Context) error { return nil }), core.ErrInvalidTransition)

	assert.Len(t, sink.ByID(c.ID()), 1)
}

func TestContext_CompleteWithoutStartFails(t *testing.T) {
	c, _ := newTestContext(t)
	assert.ErrorIs(t, c.Complete(context.Background()), core.ErrInvalidTransition)
	assert.Equal(t, core.StatusIdle, c.Status())
}

func TestContext_FailRespectsOrigin(t *testing.T) {
	c, sink := newTestContext(t)
	assert.ErrorIs(t, c.Fail(core.StatusCompleted, nil), core.ErrInvalidTransition)

	require.NoError(t, c.Start())
	boom := errors.New("prompt build failed")
	require.NoError(t, c.Fail(core.StatusPreGenError, boom))

	assert.Equal(t, core.StatusPreGenError, c.Status())
	assert.Equal(t, []error{boom}, c.Errors())

	snaps := sink.ByID(c.ID())
	require.Len(t, snaps, 1)
	assert.Equal(t, core.StatusPreGenError, snaps[0].Status)
	assert.Equal(t, []string{"prompt build failed"}, snaps[0].Errors)
}

func TestContext_GeneratingErrorRequiresStart(t *testing.T) {
	c, sink := newTestContext(t)
	assert.ErrorIs(t, c.Fail(core.StatusGeneratingError, errors.New("never started")), core.ErrInvalidTransition)
	assert.Equal(t, core.StatusIdle, c.Status())
	assert.Empty(t, c.Errors())
	assert.Empty(t, sink.ByID(c.ID()))

	require.NoError(t, c.Start())
	require.NoError(t, c.Fail(core.StatusGeneratingError, errors.New("backend down")))
	assert.Equal(t, core.StatusGeneratingError, c.Status())
}

func TestContext_FailPostGenRequiresGenerated(t *testing.T) {
	c, _ := newTestContext(t)
	require.NoError(t, c.Start())
	assert.ErrorIs(t, c.Fail(core.StatusPostGenError, nil), core.ErrInvalidTransition)
}

func TestContext_CompletePartialFailure(t *testing.T) {
	c, sink := newTestContext(t)
	require.NoError(t, c.Start())

	primary := "the generated quiz"
	var ran atomic.Int32
	boom := errors.New("upload failed")

	require.NoError(t, c.AddPostGen(func(context.Context) error {
		ran.Add(1)
		return nil
	}))
	require.NoError(t, c.AddPostGen(func(context.Context) error {
		ran.Add(1)
		return boom
	}))

	err := c.Complete(context.Background())

	var agg *core.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Errors, 1)
	assert.ErrorIs(t, err, boom)

	assert.EqualValues(t, 2, ran.Load(), "every task is attempted")
	assert.Equal(t, core.StatusPostGenError, c.Status())
	assert.Len(t, c.Errors(), 1)
	assert.Equal(t, "the generated quiz", primary)

	snaps := sink.ByID(c.ID())
	require.Len(t, snaps, 1)
	assert.Equal(t, core.StatusPostGenError, snaps[0].Status)
}

func TestContext_PostGenTasksRunConcurrently(t *testing.T) {
	c, _ := newTestContext(t)
	require.NoError(t, c.Start())

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		require.NoError(t, c.AddPostGen(func(ctx context.Context) error {
			wg.Done()
			// Deadlocks unless both tasks are running at the same time.
			done := make(chan struct{})
			go func() { wg.Wait(); close(done) }()
			select {
			case <-done:
				return nil
			case <-time.After(2 * time.Second):
				return errors.New("tasks were not concurrent")
			}
		}))
	}

	require.NoError(t, c.Complete(context.Background()))
	assert.Equal(t, core.StatusCompleted, c.Status())
}

func TestContext_WaitUntilBroadcast(t *testing.T) {
	c, _ := newTestContext(t)

	const waiters = 5
	results := make(chan core.Status, waiters)
	var started sync.WaitGroup
	for i := 0; i < waiters; i++ {
		started.Add(1)
		go func() {
			started.Done()
			st, err := c.WaitUntil(context.Background(), core.StatusGenerated)
			assert.NoError(t, err)
			results <- st
		}()
	}
	started.Wait()

	require.NoError(t, c.Start())
	select {
	case <-results:
		t.Fatal("waiter released before generated")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, c.Complete(context.Background()))
	for i := 0; i < waiters; i++ {
		select {
		case st := <-results:
			assert.True(t, st.Satisfies(core.StatusGenerated))
		case <-time.After(time.Second):
			t.Fatal("waiter not released")
		}
	}
}

func TestContext_WaitUntilReleasedByError(t *testing.T) {
	c, _ := newTestContext(t)
	require.NoError(t, c.Start())

	done := make(chan core.Status, 1)
	go func() {
		st, _ := c.WaitUntil(context.Background(), core.StatusCompleted)
		done <- st
	}()

	require.NoError(t, c.Fail(core.StatusGeneratingError, errors.New("backend down")))
	select {
	case st := <-done:
		assert.Equal(t, core.StatusGeneratingError, st)
	case <-time.After(time.Second):
		t.Fatal("waiter not released by terminal error")
	}
}

func TestContext_WaitUntilAlreadySatisfied(t *testing.T) {
	c, _ := newTestContext(t)
	require.NoError(t, c.Start())
	st, err := c.WaitUntil(context.Background(), core.StatusPreGen)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPreGen, st)
}

func TestContext_WaitUntilCallerCancel(t *testing.T) {
	c, _ := newTestContext(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	st, err := c.WaitUntil(ctx, core.StatusGenerated)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, core.StatusIdle, st)
}

func TestContext_UsageAndSnapshot(t *testing.T) {
	c, sink := newTestContext(t, func(o *Options) {
		o.Data = map[string]any{"quiz_id": 7}
	})
	require.NoError(t, c.Start())
	c.AddUsage(core.KindText, core.Units{Input: 100, Output: 50}, core.Pricing{Per: 1000, Input: 1, Output: 2})
	c.AddError(errors.New("informational"))
	assert.Equal(t, core.StatusPreGen, c.Status(), "AddError never changes status")

	require.NoError(t, c.Complete(context.Background()))

	snaps := sink.ByID(c.ID())
	require.Len(t, snaps, 1)
	snap := snaps[0]
	assert.Equal(t, "test", snap.Reason)
	assert.Equal(t, core.StatusCompleted, snap.Status)
	assert.InDelta(t, 0.2, snap.Usage.Total, 1e-9)
	assert.Equal(t, 7, snap.Data["quiz_id"])
	assert.Equal(t, "quiz", snap.Data["domain"])
	assert.Equal(t, "de", snap.Data["language"])
	assert.Equal(t, []string{"informational"}, snap.Errors)
	assert.False(t, snap.FinishedAt.IsZero())
}

func TestContext_MaxTriesAndBudget(t *testing.T) {
	c, _ := newTestContext(t)
	_, ok := c.MaxTries()
	assert.False(t, ok)

	c2, _ := newTestContext(t, func(o *Options) {
		o.MaxTries = 3
		o.MaxGenerations = 1
	})
	n, ok := c2.MaxTries()
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	require.NoError(t, c2.ReserveGeneration())
	assert.ErrorIs(t, c2.ReserveGeneration(), core.ErrGenerationLimit)
}

func TestContext_TerminalIgnoresLateReports(t *testing.T) {
	c, sink := newTestContext(t)
	require.NoError(t, c.Start())
	c.AddUsage(core.KindText, core.Units{Input: 100, Output: 50}, core.Pricing{Per: 1000, Input: 1, Output: 2})
	require.NoError(t, c.Fail(core.StatusGeneratingError, errors.New("timeout")))

	c.AddUsage(core.KindText, core.Units{Input: 1000}, core.Pricing{Per: 1, Input: 1})
	c.AddError(errors.New("late"))

	assert.InDelta(t, 0.2, c.Usage().Total, 1e-9)
	assert.Len(t, c.UsageEntries(), 1)
	assert.Len(t, c.Errors(), 1)

	snaps := sink.ByID(c.ID())
	require.Len(t, snaps, 1)
	assert.InDelta(t, 0.2, snaps[0].Usage.Total, 1e-9)
}

func TestContext_GenerationsInSnapshot(t *testing.T) {
	c, sink := newTestContext(t, func(o *Options) { o.MaxGenerations = 3 })
	require.NoError(t, c.Start())
	require.NoError(t, c.ReserveGeneration())
	require.NoError(t, c.ReserveGeneration())

	used, remaining := c.Generations()
	assert.Equal(t, 2, used)
	assert.Equal(t, 1, remaining)

	require.NoError(t, c.Complete(context.Background()))
	snaps := sink.ByID(c.ID())
	require.Len(t, snaps, 1)
	assert.Equal(t, 2, snaps[0].Generations)

	unlimited, _ := newTestContext(t)
	_, remaining = unlimited.Generations()
	assert.Equal(t, -1, remaining)
}

func TestContext_BackendFor(t *testing.T) {
	c, _ := newTestContext(t)
	name, err := c.BackendFor(core.KindText)
	require.NoError(t, err)
	assert.Equal(t, "text-backend", name)

	_, err = c.BackendFor(core.KindImage)
	assert.ErrorIs(t, err, core.ErrUnknownBackend)

	bare := New(nil)
	_, err = bare.BackendFor(core.KindText)
	assert.ErrorIs(t, err, core.ErrUnknownBackend)
}

func TestStrategyFunc(t *testing.T) {
	s := StrategyFunc(func(kind core.GenerationKind) (string, error) { return "b-" + kind.String(), nil })
	c := New(s)
	name, err := c.BackendFor(core.KindSpeech)
	require.NoError(t, err)
	assert.Equal(t, "b-speech", name)
}
