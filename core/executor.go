package core

import (
	"context"
	"fmt"
)

// Request is a generation request handed to an executor. Payload is the
// backend-specific body (see package model for the shipped payload types).
type Request struct {
	Kind    GenerationKind
	Payload any
}

// Result is what an executor produced plus the raw units it consumed.
type Result struct {
	Output any
	Usage  Units
}

// Executor performs one generation against a backend.
//
// Implementations return a *ThrottleError for rate limits so the queue can
// retry; any other error is treated as terminal.
type Executor interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, req Request) (Result, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// Check is a post-hoc validation hook run on a successful result. A non-nil
// error turns the nominal success into a failure.
type Check func(res Result) error

// Task is a deferred post-generation side effect (e.g. persisting an artifact).
type Task func(ctx context.Context) error

// OutputAs extracts a typed output from a result.
func OutputAs[T any](res Result) (T, error) {
	out, ok := res.Output.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("unexpected output type %T, want %T", res.Output, zero)
	}
	return out, nil
}
