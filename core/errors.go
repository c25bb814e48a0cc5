package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrAlreadyStarted is returned when Start is called on a context that has
	// already left the idle status.
	ErrAlreadyStarted = errors.New("generation already started")

	// ErrInvalidTransition is returned for any transition the fixed status
	// order does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrUnknownBackend is returned when no backend identity is registered
	// under the requested name.
	ErrUnknownBackend = errors.New("unknown backend")

	// ErrGenerationLimit is returned when a context exceeds its generation budget.
	ErrGenerationLimit = errors.New("generation limit exceeded")
)

// ThrottleError is a retryable, backend-wide rate limit failure. ResumeAt is
// the earliest instant any request may be sent to the backend again.
type ThrottleError struct {
	ResumeAt time.Time
	Err      error
}

func (e *ThrottleError) Error() string {
	msg := fmt.Sprintf("throttled until %s", e.ResumeAt.Format(time.RFC3339Nano))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ThrottleError) Unwrap() error { return e.Err }

// NewThrottleError builds a ThrottleError resuming after d from now.
func NewThrottleError(d time.Duration, err error) *ThrottleError {
	return &ThrottleError{ResumeAt: time.Now().Add(d), Err: err}
}

// GenerationError is a terminal, never retried failure (malformed result,
// validation rejection, non-throttle backend error).
type GenerationError struct {
	Backend string
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Backend == "" {
		return fmt.Sprintf("generation failed: %v", e.Err)
	}
	return fmt.Sprintf("generation failed on %s: %v", e.Backend, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// AggregateError collects every deferred task failure of one Complete call.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d post-generation task(s) failed: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap exposes the members to errors.Is / errors.As.
func (e *AggregateError) Unwrap() []error { return e.Errors }

// IsThrottle reports whether err carries a ThrottleError and returns it.
func IsThrottle(err error) (*ThrottleError, bool) {
	var te *ThrottleError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// Classify maps an arbitrary executor error onto the taxonomy: throttle
// errors pass through, already classified errors are kept, everything else
// becomes a terminal GenerationError for backend.
func Classify(backend string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := IsThrottle(err); ok {
		return err
	}
	var ge *GenerationError
	if errors.As(err, &ge) {
		return err
	}
	return &GenerationError{Backend: backend, Err: err}
}
