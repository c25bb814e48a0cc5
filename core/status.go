package core

import "fmt"

// Status is the forward-only stage of a lifecycle context.
//
// Ordered stages: Idle < PreGen < Generated < Completed. The error states are
// terminal and reachable from the stage at which the failure happened.
type Status int

const (
	// StatusIdle is the initial status of a new context.
	StatusIdle Status = iota
	// StatusPreGen means generation has started and the request is being built
	// or is queued/running.
	StatusPreGen
	// StatusGenerated means the primary result is available.
	StatusGenerated
	// StatusCompleted means every deferred task settled successfully.
	StatusCompleted
	// StatusPreGenError is a failure before the request reached a backend.
	StatusPreGenError
	// StatusGeneratingError is a terminal failure of the backend call.
	StatusGeneratingError
	// StatusPostGenError means at least one deferred task failed.
	StatusPostGenError
)

var statusNames = map[Status]string{
	StatusIdle:            "idle",
	StatusPreGen:          "pre-gen",
	StatusGenerated:       "generated",
	StatusCompleted:       "completed",
	StatusPreGenError:     "pre-gen-error",
	StatusGeneratingError: "generating-error",
	StatusPostGenError:    "post-gen-error",
}

// String returns the canonical status name.
func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

// MarshalText encodes the status by name (used in audit snapshots).
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a status name produced by MarshalText.
func (s *Status) UnmarshalText(text []byte) error {
	for st, name := range statusNames {
		if name == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}

// IsError reports whether s is one of the terminal error states.
func (s Status) IsError() bool {
	return s == StatusPreGenError || s == StatusGeneratingError || s == StatusPostGenError
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool { return s == StatusCompleted || s.IsError() }

// CanFail reports whether a context at s may move to the error state target:
// pre-gen-error from idle or pre-gen, generating-error from pre-gen only and
// post-gen-error from generated only.
func (s Status) CanFail(target Status) bool {
	switch target {
	case StatusPreGenError:
		return s == StatusIdle || s == StatusPreGen
	case StatusGeneratingError:
		return s == StatusPreGen
	case StatusPostGenError:
		return s == StatusGenerated
	default:
		return false
	}
}

// Satisfies reports whether a context currently at s has reached target, i.e.
// s is at or past target in the fixed order, or s is a terminal state.
func (s Status) Satisfies(target Status) bool {
	if s.IsTerminal() {
		return true
	}
	if target.IsError() {
		return false
	}
	return s >= target
}
