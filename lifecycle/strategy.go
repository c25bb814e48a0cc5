package lifecycle

import (
	"fmt"

	"github.com/hupe1980/genmesh/core"
)

// Strategy selects the backend identity that serves a generation kind for
// one content domain.
type Strategy interface {
	BackendFor(kind core.GenerationKind) (string, error)
}

// Describer is optionally implemented by strategies that contribute
// metadata (language, model, thread linkage) to audit snapshots.
type Describer interface {
	Describe() map[string]any
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc func(kind core.GenerationKind) (string, error)

// BackendFor implements Strategy.
func (f StrategyFunc) BackendFor(kind core.GenerationKind) (string, error) { return f(kind) }

// StaticStrategy is a map-backed strategy for a content domain.
type StaticStrategy struct {
	// Domain names the content domain (e.g. "quiz", "story").
	Domain string
	// Language is the content language, if any.
	Language string
	// ThreadID links the operation to a conversation thread, if any.
	ThreadID string
	// Backends maps each supported kind to a registered backend name.
	Backends map[core.GenerationKind]string
}

// BackendFor implements Strategy.
func (s StaticStrategy) BackendFor(kind core.GenerationKind) (string, error) {
	if name, ok := s.Backends[kind]; ok && name != "" {
		return name, nil
	}
	return "", fmt.Errorf("%w: domain %q has no backend for %s generations", core.ErrUnknownBackend, s.Domain, kind)
}

// Describe implements Describer.
func (s StaticStrategy) Describe() map[string]any {
	md := map[string]any{}
	if s.Domain != "" {
		md["domain"] = s.Domain
	}
	if s.Language != "" {
		md["language"] = s.Language
	}
	if s.ThreadID != "" {
		md["thread_id"] = s.ThreadID
	}
	return md
}
