package testutil

import (
	"sync"

	"github.com/hupe1980/genmesh/core"
)

// Tracker records what a queue reports for a submission.
type Tracker struct {
	Name     string
	Override int

	mu    sync.Mutex
	usage []core.UsageEntry
	errs  []error
}

// ID implements queue.Tracker.
func (t *Tracker) ID() string { return t.Name }

// MaxTries implements queue.Tracker.
func (t *Tracker) MaxTries() (int, bool) { return t.Override, t.Override > 0 }

// AddUsage implements queue.Tracker.
func (t *Tracker) AddUsage(kind core.GenerationKind, units core.Units, pricing core.Pricing) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage = append(t.usage, core.UsageEntry{Kind: kind, Units: units, Pricing: pricing})
}

// AddError implements queue.Tracker.
func (t *Tracker) AddError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errs = append(t.errs, err)
}

// Usage returns the recorded usage entries.
func (t *Tracker) Usage() []core.UsageEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]core.UsageEntry, len(t.usage))
	copy(out, t.usage)
	return out
}

// Errors returns the recorded errors.
func (t *Tracker) Errors() []error {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]error, len(t.errs))
	copy(out, t.errs)
	return out
}
