package queue

import (
	"time"

	"github.com/hupe1980/genmesh/core"
)

// Tracker is the view of a lifecycle context the queue needs: identity, the
// optional try override, and the ledger/error sinks it reports into.
type Tracker interface {
	ID() string
	MaxTries() (int, bool)
	AddUsage(kind core.GenerationKind, units core.Units, pricing core.Pricing)
	AddError(err error)
}

// item is a single queued generation. Owned exclusively by its queue while
// pending or running.
type item struct {
	tracker  Tracker
	req      core.Request
	executor core.Executor
	tries    int
	handle   *Handle
	enqueued time.Time
}
