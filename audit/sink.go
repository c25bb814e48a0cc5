package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/genmesh/core"
	"github.com/hupe1980/genmesh/logging"
)

// InMemorySink keeps every appended snapshot in memory. Useful for tests and
// single-process prototypes; it never evicts.
type InMemorySink struct {
	mu        sync.RWMutex
	snapshots []core.Snapshot
}

// NewInMemorySink returns an empty sink.
func NewInMemorySink() *InMemorySink {
	return &InMemorySink{}
}

// Append stores the snapshot.
func (s *InMemorySink) Append(_ context.Context, snap core.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snap)
	return nil
}

// Snapshots returns a copy of all snapshots in append order.
func (s *InMemorySink) Snapshots() []core.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Snapshot, len(s.snapshots))
	copy(out, s.snapshots)
	return out
}

// ByID returns every snapshot recorded for a context id.
func (s *InMemorySink) ByID(id string) []core.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Snapshot
	for _, snap := range s.snapshots {
		if snap.ID == id {
			out = append(out, snap)
		}
	}
	return out
}

// LogSink writes each snapshot as a single structured log entry.
type LogSink struct {
	logger logging.Logger
}

// NewLogSink creates a sink logging through logger.
func NewLogSink(logger logging.Logger) *LogSink {
	return &LogSink{logger: logging.OrNoOp(logger)}
}

// Append logs the snapshot at info level, or warn level for error statuses.
func (s *LogSink) Append(_ context.Context, snap core.Snapshot) error {
	args := []any{
		"context_id", snap.ID,
		"reason", snap.Reason,
		"status", snap.Status.String(),
		"cost_total", snap.Usage.Total,
		"generations", snap.Generations,
		"errors", len(snap.Errors),
		"duration", snap.FinishedAt.Sub(snap.CreatedAt),
	}
	if snap.Status.IsError() {
		s.logger.Warn("generation context finished with errors", args...)
		return nil
	}
	s.logger.Info("generation context finished", args...)
	return nil
}

// MultiSink fans a snapshot out to every sink. All sinks are attempted; the
// joined error of the failing ones is returned.
type MultiSink []core.AuditSink

// Append implements core.AuditSink.
func (m MultiSink) Append(ctx context.Context, snap core.Snapshot) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Append(ctx, snap); err != nil {
			errs = append(errs, fmt.Errorf("audit sink %T: %w", s, err))
		}
	}
	return errors.Join(errs...)
}
