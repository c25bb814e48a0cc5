package core

import "context"

// ResultStore persists completed generation results under their logical key.
// Implementations should be thread-safe. Find reports absence with ok=false
// and a nil error.
type ResultStore interface {
	Find(ctx context.Context, key string) (data []byte, ok bool, err error)
	Insert(ctx context.Context, key string, data []byte) error
}

// AuditSink receives exactly one snapshot per lifecycle context when the
// context reaches a terminal status.
type AuditSink interface {
	Append(ctx context.Context, snap Snapshot) error
}
