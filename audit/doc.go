// Package audit contains AuditSink implementations receiving the terminal
// snapshot of every lifecycle context.
//
// The canonical AuditSink interface lives in the core package. Durable sinks
// live next to their storage (see store/sqlite); this package offers the
// in-process ones: an in-memory collector for tests, a sink that writes each
// snapshot as a structured log entry, and a fan-out combinator.
package audit
