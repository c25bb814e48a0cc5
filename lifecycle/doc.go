// Package lifecycle implements the per-operation generation context: a
// forward-only state machine that owns the usage ledger, the error list, the
// deferred post-generation tasks and the per-status broadcast waiters.
//
// A Context is created per logical operation, advanced only by its owner (the
// queue that runs its generations and the operation's own code) and becomes
// immutable once it reaches a terminal status. It is never reused.
//
// Status order:
//
//	idle -> pre-gen -> generated -> completed
//
// with terminal error states pre-gen-error, generating-error and
// post-gen-error reachable from the stage where the failure happened. On
// reaching any terminal status the context emits exactly one core.Snapshot to
// its audit sink.
//
// Backend selection per generation kind is delegated to a small Strategy value
// supplied by the owning domain instead of subclassing the context.
package lifecycle
