// Package core provides the foundational domain types and contracts used by
// genmesh. It defines the shared vocabulary for:
//
//   - Generation kinds and requests/results exchanged with executors
//   - The usage ledger (raw units + pricing, cost derived on demand)
//   - Lifecycle statuses and their fixed forward order
//   - The error taxonomy (throttle, terminal generation, aggregate)
//   - Collaborator contracts: Executor, ResultStore, AuditSink
//
// The package intentionally keeps implementation concerns (queues, lifecycle
// state, persistence) out of scope, exposing small interfaces so backends and
// stores can be swapped without touching calling code.
package core
