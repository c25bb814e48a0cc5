// Package dedup coalesces concurrent requests for the same logical generation
// so that at most one is in flight per key.
//
// A Coalescer is created per call site (one per content kind, typically) and
// keeps a map from key to the lifecycle context currently producing that key.
// Do follows a fixed protocol:
//
//  1. If the key is in flight, wait for the owning context to reach the
//     generated status and return its result (SourceCoalesced).
//  2. Otherwise consult the ResultStore, if one is configured. Concurrent
//     lookups of the same key share a single store call. A hit is decoded and
//     returned without creating a context (SourceStored).
//  3. Otherwise create and register a new context before any work starts,
//     run the caller's generate function, persist the result as a deferred
//     task and complete the context (SourceGenerated).
//
// The generation runs detached from the caller that registered it: if that
// caller's ctx ends it stops waiting like any other waiter, while the shared
// context still settles and later waiters receive the result. A panicking
// generate function fails the context with generating-error.
//
// The map entry is removed on every exit path. Generate functions must not
// call Complete on the context they receive; they may register their own
// deferred tasks with AddPostGen.
package dedup
