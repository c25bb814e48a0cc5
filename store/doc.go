// Package store provides ResultStore implementations for coalesced
// generation results.
//
// InMemoryStore keeps everything in process and is meant for tests, examples
// and single-process deployments. The sqlite subpackage provides a durable
// store that also records audit snapshots.
package store
