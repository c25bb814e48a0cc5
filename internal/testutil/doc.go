// Package testutil contains scripted executors and recording collaborators
// used across tests to drive queues, contexts and coalescers without a real
// backend. They are not intended for production usage.
package testutil
