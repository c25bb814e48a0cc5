// Package logging provides a minimal logging interface and adapters for genmesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that queues, lifecycle contexts and coalescers use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping an existing *slog.Logger
//   - GenMeshLogger, a structured logger with component/context helpers and
//     LogGeneration for per-attempt entries (see GenerationLogger)
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	mesh, err := genmesh.New(func(o *genmesh.Options) { o.Logger = logger })
//
// The design intentionally keeps the interface minimal to avoid vendor lock-in
// while supporting structured logging where available.
package logging
