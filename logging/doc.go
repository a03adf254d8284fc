// Package logging provides a minimal logging interface and adapters for slidesmith.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn,
// Error) that the engine, stores and backend clients use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlidesmithLogger adapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	engine := slidesmith.New(func(o *slidesmith.Options) { o.Logger = logger })
//
// The design intentionally keeps the interface minimal to avoid vendor lock-in
// while supporting structured logging where available.
package logging
