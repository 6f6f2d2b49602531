// Package logging provides a minimal logging interface and adapters for parley.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that the session registry, dispatcher and bridges use for
// observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - ParleyLogger with contextual helpers (component, conversation) and
//     domain helpers for tool calls and turn usage
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "text", false)
//	reg := session.NewRegistry(engine, func(o *session.Options) { o.Logger = logger })
//
// The design intentionally keeps the interface minimal: every best-effort
// failure path in the client logs at Debug level and continues, so a broken
// tracker or disconnected frontend can never abort an in-flight turn.
package logging
