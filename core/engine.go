package core

import "context"

// StreamFunc receives raw streaming events from an engine while a turn is in
// flight. It is invoked on the engine's worker goroutine; implementations must
// not assume any particular caller goroutine.
type StreamFunc func(event string, data EventData)

// SessionConfig carries the per-session settings handed to an Engine when a
// session is created or resumed.
type SessionConfig struct {
	// WorkingDir is the project directory the session operates in.
	WorkingDir string

	// OnStream is bound to exactly one session handle so events dispatch to
	// that handle's callbacks with no cross-talk between conversations.
	OnStream StreamFunc
}

// ProviderInfo describes the model backing an engine session. All fields are
// cosmetic; consumers must tolerate zero values.
type ProviderInfo struct {
	Model         string
	ContextWindow int
}

// EngineSession is one live conversation inside an external engine.
//
// Implementations are responsible for:
//   - Running a full agentic turn in Execute, emitting zero or more raw
//     events through the configured StreamFunc before returning the final
//     assistant text
//   - Releasing backend resources in Close
//
// Execute suspends the caller for the duration of the turn. Sessions are not
// safe for concurrent Execute calls; the UI layer guarantees one in-flight
// turn per conversation.
type EngineSession interface {
	// Execute runs one turn and returns the final response text.
	Execute(ctx context.Context, message string) (string, error)

	// Info returns provider metadata for display purposes.
	Info() ProviderInfo

	// SwitchModel changes the model used for subsequent turns. Returns false
	// when the backend does not support switching.
	SwitchModel(model string) bool

	// Close ends the session on the engine side.
	Close(ctx context.Context) error
}

// Engine is the external agent-execution backend. The engine's internal
// logic (model calls, tool execution, agentic looping) is entirely opaque to
// this module; parley only creates, resumes and drives sessions.
type Engine interface {
	// CreateSession starts a fresh engine session. The returned session ID is
	// the engine's persisted identifier, used later for resumption.
	CreateSession(ctx context.Context, cfg SessionConfig) (EngineSession, string, error)

	// ResumeSession reattaches to an existing session by its persisted ID.
	ResumeSession(ctx context.Context, sessionID string, cfg SessionConfig) (EngineSession, string, error)
}
