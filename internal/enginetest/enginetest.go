// Package enginetest provides a scripted in-memory engine for exercising the
// session registry and dispatcher without a real backend. Each session
// replays pre-programmed raw events through the configured stream function
// before returning a canned response, mimicking the worker-thread delivery of
// a live engine.
package enginetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"parley/core"
)

// Event is one scripted raw event.
type Event struct {
	Name string
	Data core.EventData
}

// Turn scripts a single Execute call: events emitted in order, an optional
// delay between them, then the final response (or error).
type Turn struct {
	Events   []Event
	Delay    time.Duration
	Response string
	Err      error
}

// Engine is a scripted core.Engine. Safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	sessions map[string]*Session
	nextID   int

	// CreateErr / ResumeErr force lifecycle failures when set.
	CreateErr error
	ResumeErr error
}

// New constructs an empty scripted engine.
func New() *Engine {
	return &Engine{sessions: make(map[string]*Session)}
}

// CreateSession implements core.Engine.
func (e *Engine) CreateSession(_ context.Context, cfg core.SessionConfig) (core.EngineSession, string, error) {
	if e.CreateErr != nil {
		return nil, "", e.CreateErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := fmt.Sprintf("sess-%04d", e.nextID)
	s := &Session{id: id, stream: cfg.OnStream, model: "scripted-1", contextWindow: 200000}
	e.sessions[id] = s
	return s, id, nil
}

// ResumeSession implements core.Engine. Unknown IDs are recreated, matching
// the forgiving behavior of the real bridge.
func (e *Engine) ResumeSession(_ context.Context, sessionID string, cfg core.SessionConfig) (core.EngineSession, string, error) {
	if e.ResumeErr != nil {
		return nil, "", e.ResumeErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[sessionID]
	if !ok {
		s = &Session{id: sessionID, model: "scripted-1", contextWindow: 200000}
		e.sessions[sessionID] = s
	}
	s.stream = cfg.OnStream
	return s, sessionID, nil
}

// Session returns the scripted session with the given ID for configuration.
func (e *Engine) Session(sessionID string) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[sessionID]
}

// Session is one scripted engine session.
type Session struct {
	id            string
	stream        core.StreamFunc
	model         string
	contextWindow int

	mu     sync.Mutex
	turns  []Turn
	closed bool

	// CloseErr forces Close to fail while still marking the session closed.
	CloseErr error
	// ClosePanic makes Close panic after marking the session closed.
	ClosePanic bool
	// RefuseSwitch makes SwitchModel report failure.
	RefuseSwitch bool
}

// Script appends turns to replay on subsequent Execute calls.
func (s *Session) Script(turns ...Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turns...)
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Execute implements core.EngineSession: replays the next scripted turn.
func (s *Session) Execute(ctx context.Context, message string) (string, error) {
	s.mu.Lock()
	var turn Turn
	if len(s.turns) > 0 {
		turn = s.turns[0]
		s.turns = s.turns[1:]
	} else {
		turn = Turn{Response: "scripted response to: " + message}
	}
	stream := s.stream
	s.mu.Unlock()

	for _, ev := range turn.Events {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		if stream != nil {
			stream(ev.Name, ev.Data)
		}
		if turn.Delay > 0 {
			time.Sleep(turn.Delay)
		}
	}
	return turn.Response, turn.Err
}

// Info implements core.EngineSession.
func (s *Session) Info() core.ProviderInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.ProviderInfo{Model: s.model, ContextWindow: s.contextWindow}
}

// SwitchModel implements core.EngineSession.
func (s *Session) SwitchModel(model string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RefuseSwitch {
		return false
	}
	s.model = model
	return true
}

// Close implements core.EngineSession.
func (s *Session) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.ClosePanic {
		panic("close exploded")
	}
	return s.CloseErr
}
