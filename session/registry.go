package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"parley/core"
	"parley/logging"
)

// ErrNoActiveSession is returned by SendMessage when the conversation has no
// live engine session.
var ErrNoActiveSession = errors.New("no active session")

// Options holds dependency overrides passed to NewRegistry.
type Options struct {
	// Logger receives lifecycle and best-effort failure logs.
	Logger logging.Logger
}

// Registry owns the conversation_id -> Handle map and the session lifecycle
// against the external engine. A handle exists in the registry if and only if
// its underlying engine session is live.
//
// All map access is guarded by an RWMutex: unlike the original UI-discipline
// model, Go callers may touch the registry from several goroutines. Engine
// calls (create, resume, execute, close) happen outside the lock since they
// can suspend for the duration of a turn.
type Registry struct {
	engine core.Engine
	logger logging.Logger

	mu                    sync.RWMutex
	handles               map[string]*Handle
	defaultConversationID string
}

// NewRegistry constructs a Registry bound to an engine, with optional overrides.
func NewRegistry(engine core.Engine, optFns ...func(o *Options)) *Registry {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		engine:  engine,
		logger:  opts.Logger,
		handles: make(map[string]*Handle),
	}
}

// StartNewSession creates a fresh engine session bound to a new handle.
//
// If conversationID is empty, an ID is generated and the handle becomes the
// default for single-conversation callers. modelOverride, when non-empty,
// switches the provider model right after creation. Model info extraction is
// cosmetic and never fails the call.
func (r *Registry) StartNewSession(ctx context.Context, conversationID, workingDir, modelOverride string) (*Handle, error) {
	return r.openSession(ctx, "", conversationID, workingDir, modelOverride)
}

// ResumeSession reattaches to an existing engine session by its persisted
// sessionID, with the same handle/registry contract as StartNewSession.
func (r *Registry) ResumeSession(ctx context.Context, sessionID, conversationID, workingDir, modelOverride string) (*Handle, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("resume requires a session id")
	}
	return r.openSession(ctx, sessionID, conversationID, workingDir, modelOverride)
}

func (r *Registry) openSession(ctx context.Context, resumeID, conversationID, workingDir, modelOverride string) (*Handle, error) {
	autoGenerated := conversationID == ""
	if autoGenerated {
		conversationID = core.NewConversationID()
	}

	handle := NewHandle(conversationID)
	cfg := core.SessionConfig{
		WorkingDir: workingDir,
		OnStream:   handle.HandleStream, // per-handle binding
	}

	var (
		sess      core.EngineSession
		sessionID string
		err       error
	)
	if resumeID == "" {
		sess, sessionID, err = r.engine.CreateSession(ctx, cfg)
	} else {
		sess, sessionID, err = r.engine.ResumeSession(ctx, resumeID, cfg)
	}
	if err != nil {
		if resumeID == "" {
			return nil, fmt.Errorf("create session: %w", err)
		}
		return nil, fmt.Errorf("resume session %s: %w", resumeID, err)
	}

	handle.Session = sess
	handle.SessionID = sessionID

	handle.ResetUsage()

	if modelOverride != "" {
		if !sess.SwitchModel(modelOverride) {
			r.logger.Debug("model override %s not applied for conversation %s", modelOverride, conversationID)
		} else {
			handle.forceModelName(modelOverride)
		}
	}

	r.extractModelInfo(handle)

	r.mu.Lock()
	r.handles[conversationID] = handle
	if autoGenerated {
		r.defaultConversationID = conversationID
	}
	r.mu.Unlock()

	r.logger.Info("session started conversation_id=%s session_id=%s", conversationID, sessionID)
	return handle, nil
}

// extractModelInfo best-effort reads provider metadata onto the handle.
// Model info is cosmetic; any panic from an engine implementation is logged
// and swallowed.
func (r *Registry) extractModelInfo(h *Handle) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Debug("failed to extract model info: %v", rec)
		}
	}()
	if h.Session == nil {
		return
	}
	info := h.Session.Info()
	h.setModelInfo(info.Model, info.ContextWindow)
}

// EndSession ends the conversation's session and frees its registry slot.
// Resolution falls back to the default conversation when conversationID is
// empty; a missing handle is a no-op. The engine-side shutdown is always
// best-effort: a broken cleanup path must not prevent the slot from being
// freed.
func (r *Registry) EndSession(ctx context.Context, conversationID string) {
	r.mu.Lock()
	cid := conversationID
	if cid == "" {
		cid = r.defaultConversationID
	}
	handle, ok := r.handles[cid]
	if ok {
		delete(r.handles, cid)
		if r.defaultConversationID == cid {
			r.defaultConversationID = ""
		}
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	r.closeSession(ctx, handle)
	// Safe without a lock: the handle left the registry above, and the one
	// caller still holding it is the one running EndSession.
	handle.Session = nil
	r.logger.Info("session ended conversation_id=%s", cid)
}

// closeSession shuts down the engine side of a handle. Errors and panics
// are logged and swallowed so a broken cleanup path never reaches callers.
func (r *Registry) closeSession(ctx context.Context, handle *Handle) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Debug("failed to end session %s: %v", handle.SessionID, rec)
		}
	}()
	if handle.Session == nil {
		return
	}
	if err := handle.Session.Close(ctx); err != nil {
		r.logger.Debug("failed to end session %s: %v", handle.SessionID, err)
	}
}

// SendMessage forwards a message to the conversation's engine session and
// returns the final response text. The call suspends until the engine
// returns; streaming callbacks fire from the worker goroutine during that
// span.
func (r *Registry) SendMessage(ctx context.Context, message, conversationID string) (string, error) {
	r.mu.RLock()
	cid := conversationID
	if cid == "" {
		cid = r.defaultConversationID
	}
	handle := r.handles[cid]
	r.mu.RUnlock()

	if handle == nil || handle.Session == nil {
		if conversationID == "" {
			return "", fmt.Errorf("%w: no default conversation", ErrNoActiveSession)
		}
		return "", fmt.Errorf("%w: conversation %s", ErrNoActiveSession, conversationID)
	}
	return handle.Session.Execute(ctx, message)
}

// GetHandle looks up a handle by conversation ID.
func (r *Registry) GetHandle(conversationID string) *Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handles[conversationID]
}

// RemoveHandle drops a handle from the registry without ending its session.
func (r *Registry) RemoveHandle(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, conversationID)
	if r.defaultConversationID == conversationID {
		r.defaultConversationID = ""
	}
}

// ActiveHandles returns a snapshot copy of the registry map.
func (r *Registry) ActiveHandles() map[string]*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*Handle, len(r.handles))
	for k, v := range r.handles {
		out[k] = v
	}
	return out
}

// defaultHandle resolves the default conversation's handle, or nil.
func (r *Registry) defaultHandle() *Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.defaultConversationID == "" {
		return nil
	}
	return r.handles[r.defaultConversationID]
}

// ----------------------------------------------------------------------
// Backward-compatible scalar accessors (delegate to the default handle).
// They degrade to neutral values when no default handle exists so that
// single-conversation callers never have to check for one.
// ----------------------------------------------------------------------

// Session returns the default conversation's engine session, or nil.
func (r *Registry) Session() core.EngineSession {
	if h := r.defaultHandle(); h != nil {
		return h.Session
	}
	return nil
}

// SessionID returns the default conversation's persisted session ID, or "".
func (r *Registry) SessionID() string {
	if h := r.defaultHandle(); h != nil {
		return h.SessionID
	}
	return ""
}

// TotalInputTokens returns the default conversation's input token count.
func (r *Registry) TotalInputTokens() int {
	if h := r.defaultHandle(); h != nil {
		return h.TotalInputTokens()
	}
	return 0
}

// TotalOutputTokens returns the default conversation's output token count.
func (r *Registry) TotalOutputTokens() int {
	if h := r.defaultHandle(); h != nil {
		return h.TotalOutputTokens()
	}
	return 0
}

// ModelName returns the default conversation's model name, or "".
func (r *Registry) ModelName() string {
	if h := r.defaultHandle(); h != nil {
		return h.ModelName()
	}
	return ""
}

// ContextWindow returns the default conversation's context window, or 0.
func (r *Registry) ContextWindow() int {
	if h := r.defaultHandle(); h != nil {
		return h.ContextWindow()
	}
	return 0
}

// ResetUsage resets token counters on the default handle.
func (r *Registry) ResetUsage() {
	if h := r.defaultHandle(); h != nil {
		h.ResetUsage()
	}
}

// SwitchModel switches the model on a conversation's session. An empty
// conversationID targets the default handle. Returns false when there is no
// live session or the backend refuses.
func (r *Registry) SwitchModel(model, conversationID string) bool {
	var h *Handle
	if conversationID == "" {
		h = r.defaultHandle()
	} else {
		h = r.GetHandle(conversationID)
	}
	if h == nil || h.Session == nil {
		return false
	}
	if !h.Session.SwitchModel(model) {
		return false
	}
	h.forceModelName(model)
	return true
}
