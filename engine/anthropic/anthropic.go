// Package anthropic implements a core.Engine over the Anthropic Messages
// streaming API.
package anthropic

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"

	"parley/core"
)

// defaultContextWindow is the context size reported for Claude models.
const defaultContextWindow = 200000

// Options configures the Anthropic engine (model id, max tokens,
// temperature, API key). Extend via functional options to preserve
// stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Engine creates and resumes Anthropic-backed engine sessions. Sessions are
// retained in memory so a conversation can be re-attached after its frontend
// handle was discarded.
type Engine struct {
	client *anthropic.Client
	opts   Options

	mu       sync.Mutex
	sessions map[string]*Session
}

var _ core.Engine = (*Engine)(nil)

// New creates an Anthropic engine using the official client.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Engine{client: &client, opts: opts, sessions: make(map[string]*Session)}
}

// NewFromClient creates an Anthropic engine from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Engine{client: client, opts: opts, sessions: make(map[string]*Session)}
}

// CreateSession implements core.Engine.
func (e *Engine) CreateSession(ctx context.Context, cfg core.SessionConfig) (core.EngineSession, string, error) {
	sessionID := uuid.NewString()
	sess := &Session{
		client:   e.client,
		model:    e.opts.Model,
		maxTok:   e.opts.MaxTokens,
		temp:     e.opts.Temperature,
		onStream: cfg.OnStream,
	}
	e.mu.Lock()
	e.sessions[sessionID] = sess
	e.mu.Unlock()
	return sess, sessionID, nil
}

// ResumeSession implements core.Engine. Only sessions created by this
// engine instance can be resumed; history lives in process memory.
func (e *Engine) ResumeSession(ctx context.Context, sessionID string, cfg core.SessionConfig) (core.EngineSession, string, error) {
	e.mu.Lock()
	sess, ok := e.sessions[sessionID]
	e.mu.Unlock()
	if !ok {
		return nil, "", fmt.Errorf("unknown session %q", sessionID)
	}
	sess.mu.Lock()
	sess.onStream = cfg.OnStream
	sess.mu.Unlock()
	return sess, sessionID, nil
}

// Session is one Anthropic-backed conversation. Execute must not be called
// concurrently; the session layer guarantees one turn at a time per handle.
type Session struct {
	client *anthropic.Client

	mu       sync.Mutex
	model    anthropic.Model
	maxTok   int64
	temp     float64
	onStream core.StreamFunc
	history  []anthropic.MessageParam
}

var _ core.EngineSession = (*Session)(nil)

func (s *Session) emit(event string, data core.EventData) {
	s.mu.Lock()
	fn := s.onStream
	s.mu.Unlock()
	if fn != nil {
		fn(event, data)
	}
}

// Execute implements core.EngineSession: one full streamed turn.
func (s *Session) Execute(ctx context.Context, message string) (string, error) {
	s.mu.Lock()
	s.history = append(s.history, anthropic.NewUserMessage(anthropic.NewTextBlock(message)))
	params := anthropic.MessageNewParams{
		Model:       s.model,
		Messages:    append([]anthropic.MessageParam(nil), s.history...),
		MaxTokens:   s.maxTok,
		Temperature: anthropic.Float(s.temp),
	}
	model := s.model
	s.mu.Unlock()

	s.emit(core.EventExecutionStart, core.EventData{})
	defer s.emit(core.EventExecutionEnd, core.EventData{})

	stream := s.client.Messages.NewStreaming(ctx, params)
	acc := anthropic.Message{}

	// Per-index block state for end events.
	blockTypes := make(map[int64]string)
	blockText := make(map[int64]*strings.Builder)

	for stream.Next() {
		event := stream.Current()
		if err := acc.Accumulate(event); err != nil {
			return "", fmt.Errorf("accumulate stream event: %w", err)
		}

		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			blockType := normalizeBlockType(string(ev.ContentBlock.Type))
			blockTypes[ev.Index] = blockType
			blockText[ev.Index] = &strings.Builder{}
			s.emit(core.EventContentBlockStart, core.EventData{
				"block_type":  blockType,
				"block_index": int(ev.Index),
			})
		case anthropic.ContentBlockDeltaEvent:
			var delta string
			switch ev.Delta.Type {
			case "text_delta":
				delta = ev.Delta.Text
			case "thinking_delta":
				delta = ev.Delta.Thinking
			}
			if delta == "" {
				continue
			}
			if b, ok := blockText[ev.Index]; ok {
				b.WriteString(delta)
			}
			s.emit(core.EventContentBlockDelta, core.EventData{
				"block_type": blockTypes[ev.Index],
				"delta":      delta,
			})
		case anthropic.ContentBlockStopEvent:
			text := ""
			if b, ok := blockText[ev.Index]; ok {
				text = b.String()
			}
			s.emit(core.EventContentBlockEnd, core.EventData{
				"block": map[string]any{
					"type": blockTypes[ev.Index],
					"text": text,
				},
			})
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("anthropic stream error: %w", err)
	}

	s.emit(core.EventLLMResponse, core.EventData{
		"model": string(model),
		"usage": map[string]any{
			"input":  int(acc.Usage.InputTokens),
			"output": int(acc.Usage.OutputTokens),
		},
	})

	var final strings.Builder
	for _, block := range acc.Content {
		if block.Type == "text" {
			final.WriteString(block.Text)
		}
	}
	text := final.String()

	s.mu.Lock()
	if text != "" {
		s.history = append(s.history, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text)))
	}
	s.mu.Unlock()

	return text, nil
}

// Info implements core.EngineSession.
func (s *Session) Info() core.ProviderInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.ProviderInfo{Model: string(s.model), ContextWindow: defaultContextWindow}
}

// SwitchModel implements core.EngineSession; takes effect on the next turn.
func (s *Session) SwitchModel(model string) bool {
	if model == "" {
		return false
	}
	s.mu.Lock()
	s.model = anthropic.Model(model)
	s.mu.Unlock()
	return true
}

// Close implements core.EngineSession. The Messages API holds no remote
// conversation state, so closing only detaches the stream callback.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	s.onStream = nil
	s.mu.Unlock()
	return nil
}

// normalizeBlockType maps provider block names onto the taxonomy.
func normalizeBlockType(t string) string {
	if t == "redacted_thinking" {
		return core.BlockTypeThinking
	}
	return t
}
