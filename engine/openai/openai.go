// Package openai implements a core.Engine over the OpenAI Chat Completions
// streaming API. Chat Completions has no content block structure, so each
// reply is presented as a single text block: a start on the first delta, an
// end with the accumulated text when the choice finishes.
package openai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"parley/core"
)

// defaultContextWindow is the context size reported for GPT-4o class models.
const defaultContextWindow = 128000

// Options configure the OpenAI engine. Fields mirror a subset of Chat
// Completion parameters intentionally kept minimal; extend via functional
// options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
}

// Engine creates and resumes OpenAI-backed engine sessions.
type Engine struct {
	client *openai.Client
	opts   Options

	mu       sync.Mutex
	sessions map[string]*Session
}

var _ core.Engine = (*Engine)(nil)

// New creates an OpenAI engine using the official client.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := openai.NewClient(clientOpts...)

	return &Engine{client: &client, opts: opts, sessions: make(map[string]*Session)}
}

// NewFromClient creates an OpenAI engine from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
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
		maxTok:   e.opts.MaxCompletionTokens,
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

// Session is one OpenAI-backed conversation. Execute must not be called
// concurrently; the session layer guarantees one turn at a time per handle.
type Session struct {
	client *openai.Client

	mu       sync.Mutex
	model    string
	maxTok   int64
	temp     float64
	onStream core.StreamFunc
	history  []openai.ChatCompletionMessageParamUnion
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
	s.history = append(s.history, openai.UserMessage(message))
	params := openai.ChatCompletionNewParams{
		Model:               s.model,
		Messages:            append([]openai.ChatCompletionMessageParamUnion(nil), s.history...),
		MaxCompletionTokens: openai.Int(s.maxTok),
		Temperature:         openai.Float(s.temp),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	model := s.model
	s.mu.Unlock()

	s.emit(core.EventExecutionStart, core.EventData{})
	defer s.emit(core.EventExecutionEnd, core.EventData{})

	stream := s.client.Chat.Completions.NewStreaming(ctx, params)
	var text strings.Builder
	var inputTokens, outputTokens int
	blockOpen := false

	for stream.Next() {
		chunk := stream.Current()
		if chunk.Usage.TotalTokens > 0 {
			inputTokens = int(chunk.Usage.PromptTokens)
			outputTokens = int(chunk.Usage.CompletionTokens)
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				if !blockOpen {
					blockOpen = true
					s.emit(core.EventContentBlockStart, core.EventData{
						"block_type":  core.BlockTypeText,
						"block_index": 0,
					})
				}
				text.WriteString(choice.Delta.Content)
				s.emit(core.EventContentBlockDelta, core.EventData{
					"block_type": core.BlockTypeText,
					"delta":      choice.Delta.Content,
				})
			}
			if choice.FinishReason != "" && blockOpen {
				blockOpen = false
				s.emit(core.EventContentBlockEnd, core.EventData{
					"block": map[string]any{
						"type": core.BlockTypeText,
						"text": text.String(),
					},
				})
			}
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("openai streaming error: %w", err)
	}
	if blockOpen {
		s.emit(core.EventContentBlockEnd, core.EventData{
			"block": map[string]any{
				"type": core.BlockTypeText,
				"text": text.String(),
			},
		})
	}

	s.emit(core.EventLLMResponse, core.EventData{
		"model": model,
		"usage": map[string]any{
			"input":  inputTokens,
			"output": outputTokens,
		},
	})

	final := text.String()
	s.mu.Lock()
	if final != "" {
		s.history = append(s.history, openai.AssistantMessage(final))
	}
	s.mu.Unlock()

	return final, nil
}

// Info implements core.EngineSession.
func (s *Session) Info() core.ProviderInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.ProviderInfo{Model: s.model, ContextWindow: defaultContextWindow}
}

// SwitchModel implements core.EngineSession; takes effect on the next turn.
func (s *Session) SwitchModel(model string) bool {
	if model == "" {
		return false
	}
	s.mu.Lock()
	s.model = model
	s.mu.Unlock()
	return true
}

// Close implements core.EngineSession. Chat Completions holds no remote
// conversation state, so closing only detaches the stream callback.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	s.onStream = nil
	s.mu.Unlock()
	return nil
}
