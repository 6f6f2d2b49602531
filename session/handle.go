package session

import (
	"sync"

	"parley/core"
	"parley/internal/textutil"
)

// maxToolResultLen bounds the stringified tool result forwarded to callbacks.
const maxToolResultLen = 2000

// Handle is the isolated per-conversation state bag, owned by the Registry
// and keyed by conversation ID.
//
// The engine's stream function is bound to HandleStream at session creation,
// so raw events dispatch to THIS handle's callbacks with zero cross-talk
// between concurrent conversations.
//
// The callback slots are rebound by the streaming dispatcher before every
// outbound message; the UI issues sends from its own control flow, so slots
// are never mutated while a turn is in flight. All slots are optional: a nil
// slot silently drops the event. Token counters are guarded by a mutex
// because they are written on the engine worker goroutine and read from UI
// contexts.
type Handle struct {
	ConversationID string

	// Session is the opaque engine session, exclusively owned by this handle.
	Session core.EngineSession

	// SessionID is the engine's persisted identifier, used for resumption.
	SessionID string

	// Streaming callback slots, bound per turn by the dispatcher.
	OnBlockStart     func(blockType string, index int)
	OnBlockDelta     func(blockType, delta string)
	OnBlockEnd       func(blockType, text string)
	OnToolPre        func(name string, input map[string]any)
	OnToolPost       func(name string, input map[string]any, result string)
	OnExecutionStart func()
	OnExecutionEnd   func()
	OnUsageUpdate    func()

	mu                sync.Mutex
	totalInputTokens  int
	totalOutputTokens int
	modelName         string
	contextWindow     int
}

// NewHandle creates an empty handle for the given conversation.
func NewHandle(conversationID string) *Handle {
	return &Handle{ConversationID: conversationID}
}

// TotalInputTokens returns the accumulated input token count since the last reset.
func (h *Handle) TotalInputTokens() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.totalInputTokens
}

// TotalOutputTokens returns the accumulated output token count since the last reset.
func (h *Handle) TotalOutputTokens() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.totalOutputTokens
}

// ModelName returns the display model name, if known.
func (h *Handle) ModelName() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.modelName
}

// ContextWindow returns the model's context window size, if known.
func (h *Handle) ContextWindow() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.contextWindow
}

// ResetUsage zeroes the token counters and clears model info.
func (h *Handle) ResetUsage() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.totalInputTokens = 0
	h.totalOutputTokens = 0
	h.modelName = ""
	h.contextWindow = 0
}

// setModelInfo records provider metadata. Empty values leave existing
// fields untouched.
func (h *Handle) setModelInfo(model string, contextWindow int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if model != "" {
		h.modelName = model
	}
	if contextWindow > 0 {
		h.contextWindow = contextWindow
	}
}

// forceModelName overwrites the model name, used after an explicit switch.
func (h *Handle) forceModelName(model string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.modelName = model
}

func (h *Handle) addUsage(input, output int, model string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.totalInputTokens += input
	h.totalOutputTokens += output
	if model != "" && h.modelName == "" {
		h.modelName = model
	}
}

// HandleStream translates raw engine events into typed calls on this
// handle's callback slots. It is a pure dispatch table: an event with no
// registered callback is silently dropped, and unknown events are ignored.
// Called on the engine's worker goroutine.
func (h *Handle) HandleStream(event string, data core.EventData) {
	switch event {
	case core.EventContentBlockStart:
		if h.OnBlockStart != nil {
			h.OnBlockStart(blockTypeOrText(data), data.Int("block_index"))
		}

	case core.EventContentBlockDelta:
		delta := data.FirstString("delta", "text", "content")
		if delta != "" && h.OnBlockDelta != nil {
			h.OnBlockDelta(blockTypeOrText(data), delta)
		}

	case core.EventContentBlockEnd:
		if h.OnBlockEnd == nil {
			return
		}
		block := data.Map("block")
		switch block.String("type") {
		case core.BlockTypeText:
			h.OnBlockEnd(core.BlockTypeText, block.String("text"))
		case core.BlockTypeThinking, "reasoning":
			h.OnBlockEnd(core.BlockTypeThinking, block.FirstString("thinking", "text"))
		}

	case core.EventToolPre:
		if h.OnToolPre != nil {
			h.OnToolPre(toolName(data), toolInput(data))
		}

	case core.EventToolPost:
		if h.OnToolPost != nil {
			result := textutil.TruncateRaw(textutil.Stringify(data["result"]), maxToolResultLen)
			h.OnToolPost(toolName(data), toolInput(data), result)
		}

	case core.EventExecutionStart:
		if h.OnExecutionStart != nil {
			h.OnExecutionStart()
		}

	case core.EventExecutionEnd:
		if h.OnExecutionEnd != nil {
			h.OnExecutionEnd()
		}

	case core.EventLLMResponse:
		usage := data.Map("usage")
		h.addUsage(usage.Int("input"), usage.Int("output"), data.String("model"))
		if h.OnUsageUpdate != nil {
			h.OnUsageUpdate()
		}
	}
}

func blockTypeOrText(data core.EventData) string {
	if bt := data.String("block_type"); bt != "" {
		return bt
	}
	return core.BlockTypeText
}

func toolName(data core.EventData) string {
	if name := data.String("tool_name"); name != "" {
		return name
	}
	return "unknown"
}

func toolInput(data core.EventData) map[string]any {
	if m := data.Map("tool_input"); m != nil {
		return m
	}
	return map[string]any{}
}
