package core

import "github.com/google/uuid"

// Raw event names emitted by an engine. The payload shape for each is
// documented on the corresponding EventData accessor usage in the session
// package, which owns the translation table.
const (
	EventContentBlockStart = "content_block:start"
	EventContentBlockDelta = "content_block:delta"
	EventContentBlockEnd   = "content_block:end"
	EventToolPre           = "tool:pre"
	EventToolPost          = "tool:post"
	EventExecutionStart    = "execution:start"
	EventExecutionEnd      = "execution:end"
	EventLLMResponse       = "llm:response"
)

// Block types produced by the translation layer. Engines may emit
// "reasoning" for thinking blocks; translation normalizes it to
// BlockTypeThinking.
const (
	BlockTypeText     = "text"
	BlockTypeThinking = "thinking"
)

// EventData is the loosely typed payload attached to a raw engine event.
// Accessors return zero values for missing or mistyped fields so the
// translation layer never has to branch on payload shape errors.
type EventData map[string]any

// String returns the named field as a string.
func (d EventData) String(key string) string {
	v, _ := d[key].(string)
	return v
}

// Int returns the named field as an int, accepting float64 for payloads that
// passed through JSON decoding.
func (d EventData) Int(key string) int {
	switch v := d[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Map returns the named field as a nested EventData.
func (d EventData) Map(key string) EventData {
	switch v := d[key].(type) {
	case EventData:
		return v
	case map[string]any:
		return EventData(v)
	default:
		return nil
	}
}

// FirstString returns the first non-empty string among the named fields.
// Delta payloads carry their text in one of delta/text/content depending on
// the engine version.
func (d EventData) FirstString(keys ...string) string {
	for _, k := range keys {
		if s := d.String(k); s != "" {
			return s
		}
	}
	return ""
}

// NewConversationID generates a fresh opaque conversation identifier.
func NewConversationID() string { return uuid.NewString() }
