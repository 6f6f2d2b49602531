package core

import "testing"

func TestEventData_Accessors(t *testing.T) {
	d := EventData{
		"block_type":  "text",
		"block_index": float64(2), // JSON-decoded number
		"count":       3,
		"block":       map[string]any{"type": "thinking", "thinking": "hmm"},
	}

	if got := d.String("block_type"); got != "text" {
		t.Errorf("String(block_type) = %q", got)
	}
	if got := d.String("missing"); got != "" {
		t.Errorf("String(missing) = %q, want empty", got)
	}
	if got := d.Int("block_index"); got != 2 {
		t.Errorf("Int(block_index) = %d, want 2", got)
	}
	if got := d.Int("count"); got != 3 {
		t.Errorf("Int(count) = %d, want 3", got)
	}
	if got := d.Int("block_type"); got != 0 {
		t.Errorf("Int on string field = %d, want 0", got)
	}

	block := d.Map("block")
	if block == nil || block.String("type") != "thinking" {
		t.Fatalf("Map(block) malformed: %+v", block)
	}
	if d.Map("block_type") != nil {
		t.Error("Map on string field should be nil")
	}
}

func TestEventData_FirstString(t *testing.T) {
	d := EventData{"delta": "", "text": "chunk", "content": "ignored"}
	if got := d.FirstString("delta", "text", "content"); got != "chunk" {
		t.Errorf("FirstString = %q, want chunk", got)
	}
	if got := (EventData{}).FirstString("delta", "text"); got != "" {
		t.Errorf("FirstString on empty = %q, want empty", got)
	}
}

func TestNewConversationID_Uniqueness(t *testing.T) {
	a := NewConversationID()
	b := NewConversationID()
	if a == "" || a == b {
		t.Error("Expected unique non-empty IDs")
	}
}
