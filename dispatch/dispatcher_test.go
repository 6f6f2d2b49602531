package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"parley/core"
	"parley/session"
	"parley/tracker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type sinkCall struct {
	kind     string
	text     string
	hadStart bool
}

// recordingSink captures every forwarded sink call in order.
type recordingSink struct {
	core.BaseSink
	mu    sync.Mutex
	calls []sinkCall

	panicOnDelta bool
}

func (s *recordingSink) record(c sinkCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
}

func (s *recordingSink) OnStreamBlockStart(blockType string) {
	s.record(sinkCall{kind: "start", text: blockType})
}

func (s *recordingSink) OnStreamBlockDelta(blockType, text string) {
	if s.panicOnDelta {
		panic("sink exploded")
	}
	s.record(sinkCall{kind: "delta", text: text})
}

func (s *recordingSink) OnStreamBlockEnd(blockType, text string, hadStart bool) {
	s.record(sinkCall{kind: "end", text: text, hadStart: hadStart})
}

func (s *recordingSink) OnStreamToolStart(name string, input map[string]any) {
	s.record(sinkCall{kind: "tool_start", text: name})
}

func (s *recordingSink) OnStreamToolEnd(name string, input map[string]any, result string) {
	s.record(sinkCall{kind: "tool_end", text: name})
}

func (s *recordingSink) OnStreamUsageUpdate() {
	s.record(sinkCall{kind: "usage"})
}

func (s *recordingSink) snapshot() []sinkCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sinkCall, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *recordingSink) ofKind(kind string) []sinkCall {
	var out []sinkCall
	for _, c := range s.snapshot() {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// fakeClock drives the throttle deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func wired(sink core.StreamSink, clock *fakeClock, optFns ...func(o *Options)) *session.Handle {
	h := session.NewHandle("conv-1")
	d := New(sink, append([]func(o *Options){func(o *Options) {
		if clock != nil {
			o.Clock = clock.Now
		}
	}}, optFns...)...)
	d.Wire(h)
	return h
}

// A rapid burst of small deltas collapses into at most one forwarded
// snapshot, and the block end always carries the complete final text.
func TestDispatcher_BurstCollapses(t *testing.T) {
	sink := &recordingSink{}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	h := wired(sink, clock)

	h.HandleStream(core.EventContentBlockStart, core.EventData{"block_type": "text"})
	for _, delta := range []string{"Hel", "lo ", "there"} {
		clock.Advance(10 * time.Millisecond)
		h.HandleStream(core.EventContentBlockDelta, core.EventData{"block_type": "text", "delta": delta})
	}
	h.HandleStream(core.EventContentBlockEnd, core.EventData{
		"block": map[string]any{"type": "text", "text": "Hello there"},
	})

	assert.LessOrEqual(t, len(sink.ofKind("delta")), 1)
	ends := sink.ofKind("end")
	require.Len(t, ends, 1)
	assert.Equal(t, "Hello there", ends[0].text)
	assert.True(t, ends[0].hadStart)
}

// Forwarded snapshots are spaced at least one interval apart and each one
// carries the full accumulated text, not an increment.
func TestDispatcher_ThrottleSpacingAndSnapshots(t *testing.T) {
	sink := &recordingSink{}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	h := wired(sink, clock)

	h.HandleStream(core.EventContentBlockStart, core.EventData{"block_type": "text"})

	clock.Advance(60 * time.Millisecond)
	h.HandleStream(core.EventContentBlockDelta, core.EventData{"block_type": "text", "delta": "aa"})
	clock.Advance(10 * time.Millisecond)
	h.HandleStream(core.EventContentBlockDelta, core.EventData{"block_type": "text", "delta": "bb"})
	clock.Advance(50 * time.Millisecond)
	h.HandleStream(core.EventContentBlockDelta, core.EventData{"block_type": "text", "delta": "cc"})

	deltas := sink.ofKind("delta")
	require.Len(t, deltas, 2)
	assert.Equal(t, "aa", deltas[0].text)
	assert.Equal(t, "aabbcc", deltas[1].text, "snapshot is cumulative")
}

// An end with no preceding start still delivers the final text, flagged so
// the sink can render the complete message instead of closing a live block.
func TestDispatcher_EndWithoutStart(t *testing.T) {
	sink := &recordingSink{}
	h := wired(sink, nil)

	h.HandleStream(core.EventContentBlockEnd, core.EventData{
		"block": map[string]any{"type": "text", "text": "whole message"},
	})

	ends := sink.ofKind("end")
	require.Len(t, ends, 1)
	assert.Equal(t, "whole message", ends[0].text)
	assert.False(t, ends[0].hadStart)

	// A second block with a proper start flips the flag back.
	h.HandleStream(core.EventContentBlockStart, core.EventData{"block_type": "text"})
	h.HandleStream(core.EventContentBlockEnd, core.EventData{
		"block": map[string]any{"type": "text", "text": "x"},
	})
	assert.True(t, sink.ofKind("end")[1].hadStart)
}

// Every emitted sequence is well formed: start, zero or more cumulative
// deltas, exactly one end per block.
func TestDispatcher_WellFormedSequence(t *testing.T) {
	sink := &recordingSink{}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	h := wired(sink, clock)

	for _, text := range []string{"first", "second"} {
		h.HandleStream(core.EventContentBlockStart, core.EventData{"block_type": "text"})
		clock.Advance(100 * time.Millisecond)
		h.HandleStream(core.EventContentBlockDelta, core.EventData{"block_type": "text", "delta": text})
		h.HandleStream(core.EventContentBlockEnd, core.EventData{
			"block": map[string]any{"type": "text", "text": text},
		})
	}

	var kinds []string
	for _, c := range sink.snapshot() {
		kinds = append(kinds, c.kind)
	}
	assert.Equal(t, []string{"start", "delta", "end", "start", "delta", "end"}, kinds)
}

func TestDispatcher_ToolFanOut(t *testing.T) {
	sink := &recordingSink{}
	agents := tracker.NewAgentTracker()
	recipes := tracker.NewRecipeTracker()
	toolLog := tracker.NewToolLog()
	h := wired(sink, nil, func(o *Options) {
		o.Agents = agents
		o.Recipes = recipes
		o.ToolLog = toolLog
	})

	h.HandleStream(core.EventToolPre, core.EventData{
		"tool_name":  "bash",
		"tool_input": map[string]any{"command": "ls"},
	})
	h.HandleStream(core.EventToolPost, core.EventData{
		"tool_name": "bash",
		"result":    "ok",
	})

	h.HandleStream(core.EventToolPre, core.EventData{
		"tool_name":  "delegate",
		"tool_input": map[string]any{"agent": "zen", "instruction": "explore"},
	})
	h.HandleStream(core.EventToolPost, core.EventData{
		"tool_name":  "delegate",
		"tool_input": map[string]any{"agent": "zen", "instruction": "explore"},
		"result":     "found it",
	})

	h.HandleStream(core.EventToolPre, core.EventData{
		"tool_name": "recipes",
		"tool_input": map[string]any{
			"action": "run", "recipe": "release", "steps": []any{"tag"},
		},
	})

	assert.Equal(t, 3, toolLog.TotalCount())
	assert.Equal(t, 1, agents.Total())
	assert.Equal(t, 1, agents.CompletedCount())
	require.NotNil(t, recipes.Current())
	assert.Equal(t, "release", recipes.Current().RecipeName)

	assert.Len(t, sink.ofKind("tool_start"), 3)
	assert.Len(t, sink.ofKind("tool_end"), 2)
}

// A turn aborted between start and end must not leak its block state into
// the next turn: a bare end after a fresh execution start reports hadStart
// false, exactly as if the handle were newly wired.
func TestDispatcher_AbortedTurnDoesNotLeakBlockState(t *testing.T) {
	sink := &recordingSink{}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	h := wired(sink, clock)

	// First turn dies after the block opened; no end ever arrives.
	h.HandleStream(core.EventExecutionStart, nil)
	h.HandleStream(core.EventContentBlockStart, core.EventData{"block_type": "text"})
	clock.Advance(100 * time.Millisecond)
	h.HandleStream(core.EventContentBlockDelta, core.EventData{"block_type": "text", "delta": "half"})

	// Second turn: the engine skips the start and only emits the end.
	h.HandleStream(core.EventExecutionStart, nil)
	h.HandleStream(core.EventContentBlockEnd, core.EventData{
		"block": map[string]any{"type": "text", "text": "whole"},
	})

	ends := sink.ofKind("end")
	require.Len(t, ends, 1)
	assert.Equal(t, "whole", ends[0].text)
	assert.False(t, ends[0].hadStart, "stale block state leaked across turns")
}

// An "Error"-prefixed tool result marks the call failed in the tool log and
// the delegation tree; anything else completes.
func TestDispatcher_ToolFailureStatus(t *testing.T) {
	sink := &recordingSink{}
	agents := tracker.NewAgentTracker()
	toolLog := tracker.NewToolLog()
	h := wired(sink, nil, func(o *Options) {
		o.Agents = agents
		o.ToolLog = toolLog
	})

	input := map[string]any{"agent": "zen", "instruction": "explore"}
	h.HandleStream(core.EventToolPre, core.EventData{"tool_name": "delegate", "tool_input": input})
	h.HandleStream(core.EventToolPost, core.EventData{
		"tool_name":  "delegate",
		"tool_input": input,
		"result":     "Error: agent crashed",
	})

	assert.Equal(t, 1, agents.FailedCount())
	assert.Zero(t, agents.CompletedCount())
	require.Len(t, toolLog.Entries(), 1)
	assert.Equal(t, "failed", toolLog.Entries()[0].Status)

	// The sink still receives the raw result either way.
	require.Len(t, sink.ofKind("tool_end"), 1)
}

func TestDispatcher_ExecutionResetsTurnState(t *testing.T) {
	sink := &recordingSink{}
	toolLog := tracker.NewToolLog()
	h := wired(sink, nil, func(o *Options) { o.ToolLog = toolLog })

	h.HandleStream(core.EventToolPre, core.EventData{"tool_name": "bash"})
	require.Equal(t, 1, toolLog.TurnCount())

	h.HandleStream(core.EventExecutionStart, nil)
	assert.Zero(t, toolLog.TurnCount())
	assert.Equal(t, 1, toolLog.TotalCount())
	h.HandleStream(core.EventExecutionEnd, nil)
}

// A panicking sink must not suppress tracker updates or later events.
func TestDispatcher_PanicIsolation(t *testing.T) {
	sink := &recordingSink{panicOnDelta: true}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	toolLog := tracker.NewToolLog()
	h := wired(sink, clock, func(o *Options) { o.ToolLog = toolLog })

	h.HandleStream(core.EventContentBlockStart, core.EventData{"block_type": "text"})
	clock.Advance(100 * time.Millisecond)
	h.HandleStream(core.EventContentBlockDelta, core.EventData{"block_type": "text", "delta": "boom"})
	h.HandleStream(core.EventContentBlockEnd, core.EventData{
		"block": map[string]any{"type": "text", "text": "boom"},
	})
	h.HandleStream(core.EventToolPre, core.EventData{"tool_name": "bash"})

	require.Len(t, sink.ofKind("end"), 1, "end still delivered after delta panic")
	assert.Equal(t, 1, toolLog.TotalCount())
}

func TestDispatcher_UsageForwarded(t *testing.T) {
	sink := &recordingSink{}
	h := wired(sink, nil)

	h.HandleStream(core.EventLLMResponse, core.EventData{
		"usage": map[string]any{"input": 10, "output": 5},
	})

	assert.Len(t, sink.ofKind("usage"), 1)
	assert.Equal(t, 10, h.TotalInputTokens())
}

func TestDispatcher_NilSinkIsSafe(t *testing.T) {
	d := New(nil)
	h := session.NewHandle("conv-1")
	d.Wire(h)
	h.HandleStream(core.EventContentBlockStart, core.EventData{"block_type": "text"})
	h.HandleStream(core.EventContentBlockEnd, core.EventData{
		"block": map[string]any{"type": "text", "text": "x"},
	})
}
