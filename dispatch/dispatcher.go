package dispatch

import (
	"strings"
	"time"

	"parley/core"
	"parley/logging"
	"parley/session"
	"parley/tracker"
)

// DefaultInterval is the minimum spacing between forwarded delta snapshots.
const DefaultInterval = 50 * time.Millisecond

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// Interval is the delta throttle spacing. Block starts and ends are
	// never throttled.
	Interval time.Duration
	// Trackers fed from tool events. Nil trackers are skipped.
	Agents  *tracker.AgentTracker
	Recipes *tracker.RecipeTracker
	ToolLog *tracker.ToolLog
	// Logging services.
	Logger logging.Logger
	// Clock overrides time.Now for deterministic throttle tests.
	Clock func() time.Time
}

// Dispatcher builds the per-turn callback closures that drive a StreamSink.
//
// One dispatcher serves one frontend surface; Wire is called once per
// conversation handle (or again to rebind after the sink changes). The
// closures run on the engine worker goroutine of their handle, so per-turn
// state needs no locking; handles never share a turn.
type Dispatcher struct {
	sink     core.StreamSink
	interval time.Duration
	agents   *tracker.AgentTracker
	recipes  *tracker.RecipeTracker
	toolLog  *tracker.ToolLog
	logger   logging.Logger
	clock    func() time.Time
}

// New constructs a Dispatcher for sink with optional overrides. A nil sink
// is replaced with a no-op sink so wiring is always safe.
func New(sink core.StreamSink, optFns ...func(o *Options)) *Dispatcher {
	opts := Options{
		Interval: DefaultInterval,
		Logger:   logging.NoOpLogger{},
		Clock:    time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if sink == nil {
		sink = core.BaseSink{}
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Dispatcher{
		sink:     sink,
		interval: opts.Interval,
		agents:   opts.Agents,
		recipes:  opts.Recipes,
		toolLog:  opts.ToolLog,
		logger:   opts.Logger,
		clock:    opts.Clock,
	}
}

// turnState is the streaming accumulator for one content block sequence.
// Touched only from the handle's engine worker goroutine.
type turnState struct {
	accumulated  string
	lastForward  time.Time
	blockStarted bool
	toolCount    int
}

// Wire binds fresh streaming closures onto h. Any previously bound closures
// are replaced; call between turns, never while a turn is in flight. The
// accumulator is rebuilt on every execution start, so one wiring serves many
// turns without carrying state between them.
func (d *Dispatcher) Wire(h *session.Handle) {
	t := &turnState{}

	h.OnExecutionStart = func() {
		// A turn that aborted mid-block must not leak blockStarted or
		// accumulated text into the next turn.
		*t = turnState{}
		if d.toolLog != nil {
			d.isolate("tool_log.reset", d.toolLog.ResetTurnCount)
		}
	}

	h.OnExecutionEnd = func() {
		d.logger.Debug("turn finished: %d tool call(s)", t.toolCount)
	}

	h.OnBlockStart = func(blockType string, index int) {
		t.accumulated = ""
		t.blockStarted = true
		t.lastForward = d.clock()
		d.isolate("sink.block_start", func() { d.sink.OnStreamBlockStart(blockType) })
	}

	h.OnBlockDelta = func(blockType, delta string) {
		t.accumulated += delta
		now := d.clock()
		if now.Sub(t.lastForward) < d.interval {
			return
		}
		t.lastForward = now
		snapshot := t.accumulated
		d.isolate("sink.block_delta", func() { d.sink.OnStreamBlockDelta(blockType, snapshot) })
	}

	h.OnBlockEnd = func(blockType, text string) {
		hadStart := t.blockStarted
		t.blockStarted = false
		t.accumulated = ""
		d.isolate("sink.block_end", func() { d.sink.OnStreamBlockEnd(blockType, text, hadStart) })
	}

	h.OnToolPre = func(name string, input map[string]any) {
		t.toolCount++
		if d.toolLog != nil {
			d.isolate("tool_log.start", func() { d.toolLog.OnToolStart(name, input) })
		}
		if d.agents != nil && tracker.IsDelegateTool(name) {
			d.isolate("agents.start", func() {
				d.agents.OnDelegateStart(
					tracker.MakeDelegateKey(input),
					tracker.DelegateAgent(input),
					tracker.DelegateInstruction(input),
				)
			})
		}
		if d.recipes != nil && name == tracker.RecipeToolName {
			d.isolate("recipes.observe", func() { d.recipes.ObserveTool(name, input) })
		}
		d.isolate("sink.tool_start", func() { d.sink.OnStreamToolStart(name, input) })
	}

	h.OnToolPost = func(name string, input map[string]any, result string) {
		status := toolStatus(result)
		if d.toolLog != nil {
			d.isolate("tool_log.end", func() { d.toolLog.OnToolEnd(name, status) })
		}
		if d.agents != nil && tracker.IsDelegateTool(name) {
			d.isolate("agents.complete", func() {
				d.agents.OnDelegateComplete(tracker.MakeDelegateKey(input), result, status)
			})
		}
		d.isolate("sink.tool_end", func() { d.sink.OnStreamToolEnd(name, input, result) })
	}

	h.OnUsageUpdate = func() {
		d.isolate("sink.usage", d.sink.OnStreamUsageUpdate)
	}
}

// toolStatus derives a tracker status from the stringified result. The
// engine reports tool failures as an "Error"-prefixed result rather than a
// separate event.
func toolStatus(result string) string {
	if strings.HasPrefix(result, "Error") {
		return "failed"
	}
	return "completed"
}

// isolate runs fn and converts a panic into a debug log entry. One broken
// consumer must not take down the fan-out or the worker goroutine.
func (d *Dispatcher) isolate(label string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Debug("dispatch %s panicked: %v", label, r)
		}
	}()
	fn()
}
