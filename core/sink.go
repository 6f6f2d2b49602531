package core

// StreamSink receives the dispatcher's throttled, ordered streaming output
// for one conversation. Implementations run on the engine worker goroutine
// and must hand off to their UI's own execution context without blocking the
// worker beyond a bounded cost. A UI-side failure must never propagate back
// into the worker; log and drop instead.
//
// Ordering contract per conversation: for each block type,
// OnStreamBlockStart, zero or more OnStreamBlockDelta calls, then exactly one
// OnStreamBlockEnd. Tool start/end pairs may interleave with content blocks.
// When the engine skipped the start event, OnStreamBlockEnd is the only call
// for that block and hadStart is false.
type StreamSink interface {
	OnStreamBlockStart(blockType string)
	OnStreamBlockDelta(blockType, text string)
	OnStreamBlockEnd(blockType, text string, hadStart bool)
	OnStreamToolStart(name string, input map[string]any)
	OnStreamToolEnd(name string, input map[string]any, result string)

	// OnStreamUsageUpdate signals that token counters changed. It carries no
	// payload; the sink re-reads current counters from the session handle, so
	// there is no ordering dependency against in-flight deltas.
	OnStreamUsageUpdate()
}

// DisplaySink extends StreamSink with the turn-boundary display hooks a
// frontend provides around message exchange.
type DisplaySink interface {
	StreamSink

	AddUserMessage(text string)
	AddAssistantMessage(text string)
	ShowError(text string)
	StartProcessing(label string)
	FinishProcessing()
}

// BaseSink is a no-op DisplaySink for embedding. Frontends override only the
// methods they care about; a missing callback is a compile-time-checkable
// no-op rather than a nil slot.
type BaseSink struct{}

// OnStreamBlockStart implements StreamSink.
func (BaseSink) OnStreamBlockStart(string) {}

// OnStreamBlockDelta implements StreamSink.
func (BaseSink) OnStreamBlockDelta(string, string) {}

// OnStreamBlockEnd implements StreamSink.
func (BaseSink) OnStreamBlockEnd(string, string, bool) {}

// OnStreamToolStart implements StreamSink.
func (BaseSink) OnStreamToolStart(string, map[string]any) {}

// OnStreamToolEnd implements StreamSink.
func (BaseSink) OnStreamToolEnd(string, map[string]any, string) {}

// OnStreamUsageUpdate implements StreamSink.
func (BaseSink) OnStreamUsageUpdate() {}

// AddUserMessage implements DisplaySink.
func (BaseSink) AddUserMessage(string) {}

// AddAssistantMessage implements DisplaySink.
func (BaseSink) AddAssistantMessage(string) {}

// ShowError implements DisplaySink.
func (BaseSink) ShowError(string) {}

// StartProcessing implements DisplaySink.
func (BaseSink) StartProcessing(string) {}

// FinishProcessing implements DisplaySink.
func (BaseSink) FinishProcessing() {}

var _ DisplaySink = BaseSink{}
