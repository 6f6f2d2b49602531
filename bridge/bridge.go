package bridge

import (
	"parley/core"
	"parley/logging"
)

// Poster schedules work on a frontend loop.
type Poster interface {
	// Post schedules fn for execution on the frontend's context. It must
	// never block; it returns false when the frame was dropped because the
	// loop is saturated or stopped.
	Post(fn func()) bool
}

// PosterFunc adapts a function to the Poster interface.
type PosterFunc func(fn func()) bool

// Post implements Poster.
func (f PosterFunc) Post(fn func()) bool { return f(fn) }

// Options holds dependency overrides passed to New().
type Options struct {
	// Logging services.
	Logger logging.Logger
}

// Bridge adapts a DisplaySink onto a Poster: every sink call is wrapped in
// a closure and posted, so the wrapped sink only ever runs on the frontend
// loop and needs no internal locking. A dropped frame is never an error for
// the calling worker.
type Bridge struct {
	poster Poster
	sink   core.DisplaySink
	logger logging.Logger
}

var _ core.DisplaySink = (*Bridge)(nil)

// New constructs a Bridge delivering to sink through poster.
func New(poster Poster, sink core.DisplaySink, optFns ...func(o *Options)) *Bridge {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if sink == nil {
		sink = core.BaseSink{}
	}
	return &Bridge{poster: poster, sink: sink, logger: opts.Logger}
}

func (b *Bridge) post(label string, fn func()) {
	if !b.poster.Post(fn) {
		b.logger.Debug("ui frame dropped: %s", label)
	}
}

func (b *Bridge) OnStreamBlockStart(blockType string) {
	b.post("block_start", func() { b.sink.OnStreamBlockStart(blockType) })
}

func (b *Bridge) OnStreamBlockDelta(blockType, text string) {
	b.post("block_delta", func() { b.sink.OnStreamBlockDelta(blockType, text) })
}

func (b *Bridge) OnStreamBlockEnd(blockType, text string, hadStart bool) {
	b.post("block_end", func() { b.sink.OnStreamBlockEnd(blockType, text, hadStart) })
}

func (b *Bridge) OnStreamToolStart(name string, input map[string]any) {
	b.post("tool_start", func() { b.sink.OnStreamToolStart(name, input) })
}

func (b *Bridge) OnStreamToolEnd(name string, input map[string]any, result string) {
	b.post("tool_end", func() { b.sink.OnStreamToolEnd(name, input, result) })
}

func (b *Bridge) OnStreamUsageUpdate() {
	b.post("usage", func() { b.sink.OnStreamUsageUpdate() })
}

func (b *Bridge) AddUserMessage(text string) {
	b.post("user_message", func() { b.sink.AddUserMessage(text) })
}

func (b *Bridge) AddAssistantMessage(text string) {
	b.post("assistant_message", func() { b.sink.AddAssistantMessage(text) })
}

func (b *Bridge) ShowError(message string) {
	b.post("error", func() { b.sink.ShowError(message) })
}

func (b *Bridge) StartProcessing(label string) {
	b.post("start_processing", func() { b.sink.StartProcessing(label) })
}

func (b *Bridge) FinishProcessing() {
	b.post("finish_processing", func() { b.sink.FinishProcessing() })
}
