package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/core"
)

type capturingSink struct {
	core.BaseSink
	mu     sync.Mutex
	events []string
}

func (s *capturingSink) add(e string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *capturingSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	copy(out, s.events)
	return out
}

func (s *capturingSink) OnStreamBlockStart(blockType string) { s.add("start:" + blockType) }
func (s *capturingSink) OnStreamBlockDelta(bt, text string)  { s.add("delta:" + text) }
func (s *capturingSink) OnStreamBlockEnd(bt, text string, hadStart bool) {
	s.add("end:" + text)
}
func (s *capturingSink) AddUserMessage(text string) { s.add("user:" + text) }
func (s *capturingSink) ShowError(message string)   { s.add("error:" + message) }

// synchronousPoster runs frames inline, for testing the Bridge alone.
type synchronousPoster struct{ accept bool }

func (p synchronousPoster) Post(fn func()) bool {
	if p.accept {
		fn()
	}
	return p.accept
}

func TestBridge_ForwardsAllCalls(t *testing.T) {
	sink := &capturingSink{}
	b := New(synchronousPoster{accept: true}, sink)

	b.OnStreamBlockStart("text")
	b.OnStreamBlockDelta("text", "hi")
	b.OnStreamBlockEnd("text", "hi there", true)
	b.AddUserMessage("hello")
	b.ShowError("oops")

	assert.Equal(t, []string{"start:text", "delta:hi", "end:hi there", "user:hello", "error:oops"}, sink.snapshot())
}

func TestBridge_DroppedFramesAreSilent(t *testing.T) {
	sink := &capturingSink{}
	b := New(synchronousPoster{accept: false}, sink)

	// Must not block, panic or error.
	b.OnStreamBlockDelta("text", "lost")
	b.OnStreamUsageUpdate()
	assert.Empty(t, sink.snapshot())
}

func TestLoop_RunsFramesInOrder(t *testing.T) {
	loop := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		loop.Run(ctx)
	}()

	sink := &capturingSink{}
	b := New(loop, sink)
	b.OnStreamBlockStart("text")
	b.OnStreamBlockDelta("text", "a")
	b.OnStreamBlockEnd("text", "a", true)

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 3
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"start:text", "delta:a", "end:a"}, sink.snapshot())

	cancel()
	<-done
}

func TestLoop_SaturationDropsWithoutBlocking(t *testing.T) {
	loop := NewLoop(func(o *LoopOptions) { o.QueueSize = 2 })
	// Run is never started, so the queue fills up.
	assert.True(t, loop.Post(func() {}))
	assert.True(t, loop.Post(func() {}))
	assert.False(t, loop.Post(func() {}), "third frame dropped, not blocked")
}

func TestLoop_PostAfterStopFails(t *testing.T) {
	loop := NewLoop()
	loop.Stop()
	assert.False(t, loop.Post(func() {}))

	// Run returns immediately on a stopped loop.
	loop.Run(context.Background())
}
