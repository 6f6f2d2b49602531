package webbridge

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	frames   []Frame
	failNext bool
	closed   bool
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext {
		return errors.New("broken pipe")
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) snapshot() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

func TestSink_WritesFramesInOrder(t *testing.T) {
	conn := &fakeConn{}
	s := New(conn)

	s.OnStreamBlockStart("text")
	s.OnStreamBlockDelta("text", "Hel")
	s.OnStreamBlockEnd("text", "Hello", true)
	s.OnStreamToolStart("bash", map[string]any{"command": "ls"})
	s.OnStreamUsageUpdate()

	require.Eventually(t, func() bool {
		return len(conn.snapshot()) == 5
	}, time.Second, 5*time.Millisecond)

	frames := conn.snapshot()
	assert.Equal(t, FrameStreamStart, frames[0].Type)
	assert.Equal(t, "Hel", frames[1].Text)
	assert.True(t, frames[2].HadStart)
	assert.Equal(t, "bash", frames[3].Tool)
	assert.Equal(t, "ls", frames[3].Input["command"])
	assert.Equal(t, FrameUsage, frames[4].Type)

	s.Close()
	assert.True(t, conn.closed)
}

func TestSink_WriteFailureStopsPump(t *testing.T) {
	conn := &fakeConn{failNext: true}
	s := New(conn)

	s.ShowError("nope")

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("pump did not exit after write failure")
	}
	assert.True(t, conn.closed)

	// Posts after pump death are dropped, not blocked.
	s.AddUserMessage("late")
	s.Close()
}

func TestSink_SaturationDrops(t *testing.T) {
	conn := &fakeConn{}
	// Tiny buffer and a pump stalled behind the mutex.
	conn.mu.Lock()
	s := New(conn, func(o *Options) { o.SendBuffer = 1 })

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			s.OnStreamBlockDelta("text", "x")
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("send blocked on saturated buffer")
	}
	conn.mu.Unlock()
	s.Close()
}
