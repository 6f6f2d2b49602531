// Package webbridge delivers sink calls to a browser as JSON frames over a
// WebSocket connection. A single write pump goroutine owns the connection;
// sink calls marshal a frame and hand it to the pump through a bounded
// channel, dropping on saturation so a slow browser never stalls the engine
// worker.
package webbridge

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"parley/core"
	"parley/logging"
)

const (
	defaultSendBuffer = 256
	writeTimeout      = 10 * time.Second
)

// Frame is the wire format of a single sink call.
type Frame struct {
	Type      string         `json:"type"`
	BlockType string         `json:"block_type,omitempty"`
	Text      string         `json:"text,omitempty"`
	HadStart  bool           `json:"had_start,omitempty"`
	Tool      string         `json:"tool,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	Result    string         `json:"result,omitempty"`
	Message   string         `json:"message,omitempty"`
	Label     string         `json:"label,omitempty"`
	Active    bool           `json:"active,omitempty"`
}

// Frame type values.
const (
	FrameStreamStart      = "stream_start"
	FrameStreamDelta      = "stream_delta"
	FrameStreamEnd        = "stream_end"
	FrameToolStart        = "tool_start"
	FrameToolEnd          = "tool_end"
	FrameUsage            = "usage"
	FrameUserMessage      = "user_message"
	FrameAssistantMessage = "assistant_message"
	FrameError            = "error"
	FrameProcessing       = "processing"
)

// Conn is the subset of *websocket.Conn the sink writes through.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// Options holds dependency overrides passed to New().
type Options struct {
	// SendBuffer bounds the number of frames queued for the write pump.
	SendBuffer int
	// Logging services.
	Logger logging.Logger
}

// Sink serializes DisplaySink calls onto a WebSocket connection.
type Sink struct {
	conn     Conn
	sendCh   chan []byte
	done     chan struct{}
	once     sync.Once
	logger   logging.Logger
	pumpDone chan struct{}
}

var _ core.DisplaySink = (*Sink)(nil)

// New constructs a Sink over conn and starts its write pump. Close must be
// called to stop the pump and close the connection.
func New(conn Conn, optFns ...func(o *Options)) *Sink {
	opts := Options{SendBuffer: defaultSendBuffer, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	s := &Sink{
		conn:     conn,
		sendCh:   make(chan []byte, opts.SendBuffer),
		done:     make(chan struct{}),
		logger:   opts.Logger,
		pumpDone: make(chan struct{}),
	}
	go s.writePump()
	return s
}

// Done is closed when the write pump exits, whether through Close or a
// write failure. Connection handlers use it to end their read loops.
func (s *Sink) Done() <-chan struct{} { return s.pumpDone }

// Close stops the write pump and closes the connection. Safe to call more
// than once; frames posted after Close are dropped.
func (s *Sink) Close() {
	s.once.Do(func() { close(s.done) })
	<-s.pumpDone
}

func (s *Sink) writePump() {
	defer func() {
		s.once.Do(func() { close(s.done) })
		s.conn.Close()
		close(s.pumpDone)
	}()
	for {
		select {
		case data := <-s.sendCh:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("webbridge write failed: %v", err)
				return
			}
		case <-s.done:
			return
		}
	}
}

// send marshals and queues a frame, dropping it when the pump is saturated
// or gone.
func (s *Sink) send(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		s.logger.Debug("webbridge marshal failed: %v", err)
		return
	}
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.sendCh <- data:
	default:
		s.logger.Debug("webbridge frame dropped: %s", f.Type)
	}
}

func (s *Sink) OnStreamBlockStart(blockType string) {
	s.send(Frame{Type: FrameStreamStart, BlockType: blockType})
}

func (s *Sink) OnStreamBlockDelta(blockType, text string) {
	s.send(Frame{Type: FrameStreamDelta, BlockType: blockType, Text: text})
}

func (s *Sink) OnStreamBlockEnd(blockType, text string, hadStart bool) {
	s.send(Frame{Type: FrameStreamEnd, BlockType: blockType, Text: text, HadStart: hadStart})
}

func (s *Sink) OnStreamToolStart(name string, input map[string]any) {
	s.send(Frame{Type: FrameToolStart, Tool: name, Input: input})
}

func (s *Sink) OnStreamToolEnd(name string, input map[string]any, result string) {
	s.send(Frame{Type: FrameToolEnd, Tool: name, Result: result})
}

func (s *Sink) OnStreamUsageUpdate() {
	s.send(Frame{Type: FrameUsage})
}

func (s *Sink) AddUserMessage(text string) {
	s.send(Frame{Type: FrameUserMessage, Text: text})
}

func (s *Sink) AddAssistantMessage(text string) {
	s.send(Frame{Type: FrameAssistantMessage, Text: text})
}

func (s *Sink) ShowError(message string) {
	s.send(Frame{Type: FrameError, Message: message})
}

func (s *Sink) StartProcessing(label string) {
	s.send(Frame{Type: FrameProcessing, Active: true, Label: label})
}

func (s *Sink) FinishProcessing() {
	s.send(Frame{Type: FrameProcessing})
}
