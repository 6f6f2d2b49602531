// Package teabridge delivers sink calls into a Bubble Tea program as typed
// messages. Program.Send is already safe to call from any goroutine, so no
// extra queueing layer sits in between; the Bubble Tea runtime is the
// frontend loop.
package teabridge

import (
	tea "github.com/charmbracelet/bubbletea"

	"parley/core"
)

// Sender is the subset of *tea.Program the sink needs.
type Sender interface {
	Send(msg tea.Msg)
}

// Messages delivered to the program's Update function.
type (
	// StreamStartMsg opens a live content block.
	StreamStartMsg struct {
		BlockType string
	}
	// StreamDeltaMsg carries the full accumulated text of the live block.
	StreamDeltaMsg struct {
		BlockType string
		Text      string
	}
	// StreamEndMsg closes a block with its final text. HadStart is false
	// when no start was observed and the text is the complete message.
	StreamEndMsg struct {
		BlockType string
		Text      string
		HadStart  bool
	}
	// ToolStartMsg announces a tool invocation.
	ToolStartMsg struct {
		Name  string
		Input map[string]any
	}
	// ToolEndMsg carries a tool's stringified result.
	ToolEndMsg struct {
		Name   string
		Input  map[string]any
		Result string
	}
	// UsageMsg signals that the handle's token counters changed.
	UsageMsg struct{}
	// UserMessageMsg echoes the user's submitted message.
	UserMessageMsg struct {
		Text string
	}
	// AssistantMessageMsg delivers a complete non-streamed reply.
	AssistantMessageMsg struct {
		Text string
	}
	// ErrorMsg surfaces a failure to the transcript.
	ErrorMsg struct {
		Message string
	}
	// ProcessingMsg toggles the busy indicator.
	ProcessingMsg struct {
		Active bool
		Label  string
	}
)

// Sink translates DisplaySink calls into Bubble Tea messages.
type Sink struct {
	sender Sender
}

var _ core.DisplaySink = (*Sink)(nil)

// NewSink constructs a Sink posting to sender, typically a *tea.Program.
func NewSink(sender Sender) *Sink {
	return &Sink{sender: sender}
}

func (s *Sink) OnStreamBlockStart(blockType string) {
	s.sender.Send(StreamStartMsg{BlockType: blockType})
}

func (s *Sink) OnStreamBlockDelta(blockType, text string) {
	s.sender.Send(StreamDeltaMsg{BlockType: blockType, Text: text})
}

func (s *Sink) OnStreamBlockEnd(blockType, text string, hadStart bool) {
	s.sender.Send(StreamEndMsg{BlockType: blockType, Text: text, HadStart: hadStart})
}

func (s *Sink) OnStreamToolStart(name string, input map[string]any) {
	s.sender.Send(ToolStartMsg{Name: name, Input: input})
}

func (s *Sink) OnStreamToolEnd(name string, input map[string]any, result string) {
	s.sender.Send(ToolEndMsg{Name: name, Input: input, Result: result})
}

func (s *Sink) OnStreamUsageUpdate() {
	s.sender.Send(UsageMsg{})
}

func (s *Sink) AddUserMessage(text string) {
	s.sender.Send(UserMessageMsg{Text: text})
}

func (s *Sink) AddAssistantMessage(text string) {
	s.sender.Send(AssistantMessageMsg{Text: text})
}

func (s *Sink) ShowError(message string) {
	s.sender.Send(ErrorMsg{Message: message})
}

func (s *Sink) StartProcessing(label string) {
	s.sender.Send(ProcessingMsg{Active: true, Label: label})
}

func (s *Sink) FinishProcessing() {
	s.sender.Send(ProcessingMsg{Active: false})
}
