package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	parley "parley"
	"parley/bridge/teabridge"
	"parley/config"
	"parley/core"
	"parley/logging"
)

var (
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	thinkingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	toolStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// tuiDeps carries the pieces assembled after the program exists; the model
// only reads them once the program is running.
type tuiDeps struct {
	client *parley.Client
}

type tuiModel struct {
	deps     *tuiDeps
	viewport viewport.Model
	input    textarea.Model

	transcript []string
	liveType   string
	liveText   string
	busy       bool
	busyLabel  string
	toolNote   string
	ready      bool
}

func newTUIModel(deps *tuiDeps) *tuiModel {
	input := textarea.New()
	input.Placeholder = "Type a message (enter to send, ctrl+c to quit)"
	input.SetHeight(3)
	input.ShowLineNumbers = false
	input.Focus()
	return &tuiModel{deps: deps, input: input}
}

func (m *tuiModel) Init() tea.Cmd { return textarea.Blink }

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		inputHeight := m.input.Height() + 2
		m.viewport = viewport.New(msg.Width, msg.Height-inputHeight)
		m.input.SetWidth(msg.Width - 2)
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.busy {
				return m, nil
			}
			m.input.Reset()
			client := m.deps.client
			go func() {
				// Errors surface through the sink's ShowError path.
				_, _ = client.Send(context.Background(), text, "")
			}()
			return m, nil
		}

	case teabridge.UserMessageMsg:
		m.transcript = append(m.transcript, userStyle.Render("you: ")+msg.Text)
		m.refresh()
	case teabridge.StreamStartMsg:
		m.liveType = msg.BlockType
		m.liveText = ""
		m.refresh()
	case teabridge.StreamDeltaMsg:
		m.liveType = msg.BlockType
		m.liveText = msg.Text
		m.refresh()
	case teabridge.StreamEndMsg:
		m.liveText = ""
		m.liveType = ""
		m.transcript = append(m.transcript, renderBlock(msg.BlockType, msg.Text))
		m.refresh()
	case teabridge.ToolStartMsg:
		m.toolNote = msg.Name
		m.refresh()
	case teabridge.ToolEndMsg:
		m.toolNote = ""
		m.refresh()
	case teabridge.AssistantMessageMsg:
		// Final text already arrived through the stream end; nothing to add.
	case teabridge.ErrorMsg:
		m.transcript = append(m.transcript, errorStyle.Render("error: "+msg.Message))
		m.refresh()
	case teabridge.ProcessingMsg:
		m.busy = msg.Active
		m.busyLabel = msg.Label
		m.refresh()
	case teabridge.UsageMsg:
		m.refresh()
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func renderBlock(blockType, text string) string {
	if blockType == core.BlockTypeThinking {
		return thinkingStyle.Render(text)
	}
	return assistantStyle.Render(text)
}

func (m *tuiModel) refresh() {
	if !m.ready {
		return
	}
	var b strings.Builder
	for _, line := range m.transcript {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if m.liveText != "" {
		b.WriteString(renderBlock(m.liveType, m.liveText))
		b.WriteString("\n")
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m *tuiModel) statusLine() string {
	reg := m.deps.client.Registry()
	parts := []string{}
	if model := reg.ModelName(); model != "" {
		parts = append(parts, model)
	}
	parts = append(parts, fmt.Sprintf("in %d / out %d tok", reg.TotalInputTokens(), reg.TotalOutputTokens()))
	if m.busy {
		label := m.busyLabel
		if label == "" {
			label = "working"
		}
		parts = append(parts, label+"...")
	}
	if m.toolNote != "" {
		parts = append(parts, toolStyle.Render("tool: "+m.toolNote))
	}
	return statusStyle.Render(strings.Join(parts, " | "))
}

func (m *tuiModel) View() string {
	if !m.ready {
		return "starting..."
	}
	return m.viewport.View() + "\n" + m.statusLine() + "\n" + m.input.View()
}

// runTUI assembles the client around the Bubble Tea program and blocks
// until the user quits.
func runTUI(cfg *config.Config, eng core.Engine, logger logging.Logger) error {
	deps := &tuiDeps{}
	program := tea.NewProgram(newTUIModel(deps), tea.WithAltScreen())

	sink := teabridge.NewSink(program)
	client := parley.New(eng, func(o *parley.Options) {
		o.Sink = sink
		o.Logger = logger
		o.Interval = cfg.Throttle()
	})
	deps.client = client

	if _, err := client.StartSession(context.Background(), "", cfg.WorkingDir, cfg.Model); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer client.EndSession(context.Background(), "")

	_, err := program.Run()
	return err
}
