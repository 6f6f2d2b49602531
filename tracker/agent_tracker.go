package tracker

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"parley/internal/textutil"
)

// Delegation tool names recognized by IsDelegateTool.
var delegateToolNames = map[string]bool{
	"delegate": true,
	"task":     true,
}

// IsDelegateTool reports whether toolName spawns a sub-agent.
func IsDelegateTool(toolName string) bool { return delegateToolNames[toolName] }

// MakeDelegateKey derives a matching key from delegate tool input.
//
// The engine's live hooks expose no stable tool_use_id, so start and
// completion are correlated through a synthetic agent-name + instruction
// prefix key. Two identical concurrent delegate calls therefore collide;
// the tracker resolves them last-in-wins, which matches best-effort display
// semantics.
func MakeDelegateKey(input map[string]any) string {
	if input == nil {
		return ""
	}
	agent, _ := input["agent"].(string)
	instruction, _ := input["instruction"].(string)
	return agent + ":" + textutil.TruncateRaw(instruction, 100)
}

// DelegateAgent extracts the target agent name from delegate tool input.
func DelegateAgent(input map[string]any) string {
	if agent, _ := input["agent"].(string); agent != "" {
		return agent
	}
	return "unknown"
}

// DelegateInstruction extracts the instruction text from delegate tool input.
func DelegateInstruction(input map[string]any) string {
	instruction, _ := input["instruction"].(string)
	return instruction
}

// AgentNode is a single agent delegation in the tree.
type AgentNode struct {
	AgentName     string
	Instruction   string // truncated to 200 runes
	Status        string // "running", "completed", "failed"
	StartTime     time.Time
	EndTime       time.Time // zero while running
	ResultPreview string    // first 200 runes of the result
	Key           string    // synthesized correlation key
}

func (n *AgentNode) elapsed(now time.Time) time.Duration {
	if !n.EndTime.IsZero() {
		return n.EndTime.Sub(n.StartTime)
	}
	return now.Sub(n.StartTime)
}

// AgentTracker records agent delegations and renders a tree view.
//
// Entirely in-memory, nothing is persisted. It hooks into the dispatcher's
// tool fan-out for tools recognized by IsDelegateTool. Best-effort: unknown
// completion keys are silently skipped.
type AgentTracker struct {
	mu        sync.Mutex
	roots     []*AgentNode
	active    map[string]*AgentNode // key -> running node
	completed int
	failed    int
	now       func() time.Time
}

// NewAgentTracker constructs an empty tracker.
func NewAgentTracker() *AgentTracker {
	return &AgentTracker{active: make(map[string]*AgentNode), now: time.Now}
}

// OnDelegateStart records a new delegation.
func (t *AgentTracker) OnDelegateStart(key, agent, instruction string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if agent == "" {
		agent = "unknown"
	}
	node := &AgentNode{
		AgentName:   agent,
		Instruction: textutil.Truncate(instruction, 200),
		Status:      "running",
		StartTime:   t.now(),
		Key:         key,
	}
	t.roots = append(t.roots, node)
	if key != "" {
		t.active[key] = node
	}
}

// OnDelegateComplete marks a delegation as finished. Skips unknown keys.
func (t *AgentTracker) OnDelegateComplete(key, result, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	node, ok := t.active[key]
	if !ok {
		return
	}
	delete(t.active, key)
	node.Status = status
	node.EndTime = t.now()
	node.ResultPreview = textutil.Truncate(result, 200)
	if status == "completed" {
		t.completed++
	} else {
		t.failed++
	}
}

// Clear resets all tracking state.
func (t *AgentTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roots = nil
	t.active = make(map[string]*AgentNode)
	t.completed = 0
	t.failed = 0
}

// Total returns the number of delegations recorded.
func (t *AgentTracker) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.roots)
}

// RunningCount returns the number of delegations still in flight.
func (t *AgentTracker) RunningCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// CompletedCount returns the number of successfully finished delegations.
func (t *AgentTracker) CompletedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}

// FailedCount returns the number of failed delegations.
func (t *AgentTracker) FailedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

var statusIcons = map[string]string{
	"running":   "⟳",
	"completed": "✓",
	"failed":    "✗",
}

// FormatTree renders all delegations as an indented tree.
func (t *AgentTracker) FormatTree() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.roots) == 0 {
		return "No agent delegations in this session."
	}
	now := t.now()
	lines := []string{"Agent Delegations:"}
	for _, node := range t.roots {
		lines = append(lines, formatAgentNode(node, now))
	}
	return strings.Join(lines, "\n")
}

func formatAgentNode(node *AgentNode, now time.Time) string {
	icon, ok := statusIcons[node.Status]
	if !ok {
		icon = "?"
	}
	instr := textutil.Truncate(node.Instruction, 60)
	var timing string
	if !node.EndTime.IsZero() {
		timing = fmt.Sprintf("%.1fs", node.elapsed(now).Seconds())
	} else {
		timing = fmt.Sprintf("%.0fs running", node.elapsed(now).Seconds())
	}
	return fmt.Sprintf("  %s %s  %q  [%s]", icon, node.AgentName, instr, timing)
}

// FormatSummary renders a one-line summary of delegation activity.
func (t *AgentTracker) FormatSummary() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.roots) == 0 {
		return "No agent delegations."
	}
	parts := []string{fmt.Sprintf("%d agent(s)", len(t.roots))}
	if t.completed > 0 {
		parts = append(parts, fmt.Sprintf("%d completed", t.completed))
	}
	if t.failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", t.failed))
	}
	if len(t.active) > 0 {
		parts = append(parts, fmt.Sprintf("%d running", len(t.active)))
	}
	var total time.Duration
	for _, node := range t.roots {
		if !node.EndTime.IsZero() {
			total += node.EndTime.Sub(node.StartTime)
		}
	}
	if total > 0 {
		parts = append(parts, fmt.Sprintf("%.1fs total", total.Seconds()))
	}
	return "Summary: " + strings.Join(parts, ", ")
}
