package tracker

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"parley/internal/textutil"
)

// maxLogEntries bounds the rolling buffer of tool call records.
const maxLogEntries = 200

// ToolEntry is a single tool call record.
type ToolEntry struct {
	ToolName  string
	Summary   string // key args, truncated
	Timestamp time.Time
	Duration  time.Duration // zero until completion
	Status    string        // "running", "completed", "failed"
}

func baseName(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

func inputString(input map[string]any, key string) string {
	s, _ := input[key].(string)
	return s
}

func inputInt(input map[string]any, key string) (int, bool) {
	switch v := input[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// SummarizeToolInput extracts a short, human-readable summary of the key
// arguments of a tool call for display.
func SummarizeToolInput(toolName string, input map[string]any) string {
	if len(input) == 0 {
		return ""
	}

	switch toolName {
	case "read_file":
		short := baseName(inputString(input, "file_path"))
		offset, hasOffset := inputInt(input, "offset")
		limit, hasLimit := inputInt(input, "limit")
		switch {
		case hasOffset && offset != 0 && hasLimit && limit != 0:
			return fmt.Sprintf("%s (lines %d-%d)", short, offset, offset+limit)
		case hasOffset && offset != 0:
			return fmt.Sprintf("%s (from line %d)", short, offset)
		default:
			return short
		}
	case "write_file", "edit_file":
		return baseName(inputString(input, "file_path"))
	case "grep":
		pattern := textutil.TruncateRaw(inputString(input, "pattern"), 40)
		if path := inputString(input, "path"); path != "" {
			return fmt.Sprintf("%q in %s", pattern, path)
		}
		return fmt.Sprintf("%q", pattern)
	case "glob":
		return textutil.TruncateRaw(inputString(input, "pattern"), 50)
	case "bash":
		return textutil.TruncateRaw(inputString(input, "command"), 60)
	case "delegate", "task":
		agent := inputString(input, "agent")
		instr := textutil.TruncateRaw(inputString(input, "instruction"), 40)
		if instr != "" {
			return agent + ": " + instr + "..."
		}
		return agent
	case "web_search":
		return textutil.TruncateRaw(inputString(input, "query"), 50)
	case "web_fetch":
		return textutil.Truncate(inputString(input, "url"), 60)
	case "LSP":
		return inputString(input, "operation") + " " + baseName(inputString(input, "file_path"))
	case "todo":
		return inputString(input, "action")
	}

	// Generic fallback: first short string value, in stable key order.
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v, ok := input[k].(string); ok && v != "" {
			return textutil.TruncateRaw(v, 50)
		}
	}
	return ""
}

// ToolLog tracks tool calls for the live introspection panel.
//
// Maintains a rolling buffer of up to maxLogEntries calls with per-turn
// counting and aggregate statistics. Captures tool name + key args, not
// full payloads.
type ToolLog struct {
	mu         sync.Mutex
	entries    []*ToolEntry
	turnCount  int
	totalCount int
	now        func() time.Time
}

// NewToolLog constructs an empty log.
func NewToolLog() *ToolLog {
	return &ToolLog{now: time.Now}
}

// OnToolStart records the start of a tool invocation.
func (l *ToolLog) OnToolStart(toolName string, input map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, &ToolEntry{
		ToolName:  toolName,
		Summary:   SummarizeToolInput(toolName, input),
		Timestamp: l.now(),
		Status:    "running",
	})
	l.turnCount++
	l.totalCount++
	if len(l.entries) > maxLogEntries {
		l.entries = l.entries[len(l.entries)-maxLogEntries:]
	}
}

// OnToolEnd marks the most recent running entry for toolName as done.
func (l *ToolLog) OnToolEnd(toolName, status string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		entry := l.entries[i]
		if entry.ToolName == toolName && entry.Status == "running" {
			entry.Status = status
			entry.Duration = l.now().Sub(entry.Timestamp)
			return
		}
	}
}

// ResetTurnCount zeroes the per-turn counter at the start of a new turn.
func (l *ToolLog) ResetTurnCount() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turnCount = 0
}

// TurnCount returns the number of tool calls in the current turn.
func (l *ToolLog) TurnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.turnCount
}

// TotalCount returns the number of tool calls across the whole session.
func (l *ToolLog) TotalCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalCount
}

// Entries returns a snapshot copy of the buffered records.
func (l *ToolLog) Entries() []ToolEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ToolEntry, len(l.entries))
	for i, e := range l.entries {
		out[i] = *e
	}
	return out
}

// Clear resets all state.
func (l *ToolLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.turnCount = 0
	l.totalCount = 0
}

func formatDuration(d time.Duration) string {
	ms := d.Seconds() * 1000
	if ms < 1000 {
		return fmt.Sprintf("%.0fms", ms)
	}
	return fmt.Sprintf("%.1fs", ms/1000)
}

// FormatLiveLog renders the most recent lastN entries, one per line.
func (l *ToolLog) FormatLiveLog(lastN int) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return "No tool calls yet"
	}
	start := 0
	if len(l.entries) > lastN {
		start = len(l.entries) - lastN
	}
	var lines []string
	for _, entry := range l.entries[start:] {
		var dur string
		switch {
		case entry.Status == "running":
			dur = "running"
		case entry.Status == "failed":
			dur = "failed"
		case entry.Duration > 0:
			dur = formatDuration(entry.Duration)
		}
		lines = append(lines, fmt.Sprintf("%s %-12s %s  %s",
			entry.Timestamp.Format("15:04:05"), entry.ToolName,
			textutil.TruncateRaw(entry.Summary, 60), dur))
	}
	return strings.Join(lines, "\n")
}

// FormatFullLog renders every buffered entry.
func (l *ToolLog) FormatFullLog() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return "No tool calls in this session."
	}
	lines := []string{fmt.Sprintf("Tool Log (%d calls):", len(l.entries)), ""}
	for _, entry := range l.entries {
		var dur string
		if entry.Duration > 0 {
			dur = " (" + formatDuration(entry.Duration) + ")"
		}
		icon, ok := statusIcons[entry.Status]
		if !ok {
			icon = " "
		}
		lines = append(lines, fmt.Sprintf("  %s %s %s%s", icon, entry.ToolName, entry.Summary, dur))
	}
	return strings.Join(lines, "\n")
}

// FormatStats renders aggregate per-tool call counts with histogram bars.
func (l *ToolLog) FormatStats() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return "No tool calls in this session."
	}

	counts := make(map[string]int)
	var totalTime time.Duration
	for _, entry := range l.entries {
		counts[entry.ToolName]++
		totalTime += entry.Duration
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > 15 {
		names = names[:15]
	}

	lines := []string{fmt.Sprintf("Tool Statistics (%d total calls):", l.totalCount), ""}
	for _, name := range names {
		count := counts[name]
		barLen := count
		if barLen > 30 {
			barLen = 30
		}
		lines = append(lines, fmt.Sprintf("  %-14s %s %d", name, strings.Repeat("█", barLen), count))
	}
	lines = append(lines, "")
	if totalTime > 0 {
		lines = append(lines, fmt.Sprintf("  Total tool time: %.1fs", totalTime.Seconds()))
	}
	lines = append(lines, fmt.Sprintf("  This turn: %d calls", l.turnCount))
	return strings.Join(lines, "\n")
}
