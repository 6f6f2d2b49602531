package tracker

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeToolInput(t *testing.T) {
	tests := []struct {
		tool  string
		input map[string]any
		want  string
	}{
		{"read_file", map[string]any{"file_path": "/a/b/main.go"}, "main.go"},
		{"read_file", map[string]any{"file_path": "/a/b/main.go", "offset": 10, "limit": 20}, "main.go (lines 10-30)"},
		{"read_file", map[string]any{"file_path": "/a/b/main.go", "offset": float64(5)}, "main.go (from line 5)"},
		{"write_file", map[string]any{"file_path": "/x/y.txt"}, "y.txt"},
		{"grep", map[string]any{"pattern": "TODO", "path": "src"}, `"TODO" in src`},
		{"grep", map[string]any{"pattern": "TODO"}, `"TODO"`},
		{"bash", map[string]any{"command": "ls -la"}, "ls -la"},
		{"delegate", map[string]any{"agent": "zen", "instruction": "go"}, "zen: go..."},
		{"delegate", map[string]any{"agent": "zen"}, "zen"},
		{"todo", map[string]any{"action": "add"}, "add"},
		{"LSP", map[string]any{"operation": "hover", "file_path": "/p/q.go"}, "hover q.go"},
		{"mystery", map[string]any{"alpha": "first"}, "first"},
		{"mystery", nil, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SummarizeToolInput(tt.tool, tt.input), "%s %v", tt.tool, tt.input)
	}
}

func TestToolLog_StartEndPairing(t *testing.T) {
	l := NewToolLog()
	now := time.Now()
	l.now = func() time.Time { return now }

	l.OnToolStart("bash", map[string]any{"command": "ls"})
	l.OnToolStart("bash", map[string]any{"command": "pwd"})

	now = now.Add(50 * time.Millisecond)
	l.OnToolEnd("bash", "completed")

	entries := l.Entries()
	require.Len(t, entries, 2)
	// Reverse scan: the most recent running entry was closed first.
	assert.Equal(t, "running", entries[0].Status)
	assert.Equal(t, "completed", entries[1].Status)
	assert.Equal(t, 50*time.Millisecond, entries[1].Duration)

	// Ending a tool that never started is a no-op.
	l.OnToolEnd("grep", "completed")
}

func TestToolLog_Counts(t *testing.T) {
	l := NewToolLog()
	l.OnToolStart("bash", nil)
	l.OnToolStart("grep", nil)
	assert.Equal(t, 2, l.TurnCount())
	assert.Equal(t, 2, l.TotalCount())

	l.ResetTurnCount()
	l.OnToolStart("bash", nil)
	assert.Equal(t, 1, l.TurnCount())
	assert.Equal(t, 3, l.TotalCount())
}

func TestToolLog_RollingBuffer(t *testing.T) {
	l := NewToolLog()
	for i := 0; i < maxLogEntries+25; i++ {
		l.OnToolStart("bash", map[string]any{"command": fmt.Sprintf("cmd-%d", i)})
	}
	entries := l.Entries()
	require.Len(t, entries, maxLogEntries)
	assert.Equal(t, "cmd-25", entries[0].Summary, "oldest entries pruned")
	assert.Equal(t, maxLogEntries+25, l.TotalCount(), "total counter survives pruning")
}

func TestToolLog_Formatting(t *testing.T) {
	l := NewToolLog()
	assert.Equal(t, "No tool calls yet", l.FormatLiveLog(25))
	assert.Equal(t, "No tool calls in this session.", l.FormatStats())

	l.OnToolStart("bash", map[string]any{"command": "make"})
	l.OnToolEnd("bash", "completed")
	l.OnToolStart("grep", map[string]any{"pattern": "err"})
	l.OnToolEnd("grep", "failed")

	live := l.FormatLiveLog(1)
	assert.Contains(t, live, "grep")
	assert.NotContains(t, live, "bash", "live log window limits entries")

	full := l.FormatFullLog()
	assert.Contains(t, full, "Tool Log (2 calls):")
	assert.Contains(t, full, "✓ bash make")
	assert.Contains(t, full, "✗ grep")

	stats := l.FormatStats()
	assert.Contains(t, stats, "Tool Statistics (2 total calls):")
	assert.Contains(t, stats, "bash")
	assert.Contains(t, stats, "This turn: 2 calls")
}

func TestToolLog_Clear(t *testing.T) {
	l := NewToolLog()
	l.OnToolStart("bash", nil)
	l.Clear()
	assert.Empty(t, l.Entries())
	assert.Zero(t, l.TotalCount())
	assert.Zero(t, l.TurnCount())
}
