package tracker

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"parley/internal/textutil"
)

// RecipeToolName is the tool whose calls feed the recipe tracker.
const RecipeToolName = "recipes"

// RecipeStep is a single step in a recipe pipeline.
type RecipeStep struct {
	Index          int    // 1-based step number
	Name           string // step name/description
	Status         string // "pending", "running", "completed", "failed", "approval"
	StartTime      time.Time
	EndTime        time.Time
	ResultPreview  string
	ErrorMessage   string
	IsApprovalGate bool
}

func (s *RecipeStep) durationStr(now time.Time) string {
	if s.StartTime.IsZero() {
		return ""
	}
	end := s.EndTime
	if end.IsZero() {
		end = now
	}
	return formatSeconds(end.Sub(s.StartTime))
}

func formatSeconds(d time.Duration) string {
	seconds := d.Seconds()
	if seconds < 60 {
		return fmt.Sprintf("%.0fs", seconds)
	}
	return fmt.Sprintf("%dm%02ds", int(seconds)/60, int(seconds)%60)
}

// RecipeRun is a complete recipe execution.
type RecipeRun struct {
	RecipeName string
	SessionID  string
	SourceFile string
	Steps      []*RecipeStep
	Status     string // "running", "completed", "failed", "cancelled"
	StartTime  time.Time
	EndTime    time.Time
}

// CurrentStepIndex returns the 1-based index of the running step, or 0.
func (r *RecipeRun) CurrentStepIndex() int {
	for _, step := range r.Steps {
		if step.Status == "running" {
			return step.Index
		}
	}
	return 0
}

// CompletedCount returns the number of completed steps.
func (r *RecipeRun) CompletedCount() int {
	n := 0
	for _, step := range r.Steps {
		if step.Status == "completed" {
			n++
		}
	}
	return n
}

// TotalSteps returns the number of steps in the run.
func (r *RecipeRun) TotalSteps() int { return len(r.Steps) }

// RecipeTracker tracks recipe pipeline execution for visualization.
//
// Entirely in-memory, nothing is persisted. It hooks into the dispatcher's
// tool fan-out for calls to RecipeToolName.
type RecipeTracker struct {
	mu      sync.Mutex
	current *RecipeRun
	history []*RecipeRun
	now     func() time.Time
}

// NewRecipeTracker constructs an empty tracker.
func NewRecipeTracker() *RecipeTracker {
	return &RecipeTracker{now: time.Now}
}

// Current returns the in-flight run, or nil.
func (t *RecipeTracker) Current() *RecipeRun {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// History returns a snapshot of completed runs.
func (t *RecipeTracker) History() []*RecipeRun {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*RecipeRun, len(t.history))
	copy(out, t.history)
	return out
}

// OnRecipeStart records the start of a recipe execution.
func (t *RecipeTracker) OnRecipeStart(recipeName string, steps []string, sessionID, sourceFile string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	run := &RecipeRun{
		RecipeName: recipeName,
		SessionID:  sessionID,
		SourceFile: sourceFile,
		Status:     "running",
		StartTime:  t.now(),
	}
	for i, name := range steps {
		lower := strings.ToLower(name)
		run.Steps = append(run.Steps, &RecipeStep{
			Index:          i + 1,
			Name:           name,
			Status:         "pending",
			IsApprovalGate: strings.Contains(lower, "approval") || strings.Contains(lower, "gate"),
		})
	}
	t.current = run
}

func (t *RecipeTracker) step(index int) *RecipeStep {
	if t.current == nil {
		return nil
	}
	for _, step := range t.current.Steps {
		if step.Index == index {
			return step
		}
	}
	return nil
}

// OnStepStart marks the 1-based step as running.
func (t *RecipeTracker) OnStepStart(stepIndex int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if step := t.step(stepIndex); step != nil {
		step.Status = "running"
		step.StartTime = t.now()
	}
}

// OnStepComplete marks the step as completed.
func (t *RecipeTracker) OnStepComplete(stepIndex int, resultPreview string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if step := t.step(stepIndex); step != nil {
		step.Status = "completed"
		step.EndTime = t.now()
		step.ResultPreview = textutil.TruncateRaw(resultPreview, 200)
	}
}

// OnStepFailed marks the step as failed.
func (t *RecipeTracker) OnStepFailed(stepIndex int, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if step := t.step(stepIndex); step != nil {
		step.Status = "failed"
		step.EndTime = t.now()
		step.ErrorMessage = textutil.TruncateRaw(errMsg, 200)
	}
}

// OnRecipeComplete finishes the current run and moves it to history.
func (t *RecipeTracker) OnRecipeComplete(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return
	}
	t.current.Status = status
	t.current.EndTime = t.now()
	t.history = append(t.history, t.current)
	t.current = nil
}

// ObserveTool feeds the tracker from a pre-hook of the recipes tool.
// Recognized actions: "run" (with "recipe" and optional "steps"),
// "step_start"/"step_complete"/"step_failed" (with 1-based "step"), and
// "finish" (with optional "status").
func (t *RecipeTracker) ObserveTool(toolName string, input map[string]any) {
	if toolName != RecipeToolName || input == nil {
		return
	}
	action, _ := input["action"].(string)
	switch action {
	case "run":
		name, _ := input["recipe"].(string)
		var steps []string
		if raw, ok := input["steps"].([]any); ok {
			for _, s := range raw {
				if str, ok := s.(string); ok {
					steps = append(steps, str)
				}
			}
		}
		source, _ := input["source_file"].(string)
		t.OnRecipeStart(name, steps, "", source)
	case "step_start":
		if idx, ok := inputInt(input, "step"); ok {
			t.OnStepStart(idx)
		}
	case "step_complete":
		if idx, ok := inputInt(input, "step"); ok {
			preview, _ := input["result"].(string)
			t.OnStepComplete(idx, preview)
		}
	case "step_failed":
		if idx, ok := inputInt(input, "step"); ok {
			errMsg, _ := input["error"].(string)
			t.OnStepFailed(idx, errMsg)
		}
	case "finish":
		status, _ := input["status"].(string)
		if status == "" {
			status = "completed"
		}
		t.OnRecipeComplete(status)
	}
}

// Clear resets all tracking state.
func (t *RecipeTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = nil
	t.history = nil
}

var stepIcons = map[string]string{
	"completed": "[x]",
	"running":   "[>]",
	"failed":    "[!]",
	"approval":  "[?]",
	"pending":   "[ ]",
}

// FormatPipeline renders a run as a step-by-step pipeline view. A nil run
// renders the current one.
func (t *RecipeTracker) FormatPipeline(run *RecipeRun) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.formatPipelineLocked(run)
}

func (t *RecipeTracker) formatPipelineLocked(run *RecipeRun) string {
	if run == nil {
		run = t.current
	}
	if run == nil {
		return "No recipe currently running.\nUse /recipe history to see past runs."
	}

	now := t.now()
	var lines []string
	if current := run.CurrentStepIndex(); current > 0 {
		lines = append(lines, fmt.Sprintf("Recipe: %s (step %d/%d)", run.RecipeName, current, run.TotalSteps()))
	} else {
		lines = append(lines, fmt.Sprintf("Recipe: %s (%s)", run.RecipeName, run.Status))
	}
	if run.SourceFile != "" {
		lines = append(lines, "Source: "+run.SourceFile)
	}
	lines = append(lines, "")

	for _, step := range run.Steps {
		icon, ok := stepIcons[step.Status]
		if !ok {
			icon = "[ ]"
		}
		switch {
		case step.Status == "completed":
			lines = append(lines, fmt.Sprintf("  %s %d. %-30s %s", icon, step.Index, step.Name, step.durationStr(now)))
		case step.Status == "running":
			lines = append(lines, fmt.Sprintf("  %s %d. %-30s %s  RUNNING", icon, step.Index, step.Name, step.durationStr(now)))
		case step.Status == "failed":
			lines = append(lines, fmt.Sprintf("  %s %d. %-30s FAILED", icon, step.Index, step.Name))
			if step.ErrorMessage != "" {
				lines = append(lines, "       "+textutil.TruncateRaw(step.ErrorMessage, 80))
			}
		case step.IsApprovalGate:
			lines = append(lines, fmt.Sprintf("  %s %d. APPROVAL: %-22s waiting", icon, step.Index, step.Name))
		default:
			lines = append(lines, fmt.Sprintf("  %s %d. %-30s pending", icon, step.Index, step.Name))
		}
	}
	return strings.Join(lines, "\n")
}

// FormatHistory renders past runs, plus the current one when in flight.
func (t *RecipeTracker) FormatHistory() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.history) == 0 {
		if t.current != nil {
			return t.formatPipelineLocked(nil)
		}
		return "No recipe runs in this session."
	}

	lines := []string{"Recipe History:", ""}
	for i, run := range t.history {
		icon, ok := statusIcons[run.Status]
		if !ok {
			if run.Status == "cancelled" {
				icon = "⊘"
			} else {
				icon = " "
			}
		}
		var duration string
		if !run.EndTime.IsZero() {
			duration = formatSeconds(run.EndTime.Sub(run.StartTime))
		}
		lines = append(lines, fmt.Sprintf("  %s %d. %s (%d/%d steps) %s",
			icon, i+1, run.RecipeName, run.CompletedCount(), run.TotalSteps(), duration))
	}
	if t.current != nil {
		lines = append(lines, "", "Currently running:", t.formatPipelineLocked(nil))
	}
	return strings.Join(lines, "\n")
}
