package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecipeTracker_Lifecycle(t *testing.T) {
	tr := NewRecipeTracker()

	tr.OnRecipeStart("deploy", []string{"build", "Approval gate", "ship"}, "sess-1", "deploy.yaml")
	run := tr.Current()
	require.NotNil(t, run)
	assert.Equal(t, 3, run.TotalSteps())
	assert.True(t, run.Steps[1].IsApprovalGate)
	assert.False(t, run.Steps[0].IsApprovalGate)

	tr.OnStepStart(1)
	assert.Equal(t, 1, tr.Current().CurrentStepIndex())

	tr.OnStepComplete(1, "binary built")
	assert.Equal(t, 1, tr.Current().CompletedCount())
	assert.Zero(t, tr.Current().CurrentStepIndex())

	tr.OnStepStart(3)
	tr.OnStepFailed(3, "network unreachable")
	assert.Equal(t, "failed", tr.Current().Steps[2].Status)

	tr.OnRecipeComplete("failed")
	assert.Nil(t, tr.Current())
	require.Len(t, tr.History(), 1)
	assert.Equal(t, "failed", tr.History()[0].Status)
}

func TestRecipeTracker_StepIndexOutOfRange(t *testing.T) {
	tr := NewRecipeTracker()
	tr.OnRecipeStart("r", []string{"only"}, "", "")
	tr.OnStepStart(9)
	tr.OnStepComplete(9, "")
	assert.Equal(t, "pending", tr.Current().Steps[0].Status)

	// Step calls with no current run are no-ops.
	empty := NewRecipeTracker()
	empty.OnStepStart(1)
	empty.OnRecipeComplete("completed")
	assert.Empty(t, empty.History())
}

func TestRecipeTracker_ObserveTool(t *testing.T) {
	tr := NewRecipeTracker()

	tr.ObserveTool("bash", map[string]any{"action": "run"})
	assert.Nil(t, tr.Current(), "non-recipe tools are ignored")

	tr.ObserveTool(RecipeToolName, map[string]any{
		"action": "run",
		"recipe": "release",
		"steps":  []any{"tag", "publish"},
	})
	require.NotNil(t, tr.Current())
	assert.Equal(t, "release", tr.Current().RecipeName)
	assert.Equal(t, 2, tr.Current().TotalSteps())

	tr.ObserveTool(RecipeToolName, map[string]any{"action": "step_start", "step": 1})
	assert.Equal(t, 1, tr.Current().CurrentStepIndex())

	tr.ObserveTool(RecipeToolName, map[string]any{"action": "step_complete", "step": float64(1), "result": "v1.2 tagged"})
	assert.Equal(t, 1, tr.Current().CompletedCount())

	tr.ObserveTool(RecipeToolName, map[string]any{"action": "finish"})
	assert.Nil(t, tr.Current())
	require.Len(t, tr.History(), 1)
	assert.Equal(t, "completed", tr.History()[0].Status)
}

func TestRecipeTracker_Formatting(t *testing.T) {
	tr := NewRecipeTracker()
	assert.Contains(t, tr.FormatPipeline(nil), "No recipe currently running.")
	assert.Equal(t, "No recipe runs in this session.", tr.FormatHistory())

	tr.OnRecipeStart("build", []string{"compile", "test"}, "", "build.yaml")
	tr.OnStepStart(1)

	pipeline := tr.FormatPipeline(nil)
	assert.Contains(t, pipeline, "Recipe: build (step 1/2)")
	assert.Contains(t, pipeline, "Source: build.yaml")
	assert.Contains(t, pipeline, "RUNNING")
	assert.Contains(t, pipeline, "pending")

	tr.OnStepComplete(1, "")
	tr.OnStepStart(2)
	tr.OnStepComplete(2, "")
	tr.OnRecipeComplete("completed")

	history := tr.FormatHistory()
	assert.Contains(t, history, "Recipe History:")
	assert.Contains(t, history, "build (2/2 steps)")
}
