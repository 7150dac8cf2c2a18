package dael

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionContext_SnapshotReflectsCommittedSteps(t *testing.T) {
	ctx := NewExecutionContext("exec_1", map[string]any{"name": "Ada"}, nil)
	ctx.CommitStep(&StepOutput{StepID: "a", Status: StepCompleted, Output: "hi", Success: true, DurationMS: 5})

	snap := ctx.Snapshot()
	assert.Equal(t, "Ada", snap["inputs"].(map[string]any)["name"])
	assert.Equal(t, "exec_1", snap["execution_id"])

	steps := snap["steps"].(map[string]any)
	a := steps["a"].(map[string]any)
	assert.Equal(t, "hi", a["output"])
	assert.Equal(t, "COMPLETED", a["status"])
	assert.Equal(t, true, a["success"])
}

func TestExecutionContext_SnapshotDistinguishesMissingFromNilOutput(t *testing.T) {
	ctx := NewExecutionContext("exec_1", nil, nil)
	ctx.CommitStep(&StepOutput{StepID: "a", Status: StepCompleted, Output: nil, Success: true})

	snap := ctx.Snapshot()
	steps := snap["steps"].(map[string]any)
	a, ok := steps["a"].(map[string]any)
	require.True(t, ok, "committed step must appear in the snapshot even with a nil output")
	_, hasOutput := a["output"]
	assert.True(t, hasOutput)
	assert.Nil(t, a["output"])

	_, hasOther := steps["never_ran"]
	assert.False(t, hasOther)
}

func TestExecutionContext_StepOutputsPreservesOrder(t *testing.T) {
	ctx := NewExecutionContext("exec_1", nil, nil)
	ctx.CommitStep(&StepOutput{StepID: "b", Status: StepCompleted})
	ctx.CommitStep(&StepOutput{StepID: "a", Status: StepCompleted})

	ordered := ctx.StepOutputs([]string{"a", "b", "c"})
	require.Len(t, ordered, 2)
	assert.Equal(t, "a", ordered[0].StepID)
	assert.Equal(t, "b", ordered[1].StepID)
}

func TestExecutionContext_IncrementToolCallsCountsUp(t *testing.T) {
	ctx := NewExecutionContext("exec_1", nil, nil)
	assert.Equal(t, 0, ctx.ToolCallCount())
	assert.Equal(t, 1, ctx.IncrementToolCalls())
	assert.Equal(t, 2, ctx.IncrementToolCalls())
	assert.Equal(t, 2, ctx.ToolCallCount())
}

func TestExecutionContext_InputsReturnsACopy(t *testing.T) {
	ctx := NewExecutionContext("exec_1", map[string]any{"name": "Ada"}, nil)
	got := ctx.Inputs()
	got["name"] = "mutated"
	assert.Equal(t, "Ada", ctx.Inputs()["name"])
}
