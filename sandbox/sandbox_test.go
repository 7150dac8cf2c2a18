package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ploston/dael"
)

type fakeToolCaller struct {
	calls       int
	unavailable map[string]bool
}

func (f *fakeToolCaller) CallTool(ctx context.Context, name string, params map[string]any) (any, error) {
	f.calls++
	return "ok", nil
}

func (f *fakeToolCaller) IsAvailable(name string) bool {
	return !f.unavailable[name]
}

func TestNew_DefaultsToMinimalProfileWhenPackagesNil(t *testing.T) {
	sb := New(nil, &fakeToolCaller{})
	assert.True(t, sb.allowed["strings"])
	assert.Equal(t, defaultCallBudget, sb.callBudget)
}

func TestNew_HonorsConfiguredProfileAndAdditional(t *testing.T) {
	sb := New(&dael.Packages{Profile: "minimal", Additional: []string{"csv"}}, &fakeToolCaller{})
	assert.True(t, sb.allowed["csv"])
}

func TestWithCallBudget_OverridesDefault(t *testing.T) {
	sb := New(nil, &fakeToolCaller{}).WithCallBudget(2)
	assert.Equal(t, 2, sb.callBudget)
}

func TestWithCallBudget_IgnoresNonPositiveValues(t *testing.T) {
	sb := New(nil, &fakeToolCaller{}).WithCallBudget(0)
	assert.Equal(t, defaultCallBudget, sb.callBudget)
}

func TestBoundCallTool_EnforcesBudget(t *testing.T) {
	caller := &fakeToolCaller{}
	sb := New(nil, caller).WithCallBudget(1)
	execCtx := dael.NewExecutionContext("exec_1", nil, nil)
	call := sb.boundCallTool(context.Background(), execCtx)

	_, err := call("fetch", map[string]any{})
	require.NoError(t, err)

	_, err = call("fetch", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "call budget")
	assert.Equal(t, 1, caller.calls)
}

func TestBoundCallTool_RejectsPythonExec(t *testing.T) {
	sb := New(nil, &fakeToolCaller{})
	execCtx := dael.NewExecutionContext("exec_1", nil, nil)
	call := sb.boundCallTool(context.Background(), execCtx)

	_, err := call("python_exec", map[string]any{"code": "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "python_exec")
	derr, ok := err.(*dael.Error)
	require.True(t, ok)
	assert.Equal(t, dael.CodeCodeSecurity, derr.Code)
}

func TestBoundCallTool_RejectsUnavailableTool(t *testing.T) {
	caller := &fakeToolCaller{unavailable: map[string]bool{"secret_tool": true}}
	sb := New(nil, caller)
	execCtx := dael.NewExecutionContext("exec_1", nil, nil)
	call := sb.boundCallTool(context.Background(), execCtx)

	_, err := call("secret_tool", map[string]any{})
	require.Error(t, err)
	derr, ok := err.(*dael.Error)
	require.True(t, ok)
	assert.Equal(t, dael.CodeToolRejected, derr.Code)
	assert.False(t, derr.Retryable)
	assert.Equal(t, 0, caller.calls)
}

func TestBoundCallTool_RejectsWhenNoToolCallerConfigured(t *testing.T) {
	sb := New(nil, nil)
	execCtx := dael.NewExecutionContext("exec_1", nil, nil)
	call := sb.boundCallTool(context.Background(), execCtx)

	_, err := call("anything", map[string]any{})
	require.Error(t, err)
	derr, ok := err.(*dael.Error)
	require.True(t, ok)
	assert.Equal(t, dael.CodeToolRejected, derr.Code)
}

func TestBoundCallTool_RejectsNonJSONSerializableParams(t *testing.T) {
	sb := New(nil, &fakeToolCaller{})
	execCtx := dael.NewExecutionContext("exec_1", nil, nil)
	call := sb.boundCallTool(context.Background(), execCtx)

	_, err := call("fetch", map[string]any{"bad": make(chan int)})
	require.Error(t, err)
}

func TestIsSyntaxError_DetectsParseFailures(t *testing.T) {
	assert.True(t, isSyntaxError(assertError("parse error: unexpected token")))
	assert.False(t, isSyntaxError(assertError("nil pointer dereference")))
}

func assertError(msg string) error {
	return &stringError{msg}
}

type stringError struct{ msg string }

func (e *stringError) Error() string { return e.msg }
