package dael

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	workflows map[string]*Workflow
}

func (f *fakeResolver) Get(name string) (*Workflow, bool) {
	wf, ok := f.workflows[name]
	return wf, ok
}

type fakeInvoker struct {
	calls   []string
	results map[string]any
	fail    map[string]*Error
}

func (f *fakeInvoker) InvokeWithRetry(ctx context.Context, name string, params map[string]any, timeout time.Duration, spec RetrySpec) (any, *Error) {
	f.calls = append(f.calls, name)
	if err, ok := f.fail[name]; ok {
		return nil, err
	}
	return f.results[name], nil
}

func mustWorkflow(t *testing.T, opts Options) *Workflow {
	t.Helper()
	wf, err := New(opts)
	require.NoError(t, err)
	return wf
}

func TestEngine_Execute_RunsStepsSequentiallyAndProducesOutputs(t *testing.T) {
	wf := mustWorkflow(t, Options{
		Name:    "greet",
		Version: "1.0.0",
		Inputs:  []*InputSpec{{Name: "name", Type: TypeString, Required: true}},
		Steps: []*Step{
			{ID: "a", Tool: &ToolCall{Name: "say_hello"}},
			{ID: "b", DependsOn: []string{"a"}, Tool: &ToolCall{Name: "say_bye"}},
		},
		Output: "{{ steps.a.output }}",
	})
	resolver := &fakeResolver{workflows: map[string]*Workflow{"greet": wf}}
	invoker := &fakeInvoker{results: map[string]any{"say_hello": "hi", "say_bye": "bye"}}
	engine := NewEngine(resolver, invoker, nil, 30*time.Second, 4)

	result, err := engine.Execute(context.Background(), "greet", map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, ExecutionCompleted, result.Status)
	assert.Equal(t, 2, result.StepsCompleted)
	assert.Equal(t, []string{"say_hello", "say_bye"}, invoker.calls)
	assert.Equal(t, map[string]any{"output": "hi"}, result.Outputs)
}

func TestEngine_Execute_UnknownWorkflowReturnsError(t *testing.T) {
	resolver := &fakeResolver{workflows: map[string]*Workflow{}}
	engine := NewEngine(resolver, &fakeInvoker{}, nil, 30*time.Second, 4)
	_, err := engine.Execute(context.Background(), "missing", nil)
	require.Error(t, err)
	derr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, CodeWorkflowNotFound, derr.Code)
}

func TestEngine_Execute_MissingRequiredInputErrors(t *testing.T) {
	wf := mustWorkflow(t, Options{
		Name:    "greet",
		Version: "1.0.0",
		Inputs:  []*InputSpec{{Name: "name", Type: TypeString, Required: true}},
		Steps:   []*Step{{ID: "a", Tool: &ToolCall{Name: "say_hello"}}},
	})
	resolver := &fakeResolver{workflows: map[string]*Workflow{"greet": wf}}
	engine := NewEngine(resolver, &fakeInvoker{}, nil, 30*time.Second, 4)
	_, err := engine.Execute(context.Background(), "greet", nil)
	require.Error(t, err)
	derr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, CodeInputInvalid, derr.Code)
}

func TestEngine_Execute_OnErrorContinueKeepsGoing(t *testing.T) {
	wf := mustWorkflow(t, Options{
		Name:    "greet",
		Version: "1.0.0",
		Steps: []*Step{
			{ID: "a", OnError: OnErrorContinue, Tool: &ToolCall{Name: "flaky"}},
			{ID: "b", Tool: &ToolCall{Name: "say_bye"}},
		},
	})
	resolver := &fakeResolver{workflows: map[string]*Workflow{"greet": wf}}
	invoker := &fakeInvoker{
		results: map[string]any{"say_bye": "bye"},
		fail:    map[string]*Error{"flaky": NewError(CodeToolFailed, "boom")},
	}
	engine := NewEngine(resolver, invoker, nil, 30*time.Second, 4)

	result, err := engine.Execute(context.Background(), "greet", nil)
	require.NoError(t, err)
	assert.Equal(t, ExecutionCompleted, result.Status)
	assert.Equal(t, 0, result.StepsFailed)
	assert.Equal(t, 1, result.StepsSkipped)
	assert.Equal(t, 1, result.StepsCompleted)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, StepSkipped, result.Steps[0].Status)
	assert.Nil(t, result.Steps[0].Output)
}

func TestEngine_Execute_OnErrorFailStopsExecution(t *testing.T) {
	wf := mustWorkflow(t, Options{
		Name:    "greet",
		Version: "1.0.0",
		Steps: []*Step{
			{ID: "a", Tool: &ToolCall{Name: "flaky"}},
			{ID: "b", Tool: &ToolCall{Name: "say_bye"}},
		},
	})
	resolver := &fakeResolver{workflows: map[string]*Workflow{"greet": wf}}
	invoker := &fakeInvoker{
		results: map[string]any{"say_bye": "bye"},
		fail:    map[string]*Error{"flaky": NewError(CodeToolFailed, "boom")},
	}
	engine := NewEngine(resolver, invoker, nil, 30*time.Second, 4)

	result, err := engine.Execute(context.Background(), "greet", nil)
	require.NoError(t, err)
	assert.Equal(t, ExecutionFailed, result.Status)
	assert.Equal(t, []string{"flaky"}, invoker.calls)
	require.NotNil(t, result.Error)
}

func TestResolveInputs_DefaultsAndCoercion(t *testing.T) {
	wf := mustWorkflow(t, Options{
		Name:    "x",
		Version: "1.0.0",
		Inputs: []*InputSpec{
			{Name: "count", Type: TypeInteger, Default: int64(1)},
			{Name: "name", Type: TypeString, Required: true},
		},
		Steps: []*Step{{ID: "a", Tool: &ToolCall{Name: "noop"}}},
	})
	resolved, err := resolveInputs(wf, map[string]any{"name": "Ada"})
	require.Nil(t, err)
	assert.Equal(t, int64(1), resolved["count"])
	assert.Equal(t, "Ada", resolved["name"])
}

func TestResolveInputs_RejectsUnknownInput(t *testing.T) {
	wf := mustWorkflow(t, Options{
		Name:    "x",
		Version: "1.0.0",
		Steps:   []*Step{{ID: "a", Tool: &ToolCall{Name: "noop"}}},
	})
	_, err := resolveInputs(wf, map[string]any{"bogus": 1})
	require.NotNil(t, err)
	assert.Equal(t, CodeInputInvalid, err.Code)
}

func TestResolveInputs_EnforcesBounds(t *testing.T) {
	min := 0.0
	max := 10.0
	wf := mustWorkflow(t, Options{
		Name:    "x",
		Version: "1.0.0",
		Inputs: []*InputSpec{
			{Name: "count", Type: TypeInteger, Required: true, Minimum: &min, Maximum: &max},
		},
		Steps: []*Step{{ID: "a", Tool: &ToolCall{Name: "noop"}}},
	})
	_, err := resolveInputs(wf, map[string]any{"count": 20.0})
	require.NotNil(t, err)
	assert.Equal(t, CodeInputInvalid, err.Code)
}
