package dael

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"go.jetify.com/typeid"
	"golang.org/x/sync/semaphore"

	"github.com/ploston/dael/retry"
	"github.com/ploston/dael/template"
)

// NewExecutionID returns a fresh opaque execution identifier.
func NewExecutionID() string {
	id, err := typeid.WithPrefix("exec")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// WorkflowResolver looks workflows up by name for the Engine. The Workflow
// Registry satisfies this.
type WorkflowResolver interface {
	Get(name string) (*Workflow, bool)
}

// CodeRunner executes one code step's source in a sandbox. sandbox.Sandbox
// satisfies this structurally; the Engine never imports the sandbox
// package directly to avoid a cycle (sandbox imports dael for Error and
// ExecutionContext).
type CodeRunner interface {
	Run(ctx context.Context, source string, execCtx *ExecutionContext, timeout time.Duration) (any, error)
}

// ToolInvoker dispatches one tool call with its own deadline and retry
// budget. tools.Invoker satisfies this.
type ToolInvoker interface {
	InvokeWithRetry(ctx context.Context, name string, params map[string]any, timeout time.Duration, spec RetrySpec) (any, *Error)
}

// Engine runs workflows to completion, one step at a time, in declaration
// order (§4.7). Parallel branching and checkpoint/resume are out of
// scope: a workflow either runs start to finish in one call, or fails.
type Engine struct {
	resolver       WorkflowResolver
	invoker        ToolInvoker
	sandboxFor     func(*Workflow) CodeRunner
	systemTimeout  time.Duration
	admission      *semaphore.Weighted
}

// NewEngine builds an Engine. maxConcurrent bounds the number of
// Execute calls running at once (§5); sandboxFor builds a fresh
// CodeRunner scoped to one workflow's packages profile.
func NewEngine(resolver WorkflowResolver, invoker ToolInvoker, sandboxFor func(*Workflow) CodeRunner, systemTimeout time.Duration, maxConcurrent int64) *Engine {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Engine{
		resolver:      resolver,
		invoker:       invoker,
		sandboxFor:    sandboxFor,
		systemTimeout: systemTimeout,
		admission:     semaphore.NewWeighted(maxConcurrent),
	}
}

// Execute resolves workflowID, validates and defaults inputs, and runs
// every step in declaration order, returning the full ExecutionResult.
// A non-nil error return means the workflow could not even start
// (unknown workflow, invalid inputs); once execution begins, failures are
// reported inside the returned ExecutionResult instead.
func (e *Engine) Execute(ctx context.Context, workflowID string, rawInputs map[string]any) (*ExecutionResult, error) {
	if err := e.admission.Acquire(ctx, 1); err != nil {
		return nil, NewError(CodeInternalError, "could not acquire an execution slot: "+err.Error())
	}
	defer e.admission.Release(1)

	wf, ok := e.resolver.Get(workflowID)
	if !ok {
		return nil, NewError(CodeWorkflowNotFound, fmt.Sprintf("no workflow named %q is registered", workflowID), workflowID)
	}

	inputs, err := resolveInputs(wf, rawInputs)
	if err != nil {
		return nil, err
	}

	executionID := NewExecutionID()
	execCtx := NewExecutionContext(executionID, inputs, nil)
	startedAt := execCtx.StartedAt()

	result := &ExecutionResult{
		ExecutionID:     executionID,
		WorkflowID:      wf.Name(),
		WorkflowVersion: wf.Version(),
		StartedAt:       startedAt,
		Inputs:          inputs,
	}

	runner := e.runnerFor(wf)

	failed := false
	for _, step := range wf.Steps() {
		stepStart := time.Now()
		timeout := EffectiveTimeout(step, wf.Defaults(), e.systemTimeout)
		onError := EffectiveOnError(step, wf.Defaults())
		retrySpec := EffectiveRetry(step, wf.Defaults())

		output, stepErr := e.runStep(ctx, wf, step, execCtx, timeout, retrySpec, runner)
		duration := time.Since(stepStart).Milliseconds()

		if stepErr != nil {
			if onError == OnErrorContinue {
				so := &StepOutput{
					StepID:     step.ID,
					Status:     StepSkipped,
					Output:     nil,
					Success:    false,
					DurationMS: duration,
					Error:      stepErr,
				}
				execCtx.CommitStep(so)
				result.Steps = append(result.Steps, so)
				result.StepsSkipped++
				continue
			}

			// onError == fail, or onError == retry with its budget already
			// exhausted by runStep: both terminate the execution.
			so := &StepOutput{
				StepID:     step.ID,
				Status:     StepFailed,
				Success:    false,
				DurationMS: duration,
				Error:      stepErr,
			}
			execCtx.CommitStep(so)
			result.Steps = append(result.Steps, so)
			result.StepsFailed++
			result.Error = stepErr
			failed = true
			break
		}

		so := &StepOutput{
			StepID:     step.ID,
			Status:     StepCompleted,
			Output:     output,
			Success:    true,
			DurationMS: duration,
		}
		execCtx.CommitStep(so)
		result.Steps = append(result.Steps, so)
		result.StepsCompleted++
	}

	if !failed {
		outputs, outErr := e.computeOutputs(wf, execCtx)
		if outErr != nil {
			result.Error = outErr
			failed = true
		} else {
			result.Outputs = outputs
		}
	}

	result.CompletedAt = time.Now()
	result.DurationMS = result.CompletedAt.Sub(startedAt).Milliseconds()
	if failed {
		result.Status = ExecutionFailed
	} else {
		result.Status = ExecutionCompleted
	}
	return result, nil
}

func (e *Engine) runnerFor(wf *Workflow) CodeRunner {
	if e.sandboxFor == nil {
		return nil
	}
	return e.sandboxFor(wf)
}

// runStep dispatches one step, spending its retry budget here (for tool
// steps, inside the invoker; for code steps, in the loop below) so the
// Engine never retries a step a second time (§4.7 step 4e).
func (e *Engine) runStep(ctx context.Context, wf *Workflow, step *Step, execCtx *ExecutionContext, timeout time.Duration, retrySpec RetrySpec, runner CodeRunner) (any, *Error) {
	if step.IsCodeStep() {
		return e.runCodeWithRetry(ctx, step, execCtx, timeout, retrySpec, runner)
	}

	rendered, err := template.RenderDocument(step.Tool.Params, execCtx.Snapshot())
	if err != nil {
		return nil, Wrap(CodeTemplateError, err)
	}
	params, ok := rendered.(map[string]any)
	if !ok {
		params = map[string]any{}
	}
	return e.invoker.InvokeWithRetry(ctx, step.Tool.Name, params, timeout, retrySpec)
}

func (e *Engine) runCodeWithRetry(ctx context.Context, step *Step, execCtx *ExecutionContext, timeout time.Duration, retrySpec RetrySpec, runner CodeRunner) (any, *Error) {
	if runner == nil {
		return nil, NewError(CodeInternalError, "no sandbox configured for code steps")
	}
	schedule := retry.NewSchedule(retrySpec.MaxAttempts, retrySpec.InitialDelay, retrySpec.MaxDelay, retrySpec.BackoffMultiplier)

	var lastErr error
	for attempt := 1; attempt <= schedule.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := schedule.DelayForAttempt(attempt)
			if sleepErr := retry.Sleep(ctx, delay); sleepErr != nil {
				return nil, Wrap(CodeCodeTimeout, sleepErr)
			}
		}
		result, err := runner.Run(ctx, step.Code, execCtx, timeout)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if derr, ok := err.(*Error); ok && !derr.Retryable {
			return nil, derr
		}
	}
	if derr, ok := lastErr.(*Error); ok {
		return nil, derr
	}
	return nil, Wrap(CodeCodeRuntime, lastErr)
}

// computeOutputs evaluates either the single "output" template or the
// named "outputs" list against the final execution context snapshot.
func (e *Engine) computeOutputs(wf *Workflow, execCtx *ExecutionContext) (map[string]any, *Error) {
	snapshot := execCtx.Snapshot()

	if wf.Output() != "" {
		value, err := template.Render(wf.Output(), snapshot)
		if err != nil {
			return nil, Wrap(CodeTemplateError, err)
		}
		if m, ok := value.(map[string]any); ok {
			return m, nil
		}
		return map[string]any{"output": value}, nil
	}

	if len(wf.Outputs()) == 0 {
		return map[string]any{}, nil
	}

	outputs := make(map[string]any, len(wf.Outputs()))
	for _, spec := range wf.Outputs() {
		var (
			value any
			err   error
		)
		switch {
		case spec.FromPath != "":
			value, err = template.Render("{{ "+spec.FromPath+" }}", snapshot)
		case spec.Value != "":
			value, err = template.Render(spec.Value, snapshot)
		default:
			err = fmt.Errorf("output %q sets neither from_path nor value", spec.Name)
		}
		if err != nil {
			return nil, Wrap(CodeTemplateError, err, spec.Name)
		}
		outputs[spec.Name] = value
	}
	return outputs, nil
}

// resolveInputs validates, coerces, and defaults rawInputs against the
// workflow's input specs, rejecting unknown keys and out-of-range values.
func resolveInputs(wf *Workflow, rawInputs map[string]any) (map[string]any, *Error) {
	resolved := make(map[string]any, len(wf.Inputs()))

	for _, spec := range wf.Inputs() {
		value, present := rawInputs[spec.Name]
		if !present {
			if spec.Required {
				return nil, NewError(CodeInputInvalid, fmt.Sprintf("input %q is required", spec.Name), spec.Name)
			}
			resolved[spec.Name] = spec.Default
			continue
		}
		coerced, err := coerceInput(spec, value)
		if err != nil {
			return nil, NewError(CodeInputInvalid, fmt.Sprintf("input %q: %v", spec.Name, err), spec.Name)
		}
		resolved[spec.Name] = coerced
	}

	for name := range rawInputs {
		if _, ok := wf.GetInput(name); !ok {
			return nil, NewError(CodeInputInvalid, fmt.Sprintf("unknown input %q", name), name)
		}
	}
	return resolved, nil
}

func coerceInput(spec *InputSpec, value any) (any, error) {
	coerced := value
	switch spec.Type {
	case TypeInteger:
		n, err := toFloat(value)
		if err != nil {
			return nil, err
		}
		coerced = int64(n)
	case TypeNumber:
		n, err := toFloat(value)
		if err != nil {
			return nil, err
		}
		coerced = n
	case TypeBoolean:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("expected a boolean, got %T", value)
		}
		coerced = b
	case TypeString:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %T", value)
		}
		if spec.Pattern != "" {
			matched, err := matchesPattern(spec.Pattern, s)
			if err != nil {
				return nil, err
			}
			if !matched {
				return nil, fmt.Errorf("value %q does not match pattern %q", s, spec.Pattern)
			}
		}
		coerced = s
	}

	if len(spec.Enum) > 0 {
		found := false
		for _, e := range spec.Enum {
			if fmt.Sprint(e) == fmt.Sprint(coerced) {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("value %v is not one of %v", coerced, spec.Enum)
		}
	}

	if n, ok := coerced.(int64); ok {
		if err := checkBounds(spec, float64(n)); err != nil {
			return nil, err
		}
	}
	if n, ok := coerced.(float64); ok {
		if err := checkBounds(spec, n); err != nil {
			return nil, err
		}
	}
	return coerced, nil
}

func checkBounds(spec *InputSpec, n float64) error {
	if spec.Minimum != nil && n < *spec.Minimum {
		return fmt.Errorf("value %v is below minimum %v", n, *spec.Minimum)
	}
	if spec.Maximum != nil && n > *spec.Maximum {
		return fmt.Errorf("value %v is above maximum %v", n, *spec.Maximum)
	}
	return nil
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("expected a number, got %q", v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", value)
	}
}

func matchesPattern(pattern, s string) (bool, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return re.MatchString(s), nil
}
