package dael

import (
	"sync"
	"time"
)

// StepStatus is the terminal status of a single step.
type StepStatus string

const (
	StepCompleted StepStatus = "COMPLETED"
	StepFailed    StepStatus = "FAILED"
	StepSkipped   StepStatus = "SKIPPED"
)

// StepOutput is committed to the ExecutionContext once, atomically, after a
// step's final attempt (§3).
type StepOutput struct {
	StepID     string     `json:"step_id"`
	Status     StepStatus `json:"status"`
	Output     any        `json:"output"`
	Success    bool       `json:"success"`
	DurationMS int64      `json:"duration_ms"`
	Error      *Error     `json:"error,omitempty"`
}

// ExecutionContext is the per-execution bag of state visible to templates
// and code (§3, §4.6). It is mutated only by the Engine between steps: a
// step's own outputs become visible only after that step commits.
type ExecutionContext struct {
	mu          sync.RWMutex
	inputs      map[string]any
	steps       map[string]*StepOutput
	config      map[string]any
	executionID string
	startedAt   time.Time
	toolCalls   int
}

// NewExecutionContext creates a fresh context for one Engine.execute call.
func NewExecutionContext(executionID string, inputs, config map[string]any) *ExecutionContext {
	return &ExecutionContext{
		inputs:      copyAnyMap(inputs),
		steps:       make(map[string]*StepOutput),
		config:      copyAnyMap(config),
		executionID: executionID,
		startedAt:   time.Now(),
	}
}

// CommitStep stores a step's output, making it visible to every later step
// and to output rendering. Not safe to call twice for the same step id.
func (c *ExecutionContext) CommitStep(output *StepOutput) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps[output.StepID] = output
}

// Snapshot returns the template/code-visible view of the context as a plain
// map: {inputs, steps, config, execution_id}.
func (c *ExecutionContext) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	steps := make(map[string]any, len(c.steps))
	for id, out := range c.steps {
		steps[id] = map[string]any{
			"step_id":     out.StepID,
			"status":      string(out.Status),
			"output":      out.Output,
			"success":     out.Success,
			"duration_ms": out.DurationMS,
		}
	}
	return map[string]any{
		"inputs":       copyAnyMap(c.inputs),
		"steps":        steps,
		"config":       copyAnyMap(c.config),
		"execution_id": c.executionID,
	}
}

// StepOutputs returns a stable-ordered snapshot of every committed step
// output, ordered by the supplied declaration order.
func (c *ExecutionContext) StepOutputs(order []string) []*StepOutput {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*StepOutput
	for _, id := range order {
		if so, ok := c.steps[id]; ok {
			out = append(out, so)
		}
	}
	return out
}

// StartedAt returns the monotonic-ish wall start time used for timeout
// accounting (§4.6).
func (c *ExecutionContext) StartedAt() time.Time {
	return c.startedAt
}

// ExecutionID returns the opaque execution identifier.
func (c *ExecutionContext) ExecutionID() string {
	return c.executionID
}

// Inputs returns a copy of the validated/coerced/defaulted input map.
func (c *ExecutionContext) Inputs() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyAnyMap(c.inputs)
}

// IncrementToolCalls bumps the per-execution tool-call counter used by the
// Sandbox's call budget (§4.2 layer 4) and returns the new count.
func (c *ExecutionContext) IncrementToolCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolCalls++
	return c.toolCalls
}

// ToolCallCount reports the current per-execution tool-call count.
func (c *ExecutionContext) ToolCallCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.toolCalls
}

func copyAnyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ExecutionStatus is the terminal status of a whole execution.
type ExecutionStatus string

const (
	ExecutionCompleted ExecutionStatus = "COMPLETED"
	ExecutionFailed     ExecutionStatus = "FAILED"
)

// ExecutionResult is what Engine.Execute returns (§3).
type ExecutionResult struct {
	ExecutionID     string          `json:"execution_id"`
	WorkflowID      string          `json:"workflow_id"`
	WorkflowVersion string          `json:"workflow_version"`
	Status          ExecutionStatus `json:"status"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     time.Time       `json:"completed_at"`
	DurationMS      int64           `json:"duration_ms"`
	Inputs          map[string]any  `json:"inputs"`
	Outputs         map[string]any  `json:"outputs"`
	Steps           []*StepOutput   `json:"steps"`
	StepsCompleted  int             `json:"steps_completed"`
	StepsFailed     int             `json:"steps_failed"`
	StepsSkipped    int             `json:"steps_skipped"`
	Error           *Error          `json:"error,omitempty"`
}
