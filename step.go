package dael

import "time"

// OnErrorPolicy governs what happens when a step fails after exhausting any
// configured retry.
type OnErrorPolicy string

const (
	OnErrorFail     OnErrorPolicy = "fail"
	OnErrorContinue OnErrorPolicy = "continue"
	OnErrorRetry    OnErrorPolicy = "retry"
)

// RetrySpec configures the retry policy applied to a failing, retryable
// step: by the Tool Invoker for tool steps, and by the Engine's own loop
// around the Sandbox for code steps.
//
// Effective delay before retry k (1-indexed, i.e. before attempt k+1):
//
//	min(MaxDelay, InitialDelay * BackoffMultiplier^(k-1))
type RetrySpec struct {
	MaxAttempts       int     `json:"max_attempts" yaml:"max_attempts"`
	InitialDelay      float64 `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay          float64 `json:"max_delay" yaml:"max_delay"`
	BackoffMultiplier float64 `json:"backoff_multiplier" yaml:"backoff_multiplier"`
}

// DefaultRetrySpec returns the hard-coded fallback retry policy (§4.7 step 4a).
func DefaultRetrySpec() RetrySpec {
	return RetrySpec{
		MaxAttempts:       3,
		InitialDelay:      1.0,
		MaxDelay:          30.0,
		BackoffMultiplier: 2.0,
	}
}

func (r RetrySpec) merge(override *RetrySpec) RetrySpec {
	if override == nil {
		return r
	}
	merged := r
	if override.MaxAttempts != 0 {
		merged.MaxAttempts = override.MaxAttempts
	}
	if override.InitialDelay != 0 {
		merged.InitialDelay = override.InitialDelay
	}
	if override.MaxDelay != 0 {
		merged.MaxDelay = override.MaxDelay
	}
	if override.BackoffMultiplier != 0 {
		merged.BackoffMultiplier = override.BackoffMultiplier
	}
	return merged
}

// Defaults holds workflow-level defaults for timeout and error policy,
// applied with lower precedence than a step's own fields but higher than
// the hard-coded fallback (§4.7).
type Defaults struct {
	Timeout *float64      `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	OnError OnErrorPolicy `json:"on_error,omitempty" yaml:"on_error,omitempty"`
	Retry   *RetrySpec    `json:"retry,omitempty" yaml:"retry,omitempty"`
}

// ToolCall is the tool-step shape: a tool name plus its (unrendered)
// parameter templates.
type ToolCall struct {
	Name   string         `json:"name" yaml:"name"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// Step is a single unit of work in a Workflow. Exactly one of Tool or Code
// must be set; New() rejects both-or-neither.
type Step struct {
	ID        string        `json:"id" yaml:"id"`
	DependsOn []string      `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Timeout   *float64      `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	OnError   OnErrorPolicy `json:"on_error,omitempty" yaml:"on_error,omitempty"`
	Retry     *RetrySpec    `json:"retry,omitempty" yaml:"retry,omitempty"`
	Tool      *ToolCall     `json:"tool,omitempty" yaml:"tool,omitempty"`
	Code      string        `json:"code,omitempty" yaml:"code,omitempty"`
}

// IsCodeStep reports whether this step runs in the Sandbox rather than
// dispatching through the Tool Invoker.
func (s *Step) IsCodeStep() bool {
	return s.Tool == nil
}

// EffectiveTimeout resolves the step > workflow-defaults > system-config >
// hard-coded precedence chain (§4.7 step 4a) into a time.Duration. A
// timeout of exactly zero is itself meaningful (the "immediate timeout"
// boundary case), so presence is tracked with a pointer rather than the
// zero value.
func EffectiveTimeout(step *Step, defaults Defaults, systemDefault time.Duration) time.Duration {
	if step.Timeout != nil {
		return secondsToDuration(*step.Timeout)
	}
	if defaults.Timeout != nil {
		return secondsToDuration(*defaults.Timeout)
	}
	if systemDefault != 0 {
		return systemDefault
	}
	return 30 * time.Second
}

// EffectiveOnError resolves the on_error precedence chain.
func EffectiveOnError(step *Step, defaults Defaults) OnErrorPolicy {
	if step.OnError != "" {
		return step.OnError
	}
	if defaults.OnError != "" {
		return defaults.OnError
	}
	return OnErrorFail
}

// EffectiveRetry resolves the retry-spec precedence chain, layering step
// overrides onto workflow defaults onto the hard-coded baseline.
func EffectiveRetry(step *Step, defaults Defaults) RetrySpec {
	spec := DefaultRetrySpec()
	spec = spec.merge(defaults.Retry)
	spec = spec.merge(step.Retry)
	return spec
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
