package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/ploston/dael"
	"github.com/ploston/dael/retry"
)

// Invoker dispatches a single tool call with a deadline and the retry
// schedule its caller passes in (the Engine passes every tool step's
// effective retry spec, whatever its on_error policy) — consuming the
// step's entire retry budget here so the Engine never retries the same
// step twice.
type Invoker struct {
	registry *Registry
}

// NewInvoker builds an Invoker fronting the given Registry.
func NewInvoker(registry *Registry) *Invoker {
	return &Invoker{registry: registry}
}

// CallTool implements sandbox.ToolCaller, so a Sandbox can route a code
// step's tool calls through the same registry lookup and schema check used
// by ordinary tool steps. It dispatches once, with no retry and no timeout
// of its own; only ctx bounds the call.
func (inv *Invoker) CallTool(ctx context.Context, name string, params map[string]any) (any, error) {
	return inv.invokeOnce(ctx, name, params)
}

// IsAvailable implements sandbox.ToolCaller's layer-3 check: whether name is
// registered at all, without dispatching it.
func (inv *Invoker) IsAvailable(name string) bool {
	_, _, ok := inv.registry.Lookup(name)
	return ok
}

// Invoke dispatches one tool call with a timeout. It does not retry; retry
// is the caller's concern (InvokeWithRetry, or the Engine directly for
// code steps dispatched through the Sandbox).
func (inv *Invoker) Invoke(ctx context.Context, name string, params map[string]any, timeout time.Duration) (any, error) {
	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	result, err := inv.invokeOnce(callCtx, name, params)
	if err != nil && callCtx.Err() == context.DeadlineExceeded {
		return nil, dael.Wrap(dael.CodeToolTimeout, err, name)
	}
	return result, err
}

// InvokeWithRetry runs Invoke repeatedly per schedule until it succeeds or
// the schedule's MaxAttempts is exhausted, sleeping the schedule's delay
// between attempts. This is the sole place a tool step's retry budget is
// spent (§4.7 step 4e).
func (inv *Invoker) InvokeWithRetry(ctx context.Context, name string, params map[string]any, timeout time.Duration, spec dael.RetrySpec) (any, *dael.Error) {
	schedule := retry.NewSchedule(spec.MaxAttempts, spec.InitialDelay, spec.MaxDelay, spec.BackoffMultiplier)

	var lastErr error
	for attempt := 1; attempt <= schedule.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := schedule.DelayForAttempt(attempt)
			if sleepErr := retry.Sleep(ctx, delay); sleepErr != nil {
				return nil, dael.Wrap(dael.CodeToolTimeout, sleepErr, name)
			}
		}
		result, err := inv.Invoke(ctx, name, params, timeout)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if derr, ok := err.(*dael.Error); ok && !derr.Retryable {
			return nil, derr
		}
	}
	if derr, ok := lastErr.(*dael.Error); ok {
		return nil, derr
	}
	return nil, dael.Wrap(dael.CodeToolFailed, lastErr, name)
}

func (inv *Invoker) invokeOnce(ctx context.Context, name string, params map[string]any) (any, error) {
	desc, handler, ok := inv.registry.Lookup(name)
	if !ok {
		return nil, dael.NewError(dael.CodeToolUnavailable, "no tool named "+name+" is registered", name)
	}
	// Built-ins validate their own params (go-playground/validator struct
	// tags); workflow and MCP-backend tools only publish a JSON Schema, so
	// that schema is enforced here, once, ahead of dispatch.
	if desc.Source != "builtin" && len(desc.Schema) > 0 {
		if err := validateAgainstSchema(desc.Schema, params); err != nil {
			return nil, dael.Wrap(dael.CodeParamInvalid, err, name)
		}
	}
	result, err := handler(ctx, params)
	if err != nil {
		if derr, ok := err.(*dael.Error); ok {
			return nil, derr
		}
		// A handler's own plain error (e.g. a network error surfaced by an
		// MCP backend's transport) carries no opinion from the registry on
		// whether it is worth retrying. retry.IsRecoverable inspects the
		// error itself (context deadline, net.OpError, a recoverable-style
		// message) to override TOOL_FAILED's static non-retryable
		// default when the failure looks transient.
		wrapped := dael.Wrap(dael.CodeToolFailed, err, name)
		if retry.IsRecoverable(err) {
			wrapped.Retryable = true
		}
		return nil, wrapped
	}
	return result, nil
}

// validateAgainstSchema checks params against a tool's published JSON
// Schema before dispatch, so a malformed call fails as PARAM_INVALID
// instead of surfacing whatever error the backend itself returns.
func validateAgainstSchema(schema map[string]any, params map[string]any) error {
	schemaLoader := gojsonschema.NewGoLoader(schema)
	docLoader := gojsonschema.NewGoLoader(params)
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("invalid tool schema: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("parameters do not match tool schema: %s", strings.Join(msgs, "; "))
}
