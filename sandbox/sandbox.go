// Package sandbox executes workflow code steps under the seven layers of
// containment described alongside the engine's design: static import
// gating, builtin denial, a tool-availability check, an explicit tool
// call-budget, a JSON-serializable
// boundary on tool parameters, wall-clock timeout, and a ban on recursive
// code execution through the python_exec tool. Evaluation itself runs on
// github.com/risor-io/risor, an embeddable Go-native scripting language.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/risor-io/risor"

	"github.com/ploston/dael"
)

const defaultCallBudget = 10

// ToolCaller is the narrow surface the sandbox needs from the Tool
// Invoker, kept separate to avoid an import cycle between sandbox and
// tools. IsAvailable backs layer 3: a code step may only reach a tool the
// Tool Invoker actually has registered.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, params map[string]any) (any, error)
	IsAvailable(name string) bool
}

// Sandbox runs one workflow's code steps, gated by that workflow's
// packages profile.
type Sandbox struct {
	allowed    map[string]bool
	toolCaller ToolCaller
	callBudget int
}

// New builds a Sandbox for a workflow's packages configuration. A nil
// packages value falls back to the "minimal" profile with no additions.
func New(packages *dael.Packages, toolCaller ToolCaller) *Sandbox {
	profile := ""
	var additional []string
	if packages != nil {
		profile = string(packages.Profile)
		additional = packages.Additional
	}
	return &Sandbox{
		allowed:    allowedImportSet(profile, additional),
		toolCaller: toolCaller,
		callBudget: defaultCallBudget,
	}
}

// WithCallBudget overrides the default per-execution tool-call budget.
func (s *Sandbox) WithCallBudget(n int) *Sandbox {
	if n > 0 {
		s.callBudget = n
	}
	return s
}

// Run evaluates one code step's source against the execution context
// snapshot, returning its final expression value. Errors are classified
// into the dael code-step error taxonomy: CODE_SYNTAX, CODE_RUNTIME,
// CODE_TIMEOUT, CODE_SECURITY.
func (s *Sandbox) Run(ctx context.Context, source string, execCtx *dael.ExecutionContext, timeout time.Duration) (any, error) {
	if err := checkImports(source, s.allowed); err != nil {
		return nil, dael.Wrap(dael.CodeCodeSecurity, err)
	}
	if err := checkBuiltins(source); err != nil {
		return nil, dael.Wrap(dael.CodeCodeSecurity, err)
	}
	if err := checkNoRecursiveCodeExec(source); err != nil {
		return nil, dael.Wrap(dael.CodeCodeSecurity, err)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	globals := map[string]any{
		"context":   execCtx.Snapshot(),
		"call_tool": s.boundCallTool(runCtx, execCtx),
	}

	result, err := risor.Eval(runCtx, source, risor.WithGlobals(globals))
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, dael.Wrap(dael.CodeCodeTimeout, fmt.Errorf("code step exceeded its %s timeout", timeout))
		}
		// boundCallTool raises its own classified *dael.Error (TOOL_REJECTED,
		// CODE_SECURITY); that classification must survive risor's wrapping
		// rather than being flattened into a generic CODE_RUNTIME.
		var derr *dael.Error
		if errors.As(err, &derr) {
			return nil, derr
		}
		if isSyntaxError(err) {
			return nil, dael.Wrap(dael.CodeCodeSyntax, err)
		}
		return nil, dael.Wrap(dael.CodeCodeRuntime, err)
	}
	return result, nil
}

// boundCallTool returns the "call_tool(name, params)" function exposed to
// sandboxed code, enforcing the call budget and the JSON-serializable
// boundary (layers 4 and 5) on every invocation.
func (s *Sandbox) boundCallTool(ctx context.Context, execCtx *dael.ExecutionContext) func(string, map[string]any) (any, error) {
	return func(name string, params map[string]any) (any, error) {
		if name == "python_exec" {
			return nil, dael.NewError(dael.CodeCodeSecurity, "a code step may not call the python_exec tool")
		}
		// Layer 3: the tool must actually be registered with the Tool
		// Invoker. Rejected here as TOOL_REJECTED (non-retryable) rather
		// than left to surface as the Invoker's own retryable
		// TOOL_UNAVAILABLE, which would make runCodeWithRetry retry a call
		// that can never succeed.
		if s.toolCaller == nil || !s.toolCaller.IsAvailable(name) {
			return nil, dael.NewError(dael.CodeToolRejected, fmt.Sprintf("tool %q is not available to this code step", name), name)
		}
		if err := checkJSONSerializable(params); err != nil {
			return nil, err
		}
		if execCtx.IncrementToolCalls() > s.callBudget {
			return nil, fmt.Errorf("code step exceeded its tool call budget of %d", s.callBudget)
		}
		return s.toolCaller.CallTool(ctx, name, params)
	}
}

// isSyntaxError heuristically distinguishes a compile-time failure from a
// runtime one, since risor surfaces both as plain errors.
func isSyntaxError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "parse error") ||
		strings.Contains(msg, "syntax error") ||
		strings.Contains(msg, "compile error") ||
		strings.Contains(msg, "unexpected token")
}
