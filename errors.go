package dael

import "fmt"

// Category classifies an Error into one of the broad buckets named in the
// error taxonomy: TOOL, EXECUTION, VALIDATION, WORKFLOW, SYSTEM.
type Category string

const (
	CategoryTool       Category = "TOOL"
	CategoryExecution  Category = "EXECUTION"
	CategoryValidation Category = "VALIDATION"
	CategoryWorkflow   Category = "WORKFLOW"
	CategorySystem     Category = "SYSTEM"
)

// Code is a canonical error code from the registry.
type Code string

const (
	CodeToolUnavailable Code = "TOOL_UNAVAILABLE"
	CodeToolTimeout     Code = "TOOL_TIMEOUT"
	CodeToolRejected    Code = "TOOL_REJECTED"
	CodeToolFailed      Code = "TOOL_FAILED"

	CodeCodeSyntax    Code = "CODE_SYNTAX"
	CodeCodeRuntime   Code = "CODE_RUNTIME"
	CodeCodeTimeout   Code = "CODE_TIMEOUT"
	CodeCodeSecurity  Code = "CODE_SECURITY"
	CodeTemplateError Code = "TEMPLATE_ERROR"

	CodeInputInvalid       Code = "INPUT_INVALID"
	CodeParamInvalid       Code = "PARAM_INVALID"
	CodeConfigPathInvalid  Code = "CONFIG_PATH_INVALID"

	CodeWorkflowNotFound  Code = "WORKFLOW_NOT_FOUND"
	CodeStepNotFound      Code = "STEP_NOT_FOUND"
	CodeCircularDependency Code = "CIRCULAR_DEPENDENCY"
	CodeWorkflowTimeout   Code = "WORKFLOW_TIMEOUT"

	CodeInternalError        Code = "INTERNAL_ERROR"
	CodeMCPConnectionFailed  Code = "MCP_CONNECTION_FAILED"
	CodeConfigInvalid        Code = "CONFIG_INVALID"
)

// registryEntry is the static, immutable shape of a code in the registry:
// its category, whether it is retryable by default, and the suggestion
// template shown to a caller.
type registryEntry struct {
	category   Category
	retryable  bool
	suggestion string
}

// errorRegistry is populated once at init and never mutated afterward,
// satisfying the "Error Registry is immutable after init" requirement.
var errorRegistry = map[Code]registryEntry{
	CodeToolUnavailable: {CategoryTool, true, "check that the backend for %q is running and reachable"},
	CodeToolTimeout:     {CategoryTool, true, "the tool %q did not respond within the deadline; consider raising its timeout"},
	CodeToolRejected:    {CategoryTool, false, "tool %q is not callable from this context"},
	CodeToolFailed:      {CategoryTool, false, "tool %q returned an error; inspect the detail field"},

	CodeCodeSyntax:    {CategoryExecution, false, "fix the syntax error or forbidden construct in the code step"},
	CodeCodeRuntime:   {CategoryExecution, false, "the code step raised an exception; inspect the detail field"},
	CodeCodeTimeout:   {CategoryExecution, false, "the code step exceeded its wall-clock timeout of %v seconds"},
	CodeCodeSecurity:  {CategoryExecution, false, "the code step attempted a disallowed operation"},
	CodeTemplateError: {CategoryExecution, false, "check that the referenced path exists in the execution context"},

	CodeInputInvalid:      {CategoryValidation, false, "check the workflow's input specification and supplied values"},
	CodeParamInvalid:      {CategoryValidation, false, "check the tool's parameter schema"},
	CodeConfigPathInvalid: {CategoryValidation, false, "check the configured path exists and is readable"},

	CodeWorkflowNotFound:   {CategoryWorkflow, false, "no workflow named %q is registered"},
	CodeStepNotFound:       {CategoryWorkflow, false, "no step named %q exists in this workflow"},
	CodeCircularDependency: {CategoryWorkflow, false, "remove the cycle among %v"},
	CodeWorkflowTimeout:    {CategoryWorkflow, false, "the workflow exceeded its overall deadline"},

	CodeInternalError:       {CategorySystem, false, "this is a bug; please report it"},
	CodeMCPConnectionFailed: {CategorySystem, true, "check that the MCP backend %q can be spawned/reached"},
	CodeConfigInvalid:       {CategorySystem, false, "fix the configuration file and restart"},
}

// Error is the structured, user-visible error shape described in §7:
// {code, category, message, detail?, suggestion, retryable}.
type Error struct {
	Code       Code   `json:"code"`
	Category   Category `json:"category"`
	Message    string `json:"message"`
	Detail     any    `json:"detail,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	Retryable  bool   `json:"retryable"`
	wrapped    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.wrapped
}

// NewError builds an Error from the registry. message is used as given;
// the supplied arguments, if any, fill the code's suggestion template.
func NewError(code Code, message string, args ...any) *Error {
	entry, ok := errorRegistry[code]
	if !ok {
		entry = registryEntry{category: CategorySystem, retryable: false, suggestion: ""}
	}
	suggestion := entry.suggestion
	if len(args) > 0 {
		suggestion = fmt.Sprintf(entry.suggestion, args...)
	}
	return &Error{
		Code:       code,
		Category:   entry.category,
		Message:    message,
		Suggestion: suggestion,
		Retryable:  entry.retryable,
	}
}

// Wrap builds an Error from the registry that also carries an underlying Go
// error for errors.Is/errors.As unwrapping and for the Detail field.
func Wrap(code Code, err error, args ...any) *Error {
	e := NewError(code, err.Error(), args...)
	e.Detail = err.Error()
	e.wrapped = err
	return e
}

// IsRetryable reports whether the default retryability for a registry code
// is true. A caller-constructed Error's own Retryable field always wins when
// one is available (see Error.Retryable).
func IsRetryable(code Code) bool {
	return errorRegistry[code].retryable
}

// CategoryOf returns the category a code belongs to in the registry.
func CategoryOf(code Code) Category {
	return errorRegistry[code].category
}
