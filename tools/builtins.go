package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ploston/dael"
)

// CodeRunner is the narrow surface the python_exec built-in needs from a
// sandbox.Sandbox, kept separate to avoid an import cycle.
type CodeRunner interface {
	Run(ctx context.Context, source string, execCtx *dael.ExecutionContext, timeout time.Duration) (any, error)
}

// ConfigStore is the in-process key/value store backing the configuration
// built-ins used while a server runs in "configuration" mode (§6).
type ConfigStore interface {
	Get(key string) (any, bool)
	Set(key string, value any) error
	Validate() []string
	Done() error
	Location() string
}

var validate = validator.New()

type pythonExecParams struct {
	Code string `json:"code" validate:"required"`
}

// RegisterPythonExec wires the python_exec built-in, which runs arbitrary
// workflow-authored code through the sandbox outside of a code step's own
// direct execution (e.g. ad hoc evaluation via the CLI's "test" command).
func RegisterPythonExec(r *Registry, runner CodeRunner, execCtx func() *dael.ExecutionContext) {
	r.RegisterBuiltin(Descriptor{
		Name:        "python_exec",
		Description: "execute a code snippet in the sandbox",
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"code": map[string]any{"type": "string"}},
			"required":   []string{"code"},
		},
	}, func(ctx context.Context, params map[string]any) (any, error) {
		code, _ := params["code"].(string)
		var p pythonExecParams
		p.Code = code
		if err := validate.Struct(p); err != nil {
			return nil, dael.Wrap(dael.CodeParamInvalid, err, "python_exec")
		}
		return runner.Run(ctx, p.Code, execCtx(), 30*time.Second)
	})
}

// RegisterConfigTools wires the five configuration-mode built-ins: get,
// set, validate, done, and location.
func RegisterConfigTools(r *Registry, store ConfigStore) {
	r.RegisterBuiltin(Descriptor{Name: "config_get", Description: "read one configuration key"}, func(ctx context.Context, params map[string]any) (any, error) {
		key, _ := params["key"].(string)
		if key == "" {
			return nil, dael.NewError(dael.CodeParamInvalid, "config_get requires a non-empty key", "config_get")
		}
		value, ok := store.Get(key)
		if !ok {
			return nil, dael.NewError(dael.CodeParamInvalid, fmt.Sprintf("no configuration key %q is set", key), "config_get")
		}
		return value, nil
	})

	r.RegisterBuiltin(Descriptor{Name: "config_set", Description: "write one configuration key"}, func(ctx context.Context, params map[string]any) (any, error) {
		key, _ := params["key"].(string)
		if key == "" {
			return nil, dael.NewError(dael.CodeParamInvalid, "config_set requires a non-empty key", "config_set")
		}
		if err := store.Set(key, params["value"]); err != nil {
			return nil, dael.Wrap(dael.CodeParamInvalid, err, "config_set")
		}
		return map[string]any{"key": key, "set": true}, nil
	})

	r.RegisterBuiltin(Descriptor{Name: "config_validate", Description: "validate the current configuration"}, func(ctx context.Context, params map[string]any) (any, error) {
		problems := store.Validate()
		return map[string]any{"valid": len(problems) == 0, "problems": problems}, nil
	})

	r.RegisterBuiltin(Descriptor{Name: "config_done", Description: "finalize and persist the current configuration"}, func(ctx context.Context, params map[string]any) (any, error) {
		if problems := store.Validate(); len(problems) > 0 {
			return nil, dael.NewError(dael.CodeConfigInvalid, fmt.Sprintf("configuration is invalid: %v", problems))
		}
		if err := store.Done(); err != nil {
			return nil, dael.Wrap(dael.CodeConfigInvalid, err)
		}
		return map[string]any{"done": true}, nil
	})

	r.RegisterBuiltin(Descriptor{Name: "config_location", Description: "report where configuration will be persisted"}, func(ctx context.Context, params map[string]any) (any, error) {
		return map[string]any{"location": store.Location()}, nil
	})
}
