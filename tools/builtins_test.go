package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ploston/dael"
)

type fakeCodeRunner struct {
	lastSource string
	result     any
	err        error
}

func (f *fakeCodeRunner) Run(ctx context.Context, source string, execCtx *dael.ExecutionContext, timeout time.Duration) (any, error) {
	f.lastSource = source
	return f.result, f.err
}

type fakeConfigStore struct {
	values   map[string]any
	required []string
	doneCalled bool
}

func newFakeConfigStore(required ...string) *fakeConfigStore {
	return &fakeConfigStore{values: map[string]any{}, required: required}
}

func (s *fakeConfigStore) Get(key string) (any, bool) { v, ok := s.values[key]; return v, ok }
func (s *fakeConfigStore) Set(key string, value any) error {
	s.values[key] = value
	return nil
}
func (s *fakeConfigStore) Validate() []string {
	var problems []string
	for _, k := range s.required {
		if _, ok := s.values[k]; !ok {
			problems = append(problems, k)
		}
	}
	return problems
}
func (s *fakeConfigStore) Done() error       { s.doneCalled = true; return nil }
func (s *fakeConfigStore) Location() string  { return "/tmp/config.yaml" }

func TestRegisterPythonExec_RunsCodeThroughRunner(t *testing.T) {
	runner := &fakeCodeRunner{result: 42}
	r := New(&fakeLister{}, nil, nil)
	RegisterPythonExec(r, runner, func() *dael.ExecutionContext {
		return dael.NewExecutionContext("exec_1", nil, nil)
	})

	_, h, ok := r.Lookup("python_exec")
	require.True(t, ok)
	result, err := h(context.Background(), map[string]any{"code": "1 + 1"})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, "1 + 1", runner.lastSource)
}

func TestRegisterPythonExec_RejectsMissingCode(t *testing.T) {
	runner := &fakeCodeRunner{}
	r := New(&fakeLister{}, nil, nil)
	RegisterPythonExec(r, runner, func() *dael.ExecutionContext {
		return dael.NewExecutionContext("exec_1", nil, nil)
	})

	_, h, _ := r.Lookup("python_exec")
	_, err := h(context.Background(), map[string]any{})
	require.Error(t, err)
	derr, ok := err.(*dael.Error)
	require.True(t, ok)
	assert.Equal(t, dael.CodeParamInvalid, derr.Code)
}

func TestRegisterConfigTools_GetSetRoundTrip(t *testing.T) {
	store := newFakeConfigStore()
	r := New(&fakeLister{}, nil, nil)
	RegisterConfigTools(r, store)

	_, setH, _ := r.Lookup("config_set")
	_, err := setH(context.Background(), map[string]any{"key": "region", "value": "us-east-1"})
	require.NoError(t, err)

	_, getH, _ := r.Lookup("config_get")
	value, err := getH(context.Background(), map[string]any{"key": "region"})
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", value)
}

func TestRegisterConfigTools_GetUnknownKeyErrors(t *testing.T) {
	store := newFakeConfigStore()
	r := New(&fakeLister{}, nil, nil)
	RegisterConfigTools(r, store)

	_, getH, _ := r.Lookup("config_get")
	_, err := getH(context.Background(), map[string]any{"key": "nope"})
	require.Error(t, err)
}

func TestRegisterConfigTools_ValidateReportsMissingKeys(t *testing.T) {
	store := newFakeConfigStore("api_key")
	r := New(&fakeLister{}, nil, nil)
	RegisterConfigTools(r, store)

	_, validateH, _ := r.Lookup("config_validate")
	result, err := validateH(context.Background(), nil)
	require.NoError(t, err)
	m := result.(map[string]any)
	assert.Equal(t, false, m["valid"])
}

func TestRegisterConfigTools_DoneFailsWhenInvalid(t *testing.T) {
	store := newFakeConfigStore("api_key")
	r := New(&fakeLister{}, nil, nil)
	RegisterConfigTools(r, store)

	_, doneH, _ := r.Lookup("config_done")
	_, err := doneH(context.Background(), nil)
	require.Error(t, err)
	assert.False(t, store.doneCalled)
}

func TestRegisterConfigTools_DonePersistsWhenValid(t *testing.T) {
	store := newFakeConfigStore("api_key")
	store.values["api_key"] = "secret"
	r := New(&fakeLister{}, nil, nil)
	RegisterConfigTools(r, store)

	_, doneH, _ := r.Lookup("config_done")
	_, err := doneH(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, store.doneCalled)
}

func TestRegisterConfigTools_LocationReportsStorePath(t *testing.T) {
	store := newFakeConfigStore()
	r := New(&fakeLister{}, nil, nil)
	RegisterConfigTools(r, store)

	_, locH, _ := r.Lookup("config_location")
	result, err := locH(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"location": "/tmp/config.yaml"}, result)
}
