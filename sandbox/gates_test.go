package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowedImportSet_DefaultsToMinimal(t *testing.T) {
	set := allowedImportSet("", nil)
	assert.True(t, set["strings"])
	assert.False(t, set["random"])
}

func TestAllowedImportSet_UnionsAdditional(t *testing.T) {
	set := allowedImportSet("minimal", []string{"csv"})
	assert.True(t, set["strings"])
	assert.True(t, set["csv"])
}

func TestAllowedImportSet_UnknownProfileFallsBackToMinimal(t *testing.T) {
	set := allowedImportSet("nonsense", nil)
	assert.Equal(t, allowedImportSet("minimal", nil), set)
}

func TestCheckImports_AllowsWhitelistedImport(t *testing.T) {
	allowed := allowedImportSet("standard", nil)
	err := checkImports(`import "strings"`, allowed)
	assert.NoError(t, err)
}

func TestCheckImports_RejectsDisallowedImport(t *testing.T) {
	allowed := allowedImportSet("minimal", nil)
	err := checkImports(`import "net/http"`, allowed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "net/http")
}

func TestCheckImports_RejectsDisallowedFromImport(t *testing.T) {
	allowed := allowedImportSet("minimal", nil)
	err := checkImports("from os import system", allowed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "os")
}

func TestCheckBuiltins_RejectsDeniedCall(t *testing.T) {
	err := checkBuiltins(`eval("1+1")`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "eval")
}

func TestCheckBuiltins_AllowsOrdinaryCode(t *testing.T) {
	err := checkBuiltins(`result := 1 + 1`)
	assert.NoError(t, err)
}

func TestCheckNoRecursiveCodeExec_RejectsPythonExec(t *testing.T) {
	err := checkNoRecursiveCodeExec(`call_tool("python_exec", {"code": "1"})`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "python_exec")
}

func TestCheckNoRecursiveCodeExec_AllowsOtherTools(t *testing.T) {
	err := checkNoRecursiveCodeExec(`call_tool("fetch_url", {"url": "x"})`)
	assert.NoError(t, err)
}

func TestCheckJSONSerializable_RejectsChannels(t *testing.T) {
	err := checkJSONSerializable(make(chan int))
	assert.Error(t, err)
}

func TestCheckJSONSerializable_AllowsPlainValues(t *testing.T) {
	err := checkJSONSerializable(map[string]any{"a": 1, "b": []any{"x", "y"}})
	assert.NoError(t, err)
}
