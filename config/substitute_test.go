package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstitute_PlainVariable(t *testing.T) {
	t.Setenv("DAEL_TEST_VAR", "hello")
	out, err := Substitute("value: ${DAEL_TEST_VAR}")
	require.NoError(t, err)
	assert.Equal(t, "value: hello", out)
}

func TestSubstitute_UnsetPlainVariableIsEmpty(t *testing.T) {
	require.NoError(t, os.Unsetenv("DAEL_TEST_UNSET"))
	out, err := Substitute("value: ${DAEL_TEST_UNSET}")
	require.NoError(t, err)
	assert.Equal(t, "value: ", out)
}

func TestSubstitute_DefaultUsedWhenUnset(t *testing.T) {
	require.NoError(t, os.Unsetenv("DAEL_TEST_UNSET"))
	out, err := Substitute("value: ${DAEL_TEST_UNSET:-fallback}")
	require.NoError(t, err)
	assert.Equal(t, "value: fallback", out)
}

func TestSubstitute_DefaultNotUsedWhenSet(t *testing.T) {
	t.Setenv("DAEL_TEST_VAR", "actual")
	out, err := Substitute("value: ${DAEL_TEST_VAR:-fallback}")
	require.NoError(t, err)
	assert.Equal(t, "value: actual", out)
}

func TestSubstitute_RequiredErrorsWhenUnset(t *testing.T) {
	require.NoError(t, os.Unsetenv("DAEL_TEST_UNSET"))
	_, err := Substitute("value: ${DAEL_TEST_UNSET:?must be set}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be set")
}

func TestSubstitute_RequiredPassesWhenSet(t *testing.T) {
	t.Setenv("DAEL_TEST_VAR", "actual")
	out, err := Substitute("value: ${DAEL_TEST_VAR:?must be set}")
	require.NoError(t, err)
	assert.Equal(t, "value: actual", out)
}
