package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestStore_SetAndGet(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "config.yaml"), nil)
	require.NoError(t, s.Set("api_key", "secret"))
	v, ok := s.Get("api_key")
	require.True(t, ok)
	assert.Equal(t, "secret", v)
}

func TestStore_SetRejectsEmptyKey(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "config.yaml"), nil)
	assert.Error(t, s.Set("", "x"))
}

func TestStore_ValidateReportsMissingRequiredKeys(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "config.yaml"), []string{"api_key", "region"})
	require.NoError(t, s.Set("api_key", "secret"))
	problems := s.Validate()
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "region")
}

func TestStore_ValidatePassesWhenAllRequiredKeysSet(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "config.yaml"), []string{"api_key"})
	require.NoError(t, s.Set("api_key", "secret"))
	assert.Empty(t, s.Validate())
}

func TestStore_DonePersistsValuesAsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	s := NewStore(path, nil)
	require.NoError(t, s.Set("region", "us-east-1"))
	require.NoError(t, s.Done())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var values map[string]any
	require.NoError(t, yaml.Unmarshal(data, &values))
	assert.Equal(t, "us-east-1", values["region"])
}

func TestStore_Location(t *testing.T) {
	s := NewStore("/tmp/dael/config.yaml", nil)
	assert.Equal(t, "/tmp/dael/config.yaml", s.Location())
}
