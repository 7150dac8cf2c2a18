package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store is an in-process, mutable key/value configuration used while the
// server runs in "configuration" mode, persisted to disk as YAML on Done.
// It implements tools.ConfigStore.
type Store struct {
	mu       sync.RWMutex
	path     string
	values   map[string]any
	required []string
}

// NewStore creates a Store that will persist to path once Done is called.
// required names keys that must be set before Validate reports no problems.
func NewStore(path string, required []string) *Store {
	return &Store{path: path, values: make(map[string]any), required: required}
}

func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *Store) Set(key string, value any) error {
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *Store) Validate() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var problems []string
	for _, key := range s.required {
		if _, ok := s.values[key]; !ok {
			problems = append(problems, fmt.Sprintf("missing required key %q", key))
		}
	}
	return problems
}

func (s *Store) Done() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := yaml.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("marshaling configuration: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing configuration to %q: %w", s.path, err)
	}
	return nil
}

func (s *Store) Location() string {
	return s.path
}
