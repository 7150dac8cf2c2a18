// Package config loads the server's layered YAML configuration: discovery
// across a fixed path order, environment-variable substitution, and
// defaults merged in with dario.cat/mergo.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Mode is the server's operating mode (§6): "configuration" walks an
// operator through setting up backends via the config_* built-ins,
// "running" serves workflows and tools normally.
type Mode string

const (
	ModeConfiguration Mode = "configuration"
	ModeRunning       Mode = "running"
)

// MCPBackendConfig names one external MCP backend to spawn over stdio.
type MCPBackendConfig struct {
	ID      string   `yaml:"id"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
	Env     []string `yaml:"env,omitempty"`
}

// ExecutionConfig bounds concurrent Engine.Execute calls and the fallback
// step timeout.
type ExecutionConfig struct {
	MaxConcurrent     int     `yaml:"max_concurrent"`
	SystemTimeoutSecs float64 `yaml:"system_default_timeout"`
}

// LoggingConfig configures the slog/tint logger (§ ambient stack).
type LoggingConfig struct {
	Level        string          `yaml:"level"`
	Format       string          `yaml:"format"` // "text" or "json"
	ShowParams   bool            `yaml:"show_params"`
	ShowResults  bool            `yaml:"show_results"`
	TruncateAt   int             `yaml:"truncate_at"`
	PerComponent map[string]string `yaml:"per_component,omitempty"`
}

// Config is the fully resolved, merged, substituted configuration.
type Config struct {
	Mode          Mode               `yaml:"mode"`
	WorkflowsDir  string             `yaml:"workflows_dir"`
	Execution     ExecutionConfig    `yaml:"execution"`
	Logging       LoggingConfig      `yaml:"logging"`
	MCPBackends   []MCPBackendConfig `yaml:"mcp_backends,omitempty"`
	ServerAddress string             `yaml:"server_address,omitempty"`
}

// defaults is merged underneath whatever the loaded file specifies, so any
// field the file omits falls back to a sane value.
func defaults() Config {
	return Config{
		Mode:         ModeRunning,
		WorkflowsDir: "./workflows",
		Execution: ExecutionConfig{
			MaxConcurrent:     10,
			SystemTimeoutSecs: 30,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			TruncateAt: 500,
		},
	}
}

// discoveryPaths is the fixed order config files are searched in when no
// explicit path is given: an environment variable, then the working
// directory, then the user's home directory.
func discoveryPaths() []string {
	var paths []string
	if env := os.Getenv("DAEL_CONFIG"); env != "" {
		paths = append(paths, env)
	}
	paths = append(paths, "./ploston-config.yaml")
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".ploston", "config.yaml"))
	}
	return paths
}

// Load resolves configuration from an explicit path, or by walking
// discoveryPaths() in order and using the first file that exists. Env var
// substitution runs before YAML parsing; the result is merged onto
// defaults() so unset fields get sane values.
func Load(explicitPath string) (*Config, error) {
	path := explicitPath
	if path == "" {
		for _, candidate := range discoveryPaths() {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	cfg := defaults()
	if path == "" {
		return &cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}
	substituted, err := Substitute(string(raw))
	if err != nil {
		return nil, fmt.Errorf("substituting environment variables in %q: %w", path, err)
	}

	var fromFile Config
	if err := yaml.Unmarshal([]byte(substituted), &fromFile); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}
	if err := mergo.Merge(&fromFile, cfg); err != nil {
		return nil, fmt.Errorf("merging config defaults: %w", err)
	}
	return &fromFile, nil
}
