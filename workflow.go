package dael

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

var (
	namePattern    = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]*$`)
	semverPattern  = regexp.MustCompile(`^\d+\.\d+(\.\d+)?(-[0-9A-Za-z.-]+)?(\+[0-9A-Za-z.-]+)?$`)
)

// InputType enumerates the admissible scalar/structural kinds for an input.
type InputType string

const (
	TypeString  InputType = "string"
	TypeInteger InputType = "integer"
	TypeNumber  InputType = "number"
	TypeBoolean InputType = "boolean"
	TypeArray   InputType = "array"
	TypeObject  InputType = "object"
)

// PackagesProfile names one of the three fixed sandbox import allowlists.
type PackagesProfile string

const (
	ProfileMinimal     PackagesProfile = "minimal"
	ProfileStandard    PackagesProfile = "standard"
	ProfileDataScience PackagesProfile = "data_science"
)

// Packages configures the Sandbox's effective import allowlist: the union
// of a named profile and any additional explicitly allowed imports (§6).
type Packages struct {
	Profile    PackagesProfile `json:"profile,omitempty" yaml:"profile,omitempty"`
	Additional []string        `json:"additional,omitempty" yaml:"additional,omitempty"`
}

// InputSpec describes one named workflow input.
type InputSpec struct {
	Name        string    `json:"name" yaml:"-"`
	Type        InputType `json:"type" yaml:"type"`
	Required    bool      `json:"required" yaml:"required"`
	Default     any       `json:"default,omitempty" yaml:"default,omitempty"`
	Enum        []any     `json:"enum,omitempty" yaml:"enum,omitempty"`
	Pattern     string    `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Minimum     *float64  `json:"minimum,omitempty" yaml:"minimum,omitempty"`
	Maximum     *float64  `json:"maximum,omitempty" yaml:"maximum,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
}

// UnmarshalYAML implements the three admissible shapes for an input spec
// element named in §6: a bare string (required string input), a
// single-key mapping to a scalar default (optional input defaulted to
// string type), or a single-key mapping to a full spec object.
func (in *InputSpec) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var name string
		if err := value.Decode(&name); err != nil {
			return fmt.Errorf("invalid input entry: %w", err)
		}
		in.Name = name
		in.Type = TypeString
		in.Required = true
		return nil
	case yaml.MappingNode:
		if len(value.Content) != 2 {
			return fmt.Errorf("input mapping must have exactly one key")
		}
		nameNode, valueNode := value.Content[0], value.Content[1]
		var name string
		if err := nameNode.Decode(&name); err != nil {
			return fmt.Errorf("invalid input name: %w", err)
		}
		in.Name = name
		if valueNode.Kind == yaml.MappingNode {
			var full struct {
				Type        InputType `yaml:"type"`
				Required    *bool     `yaml:"required"`
				Default     any       `yaml:"default"`
				Enum        []any     `yaml:"enum"`
				Pattern     string    `yaml:"pattern"`
				Minimum     *float64  `yaml:"minimum"`
				Maximum     *float64  `yaml:"maximum"`
				Description string    `yaml:"description"`
			}
			if err := valueNode.Decode(&full); err != nil {
				return fmt.Errorf("invalid input spec for %q: %w", name, err)
			}
			in.Type = full.Type
			if in.Type == "" {
				in.Type = TypeString
			}
			in.Default = full.Default
			in.Enum = full.Enum
			in.Pattern = full.Pattern
			in.Minimum = full.Minimum
			in.Maximum = full.Maximum
			in.Description = full.Description
			if full.Required != nil {
				in.Required = *full.Required
			} else {
				in.Required = in.Default == nil
			}
			return nil
		}
		// {name: default} shape
		var def any
		if err := valueNode.Decode(&def); err != nil {
			return fmt.Errorf("invalid default for input %q: %w", name, err)
		}
		in.Type = TypeString
		in.Default = def
		in.Required = false
		return nil
	default:
		return fmt.Errorf("unsupported input entry shape")
	}
}

// OutputSpec describes one named workflow output. Exactly one of FromPath
// or Value must be present.
type OutputSpec struct {
	Name        string `json:"name" yaml:"name"`
	FromPath    string `json:"from_path,omitempty" yaml:"from_path,omitempty"`
	Value       string `json:"value,omitempty" yaml:"value,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Options configures a Workflow; it is the direct YAML unmarshal target.
type Options struct {
	Name        string         `json:"name" yaml:"name"`
	Version     string         `json:"version" yaml:"version"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Packages    *Packages      `json:"packages,omitempty" yaml:"packages,omitempty"`
	Defaults    Defaults       `json:"defaults,omitempty" yaml:"defaults,omitempty"`
	Inputs      []*InputSpec   `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Steps       []*Step        `json:"steps" yaml:"steps"`
	Output      string         `json:"output,omitempty" yaml:"output,omitempty"`
	Outputs     []*OutputSpec  `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

// Workflow is an immutable, parsed workflow definition (§3).
type Workflow struct {
	name        string
	version     string
	description string
	packages    *Packages
	defaults    Defaults
	inputs      []*InputSpec
	inputsByName map[string]*InputSpec
	steps       []*Step
	stepsByID   map[string]*Step
	output      string
	outputs     []*OutputSpec
}

// New validates opts and returns an immutable Workflow.
func New(opts Options) (*Workflow, error) {
	if opts.Name == "" || !namePattern.MatchString(opts.Name) {
		return nil, fmt.Errorf("workflow name %q does not match pattern %s", opts.Name, namePattern.String())
	}
	if opts.Version == "" || !semverPattern.MatchString(opts.Version) {
		return nil, fmt.Errorf("workflow version %q is not a valid semver-like string", opts.Version)
	}
	if len(opts.Steps) == 0 {
		return nil, fmt.Errorf("workflow must have at least one step")
	}
	if opts.Output != "" && len(opts.Outputs) > 0 {
		return nil, fmt.Errorf("exactly one of output/outputs may be present")
	}

	stepsByID := make(map[string]*Step, len(opts.Steps))
	for i, step := range opts.Steps {
		if step.ID == "" {
			return nil, fmt.Errorf("step at index %d is missing an id", i)
		}
		if _, exists := stepsByID[step.ID]; exists {
			return nil, fmt.Errorf("duplicate step id %q", step.ID)
		}
		if (step.Tool == nil) == (step.Code == "") {
			return nil, fmt.Errorf("step %q must set exactly one of tool or code", step.ID)
		}
		stepsByID[step.ID] = step
	}

	seen := make(map[string]bool, len(opts.Steps))
	for _, step := range opts.Steps {
		for _, dep := range step.DependsOn {
			if !seen[dep] {
				return nil, fmt.Errorf("step %q depends_on %q which is not an earlier step", step.ID, dep)
			}
		}
		seen[step.ID] = true
	}

	inputsByName := make(map[string]*InputSpec, len(opts.Inputs))
	for _, in := range opts.Inputs {
		if in.Type == "" {
			in.Type = TypeString
		}
		if len(in.Enum) > 0 && in.Default != nil {
			found := false
			for _, e := range in.Enum {
				if fmt.Sprint(e) == fmt.Sprint(in.Default) {
					found = true
					break
				}
			}
			if !found {
				return nil, fmt.Errorf("input %q: enum does not contain default", in.Name)
			}
		}
		inputsByName[in.Name] = in
	}

	return &Workflow{
		name:         opts.Name,
		version:      opts.Version,
		description:  opts.Description,
		packages:     opts.Packages,
		defaults:     opts.Defaults,
		inputs:       opts.Inputs,
		inputsByName: inputsByName,
		steps:        opts.Steps,
		stepsByID:    stepsByID,
		output:       opts.Output,
		outputs:      opts.Outputs,
	}, nil
}

func (w *Workflow) Name() string             { return w.name }
func (w *Workflow) Version() string          { return w.version }
func (w *Workflow) Description() string      { return w.description }
func (w *Workflow) Packages() *Packages      { return w.packages }
func (w *Workflow) Defaults() Defaults       { return w.defaults }
func (w *Workflow) Inputs() []*InputSpec     { return w.inputs }
func (w *Workflow) Steps() []*Step           { return w.steps }
func (w *Workflow) Output() string           { return w.output }
func (w *Workflow) Outputs() []*OutputSpec   { return w.outputs }

// GetInput looks up an input spec by name.
func (w *Workflow) GetInput(name string) (*InputSpec, bool) {
	spec, ok := w.inputsByName[name]
	return spec, ok
}

// GetStep looks up a step by id.
func (w *Workflow) GetStep(id string) (*Step, bool) {
	step, ok := w.stepsByID[id]
	return step, ok
}

// StepIDs returns the ids of all steps, in declaration order.
func (w *Workflow) StepIDs() []string {
	ids := make([]string, len(w.steps))
	for i, s := range w.steps {
		ids[i] = s.ID
	}
	return ids
}

// SortedInputNames returns input names in lexical order, used for
// deterministic tool-schema generation (§4.3).
func (w *Workflow) SortedInputNames() []string {
	names := make([]string, 0, len(w.inputsByName))
	for name := range w.inputsByName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadFile loads a workflow from a YAML file on disk.
func LoadFile(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}
	return LoadString(string(data))
}

// LoadString loads a workflow from a YAML document.
func LoadString(data string) (*Workflow, error) {
	var opts Options
	if err := yaml.Unmarshal([]byte(data), &opts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
	}
	return New(opts)
}
