package workflow

import (
	"os"

	"gopkg.in/yaml.v3"
)

// doc mirrors the YAML workflow document schema (§6). Scalar config values
// are decoded through yaml.Node so both string and integer config entries
// survive into the Value tree without a lossy interface{} round-trip.
type doc struct {
	Name        string                `yaml:"name"`
	Version     string                `yaml:"version"`
	Description string                `yaml:"description"`
	Config      map[string]yaml.Node  `yaml:"config"`
	Inputs      map[string]string     `yaml:"inputs"`
	Metadata    *docMetadata          `yaml:"metadata"`
	Steps       yaml.Node             `yaml:"steps"`
}

type docMetadata struct {
	Author  string   `yaml:"author"`
	Tags    []string `yaml:"tags"`
	License string   `yaml:"license"`
}

type docStep struct {
	Container string        `yaml:"container"`
	Command   string        `yaml:"command"`
	Resources docResources  `yaml:"resources"`
	After     []string      `yaml:"after"`
}

type docResources struct {
	CPU       int    `yaml:"cpu"`
	Memory    string `yaml:"memory"`
	TimeLimit string `yaml:"time_limit"`
}

// LoadFile parses and validates a workflow document from disk.
func LoadFile(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewWorkflowErrorf("cannot read workflow file %s: %v", path, err)
	}
	return Load(data)
}

// Load parses and validates a workflow document from YAML bytes, preserving
// step declaration order as it appears in the document (the scheduler's
// tie-break, §4.3, depends on this).
func Load(data []byte) (*Workflow, error) {
	var d doc
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, NewWorkflowErrorf("malformed workflow document: %v", err)
	}
	if d.Name == "" {
		return nil, NewWorkflowError("workflow name is required")
	}
	if d.Version == "" {
		return nil, NewWorkflowError("workflow version is required")
	}
	if d.Steps.Kind != yaml.MappingNode && d.Steps.Kind != 0 {
		return nil, NewWorkflowError("steps must be a mapping")
	}

	wf := NewWorkflow(d.Name, d.Version)
	wf.SetDescription(d.Description)
	wf.SetInputs(d.Inputs)
	wf.SetConfig(decodeConfig(d.Config))
	if d.Metadata != nil {
		wf.SetMetadata(Metadata{
			Author:  d.Metadata.Author,
			Tags:    d.Metadata.Tags,
			License: d.Metadata.License,
		})
	}

	names, steps, err := decodeSteps(&d.Steps)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		s := steps[name]
		step := NewStepDefinition(name, s.Container, s.Command, Resources{
			CPU:       s.Resources.CPU,
			Memory:    s.Resources.Memory,
			TimeLimit: s.Resources.TimeLimit,
		}, s.After)
		if err := wf.AddStep(step); err != nil {
			return nil, err
		}
	}

	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return wf, nil
}

// decodeSteps walks the raw mapping node so step order matches the document
// order (yaml.v3 decodes maps in document order via Content pairs; decoding
// straight into a Go map would lose that order).
func decodeSteps(node *yaml.Node) ([]string, map[string]docStep, error) {
	names := make([]string, 0)
	steps := make(map[string]docStep)
	if node.Kind == 0 {
		return names, steps, nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valNode := node.Content[i+1]
		var s docStep
		if err := valNode.Decode(&s); err != nil {
			return nil, nil, NewWorkflowErrorf("step %s: %v", keyNode.Value, err)
		}
		names = append(names, keyNode.Value)
		steps[keyNode.Value] = s
	}
	return names, steps, nil
}

func decodeConfig(raw map[string]yaml.Node) map[string]Value {
	out := make(map[string]Value, len(raw))
	for k, node := range raw {
		switch node.Tag {
		case "!!int":
			var n int64
			if err := node.Decode(&n); err == nil {
				out[k] = Int(n)
				continue
			}
		}
		out[k] = Str(node.Value)
	}
	return out
}
