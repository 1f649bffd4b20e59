package workflow

import "gopkg.in/yaml.v3"

// snapshotDoc mirrors doc (loader.go) but with plain Go values in place of
// yaml.Node, since this direction only ever encodes.
type snapshotDoc struct {
	Name        string                 `yaml:"name"`
	Version     string                 `yaml:"version"`
	Description string                 `yaml:"description,omitempty"`
	Config      map[string]interface{} `yaml:"config,omitempty"`
	Inputs      map[string]string      `yaml:"inputs,omitempty"`
	Metadata    *docMetadata           `yaml:"metadata,omitempty"`
	Steps       map[string]docStep     `yaml:"steps"`
}

// MarshalDocument renders wf back into the workflow document shape it was
// loaded from. The engine writes the result into the run directory before
// the scheduler's first dispatch, so a run stays reproducible even if the
// source file is edited later (SPEC_FULL.md §9's copy-on-run behaviour).
func (w *Workflow) MarshalDocument() ([]byte, error) {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	cfg := make(map[string]interface{}, len(w.config))
	for k, v := range w.config {
		cfg[k] = v.raw()
	}

	steps := make(map[string]docStep, len(w.steps))
	for name, s := range w.steps {
		steps[name] = docStep{
			Container: s.Container(),
			Command:   s.Command(),
			Resources: docResources{
				CPU:       s.Resources().CPU,
				Memory:    s.Resources().Memory,
				TimeLimit: s.Resources().TimeLimit,
			},
			After: s.After(),
		}
	}

	var meta *docMetadata
	if w.metadata.Author != "" || len(w.metadata.Tags) > 0 || w.metadata.License != "" {
		meta = &docMetadata{Author: w.metadata.Author, Tags: w.metadata.Tags, License: w.metadata.License}
	}

	return yaml.Marshal(snapshotDoc{
		Name:        w.name,
		Version:     w.version,
		Description: w.description,
		Config:      cfg,
		Inputs:      w.inputs,
		Metadata:    meta,
		Steps:       steps,
	})
}
