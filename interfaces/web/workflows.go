package web

import (
	"encoding/json"
	"net/http"

	"github.com/bioinfoflow/bioinfoflow/domain/workflow"
	"github.com/bioinfoflow/bioinfoflow/engine"
)

// workflowDoc mirrors the YAML workflow document's JSON shape (§3), used
// both to decode POST /workflows bodies and to encode GET responses.
type workflowDoc struct {
	Name        string                     `json:"name"`
	Version     string                     `json:"version"`
	Description string                     `json:"description,omitempty"`
	Config      map[string]workflow.Value  `json:"config,omitempty"`
	Inputs      map[string]string          `json:"inputs,omitempty"`
	Metadata    workflowMetadataDoc        `json:"metadata,omitempty"`
	Steps       map[string]workflowStepDoc `json:"steps"`
}

type workflowMetadataDoc struct {
	Author  string   `json:"author,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	License string   `json:"license,omitempty"`
}

type workflowStepDoc struct {
	Container string             `json:"container"`
	Command   string             `json:"command"`
	After     []string           `json:"after,omitempty"`
	Resources workflow.Resources `json:"resources,omitempty"`
}

func toWorkflowDoc(wf *workflow.Workflow) workflowDoc {
	doc := workflowDoc{
		Name:        wf.Name(),
		Version:     wf.Version(),
		Description: wf.Description(),
		Config:      wf.Config(),
		Inputs:      wf.Inputs(),
		Metadata: workflowMetadataDoc{
			Author:  wf.Metadata().Author,
			Tags:    wf.Metadata().Tags,
			License: wf.Metadata().License,
		},
		Steps: make(map[string]workflowStepDoc, len(wf.Steps())),
	}
	for name, step := range wf.Steps() {
		doc.Steps[name] = workflowStepDoc{
			Container: step.Container(),
			Command:   step.Command(),
			After:     step.After(),
			Resources: step.Resources(),
		}
	}
	return doc
}

func fromWorkflowDoc(doc workflowDoc) (*workflow.Workflow, error) {
	wf := workflow.NewWorkflow(doc.Name, doc.Version)
	wf.SetDescription(doc.Description)
	if doc.Config != nil {
		wf.SetConfig(doc.Config)
	}
	if doc.Inputs != nil {
		wf.SetInputs(doc.Inputs)
	}
	wf.SetMetadata(workflow.Metadata{
		Author:  doc.Metadata.Author,
		Tags:    doc.Metadata.Tags,
		License: doc.Metadata.License,
	})
	for name, step := range doc.Steps {
		def := workflow.NewStepDefinition(name, step.Container, step.Command, step.Resources, step.After)
		if err := wf.AddStep(def); err != nil {
			return nil, err
		}
	}
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return wf, nil
}

func (h *handler) listWorkflows(w http.ResponseWriter, r *http.Request) {
	all, err := h.engine.ListWorkflows(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	docs := make([]workflowDoc, 0, len(all))
	for _, wf := range all {
		docs = append(docs, toWorkflowDoc(wf))
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *handler) getWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	wf, err := h.engine.GetWorkflow(r.Context(), id, r.URL.Query().Get("version"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkflowDoc(wf))
}

func (h *handler) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var doc workflowDoc
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	wf, err := fromWorkflowDoc(doc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	registered, err := h.engine.RegisterWorkflow(r.Context(), wf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkflowDoc(registered))
}

type runRequest struct {
	Inputs        map[string]string `json:"inputs,omitempty"`
	Parallel      int               `json:"parallel,omitempty"`
	TimeLimit     int64             `json:"time_limit_seconds,omitempty"`
	DisableLimits bool              `json:"disable_time_limits,omitempty"`
}

func (h *handler) runWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req runRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	version := r.URL.Query().Get("version")
	if version == "" {
		wf, err := h.engine.GetWorkflow(r.Context(), id, "")
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		version = wf.Version()
	}

	rn, err := h.engine.RunRegistered(r.Context(), id, version, req.Inputs, engine.RunOptions{
		Parallel:      req.Parallel,
		TimeLimit:     req.TimeLimit,
		DisableLimits: req.DisableLimits,
	})
	if err != nil {
		writeError(w, statusForRunError(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, toRunDoc(rn))
}
