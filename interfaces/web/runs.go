package web

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bioinfoflow/bioinfoflow/domain/run"
	"github.com/bioinfoflow/bioinfoflow/domain/runner"
	"github.com/bioinfoflow/bioinfoflow/domain/workflow"
)

// runDoc is the JSON shape of a Run, field names per §3.
type runDoc struct {
	RunID           string            `json:"run_id"`
	WorkflowName    string            `json:"workflow_name"`
	WorkflowVersion string            `json:"workflow_version"`
	Status          string            `json:"status"`
	StartTime       *time.Time        `json:"start_time,omitempty"`
	EndTime         *time.Time        `json:"end_time,omitempty"`
	Inputs          map[string]string `json:"inputs,omitempty"`
	RunDir          string            `json:"run_dir"`
}

type stepExecutionDoc struct {
	StepName      string     `json:"step_name"`
	Attempt       int        `json:"attempt"`
	Status        string     `json:"status"`
	StartTime     *time.Time `json:"start_time,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	ExitCode      int        `json:"exit_code"`
	ErrorText     string     `json:"error_text,omitempty"`
	LogFile       string     `json:"log_file,omitempty"`
	ProducedFiles []string   `json:"produced_files,omitempty"`
}

func toRunDoc(r *run.Run) runDoc {
	doc := runDoc{
		RunID:           r.RunID(),
		WorkflowName:    r.WorkflowName(),
		WorkflowVersion: r.WorkflowVersion(),
		Status:          string(r.Status()),
		Inputs:          r.Inputs(),
		RunDir:          r.RunDir(),
	}
	if t := r.StartTime(); !t.IsZero() {
		doc.StartTime = &t
	}
	if t := r.EndTime(); !t.IsZero() {
		doc.EndTime = &t
	}
	return doc
}

func toStepExecutionDoc(se *run.StepExecution) stepExecutionDoc {
	snap := se.Snapshot()
	doc := stepExecutionDoc{
		StepName:      snap.StepName,
		Attempt:       snap.Attempt,
		Status:        string(snap.Status),
		ExitCode:      snap.ExitCode,
		ErrorText:     snap.ErrorText,
		LogFile:       snap.LogFile,
		ProducedFiles: snap.ProducedFiles,
	}
	if !snap.StartTime.IsZero() {
		doc.StartTime = &snap.StartTime
	}
	if !snap.EndTime.IsZero() {
		doc.EndTime = &snap.EndTime
	}
	return doc
}

func (h *handler) listRuns(w http.ResponseWriter, r *http.Request) {
	filter := run.ListFilter{WorkflowName: r.URL.Query().Get("workflow")}
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if n, err := strconv.Atoi(limitParam); err == nil {
			filter.Limit = n
		}
	}
	runs, err := h.engine.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	docs := make([]runDoc, 0, len(runs))
	for _, rn := range runs {
		docs = append(docs, toRunDoc(rn))
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *handler) getRun(w http.ResponseWriter, r *http.Request) {
	rn, err := h.engine.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDoc(rn))
}

func (h *handler) getRunSteps(w http.ResponseWriter, r *http.Request) {
	rn, err := h.engine.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	steps := rn.StepExecutions()
	docs := make([]stepExecutionDoc, 0, len(steps))
	for _, se := range steps {
		docs = append(docs, toStepExecutionDoc(se))
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *handler) getStepLogs(w http.ResponseWriter, r *http.Request) {
	rn, err := h.engine.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	se, ok := rn.StepExecution(r.PathValue("step"))
	if !ok {
		writeError(w, http.StatusNotFound, workflow.NewWorkflowErrorf("no such step: %s", r.PathValue("step")))
		return
	}
	if se.LogFile() == "" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		return
	}
	f, err := os.Open(se.LogFile())
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, f)
}

type resumeRequest struct {
	Overrides map[string]struct {
		Command   string              `json:"command,omitempty"`
		Resources *workflow.Resources `json:"resources,omitempty"`
	} `json:"overrides,omitempty"`
}

func (h *handler) resumeRun(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	overrides := make(map[string]runner.Override, len(req.Overrides))
	for name, o := range req.Overrides {
		overrides[name] = runner.Override{Command: o.Command, Resources: o.Resources}
	}

	rn, err := h.engine.Resume(r.Context(), r.PathValue("id"), overrides)
	if err != nil {
		writeError(w, statusForRunError(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, toRunDoc(rn))
}

func (h *handler) cancelRun(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Cancel(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) deleteRun(w http.ResponseWriter, r *http.Request) {
	err := h.engine.DeleteRun(r.Context(), r.PathValue("id"))
	if err == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if strings.Contains(err.Error(), "not terminal") {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeError(w, http.StatusNotFound, err)
}
