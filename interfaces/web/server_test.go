package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioinfoflow/bioinfoflow/domain/workflow"
	"github.com/bioinfoflow/bioinfoflow/engine"
	"github.com/bioinfoflow/bioinfoflow/infrastructure/container"
	"github.com/bioinfoflow/bioinfoflow/infrastructure/eventbus"
	"github.com/bioinfoflow/bioinfoflow/infrastructure/persistence/memory"
	"github.com/bioinfoflow/bioinfoflow/infrastructure/rundir"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	eng := engine.New(
		engine.WithRepository(memory.NewStateRepository()),
		engine.WithContainerDriver(container.NewFakeDriver()),
		engine.WithRunDirManager(rundir.NewManager(t.TempDir())),
		engine.WithEventBus(eventbus.New()),
		engine.WithDefaultParallelism(2),
	)
	return NewServer(eng)
}

func doRequest(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

const registerBody = `{
  "name": "demo",
  "version": "1",
  "steps": {
    "align": {"container": "alpine", "command": "exit 0"},
    "report": {"container": "alpine", "command": "exit 0", "after": ["align"]}
  }
}`

func TestServer_HealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_CreateAndGetWorkflow(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/workflows", registerBody)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/workflows/demo", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var doc workflowDoc
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "demo", doc.Name)
	assert.Len(t, doc.Steps, 2)
}

func TestServer_CreateWorkflowRejectsInvalidBody(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/workflows", `{"name": "no-steps", "version": "1", "steps": {}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_RunWorkflowThenListAndFetchRun(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusCreated, doRequest(t, srv, http.MethodPost, "/api/v1/workflows", registerBody).Code)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/workflows/demo/run", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var ran runDoc
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ran))
	assert.Equal(t, "COMPLETED", ran.Status)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []runDoc
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 1)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/runs/"+ran.RunID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/runs/"+ran.RunID+"/steps", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var steps []stepExecutionDoc
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &steps))
	assert.Len(t, steps, 2)
}

func TestServer_DeleteUnknownRunReturns404(t *testing.T) {
	srv := newTestServer(t)

	// A run that never gets a workflow registered under it cannot exist, so
	// exercise DeleteRun's 404 path directly against an unknown run id.
	rec := doRequest(t, srv, http.MethodDelete, "/api/v1/runs/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ResumeUnknownRunReturns404(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/runs/does-not-exist/resume", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_GetUnknownRunReturns404(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/runs/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_CancelUnknownRunConflicts(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/runs/does-not-exist/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_GetStepLogsReturnsFileContents(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusCreated, doRequest(t, srv, http.MethodPost, "/api/v1/workflows", registerBody).Code)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/workflows/demo/run", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var ran runDoc
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ran))

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/runs/"+ran.RunID+"/logs/align", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFromWorkflowDoc_RoundTripsThroughValidate(t *testing.T) {
	doc := workflowDoc{
		Name:    "rt",
		Version: "1",
		Steps: map[string]workflowStepDoc{
			"only": {Container: "alpine", Command: "exit 0", Resources: workflow.Resources{TimeLimit: "5m"}},
		},
	}
	wf, err := fromWorkflowDoc(doc)
	require.NoError(t, err)
	assert.Equal(t, "rt", wf.Name())
}
