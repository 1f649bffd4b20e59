// Package web implements the HTTP API of §6: workflows and runs resources
// under /api/v1, plus /health and /metrics. Grounded on the teacher's own
// preference for net/http.ServeMux over a routing framework (mirrored by
// SPEC_FULL.md §8's decision not to wire echo/v4 from the pack, since it
// would duplicate what net/http already covers here), using Go 1.22's
// method+pattern ServeMux syntax for path parameters instead of a router
// dependency.
package web

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bioinfoflow/bioinfoflow/domain/run"
	"github.com/bioinfoflow/bioinfoflow/engine"
)

// NewServer builds the HTTP handler for the engine's REST API.
func NewServer(eng *engine.Engine) http.Handler {
	mux := http.NewServeMux()

	h := &handler{engine: eng}
	mux.HandleFunc("GET /health", h.health)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/workflows", h.listWorkflows)
	mux.HandleFunc("POST /api/v1/workflows", h.createWorkflow)
	mux.HandleFunc("GET /api/v1/workflows/{id}", h.getWorkflow)
	mux.HandleFunc("POST /api/v1/workflows/{id}/run", h.runWorkflow)

	mux.HandleFunc("GET /api/v1/runs", h.listRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", h.getRun)
	mux.HandleFunc("GET /api/v1/runs/{id}/steps", h.getRunSteps)
	mux.HandleFunc("GET /api/v1/runs/{id}/logs/{step}", h.getStepLogs)
	mux.HandleFunc("POST /api/v1/runs/{id}/resume", h.resumeRun)
	mux.HandleFunc("POST /api/v1/runs/{id}/cancel", h.cancelRun)
	mux.HandleFunc("DELETE /api/v1/runs/{id}", h.deleteRun)

	return withCORS(mux)
}

// withCORS wraps handler with permissive CORS headers, matching the
// engine's use as a locally-driven pipeline tool rather than a
// multi-tenant public service (§1 Non-goals: authenticated multi-tenant
// operation).
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type handler struct {
	engine *engine.Engine
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusForRunError(err error) int {
	if run.IsKind(err, "RepositoryError") {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}
