package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		RequestID(h.logger),
		Recovery(),
		Logging(),
	)

	// Pipelines
	mux.Handle("GET /api/v1/pipelines", chain(http.HandlerFunc(h.ListPipelines)))
	mux.Handle("POST /api/v1/pipelines", chain(http.HandlerFunc(h.CreatePipeline)))
	mux.Handle("GET /api/v1/pipelines/{id}", chain(http.HandlerFunc(h.GetPipeline)))
	mux.Handle("PUT /api/v1/pipelines/{id}", chain(http.HandlerFunc(h.UpdatePipeline)))
	mux.Handle("DELETE /api/v1/pipelines/{id}", chain(http.HandlerFunc(h.DeletePipeline)))

	// Runs
	mux.Handle("GET /api/v1/pipelines/{id}/runs", chain(http.HandlerFunc(h.ListRuns)))
	mux.Handle("POST /api/v1/pipelines/{id}/runs", chain(http.HandlerFunc(h.CreateRun)))
	mux.Handle("GET /api/v1/runs/{id}", chain(http.HandlerFunc(h.GetRun)))
	mux.Handle("PUT /api/v1/runs/{id}/state", chain(http.HandlerFunc(h.UpdateRunState)))
	mux.Handle("POST /api/v1/runs/{id}/cancel", chain(http.HandlerFunc(h.CancelRun)))
	mux.Handle("POST /api/v1/runs/{id}/console", chain(http.HandlerFunc(h.AppendConsole)))
	mux.Handle("POST /api/v1/runs/{id}/artifacts", chain(http.HandlerFunc(h.UploadArtifact)))
	mux.Handle("GET /api/v1/runs/{id}/sources", chain(http.HandlerFunc(h.ListSourceRuns)))
	mux.Handle("GET /api/v1/runs/{id}/destinations", chain(http.HandlerFunc(h.ListDestRuns)))

	// Workflows
	mux.Handle("GET /api/v1/workflows", chain(http.HandlerFunc(h.ListWorkflows)))
	mux.Handle("POST /api/v1/workflows", chain(http.HandlerFunc(h.CreateWorkflow)))
	mux.Handle("GET /api/v1/workflows/{id}", chain(http.HandlerFunc(h.GetWorkflow)))
	mux.Handle("DELETE /api/v1/workflows/{id}", chain(http.HandlerFunc(h.DeleteWorkflow)))
	mux.Handle("POST /api/v1/workflows/{id}/nodes", chain(http.HandlerFunc(h.AddNode)))
	mux.Handle("POST /api/v1/workflows/{id}/edges", chain(http.HandlerFunc(h.AddEdge)))
	mux.Handle("POST /api/v1/workflows/{id}/edges/check", chain(http.HandlerFunc(h.CheckEdge)))
	mux.Handle("DELETE /api/v1/nodes/{id}", chain(http.HandlerFunc(h.RemoveNode)))
	mux.Handle("DELETE /api/v1/edges/{id}", chain(http.HandlerFunc(h.RemoveEdge)))

	// Workflow runs
	mux.Handle("POST /api/v1/workflows/{id}/runs", chain(http.HandlerFunc(h.CreateWorkflowRun)))
	mux.Handle("GET /api/v1/workflow-runs/{id}", chain(http.HandlerFunc(h.GetWorkflowRun)))
}
