package api

import (
	"net/http"

	"github.com/shaiso/Pipeworks/internal/domain"
	"github.com/shaiso/Pipeworks/internal/graph"
)

// ListWorkflows возвращает список неудалённых workflows.
// GET /api/v1/workflows
func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := h.catalog.ListWorkflows(r.Context())
	if HandleError(w, r, err) {
		return
	}
	List(w, workflows, len(workflows))
}

// CreateWorkflow создаёт пустой workflow.
// POST /api/v1/workflows
func (h *Handler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req WorkflowRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	wf, err := h.catalog.CreateWorkflow(r.Context(), domain.Workflow{
		Name:        req.Name,
		Description: req.Description,
	})
	if HandleError(w, r, err) {
		return
	}
	Created(w, wf)
}

// GetWorkflow возвращает workflow вместе с узлами и рёбрами.
// GET /api/v1/workflows/{id}
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	g, err := h.catalog.GetWorkflow(r.Context(), id)
	if HandleError(w, r, err) {
		return
	}
	Success(w, g)
}

// DeleteWorkflow мягко удаляет workflow.
// DELETE /api/v1/workflows/{id}
func (h *Handler) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if HandleError(w, r, h.catalog.DeleteWorkflow(r.Context(), id)) {
		return
	}
	NoContent(w)
}

// AddNode размещает pipeline в workflow.
// POST /api/v1/workflows/{id}/nodes
func (h *Handler) AddNode(w http.ResponseWriter, r *http.Request) {
	workflowID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req NodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	node, err := h.catalog.AddNode(r.Context(), workflowID, req.PipelineID)
	if HandleError(w, r, err) {
		return
	}
	Created(w, node)
}

// RemoveNode удаляет узел вместе с его рёбрами.
// DELETE /api/v1/nodes/{id}
func (h *Handler) RemoveNode(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if HandleError(w, r, h.catalog.RemoveNode(r.Context(), id)) {
		return
	}
	NoContent(w)
}

// AddEdge добавляет зависимость между узлами.
// Ребро, замыкающее цикл, отклоняется с 400.
// POST /api/v1/workflows/{id}/edges
func (h *Handler) AddEdge(w http.ResponseWriter, r *http.Request) {
	workflowID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req EdgeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	edge, err := h.catalog.AddDependency(r.Context(), workflowID, req.FromNodeID, req.ToNodeID)
	if HandleError(w, r, err) {
		return
	}
	Created(w, edge)
}

// CheckEdge проверяет, замкнёт ли ребро цикл, не изменяя граф.
// POST /api/v1/workflows/{id}/edges/check
func (h *Handler) CheckEdge(w http.ResponseWriter, r *http.Request) {
	workflowID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req EdgeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cyclic, err := h.catalog.WouldCreateCycle(r.Context(), workflowID, graph.Edge{From: req.FromNodeID, To: req.ToNodeID})
	if HandleError(w, r, err) {
		return
	}
	Success(w, CycleCheckResponse{WouldCreateCycle: cyclic})
}

// RemoveEdge удаляет зависимость.
// DELETE /api/v1/edges/{id}
func (h *Handler) RemoveEdge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if HandleError(w, r, h.catalog.RemoveDependency(r.Context(), id)) {
		return
	}
	NoContent(w)
}

// CreateWorkflowRun запускает workflow: входы получают корневые узлы.
// POST /api/v1/workflows/{id}/runs
func (h *Handler) CreateWorkflowRun(w http.ResponseWriter, r *http.Request) {
	workflowID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req RunRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	wr, err := h.runs.CreateWorkflowRun(r.Context(), workflowID, req)
	if HandleError(w, r, err) {
		return
	}
	Created(w, wr)
}

// GetWorkflowRun возвращает запуск workflow с runs узлов.
// GET /api/v1/workflow-runs/{id}
func (h *Handler) GetWorkflowRun(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	wr, err := h.runs.GetWorkflowRun(r.Context(), id)
	if HandleError(w, r, err) {
		return
	}
	Success(w, wr)
}
