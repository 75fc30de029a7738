package api

import (
	"net/http"
)

// ListPipelines возвращает список неудалённых pipelines.
// GET /api/v1/pipelines
func (h *Handler) ListPipelines(w http.ResponseWriter, r *http.Request) {
	pipelines, err := h.catalog.ListPipelines(r.Context())
	if HandleError(w, r, err) {
		return
	}
	List(w, pipelines, len(pipelines))
}

// CreatePipeline создаёт новый pipeline.
// POST /api/v1/pipelines
func (h *Handler) CreatePipeline(w http.ResponseWriter, r *http.Request) {
	var req PipelineRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.catalog.CreatePipeline(r.Context(), req.ToDomain())
	if HandleError(w, r, err) {
		return
	}
	Created(w, p)
}

// GetPipeline возвращает pipeline по ID.
// GET /api/v1/pipelines/{id}
func (h *Handler) GetPipeline(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	p, err := h.catalog.GetPipeline(r.Context(), id)
	if HandleError(w, r, err) {
		return
	}
	Success(w, p)
}

// UpdatePipeline заменяет описание pipeline.
// Отклоняется с 409, пока pipeline используется в workflow.
// PUT /api/v1/pipelines/{id}
func (h *Handler) UpdatePipeline(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req PipelineRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p := req.ToDomain()
	p.ID = id
	updated, err := h.catalog.UpdatePipeline(r.Context(), p)
	if HandleError(w, r, err) {
		return
	}
	Success(w, updated)
}

// DeletePipeline мягко удаляет pipeline.
// DELETE /api/v1/pipelines/{id}
func (h *Handler) DeletePipeline(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if HandleError(w, r, h.catalog.DeletePipeline(r.Context(), id)) {
		return
	}
	NoContent(w)
}
