package api

import (
	"errors"
	"net/http"

	"github.com/shaiso/Pipeworks/internal/domain"
	"github.com/shaiso/Pipeworks/internal/ledger"
	"github.com/shaiso/Pipeworks/internal/telemetry"
)

// formFile — имя поля multipart-формы с артефактом.
const formFile = "file"

// ListRuns возвращает runs pipeline.
// GET /api/v1/pipelines/{id}/runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	pipelineID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	runs, err := h.runs.ListRuns(r.Context(), pipelineID)
	if HandleError(w, r, err) {
		return
	}
	List(w, runs, len(runs))
}

// CreateRun запускает pipeline вне workflow.
// POST /api/v1/pipelines/{id}/runs
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	pipelineID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req RunRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	run, err := h.runs.CreatePipelineRun(r.Context(), pipelineID, req)
	if HandleError(w, r, err) {
		return
	}
	Created(w, run)
}

// GetRun возвращает run с журналом состояний, входами, артефактами и консолью.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	view, err := h.runs.GetRun(r.Context(), id)
	if HandleError(w, r, err) {
		return
	}
	Success(w, view)
}

// UpdateRunState выполняет переход состояния run.
// PUT /api/v1/runs/{id}/state
func (h *Handler) UpdateRunState(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req StateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	next, err := domain.ParseRunState(req.State)
	if HandleError(w, r, err) {
		return
	}

	tr, err := h.runs.UpdateState(r.Context(), id, next)
	if HandleError(w, r, err) {
		return
	}
	Success(w, transitionResponse(tr))
}

// CancelRun отменяет run.
// POST /api/v1/runs/{id}/cancel
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	tr, err := h.runs.CancelRun(r.Context(), id)
	if HandleError(w, r, err) {
		return
	}

	telemetry.FromContext(r.Context()).Info("run cancelled", "run_id", id, "from", tr.From)
	Success(w, transitionResponse(tr))
}

// AppendConsole дописывает порцию вывода в консоль run.
// POST /api/v1/runs/{id}/console
func (h *Handler) AppendConsole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req ConsoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if HandleError(w, r, h.runs.AppendConsole(r.Context(), id, req.Stdout, req.Stderr)) {
		return
	}
	NoContent(w)
}

// UploadArtifact принимает файл артефакта (multipart, поле "file").
// POST /api/v1/runs/{id}/artifacts
func (h *Handler) UploadArtifact(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	file, header, err := r.FormFile(formFile)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "artifact too large")
			return
		}
		BadRequest(w, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	artifact, err := h.runs.UploadArtifact(r.Context(), id, header.Filename, file, header.Size)
	if HandleError(w, r, err) {
		return
	}
	Created(w, artifact)
}

// ListSourceRuns возвращает runs непосредственных предшественников в workflow.
// GET /api/v1/runs/{id}/sources
func (h *Handler) ListSourceRuns(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	links, err := h.runs.FindSourceRuns(r.Context(), id)
	if HandleError(w, r, err) {
		return
	}
	List(w, links, len(links))
}

// ListDestRuns возвращает runs непосредственных потомков в workflow.
// GET /api/v1/runs/{id}/destinations
func (h *Handler) ListDestRuns(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	links, err := h.runs.FindDestRuns(r.Context(), id)
	if HandleError(w, r, err) {
		return
	}
	List(w, links, len(links))
}

func transitionResponse(tr ledger.Transition) TransitionResponse {
	return TransitionResponse{
		RunID: tr.Run.ID,
		From:  tr.From,
		To:    tr.To,
		At:    tr.At,
	}
}
