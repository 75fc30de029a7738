package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shaiso/Pipeworks/internal/catalog"
	"github.com/shaiso/Pipeworks/internal/domain"
	"github.com/shaiso/Pipeworks/internal/graph"
	"github.com/shaiso/Pipeworks/internal/orchestrator"
	"github.com/shaiso/Pipeworks/internal/repo"
	"github.com/shaiso/Pipeworks/internal/telemetry"
)

// ErrorCode — код ошибки API.
type ErrorCode string

const (
	ErrCodeBadRequest        ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeConflict          ErrorCode = "CONFLICT"
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrCodeGraph             ErrorCode = "GRAPH_ERROR"
	ErrCodeInternalError     ErrorCode = "INTERNAL_ERROR"
)

// ErrorResponse — структура ответа с ошибкой.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail — детали ошибки.
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// DataResponse — структура успешного ответа.
type DataResponse struct {
	Data any `json:"data"`
}

// ListResponse — структура ответа со списком.
type ListResponse struct {
	Data  any `json:"data"`
	Total int `json:"total"`
}

// JSON отправляет JSON ответ.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Success отправляет успешный ответ с данными.
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, DataResponse{Data: data})
}

// Created отправляет ответ о создании ресурса.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, DataResponse{Data: data})
}

// NoContent отправляет ответ без тела (204).
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// List отправляет ответ со списком.
func List(w http.ResponseWriter, data any, total int) {
	JSON(w, http.StatusOK, ListResponse{Data: data, Total: total})
}

// Error отправляет ответ с ошибкой.
func Error(w http.ResponseWriter, status int, code ErrorCode, message string) {
	JSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// BadRequest отправляет ошибку 400.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// NotFound отправляет ошибку 404.
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// InternalError логирует причину и отправляет ошибку 500 без деталей.
func InternalError(w http.ResponseWriter, r *http.Request, err error) {
	telemetry.FromContext(r.Context()).Error("internal error", "error", err, "path", r.URL.Path)
	Error(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
}

// graphErrors — ошибки графа: запрос некорректен, состояние не изменено.
var graphErrors = []error{
	graph.ErrCyclicDependency,
	graph.ErrSelfDependency,
	graph.ErrUnknownNode,
	catalog.ErrNodeDeleted,
	catalog.ErrWorkflowMismatch,
	orchestrator.ErrEmptyWorkflow,
}

// HandleError преобразует ошибку сервиса в HTTP ответ.
// Возвращает false, если err == nil.
func HandleError(w http.ResponseWriter, r *http.Request, err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, repo.ErrNotFound):
		NotFound(w, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		Error(w, http.StatusBadRequest, ErrCodeInvalidTransition, err.Error())
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrUnknownState):
		BadRequest(w, err.Error())
	case isAny(err, graphErrors):
		Error(w, http.StatusBadRequest, ErrCodeGraph, err.Error())
	case errors.Is(err, repo.ErrAlreadyExists),
		errors.Is(err, catalog.ErrPipelineReferenced),
		errors.Is(err, orchestrator.ErrRunTerminal):
		Error(w, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		InternalError(w, r, err)
	}
	return true
}

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
