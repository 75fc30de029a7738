package catalog

import "errors"

// Ошибки каталога.
var (
	// ErrNodeDeleted — узел графа удалён.
	ErrNodeDeleted = errors.New("workflow pipeline is deleted")

	// ErrPipelineReferenced — pipeline используется узлом workflow и неизменяем.
	ErrPipelineReferenced = errors.New("pipeline is referenced by a workflow")

	// ErrWorkflowMismatch — узел принадлежит другому workflow.
	ErrWorkflowMismatch = errors.New("workflow pipeline belongs to another workflow")
)
