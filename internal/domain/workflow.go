package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Workflow — граф pipelines, где артефакты одного становятся входами другого.
type Workflow struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsDeleted   bool      `json:"is_deleted"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate проверяет обязательные поля workflow.
func (w *Workflow) Validate() error {
	if strings.TrimSpace(w.Name) == "" {
		return Validationf("workflow name is required")
	}
	return nil
}

// WorkflowPipeline — узел графа: размещение pipeline внутри workflow.
type WorkflowPipeline struct {
	ID         uuid.UUID `json:"id"`
	WorkflowID uuid.UUID `json:"workflow_id"`
	PipelineID uuid.UUID `json:"pipeline_id"`
	IsDeleted  bool      `json:"is_deleted"`
	CreatedAt  time.Time `json:"created_at"`
}

// WorkflowPipelineDependency — ребро графа: выход FromNodeID питает ToNodeID.
//
// Граф неудалённых рёбер внутри workflow всегда ацикличен.
type WorkflowPipelineDependency struct {
	ID         uuid.UUID `json:"id"`
	WorkflowID uuid.UUID `json:"workflow_id"`
	FromNodeID uuid.UUID `json:"from_node_id"`
	ToNodeID   uuid.UUID `json:"to_node_id"`
	IsDeleted  bool      `json:"is_deleted"`
	CreatedAt  time.Time `json:"created_at"`
}

// WorkflowRun — один запуск всего графа workflow.
type WorkflowRun struct {
	ID          uuid.UUID `json:"id"`
	WorkflowID  uuid.UUID `json:"workflow_id"`
	CallbackURL string    `json:"callback_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`

	// Runs — pipeline runs узлов (заполняется при чтении).
	Runs []WorkflowPipelineRun `json:"runs,omitempty"`
}

// WorkflowPipelineRun связывает узел графа с pipeline run, созданным для него.
type WorkflowPipelineRun struct {
	ID                 uuid.UUID `json:"id"`
	WorkflowRunID      uuid.UUID `json:"workflow_run_id"`
	WorkflowPipelineID uuid.UUID `json:"workflow_pipeline_id"`
	PipelineRunID      uuid.UUID `json:"pipeline_run_id"`
	CreatedAt          time.Time `json:"created_at"`
}
