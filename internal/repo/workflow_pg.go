package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shaiso/Pipeworks/internal/domain"
)

const (
	workflowColumns = `id, name, description, is_deleted, created_at, updated_at`
	nodeColumns     = `id, workflow_id, pipeline_id, is_deleted, created_at`
	edgeColumns     = `id, workflow_id, from_node_id, to_node_id, is_deleted, created_at`
)

// CreateWorkflow создаёт workflow.
func (t *pgTx) CreateWorkflow(ctx context.Context, w *domain.Workflow) error {
	query := `
		INSERT INTO workflows (` + workflowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := t.q.Exec(ctx, query, w.ID, w.Name, w.Description, w.IsDeleted, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert workflow: %w", mapError(err))
	}
	return nil
}

// GetWorkflow возвращает workflow по ID.
func (t *pgTx) GetWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1`
	return scanWorkflow(t.q.QueryRow(ctx, query, id))
}

// LockWorkflow возвращает workflow, блокируя строку до конца транзакции.
func (t *pgTx) LockWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1 FOR UPDATE`
	return scanWorkflow(t.q.QueryRow(ctx, query, id))
}

// UpdateWorkflow обновляет workflow.
func (t *pgTx) UpdateWorkflow(ctx context.Context, w *domain.Workflow) error {
	query := `
		UPDATE workflows
		SET name = $2, description = $3, is_deleted = $4, updated_at = $5
		WHERE id = $1
	`
	return t.exec(ctx, "update workflow", query, w.ID, w.Name, w.Description, w.IsDeleted, w.UpdatedAt)
}

// ListWorkflows возвращает неудалённые workflows.
func (t *pgTx) ListWorkflows(ctx context.Context) ([]domain.Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflows
		WHERE NOT is_deleted
		ORDER BY created_at, id
	`
	rows, err := t.q.Query(ctx, query)
	return collect(rows, err, scanWorkflow)
}

// --- Nodes ---

// CreateNode создаёт узел графа.
func (t *pgTx) CreateNode(ctx context.Context, n *domain.WorkflowPipeline) error {
	query := `
		INSERT INTO workflow_pipelines (` + nodeColumns + `)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := t.q.Exec(ctx, query, n.ID, n.WorkflowID, n.PipelineID, n.IsDeleted, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert workflow pipeline: %w", mapError(err))
	}
	return nil
}

// GetNode возвращает узел по ID (включая удалённые).
func (t *pgTx) GetNode(ctx context.Context, id uuid.UUID) (*domain.WorkflowPipeline, error) {
	query := `SELECT ` + nodeColumns + ` FROM workflow_pipelines WHERE id = $1`
	return scanNode(t.q.QueryRow(ctx, query, id))
}

// UpdateNode обновляет узел (используется для мягкого удаления).
func (t *pgTx) UpdateNode(ctx context.Context, n *domain.WorkflowPipeline) error {
	query := `UPDATE workflow_pipelines SET pipeline_id = $2, is_deleted = $3 WHERE id = $1`
	return t.exec(ctx, "update workflow pipeline", query, n.ID, n.PipelineID, n.IsDeleted)
}

// ListNodes возвращает неудалённые узлы workflow.
func (t *pgTx) ListNodes(ctx context.Context, workflowID uuid.UUID) ([]domain.WorkflowPipeline, error) {
	query := `
		SELECT ` + nodeColumns + `
		FROM workflow_pipelines
		WHERE workflow_id = $1 AND NOT is_deleted
		ORDER BY created_at, id
	`
	rows, err := t.q.Query(ctx, query, workflowID)
	return collect(rows, err, scanNode)
}

// --- Edges ---

// CreateEdge создаёт ребро графа.
func (t *pgTx) CreateEdge(ctx context.Context, e *domain.WorkflowPipelineDependency) error {
	query := `
		INSERT INTO workflow_pipeline_dependencies (` + edgeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := t.q.Exec(ctx, query, e.ID, e.WorkflowID, e.FromNodeID, e.ToNodeID, e.IsDeleted, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert dependency: %w", mapError(err))
	}
	return nil
}

// GetEdge возвращает ребро по ID (включая удалённые).
func (t *pgTx) GetEdge(ctx context.Context, id uuid.UUID) (*domain.WorkflowPipelineDependency, error) {
	query := `SELECT ` + edgeColumns + ` FROM workflow_pipeline_dependencies WHERE id = $1`
	return scanEdge(t.q.QueryRow(ctx, query, id))
}

// UpdateEdge обновляет ребро (используется для мягкого удаления).
func (t *pgTx) UpdateEdge(ctx context.Context, e *domain.WorkflowPipelineDependency) error {
	query := `UPDATE workflow_pipeline_dependencies SET is_deleted = $2 WHERE id = $1`
	return t.exec(ctx, "update dependency", query, e.ID, e.IsDeleted)
}

// ListEdges возвращает неудалённые рёбра workflow.
func (t *pgTx) ListEdges(ctx context.Context, workflowID uuid.UUID) ([]domain.WorkflowPipelineDependency, error) {
	query := `
		SELECT ` + edgeColumns + `
		FROM workflow_pipeline_dependencies
		WHERE workflow_id = $1 AND NOT is_deleted
		ORDER BY created_at, id
	`
	rows, err := t.q.Query(ctx, query, workflowID)
	return collect(rows, err, scanEdge)
}

// --- Workflow runs ---

// CreateWorkflowRun создаёт запуск workflow.
func (t *pgTx) CreateWorkflowRun(ctx context.Context, wr *domain.WorkflowRun) error {
	query := `
		INSERT INTO workflow_runs (id, workflow_id, callback_url, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := t.q.Exec(ctx, query, wr.ID, wr.WorkflowID, nullString(wr.CallbackURL), wr.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert workflow run: %w", mapError(err))
	}
	return nil
}

// GetWorkflowRun возвращает запуск workflow без связанных runs.
func (t *pgTx) GetWorkflowRun(ctx context.Context, id uuid.UUID) (*domain.WorkflowRun, error) {
	query := `SELECT id, workflow_id, callback_url, created_at FROM workflow_runs WHERE id = $1`

	var wr domain.WorkflowRun
	var callbackURL *string
	err := t.q.QueryRow(ctx, query, id).Scan(&wr.ID, &wr.WorkflowID, &callbackURL, &wr.CreatedAt)
	if err != nil {
		return nil, notFound(err, "workflow run")
	}
	wr.CallbackURL = fromNull(callbackURL)
	return &wr, nil
}

// CreateWorkflowPipelineRun связывает узел с его run.
func (t *pgTx) CreateWorkflowPipelineRun(ctx context.Context, r *domain.WorkflowPipelineRun) error {
	query := `
		INSERT INTO workflow_pipeline_runs (id, workflow_run_id, workflow_pipeline_id, pipeline_run_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := t.q.Exec(ctx, query, r.ID, r.WorkflowRunID, r.WorkflowPipelineID, r.PipelineRunID, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert workflow pipeline run: %w", mapError(err))
	}
	return nil
}

const workflowPipelineRunColumns = `id, workflow_run_id, workflow_pipeline_id, pipeline_run_id, created_at`

// ListWorkflowPipelineRuns возвращает runs узлов запуска workflow.
func (t *pgTx) ListWorkflowPipelineRuns(ctx context.Context, workflowRunID uuid.UUID) ([]domain.WorkflowPipelineRun, error) {
	query := `
		SELECT ` + workflowPipelineRunColumns + `
		FROM workflow_pipeline_runs
		WHERE workflow_run_id = $1
		ORDER BY created_at, id
	`
	rows, err := t.q.Query(ctx, query, workflowRunID)
	return collect(rows, err, scanWorkflowPipelineRun)
}

// GetWorkflowPipelineRunByRunID возвращает связь по ID pipeline run.
func (t *pgTx) GetWorkflowPipelineRunByRunID(ctx context.Context, runID uuid.UUID) (*domain.WorkflowPipelineRun, error) {
	query := `SELECT ` + workflowPipelineRunColumns + ` FROM workflow_pipeline_runs WHERE pipeline_run_id = $1`
	return scanWorkflowPipelineRun(t.q.QueryRow(ctx, query, runID))
}

func scanWorkflow(row pgx.Row) (*domain.Workflow, error) {
	var w domain.Workflow
	if err := row.Scan(&w.ID, &w.Name, &w.Description, &w.IsDeleted, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, notFound(err, "workflow")
	}
	return &w, nil
}

func scanNode(row pgx.Row) (*domain.WorkflowPipeline, error) {
	var n domain.WorkflowPipeline
	if err := row.Scan(&n.ID, &n.WorkflowID, &n.PipelineID, &n.IsDeleted, &n.CreatedAt); err != nil {
		return nil, notFound(err, "workflow pipeline")
	}
	return &n, nil
}

func scanEdge(row pgx.Row) (*domain.WorkflowPipelineDependency, error) {
	var e domain.WorkflowPipelineDependency
	if err := row.Scan(&e.ID, &e.WorkflowID, &e.FromNodeID, &e.ToNodeID, &e.IsDeleted, &e.CreatedAt); err != nil {
		return nil, notFound(err, "dependency")
	}
	return &e, nil
}

func scanWorkflowPipelineRun(row pgx.Row) (*domain.WorkflowPipelineRun, error) {
	var r domain.WorkflowPipelineRun
	if err := row.Scan(&r.ID, &r.WorkflowRunID, &r.WorkflowPipelineID, &r.PipelineRunID, &r.CreatedAt); err != nil {
		return nil, notFound(err, "workflow pipeline run")
	}
	return &r, nil
}
