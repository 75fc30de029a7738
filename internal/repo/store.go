package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Pipeworks/internal/domain"
)

// Store — точка входа в хранилище графов и журнала runs.
//
// Все операции выполняются внутри транзакции: fn получает Tx и
// либо целиком фиксируется (nil), либо целиком откатывается (ошибка).
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx — операции, доступные внутри транзакции.
type Tx interface {
	PipelineStore
	RunStore
	WorkflowStore
	WorkflowRunStore
}

// PipelineStore — каталог pipelines.
type PipelineStore interface {
	CreatePipeline(ctx context.Context, p *domain.Pipeline) error
	GetPipeline(ctx context.Context, id uuid.UUID) (*domain.Pipeline, error)
	UpdatePipeline(ctx context.Context, p *domain.Pipeline) error
	ListPipelines(ctx context.Context) ([]domain.Pipeline, error)

	// CountPipelineReferences — количество неудалённых узлов, ссылающихся на pipeline.
	CountPipelineReferences(ctx context.Context, pipelineID uuid.UUID) (int, error)
}

// RunStore — runs, журнал состояний, входы, артефакты и консоль.
type RunStore interface {
	// NextRunSequence блокирует pipeline и возвращает следующий номер run.
	NextRunSequence(ctx context.Context, pipelineID uuid.UUID) (int, error)
	CreateRun(ctx context.Context, run *domain.PipelineRun) error
	GetRun(ctx context.Context, id uuid.UUID) (*domain.PipelineRun, error)

	// LockRun читает run с блокировкой строки до конца транзакции.
	LockRun(ctx context.Context, id uuid.UUID) (*domain.PipelineRun, error)
	ListRuns(ctx context.Context, pipelineID uuid.UUID) ([]domain.PipelineRun, error)

	// ListRunsInState возвращает runs, текущее состояние которых state
	// и было записано раньше olderThan. Run, переотправленный позже
	// olderThan (MarkRunsEnqueued), не возвращается.
	ListRunsInState(ctx context.Context, state domain.RunState, olderThan time.Time, limit int) ([]uuid.UUID, error)

	// MarkRunsEnqueued запоминает время последней переотправки задач runs.
	MarkRunsEnqueued(ctx context.Context, ids []uuid.UUID, at time.Time) error

	AppendRunState(ctx context.Context, st *domain.PipelineRunState) error
	ListRunStates(ctx context.Context, runID uuid.UUID) ([]domain.PipelineRunState, error)

	// CurrentRunState возвращает последнюю запись журнала; ErrNotFound для пустого журнала.
	CurrentRunState(ctx context.Context, runID uuid.UUID) (domain.RunState, error)

	AddRunInput(ctx context.Context, in *domain.PipelineRunInput) error
	ListRunInputs(ctx context.Context, runID uuid.UUID) ([]domain.PipelineRunInput, error)

	AddArtifact(ctx context.Context, a *domain.PipelineRunArtifact) error
	ListArtifacts(ctx context.Context, runID uuid.UUID) ([]domain.PipelineRunArtifact, error)

	AppendConsole(ctx context.Context, c *domain.ConsoleChunk) error
	ListConsole(ctx context.Context, runID uuid.UUID) ([]domain.ConsoleChunk, error)
}

// WorkflowStore — workflows, узлы и рёбра графа.
// List* возвращают только неудалённые записи в порядке создания.
type WorkflowStore interface {
	CreateWorkflow(ctx context.Context, w *domain.Workflow) error
	GetWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)

	// LockWorkflow сериализует изменения графа одного workflow.
	LockWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)
	UpdateWorkflow(ctx context.Context, w *domain.Workflow) error
	ListWorkflows(ctx context.Context) ([]domain.Workflow, error)

	CreateNode(ctx context.Context, n *domain.WorkflowPipeline) error
	GetNode(ctx context.Context, id uuid.UUID) (*domain.WorkflowPipeline, error)
	UpdateNode(ctx context.Context, n *domain.WorkflowPipeline) error
	ListNodes(ctx context.Context, workflowID uuid.UUID) ([]domain.WorkflowPipeline, error)

	CreateEdge(ctx context.Context, e *domain.WorkflowPipelineDependency) error
	GetEdge(ctx context.Context, id uuid.UUID) (*domain.WorkflowPipelineDependency, error)
	UpdateEdge(ctx context.Context, e *domain.WorkflowPipelineDependency) error
	ListEdges(ctx context.Context, workflowID uuid.UUID) ([]domain.WorkflowPipelineDependency, error)
}

// WorkflowRunStore — запуски workflows и связь узел → run.
type WorkflowRunStore interface {
	CreateWorkflowRun(ctx context.Context, wr *domain.WorkflowRun) error
	GetWorkflowRun(ctx context.Context, id uuid.UUID) (*domain.WorkflowRun, error)
	CreateWorkflowPipelineRun(ctx context.Context, r *domain.WorkflowPipelineRun) error
	ListWorkflowPipelineRuns(ctx context.Context, workflowRunID uuid.UUID) ([]domain.WorkflowPipelineRun, error)

	// GetWorkflowPipelineRunByRunID — ErrNotFound для run, запущенного вне workflow.
	GetWorkflowPipelineRunByRunID(ctx context.Context, runID uuid.UUID) (*domain.WorkflowPipelineRun, error)
}
