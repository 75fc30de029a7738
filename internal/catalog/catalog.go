package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Pipeworks/internal/domain"
	"github.com/shaiso/Pipeworks/internal/repo"
)

// Service — операции над pipelines, workflows, узлами и рёбрами.
type Service struct {
	store  repo.Store
	logger *slog.Logger
	now    func() time.Time
}

// Config — конфигурация Service.
type Config struct {
	Store  repo.Store
	Logger *slog.Logger

	// Now — источник времени (default: time.Now).
	Now func() time.Time
}

// New создаёт новый Service.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:  cfg.Store,
		logger: logger,
		now:    now,
	}
}

// WorkflowGraph — workflow с неудалёнными узлами и рёбрами.
type WorkflowGraph struct {
	Workflow domain.Workflow                     `json:"workflow"`
	Nodes    []domain.WorkflowPipeline           `json:"nodes"`
	Edges    []domain.WorkflowPipelineDependency `json:"edges"`
}

// --- Pipelines ---

// CreatePipeline проверяет и сохраняет новый pipeline.
func (s *Service) CreatePipeline(ctx context.Context, p domain.Pipeline) (*domain.Pipeline, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	p.ID = uuid.New()
	p.IsDeleted = false
	p.CreatedAt = now
	p.UpdatedAt = now

	err := s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		return tx.CreatePipeline(ctx, &p)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("pipeline created", "pipeline_id", p.ID, "name", p.Name)
	return &p, nil
}

// GetPipeline возвращает неудалённый pipeline.
func (s *Service) GetPipeline(ctx context.Context, id uuid.UUID) (*domain.Pipeline, error) {
	var p *domain.Pipeline
	err := s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		var err error
		p, err = activePipeline(ctx, tx, id)
		return err
	})
	return p, err
}

// ListPipelines возвращает неудалённые pipelines.
func (s *Service) ListPipelines(ctx context.Context) ([]domain.Pipeline, error) {
	var list []domain.Pipeline
	err := s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		var err error
		list, err = tx.ListPipelines(ctx)
		return err
	})
	return list, err
}

// UpdatePipeline заменяет описание pipeline.
// Pipeline, на который ссылается узел workflow, изменить нельзя.
func (s *Service) UpdatePipeline(ctx context.Context, p domain.Pipeline) (*domain.Pipeline, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		existing, err := activePipeline(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		if err := ensureUnreferenced(ctx, tx, p.ID); err != nil {
			return err
		}
		p.CreatedAt = existing.CreatedAt
		p.UpdatedAt = s.now()
		p.IsDeleted = false
		return tx.UpdatePipeline(ctx, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DeletePipeline мягко удаляет pipeline, если на него нет ссылок.
func (s *Service) DeletePipeline(ctx context.Context, id uuid.UUID) error {
	return s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		p, err := activePipeline(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := ensureUnreferenced(ctx, tx, id); err != nil {
			return err
		}
		p.IsDeleted = true
		p.UpdatedAt = s.now()
		return tx.UpdatePipeline(ctx, p)
	})
}

// --- Workflows ---

// CreateWorkflow создаёт пустой workflow.
func (s *Service) CreateWorkflow(ctx context.Context, w domain.Workflow) (*domain.Workflow, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	w.ID = uuid.New()
	w.IsDeleted = false
	w.CreatedAt = now
	w.UpdatedAt = now

	err := s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		return tx.CreateWorkflow(ctx, &w)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("workflow created", "workflow_id", w.ID, "name", w.Name)
	return &w, nil
}

// ListWorkflows возвращает неудалённые workflows.
func (s *Service) ListWorkflows(ctx context.Context) ([]domain.Workflow, error) {
	var list []domain.Workflow
	err := s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		var err error
		list, err = tx.ListWorkflows(ctx)
		return err
	})
	return list, err
}

// GetWorkflow возвращает workflow вместе с его графом.
func (s *Service) GetWorkflow(ctx context.Context, id uuid.UUID) (*WorkflowGraph, error) {
	var g *WorkflowGraph
	err := s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		w, err := activeWorkflow(ctx, tx, id, false)
		if err != nil {
			return err
		}
		nodes, err := tx.ListNodes(ctx, id)
		if err != nil {
			return err
		}
		edges, err := tx.ListEdges(ctx, id)
		if err != nil {
			return err
		}
		g = &WorkflowGraph{Workflow: *w, Nodes: nodes, Edges: edges}
		return nil
	})
	return g, err
}

// DeleteWorkflow мягко удаляет workflow вместе с узлами и рёбрами.
func (s *Service) DeleteWorkflow(ctx context.Context, id uuid.UUID) error {
	return s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		w, err := activeWorkflow(ctx, tx, id, true)
		if err != nil {
			return err
		}

		edges, err := tx.ListEdges(ctx, id)
		if err != nil {
			return err
		}
		for i := range edges {
			edges[i].IsDeleted = true
			if err := tx.UpdateEdge(ctx, &edges[i]); err != nil {
				return err
			}
		}

		nodes, err := tx.ListNodes(ctx, id)
		if err != nil {
			return err
		}
		for i := range nodes {
			nodes[i].IsDeleted = true
			if err := tx.UpdateNode(ctx, &nodes[i]); err != nil {
				return err
			}
		}

		w.IsDeleted = true
		w.UpdatedAt = s.now()
		return tx.UpdateWorkflow(ctx, w)
	})
}

// --- Helpers ---

func activePipeline(ctx context.Context, tx repo.Tx, id uuid.UUID) (*domain.Pipeline, error) {
	p, err := tx.GetPipeline(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", id, err)
	}
	if p.IsDeleted {
		return nil, fmt.Errorf("pipeline %s: %w", id, repo.ErrNotFound)
	}
	return p, nil
}

// activeWorkflow читает неудалённый workflow; lock блокирует строку.
func activeWorkflow(ctx context.Context, tx repo.Tx, id uuid.UUID, lock bool) (*domain.Workflow, error) {
	get := tx.GetWorkflow
	if lock {
		get = tx.LockWorkflow
	}
	w, err := get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", id, err)
	}
	if w.IsDeleted {
		return nil, fmt.Errorf("workflow %s: %w", id, repo.ErrNotFound)
	}
	return w, nil
}

func ensureUnreferenced(ctx context.Context, tx repo.Tx, pipelineID uuid.UUID) error {
	refs, err := tx.CountPipelineReferences(ctx, pipelineID)
	if err != nil {
		return err
	}
	if refs > 0 {
		return fmt.Errorf("%w: %d workflow pipelines", ErrPipelineReferenced, refs)
	}
	return nil
}
