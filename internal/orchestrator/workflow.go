package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shaiso/Pipeworks/internal/domain"
	"github.com/shaiso/Pipeworks/internal/graph"
	"github.com/shaiso/Pipeworks/internal/ledger"
	"github.com/shaiso/Pipeworks/internal/repo"
	"github.com/shaiso/Pipeworks/internal/telemetry"
)

// CreateWorkflowRun запускает весь граф workflow.
//
// Для каждого неудалённого узла создаётся pipeline run:
//   - корневые узлы (без входящих рёбер) сразу готовы (QUEUED → NOT_STARTED)
//     и получают входы запуска
//   - остальные узлы остаются QUEUED без входов до завершения предшественников
//
// CallbackURL запуска применяется ко всем runs.
func (s *Service) CreateWorkflowRun(ctx context.Context, workflowID uuid.UUID, req RunRequest) (*domain.WorkflowRun, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	wr := &domain.WorkflowRun{
		ID:          uuid.New(),
		WorkflowID:  workflowID,
		CallbackURL: req.CallbackURL,
	}

	err := s.inTx(ctx, func(ctx context.Context, tx repo.Tx, eff *effects) error {
		w, err := tx.GetWorkflow(ctx, workflowID)
		if err != nil {
			return notFound(err, ErrWorkflowNotFound)
		}
		if w.IsDeleted {
			return ErrWorkflowNotFound
		}

		nodes, g, err := loadGraph(ctx, tx, workflowID)
		if err != nil {
			return err
		}
		if len(nodes) == 0 {
			return ErrEmptyWorkflow
		}
		order, err := g.TopologicalSort()
		if err != nil {
			return fmt.Errorf("workflow %s: %w", workflowID, err)
		}

		now := s.now()
		wr.CreatedAt = now
		if err := tx.CreateWorkflowRun(ctx, wr); err != nil {
			return err
		}

		for _, nodeID := range order {
			node := nodes[nodeID]
			root := g.IsRoot(nodeID)

			run := &domain.PipelineRun{
				ID:          uuid.New(),
				PipelineID:  node.PipelineID,
				CallbackURL: req.CallbackURL,
			}
			trs, err := ledger.Seed(ctx, tx, run, root, now)
			if err != nil {
				return fmt.Errorf("seed node %s: %w", nodeID, err)
			}
			eff.add(trs...)

			if root {
				if err := addInputs(ctx, tx, run.ID, req.Inputs, now); err != nil {
					return err
				}
			}

			link := domain.WorkflowPipelineRun{
				ID:                 uuid.New(),
				WorkflowRunID:      wr.ID,
				WorkflowPipelineID: nodeID,
				PipelineRunID:      run.ID,
				CreatedAt:          now,
			}
			if err := tx.CreateWorkflowPipelineRun(ctx, &link); err != nil {
				return err
			}
			wr.Runs = append(wr.Runs, link)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.WithWorkflowID(s.logger, workflowID.String()).Info("workflow run created",
		"workflow_run_id", wr.ID,
		"runs", len(wr.Runs),
	)
	return wr, nil
}

// GetWorkflowRun возвращает запуск workflow со связями узел → run.
func (s *Service) GetWorkflowRun(ctx context.Context, id uuid.UUID) (*domain.WorkflowRun, error) {
	var wr *domain.WorkflowRun
	err := s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		var err error
		wr, err = tx.GetWorkflowRun(ctx, id)
		if err != nil {
			return notFound(err, ErrWorkflowNotFound)
		}
		wr.Runs, err = tx.ListWorkflowPipelineRuns(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return wr, nil
}

// loadGraph читает неудалённые узлы и рёбра workflow.
// Рёбра, касающиеся удалённых узлов, отбрасываются.
func loadGraph(ctx context.Context, tx repo.Tx, workflowID uuid.UUID) (map[uuid.UUID]domain.WorkflowPipeline, *graph.Graph, error) {
	nodes, err := tx.ListNodes(ctx, workflowID)
	if err != nil {
		return nil, nil, err
	}
	deps, err := tx.ListEdges(ctx, workflowID)
	if err != nil {
		return nil, nil, err
	}

	byID := make(map[uuid.UUID]domain.WorkflowPipeline, len(nodes))
	ids := make([]uuid.UUID, 0, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
		ids = append(ids, n.ID)
	}

	edges := make([]graph.Edge, 0, len(deps))
	for _, d := range deps {
		_, fromOK := byID[d.FromNodeID]
		_, toOK := byID[d.ToNodeID]
		if fromOK && toOK {
			edges = append(edges, graph.Edge{From: d.FromNodeID, To: d.ToNodeID})
		}
	}

	g, err := graph.New(ids, edges)
	if err != nil {
		return nil, nil, err
	}
	return byID, g, nil
}
