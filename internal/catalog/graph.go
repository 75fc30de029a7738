package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shaiso/Pipeworks/internal/domain"
	"github.com/shaiso/Pipeworks/internal/graph"
	"github.com/shaiso/Pipeworks/internal/repo"
)

// AddNode размещает pipeline в workflow.
func (s *Service) AddNode(ctx context.Context, workflowID, pipelineID uuid.UUID) (*domain.WorkflowPipeline, error) {
	node := &domain.WorkflowPipeline{
		ID:         uuid.New(),
		WorkflowID: workflowID,
		PipelineID: pipelineID,
		CreatedAt:  s.now(),
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		if _, err := activeWorkflow(ctx, tx, workflowID, true); err != nil {
			return err
		}
		if _, err := activePipeline(ctx, tx, pipelineID); err != nil {
			return err
		}
		return tx.CreateNode(ctx, node)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("workflow pipeline added",
		"workflow_id", workflowID,
		"node_id", node.ID,
		"pipeline_id", pipelineID,
	)
	return node, nil
}

// RemoveNode мягко удаляет узел и все его рёбра.
// Удаление не может создать цикл, поэтому граф не перепроверяется.
func (s *Service) RemoveNode(ctx context.Context, nodeID uuid.UUID) error {
	return s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		node, err := tx.GetNode(ctx, nodeID)
		if err != nil {
			return fmt.Errorf("workflow pipeline %s: %w", nodeID, err)
		}
		if node.IsDeleted {
			return fmt.Errorf("workflow pipeline %s: %w", nodeID, repo.ErrNotFound)
		}
		if _, err := tx.LockWorkflow(ctx, node.WorkflowID); err != nil {
			return err
		}

		edges, err := tx.ListEdges(ctx, node.WorkflowID)
		if err != nil {
			return err
		}
		for i := range edges {
			e := &edges[i]
			if e.FromNodeID != nodeID && e.ToNodeID != nodeID {
				continue
			}
			e.IsDeleted = true
			if err := tx.UpdateEdge(ctx, e); err != nil {
				return err
			}
		}

		node.IsDeleted = true
		return tx.UpdateNode(ctx, node)
	})
}

// AddDependency добавляет ребро from → to.
//
// Ребро отклоняется без изменений, если:
//   - любой из узлов не существует, удалён или принадлежит другому workflow
//   - такое ребро уже есть
//   - ребро замыкает цикл
func (s *Service) AddDependency(ctx context.Context, workflowID, from, to uuid.UUID) (*domain.WorkflowPipelineDependency, error) {
	dep := &domain.WorkflowPipelineDependency{
		ID:         uuid.New(),
		WorkflowID: workflowID,
		FromNodeID: from,
		ToNodeID:   to,
		CreatedAt:  s.now(),
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		if _, err := activeWorkflow(ctx, tx, workflowID, true); err != nil {
			return err
		}
		for _, id := range []uuid.UUID{from, to} {
			if err := checkEndpoint(ctx, tx, workflowID, id); err != nil {
				return err
			}
		}

		edges, err := tx.ListEdges(ctx, workflowID)
		if err != nil {
			return err
		}
		for _, e := range edges {
			if e.FromNodeID == from && e.ToNodeID == to {
				return fmt.Errorf("dependency %s -> %s: %w", from, to, repo.ErrAlreadyExists)
			}
		}
		if err := graph.CheckEdge(toGraphEdges(edges), graph.Edge{From: from, To: to}); err != nil {
			return err
		}
		return tx.CreateEdge(ctx, dep)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("dependency added",
		"workflow_id", workflowID,
		"edge_id", dep.ID,
		"from", from,
		"to", to,
	)
	return dep, nil
}

// RemoveDependency мягко удаляет ребро.
func (s *Service) RemoveDependency(ctx context.Context, edgeID uuid.UUID) error {
	return s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		e, err := tx.GetEdge(ctx, edgeID)
		if err != nil {
			return fmt.Errorf("dependency %s: %w", edgeID, err)
		}
		if e.IsDeleted {
			return fmt.Errorf("dependency %s: %w", edgeID, repo.ErrNotFound)
		}
		e.IsDeleted = true
		return tx.UpdateEdge(ctx, e)
	})
}

// WouldCreateCycle сообщает, замкнёт ли ребро цикл в текущем графе workflow.
func (s *Service) WouldCreateCycle(ctx context.Context, workflowID uuid.UUID, edge graph.Edge) (bool, error) {
	var cyclic bool
	err := s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		if _, err := activeWorkflow(ctx, tx, workflowID, false); err != nil {
			return err
		}
		edges, err := tx.ListEdges(ctx, workflowID)
		if err != nil {
			return err
		}
		cyclic = graph.WouldCreateCycle(toGraphEdges(edges), edge)
		return nil
	})
	return cyclic, err
}

func checkEndpoint(ctx context.Context, tx repo.Tx, workflowID, nodeID uuid.UUID) error {
	node, err := tx.GetNode(ctx, nodeID)
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%w: %s", graph.ErrUnknownNode, nodeID)
	}
	if err != nil {
		return err
	}
	if node.IsDeleted {
		return fmt.Errorf("%w: %s", ErrNodeDeleted, nodeID)
	}
	if node.WorkflowID != workflowID {
		return fmt.Errorf("%w: %s", ErrWorkflowMismatch, nodeID)
	}
	return nil
}

// toGraphEdges переводит рёбра хранилища в рёбра графа.
func toGraphEdges(deps []domain.WorkflowPipelineDependency) []graph.Edge {
	edges := make([]graph.Edge, len(deps))
	for i, d := range deps {
		edges[i] = graph.Edge{From: d.FromNodeID, To: d.ToNodeID}
	}
	return edges
}
