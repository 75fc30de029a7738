package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shaiso/Pipeworks/internal/domain"
	"github.com/shaiso/Pipeworks/internal/graph"
	"github.com/shaiso/Pipeworks/internal/ledger"
	"github.com/shaiso/Pipeworks/internal/repo"
)

// afterTransition выполняет реакцию планировщика на переход run.
func (s *Service) afterTransition(ctx context.Context, tx repo.Tx, tr ledger.Transition, eff *effects) error {
	switch tr.To {
	case domain.RunStateCompleted:
		return s.propagate(ctx, tx, tr.Run, eff)
	case domain.RunStateFailed, domain.RunStateCancelled:
		return s.cascadeCancel(ctx, tx, tr.Run, eff)
	}
	return nil
}

// propagate копирует артефакты завершённого run во входы зависимых runs
// и освобождает те из них, у которых все предшественники COMPLETED.
//
// Строка зависимого run блокируется до проверки предшественников:
// два одновременно завершившихся предшественника проверяют барьер
// по очереди, и освобождение происходит ровно один раз.
func (s *Service) propagate(ctx context.Context, tx repo.Tx, completed domain.PipelineRun, eff *effects) error {
	link, err := tx.GetWorkflowPipelineRunByRunID(ctx, completed.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil // run запущен вне workflow
	}
	if err != nil {
		return err
	}

	dests, err := s.findDestRuns(ctx, tx, *link)
	if err != nil {
		return err
	}
	if len(dests) == 0 {
		return nil
	}

	artifacts, err := tx.ListArtifacts(ctx, completed.ID)
	if err != nil {
		return err
	}

	now := s.now()
	for _, dest := range dests {
		if _, err := tx.LockRun(ctx, dest.PipelineRunID); err != nil {
			return fmt.Errorf("lock run %s: %w", dest.PipelineRunID, err)
		}

		state, err := ledger.Current(ctx, tx, dest.PipelineRunID)
		if err != nil {
			return err
		}
		if state != domain.RunStateQueued {
			// Уже освобождён или отменён: входы после старта не меняются
			continue
		}

		for _, a := range artifacts {
			// Ссылка подписывается в момент распространения
			fetchURL, err := s.objects.PresignedURL(ctx, a.ObjectKey, s.urlTTL)
			if err != nil {
				return fmt.Errorf("presign artifact %s: %w", a.Name, err)
			}
			err = tx.AddRunInput(ctx, &domain.PipelineRunInput{
				ID:        uuid.New(),
				RunID:     dest.PipelineRunID,
				Filename:  a.Name,
				URL:       fetchURL,
				CreatedAt: now,
			})
			if err != nil {
				return fmt.Errorf("add input %s: %w", a.Name, err)
			}
		}

		ready, err := s.predecessorsCompleted(ctx, tx, dest)
		if err != nil {
			return err
		}
		if !ready {
			s.logger.Debug("run waits for predecessors",
				"run_id", dest.PipelineRunID,
				"workflow_run_id", dest.WorkflowRunID,
			)
			continue
		}

		tr, err := ledger.Append(ctx, tx, dest.PipelineRunID, domain.RunStateNotStarted, now)
		if err != nil {
			return err
		}
		eff.add(tr)
		eff.released++
	}
	return nil
}

// predecessorsCompleted проверяет барьер: все предшественники узла COMPLETED.
func (s *Service) predecessorsCompleted(ctx context.Context, tx repo.Tx, dest domain.WorkflowPipelineRun) (bool, error) {
	sources, err := s.findSourceRuns(ctx, tx, dest)
	if err != nil {
		return false, err
	}
	for _, src := range sources {
		state, err := ledger.Current(ctx, tx, src.PipelineRunID)
		if err != nil {
			return false, err
		}
		if state != domain.RunStateCompleted {
			return false, nil
		}
	}
	return true, nil
}

// cascadeCancel отменяет всех потомков упавшего или отменённого run,
// которые ещё не запущены (QUEUED или NOT_STARTED).
// Потомки в RUNNING и терминальных состояниях не трогаются.
func (s *Service) cascadeCancel(ctx context.Context, tx repo.Tx, run domain.PipelineRun, eff *effects) error {
	link, err := tx.GetWorkflowPipelineRunByRunID(ctx, run.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	node, err := tx.GetNode(ctx, link.WorkflowPipelineID)
	if err != nil {
		return err
	}
	if node.IsDeleted {
		return nil
	}
	_, g, err := loadGraph(ctx, tx, node.WorkflowID)
	if err != nil {
		return err
	}
	siblings, err := s.siblingRuns(ctx, tx, link.WorkflowRunID)
	if err != nil {
		return err
	}

	now := s.now()
	for _, nodeID := range g.Descendants(node.ID) {
		desc, ok := siblings[nodeID]
		if !ok {
			continue
		}
		if _, err := tx.LockRun(ctx, desc.PipelineRunID); err != nil {
			return err
		}
		state, err := ledger.Current(ctx, tx, desc.PipelineRunID)
		if err != nil {
			return err
		}
		if state != domain.RunStateQueued && state != domain.RunStateNotStarted {
			continue
		}

		tr, err := ledger.Append(ctx, tx, desc.PipelineRunID, domain.RunStateCancelled, now)
		if err != nil {
			return err
		}
		eff.add(tr)
		eff.cancelled++

		s.logger.Info("run cancelled by upstream",
			"run_id", desc.PipelineRunID,
			"upstream_run_id", run.ID,
		)
	}
	return nil
}

// FindSourceRuns возвращает runs предшественников узла, к которому относится run.
func (s *Service) FindSourceRuns(ctx context.Context, runID uuid.UUID) ([]domain.WorkflowPipelineRun, error) {
	return s.adjacentRuns(ctx, runID, s.findSourceRuns)
}

// FindDestRuns возвращает runs зависимых узлов.
func (s *Service) FindDestRuns(ctx context.Context, runID uuid.UUID) ([]domain.WorkflowPipelineRun, error) {
	return s.adjacentRuns(ctx, runID, s.findDestRuns)
}

type adjacency func(ctx context.Context, tx repo.Tx, link domain.WorkflowPipelineRun) ([]domain.WorkflowPipelineRun, error)

func (s *Service) adjacentRuns(ctx context.Context, runID uuid.UUID, find adjacency) ([]domain.WorkflowPipelineRun, error) {
	var runs []domain.WorkflowPipelineRun
	err := s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		link, err := tx.GetWorkflowPipelineRunByRunID(ctx, runID)
		if err != nil {
			return notFound(err, ErrRunNotFound)
		}
		runs, err = find(ctx, tx, *link)
		return err
	})
	return runs, err
}

func (s *Service) findSourceRuns(ctx context.Context, tx repo.Tx, link domain.WorkflowPipelineRun) ([]domain.WorkflowPipelineRun, error) {
	return s.neighbours(ctx, tx, link, (*graph.Graph).Predecessors)
}

func (s *Service) findDestRuns(ctx context.Context, tx repo.Tx, link domain.WorkflowPipelineRun) ([]domain.WorkflowPipelineRun, error) {
	return s.neighbours(ctx, tx, link, (*graph.Graph).Successors)
}

// neighbours возвращает runs соседних узлов в том же запуске workflow.
// Учитываются только неудалённые узлы и рёбра на момент вызова:
// удалённый узел не имеет соседей и не является соседом.
func (s *Service) neighbours(
	ctx context.Context,
	tx repo.Tx,
	link domain.WorkflowPipelineRun,
	adjacent func(*graph.Graph, uuid.UUID) []uuid.UUID,
) ([]domain.WorkflowPipelineRun, error) {
	node, err := tx.GetNode(ctx, link.WorkflowPipelineID)
	if err != nil {
		return nil, err
	}
	if node.IsDeleted {
		return nil, nil
	}

	_, g, err := loadGraph(ctx, tx, node.WorkflowID)
	if err != nil {
		return nil, err
	}
	siblings, err := s.siblingRuns(ctx, tx, link.WorkflowRunID)
	if err != nil {
		return nil, err
	}

	result := make([]domain.WorkflowPipelineRun, 0)
	for _, id := range adjacent(g, node.ID) {
		if r, ok := siblings[id]; ok {
			result = append(result, r)
		}
	}
	return result, nil
}

// siblingRuns возвращает runs запуска workflow по узлам.
func (s *Service) siblingRuns(ctx context.Context, tx repo.Tx, workflowRunID uuid.UUID) (map[uuid.UUID]domain.WorkflowPipelineRun, error) {
	links, err := tx.ListWorkflowPipelineRuns(ctx, workflowRunID)
	if err != nil {
		return nil, err
	}
	byNode := make(map[uuid.UUID]domain.WorkflowPipelineRun, len(links))
	for _, l := range links {
		byNode[l.WorkflowPipelineID] = l
	}
	return byNode, nil
}
