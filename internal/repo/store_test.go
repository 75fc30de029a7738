package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Pipeworks/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errRollback = errors.New("rollback")
	fixedNow    = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

func testPipeline(now time.Time) *domain.Pipeline {
	return &domain.Pipeline{
		ID:               uuid.New(),
		Name:             "weather",
		DockerImage:      "python:3.12-slim",
		RepositoryURL:    "https://example.com/weather.git",
		RepositoryBranch: "main",
		RepositoryScript: "openfido.sh",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// runStoreContract проверяет поведение, общее для всех реализаций Store.
func runStoreContract(t *testing.T, store Store) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	pipeline := testPipeline(now)
	workflow := &domain.Workflow{ID: uuid.New(), Name: "grid", CreatedAt: now, UpdatedAt: now}

	t.Run("pipeline and workflow", func(t *testing.T) {
		err := store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			if err := tx.CreatePipeline(ctx, pipeline); err != nil {
				return err
			}
			return tx.CreateWorkflow(ctx, workflow)
		})
		require.NoError(t, err)

		err = store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			got, err := tx.GetPipeline(ctx, pipeline.ID)
			require.NoError(t, err)
			assert.Equal(t, pipeline.Name, got.Name)
			assert.Equal(t, pipeline.RepositoryScript, got.RepositoryScript)

			_, err = tx.GetPipeline(ctx, uuid.New())
			assert.ErrorIs(t, err, ErrNotFound)

			list, err := tx.ListPipelines(ctx)
			require.NoError(t, err)
			assert.NotEmpty(t, list)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("rollback discards writes", func(t *testing.T) {
		id := uuid.New()
		err := store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			p := testPipeline(now)
			p.ID = id
			if err := tx.CreatePipeline(ctx, p); err != nil {
				return err
			}
			return errRollback
		})
		require.ErrorIs(t, err, errRollback)

		err = store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			_, err := tx.GetPipeline(ctx, id)
			assert.ErrorIs(t, err, ErrNotFound)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("run sequence and ledger", func(t *testing.T) {
		var runIDs []uuid.UUID
		for i := 0; i < 3; i++ {
			err := store.InTx(ctx, func(ctx context.Context, tx Tx) error {
				seq, err := tx.NextRunSequence(ctx, pipeline.ID)
				if err != nil {
					return err
				}
				run := &domain.PipelineRun{ID: uuid.New(), PipelineID: pipeline.ID, Sequence: seq, CreatedAt: now}
				runIDs = append(runIDs, run.ID)
				if err := tx.CreateRun(ctx, run); err != nil {
					return err
				}
				return tx.AppendRunState(ctx, &domain.PipelineRunState{RunID: run.ID, State: domain.RunStateQueued, CreatedAt: now})
			})
			require.NoError(t, err)
		}

		err := store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			runs, err := tx.ListRuns(ctx, pipeline.ID)
			require.NoError(t, err)
			require.Len(t, runs, 3)
			for i, r := range runs {
				assert.Equal(t, i+1, r.Sequence)
			}

			first := runIDs[0]
			st := &domain.PipelineRunState{RunID: first, State: domain.RunStateNotStarted, CreatedAt: now}
			require.NoError(t, tx.AppendRunState(ctx, st))
			assert.NotZero(t, st.ID)

			current, err := tx.CurrentRunState(ctx, first)
			require.NoError(t, err)
			assert.Equal(t, domain.RunStateNotStarted, current)

			history, err := tx.ListRunStates(ctx, first)
			require.NoError(t, err)
			require.Len(t, history, 2)
			assert.Equal(t, domain.RunStateQueued, history[0].State)
			assert.Less(t, history[0].ID, history[1].ID)

			_, err = tx.CurrentRunState(ctx, uuid.New())
			assert.ErrorIs(t, err, ErrNotFound)
			return nil
		})
		require.NoError(t, err)

		err = store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			stale, err := tx.ListRunsInState(ctx, domain.RunStateNotStarted, now.Add(time.Second), 10)
			require.NoError(t, err)
			assert.Equal(t, []uuid.UUID{runIDs[0]}, stale)

			fresh, err := tx.ListRunsInState(ctx, domain.RunStateNotStarted, now, 10)
			require.NoError(t, err)
			assert.Empty(t, fresh)

			// Переотправленный run снова считается свежим
			require.NoError(t, tx.MarkRunsEnqueued(ctx, []uuid.UUID{runIDs[0]}, now.Add(time.Minute)))
			stale, err = tx.ListRunsInState(ctx, domain.RunStateNotStarted, now.Add(time.Second), 10)
			require.NoError(t, err)
			assert.Empty(t, stale)

			stale, err = tx.ListRunsInState(ctx, domain.RunStateNotStarted, now.Add(2*time.Minute), 10)
			require.NoError(t, err)
			assert.Equal(t, []uuid.UUID{runIDs[0]}, stale)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("inputs artifacts console", func(t *testing.T) {
		err := store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			seq, err := tx.NextRunSequence(ctx, pipeline.ID)
			require.NoError(t, err)
			run := &domain.PipelineRun{ID: uuid.New(), PipelineID: pipeline.ID, Sequence: seq, CallbackURL: "http://cb", CreatedAt: now}
			require.NoError(t, tx.CreateRun(ctx, run))

			require.NoError(t, tx.AddRunInput(ctx, &domain.PipelineRunInput{
				ID: uuid.New(), RunID: run.ID, Filename: "in.csv", URL: "http://x/in.csv", CreatedAt: now,
			}))
			require.NoError(t, tx.AddArtifact(ctx, &domain.PipelineRunArtifact{
				ID: uuid.New(), RunID: run.ID, Name: "out.csv", ObjectKey: "k", Size: 3, CreatedAt: now,
			}))
			require.NoError(t, tx.AppendConsole(ctx, &domain.ConsoleChunk{RunID: run.ID, Stdout: "a", CreatedAt: now}))
			require.NoError(t, tx.AppendConsole(ctx, &domain.ConsoleChunk{RunID: run.ID, Stdout: "b", Stderr: "e", CreatedAt: now}))

			got, err := tx.GetRun(ctx, run.ID)
			require.NoError(t, err)
			assert.Equal(t, "http://cb", got.CallbackURL)

			inputs, err := tx.ListRunInputs(ctx, run.ID)
			require.NoError(t, err)
			require.Len(t, inputs, 1)
			assert.Equal(t, "in.csv", inputs[0].Filename)

			artifacts, err := tx.ListArtifacts(ctx, run.ID)
			require.NoError(t, err)
			require.Len(t, artifacts, 1)
			assert.Equal(t, "k", artifacts[0].ObjectKey)

			chunks, err := tx.ListConsole(ctx, run.ID)
			require.NoError(t, err)
			out := domain.JoinConsole(chunks)
			assert.Equal(t, "ab", out.Stdout)
			assert.Equal(t, "e", out.Stderr)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("graph and workflow runs", func(t *testing.T) {
		a := &domain.WorkflowPipeline{ID: uuid.New(), WorkflowID: workflow.ID, PipelineID: pipeline.ID, CreatedAt: now}
		b := &domain.WorkflowPipeline{ID: uuid.New(), WorkflowID: workflow.ID, PipelineID: pipeline.ID, CreatedAt: now.Add(time.Millisecond)}
		edge := &domain.WorkflowPipelineDependency{ID: uuid.New(), WorkflowID: workflow.ID, FromNodeID: a.ID, ToNodeID: b.ID, CreatedAt: now}

		err := store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			require.NoError(t, tx.CreateNode(ctx, a))
			require.NoError(t, tx.CreateNode(ctx, b))
			require.NoError(t, tx.CreateEdge(ctx, edge))

			refs, err := tx.CountPipelineReferences(ctx, pipeline.ID)
			require.NoError(t, err)
			assert.Equal(t, 2, refs)

			edges, err := tx.ListEdges(ctx, workflow.ID)
			require.NoError(t, err)
			require.Len(t, edges, 1)

			edge.IsDeleted = true
			require.NoError(t, tx.UpdateEdge(ctx, edge))
			edges, err = tx.ListEdges(ctx, workflow.ID)
			require.NoError(t, err)
			assert.Empty(t, edges)

			b.IsDeleted = true
			require.NoError(t, tx.UpdateNode(ctx, b))
			nodes, err := tx.ListNodes(ctx, workflow.ID)
			require.NoError(t, err)
			require.Len(t, nodes, 1)
			assert.Equal(t, a.ID, nodes[0].ID)

			deleted, err := tx.GetNode(ctx, b.ID)
			require.NoError(t, err)
			assert.True(t, deleted.IsDeleted)
			return nil
		})
		require.NoError(t, err)

		err = store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			seq, err := tx.NextRunSequence(ctx, pipeline.ID)
			require.NoError(t, err)
			run := &domain.PipelineRun{ID: uuid.New(), PipelineID: pipeline.ID, Sequence: seq, CreatedAt: now}
			require.NoError(t, tx.CreateRun(ctx, run))

			wr := &domain.WorkflowRun{ID: uuid.New(), WorkflowID: workflow.ID, CreatedAt: now}
			require.NoError(t, tx.CreateWorkflowRun(ctx, wr))
			link := &domain.WorkflowPipelineRun{ID: uuid.New(), WorkflowRunID: wr.ID, WorkflowPipelineID: a.ID, PipelineRunID: run.ID, CreatedAt: now}
			require.NoError(t, tx.CreateWorkflowPipelineRun(ctx, link))

			got, err := tx.GetWorkflowPipelineRunByRunID(ctx, run.ID)
			require.NoError(t, err)
			assert.Equal(t, a.ID, got.WorkflowPipelineID)

			links, err := tx.ListWorkflowPipelineRuns(ctx, wr.ID)
			require.NoError(t, err)
			assert.Len(t, links, 1)

			_, err = tx.GetWorkflowPipelineRunByRunID(ctx, uuid.New())
			assert.ErrorIs(t, err, ErrNotFound)
			return nil
		})
		require.NoError(t, err)
	})
}
