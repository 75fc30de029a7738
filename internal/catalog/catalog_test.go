package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Pipeworks/internal/domain"
	"github.com/shaiso/Pipeworks/internal/graph"
	"github.com/shaiso/Pipeworks/internal/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) *Service {
	t.Helper()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return New(Config{
		Store: repo.NewMemory(),
		Now:   func() time.Time { return fixed },
	})
}

func pipelineSpec(name string) domain.Pipeline {
	return domain.Pipeline{
		Name:             name,
		DockerImage:      "python:3.12-slim",
		RepositoryURL:    "https://example.com/" + name + ".git",
		RepositoryBranch: "main",
		RepositoryScript: "openfido.sh",
	}
}

// chain создаёт workflow из n узлов без рёбер.
func chain(t *testing.T, s *Service, n int) (uuid.UUID, []uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	p, err := s.CreatePipeline(ctx, pipelineSpec("p"))
	require.NoError(t, err)
	w, err := s.CreateWorkflow(ctx, domain.Workflow{Name: "w"})
	require.NoError(t, err)

	nodes := make([]uuid.UUID, n)
	for i := range nodes {
		node, err := s.AddNode(ctx, w.ID, p.ID)
		require.NoError(t, err)
		nodes[i] = node.ID
	}
	return w.ID, nodes
}

func TestCreatePipeline_Validation(t *testing.T) {
	s := newService(t)
	_, err := s.CreatePipeline(context.Background(), domain.Pipeline{Name: "x"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	p, err := s.CreatePipeline(context.Background(), pipelineSpec("ok"))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, p.ID)
}

func TestAddDependency_DirectCycleRejected(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	wf, n := chain(t, s, 2)

	_, err := s.AddDependency(ctx, wf, n[0], n[1])
	require.NoError(t, err)

	_, err = s.AddDependency(ctx, wf, n[1], n[0])
	assert.ErrorIs(t, err, graph.ErrCyclicDependency)

	g, err := s.GetWorkflow(ctx, wf)
	require.NoError(t, err)
	assert.Len(t, g.Edges, 1, "rejected edge must not be stored")
}

func TestAddDependency_ShortcutAndLongCycle(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	wf, n := chain(t, s, 3)
	a, b, c := n[0], n[1], n[2]

	_, err := s.AddDependency(ctx, wf, a, b)
	require.NoError(t, err)
	_, err = s.AddDependency(ctx, wf, b, c)
	require.NoError(t, err)

	_, err = s.AddDependency(ctx, wf, a, c)
	assert.NoError(t, err)

	_, err = s.AddDependency(ctx, wf, c, a)
	assert.ErrorIs(t, err, graph.ErrCyclicDependency)

	cyclic, err := s.WouldCreateCycle(ctx, wf, graph.Edge{From: c, To: b})
	require.NoError(t, err)
	assert.True(t, cyclic)
}

func TestAddDependency_RejectedEndpoints(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	wf, n := chain(t, s, 3)
	_, m := chain(t, s, 1)

	_, err := s.AddDependency(ctx, wf, n[0], n[0])
	assert.ErrorIs(t, err, graph.ErrSelfDependency)

	_, err = s.AddDependency(ctx, wf, n[0], uuid.New())
	assert.ErrorIs(t, err, graph.ErrUnknownNode)

	_, err = s.AddDependency(ctx, wf, n[0], m[0])
	assert.ErrorIs(t, err, ErrWorkflowMismatch)

	require.NoError(t, s.RemoveNode(ctx, n[2]))
	_, err = s.AddDependency(ctx, wf, n[0], n[2])
	assert.ErrorIs(t, err, ErrNodeDeleted)

	_, err = s.AddDependency(ctx, wf, n[0], n[1])
	require.NoError(t, err)
	_, err = s.AddDependency(ctx, wf, n[0], n[1])
	assert.ErrorIs(t, err, repo.ErrAlreadyExists)

	_, err = s.AddDependency(ctx, uuid.New(), n[0], n[1])
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestRemoveNode_CascadesToEdges(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	wf, n := chain(t, s, 3)

	_, err := s.AddDependency(ctx, wf, n[0], n[1])
	require.NoError(t, err)
	_, err = s.AddDependency(ctx, wf, n[1], n[2])
	require.NoError(t, err)

	require.NoError(t, s.RemoveNode(ctx, n[1]))

	g, err := s.GetWorkflow(ctx, wf)
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 2)
	assert.Empty(t, g.Edges)

	assert.ErrorIs(t, s.RemoveNode(ctx, n[1]), repo.ErrNotFound)
}

func TestRemoveDependency_AllowsReverseEdge(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	wf, n := chain(t, s, 2)

	e, err := s.AddDependency(ctx, wf, n[0], n[1])
	require.NoError(t, err)
	require.NoError(t, s.RemoveDependency(ctx, e.ID))

	// После удаления ребра обратное направление допустимо
	_, err = s.AddDependency(ctx, wf, n[1], n[0])
	assert.NoError(t, err)

	assert.ErrorIs(t, s.RemoveDependency(ctx, e.ID), repo.ErrNotFound)
}

func TestPipeline_ImmutableWhileReferenced(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	p, err := s.CreatePipeline(ctx, pipelineSpec("p"))
	require.NoError(t, err)
	w, err := s.CreateWorkflow(ctx, domain.Workflow{Name: "w"})
	require.NoError(t, err)
	node, err := s.AddNode(ctx, w.ID, p.ID)
	require.NoError(t, err)

	update := *p
	update.DockerImage = "python:3.13-slim"
	_, err = s.UpdatePipeline(ctx, update)
	assert.ErrorIs(t, err, ErrPipelineReferenced)
	assert.ErrorIs(t, s.DeletePipeline(ctx, p.ID), ErrPipelineReferenced)

	require.NoError(t, s.RemoveNode(ctx, node.ID))

	updated, err := s.UpdatePipeline(ctx, update)
	require.NoError(t, err)
	assert.Equal(t, "python:3.13-slim", updated.DockerImage)

	require.NoError(t, s.DeletePipeline(ctx, p.ID))
	_, err = s.GetPipeline(ctx, p.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	// Удалённый pipeline нельзя разместить в workflow
	_, err = s.AddNode(ctx, w.ID, p.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestDeleteWorkflow(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	wf, n := chain(t, s, 2)
	_, err := s.AddDependency(ctx, wf, n[0], n[1])
	require.NoError(t, err)

	require.NoError(t, s.DeleteWorkflow(ctx, wf))

	_, err = s.GetWorkflow(ctx, wf)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	list, err := s.ListWorkflows(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
