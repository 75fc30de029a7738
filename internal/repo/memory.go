package repo

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Pipeworks/internal/domain"
)

// Memory — Store в памяти процесса.
//
// Транзакции сериализуются одним мьютексом: fn работает над копией
// таблиц, которая заменяет текущие только при успешном завершении.
// Поэтому LockRun/LockWorkflow здесь не требуют отдельных блокировок.
type Memory struct {
	mu   sync.Mutex
	data *memData
}

// NewMemory создаёт пустое хранилище.
func NewMemory() *Memory {
	return &Memory{data: &memData{}}
}

// InTx выполняет fn над копией данных и фиксирует её при успехе.
func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := m.data.clone()
	if err := fn(ctx, &memTx{d: work}); err != nil {
		return err
	}
	m.data = work
	return nil
}

type memData struct {
	pipelines    []domain.Pipeline
	runs         []domain.PipelineRun
	states       []domain.PipelineRunState
	inputs       []domain.PipelineRunInput
	artifacts    []domain.PipelineRunArtifact
	console      []domain.ConsoleChunk
	workflows    []domain.Workflow
	nodes        []domain.WorkflowPipeline
	edges        []domain.WorkflowPipelineDependency
	workflowRuns []domain.WorkflowRun
	nodeRuns     []domain.WorkflowPipelineRun

	// enqueuedAt — время последней переотправки run.
	enqueuedAt map[uuid.UUID]time.Time

	lastStateID   int64
	lastConsoleID int64
}

func (d *memData) clone() *memData {
	return &memData{
		pipelines:     slices.Clone(d.pipelines),
		runs:          slices.Clone(d.runs),
		states:        slices.Clone(d.states),
		inputs:        slices.Clone(d.inputs),
		artifacts:     slices.Clone(d.artifacts),
		console:       slices.Clone(d.console),
		workflows:     slices.Clone(d.workflows),
		nodes:         slices.Clone(d.nodes),
		edges:         slices.Clone(d.edges),
		workflowRuns:  slices.Clone(d.workflowRuns),
		nodeRuns:      slices.Clone(d.nodeRuns),
		enqueuedAt:    maps.Clone(d.enqueuedAt),
		lastStateID:   d.lastStateID,
		lastConsoleID: d.lastConsoleID,
	}
}

// memTx реализует Tx над memData.
type memTx struct {
	d *memData
}

var _ Tx = (*memTx)(nil)

// find возвращает индекс записи с заданным ID или -1.
func find[T any](items []T, match func(T) bool) int {
	return slices.IndexFunc(items, match)
}

// filter возвращает копии подходящих записей.
func filter[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0)
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// --- Pipelines ---

func (t *memTx) CreatePipeline(_ context.Context, p *domain.Pipeline) error {
	if find(t.d.pipelines, func(x domain.Pipeline) bool { return x.ID == p.ID }) >= 0 {
		return ErrAlreadyExists
	}
	t.d.pipelines = append(t.d.pipelines, *p)
	return nil
}

func (t *memTx) GetPipeline(_ context.Context, id uuid.UUID) (*domain.Pipeline, error) {
	i := find(t.d.pipelines, func(x domain.Pipeline) bool { return x.ID == id })
	if i < 0 {
		return nil, ErrNotFound
	}
	p := t.d.pipelines[i]
	return &p, nil
}

func (t *memTx) UpdatePipeline(_ context.Context, p *domain.Pipeline) error {
	i := find(t.d.pipelines, func(x domain.Pipeline) bool { return x.ID == p.ID })
	if i < 0 {
		return ErrNotFound
	}
	updated := *p
	updated.CreatedAt = t.d.pipelines[i].CreatedAt
	t.d.pipelines[i] = updated
	return nil
}

func (t *memTx) ListPipelines(_ context.Context) ([]domain.Pipeline, error) {
	return filter(t.d.pipelines, func(x domain.Pipeline) bool { return !x.IsDeleted }), nil
}

func (t *memTx) CountPipelineReferences(_ context.Context, pipelineID uuid.UUID) (int, error) {
	refs := filter(t.d.nodes, func(n domain.WorkflowPipeline) bool {
		return n.PipelineID == pipelineID && !n.IsDeleted
	})
	return len(refs), nil
}

// --- Runs ---

func (t *memTx) NextRunSequence(ctx context.Context, pipelineID uuid.UUID) (int, error) {
	if _, err := t.GetPipeline(ctx, pipelineID); err != nil {
		return 0, err
	}
	next := 1
	for _, r := range t.d.runs {
		if r.PipelineID == pipelineID && r.Sequence >= next {
			next = r.Sequence + 1
		}
	}
	return next, nil
}

func (t *memTx) CreateRun(_ context.Context, run *domain.PipelineRun) error {
	for _, r := range t.d.runs {
		if r.ID == run.ID || (r.PipelineID == run.PipelineID && r.Sequence == run.Sequence) {
			return ErrAlreadyExists
		}
	}
	t.d.runs = append(t.d.runs, *run)
	return nil
}

func (t *memTx) GetRun(_ context.Context, id uuid.UUID) (*domain.PipelineRun, error) {
	i := find(t.d.runs, func(x domain.PipelineRun) bool { return x.ID == id })
	if i < 0 {
		return nil, ErrNotFound
	}
	r := t.d.runs[i]
	return &r, nil
}

func (t *memTx) LockRun(ctx context.Context, id uuid.UUID) (*domain.PipelineRun, error) {
	return t.GetRun(ctx, id)
}

func (t *memTx) ListRuns(_ context.Context, pipelineID uuid.UUID) ([]domain.PipelineRun, error) {
	runs := filter(t.d.runs, func(r domain.PipelineRun) bool {
		return r.PipelineID == pipelineID && !r.IsDeleted
	})
	slices.SortFunc(runs, func(a, b domain.PipelineRun) int { return a.Sequence - b.Sequence })
	return runs, nil
}

func (t *memTx) ListRunsInState(_ context.Context, state domain.RunState, olderThan time.Time, limit int) ([]uuid.UUID, error) {
	last := make(map[uuid.UUID]domain.PipelineRunState)
	for _, st := range t.d.states {
		last[st.RunID] = st
	}

	matched := make([]domain.PipelineRunState, 0)
	for _, r := range t.d.runs {
		st, ok := last[r.ID]
		if !ok || r.IsDeleted || st.State != state || !st.CreatedAt.Before(olderThan) {
			continue
		}
		if at, ok := t.d.enqueuedAt[r.ID]; ok && !at.Before(olderThan) {
			continue
		}
		matched = append(matched, st)
	}
	slices.SortFunc(matched, func(a, b domain.PipelineRunState) int { return a.CreatedAt.Compare(b.CreatedAt) })

	ids := make([]uuid.UUID, 0, len(matched))
	for _, st := range matched {
		if limit > 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, st.RunID)
	}
	return ids, nil
}

func (t *memTx) MarkRunsEnqueued(_ context.Context, ids []uuid.UUID, at time.Time) error {
	if t.d.enqueuedAt == nil {
		t.d.enqueuedAt = make(map[uuid.UUID]time.Time, len(ids))
	}
	for _, id := range ids {
		t.d.enqueuedAt[id] = at
	}
	return nil
}

func (t *memTx) AppendRunState(ctx context.Context, st *domain.PipelineRunState) error {
	if _, err := t.GetRun(ctx, st.RunID); err != nil {
		return err
	}
	t.d.lastStateID++
	st.ID = t.d.lastStateID
	t.d.states = append(t.d.states, *st)
	return nil
}

func (t *memTx) ListRunStates(_ context.Context, runID uuid.UUID) ([]domain.PipelineRunState, error) {
	return filter(t.d.states, func(st domain.PipelineRunState) bool { return st.RunID == runID }), nil
}

func (t *memTx) CurrentRunState(ctx context.Context, runID uuid.UUID) (domain.RunState, error) {
	states, _ := t.ListRunStates(ctx, runID)
	if len(states) == 0 {
		return "", ErrNotFound
	}
	return domain.CurrentState(states), nil
}

func (t *memTx) AddRunInput(ctx context.Context, in *domain.PipelineRunInput) error {
	if _, err := t.GetRun(ctx, in.RunID); err != nil {
		return err
	}
	t.d.inputs = append(t.d.inputs, *in)
	return nil
}

func (t *memTx) ListRunInputs(_ context.Context, runID uuid.UUID) ([]domain.PipelineRunInput, error) {
	return filter(t.d.inputs, func(in domain.PipelineRunInput) bool { return in.RunID == runID }), nil
}

func (t *memTx) AddArtifact(ctx context.Context, a *domain.PipelineRunArtifact) error {
	if _, err := t.GetRun(ctx, a.RunID); err != nil {
		return err
	}
	t.d.artifacts = append(t.d.artifacts, *a)
	return nil
}

func (t *memTx) ListArtifacts(_ context.Context, runID uuid.UUID) ([]domain.PipelineRunArtifact, error) {
	return filter(t.d.artifacts, func(a domain.PipelineRunArtifact) bool { return a.RunID == runID }), nil
}

func (t *memTx) AppendConsole(ctx context.Context, c *domain.ConsoleChunk) error {
	if _, err := t.GetRun(ctx, c.RunID); err != nil {
		return err
	}
	t.d.lastConsoleID++
	c.ID = t.d.lastConsoleID
	t.d.console = append(t.d.console, *c)
	return nil
}

func (t *memTx) ListConsole(_ context.Context, runID uuid.UUID) ([]domain.ConsoleChunk, error) {
	return filter(t.d.console, func(c domain.ConsoleChunk) bool { return c.RunID == runID }), nil
}

// --- Workflows ---

func (t *memTx) CreateWorkflow(_ context.Context, w *domain.Workflow) error {
	if find(t.d.workflows, func(x domain.Workflow) bool { return x.ID == w.ID }) >= 0 {
		return ErrAlreadyExists
	}
	t.d.workflows = append(t.d.workflows, *w)
	return nil
}

func (t *memTx) GetWorkflow(_ context.Context, id uuid.UUID) (*domain.Workflow, error) {
	i := find(t.d.workflows, func(x domain.Workflow) bool { return x.ID == id })
	if i < 0 {
		return nil, ErrNotFound
	}
	w := t.d.workflows[i]
	return &w, nil
}

func (t *memTx) LockWorkflow(ctx context.Context, id uuid.UUID) (*domain.Workflow, error) {
	return t.GetWorkflow(ctx, id)
}

func (t *memTx) UpdateWorkflow(_ context.Context, w *domain.Workflow) error {
	i := find(t.d.workflows, func(x domain.Workflow) bool { return x.ID == w.ID })
	if i < 0 {
		return ErrNotFound
	}
	updated := *w
	updated.CreatedAt = t.d.workflows[i].CreatedAt
	t.d.workflows[i] = updated
	return nil
}

func (t *memTx) ListWorkflows(_ context.Context) ([]domain.Workflow, error) {
	return filter(t.d.workflows, func(x domain.Workflow) bool { return !x.IsDeleted }), nil
}

func (t *memTx) CreateNode(ctx context.Context, n *domain.WorkflowPipeline) error {
	if _, err := t.GetWorkflow(ctx, n.WorkflowID); err != nil {
		return err
	}
	if _, err := t.GetPipeline(ctx, n.PipelineID); err != nil {
		return err
	}
	if find(t.d.nodes, func(x domain.WorkflowPipeline) bool { return x.ID == n.ID }) >= 0 {
		return ErrAlreadyExists
	}
	t.d.nodes = append(t.d.nodes, *n)
	return nil
}

func (t *memTx) GetNode(_ context.Context, id uuid.UUID) (*domain.WorkflowPipeline, error) {
	i := find(t.d.nodes, func(x domain.WorkflowPipeline) bool { return x.ID == id })
	if i < 0 {
		return nil, ErrNotFound
	}
	n := t.d.nodes[i]
	return &n, nil
}

func (t *memTx) UpdateNode(_ context.Context, n *domain.WorkflowPipeline) error {
	i := find(t.d.nodes, func(x domain.WorkflowPipeline) bool { return x.ID == n.ID })
	if i < 0 {
		return ErrNotFound
	}
	t.d.nodes[i].PipelineID = n.PipelineID
	t.d.nodes[i].IsDeleted = n.IsDeleted
	return nil
}

func (t *memTx) ListNodes(_ context.Context, workflowID uuid.UUID) ([]domain.WorkflowPipeline, error) {
	return filter(t.d.nodes, func(n domain.WorkflowPipeline) bool {
		return n.WorkflowID == workflowID && !n.IsDeleted
	}), nil
}

func (t *memTx) CreateEdge(ctx context.Context, e *domain.WorkflowPipelineDependency) error {
	if _, err := t.GetNode(ctx, e.FromNodeID); err != nil {
		return err
	}
	if _, err := t.GetNode(ctx, e.ToNodeID); err != nil {
		return err
	}
	if find(t.d.edges, func(x domain.WorkflowPipelineDependency) bool { return x.ID == e.ID }) >= 0 {
		return ErrAlreadyExists
	}
	t.d.edges = append(t.d.edges, *e)
	return nil
}

func (t *memTx) GetEdge(_ context.Context, id uuid.UUID) (*domain.WorkflowPipelineDependency, error) {
	i := find(t.d.edges, func(x domain.WorkflowPipelineDependency) bool { return x.ID == id })
	if i < 0 {
		return nil, ErrNotFound
	}
	e := t.d.edges[i]
	return &e, nil
}

func (t *memTx) UpdateEdge(_ context.Context, e *domain.WorkflowPipelineDependency) error {
	i := find(t.d.edges, func(x domain.WorkflowPipelineDependency) bool { return x.ID == e.ID })
	if i < 0 {
		return ErrNotFound
	}
	t.d.edges[i].IsDeleted = e.IsDeleted
	return nil
}

func (t *memTx) ListEdges(_ context.Context, workflowID uuid.UUID) ([]domain.WorkflowPipelineDependency, error) {
	return filter(t.d.edges, func(e domain.WorkflowPipelineDependency) bool {
		return e.WorkflowID == workflowID && !e.IsDeleted
	}), nil
}

// --- Workflow runs ---

func (t *memTx) CreateWorkflowRun(ctx context.Context, wr *domain.WorkflowRun) error {
	if _, err := t.GetWorkflow(ctx, wr.WorkflowID); err != nil {
		return err
	}
	stored := *wr
	stored.Runs = nil
	t.d.workflowRuns = append(t.d.workflowRuns, stored)
	return nil
}

func (t *memTx) GetWorkflowRun(_ context.Context, id uuid.UUID) (*domain.WorkflowRun, error) {
	i := find(t.d.workflowRuns, func(x domain.WorkflowRun) bool { return x.ID == id })
	if i < 0 {
		return nil, ErrNotFound
	}
	wr := t.d.workflowRuns[i]
	return &wr, nil
}

func (t *memTx) CreateWorkflowPipelineRun(_ context.Context, r *domain.WorkflowPipelineRun) error {
	if find(t.d.nodeRuns, func(x domain.WorkflowPipelineRun) bool { return x.PipelineRunID == r.PipelineRunID }) >= 0 {
		return ErrAlreadyExists
	}
	t.d.nodeRuns = append(t.d.nodeRuns, *r)
	return nil
}

func (t *memTx) ListWorkflowPipelineRuns(_ context.Context, workflowRunID uuid.UUID) ([]domain.WorkflowPipelineRun, error) {
	return filter(t.d.nodeRuns, func(r domain.WorkflowPipelineRun) bool { return r.WorkflowRunID == workflowRunID }), nil
}

func (t *memTx) GetWorkflowPipelineRunByRunID(_ context.Context, runID uuid.UUID) (*domain.WorkflowPipelineRun, error) {
	i := find(t.d.nodeRuns, func(x domain.WorkflowPipelineRun) bool { return x.PipelineRunID == runID })
	if i < 0 {
		return nil, ErrNotFound
	}
	r := t.d.nodeRuns[i]
	return &r, nil
}
