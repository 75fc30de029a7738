package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shaiso/Pipeworks/internal/domain"
)

const runColumns = `id, pipeline_id, sequence, callback_url, is_deleted, created_at`

// NextRunSequence блокирует строку pipeline и возвращает max(sequence)+1.
// Блокировка сериализует параллельное создание runs одного pipeline.
func (t *pgTx) NextRunSequence(ctx context.Context, pipelineID uuid.UUID) (int, error) {
	var locked uuid.UUID
	err := t.q.QueryRow(ctx, `SELECT id FROM pipelines WHERE id = $1 FOR UPDATE`, pipelineID).Scan(&locked)
	if err != nil {
		return 0, notFound(err, "pipeline")
	}

	var next int
	err = t.q.QueryRow(ctx,
		`SELECT COALESCE(max(sequence), 0) + 1 FROM pipeline_runs WHERE pipeline_id = $1`,
		pipelineID,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next run sequence: %w", err)
	}
	return next, nil
}

// CreateRun создаёт run.
func (t *pgTx) CreateRun(ctx context.Context, run *domain.PipelineRun) error {
	query := `
		INSERT INTO pipeline_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := t.q.Exec(ctx, query,
		run.ID,
		run.PipelineID,
		run.Sequence,
		nullString(run.CallbackURL),
		run.IsDeleted,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", mapError(err))
	}
	return nil
}

// GetRun возвращает run по ID.
func (t *pgTx) GetRun(ctx context.Context, id uuid.UUID) (*domain.PipelineRun, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs WHERE id = $1`
	return scanRun(t.q.QueryRow(ctx, query, id))
}

// LockRun возвращает run, блокируя строку до конца транзакции.
func (t *pgTx) LockRun(ctx context.Context, id uuid.UUID) (*domain.PipelineRun, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs WHERE id = $1 FOR UPDATE`
	return scanRun(t.q.QueryRow(ctx, query, id))
}

// ListRuns возвращает неудалённые runs pipeline по возрастанию sequence.
func (t *pgTx) ListRuns(ctx context.Context, pipelineID uuid.UUID) ([]domain.PipelineRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM pipeline_runs
		WHERE pipeline_id = $1 AND NOT is_deleted
		ORDER BY sequence
	`
	rows, err := t.q.Query(ctx, query, pipelineID)
	return collect(rows, err, scanRun)
}

// ListRunsInState возвращает runs, застрявшие в состоянии state.
// Время отсчитывается от входа в состояние или от последней переотправки.
func (t *pgTx) ListRunsInState(ctx context.Context, state domain.RunState, olderThan time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT s.run_id
		FROM pipeline_run_states s
		JOIN (
			SELECT run_id, max(id) AS id
			FROM pipeline_run_states
			GROUP BY run_id
		) last ON last.id = s.id
		JOIN pipeline_runs r ON r.id = s.run_id
		WHERE s.state = $1
		  AND GREATEST(s.created_at, COALESCE(r.last_enqueued_at, s.created_at)) < $2
		  AND NOT r.is_deleted
		ORDER BY s.created_at
		LIMIT $3
	`
	rows, err := t.q.Query(ctx, query, state, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs in state: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkRunsEnqueued запоминает время переотправки задач runs.
func (t *pgTx) MarkRunsEnqueued(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	_, err := t.q.Exec(ctx, `UPDATE pipeline_runs SET last_enqueued_at = $2 WHERE id = ANY($1::uuid[])`, keys, at)
	if err != nil {
		return fmt.Errorf("mark runs enqueued: %w", err)
	}
	return nil
}

// AppendRunState добавляет запись в журнал и заполняет st.ID.
func (t *pgTx) AppendRunState(ctx context.Context, st *domain.PipelineRunState) error {
	query := `
		INSERT INTO pipeline_run_states (run_id, state, created_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	if err := t.q.QueryRow(ctx, query, st.RunID, st.State, st.CreatedAt).Scan(&st.ID); err != nil {
		return fmt.Errorf("insert run state: %w", err)
	}
	return nil
}

// ListRunStates возвращает журнал run в порядке записи.
func (t *pgTx) ListRunStates(ctx context.Context, runID uuid.UUID) ([]domain.PipelineRunState, error) {
	query := `
		SELECT id, run_id, state, created_at
		FROM pipeline_run_states
		WHERE run_id = $1
		ORDER BY id
	`
	rows, err := t.q.Query(ctx, query, runID)
	return collect(rows, err, scanRunState)
}

// CurrentRunState возвращает последнее состояние run.
func (t *pgTx) CurrentRunState(ctx context.Context, runID uuid.UUID) (domain.RunState, error) {
	query := `
		SELECT state
		FROM pipeline_run_states
		WHERE run_id = $1
		ORDER BY id DESC
		LIMIT 1
	`
	var state domain.RunState
	if err := t.q.QueryRow(ctx, query, runID).Scan(&state); err != nil {
		return "", notFound(err, "run state")
	}
	return state, nil
}

// AddRunInput добавляет вход run.
func (t *pgTx) AddRunInput(ctx context.Context, in *domain.PipelineRunInput) error {
	query := `
		INSERT INTO pipeline_run_inputs (id, run_id, filename, url, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := t.q.Exec(ctx, query, in.ID, in.RunID, in.Filename, in.URL, in.CreatedAt); err != nil {
		return fmt.Errorf("insert run input: %w", mapError(err))
	}
	return nil
}

// ListRunInputs возвращает входы run в порядке добавления.
func (t *pgTx) ListRunInputs(ctx context.Context, runID uuid.UUID) ([]domain.PipelineRunInput, error) {
	query := `
		SELECT id, run_id, filename, url, created_at
		FROM pipeline_run_inputs
		WHERE run_id = $1
		ORDER BY created_at, id
	`
	rows, err := t.q.Query(ctx, query, runID)
	return collect(rows, err, func(row pgx.Row) (*domain.PipelineRunInput, error) {
		var in domain.PipelineRunInput
		if err := row.Scan(&in.ID, &in.RunID, &in.Filename, &in.URL, &in.CreatedAt); err != nil {
			return nil, notFound(err, "run input")
		}
		return &in, nil
	})
}

// AddArtifact добавляет артефакт run.
func (t *pgTx) AddArtifact(ctx context.Context, a *domain.PipelineRunArtifact) error {
	query := `
		INSERT INTO pipeline_run_artifacts (id, run_id, name, object_key, size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := t.q.Exec(ctx, query, a.ID, a.RunID, a.Name, a.ObjectKey, a.Size, a.CreatedAt); err != nil {
		return fmt.Errorf("insert artifact: %w", mapError(err))
	}
	return nil
}

// ListArtifacts возвращает артефакты run в порядке добавления.
func (t *pgTx) ListArtifacts(ctx context.Context, runID uuid.UUID) ([]domain.PipelineRunArtifact, error) {
	query := `
		SELECT id, run_id, name, object_key, size, created_at
		FROM pipeline_run_artifacts
		WHERE run_id = $1
		ORDER BY created_at, id
	`
	rows, err := t.q.Query(ctx, query, runID)
	return collect(rows, err, func(row pgx.Row) (*domain.PipelineRunArtifact, error) {
		var a domain.PipelineRunArtifact
		if err := row.Scan(&a.ID, &a.RunID, &a.Name, &a.ObjectKey, &a.Size, &a.CreatedAt); err != nil {
			return nil, notFound(err, "artifact")
		}
		return &a, nil
	})
}

// AppendConsole добавляет порцию вывода и заполняет c.ID.
func (t *pgTx) AppendConsole(ctx context.Context, c *domain.ConsoleChunk) error {
	query := `
		INSERT INTO pipeline_run_console (run_id, stdout, stderr, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if err := t.q.QueryRow(ctx, query, c.RunID, c.Stdout, c.Stderr, c.CreatedAt).Scan(&c.ID); err != nil {
		return fmt.Errorf("insert console chunk: %w", err)
	}
	return nil
}

// ListConsole возвращает порции вывода в порядке добавления.
func (t *pgTx) ListConsole(ctx context.Context, runID uuid.UUID) ([]domain.ConsoleChunk, error) {
	query := `
		SELECT id, run_id, stdout, stderr, created_at
		FROM pipeline_run_console
		WHERE run_id = $1
		ORDER BY id
	`
	rows, err := t.q.Query(ctx, query, runID)
	return collect(rows, err, func(row pgx.Row) (*domain.ConsoleChunk, error) {
		var c domain.ConsoleChunk
		if err := row.Scan(&c.ID, &c.RunID, &c.Stdout, &c.Stderr, &c.CreatedAt); err != nil {
			return nil, notFound(err, "console chunk")
		}
		return &c, nil
	})
}

func scanRun(row pgx.Row) (*domain.PipelineRun, error) {
	var run domain.PipelineRun
	var callbackURL *string

	err := row.Scan(
		&run.ID,
		&run.PipelineID,
		&run.Sequence,
		&callbackURL,
		&run.IsDeleted,
		&run.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err, "run")
	}
	run.CallbackURL = fromNull(callbackURL)
	return &run, nil
}

func scanRunState(row pgx.Row) (*domain.PipelineRunState, error) {
	var st domain.PipelineRunState
	if err := row.Scan(&st.ID, &st.RunID, &st.State, &st.CreatedAt); err != nil {
		return nil, notFound(err, "run state")
	}
	return &st, nil
}
