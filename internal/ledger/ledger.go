package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Pipeworks/internal/domain"
	"github.com/shaiso/Pipeworks/internal/repo"
)

// Transition — зафиксированный переход run.
// From пуст для первой записи журнала.
type Transition struct {
	Run  domain.PipelineRun
	From domain.RunState
	To   domain.RunState
	At   time.Time
}

// Seed создаёт run со следующим номером и записывает начальные состояния:
// QUEUED, а для ready также NOT_STARTED.
func Seed(ctx context.Context, tx repo.Tx, run *domain.PipelineRun, ready bool, at time.Time) ([]Transition, error) {
	seq, err := tx.NextRunSequence(ctx, run.PipelineID)
	if err != nil {
		return nil, fmt.Errorf("next sequence: %w", err)
	}
	run.Sequence = seq
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = at
	}
	if err := tx.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	states := []domain.RunState{domain.RunStateQueued}
	if ready {
		states = append(states, domain.RunStateNotStarted)
	}

	transitions := make([]Transition, 0, len(states))
	var from domain.RunState
	for _, to := range states {
		if err := tx.AppendRunState(ctx, &domain.PipelineRunState{RunID: run.ID, State: to, CreatedAt: at}); err != nil {
			return nil, fmt.Errorf("append %s: %w", to, err)
		}
		transitions = append(transitions, Transition{Run: *run, From: from, To: to, At: at})
		from = to
	}
	return transitions, nil
}

// Append переводит run в состояние next.
//
// Строка run блокируется до конца транзакции, поэтому параллельные
// переходы одного run выполняются по очереди и каждый видит результат
// предыдущего. Недопустимый переход возвращает *domain.TransitionError
// и ничего не записывает.
func Append(ctx context.Context, tx repo.RunStore, runID uuid.UUID, next domain.RunState, at time.Time) (Transition, error) {
	if !next.IsValid() {
		return Transition{}, fmt.Errorf("%w: %q", domain.ErrUnknownState, next)
	}

	run, err := tx.LockRun(ctx, runID)
	if err != nil {
		return Transition{}, err
	}

	current, err := Current(ctx, tx, runID)
	if err != nil {
		return Transition{}, err
	}
	if err := domain.CheckTransition(current, next); err != nil {
		return Transition{}, err
	}

	if err := tx.AppendRunState(ctx, &domain.PipelineRunState{RunID: runID, State: next, CreatedAt: at}); err != nil {
		return Transition{}, fmt.Errorf("append %s: %w", next, err)
	}
	return Transition{Run: *run, From: current, To: next, At: at}, nil
}

// Current возвращает текущее состояние run.
func Current(ctx context.Context, tx repo.RunStore, runID uuid.UUID) (domain.RunState, error) {
	state, err := tx.CurrentRunState(ctx, runID)
	if errors.Is(err, repo.ErrNotFound) {
		return "", fmt.Errorf("run %s has no state history: %w", runID, repo.ErrNotFound)
	}
	return state, err
}

// History возвращает журнал run в порядке записи.
func History(ctx context.Context, tx repo.RunStore, runID uuid.UUID) ([]domain.PipelineRunState, error) {
	return tx.ListRunStates(ctx, runID)
}

// AppendConsole добавляет порцию вывода. Пустая порция игнорируется.
func AppendConsole(ctx context.Context, tx repo.RunStore, runID uuid.UUID, stdout, stderr string, at time.Time) error {
	if stdout == "" && stderr == "" {
		return nil
	}
	if _, err := tx.GetRun(ctx, runID); err != nil {
		return err
	}
	return tx.AppendConsole(ctx, &domain.ConsoleChunk{
		RunID:     runID,
		Stdout:    stdout,
		Stderr:    stderr,
		CreatedAt: at,
	})
}

// ReadConsole возвращает склеенный вывод run.
func ReadConsole(ctx context.Context, tx repo.RunStore, runID uuid.UUID) (domain.ConsoleOutput, error) {
	chunks, err := tx.ListConsole(ctx, runID)
	if err != nil {
		return domain.ConsoleOutput{}, err
	}
	return domain.JoinConsole(chunks), nil
}
