package domain

import (
	"fmt"
	"strings"
)

// RunState — состояние выполнения pipeline run.
//
// Жизненный цикл:
//
//	QUEUED → NOT_STARTED → RUNNING → COMPLETED
//	                              ↘ FAILED
//	(из любого нефинального) → CANCELLED
type RunState string

const (
	// RunStateQueued — run создан и ждёт входных данных от предшественников.
	RunStateQueued RunState = "QUEUED"

	// RunStateNotStarted — run готов к выполнению и отправлен в очередь.
	RunStateNotStarted RunState = "NOT_STARTED"

	// RunStateRunning — run выполняется воркером.
	RunStateRunning RunState = "RUNNING"

	// RunStateFailed — выполнение завершилось ошибкой.
	RunStateFailed RunState = "FAILED"

	// RunStateCompleted — выполнение успешно завершено.
	RunStateCompleted RunState = "COMPLETED"

	// RunStateCancelled — run отменён.
	RunStateCancelled RunState = "CANCELLED"
)

// AllRunStates перечисляет состояния в порядке жизненного цикла.
var AllRunStates = []RunState{
	RunStateQueued,
	RunStateNotStarted,
	RunStateRunning,
	RunStateFailed,
	RunStateCompleted,
	RunStateCancelled,
}

// transitions — таблица допустимых переходов.
// Финальные состояния не имеют исходящих переходов.
var transitions = map[RunState][]RunState{
	RunStateQueued:     {RunStateNotStarted, RunStateCancelled},
	RunStateNotStarted: {RunStateRunning, RunStateCancelled},
	RunStateRunning:    {RunStateFailed, RunStateCompleted, RunStateCancelled},
}

// IsValidTransition возвращает true, если переход from → to разрешён.
func IsValidTransition(from, to RunState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal возвращает true, если состояние финальное.
func (s RunState) IsTerminal() bool {
	switch s {
	case RunStateFailed, RunStateCompleted, RunStateCancelled:
		return true
	default:
		return false
	}
}

// IsValid проверяет, что состояние известно.
func (s RunState) IsValid() bool {
	for _, known := range AllRunStates {
		if s == known {
			return true
		}
	}
	return false
}

// String возвращает строковое представление RunState.
func (s RunState) String() string {
	return string(s)
}

// ParseRunState парсит имя состояния (регистр не важен).
func ParseRunState(s string) (RunState, error) {
	state := RunState(strings.ToUpper(strings.TrimSpace(s)))
	if !state.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownState, s)
	}
	return state, nil
}

// CheckTransition возвращает ErrInvalidTransition, если переход запрещён.
func CheckTransition(from, to RunState) error {
	if !IsValidTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}
