package domain

import (
	"errors"
	"fmt"
)

// Ошибки доменной модели.
var (
	// ErrValidation — входные данные некорректны.
	ErrValidation = errors.New("validation failed")

	// ErrUnknownState — неизвестное имя состояния run.
	ErrUnknownState = errors.New("unknown run state")

	// ErrInvalidTransition — переход запрещён машиной состояний.
	ErrInvalidTransition = errors.New("invalid transition")
)

// TransitionError — запрещённый переход с контекстом.
type TransitionError struct {
	From RunState
	To   RunState
}

// Error реализует интерфейс error.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

// Unwrap возвращает ErrInvalidTransition.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// Validationf создаёт ошибку валидации с сообщением.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
