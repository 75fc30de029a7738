package orchestrator

import (
	"errors"
	"fmt"

	"github.com/shaiso/Pipeworks/internal/repo"
)

// Ошибки оркестратора.
var (
	// ErrRunNotFound — run не найден или удалён.
	ErrRunNotFound = fmt.Errorf("run %w", repo.ErrNotFound)

	// ErrWorkflowNotFound — workflow или запуск workflow не найден.
	ErrWorkflowNotFound = fmt.Errorf("workflow %w", repo.ErrNotFound)

	// ErrPipelineNotFound — pipeline не найден или удалён.
	ErrPipelineNotFound = fmt.Errorf("pipeline %w", repo.ErrNotFound)

	// ErrEmptyWorkflow — в workflow нет узлов.
	ErrEmptyWorkflow = errors.New("workflow has no pipelines")

	// ErrRunTerminal — run уже в терминальном состоянии.
	ErrRunTerminal = errors.New("run is in a terminal state")
)

// notFound заменяет repo.ErrNotFound на более точную ошибку.
func notFound(err, specific error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return specific
	}
	return err
}
