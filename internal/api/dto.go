package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Pipeworks/internal/domain"
	"github.com/shaiso/Pipeworks/internal/orchestrator"
)

// Pipeline DTOs

// PipelineRequest — запрос на создание или замену pipeline.
type PipelineRequest struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	DockerImage      string `json:"docker_image"`
	RepositoryURL    string `json:"repository_url"`
	RepositoryBranch string `json:"repository_branch"`
	RepositoryScript string `json:"repository_script"`
}

// ToDomain конвертирует запрос в domain.Pipeline.
func (r PipelineRequest) ToDomain() domain.Pipeline {
	return domain.Pipeline{
		Name:             r.Name,
		Description:      r.Description,
		DockerImage:      r.DockerImage,
		RepositoryURL:    r.RepositoryURL,
		RepositoryBranch: r.RepositoryBranch,
		RepositoryScript: r.RepositoryScript,
	}
}

// Run DTOs

// RunRequest — запрос на запуск pipeline или workflow.
type RunRequest = orchestrator.RunRequest

// StateRequest — запрос на смену состояния run.
type StateRequest struct {
	State string `json:"state"`
}

// ConsoleRequest — порция вывода консоли.
type ConsoleRequest struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// TransitionResponse — ответ о выполненном переходе.
type TransitionResponse struct {
	RunID uuid.UUID       `json:"run_id"`
	From  domain.RunState `json:"from"`
	To    domain.RunState `json:"to"`
	At    time.Time       `json:"at"`
}

// Workflow DTOs

// WorkflowRequest — запрос на создание workflow.
type WorkflowRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// NodeRequest — запрос на добавление узла.
type NodeRequest struct {
	PipelineID uuid.UUID `json:"pipeline_id"`
}

// EdgeRequest — запрос на добавление ребра From → To.
type EdgeRequest struct {
	FromNodeID uuid.UUID `json:"from_node_id"`
	ToNodeID   uuid.UUID `json:"to_node_id"`
}

// CycleCheckResponse — результат проверки ребра на цикл.
type CycleCheckResponse struct {
	WouldCreateCycle bool `json:"would_create_cycle"`
}
