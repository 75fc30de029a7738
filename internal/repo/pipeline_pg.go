package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shaiso/Pipeworks/internal/domain"
)

const pipelineColumns = `id, name, description, docker_image, repository_url,
	repository_branch, repository_script, is_deleted, created_at, updated_at`

// CreatePipeline создаёт pipeline.
func (t *pgTx) CreatePipeline(ctx context.Context, p *domain.Pipeline) error {
	query := `
		INSERT INTO pipelines (` + pipelineColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := t.q.Exec(ctx, query,
		p.ID,
		p.Name,
		p.Description,
		p.DockerImage,
		p.RepositoryURL,
		p.RepositoryBranch,
		p.RepositoryScript,
		p.IsDeleted,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert pipeline: %w", mapError(err))
	}
	return nil
}

// GetPipeline возвращает pipeline по ID (включая удалённые).
func (t *pgTx) GetPipeline(ctx context.Context, id uuid.UUID) (*domain.Pipeline, error) {
	query := `SELECT ` + pipelineColumns + ` FROM pipelines WHERE id = $1`
	return scanPipeline(t.q.QueryRow(ctx, query, id))
}

// UpdatePipeline обновляет изменяемые поля pipeline.
func (t *pgTx) UpdatePipeline(ctx context.Context, p *domain.Pipeline) error {
	query := `
		UPDATE pipelines
		SET name = $2, description = $3, docker_image = $4, repository_url = $5,
		    repository_branch = $6, repository_script = $7, is_deleted = $8, updated_at = $9
		WHERE id = $1
	`
	return t.exec(ctx, "update pipeline", query,
		p.ID,
		p.Name,
		p.Description,
		p.DockerImage,
		p.RepositoryURL,
		p.RepositoryBranch,
		p.RepositoryScript,
		p.IsDeleted,
		p.UpdatedAt,
	)
}

// ListPipelines возвращает неудалённые pipelines.
func (t *pgTx) ListPipelines(ctx context.Context) ([]domain.Pipeline, error) {
	query := `
		SELECT ` + pipelineColumns + `
		FROM pipelines
		WHERE NOT is_deleted
		ORDER BY created_at, id
	`
	rows, err := t.q.Query(ctx, query)
	return collect(rows, err, scanPipeline)
}

// CountPipelineReferences считает неудалённые узлы, ссылающиеся на pipeline.
func (t *pgTx) CountPipelineReferences(ctx context.Context, pipelineID uuid.UUID) (int, error) {
	query := `
		SELECT count(*)
		FROM workflow_pipelines
		WHERE pipeline_id = $1 AND NOT is_deleted
	`
	var n int
	if err := t.q.QueryRow(ctx, query, pipelineID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pipeline references: %w", err)
	}
	return n, nil
}

func scanPipeline(row pgx.Row) (*domain.Pipeline, error) {
	var p domain.Pipeline
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.DockerImage,
		&p.RepositoryURL,
		&p.RepositoryBranch,
		&p.RepositoryScript,
		&p.IsDeleted,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "pipeline")
	}
	return &p, nil
}
