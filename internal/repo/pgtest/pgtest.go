// Package pgtest поднимает PostgreSQL в контейнере для интеграционных
// тестов пакетов, работающих поверх repo.Postgres.
package pgtest

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Pipeworks/internal/repo"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Start запускает контейнер, применяет схему и возвращает пул.
// В режиме -short тест пропускается: нужен docker.
func Start(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test: requires docker")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("pipeworks"),
		postgres.WithUsername("pipeworks"),
		postgres.WithPassword("pipeworks"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Errorf("failed to terminate container: %s", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := repo.NewPool(ctx, connStr, 20)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, repo.Migrate(ctx, pool))
	return pool
}
