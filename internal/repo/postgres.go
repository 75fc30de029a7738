package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres — Store поверх PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres создаёт Store поверх пула соединений.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// InTx выполняет fn в транзакции READ COMMITTED.
// Блокировки строк (LockRun, LockWorkflow, NextRunSequence) держатся до коммита.
func (p *Postgres) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{q: tx})
	})
}

// querier — общее подмножество pgxpool.Pool и pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgTx реализует Tx; методы разнесены по файлам *_pg.go.
type pgTx struct {
	q querier
}

var _ Tx = (*pgTx)(nil)

// exec выполняет запрос, изменяющий ровно одну строку.
func (t *pgTx) exec(ctx context.Context, what, query string, args ...any) error {
	result, err := t.q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, mapError(err))
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// collect сканирует все строки через scan.
func collect[T any](rows pgx.Rows, err error, scan func(pgx.Row) (*T, error)) ([]T, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// notFound переводит pgx.ErrNoRows в ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("scan %s: %w", what, err)
}

// mapError переводит нарушение уникальности в ErrAlreadyExists.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, pgErr.ConstraintName)
	}
	return err
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// fromNull возвращает "" для NULL.
func fromNull(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
