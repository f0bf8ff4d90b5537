package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// dbtx is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx, so
// every row-level method works inside and outside a transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// queries holds the row-level operations bound to a pool or transaction.
type queries struct {
	db dbtx
}

// Store is the PostgreSQL-backed event and owner store.
type Store struct {
	queries
	pool *pgxpool.Pool
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// WithTx runs fn inside a transaction. The *Store passed to fn shares the
// transaction for every operation; commit happens only if fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&Store{queries: queries{db: tx}, pool: s.pool}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isUniqueViolation reports a PostgreSQL unique-index conflict, optionally
// scoped to a constraint name.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return constraint == "" || pgErr.ConstraintName == constraint
	}
	return false
}
