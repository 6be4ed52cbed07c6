// Package engine is the dataset's analytical query backend: a pooled
// Postgres/pgx client where each column-group file is modeled as a
// `(uuid, data jsonb)` table. SQL here only extracts scalar fields
// (`data#>>'{...}'`) and tests jsonpath existence (`@?`); nested projection,
// flatten and unnest run in Go in the dataset package.
package engine

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Engine is a pooled Postgres connection used to store and query a
// dataset's column-group tables.
type Engine struct {
	pool *pgxpool.Pool
}

// New wraps an already-configured pool.
func New(pool *pgxpool.Pool) *Engine {
	return &Engine{pool: pool}
}

// Connect opens a pool against dsn, the shape cmd/datasetd uses at startup.
func Connect(ctx context.Context, dsn string, maxConns, minConns int32) (*Engine, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = minConns
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect pool: %w", err)
	}
	return New(pool), nil
}

// Pool exposes the underlying pool for callers that need raw access.
func (e *Engine) Pool() *pgxpool.Pool { return e.pool }

// Close releases the pool's connections.
func (e *Engine) Close() { e.pool.Close() }

// WithTx runs fn inside a transaction, committing on success and rolling
// back on any error or panic.
func (e *Engine) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
