package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	domainerrors "dispatch-engine/internal/errors"
)

// Transactor runs fn inside a single database transaction. An error from fn rolls
// everything back; a nil return commits.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(tx sqlx.ExtContext) error) error
	WithinSnapshot(ctx context.Context, fn func(tx sqlx.ExtContext) error) error
}

type TxManager struct {
	db *sqlx.DB
}

func NewTxManager(db *sqlx.DB) *TxManager {
	return &TxManager{db: db}
}

func (m *TxManager) WithinTx(ctx context.Context, fn func(tx sqlx.ExtContext) error) error {
	return m.run(ctx, nil, fn)
}

// WithinSnapshot runs fn in a read-only repeatable-read transaction so every
// read inside it sees the same snapshot.
func (m *TxManager) WithinSnapshot(ctx context.Context, fn func(tx sqlx.ExtContext) error) error {
	return m.run(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, fn)
}

func (m *TxManager) run(ctx context.Context, opts *sql.TxOptions, fn func(tx sqlx.ExtContext) error) error {
	tx, err := m.db.BeginTxx(ctx, opts)
	if err != nil {
		return domainerrors.NewUnavailable("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return domainerrors.NewUnavailable("failed to commit transaction", err)
	}
	return nil
}
