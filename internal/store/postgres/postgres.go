// Package postgres implements store.Store on database/sql with lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/stockgame/tradingsim/internal/store"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type repo struct {
	q querier
}

// Store is a Postgres-backed store.Store.
type Store struct {
	repo
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{repo: repo{q: db}, db: db}
}

func (s *Store) WithTx(ctx context.Context, fn func(store.Repo) error) error {
	return s.inTx(ctx, sql.LevelReadCommitted, fn)
}

func (s *Store) WithSnapshotTx(ctx context.Context, fn func(store.Repo) error) error {
	return s.inTx(ctx, sql.LevelRepeatableRead, fn)
}

func (s *Store) inTx(ctx context.Context, level sql.IsolationLevel, fn func(store.Repo) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: level})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	if err := fn(&repo{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const (
	uniqueViolation = "23505"
	// ids are UUID columns; text that does not parse as one matches no row
	invalidTextRepresentation = "22P02"
)

// mapErr translates driver errors into store sentinels
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case uniqueViolation:
			return store.ErrDuplicate
		case invalidTextRepresentation:
			return store.ErrNotFound
		}
	}
	return err
}

// expectOne reports ErrNotFound when an update or delete touched no rows
func expectOne(res sql.Result, err error) error {
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
