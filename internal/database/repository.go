// Package database implements the durable store for the accrual engine
// and balance ledger on PostgreSQL. Every ledger mutation runs inside
// one pgx transaction with the owner's balance row locked, so balance
// updates and their transaction-log appends commit together or not at
// all.
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/thereal-osas/broker-sub006/internal/ledger"
)

// Repository provides access to all persistent records
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// inTx runs fn inside one all-or-nothing transaction.
func (r *Repository) inTx(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return &ledger.PersistenceError{Op: op, Err: err}
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return &ledger.PersistenceError{Op: op, Err: err}
	}
	return nil
}

// uniqueViolation reports whether err is a unique-constraint violation,
// optionally for one named constraint.
func uniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// persistence wraps a store error unless it already carries ledger semantics.
func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.ErrNotFound
	}
	var ve *ledger.ValidationError
	var ie *ledger.InsufficientFundsError
	if errors.As(err, &ve) || errors.As(err, &ie) ||
		errors.Is(err, ledger.ErrNotFound) || errors.Is(err, ledger.ErrDuplicatePeriod) {
		return err
	}
	var pe *ledger.PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &ledger.PersistenceError{Op: op, Err: fmt.Errorf("%w", err)}
}
