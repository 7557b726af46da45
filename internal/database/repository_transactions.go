package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/thereal-osas/broker-sub006/internal/ledger"
)

// The transaction log is append-only: rows are inserted by ledger units
// of work and never updated or deleted.

// insertTransaction appends one audit-log row inside tx.
func insertTransaction(ctx context.Context, tx pgx.Tx, txn *ledger.Transaction) (*ledger.Transaction, error) {
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	if txn.Status == "" {
		txn.Status = ledger.TxStatusCompleted
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO transactions (id, owner_id, kind, component, amount, reference_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		txn.ID, txn.OwnerID, txn.Kind, txn.Component, txn.Amount, txn.ReferenceID, txn.Status,
	).Scan(&txn.CreatedAt)
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// ListTransactions returns an owner's transaction history, newest first.
func (r *Repository) ListTransactions(ctx context.Context, ownerID string, limit int) ([]ledger.Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, owner_id, kind, component, amount, reference_id, status, created_at
		FROM transactions
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		ownerID, limit)
	if err != nil {
		return nil, persistence("list_transactions", err)
	}
	defer rows.Close()

	var txns []ledger.Transaction
	for rows.Next() {
		var t ledger.Transaction
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Kind, &t.Component, &t.Amount,
			&t.ReferenceID, &t.Status, &t.CreatedAt); err != nil {
			return nil, persistence("list_transactions", err)
		}
		txns = append(txns, t)
	}
	return txns, persistence("list_transactions", rows.Err())
}

// ListTransactionsByReference returns the audit rows tied to one
// reference (a contract or withdrawal request), oldest first.
func (r *Repository) ListTransactionsByReference(ctx context.Context, referenceID string) ([]ledger.Transaction, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, owner_id, kind, component, amount, reference_id, status, created_at
		FROM transactions
		WHERE reference_id = $1
		ORDER BY created_at`,
		referenceID)
	if err != nil {
		return nil, persistence("list_transactions_by_reference", err)
	}
	defer rows.Close()

	var txns []ledger.Transaction
	for rows.Next() {
		var t ledger.Transaction
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Kind, &t.Component, &t.Amount,
			&t.ReferenceID, &t.Status, &t.CreatedAt); err != nil {
			return nil, persistence("list_transactions_by_reference", err)
		}
		txns = append(txns, t)
	}
	return txns, persistence("list_transactions_by_reference", rows.Err())
}

// SumProfitSince re-derives credited profit from the audit trail; used
// by reconciliation checks against the denormalized contract caches.
func (r *Repository) SumProfitSince(ctx context.Context, ownerID string, since time.Time) (string, error) {
	var sum string
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)::text
		FROM transactions
		WHERE owner_id = $1 AND kind = 'profit' AND created_at >= $2`,
		ownerID, since).Scan(&sum)
	if err != nil {
		return "", persistence("sum_profit_since", err)
	}
	return sum, nil
}
