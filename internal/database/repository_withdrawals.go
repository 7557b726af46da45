package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/thereal-osas/broker-sub006/internal/ledger"
)

const withdrawalColumns = `id, owner_id, amount, method, status, admin_notes, processed_by, processed_at, created_at`

func scanWithdrawal(row pgx.Row) (*ledger.WithdrawalRequest, error) {
	var w ledger.WithdrawalRequest
	err := row.Scan(&w.ID, &w.OwnerID, &w.Amount, &w.Method, &w.Status,
		&w.AdminNotes, &w.ProcessedBy, &w.ProcessedAt, &w.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// CreateWithdrawal inserts a new pending request. No balance effect.
func (r *Repository) CreateWithdrawal(ctx context.Context, w *ledger.WithdrawalRequest) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	w.Status = ledger.WithdrawalPending
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO withdrawal_requests (id, owner_id, amount, method, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING created_at`,
		w.ID, w.OwnerID, w.Amount, w.Method,
	).Scan(&w.CreatedAt)
	return persistence("create_withdrawal", err)
}

// GetWithdrawal returns one request by id.
func (r *Repository) GetWithdrawal(ctx context.Context, id string) (*ledger.WithdrawalRequest, error) {
	w, err := scanWithdrawal(r.db.Pool.QueryRow(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1`, id))
	if err != nil {
		return nil, persistence("get_withdrawal", err)
	}
	return w, nil
}

// ListWithdrawalsByOwner returns an owner's requests, newest first.
func (r *Repository) ListWithdrawalsByOwner(ctx context.Context, ownerID string) ([]ledger.WithdrawalRequest, error) {
	return r.listWithdrawals(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
}

// ListWithdrawalsByStatus returns requests in one state across owners.
func (r *Repository) ListWithdrawalsByStatus(ctx context.Context, status ledger.WithdrawalStatus) ([]ledger.WithdrawalRequest, error) {
	return r.listWithdrawals(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE status = $1 ORDER BY created_at DESC`, status)
}

func (r *Repository) listWithdrawals(ctx context.Context, query string, arg any) ([]ledger.WithdrawalRequest, error) {
	rows, err := r.db.Pool.Query(ctx, query, arg)
	if err != nil {
		return nil, persistence("list_withdrawals", err)
	}
	defer rows.Close()

	var reqs []ledger.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, persistence("list_withdrawals", err)
		}
		reqs = append(reqs, *w)
	}
	return reqs, persistence("list_withdrawals", rows.Err())
}

// lockWithdrawal loads the request FOR UPDATE and verifies the state
// the transition departs from, so racing settlements serialize on the
// row and the loser sees the already-moved status.
func lockWithdrawal(ctx context.Context, tx pgx.Tx, id string, expect ledger.WithdrawalStatus) (*ledger.WithdrawalRequest, error) {
	w, err := scanWithdrawal(tx.QueryRow(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ledger.ErrNotFound
		}
		return nil, err
	}
	if w.Status != expect {
		return nil, &ledger.ValidationError{
			Field:  "status",
			Reason: fmt.Sprintf("request is %s, expected %s", w.Status, expect),
		}
	}
	return w, nil
}

func setWithdrawalStatus(ctx context.Context, tx pgx.Tx, id string, status ledger.WithdrawalStatus, adminID, notes string) error {
	_, err := tx.Exec(ctx, `
		UPDATE withdrawal_requests
		SET status = $2, admin_notes = $3, processed_by = $4, processed_at = NOW()
		WHERE id = $1`,
		id, status, notes, adminID)
	return err
}

// ApproveAndDebit moves pending→approved and performs the priority-
// ordered multi-component debit, all in one transaction. On
// InsufficientFunds nothing changes, including the request status.
func (r *Repository) ApproveAndDebit(ctx context.Context, id, adminID, notes string) ([]ledger.DebitLeg, error) {
	var legs []ledger.DebitLeg
	err := r.inTx(ctx, "approve_withdrawal", func(tx pgx.Tx) error {
		w, err := lockWithdrawal(ctx, tx, id, ledger.WithdrawalPending)
		if err != nil {
			return err
		}
		legs, err = debitByPriority(ctx, tx, w.OwnerID, w.Amount, ledger.WithdrawalPriority, ledger.TxWithdrawal, w.ID)
		if err != nil {
			return err
		}
		return setWithdrawalStatus(ctx, tx, id, ledger.WithdrawalApproved, adminID, notes)
	})
	if err != nil {
		return nil, persistence("approve_withdrawal", err)
	}
	return legs, nil
}

// DeclinePending moves pending→declined. No balance effect.
func (r *Repository) DeclinePending(ctx context.Context, id, adminID, notes string) error {
	err := r.inTx(ctx, "decline_withdrawal", func(tx pgx.Tx) error {
		if _, err := lockWithdrawal(ctx, tx, id, ledger.WithdrawalPending); err != nil {
			return err
		}
		return setWithdrawalStatus(ctx, tx, id, ledger.WithdrawalDeclined, adminID, notes)
	})
	return persistence("decline_withdrawal", err)
}

// DeclineApproved moves approved→declined and refunds the full amount
// with a single reversing credit to the deposit component, restoring
// the owner's total to its pre-approval value.
func (r *Repository) DeclineApproved(ctx context.Context, id, adminID, notes string) error {
	err := r.inTx(ctx, "refund_withdrawal", func(tx pgx.Tx) error {
		w, err := lockWithdrawal(ctx, tx, id, ledger.WithdrawalApproved)
		if err != nil {
			return err
		}

		balance, err := lockBalance(ctx, tx, w.OwnerID)
		if err != nil {
			return err
		}
		balance.Deposit = balance.Deposit.Add(w.Amount)
		if err := saveBalance(ctx, tx, balance); err != nil {
			return err
		}

		if _, err := insertTransaction(ctx, tx, &ledger.Transaction{
			OwnerID:     w.OwnerID,
			Kind:        ledger.TxRefund,
			Component:   ledger.ComponentDeposit,
			Amount:      w.Amount,
			ReferenceID: &w.ID,
		}); err != nil {
			return err
		}

		return setWithdrawalStatus(ctx, tx, id, ledger.WithdrawalDeclined, adminID, notes)
	})
	return persistence("refund_withdrawal", err)
}

// MarkProcessed moves approved→processed. The debit already happened on
// approval; this is a terminal bookkeeping transition only.
func (r *Repository) MarkProcessed(ctx context.Context, id, adminID, notes string) error {
	err := r.inTx(ctx, "process_withdrawal", func(tx pgx.Tx) error {
		if _, err := lockWithdrawal(ctx, tx, id, ledger.WithdrawalApproved); err != nil {
			return err
		}
		return setWithdrawalStatus(ctx, tx, id, ledger.WithdrawalProcessed, adminID, notes)
	})
	return persistence("process_withdrawal", err)
}
