package database

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/thereal-osas/broker-sub006/internal/ledger"
)

// Balance rows are created lazily on first access and only ever mutated
// through the ledger writer, under a row-level lock.

const balanceColumns = `owner_id, total, deposit, profit, bonus, card, credit_score, updated_at`

func scanBalance(row pgx.Row) (*ledger.Balance, error) {
	var b ledger.Balance
	err := row.Scan(&b.OwnerID, &b.Total, &b.Deposit, &b.Profit, &b.Bonus, &b.Card, &b.CreditScore, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBalance returns the owner's balance, creating the row on first access.
func (r *Repository) GetBalance(ctx context.Context, ownerID string) (*ledger.Balance, error) {
	if _, err := r.db.Pool.Exec(ctx,
		`INSERT INTO balances (owner_id) VALUES ($1) ON CONFLICT (owner_id) DO NOTHING`, ownerID); err != nil {
		return nil, persistence("get_balance", err)
	}

	b, err := scanBalance(r.db.Pool.QueryRow(ctx,
		`SELECT `+balanceColumns+` FROM balances WHERE owner_id = $1`, ownerID))
	if err != nil {
		return nil, persistence("get_balance", err)
	}
	return b, nil
}

// lockBalance loads the owner's balance row FOR UPDATE inside tx,
// creating it first if the owner has never been touched. The lock
// serializes every ledger unit of work per owner.
func lockBalance(ctx context.Context, tx pgx.Tx, ownerID string) (*ledger.Balance, error) {
	if _, err := tx.Exec(ctx,
		`INSERT INTO balances (owner_id) VALUES ($1) ON CONFLICT (owner_id) DO NOTHING`, ownerID); err != nil {
		return nil, err
	}
	return scanBalance(tx.QueryRow(ctx,
		`SELECT `+balanceColumns+` FROM balances WHERE owner_id = $1 FOR UPDATE`, ownerID))
}

// saveBalance writes all components back, recomputing total from the
// monetary components so it can never drift from its parts.
func saveBalance(ctx context.Context, tx pgx.Tx, b *ledger.Balance) error {
	b.Total = b.Deposit.Add(b.Profit).Add(b.Bonus).Add(b.Card)
	_, err := tx.Exec(ctx, `
		UPDATE balances
		SET total = $2, deposit = $3, profit = $4, bonus = $5, card = $6, credit_score = $7, updated_at = NOW()
		WHERE owner_id = $1`,
		b.OwnerID, b.Total, b.Deposit, b.Profit, b.Bonus, b.Card, b.CreditScore,
	)
	return err
}
