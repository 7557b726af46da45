package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/thereal-osas/broker-sub006/internal/ledger"
)

// Repository implements ledger.Writer. Each entry point is one closed,
// statically-typed unit of work: no caller can observe a balance change
// without its transaction row, or the other way round.
var _ ledger.Writer = (*Repository)(nil)

// ApplyAccrual credits one period's profit: distribution record insert,
// balance increment, contract cache update and audit row in one
// transaction. The unique (contract_id, period_key) constraint turns a
// concurrent duplicate into a harmless no-op.
func (r *Repository) ApplyAccrual(ctx context.Context, contract *ledger.Contract, periodKey time.Time, amount decimal.Decimal) (bool, error) {
	err := r.inTx(ctx, "apply_accrual", func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO profit_distributions (contract_id, period_key, amount)
			VALUES ($1, $2, $3)`,
			contract.ID, periodKey, amount)
		if err != nil {
			if uniqueViolation(err, "uq_distribution_period") {
				return ledger.ErrDuplicatePeriod
			}
			return err
		}

		balance, err := lockBalance(ctx, tx, contract.OwnerID)
		if err != nil {
			return err
		}
		balance.Profit = balance.Profit.Add(amount)
		if err := saveBalance(ctx, tx, balance); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE contracts
			SET accrued_profit = accrued_profit + $2,
			    distributed_periods = distributed_periods + 1
			WHERE id = $1`,
			contract.ID, amount)
		if err != nil {
			return err
		}

		_, err = insertTransaction(ctx, tx, &ledger.Transaction{
			OwnerID:     contract.OwnerID,
			Kind:        ledger.TxProfit,
			Component:   ledger.ComponentProfit,
			Amount:      amount,
			ReferenceID: &contract.ID,
		})
		return err
	})
	if err == ledger.ErrDuplicatePeriod {
		// Already credited by an earlier or concurrent run.
		return false, nil
	}
	if err != nil {
		return false, persistence("apply_accrual", err)
	}
	return true, nil
}

// AdjustBalance moves amount into or out of one component and appends
// the matching audit row. Used by admin funding/deduction, referral
// commissions and withdrawal refunds.
func (r *Repository) AdjustBalance(ctx context.Context, adj ledger.Adjustment) (*ledger.Transaction, error) {
	if err := adj.Validate(); err != nil {
		return nil, err
	}

	var txn *ledger.Transaction
	err := r.inTx(ctx, "adjust_balance", func(tx pgx.Tx) error {
		balance, err := lockBalance(ctx, tx, adj.OwnerID)
		if err != nil {
			return err
		}

		current := balance.Get(adj.Component)
		switch adj.Direction {
		case ledger.DirectionCredit:
			balance.Set(adj.Component, current.Add(adj.Amount))
		case ledger.DirectionDebit:
			if current.LessThan(adj.Amount) {
				return &ledger.InsufficientFundsError{
					OwnerID:   adj.OwnerID,
					Requested: adj.Amount,
					Available: current,
				}
			}
			balance.Set(adj.Component, current.Sub(adj.Amount))
		}
		if err := saveBalance(ctx, tx, balance); err != nil {
			return err
		}

		var ref *string
		if adj.ReferenceID != "" {
			ref = &adj.ReferenceID
		}
		txn, err = insertTransaction(ctx, tx, &ledger.Transaction{
			OwnerID:     adj.OwnerID,
			Kind:        adj.Kind,
			Component:   adj.Component,
			Amount:      adj.Amount,
			ReferenceID: ref,
		})
		return err
	})
	if err != nil {
		return nil, persistence("adjust_balance", err)
	}
	return txn, nil
}

// SettleDebit drains amount from the components in priority order, one
// audit row per component touched, all inside one transaction. If the
// owner's total is short, nothing changes and InsufficientFundsError is
// returned.
func (r *Repository) SettleDebit(ctx context.Context, ownerID string, amount decimal.Decimal, priority []ledger.Component, kind ledger.TxKind, referenceID string) ([]ledger.DebitLeg, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, &ledger.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if len(priority) == 0 {
		priority = ledger.WithdrawalPriority
	}

	var legs []ledger.DebitLeg
	err := r.inTx(ctx, "settle_debit", func(tx pgx.Tx) error {
		var err error
		legs, err = debitByPriority(ctx, tx, ownerID, amount, priority, kind, referenceID)
		return err
	})
	if err != nil {
		return nil, persistence("settle_debit", err)
	}
	return legs, nil
}

// debitByPriority performs the priority walk inside an open transaction
// so withdrawal approval can combine it with its status update.
func debitByPriority(ctx context.Context, tx pgx.Tx, ownerID string, amount decimal.Decimal, priority []ledger.Component, kind ledger.TxKind, referenceID string) ([]ledger.DebitLeg, error) {
	balance, err := lockBalance(ctx, tx, ownerID)
	if err != nil {
		return nil, err
	}

	available := decimal.Zero
	for _, c := range priority {
		available = available.Add(balance.Get(c))
	}
	if available.LessThan(amount) {
		return nil, &ledger.InsufficientFundsError{
			OwnerID:   ownerID,
			Requested: amount,
			Available: available,
		}
	}

	var legs []ledger.DebitLeg
	remaining := amount
	for _, c := range priority {
		if remaining.IsZero() {
			break
		}
		take := decimal.Min(remaining, balance.Get(c))
		if take.IsZero() {
			continue
		}
		balance.Set(c, balance.Get(c).Sub(take))
		remaining = remaining.Sub(take)
		legs = append(legs, ledger.DebitLeg{Component: c, Amount: take})
	}
	// The initial check makes a remainder impossible; treat one as a
	// fatal inconsistency and roll the whole unit back.
	if !remaining.IsZero() {
		return nil, &ledger.InsufficientFundsError{
			OwnerID:   ownerID,
			Requested: amount,
			Available: amount.Sub(remaining),
		}
	}

	if err := saveBalance(ctx, tx, balance); err != nil {
		return nil, err
	}

	var ref *string
	if referenceID != "" {
		ref = &referenceID
	}
	for _, leg := range legs {
		if _, err := insertTransaction(ctx, tx, &ledger.Transaction{
			OwnerID:     ownerID,
			Kind:        kind,
			Component:   leg.Component,
			Amount:      leg.Amount,
			ReferenceID: ref,
		}); err != nil {
			return nil, err
		}
	}
	return legs, nil
}
