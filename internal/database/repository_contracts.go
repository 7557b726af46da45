package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/thereal-osas/broker-sub006/internal/ledger"
)

const contractColumns = `id, owner_id, class, principal, rate, duration, start_at, end_at, status, accrued_profit, distributed_periods, created_at`

func scanContract(row pgx.Row) (*ledger.Contract, error) {
	var c ledger.Contract
	err := row.Scan(&c.ID, &c.OwnerID, &c.Class, &c.Principal, &c.Rate, &c.Duration,
		&c.StartAt, &c.EndAt, &c.Status, &c.AccruedProfit, &c.DistributedPeriods, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetContract returns one contract by id.
func (r *Repository) GetContract(ctx context.Context, id string) (*ledger.Contract, error) {
	c, err := scanContract(r.db.Pool.QueryRow(ctx,
		`SELECT `+contractColumns+` FROM contracts WHERE id = $1`, id))
	if err != nil {
		return nil, persistence("get_contract", err)
	}
	return c, nil
}

// ListContractsByOwner returns an owner's contracts of one class, newest first.
func (r *Repository) ListContractsByOwner(ctx context.Context, ownerID string, class ledger.ContractClass) ([]ledger.Contract, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+contractColumns+` FROM contracts WHERE owner_id = $1 AND class = $2 ORDER BY created_at DESC`,
		ownerID, class)
	if err != nil {
		return nil, persistence("list_contracts", err)
	}
	defer rows.Close()

	var contracts []ledger.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, persistence("list_contracts", err)
		}
		contracts = append(contracts, *c)
	}
	return contracts, persistence("list_contracts", rows.Err())
}

// EligibleContracts returns active contracts of the class that are owed
// at least one period: distributed_periods < min(elapsed, duration).
func (r *Repository) EligibleContracts(ctx context.Context, class ledger.ContractClass) ([]ledger.Contract, error) {
	unitSeconds := int64(class.PeriodUnit() / time.Second)
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+contractColumns+`
		FROM contracts
		WHERE class = $1
		  AND status = 'active'
		  AND distributed_periods < LEAST(
			FLOOR(EXTRACT(EPOCH FROM (NOW() - start_at)) / $2)::int,
			duration
		  )
		ORDER BY start_at`,
		class, unitSeconds)
	if err != nil {
		return nil, persistence("eligible_contracts", err)
	}
	defer rows.Close()

	var contracts []ledger.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, persistence("eligible_contracts", err)
		}
		contracts = append(contracts, *c)
	}
	return contracts, persistence("eligible_contracts", rows.Err())
}

// DistributedPeriodKeys returns the period keys already credited for a contract.
func (r *Repository) DistributedPeriodKeys(ctx context.Context, contractID string) ([]time.Time, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT period_key FROM profit_distributions WHERE contract_id = $1 ORDER BY period_key`, contractID)
	if err != nil {
		return nil, persistence("distributed_period_keys", err)
	}
	defer rows.Close()

	var keys []time.Time
	for rows.Next() {
		var k time.Time
		if err := rows.Scan(&k); err != nil {
			return nil, persistence("distributed_period_keys", err)
		}
		keys = append(keys, k)
	}
	return keys, persistence("distributed_period_keys", rows.Err())
}

// CompleteContract transitions an active contract to completed and sets
// its end timestamp. A contract already completed is left untouched.
func (r *Repository) CompleteContract(ctx context.Context, contractID string, endAt time.Time) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE contracts SET status = 'completed', end_at = $2 WHERE id = $1 AND status = 'active'`,
		contractID, endAt)
	return persistence("complete_contract", err)
}

// SetContractStatus applies an operator transition (cancelled/suspended/active).
func (r *Repository) SetContractStatus(ctx context.Context, contractID string, status ledger.ContractStatus) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE contracts SET status = $2 WHERE id = $1`, contractID, status)
	if err != nil {
		return persistence("set_contract_status", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

// FundContract creates a contract by moving its principal out of the
// owner's deposit component, in one unit of work: balance debit,
// contract insert and the investment transaction commit together.
func (r *Repository) FundContract(ctx context.Context, contract *ledger.Contract) (*ledger.Transaction, error) {
	var txn *ledger.Transaction
	err := r.inTx(ctx, "fund_contract", func(tx pgx.Tx) error {
		balance, err := lockBalance(ctx, tx, contract.OwnerID)
		if err != nil {
			return err
		}

		if balance.Deposit.LessThan(contract.Principal) {
			return &ledger.InsufficientFundsError{
				OwnerID:   contract.OwnerID,
				Requested: contract.Principal,
				Available: balance.Deposit,
			}
		}
		balance.Deposit = balance.Deposit.Sub(contract.Principal)
		if err := saveBalance(ctx, tx, balance); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO contracts (id, owner_id, class, principal, rate, duration, start_at, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'active')`,
			contract.ID, contract.OwnerID, contract.Class, contract.Principal,
			contract.Rate, contract.Duration, contract.StartAt)
		if err != nil {
			return err
		}

		txn, err = insertTransaction(ctx, tx, &ledger.Transaction{
			OwnerID:     contract.OwnerID,
			Kind:        ledger.TxInvestment,
			Component:   ledger.ComponentDeposit,
			Amount:      contract.Principal,
			ReferenceID: &contract.ID,
			Status:      ledger.TxStatusCompleted,
		})
		return err
	})
	if err != nil {
		return nil, persistence("fund_contract", err)
	}
	return txn, nil
}
