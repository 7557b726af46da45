package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/thereal-osas/broker-sub006/internal/ledger"
)

// DistributionRun is the persisted record of one orchestrator run. Its
// started_at doubles as the cooldown anchor for the contract class, so
// cooldown enforcement survives restarts and multiple instances.
type DistributionRun struct {
	ID                 int64                `json:"id"`
	ContractClass      ledger.ContractClass `json:"contract_class"`
	StartedAt          time.Time            `json:"started_at"`
	FinishedAt         *time.Time           `json:"finished_at,omitempty"`
	ProcessedContracts int                  `json:"processed_contracts"`
	CompletedContracts int                  `json:"completed_contracts"`
	PeriodsCredited    int                  `json:"periods_credited"`
	ErrorCount         int                  `json:"error_count"`
	TotalAmount        decimal.Decimal      `json:"total_amount"`
}

// BeginRun records the start of a distribution run unless the class is
// still inside its cooldown window, in which case it returns
// OnCooldownError with the remaining wait. An advisory lock keyed on
// the class makes the read-then-insert race-free across instances.
func (r *Repository) BeginRun(ctx context.Context, class ledger.ContractClass, cooldown time.Duration) (int64, error) {
	var runID int64
	err := r.inTx(ctx, "begin_run", func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`SELECT pg_advisory_xact_lock(hashtext('distribution_run_' || $1::text))`, class); err != nil {
			return err
		}

		// Elapsed time is measured on the database clock, the same
		// clock that stamped started_at, so app-host skew cannot
		// stretch or shrink the window.
		var elapsedSeconds *float64
		err := tx.QueryRow(ctx, `
			SELECT EXTRACT(EPOCH FROM (NOW() - MAX(started_at)))::float8
			FROM distribution_runs WHERE contract_class = $1`,
			class).Scan(&elapsedSeconds)
		if err != nil {
			return err
		}
		if elapsedSeconds != nil {
			elapsed := time.Duration(*elapsedSeconds * float64(time.Second))
			if elapsed < cooldown {
				return &ledger.OnCooldownError{
					Class:     string(class),
					Remaining: cooldown - elapsed,
				}
			}
		}

		return tx.QueryRow(ctx, `
			INSERT INTO distribution_runs (contract_class) VALUES ($1) RETURNING id`,
			class).Scan(&runID)
	})
	if err != nil {
		if ledger.IsOnCooldown(err) {
			return 0, err
		}
		return 0, persistence("begin_run", err)
	}
	return runID, nil
}

// FinishRun stores the run summary counters.
func (r *Repository) FinishRun(ctx context.Context, runID int64, s ledger.RunSummary) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE distribution_runs
		SET finished_at = NOW(),
		    processed_contracts = $2,
		    completed_contracts = $3,
		    periods_credited = $4,
		    error_count = $5,
		    total_amount = $6
		WHERE id = $1`,
		runID, s.ProcessedContracts, s.CompletedContracts,
		s.PeriodsCredited, s.Errors, s.TotalAmount)
	return persistence("finish_run", err)
}

// ListRuns returns recent runs for a class, newest first.
func (r *Repository) ListRuns(ctx context.Context, class ledger.ContractClass, limit int) ([]DistributionRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, contract_class, started_at, finished_at,
		       processed_contracts, completed_contracts, periods_credited, error_count, total_amount
		FROM distribution_runs
		WHERE contract_class = $1
		ORDER BY started_at DESC
		LIMIT $2`,
		class, limit)
	if err != nil {
		return nil, persistence("list_runs", err)
	}
	defer rows.Close()

	var runs []DistributionRun
	for rows.Next() {
		var run DistributionRun
		if err := rows.Scan(&run.ID, &run.ContractClass, &run.StartedAt, &run.FinishedAt,
			&run.ProcessedContracts, &run.CompletedContracts, &run.PeriodsCredited,
			&run.ErrorCount, &run.TotalAmount); err != nil {
			return nil, persistence("list_runs", err)
		}
		runs = append(runs, run)
	}
	return runs, persistence("list_runs", rows.Err())
}
