// Package accrual implements the profit accrual engine: the pure period
// calculator, the schedule resolver that finds periods owed, and the
// distribution orchestrator that credits them through the ledger writer.
package accrual

import (
	"github.com/shopspring/decimal"
)

// PeriodProfit prices one period of a contract: principal × rate,
// rounded to 2 decimal places half-up. The rate is already per period
// (daily for investments, hourly for live trades). Deterministic, so
// re-deriving amounts from the transaction log always matches what was
// credited.
func PeriodProfit(principal, rate decimal.Decimal) decimal.Decimal {
	return principal.Mul(rate).Round(2)
}

// ContractProfit is the total a contract pays over its full term.
func ContractProfit(principal, rate decimal.Decimal, duration int) decimal.Decimal {
	return PeriodProfit(principal, rate).Mul(decimal.NewFromInt(int64(duration)))
}
