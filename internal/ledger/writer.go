package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Writer is the atomic primitive everything else is built on. Each call
// is one all-or-nothing unit of work: record insert, balance update and
// transaction-log append commit together or not at all, and the owner's
// balance row is locked for the duration so racing units serialize.
type Writer interface {
	// ApplyAccrual credits one period's profit to the contract owner's
	// profit component and appends a profit transaction. A duplicate
	// (contract, periodKey) pair is reported as applied=false with a
	// nil error: the period was already credited and no state changed.
	ApplyAccrual(ctx context.Context, contract *Contract, periodKey time.Time, amount decimal.Decimal) (applied bool, err error)

	// AdjustBalance moves amount into or out of one named component and
	// appends a transaction of the given kind. A debit that would take
	// the component negative fails with InsufficientFundsError.
	AdjustBalance(ctx context.Context, adj Adjustment) (*Transaction, error)

	// SettleDebit walks the priority order of components, taking
	// min(remaining, component) from each until amount is exhausted,
	// appending one transaction per component touched. Fails with
	// InsufficientFundsError and no state change when the owner's total
	// is short.
	SettleDebit(ctx context.Context, ownerID string, amount decimal.Decimal, priority []Component, kind TxKind, referenceID string) ([]DebitLeg, error)
}
