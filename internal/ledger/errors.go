package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Sentinel errors surfaced to operation callers.
var (
	// ErrNotFound means the referenced contract, withdrawal or owner is unknown.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicatePeriod means the (contract, period) pair was already
	// credited. Expected under concurrent or repeated triggering and
	// swallowed by the orchestrator, never surfaced as a failure.
	ErrDuplicatePeriod = errors.New("period already credited")
)

// ValidationError reports a malformed amount, status or component name.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// InsufficientFundsError is returned when a debit exceeds the owner's
// total balance. No state is changed when it is returned.
type InsufficientFundsError struct {
	OwnerID   string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds for owner %s: requested %s, available %s",
		e.OwnerID, e.Requested.StringFixed(2), e.Available.StringFixed(2))
}

// IsInsufficientFunds reports whether err is an InsufficientFundsError.
func IsInsufficientFunds(err error) bool {
	var ie *InsufficientFundsError
	return errors.As(err, &ie)
}

// OnCooldownError rejects a distribution trigger inside the cooldown
// window and carries the remaining wait.
type OnCooldownError struct {
	Class     string
	Remaining time.Duration
}

func (e *OnCooldownError) Error() string {
	return fmt.Sprintf("distribution for %s on cooldown, %s remaining", e.Class, e.Remaining.Round(time.Second))
}

// IsOnCooldown reports whether err is an OnCooldownError.
func IsOnCooldown(err error) bool {
	var ce *OnCooldownError
	return errors.As(err, &ce)
}

// PersistenceError wraps a store-level failure for one unit of work.
// The unit is rolled back; for accrual the period stays owed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
