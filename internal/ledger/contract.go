package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ContractClass distinguishes fixed-term investments (daily accrual)
// from short-term live trades (hourly accrual).
type ContractClass string

const (
	ClassInvestment ContractClass = "investment"
	ClassLiveTrade  ContractClass = "live_trade"
)

// ParseContractClass validates a class name from an API boundary.
func ParseContractClass(s string) (ContractClass, error) {
	switch ContractClass(strings.ToLower(strings.TrimSpace(s))) {
	case ClassInvestment:
		return ClassInvestment, nil
	case ClassLiveTrade:
		return ClassLiveTrade, nil
	}
	return "", &ValidationError{Field: "contract_class", Reason: fmt.Sprintf("unknown class %q", s)}
}

// PeriodUnit is the accrual period length for the class.
func (c ContractClass) PeriodUnit() time.Duration {
	if c == ClassLiveTrade {
		return time.Hour
	}
	return 24 * time.Hour
}

// ContractStatus is the lifecycle state of a contract.
type ContractStatus string

const (
	ContractActive    ContractStatus = "active"
	ContractCompleted ContractStatus = "completed"
	ContractCancelled ContractStatus = "cancelled"
	ContractSuspended ContractStatus = "suspended"
)

// Contract is a time-boxed commitment accruing profit per period.
// AccruedProfit and DistributedPeriods are denormalized caches, always
// recomputable from the profit distribution records.
type Contract struct {
	ID                 string          `json:"id"`
	OwnerID            string          `json:"owner_id"`
	Class              ContractClass   `json:"class"`
	Principal          decimal.Decimal `json:"principal"`
	Rate               decimal.Decimal `json:"rate"` // per period, already unit-adjusted
	Duration           int             `json:"duration"`
	StartAt            time.Time       `json:"start_at"`
	EndAt              *time.Time      `json:"end_at,omitempty"`
	Status             ContractStatus  `json:"status"`
	AccruedProfit      decimal.Decimal `json:"accrued_profit"`
	DistributedPeriods int             `json:"distributed_periods"`
	CreatedAt          time.Time       `json:"created_at"`
}

// ProfitDistribution is one immutable record of a single period credit.
// The unique (contract_id, period_key) pair is the idempotency anchor.
type ProfitDistribution struct {
	ID         int64           `json:"id"`
	ContractID string          `json:"contract_id"`
	PeriodKey  time.Time       `json:"period_key"`
	Amount     decimal.Decimal `json:"amount"`
	CreatedAt  time.Time       `json:"created_at"`
}

// WithdrawalStatus is the state of a withdrawal request.
type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalApproved  WithdrawalStatus = "approved"
	WithdrawalDeclined  WithdrawalStatus = "declined"
	WithdrawalProcessed WithdrawalStatus = "processed"
)

// ParseWithdrawalStatus validates a status name from an API boundary.
func ParseWithdrawalStatus(s string) (WithdrawalStatus, error) {
	switch WithdrawalStatus(strings.ToLower(strings.TrimSpace(s))) {
	case WithdrawalPending:
		return WithdrawalPending, nil
	case WithdrawalApproved:
		return WithdrawalApproved, nil
	case WithdrawalDeclined:
		return WithdrawalDeclined, nil
	case WithdrawalProcessed:
		return WithdrawalProcessed, nil
	}
	return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", s)}
}

// Terminal reports whether no further transitions are allowed.
func (s WithdrawalStatus) Terminal() bool {
	return s == WithdrawalDeclined || s == WithdrawalProcessed
}

// WithdrawalRequest is an owner's request to withdraw funds, settled by
// the withdrawal service through its state machine.
type WithdrawalRequest struct {
	ID          string           `json:"id"`
	OwnerID     string           `json:"owner_id"`
	Amount      decimal.Decimal  `json:"amount"`
	Method      string           `json:"method"`
	Status      WithdrawalStatus `json:"status"`
	AdminNotes  string           `json:"admin_notes,omitempty"`
	ProcessedBy *string          `json:"processed_by,omitempty"`
	ProcessedAt *time.Time       `json:"processed_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// User is the account record the auth layer manages. The ledger core
// only reads the id, admin flag and referrer link.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	IsAdmin      bool       `json:"is_admin"`
	ReferredBy   *string    `json:"referred_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}
