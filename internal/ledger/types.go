// Package ledger defines the balance components, transaction kinds and
// domain records shared by the accrual engine, withdrawal settlement and
// the persistence layer, plus the writer interfaces the services run on.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Component is one named slice of a user's balance.
type Component string

const (
	ComponentTotal       Component = "total"
	ComponentDeposit     Component = "deposit"
	ComponentProfit      Component = "profit"
	ComponentBonus       Component = "bonus"
	ComponentCard        Component = "card"
	ComponentCreditScore Component = "credit_score"
)

// MutableComponents are the components an adjustment may target directly.
// "total" is derived and never written to by callers.
var MutableComponents = []Component{
	ComponentDeposit,
	ComponentProfit,
	ComponentBonus,
	ComponentCard,
	ComponentCreditScore,
}

// MonetaryComponents feed the derived total. credit_score is a points
// balance and stays outside of it.
var MonetaryComponents = []Component{
	ComponentDeposit,
	ComponentProfit,
	ComponentBonus,
	ComponentCard,
}

// WithdrawalPriority is the fixed order settlement drains components in.
var WithdrawalPriority = []Component{
	ComponentDeposit,
	ComponentProfit,
	ComponentBonus,
	ComponentCard,
}

// ParseComponent validates a component name from an API boundary.
func ParseComponent(s string) (Component, error) {
	c := Component(strings.ToLower(strings.TrimSpace(s)))
	for _, m := range MutableComponents {
		if c == m {
			return c, nil
		}
	}
	return "", &ValidationError{Field: "component", Reason: fmt.Sprintf("unknown component %q", s)}
}

// Countable reports whether the component feeds the derived total.
func (c Component) Countable() bool {
	for _, m := range MonetaryComponents {
		if c == m {
			return true
		}
	}
	return false
}

// Direction of a balance adjustment.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// ParseDirection validates a direction from an API boundary.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case DirectionCredit:
		return DirectionCredit, nil
	case DirectionDebit:
		return DirectionDebit, nil
	}
	return "", &ValidationError{Field: "direction", Reason: fmt.Sprintf("unknown direction %q", s)}
}

// TxKind classifies an entry in the transaction log.
type TxKind string

const (
	TxDeposit            TxKind = "deposit"
	TxWithdrawal         TxKind = "withdrawal"
	TxInvestment         TxKind = "investment"
	TxProfit             TxKind = "profit"
	TxBonus              TxKind = "bonus"
	TxReferralCommission TxKind = "referral_commission"
	TxAdminFunding       TxKind = "admin_funding"
	TxAdminDeduction     TxKind = "admin_deduction"
	TxCredit             TxKind = "credit"
	TxDebit              TxKind = "debit"
	TxRefund             TxKind = "refund"
)

// TxStatus is the state of a transaction-log entry.
type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusCompleted TxStatus = "completed"
	TxStatusFailed    TxStatus = "failed"
)

// Balance is one owner's multi-component balance row. The camelCase
// wire keys are the dashboard contract for the balance snapshot.
type Balance struct {
	OwnerID     string          `json:"ownerId"`
	Total       decimal.Decimal `json:"total"`
	Deposit     decimal.Decimal `json:"deposit"`
	Profit      decimal.Decimal `json:"profit"`
	Bonus       decimal.Decimal `json:"bonus"`
	Card        decimal.Decimal `json:"card"`
	CreditScore decimal.Decimal `json:"creditScore"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Get returns the value of one component.
func (b *Balance) Get(c Component) decimal.Decimal {
	switch c {
	case ComponentTotal:
		return b.Total
	case ComponentDeposit:
		return b.Deposit
	case ComponentProfit:
		return b.Profit
	case ComponentBonus:
		return b.Bonus
	case ComponentCard:
		return b.Card
	case ComponentCreditScore:
		return b.CreditScore
	}
	return decimal.Zero
}

// Set overwrites the value of one component.
func (b *Balance) Set(c Component, v decimal.Decimal) {
	switch c {
	case ComponentTotal:
		b.Total = v
	case ComponentDeposit:
		b.Deposit = v
	case ComponentProfit:
		b.Profit = v
	case ComponentBonus:
		b.Bonus = v
	case ComponentCard:
		b.Card = v
	case ComponentCreditScore:
		b.CreditScore = v
	}
}

// Transaction is one immutable entry in the audit log.
type Transaction struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	Kind        TxKind          `json:"kind"`
	Component   Component       `json:"component"`
	Amount      decimal.Decimal `json:"amount"`
	ReferenceID *string         `json:"reference_id,omitempty"`
	Status      TxStatus        `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Adjustment is one AdjustBalance request.
type Adjustment struct {
	OwnerID     string
	Component   Component
	Amount      decimal.Decimal
	Direction   Direction
	Kind        TxKind
	ReferenceID string
}

// Validate rejects malformed adjustments before they reach the store.
func (a Adjustment) Validate() error {
	if a.OwnerID == "" {
		return &ValidationError{Field: "owner_id", Reason: "required"}
	}
	if a.Amount.LessThanOrEqual(decimal.Zero) {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if _, err := ParseComponent(string(a.Component)); err != nil {
		return err
	}
	if a.Direction != DirectionCredit && a.Direction != DirectionDebit {
		return &ValidationError{Field: "direction", Reason: "must be credit or debit"}
	}
	if a.Kind == "" {
		return &ValidationError{Field: "kind", Reason: "required"}
	}
	return nil
}

// DebitLeg is the slice of a settlement debit taken from one component.
type DebitLeg struct {
	Component Component       `json:"component"`
	Amount    decimal.Decimal `json:"amount"`
}
