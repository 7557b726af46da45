package referral

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/thereal-osas/broker-sub006/internal/ledger"
)

type memUsers struct {
	users map[string]*ledger.User
}

func (m *memUsers) GetUserByID(ctx context.Context, id string) (*ledger.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return u, nil
}

type memWriter struct {
	adjustments []ledger.Adjustment
	fail        bool
}

func (m *memWriter) ApplyAccrual(ctx context.Context, contract *ledger.Contract, periodKey time.Time, amount decimal.Decimal) (bool, error) {
	return false, errors.New("not used")
}

func (m *memWriter) AdjustBalance(ctx context.Context, adj ledger.Adjustment) (*ledger.Transaction, error) {
	if m.fail {
		return nil, errors.New("write failed")
	}
	m.adjustments = append(m.adjustments, adj)
	return &ledger.Transaction{OwnerID: adj.OwnerID, Amount: adj.Amount}, nil
}

func (m *memWriter) SettleDebit(ctx context.Context, ownerID string, amount decimal.Decimal, priority []ledger.Component, kind ledger.TxKind, referenceID string) ([]ledger.DebitLeg, error) {
	return nil, errors.New("not used")
}

type memInvalidator struct {
	owners []string
}

func (m *memInvalidator) Invalidate(ctx context.Context, ownerID string) {
	m.owners = append(m.owners, ownerID)
}

func fundedContract(ownerID, principal string) *ledger.Contract {
	return &ledger.Contract{
		ID:        "c-1",
		OwnerID:   ownerID,
		Class:     ledger.ClassInvestment,
		Principal: decimal.RequireFromString(principal),
		Status:    ledger.ContractActive,
	}
}

func TestOnContractFunded(t *testing.T) {
	referrer := "u-referrer"
	ctx := context.Background()

	t.Run("credits the referrer's bonus", func(t *testing.T) {
		users := &memUsers{users: map[string]*ledger.User{
			"u-1": {ID: "u-1", ReferredBy: &referrer},
		}}
		writer := &memWriter{}
		svc := NewService(users, writer, nil, decimal.RequireFromString("0.05"), zerolog.Nop())

		svc.OnContractFunded(ctx, fundedContract("u-1", "1000"))

		if len(writer.adjustments) != 1 {
			t.Fatalf("adjustments = %d, want 1", len(writer.adjustments))
		}
		adj := writer.adjustments[0]
		if adj.OwnerID != referrer {
			t.Errorf("credited %s, want %s", adj.OwnerID, referrer)
		}
		if adj.Component != ledger.ComponentBonus {
			t.Errorf("component = %s, want bonus", adj.Component)
		}
		if !adj.Amount.Equal(decimal.RequireFromString("50")) {
			t.Errorf("amount = %s, want 50", adj.Amount)
		}
		if adj.Kind != ledger.TxReferralCommission {
			t.Errorf("kind = %s, want referral_commission", adj.Kind)
		}
	})

	t.Run("credit drops the referrer's cached balance", func(t *testing.T) {
		users := &memUsers{users: map[string]*ledger.User{
			"u-1": {ID: "u-1", ReferredBy: &referrer},
		}}
		writer := &memWriter{}
		inv := &memInvalidator{}
		svc := NewService(users, writer, inv, decimal.RequireFromString("0.05"), zerolog.Nop())

		svc.OnContractFunded(ctx, fundedContract("u-1", "1000"))

		if len(inv.owners) != 1 || inv.owners[0] != referrer {
			t.Errorf("invalidated = %v, want [%s]", inv.owners, referrer)
		}
	})

	t.Run("failed credit leaves the cache alone", func(t *testing.T) {
		users := &memUsers{users: map[string]*ledger.User{
			"u-1": {ID: "u-1", ReferredBy: &referrer},
		}}
		writer := &memWriter{fail: true}
		inv := &memInvalidator{}
		svc := NewService(users, writer, inv, decimal.RequireFromString("0.05"), zerolog.Nop())

		svc.OnContractFunded(ctx, fundedContract("u-1", "1000"))

		if len(inv.owners) != 0 {
			t.Errorf("invalidated = %v, want none", inv.owners)
		}
	})

	t.Run("no referrer means no credit", func(t *testing.T) {
		users := &memUsers{users: map[string]*ledger.User{
			"u-1": {ID: "u-1"},
		}}
		writer := &memWriter{}
		svc := NewService(users, writer, nil, decimal.RequireFromString("0.05"), zerolog.Nop())

		svc.OnContractFunded(ctx, fundedContract("u-1", "1000"))

		if len(writer.adjustments) != 0 {
			t.Errorf("adjustments = %d, want 0", len(writer.adjustments))
		}
	})

	t.Run("zero rate disables commissions", func(t *testing.T) {
		users := &memUsers{users: map[string]*ledger.User{
			"u-1": {ID: "u-1", ReferredBy: &referrer},
		}}
		writer := &memWriter{}
		svc := NewService(users, writer, nil, decimal.Zero, zerolog.Nop())

		svc.OnContractFunded(ctx, fundedContract("u-1", "1000"))

		if len(writer.adjustments) != 0 {
			t.Errorf("adjustments = %d, want 0", len(writer.adjustments))
		}
	})

	t.Run("failures are swallowed", func(t *testing.T) {
		users := &memUsers{users: map[string]*ledger.User{
			"u-1": {ID: "u-1", ReferredBy: &referrer},
		}}
		writer := &memWriter{fail: true}
		svc := NewService(users, writer, nil, decimal.RequireFromString("0.05"), zerolog.Nop())

		// Must not panic or propagate.
		svc.OnContractFunded(ctx, fundedContract("u-1", "1000"))
	})

	t.Run("unknown owner is skipped", func(t *testing.T) {
		users := &memUsers{users: map[string]*ledger.User{}}
		writer := &memWriter{}
		svc := NewService(users, writer, nil, decimal.RequireFromString("0.05"), zerolog.Nop())

		svc.OnContractFunded(ctx, fundedContract("u-ghost", "1000"))

		if len(writer.adjustments) != 0 {
			t.Errorf("adjustments = %d, want 0", len(writer.adjustments))
		}
	})
}
