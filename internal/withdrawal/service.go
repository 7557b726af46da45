// Package withdrawal implements the settlement state machine for
// withdrawal requests: pending→approved debits across balance
// components in priority order, approved→declined refunds in full, and
// processed is a terminal bookkeeping state with no balance effect.
package withdrawal

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/thereal-osas/broker-sub006/internal/events"
	"github.com/thereal-osas/broker-sub006/internal/ledger"
)

// Store is the persistence surface settlement drives. The transition
// methods are each one all-or-nothing unit of work that re-verifies the
// departing state under a row lock, so racing settlements cannot both
// win.
type Store interface {
	GetWithdrawal(ctx context.Context, id string) (*ledger.WithdrawalRequest, error)
	CreateWithdrawal(ctx context.Context, w *ledger.WithdrawalRequest) error
	ListWithdrawalsByOwner(ctx context.Context, ownerID string) ([]ledger.WithdrawalRequest, error)
	ListWithdrawalsByStatus(ctx context.Context, status ledger.WithdrawalStatus) ([]ledger.WithdrawalRequest, error)

	// ApproveAndDebit moves pending→approved and performs the priority
	// debit atomically, returning the per-component breakdown.
	ApproveAndDebit(ctx context.Context, id, adminID, notes string) ([]ledger.DebitLeg, error)

	// DeclinePending moves pending→declined with no balance effect.
	DeclinePending(ctx context.Context, id, adminID, notes string) error

	// DeclineApproved moves approved→declined and refunds in full.
	DeclineApproved(ctx context.Context, id, adminID, notes string) error

	// MarkProcessed moves approved→processed.
	MarkProcessed(ctx context.Context, id, adminID, notes string) error
}

// Service owns withdrawal requests and their settlement transitions.
type Service struct {
	store     Store
	bus       *events.EventBus
	minAmount decimal.Decimal
	logger    zerolog.Logger
}

// NewService creates a withdrawal settlement service.
func NewService(store Store, bus *events.EventBus, minAmount decimal.Decimal, logger zerolog.Logger) *Service {
	return &Service{
		store:     store,
		bus:       bus,
		minAmount: minAmount,
		logger:    logger.With().Str("component", "withdrawal").Logger(),
	}
}

// Request creates a new pending withdrawal request. Validation only; no
// balance is touched until approval.
func (s *Service) Request(ctx context.Context, ownerID string, amount decimal.Decimal, method string) (*ledger.WithdrawalRequest, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, &ledger.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if amount.LessThan(s.minAmount) {
		return nil, &ledger.ValidationError{
			Field:  "amount",
			Reason: fmt.Sprintf("below minimum of %s", s.minAmount.StringFixed(2)),
		}
	}
	if method == "" {
		return nil, &ledger.ValidationError{Field: "method", Reason: "required"}
	}

	w := &ledger.WithdrawalRequest{
		OwnerID: ownerID,
		Amount:  amount.Round(2),
		Method:  method,
	}
	if err := s.store.CreateWithdrawal(ctx, w); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("request_id", w.ID).
		Str("owner_id", ownerID).
		Str("amount", w.Amount.StringFixed(2)).
		Msg("withdrawal requested")
	return w, nil
}

// Get returns one request.
func (s *Service) Get(ctx context.Context, id string) (*ledger.WithdrawalRequest, error) {
	return s.store.GetWithdrawal(ctx, id)
}

// ListByOwner returns one owner's requests.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]ledger.WithdrawalRequest, error) {
	return s.store.ListWithdrawalsByOwner(ctx, ownerID)
}

// ListByStatus returns requests in one state.
func (s *Service) ListByStatus(ctx context.Context, status ledger.WithdrawalStatus) ([]ledger.WithdrawalRequest, error) {
	return s.store.ListWithdrawalsByStatus(ctx, status)
}

// Transition applies one settlement state change. Allowed transitions:
//
//	pending  → approved   debit across components, priority order
//	pending  → declined   no balance effect
//	approved → declined   full refund, restoring the pre-approval total
//	approved → processed  terminal, no balance effect
//
// Everything else is rejected with a ValidationError. The updated
// request is returned on success.
func (s *Service) Transition(ctx context.Context, id string, target ledger.WithdrawalStatus, adminID, notes string) (*ledger.WithdrawalRequest, error) {
	current, err := s.store.GetWithdrawal(ctx, id)
	if err != nil {
		return nil, err
	}

	switch {
	case current.Status == ledger.WithdrawalPending && target == ledger.WithdrawalApproved:
		legs, err := s.store.ApproveAndDebit(ctx, id, adminID, notes)
		if err != nil {
			return nil, err
		}
		s.logger.Info().
			Str("request_id", id).
			Str("owner_id", current.OwnerID).
			Int("components_touched", len(legs)).
			Str("amount", current.Amount.StringFixed(2)).
			Msg("withdrawal approved and debited")

	case current.Status == ledger.WithdrawalPending && target == ledger.WithdrawalDeclined:
		if err := s.store.DeclinePending(ctx, id, adminID, notes); err != nil {
			return nil, err
		}

	case current.Status == ledger.WithdrawalApproved && target == ledger.WithdrawalDeclined:
		if err := s.store.DeclineApproved(ctx, id, adminID, notes); err != nil {
			return nil, err
		}
		s.logger.Info().
			Str("request_id", id).
			Str("owner_id", current.OwnerID).
			Str("amount", current.Amount.StringFixed(2)).
			Msg("approved withdrawal declined, amount refunded")

	case current.Status == ledger.WithdrawalApproved && target == ledger.WithdrawalProcessed:
		if err := s.store.MarkProcessed(ctx, id, adminID, notes); err != nil {
			return nil, err
		}

	default:
		return nil, &ledger.ValidationError{
			Field:  "status",
			Reason: fmt.Sprintf("cannot transition %s request to %s", current.Status, target),
		}
	}

	updated, err := s.store.GetWithdrawal(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.bus != nil {
		s.bus.PublishWithdrawalSettled(updated.ID, updated.OwnerID, string(updated.Status))
	}
	return updated, nil
}
