// Package referral credits a commission to a user's referrer when the
// user funds a contract. The hook runs after the funding transaction
// commits and is fully isolated: a commission failure is logged and
// never blocks or rolls back the funding itself.
package referral

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/thereal-osas/broker-sub006/internal/ledger"
)

// UserStore resolves the referrer link.
type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*ledger.User, error)
}

// BalanceInvalidator drops the referrer's cached balance snapshot after
// the commission credit lands.
type BalanceInvalidator interface {
	Invalidate(ctx context.Context, ownerID string)
}

// Service pays referral commissions into the referrer's bonus component.
type Service struct {
	users    UserStore
	writer   ledger.Writer
	balances BalanceInvalidator
	rate     decimal.Decimal
	logger   zerolog.Logger
}

// NewService creates a referral commission service. balances may be nil
// when no cache sits in front of the store.
func NewService(users UserStore, writer ledger.Writer, balances BalanceInvalidator, rate decimal.Decimal, logger zerolog.Logger) *Service {
	return &Service{
		users:    users,
		writer:   writer,
		balances: balances,
		rate:     rate,
		logger:   logger.With().Str("component", "referral").Logger(),
	}
}

// OnContractFunded credits the funder's referrer, if any. Errors are
// logged and swallowed.
func (s *Service) OnContractFunded(ctx context.Context, contract *ledger.Contract) {
	user, err := s.users.GetUserByID(ctx, contract.OwnerID)
	if err != nil {
		s.logger.Error().Err(err).Str("owner_id", contract.OwnerID).Msg("commission skipped, owner lookup failed")
		return
	}
	if user.ReferredBy == nil {
		return
	}

	commission := contract.Principal.Mul(s.rate).Round(2)
	if commission.LessThanOrEqual(decimal.Zero) {
		return
	}

	_, err = s.writer.AdjustBalance(ctx, ledger.Adjustment{
		OwnerID:     *user.ReferredBy,
		Component:   ledger.ComponentBonus,
		Amount:      commission,
		Direction:   ledger.DirectionCredit,
		Kind:        ledger.TxReferralCommission,
		ReferenceID: contract.ID,
	})
	if err != nil {
		s.logger.Error().Err(err).
			Str("referrer_id", *user.ReferredBy).
			Str("contract_id", contract.ID).
			Msg("commission credit failed")
		return
	}

	if s.balances != nil {
		s.balances.Invalidate(ctx, *user.ReferredBy)
	}

	s.logger.Info().
		Str("referrer_id", *user.ReferredBy).
		Str("contract_id", contract.ID).
		Str("amount", commission.StringFixed(2)).
		Msg("referral commission credited")
}
