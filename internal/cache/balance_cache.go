package cache

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/thereal-osas/broker-sub006/internal/ledger"
)

// BalanceStore is the database surface the balance cache falls back to.
type BalanceStore interface {
	GetBalance(ctx context.Context, ownerID string) (*ledger.Balance, error)
}

// BalanceCache provides read-through access to balance snapshots.
// Writes to the ledger must call Invalidate to keep reads fresh.
type BalanceCache struct {
	cache  *CacheService
	store  BalanceStore
	logger zerolog.Logger
}

// NewBalanceCache creates a balance cache. A nil CacheService disables
// caching and every read hits the store.
func NewBalanceCache(cache *CacheService, store BalanceStore, logger zerolog.Logger) *BalanceCache {
	return &BalanceCache{
		cache:  cache,
		store:  store,
		logger: logger.With().Str("component", "balance_cache").Logger(),
	}
}

// Get returns the balance for an owner, from cache when possible.
func (bc *BalanceCache) Get(ctx context.Context, ownerID string) (*ledger.Balance, error) {
	if bc.cache != nil && bc.cache.IsHealthy() {
		var cached ledger.Balance
		if err := bc.cache.GetJSON(ctx, BalanceKey(ownerID), &cached); err == nil {
			return &cached, nil
		}
	}

	balance, err := bc.store.GetBalance(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	if bc.cache != nil && bc.cache.IsHealthy() {
		if err := bc.cache.SetJSON(ctx, BalanceKey(ownerID), balance, DefaultBalanceTTL); err != nil {
			bc.logger.Debug().Err(err).Str("owner_id", ownerID).Msg("Failed to cache balance")
		}
	}

	return balance, nil
}

// Invalidate drops an owner's cached balance after a ledger write.
func (bc *BalanceCache) Invalidate(ctx context.Context, ownerID string) {
	if bc.cache == nil {
		return
	}
	if err := bc.cache.Delete(ctx, BalanceKey(ownerID)); err != nil {
		bc.logger.Debug().Err(err).Str("owner_id", ownerID).Msg("Failed to invalidate balance")
	}
}
