package cache

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/thereal-osas/broker-sub006/internal/ledger"
)

// RunSummaryCache keeps the most recent distribution run summary per
// contract class, so the dashboard refreshes without replaying run
// history from the database.
type RunSummaryCache struct {
	cache  *CacheService
	logger zerolog.Logger
}

// NewRunSummaryCache creates a run summary cache. A nil CacheService
// disables it: Store becomes a no-op and Last always misses.
func NewRunSummaryCache(cache *CacheService, logger zerolog.Logger) *RunSummaryCache {
	return &RunSummaryCache{
		cache:  cache,
		logger: logger.With().Str("component", "run_cache").Logger(),
	}
}

// Store caches a finished run summary under its contract class.
func (rc *RunSummaryCache) Store(ctx context.Context, summary *ledger.RunSummary) {
	if rc.cache == nil || summary == nil {
		return
	}
	if err := rc.cache.SetJSON(ctx, RunSummaryKey(string(summary.Class)), summary, DefaultRunTTL); err != nil {
		rc.logger.Debug().Err(err).Str("contract_class", string(summary.Class)).Msg("Failed to cache run summary")
	}
}

// Last returns the cached summary of the most recent run for a class.
func (rc *RunSummaryCache) Last(ctx context.Context, class ledger.ContractClass) (*ledger.RunSummary, bool) {
	if rc.cache == nil || !rc.cache.IsHealthy() {
		return nil, false
	}
	var summary ledger.RunSummary
	if err := rc.cache.GetJSON(ctx, RunSummaryKey(string(class)), &summary); err != nil {
		return nil, false
	}
	return &summary, true
}
