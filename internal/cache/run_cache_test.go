package cache

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/thereal-osas/broker-sub006/internal/ledger"
)

func TestRunSummaryCacheDisabled(t *testing.T) {
	rc := NewRunSummaryCache(nil, zerolog.Nop())
	ctx := context.Background()

	// Store must be a no-op, not a panic.
	rc.Store(ctx, &ledger.RunSummary{Class: ledger.ClassInvestment})
	rc.Store(ctx, nil)

	if _, ok := rc.Last(ctx, ledger.ClassInvestment); ok {
		t.Error("disabled cache reported a hit")
	}
}

func TestRunSummaryKeyPerClass(t *testing.T) {
	a := RunSummaryKey(string(ledger.ClassInvestment))
	b := RunSummaryKey(string(ledger.ClassLiveTrade))
	if a == b {
		t.Errorf("classes share cache key %q", a)
	}
}
