package accrual

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/thereal-osas/broker-sub006/internal/events"
	"github.com/thereal-osas/broker-sub006/internal/ledger"
)

// Store is the persistence surface the orchestrator drives.
type Store interface {
	// EligibleContracts returns active contracts of the class owed at
	// least one period.
	EligibleContracts(ctx context.Context, class ledger.ContractClass) ([]ledger.Contract, error)

	// DistributedPeriodKeys returns the period keys already credited.
	DistributedPeriodKeys(ctx context.Context, contractID string) ([]time.Time, error)

	// CompleteContract transitions an active contract to completed.
	CompleteContract(ctx context.Context, contractID string, endAt time.Time) error

	// BeginRun starts a run or fails with OnCooldownError. The cooldown
	// anchor is persisted, so it holds across restarts and instances.
	BeginRun(ctx context.Context, class ledger.ContractClass, cooldown time.Duration) (int64, error)

	// FinishRun stores the run summary.
	FinishRun(ctx context.Context, runID int64, summary ledger.RunSummary) error
}

// BalanceInvalidator drops an owner's cached balance snapshot after the
// ledger wrote to it, so reads never serve a stale pre-run balance.
type BalanceInvalidator interface {
	Invalidate(ctx context.Context, ownerID string)
}

// Config holds orchestrator tuning.
type Config struct {
	// MaxConcurrent bounds the contract worker pool.
	MaxConcurrent int

	// ContractTimeout is the unit-of-work budget per contract. A store
	// operation overrunning it is rolled back and counted as an error;
	// the periods stay owed.
	ContractTimeout time.Duration

	// InvestmentCooldown and LiveTradeCooldown are the minimum gaps
	// between runs per contract class.
	InvestmentCooldown time.Duration
	LiveTradeCooldown  time.Duration
}

// DefaultConfig returns default orchestrator configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:      5,
		ContractTimeout:    30 * time.Second,
		InvestmentCooldown: 20 * time.Hour,
		LiveTradeCooldown:  45 * time.Minute,
	}
}

// Orchestrator drives profit distribution for a contract class:
// resolver → calculator → ledger writer per missing period, with a
// bounded worker pool across contracts and partial-failure semantics —
// one broken contract never aborts the run.
type Orchestrator struct {
	store    Store
	writer   ledger.Writer
	bus      *events.EventBus
	balances BalanceInvalidator
	cfg      Config
	logger   zerolog.Logger

	// now is swapped in tests to pin time.
	now func() time.Time
}

// NewOrchestrator creates a distribution orchestrator. balances may be
// nil when no cache sits in front of the store.
func NewOrchestrator(store Store, writer ledger.Writer, bus *events.EventBus, balances BalanceInvalidator, cfg Config, logger zerolog.Logger) *Orchestrator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if cfg.ContractTimeout <= 0 {
		cfg.ContractTimeout = DefaultConfig().ContractTimeout
	}
	return &Orchestrator{
		store:    store,
		writer:   writer,
		bus:      bus,
		balances: balances,
		cfg:      cfg,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
		now:      time.Now,
	}
}

// CooldownFor returns the configured cooldown for a class.
func (o *Orchestrator) CooldownFor(class ledger.ContractClass) time.Duration {
	if class == ledger.ClassLiveTrade {
		return o.cfg.LiveTradeCooldown
	}
	return o.cfg.InvestmentCooldown
}

// Run distributes every period owed on every eligible contract of the
// class. It returns OnCooldownError without touching anything when the
// class ran too recently; otherwise it always returns a summary, even a
// mostly-failed one.
func (o *Orchestrator) Run(ctx context.Context, class ledger.ContractClass) (*ledger.RunSummary, error) {
	runID, err := o.store.BeginRun(ctx, class, o.CooldownFor(class))
	if err != nil {
		return nil, err
	}

	summary := &ledger.RunSummary{Class: class, TotalAmount: decimal.Zero}

	contracts, err := o.store.EligibleContracts(ctx, class)
	if err != nil {
		summary.Errors++
		o.finish(ctx, runID, summary)
		return nil, err
	}

	now := o.now()
	details := make([]ledger.ContractDetail, len(contracts))

	sem := make(chan struct{}, o.cfg.MaxConcurrent)
	var wg sync.WaitGroup
	for i := range contracts {
		// Cancellation is cooperative between contracts: in-flight
		// units of work always finish or roll back whole.
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			details[idx] = o.processContract(ctx, &contracts[idx], now)
		}(i)
	}
	wg.Wait()

	for _, d := range details {
		if d.ContractID == "" {
			continue // slot skipped on cancellation
		}
		summary.ProcessedContracts++
		summary.PeriodsCredited += d.PeriodsCredited
		summary.TotalAmount = summary.TotalAmount.Add(d.Amount)
		if d.Completed {
			summary.CompletedContracts++
		}
		if d.Error != "" {
			summary.Errors++
		}
		summary.Details = append(summary.Details, d)
	}
	sort.Slice(summary.Details, func(i, j int) bool {
		return summary.Details[i].ContractID < summary.Details[j].ContractID
	})

	if o.balances != nil {
		touched := make(map[string]struct{})
		for _, d := range summary.Details {
			if d.PeriodsCredited == 0 {
				continue
			}
			if _, ok := touched[d.OwnerID]; ok {
				continue
			}
			touched[d.OwnerID] = struct{}{}
			o.balances.Invalidate(ctx, d.OwnerID)
		}
	}

	o.finish(ctx, runID, summary)

	o.logger.Info().
		Str("contract_class", string(class)).
		Int("processed", summary.ProcessedContracts).
		Int("periods_credited", summary.PeriodsCredited).
		Int("errors", summary.Errors).
		Str("total_amount", summary.TotalAmount.StringFixed(2)).
		Msg("distribution run finished")

	if o.bus != nil {
		o.bus.PublishDistributionCompleted(string(class), summary.ProcessedContracts,
			summary.PeriodsCredited, summary.Errors, summary.TotalAmount.StringFixed(2))
	}

	return summary, nil
}

// processContract credits every missing period for one contract. Errors
// are captured in the detail line, never propagated: the failed periods
// stay owed and are retried next run.
func (o *Orchestrator) processContract(ctx context.Context, c *ledger.Contract, now time.Time) ledger.ContractDetail {
	detail := ledger.ContractDetail{
		ContractID: c.ID,
		OwnerID:    c.OwnerID,
		Amount:     decimal.Zero,
	}

	cctx, cancel := context.WithTimeout(ctx, o.cfg.ContractTimeout)
	defer cancel()

	credited, err := o.store.DistributedPeriodKeys(cctx, c.ID)
	if err != nil {
		detail.Error = err.Error()
		return detail
	}

	missing := MissingPeriods(c, credited, now)
	amount := PeriodProfit(c.Principal, c.Rate)

	for _, key := range missing {
		applied, err := o.writer.ApplyAccrual(cctx, c, key, amount)
		if err != nil {
			// Unit rolled back; this and the remaining periods stay
			// owed. Stop this contract, keep the run going.
			detail.Error = err.Error()
			o.logger.Error().Err(err).
				Str("contract_id", c.ID).
				Time("period_key", key).
				Msg("accrual failed")
			break
		}
		if applied {
			detail.PeriodsCredited++
			detail.Amount = detail.Amount.Add(amount)
		} else {
			// Credited by a concurrent or earlier run.
			detail.PeriodsSkipped++
		}
	}

	coveredPeriods := len(credited) + detail.PeriodsCredited + detail.PeriodsSkipped
	if detail.Error == "" && ReadyToComplete(c, coveredPeriods, now) {
		if err := o.store.CompleteContract(cctx, c.ID, now); err != nil {
			detail.Error = err.Error()
			return detail
		}
		detail.Completed = true
		if o.bus != nil {
			o.bus.PublishContractCompleted(c.ID, c.OwnerID)
		}
	}

	return detail
}

func (o *Orchestrator) finish(ctx context.Context, runID int64, summary *ledger.RunSummary) {
	if err := o.store.FinishRun(ctx, runID, *summary); err != nil {
		o.logger.Error().Err(err).Int64("run_id", runID).Msg("failed to persist run summary")
	}
}
