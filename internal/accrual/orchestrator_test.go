package accrual

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/thereal-osas/broker-sub006/internal/ledger"
)

// memStore is an in-memory Store and ledger.Writer sharing one state,
// mirroring how the repository backs both in production.
type memStore struct {
	mu         sync.Mutex
	contracts  []ledger.Contract
	credited   map[string]map[time.Time]decimal.Decimal
	balances   map[string]decimal.Decimal // owner -> profit component
	completed  map[string]bool
	runs       []ledger.RunSummary
	nextRunID  int64
	lastRunAt  map[ledger.ContractClass]time.Time
	now        func() time.Time
	accrualErr map[string]error // contract id -> forced failure
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		credited:   make(map[string]map[time.Time]decimal.Decimal),
		balances:   make(map[string]decimal.Decimal),
		completed:  make(map[string]bool),
		lastRunAt:  make(map[ledger.ContractClass]time.Time),
		accrualErr: make(map[string]error),
		now:        now,
	}
}

func (m *memStore) EligibleContracts(ctx context.Context, class ledger.ContractClass) ([]ledger.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ledger.Contract
	for _, c := range m.contracts {
		if c.Class == class && !m.completed[c.ID] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) DistributedPeriodKeys(ctx context.Context, contractID string) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []time.Time
	for k := range m.credited[contractID] {
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *memStore) CompleteContract(ctx context.Context, contractID string, endAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed[contractID] = true
	return nil
}

func (m *memStore) BeginRun(ctx context.Context, class ledger.ContractClass, cooldown time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if last, ok := m.lastRunAt[class]; ok {
		if remaining := cooldown - m.now().Sub(last); remaining > 0 {
			return 0, &ledger.OnCooldownError{Class: string(class), Remaining: remaining}
		}
	}
	m.lastRunAt[class] = m.now()
	m.nextRunID++
	return m.nextRunID, nil
}

func (m *memStore) FinishRun(ctx context.Context, runID int64, summary ledger.RunSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, summary)
	return nil
}

func (m *memStore) ApplyAccrual(ctx context.Context, contract *ledger.Contract, periodKey time.Time, amount decimal.Decimal) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.accrualErr[contract.ID]; err != nil {
		return false, err
	}

	periods := m.credited[contract.ID]
	if periods == nil {
		periods = make(map[time.Time]decimal.Decimal)
		m.credited[contract.ID] = periods
	}
	if _, ok := periods[periodKey]; ok {
		return false, nil
	}
	periods[periodKey] = amount
	m.balances[contract.OwnerID] = m.balances[contract.OwnerID].Add(amount)
	return true, nil
}

func (m *memStore) AdjustBalance(ctx context.Context, adj ledger.Adjustment) (*ledger.Transaction, error) {
	return nil, errors.New("not used")
}

func (m *memStore) SettleDebit(ctx context.Context, ownerID string, amount decimal.Decimal, priority []ledger.Component, kind ledger.TxKind, referenceID string) ([]ledger.DebitLeg, error) {
	return nil, errors.New("not used")
}

func (m *memStore) profitBalance(owner string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[owner]
}

func (m *memStore) creditedSum(contractID string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()

	sum := decimal.Zero
	for _, amount := range m.credited[contractID] {
		sum = sum.Add(amount)
	}
	return sum
}

// memInvalidator records which owners had cached balances dropped.
type memInvalidator struct {
	mu     sync.Mutex
	owners []string
}

func (m *memInvalidator) Invalidate(ctx context.Context, ownerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners = append(m.owners, ownerID)
}

func newTestOrchestrator(store *memStore, now time.Time) *Orchestrator {
	o := NewOrchestrator(store, store, nil, nil, Config{
		MaxConcurrent:      3,
		ContractTimeout:    5 * time.Second,
		InvestmentCooldown: 20 * time.Hour,
		LiveTradeCooldown:  45 * time.Minute,
	}, zerolog.Nop())
	o.now = func() time.Time { return now }
	return o
}

func TestRunCreditsOwedPeriods(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clock := start
	store := newMemStore(func() time.Time { return clock })
	store.contracts = []ledger.Contract{*testContract(ledger.ClassInvestment, start, 5)}

	// Two periods elapsed: first run credits both.
	clock = start.Add(2 * 24 * time.Hour)
	o := newTestOrchestrator(store, clock)
	o.now = func() time.Time { return clock }

	summary, err := o.Run(context.Background(), ledger.ClassInvestment)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.ProcessedContracts != 1 {
		t.Errorf("processed = %d, want 1", summary.ProcessedContracts)
	}
	if summary.PeriodsCredited != 2 {
		t.Errorf("periods credited = %d, want 2", summary.PeriodsCredited)
	}
	if want := decimal.RequireFromString("40"); !summary.TotalAmount.Equal(want) {
		t.Errorf("total = %s, want %s", summary.TotalAmount, want)
	}
	if got := store.profitBalance("u-1"); !got.Equal(decimal.RequireFromString("40")) {
		t.Errorf("profit balance = %s, want 40", got)
	}

	// Full term elapsed: second run credits the remaining three and
	// completes the contract. Total over the term is exactly 100.
	clock = start.Add(6 * 24 * time.Hour)
	summary, err = o.Run(context.Background(), ledger.ClassInvestment)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if summary.PeriodsCredited != 3 {
		t.Errorf("periods credited = %d, want 3", summary.PeriodsCredited)
	}
	if summary.CompletedContracts != 1 {
		t.Errorf("completed = %d, want 1", summary.CompletedContracts)
	}
	if !store.completed["c-1"] {
		t.Error("contract not marked completed")
	}
	if got := store.creditedSum("c-1"); !got.Equal(decimal.RequireFromString("100")) {
		t.Errorf("lifetime credit = %s, want 100", got)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clock := start.Add(3 * 24 * time.Hour)
	store := newMemStore(func() time.Time { return clock })
	store.contracts = []ledger.Contract{*testContract(ledger.ClassInvestment, start, 5)}

	o := newTestOrchestrator(store, clock)

	first, err := o.Run(context.Background(), ledger.ClassInvestment)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.PeriodsCredited != 3 {
		t.Fatalf("first run credited %d, want 3", first.PeriodsCredited)
	}

	// Same clock, cooldown cleared: nothing further is owed.
	store.lastRunAt = make(map[ledger.ContractClass]time.Time)
	second, err := o.Run(context.Background(), ledger.ClassInvestment)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.PeriodsCredited != 0 {
		t.Errorf("second run credited %d, want 0", second.PeriodsCredited)
	}
	if got := store.profitBalance("u-1"); !got.Equal(decimal.RequireFromString("60")) {
		t.Errorf("profit balance = %s, want 60", got)
	}
}

func TestRunBackfillsAfterOutage(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clock := start.Add(4 * 24 * time.Hour)
	store := newMemStore(func() time.Time { return clock })

	c := testContract(ledger.ClassInvestment, start, 5)
	store.contracts = []ledger.Contract{*c}

	// Period 1 was credited before a three-day outage.
	store.credited["c-1"] = map[time.Time]decimal.Decimal{
		PeriodKey(c, 1): decimal.RequireFromString("20"),
	}
	store.balances["u-1"] = decimal.RequireFromString("20")

	o := newTestOrchestrator(store, clock)
	summary, err := o.Run(context.Background(), ledger.ClassInvestment)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.PeriodsCredited != 3 {
		t.Errorf("periods credited = %d, want 3 backfilled", summary.PeriodsCredited)
	}
	if got := store.profitBalance("u-1"); !got.Equal(decimal.RequireFromString("80")) {
		t.Errorf("profit balance = %s, want 80", got)
	}
}

func TestRunPartialFailure(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clock := start.Add(2 * 24 * time.Hour)
	store := newMemStore(func() time.Time { return clock })

	broken := *testContract(ledger.ClassInvestment, start, 5)
	broken.ID = "c-broken"
	healthy := *testContract(ledger.ClassInvestment, start, 5)
	healthy.ID = "c-healthy"
	store.contracts = []ledger.Contract{broken, healthy}
	store.accrualErr["c-broken"] = errors.New("write failed")

	o := newTestOrchestrator(store, clock)
	summary, err := o.Run(context.Background(), ledger.ClassInvestment)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.ProcessedContracts != 2 {
		t.Errorf("processed = %d, want 2", summary.ProcessedContracts)
	}
	if summary.Errors != 1 {
		t.Errorf("errors = %d, want 1", summary.Errors)
	}
	if summary.PeriodsCredited != 2 {
		t.Errorf("periods credited = %d, want 2 from the healthy contract", summary.PeriodsCredited)
	}

	for _, d := range summary.Details {
		switch d.ContractID {
		case "c-broken":
			if d.Error == "" {
				t.Error("broken contract detail missing error")
			}
			if d.PeriodsCredited != 0 {
				t.Errorf("broken contract credited %d periods", d.PeriodsCredited)
			}
		case "c-healthy":
			if d.Error != "" {
				t.Errorf("healthy contract errored: %s", d.Error)
			}
		}
	}

	// The failed periods stay owed and are recovered next run.
	delete(store.accrualErr, "c-broken")
	store.lastRunAt = make(map[ledger.ContractClass]time.Time)
	retry, err := o.Run(context.Background(), ledger.ClassInvestment)
	if err != nil {
		t.Fatalf("retry Run: %v", err)
	}
	if retry.PeriodsCredited != 2 {
		t.Errorf("retry credited %d, want 2", retry.PeriodsCredited)
	}
}

func TestRunRespectsCooldown(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clock := start.Add(24 * time.Hour)
	store := newMemStore(func() time.Time { return clock })
	store.contracts = []ledger.Contract{*testContract(ledger.ClassInvestment, start, 5)}

	o := newTestOrchestrator(store, clock)
	if _, err := o.Run(context.Background(), ledger.ClassInvestment); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	_, err := o.Run(context.Background(), ledger.ClassInvestment)
	var cd *ledger.OnCooldownError
	if !errors.As(err, &cd) {
		t.Fatalf("want OnCooldownError, got %v", err)
	}
	if cd.Remaining <= 0 || cd.Remaining > 20*time.Hour {
		t.Errorf("remaining = %s, want within (0, 20h]", cd.Remaining)
	}

	// Classes cool down independently.
	if _, err := o.Run(context.Background(), ledger.ClassLiveTrade); err != nil {
		t.Errorf("live trade run blocked by investment cooldown: %v", err)
	}
}

func TestRunSummaryDetailsSorted(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clock := start.Add(24 * time.Hour)
	store := newMemStore(func() time.Time { return clock })

	for _, id := range []string{"c-z", "c-a", "c-m"} {
		c := *testContract(ledger.ClassInvestment, start, 5)
		c.ID = id
		store.contracts = append(store.contracts, c)
	}

	o := newTestOrchestrator(store, clock)
	summary, err := o.Run(context.Background(), ledger.ClassInvestment)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(summary.Details) != 3 {
		t.Fatalf("details = %d, want 3", len(summary.Details))
	}
	for i := 1; i < len(summary.Details); i++ {
		if summary.Details[i-1].ContractID > summary.Details[i].ContractID {
			t.Fatalf("details not sorted: %s before %s",
				summary.Details[i-1].ContractID, summary.Details[i].ContractID)
		}
	}
}

func TestRunInvalidatesCreditedBalances(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clock := start.Add(24 * time.Hour)
	store := newMemStore(func() time.Time { return clock })

	c1 := *testContract(ledger.ClassInvestment, start, 5)
	c2 := *testContract(ledger.ClassInvestment, start, 5)
	c2.ID, c2.OwnerID = "c-2", "u-2"
	store.contracts = []ledger.Contract{c1, c2}

	inv := &memInvalidator{}
	o := NewOrchestrator(store, store, nil, inv, Config{
		MaxConcurrent:      2,
		ContractTimeout:    5 * time.Second,
		InvestmentCooldown: 20 * time.Hour,
	}, zerolog.Nop())
	o.now = func() time.Time { return clock }

	if _, err := o.Run(context.Background(), ledger.ClassInvestment); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Every owner whose profit the run credited loses its cached snapshot.
	sort.Strings(inv.owners)
	if len(inv.owners) != 2 || inv.owners[0] != "u-1" || inv.owners[1] != "u-2" {
		t.Fatalf("invalidated owners = %v, want [u-1 u-2]", inv.owners)
	}

	// A run that credits nothing drops nothing.
	inv.owners = nil
	delete(store.lastRunAt, ledger.ClassInvestment)
	if _, err := o.Run(context.Background(), ledger.ClassInvestment); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(inv.owners) != 0 {
		t.Errorf("invalidated owners = %v, want none on a zero-credit run", inv.owners)
	}
}
