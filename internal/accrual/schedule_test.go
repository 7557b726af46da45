package accrual

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thereal-osas/broker-sub006/internal/ledger"
)

func testContract(class ledger.ContractClass, startAt time.Time, duration int) *ledger.Contract {
	return &ledger.Contract{
		ID:        "c-1",
		OwnerID:   "u-1",
		Class:     class,
		Principal: decimal.RequireFromString("1000"),
		Rate:      decimal.RequireFromString("0.02"),
		Duration:  duration,
		StartAt:   startAt,
		Status:    ledger.ContractActive,
	}
}

func TestElapsedPeriods(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	c := testContract(ledger.ClassInvestment, start, 5)

	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"before start", start.Add(-time.Hour), 0},
		{"inside first period", start.Add(6 * time.Hour), 0},
		{"exactly one period", start.Add(24 * time.Hour), 1},
		{"two and a half periods", start.Add(60 * time.Hour), 2},
		{"capped at duration", start.Add(30 * 24 * time.Hour), 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ElapsedPeriods(c, tt.now); got != tt.want {
				t.Errorf("ElapsedPeriods = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestElapsedPeriodsHourly(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	c := testContract(ledger.ClassLiveTrade, start, 12)

	if got := ElapsedPeriods(c, start.Add(30*time.Minute)); got != 0 {
		t.Errorf("half an hour in: got %d, want 0", got)
	}
	if got := ElapsedPeriods(c, start.Add(3*time.Hour+5*time.Minute)); got != 3 {
		t.Errorf("three hours in: got %d, want 3", got)
	}
}

func TestPeriodKey(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

	t.Run("daily keys are truncated and sequential", func(t *testing.T) {
		c := testContract(ledger.ClassInvestment, start, 5)

		first := PeriodKey(c, 1)
		want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		if !first.Equal(want) {
			t.Errorf("PeriodKey(1) = %v, want %v", first, want)
		}

		second := PeriodKey(c, 2)
		if !second.Equal(first.Add(24 * time.Hour)) {
			t.Errorf("PeriodKey(2) = %v, want one day after %v", second, first)
		}
	})

	t.Run("hourly keys for live trades", func(t *testing.T) {
		c := testContract(ledger.ClassLiveTrade, start, 12)

		first := PeriodKey(c, 1)
		want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		if !first.Equal(want) {
			t.Errorf("PeriodKey(1) = %v, want %v", first, want)
		}
	})

	t.Run("stable across calls", func(t *testing.T) {
		c := testContract(ledger.ClassInvestment, start, 5)
		if !PeriodKey(c, 3).Equal(PeriodKey(c, 3)) {
			t.Error("PeriodKey not stable")
		}
	})
}

func TestMissingPeriods(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	c := testContract(ledger.ClassInvestment, start, 5)

	t.Run("nothing elapsed", func(t *testing.T) {
		if got := MissingPeriods(c, nil, start.Add(time.Hour)); got != nil {
			t.Errorf("want nil, got %v", got)
		}
	})

	t.Run("nothing credited", func(t *testing.T) {
		got := MissingPeriods(c, nil, start.Add(3*24*time.Hour))
		if len(got) != 3 {
			t.Fatalf("want 3 missing periods, got %d", len(got))
		}
		for i, key := range got {
			if want := PeriodKey(c, i+1); !key.Equal(want) {
				t.Errorf("missing[%d] = %v, want %v", i, key, want)
			}
		}
	})

	t.Run("gap in the middle", func(t *testing.T) {
		credited := []time.Time{PeriodKey(c, 1), PeriodKey(c, 3)}
		got := MissingPeriods(c, credited, start.Add(4*24*time.Hour))
		if len(got) != 2 {
			t.Fatalf("want 2 missing periods, got %d", len(got))
		}
		if !got[0].Equal(PeriodKey(c, 2)) || !got[1].Equal(PeriodKey(c, 4)) {
			t.Errorf("missing = %v, want periods 2 and 4", got)
		}
	})

	t.Run("credited keys with offsets still match", func(t *testing.T) {
		// Keys read back from storage may carry a zone or sub-period offset.
		loc := time.FixedZone("UTC+2", 2*3600)
		credited := []time.Time{PeriodKey(c, 1).In(loc)}
		got := MissingPeriods(c, credited, start.Add(2*24*time.Hour))
		if len(got) != 1 {
			t.Fatalf("want 1 missing period, got %d", len(got))
		}
		if !got[0].Equal(PeriodKey(c, 2)) {
			t.Errorf("missing = %v, want period 2", got)
		}
	})

	t.Run("all credited", func(t *testing.T) {
		credited := make([]time.Time, 5)
		for i := range credited {
			credited[i] = PeriodKey(c, i+1)
		}
		if got := MissingPeriods(c, credited, start.Add(10*24*time.Hour)); len(got) != 0 {
			t.Errorf("want none, got %v", got)
		}
	})
}

func TestReadyToComplete(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	c := testContract(ledger.ClassInvestment, start, 5)

	if ReadyToComplete(c, 5, start.Add(2*24*time.Hour)) {
		t.Error("term not elapsed, must not complete")
	}
	if ReadyToComplete(c, 4, start.Add(6*24*time.Hour)) {
		t.Error("periods still owed, must not complete")
	}
	if !ReadyToComplete(c, 5, start.Add(6*24*time.Hour)) {
		t.Error("full term and all credited, must complete")
	}
}
