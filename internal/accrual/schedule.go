package accrual

import (
	"time"

	"github.com/thereal-osas/broker-sub006/internal/ledger"
)

// The schedule resolver is pure time arithmetic: given a contract and
// "now", which periods are owed and not yet recorded.

// ElapsedPeriods returns how many whole periods have passed since the
// contract started, capped at its duration. A contract created in the
// current period has elapsed zero and accrues nothing yet.
func ElapsedPeriods(c *ledger.Contract, now time.Time) int {
	if now.Before(c.StartAt) {
		return 0
	}
	unit := c.Class.PeriodUnit()
	elapsed := int(now.Sub(c.StartAt) / unit)
	if elapsed > c.Duration {
		return c.Duration
	}
	return elapsed
}

// PeriodKey returns the key for period n (1-based): the period's start
// instant, truncated to the period unit in UTC. Distinct per period and
// stable across runs, it anchors the uniqueness constraint that makes
// accrual idempotent.
func PeriodKey(c *ledger.Contract, n int) time.Time {
	unit := c.Class.PeriodUnit()
	base := c.StartAt.UTC().Truncate(unit)
	return base.Add(time.Duration(n-1) * unit)
}

// MissingPeriods returns the ordered period keys in 1..elapsed that are
// absent from the already-credited set.
func MissingPeriods(c *ledger.Contract, credited []time.Time, now time.Time) []time.Time {
	elapsed := ElapsedPeriods(c, now)
	if elapsed == 0 {
		return nil
	}

	unit := c.Class.PeriodUnit()
	seen := make(map[time.Time]struct{}, len(credited))
	for _, k := range credited {
		seen[k.UTC().Truncate(unit)] = struct{}{}
	}

	var missing []time.Time
	for n := 1; n <= elapsed; n++ {
		key := PeriodKey(c, n)
		if _, ok := seen[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}

// ReadyToComplete reports whether a contract has run its full term and
// every period has been credited, meaning the orchestrator should
// transition it to completed.
func ReadyToComplete(c *ledger.Contract, creditedCount int, now time.Time) bool {
	return ElapsedPeriods(c, now) >= c.Duration && creditedCount >= c.Duration
}
