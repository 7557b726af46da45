package ledger

import (
	"github.com/shopspring/decimal"
)

// ContractDetail is one contract's line in a distribution run summary.
// The camelCase wire keys here and on RunSummary are what the dashboard
// consumes; they must stay stable.
type ContractDetail struct {
	ContractID      string          `json:"contractId"`
	OwnerID         string          `json:"ownerId"`
	PeriodsCredited int             `json:"periodsCredited"`
	PeriodsSkipped  int             `json:"periodsSkipped"` // already credited elsewhere
	Amount          decimal.Decimal `json:"amount"`
	Completed       bool            `json:"completed"`
	Error           string          `json:"error,omitempty"`
}

// RunSummary is everything a distribution run reports back. A run never
// silently drops a period: anything not credited here stays owed and is
// retried on the next run.
type RunSummary struct {
	Class              ContractClass    `json:"contractClass"`
	ProcessedContracts int              `json:"processedContracts"`
	CompletedContracts int              `json:"completedContracts"`
	PeriodsCredited    int              `json:"periodsCredited"`
	Errors             int              `json:"errors"`
	TotalAmount        decimal.Decimal  `json:"totalAmount"`
	Details            []ContractDetail `json:"details"`
}
