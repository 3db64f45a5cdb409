// Package investment defines the investor-side record of committed funds.
package investment

import (
	"time"

	"github.com/fundflow/factoring/id"
	"github.com/fundflow/factoring/types"
)

// Status is the lifecycle state of an investment.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed" // Invoice settled, payout delivered
	StatusDefaulted Status = "defaulted" // Principal refunded, no profit
	StatusRefunded  Status = "refunded"  // Returned outside the default path
	StatusWithdrawn Status = "withdrawn"
)

// transitions is the closed set of legal status moves.
var transitions = map[Status][]Status{
	StatusActive: {StatusCompleted, StatusDefaulted, StatusRefunded, StatusWithdrawn},
}

// Investment records funds an investor has committed to one invoice.
// Exactly one investment exists per funded invoice.
type Investment struct {
	types.Entity
	ID             id.InvestmentID `json:"id"`
	Investor       string          `json:"investor"`
	InvoiceID      id.InvoiceID    `json:"invoice_id"`
	EscrowID       id.EscrowID     `json:"escrow_id"`
	Amount         types.Money     `json:"amount"` // Funded principal
	ExpectedReturn types.Money     `json:"expected_return"`
	Status         Status          `json:"status"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	DefaultedAt    *time.Time      `json:"defaulted_at,omitempty"`
}

// CanTransition reports whether moving from the current status to the
// given status is a legal state machine move.
func (i *Investment) CanTransition(to Status) bool {
	for _, next := range transitions[i.Status] {
		if next == to {
			return true
		}
	}
	return false
}
