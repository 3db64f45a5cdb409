// Package invoice defines the invoice entity and its status machine.
package invoice

import (
	"time"

	"github.com/fundflow/factoring/id"
	"github.com/fundflow/factoring/types"
)

// Status is the lifecycle state of an invoice.
type Status string

const (
	StatusPending   Status = "pending"   // Uploaded, awaiting verification
	StatusVerified  Status = "verified"  // Verified, open for bids
	StatusFunded    Status = "funded"    // A bid was accepted and escrowed
	StatusPaid      Status = "paid"      // Settled by the debtor payment
	StatusDefaulted Status = "defaulted" // Grace period elapsed without payment
	StatusCancelled Status = "cancelled" // Withdrawn by the business before funding
	StatusRefunded  Status = "refunded"  // Escrow returned outside the default path
)

// transitions is the closed set of legal status moves. Funded is the only
// state money can leave from; paid/defaulted/cancelled/refunded are terminal.
var transitions = map[Status][]Status{
	StatusPending:  {StatusVerified, StatusCancelled},
	StatusVerified: {StatusFunded, StatusCancelled},
	StatusFunded:   {StatusPaid, StatusDefaulted, StatusRefunded},
}

// Invoice is a receivable uploaded by a business for factoring.
type Invoice struct {
	types.Entity
	ID          id.InvoiceID      `json:"id"`
	Business    string            `json:"business"` // Owner address
	Amount      types.Money       `json:"amount"`   // Face value
	DueDate     time.Time         `json:"due_date"`
	Status      Status            `json:"status"`
	GracePeriod *time.Duration    `json:"grace_period,omitempty"` // Per-invoice override
	Description string            `json:"description,omitempty"`
	FundedAt    *time.Time        `json:"funded_at,omitempty"`
	PaidAt      *time.Time        `json:"paid_at,omitempty"`
	DefaultedAt *time.Time        `json:"defaulted_at,omitempty"`
	CancelledAt *time.Time        `json:"cancelled_at,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// CanTransition reports whether moving from the current status to the
// given status is a legal state machine move.
func (i *Invoice) CanTransition(to Status) bool {
	for _, next := range transitions[i.Status] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the invoice has reached a final status.
func (i *Invoice) IsTerminal() bool {
	return len(transitions[i.Status]) == 0
}

// EffectiveGracePeriod returns the invoice's grace period override, or the
// given default when no override is set.
func (i *Invoice) EffectiveGracePeriod(fallback time.Duration) time.Duration {
	if i.GracePeriod != nil {
		return *i.GracePeriod
	}
	return fallback
}

// ExpiredAt reports whether the invoice's payment deadline has passed at
// the given instant. The boundary is exclusive: at exactly due date plus
// grace the invoice is not yet expired.
func (i *Invoice) ExpiredAt(now time.Time, defaultGrace time.Duration) bool {
	deadline := i.DueDate.Add(i.EffectiveGracePeriod(defaultGrace))
	return now.After(deadline)
}
