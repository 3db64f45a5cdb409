// Package bid defines investor bids on invoices.
package bid

import (
	"time"

	"github.com/fundflow/factoring/id"
	"github.com/fundflow/factoring/types"
)

// Status is the lifecycle state of a bid.
type Status string

const (
	StatusPlaced    Status = "placed"
	StatusAccepted  Status = "accepted" // Terminal; at most one bid per invoice
	StatusWithdrawn Status = "withdrawn"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// transitions is the closed set of legal status moves. Every move leaves
// placed; nothing leaves accepted.
var transitions = map[Status][]Status{
	StatusPlaced: {StatusAccepted, StatusWithdrawn, StatusExpired, StatusCancelled},
}

// Bid is an investor's offer to fund an invoice at a discount.
type Bid struct {
	types.Entity
	ID             id.BidID     `json:"id"`
	InvoiceID      id.InvoiceID `json:"invoice_id"`
	Investor       string       `json:"investor"` // Investor address
	Amount         types.Money  `json:"amount"`   // Funding offered
	ExpectedReturn types.Money  `json:"expected_return"`
	Status         Status       `json:"status"`
	PlacedAt       time.Time    `json:"placed_at"`
	AcceptedAt     *time.Time   `json:"accepted_at,omitempty"`
	WithdrawnAt    *time.Time   `json:"withdrawn_at,omitempty"`
	ExpiredAt      *time.Time   `json:"expired_at,omitempty"`
}

// CanTransition reports whether moving from the current status to the
// given status is a legal state machine move.
func (b *Bid) CanTransition(to Status) bool {
	for _, next := range transitions[b.Status] {
		if next == to {
			return true
		}
	}
	return false
}

// IsOpen reports whether the bid can still be accepted or withdrawn.
func (b *Bid) IsOpen() bool {
	return b.Status == StatusPlaced
}
