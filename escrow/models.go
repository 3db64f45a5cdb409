// Package escrow defines the custodial escrow lock on investor funds.
package escrow

import (
	"time"

	"github.com/fundflow/factoring/id"
	"github.com/fundflow/factoring/types"
)

// Status is the lifecycle state of an escrow.
type Status string

const (
	StatusLocked   Status = "locked"   // Funds held by the custodian
	StatusReleased Status = "released" // Paid out to the investor at settlement
	StatusRefunded Status = "refunded" // Returned to the investor on default or cancellation
)

// transitions is the closed set of legal status moves. Released and
// refunded are terminal; funds leave custody exactly once.
var transitions = map[Status][]Status{
	StatusLocked: {StatusReleased, StatusRefunded},
}

// Escrow is the custodial hold of an investor's funds against one invoice.
// At most one locked escrow may exist per invoice at any time.
type Escrow struct {
	types.Entity
	ID         id.EscrowID  `json:"id"`
	InvoiceID  id.InvoiceID `json:"invoice_id"`
	Investor   string       `json:"investor"` // Funds return here on refund
	Amount     types.Money  `json:"amount"`   // Locked principal
	Status     Status       `json:"status"`
	LockedAt   time.Time    `json:"locked_at"`
	ReleasedAt *time.Time   `json:"released_at,omitempty"`
	RefundedAt *time.Time   `json:"refunded_at,omitempty"`
}

// CanTransition reports whether moving from the current status to the
// given status is a legal state machine move.
func (e *Escrow) CanTransition(to Status) bool {
	for _, next := range transitions[e.Status] {
		if next == to {
			return true
		}
	}
	return false
}

// IsLocked reports whether the escrow still holds funds.
func (e *Escrow) IsLocked() bool {
	return e.Status == StatusLocked
}
