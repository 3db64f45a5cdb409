package escrow

import (
	"context"

	"github.com/fundflow/factoring/id"
)

// Store is the escrow persistence fragment implemented by store backends.
type Store interface {
	Create(ctx context.Context, e *Escrow) error
	Get(ctx context.Context, escID id.EscrowID) (*Escrow, error)
	Update(ctx context.Context, e *Escrow) error
	// ActiveByInvoice returns the locked escrow for an invoice, or a
	// not-found error when none is locked. Backends must be able to answer
	// this before any new escrow is created — it enforces the one-active-
	// escrow-per-invoice invariant.
	ActiveByInvoice(ctx context.Context, invID id.InvoiceID) (*Escrow, error)
	Delete(ctx context.Context, escID id.EscrowID) error
}
