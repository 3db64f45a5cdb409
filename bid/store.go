package bid

import (
	"context"

	"github.com/fundflow/factoring/id"
)

// Store is the bid persistence fragment implemented by store backends.
type Store interface {
	Create(ctx context.Context, b *Bid) error
	Get(ctx context.Context, bidID id.BidID) (*Bid, error)
	Update(ctx context.Context, b *Bid) error
	ListByInvoice(ctx context.Context, invID id.InvoiceID, opts ListOpts) ([]*Bid, error)
	ListByInvestor(ctx context.Context, investor string, opts ListOpts) ([]*Bid, error)
}

// ListOpts narrows and pages bid list queries.
type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
