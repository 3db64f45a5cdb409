package invoice

import (
	"context"

	"github.com/fundflow/factoring/id"
)

// Store is the invoice persistence fragment implemented by store backends.
type Store interface {
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, invID id.InvoiceID) (*Invoice, error)
	Update(ctx context.Context, inv *Invoice) error
	ListByStatus(ctx context.Context, status Status, opts ListOpts) ([]*Invoice, error)
	ListByBusiness(ctx context.Context, business string, opts ListOpts) ([]*Invoice, error)
}

// ListOpts narrows and pages invoice list queries.
type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
