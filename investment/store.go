package investment

import (
	"context"

	"github.com/fundflow/factoring/id"
)

// Store is the investment persistence fragment implemented by store backends.
type Store interface {
	Create(ctx context.Context, inv *Investment) error
	Get(ctx context.Context, invID id.InvestmentID) (*Investment, error)
	Update(ctx context.Context, inv *Investment) error
	// ByInvoice returns the investment tied to an invoice. The invoice-to-
	// investment mapping is unique; backends return a not-found error when
	// the invoice was never funded.
	ByInvoice(ctx context.Context, invoiceID id.InvoiceID) (*Investment, error)
	ListByInvestor(ctx context.Context, investor string, opts ListOpts) ([]*Investment, error)
	Delete(ctx context.Context, invID id.InvestmentID) error
}

// ListOpts narrows and pages investment list queries.
type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
