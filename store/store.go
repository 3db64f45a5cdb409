// Package store defines the unified persistence interface for all
// factoring entities, plus the backend implementations in subpackages.
package store

import (
	"context"

	"github.com/fundflow/factoring/bid"
	"github.com/fundflow/factoring/escrow"
	"github.com/fundflow/factoring/id"
	"github.com/fundflow/factoring/invoice"
	"github.com/fundflow/factoring/investment"
)

// Store is the unified storage interface for all factoring entities.
// Instead of embedding the per-entity sub-interfaces, all methods are
// declared explicitly to avoid naming conflicts.
//
// Updates follow a load-mutate-store cycle: callers Get a record, change
// it, and Update it back. The engine serializes fund-moving operations,
// so backends only need per-call consistency, not cross-call transactions.
type Store interface {
	// Invoice methods
	CreateInvoice(ctx context.Context, inv *invoice.Invoice) error
	GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error)
	UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error
	ListInvoicesByStatus(ctx context.Context, status invoice.Status, opts invoice.ListOpts) ([]*invoice.Invoice, error)
	ListInvoicesByBusiness(ctx context.Context, business string, opts invoice.ListOpts) ([]*invoice.Invoice, error)

	// Bid methods
	CreateBid(ctx context.Context, b *bid.Bid) error
	GetBid(ctx context.Context, bidID id.BidID) (*bid.Bid, error)
	UpdateBid(ctx context.Context, b *bid.Bid) error
	ListBidsByInvoice(ctx context.Context, invID id.InvoiceID, opts bid.ListOpts) ([]*bid.Bid, error)
	ListBidsByInvestor(ctx context.Context, investor string, opts bid.ListOpts) ([]*bid.Bid, error)

	// Escrow methods
	CreateEscrow(ctx context.Context, e *escrow.Escrow) error
	GetEscrow(ctx context.Context, escID id.EscrowID) (*escrow.Escrow, error)
	UpdateEscrow(ctx context.Context, e *escrow.Escrow) error
	ActiveEscrowByInvoice(ctx context.Context, invID id.InvoiceID) (*escrow.Escrow, error)
	DeleteEscrow(ctx context.Context, escID id.EscrowID) error

	// Investment methods
	CreateInvestment(ctx context.Context, ivt *investment.Investment) error
	GetInvestment(ctx context.Context, ivtID id.InvestmentID) (*investment.Investment, error)
	UpdateInvestment(ctx context.Context, ivt *investment.Investment) error
	InvestmentByInvoice(ctx context.Context, invID id.InvoiceID) (*investment.Investment, error)
	ListInvestmentsByInvestor(ctx context.Context, investor string, opts investment.ListOpts) ([]*investment.Investment, error)
	DeleteInvestment(ctx context.Context, ivtID id.InvestmentID) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
