// Package plugin provides an extensible plugin system for the factoring
// engine. Plugins hook into lifecycle events; every domain event the
// engine emits is dispatched through the Registry.
package plugin

import (
	"context"

	"github.com/fundflow/factoring/bid"
	"github.com/fundflow/factoring/escrow"
	"github.com/fundflow/factoring/invoice"
	"github.com/fundflow/factoring/investment"
	"github.com/fundflow/factoring/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. The engine instance is passed
// as interface{} to avoid an import cycle with the root package.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the engine is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceUploaded is called when a business uploads an invoice.
type OnInvoiceUploaded interface {
	Plugin
	OnInvoiceUploaded(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoiceVerified is called when an invoice passes verification.
type OnInvoiceVerified interface {
	Plugin
	OnInvoiceVerified(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoiceCancelled is called when a business cancels an invoice.
type OnInvoiceCancelled interface {
	Plugin
	OnInvoiceCancelled(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoiceFunded is called when accept-bid-and-fund completes.
type OnInvoiceFunded interface {
	Plugin
	OnInvoiceFunded(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoiceSettled is called when a funded invoice is paid off.
type OnInvoiceSettled interface {
	Plugin
	OnInvoiceSettled(ctx context.Context, inv *invoice.Invoice, payout, fee types.Money) error
}

// OnInvoiceDefaulted is called when a funded invoice passes its grace
// period unpaid and is marked defaulted.
type OnInvoiceDefaulted interface {
	Plugin
	OnInvoiceDefaulted(ctx context.Context, inv *invoice.Invoice) error
}

// ──────────────────────────────────────────────────
// Bid lifecycle hooks
// ──────────────────────────────────────────────────

// OnBidPlaced is called when an investor places a bid.
type OnBidPlaced interface {
	Plugin
	OnBidPlaced(ctx context.Context, b *bid.Bid) error
}

// OnBidAccepted is called when a business accepts a bid.
type OnBidAccepted interface {
	Plugin
	OnBidAccepted(ctx context.Context, b *bid.Bid) error
}

// OnBidWithdrawn is called when an investor withdraws a bid.
type OnBidWithdrawn interface {
	Plugin
	OnBidWithdrawn(ctx context.Context, b *bid.Bid) error
}

// OnBidExpired is called when a bid lapses.
type OnBidExpired interface {
	Plugin
	OnBidExpired(ctx context.Context, b *bid.Bid) error
}

// ──────────────────────────────────────────────────
// Escrow lifecycle hooks
// ──────────────────────────────────────────────────

// OnEscrowCreated is called when investor funds are locked in escrow.
type OnEscrowCreated interface {
	Plugin
	OnEscrowCreated(ctx context.Context, e *escrow.Escrow) error
}

// OnEscrowReleased is called when escrowed funds are paid out.
type OnEscrowReleased interface {
	Plugin
	OnEscrowReleased(ctx context.Context, e *escrow.Escrow, to string) error
}

// OnEscrowRefunded is called when escrowed funds return to the investor.
type OnEscrowRefunded interface {
	Plugin
	OnEscrowRefunded(ctx context.Context, e *escrow.Escrow) error
}

// ──────────────────────────────────────────────────
// Investment lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvestmentCreated is called when an investment record is created
// alongside its escrow.
type OnInvestmentCreated interface {
	Plugin
	OnInvestmentCreated(ctx context.Context, ivt *investment.Investment) error
}
