package factoring

import (
	"context"
	"fmt"

	"github.com/fundflow/factoring/bid"
	"github.com/fundflow/factoring/id"
	"github.com/fundflow/factoring/invoice"
	"github.com/fundflow/factoring/token"
	"github.com/fundflow/factoring/types"
)

// ──────────────────────────────────────────────────
// Invoice lifecycle
// ──────────────────────────────────────────────────

// UploadInvoice registers a new receivable for factoring. The invoice
// starts in pending status and must be verified before it can take bids.
// The uploading business must pass the verification oracle.
func (e *Engine) UploadInvoice(ctx context.Context, inv *invoice.Invoice) error {
	if inv == nil {
		return fmt.Errorf("%w: invoice is nil", ErrInvalidInput)
	}
	if _, err := token.ParseAccount(inv.Business); err != nil {
		return &ValidationError{Field: "business", Message: "business address is required"}
	}
	if !inv.Amount.IsPositive() {
		return fmt.Errorf("%w: invoice amount must be positive", ErrInvalidAmount)
	}
	if inv.DueDate.IsZero() {
		return &ValidationError{Field: "due_date", Message: "due date is required"}
	}
	if !e.oracle.IsVerified(ctx, inv.Business) {
		return fmt.Errorf("%w: business %s", ErrNotVerified, inv.Business)
	}

	now := e.now()
	inv.ID = id.NewInvoiceID()
	inv.Status = invoice.StatusPending
	inv.Entity = types.NewEntityAt(now)

	if err := e.store.CreateInvoice(ctx, inv); err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}

	e.logger.Info("invoice uploaded",
		"invoice_id", inv.ID,
		"business", inv.Business,
		"amount", inv.Amount,
		"due_date", inv.DueDate,
	)

	e.plugins.EmitInvoiceUploaded(ctx, inv)
	return nil
}

// VerifyInvoice marks a pending invoice as verified, opening it for bids.
// Only the configured administrator may verify.
func (e *Engine) VerifyInvoice(ctx context.Context, invID id.InvoiceID, caller string) (*invoice.Invoice, error) {
	if !e.isAdmin(caller) {
		return nil, fmt.Errorf("%w: only the administrator can verify invoices", ErrUnauthorized)
	}

	inv, err := e.store.GetInvoice(ctx, invID)
	if err != nil {
		return nil, err
	}
	if !inv.CanTransition(invoice.StatusVerified) {
		return nil, fmt.Errorf("%w: cannot verify invoice in status %s", ErrInvalidInvoiceStatus, inv.Status)
	}

	inv.Status = invoice.StatusVerified
	inv.TouchAt(e.now())

	if err := e.store.UpdateInvoice(ctx, inv); err != nil {
		return nil, fmt.Errorf("update invoice: %w", err)
	}

	e.logger.Info("invoice verified", "invoice_id", inv.ID)
	e.plugins.EmitInvoiceVerified(ctx, inv)
	return inv, nil
}

// CancelInvoice withdraws an invoice before it is funded. The owning
// business or the administrator may cancel; a funded invoice cannot be
// cancelled, only settled, defaulted, or refunded.
func (e *Engine) CancelInvoice(ctx context.Context, invID id.InvoiceID, caller string) (*invoice.Invoice, error) {
	inv, err := e.store.GetInvoice(ctx, invID)
	if err != nil {
		return nil, err
	}
	if caller != inv.Business && !e.isAdmin(caller) {
		return nil, fmt.Errorf("%w: caller %s does not own invoice %s", ErrUnauthorized, caller, inv.ID)
	}
	if !inv.CanTransition(invoice.StatusCancelled) {
		return nil, fmt.Errorf("%w: cannot cancel invoice in status %s", ErrInvalidInvoiceStatus, inv.Status)
	}

	now := e.now()
	inv.Status = invoice.StatusCancelled
	inv.CancelledAt = &now
	inv.TouchAt(now)

	if err := e.store.UpdateInvoice(ctx, inv); err != nil {
		return nil, fmt.Errorf("update invoice: %w", err)
	}

	e.logger.Info("invoice cancelled", "invoice_id", inv.ID, "caller", caller)
	e.plugins.EmitInvoiceCancelled(ctx, inv)
	return inv, nil
}

// ──────────────────────────────────────────────────
// Bid lifecycle
// ──────────────────────────────────────────────────

// PlaceBid records an investor's offer to fund a verified invoice.
// Multiple bids may be open on the same invoice; acceptance picks one.
func (e *Engine) PlaceBid(ctx context.Context, b *bid.Bid) error {
	if b == nil {
		return fmt.Errorf("%w: bid is nil", ErrInvalidInput)
	}
	if _, err := token.ParseAccount(b.Investor); err != nil {
		return &ValidationError{Field: "investor", Message: "investor address is required"}
	}
	if !b.Amount.IsPositive() {
		return fmt.Errorf("%w: bid amount must be positive", ErrInvalidAmount)
	}
	if !e.oracle.IsVerified(ctx, b.Investor) {
		return fmt.Errorf("%w: investor %s", ErrNotVerified, b.Investor)
	}

	inv, err := e.store.GetInvoice(ctx, b.InvoiceID)
	if err != nil {
		return err
	}
	if inv.Status != invoice.StatusVerified {
		return fmt.Errorf("%w: invoice %s is %s, bids require a verified invoice", ErrInvalidInvoiceStatus, inv.ID, inv.Status)
	}
	if !b.Amount.SameCurrency(inv.Amount) {
		return fmt.Errorf("%w: bid currency %s does not match invoice currency %s", ErrInvalidAmount, b.Amount.Currency, inv.Amount.Currency)
	}

	now := e.now()
	b.ID = id.NewBidID()
	b.Status = bid.StatusPlaced
	b.PlacedAt = now
	b.Entity = types.NewEntityAt(now)

	if err := e.store.CreateBid(ctx, b); err != nil {
		return fmt.Errorf("create bid: %w", err)
	}

	e.logger.Info("bid placed",
		"bid_id", b.ID,
		"invoice_id", b.InvoiceID,
		"investor", b.Investor,
		"amount", b.Amount,
	)

	e.plugins.EmitBidPlaced(ctx, b)
	return nil
}

// WithdrawBid lets an investor retract a bid that has not been accepted.
func (e *Engine) WithdrawBid(ctx context.Context, bidID id.BidID, caller string) (*bid.Bid, error) {
	b, err := e.store.GetBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if caller != b.Investor {
		return nil, fmt.Errorf("%w: caller %s does not own bid %s", ErrUnauthorized, caller, b.ID)
	}
	if !b.CanTransition(bid.StatusWithdrawn) {
		return nil, fmt.Errorf("%w: cannot withdraw bid in status %s", ErrInvalidBidStatus, b.Status)
	}

	now := e.now()
	b.Status = bid.StatusWithdrawn
	b.WithdrawnAt = &now
	b.TouchAt(now)

	if err := e.store.UpdateBid(ctx, b); err != nil {
		return nil, fmt.Errorf("update bid: %w", err)
	}

	e.logger.Info("bid withdrawn", "bid_id", b.ID, "investor", b.Investor)
	e.plugins.EmitBidWithdrawn(ctx, b)
	return b, nil
}

// ExpireBid marks an open bid as expired. Typically driven by a scheduler
// when an invoice leaves the verified state without accepting the bid.
func (e *Engine) ExpireBid(ctx context.Context, bidID id.BidID) (*bid.Bid, error) {
	b, err := e.store.GetBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if !b.CanTransition(bid.StatusExpired) {
		return nil, fmt.Errorf("%w: cannot expire bid in status %s", ErrInvalidBidStatus, b.Status)
	}

	now := e.now()
	b.Status = bid.StatusExpired
	b.ExpiredAt = &now
	b.TouchAt(now)

	if err := e.store.UpdateBid(ctx, b); err != nil {
		return nil, fmt.Errorf("update bid: %w", err)
	}

	e.logger.Info("bid expired", "bid_id", b.ID)
	e.plugins.EmitBidExpired(ctx, b)
	return b, nil
}
