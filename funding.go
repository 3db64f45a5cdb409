package factoring

import (
	"context"
	"fmt"

	"github.com/fundflow/factoring/bid"
	"github.com/fundflow/factoring/escrow"
	"github.com/fundflow/factoring/id"
	"github.com/fundflow/factoring/invoice"
	"github.com/fundflow/factoring/investment"
	"github.com/fundflow/factoring/types"
)

// AcceptBidAndFund accepts a bid on behalf of the invoice's business and
// funds the invoice in one atomic unit: the bid becomes accepted, the
// invoice funded, an escrow is locked, an investment opened, and the
// investor's funds move to the custodian. Either every piece happens or
// none does.
//
// State is written before the transfer runs, so a token that calls back
// into the engine hits the reentrancy guard, not stale state. When the
// transfer fails, every prior write is compensated and the call returns
// ErrTransferFailed with nothing emitted.
func (e *Engine) AcceptBidAndFund(ctx context.Context, bidID id.BidID, caller string) (*escrow.Escrow, error) {
	tok, err := e.guard.Enter()
	if err != nil {
		return nil, fmt.Errorf("%w: accept_bid_and_fund", ErrReentrancy)
	}
	defer tok.Exit()

	// Preconditions, checked before any write.
	b, err := e.store.GetBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	inv, err := e.store.GetInvoice(ctx, b.InvoiceID)
	if err != nil {
		return nil, err
	}
	if caller != inv.Business {
		return nil, fmt.Errorf("%w: caller %s does not own invoice %s", ErrUnauthorized, caller, inv.ID)
	}
	if !b.CanTransition(bid.StatusAccepted) {
		return nil, fmt.Errorf("%w: cannot accept bid in status %s", ErrInvalidBidStatus, b.Status)
	}
	if !inv.CanTransition(invoice.StatusFunded) {
		return nil, fmt.Errorf("%w: cannot fund invoice in status %s", ErrInvalidInvoiceStatus, inv.Status)
	}
	if !b.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: bid amount must be positive", ErrInvalidAmount)
	}
	existing, err := e.store.ActiveEscrowByInvoice(ctx, inv.ID)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: escrow %s", ErrDuplicateEscrow, existing.ID)
	case !IsNotFound(err):
		// A backend failure is not evidence that no escrow exists.
		return nil, fmt.Errorf("checking active escrow: %w", err)
	}

	// Snapshots for compensation.
	bidBefore := *b
	invBefore := *inv

	now := e.now()

	b.Status = bid.StatusAccepted
	b.AcceptedAt = &now
	b.TouchAt(now)

	inv.Status = invoice.StatusFunded
	inv.FundedAt = &now
	inv.TouchAt(now)

	esc := &escrow.Escrow{
		Entity:    types.NewEntityAt(now),
		ID:        id.NewEscrowID(),
		InvoiceID: inv.ID,
		Investor:  b.Investor,
		Amount:    b.Amount,
		Status:    escrow.StatusLocked,
		LockedAt:  now,
	}

	ivt := &investment.Investment{
		Entity:         types.NewEntityAt(now),
		ID:             id.NewInvestmentID(),
		Investor:       b.Investor,
		InvoiceID:      inv.ID,
		EscrowID:       esc.ID,
		Amount:         b.Amount,
		ExpectedReturn: b.ExpectedReturn,
		Status:         investment.StatusActive,
	}

	// Effects. Each write enlarges the compensation set for the next.
	if err := e.store.UpdateBid(ctx, b); err != nil {
		return nil, fmt.Errorf("update bid: %w", err)
	}
	if err := e.store.UpdateInvoice(ctx, inv); err != nil {
		e.compensate(ctx, "accept_bid_and_fund", func() error { return e.store.UpdateBid(ctx, &bidBefore) })
		return nil, fmt.Errorf("update invoice: %w", err)
	}
	if err := e.store.CreateEscrow(ctx, esc); err != nil {
		e.compensate(ctx, "accept_bid_and_fund",
			func() error { return e.store.UpdateInvoice(ctx, &invBefore) },
			func() error { return e.store.UpdateBid(ctx, &bidBefore) },
		)
		return nil, fmt.Errorf("create escrow: %w", err)
	}
	if err := e.store.CreateInvestment(ctx, ivt); err != nil {
		e.compensate(ctx, "accept_bid_and_fund",
			func() error { return e.store.DeleteEscrow(ctx, esc.ID) },
			func() error { return e.store.UpdateInvoice(ctx, &invBefore) },
			func() error { return e.store.UpdateBid(ctx, &bidBefore) },
		)
		return nil, fmt.Errorf("create investment: %w", err)
	}

	// Interaction last: move investor funds into custody.
	if err := e.gateway.Transfer(ctx, b.Investor, e.custodian, b.Amount); err != nil {
		e.compensate(ctx, "accept_bid_and_fund",
			func() error { return e.store.DeleteInvestment(ctx, ivt.ID) },
			func() error { return e.store.DeleteEscrow(ctx, esc.ID) },
			func() error { return e.store.UpdateInvoice(ctx, &invBefore) },
			func() error { return e.store.UpdateBid(ctx, &bidBefore) },
		)
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	e.logger.Info("bid accepted and invoice funded",
		"bid_id", b.ID,
		"invoice_id", inv.ID,
		"escrow_id", esc.ID,
		"investment_id", ivt.ID,
		"investor", b.Investor,
		"amount", b.Amount,
	)

	e.plugins.EmitBidAccepted(ctx, b)
	e.plugins.EmitEscrowCreated(ctx, esc)
	e.plugins.EmitInvestmentCreated(ctx, ivt)
	e.plugins.EmitInvoiceFunded(ctx, inv)

	return esc, nil
}

// ReleaseEscrow pays a locked escrow out to an arbitrary recipient. This
// is the administrator's escape hatch; the normal release path runs
// inside SettleInvoice.
func (e *Engine) ReleaseEscrow(ctx context.Context, escID id.EscrowID, caller, to string) (*escrow.Escrow, error) {
	tok, err := e.guard.Enter()
	if err != nil {
		return nil, fmt.Errorf("%w: release_escrow", ErrReentrancy)
	}
	defer tok.Exit()

	if !e.isAdmin(caller) {
		return nil, fmt.Errorf("%w: only the administrator can release escrows directly", ErrUnauthorized)
	}
	if to == "" {
		return nil, &ValidationError{Field: "to", Message: "recipient address is required"}
	}

	esc, err := e.store.GetEscrow(ctx, escID)
	if err != nil {
		return nil, err
	}
	if !esc.CanTransition(escrow.StatusReleased) {
		return nil, fmt.Errorf("%w: cannot release escrow in status %s", ErrInvalidEscrowStatus, esc.Status)
	}

	escBefore := *esc
	now := e.now()
	esc.Status = escrow.StatusReleased
	esc.ReleasedAt = &now
	esc.TouchAt(now)

	if err := e.store.UpdateEscrow(ctx, esc); err != nil {
		return nil, fmt.Errorf("update escrow: %w", err)
	}
	if err := e.gateway.Transfer(ctx, e.custodian, to, esc.Amount); err != nil {
		e.compensate(ctx, "release_escrow", func() error { return e.store.UpdateEscrow(ctx, &escBefore) })
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	e.logger.Info("escrow released", "escrow_id", esc.ID, "to", to, "amount", esc.Amount)
	e.plugins.EmitEscrowReleased(ctx, esc, to)
	return esc, nil
}

// RefundEscrow returns a locked escrow's funds to the investor and closes
// out the invoice and investment as refunded. The owning business or the
// administrator may refund.
func (e *Engine) RefundEscrow(ctx context.Context, escID id.EscrowID, caller string) (*escrow.Escrow, error) {
	tok, err := e.guard.Enter()
	if err != nil {
		return nil, fmt.Errorf("%w: refund_escrow", ErrReentrancy)
	}
	defer tok.Exit()

	esc, err := e.store.GetEscrow(ctx, escID)
	if err != nil {
		return nil, err
	}
	inv, err := e.store.GetInvoice(ctx, esc.InvoiceID)
	if err != nil {
		return nil, err
	}
	if caller != inv.Business && !e.isAdmin(caller) {
		return nil, fmt.Errorf("%w: caller %s cannot refund escrow %s", ErrUnauthorized, caller, esc.ID)
	}
	if !esc.CanTransition(escrow.StatusRefunded) {
		return nil, fmt.Errorf("%w: cannot refund escrow in status %s", ErrInvalidEscrowStatus, esc.Status)
	}
	ivt, err := e.store.InvestmentByInvoice(ctx, inv.ID)
	if err != nil {
		return nil, err
	}

	escBefore := *esc
	invBefore := *inv
	ivtBefore := *ivt

	now := e.now()
	esc.Status = escrow.StatusRefunded
	esc.RefundedAt = &now
	esc.TouchAt(now)

	inv.Status = invoice.StatusRefunded
	inv.TouchAt(now)

	ivt.Status = investment.StatusRefunded
	ivt.TouchAt(now)

	if err := e.store.UpdateEscrow(ctx, esc); err != nil {
		return nil, fmt.Errorf("update escrow: %w", err)
	}
	if err := e.store.UpdateInvoice(ctx, inv); err != nil {
		e.compensate(ctx, "refund_escrow", func() error { return e.store.UpdateEscrow(ctx, &escBefore) })
		return nil, fmt.Errorf("update invoice: %w", err)
	}
	if err := e.store.UpdateInvestment(ctx, ivt); err != nil {
		e.compensate(ctx, "refund_escrow",
			func() error { return e.store.UpdateInvoice(ctx, &invBefore) },
			func() error { return e.store.UpdateEscrow(ctx, &escBefore) },
		)
		return nil, fmt.Errorf("update investment: %w", err)
	}

	if err := e.gateway.Transfer(ctx, e.custodian, esc.Investor, esc.Amount); err != nil {
		e.compensate(ctx, "refund_escrow",
			func() error { return e.store.UpdateInvestment(ctx, &ivtBefore) },
			func() error { return e.store.UpdateInvoice(ctx, &invBefore) },
			func() error { return e.store.UpdateEscrow(ctx, &escBefore) },
		)
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	e.logger.Info("escrow refunded", "escrow_id", esc.ID, "investor", esc.Investor, "amount", esc.Amount)
	e.plugins.EmitEscrowRefunded(ctx, esc)
	return esc, nil
}

// compensate runs rollback steps in order, logging any that fail. A
// failed compensation leaves the store inconsistent and is surfaced at
// error level for operator attention.
func (e *Engine) compensate(ctx context.Context, op string, steps ...func() error) {
	for _, step := range steps {
		if err := step(); err != nil {
			e.logger.ErrorContext(ctx, "compensation step failed",
				"operation", op,
				"error", err,
			)
		}
	}
}
