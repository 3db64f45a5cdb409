package factoring

import (
	"context"
	"fmt"

	"github.com/fundflow/factoring/escrow"
	"github.com/fundflow/factoring/id"
	"github.com/fundflow/factoring/invoice"
	"github.com/fundflow/factoring/investment"
	"github.com/fundflow/factoring/types"
)

// SettleInvoice settles a funded invoice against the debtor's payment.
// The payment moves from the business to the custodian, the platform fee
// comes out of it, and the remainder pays the investor. Profit is payment
// minus the funded principal, floored at zero, so a short payment still
// settles but never produces a negative fee.
//
// The owning business or the administrator may settle. Like funding,
// settlement is all-or-nothing: a failed transfer unwinds every write and
// every prior transfer in the unit.
func (e *Engine) SettleInvoice(ctx context.Context, invID id.InvoiceID, caller string, payment types.Money) (*invoice.Invoice, error) {
	tok, err := e.guard.Enter()
	if err != nil {
		return nil, fmt.Errorf("%w: settle_invoice", ErrReentrancy)
	}
	defer tok.Exit()

	inv, err := e.store.GetInvoice(ctx, invID)
	if err != nil {
		return nil, err
	}
	if caller != inv.Business && !e.isAdmin(caller) {
		return nil, fmt.Errorf("%w: caller %s cannot settle invoice %s", ErrUnauthorized, caller, inv.ID)
	}
	if !inv.CanTransition(invoice.StatusPaid) {
		return nil, fmt.Errorf("%w: cannot settle invoice in status %s", ErrInvalidInvoiceStatus, inv.Status)
	}
	if !payment.IsPositive() {
		return nil, fmt.Errorf("%w: payment must be positive", ErrInvalidAmount)
	}
	if !payment.SameCurrency(inv.Amount) {
		return nil, fmt.Errorf("%w: payment currency %s does not match invoice currency %s", ErrInvalidAmount, payment.Currency, inv.Amount.Currency)
	}

	ivt, err := e.store.InvestmentByInvoice(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	esc, err := e.store.ActiveEscrowByInvoice(ctx, inv.ID)
	if err != nil {
		return nil, err
	}

	// Settlement math. Fee applies to profit only and is clamped so the
	// payout is never negative: a break-even or loss settlement pays the
	// whole payment to the investor fee-free.
	profit := payment.SubtractFloor(ivt.Amount)
	fee := e.feeCalc.Fee(profit)
	if fee.IsNegative() {
		fee = types.Zero(payment.Currency)
	}
	fee = fee.Min(payment)
	payout := payment.Subtract(fee)

	invBefore := *inv
	ivtBefore := *ivt
	escBefore := *esc

	now := e.now()
	inv.Status = invoice.StatusPaid
	inv.PaidAt = &now
	inv.TouchAt(now)

	ivt.Status = investment.StatusCompleted
	ivt.CompletedAt = &now
	ivt.TouchAt(now)

	esc.Status = escrow.StatusReleased
	esc.ReleasedAt = &now
	esc.TouchAt(now)

	if err := e.store.UpdateInvoice(ctx, inv); err != nil {
		return nil, fmt.Errorf("update invoice: %w", err)
	}
	if err := e.store.UpdateInvestment(ctx, ivt); err != nil {
		e.compensate(ctx, "settle_invoice", func() error { return e.store.UpdateInvoice(ctx, &invBefore) })
		return nil, fmt.Errorf("update investment: %w", err)
	}
	if err := e.store.UpdateEscrow(ctx, esc); err != nil {
		e.compensate(ctx, "settle_invoice",
			func() error { return e.store.UpdateInvestment(ctx, &ivtBefore) },
			func() error { return e.store.UpdateInvoice(ctx, &invBefore) },
		)
		return nil, fmt.Errorf("update escrow: %w", err)
	}

	// Transfers run last, each one compensated by a reverse transfer if a
	// later one fails.
	if err := e.gateway.Transfer(ctx, inv.Business, e.custodian, payment); err != nil {
		e.compensate(ctx, "settle_invoice",
			func() error { return e.store.UpdateEscrow(ctx, &escBefore) },
			func() error { return e.store.UpdateInvestment(ctx, &ivtBefore) },
			func() error { return e.store.UpdateInvoice(ctx, &invBefore) },
		)
		return nil, fmt.Errorf("%w: collecting payment: %w", ErrTransferFailed, err)
	}
	if err := e.gateway.Transfer(ctx, e.custodian, ivt.Investor, payout); err != nil {
		e.compensate(ctx, "settle_invoice",
			func() error { return e.gateway.Transfer(ctx, e.custodian, inv.Business, payment) },
			func() error { return e.store.UpdateEscrow(ctx, &escBefore) },
			func() error { return e.store.UpdateInvestment(ctx, &ivtBefore) },
			func() error { return e.store.UpdateInvoice(ctx, &invBefore) },
		)
		return nil, fmt.Errorf("%w: paying investor: %w", ErrTransferFailed, err)
	}
	if fee.IsPositive() && e.feeRecipient() != e.custodian {
		if err := e.gateway.Transfer(ctx, e.custodian, e.feeRecipient(), fee); err != nil {
			e.compensate(ctx, "settle_invoice",
				func() error { return e.gateway.Transfer(ctx, ivt.Investor, e.custodian, payout) },
				func() error { return e.gateway.Transfer(ctx, e.custodian, inv.Business, payment) },
				func() error { return e.store.UpdateEscrow(ctx, &escBefore) },
				func() error { return e.store.UpdateInvestment(ctx, &ivtBefore) },
				func() error { return e.store.UpdateInvoice(ctx, &invBefore) },
			)
			return nil, fmt.Errorf("%w: routing fee: %w", ErrTransferFailed, err)
		}
	}

	e.logger.Info("invoice settled",
		"invoice_id", inv.ID,
		"payment", payment,
		"payout", payout,
		"fee", fee,
		"investor", ivt.Investor,
	)

	e.plugins.EmitInvoiceSettled(ctx, inv, payout, fee)
	e.plugins.EmitEscrowReleased(ctx, esc, ivt.Investor)
	return inv, nil
}

// CheckInvoiceExpiration reports whether a funded invoice has passed its
// payment deadline. The boundary is exclusive: at exactly due date plus
// grace period the invoice is still current. Invoices in any other status
// are never expired.
func (e *Engine) CheckInvoiceExpiration(ctx context.Context, invID id.InvoiceID) (bool, error) {
	inv, err := e.store.GetInvoice(ctx, invID)
	if err != nil {
		return false, err
	}
	if inv.Status != invoice.StatusFunded {
		return false, nil
	}
	return inv.ExpiredAt(e.now(), e.gracePeriod), nil
}

// MarkInvoiceDefaulted moves an expired funded invoice into default and
// refunds the escrowed principal to the investor. Any caller may trigger
// a default once the deadline has passed; a second call finds the invoice
// already defaulted and fails the status check, so defaulting is
// effectively idempotent.
func (e *Engine) MarkInvoiceDefaulted(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	tok, err := e.guard.Enter()
	if err != nil {
		return nil, fmt.Errorf("%w: mark_invoice_defaulted", ErrReentrancy)
	}
	defer tok.Exit()

	inv, err := e.store.GetInvoice(ctx, invID)
	if err != nil {
		return nil, err
	}
	if !inv.CanTransition(invoice.StatusDefaulted) {
		return nil, fmt.Errorf("%w: cannot default invoice in status %s", ErrInvalidInvoiceStatus, inv.Status)
	}
	if !inv.ExpiredAt(e.now(), e.gracePeriod) {
		return nil, fmt.Errorf("%w: invoice %s", ErrInvoiceNotExpired, inv.ID)
	}

	ivt, err := e.store.InvestmentByInvoice(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	esc, err := e.store.ActiveEscrowByInvoice(ctx, inv.ID)
	if err != nil {
		return nil, err
	}

	invBefore := *inv
	ivtBefore := *ivt
	escBefore := *esc

	now := e.now()
	inv.Status = invoice.StatusDefaulted
	inv.DefaultedAt = &now
	inv.TouchAt(now)

	ivt.Status = investment.StatusDefaulted
	ivt.DefaultedAt = &now
	ivt.TouchAt(now)

	esc.Status = escrow.StatusRefunded
	esc.RefundedAt = &now
	esc.TouchAt(now)

	if err := e.store.UpdateInvoice(ctx, inv); err != nil {
		return nil, fmt.Errorf("update invoice: %w", err)
	}
	if err := e.store.UpdateInvestment(ctx, ivt); err != nil {
		e.compensate(ctx, "mark_invoice_defaulted", func() error { return e.store.UpdateInvoice(ctx, &invBefore) })
		return nil, fmt.Errorf("update investment: %w", err)
	}
	if err := e.store.UpdateEscrow(ctx, esc); err != nil {
		e.compensate(ctx, "mark_invoice_defaulted",
			func() error { return e.store.UpdateInvestment(ctx, &ivtBefore) },
			func() error { return e.store.UpdateInvoice(ctx, &invBefore) },
		)
		return nil, fmt.Errorf("update escrow: %w", err)
	}

	// Refund the locked principal to the investor.
	if err := e.gateway.Transfer(ctx, e.custodian, esc.Investor, esc.Amount); err != nil {
		e.compensate(ctx, "mark_invoice_defaulted",
			func() error { return e.store.UpdateEscrow(ctx, &escBefore) },
			func() error { return e.store.UpdateInvestment(ctx, &ivtBefore) },
			func() error { return e.store.UpdateInvoice(ctx, &invBefore) },
		)
		return nil, fmt.Errorf("%w: refunding investor: %w", ErrTransferFailed, err)
	}

	e.logger.Info("invoice defaulted",
		"invoice_id", inv.ID,
		"investor", esc.Investor,
		"refunded", esc.Amount,
	)

	e.plugins.EmitInvoiceDefaulted(ctx, inv)
	e.plugins.EmitEscrowRefunded(ctx, esc)
	return inv, nil
}

// CheckExpiredInvoices scans funded invoices and returns the IDs of those
// past their payment deadline. Schedulers pair this with
// MarkInvoiceDefaulted; the scan itself changes nothing.
func (e *Engine) CheckExpiredInvoices(ctx context.Context) ([]id.InvoiceID, error) {
	now := e.now()

	var expired []id.InvoiceID
	opts := invoice.ListOpts{Limit: 100}
	for {
		batch, err := e.store.ListInvoicesByStatus(ctx, invoice.StatusFunded, opts)
		if err != nil {
			return nil, err
		}
		for _, inv := range batch {
			if inv.ExpiredAt(now, e.gracePeriod) {
				expired = append(expired, inv.ID)
			}
		}
		if len(batch) < opts.Limit {
			break
		}
		opts.Offset += opts.Limit
	}

	return expired, nil
}
