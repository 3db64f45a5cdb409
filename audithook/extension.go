// Package audithook bridges factoring lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit system. Callers inject a RecorderFunc adapter that
// bridges to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fundflow/factoring/bid"
	"github.com/fundflow/factoring/escrow"
	"github.com/fundflow/factoring/invoice"
	"github.com/fundflow/factoring/investment"
	"github.com/fundflow/factoring/plugin"
	"github.com/fundflow/factoring/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin              = (*Extension)(nil)
	_ plugin.OnInvoiceUploaded   = (*Extension)(nil)
	_ plugin.OnInvoiceVerified   = (*Extension)(nil)
	_ plugin.OnInvoiceCancelled  = (*Extension)(nil)
	_ plugin.OnInvoiceFunded     = (*Extension)(nil)
	_ plugin.OnInvoiceSettled    = (*Extension)(nil)
	_ plugin.OnInvoiceDefaulted  = (*Extension)(nil)
	_ plugin.OnBidPlaced         = (*Extension)(nil)
	_ plugin.OnBidAccepted       = (*Extension)(nil)
	_ plugin.OnBidWithdrawn      = (*Extension)(nil)
	_ plugin.OnBidExpired        = (*Extension)(nil)
	_ plugin.OnEscrowCreated     = (*Extension)(nil)
	_ plugin.OnEscrowReleased    = (*Extension)(nil)
	_ plugin.OnEscrowRefunded    = (*Extension)(nil)
	_ plugin.OnInvestmentCreated = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges factoring lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceUploaded implements plugin.OnInvoiceUploaded.
func (e *Extension) OnInvoiceUploaded(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceUploaded, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryFactoring, nil,
		"business", inv.Business,
		"amount", inv.Amount.String(),
		"due_date", inv.DueDate,
	)
}

// OnInvoiceVerified implements plugin.OnInvoiceVerified.
func (e *Extension) OnInvoiceVerified(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceVerified, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryFactoring, nil,
		"business", inv.Business,
	)
}

// OnInvoiceCancelled implements plugin.OnInvoiceCancelled.
func (e *Extension) OnInvoiceCancelled(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceCancelled, SeverityWarning, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryFactoring, nil,
		"business", inv.Business,
	)
}

// OnInvoiceFunded implements plugin.OnInvoiceFunded.
func (e *Extension) OnInvoiceFunded(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceFunded, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryFunding, nil,
		"business", inv.Business,
		"amount", inv.Amount.String(),
	)
}

// OnInvoiceSettled implements plugin.OnInvoiceSettled.
func (e *Extension) OnInvoiceSettled(ctx context.Context, inv *invoice.Invoice, payout, fee types.Money) error {
	return e.record(ctx, ActionInvoiceSettled, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryFunding, nil,
		"business", inv.Business,
		"payout", payout.String(),
		"fee", fee.String(),
	)
}

// OnInvoiceDefaulted implements plugin.OnInvoiceDefaulted.
func (e *Extension) OnInvoiceDefaulted(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceDefaulted, SeverityCritical, OutcomeFailure,
		ResourceInvoice, inv.ID.String(), CategoryFunding, nil,
		"business", inv.Business,
		"amount", inv.Amount.String(),
	)
}

// ──────────────────────────────────────────────────
// Bid lifecycle hooks
// ──────────────────────────────────────────────────

// OnBidPlaced implements plugin.OnBidPlaced.
func (e *Extension) OnBidPlaced(ctx context.Context, b *bid.Bid) error {
	return e.record(ctx, ActionBidPlaced, SeverityInfo, OutcomeSuccess,
		ResourceBid, b.ID.String(), CategoryFactoring, nil,
		"invoice_id", b.InvoiceID.String(),
		"investor", b.Investor,
		"amount", b.Amount.String(),
	)
}

// OnBidAccepted implements plugin.OnBidAccepted.
func (e *Extension) OnBidAccepted(ctx context.Context, b *bid.Bid) error {
	return e.record(ctx, ActionBidAccepted, SeverityInfo, OutcomeSuccess,
		ResourceBid, b.ID.String(), CategoryFunding, nil,
		"invoice_id", b.InvoiceID.String(),
		"investor", b.Investor,
		"amount", b.Amount.String(),
	)
}

// OnBidWithdrawn implements plugin.OnBidWithdrawn.
func (e *Extension) OnBidWithdrawn(ctx context.Context, b *bid.Bid) error {
	return e.record(ctx, ActionBidWithdrawn, SeverityInfo, OutcomeSuccess,
		ResourceBid, b.ID.String(), CategoryFactoring, nil,
		"investor", b.Investor,
	)
}

// OnBidExpired implements plugin.OnBidExpired.
func (e *Extension) OnBidExpired(ctx context.Context, b *bid.Bid) error {
	return e.record(ctx, ActionBidExpired, SeverityInfo, OutcomeSuccess,
		ResourceBid, b.ID.String(), CategoryFactoring, nil,
		"investor", b.Investor,
	)
}

// ──────────────────────────────────────────────────
// Escrow and investment hooks
// ──────────────────────────────────────────────────

// OnEscrowCreated implements plugin.OnEscrowCreated.
func (e *Extension) OnEscrowCreated(ctx context.Context, esc *escrow.Escrow) error {
	return e.record(ctx, ActionEscrowCreated, SeverityInfo, OutcomeSuccess,
		ResourceEscrow, esc.ID.String(), CategoryCustody, nil,
		"invoice_id", esc.InvoiceID.String(),
		"investor", esc.Investor,
		"amount", esc.Amount.String(),
	)
}

// OnEscrowReleased implements plugin.OnEscrowReleased.
func (e *Extension) OnEscrowReleased(ctx context.Context, esc *escrow.Escrow, to string) error {
	return e.record(ctx, ActionEscrowReleased, SeverityInfo, OutcomeSuccess,
		ResourceEscrow, esc.ID.String(), CategoryCustody, nil,
		"invoice_id", esc.InvoiceID.String(),
		"to", to,
		"amount", esc.Amount.String(),
	)
}

// OnEscrowRefunded implements plugin.OnEscrowRefunded.
func (e *Extension) OnEscrowRefunded(ctx context.Context, esc *escrow.Escrow) error {
	return e.record(ctx, ActionEscrowRefunded, SeverityWarning, OutcomeSuccess,
		ResourceEscrow, esc.ID.String(), CategoryCustody, nil,
		"invoice_id", esc.InvoiceID.String(),
		"investor", esc.Investor,
		"amount", esc.Amount.String(),
	)
}

// OnInvestmentCreated implements plugin.OnInvestmentCreated.
func (e *Extension) OnInvestmentCreated(ctx context.Context, ivt *investment.Investment) error {
	return e.record(ctx, ActionInvestmentCreated, SeverityInfo, OutcomeSuccess,
		ResourceInvestment, ivt.ID.String(), CategoryFunding, nil,
		"invoice_id", ivt.InvoiceID.String(),
		"investor", ivt.Investor,
		"amount", ivt.Amount.String(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audithook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
