package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fundflow/factoring/bid"
	"github.com/fundflow/factoring/escrow"
	"github.com/fundflow/factoring/invoice"
	"github.com/fundflow/factoring/investment"
	"github.com/fundflow/factoring/types"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so emitting an event only touches plugins
// that implement the matching hook.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit              []OnInit
	onShutdown          []OnShutdown
	onInvoiceUploaded   []OnInvoiceUploaded
	onInvoiceVerified   []OnInvoiceVerified
	onInvoiceCancelled  []OnInvoiceCancelled
	onInvoiceFunded     []OnInvoiceFunded
	onInvoiceSettled    []OnInvoiceSettled
	onInvoiceDefaulted  []OnInvoiceDefaulted
	onBidPlaced         []OnBidPlaced
	onBidAccepted       []OnBidAccepted
	onBidWithdrawn      []OnBidWithdrawn
	onBidExpired        []OnBidExpired
	onEscrowCreated     []OnEscrowCreated
	onEscrowReleased    []OnEscrowReleased
	onEscrowRefunded    []OnEscrowRefunded
	onInvestmentCreated []OnInvestmentCreated
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{logger: slog.Default()}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	var interfaces []string
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
		interfaces = append(interfaces, "OnInit")
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
		interfaces = append(interfaces, "OnShutdown")
	}
	if v, ok := p.(OnInvoiceUploaded); ok {
		r.onInvoiceUploaded = append(r.onInvoiceUploaded, v)
		interfaces = append(interfaces, "OnInvoiceUploaded")
	}
	if v, ok := p.(OnInvoiceVerified); ok {
		r.onInvoiceVerified = append(r.onInvoiceVerified, v)
		interfaces = append(interfaces, "OnInvoiceVerified")
	}
	if v, ok := p.(OnInvoiceCancelled); ok {
		r.onInvoiceCancelled = append(r.onInvoiceCancelled, v)
		interfaces = append(interfaces, "OnInvoiceCancelled")
	}
	if v, ok := p.(OnInvoiceFunded); ok {
		r.onInvoiceFunded = append(r.onInvoiceFunded, v)
		interfaces = append(interfaces, "OnInvoiceFunded")
	}
	if v, ok := p.(OnInvoiceSettled); ok {
		r.onInvoiceSettled = append(r.onInvoiceSettled, v)
		interfaces = append(interfaces, "OnInvoiceSettled")
	}
	if v, ok := p.(OnInvoiceDefaulted); ok {
		r.onInvoiceDefaulted = append(r.onInvoiceDefaulted, v)
		interfaces = append(interfaces, "OnInvoiceDefaulted")
	}
	if v, ok := p.(OnBidPlaced); ok {
		r.onBidPlaced = append(r.onBidPlaced, v)
		interfaces = append(interfaces, "OnBidPlaced")
	}
	if v, ok := p.(OnBidAccepted); ok {
		r.onBidAccepted = append(r.onBidAccepted, v)
		interfaces = append(interfaces, "OnBidAccepted")
	}
	if v, ok := p.(OnBidWithdrawn); ok {
		r.onBidWithdrawn = append(r.onBidWithdrawn, v)
		interfaces = append(interfaces, "OnBidWithdrawn")
	}
	if v, ok := p.(OnBidExpired); ok {
		r.onBidExpired = append(r.onBidExpired, v)
		interfaces = append(interfaces, "OnBidExpired")
	}
	if v, ok := p.(OnEscrowCreated); ok {
		r.onEscrowCreated = append(r.onEscrowCreated, v)
		interfaces = append(interfaces, "OnEscrowCreated")
	}
	if v, ok := p.(OnEscrowReleased); ok {
		r.onEscrowReleased = append(r.onEscrowReleased, v)
		interfaces = append(interfaces, "OnEscrowReleased")
	}
	if v, ok := p.(OnEscrowRefunded); ok {
		r.onEscrowRefunded = append(r.onEscrowRefunded, v)
		interfaces = append(interfaces, "OnEscrowRefunded")
	}
	if v, ok := p.(OnInvestmentCreated); ok {
		r.onInvestmentCreated = append(r.onInvestmentCreated, v)
		interfaces = append(interfaces, "OnInvestmentCreated")
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", interfaces,
	)

	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnInit", func() error {
			return p.OnInit(ctx, engine)
		})
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnShutdown", func() error {
			return p.OnShutdown(ctx)
		})
	}
}

// EmitInvoiceUploaded emits an invoice uploaded event.
func (r *Registry) EmitInvoiceUploaded(ctx context.Context, inv *invoice.Invoice) {
	r.mu.RLock()
	plugins := r.onInvoiceUploaded
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnInvoiceUploaded", func() error {
			return p.OnInvoiceUploaded(ctx, inv)
		})
	}
}

// EmitInvoiceVerified emits an invoice verified event.
func (r *Registry) EmitInvoiceVerified(ctx context.Context, inv *invoice.Invoice) {
	r.mu.RLock()
	plugins := r.onInvoiceVerified
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnInvoiceVerified", func() error {
			return p.OnInvoiceVerified(ctx, inv)
		})
	}
}

// EmitInvoiceCancelled emits an invoice cancelled event.
func (r *Registry) EmitInvoiceCancelled(ctx context.Context, inv *invoice.Invoice) {
	r.mu.RLock()
	plugins := r.onInvoiceCancelled
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnInvoiceCancelled", func() error {
			return p.OnInvoiceCancelled(ctx, inv)
		})
	}
}

// EmitInvoiceFunded emits an invoice funded event.
func (r *Registry) EmitInvoiceFunded(ctx context.Context, inv *invoice.Invoice) {
	r.mu.RLock()
	plugins := r.onInvoiceFunded
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnInvoiceFunded", func() error {
			return p.OnInvoiceFunded(ctx, inv)
		})
	}
}

// EmitInvoiceSettled emits an invoice settled event.
func (r *Registry) EmitInvoiceSettled(ctx context.Context, inv *invoice.Invoice, payout, fee types.Money) {
	r.mu.RLock()
	plugins := r.onInvoiceSettled
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnInvoiceSettled", func() error {
			return p.OnInvoiceSettled(ctx, inv, payout, fee)
		})
	}
}

// EmitInvoiceDefaulted emits an invoice defaulted event.
func (r *Registry) EmitInvoiceDefaulted(ctx context.Context, inv *invoice.Invoice) {
	r.mu.RLock()
	plugins := r.onInvoiceDefaulted
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnInvoiceDefaulted", func() error {
			return p.OnInvoiceDefaulted(ctx, inv)
		})
	}
}

// EmitBidPlaced emits a bid placed event.
func (r *Registry) EmitBidPlaced(ctx context.Context, b *bid.Bid) {
	r.mu.RLock()
	plugins := r.onBidPlaced
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnBidPlaced", func() error {
			return p.OnBidPlaced(ctx, b)
		})
	}
}

// EmitBidAccepted emits a bid accepted event.
func (r *Registry) EmitBidAccepted(ctx context.Context, b *bid.Bid) {
	r.mu.RLock()
	plugins := r.onBidAccepted
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnBidAccepted", func() error {
			return p.OnBidAccepted(ctx, b)
		})
	}
}

// EmitBidWithdrawn emits a bid withdrawn event.
func (r *Registry) EmitBidWithdrawn(ctx context.Context, b *bid.Bid) {
	r.mu.RLock()
	plugins := r.onBidWithdrawn
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnBidWithdrawn", func() error {
			return p.OnBidWithdrawn(ctx, b)
		})
	}
}

// EmitBidExpired emits a bid expired event.
func (r *Registry) EmitBidExpired(ctx context.Context, b *bid.Bid) {
	r.mu.RLock()
	plugins := r.onBidExpired
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnBidExpired", func() error {
			return p.OnBidExpired(ctx, b)
		})
	}
}

// EmitEscrowCreated emits an escrow created event.
func (r *Registry) EmitEscrowCreated(ctx context.Context, e *escrow.Escrow) {
	r.mu.RLock()
	plugins := r.onEscrowCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnEscrowCreated", func() error {
			return p.OnEscrowCreated(ctx, e)
		})
	}
}

// EmitEscrowReleased emits an escrow released event.
func (r *Registry) EmitEscrowReleased(ctx context.Context, e *escrow.Escrow, to string) {
	r.mu.RLock()
	plugins := r.onEscrowReleased
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnEscrowReleased", func() error {
			return p.OnEscrowReleased(ctx, e, to)
		})
	}
}

// EmitEscrowRefunded emits an escrow refunded event.
func (r *Registry) EmitEscrowRefunded(ctx context.Context, e *escrow.Escrow) {
	r.mu.RLock()
	plugins := r.onEscrowRefunded
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnEscrowRefunded", func() error {
			return p.OnEscrowRefunded(ctx, e)
		})
	}
}

// EmitInvestmentCreated emits an investment created event.
func (r *Registry) EmitInvestmentCreated(ctx context.Context, ivt *investment.Investment) {
	r.mu.RLock()
	plugins := r.onInvestmentCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnInvestmentCreated", func() error {
			return p.OnInvestmentCreated(ctx, ivt)
		})
	}
}

// dispatch calls a plugin hook with a timeout, logging failures.
// Plugin errors never propagate into the funding pipeline.
func (r *Registry) dispatch(ctx context.Context, pluginName, hook string, fn func() error) {
	if err := r.callWithTimeout(ctx, pluginName, fn); err != nil {
		r.logger.Warn("plugin hook failed",
			"plugin", pluginName,
			"hook", hook,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the funding pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
