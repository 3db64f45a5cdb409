package factoring

import (
	"context"
	"log/slog"
	"time"

	"github.com/fundflow/factoring/bid"
	"github.com/fundflow/factoring/escrow"
	"github.com/fundflow/factoring/fee"
	"github.com/fundflow/factoring/guard"
	"github.com/fundflow/factoring/id"
	"github.com/fundflow/factoring/invoice"
	"github.com/fundflow/factoring/investment"
	"github.com/fundflow/factoring/kyc"
	"github.com/fundflow/factoring/plugin"
	"github.com/fundflow/factoring/store"
	"github.com/fundflow/factoring/token"
)

// DefaultGracePeriod applies to invoices without a per-invoice override.
const DefaultGracePeriod = 30 * 24 * time.Hour

// DefaultCustodian is the account that holds escrowed funds when no
// custodian address is configured.
const DefaultCustodian = "custodian"

// Engine is the invoice-factoring escrow engine. It owns the
// bid-acceptance → escrow → investment state machine and the settlement
// and default transitions. All value movement goes through the configured
// token.Gateway; every fund-moving entry point is protected by the
// reentrancy guard and rolls back completely when a transfer fails.
type Engine struct {
	store   store.Store
	gateway token.Gateway
	feeCalc fee.Calculator
	oracle  kyc.Oracle
	plugins *plugin.Registry
	guard   *guard.Guard
	logger  *slog.Logger
	now     func() time.Time

	// Roles. The custodian holds escrowed funds; the treasury receives
	// settlement fees (custodian keeps them when unset); the admin may
	// verify invoices and operate escrows directly.
	custodian string
	treasury  string
	admin     string

	gracePeriod time.Duration
}

// New creates an Engine backed by the given store and transfer gateway.
func New(s store.Store, gw token.Gateway, opts ...Option) *Engine {
	e := &Engine{
		store:       s,
		gateway:     gw,
		feeCalc:     fee.None(),
		oracle:      kyc.AllowAll(),
		plugins:     plugin.NewRegistry(),
		guard:       guard.New(),
		logger:      slog.Default(),
		now:         func() time.Time { return time.Now().UTC() },
		custodian:   DefaultCustodian,
		gracePeriod: DefaultGracePeriod,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithFeeCalculator sets the settlement fee calculator.
func WithFeeCalculator(c fee.Calculator) Option {
	return func(e *Engine) {
		e.feeCalc = c
	}
}

// WithOracle sets the verification oracle checked on upload and bidding.
func WithOracle(o kyc.Oracle) Option {
	return func(e *Engine) {
		e.oracle = o
	}
}

// WithClock sets the time source. Tests use this to pin the grace boundary.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithGracePeriod sets the contract-wide default grace period.
func WithGracePeriod(d time.Duration) Option {
	return func(e *Engine) {
		e.gracePeriod = d
	}
}

// WithCustodian sets the account that holds escrowed funds.
func WithCustodian(address string) Option {
	return func(e *Engine) {
		e.custodian = address
	}
}

// WithTreasury sets the account receiving settlement fees.
func WithTreasury(address string) Option {
	return func(e *Engine) {
		e.treasury = address
	}
}

// WithAdmin sets the administrator address for privileged operations.
func WithAdmin(address string) Option {
	return func(e *Engine) {
		e.admin = address
	}
}

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("factoring engine started",
		"custodian", e.custodian,
		"grace_period", e.gracePeriod,
	)

	return nil
}

// Stop shuts down the engine.
func (e *Engine) Stop() error {
	e.plugins.EmitShutdown(context.Background())
	return e.store.Close()
}

// isAdmin reports whether the caller is the configured administrator.
// With no admin configured, no caller qualifies.
func (e *Engine) isAdmin(caller string) bool {
	return e.admin != "" && caller == e.admin
}

// feeRecipient returns where settlement fees are routed.
func (e *Engine) feeRecipient() string {
	if e.treasury != "" {
		return e.treasury
	}
	return e.custodian
}

// ──────────────────────────────────────────────────
// Read queries
// ──────────────────────────────────────────────────

// GetInvoice retrieves an invoice by ID.
func (e *Engine) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	return e.store.GetInvoice(ctx, invID)
}

// GetBid retrieves a bid by ID.
func (e *Engine) GetBid(ctx context.Context, bidID id.BidID) (*bid.Bid, error) {
	return e.store.GetBid(ctx, bidID)
}

// GetEscrow retrieves an escrow by ID.
func (e *Engine) GetEscrow(ctx context.Context, escID id.EscrowID) (*escrow.Escrow, error) {
	return e.store.GetEscrow(ctx, escID)
}

// GetInvestment retrieves an investment by ID.
func (e *Engine) GetInvestment(ctx context.Context, ivtID id.InvestmentID) (*investment.Investment, error) {
	return e.store.GetInvestment(ctx, ivtID)
}

// InvestmentByInvoice retrieves the investment funding an invoice.
func (e *Engine) InvestmentByInvoice(ctx context.Context, invID id.InvoiceID) (*investment.Investment, error) {
	return e.store.InvestmentByInvoice(ctx, invID)
}

// ListInvoicesByStatus lists invoices in a given status.
func (e *Engine) ListInvoicesByStatus(ctx context.Context, status invoice.Status, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	return e.store.ListInvoicesByStatus(ctx, status, opts)
}

// ListInvoicesByBusiness lists a business's invoices.
func (e *Engine) ListInvoicesByBusiness(ctx context.Context, business string, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	return e.store.ListInvoicesByBusiness(ctx, business, opts)
}

// ListBidsByInvoice lists bids on an invoice.
func (e *Engine) ListBidsByInvoice(ctx context.Context, invID id.InvoiceID, opts bid.ListOpts) ([]*bid.Bid, error) {
	return e.store.ListBidsByInvoice(ctx, invID, opts)
}

// ListInvestmentsByInvestor lists an investor's investments.
func (e *Engine) ListInvestmentsByInvestor(ctx context.Context, investor string, opts investment.ListOpts) ([]*investment.Investment, error) {
	return e.store.ListInvestmentsByInvestor(ctx, investor, opts)
}
