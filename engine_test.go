package factoring_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	factoring "github.com/fundflow/factoring"
	"github.com/fundflow/factoring/bid"
	"github.com/fundflow/factoring/escrow"
	"github.com/fundflow/factoring/fee"
	"github.com/fundflow/factoring/id"
	"github.com/fundflow/factoring/invoice"
	"github.com/fundflow/factoring/investment"
	"github.com/fundflow/factoring/store"
	storememory "github.com/fundflow/factoring/store/memory"
	"github.com/fundflow/factoring/token"
	tokenmemory "github.com/fundflow/factoring/token/memory"
	"github.com/fundflow/factoring/types"
)

const (
	business  = "acme"
	investor  = "investor-1"
	admin     = "admin"
	treasury  = "treasury"
	custodian = factoring.DefaultCustodian
)

// fakeClock is a mutable time source for pinning deadline boundaries.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// recorder is a plugin that records every event it observes.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) has(event string) bool {
	for _, e := range r.Events() {
		if e == event {
			return true
		}
	}
	return false
}

func (r *recorder) OnInvoiceUploaded(_ context.Context, _ *invoice.Invoice) error {
	r.add("invoice.uploaded")
	return nil
}

func (r *recorder) OnInvoiceVerified(_ context.Context, _ *invoice.Invoice) error {
	r.add("invoice.verified")
	return nil
}

func (r *recorder) OnInvoiceFunded(_ context.Context, _ *invoice.Invoice) error {
	r.add("invoice.funded")
	return nil
}

func (r *recorder) OnInvoiceSettled(_ context.Context, _ *invoice.Invoice, _, _ types.Money) error {
	r.add("invoice.settled")
	return nil
}

func (r *recorder) OnInvoiceDefaulted(_ context.Context, _ *invoice.Invoice) error {
	r.add("invoice.defaulted")
	return nil
}

func (r *recorder) OnBidPlaced(_ context.Context, _ *bid.Bid) error {
	r.add("bid.placed")
	return nil
}

func (r *recorder) OnBidAccepted(_ context.Context, _ *bid.Bid) error {
	r.add("bid.accepted")
	return nil
}

func (r *recorder) OnEscrowCreated(_ context.Context, _ *escrow.Escrow) error {
	r.add("escrow.created")
	return nil
}

func (r *recorder) OnEscrowReleased(_ context.Context, _ *escrow.Escrow, _ string) error {
	r.add("escrow.released")
	return nil
}

func (r *recorder) OnEscrowRefunded(_ context.Context, _ *escrow.Escrow) error {
	r.add("escrow.refunded")
	return nil
}

func (r *recorder) OnInvestmentCreated(_ context.Context, _ *investment.Investment) error {
	r.add("investment.created")
	return nil
}

type fixture struct {
	engine *factoring.Engine
	store  *storememory.Store
	bank   *tokenmemory.Bank
	clock  *fakeClock
	events *recorder
}

var testStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, opts ...factoring.Option) *fixture {
	t.Helper()

	st := storememory.New()
	bank := tokenmemory.New()
	clock := newFakeClock(testStart)
	events := &recorder{}

	base := []factoring.Option{
		factoring.WithLogger(quietLogger()),
		factoring.WithClock(clock.Now),
		factoring.WithAdmin(admin),
		factoring.WithTreasury(treasury),
		factoring.WithFeeCalculator(fee.BasisPoints(250)),
		factoring.WithPlugin(events),
	}
	engine := factoring.New(st, bank, append(base, opts...)...)
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = engine.Stop() })

	return &fixture{engine: engine, store: st, bank: bank, clock: clock, events: events}
}

// uploadVerified uploads and verifies an invoice due one month out.
func (f *fixture) uploadVerified(t *testing.T) *invoice.Invoice {
	t.Helper()

	inv := &invoice.Invoice{
		Business: business,
		Amount:   types.USD(1_000_000),
		DueDate:  testStart.AddDate(0, 1, 0),
	}
	if err := f.engine.UploadInvoice(context.Background(), inv); err != nil {
		t.Fatalf("UploadInvoice: %v", err)
	}
	if _, err := f.engine.VerifyInvoice(context.Background(), inv.ID, admin); err != nil {
		t.Fatalf("VerifyInvoice: %v", err)
	}
	return inv
}

// placeBid places a 900k bid expecting the full face value back.
func (f *fixture) placeBid(t *testing.T, invID id.InvoiceID) *bid.Bid {
	t.Helper()

	b := &bid.Bid{
		InvoiceID:      invID,
		Investor:       investor,
		Amount:         types.USD(900_000),
		ExpectedReturn: types.USD(1_000_000),
	}
	if err := f.engine.PlaceBid(context.Background(), b); err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}
	return b
}

// fund runs the whole happy path up to a funded invoice.
func (f *fixture) fund(t *testing.T) (*invoice.Invoice, *bid.Bid, *escrow.Escrow) {
	t.Helper()

	inv := f.uploadVerified(t)
	b := f.placeBid(t, inv.ID)
	f.bank.Deposit(investor, types.USD(900_000))

	esc, err := f.engine.AcceptBidAndFund(context.Background(), b.ID, business)
	if err != nil {
		t.Fatalf("AcceptBidAndFund: %v", err)
	}
	return inv, b, esc
}

// ──────────────────────────────────────────────────
// Invoice and bid lifecycle
// ──────────────────────────────────────────────────

func TestUploadInvoiceValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		inv  *invoice.Invoice
	}{
		{"missing business", &invoice.Invoice{Amount: types.USD(100), DueDate: testStart.AddDate(0, 1, 0)}},
		{"zero amount", &invoice.Invoice{Business: business, DueDate: testStart.AddDate(0, 1, 0)}},
		{"negative amount", &invoice.Invoice{Business: business, Amount: types.USD(-5), DueDate: testStart.AddDate(0, 1, 0)}},
		{"missing due date", &invoice.Invoice{Business: business, Amount: types.USD(100)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.engine.UploadInvoice(ctx, tt.inv); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestUploadInvoiceStartsPending(t *testing.T) {
	f := newFixture(t)

	inv := &invoice.Invoice{
		Business: business,
		Amount:   types.USD(1_000_000),
		DueDate:  testStart.AddDate(0, 1, 0),
	}
	if err := f.engine.UploadInvoice(context.Background(), inv); err != nil {
		t.Fatalf("UploadInvoice: %v", err)
	}
	if inv.Status != invoice.StatusPending {
		t.Errorf("status = %q, want pending", inv.Status)
	}
	if inv.ID.IsNil() {
		t.Error("invoice was not assigned an ID")
	}
	if !f.events.has("invoice.uploaded") {
		t.Error("invoice.uploaded event not emitted")
	}
}

func TestVerifyInvoiceAdminOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv := &invoice.Invoice{
		Business: business,
		Amount:   types.USD(1_000_000),
		DueDate:  testStart.AddDate(0, 1, 0),
	}
	if err := f.engine.UploadInvoice(ctx, inv); err != nil {
		t.Fatalf("UploadInvoice: %v", err)
	}

	if _, err := f.engine.VerifyInvoice(ctx, inv.ID, business); !errors.Is(err, factoring.ErrUnauthorized) {
		t.Fatalf("non-admin verify: got %v, want ErrUnauthorized", err)
	}

	verified, err := f.engine.VerifyInvoice(ctx, inv.ID, admin)
	if err != nil {
		t.Fatalf("VerifyInvoice: %v", err)
	}
	if verified.Status != invoice.StatusVerified {
		t.Errorf("status = %q, want verified", verified.Status)
	}

	// Verifying twice is a state error.
	if _, err := f.engine.VerifyInvoice(ctx, inv.ID, admin); !errors.Is(err, factoring.ErrInvalidInvoiceStatus) {
		t.Errorf("double verify: got %v, want ErrInvalidInvoiceStatus", err)
	}
}

func TestCancelInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv := f.uploadVerified(t)

	if _, err := f.engine.CancelInvoice(ctx, inv.ID, "stranger"); !errors.Is(err, factoring.ErrUnauthorized) {
		t.Fatalf("stranger cancel: got %v, want ErrUnauthorized", err)
	}

	cancelled, err := f.engine.CancelInvoice(ctx, inv.ID, business)
	if err != nil {
		t.Fatalf("CancelInvoice: %v", err)
	}
	if cancelled.Status != invoice.StatusCancelled || cancelled.CancelledAt == nil {
		t.Errorf("cancelled invoice: status = %q, cancelledAt = %v", cancelled.Status, cancelled.CancelledAt)
	}
}

func TestCancelFundedInvoiceRejected(t *testing.T) {
	f := newFixture(t)

	inv, _, _ := f.fund(t)

	if _, err := f.engine.CancelInvoice(context.Background(), inv.ID, business); !errors.Is(err, factoring.ErrInvalidInvoiceStatus) {
		t.Fatalf("cancel funded: got %v, want ErrInvalidInvoiceStatus", err)
	}
}

func TestPlaceBidRequiresVerifiedInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv := &invoice.Invoice{
		Business: business,
		Amount:   types.USD(1_000_000),
		DueDate:  testStart.AddDate(0, 1, 0),
	}
	if err := f.engine.UploadInvoice(ctx, inv); err != nil {
		t.Fatalf("UploadInvoice: %v", err)
	}

	b := &bid.Bid{
		InvoiceID:      inv.ID,
		Investor:       investor,
		Amount:         types.USD(900_000),
		ExpectedReturn: types.USD(1_000_000),
	}
	if err := f.engine.PlaceBid(ctx, b); !errors.Is(err, factoring.ErrInvalidInvoiceStatus) {
		t.Fatalf("bid on pending invoice: got %v, want ErrInvalidInvoiceStatus", err)
	}
}

func TestPlaceBidCurrencyMismatch(t *testing.T) {
	f := newFixture(t)

	inv := f.uploadVerified(t)
	b := &bid.Bid{
		InvoiceID:      inv.ID,
		Investor:       investor,
		Amount:         types.EUR(900_000),
		ExpectedReturn: types.EUR(1_000_000),
	}
	if err := f.engine.PlaceBid(context.Background(), b); !errors.Is(err, factoring.ErrInvalidAmount) {
		t.Fatalf("currency mismatch: got %v, want ErrInvalidAmount", err)
	}
}

func TestWithdrawBid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv := f.uploadVerified(t)
	b := f.placeBid(t, inv.ID)

	if _, err := f.engine.WithdrawBid(ctx, b.ID, "stranger"); !errors.Is(err, factoring.ErrUnauthorized) {
		t.Fatalf("stranger withdraw: got %v, want ErrUnauthorized", err)
	}

	withdrawn, err := f.engine.WithdrawBid(ctx, b.ID, investor)
	if err != nil {
		t.Fatalf("WithdrawBid: %v", err)
	}
	if withdrawn.Status != bid.StatusWithdrawn || withdrawn.WithdrawnAt == nil {
		t.Errorf("withdrawn bid: status = %q, withdrawnAt = %v", withdrawn.Status, withdrawn.WithdrawnAt)
	}

	if _, err := f.engine.WithdrawBid(ctx, b.ID, investor); !errors.Is(err, factoring.ErrInvalidBidStatus) {
		t.Errorf("double withdraw: got %v, want ErrInvalidBidStatus", err)
	}
}

func TestExpireBid(t *testing.T) {
	f := newFixture(t)

	inv := f.uploadVerified(t)
	b := f.placeBid(t, inv.ID)

	expired, err := f.engine.ExpireBid(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("ExpireBid: %v", err)
	}
	if expired.Status != bid.StatusExpired {
		t.Errorf("status = %q, want expired", expired.Status)
	}
}

// ──────────────────────────────────────────────────
// Accept bid and fund
// ──────────────────────────────────────────────────

func TestAcceptBidAndFund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, b, esc := f.fund(t)

	if esc.Status != escrow.StatusLocked {
		t.Errorf("escrow status = %q, want locked", esc.Status)
	}
	if !esc.Amount.Equal(types.USD(900_000)) {
		t.Errorf("escrow amount = %s, want $9,000.00", esc.Amount)
	}

	gotInv, _ := f.engine.GetInvoice(ctx, inv.ID)
	if gotInv.Status != invoice.StatusFunded || gotInv.FundedAt == nil {
		t.Errorf("invoice: status = %q, fundedAt = %v", gotInv.Status, gotInv.FundedAt)
	}

	gotBid, _ := f.engine.GetBid(ctx, b.ID)
	if gotBid.Status != bid.StatusAccepted || gotBid.AcceptedAt == nil {
		t.Errorf("bid: status = %q, acceptedAt = %v", gotBid.Status, gotBid.AcceptedAt)
	}

	ivt, err := f.engine.InvestmentByInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("InvestmentByInvoice: %v", err)
	}
	if ivt.Status != investment.StatusActive {
		t.Errorf("investment status = %q, want active", ivt.Status)
	}
	if ivt.EscrowID != esc.ID || ivt.Investor != investor {
		t.Errorf("investment links: escrow = %s, investor = %q", ivt.EscrowID, ivt.Investor)
	}

	// Funds moved investor → custodian.
	if got := f.bank.Balance(investor, "usd"); !got.IsZero() {
		t.Errorf("investor balance = %s, want zero", got)
	}
	if got := f.bank.Balance(custodian, "usd"); !got.Equal(types.USD(900_000)) {
		t.Errorf("custodian balance = %s, want $9,000.00", got)
	}

	for _, event := range []string{"bid.accepted", "escrow.created", "investment.created", "invoice.funded"} {
		if !f.events.has(event) {
			t.Errorf("event %s not emitted", event)
		}
	}
}

func TestAcceptBidAndFundOnlyBusinessOwner(t *testing.T) {
	f := newFixture(t)

	inv := f.uploadVerified(t)
	b := f.placeBid(t, inv.ID)

	if _, err := f.engine.AcceptBidAndFund(context.Background(), b.ID, investor); !errors.Is(err, factoring.ErrUnauthorized) {
		t.Fatalf("investor accepting own bid: got %v, want ErrUnauthorized", err)
	}
}

func TestAcceptBidAndFundRequiresOpenBid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv := f.uploadVerified(t)
	b := f.placeBid(t, inv.ID)
	if _, err := f.engine.WithdrawBid(ctx, b.ID, investor); err != nil {
		t.Fatalf("WithdrawBid: %v", err)
	}

	if _, err := f.engine.AcceptBidAndFund(ctx, b.ID, business); !errors.Is(err, factoring.ErrInvalidBidStatus) {
		t.Fatalf("accept withdrawn bid: got %v, want ErrInvalidBidStatus", err)
	}
}

func TestAcceptBidAndFundNoDoubleFund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv := f.uploadVerified(t)
	first := f.placeBid(t, inv.ID)
	second := f.placeBid(t, inv.ID)
	f.bank.Deposit(investor, types.USD(1_800_000))

	if _, err := f.engine.AcceptBidAndFund(ctx, first.ID, business); err != nil {
		t.Fatalf("first accept: %v", err)
	}

	// The invoice is funded now, so the second bid cannot be accepted.
	if _, err := f.engine.AcceptBidAndFund(ctx, second.ID, business); !errors.Is(err, factoring.ErrInvalidInvoiceStatus) {
		t.Fatalf("second accept: got %v, want ErrInvalidInvoiceStatus", err)
	}

	// Only the first bid's funds moved.
	if got := f.bank.Balance(custodian, "usd"); !got.Equal(types.USD(900_000)) {
		t.Errorf("custodian balance = %s, want $9,000.00", got)
	}
}

// brokenEscrowStore fails the active-escrow lookup with a backend error.
type brokenEscrowStore struct {
	store.Store
	err error
}

func (s *brokenEscrowStore) ActiveEscrowByInvoice(_ context.Context, _ id.InvoiceID) (*escrow.Escrow, error) {
	return nil, s.err
}

func TestAcceptBidAndFundPropagatesEscrowLookupFailure(t *testing.T) {
	backendErr := errors.New("connection reset")
	broken := &brokenEscrowStore{Store: storememory.New(), err: backendErr}
	clock := newFakeClock(testStart)
	bank := tokenmemory.New()

	engine := factoring.New(broken, bank,
		factoring.WithLogger(quietLogger()),
		factoring.WithClock(clock.Now),
		factoring.WithAdmin(admin),
	)
	ctx := context.Background()

	inv := &invoice.Invoice{
		Business: business,
		Amount:   types.USD(1_000_000),
		DueDate:  testStart.AddDate(0, 1, 0),
	}
	if err := engine.UploadInvoice(ctx, inv); err != nil {
		t.Fatalf("UploadInvoice: %v", err)
	}
	if _, err := engine.VerifyInvoice(ctx, inv.ID, admin); err != nil {
		t.Fatalf("VerifyInvoice: %v", err)
	}
	b := &bid.Bid{
		InvoiceID:      inv.ID,
		Investor:       investor,
		Amount:         types.USD(900_000),
		ExpectedReturn: types.USD(1_000_000),
	}
	if err := engine.PlaceBid(ctx, b); err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}
	bank.Deposit(investor, types.USD(900_000))

	// A failing lookup is not evidence that no escrow exists. The error
	// must surface instead of being swallowed as "no active escrow".
	_, err := engine.AcceptBidAndFund(ctx, b.ID, business)
	if !errors.Is(err, backendErr) {
		t.Fatalf("got %v, want wrapped backend error", err)
	}
	if errors.Is(err, factoring.ErrDuplicateEscrow) {
		t.Error("backend failure misreported as duplicate escrow")
	}

	// Nothing was written or transferred.
	gotBid, _ := engine.GetBid(ctx, b.ID)
	if gotBid.Status != bid.StatusPlaced {
		t.Errorf("bid status = %q, want placed", gotBid.Status)
	}
	if got := bank.Balance(investor, "usd"); !got.Equal(types.USD(900_000)) {
		t.Errorf("investor balance = %s, want $9,000.00", got)
	}
}

func TestAcceptBidAndFundTransferFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv := f.uploadVerified(t)
	b := f.placeBid(t, inv.ID)
	// No deposit: the transfer will fail on insufficient funds.

	_, err := f.engine.AcceptBidAndFund(ctx, b.ID, business)
	if !errors.Is(err, factoring.ErrTransferFailed) {
		t.Fatalf("got %v, want ErrTransferFailed", err)
	}
	if !factoring.IsRetryable(err) {
		t.Error("transfer failure should be retryable")
	}

	// Every write was compensated.
	gotInv, _ := f.engine.GetInvoice(ctx, inv.ID)
	if gotInv.Status != invoice.StatusVerified {
		t.Errorf("invoice status = %q, want verified", gotInv.Status)
	}
	gotBid, _ := f.engine.GetBid(ctx, b.ID)
	if gotBid.Status != bid.StatusPlaced {
		t.Errorf("bid status = %q, want placed", gotBid.Status)
	}
	if _, err := f.engine.InvestmentByInvoice(ctx, inv.ID); !errors.Is(err, factoring.ErrInvestmentNotFound) {
		t.Errorf("investment after rollback: got %v, want ErrInvestmentNotFound", err)
	}

	// No funding events leaked.
	for _, event := range []string{"bid.accepted", "escrow.created", "investment.created", "invoice.funded"} {
		if f.events.has(event) {
			t.Errorf("event %s emitted despite rollback", event)
		}
	}

	// The operation can be retried once funds exist.
	f.bank.Deposit(investor, types.USD(900_000))
	if _, err := f.engine.AcceptBidAndFund(ctx, b.ID, business); err != nil {
		t.Fatalf("retry after rollback: %v", err)
	}
}

// reentrantGateway wraps a bank and calls back into the engine in the
// middle of the outer transfer, simulating a malicious token contract.
type reentrantGateway struct {
	bank     *tokenmemory.Bank
	engine   *factoring.Engine
	bidID    id.BidID
	caller   string
	innerErr error
	called   bool
}

func (g *reentrantGateway) Transfer(ctx context.Context, from, to string, amount types.Money) error {
	if !g.called {
		g.called = true
		_, g.innerErr = g.engine.AcceptBidAndFund(ctx, g.bidID, g.caller)
	}
	return g.bank.Transfer(ctx, from, to, amount)
}

func TestAcceptBidAndFundReentrancyRejected(t *testing.T) {
	bank := tokenmemory.New()
	gw := &reentrantGateway{bank: bank}
	clock := newFakeClock(testStart)

	engine := factoring.New(storememory.New(), gw,
		factoring.WithLogger(quietLogger()),
		factoring.WithClock(clock.Now),
		factoring.WithAdmin(admin),
	)
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx := context.Background()

	inv := &invoice.Invoice{
		Business: business,
		Amount:   types.USD(1_000_000),
		DueDate:  testStart.AddDate(0, 1, 0),
	}
	if err := engine.UploadInvoice(ctx, inv); err != nil {
		t.Fatalf("UploadInvoice: %v", err)
	}
	if _, err := engine.VerifyInvoice(ctx, inv.ID, admin); err != nil {
		t.Fatalf("VerifyInvoice: %v", err)
	}
	b := &bid.Bid{
		InvoiceID:      inv.ID,
		Investor:       investor,
		Amount:         types.USD(900_000),
		ExpectedReturn: types.USD(1_000_000),
	}
	if err := engine.PlaceBid(ctx, b); err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}
	bank.Deposit(investor, types.USD(900_000))

	gw.engine = engine
	gw.bidID = b.ID
	gw.caller = business

	if _, err := engine.AcceptBidAndFund(ctx, b.ID, business); err != nil {
		t.Fatalf("outer AcceptBidAndFund: %v", err)
	}
	if !gw.called {
		t.Fatal("reentrant gateway was never invoked")
	}
	if !errors.Is(gw.innerErr, factoring.ErrReentrancy) {
		t.Fatalf("inner call: got %v, want ErrReentrancy", gw.innerErr)
	}

	// Exactly one funding happened.
	if got := bank.Balance(custodian, "usd"); !got.Equal(types.USD(900_000)) {
		t.Errorf("custodian balance = %s, want $9,000.00", got)
	}
}

func TestGuardReleasedAfterFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv := f.uploadVerified(t)
	b := f.placeBid(t, inv.ID)

	// First attempt fails on funds; the guard must be free afterwards.
	if _, err := f.engine.AcceptBidAndFund(ctx, b.ID, business); !errors.Is(err, factoring.ErrTransferFailed) {
		t.Fatalf("got %v, want ErrTransferFailed", err)
	}

	f.bank.Deposit(investor, types.USD(900_000))
	if _, err := f.engine.AcceptBidAndFund(ctx, b.ID, business); err != nil {
		t.Fatalf("second attempt blocked: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Settlement
// ──────────────────────────────────────────────────

func TestSettleInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, _, esc := f.fund(t)
	f.bank.Deposit(business, types.USD(1_000_000))

	settled, err := f.engine.SettleInvoice(ctx, inv.ID, business, types.USD(1_000_000))
	if err != nil {
		t.Fatalf("SettleInvoice: %v", err)
	}
	if settled.Status != invoice.StatusPaid || settled.PaidAt == nil {
		t.Errorf("invoice: status = %q, paidAt = %v", settled.Status, settled.PaidAt)
	}

	// Profit 100_000, fee 250bps = 2_500, payout 997_500.
	if got := f.bank.Balance(investor, "usd"); !got.Equal(types.USD(997_500)) {
		t.Errorf("investor balance = %s, want $9,975.00", got)
	}
	if got := f.bank.Balance(treasury, "usd"); !got.Equal(types.USD(2_500)) {
		t.Errorf("treasury balance = %s, want $25.00", got)
	}
	if got := f.bank.Balance(business, "usd"); !got.IsZero() {
		t.Errorf("business balance = %s, want zero", got)
	}
	// Custodian still holds the original principal.
	if got := f.bank.Balance(custodian, "usd"); !got.Equal(types.USD(900_000)) {
		t.Errorf("custodian balance = %s, want $9,000.00", got)
	}

	gotEsc, _ := f.engine.GetEscrow(ctx, esc.ID)
	if gotEsc.Status != escrow.StatusReleased || gotEsc.ReleasedAt == nil {
		t.Errorf("escrow: status = %q, releasedAt = %v", gotEsc.Status, gotEsc.ReleasedAt)
	}

	ivt, _ := f.engine.InvestmentByInvoice(ctx, inv.ID)
	if ivt.Status != investment.StatusCompleted || ivt.CompletedAt == nil {
		t.Errorf("investment: status = %q, completedAt = %v", ivt.Status, ivt.CompletedAt)
	}

	if !f.events.has("invoice.settled") || !f.events.has("escrow.released") {
		t.Error("settlement events not emitted")
	}
}

func TestSettleInvoiceShortPaymentNoFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, _, _ := f.fund(t)
	f.bank.Deposit(business, types.USD(800_000))

	// Payment below principal: profit floors at zero, so no fee is taken
	// and the investor receives the whole payment.
	if _, err := f.engine.SettleInvoice(ctx, inv.ID, business, types.USD(800_000)); err != nil {
		t.Fatalf("SettleInvoice: %v", err)
	}

	if got := f.bank.Balance(investor, "usd"); !got.Equal(types.USD(800_000)) {
		t.Errorf("investor balance = %s, want $8,000.00", got)
	}
	if got := f.bank.Balance(treasury, "usd"); !got.IsZero() {
		t.Errorf("treasury balance = %s, want zero", got)
	}
}

func TestSettleInvoicePreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, _, _ := f.fund(t)
	f.bank.Deposit(business, types.USD(1_000_000))

	if _, err := f.engine.SettleInvoice(ctx, inv.ID, "stranger", types.USD(1_000_000)); !errors.Is(err, factoring.ErrUnauthorized) {
		t.Errorf("stranger settle: got %v, want ErrUnauthorized", err)
	}
	if _, err := f.engine.SettleInvoice(ctx, inv.ID, business, types.USD(0)); !errors.Is(err, factoring.ErrInvalidAmount) {
		t.Errorf("zero payment: got %v, want ErrInvalidAmount", err)
	}
	if _, err := f.engine.SettleInvoice(ctx, inv.ID, business, types.EUR(1_000_000)); !errors.Is(err, factoring.ErrInvalidAmount) {
		t.Errorf("wrong currency: got %v, want ErrInvalidAmount", err)
	}

	if _, err := f.engine.SettleInvoice(ctx, inv.ID, business, types.USD(1_000_000)); err != nil {
		t.Fatalf("SettleInvoice: %v", err)
	}
	if _, err := f.engine.SettleInvoice(ctx, inv.ID, business, types.USD(1_000_000)); !errors.Is(err, factoring.ErrInvalidInvoiceStatus) {
		t.Errorf("double settle: got %v, want ErrInvalidInvoiceStatus", err)
	}
}

func TestSettleInvoiceTransferFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, _, esc := f.fund(t)
	// Business has no funds, so collecting the payment fails.

	if _, err := f.engine.SettleInvoice(ctx, inv.ID, business, types.USD(1_000_000)); !errors.Is(err, factoring.ErrTransferFailed) {
		t.Fatalf("got %v, want ErrTransferFailed", err)
	}

	gotInv, _ := f.engine.GetInvoice(ctx, inv.ID)
	if gotInv.Status != invoice.StatusFunded {
		t.Errorf("invoice status = %q, want funded", gotInv.Status)
	}
	gotEsc, _ := f.engine.GetEscrow(ctx, esc.ID)
	if gotEsc.Status != escrow.StatusLocked {
		t.Errorf("escrow status = %q, want locked", gotEsc.Status)
	}
	ivt, _ := f.engine.InvestmentByInvoice(ctx, inv.ID)
	if ivt.Status != investment.StatusActive {
		t.Errorf("investment status = %q, want active", ivt.Status)
	}
	if f.events.has("invoice.settled") {
		t.Error("invoice.settled emitted despite rollback")
	}
}

// ──────────────────────────────────────────────────
// Expiration and default
// ──────────────────────────────────────────────────

func TestCheckInvoiceExpirationBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, _, _ := f.fund(t)
	deadline := inv.DueDate.Add(factoring.DefaultGracePeriod)

	// At exactly due date plus grace the invoice is still current.
	f.clock.Set(deadline)
	expired, err := f.engine.CheckInvoiceExpiration(ctx, inv.ID)
	if err != nil {
		t.Fatalf("CheckInvoiceExpiration: %v", err)
	}
	if expired {
		t.Error("invoice expired at the exact deadline, boundary must be exclusive")
	}

	f.clock.Set(deadline.Add(time.Second))
	expired, err = f.engine.CheckInvoiceExpiration(ctx, inv.ID)
	if err != nil {
		t.Fatalf("CheckInvoiceExpiration: %v", err)
	}
	if !expired {
		t.Error("invoice not expired one second past the deadline")
	}
}

func TestCheckInvoiceExpirationPerInvoiceGrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	grace := 48 * time.Hour
	inv := &invoice.Invoice{
		Business:    business,
		Amount:      types.USD(1_000_000),
		DueDate:     testStart.AddDate(0, 1, 0),
		GracePeriod: &grace,
	}
	if err := f.engine.UploadInvoice(ctx, inv); err != nil {
		t.Fatalf("UploadInvoice: %v", err)
	}
	if _, err := f.engine.VerifyInvoice(ctx, inv.ID, admin); err != nil {
		t.Fatalf("VerifyInvoice: %v", err)
	}
	b := f.placeBid(t, inv.ID)
	f.bank.Deposit(investor, types.USD(900_000))
	if _, err := f.engine.AcceptBidAndFund(ctx, b.ID, business); err != nil {
		t.Fatalf("AcceptBidAndFund: %v", err)
	}

	// The 48h override beats the engine-wide 30-day default.
	f.clock.Set(inv.DueDate.Add(grace).Add(time.Second))
	expired, err := f.engine.CheckInvoiceExpiration(ctx, inv.ID)
	if err != nil {
		t.Fatalf("CheckInvoiceExpiration: %v", err)
	}
	if !expired {
		t.Error("per-invoice grace override not honored")
	}
}

func TestCheckInvoiceExpirationOnlyFunded(t *testing.T) {
	f := newFixture(t)

	inv := f.uploadVerified(t)
	f.clock.Set(inv.DueDate.Add(factoring.DefaultGracePeriod).AddDate(1, 0, 0))

	expired, err := f.engine.CheckInvoiceExpiration(context.Background(), inv.ID)
	if err != nil {
		t.Fatalf("CheckInvoiceExpiration: %v", err)
	}
	if expired {
		t.Error("unfunded invoice reported expired")
	}
}

func TestMarkInvoiceDefaulted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, _, esc := f.fund(t)
	f.clock.Set(inv.DueDate.Add(factoring.DefaultGracePeriod).Add(time.Second))

	defaulted, err := f.engine.MarkInvoiceDefaulted(ctx, inv.ID)
	if err != nil {
		t.Fatalf("MarkInvoiceDefaulted: %v", err)
	}
	if defaulted.Status != invoice.StatusDefaulted || defaulted.DefaultedAt == nil {
		t.Errorf("invoice: status = %q, defaultedAt = %v", defaulted.Status, defaulted.DefaultedAt)
	}

	// Principal returned to the investor.
	if got := f.bank.Balance(investor, "usd"); !got.Equal(types.USD(900_000)) {
		t.Errorf("investor balance = %s, want $9,000.00", got)
	}
	if got := f.bank.Balance(custodian, "usd"); !got.IsZero() {
		t.Errorf("custodian balance = %s, want zero", got)
	}

	gotEsc, _ := f.engine.GetEscrow(ctx, esc.ID)
	if gotEsc.Status != escrow.StatusRefunded || gotEsc.RefundedAt == nil {
		t.Errorf("escrow: status = %q, refundedAt = %v", gotEsc.Status, gotEsc.RefundedAt)
	}

	ivt, _ := f.engine.InvestmentByInvoice(ctx, inv.ID)
	if ivt.Status != investment.StatusDefaulted || ivt.DefaultedAt == nil {
		t.Errorf("investment: status = %q, defaultedAt = %v", ivt.Status, ivt.DefaultedAt)
	}

	if !f.events.has("invoice.defaulted") || !f.events.has("escrow.refunded") {
		t.Error("default events not emitted")
	}
}

func TestMarkInvoiceDefaultedIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, _, _ := f.fund(t)
	f.clock.Set(inv.DueDate.Add(factoring.DefaultGracePeriod).Add(time.Second))

	if _, err := f.engine.MarkInvoiceDefaulted(ctx, inv.ID); err != nil {
		t.Fatalf("MarkInvoiceDefaulted: %v", err)
	}
	if _, err := f.engine.MarkInvoiceDefaulted(ctx, inv.ID); !errors.Is(err, factoring.ErrInvalidInvoiceStatus) {
		t.Fatalf("second default: got %v, want ErrInvalidInvoiceStatus", err)
	}

	// No double refund.
	if got := f.bank.Balance(investor, "usd"); !got.Equal(types.USD(900_000)) {
		t.Errorf("investor balance = %s, want $9,000.00", got)
	}
}

func TestMarkInvoiceDefaultedBeforeDeadline(t *testing.T) {
	f := newFixture(t)

	inv, _, _ := f.fund(t)
	f.clock.Set(inv.DueDate.Add(factoring.DefaultGracePeriod))

	if _, err := f.engine.MarkInvoiceDefaulted(context.Background(), inv.ID); !errors.Is(err, factoring.ErrInvoiceNotExpired) {
		t.Fatalf("default at deadline: got %v, want ErrInvoiceNotExpired", err)
	}
}

func TestNoSettleAfterDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, _, _ := f.fund(t)
	f.clock.Set(inv.DueDate.Add(factoring.DefaultGracePeriod).Add(time.Second))
	if _, err := f.engine.MarkInvoiceDefaulted(ctx, inv.ID); err != nil {
		t.Fatalf("MarkInvoiceDefaulted: %v", err)
	}

	f.bank.Deposit(business, types.USD(1_000_000))
	if _, err := f.engine.SettleInvoice(ctx, inv.ID, business, types.USD(1_000_000)); !errors.Is(err, factoring.ErrInvalidInvoiceStatus) {
		t.Fatalf("settle after default: got %v, want ErrInvalidInvoiceStatus", err)
	}
}

func TestCheckExpiredInvoices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, _, _ := f.fund(t)
	current := f.uploadVerified(t)

	f.clock.Set(inv.DueDate.Add(factoring.DefaultGracePeriod).Add(time.Hour))

	expired, err := f.engine.CheckExpiredInvoices(ctx)
	if err != nil {
		t.Fatalf("CheckExpiredInvoices: %v", err)
	}
	if len(expired) != 1 || expired[0] != inv.ID {
		t.Fatalf("expired = %v, want [%s]", expired, inv.ID)
	}

	// The sweep changed nothing.
	gotInv, _ := f.engine.GetInvoice(ctx, inv.ID)
	if gotInv.Status != invoice.StatusFunded {
		t.Errorf("swept invoice status = %q, want funded", gotInv.Status)
	}
	gotCurrent, _ := f.engine.GetInvoice(ctx, current.ID)
	if gotCurrent.Status != invoice.StatusVerified {
		t.Errorf("verified invoice status = %q, want verified", gotCurrent.Status)
	}
}

func TestCheckExpiredInvoicesPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Enough funded invoices to force the sweep through multiple pages.
	const total = 250
	due := testStart.AddDate(0, -3, 0)
	want := make(map[id.InvoiceID]bool, total)
	for range total {
		inv := &invoice.Invoice{
			Entity:   types.NewEntityAt(testStart.AddDate(0, -4, 0)),
			ID:       id.NewInvoiceID(),
			Business: business,
			Amount:   types.USD(1_000_000),
			DueDate:  due,
			Status:   invoice.StatusFunded,
		}
		if err := f.store.CreateInvoice(ctx, inv); err != nil {
			t.Fatalf("CreateInvoice: %v", err)
		}
		want[inv.ID] = true
	}

	expired, err := f.engine.CheckExpiredInvoices(ctx)
	if err != nil {
		t.Fatalf("CheckExpiredInvoices: %v", err)
	}
	if len(expired) != total {
		t.Fatalf("expired = %d invoices, want %d", len(expired), total)
	}
	seen := make(map[id.InvoiceID]bool, total)
	for _, invID := range expired {
		if !want[invID] {
			t.Errorf("unexpected invoice %s in sweep", invID)
		}
		if seen[invID] {
			t.Errorf("invoice %s reported twice", invID)
		}
		seen[invID] = true
	}
}

// ──────────────────────────────────────────────────
// Escrow escape hatches
// ──────────────────────────────────────────────────

func TestReleaseEscrowAdminOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, esc := f.fund(t)

	if _, err := f.engine.ReleaseEscrow(ctx, esc.ID, business, investor); !errors.Is(err, factoring.ErrUnauthorized) {
		t.Fatalf("non-admin release: got %v, want ErrUnauthorized", err)
	}

	released, err := f.engine.ReleaseEscrow(ctx, esc.ID, admin, investor)
	if err != nil {
		t.Fatalf("ReleaseEscrow: %v", err)
	}
	if released.Status != escrow.StatusReleased {
		t.Errorf("status = %q, want released", released.Status)
	}
	if got := f.bank.Balance(investor, "usd"); !got.Equal(types.USD(900_000)) {
		t.Errorf("investor balance = %s, want $9,000.00", got)
	}

	if _, err := f.engine.ReleaseEscrow(ctx, esc.ID, admin, investor); !errors.Is(err, factoring.ErrInvalidEscrowStatus) {
		t.Errorf("double release: got %v, want ErrInvalidEscrowStatus", err)
	}
}

func TestRefundEscrow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, _, esc := f.fund(t)

	refunded, err := f.engine.RefundEscrow(ctx, esc.ID, business)
	if err != nil {
		t.Fatalf("RefundEscrow: %v", err)
	}
	if refunded.Status != escrow.StatusRefunded {
		t.Errorf("escrow status = %q, want refunded", refunded.Status)
	}

	if got := f.bank.Balance(investor, "usd"); !got.Equal(types.USD(900_000)) {
		t.Errorf("investor balance = %s, want $9,000.00", got)
	}

	gotInv, _ := f.engine.GetInvoice(ctx, inv.ID)
	if gotInv.Status != invoice.StatusRefunded {
		t.Errorf("invoice status = %q, want refunded", gotInv.Status)
	}
	ivt, _ := f.engine.InvestmentByInvoice(ctx, inv.ID)
	if ivt.Status != investment.StatusRefunded {
		t.Errorf("investment status = %q, want refunded", ivt.Status)
	}
}

// ──────────────────────────────────────────────────
// Gateway failure classification
// ──────────────────────────────────────────────────

func TestTransferErrorWrapsGatewayError(t *testing.T) {
	f := newFixture(t)

	inv := f.uploadVerified(t)
	b := f.placeBid(t, inv.ID)

	_, err := f.engine.AcceptBidAndFund(context.Background(), b.ID, business)
	if !errors.Is(err, factoring.ErrTransferFailed) {
		t.Fatalf("got %v, want ErrTransferFailed", err)
	}
	if !errors.Is(err, token.ErrUnknownAccount) {
		t.Errorf("gateway cause not preserved in %v", err)
	}
}
