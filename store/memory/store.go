// Package memory provides an in-memory store.Store for tests and demos.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	factoring "github.com/fundflow/factoring"
	"github.com/fundflow/factoring/bid"
	"github.com/fundflow/factoring/escrow"
	"github.com/fundflow/factoring/id"
	"github.com/fundflow/factoring/invoice"
	"github.com/fundflow/factoring/investment"
	"github.com/fundflow/factoring/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store with in-memory maps plus explicit
// secondary indexes by status. Records are copied on every read and
// write, so callers can mutate a loaded record freely and nothing is
// visible until Update commits it — the load-mutate-store cycle the
// engine's rollback logic depends on.
type Store struct {
	mu sync.RWMutex

	invoices    map[string]*invoice.Invoice
	bids        map[string]*bid.Bid
	escrows     map[string]*escrow.Escrow
	investments map[string]*investment.Investment

	// Secondary indexes: status → set of entity IDs
	invoicesByStatus map[invoice.Status]map[string]struct{}
	escrowByInvoice  map[string]string // invoice ID → locked escrow ID
}

// New creates an empty memory store.
func New() *Store {
	return &Store{
		invoices:         make(map[string]*invoice.Invoice),
		bids:             make(map[string]*bid.Bid),
		escrows:          make(map[string]*escrow.Escrow),
		investments:      make(map[string]*investment.Investment),
		invoicesByStatus: make(map[invoice.Status]map[string]struct{}),
		escrowByInvoice:  make(map[string]string),
	}
}

// ==================== Invoice store ====================

func (s *Store) CreateInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := inv.ID.String()
	if _, exists := s.invoices[key]; exists {
		return factoring.ErrAlreadyExists
	}
	s.invoices[key] = cloneInvoice(inv)
	s.indexInvoice(key, "", inv.Status)
	return nil
}

func (s *Store) GetInvoice(_ context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if inv, ok := s.invoices[invID.String()]; ok {
		return cloneInvoice(inv), nil
	}
	return nil, factoring.ErrInvoiceNotFound
}

func (s *Store) UpdateInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := inv.ID.String()
	prev, exists := s.invoices[key]
	if !exists {
		return factoring.ErrInvoiceNotFound
	}
	s.invoices[key] = cloneInvoice(inv)
	if prev.Status != inv.Status {
		s.indexInvoice(key, prev.Status, inv.Status)
	}
	return nil
}

func (s *Store) ListInvoicesByStatus(_ context.Context, status invoice.Status, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*invoice.Invoice, 0)
	for key := range s.invoicesByStatus[status] {
		result = append(result, cloneInvoice(s.invoices[key]))
	}
	sortInvoices(result)
	return pageInvoices(result, opts), nil
}

func (s *Store) ListInvoicesByBusiness(_ context.Context, business string, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*invoice.Invoice, 0)
	for _, inv := range s.invoices {
		if inv.Business != business {
			continue
		}
		if opts.Status != "" && inv.Status != opts.Status {
			continue
		}
		result = append(result, cloneInvoice(inv))
	}
	sortInvoices(result)
	return pageInvoices(result, opts), nil
}

// indexInvoice moves an invoice key between status index buckets.
func (s *Store) indexInvoice(key string, from, to invoice.Status) {
	if from != "" {
		delete(s.invoicesByStatus[from], key)
	}
	if to != "" {
		if s.invoicesByStatus[to] == nil {
			s.invoicesByStatus[to] = make(map[string]struct{})
		}
		s.invoicesByStatus[to][key] = struct{}{}
	}
}

// ==================== Bid store ====================

func (s *Store) CreateBid(_ context.Context, b *bid.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := b.ID.String()
	if _, exists := s.bids[key]; exists {
		return factoring.ErrAlreadyExists
	}
	s.bids[key] = cloneBid(b)
	return nil
}

func (s *Store) GetBid(_ context.Context, bidID id.BidID) (*bid.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.bids[bidID.String()]; ok {
		return cloneBid(b), nil
	}
	return nil, factoring.ErrBidNotFound
}

func (s *Store) UpdateBid(_ context.Context, b *bid.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := b.ID.String()
	if _, exists := s.bids[key]; !exists {
		return factoring.ErrBidNotFound
	}
	s.bids[key] = cloneBid(b)
	return nil
}

func (s *Store) ListBidsByInvoice(_ context.Context, invID id.InvoiceID, opts bid.ListOpts) ([]*bid.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*bid.Bid, 0)
	for _, b := range s.bids {
		if b.InvoiceID.String() != invID.String() {
			continue
		}
		if opts.Status != "" && b.Status != opts.Status {
			continue
		}
		result = append(result, cloneBid(b))
	}
	sortBids(result)
	return pageBids(result, opts), nil
}

func (s *Store) ListBidsByInvestor(_ context.Context, investor string, opts bid.ListOpts) ([]*bid.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*bid.Bid, 0)
	for _, b := range s.bids {
		if b.Investor != investor {
			continue
		}
		if opts.Status != "" && b.Status != opts.Status {
			continue
		}
		result = append(result, cloneBid(b))
	}
	sortBids(result)
	return pageBids(result, opts), nil
}

// ==================== Escrow store ====================

func (s *Store) CreateEscrow(_ context.Context, e *escrow.Escrow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := e.ID.String()
	if _, exists := s.escrows[key]; exists {
		return factoring.ErrAlreadyExists
	}
	if e.Status == escrow.StatusLocked {
		if _, locked := s.escrowByInvoice[e.InvoiceID.String()]; locked {
			return factoring.ErrDuplicateEscrow
		}
		s.escrowByInvoice[e.InvoiceID.String()] = key
	}
	s.escrows[key] = cloneEscrow(e)
	return nil
}

func (s *Store) GetEscrow(_ context.Context, escID id.EscrowID) (*escrow.Escrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.escrows[escID.String()]; ok {
		return cloneEscrow(e), nil
	}
	return nil, factoring.ErrEscrowNotFound
}

func (s *Store) UpdateEscrow(_ context.Context, e *escrow.Escrow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := e.ID.String()
	prev, exists := s.escrows[key]
	if !exists {
		return factoring.ErrEscrowNotFound
	}
	s.escrows[key] = cloneEscrow(e)
	// Leaving Locked frees the invoice's active-escrow slot.
	if prev.Status == escrow.StatusLocked && e.Status != escrow.StatusLocked {
		delete(s.escrowByInvoice, e.InvoiceID.String())
	}
	return nil
}

func (s *Store) ActiveEscrowByInvoice(_ context.Context, invID id.InvoiceID) (*escrow.Escrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if key, ok := s.escrowByInvoice[invID.String()]; ok {
		return cloneEscrow(s.escrows[key]), nil
	}
	return nil, factoring.ErrEscrowNotFound
}

func (s *Store) DeleteEscrow(_ context.Context, escID id.EscrowID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := escID.String()
	e, exists := s.escrows[key]
	if !exists {
		return factoring.ErrEscrowNotFound
	}
	if e.Status == escrow.StatusLocked {
		delete(s.escrowByInvoice, e.InvoiceID.String())
	}
	delete(s.escrows, key)
	return nil
}

// ==================== Investment store ====================

func (s *Store) CreateInvestment(_ context.Context, ivt *investment.Investment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ivt.ID.String()
	if _, exists := s.investments[key]; exists {
		return factoring.ErrAlreadyExists
	}
	for _, existing := range s.investments {
		if existing.InvoiceID.String() == ivt.InvoiceID.String() {
			return factoring.ErrAlreadyExists
		}
	}
	s.investments[key] = cloneInvestment(ivt)
	return nil
}

func (s *Store) GetInvestment(_ context.Context, ivtID id.InvestmentID) (*investment.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ivt, ok := s.investments[ivtID.String()]; ok {
		return cloneInvestment(ivt), nil
	}
	return nil, factoring.ErrInvestmentNotFound
}

func (s *Store) UpdateInvestment(_ context.Context, ivt *investment.Investment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ivt.ID.String()
	if _, exists := s.investments[key]; !exists {
		return factoring.ErrInvestmentNotFound
	}
	s.investments[key] = cloneInvestment(ivt)
	return nil
}

func (s *Store) InvestmentByInvoice(_ context.Context, invID id.InvoiceID) (*investment.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ivt := range s.investments {
		if ivt.InvoiceID.String() == invID.String() {
			return cloneInvestment(ivt), nil
		}
	}
	return nil, factoring.ErrInvestmentNotFound
}

func (s *Store) ListInvestmentsByInvestor(_ context.Context, investor string, opts investment.ListOpts) ([]*investment.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*investment.Investment, 0)
	for _, ivt := range s.investments {
		if ivt.Investor != investor {
			continue
		}
		if opts.Status != "" && ivt.Status != opts.Status {
			continue
		}
		result = append(result, cloneInvestment(ivt))
	}
	sortInvestments(result)
	return page(result, opts.Limit, opts.Offset), nil
}

func (s *Store) DeleteInvestment(_ context.Context, ivtID id.InvestmentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ivtID.String()
	if _, exists := s.investments[key]; !exists {
		return factoring.ErrInvestmentNotFound
	}
	delete(s.investments, key)
	return nil
}

// ==================== Core ====================

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// ==================== Helpers ====================

func cloneInvoice(inv *invoice.Invoice) *invoice.Invoice {
	out := *inv
	out.GracePeriod = cloneDuration(inv.GracePeriod)
	out.FundedAt = cloneTime(inv.FundedAt)
	out.PaidAt = cloneTime(inv.PaidAt)
	out.DefaultedAt = cloneTime(inv.DefaultedAt)
	out.CancelledAt = cloneTime(inv.CancelledAt)
	if inv.Metadata != nil {
		out.Metadata = make(map[string]string, len(inv.Metadata))
		for k, v := range inv.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

func cloneBid(b *bid.Bid) *bid.Bid {
	out := *b
	out.AcceptedAt = cloneTime(b.AcceptedAt)
	out.WithdrawnAt = cloneTime(b.WithdrawnAt)
	out.ExpiredAt = cloneTime(b.ExpiredAt)
	return &out
}

func cloneEscrow(e *escrow.Escrow) *escrow.Escrow {
	out := *e
	out.ReleasedAt = cloneTime(e.ReleasedAt)
	out.RefundedAt = cloneTime(e.RefundedAt)
	return &out
}

func cloneInvestment(ivt *investment.Investment) *investment.Investment {
	out := *ivt
	out.CompletedAt = cloneTime(ivt.CompletedAt)
	out.DefaultedAt = cloneTime(ivt.DefaultedAt)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	out := *t
	return &out
}

func cloneDuration(d *time.Duration) *time.Duration {
	if d == nil {
		return nil
	}
	out := *d
	return &out
}

// List results are sorted by creation time with the ID as tiebreaker,
// matching the SQL backends' ORDER BY created_at. Map iteration order is
// random per call, and paginated callers need page boundaries that hold
// still between calls.

func sortInvoices(in []*invoice.Invoice) {
	sort.Slice(in, func(i, j int) bool {
		if !in[i].CreatedAt.Equal(in[j].CreatedAt) {
			return in[i].CreatedAt.Before(in[j].CreatedAt)
		}
		return in[i].ID.String() < in[j].ID.String()
	})
}

func sortBids(in []*bid.Bid) {
	sort.Slice(in, func(i, j int) bool {
		if !in[i].CreatedAt.Equal(in[j].CreatedAt) {
			return in[i].CreatedAt.Before(in[j].CreatedAt)
		}
		return in[i].ID.String() < in[j].ID.String()
	})
}

func sortInvestments(in []*investment.Investment) {
	sort.Slice(in, func(i, j int) bool {
		if !in[i].CreatedAt.Equal(in[j].CreatedAt) {
			return in[i].CreatedAt.Before(in[j].CreatedAt)
		}
		return in[i].ID.String() < in[j].ID.String()
	})
}

func pageInvoices(in []*invoice.Invoice, opts invoice.ListOpts) []*invoice.Invoice {
	return page(in, opts.Limit, opts.Offset)
}

func pageBids(in []*bid.Bid, opts bid.ListOpts) []*bid.Bid {
	return page(in, opts.Limit, opts.Offset)
}

func page[T any](in []T, limit, offset int) []T {
	start := offset
	if start > len(in) {
		start = len(in)
	}
	end := start + limit
	if limit == 0 || end > len(in) {
		end = len(in)
	}
	return in[start:end]
}
