// Package postgres implements the factoring store on PostgreSQL using
// database/sql with the lib/pq driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	factoring "github.com/fundflow/factoring"
	"github.com/fundflow/factoring/bid"
	"github.com/fundflow/factoring/escrow"
	"github.com/fundflow/factoring/id"
	"github.com/fundflow/factoring/invoice"
	"github.com/fundflow/factoring/investment"
	factoringstore "github.com/fundflow/factoring/store"
	"github.com/fundflow/factoring/types"
)

// compile-time interface check
var _ factoringstore.Store = (*Store)(nil)

// Store implements store.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL store over an existing connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL with the given DSN and returns a store.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("factoring/postgres: open: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying connection pool for direct access.
func (s *Store) DB() *sql.DB { return s.db }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// ==================== Invoice store ====================

const invoiceColumns = `id, business, amount, currency, due_date, status, grace_period_ns,
	description, funded_at, paid_at, defaulted_at, cancelled_at, metadata, created_at, updated_at`

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	metadata, _ := json.Marshal(inv.Metadata) //nolint:errcheck // best-effort

	var graceNs sql.NullInt64
	if inv.GracePeriod != nil {
		graceNs = sql.NullInt64{Int64: int64(*inv.GracePeriod), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO factoring_invoices (`+invoiceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		inv.ID.String(), inv.Business, inv.Amount.Amount, inv.Amount.Currency,
		inv.DueDate, string(inv.Status), graceNs, inv.Description,
		nullTime(inv.FundedAt), nullTime(inv.PaidAt), nullTime(inv.DefaultedAt), nullTime(inv.CancelledAt),
		metadata, inv.CreatedAt, inv.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return factoring.ErrAlreadyExists
	}
	return err
}

func scanInvoice(row interface{ Scan(...any) error }) (*invoice.Invoice, error) {
	var (
		rawID, business, currency, status, description string
		amount                                         int64
		dueDate, createdAt, updatedAt                  time.Time
		graceNs                                        sql.NullInt64
		fundedAt, paidAt, defaultedAt, cancelledAt     sql.NullTime
		metadata                                       []byte
	)
	if err := row.Scan(&rawID, &business, &amount, &currency, &dueDate, &status, &graceNs,
		&description, &fundedAt, &paidAt, &defaultedAt, &cancelledAt,
		&metadata, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	invID, err := id.ParseInvoiceID(rawID)
	if err != nil {
		return nil, err
	}

	var grace *time.Duration
	if graceNs.Valid {
		d := time.Duration(graceNs.Int64)
		grace = &d
	}

	var meta map[string]string
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &meta) //nolint:errcheck // best-effort
	}

	return &invoice.Invoice{
		Entity:      types.Entity{CreatedAt: createdAt, UpdatedAt: updatedAt},
		ID:          invID,
		Business:    business,
		Amount:      types.Money{Amount: amount, Currency: currency},
		DueDate:     dueDate,
		Status:      invoice.Status(status),
		GracePeriod: grace,
		Description: description,
		FundedAt:    timePtr(fundedAt),
		PaidAt:      timePtr(paidAt),
		DefaultedAt: timePtr(defaultedAt),
		CancelledAt: timePtr(cancelledAt),
		Metadata:    meta,
	}, nil
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM factoring_invoices WHERE id = $1`, invID.String())
	inv, err := scanInvoice(row)
	if isNoRows(err) {
		return nil, factoring.ErrInvoiceNotFound
	}
	return inv, err
}

func (s *Store) UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	metadata, _ := json.Marshal(inv.Metadata) //nolint:errcheck // best-effort

	var graceNs sql.NullInt64
	if inv.GracePeriod != nil {
		graceNs = sql.NullInt64{Int64: int64(*inv.GracePeriod), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE factoring_invoices SET
			business = $2, amount = $3, currency = $4, due_date = $5, status = $6,
			grace_period_ns = $7, description = $8, funded_at = $9, paid_at = $10,
			defaulted_at = $11, cancelled_at = $12, metadata = $13, updated_at = $14
		WHERE id = $1`,
		inv.ID.String(), inv.Business, inv.Amount.Amount, inv.Amount.Currency,
		inv.DueDate, string(inv.Status), graceNs, inv.Description,
		nullTime(inv.FundedAt), nullTime(inv.PaidAt), nullTime(inv.DefaultedAt), nullTime(inv.CancelledAt),
		metadata, inv.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return requireRow(res, factoring.ErrInvoiceNotFound)
}

func (s *Store) ListInvoicesByStatus(ctx context.Context, status invoice.Status, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	q := `SELECT ` + invoiceColumns + ` FROM factoring_invoices WHERE status = $1 ORDER BY created_at ASC`
	return s.listInvoices(ctx, q, string(status), opts.Limit, opts.Offset)
}

func (s *Store) ListInvoicesByBusiness(ctx context.Context, business string, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	if opts.Status != "" {
		q := `SELECT ` + invoiceColumns + ` FROM factoring_invoices
			WHERE business = $1 AND status = $4 ORDER BY created_at ASC LIMIT $2 OFFSET $3`
		rows, err := s.db.QueryContext(ctx, q, business, limitOrMax(opts.Limit), opts.Offset, string(opts.Status))
		if err != nil {
			return nil, err
		}
		return collectInvoices(rows)
	}
	q := `SELECT ` + invoiceColumns + ` FROM factoring_invoices WHERE business = $1 ORDER BY created_at ASC`
	return s.listInvoices(ctx, q, business, opts.Limit, opts.Offset)
}

func (s *Store) listInvoices(ctx context.Context, q, arg string, limit, offset int) ([]*invoice.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, q+` LIMIT $2 OFFSET $3`, arg, limitOrMax(limit), offset)
	if err != nil {
		return nil, err
	}
	return collectInvoices(rows)
}

func collectInvoices(rows *sql.Rows) ([]*invoice.Invoice, error) {
	defer rows.Close() //nolint:errcheck // read-only cursor

	var result []*invoice.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	return result, rows.Err()
}

// ==================== Bid store ====================

const bidColumns = `id, invoice_id, investor, amount, currency, expected_return,
	expected_return_currency, status, placed_at, accepted_at, withdrawn_at, expired_at,
	created_at, updated_at`

func (s *Store) CreateBid(ctx context.Context, b *bid.Bid) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO factoring_bids (`+bidColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		b.ID.String(), b.InvoiceID.String(), b.Investor,
		b.Amount.Amount, b.Amount.Currency,
		b.ExpectedReturn.Amount, b.ExpectedReturn.Currency,
		string(b.Status), b.PlacedAt,
		nullTime(b.AcceptedAt), nullTime(b.WithdrawnAt), nullTime(b.ExpiredAt),
		b.CreatedAt, b.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return factoring.ErrAlreadyExists
	}
	return err
}

func scanBid(row interface{ Scan(...any) error }) (*bid.Bid, error) {
	var (
		rawID, rawInvoiceID, investor, currency, retCurrency, status string
		amount, expectedReturn                                       int64
		placedAt, createdAt, updatedAt                               time.Time
		acceptedAt, withdrawnAt, expiredAt                           sql.NullTime
	)
	if err := row.Scan(&rawID, &rawInvoiceID, &investor, &amount, &currency,
		&expectedReturn, &retCurrency, &status, &placedAt,
		&acceptedAt, &withdrawnAt, &expiredAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	bidID, err := id.ParseBidID(rawID)
	if err != nil {
		return nil, err
	}
	invID, err := id.ParseInvoiceID(rawInvoiceID)
	if err != nil {
		return nil, err
	}

	return &bid.Bid{
		Entity:         types.Entity{CreatedAt: createdAt, UpdatedAt: updatedAt},
		ID:             bidID,
		InvoiceID:      invID,
		Investor:       investor,
		Amount:         types.Money{Amount: amount, Currency: currency},
		ExpectedReturn: types.Money{Amount: expectedReturn, Currency: retCurrency},
		Status:         bid.Status(status),
		PlacedAt:       placedAt,
		AcceptedAt:     timePtr(acceptedAt),
		WithdrawnAt:    timePtr(withdrawnAt),
		ExpiredAt:      timePtr(expiredAt),
	}, nil
}

func (s *Store) GetBid(ctx context.Context, bidID id.BidID) (*bid.Bid, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+bidColumns+` FROM factoring_bids WHERE id = $1`, bidID.String())
	b, err := scanBid(row)
	if isNoRows(err) {
		return nil, factoring.ErrBidNotFound
	}
	return b, err
}

func (s *Store) UpdateBid(ctx context.Context, b *bid.Bid) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE factoring_bids SET
			invoice_id = $2, investor = $3, amount = $4, currency = $5,
			expected_return = $6, expected_return_currency = $7, status = $8,
			placed_at = $9, accepted_at = $10, withdrawn_at = $11, expired_at = $12,
			updated_at = $13
		WHERE id = $1`,
		b.ID.String(), b.InvoiceID.String(), b.Investor,
		b.Amount.Amount, b.Amount.Currency,
		b.ExpectedReturn.Amount, b.ExpectedReturn.Currency,
		string(b.Status), b.PlacedAt,
		nullTime(b.AcceptedAt), nullTime(b.WithdrawnAt), nullTime(b.ExpiredAt),
		b.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return requireRow(res, factoring.ErrBidNotFound)
}

func (s *Store) ListBidsByInvoice(ctx context.Context, invID id.InvoiceID, opts bid.ListOpts) ([]*bid.Bid, error) {
	return s.listBids(ctx, `invoice_id`, invID.String(), opts)
}

func (s *Store) ListBidsByInvestor(ctx context.Context, investor string, opts bid.ListOpts) ([]*bid.Bid, error) {
	return s.listBids(ctx, `investor`, investor, opts)
}

func (s *Store) listBids(ctx context.Context, column, arg string, opts bid.ListOpts) ([]*bid.Bid, error) {
	q := `SELECT ` + bidColumns + ` FROM factoring_bids WHERE ` + column + ` = $1`
	args := []any{arg}
	if opts.Status != "" {
		q += ` AND status = $2`
		args = append(args, string(opts.Status))
	}
	q += fmt.Sprintf(` ORDER BY placed_at ASC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limitOrMax(opts.Limit), opts.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var result []*bid.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

// ==================== Escrow store ====================

const escrowColumns = `id, invoice_id, investor, amount, currency, status,
	locked_at, released_at, refunded_at, created_at, updated_at`

func (s *Store) CreateEscrow(ctx context.Context, e *escrow.Escrow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO factoring_escrows (`+escrowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID.String(), e.InvoiceID.String(), e.Investor,
		e.Amount.Amount, e.Amount.Currency, string(e.Status),
		e.LockedAt, nullTime(e.ReleasedAt), nullTime(e.RefundedAt),
		e.CreatedAt, e.UpdatedAt,
	)
	if isUniqueViolation(err) {
		// The partial unique index on (invoice_id) WHERE status = 'locked'
		// backs the one-active-escrow rule.
		return factoring.ErrDuplicateEscrow
	}
	return err
}

func scanEscrow(row interface{ Scan(...any) error }) (*escrow.Escrow, error) {
	var (
		rawID, rawInvoiceID, investor, currency, status string
		amount                                          int64
		lockedAt, createdAt, updatedAt                  time.Time
		releasedAt, refundedAt                          sql.NullTime
	)
	if err := row.Scan(&rawID, &rawInvoiceID, &investor, &amount, &currency, &status,
		&lockedAt, &releasedAt, &refundedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	escID, err := id.ParseEscrowID(rawID)
	if err != nil {
		return nil, err
	}
	invID, err := id.ParseInvoiceID(rawInvoiceID)
	if err != nil {
		return nil, err
	}

	return &escrow.Escrow{
		Entity:     types.Entity{CreatedAt: createdAt, UpdatedAt: updatedAt},
		ID:         escID,
		InvoiceID:  invID,
		Investor:   investor,
		Amount:     types.Money{Amount: amount, Currency: currency},
		Status:     escrow.Status(status),
		LockedAt:   lockedAt,
		ReleasedAt: timePtr(releasedAt),
		RefundedAt: timePtr(refundedAt),
	}, nil
}

func (s *Store) GetEscrow(ctx context.Context, escID id.EscrowID) (*escrow.Escrow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+escrowColumns+` FROM factoring_escrows WHERE id = $1`, escID.String())
	e, err := scanEscrow(row)
	if isNoRows(err) {
		return nil, factoring.ErrEscrowNotFound
	}
	return e, err
}

func (s *Store) UpdateEscrow(ctx context.Context, e *escrow.Escrow) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE factoring_escrows SET
			invoice_id = $2, investor = $3, amount = $4, currency = $5, status = $6,
			locked_at = $7, released_at = $8, refunded_at = $9, updated_at = $10
		WHERE id = $1`,
		e.ID.String(), e.InvoiceID.String(), e.Investor,
		e.Amount.Amount, e.Amount.Currency, string(e.Status),
		e.LockedAt, nullTime(e.ReleasedAt), nullTime(e.RefundedAt), e.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return requireRow(res, factoring.ErrEscrowNotFound)
}

func (s *Store) ActiveEscrowByInvoice(ctx context.Context, invID id.InvoiceID) (*escrow.Escrow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+escrowColumns+` FROM factoring_escrows WHERE invoice_id = $1 AND status = 'locked'`,
		invID.String())
	e, err := scanEscrow(row)
	if isNoRows(err) {
		return nil, factoring.ErrEscrowNotFound
	}
	return e, err
}

func (s *Store) DeleteEscrow(ctx context.Context, escID id.EscrowID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM factoring_escrows WHERE id = $1`, escID.String())
	if err != nil {
		return err
	}
	return requireRow(res, factoring.ErrEscrowNotFound)
}

// ==================== Investment store ====================

const investmentColumns = `id, investor, invoice_id, escrow_id, amount, currency,
	expected_return, expected_return_currency, status, completed_at, defaulted_at,
	created_at, updated_at`

func (s *Store) CreateInvestment(ctx context.Context, ivt *investment.Investment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO factoring_investments (`+investmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		ivt.ID.String(), ivt.Investor, ivt.InvoiceID.String(), ivt.EscrowID.String(),
		ivt.Amount.Amount, ivt.Amount.Currency,
		ivt.ExpectedReturn.Amount, ivt.ExpectedReturn.Currency,
		string(ivt.Status), nullTime(ivt.CompletedAt), nullTime(ivt.DefaultedAt),
		ivt.CreatedAt, ivt.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return factoring.ErrAlreadyExists
	}
	return err
}

func scanInvestment(row interface{ Scan(...any) error }) (*investment.Investment, error) {
	var (
		rawID, investor, rawInvoiceID, rawEscrowID, currency, retCurrency, status string
		amount, expectedReturn                                                    int64
		createdAt, updatedAt                                                      time.Time
		completedAt, defaultedAt                                                  sql.NullTime
	)
	if err := row.Scan(&rawID, &investor, &rawInvoiceID, &rawEscrowID,
		&amount, &currency, &expectedReturn, &retCurrency, &status,
		&completedAt, &defaultedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	ivtID, err := id.ParseInvestmentID(rawID)
	if err != nil {
		return nil, err
	}
	invID, err := id.ParseInvoiceID(rawInvoiceID)
	if err != nil {
		return nil, err
	}
	escID, err := id.ParseEscrowID(rawEscrowID)
	if err != nil {
		return nil, err
	}

	return &investment.Investment{
		Entity:         types.Entity{CreatedAt: createdAt, UpdatedAt: updatedAt},
		ID:             ivtID,
		Investor:       investor,
		InvoiceID:      invID,
		EscrowID:       escID,
		Amount:         types.Money{Amount: amount, Currency: currency},
		ExpectedReturn: types.Money{Amount: expectedReturn, Currency: retCurrency},
		Status:         investment.Status(status),
		CompletedAt:    timePtr(completedAt),
		DefaultedAt:    timePtr(defaultedAt),
	}, nil
}

func (s *Store) GetInvestment(ctx context.Context, ivtID id.InvestmentID) (*investment.Investment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+investmentColumns+` FROM factoring_investments WHERE id = $1`, ivtID.String())
	ivt, err := scanInvestment(row)
	if isNoRows(err) {
		return nil, factoring.ErrInvestmentNotFound
	}
	return ivt, err
}

func (s *Store) UpdateInvestment(ctx context.Context, ivt *investment.Investment) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE factoring_investments SET
			investor = $2, invoice_id = $3, escrow_id = $4, amount = $5, currency = $6,
			expected_return = $7, expected_return_currency = $8, status = $9,
			completed_at = $10, defaulted_at = $11, updated_at = $12
		WHERE id = $1`,
		ivt.ID.String(), ivt.Investor, ivt.InvoiceID.String(), ivt.EscrowID.String(),
		ivt.Amount.Amount, ivt.Amount.Currency,
		ivt.ExpectedReturn.Amount, ivt.ExpectedReturn.Currency,
		string(ivt.Status), nullTime(ivt.CompletedAt), nullTime(ivt.DefaultedAt),
		ivt.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return requireRow(res, factoring.ErrInvestmentNotFound)
}

func (s *Store) InvestmentByInvoice(ctx context.Context, invID id.InvoiceID) (*investment.Investment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+investmentColumns+` FROM factoring_investments WHERE invoice_id = $1`,
		invID.String())
	ivt, err := scanInvestment(row)
	if isNoRows(err) {
		return nil, factoring.ErrInvestmentNotFound
	}
	return ivt, err
}

func (s *Store) ListInvestmentsByInvestor(ctx context.Context, investor string, opts investment.ListOpts) ([]*investment.Investment, error) {
	q := `SELECT ` + investmentColumns + ` FROM factoring_investments WHERE investor = $1`
	args := []any{investor}
	if opts.Status != "" {
		q += ` AND status = $2`
		args = append(args, string(opts.Status))
	}
	q += fmt.Sprintf(` ORDER BY created_at ASC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limitOrMax(opts.Limit), opts.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var result []*investment.Investment
	for rows.Next() {
		ivt, err := scanInvestment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ivt)
	}
	return result, rows.Err()
}

func (s *Store) DeleteInvestment(ctx context.Context, ivtID id.InvestmentID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM factoring_investments WHERE id = $1`, ivtID.String())
	if err != nil {
		return err
	}
	return requireRow(res, factoring.ErrInvestmentNotFound)
}

// ==================== helpers ====================

func requireRow(res sql.Result, notFound error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

// limitOrMax converts an unset limit into an effectively unbounded one so
// LIMIT can stay in the prepared statement.
func limitOrMax(limit int) int {
	if limit <= 0 {
		return 1<<31 - 1
	}
	return limit
}
