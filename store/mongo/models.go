package mongo

import (
	"time"

	"github.com/fundflow/factoring/bid"
	"github.com/fundflow/factoring/escrow"
	"github.com/fundflow/factoring/id"
	"github.com/fundflow/factoring/invoice"
	"github.com/fundflow/factoring/investment"
	"github.com/fundflow/factoring/types"
)

// ==================== Invoice models ====================

type invoiceModel struct {
	ID          string            `bson:"_id"`
	Business    string            `bson:"business"`
	Amount      int64             `bson:"amount"`
	Currency    string            `bson:"currency"`
	DueDate     time.Time         `bson:"due_date"`
	Status      string            `bson:"status"`
	GraceNs     *int64            `bson:"grace_period_ns,omitempty"`
	Description string            `bson:"description,omitempty"`
	FundedAt    *time.Time        `bson:"funded_at,omitempty"`
	PaidAt      *time.Time        `bson:"paid_at,omitempty"`
	DefaultedAt *time.Time        `bson:"defaulted_at,omitempty"`
	CancelledAt *time.Time        `bson:"cancelled_at,omitempty"`
	Metadata    map[string]string `bson:"metadata,omitempty"`
	CreatedAt   time.Time         `bson:"created_at"`
	UpdatedAt   time.Time         `bson:"updated_at"`
}

func toInvoiceModel(inv *invoice.Invoice) *invoiceModel {
	var graceNs *int64
	if inv.GracePeriod != nil {
		ns := int64(*inv.GracePeriod)
		graceNs = &ns
	}

	return &invoiceModel{
		ID:          inv.ID.String(),
		Business:    inv.Business,
		Amount:      inv.Amount.Amount,
		Currency:    inv.Amount.Currency,
		DueDate:     inv.DueDate,
		Status:      string(inv.Status),
		GraceNs:     graceNs,
		Description: inv.Description,
		FundedAt:    inv.FundedAt,
		PaidAt:      inv.PaidAt,
		DefaultedAt: inv.DefaultedAt,
		CancelledAt: inv.CancelledAt,
		Metadata:    inv.Metadata,
		CreatedAt:   inv.CreatedAt,
		UpdatedAt:   inv.UpdatedAt,
	}
}

func fromInvoiceModel(m *invoiceModel) (*invoice.Invoice, error) {
	invID, err := id.ParseInvoiceID(m.ID)
	if err != nil {
		return nil, err
	}

	var grace *time.Duration
	if m.GraceNs != nil {
		d := time.Duration(*m.GraceNs)
		grace = &d
	}

	return &invoice.Invoice{
		Entity:      types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:          invID,
		Business:    m.Business,
		Amount:      types.Money{Amount: m.Amount, Currency: m.Currency},
		DueDate:     m.DueDate,
		Status:      invoice.Status(m.Status),
		GracePeriod: grace,
		Description: m.Description,
		FundedAt:    m.FundedAt,
		PaidAt:      m.PaidAt,
		DefaultedAt: m.DefaultedAt,
		CancelledAt: m.CancelledAt,
		Metadata:    m.Metadata,
	}, nil
}

// ==================== Bid models ====================

type bidModel struct {
	ID                     string     `bson:"_id"`
	InvoiceID              string     `bson:"invoice_id"`
	Investor               string     `bson:"investor"`
	Amount                 int64      `bson:"amount"`
	Currency               string     `bson:"currency"`
	ExpectedReturn         int64      `bson:"expected_return"`
	ExpectedReturnCurrency string     `bson:"expected_return_currency"`
	Status                 string     `bson:"status"`
	PlacedAt               time.Time  `bson:"placed_at"`
	AcceptedAt             *time.Time `bson:"accepted_at,omitempty"`
	WithdrawnAt            *time.Time `bson:"withdrawn_at,omitempty"`
	ExpiredAt              *time.Time `bson:"expired_at,omitempty"`
	CreatedAt              time.Time  `bson:"created_at"`
	UpdatedAt              time.Time  `bson:"updated_at"`
}

func toBidModel(b *bid.Bid) *bidModel {
	return &bidModel{
		ID:                     b.ID.String(),
		InvoiceID:              b.InvoiceID.String(),
		Investor:               b.Investor,
		Amount:                 b.Amount.Amount,
		Currency:               b.Amount.Currency,
		ExpectedReturn:         b.ExpectedReturn.Amount,
		ExpectedReturnCurrency: b.ExpectedReturn.Currency,
		Status:                 string(b.Status),
		PlacedAt:               b.PlacedAt,
		AcceptedAt:             b.AcceptedAt,
		WithdrawnAt:            b.WithdrawnAt,
		ExpiredAt:              b.ExpiredAt,
		CreatedAt:              b.CreatedAt,
		UpdatedAt:              b.UpdatedAt,
	}
}

func fromBidModel(m *bidModel) (*bid.Bid, error) {
	bidID, err := id.ParseBidID(m.ID)
	if err != nil {
		return nil, err
	}
	invID, err := id.ParseInvoiceID(m.InvoiceID)
	if err != nil {
		return nil, err
	}

	return &bid.Bid{
		Entity:         types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:             bidID,
		InvoiceID:      invID,
		Investor:       m.Investor,
		Amount:         types.Money{Amount: m.Amount, Currency: m.Currency},
		ExpectedReturn: types.Money{Amount: m.ExpectedReturn, Currency: m.ExpectedReturnCurrency},
		Status:         bid.Status(m.Status),
		PlacedAt:       m.PlacedAt,
		AcceptedAt:     m.AcceptedAt,
		WithdrawnAt:    m.WithdrawnAt,
		ExpiredAt:      m.ExpiredAt,
	}, nil
}

// ==================== Escrow models ====================

type escrowModel struct {
	ID         string     `bson:"_id"`
	InvoiceID  string     `bson:"invoice_id"`
	Investor   string     `bson:"investor"`
	Amount     int64      `bson:"amount"`
	Currency   string     `bson:"currency"`
	Status     string     `bson:"status"`
	LockedAt   time.Time  `bson:"locked_at"`
	ReleasedAt *time.Time `bson:"released_at,omitempty"`
	RefundedAt *time.Time `bson:"refunded_at,omitempty"`
	CreatedAt  time.Time  `bson:"created_at"`
	UpdatedAt  time.Time  `bson:"updated_at"`
}

func toEscrowModel(e *escrow.Escrow) *escrowModel {
	return &escrowModel{
		ID:         e.ID.String(),
		InvoiceID:  e.InvoiceID.String(),
		Investor:   e.Investor,
		Amount:     e.Amount.Amount,
		Currency:   e.Amount.Currency,
		Status:     string(e.Status),
		LockedAt:   e.LockedAt,
		ReleasedAt: e.ReleasedAt,
		RefundedAt: e.RefundedAt,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
}

func fromEscrowModel(m *escrowModel) (*escrow.Escrow, error) {
	escID, err := id.ParseEscrowID(m.ID)
	if err != nil {
		return nil, err
	}
	invID, err := id.ParseInvoiceID(m.InvoiceID)
	if err != nil {
		return nil, err
	}

	return &escrow.Escrow{
		Entity:     types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:         escID,
		InvoiceID:  invID,
		Investor:   m.Investor,
		Amount:     types.Money{Amount: m.Amount, Currency: m.Currency},
		Status:     escrow.Status(m.Status),
		LockedAt:   m.LockedAt,
		ReleasedAt: m.ReleasedAt,
		RefundedAt: m.RefundedAt,
	}, nil
}

// ==================== Investment models ====================

type investmentModel struct {
	ID                     string     `bson:"_id"`
	Investor               string     `bson:"investor"`
	InvoiceID              string     `bson:"invoice_id"`
	EscrowID               string     `bson:"escrow_id"`
	Amount                 int64      `bson:"amount"`
	Currency               string     `bson:"currency"`
	ExpectedReturn         int64      `bson:"expected_return"`
	ExpectedReturnCurrency string     `bson:"expected_return_currency"`
	Status                 string     `bson:"status"`
	CompletedAt            *time.Time `bson:"completed_at,omitempty"`
	DefaultedAt            *time.Time `bson:"defaulted_at,omitempty"`
	CreatedAt              time.Time  `bson:"created_at"`
	UpdatedAt              time.Time  `bson:"updated_at"`
}

func toInvestmentModel(ivt *investment.Investment) *investmentModel {
	return &investmentModel{
		ID:                     ivt.ID.String(),
		Investor:               ivt.Investor,
		InvoiceID:              ivt.InvoiceID.String(),
		EscrowID:               ivt.EscrowID.String(),
		Amount:                 ivt.Amount.Amount,
		Currency:               ivt.Amount.Currency,
		ExpectedReturn:         ivt.ExpectedReturn.Amount,
		ExpectedReturnCurrency: ivt.ExpectedReturn.Currency,
		Status:                 string(ivt.Status),
		CompletedAt:            ivt.CompletedAt,
		DefaultedAt:            ivt.DefaultedAt,
		CreatedAt:              ivt.CreatedAt,
		UpdatedAt:              ivt.UpdatedAt,
	}
}

func fromInvestmentModel(m *investmentModel) (*investment.Investment, error) {
	ivtID, err := id.ParseInvestmentID(m.ID)
	if err != nil {
		return nil, err
	}
	invID, err := id.ParseInvoiceID(m.InvoiceID)
	if err != nil {
		return nil, err
	}
	escID, err := id.ParseEscrowID(m.EscrowID)
	if err != nil {
		return nil, err
	}

	return &investment.Investment{
		Entity:         types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:             ivtID,
		Investor:       m.Investor,
		InvoiceID:      invID,
		EscrowID:       escID,
		Amount:         types.Money{Amount: m.Amount, Currency: m.Currency},
		ExpectedReturn: types.Money{Amount: m.ExpectedReturn, Currency: m.ExpectedReturnCurrency},
		Status:         investment.Status(m.Status),
		CompletedAt:    m.CompletedAt,
		DefaultedAt:    m.DefaultedAt,
	}, nil
}
