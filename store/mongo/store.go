// Package mongo implements the factoring store on MongoDB using the
// official driver.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	factoring "github.com/fundflow/factoring"
	"github.com/fundflow/factoring/bid"
	"github.com/fundflow/factoring/escrow"
	"github.com/fundflow/factoring/id"
	"github.com/fundflow/factoring/invoice"
	"github.com/fundflow/factoring/investment"
	factoringstore "github.com/fundflow/factoring/store"
)

// Collection name constants.
const (
	colInvoices    = "factoring_invoices"
	colBids        = "factoring_bids"
	colEscrows     = "factoring_escrows"
	colInvestments = "factoring_investments"
)

// compile-time interface check
var _ factoringstore.Store = (*Store)(nil)

// Store implements store.Store on MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New creates a MongoDB store over an existing client.
func New(client *mongo.Client, database string) *Store {
	return &Store{
		client: client,
		db:     client.Database(database),
	}
}

// DB returns the underlying database handle for direct access.
func (s *Store) DB() *mongo.Database { return s.db }

// Migrate creates indexes for all factoring collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("factoring/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// migrationIndexes defines the secondary indexes per collection. The
// partial unique index on locked escrows backs the one-active-escrow rule
// at the database level.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colInvoices: {
			{Keys: bson.D{{Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "business", Value: 1}}},
		},
		colBids: {
			{Keys: bson.D{{Key: "invoice_id", Value: 1}}},
			{Keys: bson.D{{Key: "investor", Value: 1}}},
		},
		colEscrows: {
			{
				Keys: bson.D{{Key: "invoice_id", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"status": string(escrow.StatusLocked)}),
			},
		},
		colInvestments: {
			{
				Keys:    bson.D{{Key: "invoice_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "investor", Value: 1}}},
		},
	}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// ==================== Invoice store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	_, err := s.db.Collection(colInvoices).InsertOne(ctx, toInvoiceModel(inv))
	if mongo.IsDuplicateKeyError(err) {
		return factoring.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("factoring/mongo: create invoice: %w", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	var m invoiceModel
	err := s.db.Collection(colInvoices).FindOne(ctx, bson.M{"_id": invID.String()}).Decode(&m)
	if isNoDocuments(err) {
		return nil, factoring.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("factoring/mongo: get invoice: %w", err)
	}
	return fromInvoiceModel(&m)
}

func (s *Store) UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	res, err := s.db.Collection(colInvoices).ReplaceOne(ctx,
		bson.M{"_id": inv.ID.String()}, toInvoiceModel(inv))
	if err != nil {
		return fmt.Errorf("factoring/mongo: update invoice: %w", err)
	}
	if res.MatchedCount == 0 {
		return factoring.ErrInvoiceNotFound
	}
	return nil
}

func (s *Store) ListInvoicesByStatus(ctx context.Context, status invoice.Status, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	return s.listInvoices(ctx, bson.M{"status": string(status)}, opts.Limit, opts.Offset)
}

func (s *Store) ListInvoicesByBusiness(ctx context.Context, business string, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	filter := bson.M{"business": business}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	return s.listInvoices(ctx, filter, opts.Limit, opts.Offset)
}

func (s *Store) listInvoices(ctx context.Context, filter bson.M, limit, offset int) ([]*invoice.Invoice, error) {
	cursor, err := s.db.Collection(colInvoices).Find(ctx, filter, findOpts(limit, offset))
	if err != nil {
		return nil, fmt.Errorf("factoring/mongo: list invoices: %w", err)
	}
	defer cursor.Close(ctx) //nolint:errcheck // read-only cursor

	var result []*invoice.Invoice
	for cursor.Next(ctx) {
		var m invoiceModel
		if err := cursor.Decode(&m); err != nil {
			return nil, err
		}
		inv, err := fromInvoiceModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	return result, cursor.Err()
}

// ==================== Bid store ====================

func (s *Store) CreateBid(ctx context.Context, b *bid.Bid) error {
	_, err := s.db.Collection(colBids).InsertOne(ctx, toBidModel(b))
	if mongo.IsDuplicateKeyError(err) {
		return factoring.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("factoring/mongo: create bid: %w", err)
	}
	return nil
}

func (s *Store) GetBid(ctx context.Context, bidID id.BidID) (*bid.Bid, error) {
	var m bidModel
	err := s.db.Collection(colBids).FindOne(ctx, bson.M{"_id": bidID.String()}).Decode(&m)
	if isNoDocuments(err) {
		return nil, factoring.ErrBidNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("factoring/mongo: get bid: %w", err)
	}
	return fromBidModel(&m)
}

func (s *Store) UpdateBid(ctx context.Context, b *bid.Bid) error {
	res, err := s.db.Collection(colBids).ReplaceOne(ctx,
		bson.M{"_id": b.ID.String()}, toBidModel(b))
	if err != nil {
		return fmt.Errorf("factoring/mongo: update bid: %w", err)
	}
	if res.MatchedCount == 0 {
		return factoring.ErrBidNotFound
	}
	return nil
}

func (s *Store) ListBidsByInvoice(ctx context.Context, invID id.InvoiceID, opts bid.ListOpts) ([]*bid.Bid, error) {
	return s.listBids(ctx, bson.M{"invoice_id": invID.String()}, opts)
}

func (s *Store) ListBidsByInvestor(ctx context.Context, investor string, opts bid.ListOpts) ([]*bid.Bid, error) {
	return s.listBids(ctx, bson.M{"investor": investor}, opts)
}

func (s *Store) listBids(ctx context.Context, filter bson.M, opts bid.ListOpts) ([]*bid.Bid, error) {
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	cursor, err := s.db.Collection(colBids).Find(ctx, filter, findOpts(opts.Limit, opts.Offset))
	if err != nil {
		return nil, fmt.Errorf("factoring/mongo: list bids: %w", err)
	}
	defer cursor.Close(ctx) //nolint:errcheck // read-only cursor

	var result []*bid.Bid
	for cursor.Next(ctx) {
		var m bidModel
		if err := cursor.Decode(&m); err != nil {
			return nil, err
		}
		b, err := fromBidModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, cursor.Err()
}

// ==================== Escrow store ====================

func (s *Store) CreateEscrow(ctx context.Context, e *escrow.Escrow) error {
	_, err := s.db.Collection(colEscrows).InsertOne(ctx, toEscrowModel(e))
	if mongo.IsDuplicateKeyError(err) {
		return factoring.ErrDuplicateEscrow
	}
	if err != nil {
		return fmt.Errorf("factoring/mongo: create escrow: %w", err)
	}
	return nil
}

func (s *Store) GetEscrow(ctx context.Context, escID id.EscrowID) (*escrow.Escrow, error) {
	var m escrowModel
	err := s.db.Collection(colEscrows).FindOne(ctx, bson.M{"_id": escID.String()}).Decode(&m)
	if isNoDocuments(err) {
		return nil, factoring.ErrEscrowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("factoring/mongo: get escrow: %w", err)
	}
	return fromEscrowModel(&m)
}

func (s *Store) UpdateEscrow(ctx context.Context, e *escrow.Escrow) error {
	res, err := s.db.Collection(colEscrows).ReplaceOne(ctx,
		bson.M{"_id": e.ID.String()}, toEscrowModel(e))
	if err != nil {
		return fmt.Errorf("factoring/mongo: update escrow: %w", err)
	}
	if res.MatchedCount == 0 {
		return factoring.ErrEscrowNotFound
	}
	return nil
}

func (s *Store) ActiveEscrowByInvoice(ctx context.Context, invID id.InvoiceID) (*escrow.Escrow, error) {
	var m escrowModel
	err := s.db.Collection(colEscrows).FindOne(ctx, bson.M{
		"invoice_id": invID.String(),
		"status":     string(escrow.StatusLocked),
	}).Decode(&m)
	if isNoDocuments(err) {
		return nil, factoring.ErrEscrowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("factoring/mongo: active escrow by invoice: %w", err)
	}
	return fromEscrowModel(&m)
}

func (s *Store) DeleteEscrow(ctx context.Context, escID id.EscrowID) error {
	res, err := s.db.Collection(colEscrows).DeleteOne(ctx, bson.M{"_id": escID.String()})
	if err != nil {
		return fmt.Errorf("factoring/mongo: delete escrow: %w", err)
	}
	if res.DeletedCount == 0 {
		return factoring.ErrEscrowNotFound
	}
	return nil
}

// ==================== Investment store ====================

func (s *Store) CreateInvestment(ctx context.Context, ivt *investment.Investment) error {
	_, err := s.db.Collection(colInvestments).InsertOne(ctx, toInvestmentModel(ivt))
	if mongo.IsDuplicateKeyError(err) {
		return factoring.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("factoring/mongo: create investment: %w", err)
	}
	return nil
}

func (s *Store) GetInvestment(ctx context.Context, ivtID id.InvestmentID) (*investment.Investment, error) {
	var m investmentModel
	err := s.db.Collection(colInvestments).FindOne(ctx, bson.M{"_id": ivtID.String()}).Decode(&m)
	if isNoDocuments(err) {
		return nil, factoring.ErrInvestmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("factoring/mongo: get investment: %w", err)
	}
	return fromInvestmentModel(&m)
}

func (s *Store) UpdateInvestment(ctx context.Context, ivt *investment.Investment) error {
	res, err := s.db.Collection(colInvestments).ReplaceOne(ctx,
		bson.M{"_id": ivt.ID.String()}, toInvestmentModel(ivt))
	if err != nil {
		return fmt.Errorf("factoring/mongo: update investment: %w", err)
	}
	if res.MatchedCount == 0 {
		return factoring.ErrInvestmentNotFound
	}
	return nil
}

func (s *Store) InvestmentByInvoice(ctx context.Context, invID id.InvoiceID) (*investment.Investment, error) {
	var m investmentModel
	err := s.db.Collection(colInvestments).FindOne(ctx,
		bson.M{"invoice_id": invID.String()}).Decode(&m)
	if isNoDocuments(err) {
		return nil, factoring.ErrInvestmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("factoring/mongo: investment by invoice: %w", err)
	}
	return fromInvestmentModel(&m)
}

func (s *Store) ListInvestmentsByInvestor(ctx context.Context, investor string, opts investment.ListOpts) ([]*investment.Investment, error) {
	filter := bson.M{"investor": investor}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	cursor, err := s.db.Collection(colInvestments).Find(ctx, filter, findOpts(opts.Limit, opts.Offset))
	if err != nil {
		return nil, fmt.Errorf("factoring/mongo: list investments: %w", err)
	}
	defer cursor.Close(ctx) //nolint:errcheck // read-only cursor

	var result []*investment.Investment
	for cursor.Next(ctx) {
		var m investmentModel
		if err := cursor.Decode(&m); err != nil {
			return nil, err
		}
		ivt, err := fromInvestmentModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, ivt)
	}
	return result, cursor.Err()
}

func (s *Store) DeleteInvestment(ctx context.Context, ivtID id.InvestmentID) error {
	res, err := s.db.Collection(colInvestments).DeleteOne(ctx, bson.M{"_id": ivtID.String()})
	if err != nil {
		return fmt.Errorf("factoring/mongo: delete investment: %w", err)
	}
	if res.DeletedCount == 0 {
		return factoring.ErrInvestmentNotFound
	}
	return nil
}

// ==================== helpers ====================

func findOpts(limit, offset int) *options.FindOptionsBuilder {
	o := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		o = o.SetLimit(int64(limit))
	}
	if offset > 0 {
		o = o.SetSkip(int64(offset))
	}
	return o
}
