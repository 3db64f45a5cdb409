// Package factoring provides an invoice-factoring escrow engine for Go
// applications.
//
// Factoring is designed as a library, not a service. Import it directly
// into your Go application and wire it to your own token transfer layer.
// It provides:
//
//   - A full invoice lifecycle: upload, verification, bidding, funding,
//     settlement, and default handling
//   - Atomic accept-bid-and-fund: bid acceptance, escrow lock, investment
//     opening, and the investor-to-custodian transfer succeed or fail as
//     one unit
//   - A reentrancy guard on every fund-moving entry point
//   - Custodial escrow with a strict one-active-escrow-per-invoice rule
//   - Profit-based settlement fees that never touch principal
//   - Pluggable lifecycle hooks for audit trails and notifications
//
// # Quick Start
//
// Create an engine with your preferred store and a transfer gateway:
//
//	import (
//	    "github.com/fundflow/factoring"
//	    "github.com/fundflow/factoring/store/memory"
//	    tokenmemory "github.com/fundflow/factoring/token/memory"
//	)
//
//	bank := tokenmemory.New()
//	engine := factoring.New(memory.New(), bank,
//	    factoring.WithAdmin("admin"),
//	    factoring.WithTreasury("treasury"),
//	    factoring.WithFeeCalculator(fee.BasisPoints(250)),
//	)
//
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
// # Core Flow
//
// A business uploads a receivable, an administrator verifies it, and
// investors bid:
//
//	inv := &invoice.Invoice{
//	    Business: "acme",
//	    Amount:   factoring.USD(1_000_000),
//	    DueDate:  time.Now().AddDate(0, 1, 0),
//	}
//	engine.UploadInvoice(ctx, inv)
//	engine.VerifyInvoice(ctx, inv.ID, "admin")
//
//	b := &bid.Bid{
//	    InvoiceID:      inv.ID,
//	    Investor:       "investor-1",
//	    Amount:         factoring.USD(900_000),
//	    ExpectedReturn: factoring.USD(1_000_000),
//	}
//	engine.PlaceBid(ctx, b)
//
// The business accepts the bid, locking the investor's funds in escrow:
//
//	esc, err := engine.AcceptBidAndFund(ctx, b.ID, "acme")
//
// When the debtor pays, settlement releases the escrow, pays the investor,
// and routes the fee to the treasury:
//
//	engine.SettleInvoice(ctx, inv.ID, "acme", factoring.USD(1_000_000))
//
// If the due date plus grace period passes unpaid, anyone can trigger a
// default, which refunds the investor's principal:
//
//	engine.MarkInvoiceDefaulted(ctx, inv.ID)
//
// # Money
//
// All monetary calculations use integer arithmetic to avoid floating-point
// precision issues. The Money type represents amounts in the smallest
// currency unit (cents for USD, pence for GBP).
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	inv_01h2xcejqtf2nbrexx3vqjhp41  // Invoice ID
//	bid_01h2xcejqtf2nbrexx3vqjhp41  // Bid ID
//	esc_01h455vb4pex5vsknk084sn02q  // Escrow ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package factoring
