package audithook

// Action constants for audit events.
const (
	// Invoice actions
	ActionInvoiceUploaded  = "invoice.uploaded"
	ActionInvoiceVerified  = "invoice.verified"
	ActionInvoiceCancelled = "invoice.cancelled"
	ActionInvoiceFunded    = "invoice.funded"
	ActionInvoiceSettled   = "invoice.settled"
	ActionInvoiceDefaulted = "invoice.defaulted"

	// Bid actions
	ActionBidPlaced    = "bid.placed"
	ActionBidAccepted  = "bid.accepted"
	ActionBidWithdrawn = "bid.withdrawn"
	ActionBidExpired   = "bid.expired"

	// Escrow actions
	ActionEscrowCreated  = "escrow.created"
	ActionEscrowReleased = "escrow.released"
	ActionEscrowRefunded = "escrow.refunded"

	// Investment actions
	ActionInvestmentCreated = "investment.created"
)

// Resource constants for audit events.
const (
	ResourceInvoice    = "invoice"
	ResourceBid        = "bid"
	ResourceEscrow     = "escrow"
	ResourceInvestment = "investment"
)

// Category constants for audit events.
const (
	CategoryFactoring = "factoring"
	CategoryFunding   = "funding"
	CategoryCustody   = "custody"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
