package factoring

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("factoring: not found")
	ErrAlreadyExists = errors.New("factoring: already exists")
	ErrInvalidInput  = errors.New("factoring: invalid input")
	ErrUnauthorized  = errors.New("factoring: unauthorized")

	// Entity lookup errors
	ErrInvoiceNotFound    = errors.New("factoring: invoice not found")
	ErrBidNotFound        = errors.New("factoring: bid not found")
	ErrEscrowNotFound     = errors.New("factoring: escrow not found")
	ErrInvestmentNotFound = errors.New("factoring: investment not found")

	// State machine errors
	ErrInvalidInvoiceStatus = errors.New("factoring: invalid invoice status")
	ErrInvalidBidStatus     = errors.New("factoring: invalid bid status")
	ErrInvalidEscrowStatus  = errors.New("factoring: invalid escrow status")

	// Funding errors
	ErrInvalidAmount     = errors.New("factoring: invalid amount")
	ErrDuplicateEscrow   = errors.New("factoring: active escrow already exists for invoice")
	ErrReentrancy        = errors.New("factoring: reentrant call rejected")
	ErrTransferFailed    = errors.New("factoring: token transfer failed")
	ErrNotVerified       = errors.New("factoring: address not verified")
	ErrInvoiceNotExpired = errors.New("factoring: invoice not past its grace period")

	// Store errors
	ErrStoreNotReady     = errors.New("factoring: store not ready")
	ErrStoreClosed       = errors.New("factoring: store is closed")
	ErrMigrationFailed   = errors.New("factoring: migration failed")
	ErrTransactionFailed = errors.New("factoring: transaction failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("factoring: validation failed for %s: %s", e.Field, e.Message)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrBidNotFound) ||
		errors.Is(err, ErrEscrowNotFound) ||
		errors.Is(err, ErrInvestmentNotFound)
}

// IsStateError returns true if the error is a state machine precondition
// violation: the entity exists but its status forbids the operation.
func IsStateError(err error) bool {
	return errors.Is(err, ErrInvalidInvoiceStatus) ||
		errors.Is(err, ErrInvalidBidStatus) ||
		errors.Is(err, ErrInvalidEscrowStatus) ||
		errors.Is(err, ErrDuplicateEscrow)
}

// IsRetryable returns true if the error is temporary and the operation can
// be resubmitted by the caller. The atomicity contract guarantees a failed
// operation left no partial state behind, so retrying is always safe.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransferFailed) ||
		errors.Is(err, ErrReentrancy) ||
		errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed)
}
