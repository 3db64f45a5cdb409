// Package token defines the transfer gateway through which all value moves.
//
// The engine never touches balances directly: money enters and leaves
// custody exclusively through a Gateway. Production deployments bridge
// this interface to an on-chain token contract or a payments rail; tests
// and the quick-start use the in-memory bank in token/memory.
package token

import (
	"context"
	"errors"
	"strings"

	"github.com/fundflow/factoring/types"
)

// Account is a party address on the gateway's rail. The engine treats
// addresses as opaque strings; Account adds the light validation and
// normalization gateway implementations share.
type Account string

// ParseAccount normalizes and validates an address.
func ParseAccount(s string) (Account, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("token: empty account address")
	}
	return Account(s), nil
}

func (a Account) String() string { return string(a) }

// IsZero reports whether the account is unset.
func (a Account) IsZero() bool { return a == "" }

// Gateway moves fungible value between two parties. Transfer has ordinary
// failure semantics: insufficient balance or allowance is an error, not a
// panic, and the engine treats any error as a signal to roll back the
// surrounding operation.
type Gateway interface {
	Transfer(ctx context.Context, from, to string, amount types.Money) error
}

// GatewayFunc adapts a plain function to a Gateway.
type GatewayFunc func(ctx context.Context, from, to string, amount types.Money) error

// Transfer implements Gateway.
func (f GatewayFunc) Transfer(ctx context.Context, from, to string, amount types.Money) error {
	return f(ctx, from, to, amount)
}

// Transfer failure causes surfaced by gateway implementations.
var (
	ErrInsufficientFunds = errors.New("token: insufficient funds")
	ErrUnknownAccount    = errors.New("token: unknown account")
	ErrInvalidTransfer   = errors.New("token: invalid transfer")
)
