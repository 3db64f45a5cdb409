// Package memory provides an in-memory token.Gateway for tests and demos.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/fundflow/factoring/token"
	"github.com/fundflow/factoring/types"
)

// Bank is an in-memory balance ledger implementing token.Gateway.
// Balances are tracked per account address in a single currency space;
// transfers are atomic under the bank's lock.
type Bank struct {
	mu       sync.Mutex
	balances map[string]types.Money
}

// New creates an empty Bank.
func New() *Bank {
	return &Bank{balances: make(map[string]types.Money)}
}

// Deposit credits an account, creating it if needed.
func (b *Bank) Deposit(account string, amount types.Money) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cur, ok := b.balances[account]; ok {
		b.balances[account] = cur.Add(amount)
		return
	}
	b.balances[account] = amount
}

// Balance returns the current balance of an account. Unknown accounts
// report a zero balance in the given currency.
func (b *Bank) Balance(account, currency string) types.Money {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cur, ok := b.balances[account]; ok {
		return cur
	}
	return types.Zero(currency)
}

// Transfer implements token.Gateway. It debits from and credits to,
// failing without any mutation when the source balance is insufficient.
func (b *Bank) Transfer(_ context.Context, from, to string, amount types.Money) error {
	if from == "" || to == "" {
		return fmt.Errorf("%w: empty account", token.ErrInvalidTransfer)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: non-positive amount %s", token.ErrInvalidTransfer, amount)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	src, ok := b.balances[from]
	if !ok {
		return fmt.Errorf("%w: %s", token.ErrUnknownAccount, from)
	}
	if !src.SameCurrency(amount) || src.LessThan(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", token.ErrInsufficientFunds, from, src, amount)
	}

	b.balances[from] = src.Subtract(amount)
	if dst, ok := b.balances[to]; ok {
		b.balances[to] = dst.Add(amount)
	} else {
		b.balances[to] = amount
	}
	return nil
}
