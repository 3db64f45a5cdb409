// Package kyc defines the verification oracle consumed before participants
// reach the factoring core.
//
// Verification workflows themselves live outside this module; the engine
// only asks whether an address has cleared them.
package kyc

import "context"

// Oracle answers whether an address has passed verification.
type Oracle interface {
	IsVerified(ctx context.Context, address string) bool
}

// OracleFunc adapts a plain function to an Oracle.
type OracleFunc func(ctx context.Context, address string) bool

// IsVerified implements Oracle.
func (f OracleFunc) IsVerified(ctx context.Context, address string) bool {
	return f(ctx, address)
}

// AllowAll returns an Oracle that verifies every address. This is the
// engine default: callers are expected to gate participation upstream.
func AllowAll() Oracle {
	return OracleFunc(func(context.Context, string) bool { return true })
}

// Allowlist returns an Oracle that verifies only the given addresses.
func Allowlist(addresses ...string) Oracle {
	set := make(map[string]struct{}, len(addresses))
	for _, a := range addresses {
		set[a] = struct{}{}
	}
	return OracleFunc(func(_ context.Context, address string) bool {
		_, ok := set[address]
		return ok
	})
}
