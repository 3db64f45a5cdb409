// Package guard provides the reentrancy guard protecting fund-moving
// entry points.
//
// A token transfer can, depending on the token implementation, call back
// into an engine entry point before the outer call completes. The guard
// turns such reentry into an immediate error instead of a double-spend:
// the outer call acquires the guard before its first state mutation, so a
// nested Enter fails before touching anything.
package guard

import (
	"errors"
	"sync/atomic"
)

// ErrAlreadyEntered is returned when Enter is called while a token from a
// previous Enter is still outstanding.
var ErrAlreadyEntered = errors.New("guard: already entered")

// Guard is a process-wide single-entry latch. The zero value is ready to use.
type Guard struct {
	active atomic.Bool
}

// New creates a released Guard.
func New() *Guard {
	return &Guard{}
}

// Enter acquires the guard. It fails with ErrAlreadyEntered, before any
// state is touched, if the guard is already held. The returned Token must
// be released on every exit path:
//
//	tok, err := g.Enter()
//	if err != nil {
//	    return err
//	}
//	defer tok.Exit()
func (g *Guard) Enter() (*Token, error) {
	if !g.active.CompareAndSwap(false, true) {
		return nil, ErrAlreadyEntered
	}
	return &Token{guard: g}, nil
}

// Held reports whether the guard is currently acquired.
func (g *Guard) Held() bool {
	return g.active.Load()
}

// Token is the scoped proof of guard acquisition. Exactly one Token exists
// per successful Enter.
type Token struct {
	guard    *Guard
	released atomic.Bool
}

// Exit releases the guard. Calling Exit more than once is a no-op, so it
// is safe both deferred and on explicit early-return paths.
func (t *Token) Exit() {
	if t == nil {
		return
	}
	if t.released.CompareAndSwap(false, true) {
		t.guard.active.Store(false)
	}
}
