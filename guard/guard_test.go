package guard

import (
	"errors"
	"testing"
)

func TestEnterExit(t *testing.T) {
	g := New()

	tok, err := g.Enter()
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if !g.Held() {
		t.Error("guard should be held after Enter")
	}

	tok.Exit()
	if g.Held() {
		t.Error("guard should be released after Exit")
	}
}

func TestReentryFails(t *testing.T) {
	g := New()

	tok, err := g.Enter()
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	defer tok.Exit()

	if _, err := g.Enter(); !errors.Is(err, ErrAlreadyEntered) {
		t.Errorf("nested enter: got %v, want ErrAlreadyEntered", err)
	}
}

func TestReacquireAfterExit(t *testing.T) {
	g := New()

	tok, err := g.Enter()
	if err != nil {
		t.Fatalf("first enter: %v", err)
	}
	tok.Exit()

	tok2, err := g.Enter()
	if err != nil {
		t.Fatalf("second enter: %v", err)
	}
	tok2.Exit()
}

func TestExitIdempotent(t *testing.T) {
	g := New()

	tok, _ := g.Enter()
	tok.Exit()
	tok.Exit() // Double exit must not release someone else's acquisition.

	tok2, err := g.Enter()
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	tok.Exit() // Stale token exit must not release tok2.
	if !g.Held() {
		t.Error("stale token Exit released an active acquisition")
	}
	tok2.Exit()
}

func TestNilTokenExit(t *testing.T) {
	var tok *Token
	tok.Exit() // Must not panic.
}

func TestReleaseOnPanicPath(t *testing.T) {
	g := New()

	func() {
		tok, err := g.Enter()
		if err != nil {
			t.Fatalf("enter: %v", err)
		}
		defer tok.Exit()
		defer func() { _ = recover() }()
		panic("protected body failed")
	}()

	if g.Held() {
		t.Error("guard leaked across a panicking body")
	}
}
