package factoring

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Custodian != DefaultCustodian {
		t.Errorf("custodian = %q, want %q", cfg.Custodian, DefaultCustodian)
	}
	if cfg.GracePeriod != DefaultGracePeriod {
		t.Errorf("grace period = %v, want %v", cfg.GracePeriod, DefaultGracePeriod)
	}
	if cfg.Treasury != "" || cfg.Admin != "" {
		t.Errorf("treasury/admin default to unset, got %q/%q", cfg.Treasury, cfg.Admin)
	}
}

func TestWithConfig(t *testing.T) {
	e := New(nil, nil, WithConfig(Config{
		Custodian:   "vault",
		Treasury:    "fees",
		Admin:       "ops",
		GracePeriod: 7 * 24 * time.Hour,
	}))

	if e.custodian != "vault" {
		t.Errorf("custodian = %q, want vault", e.custodian)
	}
	if e.treasury != "fees" {
		t.Errorf("treasury = %q, want fees", e.treasury)
	}
	if e.admin != "ops" {
		t.Errorf("admin = %q, want ops", e.admin)
	}
	if e.gracePeriod != 7*24*time.Hour {
		t.Errorf("grace period = %v, want 168h", e.gracePeriod)
	}
}

func TestWithConfigZeroFieldsKeepDefaults(t *testing.T) {
	e := New(nil, nil, WithConfig(Config{Admin: "ops"}))

	if e.custodian != DefaultCustodian {
		t.Errorf("custodian = %q, want default %q", e.custodian, DefaultCustodian)
	}
	if e.gracePeriod != DefaultGracePeriod {
		t.Errorf("grace period = %v, want default %v", e.gracePeriod, DefaultGracePeriod)
	}
	if e.treasury != "" {
		t.Errorf("treasury = %q, want unset", e.treasury)
	}
	if e.admin != "ops" {
		t.Errorf("admin = %q, want ops", e.admin)
	}
}
