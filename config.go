package factoring

import "time"

// Config holds engine configuration. Fields can be set programmatically
// or loaded from an application's configuration files and applied with
// WithConfig; zero-valued fields keep the engine defaults.
type Config struct {
	// Custodian is the account that holds escrowed funds
	// (default: "custodian").
	Custodian string `json:"custodian" mapstructure:"custodian" yaml:"custodian"`

	// Treasury is the account receiving settlement fees. When empty,
	// fees stay with the custodian.
	Treasury string `json:"treasury" mapstructure:"treasury" yaml:"treasury"`

	// Admin is the administrator address for privileged operations
	// (invoice verification, direct escrow release). When empty, those
	// operations are rejected for every caller.
	Admin string `json:"admin" mapstructure:"admin" yaml:"admin"`

	// GracePeriod applies to invoices without a per-invoice override
	// (default: 30 days).
	GracePeriod time.Duration `json:"grace_period" mapstructure:"grace_period" yaml:"grace_period"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Custodian:   DefaultCustodian,
		GracePeriod: DefaultGracePeriod,
	}
}

// WithConfig applies a Config. Zero-valued fields are left at their
// current settings so a partially populated Config composes with the
// other options.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		if cfg.Custodian != "" {
			e.custodian = cfg.Custodian
		}
		if cfg.Treasury != "" {
			e.treasury = cfg.Treasury
		}
		if cfg.Admin != "" {
			e.admin = cfg.Admin
		}
		if cfg.GracePeriod > 0 {
			e.gracePeriod = cfg.GracePeriod
		}
	}
}
