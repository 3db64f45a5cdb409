package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations is the ordered schema history. Each entry runs once, tracked
// in factoring_schema_migrations; appending is the only legal change.
var migrations = []struct {
	version int
	stmt    string
}{
	{
		version: 1,
		stmt: `
CREATE TABLE IF NOT EXISTS factoring_invoices (
	id              TEXT PRIMARY KEY,
	business        TEXT NOT NULL,
	amount          BIGINT NOT NULL,
	currency        TEXT NOT NULL,
	due_date        TIMESTAMPTZ NOT NULL,
	status          TEXT NOT NULL,
	grace_period_ns BIGINT,
	description     TEXT NOT NULL DEFAULT '',
	funded_at       TIMESTAMPTZ,
	paid_at         TIMESTAMPTZ,
	defaulted_at    TIMESTAMPTZ,
	cancelled_at    TIMESTAMPTZ,
	metadata        JSONB,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_factoring_invoices_status ON factoring_invoices (status);
CREATE INDEX IF NOT EXISTS idx_factoring_invoices_business ON factoring_invoices (business);
`,
	},
	{
		version: 2,
		stmt: `
CREATE TABLE IF NOT EXISTS factoring_bids (
	id                       TEXT PRIMARY KEY,
	invoice_id               TEXT NOT NULL REFERENCES factoring_invoices (id),
	investor                 TEXT NOT NULL,
	amount                   BIGINT NOT NULL,
	currency                 TEXT NOT NULL,
	expected_return          BIGINT NOT NULL,
	expected_return_currency TEXT NOT NULL,
	status                   TEXT NOT NULL,
	placed_at                TIMESTAMPTZ NOT NULL,
	accepted_at              TIMESTAMPTZ,
	withdrawn_at             TIMESTAMPTZ,
	expired_at               TIMESTAMPTZ,
	created_at               TIMESTAMPTZ NOT NULL,
	updated_at               TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_factoring_bids_invoice ON factoring_bids (invoice_id);
CREATE INDEX IF NOT EXISTS idx_factoring_bids_investor ON factoring_bids (investor);
`,
	},
	{
		version: 3,
		stmt: `
CREATE TABLE IF NOT EXISTS factoring_escrows (
	id          TEXT PRIMARY KEY,
	invoice_id  TEXT NOT NULL REFERENCES factoring_invoices (id),
	investor    TEXT NOT NULL,
	amount      BIGINT NOT NULL,
	currency    TEXT NOT NULL,
	status      TEXT NOT NULL,
	locked_at   TIMESTAMPTZ NOT NULL,
	released_at TIMESTAMPTZ,
	refunded_at TIMESTAMPTZ,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
-- At most one locked escrow per invoice, enforced by the database even if
-- the engine-level check races.
CREATE UNIQUE INDEX IF NOT EXISTS idx_factoring_escrows_active
	ON factoring_escrows (invoice_id) WHERE status = 'locked';
`,
	},
	{
		version: 4,
		stmt: `
CREATE TABLE IF NOT EXISTS factoring_investments (
	id                       TEXT PRIMARY KEY,
	investor                 TEXT NOT NULL,
	invoice_id               TEXT NOT NULL REFERENCES factoring_invoices (id),
	escrow_id                TEXT NOT NULL REFERENCES factoring_escrows (id),
	amount                   BIGINT NOT NULL,
	currency                 TEXT NOT NULL,
	expected_return          BIGINT NOT NULL,
	expected_return_currency TEXT NOT NULL,
	status                   TEXT NOT NULL,
	completed_at             TIMESTAMPTZ,
	defaulted_at             TIMESTAMPTZ,
	created_at               TIMESTAMPTZ NOT NULL,
	updated_at               TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_factoring_investments_invoice
	ON factoring_investments (invoice_id);
CREATE INDEX IF NOT EXISTS idx_factoring_investments_investor
	ON factoring_investments (investor);
`,
	},
}

// Migrate applies any unapplied schema migrations in order, each in its
// own transaction.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS factoring_schema_migrations (
			version    INT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("factoring/postgres: create migrations table: %w", err)
	}

	var current sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM factoring_schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("factoring/postgres: read schema version: %w", err)
	}

	for _, m := range migrations {
		if current.Valid && int64(m.version) <= current.Int64 {
			continue
		}
		if err := s.applyMigration(ctx, m.version, m.stmt); err != nil {
			return fmt.Errorf("factoring/postgres: migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, version int, stmt string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO factoring_schema_migrations (version) VALUES ($1)`, version); err != nil {
		return err
	}
	return tx.Commit()
}
