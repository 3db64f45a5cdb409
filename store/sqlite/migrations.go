package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations is the ordered schema history, tracked in
// factoring_schema_migrations. SQLite keeps the same shape as the
// PostgreSQL schema minus the partial-index syntax differences.
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
	amount          INTEGER NOT NULL,
	currency        TEXT NOT NULL,
	due_date        TIMESTAMP NOT NULL,
	status          TEXT NOT NULL,
	grace_period_ns INTEGER,
	description     TEXT NOT NULL DEFAULT '',
	funded_at       TIMESTAMP,
	paid_at         TIMESTAMP,
	defaulted_at    TIMESTAMP,
	cancelled_at    TIMESTAMP,
	metadata        TEXT,
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL
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
	amount                   INTEGER NOT NULL,
	currency                 TEXT NOT NULL,
	expected_return          INTEGER NOT NULL,
	expected_return_currency TEXT NOT NULL,
	status                   TEXT NOT NULL,
	placed_at                TIMESTAMP NOT NULL,
	accepted_at              TIMESTAMP,
	withdrawn_at             TIMESTAMP,
	expired_at               TIMESTAMP,
	created_at               TIMESTAMP NOT NULL,
	updated_at               TIMESTAMP NOT NULL
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
	amount      INTEGER NOT NULL,
	currency    TEXT NOT NULL,
	status      TEXT NOT NULL,
	locked_at   TIMESTAMP NOT NULL,
	released_at TIMESTAMP,
	refunded_at TIMESTAMP,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);
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
	amount                   INTEGER NOT NULL,
	currency                 TEXT NOT NULL,
	expected_return          INTEGER NOT NULL,
	expected_return_currency TEXT NOT NULL,
	status                   TEXT NOT NULL,
	completed_at             TIMESTAMP,
	defaulted_at             TIMESTAMP,
	created_at               TIMESTAMP NOT NULL,
	updated_at               TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_factoring_investments_invoice
	ON factoring_investments (invoice_id);
CREATE INDEX IF NOT EXISTS idx_factoring_investments_investor
	ON factoring_investments (investor);
`,
	},
}

// Migrate applies any unapplied schema migrations in order.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS factoring_schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("factoring/sqlite: create migrations table: %w", err)
	}

	var current sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM factoring_schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("factoring/sqlite: read schema version: %w", err)
	}

	for _, m := range migrations {
		if current.Valid && int64(m.version) <= current.Int64 {
			continue
		}
		if err := s.applyMigration(ctx, m.version, m.stmt); err != nil {
			return fmt.Errorf("factoring/sqlite: migration %d: %w", m.version, err)
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
		`INSERT INTO factoring_schema_migrations (version) VALUES (?)`, version); err != nil {
		return err
	}
	return tx.Commit()
}
