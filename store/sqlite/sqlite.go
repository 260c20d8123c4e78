/*
Package sqlite provides a SQLite-backed implementation of billing.Store.

PURPOSE:
  Persists everything the calculator reads and the generation driver
  writes: ruleset configuration, companies, per-period overrides, draft
  text edits, ad-hoc extras, generated invoice records and the
  last-invoiced watermark.

KEY TABLES:
  rulesets:           Ruleset JSON config in declaration order (position)
  companies:          Customers referenced by ruleset rules
  overrides:          User-entered period totals keyed by (ruleset, year, month)
  draft_edits:        Invoice number / variable symbol / description edits
  extras:             Ad-hoc extra items (adhoc:<uuid>)
  generated_invoices: One row per draft marked done
  watermarks:         Last invoiced month per year

RULESET STORAGE:
  Rulesets are stored as the factory JSON document in config_json so the
  schema does not change when the ruleset grows fields. Saving validates
  the document; loading parses it back through the same factory.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. ":memory:" databases are pinned to
  one connection since every connection would otherwise get its own
  empty database.

WAL MODE:
  File databases are opened with WAL (Write-Ahead Logging) so readers
  don't block the single writer.

USAGE:
  store, err := sqlite.New("./data/invoices.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := planner.New(store, ...)

SEE ALSO:
  - billing/store.go: Interface definitions
  - billing/store/memory.go: In-memory implementation for testing
  - factory/ruleset.go: config_json encoding
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/invoice-engine/billing"
	"github.com/warp/invoice-engine/factory"
)

// Store implements billing.Store using SQLite.
type Store struct {
	db      *sql.DB
	mu      sync.RWMutex
	factory *factory.RulesetFactory
}

var _ billing.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, factory: factory.NewRulesetFactory()}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Rulesets (declaration order matters: extra value lands on the first)
	CREATE TABLE IF NOT EXISTS rulesets (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		config_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rulesets_position
		ON rulesets(position);

	-- Companies
	CREATE TABLE IF NOT EXISTS companies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		address TEXT,
		tax_id TEXT,
		vat_id TEXT,
		email TEXT
	);

	-- Period overrides
	CREATE TABLE IF NOT EXISTS overrides (
		ruleset_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (ruleset_id, year, month)
	);

	-- Draft text edits; NULL means never edited
	CREATE TABLE IF NOT EXISTS draft_edits (
		draft_id TEXT PRIMARY KEY,
		invoice_no TEXT,
		variable_symbol TEXT,
		description TEXT
	);

	-- Ad-hoc extras
	CREATE TABLE IF NOT EXISTS extras (
		id TEXT PRIMARY KEY,
		amount TEXT NOT NULL,
		currency TEXT,
		rate TEXT NOT NULL,
		selected INTEGER NOT NULL DEFAULT 0,
		note TEXT,
		created_at TEXT NOT NULL
	);

	-- Generated invoices
	CREATE TABLE IF NOT EXISTS generated_invoices (
		draft_id TEXT PRIMARY KEY,
		ruleset_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		part_index INTEGER NOT NULL,
		amount TEXT NOT NULL,
		file_name TEXT NOT NULL,
		generated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_generated_year
		ON generated_invoices(year, month);

	-- Last invoiced month per year
	CREATE TABLE IF NOT EXISTS watermarks (
		year INTEGER PRIMARY KEY,
		month INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RULESET STORE
// =============================================================================

// ListRulesets returns rulesets in declaration order.
func (s *Store) ListRulesets(ctx context.Context) ([]billing.Ruleset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, config_json FROM rulesets ORDER BY position")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rulesets []billing.Ruleset
	for rows.Next() {
		var id, configJSON string
		if err := rows.Scan(&id, &configJSON); err != nil {
			return nil, err
		}
		rs, err := s.factory.ParseRuleset([]byte(configJSON))
		if err != nil {
			return nil, fmt.Errorf("stored ruleset %s: %w", id, err)
		}
		rulesets = append(rulesets, rs)
	}
	return rulesets, rows.Err()
}

// GetRuleset retrieves a ruleset by ID.
func (s *Store) GetRuleset(ctx context.Context, id billing.RulesetID) (billing.Ruleset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var configJSON string
	err := s.db.QueryRowContext(ctx, "SELECT config_json FROM rulesets WHERE id = ?", string(id)).Scan(&configJSON)
	if err == sql.ErrNoRows {
		return billing.Ruleset{}, fmt.Errorf("ruleset %s: %w", id, billing.ErrRulesetNotFound)
	}
	if err != nil {
		return billing.Ruleset{}, err
	}
	return s.factory.ParseRuleset([]byte(configJSON))
}

// SaveRuleset validates and upserts a ruleset. Updates keep the position;
// inserts go to the end.
func (s *Store) SaveRuleset(ctx context.Context, rs billing.Ruleset) error {
	if err := s.factory.Validate(s.factory.ToJSON(rs)); err != nil {
		return err
	}
	configJSON, err := s.factory.Marshal(rs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO rulesets (id, position, name, config_json, created_at, updated_at)
		VALUES (?, (SELECT COALESCE(MAX(position), 0) + 1 FROM rulesets), ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			config_json = excluded.config_json,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, query, string(rs.ID), rs.Name, string(configJSON), now, now)
	return err
}

// DeleteRuleset removes a ruleset and its overrides.
func (s *Store) DeleteRuleset(ctx context.Context, id billing.RulesetID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM rulesets WHERE id = ?", string(id))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ruleset %s: %w", id, billing.ErrRulesetNotFound)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM overrides WHERE ruleset_id = ?", string(id)); err != nil {
		return err
	}
	return tx.Commit()
}

// ListCompanies returns all companies sorted by name.
func (s *Store) ListCompanies(ctx context.Context) ([]billing.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, address, tax_id, vat_id, email FROM companies ORDER BY name",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var companies []billing.Company
	for rows.Next() {
		var c billing.Company
		var id string
		var address, taxID, vatID, email sql.NullString
		if err := rows.Scan(&id, &c.Name, &address, &taxID, &vatID, &email); err != nil {
			return nil, err
		}
		c.ID = billing.CompanyID(id)
		c.Address = address.String
		c.TaxID = taxID.String
		c.VATID = vatID.String
		c.Email = email.String
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

// SaveCompany upserts a company.
func (s *Store) SaveCompany(ctx context.Context, c billing.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO companies (id, name, address, tax_id, vat_id, email)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			address = excluded.address,
			tax_id = excluded.tax_id,
			vat_id = excluded.vat_id,
			email = excluded.email
	`

	_, err := s.db.ExecContext(ctx, query,
		string(c.ID), c.Name, nullString(c.Address), nullString(c.TaxID),
		nullString(c.VATID), nullString(c.Email),
	)
	return err
}

// =============================================================================
// SESSION STORE
// =============================================================================

// Overrides returns every stored period override.
func (s *Store) Overrides(ctx context.Context) (billing.Overrides, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT ruleset_id, year, month, value FROM overrides")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	overrides := make(billing.Overrides)
	for rows.Next() {
		var key billing.PeriodKey
		var rulesetID, value string
		if err := rows.Scan(&rulesetID, &key.Year, &key.Month, &value); err != nil {
			return nil, err
		}
		key.RulesetID = billing.RulesetID(rulesetID)
		v, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("override %s: %w", key, err)
		}
		overrides[key] = v
	}
	return overrides, rows.Err()
}

// SetOverride upserts the override for a period.
func (s *Store) SetOverride(ctx context.Context, key billing.PeriodKey, value decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO overrides (ruleset_id, year, month, value, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(ruleset_id, year, month) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, query, string(key.RulesetID), key.Year, key.Month, value.String(), now)
	return err
}

// ClearOverride removes the override for a period. Clearing a missing
// override is not an error.
func (s *Store) ClearOverride(ctx context.Context, key billing.PeriodKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM overrides WHERE ruleset_id = ? AND year = ? AND month = ?",
		string(key.RulesetID), key.Year, key.Month,
	)
	return err
}

// Edits returns all stored draft edits.
func (s *Store) Edits(ctx context.Context) (billing.Edits, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT draft_id, invoice_no, variable_symbol, description FROM draft_edits")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	edits := make(billing.Edits)
	for rows.Next() {
		var draftID string
		var invoiceNo, variableSymbol, description sql.NullString
		if err := rows.Scan(&draftID, &invoiceNo, &variableSymbol, &description); err != nil {
			return nil, err
		}
		edits[draftID] = billing.DraftEdit{
			InvoiceNo:      stringPtr(invoiceNo),
			VariableSymbol: stringPtr(variableSymbol),
			Description:    stringPtr(description),
		}
	}
	return edits, rows.Err()
}

// SaveEdit merges edit into the stored row; nil fields keep the stored
// value and empty strings reset the column to NULL. Rows left without any
// edit are removed.
func (s *Store) SaveEdit(ctx context.Context, draftID string, edit billing.DraftEdit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO draft_edits (draft_id, invoice_no, variable_symbol, description)
		VALUES (?1, NULLIF(?2, ''), NULLIF(?3, ''), NULLIF(?4, ''))
		ON CONFLICT(draft_id) DO UPDATE SET
			invoice_no = CASE WHEN ?2 IS NULL THEN draft_edits.invoice_no ELSE NULLIF(?2, '') END,
			variable_symbol = CASE WHEN ?3 IS NULL THEN draft_edits.variable_symbol ELSE NULLIF(?3, '') END,
			description = CASE WHEN ?4 IS NULL THEN draft_edits.description ELSE NULLIF(?4, '') END
	`
	if _, err := tx.ExecContext(ctx, query,
		draftID, ptrString(edit.InvoiceNo), ptrString(edit.VariableSymbol), ptrString(edit.Description),
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM draft_edits
		WHERE draft_id = ? AND invoice_no IS NULL AND variable_symbol IS NULL AND description IS NULL
	`, draftID); err != nil {
		return err
	}
	return tx.Commit()
}

// ListExtras returns ad-hoc extras in creation order.
func (s *Store) ListExtras(ctx context.Context) ([]billing.AdhocExtra, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, amount, currency, rate, selected, note FROM extras ORDER BY created_at, rowid",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var extras []billing.AdhocExtra
	for rows.Next() {
		var e billing.AdhocExtra
		var amount, rate string
		var currency, note sql.NullString
		if err := rows.Scan(&e.ID, &amount, &currency, &rate, &e.Selected, &note); err != nil {
			return nil, err
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("extra %s amount: %w", e.ID, err)
		}
		if e.Rate, err = decimal.NewFromString(rate); err != nil {
			return nil, fmt.Errorf("extra %s rate: %w", e.ID, err)
		}
		e.Currency = currency.String
		e.Note = note.String
		extras = append(extras, e)
	}
	return extras, rows.Err()
}

// SaveExtra upserts an ad-hoc extra.
func (s *Store) SaveExtra(ctx context.Context, e billing.AdhocExtra) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO extras (id, amount, currency, rate, selected, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			amount = excluded.amount,
			currency = excluded.currency,
			rate = excluded.rate,
			selected = excluded.selected,
			note = excluded.note
	`

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.Amount.String(), nullString(e.Currency), e.Rate.String(), e.Selected, nullString(e.Note), now,
	)
	return err
}

// DeleteExtra removes an ad-hoc extra.
func (s *Store) DeleteExtra(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM extras WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("extra %s: %w", id, billing.ErrExtraNotFound)
	}
	return nil
}

// =============================================================================
// GENERATION LOG
// =============================================================================

// RecordGenerated upserts the record of a generated draft.
func (s *Store) RecordGenerated(ctx context.Context, inv billing.GeneratedInvoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO generated_invoices (draft_id, ruleset_id, year, month, part_index, amount, file_name, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(draft_id) DO UPDATE SET
			amount = excluded.amount,
			file_name = excluded.file_name,
			generated_at = excluded.generated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		inv.DraftID, string(inv.RulesetID), inv.Year, inv.Month, inv.Index,
		inv.Amount.String(), inv.FileName, inv.GeneratedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// ListGenerated returns the generated invoices of a year by month and part.
func (s *Store) ListGenerated(ctx context.Context, year int) ([]billing.GeneratedInvoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT draft_id, ruleset_id, year, month, part_index, amount, file_name, generated_at
		FROM generated_invoices
		WHERE year = ?
		ORDER BY month, ruleset_id, part_index
	`, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []billing.GeneratedInvoice
	for rows.Next() {
		var inv billing.GeneratedInvoice
		var rulesetID, amount, generatedAt string
		if err := rows.Scan(&inv.DraftID, &rulesetID, &inv.Year, &inv.Month, &inv.Index, &amount, &inv.FileName, &generatedAt); err != nil {
			return nil, err
		}
		inv.RulesetID = billing.RulesetID(rulesetID)
		inv.Amount = billing.MustParseDecimal(amount)
		inv.GeneratedAt, _ = time.Parse(time.RFC3339, generatedAt)
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// Watermark returns the stored last invoiced month of year, 0 when unset.
func (s *Store) Watermark(ctx context.Context, year int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var month int
	err := s.db.QueryRowContext(ctx, "SELECT month FROM watermarks WHERE year = ?", year).Scan(&month)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return month, err
}

// SetWatermark stores the last invoiced month of year.
func (s *Store) SetWatermark(ctx context.Context, year, month int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watermarks (year, month) VALUES (?, ?)
		ON CONFLICT(year) DO UPDATE SET month = excluded.month
	`, year, month)
	return err
}

// =============================================================================
// UTILITIES
// =============================================================================

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// ptrString maps nil to NULL and keeps explicit empty strings.
func ptrString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
