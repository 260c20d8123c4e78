/*
store.go - Persistence interface for calculator inputs

PURPOSE:
  The calculator is pure; everything it consumes (rulesets, companies,
  overrides, user edits, ad-hoc extras, the watermark) lives behind this
  interface. Different implementations use SQLite or memory.

KEY INTERFACES:
  RulesetStore:   Ruleset and company configuration
  SessionStore:   Overrides, draft edits and ad-hoc extras
  GenerationLog:  Generated invoices and the last-invoiced watermark
  Store:          All of the above

NOT-FOUND CONTRACT:
  Get and Delete methods return ErrRulesetNotFound / ErrExtraNotFound
  wrapped with context when the row doesn't exist.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - billing/store/memory.go: In-memory for testing

SEE ALSO:
  - planner/planner.go: Loads inputs through Store
*/
package billing

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// RulesetStore persists ruleset and company configuration.
type RulesetStore interface {
	// ListRulesets returns rulesets in declaration order.
	ListRulesets(ctx context.Context) ([]Ruleset, error)
	GetRuleset(ctx context.Context, id RulesetID) (Ruleset, error)

	// SaveRuleset inserts or replaces. New rulesets go to the end of the
	// declaration order.
	SaveRuleset(ctx context.Context, rs Ruleset) error
	DeleteRuleset(ctx context.Context, id RulesetID) error

	ListCompanies(ctx context.Context) ([]Company, error)
	SaveCompany(ctx context.Context, c Company) error
}

// =============================================================================
// SESSION INPUTS
// =============================================================================

// SessionStore persists what the user typed while reviewing drafts.
type SessionStore interface {
	Overrides(ctx context.Context) (Overrides, error)
	SetOverride(ctx context.Context, key PeriodKey, value decimal.Decimal) error
	ClearOverride(ctx context.Context, key PeriodKey) error

	Edits(ctx context.Context) (Edits, error)
	SaveEdit(ctx context.Context, draftID string, edit DraftEdit) error

	ListExtras(ctx context.Context) ([]AdhocExtra, error)
	SaveExtra(ctx context.Context, e AdhocExtra) error
	DeleteExtra(ctx context.Context, id string) error
}

// =============================================================================
// GENERATION LOG
// =============================================================================

// GenerationLog records what the generation driver produced.
type GenerationLog interface {
	RecordGenerated(ctx context.Context, inv GeneratedInvoice) error
	ListGenerated(ctx context.Context, year int) ([]GeneratedInvoice, error)

	// Watermark returns the last invoiced month of year (0 when none).
	Watermark(ctx context.Context, year int) (int, error)
	SetWatermark(ctx context.Context, year, month int) error
}

// Store is the full persistence surface used by the planner.
type Store interface {
	RulesetStore
	SessionStore
	GenerationLog
}
