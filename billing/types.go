/*
Package billing provides the recurring invoice draft engine.

PURPOSE:
  This package turns recurring billing rulesets (periodicity, entitlement
  day, salary history, invoice ceilings) into the list of invoice drafts
  that should be generated for the current billing window. It is pure:
  no I/O, no clock, no shared state. Callers load inputs, call the
  calculator, and persist whatever the user does with the result.

KEY CONCEPTS IN THIS FILE (types.go):
  - Ruleset: A recurring billing configuration
  - SalaryRule: Monthly contribution valid for a range of months
  - CustomerRule: Odd/even/default month to company mapping
  - Draft: One invoice to be generated
  - Status: Draft lifecycle owned by the generation driver

DESIGN PRINCIPLES:
  1. Precision: All money uses decimal.Decimal
  2. Determinism: Draft IDs are derived from (ruleset, year, month, part)
  3. Recompute, don't mutate: drafts are rebuilt wholesale on every change
     and reconciled with the previous list by MergeDrafts

USAGE:
  calc := billing.NewCalculator(billing.NewRandomPicker(0))
  result := calc.Compute(billing.Input{
      Rulesets:          rulesets,
      Year:              2025,
      CurrentMonth:      4,
      CurrentDay:        15,
      LastInvoicedMonth: 2,
  })

SEE ALSO:
  - calculator.go: The two-pass draft calculator
  - extra.go: Ad-hoc extra value application
  - merge.go: Reconciliation with previously displayed drafts
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type RulesetID string
type CompanyID string

// =============================================================================
// RULESET - Recurring billing configuration
// =============================================================================

// Ruleset is a recurring billing configuration for one contract.
type Ruleset struct {
	ID   RulesetID
	Name string

	// Periodicity decides which months close a billing period.
	Periodicity Periodicity

	// PeriodicityCustomValue is the period length in months for
	// PeriodCustomMonths.
	PeriodicityCustomValue int

	// EntitlementDay is the day of month after which the previous month
	// becomes billable.
	EntitlementDay int

	// DueDateOffsetDays is added to today to compute the due date.
	DueDateOffsetDays int

	// MaxInvoiceValue caps a single invoice. Nil disables splitting.
	// Must be positive when set; the factory rejects anything else.
	MaxInvoiceValue *decimal.Decimal

	// MinimizeInvoices carries sub-ceiling remainders into the next period
	// instead of billing them immediately (never in the flush month).
	MinimizeInvoices bool

	SalaryRules  []SalaryRule
	Rules        []CustomerRule
	Descriptions []string
	TemplatePath string
}

// maxValue returns the invoice ceiling and whether splitting is enabled.
func (r Ruleset) maxValue() (decimal.Decimal, bool) {
	if r.MaxInvoiceValue == nil || !r.MaxInvoiceValue.IsPositive() {
		return decimal.Zero, false
	}
	return *r.MaxInvoiceValue, true
}

// Contribution returns value minus deduction of the first salary rule
// covering the month, or zero when no rule covers it.
func (r Ruleset) Contribution(year, month int) decimal.Decimal {
	ym := YearMonth{Year: year, Month: month}
	for _, sr := range r.SalaryRules {
		if sr.Covers(ym) {
			return sr.Value.Sub(sr.Deduction)
		}
	}
	return decimal.Zero
}

// SalaryRule is a monthly contribution valid for [StartDate, EndDate].
// A zero EndDate means the rule is still running.
type SalaryRule struct {
	StartDate YearMonth
	EndDate   YearMonth
	Value     decimal.Decimal
	Deduction decimal.Decimal
}

// Covers reports whether the month falls inside the rule's range.
// An inverted range covers nothing.
func (sr SalaryRule) Covers(ym YearMonth) bool {
	if ym.Before(sr.StartDate) {
		return false
	}
	if sr.EndDate.IsZero() {
		return true
	}
	return !sr.EndDate.Before(ym)
}

// =============================================================================
// CUSTOMERS
// =============================================================================

type Condition string

const (
	ConditionOdd     Condition = "odd"
	ConditionEven    Condition = "even"
	ConditionDefault Condition = "default"
)

// CustomerRule maps months matching Condition to a company.
type CustomerRule struct {
	Condition Condition
	CompanyID CompanyID
}

// Company is a customer that can be invoiced.
type Company struct {
	ID      CompanyID
	Name    string
	Address string
	TaxID   string
	VATID   string
	Email   string
}

// =============================================================================
// DRAFT - One invoice to be generated
// =============================================================================

type Status string

const (
	StatusPending    Status = "pending"
	StatusGenerating Status = "generating"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// CanTransition reports whether the generation driver may move a draft
// from s to next.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending, "":
		return next == StatusGenerating
	case StatusGenerating:
		return next == StatusDone || next == StatusError
	case StatusError:
		return next == StatusGenerating || next == StatusPending
	default:
		return false
	}
}

// Advanced reports whether the draft has left pending and must not be
// re-derived.
func (s Status) Advanced() bool {
	return s == StatusGenerating || s == StatusDone
}

// Draft is one invoice the generation driver should produce.
type Draft struct {
	ID        string
	RulesetID RulesetID
	Year      int
	Month     int
	Index     int

	// Amount is the final invoice value.
	Amount decimal.Decimal

	// PeriodBaseSalary is the period's own contribution without carryover.
	// Overrides never change it.
	PeriodBaseSalary decimal.Decimal

	// MonthSalary is the period total including carryover, before splitting.
	MonthSalary decimal.Decimal

	// ExtraValue is the part of Amount that came from ad-hoc extra value.
	ExtraValue decimal.Decimal

	Label       string
	PeriodLabel string

	InvoiceNoOverride      string
	VariableSymbolOverride string
	Description            string

	CustomerID CompanyID
	IssueDate  time.Time
	DueDate    time.Time

	Status Status
}

// Key returns the period the draft belongs to.
func (d Draft) Key() PeriodKey {
	return PeriodKey{RulesetID: d.RulesetID, Year: d.Year, Month: d.Month}
}

// =============================================================================
// AD-HOC EXTRAS
// =============================================================================

// AdhocExtra is a reimbursable receipt or manually entered ad-hoc invoice.
// Selected extras are converted and summed by the caller into the extra
// value passed to the calculator.
type AdhocExtra struct {
	ID       string
	Amount   decimal.Decimal
	Currency string
	Rate     decimal.Decimal
	Selected bool
	Note     string
}

// Converted returns the amount in the invoicing currency.
func (e AdhocExtra) Converted() decimal.Decimal {
	if e.Rate.IsZero() {
		return e.Amount
	}
	return e.Amount.Mul(e.Rate)
}

// GeneratedInvoice records a draft that the generation driver finished.
type GeneratedInvoice struct {
	DraftID     string
	RulesetID   RulesetID
	Year        int
	Month       int
	Index       int
	Amount      decimal.Decimal
	FileName    string
	GeneratedAt time.Time
}

// MustParseDecimal parses s and returns zero on malformed input.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
