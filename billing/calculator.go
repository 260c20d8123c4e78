/*
calculator.go - Billing-window draft calculator

PURPOSE:
  Turns each ruleset's salary history into the invoice drafts for the
  current billing window, applying ceiling splits, minimize-invoices
  carryover and user overrides.

BILLING WINDOW:
  endMonth   = currentDay > entitlementDay ? currentMonth-1 : currentMonth-2
  startMonth = lastInvoicedMonth + 1
  The flush month is the last billing month in [startMonth, endMonth].
  Everything accumulated must be billed there, minimize or not.

TWO PASSES:
  Pass 1 (baseline) folds the window without overrides and records the
  calculated total at each billing month. It emits nothing; its totals are
  returned as Baselines so callers can show or reset overrides.

  Pass 2 (real) keeps two accumulators:
    acc - everything unbilled so far, carryover included
    own - this period's own contribution
  At each billing month:
    base      = own                         (PeriodBaseSalary)
    carryover = acc - own
    effective = override exists && override != base
    total     = carryover + (effective ? override : base)
  Then full ceiling chunks are emitted (only the first one in a
  non-flush minimize month) and the remainder is billed or carried.

EXAMPLE:
  ceiling 90000, flush month total 205000:
    90000  "3/25"
    90000  "3/25 Remainder 1/2"
    25000  "3/25 Remainder 2/2"

SEE ALSO:
  - split.go: Shared chunking and label helpers
  - extra.go: Applied after the calculator for ad-hoc extra value
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// INPUT / OUTPUT
// =============================================================================

// Input is everything the calculator needs for one run.
type Input struct {
	Rulesets []Ruleset

	Year         int
	CurrentMonth int
	CurrentDay   int

	// LastInvoicedMonth is the watermark: the highest month already
	// generated in Year (0 when nothing has been generated yet).
	LastInvoicedMonth int

	Overrides Overrides

	// ExtraValue is the aggregated ad-hoc value, already converted.
	ExtraValue decimal.Decimal

	// Companies enables customer resolution. When nil, drafts are emitted
	// without a customer and no period is skipped for lack of one.
	Companies []Company

	// Today drives due dates. Zero means Year/CurrentMonth/CurrentDay.
	Today time.Time
}

func (in Input) today() time.Time {
	if !in.Today.IsZero() {
		return in.Today
	}
	return Date(in.Year, in.CurrentMonth, in.CurrentDay)
}

// Baseline describes one billing period as computed without overrides.
type Baseline struct {
	// CalculatedTotal is the pass-1 running total at the billing month,
	// carryover included.
	CalculatedTotal decimal.Decimal

	// PeriodBaseSalary is the period's own contribution in pass 2.
	PeriodBaseSalary decimal.Decimal

	// OverrideEffective reports whether a stored override changed the
	// billed total.
	OverrideEffective bool
}

// Result is the calculator output.
type Result struct {
	Drafts    []Draft
	Baselines map[PeriodKey]Baseline
}

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator computes drafts. It holds no state besides the description
// picker and may be shared.
type Calculator struct {
	picker Picker
}

// NewCalculator returns a calculator using picker for descriptions, or a
// time-seeded random picker when picker is nil.
func NewCalculator(picker Picker) *Calculator {
	if picker == nil {
		picker = NewRandomPicker(0)
	}
	return &Calculator{picker: picker}
}

// ComputeDrafts runs the calculator with a random description picker and
// returns only the drafts.
func ComputeDrafts(rulesets []Ruleset, year, currentMonth, currentDay, lastInvoicedMonth int, overrides Overrides) []Draft {
	return NewCalculator(nil).Compute(Input{
		Rulesets:          rulesets,
		Year:              year,
		CurrentMonth:      currentMonth,
		CurrentDay:        currentDay,
		LastInvoicedMonth: lastInvoicedMonth,
		Overrides:         overrides,
	}).Drafts
}

// Compute returns the drafts for every ruleset in declaration order, then
// month ascending, then part ascending. Extra value, when present, lands on
// the first ruleset's latest billed month.
func (c *Calculator) Compute(in Input) Result {
	result := Result{Baselines: make(map[PeriodKey]Baseline)}

	for _, rs := range in.Rulesets {
		w, ok := billingWindow(rs, in)
		if !ok {
			continue
		}
		calculated := baselineTotals(rs, w)
		drafts := c.accumulate(rs, w, in, calculated, result.Baselines)
		result.Drafts = append(result.Drafts, drafts...)
	}

	if !in.ExtraValue.IsZero() && len(in.Rulesets) > 0 {
		first := in.Rulesets[0]
		if month, ok := lastBilledMonth(result.Drafts, first.ID, in.Year); ok {
			result.Drafts = c.ApplyExtraValue(result.Drafts, in.ExtraValue, first, in.Year, month)
		}
	}

	return result
}

// =============================================================================
// WINDOW
// =============================================================================

type window struct {
	year  int
	start int
	end   int
	flush int
}

func (w window) months() []int {
	months := make([]int, 0, w.end-w.start+1)
	for m := w.start; m <= w.end; m++ {
		months = append(months, m)
	}
	return months
}

// billingWindow returns the ruleset's window, or false when nothing is
// billable yet or the window holds no billing month.
func billingWindow(rs Ruleset, in Input) (window, bool) {
	end := in.CurrentMonth - 2
	if in.CurrentDay > rs.EntitlementDay {
		end = in.CurrentMonth - 1
	}
	start := in.LastInvoicedMonth + 1
	if start < 1 {
		start = 1
	}
	if start > end {
		return window{}, false
	}

	flush := 0
	for m := start; m <= end; m++ {
		if IsBillingMonth(m, rs) {
			flush = m
		}
	}
	if flush == 0 {
		return window{}, false
	}
	return window{year: in.Year, start: start, end: end, flush: flush}, true
}

// =============================================================================
// PASS 1 - Baseline totals without overrides
// =============================================================================

func baselineTotals(rs Ruleset, w window) map[int]decimal.Decimal {
	totals := make(map[int]decimal.Decimal)
	ceiling, hasCeiling := rs.maxValue()
	acc := decimal.Zero

	for _, m := range w.months() {
		acc = acc.Add(rs.Contribution(w.year, m))
		if !IsBillingMonth(m, rs) {
			continue
		}
		totals[m] = acc

		if hasCeiling {
			for acc.GreaterThanOrEqual(ceiling) {
				acc = acc.Sub(ceiling)
			}
		}
		if hasCeiling && acc.IsPositive() && rs.MinimizeInvoices && m != w.flush {
			continue
		}
		acc = decimal.Zero
	}
	return totals
}

// =============================================================================
// PASS 2 - Real accumulation with overrides
// =============================================================================

func (c *Calculator) accumulate(rs Ruleset, w window, in Input, calculated map[int]decimal.Decimal, baselines map[PeriodKey]Baseline) []Draft {
	var drafts []Draft
	ceiling, hasCeiling := rs.maxValue()
	today := in.today()

	acc := decimal.Zero
	own := decimal.Zero

	for _, m := range w.months() {
		contribution := rs.Contribution(w.year, m)
		acc = acc.Add(contribution)
		own = own.Add(contribution)
		if !IsBillingMonth(m, rs) {
			continue
		}

		key := PeriodKey{RulesetID: rs.ID, Year: w.year, Month: m}
		flush := m == w.flush
		base := own
		carryover := acc.Sub(own)

		periodOwn := base
		override, found := in.Overrides[key]
		effective := found && !override.Equal(base)
		if effective {
			periodOwn = override
		}
		total := carryover.Add(periodOwn)

		baselines[key] = Baseline{
			CalculatedTotal:   calculated[m],
			PeriodBaseSalary:  base,
			OverrideEffective: effective,
		}

		var customer Company
		if in.Companies != nil {
			var ok bool
			customer, ok = FindCustomerForMonth(rs, m, in.Companies)
			if !ok {
				acc, own = decimal.Zero, decimal.Zero
				continue
			}
		}

		minimizing := rs.MinimizeInvoices && hasCeiling && !flush
		finalizedByOverride := effective && hasCeiling && override.LessThan(ceiling)

		var amounts []decimal.Decimal
		carried := decimal.Zero
		switch {
		case !hasCeiling:
			if r := total.Round(0); r.IsPositive() {
				amounts = append(amounts, r)
			}
		case !minimizing || finalizedByOverride:
			amounts = splitTotal(total, ceiling)
		default:
			// At most one full invoice; the rest waits for a later period.
			remaining := total
			if remaining.GreaterThanOrEqual(ceiling) {
				amounts = append(amounts, ceiling)
				remaining = remaining.Sub(ceiling)
			}
			if remaining.IsPositive() {
				carried = remaining
			}
		}

		periodLabel := PeriodLabel(w.year, m, rs)
		for i, amount := range amounts {
			issued := NumberingDate(w.year, m, i)
			number := InvoiceNumber(issued)
			drafts = append(drafts, Draft{
				ID:                     DraftID(rs.ID, w.year, m, i),
				RulesetID:              rs.ID,
				Year:                   w.year,
				Month:                  m,
				Index:                  i,
				Amount:                 amount,
				PeriodBaseSalary:       base,
				MonthSalary:            total,
				Label:                  partLabel(periodLabel, flush, i, len(amounts), carried.IsPositive()),
				PeriodLabel:            periodLabel,
				InvoiceNoOverride:      number,
				VariableSymbolOverride: number,
				Description:            c.picker.Pick(rs.Descriptions),
				CustomerID:             customer.ID,
				IssueDate:              issued,
				DueDate:                DueDate(today, rs),
				Status:                 StatusPending,
			})
		}

		acc = carried
		own = decimal.Zero
	}
	return drafts
}

func lastBilledMonth(drafts []Draft, rulesetID RulesetID, year int) (int, bool) {
	month, found := 0, false
	for _, d := range drafts {
		if d.RulesetID == rulesetID && d.Year == year && d.Month > month {
			month, found = d.Month, true
		}
	}
	return month, found
}
