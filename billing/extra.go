package billing

import "github.com/shopspring/decimal"

// =============================================================================
// EXTRA VALUE - Ad-hoc value merged into the last billed month
// =============================================================================

// ApplyExtraValue adds extra onto the drafts of rs for (year, month) and
// re-splits them. Drafts of other rulesets and months pass through
// unchanged and keep their position.
//
// Without a ceiling the month collapses into a single draft. With one, the
// new total is re-split into full chunks plus a remainder, and each new
// draft records as ExtraValue whatever part of it the original total no
// longer covers, filling forward.
func (c *Calculator) ApplyExtraValue(drafts []Draft, extra decimal.Decimal, rs Ruleset, year, month int) []Draft {
	var last []Draft
	for _, d := range drafts {
		if d.RulesetID == rs.ID && d.Year == year && d.Month == month {
			last = append(last, d)
		}
	}
	if len(last) == 0 || extra.IsZero() {
		return drafts
	}

	baseTotal := decimal.Zero
	for _, d := range last {
		baseTotal = baseTotal.Add(d.Amount)
	}
	newTotal := baseTotal.Add(extra)

	var amounts, extras []decimal.Decimal
	if ceiling, ok := rs.maxValue(); ok {
		amounts = splitTotal(newTotal, ceiling)
		baseRemaining := baseTotal
		for _, amount := range amounts {
			fromBase := decimal.Min(amount, decimal.Max(baseRemaining, decimal.Zero))
			baseRemaining = baseRemaining.Sub(fromBase)
			extras = append(extras, amount.Sub(fromBase))
		}
	} else {
		amounts = []decimal.Decimal{newTotal.Round(0)}
		extras = []decimal.Decimal{extra}
	}

	regenerated := make([]Draft, 0, len(amounts))
	for i, amount := range amounts {
		tmpl := last[0]
		if i < len(last) {
			tmpl = last[i]
		}
		d := tmpl
		d.ID = DraftID(rs.ID, year, month, i)
		d.Index = i
		d.Amount = amount
		d.MonthSalary = tmpl.MonthSalary.Add(extra)
		d.ExtraValue = extras[i]
		d.Label = partLabel(tmpl.PeriodLabel, true, i, len(amounts), false)
		if i >= len(last) {
			d.IssueDate = NumberingDate(year, month, i)
			d.InvoiceNoOverride = InvoiceNumber(d.IssueDate)
			d.VariableSymbolOverride = d.InvoiceNoOverride
			d.Description = c.picker.Pick(rs.Descriptions)
		}
		d.Status = StatusPending
		regenerated = append(regenerated, d)
	}

	out := make([]Draft, 0, len(drafts)-len(last)+len(regenerated))
	inserted := false
	for _, d := range drafts {
		if d.RulesetID == rs.ID && d.Year == year && d.Month == month {
			if !inserted {
				out = append(out, regenerated...)
				inserted = true
			}
			continue
		}
		out = append(out, d)
	}
	return out
}
