package billing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SPLITTING & PART LABELS
// =============================================================================
// Every site that turns a period total into invoices (full chunks, trailing
// remainder, extra-value re-split) goes through splitTotal and partLabel so
// part counts and suffixes agree.

// splitTotal splits total into invoices of at most ceiling. Full chunks carry
// exactly ceiling; the trailing remainder is rounded to whole units and dropped
// when it rounds to zero.
func splitTotal(total, ceiling decimal.Decimal) []decimal.Decimal {
	var amounts []decimal.Decimal
	rest := total
	for rest.GreaterThanOrEqual(ceiling) {
		amounts = append(amounts, ceiling)
		rest = rest.Sub(ceiling)
	}
	if r := rest.Round(0); r.IsPositive() {
		amounts = append(amounts, r)
	}
	return amounts
}

// partLabel returns the draft label for part index of count invoices
// emitted for one period.
//
//   - Flush month, count > 1: every part after the first is
//     "Remainder i/(count-1)".
//   - Other months, when the period was split (several invoices, or part
//     of the total carried forward): "Part i+1".
func partLabel(periodLabel string, flush bool, index, count int, carried bool) string {
	if flush {
		if count > 1 && index > 0 {
			return fmt.Sprintf("%s Remainder %d/%d", periodLabel, index, count-1)
		}
		return periodLabel
	}
	if count > 1 || carried {
		return fmt.Sprintf("%s Part %d", periodLabel, index+1)
	}
	return periodLabel
}
