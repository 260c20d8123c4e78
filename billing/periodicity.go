package billing

import "fmt"

// =============================================================================
// PERIODICITY - Which months close a billing period
// =============================================================================

// Periodicity defines how billing periods are laid out over a year.
type Periodicity string

const (
	PeriodMonthly      Periodicity = "monthly"
	PeriodQuarterly    Periodicity = "quarterly"
	PeriodYearly       Periodicity = "yearly"
	PeriodCustomMonths Periodicity = "custom_months" // Every PeriodicityCustomValue months
	PeriodCustomDays   Periodicity = "custom_days"   // Approximated at month level
)

// IsBillingMonth reports whether month closes a billing period for the
// ruleset. Unknown periodicities bill every month.
func IsBillingMonth(month int, rs Ruleset) bool {
	switch rs.Periodicity {
	case PeriodMonthly, PeriodCustomDays:
		return true
	case PeriodQuarterly:
		return month%3 == 0
	case PeriodYearly:
		return month == 12
	case PeriodCustomMonths:
		if rs.PeriodicityCustomValue <= 0 {
			return true
		}
		return month%rs.PeriodicityCustomValue == 0
	default:
		return true
	}
}

// PeriodLabel returns the human-readable label of the period that ends in
// month, e.g. "3/25", "Q1 25", "2025" or "01-03/25".
func PeriodLabel(year, month int, rs Ruleset) string {
	yy := YearShort(year)
	switch rs.Periodicity {
	case PeriodQuarterly:
		return fmt.Sprintf("Q%d %02d", (month+2)/3, yy)
	case PeriodYearly:
		return fmt.Sprintf("%d", year)
	case PeriodCustomMonths:
		if rs.PeriodicityCustomValue > 0 {
			start := month - rs.PeriodicityCustomValue + 1
			return fmt.Sprintf("%02d-%02d/%02d", start, month, yy)
		}
	}
	return fmt.Sprintf("%d/%02d", month, yy)
}
