package billing

import (
	"fmt"
	"time"
)

// =============================================================================
// YEAR MONTH - Month granularity used by salary history
// =============================================================================

// YearMonth is a calendar month, serialized as "YYYY-MM".
type YearMonth struct {
	Year  int
	Month int
}

// ParseYearMonth parses "YYYY-MM". An empty string yields the zero value.
func ParseYearMonth(s string) (YearMonth, error) {
	if s == "" {
		return YearMonth{}, nil
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return YearMonth{}, fmt.Errorf("invalid month %q (use YYYY-MM): %w", s, err)
	}
	return YearMonth{Year: t.Year(), Month: int(t.Month())}, nil
}

func (ym YearMonth) IsZero() bool { return ym.Year == 0 && ym.Month == 0 }

func (ym YearMonth) Before(other YearMonth) bool {
	if ym.Year != other.Year {
		return ym.Year < other.Year
	}
	return ym.Month < other.Month
}

func (ym YearMonth) String() string {
	if ym.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", ym.Year, ym.Month)
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

// YearShort returns the two-digit year used in labels and file names.
func YearShort(year int) int { return year % 100 }

// LastDayOfMonth returns the number of days in the month.
func LastDayOfMonth(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Date builds a UTC midnight date.
func Date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
