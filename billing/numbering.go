package billing

import (
	"fmt"
	"time"
)

// NumberingDate returns the date encoded into the default invoice number of
// part index for the billed month: the month's last day, moved back one day
// per part so parts of one month get distinct numbers.
func NumberingDate(year, month, index int) time.Time {
	day := LastDayOfMonth(year, month) - index
	if day < 1 {
		day = 1
	}
	return Date(year, month, day)
}

// InvoiceNumber encodes a date as DDMMYYYY.
func InvoiceNumber(t time.Time) string {
	return fmt.Sprintf("%02d%02d%04d", t.Day(), int(t.Month()), t.Year())
}

// DueDate returns today plus the ruleset's offset.
func DueDate(today time.Time, rs Ruleset) time.Time {
	return today.AddDate(0, 0, rs.DueDateOffsetDays)
}
