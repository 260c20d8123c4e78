package billing

// FindCustomerForMonth returns the company selected by the ruleset's
// customer rules for month. Rules are evaluated in order; a matching rule
// whose company cannot be resolved does not stop the scan.
//
// The second return value is false when no company resolves, which the
// calculator treats as "skip this period".
func FindCustomerForMonth(rs Ruleset, month int, companies []Company) (Company, bool) {
	for _, rule := range rs.Rules {
		if !rule.Condition.Matches(month) {
			continue
		}
		for _, c := range companies {
			if c.ID == rule.CompanyID {
				return c, true
			}
		}
	}
	return Company{}, false
}

// Matches reports whether the condition selects month.
func (c Condition) Matches(month int) bool {
	switch c {
	case ConditionOdd:
		return month%2 != 0
	case ConditionEven:
		return month%2 == 0
	case ConditionDefault:
		return true
	default:
		return false
	}
}
