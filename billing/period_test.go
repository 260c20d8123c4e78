package billing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/invoice-engine/billing"
)

func TestIsBillingMonth(t *testing.T) {
	tests := []struct {
		name   string
		rs     billing.Ruleset
		months []int
	}{
		{"monthly", billing.Ruleset{Periodicity: billing.PeriodMonthly}, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}},
		{"quarterly", billing.Ruleset{Periodicity: billing.PeriodQuarterly}, []int{3, 6, 9, 12}},
		{"yearly", billing.Ruleset{Periodicity: billing.PeriodYearly}, []int{12}},
		{"every 4 months", billing.Ruleset{Periodicity: billing.PeriodCustomMonths, PeriodicityCustomValue: 4}, []int{4, 8, 12}},
		{"custom months without value", billing.Ruleset{Periodicity: billing.PeriodCustomMonths}, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}},
		{"custom days", billing.Ruleset{Periodicity: billing.PeriodCustomDays, PeriodicityCustomValue: 45}, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []int
			for m := 1; m <= 12; m++ {
				if billing.IsBillingMonth(m, tt.rs) {
					got = append(got, m)
				}
			}
			assert.Equal(t, tt.months, got)
		})
	}
}

func TestPeriodLabel(t *testing.T) {
	tests := []struct {
		periodicity billing.Periodicity
		custom      int
		month       int
		want        string
	}{
		{billing.PeriodMonthly, 0, 3, "3/25"},
		{billing.PeriodMonthly, 0, 11, "11/25"},
		{billing.PeriodQuarterly, 0, 3, "Q1 25"},
		{billing.PeriodQuarterly, 0, 12, "Q4 25"},
		{billing.PeriodYearly, 0, 12, "2025"},
		{billing.PeriodCustomMonths, 3, 6, "04-06/25"},
		{billing.PeriodCustomDays, 30, 3, "3/25"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			rs := billing.Ruleset{Periodicity: tt.periodicity, PeriodicityCustomValue: tt.custom}
			assert.Equal(t, tt.want, billing.PeriodLabel(2025, tt.month, rs))
		})
	}
}

func TestFindCustomerForMonth(t *testing.T) {
	companies := []billing.Company{
		{ID: "odd", Name: "Odd Ltd"},
		{ID: "fallback", Name: "Fallback Ltd"},
	}
	rs := billing.Ruleset{Rules: []billing.CustomerRule{
		{Condition: billing.ConditionOdd, CompanyID: "odd"},
		{Condition: billing.ConditionEven, CompanyID: "deleted"},
		{Condition: billing.ConditionDefault, CompanyID: "fallback"},
	}}

	c, ok := billing.FindCustomerForMonth(rs, 3, companies)
	require.True(t, ok)
	assert.Equal(t, billing.CompanyID("odd"), c.ID)

	c, ok = billing.FindCustomerForMonth(rs, 4, companies)
	require.True(t, ok)
	assert.Equal(t, billing.CompanyID("fallback"), c.ID, "unresolvable rule falls through")

	_, ok = billing.FindCustomerForMonth(billing.Ruleset{}, 4, companies)
	assert.False(t, ok)
}

func TestPeriodKey_RoundTrip(t *testing.T) {
	key := billing.PeriodKey{RulesetID: "acme-dev", Year: 2025, Month: 11}
	assert.Equal(t, "acme-dev-2025-11", key.String())

	parsed, err := billing.ParsePeriodKey(key.String())
	require.NoError(t, err)
	assert.Equal(t, key, parsed)

	for _, bad := range []string{"", "r1-2025", "r1-x-3", "r1-2025-13", "-2025-3"} {
		_, err := billing.ParsePeriodKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestDraftIDs(t *testing.T) {
	assert.Equal(t, "r1-2025-3-2", billing.DraftID("r1", 2025, 3, 2))

	id := billing.NewAdhocID()
	assert.True(t, billing.IsAdhocID(id))
	assert.False(t, billing.IsAdhocID(billing.DraftID("r1", 2025, 3, 0)))
	assert.NotEqual(t, id, billing.NewAdhocID())
}

func TestInvoiceNumbering(t *testing.T) {
	assert.Equal(t, "28022025", billing.InvoiceNumber(billing.NumberingDate(2025, 2, 0)))
	assert.Equal(t, "29022024", billing.InvoiceNumber(billing.NumberingDate(2024, 2, 0)))
	assert.Equal(t, "29122025", billing.InvoiceNumber(billing.NumberingDate(2025, 12, 2)))
	assert.Equal(t, "01012025", billing.InvoiceNumber(billing.NumberingDate(2025, 1, 40)))
}

func TestStatus_CanTransition(t *testing.T) {
	assert.True(t, billing.StatusPending.CanTransition(billing.StatusGenerating))
	assert.True(t, billing.StatusGenerating.CanTransition(billing.StatusDone))
	assert.True(t, billing.StatusGenerating.CanTransition(billing.StatusError))
	assert.True(t, billing.StatusError.CanTransition(billing.StatusGenerating))
	assert.False(t, billing.StatusPending.CanTransition(billing.StatusDone))
	assert.False(t, billing.StatusDone.CanTransition(billing.StatusPending))
}

func TestSalaryRule_Covers(t *testing.T) {
	open := billing.SalaryRule{StartDate: month("2025-03")}
	closed := billing.SalaryRule{StartDate: month("2025-03"), EndDate: month("2025-05")}

	assert.False(t, open.Covers(month("2025-02")))
	assert.True(t, open.Covers(month("2030-01")))
	assert.True(t, closed.Covers(month("2025-05")))
	assert.False(t, closed.Covers(month("2025-06")))
}
