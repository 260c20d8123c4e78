package planner_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/invoice-engine/billing"
	"github.com/warp/invoice-engine/billing/store"
	"github.com/warp/invoice-engine/planner"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fixedSource int

func (f fixedSource) LastInvoiced(int) int { return int(f) }

func april15() time.Time {
	return time.Date(2025, 4, 15, 10, 0, 0, 0, time.UTC)
}

func monthly(id string, value int64) billing.Ruleset {
	return billing.Ruleset{
		ID:             billing.RulesetID(id),
		Name:           "Contract " + id,
		Periodicity:    billing.PeriodMonthly,
		EntitlementDay: 10,
		SalaryRules: []billing.SalaryRule{
			{StartDate: billing.YearMonth{Year: 2025, Month: 1}, Value: decimal.NewFromInt(value)},
		},
		Descriptions: []string{"Software development"},
	}
}

func newTestPlanner(t *testing.T, rulesets ...billing.Ruleset) (*planner.Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	for _, rs := range rulesets {
		require.NoError(t, mem.SaveRuleset(context.Background(), rs))
	}
	svc := planner.New(mem,
		planner.WithClock(april15),
		planner.WithCalculator(billing.NewCalculator(billing.FirstPicker{})),
	)
	return svc, mem
}

func ids(drafts []billing.Draft) []string {
	out := make([]string, len(drafts))
	for i, d := range drafts {
		out[i] = d.ID
	}
	return out
}

func generate(t *testing.T, svc *planner.Service, id string) billing.Draft {
	t.Helper()
	ctx := context.Background()
	_, err := svc.MarkStatus(ctx, id, billing.StatusGenerating)
	require.NoError(t, err)
	d, err := svc.MarkStatus(ctx, id, billing.StatusDone)
	require.NoError(t, err)
	return d
}

// =============================================================================
// DRAFT TESTS
// =============================================================================

func TestDrafts_ComputesWindowFromClock(t *testing.T) {
	svc, _ := newTestPlanner(t, monthly("r1", 40000))

	plan, err := svc.Drafts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2025, plan.Year)
	assert.Equal(t, 4, plan.Month)
	assert.Equal(t, 0, plan.LastInvoicedMonth)
	assert.Equal(t, []string{"r1-2025-1-0", "r1-2025-2-0", "r1-2025-3-0"}, ids(plan.Drafts))
	assert.Len(t, plan.Baselines, 3)
	assert.Equal(t, "2025-04-15", plan.Drafts[0].DueDate.Format("2006-01-02"))
}

func TestDrafts_WatermarkSourceWins(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.SaveRuleset(context.Background(), monthly("r1", 40000)))
	require.NoError(t, mem.SetWatermark(context.Background(), 2025, 1))

	svc := planner.New(mem, planner.WithClock(april15), planner.WithWatermarkSource(fixedSource(2)))

	plan, err := svc.Drafts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, plan.LastInvoicedMonth)
	assert.Equal(t, []string{"r1-2025-3-0"}, ids(plan.Drafts))

	last, err := svc.LastInvoiced(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, last)
}

func TestDrafts_CustomersResolvedWhenCompaniesExist(t *testing.T) {
	rs := monthly("r1", 40000)
	rs.Rules = []billing.CustomerRule{{Condition: billing.ConditionOdd, CompanyID: "acme"}}
	svc, mem := newTestPlanner(t, rs)
	require.NoError(t, mem.SaveCompany(context.Background(), billing.Company{ID: "acme", Name: "ACME"}))

	plan, err := svc.Drafts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"r1-2025-1-0", "r1-2025-3-0"}, ids(plan.Drafts))
	assert.Equal(t, billing.CompanyID("acme"), plan.Drafts[0].CustomerID)
}

func TestEditDraft_SurvivesRecomputation(t *testing.T) {
	// GIVEN: A computed draft list
	// WHEN: The user edits a description and the list is recomputed
	// THEN: The edit is kept

	ctx := context.Background()
	svc, _ := newTestPlanner(t, monthly("r1", 40000))
	_, err := svc.Drafts(ctx)
	require.NoError(t, err)

	desc := "Consulting"
	edited, err := svc.EditDraft(ctx, "r1-2025-2-0", billing.DraftEdit{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, desc, edited.Description)

	plan, err := svc.Drafts(ctx)
	require.NoError(t, err)
	assert.Equal(t, desc, plan.Drafts[1].Description)
	assert.Equal(t, "Software development", plan.Drafts[0].Description)

	_, err = svc.EditDraft(ctx, "r1-2025-9-0", billing.DraftEdit{Description: &desc})
	assert.ErrorIs(t, err, billing.ErrDraftNotFound)
}

func TestEditDraft_EmptyStringRestoresComputedValues(t *testing.T) {
	// GIVEN: A draft whose invoice number and description were edited
	// WHEN: Both edits are cleared with empty strings
	// THEN: The computed number and description come back, also after
	// recomputation

	ctx := context.Background()
	svc, _ := newTestPlanner(t, monthly("r1", 40000))
	plan, err := svc.Drafts(ctx)
	require.NoError(t, err)
	computed := plan.Drafts[0]
	require.Equal(t, "r1-2025-1-0", computed.ID)
	require.Equal(t, "31012025", computed.InvoiceNoOverride)

	number, desc, blank := "X-1", "Consulting", ""
	_, err = svc.EditDraft(ctx, computed.ID, billing.DraftEdit{InvoiceNo: &number, Description: &desc})
	require.NoError(t, err)

	cleared, err := svc.EditDraft(ctx, computed.ID, billing.DraftEdit{InvoiceNo: &blank, Description: &blank})
	require.NoError(t, err)
	assert.Equal(t, "31012025", cleared.InvoiceNoOverride)
	assert.Equal(t, "Software development", cleared.Description)

	plan, err = svc.Drafts(ctx)
	require.NoError(t, err)
	assert.Equal(t, "31012025", plan.Drafts[0].InvoiceNoOverride)
	assert.Equal(t, "31012025", plan.Drafts[0].VariableSymbolOverride)
	assert.Equal(t, "Software development", plan.Drafts[0].Description)
}

// =============================================================================
// STATUS TESTS
// =============================================================================

func TestMarkStatus_RejectsSkippingGenerating(t *testing.T) {
	svc, _ := newTestPlanner(t, monthly("r1", 40000))

	_, err := svc.MarkStatus(context.Background(), "r1-2025-1-0", billing.StatusDone)
	assert.ErrorIs(t, err, billing.ErrInvalidStatusTransition)
	assert.True(t, billing.IsClientError(err))
}

func TestMarkStatus_DoneAdvancesWatermarkInOrder(t *testing.T) {
	// GIVEN: Drafts for January to March
	// WHEN: Generating January, then March, then February
	// THEN: The watermark follows the highest fully generated prefix

	ctx := context.Background()
	svc, mem := newTestPlanner(t, monthly("r1", 40000))
	_, err := svc.Drafts(ctx)
	require.NoError(t, err)

	generate(t, svc, "r1-2025-1-0")
	wm, _ := mem.Watermark(ctx, 2025)
	assert.Equal(t, 1, wm)

	plan, err := svc.Drafts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1-2025-1-0", "r1-2025-2-0", "r1-2025-3-0"}, ids(plan.Drafts), "done draft stays listed")
	assert.Equal(t, billing.StatusDone, plan.Drafts[0].Status)

	generate(t, svc, "r1-2025-3-0")
	wm, _ = mem.Watermark(ctx, 2025)
	assert.Equal(t, 1, wm, "February still pending")

	generate(t, svc, "r1-2025-2-0")
	wm, _ = mem.Watermark(ctx, 2025)
	assert.Equal(t, 3, wm)

	generated, err := mem.ListGenerated(ctx, 2025)
	require.NoError(t, err)
	require.Len(t, generated, 3)
	assert.Equal(t, "faktura_r1_25_01", generated[0].FileName)
	assert.Equal(t, april15(), generated[0].GeneratedAt)
}

func TestMarkStatus_ErrorCanBeRetried(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestPlanner(t, monthly("r1", 40000))

	_, err := svc.MarkStatus(ctx, "r1-2025-3-0", billing.StatusGenerating)
	require.NoError(t, err)
	d, err := svc.MarkStatus(ctx, "r1-2025-3-0", billing.StatusError)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusError, d.Status)

	plan, err := svc.Drafts(ctx)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusError, plan.Drafts[2].Status, "status survives recomputation")

	_, err = svc.MarkStatus(ctx, "r1-2025-3-0", billing.StatusGenerating)
	assert.NoError(t, err)
}

func TestMarkStatus_DoneClearsOverrideOfCompletedPeriod(t *testing.T) {
	ctx := context.Background()
	rs := monthly("r1", 100000)
	max := decimal.NewFromInt(90000)
	rs.MaxInvoiceValue = &max
	svc, mem := newTestPlanner(t, rs)
	require.NoError(t, mem.SetWatermark(ctx, 2025, 2))

	key := billing.PeriodKey{RulesetID: "r1", Year: 2025, Month: 3}
	require.NoError(t, svc.SetOverride(ctx, key, decimal.NewFromInt(120000)))

	plan, err := svc.Drafts(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"r1-2025-3-0", "r1-2025-3-1"}, ids(plan.Drafts))
	assert.Equal(t, "30000", plan.Drafts[1].Amount.String())

	generate(t, svc, "r1-2025-3-0")
	overrides, _ := mem.Overrides(ctx)
	assert.Len(t, overrides, 1, "period only partly generated")

	generate(t, svc, "r1-2025-3-1")
	overrides, _ = mem.Overrides(ctx)
	assert.Empty(t, overrides)

	wm, _ := mem.Watermark(ctx, 2025)
	assert.Equal(t, 3, wm)
}

// =============================================================================
// OVERRIDE & EXTRA TESTS
// =============================================================================

func TestSetOverride_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestPlanner(t, monthly("r1", 40000))

	err := svc.SetOverride(ctx, billing.PeriodKey{RulesetID: "nope", Year: 2025, Month: 3}, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, billing.ErrRulesetNotFound)

	err = svc.SetOverride(ctx, billing.PeriodKey{RulesetID: "r1", Year: 2025, Month: 3}, decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, billing.ErrInvalidInput)
}

func TestSetOverride_ChangesDraftAndCanBeCleared(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestPlanner(t, monthly("r1", 40000))
	key := billing.PeriodKey{RulesetID: "r1", Year: 2025, Month: 2}

	require.NoError(t, svc.SetOverride(ctx, key, decimal.NewFromInt(35000)))
	plan, err := svc.Drafts(ctx)
	require.NoError(t, err)
	assert.Equal(t, "35000", plan.Drafts[1].Amount.String())
	assert.Equal(t, "40000", plan.Drafts[1].PeriodBaseSalary.String())
	assert.True(t, plan.Baselines[key].OverrideEffective)

	require.NoError(t, svc.ClearOverride(ctx, key))
	plan, err = svc.Drafts(ctx)
	require.NoError(t, err)
	assert.Equal(t, "40000", plan.Drafts[1].Amount.String())
}

func TestExtras_LandOnLastBilledMonth(t *testing.T) {
	// GIVEN: A selected EUR extra of 100 at rate 25
	// WHEN: Computing drafts
	// THEN: The last billed month carries 2500 extra; deselecting removes it

	ctx := context.Background()
	svc, _ := newTestPlanner(t, monthly("r1", 40000))

	e, err := svc.AddExtra(ctx, decimal.NewFromInt(100), "EUR", decimal.NewFromInt(25), "Train tickets")
	require.NoError(t, err)
	assert.True(t, billing.IsAdhocID(e.ID))

	plan, err := svc.Drafts(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2500", plan.ExtraValue.String())
	assert.Equal(t, "42500", plan.Drafts[2].Amount.String())
	assert.Equal(t, "40000", plan.Drafts[1].Amount.String())

	_, err = svc.SelectExtra(ctx, e.ID, false)
	require.NoError(t, err)
	plan, err = svc.Drafts(ctx)
	require.NoError(t, err)
	assert.Equal(t, "40000", plan.Drafts[2].Amount.String())

	_, err = svc.SelectExtra(ctx, "adhoc:missing", true)
	assert.ErrorIs(t, err, billing.ErrExtraNotFound)
}

func TestSetLastInvoiced(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestPlanner(t, monthly("r1", 40000))

	require.NoError(t, svc.SetLastInvoiced(ctx, 2))
	last, err := svc.LastInvoiced(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, last)

	assert.ErrorIs(t, svc.SetLastInvoiced(ctx, 13), billing.ErrInvalidInput)
}
