package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/invoice-engine/billing"
	"github.com/warp/invoice-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func ruleset(id string) billing.Ruleset {
	max := decimal.NewFromInt(90000)
	return billing.Ruleset{
		ID:                billing.RulesetID(id),
		Name:              "Contract " + id,
		Periodicity:       billing.PeriodMonthly,
		EntitlementDay:    10,
		DueDateOffsetDays: 14,
		MaxInvoiceValue:   &max,
		MinimizeInvoices:  true,
		SalaryRules: []billing.SalaryRule{
			{
				StartDate: billing.YearMonth{Year: 2025, Month: 1},
				EndDate:   billing.YearMonth{Year: 2025, Month: 6},
				Value:     decimal.NewFromInt(100000),
				Deduction: decimal.NewFromInt(5000),
			},
		},
		Rules:        []billing.CustomerRule{{Condition: billing.ConditionDefault, CompanyID: "acme"}},
		Descriptions: []string{"Software development"},
	}
}

func strPtr(s string) *string { return &s }

// =============================================================================
// RULESET TESTS
// =============================================================================

func TestRulesets_RoundTripInDeclarationOrder(t *testing.T) {
	// GIVEN: Two rulesets saved b then a
	// WHEN: Updating b and listing
	// THEN: Order is preserved and the update is visible

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRuleset(ctx, ruleset("b")))
	require.NoError(t, store.SaveRuleset(ctx, ruleset("a")))

	updated := ruleset("b")
	updated.Name = "Renamed"
	require.NoError(t, store.SaveRuleset(ctx, updated))

	list, err := store.ListRulesets(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, billing.RulesetID("b"), list[0].ID)
	assert.Equal(t, "Renamed", list[0].Name)
	assert.Equal(t, billing.RulesetID("a"), list[1].ID)

	got, err := store.GetRuleset(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "95000", got.Contribution(2025, 3).String())
	assert.True(t, got.MinimizeInvoices)
	require.NotNil(t, got.MaxInvoiceValue)
	assert.Equal(t, "90000", got.MaxInvoiceValue.String())
	assert.Equal(t, billing.CompanyID("acme"), got.Rules[0].CompanyID)
}

func TestRulesets_InvalidRejected(t *testing.T) {
	store := newTestStore(t)
	rs := ruleset("bad")
	rs.EntitlementDay = 0

	err := store.SaveRuleset(context.Background(), rs)
	assert.ErrorIs(t, err, billing.ErrInvalidRuleset)
}

func TestRulesets_DeleteRemovesOverrides(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := billing.PeriodKey{RulesetID: "r1", Year: 2025, Month: 3}

	require.NoError(t, store.SaveRuleset(ctx, ruleset("r1")))
	require.NoError(t, store.SetOverride(ctx, key, decimal.NewFromInt(1)))
	require.NoError(t, store.DeleteRuleset(ctx, "r1"))

	_, err := store.GetRuleset(ctx, "r1")
	assert.ErrorIs(t, err, billing.ErrRulesetNotFound)
	assert.ErrorIs(t, store.DeleteRuleset(ctx, "r1"), billing.ErrRulesetNotFound)

	overrides, err := store.Overrides(ctx)
	require.NoError(t, err)
	assert.Empty(t, overrides)
}

func TestCompanies(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCompany(ctx, billing.Company{ID: "z", Name: "Zeta"}))
	require.NoError(t, store.SaveCompany(ctx, billing.Company{ID: "a", Name: "Alpha", VATID: "CZ1"}))

	list, err := store.ListCompanies(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Alpha", list[0].Name)
	assert.Equal(t, "CZ1", list[0].VATID)
	assert.Equal(t, "", list[1].Email)
}

// =============================================================================
// SESSION TESTS
// =============================================================================

func TestOverrides(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := billing.PeriodKey{RulesetID: "acme-dev", Year: 2025, Month: 3}

	require.NoError(t, store.SetOverride(ctx, key, decimal.RequireFromString("12345.50")))
	require.NoError(t, store.SetOverride(ctx, key, decimal.RequireFromString("20000")))

	overrides, err := store.Overrides(ctx)
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.Equal(t, "20000", overrides[key].String())

	require.NoError(t, store.ClearOverride(ctx, key))
	require.NoError(t, store.ClearOverride(ctx, key))
	overrides, err = store.Overrides(ctx)
	require.NoError(t, err)
	assert.Empty(t, overrides)
}

func TestEdits_MergeAndClearWithEmptyString(t *testing.T) {
	// GIVEN: A stored invoice number and description edit
	// WHEN: The description is saved again as an empty string
	// THEN: Only the description edit is removed

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveEdit(ctx, "r1-2025-3-0", billing.DraftEdit{InvoiceNo: strPtr("2025-001"), Description: strPtr("Consulting")}))
	require.NoError(t, store.SaveEdit(ctx, "r1-2025-3-0", billing.DraftEdit{Description: strPtr("")}))

	edits, err := store.Edits(ctx)
	require.NoError(t, err)
	edit := edits["r1-2025-3-0"]
	require.NotNil(t, edit.InvoiceNo)
	assert.Equal(t, "2025-001", *edit.InvoiceNo)
	assert.Nil(t, edit.Description)
	assert.Nil(t, edit.VariableSymbol)
}

func TestEdits_ClearingLastFieldRemovesRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveEdit(ctx, "r1-2025-3-0", billing.DraftEdit{InvoiceNo: strPtr("X-1")}))
	require.NoError(t, store.SaveEdit(ctx, "r1-2025-3-0", billing.DraftEdit{InvoiceNo: strPtr("")}))
	require.NoError(t, store.SaveEdit(ctx, "r1-2025-4-0", billing.DraftEdit{VariableSymbol: strPtr("")}))

	edits, err := store.Edits(ctx)
	require.NoError(t, err)
	assert.Empty(t, edits)
}

func TestExtras(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := billing.AdhocExtra{ID: billing.NewAdhocID(), Amount: decimal.NewFromInt(120), Currency: "EUR", Rate: decimal.RequireFromString("25.2"), Note: "Train"}
	second := billing.AdhocExtra{ID: billing.NewAdhocID(), Amount: decimal.NewFromInt(800), Currency: "CZK", Rate: decimal.NewFromInt(1)}
	require.NoError(t, store.SaveExtra(ctx, first))
	require.NoError(t, store.SaveExtra(ctx, second))

	first.Selected = true
	require.NoError(t, store.SaveExtra(ctx, first))

	list, err := store.ListExtras(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.True(t, list[0].Selected)
	assert.Equal(t, "3024", list[0].Converted().String())
	assert.Equal(t, "Train", list[0].Note)
	assert.False(t, list[1].Selected)

	require.NoError(t, store.DeleteExtra(ctx, second.ID))
	assert.ErrorIs(t, store.DeleteExtra(ctx, second.ID), billing.ErrExtraNotFound)
}

// =============================================================================
// GENERATION LOG TESTS
// =============================================================================

func TestGenerationLog(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 4, 15, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordGenerated(ctx, billing.GeneratedInvoice{
		DraftID: "r1-2025-3-1", RulesetID: "r1", Year: 2025, Month: 3, Index: 1,
		Amount: decimal.NewFromInt(25000), FileName: "faktura_r1_25_03_1", GeneratedAt: at,
	}))
	require.NoError(t, store.RecordGenerated(ctx, billing.GeneratedInvoice{
		DraftID: "r1-2025-3-0", RulesetID: "r1", Year: 2025, Month: 3, Index: 0,
		Amount: decimal.NewFromInt(90000), FileName: "faktura_r1_25_03", GeneratedAt: at,
	}))

	list, err := store.ListGenerated(ctx, 2025)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r1-2025-3-0", list[0].DraftID)
	assert.Equal(t, "90000", list[0].Amount.String())
	assert.True(t, at.Equal(list[0].GeneratedAt))

	wm, err := store.Watermark(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, 0, wm)

	require.NoError(t, store.SetWatermark(ctx, 2025, 3))
	require.NoError(t, store.SetWatermark(ctx, 2025, 4))
	wm, err = store.Watermark(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, 4, wm)
}
