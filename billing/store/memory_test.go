package store_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/invoice-engine/billing"
	"github.com/warp/invoice-engine/billing/store"
)

func TestMemory_RulesetsKeepDeclarationOrder(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	require.NoError(t, m.SaveRuleset(ctx, billing.Ruleset{ID: "b", Name: "B"}))
	require.NoError(t, m.SaveRuleset(ctx, billing.Ruleset{ID: "a", Name: "A"}))
	require.NoError(t, m.SaveRuleset(ctx, billing.Ruleset{ID: "b", Name: "B2"}))

	list, err := m.ListRulesets(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, billing.RulesetID("b"), list[0].ID)
	assert.Equal(t, "B2", list[0].Name)

	require.NoError(t, m.DeleteRuleset(ctx, "b"))
	_, err = m.GetRuleset(ctx, "b")
	assert.ErrorIs(t, err, billing.ErrRulesetNotFound)
	assert.ErrorIs(t, m.DeleteRuleset(ctx, "b"), billing.ErrRulesetNotFound)
}

func TestMemory_SaveEditMergesFields(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	no, desc := "2025-001", "Konzultace"

	require.NoError(t, m.SaveEdit(ctx, "r1-2025-3-0", billing.DraftEdit{InvoiceNo: &no}))
	require.NoError(t, m.SaveEdit(ctx, "r1-2025-3-0", billing.DraftEdit{Description: &desc}))

	edits, err := m.Edits(ctx)
	require.NoError(t, err)
	edit := edits["r1-2025-3-0"]
	require.NotNil(t, edit.InvoiceNo)
	require.NotNil(t, edit.Description)
	assert.Equal(t, no, *edit.InvoiceNo)
	assert.Equal(t, desc, *edit.Description)
	assert.Nil(t, edit.VariableSymbol)
}

func TestMemory_SaveEditEmptyStringDropsField(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	no, desc, blank := "2025-001", "Konzultace", ""

	require.NoError(t, m.SaveEdit(ctx, "r1-2025-3-0", billing.DraftEdit{InvoiceNo: &no, Description: &desc}))
	require.NoError(t, m.SaveEdit(ctx, "r1-2025-3-0", billing.DraftEdit{InvoiceNo: &blank}))

	edits, err := m.Edits(ctx)
	require.NoError(t, err)
	edit := edits["r1-2025-3-0"]
	assert.Nil(t, edit.InvoiceNo)
	require.NotNil(t, edit.Description)
	assert.Equal(t, desc, *edit.Description)

	require.NoError(t, m.SaveEdit(ctx, "r1-2025-3-0", billing.DraftEdit{Description: &blank}))
	edits, err = m.Edits(ctx)
	require.NoError(t, err)
	assert.Empty(t, edits)
}

func TestMemory_OverridesAreCopied(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	key := billing.PeriodKey{RulesetID: "r1", Year: 2025, Month: 3}

	require.NoError(t, m.SetOverride(ctx, key, decimal.NewFromInt(1000)))
	got, err := m.Overrides(ctx)
	require.NoError(t, err)
	delete(got, key)

	again, err := m.Overrides(ctx)
	require.NoError(t, err)
	assert.Len(t, again, 1)

	require.NoError(t, m.ClearOverride(ctx, key))
	again, err = m.Overrides(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestMemory_GenerationLog(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	require.NoError(t, m.RecordGenerated(ctx, billing.GeneratedInvoice{DraftID: "r1-2025-3-0", Year: 2025, Month: 3}))
	require.NoError(t, m.RecordGenerated(ctx, billing.GeneratedInvoice{DraftID: "r1-2024-12-0", Year: 2024, Month: 12}))
	require.NoError(t, m.SetWatermark(ctx, 2025, 3))

	list, err := m.ListGenerated(ctx, 2025)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	wm, err := m.Watermark(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, 3, wm)

	wm, err = m.Watermark(ctx, 2024)
	require.NoError(t, err)
	assert.Equal(t, 0, wm)
}

func TestMemory_Extras(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	id := billing.NewAdhocID()

	require.NoError(t, m.SaveExtra(ctx, billing.AdhocExtra{ID: id, Amount: decimal.NewFromInt(10)}))
	require.NoError(t, m.SaveExtra(ctx, billing.AdhocExtra{ID: id, Amount: decimal.NewFromInt(20), Selected: true}))

	list, err := m.ListExtras(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Selected)

	require.NoError(t, m.DeleteExtra(ctx, id))
	assert.ErrorIs(t, m.DeleteExtra(ctx, id), billing.ErrExtraNotFound)
}
