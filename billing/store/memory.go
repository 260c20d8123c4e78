// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/invoice-engine/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	rulesets   []billing.Ruleset
	companies  map[billing.CompanyID]billing.Company
	overrides  billing.Overrides
	edits      billing.Edits
	extras     []billing.AdhocExtra
	generated  []billing.GeneratedInvoice
	watermarks map[int]int
}

func NewMemory() *Memory {
	return &Memory{
		companies:  make(map[billing.CompanyID]billing.Company),
		overrides:  make(billing.Overrides),
		edits:      make(billing.Edits),
		watermarks: make(map[int]int),
	}
}

// ListRulesets returns a copy in declaration order.
func (m *Memory) ListRulesets(_ context.Context) ([]billing.Ruleset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]billing.Ruleset, len(m.rulesets))
	copy(result, m.rulesets)
	return result, nil
}

func (m *Memory) GetRuleset(_ context.Context, id billing.RulesetID) (billing.Ruleset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rs := range m.rulesets {
		if rs.ID == id {
			return rs, nil
		}
	}
	return billing.Ruleset{}, fmt.Errorf("ruleset %s: %w", id, billing.ErrRulesetNotFound)
}

// SaveRuleset replaces in place or appends.
func (m *Memory) SaveRuleset(_ context.Context, rs billing.Ruleset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.rulesets {
		if m.rulesets[i].ID == rs.ID {
			m.rulesets[i] = rs
			return nil
		}
	}
	m.rulesets = append(m.rulesets, rs)
	return nil
}

func (m *Memory) DeleteRuleset(_ context.Context, id billing.RulesetID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.rulesets {
		if m.rulesets[i].ID == id {
			m.rulesets = append(m.rulesets[:i], m.rulesets[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("ruleset %s: %w", id, billing.ErrRulesetNotFound)
}

func (m *Memory) ListCompanies(_ context.Context) ([]billing.Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]billing.Company, 0, len(m.companies))
	for _, c := range m.companies {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *Memory) SaveCompany(_ context.Context, c billing.Company) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.companies[c.ID] = c
	return nil
}

// =============================================================================
// SESSION INPUTS
// =============================================================================

func (m *Memory) Overrides(_ context.Context) (billing.Overrides, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(billing.Overrides, len(m.overrides))
	for k, v := range m.overrides {
		result[k] = v
	}
	return result, nil
}

func (m *Memory) SetOverride(_ context.Context, key billing.PeriodKey, value decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[key] = value
	return nil
}

func (m *Memory) ClearOverride(_ context.Context, key billing.PeriodKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overrides, key)
	return nil
}

func (m *Memory) Edits(_ context.Context) (billing.Edits, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(billing.Edits, len(m.edits))
	for k, v := range m.edits {
		result[k] = v
	}
	return result, nil
}

// SaveEdit merges edit into any stored edit for the draft; nil fields keep
// the stored value and empty strings drop it.
func (m *Memory) SaveEdit(_ context.Context, draftID string, edit billing.DraftEdit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.edits[draftID]
	stored.InvoiceNo = mergeField(stored.InvoiceNo, edit.InvoiceNo)
	stored.VariableSymbol = mergeField(stored.VariableSymbol, edit.VariableSymbol)
	stored.Description = mergeField(stored.Description, edit.Description)
	if stored.IsEmpty() {
		delete(m.edits, draftID)
		return nil
	}
	m.edits[draftID] = stored
	return nil
}

func mergeField(stored, incoming *string) *string {
	switch {
	case incoming == nil:
		return stored
	case *incoming == "":
		return nil
	default:
		v := *incoming
		return &v
	}
}

func (m *Memory) ListExtras(_ context.Context) ([]billing.AdhocExtra, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]billing.AdhocExtra, len(m.extras))
	copy(result, m.extras)
	return result, nil
}

func (m *Memory) SaveExtra(_ context.Context, e billing.AdhocExtra) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.extras {
		if m.extras[i].ID == e.ID {
			m.extras[i] = e
			return nil
		}
	}
	m.extras = append(m.extras, e)
	return nil
}

func (m *Memory) DeleteExtra(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.extras {
		if m.extras[i].ID == id {
			m.extras = append(m.extras[:i], m.extras[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("extra %s: %w", id, billing.ErrExtraNotFound)
}

// =============================================================================
// GENERATION LOG
// =============================================================================

func (m *Memory) RecordGenerated(_ context.Context, inv billing.GeneratedInvoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.generated {
		if m.generated[i].DraftID == inv.DraftID {
			m.generated[i] = inv
			return nil
		}
	}
	m.generated = append(m.generated, inv)
	return nil
}

func (m *Memory) ListGenerated(_ context.Context, year int) ([]billing.GeneratedInvoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []billing.GeneratedInvoice
	for _, inv := range m.generated {
		if inv.Year == year {
			result = append(result, inv)
		}
	}
	return result, nil
}

func (m *Memory) Watermark(_ context.Context, year int) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.watermarks[year], nil
}

func (m *Memory) SetWatermark(_ context.Context, year, month int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watermarks[year] = month
	return nil
}
