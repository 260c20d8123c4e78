package billing

// =============================================================================
// MERGE - Reconcile recomputed drafts with the previously displayed list
// =============================================================================

// DraftEdit holds user text edits for one draft. Nil fields were never
// edited. In an incoming edit an empty string removes the stored edit and
// restores the computed value.
type DraftEdit struct {
	InvoiceNo      *string
	VariableSymbol *string
	Description    *string
}

// IsEmpty reports whether the edit changes nothing.
func (e DraftEdit) IsEmpty() bool {
	return e.InvoiceNo == nil && e.VariableSymbol == nil && e.Description == nil
}

// Edits maps draft id to the user's edits.
type Edits map[string]DraftEdit

// MergeDrafts reconciles freshly computed drafts with the previous list so
// recomputation never discards user edits or generation status.
//
// For each new draft:
//   - a previous draft with the same id contributes its text fields (under
//     any stored edit) and its status; drafts already generating or done
//     also keep their amounts and labels
//   - with no previous draft, a stored edit is applied directly
//   - otherwise the draft passes through as computed
func MergeDrafts(next, previous []Draft, edits Edits) []Draft {
	byID := make(map[string]Draft, len(previous))
	for _, d := range previous {
		byID[d.ID] = d
	}

	merged := make([]Draft, 0, len(next))
	for _, d := range next {
		edit := edits[d.ID]
		prev, found := byID[d.ID]
		if !found {
			merged = append(merged, applyEdit(d, edit))
			continue
		}

		out := d
		if prev.Status.Advanced() {
			out = prev
		}
		out.InvoiceNoOverride = pick(edit.InvoiceNo, prev.InvoiceNoOverride, d.InvoiceNoOverride)
		out.VariableSymbolOverride = pick(edit.VariableSymbol, prev.VariableSymbolOverride, d.VariableSymbolOverride)
		out.Description = pick(edit.Description, prev.Description, d.Description)
		out.Status = prev.Status
		merged = append(merged, out)
	}
	return merged
}

func applyEdit(d Draft, edit DraftEdit) Draft {
	if edited(edit.InvoiceNo) {
		d.InvoiceNoOverride = *edit.InvoiceNo
	}
	if edited(edit.VariableSymbol) {
		d.VariableSymbolOverride = *edit.VariableSymbol
	}
	if edited(edit.Description) {
		d.Description = *edit.Description
	}
	return d
}

func pick(edit *string, previous, computed string) string {
	if edited(edit) {
		return *edit
	}
	if previous != "" {
		return previous
	}
	return computed
}

// edited reports whether field carries a value. Blank edits never reach the
// draft.
func edited(field *string) bool {
	return field != nil && *field != ""
}
