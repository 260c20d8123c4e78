/*
Package planner runs the draft calculator against stored inputs and keeps
the session's draft list.

PURPOSE:
  The calculator is pure and stateless. The planner supplies it with
  everything it needs (rulesets, companies, overrides, ad-hoc extras, the
  watermark, today's date), merges the output with the drafts the user has
  already seen, and applies generation status reported by the driver.

SESSION LIST:
  Drafts are recomputed wholesale on every call to Drafts. The previous
  list is the merge source, so user edits and statuses survive
  recomputation. Drafts of a period that is already being generated stay
  listed even after the watermark moves past that period.

GENERATION FLOW:
  pending -> generating -> done | error, error -> generating | pending

  Marking a draft done:
    1. Records a generated invoice (file name faktura_{ruleset}_{yy}_{mm}[_{i}])
    2. Clears the period's override once every part of it is done
    3. Advances the stored watermark to the highest month whose drafts
       (and all earlier ones) are done

WATERMARK:
  lastInvoiced = max(stored watermark, WatermarkSource) for the current year

USAGE:
  svc := planner.New(store,
      planner.WithLogger(logger.WithComponent("planner")),
      planner.WithWatermarkSource(watcher),
  )
  plan, err := svc.Drafts(ctx)
  _, err = svc.MarkStatus(ctx, plan.Drafts[0].ID, billing.StatusGenerating)

SEE ALSO:
  - billing/calculator.go: Draft computation
  - billing/merge.go: Merge rules
  - watermark/watcher.go: Directory-based WatermarkSource
*/
package planner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/invoice-engine/billing"
	"github.com/warp/invoice-engine/watermark"
)

// =============================================================================
// TYPES
// =============================================================================

// WatermarkSource reports the last invoiced month of a year from outside
// the store, e.g. generated files on disk.
type WatermarkSource interface {
	LastInvoiced(year int) int
}

// Plan is one computed view of the session.
type Plan struct {
	Year              int
	Month             int
	Day               int
	LastInvoicedMonth int
	ExtraValue        decimal.Decimal
	Drafts            []billing.Draft
	Baselines         map[billing.PeriodKey]billing.Baseline
}

// Service is the session planner. Safe for concurrent use.
type Service struct {
	store  billing.Store
	calc   *billing.Calculator
	now    func() time.Time
	log    zerolog.Logger
	source WatermarkSource

	mu     sync.Mutex
	drafts []billing.Draft
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used for "today".
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithCalculator sets the calculator, e.g. one with a seeded picker.
func WithCalculator(calc *billing.Calculator) Option {
	return func(s *Service) { s.calc = calc }
}

// WithWatermarkSource adds an external watermark source.
func WithWatermarkSource(src WatermarkSource) Option {
	return func(s *Service) { s.source = src }
}

// New creates a planner over store.
func New(store billing.Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		now:   time.Now,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.calc == nil {
		s.calc = billing.NewCalculator(nil)
	}
	return s
}

// =============================================================================
// DRAFTS
// =============================================================================

// Drafts recomputes the drafts and merges them into the session list.
func (s *Service) Drafts(ctx context.Context) (Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan(ctx)
}

// plan must be called with s.mu held.
func (s *Service) plan(ctx context.Context) (Plan, error) {
	today := s.now()
	year, month, day := today.Year(), int(today.Month()), today.Day()

	rulesets, err := s.store.ListRulesets(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("load rulesets: %w", err)
	}
	companies, err := s.store.ListCompanies(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("load companies: %w", err)
	}
	overrides, err := s.store.Overrides(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("load overrides: %w", err)
	}
	edits, err := s.store.Edits(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("load edits: %w", err)
	}
	extra, err := s.extraValue(ctx)
	if err != nil {
		return Plan{}, err
	}
	last, err := s.lastInvoiced(ctx, year)
	if err != nil {
		return Plan{}, err
	}

	in := billing.Input{
		Rulesets:          rulesets,
		Year:              year,
		CurrentMonth:      month,
		CurrentDay:        day,
		LastInvoicedMonth: last,
		Overrides:         overrides,
		ExtraValue:        extra,
		Today:             today,
	}
	// Without any company configured, customers are left unresolved
	// instead of skipping every period.
	if len(companies) > 0 {
		in.Companies = companies
	}

	result := s.calc.Compute(in)
	merged := billing.MergeDrafts(result.Drafts, s.drafts, edits)
	s.drafts = s.retain(merged, year, last, rulesets)

	s.log.Debug().
		Int("rulesets", len(rulesets)).
		Int("computed", len(result.Drafts)).
		Int("listed", len(s.drafts)).
		Int("last_invoiced", last).
		Msg("drafts computed")

	return Plan{
		Year:              year,
		Month:             month,
		Day:               day,
		LastInvoicedMonth: last,
		ExtraValue:        extra,
		Drafts:            append([]billing.Draft(nil), s.drafts...),
		Baselines:         result.Baselines,
	}, nil
}

// retain adds previous drafts the calculator no longer produces but the
// session must keep showing: anything past pending, and every part of a
// period in flight once the watermark has moved past it.
func (s *Service) retain(merged []billing.Draft, year, last int, rulesets []billing.Ruleset) []billing.Draft {
	present := make(map[string]bool, len(merged))
	for _, d := range merged {
		present[d.ID] = true
	}
	inFlight := make(map[billing.PeriodKey]bool)
	for _, d := range s.drafts {
		if d.Status != billing.StatusPending {
			inFlight[d.Key()] = true
		}
	}

	out := merged
	for _, d := range s.drafts {
		if present[d.ID] || d.Year != year {
			continue
		}
		if d.Status != billing.StatusPending || (inFlight[d.Key()] && d.Month <= last) {
			out = append(out, d)
		}
	}

	position := make(map[billing.RulesetID]int, len(rulesets))
	for i, rs := range rulesets {
		position[rs.ID] = i
	}
	pos := func(id billing.RulesetID) int {
		if p, ok := position[id]; ok {
			return p
		}
		return len(rulesets)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if pa, pb := pos(a.RulesetID), pos(b.RulesetID); pa != pb {
			return pa < pb
		}
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		return a.Index < b.Index
	})
	return out
}

// Draft returns one draft from the session list, recomputing the list
// when it is empty.
func (s *Service) Draft(ctx context.Context, id string) (billing.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.find(ctx, id)
	if err != nil {
		return billing.Draft{}, err
	}
	return s.drafts[i], nil
}

// find must be called with s.mu held.
func (s *Service) find(ctx context.Context, id string) (int, error) {
	if len(s.drafts) == 0 {
		if _, err := s.plan(ctx); err != nil {
			return -1, err
		}
	}
	for i := range s.drafts {
		if s.drafts[i].ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("draft %s: %w", id, billing.ErrDraftNotFound)
}

// EditDraft stores a text edit and applies it to the session draft. An
// empty string removes the earlier edit of that field and restores the
// computed value.
func (s *Service) EditDraft(ctx context.Context, id string, edit billing.DraftEdit) (billing.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.find(ctx, id)
	if err != nil {
		return billing.Draft{}, err
	}
	if edit.IsEmpty() {
		return s.drafts[i], nil
	}
	if err := s.store.SaveEdit(ctx, id, edit); err != nil {
		s.log.Error().Err(err).Str("draft", id).Msg("save edit failed")
		return billing.Draft{}, fmt.Errorf("save edit: %w", err)
	}

	d := &s.drafts[i]
	number := billing.InvoiceNumber(d.IssueDate)
	if edit.InvoiceNo != nil {
		d.InvoiceNoOverride = orComputed(*edit.InvoiceNo, number)
	}
	if edit.VariableSymbol != nil {
		d.VariableSymbolOverride = orComputed(*edit.VariableSymbol, number)
	}
	switch {
	case edit.Description == nil:
	case *edit.Description != "":
		d.Description = *edit.Description
	default:
		// Descriptions come from the calculator's picker; recompute so the
		// merge fills the blank.
		d.Description = ""
		if _, err := s.plan(ctx); err != nil {
			return billing.Draft{}, err
		}
		if i, err = s.find(ctx, id); err != nil {
			return billing.Draft{}, err
		}
		return s.drafts[i], nil
	}
	return *d, nil
}

func orComputed(value, computed string) string {
	if value == "" {
		return computed
	}
	return value
}

// =============================================================================
// GENERATION STATUS
// =============================================================================

// MarkStatus applies a status reported by the generation driver.
func (s *Service) MarkStatus(ctx context.Context, id string, status billing.Status) (billing.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.find(ctx, id)
	if err != nil {
		return billing.Draft{}, err
	}
	d := s.drafts[i]
	if !d.Status.CanTransition(status) {
		return billing.Draft{}, &billing.StatusTransitionError{DraftID: id, From: d.Status, To: status}
	}

	if status == billing.StatusDone {
		if err := s.complete(ctx, d); err != nil {
			s.log.Error().Err(err).Str("draft", id).Msg("recording generated invoice failed")
			return billing.Draft{}, err
		}
	}

	s.drafts[i].Status = status
	s.log.Info().
		Str("draft", id).
		Str("from", string(d.Status)).
		Str("to", string(status)).
		Msg("draft status changed")

	if status == billing.StatusDone {
		if err := s.settle(ctx, d); err != nil {
			s.log.Error().Err(err).Str("draft", id).Msg("advancing watermark failed")
			return billing.Draft{}, err
		}
	}
	return s.drafts[i], nil
}

func (s *Service) complete(ctx context.Context, d billing.Draft) error {
	rec := billing.GeneratedInvoice{
		DraftID:     d.ID,
		RulesetID:   d.RulesetID,
		Year:        d.Year,
		Month:       d.Month,
		Index:       d.Index,
		Amount:      d.Amount,
		FileName:    watermark.FileName(d.RulesetID, d.Year, d.Month, d.Index),
		GeneratedAt: s.now(),
	}
	if err := s.store.RecordGenerated(ctx, rec); err != nil {
		return fmt.Errorf("record generated %s: %w", d.ID, err)
	}
	return nil
}

// settle clears the override of a fully generated period and advances
// the watermark. Called after d is marked done in the session list.
func (s *Service) settle(ctx context.Context, d billing.Draft) error {
	periodDone := true
	for _, other := range s.drafts {
		if other.Key() == d.Key() && other.Status != billing.StatusDone {
			periodDone = false
			break
		}
	}
	if periodDone {
		if err := s.store.ClearOverride(ctx, d.Key()); err != nil {
			return fmt.Errorf("clear override %s: %w", d.Key(), err)
		}
	}

	target := doneThrough(s.drafts, d.Year)
	stored, err := s.store.Watermark(ctx, d.Year)
	if err != nil {
		return fmt.Errorf("load watermark: %w", err)
	}
	if target <= stored {
		return nil
	}
	if err := s.store.SetWatermark(ctx, d.Year, target); err != nil {
		return fmt.Errorf("set watermark: %w", err)
	}
	s.log.Info().Int("year", d.Year).Int("month", target).Msg("watermark advanced")
	return nil
}

// doneThrough returns the highest month M of year such that every listed
// draft of year with month <= M is done, or 0.
func doneThrough(drafts []billing.Draft, year int) int {
	months := make(map[int]bool) // month -> all done
	for _, d := range drafts {
		if d.Year != year {
			continue
		}
		done, seen := months[d.Month]
		months[d.Month] = (done || !seen) && d.Status == billing.StatusDone
	}

	ordered := make([]int, 0, len(months))
	for m := range months {
		ordered = append(ordered, m)
	}
	sort.Ints(ordered)

	through := 0
	for _, m := range ordered {
		if !months[m] {
			break
		}
		through = m
	}
	return through
}

// =============================================================================
// OVERRIDES
// =============================================================================

// SetOverride stores a user-entered total for a period.
func (s *Service) SetOverride(ctx context.Context, key billing.PeriodKey, value decimal.Decimal) error {
	if _, err := s.store.GetRuleset(ctx, key.RulesetID); err != nil {
		return err
	}
	if value.IsNegative() {
		return fmt.Errorf("override %s must not be negative: %w", key, billing.ErrInvalidInput)
	}
	if err := s.store.SetOverride(ctx, key, value); err != nil {
		return fmt.Errorf("set override %s: %w", key, err)
	}
	s.log.Debug().Str("period", key.String()).Str("value", value.String()).Msg("override set")
	return nil
}

// ClearOverride resets a period to its computed total.
func (s *Service) ClearOverride(ctx context.Context, key billing.PeriodKey) error {
	if err := s.store.ClearOverride(ctx, key); err != nil {
		return fmt.Errorf("clear override %s: %w", key, err)
	}
	return nil
}

// =============================================================================
// AD-HOC EXTRAS
// =============================================================================

// AddExtra stores a new selected ad-hoc extra. A zero rate means the
// amount is already in the invoicing currency.
func (s *Service) AddExtra(ctx context.Context, amount decimal.Decimal, currency string, rate decimal.Decimal, note string) (billing.AdhocExtra, error) {
	e := billing.AdhocExtra{
		ID:       billing.NewAdhocID(),
		Amount:   amount,
		Currency: currency,
		Rate:     rate,
		Selected: true,
		Note:     note,
	}
	if err := s.store.SaveExtra(ctx, e); err != nil {
		return billing.AdhocExtra{}, fmt.Errorf("save extra: %w", err)
	}
	return e, nil
}

// SelectExtra toggles whether an extra counts toward the extra value.
func (s *Service) SelectExtra(ctx context.Context, id string, selected bool) (billing.AdhocExtra, error) {
	extras, err := s.store.ListExtras(ctx)
	if err != nil {
		return billing.AdhocExtra{}, fmt.Errorf("load extras: %w", err)
	}
	for _, e := range extras {
		if e.ID != id {
			continue
		}
		e.Selected = selected
		if err := s.store.SaveExtra(ctx, e); err != nil {
			return billing.AdhocExtra{}, fmt.Errorf("save extra: %w", err)
		}
		return e, nil
	}
	return billing.AdhocExtra{}, fmt.Errorf("extra %s: %w", id, billing.ErrExtraNotFound)
}

// ExtraValue returns the converted sum of selected extras.
func (s *Service) ExtraValue(ctx context.Context) (decimal.Decimal, error) {
	return s.extraValue(ctx)
}

func (s *Service) extraValue(ctx context.Context) (decimal.Decimal, error) {
	extras, err := s.store.ListExtras(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load extras: %w", err)
	}
	sum := decimal.Zero
	for _, e := range extras {
		if e.Selected {
			sum = sum.Add(e.Converted())
		}
	}
	return sum, nil
}

// =============================================================================
// WATERMARK
// =============================================================================

// LastInvoiced returns the current year's last invoiced month.
func (s *Service) LastInvoiced(ctx context.Context) (int, error) {
	return s.lastInvoiced(ctx, s.now().Year())
}

// SetLastInvoiced overrides the stored watermark of the current year.
func (s *Service) SetLastInvoiced(ctx context.Context, month int) error {
	if month < 0 || month > 12 {
		return fmt.Errorf("month %d must be 0-12: %w", month, billing.ErrInvalidInput)
	}
	year := s.now().Year()
	if err := s.store.SetWatermark(ctx, year, month); err != nil {
		return fmt.Errorf("set watermark: %w", err)
	}
	s.log.Info().Int("year", year).Int("month", month).Msg("watermark set")
	return nil
}

func (s *Service) lastInvoiced(ctx context.Context, year int) (int, error) {
	last, err := s.store.Watermark(ctx, year)
	if err != nil {
		return 0, fmt.Errorf("load watermark: %w", err)
	}
	if s.source != nil {
		if m := s.source.LastInvoiced(year); m > last {
			last = m
		}
	}
	return last, nil
}
