/*
handlers.go - HTTP API handlers for the invoice draft engine

PURPOSE:
  Exposes the planner and its configuration store via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to the planner
  and the billing store.

ENDPOINTS:
  Rulesets:
    GET    /api/rulesets                List rulesets in declaration order
    POST   /api/rulesets                Create or replace a ruleset
    GET    /api/rulesets/{id}           Get one ruleset
    PUT    /api/rulesets/{id}           Replace a ruleset
    DELETE /api/rulesets/{id}           Delete a ruleset and its overrides

  Companies:
    GET    /api/companies               List companies
    POST   /api/companies               Create or replace a company

  Drafts:
    GET    /api/drafts                  Recompute and list drafts
    PUT    /api/drafts/{id}/edit        Edit invoice number, VS, description
    POST   /api/drafts/{id}/status      Report generation status

  Overrides:
    PUT    /api/overrides/{rulesetID}/{year}/{month}  Set a period total
    DELETE /api/overrides/{rulesetID}/{year}/{month}  Reset to computed

  Extras:
    GET    /api/extras                  List ad-hoc extras and selected total
    POST   /api/extras                  Add an ad-hoc extra
    PUT    /api/extras/{id}/select      Select or deselect an extra
    DELETE /api/extras/{id}             Remove an extra

  Watermark:
    GET    /api/watermark               Last invoiced month of this year
    PUT    /api/watermark               Override the stored watermark

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Ruleset, draft or extra not found
  - 409: Illegal draft status transition
  - 500: Internal errors

SECURITY NOTE:
  No authentication. The service is meant to run next to a single user.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - planner/planner.go: Draft session
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/warp/invoice-engine/billing"
	"github.com/warp/invoice-engine/factory"
	"github.com/warp/invoice-engine/logger"
	"github.com/warp/invoice-engine/planner"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store          billing.Store
	Planner        *planner.Service
	RulesetFactory *factory.RulesetFactory

	log zerolog.Logger
}

// NewHandler creates a new handler over store and the planner using it.
func NewHandler(store billing.Store, plans *planner.Service, log zerolog.Logger) *Handler {
	return &Handler{
		Store:          store,
		Planner:        plans,
		RulesetFactory: factory.NewRulesetFactory(),
		log:            log,
	}
}

// =============================================================================
// RULESET HANDLERS
// =============================================================================

// ListRulesets returns all rulesets.
func (h *Handler) ListRulesets(w http.ResponseWriter, r *http.Request) {
	rulesets, err := h.Store.ListRulesets(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list rulesets", err)
		return
	}

	dtos := make([]RulesetDTO, len(rulesets))
	for i, rs := range rulesets {
		dtos[i] = h.toRulesetDTO(rs)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRuleset creates or replaces a ruleset.
func (h *Handler) CreateRuleset(w http.ResponseWriter, r *http.Request) {
	var req factory.RulesetJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.saveRuleset(w, r, req, http.StatusCreated)
}

// GetRuleset returns a single ruleset.
func (h *Handler) GetRuleset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rs, err := h.Store.GetRuleset(r.Context(), billing.RulesetID(id))
	if err != nil {
		h.fail(w, r, "Failed to get ruleset", err)
		return
	}
	writeJSON(w, http.StatusOK, h.toRulesetDTO(rs))
}

// UpdateRuleset replaces an existing ruleset. The body id must match the
// path.
func (h *Handler) UpdateRuleset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req factory.RulesetJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		req.ID = id
	}
	if req.ID != id {
		writeError(w, http.StatusBadRequest, "Ruleset id does not match path", nil)
		return
	}
	if _, err := h.Store.GetRuleset(r.Context(), billing.RulesetID(id)); err != nil {
		h.fail(w, r, "Failed to get ruleset", err)
		return
	}
	h.saveRuleset(w, r, req, http.StatusOK)
}

func (h *Handler) saveRuleset(w http.ResponseWriter, r *http.Request, req factory.RulesetJSON, status int) {
	rs, err := h.RulesetFactory.FromJSON(req)
	if err != nil {
		h.fail(w, r, "Invalid ruleset configuration", err)
		return
	}
	if err := h.Store.SaveRuleset(r.Context(), rs); err != nil {
		h.fail(w, r, "Failed to save ruleset", err)
		return
	}
	writeJSON(w, status, h.toRulesetDTO(rs))
}

// DeleteRuleset removes a ruleset.
func (h *Handler) DeleteRuleset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Store.DeleteRuleset(r.Context(), billing.RulesetID(id)); err != nil {
		h.fail(w, r, "Failed to delete ruleset", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) toRulesetDTO(rs billing.Ruleset) RulesetDTO {
	return RulesetDTO{
		ID:     string(rs.ID),
		Name:   rs.Name,
		Config: h.RulesetFactory.ToJSON(rs),
	}
}

// =============================================================================
// COMPANY HANDLERS
// =============================================================================

// ListCompanies returns all companies.
func (h *Handler) ListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.Store.ListCompanies(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list companies", err)
		return
	}

	dtos := make([]factory.CompanyJSON, len(companies))
	for i, c := range companies {
		dtos[i] = h.RulesetFactory.CompanyToJSON(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCompany creates or replaces a company.
func (h *Handler) CreateCompany(w http.ResponseWriter, r *http.Request) {
	var req factory.CompanyJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	company, err := h.RulesetFactory.CompanyFromJSON(req)
	if err != nil {
		h.fail(w, r, "Invalid company", err)
		return
	}
	if err := h.Store.SaveCompany(r.Context(), company); err != nil {
		h.fail(w, r, "Failed to save company", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.RulesetFactory.CompanyToJSON(company))
}

// =============================================================================
// DRAFT HANDLERS
// =============================================================================

// ListDrafts recomputes drafts and merges them into the session list.
func (h *Handler) ListDrafts(w http.ResponseWriter, r *http.Request) {
	plan, err := h.Planner.Drafts(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to compute drafts", err)
		return
	}
	writeJSON(w, http.StatusOK, toPlanDTO(plan))
}

// EditDraft stores text edits for a draft.
func (h *Handler) EditDraft(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req EditDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	d, err := h.Planner.EditDraft(r.Context(), id, billing.DraftEdit{
		InvoiceNo:      req.InvoiceNo,
		VariableSymbol: req.VariableSymbol,
		Description:    req.Description,
	})
	if err != nil {
		h.fail(w, r, "Failed to edit draft", err)
		return
	}
	writeJSON(w, http.StatusOK, toDraftDTO(d))
}

// UpdateDraftStatus applies a status reported by the generation driver.
func (h *Handler) UpdateDraftStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	status := billing.Status(req.Status)
	switch status {
	case billing.StatusPending, billing.StatusGenerating, billing.StatusDone, billing.StatusError:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown status %q", req.Status), nil)
		return
	}

	d, err := h.Planner.MarkStatus(r.Context(), id, status)
	if err != nil {
		h.fail(w, r, "Failed to update draft status", err)
		return
	}
	writeJSON(w, http.StatusOK, toDraftDTO(d))
}

// =============================================================================
// OVERRIDE HANDLERS
// =============================================================================

// SetOverride stores a user-entered total for one period.
func (h *Handler) SetOverride(w http.ResponseWriter, r *http.Request) {
	key, err := periodKeyParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	var req OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Planner.SetOverride(r.Context(), key, req.Value); err != nil {
		h.fail(w, r, "Failed to set override", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearOverride resets one period to its computed total.
func (h *Handler) ClearOverride(w http.ResponseWriter, r *http.Request) {
	key, err := periodKeyParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	if err := h.Planner.ClearOverride(r.Context(), key); err != nil {
		h.fail(w, r, "Failed to clear override", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func periodKeyParam(r *http.Request) (billing.PeriodKey, error) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		return billing.PeriodKey{}, fmt.Errorf("year: %w", err)
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		return billing.PeriodKey{}, fmt.Errorf("month: %w", err)
	}
	if month < 1 || month > 12 {
		return billing.PeriodKey{}, fmt.Errorf("month %d out of range", month)
	}
	return billing.PeriodKey{
		RulesetID: billing.RulesetID(chi.URLParam(r, "rulesetID")),
		Year:      year,
		Month:     month,
	}, nil
}

// =============================================================================
// EXTRA HANDLERS
// =============================================================================

// ListExtras returns all ad-hoc extras and the selected total.
func (h *Handler) ListExtras(w http.ResponseWriter, r *http.Request) {
	extras, err := h.Store.ListExtras(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list extras", err)
		return
	}
	total, err := h.Planner.ExtraValue(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to sum extras", err)
		return
	}

	dto := ExtrasDTO{Items: make([]ExtraDTO, len(extras)), Total: total}
	for i, e := range extras {
		dto.Items[i] = toExtraDTO(e)
	}
	writeJSON(w, http.StatusOK, dto)
}

// CreateExtra adds a selected ad-hoc extra.
func (h *Handler) CreateExtra(w http.ResponseWriter, r *http.Request) {
	var req CreateExtraRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "Amount must be positive", nil)
		return
	}
	if req.Rate.IsNegative() {
		writeError(w, http.StatusBadRequest, "Rate must not be negative", nil)
		return
	}

	e, err := h.Planner.AddExtra(r.Context(), req.Amount, req.Currency, req.Rate, req.Note)
	if err != nil {
		h.fail(w, r, "Failed to add extra", err)
		return
	}
	writeJSON(w, http.StatusCreated, toExtraDTO(e))
}

// SelectExtra selects or deselects an extra.
func (h *Handler) SelectExtra(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req SelectExtraRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	e, err := h.Planner.SelectExtra(r.Context(), id, req.Selected)
	if err != nil {
		h.fail(w, r, "Failed to select extra", err)
		return
	}
	writeJSON(w, http.StatusOK, toExtraDTO(e))
}

// DeleteExtra removes an extra.
func (h *Handler) DeleteExtra(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Store.DeleteExtra(r.Context(), id); err != nil {
		h.fail(w, r, "Failed to delete extra", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// WATERMARK HANDLERS
// =============================================================================

// GetWatermark returns the last invoiced month of the current year.
func (h *Handler) GetWatermark(w http.ResponseWriter, r *http.Request) {
	last, err := h.Planner.LastInvoiced(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to load watermark", err)
		return
	}
	writeJSON(w, http.StatusOK, WatermarkDTO{LastInvoicedMonth: last})
}

// SetWatermark overrides the stored watermark of the current year.
func (h *Handler) SetWatermark(w http.ResponseWriter, r *http.Request) {
	var req SetWatermarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Planner.SetLastInvoiced(r.Context(), req.Month); err != nil {
		h.fail(w, r, "Failed to set watermark", err)
		return
	}
	h.GetWatermark(w, r)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// fail maps a domain error to its HTTP status and logs server errors.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		reqLog := logger.WithRequest(h.log, r)
		reqLog.Error().Err(err).Msg(message)
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, billing.ErrInvalidStatusTransition):
		return http.StatusConflict
	case billing.IsNotFound(err):
		return http.StatusNotFound
	case billing.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
