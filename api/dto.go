/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the billing domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Rulesets:   RulesetDTO (wraps factory.RulesetJSON)
  Companies:  factory.CompanyJSON is used directly
  Drafts:     PlanDTO, DraftDTO, BaselineDTO, EditDraftRequest, StatusRequest
  Overrides:  OverrideRequest
  Extras:     ExtraDTO, CreateExtraRequest, SelectExtraRequest
  Watermark:  WatermarkDTO, SetWatermarkRequest

MONEY:
  Amounts are decimal.Decimal and serialize as JSON strings ("90000"),
  so no precision is lost on the way to the client.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/ruleset.go: RulesetJSON type
*/
package api

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/invoice-engine/billing"
	"github.com/warp/invoice-engine/factory"
	"github.com/warp/invoice-engine/planner"
)

// =============================================================================
// RULESETS
// =============================================================================

// RulesetDTO represents a ruleset in API responses.
type RulesetDTO struct {
	ID     string              `json:"id"`
	Name   string              `json:"name"`
	Config factory.RulesetJSON `json:"config"`
}

// =============================================================================
// DRAFTS
// =============================================================================

// DraftDTO represents one invoice draft.
type DraftDTO struct {
	ID                     string          `json:"id"`
	RulesetID              string          `json:"ruleset_id"`
	Year                   int             `json:"year"`
	Month                  int             `json:"month"`
	Index                  int             `json:"index"`
	Amount                 decimal.Decimal `json:"amount"`
	PeriodBaseSalary       decimal.Decimal `json:"period_base_salary"`
	MonthSalary            decimal.Decimal `json:"month_salary"`
	ExtraValue             decimal.Decimal `json:"extra_value"`
	Label                  string          `json:"label"`
	PeriodLabel            string          `json:"period_label"`
	InvoiceNo              string          `json:"invoice_no"`
	VariableSymbol         string          `json:"variable_symbol"`
	InvoiceNoOverride      string          `json:"invoice_no_override,omitempty"`
	VariableSymbolOverride string          `json:"variable_symbol_override,omitempty"`
	Description            string          `json:"description"`
	CustomerID             string          `json:"customer_id,omitempty"`
	IssueDate              string          `json:"issue_date"`
	DueDate                string          `json:"due_date"`
	Status                 string          `json:"status"`
}

// BaselineDTO describes one billing period as computed without overrides.
type BaselineDTO struct {
	RulesetID         string          `json:"ruleset_id"`
	Year              int             `json:"year"`
	Month             int             `json:"month"`
	CalculatedTotal   decimal.Decimal `json:"calculated_total"`
	PeriodBaseSalary  decimal.Decimal `json:"period_base_salary"`
	OverrideEffective bool            `json:"override_effective"`
}

// PlanDTO is the response of GET /api/drafts.
type PlanDTO struct {
	Year              int             `json:"year"`
	Month             int             `json:"month"`
	Day               int             `json:"day"`
	LastInvoicedMonth int             `json:"last_invoiced_month"`
	ExtraValue        decimal.Decimal `json:"extra_value"`
	Drafts            []DraftDTO      `json:"drafts"`
	Baselines         []BaselineDTO   `json:"baselines"`
}

// EditDraftRequest carries text edits. Omitted fields are left as they
// are; an empty string clears an earlier edit and the computed value is
// shown again.
type EditDraftRequest struct {
	InvoiceNo      *string `json:"invoice_no"`
	VariableSymbol *string `json:"variable_symbol"`
	Description    *string `json:"description"`
}

// StatusRequest is sent by the generation driver.
type StatusRequest struct {
	Status string `json:"status"`
}

// =============================================================================
// OVERRIDES
// =============================================================================

// OverrideRequest sets the total of one billing period.
type OverrideRequest struct {
	Value decimal.Decimal `json:"value"`
}

// =============================================================================
// AD-HOC EXTRAS
// =============================================================================

// ExtraDTO represents an ad-hoc extra.
type ExtraDTO struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency,omitempty"`
	Rate      decimal.Decimal `json:"rate"`
	Converted decimal.Decimal `json:"converted"`
	Selected  bool            `json:"selected"`
	Note      string          `json:"note,omitempty"`
}

// ExtrasDTO is the response of GET /api/extras.
type ExtrasDTO struct {
	Items []ExtraDTO      `json:"items"`
	Total decimal.Decimal `json:"total"`
}

// CreateExtraRequest adds an ad-hoc extra. A zero rate means the amount
// is already in the invoicing currency.
type CreateExtraRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Rate     decimal.Decimal `json:"rate"`
	Note     string          `json:"note"`
}

// SelectExtraRequest toggles an extra.
type SelectExtraRequest struct {
	Selected bool `json:"selected"`
}

// =============================================================================
// WATERMARK
// =============================================================================

// WatermarkDTO reports the last invoiced month of the current year.
type WatermarkDTO struct {
	LastInvoicedMonth int `json:"last_invoiced_month"`
}

// SetWatermarkRequest overrides the stored watermark.
type SetWatermarkRequest struct {
	Month int `json:"month"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION FUNCTIONS
// =============================================================================

func toDraftDTO(d billing.Draft) DraftDTO {
	number := billing.InvoiceNumber(d.IssueDate)
	dto := DraftDTO{
		ID:                     d.ID,
		RulesetID:              string(d.RulesetID),
		Year:                   d.Year,
		Month:                  d.Month,
		Index:                  d.Index,
		Amount:                 d.Amount,
		PeriodBaseSalary:       d.PeriodBaseSalary,
		MonthSalary:            d.MonthSalary,
		ExtraValue:             d.ExtraValue,
		Label:                  d.Label,
		PeriodLabel:            d.PeriodLabel,
		InvoiceNo:              number,
		VariableSymbol:         number,
		InvoiceNoOverride:      d.InvoiceNoOverride,
		VariableSymbolOverride: d.VariableSymbolOverride,
		Description:            d.Description,
		CustomerID:             string(d.CustomerID),
		IssueDate:              d.IssueDate.Format(time.DateOnly),
		DueDate:                d.DueDate.Format(time.DateOnly),
		Status:                 string(d.Status),
	}
	if d.InvoiceNoOverride != "" {
		dto.InvoiceNo = d.InvoiceNoOverride
	}
	if d.VariableSymbolOverride != "" {
		dto.VariableSymbol = d.VariableSymbolOverride
	}
	return dto
}

func toPlanDTO(p planner.Plan) PlanDTO {
	dto := PlanDTO{
		Year:              p.Year,
		Month:             p.Month,
		Day:               p.Day,
		LastInvoicedMonth: p.LastInvoicedMonth,
		ExtraValue:        p.ExtraValue,
		Drafts:            make([]DraftDTO, len(p.Drafts)),
		Baselines:         make([]BaselineDTO, 0, len(p.Baselines)),
	}
	for i, d := range p.Drafts {
		dto.Drafts[i] = toDraftDTO(d)
	}
	for key, b := range p.Baselines {
		dto.Baselines = append(dto.Baselines, BaselineDTO{
			RulesetID:         string(key.RulesetID),
			Year:              key.Year,
			Month:             key.Month,
			CalculatedTotal:   b.CalculatedTotal,
			PeriodBaseSalary:  b.PeriodBaseSalary,
			OverrideEffective: b.OverrideEffective,
		})
	}
	// Map order is random; clients get a stable list.
	sort.Slice(dto.Baselines, func(i, j int) bool {
		a, b := dto.Baselines[i], dto.Baselines[j]
		if a.RulesetID != b.RulesetID {
			return a.RulesetID < b.RulesetID
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Month < b.Month
	})
	return dto
}

func toExtraDTO(e billing.AdhocExtra) ExtraDTO {
	return ExtraDTO{
		ID:        e.ID,
		Amount:    e.Amount,
		Currency:  e.Currency,
		Rate:      e.Rate,
		Converted: e.Converted(),
		Selected:  e.Selected,
		Note:      e.Note,
	}
}
