/*
Package factory provides JSON to Go ruleset conversion.

PURPOSE:
  Converts JSON ruleset definitions into billing.Ruleset values and back.
  Rulesets are edited as JSON documents (admin UI, config files, the
  database config_json column) and validated here before they ever reach
  the calculator, which assumes well-formed input.

JSON SCHEMA:
  {
    "id": "acme-dev",
    "name": "ACME development",
    "periodicity": "monthly",
    "entitlementDay": 10,
    "dueDateOffsetDays": 14,
    "maxInvoiceValue": 90000,
    "minimizeInvoices": true,
    "salaryRules": [
      {"startDate": "2025-01", "endDate": "", "value": 100000, "deduction": 0}
    ],
    "rules": [
      {"condition": "odd", "companyId": "acme"},
      {"condition": "default", "companyId": "acme-holding"}
    ],
    "descriptions": ["Software development"],
    "templatePath": "templates/acme.odt"
  }

VALIDATION:
  - Struct tags checked with go-playground/validator
  - Salary rule ranges must not be inverted
  - Failures come back as *billing.ValidationError keyed by JSON path

USAGE:
  f := factory.NewRulesetFactory()
  rs, err := f.ParseRuleset(data)
  if errors.Is(err, billing.ErrInvalidRuleset) {
      // show per-field errors
  }

SEE ALSO:
  - billing/types.go: Ruleset type definition
  - store/sqlite/sqlite.go: Stores ToJSON output in config_json
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/invoice-engine/billing"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RulesetJSON is the JSON representation of a ruleset.
type RulesetJSON struct {
	ID                     string             `json:"id" validate:"required"`
	Name                   string             `json:"name" validate:"required"`
	Periodicity            string             `json:"periodicity" validate:"required,oneof=monthly quarterly yearly custom_months custom_days"`
	PeriodicityCustomValue int                `json:"periodicityCustomValue,omitempty" validate:"required_if=Periodicity custom_months,gte=0"`
	EntitlementDay         int                `json:"entitlementDay" validate:"min=1,max=31"`
	DueDateOffsetDays      int                `json:"dueDateOffsetDays" validate:"gte=0"`
	MaxInvoiceValue        *float64           `json:"maxInvoiceValue,omitempty" validate:"omitempty,gt=0"`
	MinimizeInvoices       bool               `json:"minimizeInvoices,omitempty"`
	SalaryRules            []SalaryRuleJSON   `json:"salaryRules" validate:"dive"`
	Rules                  []CustomerRuleJSON `json:"rules,omitempty" validate:"dive"`
	Descriptions           []string           `json:"descriptions,omitempty"`
	TemplatePath           string             `json:"templatePath,omitempty"`
}

// SalaryRuleJSON represents one salary history entry. Dates are YYYY-MM;
// an empty endDate means open-ended.
type SalaryRuleJSON struct {
	StartDate string  `json:"startDate" validate:"required,datetime=2006-01"`
	EndDate   string  `json:"endDate,omitempty" validate:"omitempty,datetime=2006-01"`
	Value     float64 `json:"value" validate:"gte=0"`
	Deduction float64 `json:"deduction,omitempty" validate:"gte=0"`
}

// CustomerRuleJSON maps a month condition to a company.
type CustomerRuleJSON struct {
	Condition string `json:"condition" validate:"required,oneof=odd even default"`
	CompanyID string `json:"companyId" validate:"required"`
}

// =============================================================================
// RULESET FACTORY
// =============================================================================

// RulesetFactory converts JSON rulesets to Go structs.
type RulesetFactory struct {
	validate *validator.Validate
}

// NewRulesetFactory creates a new ruleset factory.
func NewRulesetFactory() *RulesetFactory {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)
	return &RulesetFactory{validate: v}
}

// ParseRuleset parses and validates a single JSON ruleset.
func (f *RulesetFactory) ParseRuleset(data []byte) (billing.Ruleset, error) {
	var rj RulesetJSON
	if err := json.Unmarshal(data, &rj); err != nil {
		return billing.Ruleset{}, fmt.Errorf("failed to parse ruleset JSON: %w", err)
	}
	return f.FromJSON(rj)
}

// ParseRulesets parses a JSON array of rulesets, keeping their order.
func (f *RulesetFactory) ParseRulesets(data []byte) ([]billing.Ruleset, error) {
	var list []RulesetJSON
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse ruleset list JSON: %w", err)
	}

	rulesets := make([]billing.Ruleset, 0, len(list))
	seen := make(map[string]bool, len(list))
	for i, rj := range list {
		if seen[rj.ID] {
			return nil, &billing.ValidationError{
				RulesetID: billing.RulesetID(rj.ID),
				Fields:    map[string]string{fmt.Sprintf("[%d].id", i): "duplicate"},
			}
		}
		seen[rj.ID] = true

		rs, err := f.FromJSON(rj)
		if err != nil {
			return nil, err
		}
		rulesets = append(rulesets, rs)
	}
	return rulesets, nil
}

// Validate checks rj without converting it.
func (f *RulesetFactory) Validate(rj RulesetJSON) error {
	fields := make(map[string]string)

	if err := f.validate.Struct(rj); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate ruleset %q: %w", rj.ID, err)
		}
		for _, fe := range verrs {
			fields[fieldPath(fe)] = describe(fe)
		}
	}

	for i, sr := range rj.SalaryRules {
		start, err1 := billing.ParseYearMonth(sr.StartDate)
		end, err2 := billing.ParseYearMonth(sr.EndDate)
		if err1 != nil || err2 != nil || end.IsZero() {
			continue
		}
		if end.Before(start) {
			fields[fmt.Sprintf("salaryRules[%d].endDate", i)] = "before startDate"
		}
	}

	if len(fields) > 0 {
		return &billing.ValidationError{RulesetID: billing.RulesetID(rj.ID), Fields: fields}
	}
	return nil
}

// FromJSON validates rj and converts it to a billing.Ruleset.
func (f *RulesetFactory) FromJSON(rj RulesetJSON) (billing.Ruleset, error) {
	if err := f.Validate(rj); err != nil {
		return billing.Ruleset{}, err
	}

	rs := billing.Ruleset{
		ID:                     billing.RulesetID(rj.ID),
		Name:                   rj.Name,
		Periodicity:            billing.Periodicity(rj.Periodicity),
		PeriodicityCustomValue: rj.PeriodicityCustomValue,
		EntitlementDay:         rj.EntitlementDay,
		DueDateOffsetDays:      rj.DueDateOffsetDays,
		MinimizeInvoices:       rj.MinimizeInvoices,
		Descriptions:           append([]string(nil), rj.Descriptions...),
		TemplatePath:           rj.TemplatePath,
	}
	if rj.MaxInvoiceValue != nil {
		ceiling := decimal.NewFromFloat(*rj.MaxInvoiceValue)
		rs.MaxInvoiceValue = &ceiling
	}

	for _, sr := range rj.SalaryRules {
		// Formats were checked by Validate.
		start, _ := billing.ParseYearMonth(sr.StartDate)
		end, _ := billing.ParseYearMonth(sr.EndDate)
		rs.SalaryRules = append(rs.SalaryRules, billing.SalaryRule{
			StartDate: start,
			EndDate:   end,
			Value:     decimal.NewFromFloat(sr.Value),
			Deduction: decimal.NewFromFloat(sr.Deduction),
		})
	}

	for _, cr := range rj.Rules {
		rs.Rules = append(rs.Rules, billing.CustomerRule{
			Condition: billing.Condition(cr.Condition),
			CompanyID: billing.CompanyID(cr.CompanyID),
		})
	}

	return rs, nil
}

// ToJSON converts a Ruleset to RulesetJSON.
func (f *RulesetFactory) ToJSON(rs billing.Ruleset) RulesetJSON {
	rj := RulesetJSON{
		ID:                     string(rs.ID),
		Name:                   rs.Name,
		Periodicity:            string(rs.Periodicity),
		PeriodicityCustomValue: rs.PeriodicityCustomValue,
		EntitlementDay:         rs.EntitlementDay,
		DueDateOffsetDays:      rs.DueDateOffsetDays,
		MinimizeInvoices:       rs.MinimizeInvoices,
		Descriptions:           append([]string(nil), rs.Descriptions...),
		TemplatePath:           rs.TemplatePath,
		SalaryRules:            []SalaryRuleJSON{},
	}
	if rs.MaxInvoiceValue != nil {
		v := rs.MaxInvoiceValue.InexactFloat64()
		rj.MaxInvoiceValue = &v
	}

	for _, sr := range rs.SalaryRules {
		rj.SalaryRules = append(rj.SalaryRules, SalaryRuleJSON{
			StartDate: sr.StartDate.String(),
			EndDate:   sr.EndDate.String(),
			Value:     sr.Value.InexactFloat64(),
			Deduction: sr.Deduction.InexactFloat64(),
		})
	}

	for _, cr := range rs.Rules {
		rj.Rules = append(rj.Rules, CustomerRuleJSON{
			Condition: string(cr.Condition),
			CompanyID: string(cr.CompanyID),
		})
	}

	return rj
}

// Marshal encodes a ruleset as its JSON document.
func (f *RulesetFactory) Marshal(rs billing.Ruleset) ([]byte, error) {
	data, err := json.Marshal(f.ToJSON(rs))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ruleset %s: %w", rs.ID, err)
	}
	return data, nil
}

// =============================================================================
// VALIDATION HELPERS
// =============================================================================

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}

// fieldPath drops the root struct name: "RulesetJSON.salaryRules[0].value"
// becomes "salaryRules[0].value".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "datetime":
		return "must be YYYY-MM"
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("must be %s %s", fe.Tag(), fe.Param())
		}
		return "invalid " + fe.Tag()
	}
}
