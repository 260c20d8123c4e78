package factory

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/warp/invoice-engine/billing"
)

// CompanyJSON is the JSON representation of a customer.
type CompanyJSON struct {
	ID      string `json:"id" validate:"required"`
	Name    string `json:"name" validate:"required"`
	Address string `json:"address,omitempty"`
	TaxID   string `json:"taxId,omitempty"`
	VATID   string `json:"vatId,omitempty"`
	Email   string `json:"email,omitempty" validate:"omitempty,email"`
}

// ParseCompany parses and validates a JSON company.
func (f *RulesetFactory) ParseCompany(data []byte) (billing.Company, error) {
	var cj CompanyJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return billing.Company{}, fmt.Errorf("failed to parse company JSON: %w", err)
	}
	return f.CompanyFromJSON(cj)
}

// CompanyFromJSON validates cj and converts it to a billing.Company.
// Validation failures are reported as a ValidationError keyed by the
// company id.
func (f *RulesetFactory) CompanyFromJSON(cj CompanyJSON) (billing.Company, error) {
	if err := f.validate.Struct(cj); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return billing.Company{}, fmt.Errorf("validate company %q: %w", cj.ID, err)
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fieldPath(fe)] = describe(fe)
		}
		return billing.Company{}, &billing.ValidationError{RulesetID: billing.RulesetID(cj.ID), Fields: fields}
	}

	return billing.Company{
		ID:      billing.CompanyID(cj.ID),
		Name:    cj.Name,
		Address: cj.Address,
		TaxID:   cj.TaxID,
		VATID:   cj.VATID,
		Email:   cj.Email,
	}, nil
}

// CompanyToJSON converts a Company to CompanyJSON.
func (f *RulesetFactory) CompanyToJSON(c billing.Company) CompanyJSON {
	return CompanyJSON{
		ID:      string(c.ID),
		Name:    c.Name,
		Address: c.Address,
		TaxID:   c.TaxID,
		VATID:   c.VATID,
		Email:   c.Email,
	}
}
