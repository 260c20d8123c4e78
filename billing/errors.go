/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  The calculator itself never fails: malformed configuration only makes a
  period disappear from the output. Errors exist at the edges (stores,
  configuration, the generation driver) and are collected here so every
  layer wraps the same sentinels.

ERROR CATEGORIES:
  1. Lookup errors - Ruleset, company or draft not found
  2. Validation errors - Rejected ruleset configuration
  3. Lifecycle errors - Illegal draft status transitions

USAGE:
  if errors.Is(err, billing.ErrRulesetNotFound) {
      // 404
  }

SEE ALSO:
  - factory/ruleset.go: Produces ValidationError
  - planner/planner.go: Produces StatusTransitionError
*/
package billing

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrRulesetNotFound is returned when a referenced ruleset doesn't exist.
	ErrRulesetNotFound = errors.New("ruleset not found")

	// ErrCompanyNotFound is returned when a referenced company doesn't exist.
	ErrCompanyNotFound = errors.New("company not found")

	// ErrDraftNotFound is returned when a draft id is not in the current list.
	ErrDraftNotFound = errors.New("draft not found")

	// ErrExtraNotFound is returned when an ad-hoc extra doesn't exist.
	ErrExtraNotFound = errors.New("extra not found")

	// ErrInvalidRuleset is returned when a ruleset configuration is rejected.
	ErrInvalidRuleset = errors.New("invalid ruleset")

	// ErrInvalidInput is returned for malformed values outside ruleset
	// configuration, e.g. a negative override.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidStatusTransition is returned when the generation driver
	// reports a status the draft cannot move to.
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError lists the rejected fields of a ruleset.
type ValidationError struct {
	RulesetID RulesetID
	Fields    map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return fmt.Sprintf("invalid ruleset %q: %s", e.RulesetID, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRuleset
}

// StatusTransitionError describes a rejected status change.
type StatusTransitionError struct {
	DraftID string
	From    Status
	To      Status
}

func (e *StatusTransitionError) Error() string {
	return fmt.Sprintf("draft %s: cannot move from %s to %s", e.DraftID, e.From, e.To)
}

func (e *StatusTransitionError) Unwrap() error {
	return ErrInvalidStatusTransition
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRuleset) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidStatusTransition)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRulesetNotFound) ||
		errors.Is(err, ErrCompanyNotFound) ||
		errors.Is(err, ErrDraftNotFound) ||
		errors.Is(err, ErrExtraNotFound)
}
