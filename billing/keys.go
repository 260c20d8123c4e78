package billing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// PERIOD KEY - Canonical identity of one ruleset period
// =============================================================================

// PeriodKey identifies one billing period of one ruleset. Overrides,
// baselines and generated records are all keyed by it; String is the only
// encoding used for persistence and URLs.
type PeriodKey struct {
	RulesetID RulesetID
	Year      int
	Month     int
}

// String encodes the key as "{rulesetId}-{year}-{month}".
func (k PeriodKey) String() string {
	return fmt.Sprintf("%s-%d-%d", k.RulesetID, k.Year, k.Month)
}

// ParsePeriodKey decodes a key produced by PeriodKey.String. Ruleset IDs
// may themselves contain dashes, so the year and month are taken from the
// end.
func ParsePeriodKey(s string) (PeriodKey, error) {
	parts := strings.Split(s, "-")
	if len(parts) < 3 {
		return PeriodKey{}, fmt.Errorf("invalid period key %q", s)
	}
	n := len(parts)
	year, err := strconv.Atoi(parts[n-2])
	if err != nil {
		return PeriodKey{}, fmt.Errorf("invalid period key %q: %w", s, err)
	}
	month, err := strconv.Atoi(parts[n-1])
	if err != nil {
		return PeriodKey{}, fmt.Errorf("invalid period key %q: %w", s, err)
	}
	id := strings.Join(parts[:n-2], "-")
	if id == "" || month < 1 || month > 12 {
		return PeriodKey{}, fmt.Errorf("invalid period key %q", s)
	}
	return PeriodKey{RulesetID: RulesetID(id), Year: year, Month: month}, nil
}

// Overrides holds user-entered period totals.
type Overrides map[PeriodKey]decimal.Decimal

// =============================================================================
// DRAFT IDS
// =============================================================================

const adhocPrefix = "adhoc:"

// DraftID returns the deterministic id "{rulesetId}-{year}-{month}-{index}".
// Regenerating the same logical invoice always yields the same id.
func DraftID(rulesetID RulesetID, year, month, index int) string {
	return fmt.Sprintf("%s-%d-%d-%d", rulesetID, year, month, index)
}

// NewAdhocID returns a fresh id in the ad-hoc space, which never collides
// with ruleset draft ids.
func NewAdhocID() string {
	return adhocPrefix + uuid.NewString()
}

// IsAdhocID reports whether id belongs to the ad-hoc space.
func IsAdhocID(id string) bool {
	return strings.HasPrefix(id, adhocPrefix)
}
