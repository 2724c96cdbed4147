package discovery

import (
	"github.com/yourorg/nearme-discovery/internal/geo"
	"github.com/yourorg/nearme-discovery/internal/model"
	"github.com/yourorg/nearme-discovery/internal/types"
	"github.com/yourorg/nearme-discovery/internal/validation"
)

// ErrContractViolation is matched by every RecordError returned from Sanitize.
var ErrContractViolation = validation.ErrContractViolation

// RecordError describes a merchant record rejected at the boundary.
type RecordError = validation.RecordError

// Selection is the filter state owned by the merchant screen. It changes only on
// explicit user action and is passed in on every call.
type Selection struct {
	SearchText string
	Category   types.Category

	// Token optionally restricts results to merchants accepting this symbol
	Token string

	// MaxDistanceKm optionally restricts ranked results to a radius
	MaxDistanceKm float64
}

// DefaultSelection is the state of a freshly opened screen.
func DefaultSelection() Selection {
	return Selection{Category: types.CategoryAll}
}

// Query bundles every input of one discovery pass.
type Query struct {
	Selection

	// UserLocation is nil when location permission is missing
	UserLocation *model.Location

	// DistanceFn defaults to nothing; callers pass geo.Haversine to rank
	DistanceFn geo.DistanceFunc
}

// Result is the output of one discovery pass.
type Result struct {
	// Categories are the chips derived from all valid merchants
	Categories []types.Category `json:"categories"`

	// Merchants are ranked and filtered for display
	Merchants []model.RankedMerchant `json:"merchants"`

	// Rejected lists records dropped by Sanitize
	Rejected []RecordError `json:"rejected,omitempty"`
}

// Empty reports whether the pass produced nothing to show. The list renders a
// "no results" state in that case.
func (r Result) Empty() bool {
	return len(r.Merchants) == 0
}

// Sanitize drops malformed merchant records and reports each one.
func Sanitize(merchants []model.Merchant) ([]model.Merchant, []RecordError) {
	return validation.FilterInvalidConcurrently(merchants, validation.DefaultValidationOptions())
}

// Discover runs the full pipeline: sanitize, categorize, rank, then filter.
// An empty category in the selection is treated as "All".
func Discover(merchants []model.Merchant, q Query) Result {
	valid, rejected := Sanitize(merchants)

	selected := q.Category
	if selected == "" {
		selected = types.CategoryAll
	}

	ranked := RankByProximity(valid, q.UserLocation, q.DistanceFn)
	ranked = Filter(ranked, q.SearchText, selected)
	ranked = FilterByToken(ranked, q.Token)
	ranked = WithinRadius(ranked, q.MaxDistanceKm)

	return Result{
		Categories: DeriveCategories(valid),
		Merchants:  ranked,
		Rejected:   rejected,
	}
}
