// Package discovery turns a raw merchant list, an optional user location and the
// user's filter selection into the ordered list shown in the merchant sheet and
// the category chips above it.
//
// Every function here is a pure transformation of its arguments: nothing is
// cached between calls and inputs are never modified, so callers may invoke the
// pipeline from any goroutine whenever one of its inputs changes.
package discovery

import (
	"math"
	"sort"
	"strings"

	"github.com/yourorg/nearme-discovery/internal/geo"
	"github.com/yourorg/nearme-discovery/internal/model"
	"github.com/yourorg/nearme-discovery/internal/types"
)

// DeriveCategories returns the category chips: "All" first, then every distinct
// merchant category in first-seen order.
func DeriveCategories(merchants []model.Merchant) []types.Category {
	categories := []types.Category{types.CategoryAll}
	seen := map[types.Category]struct{}{types.CategoryAll: {}}

	for _, m := range merchants {
		if m.Category == "" {
			continue
		}
		if _, ok := seen[m.Category]; ok {
			continue
		}
		seen[m.Category] = struct{}{}
		categories = append(categories, m.Category)
	}
	return categories
}

// RankByProximity annotates merchants with their distance from userLocation and
// sorts them nearest first. Equal distances keep their input order.
//
// When userLocation or distanceFn is nil the merchants come back in input order
// without distances.
func RankByProximity(merchants []model.Merchant, userLocation *model.Location, distanceFn geo.DistanceFunc) []model.RankedMerchant {
	ranked := make([]model.RankedMerchant, len(merchants))
	for i, m := range merchants {
		ranked[i] = model.RankedMerchant{Merchant: m}
	}

	if userLocation == nil || distanceFn == nil {
		return ranked
	}

	for i := range ranked {
		d := math.NaN()
		if loc := ranked[i].Location; loc != nil {
			d = distanceFn(userLocation.Latitude, userLocation.Longitude, loc.Latitude, loc.Longitude)
		}
		ranked[i].Distance = &d
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return distanceLess(*ranked[i].Distance, *ranked[j].Distance)
	})
	return ranked
}

// distanceLess orders NaN after every number so unlocatable records sink to the
// bottom without breaking the sort.
func distanceLess(a, b float64) bool {
	if math.IsNaN(a) {
		return false
	}
	if math.IsNaN(b) {
		return true
	}
	return a < b
}

// Filter keeps merchants in selectedCategory (or any, for "All") whose name,
// address or description contains searchText, ignoring case. Empty searchText
// matches everything. The result preserves input order.
func Filter(ranked []model.RankedMerchant, searchText string, selectedCategory types.Category) []model.RankedMerchant {
	query := strings.ToLower(searchText)

	filtered := make([]model.RankedMerchant, 0, len(ranked))
	for _, r := range ranked {
		if !matchesCategory(r.Merchant, selectedCategory) {
			continue
		}
		if !matchesSearch(r.Merchant, query) {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}

func matchesCategory(m model.Merchant, selected types.Category) bool {
	return selected.IsAll() || m.Category == selected
}

// matchesSearch expects query already lower-cased.
func matchesSearch(m model.Merchant, query string) bool {
	if query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(m.Name), query) ||
		strings.Contains(strings.ToLower(m.Address), query) ||
		(m.Description != "" && strings.Contains(strings.ToLower(m.Description), query))
}

// FilterByToken keeps merchants accepting the token symbol. An empty symbol
// keeps everything.
func FilterByToken(ranked []model.RankedMerchant, symbol string) []model.RankedMerchant {
	if symbol == "" {
		return ranked
	}
	filtered := make([]model.RankedMerchant, 0, len(ranked))
	for _, r := range ranked {
		if r.Accepts(symbol) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// WithinRadius keeps merchants no further than maxKm. Merchants without a
// computed distance are kept; a non-positive radius disables the check.
func WithinRadius(ranked []model.RankedMerchant, maxKm float64) []model.RankedMerchant {
	if maxKm <= 0 {
		return ranked
	}
	filtered := make([]model.RankedMerchant, 0, len(ranked))
	for _, r := range ranked {
		if r.Distance == nil || *r.Distance <= maxKm {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
