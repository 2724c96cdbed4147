// Package aggregate computes list-level statistics over a discovery result,
// shown in the sheet header and served by the summary endpoint.
package aggregate

import (
	"math"
	"sort"
	"strings"

	"github.com/yourorg/nearme-discovery/internal/discovery"
	"github.com/yourorg/nearme-discovery/internal/model"
	"github.com/yourorg/nearme-discovery/internal/types"
)

// CategoryCount is the number of merchants in one category.
type CategoryCount struct {
	Category types.Category `json:"category"`
	Count    int            `json:"count"`
}

// TokenCount is the number of merchants accepting one token symbol.
type TokenCount struct {
	Symbol string `json:"symbol"`
	Count  int    `json:"count"`
}

// Summary describes a ranked merchant list.
type Summary struct {
	Count         int             `json:"count"`
	Categories    []CategoryCount `json:"categories"`
	Tokens        []TokenCount    `json:"tokens"`
	AverageRating float64         `json:"averageRating"`
	MedianRating  float64         `json:"medianRating"`

	// NearestKm is nil when the list carries no distances
	NearestKm    *float64 `json:"nearestKm,omitempty"`
	NearestLabel string   `json:"nearestLabel,omitempty"`
}

// Summarize builds a Summary. Category counts follow chip order; token counts
// are sorted by count, then symbol.
func Summarize(ranked []model.RankedMerchant) Summary {
	summary := Summary{
		Count:      len(ranked),
		Categories: []CategoryCount{},
		Tokens:     []TokenCount{},
	}
	if len(ranked) == 0 {
		return summary
	}

	merchants := make([]model.Merchant, len(ranked))
	for i, r := range ranked {
		merchants[i] = r.Merchant
	}

	perCategory := map[types.Category]int{}
	perToken := map[string]int{}
	var ratingSum float64
	for _, r := range ranked {
		perCategory[r.Category]++
		ratingSum += r.Rating

		// A merchant listing a token twice still counts once
		seen := map[string]bool{}
		for _, t := range r.AcceptedTokens {
			symbol := strings.ToUpper(strings.TrimSpace(t))
			if symbol == "" || seen[symbol] {
				continue
			}
			seen[symbol] = true
			perToken[symbol]++
		}

		if r.Distance != nil && !math.IsNaN(*r.Distance) {
			if summary.NearestKm == nil || *r.Distance < *summary.NearestKm {
				d := *r.Distance
				summary.NearestKm = &d
			}
		}
	}

	for _, c := range discovery.DeriveCategories(merchants)[1:] {
		summary.Categories = append(summary.Categories, CategoryCount{Category: c, Count: perCategory[c]})
	}

	for symbol, n := range perToken {
		summary.Tokens = append(summary.Tokens, TokenCount{Symbol: symbol, Count: n})
	}
	sort.Slice(summary.Tokens, func(i, j int) bool {
		if summary.Tokens[i].Count != summary.Tokens[j].Count {
			return summary.Tokens[i].Count > summary.Tokens[j].Count
		}
		return summary.Tokens[i].Symbol < summary.Tokens[j].Symbol
	})

	summary.AverageRating = ratingSum / float64(len(ranked))
	summary.MedianRating = Median(ranked, func(r model.RankedMerchant) float64 { return r.Rating })
	summary.NearestLabel = discovery.FormatDistance(summary.NearestKm)

	return summary
}

// Median berechnet den Medianwert für eine bestimmte Eigenschaft
func Median(ranked []model.RankedMerchant, selector func(model.RankedMerchant) float64) float64 {
	if len(ranked) == 0 {
		return 0
	}

	values := make([]float64, 0, len(ranked))
	for _, r := range ranked {
		values = append(values, selector(r))
	}

	sort.Float64s(values)
	n := len(values)

	if n%2 == 0 {
		return (values[n/2-1] + values[n/2]) / 2
	}
	return values[n/2]
}
