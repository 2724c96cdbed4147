// Package model defines the core data structures for the merchant discovery service.
package model

import (
	"math"
	"strings"

	"github.com/yourorg/nearme-discovery/internal/types"
)

// Location is a WGS 84 coordinate in degrees.
type Location struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// Valid reports whether both coordinates are finite and in range.
func (l Location) Valid() bool {
	if math.IsNaN(l.Latitude) || math.IsNaN(l.Longitude) ||
		math.IsInf(l.Latitude, 0) || math.IsInf(l.Longitude, 0) {
		return false
	}
	return l.Latitude >= -90 && l.Latitude <= 90 &&
		l.Longitude >= -180 && l.Longitude <= 180
}

// Merchant represents a business accepting crypto payments.
// Records are supplied by the merchant store and are read-only to the engine.
type Merchant struct {
	// ID is the store document id, unique within one merchant list
	ID string `json:"id" yaml:"id"`

	Name    string `json:"name" yaml:"name"`
	Address string `json:"address" yaml:"address"`

	// Description is optional; empty when the store has none
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	Category types.Category `json:"category" yaml:"category"`

	// Location is nil when the record carries no coordinates
	Location *Location `json:"location,omitempty" yaml:"location,omitempty"`

	// Rating is 0.0-5.0; a missing rating reads as 0
	Rating float64 `json:"rating,omitempty" yaml:"rating,omitempty"`

	// AcceptedTokens holds token symbols such as "SOL" or "USDC"
	AcceptedTokens []string `json:"acceptedTokens,omitempty" yaml:"acceptedTokens,omitempty"`
}

// Accepts reports whether the merchant takes the given token symbol.
func (m Merchant) Accepts(symbol string) bool {
	for _, t := range m.AcceptedTokens {
		if strings.EqualFold(t, symbol) {
			return true
		}
	}
	return false
}

// RankedMerchant is a Merchant annotated with its distance from the user.
// Distance is nil unless both a user location and a distance function were
// supplied when ranking.
type RankedMerchant struct {
	Merchant
	Distance *float64 `json:"distance,omitempty"`
}

// HasDistance reports whether a distance was computed for this merchant.
func (r RankedMerchant) HasDistance() bool {
	return r.Distance != nil
}
