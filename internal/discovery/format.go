package discovery

import (
	"math"
	"strconv"
	"strings"

	"github.com/yourorg/nearme-discovery/internal/validation"
)

// FormatDistance renders a distance label for list rows and map callouts:
// "" when there is no distance, whole meters below 1 km, else kilometers with
// one decimal ("400m", "1.0km", "12.3km").
//
// A distance of exactly zero also renders as "", the same as no distance.
func FormatDistance(distanceKm *float64) string {
	if distanceKm == nil {
		return ""
	}
	d := *distanceKm
	if d == 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return ""
	}
	if d < 1 {
		// Half-up rounding to whole meters
		return strconv.FormatFloat(math.Floor(d*1000+0.5), 'f', 0, 64) + "m"
	}
	return formatTenths(d) + "km"
}

// formatTenths prints d with one decimal, rounding the exact binary value to
// the nearest tenth and ties upward. strconv alone rounds ties to even.
func formatTenths(d float64) string {
	exact := strconv.FormatFloat(d, 'f', 64, 64)
	if dot := strings.IndexByte(exact, '.'); dot >= 0 {
		rest := exact[dot+2:]
		if rest[0] == '5' && strings.TrimRight(rest[1:], "0") == "" {
			return strconv.FormatFloat((math.Floor(d*10)+1)/10, 'f', 1, 64)
		}
	}
	return strconv.FormatFloat(d, 'f', 1, 64)
}

// StarRating is the number of full, half and empty stars for a rating.
type StarRating struct {
	Full  int `json:"full"`
	Half  int `json:"half"`
	Empty int `json:"empty"`
}

// MaxStars is the length of the star row.
const MaxStars = 5

// Stars converts a 0-5 rating to a star row. Ratings are rounded to the nearest
// half star; missing or out-of-range ratings are clamped.
func Stars(rating float64) StarRating {
	r := validation.ClampRating(rating, MaxStars)
	halves := int(math.Floor(r*2 + 0.5))

	full := halves / 2
	half := halves % 2
	return StarRating{
		Full:  full,
		Half:  half,
		Empty: MaxStars - full - half,
	}
}
