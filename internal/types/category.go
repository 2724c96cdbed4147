// Package types contains shared type definitions used across multiple packages
package types

import "strings"

// Category is a merchant category label. The set of labels in merchant data is
// open, but the labels the app knows how to style are enumerated below.
type Category string

// CategoryAll is the catch-all chip. It is never a merchant category.
const CategoryAll Category = "All"

// Known merchant categories
const (
	CategoryCafe          Category = "Cafe"
	CategoryRestaurant    Category = "Restaurant"
	CategoryBar           Category = "Bar"
	CategoryRetail        Category = "Retail"
	CategoryGrocery       Category = "Grocery"
	CategoryServices      Category = "Services"
	CategoryEntertainment Category = "Entertainment"
	CategoryHotel         Category = "Hotel"
)

// KnownCategories lists every known category in display order.
var KnownCategories = []Category{
	CategoryCafe,
	CategoryRestaurant,
	CategoryBar,
	CategoryRetail,
	CategoryGrocery,
	CategoryServices,
	CategoryEntertainment,
	CategoryHotel,
}

// ParseCategory normalises a label. Known categories and "All" are matched
// case-insensitively and returned in canonical form; any other non-empty label
// is returned trimmed with known=false.
func ParseCategory(raw string) (c Category, known bool) {
	label := strings.TrimSpace(raw)
	if strings.EqualFold(label, string(CategoryAll)) {
		return CategoryAll, true
	}
	for _, k := range KnownCategories {
		if strings.EqualFold(label, string(k)) {
			return k, true
		}
	}
	return Category(label), false
}

// IsAll reports whether c is the catch-all sentinel.
func (c Category) IsAll() bool {
	return c == CategoryAll
}

// IsKnown reports whether c is one of the enumerated categories.
func (c Category) IsKnown() bool {
	switch c {
	case CategoryCafe, CategoryRestaurant, CategoryBar, CategoryRetail,
		CategoryGrocery, CategoryServices, CategoryEntertainment, CategoryHotel:
		return true
	default:
		return false
	}
}

// Icon returns the map pin icon name used by the presentation layer.
func (c Category) Icon() string {
	switch c {
	case CategoryAll:
		return "apps"
	case CategoryCafe:
		return "coffee"
	case CategoryRestaurant:
		return "restaurant"
	case CategoryBar:
		return "local_bar"
	case CategoryRetail:
		return "storefront"
	case CategoryGrocery:
		return "local_grocery_store"
	case CategoryServices:
		return "build"
	case CategoryEntertainment:
		return "theaters"
	case CategoryHotel:
		return "hotel"
	default:
		return "place"
	}
}

func (c Category) String() string {
	return string(c)
}
