package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		raw       string
		want      Category
		wantKnown bool
	}{
		{"Cafe", CategoryCafe, true},
		{"  cafe ", CategoryCafe, true},
		{"HOTEL", CategoryHotel, true},
		{"all", CategoryAll, true},
		{"Bakery", "Bakery", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, known := ParseCategory(tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
		assert.Equal(t, tt.wantKnown, known, tt.raw)
	}
}

func TestCategoryPredicates(t *testing.T) {
	assert.True(t, CategoryAll.IsAll())
	assert.False(t, CategoryAll.IsKnown(), "All is a chip, not a merchant category")

	for _, c := range KnownCategories {
		assert.True(t, c.IsKnown(), c)
		assert.NotEqual(t, "place", c.Icon(), "Every known category has its own icon")
	}
	assert.False(t, Category("Bakery").IsKnown())
	assert.Equal(t, "place", Category("Bakery").Icon())
}
