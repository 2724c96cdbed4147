package validation

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/nearme-discovery/internal/model"
	"github.com/yourorg/nearme-discovery/internal/types"
)

func loc(lat, lon float64) *model.Location {
	return &model.Location{Latitude: lat, Longitude: lon}
}

func TestFilterInvalid_BasicCriteria(t *testing.T) {
	tests := []struct {
		name      string
		merchants []model.Merchant
		want      int // expected count of valid merchants
	}{
		{
			name: "all valid merchants",
			merchants: []model.Merchant{
				{ID: "a", Name: "Bean", Category: "Cafe", Location: loc(52.5, 13.4)},
				{ID: "b", Name: "Hop", Category: "Bar", Location: loc(52.6, 13.3)},
				{ID: "c", Name: "Thrift", Category: "Vintage", Location: loc(0, 0)},
			},
			want: 3,
		},
		{
			name: "some invalid merchants",
			merchants: []model.Merchant{
				{ID: "a", Name: "Bean", Category: "Cafe", Location: loc(52.5, 13.4)},
				{ID: "", Name: "NoID", Category: "Cafe", Location: loc(52.5, 13.4)},        // missing id
				{ID: "c", Name: "NoCat", Category: "  ", Location: loc(52.5, 13.4)},        // blank category
				{ID: "d", Name: "NoLoc", Category: "Bar"},                                  // missing coordinates
				{ID: "e", Name: "Far", Category: "Bar", Location: loc(91, 0)},              // latitude out of range
				{ID: "f", Name: "NaN", Category: "Bar", Location: loc(math.NaN(), 0)},      // non-finite
				{ID: "g", Name: "Reserved", Category: "all", Location: loc(52.5, 13.4)},    // sentinel label
				{ID: "a", Name: "Bean copy", Category: "Cafe", Location: loc(52.5, 13.4)},  // duplicate id
			},
			want: 1,
		},
		{
			name:      "empty input",
			merchants: []model.Merchant{},
			want:      0,
		},
		{
			name:      "nil input",
			merchants: nil,
			want:      0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, rejected := FilterInvalid(tt.merchants)
			assert.Len(t, valid, tt.want)
			assert.Len(t, rejected, len(tt.merchants)-tt.want)
		})
	}
}

func TestFilterInvalid_KeepsFirstDuplicateAndOrder(t *testing.T) {
	merchants := []model.Merchant{
		{ID: "x", Name: "First", Category: "Cafe", Location: loc(1, 1)},
		{ID: "y", Name: "Second", Category: "Bar", Location: loc(2, 2)},
		{ID: "x", Name: "Third", Category: "Cafe", Location: loc(3, 3)},
		{ID: "z", Name: "Fourth", Category: "Retail", Location: loc(4, 4)},
	}

	valid, rejected := FilterInvalid(merchants)
	require.Len(t, valid, 3)
	assert.Equal(t, "First", valid[0].Name)
	assert.Equal(t, "Second", valid[1].Name)
	assert.Equal(t, "Fourth", valid[2].Name)

	require.Len(t, rejected, 1)
	assert.Equal(t, 2, rejected[0].Index)
	assert.Contains(t, rejected[0].Reason, "duplicate id")
}

func TestFilterInvalid_NormalisesKnownCategoriesAndRating(t *testing.T) {
	merchants := []model.Merchant{
		{ID: "a", Category: "cafe", Rating: 7, Location: loc(1, 1)},
		{ID: "b", Category: "Vinyl", Rating: -1, Location: loc(1, 1)},
		{ID: "c", Category: "BAR", Rating: math.NaN(), Location: loc(1, 1)},
	}

	valid, rejected := FilterInvalid(merchants)
	require.Empty(t, rejected)
	require.Len(t, valid, 3)

	assert.Equal(t, types.CategoryCafe, valid[0].Category)
	assert.Equal(t, 5.0, valid[0].Rating)
	assert.Equal(t, types.Category("Vinyl"), valid[1].Category)
	assert.Equal(t, 0.0, valid[1].Rating)
	assert.Equal(t, types.CategoryBar, valid[2].Category)
	assert.Equal(t, 0.0, valid[2].Rating)

	// The caller's records are left untouched
	assert.Equal(t, types.Category("cafe"), merchants[0].Category)
}

func TestFilterInvalidWithOptions_LocationOptional(t *testing.T) {
	opts := DefaultValidationOptions()
	opts.RequireLocation = false

	valid, rejected := FilterInvalidWithOptions([]model.Merchant{
		{ID: "a", Category: "Cafe"},
	}, opts)
	assert.Len(t, valid, 1)
	assert.Empty(t, rejected)
}

func TestRecordError_IsContractViolation(t *testing.T) {
	err := ValidateMerchant(model.Merchant{ID: "a", Category: "Cafe"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrContractViolation))
	assert.Contains(t, err.Error(), "missing coordinates")

	assert.NoError(t, ValidateMerchant(model.Merchant{ID: "a", Category: "Cafe", Location: loc(0, 0)}))
}

func TestFilterInvalidConcurrently(t *testing.T) {
	// Generate a large dataset with interleaved bad records
	var merchants []model.Merchant
	for i := 0; i < 2500; i++ {
		m := model.Merchant{
			ID:       fmt.Sprintf("m%04d", i),
			Name:     fmt.Sprintf("Merchant %d", i),
			Category: "Cafe",
			Location: loc(float64(i%90), float64(i%180)),
		}
		switch i % 50 {
		case 7:
			m.Location = nil
		case 13:
			m.ID = ""
		case 21:
			m.ID = "m0000" // duplicate of the first record
		}
		merchants = append(merchants, m)
	}

	opts := DefaultValidationOptions()
	seqValid, seqRejected := FilterInvalidWithOptions(merchants, opts)
	parValid, parRejected := FilterInvalidConcurrently(merchants, opts)

	assert.Equal(t, seqValid, parValid)
	assert.Equal(t, seqRejected, parRejected)
	assert.Len(t, parValid, 2500-3*50)
}

func TestClampRating(t *testing.T) {
	assert.Equal(t, 0.0, ClampRating(-0.1, 5))
	assert.Equal(t, 3.5, ClampRating(3.5, 5))
	assert.Equal(t, 5.0, ClampRating(5.1, 5))
	assert.Equal(t, 0.0, ClampRating(math.NaN(), 5))
}
