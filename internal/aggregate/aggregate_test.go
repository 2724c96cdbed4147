package aggregate

import (
	"testing"

	"github.com/yourorg/nearme-discovery/internal/model"
	"github.com/yourorg/nearme-discovery/internal/types"
)

func dist(v float64) *float64 { return &v }

func TestSummarize(t *testing.T) {
	ranked := []model.RankedMerchant{
		{Merchant: model.Merchant{ID: "a", Category: "Cafe", Rating: 4.0, AcceptedTokens: []string{"SOL", "USDC"}}, Distance: dist(0.35)},
		{Merchant: model.Merchant{ID: "b", Category: "Bar", Rating: 3.0, AcceptedTokens: []string{"usdc", "USDC"}}, Distance: dist(1.2)},
		{Merchant: model.Merchant{ID: "c", Category: "Cafe", Rating: 5.0, AcceptedTokens: []string{"BONK"}}, Distance: dist(2.5)},
		{Merchant: model.Merchant{ID: "d", Category: "Retail"}, Distance: dist(3.0)},
	}

	got := Summarize(ranked)

	if got.Count != 4 {
		t.Errorf("Count got = %v, want 4", got.Count)
	}

	wantCategories := []CategoryCount{{Category: "Cafe", Count: 2}, {Category: "Bar", Count: 1}, {Category: types.CategoryRetail, Count: 1}}
	if len(got.Categories) != len(wantCategories) {
		t.Fatalf("Categories got = %v, want %v", got.Categories, wantCategories)
	}
	for i := range wantCategories {
		if got.Categories[i] != wantCategories[i] {
			t.Errorf("Categories[%d] got = %v, want %v", i, got.Categories[i], wantCategories[i])
		}
	}

	wantTokens := []TokenCount{{Symbol: "USDC", Count: 2}, {Symbol: "BONK", Count: 1}, {Symbol: "SOL", Count: 1}}
	if len(got.Tokens) != len(wantTokens) {
		t.Fatalf("Tokens got = %v, want %v", got.Tokens, wantTokens)
	}
	for i := range wantTokens {
		if got.Tokens[i] != wantTokens[i] {
			t.Errorf("Tokens[%d] got = %v, want %v", i, got.Tokens[i], wantTokens[i])
		}
	}

	if got.AverageRating != 3.0 {
		t.Errorf("AverageRating got = %v, want 3", got.AverageRating)
	}
	if got.MedianRating != 3.5 {
		t.Errorf("MedianRating got = %v, want 3.5", got.MedianRating)
	}
	if got.NearestKm == nil || *got.NearestKm != 0.35 {
		t.Errorf("NearestKm got = %v, want 0.35", got.NearestKm)
	}
	if got.NearestLabel != "350m" {
		t.Errorf("NearestLabel got = %q, want 350m", got.NearestLabel)
	}
}

func TestSummarize_Empty(t *testing.T) {
	got := Summarize(nil)
	if got.Count != 0 || len(got.Categories) != 0 || len(got.Tokens) != 0 {
		t.Errorf("unexpected summary for empty input: %+v", got)
	}
	if got.NearestKm != nil {
		t.Errorf("NearestKm got = %v, want nil", *got.NearestKm)
	}
}

func TestSummarize_NoDistances(t *testing.T) {
	got := Summarize([]model.RankedMerchant{{Merchant: model.Merchant{ID: "a", Category: "Cafe", Rating: 2}}})
	if got.NearestKm != nil || got.NearestLabel != "" {
		t.Errorf("expected no nearest distance, got %v %q", got.NearestKm, got.NearestLabel)
	}
	if got.MedianRating != 2 {
		t.Errorf("MedianRating got = %v, want 2", got.MedianRating)
	}
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name    string
		ratings []float64
		want    float64
	}{
		{name: "empty", ratings: nil, want: 0},
		{name: "odd", ratings: []float64{5, 1, 3}, want: 3},
		{name: "even", ratings: []float64{4, 1, 2, 5}, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ranked []model.RankedMerchant
			for _, r := range tt.ratings {
				ranked = append(ranked, model.RankedMerchant{Merchant: model.Merchant{Rating: r}})
			}
			got := Median(ranked, func(r model.RankedMerchant) float64 { return r.Rating })
			if got != tt.want {
				t.Errorf("Median got = %v, want %v", got, tt.want)
			}
		})
	}
}
