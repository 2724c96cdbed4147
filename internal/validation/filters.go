// Package validation provides boundary checks for merchant records coming from
// the merchant store. Malformed records are rejected one by one so that a single
// bad document never blanks the whole list.
package validation

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/yourorg/nearme-discovery/internal/model"
	"github.com/yourorg/nearme-discovery/internal/types"
)

// ErrContractViolation marks a merchant record that lacks required identity,
// category or coordinates.
var ErrContractViolation = errors.New("contract violation")

// RecordError describes one rejected merchant record.
type RecordError struct {
	// Index is the position of the record in the input list
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

func (e RecordError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("merchant #%d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("merchant #%d (%s): %s", e.Index, e.ID, e.Reason)
}

// Unwrap lets callers match rejected records with errors.Is.
func (e RecordError) Unwrap() error {
	return ErrContractViolation
}

// ValidationOptions holds configuration for the validation process
type ValidationOptions struct {
	// RequireLocation rejects records without usable coordinates
	RequireLocation bool

	// ClampRating forces ratings into [0, MaxRating] instead of keeping raw values
	ClampRating bool

	// MaxRating is the top of the star scale
	MaxRating float64

	// ConcurrencyThreshold is the list size above which records are checked in parallel
	ConcurrencyThreshold int

	// Workers is the number of goroutines used for parallel checks
	Workers int
}

// DefaultValidationOptions returns sensible defaults for validation
func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{
		RequireLocation:      true,
		ClampRating:          true,
		MaxRating:            5.0,
		ConcurrencyThreshold: 1000,
		Workers:              4,
	}
}

// FilterInvalid removes merchants that fail basic validation criteria.
// This is the main entrypoint for the validation package.
func FilterInvalid(merchants []model.Merchant) ([]model.Merchant, []RecordError) {
	return FilterInvalidWithOptions(merchants, DefaultValidationOptions())
}

// FilterInvalidWithOptions removes merchants with custom validation options.
// Valid records keep their input order; the first record wins on duplicate ids.
func FilterInvalidWithOptions(merchants []model.Merchant, opts ValidationOptions) ([]model.Merchant, []RecordError) {
	checked := make([]checkResult, len(merchants))
	for i, m := range merchants {
		checked[i] = checkMerchant(i, m, opts)
	}
	return collect(merchants, checked)
}

// FilterInvalidConcurrently performs validation in parallel for large datasets.
// The result is identical to FilterInvalidWithOptions.
func FilterInvalidConcurrently(merchants []model.Merchant, opts ValidationOptions) ([]model.Merchant, []RecordError) {
	if len(merchants) < opts.ConcurrencyThreshold || opts.Workers < 2 {
		// For small datasets, parallel processing overhead isn't worth it
		return FilterInvalidWithOptions(merchants, opts)
	}

	checked := make([]checkResult, len(merchants))
	chunkSize := (len(merchants) + opts.Workers - 1) / opts.Workers
	var wg sync.WaitGroup

	for start := 0; start < len(merchants); start += chunkSize {
		end := start + chunkSize
		if end > len(merchants) {
			end = len(merchants)
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			// Each worker owns a disjoint slice of results
			for i := start; i < end; i++ {
				checked[i] = checkMerchant(i, merchants[i], opts)
			}
		}(start, end)
	}
	wg.Wait()

	return collect(merchants, checked)
}

// ValidateMerchant checks a single record against the default options.
func ValidateMerchant(m model.Merchant) error {
	res := checkMerchant(0, m, DefaultValidationOptions())
	if res.err != nil {
		return *res.err
	}
	return nil
}

type checkResult struct {
	merchant model.Merchant
	err      *RecordError
}

// checkMerchant applies the per-record rules. Duplicate ids are handled by collect.
func checkMerchant(index int, m model.Merchant, opts ValidationOptions) checkResult {
	reject := func(reason string) checkResult {
		return checkResult{err: &RecordError{Index: index, ID: m.ID, Reason: reason}}
	}

	if strings.TrimSpace(m.ID) == "" {
		return reject("missing id")
	}

	category, known := types.ParseCategory(string(m.Category))
	if category == "" {
		return reject("missing category")
	}
	if category.IsAll() {
		return reject(fmt.Sprintf("category %q is reserved", types.CategoryAll))
	}
	if known {
		m.Category = category
	}

	if opts.RequireLocation {
		if m.Location == nil {
			return reject("missing coordinates")
		}
		if !m.Location.Valid() {
			return reject(fmt.Sprintf("invalid coordinates (%v, %v)", m.Location.Latitude, m.Location.Longitude))
		}
	}

	if opts.ClampRating {
		m.Rating = ClampRating(m.Rating, opts.MaxRating)
	}

	return checkResult{merchant: m}
}

// collect merges per-record results in input order and drops duplicate ids.
func collect(merchants []model.Merchant, checked []checkResult) ([]model.Merchant, []RecordError) {
	valid := make([]model.Merchant, 0, len(merchants))
	var rejected []RecordError
	seen := make(map[string]int, len(merchants))

	for i, res := range checked {
		if res.err != nil {
			rejected = append(rejected, *res.err)
			logRejected(*res.err)
			continue
		}
		if first, dup := seen[res.merchant.ID]; dup {
			re := RecordError{Index: i, ID: res.merchant.ID, Reason: fmt.Sprintf("duplicate id (first seen at #%d)", first)}
			rejected = append(rejected, re)
			logRejected(re)
			continue
		}
		seen[res.merchant.ID] = i
		valid = append(valid, res.merchant)
	}

	if len(rejected) > 0 {
		logrus.WithFields(logrus.Fields{
			"total":    len(merchants),
			"rejected": len(rejected),
		}).Info("Rejected malformed merchant records")
	}

	return valid, rejected
}

func logRejected(re RecordError) {
	logrus.WithFields(logrus.Fields{
		"index":  re.Index,
		"id":     re.ID,
		"reason": re.Reason,
	}).Debug("Filtered invalid merchant")
}

// ClampRating maps a raw rating onto [0, max]. NaN reads as 0.
func ClampRating(rating, max float64) float64 {
	switch {
	case math.IsNaN(rating), rating < 0:
		return 0
	case rating > max:
		return max
	default:
		return rating
	}
}
