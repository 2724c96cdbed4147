// Package circuitbreaker protects the discovery API against a broken merchant
// feed. When a fetch suddenly shrinks, comes back nearly empty or is dominated by
// malformed records, the breaker trips and the last good merchant list is served
// instead.
package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/nearme-discovery/internal/model"
)

// State represents the current state of the circuit breaker
type State int

// Circuit breaker states
const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Tripped, feed updates rejected
	StateHalfOpen              // Testing if the feed has recovered
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON responses.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrOpen is returned by Check while the breaker is open.
var ErrOpen = errors.New("circuit breaker open: merchant feed protection engaged")

// CircuitBreaker implements the circuit breaker pattern for the merchant feed.
type CircuitBreaker struct {
	// Configuration thresholds for triggering the circuit breaker
	thresholds Thresholds

	// Current state of the circuit breaker (Closed, Open, HalfOpen)
	state State

	// Timestamp of the last circuit trip
	lastTrip   time.Time
	lastReason string

	// Duration before auto-reset attempt
	resetDelay time.Duration

	mu sync.RWMutex

	// Last merchant list that passed every check, served as fallback
	lastGood []model.Merchant

	// Bounded history of accepted list sizes
	countHistory []int

	// Count of consecutive successful checks in HalfOpen state
	successCount int

	// Number of successful checks required to close circuit
	successThreshold int

	// Event callback for monitoring/alerting
	onTripCallback func(reason string)

	now func() time.Time
}

// Thresholds defines the limits that will trigger the circuit breaker
type Thresholds struct {
	// Minimum number of valid merchants a fetch must return
	MinMerchants int `json:"min_merchants"`

	// Maximum allowed shrink relative to the last good list (e.g., 0.5 for 50%)
	MaxCountChange float64 `json:"max_count_change"`

	// Maximum share of records rejected by validation (e.g., 0.3 for 30%), 0 disables
	MaxRejectedRatio float64 `json:"max_rejected_ratio,omitempty"`
}

// New creates a new CircuitBreaker with the provided thresholds
func New(t Thresholds) *CircuitBreaker {
	return &CircuitBreaker{
		thresholds:       t,
		state:            StateClosed,
		resetDelay:       5 * time.Minute,
		successThreshold: 3,
		now:              time.Now,
	}
}

// WithResetDelay sets a custom reset delay and returns the circuit breaker
func (cb *CircuitBreaker) WithResetDelay(delay time.Duration) *CircuitBreaker {
	cb.resetDelay = delay
	return cb
}

// WithSuccessThreshold sets the number of successful checks needed to close the circuit
func (cb *CircuitBreaker) WithSuccessThreshold(threshold int) *CircuitBreaker {
	cb.successThreshold = threshold
	return cb
}

// WithTripCallback sets a callback function that is called when the circuit trips
func (cb *CircuitBreaker) WithTripCallback(callback func(reason string)) *CircuitBreaker {
	cb.onTripCallback = callback
	return cb
}

// Check evaluates a freshly validated merchant list. rejected is the number of
// records validation dropped from the same fetch.
// While open it returns ErrOpen until the reset delay has passed; failed checks
// trip the circuit and return the reason. Passing lists become the new fallback.
func (cb *CircuitBreaker) Check(merchants []model.Merchant, rejected int) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastTrip) <= cb.resetDelay {
			return ErrOpen
		}
		cb.state = StateHalfOpen
		cb.successCount = 0
		logrus.Info("Circuit breaker half-open: testing merchant feed recovery")
	}

	if reason := cb.violation(merchants, rejected); reason != "" {
		cb.trip(reason)
		return errors.New(reason)
	}

	logrus.Debug("Circuit breaker checks passed")
	cb.record(merchants)

	if cb.state == StateHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = StateClosed
			cb.successCount = 0
			logrus.Info("Circuit breaker closed: merchant feed has recovered")
		}
	}

	return nil
}

// violation returns the first threshold the list breaks, or "".
func (cb *CircuitBreaker) violation(merchants []model.Merchant, rejected int) string {
	count := len(merchants)

	if count == 0 {
		return "no merchants provided to circuit breaker"
	}

	if count < cb.thresholds.MinMerchants {
		return fmt.Sprintf("insufficient merchant count: got %d, need %d", count, cb.thresholds.MinMerchants)
	}

	if cb.thresholds.MaxRejectedRatio > 0 && rejected > 0 {
		ratio := float64(rejected) / float64(count+rejected)
		if ratio > cb.thresholds.MaxRejectedRatio {
			return fmt.Sprintf("too many malformed merchant records: %.2f%% (threshold: %.2f%%)",
				ratio*100, cb.thresholds.MaxRejectedRatio*100)
		}
	}

	// Only shrinking is suspicious; new merchants are onboarded all the time
	if n := len(cb.countHistory); n > 0 && cb.thresholds.MaxCountChange > 0 {
		last := cb.countHistory[n-1]
		if count < last {
			drop := float64(last-count) / float64(last)
			if drop > cb.thresholds.MaxCountChange {
				return fmt.Sprintf("merchant count dropped too drastically: %.2f%% (threshold: %.2f%%)",
					drop*100, cb.thresholds.MaxCountChange*100)
			}
		}
	}

	return ""
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// LastTrip returns when and why the breaker last tripped.
func (cb *CircuitBreaker) LastTrip() (time.Time, string) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.lastTrip, cb.lastReason
}

// Reset forcibly resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.successCount = 0
	logrus.Info("Circuit breaker manually reset to closed state")
}

// LastGoodMerchants returns a copy of the most recent list that passed the checks
func (cb *CircuitBreaker) LastGoodMerchants() []model.Merchant {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	if cb.lastGood == nil {
		return nil
	}

	lastGood := make([]model.Merchant, len(cb.lastGood))
	copy(lastGood, cb.lastGood)
	return lastGood
}

// trip sets the circuit breaker to open state with the current time
func (cb *CircuitBreaker) trip(reason string) {
	cb.state = StateOpen
	cb.lastTrip = cb.now()
	cb.lastReason = reason
	cb.successCount = 0
	logrus.Warnf("Circuit breaker tripped: %s", reason)

	if cb.onTripCallback != nil {
		go cb.onTripCallback(reason)
	}
}

// record stores the accepted list, keeping the count history bounded
func (cb *CircuitBreaker) record(merchants []model.Merchant) {
	cb.lastGood = make([]model.Merchant, len(merchants))
	copy(cb.lastGood, merchants)

	cb.countHistory = append(cb.countHistory, len(merchants))

	const maxHistorySize = 100
	if len(cb.countHistory) > maxHistorySize {
		cb.countHistory = cb.countHistory[len(cb.countHistory)-maxHistorySize:]
	}
}
