package server

import (
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/nearme-discovery/internal/aggregate"
	"github.com/yourorg/nearme-discovery/internal/analytics"
	"github.com/yourorg/nearme-discovery/internal/circuitbreaker"
	"github.com/yourorg/nearme-discovery/internal/discovery"
	"github.com/yourorg/nearme-discovery/internal/model"
	"github.com/yourorg/nearme-discovery/internal/types"
)

// APIError is the error envelope returned by every endpoint
type APIError struct {
	StatusCode int    `json:"statusCode"`
	Status     string `json:"status"`
	Error      string `json:"error"`
	RequestID  string `json:"requestId,omitempty"`
}

// MerchantView is a ranked merchant prepared for display.
type MerchantView struct {
	model.Merchant

	// Distance in km, omitted when unknown
	Distance      *float64             `json:"distance,omitempty"`
	DistanceLabel string               `json:"distanceLabel"`
	Icon          string               `json:"icon"`
	Stars         discovery.StarRating `json:"stars"`
}

// MerchantsResponse is the body of GET /v1/merchants.
type MerchantsResponse struct {
	RequestID  string           `json:"requestId"`
	Categories []types.Category `json:"categories"`
	Merchants  []MerchantView   `json:"merchants"`
	Count      int              `json:"count"`
	Total      int              `json:"total"`
	Rejected   int              `json:"rejected"`
	Fallback   bool             `json:"fallback,omitempty"`
}

// CategoryView is one category chip.
type CategoryView struct {
	Category types.Category `json:"category"`
	Icon     string         `json:"icon"`
}

// CategoriesResponse is the body of GET /v1/categories.
type CategoriesResponse struct {
	RequestID  string         `json:"requestId"`
	Categories []CategoryView `json:"categories"`
}

// SummaryResponse is the body of GET /v1/summary.
type SummaryResponse struct {
	RequestID string `json:"requestId"`
	aggregate.Summary
}

func newMerchantView(r model.RankedMerchant) MerchantView {
	v := MerchantView{
		Merchant:      r.Merchant,
		DistanceLabel: discovery.FormatDistance(r.Distance),
		Icon:          r.Category.Icon(),
		Stars:         discovery.Stars(r.Rating),
	}
	// Unlocatable merchants carry NaN, which JSON cannot encode
	if r.Distance != nil && !math.IsNaN(*r.Distance) {
		d := *r.Distance
		v.Distance = &d
	}
	return v
}

// discover runs one search. It writes the error response itself and reports
// whether the caller should continue.
func (s *Server) discover(w http.ResponseWriter, r *http.Request) (discovery.Result, searchRequest, feed, bool) {
	req, err := parseSearch(r.URL.Query())
	if err != nil {
		s.errorResponse(w, r, http.StatusBadRequest, err.Error())
		return discovery.Result{}, req, feed{}, false
	}

	ctx, cancel := contextWithTimeout(r, s.config.RequestTimeout)
	defer cancel()

	f, err := s.loadMerchants(ctx)
	if err != nil {
		s.feedError(w, r, err)
		return discovery.Result{}, req, feed{}, false
	}

	category, ok := resolveChip(req.query.Category, discovery.DeriveCategories(f.merchants))
	if !ok {
		s.errorResponse(w, r, http.StatusBadRequest, "Unknown category: "+req.query.Category.String())
		return discovery.Result{}, req, feed{}, false
	}
	req.query.Category = category

	// f.merchants are already sanitised; keep the rejections of the raw fetch
	result := discovery.Discover(f.merchants, req.query)
	result.Rejected = f.rejected

	return result, req, f, true
}

// handleMerchants serves the ranked, filtered merchant list
func (s *Server) handleMerchants(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	result, req, f, ok := s.discover(w, r)
	if !ok {
		return
	}

	total := len(result.Merchants)
	shown := result.Merchants
	if len(shown) > req.limit {
		shown = shown[:req.limit]
	}

	views := make([]MerchantView, 0, len(shown))
	for _, m := range shown {
		views = append(views, newMerchantView(m))
	}

	response := MerchantsResponse{
		RequestID:  RequestIDFrom(r.Context()),
		Categories: result.Categories,
		Merchants:  views,
		Count:      len(views),
		Total:      total,
		Rejected:   len(result.Rejected),
		Fallback:   f.fallback,
	}

	if s.metrics != nil {
		s.metrics.results.Observe(float64(total))
	}
	s.recordSearch(r, req, response, time.Since(start))

	s.writeSigned(w, r, response)
}

// handleCategories serves the category chips derived from the current feed
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r, s.config.RequestTimeout)
	defer cancel()

	f, err := s.loadMerchants(ctx)
	if err != nil {
		s.feedError(w, r, err)
		return
	}

	chips := discovery.DeriveCategories(f.merchants)
	views := make([]CategoryView, 0, len(chips))
	for _, c := range chips {
		views = append(views, CategoryView{Category: c, Icon: c.Icon()})
	}

	s.writeSigned(w, r, CategoriesResponse{
		RequestID:  RequestIDFrom(r.Context()),
		Categories: views,
	})
}

// handleSummary serves statistics over the full (unlimited) search result
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	result, _, _, ok := s.discover(w, r)
	if !ok {
		return
	}

	s.writeSigned(w, r, SummaryResponse{
		RequestID: RequestIDFrom(r.Context()),
		Summary:   aggregate.Summarize(result.Merchants),
	})
}

// handleHealth is a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"version":   Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleMetrics exposes Prometheus metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		s.errorResponse(w, r, http.StatusServiceUnavailable, "Metrics disabled")
		return
	}
	s.metrics.handler().ServeHTTP(w, r)
}

// handleStatus provides detailed service status information
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":  "operational",
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
		"version": Version,
		"source":  s.source.Name(),
		"configuration": map[string]interface{}{
			"circuit_breaker": s.config.EnableCircuitBreaker,
			"metrics":         s.config.EnableMetrics,
			"signing":         s.signer != nil,
			"rate_limit_rps":  s.config.RateLimitRPS,
			"cache_ttl":       s.config.CacheTTL.String(),
		},
	}

	if s.breaker != nil {
		status["circuit_state"] = s.breaker.GetState()
	}
	if s.signer != nil {
		status["public_key"] = s.signer.PublicKey()
	}
	if exporter, ok := s.events.(*analytics.Exporter); ok {
		status["analytics"] = exporter.Status()
	}

	writeJSON(w, http.StatusOK, status)
}

// handleCircuit allows viewing and controlling the circuit breaker
func (s *Server) handleCircuit(w http.ResponseWriter, r *http.Request) {
	if s.breaker == nil {
		s.errorResponse(w, r, http.StatusServiceUnavailable, "Circuit breaker not enabled")
		return
	}

	response := map[string]interface{}{}

	// Allow reset operation via POST
	if r.Method == http.MethodPost {
		switch action := r.URL.Query().Get("action"); action {
		case "reset":
			s.breaker.Reset()
			s.resetCheck()
			s.metrics.setBreakerState(s.breaker.GetState())
			response["message"] = "Circuit breaker reset"
		default:
			s.errorResponse(w, r, http.StatusBadRequest, "Unknown action: "+action)
			return
		}
	}

	response["state"] = s.breaker.GetState()
	if at, reason := s.breaker.LastTrip(); !at.IsZero() {
		response["last_trip"] = at.UTC().Format(time.RFC3339)
		response["last_trip_reason"] = reason
	}
	if lastGood := s.breaker.LastGoodMerchants(); lastGood != nil {
		response["last_good_merchants_count"] = len(lastGood)
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) recordSearch(r *http.Request, req searchRequest, resp MerchantsResponse, took time.Duration) {
	if s.events == nil {
		return
	}
	s.events.Record(analytics.SearchEvent{
		RequestID:   resp.RequestID,
		Timestamp:   time.Now().UTC(),
		SearchText:  req.query.SearchText,
		Category:    req.query.Category.String(),
		Token:       req.query.Token,
		HasLocation: req.query.UserLocation != nil,
		RadiusKm:    req.query.MaxDistanceKm,
		Results:     resp.Total,
		Rejected:    resp.Rejected,
		DurationMs:  float64(took.Microseconds()) / 1000,
		Fallback:    resp.Fallback,
	})
}

func (s *Server) feedError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway
	if s.breaker != nil && s.breaker.GetState() == circuitbreaker.StateOpen {
		status = http.StatusServiceUnavailable
	}
	s.errorResponse(w, r, status, err.Error())
}

// writeSigned writes payload, wrapped in a signed envelope when signing is on
func (s *Server) writeSigned(w http.ResponseWriter, r *http.Request, payload interface{}) {
	if s.signer == nil {
		writeJSON(w, http.StatusOK, payload)
		return
	}
	envelope, err := s.signer.Sign(payload)
	if err != nil {
		logrus.Errorf("Failed to sign response: %v", err)
		s.errorResponse(w, r, http.StatusInternalServerError, "Failed to sign response")
		return
	}
	writeJSON(w, http.StatusOK, envelope)
}

// errorResponse returns a formatted error response
func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, statusCode int, errorMsg string) {
	logrus.WithFields(logrus.Fields{
		"request_id": RequestIDFrom(r.Context()),
		"status":     statusCode,
	}).Warn(errorMsg)

	writeJSON(w, statusCode, APIError{
		StatusCode: statusCode,
		Status:     "error",
		Error:      errorMsg,
		RequestID:  RequestIDFrom(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
	}
}
