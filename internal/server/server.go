// Package server exposes the discovery engine over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/nearme-discovery/internal/analytics"
	"github.com/yourorg/nearme-discovery/internal/circuitbreaker"
	"github.com/yourorg/nearme-discovery/internal/config"
	"github.com/yourorg/nearme-discovery/internal/discovery"
	"github.com/yourorg/nearme-discovery/internal/fetch"
	"github.com/yourorg/nearme-discovery/internal/model"
	"github.com/yourorg/nearme-discovery/internal/otel"
	"github.com/yourorg/nearme-discovery/internal/security"
)

// Version is reported by /health and /status.
const Version = "1.0.0"

// EventRecorder receives one analytics event per search.
type EventRecorder interface {
	Record(event analytics.SearchEvent)
}

// Server represents the discovery API server instance
type Server struct {
	// Configuration for the server
	config config.Config

	// Merchant feed
	source fetch.Source

	// HTTP server instance
	server *http.Server

	// Circuit breaker guarding the feed, nil when disabled
	breaker *circuitbreaker.CircuitBreaker

	// Breaker verdict for the last checked list generation
	checkMu  sync.Mutex
	checked  uint64
	checkErr error

	// Metrics registry, nil when disabled
	metrics *serverMetrics

	limiter *rateLimiter
	signer  *security.Signer
	events  EventRecorder

	// stop is called on shutdown, e.g. to flush the analytics exporter
	stop []func(context.Context)

	startTime time.Time
}

// Option customises a Server.
type Option func(*Server)

// WithEventRecorder sends search events to r instead of the configured webhook.
func WithEventRecorder(r EventRecorder) Option {
	return func(s *Server) { s.events = r }
}

// WithSigner replaces the signer built from the configuration.
func WithSigner(signer *security.Signer) Option {
	return func(s *Server) { s.signer = signer }
}

// New creates a server reading merchants from source.
func New(cfg config.Config, source fetch.Source, opts ...Option) (*Server, error) {
	if source == nil {
		return nil, errors.New("no merchant source configured")
	}

	s := &Server{
		config:    cfg,
		source:    source,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.EnableMetrics {
		s.metrics = registerMetrics()
	}

	if cfg.EnableCircuitBreaker {
		s.breaker = circuitbreaker.New(circuitbreaker.Thresholds{
			MinMerchants:     cfg.MinMerchants,
			MaxCountChange:   cfg.MaxCountChange,
			MaxRejectedRatio: cfg.MaxRejectedRatio,
		}).WithResetDelay(cfg.CircuitResetDelay).
			WithTripCallback(func(reason string) {
				if s.metrics != nil {
					s.metrics.circuitTrips.Inc()
				}
				logrus.WithField("reason", reason).Error("Merchant feed circuit breaker tripped")
			})
	}

	if cfg.RateLimitRPS > 0 {
		s.limiter = newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	if cfg.SignResponses && s.signer == nil {
		signer, err := security.NewSigner(cfg.SigningKey, security.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize response signing: %w", err)
		}
		s.signer = signer
	}

	if s.events == nil && cfg.Analytics.Enabled() {
		exporter, err := analytics.NewExporter(analytics.ExporterConfig{
			WebhookURL: cfg.Analytics.WebhookURL,
			APIKey:     cfg.Analytics.APIKey,
			BatchSize:  cfg.Analytics.BatchSize,
			Interval:   cfg.Analytics.Interval,
		})
		if err != nil {
			logrus.Warnf("Failed to initialize search analytics: %v", err)
		} else {
			s.events = exporter
			s.stop = append(s.stop, exporter.Stop)
		}
	}

	if multi, ok := source.(*fetch.MultiSource); ok && s.metrics != nil {
		multi.OnSourceError = func(name string, _ error) {
			s.metrics.sourceErrors.WithLabelValues(name).Inc()
		}
	}

	logrus.WithFields(logrus.Fields{
		"port":            cfg.Port,
		"source":          source.Name(),
		"timeout":         cfg.RequestTimeout,
		"circuit_breaker": cfg.EnableCircuitBreaker,
		"metrics":         cfg.EnableMetrics,
		"signing":         s.signer != nil,
		"analytics":       s.events != nil,
	}).Info("Server initialized")

	return s, nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.observe)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/circuit", s.handleCircuit)
	r.Post("/circuit", s.handleCircuit)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(s.rateLimit)
		v1.Get("/merchants", s.handleMerchants)
		v1.Get("/categories", s.handleCategories)
		v1.Get("/summary", s.handleSummary)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.errorResponse(w, r, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.errorResponse(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.config.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("Server starting on port %s", s.config.Port)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("error starting server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logrus.Info("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := s.server.Shutdown(shutdownCtx)
	for _, stop := range s.stop {
		stop(shutdownCtx)
	}
	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logrus.Info("Server stopped")
	return nil
}

// feed is one validated merchant list ready for discovery.
type feed struct {
	merchants []model.Merchant
	rejected  []discovery.RecordError
	fallback  bool
}

var errFeedUnavailable = errors.New("merchant feed unavailable")

func contextWithTimeout(r *http.Request, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), timeout)
}

// loadMerchants fetches and sanitises merchants, consulting the circuit
// breaker. When the fetch fails or trips the breaker, the last good list is
// served if one exists.
func (s *Server) loadMerchants(ctx context.Context) (feed, error) {
	ctx, span := otel.Tracer().Start(ctx, "discovery.load")
	defer span.End()

	raw, generation, err := s.fetch(ctx)
	if err != nil {
		otel.RecordError(ctx, err)
		return s.fallback(fmt.Errorf("error fetching merchants: %w", err))
	}

	valid, rejected := discovery.Sanitize(raw)
	if s.metrics != nil {
		s.metrics.validMerchants.Set(float64(len(valid)))
		s.metrics.rejected.Set(float64(len(rejected)))
	}
	if len(rejected) > 0 {
		logrus.WithFields(logrus.Fields{
			"valid":    len(valid),
			"rejected": len(rejected),
		}).Warn("Merchant feed contains malformed records")
	}

	if s.breaker != nil {
		if err := s.checkFeed(generation, valid, len(rejected)); err != nil {
			return s.fallback(err)
		}
	}

	return feed{merchants: valid, rejected: rejected}, nil
}

// generationSource reports which fetch a list came from, so cached lists are
// checked by the breaker once.
type generationSource interface {
	FetchSnapshot(ctx context.Context) (fetch.Snapshot, error)
}

// fetch returns the raw list and its generation; zero means unknown.
func (s *Server) fetch(ctx context.Context) ([]model.Merchant, uint64, error) {
	if gs, ok := s.source.(generationSource); ok {
		snap, err := gs.FetchSnapshot(ctx)
		return snap.Merchants, snap.Generation, err
	}
	merchants, err := s.source.Fetch(ctx)
	return merchants, 0, err
}

// checkFeed runs the breaker once per list generation and repeats the verdict
// for cached reads of the same list.
func (s *Server) checkFeed(generation uint64, valid []model.Merchant, rejected int) error {
	s.checkMu.Lock()
	defer s.checkMu.Unlock()

	if generation != 0 && generation == s.checked {
		return s.checkErr
	}
	err := s.breaker.Check(valid, rejected)
	s.metrics.setBreakerState(s.breaker.GetState())
	s.checked, s.checkErr = generation, err
	return err
}

// resetCheck forgets the last verdict, e.g. after a manual breaker reset.
func (s *Server) resetCheck() {
	s.checkMu.Lock()
	defer s.checkMu.Unlock()
	s.checked, s.checkErr = 0, nil
}

func (s *Server) fallback(cause error) (feed, error) {
	if s.breaker != nil {
		if lastGood := s.breaker.LastGoodMerchants(); len(lastGood) > 0 {
			logrus.Warnf("Serving last known good merchants: %v", cause)
			if s.metrics != nil {
				s.metrics.fallbacks.Inc()
			}
			return feed{merchants: lastGood, fallback: true}, nil
		}
	}
	return feed{}, fmt.Errorf("%w: %v", errFeedUnavailable, cause)
}
