// Package analytics exports anonymised search events to an analytics webhook in
// batches.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

// SearchEvent describes one discovery request. User coordinates are never
// recorded, only whether a location was supplied.
type SearchEvent struct {
	RequestID   string    `json:"requestId"`
	Timestamp   time.Time `json:"timestamp"`
	SearchText  string    `json:"searchText,omitempty"`
	Category    string    `json:"category"`
	Token       string    `json:"token,omitempty"`
	HasLocation bool      `json:"hasLocation"`
	RadiusKm    float64   `json:"radiusKm,omitempty"`
	Results     int       `json:"results"`
	Rejected    int       `json:"rejected"`
	DurationMs  float64   `json:"durationMs"`
	Fallback    bool      `json:"fallback,omitempty"`
}

// ExporterConfig holds configuration for event exporting
type ExporterConfig struct {
	WebhookURL string        `json:"webhook_url"`
	APIKey     string        `json:"api_key,omitempty"`
	BatchSize  int           `json:"batch_size"`
	Interval   time.Duration `json:"interval"`

	// Upper bound on buffered events while the webhook is unreachable
	MaxBuffer int `json:"max_buffer"`
}

// Exporter batches search events and posts them to a webhook.
type Exporter struct {
	config     ExporterConfig
	httpClient *retryablehttp.Client

	mutex      sync.Mutex
	batch      []SearchEvent
	lastExport time.Time
	exported   int
	dropped    int

	flush  chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Status is a snapshot of the exporter state.
type Status struct {
	Enabled      bool       `json:"enabled"`
	BatchSize    int        `json:"batchSize"`
	Interval     string     `json:"interval"`
	CurrentBatch int        `json:"currentBatch"`
	Exported     int        `json:"exported"`
	Dropped      int        `json:"dropped"`
	LastExport   *time.Time `json:"lastExport,omitempty"`
}

// NewExporter creates an exporter and starts its background export loop.
// Call Stop to flush pending events and end the loop.
func NewExporter(config ExporterConfig) (*Exporter, error) {
	if config.WebhookURL == "" {
		return nil, fmt.Errorf("webhook URL not configured")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.MaxBuffer < config.BatchSize {
		config.MaxBuffer = config.BatchSize * 10
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = 10 * time.Second
	client.Logger = logrus.StandardLogger()

	ctx, cancel := context.WithCancel(context.Background())
	e := &Exporter{
		config:     config,
		httpClient: client,
		batch:      make([]SearchEvent, 0, config.BatchSize),
		flush:      make(chan struct{}, 1),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go e.run(ctx)

	logrus.WithFields(logrus.Fields{
		"batch_size": config.BatchSize,
		"interval":   config.Interval,
	}).Info("Search analytics exporter initialized")
	return e, nil
}

// Record queues an event. A full batch triggers an export.
func (e *Exporter) Record(event SearchEvent) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if len(e.batch) >= e.config.MaxBuffer {
		e.dropped++
		return
	}
	e.batch = append(e.batch, event)

	if len(e.batch) >= e.config.BatchSize {
		select {
		case e.flush <- struct{}{}:
		default:
		}
	}
}

func (e *Exporter) run(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.export(ctx)
		case <-e.flush:
			e.export(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// export sends the current batch. Failed batches are put back in front of
// newer events.
func (e *Exporter) export(ctx context.Context) {
	e.mutex.Lock()
	if len(e.batch) == 0 {
		e.mutex.Unlock()
		return
	}
	events := e.batch
	e.batch = make([]SearchEvent, 0, e.config.BatchSize)
	e.mutex.Unlock()

	if err := e.post(ctx, events); err != nil {
		logrus.Errorf("Failed to export search events: %v", err)
		e.requeue(events)
		return
	}

	e.mutex.Lock()
	e.lastExport = time.Now()
	e.exported += len(events)
	e.mutex.Unlock()
	logrus.Debugf("Exported %d search events", len(events))
}

func (e *Exporter) requeue(events []SearchEvent) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	merged := append(events, e.batch...)
	if over := len(merged) - e.config.MaxBuffer; over > 0 {
		e.dropped += over
		merged = merged[over:]
	}
	e.batch = merged
}

func (e *Exporter) post(ctx context.Context, events []SearchEvent) error {
	exportData := struct {
		Events     []SearchEvent `json:"events"`
		ExportTime string        `json:"export_time"`
		Count      int           `json:"count"`
	}{
		Events:     events,
		ExportTime: time.Now().UTC().Format(time.RFC3339),
		Count:      len(events),
	}

	jsonData, err := json.Marshal(exportData)
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, e.config.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned error status: %d", resp.StatusCode)
	}
	return nil
}

// Stop ends the export loop and makes a final attempt to send pending events.
func (e *Exporter) Stop(ctx context.Context) {
	e.once.Do(func() {
		e.cancel()
		<-e.done
		e.export(ctx)
	})
}

// Status returns the current state of the exporter
func (e *Exporter) Status() Status {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	s := Status{
		Enabled:      true,
		BatchSize:    e.config.BatchSize,
		Interval:     e.config.Interval.String(),
		CurrentBatch: len(e.batch),
		Exported:     e.exported,
		Dropped:      e.dropped,
	}
	if !e.lastExport.IsZero() {
		last := e.lastExport
		s.LastExport = &last
	}
	return s
}
