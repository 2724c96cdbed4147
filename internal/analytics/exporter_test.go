package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))
}

type webhook struct {
	mu      sync.Mutex
	batches [][]SearchEvent
	auth    string
	status  int
}

func (w *webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.status != 0 {
		rw.WriteHeader(w.status)
		return
	}

	var body struct {
		Events []SearchEvent `json:"events"`
		Count  int           `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Count != len(body.Events) {
		rw.WriteHeader(http.StatusBadRequest)
		return
	}
	w.auth = r.Header.Get("Authorization")
	w.batches = append(w.batches, body.Events)
	rw.WriteHeader(http.StatusAccepted)
}

func (w *webhook) received() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.batches {
		n += len(b)
	}
	return n
}

func event(i int) SearchEvent {
	return SearchEvent{RequestID: fmt.Sprintf("req-%d", i), Category: "All", Results: i}
}

func TestNewExporter_RequiresWebhook(t *testing.T) {
	_, err := NewExporter(ExporterConfig{})
	assert.Error(t, err)
}

func TestExporter_FlushesFullBatch(t *testing.T) {
	hook := &webhook{}
	srv := httptest.NewServer(hook)
	defer srv.Close()

	e, err := NewExporter(ExporterConfig{WebhookURL: srv.URL, APIKey: "secret", BatchSize: 3, Interval: time.Hour})
	require.NoError(t, err)
	defer e.Stop(context.Background())

	for i := 0; i < 3; i++ {
		e.Record(event(i))
	}

	assert.Eventually(t, func() bool { return hook.received() == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Bearer secret", hook.auth)
	assert.Eventually(t, func() bool { return e.Status().Exported == 3 }, time.Second, 10*time.Millisecond)
}

func TestExporter_StopFlushesPending(t *testing.T) {
	hook := &webhook{}
	srv := httptest.NewServer(hook)
	defer srv.Close()

	e, err := NewExporter(ExporterConfig{WebhookURL: srv.URL, BatchSize: 10, Interval: time.Hour})
	require.NoError(t, err)

	e.Record(event(1))
	e.Record(event(2))
	assert.Equal(t, 2, e.Status().CurrentBatch)

	e.Stop(context.Background())
	assert.Equal(t, 2, hook.received())
	assert.Zero(t, e.Status().CurrentBatch)
	assert.NotNil(t, e.Status().LastExport)

	// Stop is idempotent
	e.Stop(context.Background())
}

func TestExporter_RequeuesOnFailure(t *testing.T) {
	hook := &webhook{status: http.StatusServiceUnavailable}
	srv := httptest.NewServer(hook)
	defer srv.Close()

	e, err := NewExporter(ExporterConfig{WebhookURL: srv.URL, BatchSize: 2, Interval: time.Hour, MaxBuffer: 3})
	require.NoError(t, err)
	e.httpClient.RetryMax = 0

	// Drive exports by hand
	e.cancel()
	<-e.done

	e.Record(event(1))
	e.Record(event(2))
	e.export(context.Background())

	status := e.Status()
	assert.Equal(t, 2, status.CurrentBatch, "Failed batch should be kept for the next export")
	assert.Zero(t, status.Exported)

	e.Record(event(3))
	e.Record(event(4))
	assert.Equal(t, 1, e.Status().Dropped, "Events beyond the buffer bound are dropped")

	hook.mu.Lock()
	hook.status = 0
	hook.mu.Unlock()

	e.Stop(context.Background())
	assert.Equal(t, 3, hook.received())

	hook.mu.Lock()
	defer hook.mu.Unlock()
	require.Len(t, hook.batches, 1)
	assert.Equal(t, "req-1", hook.batches[0][0].RequestID, "Requeued events keep their order")
}
