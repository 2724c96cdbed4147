// Package fetch provides sources that load merchant records for the discovery
// engine: the remote merchant store, local seed files and a caching merge of both.
package fetch

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/nearme-discovery/internal/model"
)

// Source defines the interface that all merchant sources must implement
type Source interface {
	// Fetch retrieves the current merchant list
	Fetch(ctx context.Context) ([]model.Merchant, error)

	// Name identifies the source in logs and metrics
	Name() string
}

// newRetryClient creates a new HTTP client with retry capabilities
func newRetryClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 3 * time.Second
	c.Logger = retryLogger{}
	return c
}

// StandardClient converts a retryablehttp.Client to a standard http.Client
func StandardClient(retryClient *retryablehttp.Client) *http.Client {
	return retryClient.StandardClient()
}

// retryLogger routes retryablehttp's leveled logs to logrus at debug level.
type retryLogger struct{}

func (retryLogger) Error(msg string, keysAndValues ...interface{}) { fields(keysAndValues).Warn(msg) }
func (retryLogger) Info(msg string, keysAndValues ...interface{})  { fields(keysAndValues).Debug(msg) }
func (retryLogger) Debug(msg string, keysAndValues ...interface{}) { fields(keysAndValues).Debug(msg) }
func (retryLogger) Warn(msg string, keysAndValues ...interface{})  { fields(keysAndValues).Warn(msg) }

func fields(kv []interface{}) *logrus.Entry {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			f[k] = kv[i+1]
		}
	}
	return logrus.WithFields(f)
}
