package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yourorg/nearme-discovery/internal/model"
	"github.com/yourorg/nearme-discovery/internal/otel"
	"github.com/yourorg/nearme-discovery/internal/types"
)

// DefaultCollection is the document collection holding merchants.
const DefaultCollection = "merchants"

// maxPages bounds pagination so a misbehaving store cannot loop forever.
const maxPages = 100

// StoreClient reads merchant documents from the remote document store's REST
// API. Documents use typed field values:
//
//	{"documents": [{"name": ".../merchants/abc", "fields": {"name": {"stringValue": "Bean"}}}],
//	 "nextPageToken": "..."}
type StoreClient struct {
	baseURL    string
	collection string
	apiKey     string
	pageSize   int
	httpClient *http.Client
}

// StoreOption customises a StoreClient.
type StoreOption func(*StoreClient)

// WithCollection overrides the merchant collection name.
func WithCollection(name string) StoreOption {
	return func(c *StoreClient) { c.collection = name }
}

// WithPageSize sets the number of documents requested per page.
func WithPageSize(n int) StoreOption {
	return func(c *StoreClient) { c.pageSize = n }
}

// WithHTTPClient replaces the retrying HTTP client.
func WithHTTPClient(hc *http.Client) StoreOption {
	return func(c *StoreClient) { c.httpClient = hc }
}

// NewStoreClient creates a new merchant store client
func NewStoreClient(baseURL, apiKey string, opts ...StoreOption) *StoreClient {
	c := &StoreClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: DefaultCollection,
		apiKey:     apiKey,
		pageSize:   300,
		httpClient: StandardClient(newRetryClient()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements Source.
func (c *StoreClient) Name() string {
	return "store"
}

// Fetch retrieves every merchant document, following page tokens.
// Documents that cannot be decoded are skipped and logged; the engine's boundary
// validation deals with documents that decode but lack required fields.
func (c *StoreClient) Fetch(ctx context.Context) ([]model.Merchant, error) {
	ctx, span := otel.Tracer().Start(ctx, "fetch.store")
	defer span.End()

	var merchants []model.Merchant
	pageToken := ""

	for page := 0; page < maxPages; page++ {
		resp, err := c.fetchPage(ctx, pageToken)
		if err != nil {
			otel.RecordError(ctx, err)
			return nil, err
		}

		for _, doc := range resp.Documents {
			m, err := doc.toMerchant()
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"document": doc.Name,
					"error":    err,
				}).Warn("Skipping undecodable merchant document")
				continue
			}
			merchants = append(merchants, m)
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	span.SetAttributes(attribute.Int("merchants.count", len(merchants)))
	logrus.Debugf("Received %d merchants from store", len(merchants))
	return merchants, nil
}

func (c *StoreClient) fetchPage(ctx context.Context, pageToken string) (*listResponse, error) {
	q := url.Values{}
	q.Set("pageSize", strconv.Itoa(c.pageSize))
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	endpoint := fmt.Sprintf("%s/documents/%s?%s", c.baseURL, url.PathEscape(c.collection), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching merchants from store: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("store API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var out listResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("error decoding store response: %w", err)
	}
	return &out, nil
}

type listResponse struct {
	Documents     []document `json:"documents"`
	NextPageToken string     `json:"nextPageToken"`
}

type document struct {
	Name   string           `json:"name"`
	Fields map[string]value `json:"fields"`
}

// value is one typed field value. Exactly one member is set.
type value struct {
	StringValue  *string  `json:"stringValue,omitempty"`
	DoubleValue  *float64 `json:"doubleValue,omitempty"`
	IntegerValue *string  `json:"integerValue,omitempty"`
	NullValue    *string  `json:"nullValue,omitempty"`
	GeoPoint     *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"geoPointValue,omitempty"`
	ArrayValue *struct {
		Values []value `json:"values"`
	} `json:"arrayValue,omitempty"`
}

func (v value) str() string {
	if v.StringValue != nil {
		return *v.StringValue
	}
	return ""
}

func (v value) number() (float64, bool) {
	switch {
	case v.DoubleValue != nil:
		return *v.DoubleValue, true
	case v.IntegerValue != nil:
		n, err := strconv.ParseInt(*v.IntegerValue, 10, 64)
		if err != nil {
			return 0, false
		}
		return float64(n), true
	case v.StringValue != nil:
		f, err := strconv.ParseFloat(strings.TrimSpace(*v.StringValue), 64)
		return f, err == nil
	}
	return 0, false
}

// toMerchant decodes a document. The id is the last path segment of the
// document name unless an explicit "id" field is present.
func (d document) toMerchant() (model.Merchant, error) {
	if d.Fields == nil {
		return model.Merchant{}, fmt.Errorf("document has no fields")
	}

	m := model.Merchant{
		ID:          d.Fields["id"].str(),
		Name:        d.Fields["name"].str(),
		Address:     d.Fields["address"].str(),
		Description: d.Fields["description"].str(),
		Category:    types.Category(d.Fields["category"].str()),
	}
	if m.ID == "" {
		m.ID = d.Name[strings.LastIndex(d.Name, "/")+1:]
	}

	if r, ok := d.Fields["rating"].number(); ok {
		m.Rating = r
	}

	if gp := d.Fields["location"].GeoPoint; gp != nil {
		m.Location = &model.Location{Latitude: gp.Latitude, Longitude: gp.Longitude}
	} else {
		lat, latOK := d.Fields["latitude"].number()
		lon, lonOK := d.Fields["longitude"].number()
		// Partial coordinates are left for boundary validation to reject
		if latOK && lonOK {
			m.Location = &model.Location{Latitude: lat, Longitude: lon}
		}
	}

	if arr := d.Fields["acceptedTokens"].ArrayValue; arr != nil {
		for _, v := range arr.Values {
			if s := strings.TrimSpace(v.str()); s != "" {
				m.AcceptedTokens = append(m.AcceptedTokens, s)
			}
		}
	}

	return m, nil
}
