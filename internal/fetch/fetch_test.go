package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/nearme-discovery/internal/model"
	"github.com/yourorg/nearme-discovery/internal/types"
)

func TestFileSource_YAMLSeed(t *testing.T) {
	merchants, err := NewFileSource(filepath.Join("testdata", "merchants.yaml")).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, merchants, 5)

	bean := merchants[0]
	assert.Equal(t, "bean", bean.ID)
	assert.Equal(t, types.CategoryCafe, bean.Category)
	require.NotNil(t, bean.Location)
	assert.InDelta(t, 52.5386, bean.Location.Latitude, 1e-9)
	assert.Equal(t, []string{"SOL", "USDC"}, bean.AcceptedTokens)

	assert.Empty(t, merchants[1].Description)
	assert.Equal(t, 0.0, merchants[2].Rating)
	assert.Nil(t, merchants[4].Location)
}

func TestDecodeMerchants_JSONList(t *testing.T) {
	merchants, err := DecodeMerchants([]byte(`[{"id":"a","name":"Bean","category":"Cafe","location":{"latitude":1,"longitude":2}}]`))
	require.NoError(t, err)
	require.Len(t, merchants, 1)
	assert.Equal(t, "Bean", merchants[0].Name)
	assert.Equal(t, 2.0, merchants[0].Location.Longitude)
}

func TestDecodeMerchants_Errors(t *testing.T) {
	_, err := DecodeMerchants([]byte(`"just a string"`))
	assert.Error(t, err)

	merchants, err := DecodeMerchants([]byte(""))
	assert.NoError(t, err)
	assert.Empty(t, merchants)

	_, err = NewFileSource(filepath.Join(t.TempDir(), "missing.yaml")).Fetch(context.Background())
	assert.ErrorContains(t, err, "failed to read seed file")
}

func storeServer(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/documents/merchants", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		body, ok := pages[r.URL.Query().Get("pageToken")]
		if !ok {
			http.Error(w, "unknown page", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func TestStoreClient_FetchPaginated(t *testing.T) {
	srv := storeServer(t, map[string]string{
		"": `{"documents": [
			{"name": "projects/p/databases/(default)/documents/merchants/bean",
			 "fields": {
				"name": {"stringValue": "Bean"},
				"address": {"stringValue": "1 Main St"},
				"category": {"stringValue": "Cafe"},
				"rating": {"doubleValue": 4.5},
				"location": {"geoPointValue": {"latitude": 52.5, "longitude": 13.4}},
				"acceptedTokens": {"arrayValue": {"values": [{"stringValue": "SOL"}, {"stringValue": " "}]}}
			 }},
			{"name": "projects/p/databases/(default)/documents/merchants/empty"}
		], "nextPageToken": "p2"}`,
		"p2": `{"documents": [
			{"name": "projects/p/databases/(default)/documents/merchants/ignored",
			 "fields": {
				"id": {"stringValue": "hop"},
				"name": {"stringValue": "Hop"},
				"category": {"stringValue": "Bar"},
				"rating": {"integerValue": "4"},
				"latitude": {"doubleValue": 52.6},
				"longitude": {"stringValue": "13.3"}
			 }},
			{"name": "projects/p/databases/(default)/documents/merchants/half",
			 "fields": {"category": {"stringValue": "Bar"}, "latitude": {"doubleValue": 1}}}
		]}`,
	})
	defer srv.Close()

	client := NewStoreClient(srv.URL+"/", "secret", WithPageSize(2), WithHTTPClient(srv.Client()))
	merchants, err := client.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, merchants, 3)

	assert.Equal(t, model.Merchant{
		ID:             "bean",
		Name:           "Bean",
		Address:        "1 Main St",
		Category:       "Cafe",
		Rating:         4.5,
		Location:       &model.Location{Latitude: 52.5, Longitude: 13.4},
		AcceptedTokens: []string{"SOL"},
	}, merchants[0])

	assert.Equal(t, "hop", merchants[1].ID)
	assert.Equal(t, 4.0, merchants[1].Rating)
	assert.Equal(t, &model.Location{Latitude: 52.6, Longitude: 13.3}, merchants[1].Location)

	assert.Equal(t, "half", merchants[2].ID)
	assert.Nil(t, merchants[2].Location)
}

func TestStoreClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "permission denied", http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewStoreClient(srv.URL, "", WithHTTPClient(srv.Client()))
	_, err := client.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

type stubSource struct {
	name      string
	merchants []model.Merchant
	err       error
	calls     atomic.Int32
	delay     time.Duration
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(ctx context.Context) ([]model.Merchant, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.merchants, s.err
}

func TestMultiSource_MergeOrderAndPrecedence(t *testing.T) {
	store := &stubSource{name: "store", delay: 20 * time.Millisecond, merchants: []model.Merchant{
		{ID: "a", Name: "Store A"},
		{ID: "b", Name: "Store B"},
		{ID: "b", Name: "Store B again"},
	}}
	seed := &stubSource{name: "seed", merchants: []model.Merchant{
		{ID: "a", Name: "Seed A"},
		{ID: "c", Name: "Seed C"},
		{ID: "", Name: "Seed anonymous"},
	}}

	merged, err := NewMultiSource(0, store, seed).Fetch(context.Background())
	require.NoError(t, err)

	var names []string
	for _, m := range merged {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"Store A", "Store B", "Store B again", "Seed C", "Seed anonymous"}, names)
}

func TestMultiSource_PartialAndTotalFailure(t *testing.T) {
	ok := &stubSource{name: "seed", merchants: []model.Merchant{{ID: "a"}}}
	bad := &stubSource{name: "store", err: errors.New("boom")}

	var reported []string
	ms := NewMultiSource(0, bad, ok)
	ms.OnSourceError = func(source string, err error) { reported = append(reported, source) }

	merged, err := ms.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, merged, 1)
	assert.Equal(t, []string{"store"}, reported)

	_, err = NewMultiSource(0, bad).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all merchant sources failed")
	assert.Contains(t, err.Error(), "boom")

	_, err = NewMultiSource(0).Fetch(context.Background())
	assert.Error(t, err)
}

func TestMultiSource_Cache(t *testing.T) {
	src := &stubSource{name: "seed", merchants: []model.Merchant{{ID: "a"}}}
	ms := NewMultiSource(time.Minute, src)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ms.now = func() time.Time { return now }

	_, err := ms.Fetch(context.Background())
	require.NoError(t, err)
	_, err = ms.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.calls.Load())

	now = now.Add(2 * time.Minute)
	_, err = ms.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())

	ms.Invalidate()
	_, err = ms.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), src.calls.Load())
}

func TestMultiSource_CacheReturnsCopies(t *testing.T) {
	src := &stubSource{name: "seed", merchants: []model.Merchant{{ID: "a", Name: "Bean"}}}
	ms := NewMultiSource(time.Minute, src)

	first, err := ms.Fetch(context.Background())
	require.NoError(t, err)
	first[0].Name = "mutated"

	second, err := ms.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bean", second[0].Name)
}

func TestStoreClient_DocumentFixture(t *testing.T) {
	// Guards the wire format against accidental tag changes
	var resp listResponse
	require.NoError(t, json.Unmarshal([]byte(`{"documents":[{"name":"x/y","fields":{"rating":{"integerValue":"3"}}}]}`), &resp))
	m, err := resp.Documents[0].toMerchant()
	require.NoError(t, err)
	assert.Equal(t, "y", m.ID)
	assert.Equal(t, 3.0, m.Rating)

	_, err = document{Name: "x/z"}.toMerchant()
	assert.Error(t, err)
}

func TestMultiSource_SnapshotGeneration(t *testing.T) {
	src := &stubSource{name: "seed", merchants: []model.Merchant{{ID: "a"}}}
	ms := NewMultiSource(time.Minute, src)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ms.now = func() time.Time { return now }

	first, err := ms.FetchSnapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, uint64(1), first.Generation)

	cached, err := ms.FetchSnapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, cached.Cached)
	assert.Equal(t, first.Generation, cached.Generation)

	now = now.Add(2 * time.Minute)
	fresh, err := ms.FetchSnapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, fresh.Cached)
	assert.Equal(t, uint64(2), fresh.Generation)

	uncached := NewMultiSource(0, src)
	a, err := uncached.FetchSnapshot(context.Background())
	require.NoError(t, err)
	b, err := uncached.FetchSnapshot(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, a.Generation, b.Generation)
}
