package server

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/yourorg/nearme-discovery/internal/discovery"
	"github.com/yourorg/nearme-discovery/internal/geo"
	"github.com/yourorg/nearme-discovery/internal/model"
	"github.com/yourorg/nearme-discovery/internal/types"
)

// MaxLimit caps the number of merchants in one response.
const MaxLimit = 500

// searchRequest is a parsed /v1/merchants or /v1/summary query.
type searchRequest struct {
	query discovery.Query
	limit int
}

// parseSearch reads the discovery query parameters. Unknown category labels are
// kept as given; they are checked against the live chip list later.
func parseSearch(values url.Values) (searchRequest, error) {
	sel := discovery.DefaultSelection()
	sel.SearchText = strings.TrimSpace(values.Get("q"))
	sel.Token = strings.TrimSpace(values.Get("token"))

	if raw := values.Get("category"); strings.TrimSpace(raw) != "" {
		sel.Category, _ = types.ParseCategory(raw)
	}

	req := searchRequest{query: discovery.Query{Selection: sel}}

	lat, lon := values.Get("lat"), values.Get("lon")
	switch {
	case lat == "" && lon == "":
	case lat == "" || lon == "":
		return req, fmt.Errorf("lat and lon must be given together")
	default:
		loc, err := parseLocation(lat, lon)
		if err != nil {
			return req, err
		}
		req.query.UserLocation = loc
		req.query.DistanceFn = geo.Haversine
	}

	if raw := values.Get("radius_km"); raw != "" {
		radius, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(radius) || math.IsInf(radius, 0) || radius < 0 {
			return req, fmt.Errorf("radius_km must be a non-negative number")
		}
		req.query.MaxDistanceKm = radius
	}

	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return req, fmt.Errorf("limit must be a non-negative integer")
		}
		req.limit = limit
	}
	if req.limit == 0 || req.limit > MaxLimit {
		req.limit = MaxLimit
	}

	return req, nil
}

func parseLocation(lat, lon string) (*model.Location, error) {
	latitude, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid lat: %q", lat)
	}
	longitude, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid lon: %q", lon)
	}
	loc := &model.Location{Latitude: latitude, Longitude: longitude}
	if !loc.Valid() {
		return nil, fmt.Errorf("coordinates out of range: %s,%s", lat, lon)
	}
	return loc, nil
}

// resolveChip maps selected onto the chip list, ignoring case. "All" always
// resolves.
func resolveChip(selected types.Category, chips []types.Category) (types.Category, bool) {
	if selected.IsAll() {
		return types.CategoryAll, true
	}
	for _, c := range chips {
		if strings.EqualFold(string(c), string(selected)) {
			return c, true
		}
	}
	return selected, false
}
