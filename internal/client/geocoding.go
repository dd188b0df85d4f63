package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-widget/internal/cache"
	"github.com/kjstillabower/weather-widget/internal/models"
	"github.com/kjstillabower/weather-widget/internal/observability"
)

var (
	// ErrCityNotFound covers forward geocoding failures: transport, HTTP,
	// parse, or an empty result.
	ErrCityNotFound = errors.New("city not found")
	// ErrCityNameLookup is a reverse geocoding failure after coordinates
	// were already resolved.
	ErrCityNameLookup = errors.New("failed to get city name")
)

type geoResult struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
	State   string  `json:"state"`
}

// GeocodingClient resolves a city name to coordinates and a canonical name.
type GeocodingClient struct {
	api    *OpenWeatherClient
	coords *cache.CoordinateCache
}

// NewGeocodingClient creates a GeocodingClient that records every resolution
// in coords.
func NewGeocodingClient(api *OpenWeatherClient, coords *cache.CoordinateCache) *GeocodingClient {
	return &GeocodingClient{api: api, coords: coords}
}

// Resolve looks up city (already normalized) with a top-1 forward query, then
// a reverse query for the canonical name. The record is cached under the
// canonical name before returning; a cache write failure is logged only.
func (g *GeocodingClient) Resolve(ctx context.Context, city string) (models.Coordinates, error) {
	logger := observability.LoggerFromContext(ctx)

	var direct []geoResult
	params := url.Values{}
	params.Set("q", city)
	params.Set("limit", "1")
	if err := g.api.getJSON(ctx, EndpointDirect, directPath, params, &direct); err != nil {
		return models.Coordinates{}, fmt.Errorf("%w: %w", ErrCityNotFound, err)
	}
	if len(direct) == 0 {
		return models.Coordinates{}, ErrCityNotFound
	}
	match := direct[0]

	var reverse []geoResult
	params = url.Values{}
	params.Set("lat", formatCoord(match.Lat))
	params.Set("lon", formatCoord(match.Lon))
	params.Set("limit", "1")
	if err := g.api.getJSON(ctx, EndpointReverse, reversePath, params, &reverse); err != nil {
		return models.Coordinates{}, fmt.Errorf("%w: %w", ErrCityNameLookup, err)
	}
	if len(reverse) == 0 || strings.TrimSpace(reverse[0].Name) == "" {
		return models.Coordinates{}, ErrCityNameLookup
	}

	coords := models.Coordinates{
		Latitude:  match.Lat,
		Longitude: match.Lon,
		Name:      CanonicalName(reverse[0].Name, reverse[0].Country),
	}
	if err := g.coords.Set(ctx, coords.Name, coords); err != nil {
		logger.Warn("coordinate cache write failed", zap.String("city", coords.Name), zap.Error(err))
	}
	logger.Debug("city resolved",
		zap.String("query", city),
		zap.String("canonical", coords.Name),
		zap.Float64("lat", coords.Latitude),
		zap.Float64("lon", coords.Longitude),
	)
	return coords, nil
}

// CanonicalName joins a reverse-geocoded name and country code, e.g.
// "Berlin, DE". The country is omitted when empty or already present.
func CanonicalName(name, country string) string {
	name = strings.TrimSpace(name)
	country = strings.TrimSpace(country)
	if country == "" || strings.HasSuffix(strings.ToLower(name), strings.ToLower(", "+country)) {
		return name
	}
	return name + ", " + country
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
