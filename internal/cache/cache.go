package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/kjstillabower/weather-widget/internal/models"
	"github.com/kjstillabower/weather-widget/internal/observability"
	"github.com/kjstillabower/weather-widget/internal/store"
	"github.com/kjstillabower/weather-widget/internal/validation"
)

// Key prefixes of the two namespaces in the flat store.
const (
	CoordinatesPrefix  = "cityCoordinates_"
	ForecastPrefix     = "weatherData_"
	ForecastTimePrefix = "weatherDataTime_"
)

// Namespace labels used in cache metrics.
const (
	namespaceCoordinates = "coordinates"
	namespaceForecast    = "forecast"
)

// CoordinatesKey returns the store key for a city's coordinate record.
func CoordinatesKey(city string) string {
	return CoordinatesPrefix + validation.Normalize(city)
}

// ForecastKey returns the store key for a city's forecast payload.
func ForecastKey(city string) string {
	return ForecastPrefix + validation.Normalize(city)
}

// ForecastTimeKey returns the store key for a city's forecast fetch time.
func ForecastTimeKey(city string) string {
	return ForecastTimePrefix + validation.Normalize(city)
}

// CoordinateCache stores coordinate records as JSON under cityCoordinates_<city>.
type CoordinateCache struct {
	store store.Store
}

// NewCoordinateCache returns a CoordinateCache backed by s.
func NewCoordinateCache(s store.Store) *CoordinateCache {
	return &CoordinateCache{store: s}
}

// Get returns the record for city. A value that fails to decode is reported
// as an error, not a hit.
func (c *CoordinateCache) Get(ctx context.Context, city string) (models.Coordinates, bool, error) {
	raw, ok, err := c.store.Get(ctx, CoordinatesKey(city))
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues(namespaceCoordinates, "get").Inc()
		return models.Coordinates{}, false, fmt.Errorf("cache get coordinates: %w", err)
	}
	if !ok {
		observability.CacheMissesTotal.WithLabelValues(namespaceCoordinates).Inc()
		return models.Coordinates{}, false, nil
	}
	var coords models.Coordinates
	if err := json.Unmarshal([]byte(raw), &coords); err != nil {
		observability.CacheErrorsTotal.WithLabelValues(namespaceCoordinates, "decode").Inc()
		return models.Coordinates{}, false, fmt.Errorf("cache decode coordinates: %w", err)
	}
	observability.CacheHitsTotal.WithLabelValues(namespaceCoordinates).Inc()
	return coords, true, nil
}

// Set writes coords under city, replacing any previous record.
func (c *CoordinateCache) Set(ctx context.Context, city string, coords models.Coordinates) error {
	raw, err := json.Marshal(coords)
	if err != nil {
		return fmt.Errorf("cache encode coordinates: %w", err)
	}
	if err := c.store.Set(ctx, CoordinatesKey(city), string(raw)); err != nil {
		observability.CacheErrorsTotal.WithLabelValues(namespaceCoordinates, "set").Inc()
		return fmt.Errorf("cache set coordinates: %w", err)
	}
	return nil
}

// ForecastCache stores a forecast payload under weatherData_<city> and its
// fetch time, in epoch milliseconds, under weatherDataTime_<city>.
type ForecastCache struct {
	store store.Store
}

// NewForecastCache returns a ForecastCache backed by s.
func NewForecastCache(s store.Store) *ForecastCache {
	return &ForecastCache{store: s}
}

// Get returns the cached payload and when it was fetched. Freshness is the
// caller's decision. A payload without a readable timestamp is a miss.
func (c *ForecastCache) Get(ctx context.Context, city string) (models.Forecast, time.Time, bool, error) {
	rawTime, ok, err := c.store.Get(ctx, ForecastTimeKey(city))
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues(namespaceForecast, "get").Inc()
		return models.Forecast{}, time.Time{}, false, fmt.Errorf("cache get forecast time: %w", err)
	}
	if !ok {
		observability.CacheMissesTotal.WithLabelValues(namespaceForecast).Inc()
		return models.Forecast{}, time.Time{}, false, nil
	}
	millis, err := strconv.ParseInt(rawTime, 10, 64)
	if err != nil {
		observability.CacheMissesTotal.WithLabelValues(namespaceForecast).Inc()
		return models.Forecast{}, time.Time{}, false, nil
	}

	raw, ok, err := c.store.Get(ctx, ForecastKey(city))
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues(namespaceForecast, "get").Inc()
		return models.Forecast{}, time.Time{}, false, fmt.Errorf("cache get forecast: %w", err)
	}
	if !ok {
		observability.CacheMissesTotal.WithLabelValues(namespaceForecast).Inc()
		return models.Forecast{}, time.Time{}, false, nil
	}
	var forecast models.Forecast
	if err := json.Unmarshal([]byte(raw), &forecast); err != nil {
		observability.CacheErrorsTotal.WithLabelValues(namespaceForecast, "decode").Inc()
		return models.Forecast{}, time.Time{}, false, fmt.Errorf("cache decode forecast: %w", err)
	}
	observability.CacheHitsTotal.WithLabelValues(namespaceForecast).Inc()
	return forecast, time.UnixMilli(millis), true, nil
}

// Set writes the payload first and the timestamp second, so a reader never
// sees a new timestamp paired with an older payload.
func (c *ForecastCache) Set(ctx context.Context, city string, forecast models.Forecast, fetchedAt time.Time) error {
	raw, err := json.Marshal(forecast)
	if err != nil {
		return fmt.Errorf("cache encode forecast: %w", err)
	}
	if err := c.store.Set(ctx, ForecastKey(city), string(raw)); err != nil {
		observability.CacheErrorsTotal.WithLabelValues(namespaceForecast, "set").Inc()
		return fmt.Errorf("cache set forecast: %w", err)
	}
	if err := c.store.Set(ctx, ForecastTimeKey(city), strconv.FormatInt(fetchedAt.UnixMilli(), 10)); err != nil {
		observability.CacheErrorsTotal.WithLabelValues(namespaceForecast, "set").Inc()
		return fmt.Errorf("cache set forecast time: %w", err)
	}
	return nil
}
