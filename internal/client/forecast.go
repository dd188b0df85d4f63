package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-widget/internal/cache"
	"github.com/kjstillabower/weather-widget/internal/models"
	"github.com/kjstillabower/weather-widget/internal/observability"
	"github.com/kjstillabower/weather-widget/internal/validation"
)

// ErrForecastNotFound covers every forecast fetch failure.
var ErrForecastNotFound = errors.New("weather data not found")

// DefaultFreshness is how long a cached forecast is served without a
// network call.
const DefaultFreshness = 30 * time.Minute

// ForecastClient returns forecasts for a city, cache first.
type ForecastClient struct {
	api       *OpenWeatherClient
	forecasts *cache.ForecastCache
	freshness time.Duration
	now       func() time.Time
	coalescer *requestCoalescer[models.Forecast]
}

// ForecastOption configures a ForecastClient.
type ForecastOption func(*ForecastClient)

// WithFreshness overrides DefaultFreshness.
func WithFreshness(d time.Duration) ForecastOption {
	return func(f *ForecastClient) {
		if d > 0 {
			f.freshness = d
		}
	}
}

// WithClock sets the time source used for freshness checks and fetch stamps.
func WithClock(now func() time.Time) ForecastOption {
	return func(f *ForecastClient) {
		if now != nil {
			f.now = now
		}
	}
}

// WithCoalesceTimeout bounds how long a caller waits on a shared fetch.
func WithCoalesceTimeout(d time.Duration) ForecastOption {
	return func(f *ForecastClient) {
		f.coalescer = newRequestCoalescer[models.Forecast](d)
	}
}

// NewForecastClient creates a ForecastClient backed by forecasts.
func NewForecastClient(api *OpenWeatherClient, forecasts *cache.ForecastCache, opts ...ForecastOption) *ForecastClient {
	f := &ForecastClient{
		api:       api,
		forecasts: forecasts,
		freshness: DefaultFreshness,
		now:       time.Now,
		coalescer: newRequestCoalescer[models.Forecast](0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchForecast returns the cached forecast for city while it is younger
// than the freshness window. Otherwise it fetches lat/lon upstream and
// overwrites the cache entry. Failed fetches never touch the cache.
// Concurrent fetches for the same city share one upstream request.
func (f *ForecastClient) FetchForecast(ctx context.Context, lat, lon float64, city string) (models.Forecast, error) {
	if cached, ok := f.fresh(ctx, city); ok {
		return cached, nil
	}
	return f.get(ctx, lat, lon, city, false)
}

// RefreshForecast fetches city upstream regardless of the cached entry's age
// and overwrites it on success. Used by the cache warmer.
func (f *ForecastClient) RefreshForecast(ctx context.Context, lat, lon float64, city string) (models.Forecast, error) {
	return f.get(ctx, lat, lon, city, true)
}

// fresh returns the cached forecast when it is inside the freshness window.
func (f *ForecastClient) fresh(ctx context.Context, city string) (models.Forecast, bool) {
	logger := observability.LoggerFromContext(ctx)
	cached, fetchedAt, ok, err := f.forecasts.Get(ctx, city)
	if err != nil {
		logger.Warn("forecast cache read failed", zap.String("city", city), zap.Error(err))
		return models.Forecast{}, false
	}
	if !ok {
		return models.Forecast{}, false
	}
	age := f.now().Sub(fetchedAt)
	if age >= f.freshness {
		logger.Debug("cached forecast is stale", zap.String("city", city), zap.Duration("age", age))
		return models.Forecast{}, false
	}
	logger.Debug("forecast served from cache", zap.String("city", city), zap.Duration("age", age))
	return cached, true
}

func (f *ForecastClient) get(ctx context.Context, lat, lon float64, city string, force bool) (models.Forecast, error) {
	// The shared fetch outlives any single caller's cancellation.
	fetchCtx := context.WithoutCancel(ctx)
	forecast, shared, err := f.coalescer.GetOrDo(ctx, validation.Normalize(city), func() (models.Forecast, error) {
		// A fetch that finished after the caller's cache read may already
		// have refreshed the entry.
		if !force {
			if cached, ok := f.fresh(fetchCtx, city); ok {
				return cached, nil
			}
		}
		return f.fetch(fetchCtx, lat, lon, city)
	})
	if shared {
		observability.ForecastCoalescedTotal.Inc()
	}
	if err != nil {
		if errors.Is(err, ErrForecastNotFound) {
			return models.Forecast{}, err
		}
		return models.Forecast{}, fmt.Errorf("%w: %w", ErrForecastNotFound, err)
	}
	return forecast, nil
}

func (f *ForecastClient) fetch(ctx context.Context, lat, lon float64, city string) (models.Forecast, error) {
	params := url.Values{}
	params.Set("lat", formatCoord(lat))
	params.Set("lon", formatCoord(lon))

	var forecast models.Forecast
	if err := f.api.getJSON(ctx, EndpointForecast, forecastPath, params, &forecast); err != nil {
		return models.Forecast{}, fmt.Errorf("%w: %w", ErrForecastNotFound, err)
	}
	if _, ok := forecast.First(); !ok {
		return models.Forecast{}, fmt.Errorf("%w: empty forecast list", ErrForecastNotFound)
	}

	if err := f.forecasts.Set(ctx, city, forecast, f.now()); err != nil {
		observability.LoggerFromContext(ctx).Warn("forecast cache write failed", zap.String("city", city), zap.Error(err))
	}
	return forecast, nil
}
