// Package widget runs the lookup pipeline behind the weather form:
// validate, resolve coordinates (cache first), fetch the forecast, and
// turn the outcome into something the renderer can show.
package widget

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-widget/internal/client"
	"github.com/kjstillabower/weather-widget/internal/events"
	"github.com/kjstillabower/weather-widget/internal/models"
	"github.com/kjstillabower/weather-widget/internal/observability"
	"github.com/kjstillabower/weather-widget/internal/render"
	"github.com/kjstillabower/weather-widget/internal/traffic"
	"github.com/kjstillabower/weather-widget/internal/validation"
)

// Resolver resolves a normalized city name to coordinates.
type Resolver interface {
	Resolve(ctx context.Context, city string) (models.Coordinates, error)
}

// ForecastFetcher returns the forecast for a resolved city.
type ForecastFetcher interface {
	FetchForecast(ctx context.Context, lat, lon float64, city string) (models.Forecast, error)
}

// ForecastRefresher fetches a forecast upstream regardless of cache age.
// Prefetch uses it when the ForecastFetcher implements it.
type ForecastRefresher interface {
	RefreshForecast(ctx context.Context, lat, lon float64, city string) (models.Forecast, error)
}

// CoordinateCache is the coordinate record store.
type CoordinateCache interface {
	Get(ctx context.Context, city string) (models.Coordinates, bool, error)
	Set(ctx context.Context, city string, coords models.Coordinates) error
}

// Options configures a Widget.
type Options struct {
	// ShowValidationErrors renders a message for invalid input. When false,
	// invalid input renders nothing.
	ShowValidationErrors bool
	Publisher            events.Publisher
	Logger               *zap.Logger
	Now                  func() time.Time
}

// Widget orchestrates a lookup. Safe for concurrent use.
type Widget struct {
	coords    CoordinateCache
	resolver  Resolver
	forecasts ForecastFetcher
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time

	showValidationErrors bool
	sessions             *sessionGuard
}

// New creates a Widget.
func New(coords CoordinateCache, resolver Resolver, forecasts ForecastFetcher, opts Options) *Widget {
	w := &Widget{
		coords:               coords,
		resolver:             resolver,
		forecasts:            forecasts,
		publisher:            opts.Publisher,
		logger:               opts.Logger,
		now:                  opts.Now,
		showValidationErrors: opts.ShowValidationErrors,
		sessions:             newSessionGuard(),
	}
	if w.publisher == nil {
		w.publisher = events.Noop{}
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	if w.now == nil {
		w.now = time.Now
	}
	return w
}

// LookupResult is a successful lookup.
type LookupResult struct {
	City              string
	Coordinates       models.Coordinates
	Forecast          models.Forecast
	CachedCoordinates bool
}

// Result is what a form submission shows in the output region.
type Result struct {
	// City is the normalized query, empty when validation failed.
	City     string
	Forecast *render.ForecastView
	// Message is the error or validation message to show.
	Message string
	// Err is the underlying failure, for logging and status mapping.
	Err error
}

// Output is the render model for the output region.
func (r Result) Output() render.Output {
	return render.Output{Forecast: r.Forecast, Error: r.Message}
}

// Rendered reports whether the submission shows anything.
func (r Result) Rendered() bool {
	return r.Forecast != nil || r.Message != ""
}

// Submit handles one form submission for session. Lookup failures are
// reported in the Result, not as an error. The only error is ErrSuperseded,
// returned when a newer submission for the same session has started; the
// caller must then discard the result.
func (w *Widget) Submit(ctx context.Context, session, rawCity string) (Result, error) {
	ctx, done := w.sessions.begin(ctx, session)
	defer done()

	view, city, err := w.fetchView(ctx, rawCity)
	if superseded(ctx) {
		w.log(ctx).Debug("submission superseded", zap.String("city", city))
		return Result{}, ErrSuperseded
	}
	if err != nil {
		if IsValidationError(err) {
			if !w.showValidationErrors {
				return Result{Err: err}, nil
			}
			return Result{Message: MessageFor(err), Err: err}, nil
		}
		return Result{City: city, Message: MessageFor(err), Err: err}, nil
	}
	return Result{City: city, Forecast: &view}, nil
}

// Fetch validates rawCity and runs the lookup, returning the view shown for
// a success. Errors are validation or lookup errors; see MessageFor.
func (w *Widget) Fetch(ctx context.Context, rawCity string) (render.ForecastView, error) {
	view, _, err := w.fetchView(ctx, rawCity)
	return view, err
}

func (w *Widget) fetchView(ctx context.Context, rawCity string) (render.ForecastView, string, error) {
	logger := w.log(ctx)

	city, err := validation.Validate(rawCity)
	if err != nil {
		observability.RecordLookup(city, OutcomeInvalid)
		logger.Debug("invalid city", zap.Int("length", len([]rune(validation.Normalize(rawCity)))), zap.Error(err))
		return render.ForecastView{}, city, err
	}

	res, err := w.Lookup(ctx, city)
	if err == nil {
		var view render.ForecastView
		view, err = render.NewForecastView(res.Forecast, res.Coordinates.Name)
		if err != nil {
			err = fmt.Errorf("%w: %w", client.ErrForecastNotFound, err)
		} else {
			w.publish(ctx, res)
			w.record(ctx, city, nil)
			return view, city, nil
		}
	}
	if superseded(ctx) {
		observability.RecordLookup(city, OutcomeSuperseded)
		return render.ForecastView{}, city, ErrSuperseded
	}
	w.record(ctx, city, err)
	return render.ForecastView{}, city, err
}

// Lookup resolves a normalized city and fetches its forecast. A cached
// coordinate record short-circuits geocoding. After a network resolution
// whose canonical name differs from the query, the record is also stored
// under the query so the next lookup for it is a cache hit.
func (w *Widget) Lookup(ctx context.Context, city string) (LookupResult, error) {
	return w.lookup(ctx, city, w.forecasts.FetchForecast)
}

type forecastFunc func(ctx context.Context, lat, lon float64, city string) (models.Forecast, error)

func (w *Widget) lookup(ctx context.Context, city string, fetch forecastFunc) (LookupResult, error) {
	logger := w.log(ctx)
	res := LookupResult{City: city}

	coords, ok, err := w.coords.Get(ctx, city)
	if err != nil {
		logger.Warn("coordinate cache read failed", zap.String("city", city), zap.Error(err))
	}
	if ok {
		res.CachedCoordinates = true
	} else {
		coords, err = w.resolver.Resolve(ctx, city)
		if err != nil {
			return res, err
		}
		if validation.Normalize(coords.Name) != city {
			if err := w.coords.Set(ctx, city, coords); err != nil {
				logger.Warn("coordinate alias write failed", zap.String("city", city), zap.Error(err))
			}
		}
	}
	res.Coordinates = coords

	forecast, err := fetch(ctx, coords.Latitude, coords.Longitude, coords.Name)
	if err != nil {
		return res, err
	}
	res.Forecast = forecast
	return res, nil
}

// Prefetch runs a lookup for city so its records are cached. The forecast is
// refetched even when the cached one is still fresh, which restarts its
// freshness window. Used by the cache warmer; no event is published.
func (w *Widget) Prefetch(ctx context.Context, city string) error {
	normalized, err := validation.Validate(city)
	if err != nil {
		return err
	}
	fetch := w.forecasts.FetchForecast
	if r, ok := w.forecasts.(ForecastRefresher); ok {
		fetch = r.RefreshForecast
	}
	_, err = w.lookup(ctx, normalized, fetch)
	return err
}

func (w *Widget) publish(ctx context.Context, res LookupResult) {
	ev := events.LookupEvent{
		City:          res.City,
		CanonicalName: res.Coordinates.Name,
		Latitude:      res.Coordinates.Latitude,
		Longitude:     res.Coordinates.Longitude,
		Cached:        res.CachedCoordinates,
		OccurredAt:    w.now().UTC(),
	}
	if err := w.publisher.Publish(ctx, ev); err != nil {
		w.log(ctx).Warn("lookup event publish failed", zap.String("city", res.City), zap.Error(err))
	}
}

func (w *Widget) record(ctx context.Context, city string, err error) {
	outcome := outcomeFor(err)
	observability.RecordLookup(city, outcome)
	if err == nil {
		traffic.RecordSuccess()
		return
	}

	category := client.CategorizeError(err)
	switch category {
	case client.ErrorCategoryNotFound, client.ErrorCategoryCityName:
		traffic.RecordSuccess()
		w.log(ctx).Info("lookup failed", zap.String("city", city), zap.String("outcome", outcome), zap.Error(err))
	default:
		traffic.RecordError()
		w.log(ctx).Warn("lookup failed",
			zap.String("city", city),
			zap.String("outcome", outcome),
			zap.String("category", string(category)),
			zap.Error(err),
		)
	}
}

// log prefers the request-scoped logger.
func (w *Widget) log(ctx context.Context) *zap.Logger {
	if l, ok := observability.ContextLogger(ctx); ok {
		return l
	}
	return w.logger
}

// InFlightSessions returns the number of sessions with a submission running.
func (w *Widget) InFlightSessions() int {
	return w.sessions.inFlight()
}
