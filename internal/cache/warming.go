package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-widget/internal/observability"
)

// Prefetcher is implemented by the widget to run a full lookup for a city.
// Used by Warmer to avoid a circular dependency on the widget package.
type Prefetcher interface {
	Prefetch(ctx context.Context, city string) error
}

// Warmer keeps coordinates and forecasts of a fixed city list in the cache.
type Warmer struct {
	fetcher Prefetcher
	logger  *zap.Logger
	timeout time.Duration
}

// NewWarmer creates a Warmer. timeout bounds each periodic run.
func NewWarmer(fetcher Prefetcher, logger *zap.Logger, timeout time.Duration) *Warmer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Warmer{fetcher: fetcher, logger: logger, timeout: timeout}
}

// Warm prefetches every city concurrently. Returns the joined errors of the
// cities that failed.
func (w *Warmer) Warm(ctx context.Context, cities []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		ctx = observability.WithLogger(ctx, w.logger.With(zap.String("component", "cache_warmer")))
		w.logger.Info("warming cache", zap.Int("cities", len(cities)))
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(cities))
	for _, city := range cities {
		city := city
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.fetcher.Prefetch(ctx, city); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", city, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Int("cities", len(cities)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return errors.Join(errs...)
	}
	return nil
}

// Start schedules Warm every interval on a gocron scheduler. The first run
// happens after one interval; callers warm synchronously at startup if needed.
// The returned func stops the scheduler.
func (w *Warmer) Start(cities []string, interval time.Duration) (func(), error) {
	if interval <= 0 {
		return nil, fmt.Errorf("warm interval must be positive, got %s", interval)
	}
	s := gocron.NewScheduler(time.UTC)
	_, err := s.Every(interval).WaitForSchedule().SingletonMode().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		if err := w.Warm(ctx, cities); err != nil && w.logger != nil {
			w.logger.Warn("periodic cache warm failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule cache warming: %w", err)
	}
	s.StartAsync()
	return s.Stop, nil
}
