package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-widget/internal/cache"
	"github.com/kjstillabower/weather-widget/internal/circuitbreaker"
	"github.com/kjstillabower/weather-widget/internal/client"
	"github.com/kjstillabower/weather-widget/internal/config"
	"github.com/kjstillabower/weather-widget/internal/degraded"
	"github.com/kjstillabower/weather-widget/internal/events"
	httphandler "github.com/kjstillabower/weather-widget/internal/http"
	"github.com/kjstillabower/weather-widget/internal/lifecycle"
	"github.com/kjstillabower/weather-widget/internal/observability"
	"github.com/kjstillabower/weather-widget/internal/store"
	"github.com/kjstillabower/weather-widget/internal/widget"
)

const upstreamComponent = "weather_api"

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	lifecycle.SetPhase(lifecycle.PhaseStarting)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	api, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}
	if cfg.CircuitBreakerEnabled {
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        upstreamComponent,
			IsFailure:        client.IsBreakerFailure,
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.CircuitBreakerTransitionsTotal.WithLabelValues(upstreamComponent, from.String(), to.String()).Inc()
				observability.CircuitBreakerState.WithLabelValues(upstreamComponent).Set(float64(to))
				logger.Warn("circuit breaker state change", zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
		api.WithCircuitBreaker(cb)
		observability.CircuitBreakerState.WithLabelValues(upstreamComponent).Set(float64(circuitbreaker.StateClosed))
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	openCtx, openCancel := context.WithTimeout(context.Background(), 10*time.Second)
	st, err := store.Open(openCtx, store.Options{
		Backend:               cfg.StoreBackend,
		SQLitePath:            cfg.SQLitePath,
		MemcachedAddrs:        cfg.MemcachedAddrs,
		MemcachedTimeout:      cfg.MemcachedTimeout,
		MemcachedMaxIdleConns: cfg.MemcachedMaxIdleConns,
		RedisURL:              cfg.RedisURL,
	})
	openCancel()
	if err != nil {
		logger.Fatal("store", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	logger.Info("store backend", zap.String("backend", cfg.StoreBackend))

	coords := cache.NewCoordinateCache(st)
	forecasts := cache.NewForecastCache(st)
	geocoder := client.NewGeocodingClient(api, coords)
	forecaster := client.NewForecastClient(api, forecasts,
		client.WithFreshness(cfg.ForecastFreshness),
		client.WithCoalesceTimeout(cfg.CoalesceTimeout),
	)

	var publisher events.Publisher = events.Noop{}
	var kafka *events.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			logger.Fatal("kafka publisher", zap.Error(err))
		}
		publisher = kafka
	}

	w := widget.New(coords, geocoder, forecaster, widget.Options{
		ShowValidationErrors: cfg.ShowValidationErrors,
		Publisher:            publisher,
		Logger:               logger,
	})

	observability.RegisterTrafficGauges(cfg.DegradedWindow)
	if len(cfg.TrackedCities) > 0 {
		observability.SetTrackedCities(cfg.TrackedCities)
	}

	var stopWarming func()
	if len(cfg.WarmCities) > 0 {
		warmer := cache.NewWarmer(w, logger, 0)
		warmCtx, warmCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := warmer.Warm(warmCtx, cfg.WarmCities); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
		if cfg.WarmInterval > 0 {
			stopWarming, err = warmer.Start(cfg.WarmCities, cfg.WarmInterval)
			if err != nil {
				logger.Error("periodic cache warming", zap.Error(err))
			}
		}
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(w, &httphandler.HealthConfig{
		Degraded: degraded.Policy{
			Window:     cfg.DegradedWindow,
			ErrorPct:   cfg.DegradedErrorPct,
			MinSamples: cfg.DegradedMinSamples,
		},
		StorePing:    st.Ping,
		StoreBackend: cfg.StoreBackend,
	}, logger)
	router := httphandler.NewRouter(handler, logger, httphandler.RouterConfig{
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()
	lifecycle.SetPhase(lifecycle.PhaseServing)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetPhase(lifecycle.PhaseDraining)
	if stopWarming != nil {
		stopWarming()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	if err := httphandler.WaitForInFlight(shutdownCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	var sinks []observability.Flusher
	if kafka != nil {
		sinks = append(sinks, kafka)
	}
	if err := observability.FlushTelemetry(shutdownCtx, logger, sinks...); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	if kafka != nil {
		kafka.Close()
	}
	if err := st.Close(); err != nil {
		logger.Error("store close", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
