//go:build integration
// +build integration

// Package testhelpers builds the full lookup stack against the live
// OpenWeatherMap API for integration tests.
package testhelpers

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/kjstillabower/weather-widget/internal/cache"
	"github.com/kjstillabower/weather-widget/internal/client"
	"github.com/kjstillabower/weather-widget/internal/store"
	"github.com/kjstillabower/weather-widget/internal/widget"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	StoreBackend  string
	MemcachedAddr string
	RedisURL      string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips the test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}

	cfg := IntegrationTestConfig{
		APIKey:        apiKey,
		APIURL:        os.Getenv("WEATHER_API_URL"),
		StoreBackend:  os.Getenv("INTEGRATION_STORE_BACKEND"),
		MemcachedAddr: os.Getenv("MEMCACHED_ADDRS"),
		RedisURL:      os.Getenv("REDIS_URL"),
	}
	if cfg.APIURL == "" {
		cfg.APIURL = client.DefaultBaseURL
	}
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = store.BackendInMemory
	}
	if cfg.MemcachedAddr == "" {
		cfg.MemcachedAddr = "localhost:11211"
	}
	if cfg.RedisURL == "" {
		cfg.RedisURL = "redis://localhost:6379/0"
	}
	return cfg
}

// OpenIntegrationStore opens the configured backend, falling back to the
// in-memory store when it is unreachable. Closed on test cleanup.
func OpenIntegrationStore(t *testing.T, cfg IntegrationTestConfig) *store.Handle {
	t.Helper()
	opts := store.Options{
		Backend:               cfg.StoreBackend,
		SQLitePath:            t.TempDir() + "/widget.db",
		MemcachedAddrs:        cfg.MemcachedAddr,
		MemcachedTimeout:      500 * time.Millisecond,
		MemcachedMaxIdleConns: 2,
		RedisURL:              cfg.RedisURL,
	}
	h, err := store.Open(context.Background(), opts)
	if err != nil {
		t.Logf("store backend %s not available (%v), using in-memory store", cfg.StoreBackend, err)
		h, _ = store.Open(context.Background(), store.Options{Backend: store.BackendInMemory})
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

// SetupIntegrationWidget wires validator, caches, clients and orchestrator
// against the live API.
func SetupIntegrationWidget(t *testing.T, cfg IntegrationTestConfig) (*widget.Widget, *store.Handle) {
	t.Helper()
	api, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.APIURL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	h := OpenIntegrationStore(t, cfg)
	coords := cache.NewCoordinateCache(h)
	w := widget.New(
		coords,
		client.NewGeocodingClient(api, coords),
		client.NewForecastClient(api, cache.NewForecastCache(h)),
		widget.Options{ShowValidationErrors: true, Logger: zaptest.NewLogger(t)},
	)
	return w, h
}
