package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-widget/internal/observability"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// Limiter throttles lookup routes; nil disables rate limiting.
	Limiter *rate.Limiter
	// RequestTimeout bounds each lookup request; zero disables it.
	RequestTimeout time.Duration
}

// NewRouter wires the handler routes. Lookup routes (POST / and the JSON
// API) are rate limited and carry the request timeout; the page, health and
// metrics routes are not.
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	limit := RateLimitMiddleware(cfg.Limiter)
	timeout := TimeoutMiddleware(cfg.RequestTimeout)

	router.HandleFunc("/", h.GetPage).Methods(http.MethodGet)
	router.Handle("/", limit(timeout(http.HandlerFunc(h.PostPage)))).Methods(http.MethodPost)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(limit)
	api.Use(timeout)
	api.HandleFunc("/weather/{city}", h.GetWeatherJSON).Methods(http.MethodGet)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)
	return router
}
