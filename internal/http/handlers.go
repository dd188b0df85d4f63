package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-widget/internal/client"
	"github.com/kjstillabower/weather-widget/internal/degraded"
	"github.com/kjstillabower/weather-widget/internal/lifecycle"
	"github.com/kjstillabower/weather-widget/internal/observability"
	"github.com/kjstillabower/weather-widget/internal/render"
	"github.com/kjstillabower/weather-widget/internal/widget"
)

const (
	// SessionCookie identifies a browser session for supersession tracking.
	SessionCookie = "widget_session"
	// FragmentHeader asks POST / for the output region only.
	FragmentHeader = "X-Widget-Fragment"

	serviceName = "weather-widget"
	maxFormBody = 4 << 10
)

// Widget is the lookup pipeline behind the handlers.
type Widget interface {
	Submit(ctx context.Context, session, rawCity string) (widget.Result, error)
	Fetch(ctx context.Context, rawCity string) (render.ForecastView, error)
}

// HealthConfig holds the inputs of GET /health.
type HealthConfig struct {
	Degraded degraded.Policy
	// StorePing, when set, is called to check store reachability.
	StorePing func(ctx context.Context) error
	// StoreBackend names the backend in the checks map.
	StoreBackend string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	widget       Widget
	healthConfig *HealthConfig
	logger       *zap.Logger

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. healthConfig may be nil.
func NewHandler(w Widget, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{widget: w, healthConfig: healthConfig, logger: logger}
}

// GetPage handles GET /: the form with an empty output region.
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	h.writePage(w, r, http.StatusOK, render.Page{})
}

// PostPage handles POST / with form field city. The full page is returned
// unless FragmentHeader is set, in which case only the output region is.
// A submission replaced by a newer one from the same session gets 409 and
// no body.
func (h *Handler) PostPage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBody)
	if err := r.ParseForm(); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_FORM", "could not parse form")
		return
	}
	rawCity := r.PostForm.Get("city")
	session := sessionID(w, r)

	result, err := h.widget.Submit(r.Context(), session, rawCity)
	if errors.Is(err, widget.ErrSuperseded) {
		w.WriteHeader(http.StatusConflict)
		return
	}
	if err != nil {
		observability.LoggerFromContext(r.Context()).Error("submit failed", zap.Error(err))
		result = widget.Result{Message: widget.MessageGeneric, Err: err}
	}

	if r.Header.Get(FragmentHeader) != "" {
		if !result.Rendered() {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		var buf bytes.Buffer
		if err := render.RenderOutput(&buf, result.Output()); err != nil {
			h.renderFailed(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
		return
	}
	h.writePage(w, r, http.StatusOK, render.Page{City: strings.TrimSpace(rawCity), Output: result.Output()})
}

// GetWeatherJSON handles GET /api/weather/{city}.
func (h *Handler) GetWeatherJSON(w http.ResponseWriter, r *http.Request) {
	city := mux.Vars(r)["city"]
	view, err := h.widget.Fetch(r.Context(), city)
	if err != nil {
		writeLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) writePage(w http.ResponseWriter, r *http.Request, status int, p render.Page) {
	var buf bytes.Buffer
	if err := render.RenderPage(&buf, p); err != nil {
		h.renderFailed(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) renderFailed(w http.ResponseWriter, r *http.Request, err error) {
	observability.LoggerFromContext(r.Context()).Error("render failed", zap.Error(err))
	http.Error(w, widget.MessageGeneric, http.StatusInternalServerError)
}

// sessionID returns the session cookie value, issuing a new one when the
// request has none.
func sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	id := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"weatherApi": "healthy"}
	if result.reason == "error_rate_breach" {
		checks["weatherApi"] = "unhealthy"
	}
	if h.healthConfig != nil && h.healthConfig.StorePing != nil {
		name := "store"
		if h.healthConfig.StoreBackend != "" {
			name = "store_" + h.healthConfig.StoreBackend
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		if err := h.healthConfig.StorePing(ctx); err != nil {
			checks[name] = "unhealthy"
			observability.LoggerFromContext(r.Context()).Warn("store ping failed", zap.Error(err))
		} else {
			checks[name] = "healthy"
		}
		cancel()
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   serviceName,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates, in order: lifecycle phase, then the upstream
// error rate. Store reachability is reported in checks but does not change
// the status; lookups still work against a failing store.
func (h *Handler) computeHealthStatus() healthResult {
	switch lifecycle.CurrentPhase() {
	case lifecycle.PhaseDraining:
		return healthResult{lifecycle.PhaseDraining.String(), http.StatusServiceUnavailable, "signal"}
	case lifecycle.PhaseStarting:
		return healthResult{lifecycle.PhaseStarting.String(), http.StatusServiceUnavailable, "starting"}
	}
	if h.healthConfig != nil {
		if bad, _ := h.healthConfig.Degraded.Evaluate(); bad {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeLookupError maps a lookup failure onto the JSON error shape.
// Validation errors are 400. A city or forecast the upstream does not have
// is 404; a transport or upstream failure behind the same sentinel is 502.
func writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	message := widget.MessageFor(err)
	if widget.IsValidationError(err) {
		writeError(w, r, http.StatusBadRequest, "INVALID_CITY", message)
		return
	}
	switch client.CategorizeError(err) {
	case client.ErrorCategoryNotFound:
		code := "WEATHER_NOT_FOUND"
		if errors.Is(err, client.ErrCityNotFound) {
			code = "CITY_NOT_FOUND"
		}
		writeError(w, r, http.StatusNotFound, code, message)
	case client.ErrorCategoryCityName:
		writeError(w, r, http.StatusBadGateway, "CITY_NAME_UNAVAILABLE", message)
	default:
		writeError(w, r, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", message)
		observability.LoggerFromContext(r.Context()).Debug("upstream error", zap.Error(err))
	}
}

// writeJSON writes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error body with the request correlation ID.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationIDFromContext(r.Context()),
		},
	})
}
