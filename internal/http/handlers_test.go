package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-widget/internal/cache"
	"github.com/kjstillabower/weather-widget/internal/client"
	"github.com/kjstillabower/weather-widget/internal/degraded"
	"github.com/kjstillabower/weather-widget/internal/lifecycle"
	"github.com/kjstillabower/weather-widget/internal/models"
	"github.com/kjstillabower/weather-widget/internal/store"
	"github.com/kjstillabower/weather-widget/internal/traffic"
	"github.com/kjstillabower/weather-widget/internal/widget"
)

// fakeResolver resolves every city to coords. When blockCity matches, it
// signals started and waits for release or ctx.
type fakeResolver struct {
	coords    models.Coordinates
	err       error
	blockCity string
	started   chan struct{}
	release   chan struct{}

	mu    sync.Mutex
	calls int
}

func (r *fakeResolver) Resolve(ctx context.Context, city string) (models.Coordinates, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.blockCity != "" && city == r.blockCity {
		if r.started != nil {
			close(r.started)
		}
		select {
		case <-ctx.Done():
			return models.Coordinates{}, ctx.Err()
		case <-r.release:
		}
	}
	return r.coords, r.err
}

func (r *fakeResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fakeForecasts struct {
	forecast models.Forecast
	err      error
}

func (f *fakeForecasts) FetchForecast(ctx context.Context, lat, lon float64, city string) (models.Forecast, error) {
	if f.err != nil {
		return models.Forecast{}, f.err
	}
	return f.forecast, nil
}

func berlinForecast() models.Forecast {
	var entry models.ForecastEntry
	entry.Main.Temp = 293.71
	entry.Main.Humidity = 71
	entry.Weather = []models.ForecastCondition{{Description: "broken clouds"}}
	entry.Wind.Speed = 4.1
	f := models.Forecast{List: []models.ForecastEntry{entry}}
	f.City.Name = "Berlin"
	return f
}

type handlerFixture struct {
	resolver  *fakeResolver
	forecasts *fakeForecasts
	widget    *widget.Widget
	handler   *Handler
}

func newHandlerFixture(t testing.TB, showValidation bool, healthConfig *HealthConfig, logger *zap.Logger) *handlerFixture {
	t.Helper()
	traffic.Reset()
	t.Cleanup(traffic.Reset)
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &handlerFixture{
		resolver:  &fakeResolver{coords: models.Coordinates{Latitude: 52.52, Longitude: 13.4, Name: "Berlin, DE"}},
		forecasts: &fakeForecasts{forecast: berlinForecast()},
	}
	coords := cache.NewCoordinateCache(store.NewInMemoryStore())
	f.widget = widget.New(coords, f.resolver, f.forecasts, widget.Options{
		ShowValidationErrors: showValidation,
		Logger:               logger,
	})
	f.handler = NewHandler(f.widget, healthConfig, logger)
	return f
}

func (f *handlerFixture) router() *mux.Router {
	return NewRouter(f.handler, zap.NewNop(), RouterConfig{RequestTimeout: 5 * time.Second})
}

func postCity(city string, cookie *http.Cookie, fragment bool) *http.Request {
	form := url.Values{"city": {city}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	if fragment {
		req.Header.Set(FragmentHeader, "1")
	}
	return req
}

type errorBody struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

func TestHandler_GetPage(t *testing.T) {
	f := newHandlerFixture(t, true, nil, nil)
	w := httptest.NewRecorder()
	f.router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, `id="weather-form"`) || !strings.Contains(body, `id="weather-output"`) {
		t.Error("page should contain the form and the output region")
	}
	if strings.Contains(body, "weather-forecast") || strings.Contains(body, "weather-error") {
		t.Error("initial page should have an empty output region")
	}
}

func TestHandler_PostPage_Success(t *testing.T) {
	f := newHandlerFixture(t, true, nil, nil)
	w := httptest.NewRecorder()
	f.router().ServeHTTP(w, postCity("  Berlin ", nil, false))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"Berlin, DE", "20.6°C", "broken clouds", "71%", "4.1 m/s"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
	if !strings.Contains(body, `value="Berlin"`) {
		t.Error("form should be pre-filled with the trimmed query")
	}

	var session *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == SessionCookie {
			session = c
		}
	}
	if session == nil || session.Value == "" {
		t.Fatal("first submission should issue a session cookie")
	}
}

func TestHandler_PostPage_ReusesSessionCookie(t *testing.T) {
	f := newHandlerFixture(t, true, nil, nil)
	w := httptest.NewRecorder()
	f.router().ServeHTTP(w, postCity("Berlin", &http.Cookie{Name: SessionCookie, Value: "abc"}, false))

	for _, c := range w.Result().Cookies() {
		if c.Name == SessionCookie {
			t.Errorf("existing session should not be reissued, got %q", c.Value)
		}
	}
}

func TestHandler_PostPage_Fragment(t *testing.T) {
	f := newHandlerFixture(t, true, nil, nil)
	w := httptest.NewRecorder()
	f.router().ServeHTTP(w, postCity("Berlin", nil, true))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.HasPrefix(body, `<section id="weather-output"`) {
		t.Errorf("fragment should be the output region only, got %q", body)
	}
	if strings.Contains(body, "<form") {
		t.Error("fragment should not contain the form")
	}
}

func TestHandler_PostPage_LookupErrors(t *testing.T) {
	tests := []struct {
		name        string
		resolveErr  error
		forecastErr error
		want        string
	}{
		{"city not found", client.ErrCityNotFound, nil, widget.MessageCityNotFound},
		{"city name", client.ErrCityNameLookup, nil, widget.MessageCityName},
		{"forecast", nil, client.ErrForecastNotFound, widget.MessageWeatherNotFound},
		{"unexpected", errors.New("boom"), nil, widget.MessageGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture(t, true, nil, nil)
			f.resolver.err = tt.resolveErr
			f.forecasts.err = tt.forecastErr

			w := httptest.NewRecorder()
			f.router().ServeHTTP(w, postCity("Atlantis", nil, true))

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("body = %q, want message %q", w.Body.String(), tt.want)
			}
		})
	}
}

func TestHandler_PostPage_InvalidCity(t *testing.T) {
	t.Run("message shown", func(t *testing.T) {
		f := newHandlerFixture(t, true, nil, nil)
		w := httptest.NewRecorder()
		f.router().ServeHTTP(w, postCity("a", nil, true))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if !strings.Contains(w.Body.String(), widget.MessageCityTooShort) {
			t.Errorf("body = %q, want validation message", w.Body.String())
		}
		if f.resolver.callCount() != 0 {
			t.Error("invalid input must not reach the resolver")
		}
	})
	t.Run("nothing rendered", func(t *testing.T) {
		f := newHandlerFixture(t, false, nil, nil)
		w := httptest.NewRecorder()
		f.router().ServeHTTP(w, postCity(strings.Repeat("x", 101), nil, true))

		if w.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", w.Code)
		}
		if w.Body.Len() != 0 {
			t.Errorf("body = %q, want empty", w.Body.String())
		}
	})
}

func TestHandler_PostPage_Superseded(t *testing.T) {
	f := newHandlerFixture(t, true, nil, nil)
	f.resolver.blockCity = "paris"
	f.resolver.started = make(chan struct{})
	f.resolver.release = make(chan struct{})
	defer close(f.resolver.release)
	router := f.router()
	cookie := &http.Cookie{Name: SessionCookie, Value: "session-1"}

	first := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		router.ServeHTTP(first, postCity("Paris", cookie, true))
	}()

	select {
	case <-f.resolver.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first submission never reached the resolver")
	}

	second := httptest.NewRecorder()
	router.ServeHTTP(second, postCity("Berlin", cookie, true))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("first submission was not cancelled")
	}

	if first.Code != http.StatusConflict {
		t.Errorf("first status = %d, want 409", first.Code)
	}
	if first.Body.Len() != 0 {
		t.Errorf("superseded submission rendered %q", first.Body.String())
	}
	if second.Code != http.StatusOK || !strings.Contains(second.Body.String(), "Berlin") {
		t.Errorf("second submission = %d %q, want the Berlin forecast", second.Code, second.Body.String())
	}
}

func TestHandler_GetWeatherJSON_Success(t *testing.T) {
	f := newHandlerFixture(t, true, nil, nil)
	w := httptest.NewRecorder()
	f.router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/weather/Berlin", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got struct {
		City         string  `json:"city"`
		TemperatureC float64 `json:"temperatureC"`
		Description  string  `json:"description"`
		Humidity     int     `json:"humidity"`
		WindSpeed    float64 `json:"windSpeed"`
	}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.City != "Berlin, DE" || got.TemperatureC != 20.6 || got.Humidity != 71 || got.WindSpeed != 4.1 {
		t.Errorf("response = %+v", got)
	}
}

func TestHandler_GetWeatherJSON_Errors(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		resolveErr  error
		forecastErr error
		wantStatus  int
		wantCode    string
	}{
		{"too short", "/api/weather/a", nil, nil, http.StatusBadRequest, "INVALID_CITY"},
		{"city not found", "/api/weather/Atlantis", client.ErrCityNotFound, nil, http.StatusNotFound, "CITY_NOT_FOUND"},
		{"forecast not found", "/api/weather/Berlin", nil, client.ErrForecastNotFound, http.StatusNotFound, "WEATHER_NOT_FOUND"},
		{"city name", "/api/weather/Berlin", client.ErrCityNameLookup, nil, http.StatusBadGateway, "CITY_NAME_UNAVAILABLE"},
		{"upstream", "/api/weather/Berlin", nil, errors.Join(client.ErrForecastNotFound, client.ErrUpstreamFailure), http.StatusBadGateway, "UPSTREAM_UNAVAILABLE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture(t, true, nil, nil)
			f.resolver.err = tt.resolveErr
			f.forecasts.err = tt.forecastErr

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set(CorrelationIDHeader, "req-123")
			w := httptest.NewRecorder()
			f.router().ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body errorBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error.Code != tt.wantCode {
				t.Errorf("error.code = %q, want %q", body.Error.Code, tt.wantCode)
			}
			if body.Error.RequestID != "req-123" {
				t.Errorf("error.requestId = %q, want req-123", body.Error.RequestID)
			}
			if body.Error.Message == "" {
				t.Error("error.message is empty")
			}
		})
	}
}

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	return resp
}

func TestHandler_GetHealth(t *testing.T) {
	lifecycle.SetPhase(lifecycle.PhaseServing)
	defer lifecycle.SetPhase(lifecycle.PhaseStarting)

	pinged := false
	f := newHandlerFixture(t, true, &HealthConfig{
		StorePing:    func(context.Context) error { pinged = true; return nil },
		StoreBackend: "sqlite",
	}, nil)

	w := httptest.NewRecorder()
	f.handler.GetHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeHealth(t, w)
	if resp["status"] != "healthy" || resp["service"] != "weather-widget" {
		t.Errorf("response = %v", resp)
	}
	checks, _ := resp["checks"].(map[string]interface{})
	if checks["store_sqlite"] != "healthy" || checks["weatherApi"] != "healthy" {
		t.Errorf("checks = %v", checks)
	}
	if !pinged {
		t.Error("store ping was not called")
	}
	if _, err := time.Parse(time.RFC3339, resp["timestamp"].(string)); err != nil {
		t.Errorf("timestamp: %v", err)
	}
}

func TestHandler_GetHealth_StoreUnreachable(t *testing.T) {
	lifecycle.SetPhase(lifecycle.PhaseServing)
	defer lifecycle.SetPhase(lifecycle.PhaseStarting)

	f := newHandlerFixture(t, true, &HealthConfig{
		StorePing: func(context.Context) error { return errors.New("connection refused") },
	}, nil)
	w := httptest.NewRecorder()
	f.handler.GetHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 (store failures are reported, not fatal)", w.Code)
	}
	checks, _ := decodeHealth(t, w)["checks"].(map[string]interface{})
	if checks["store"] != "unhealthy" {
		t.Errorf("checks = %v, want store unhealthy", checks)
	}
}

func TestHandler_GetHealth_Phases(t *testing.T) {
	tests := []struct {
		phase lifecycle.Phase
		want  string
	}{
		{lifecycle.PhaseStarting, "starting"},
		{lifecycle.PhaseDraining, "shutting-down"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			lifecycle.SetPhase(tt.phase)
			defer lifecycle.SetPhase(lifecycle.PhaseStarting)

			f := newHandlerFixture(t, true, nil, nil)
			w := httptest.NewRecorder()
			f.handler.GetHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != http.StatusServiceUnavailable {
				t.Errorf("status = %d, want 503", w.Code)
			}
			if got := decodeHealth(t, w)["status"]; got != tt.want {
				t.Errorf("status = %v, want %s", got, tt.want)
			}
		})
	}
}

func TestHandler_GetHealth_LogsTransition(t *testing.T) {
	lifecycle.SetPhase(lifecycle.PhaseServing)
	defer lifecycle.SetPhase(lifecycle.PhaseStarting)

	core, logs := observer.New(zap.InfoLevel)
	f := newHandlerFixture(t, true, &HealthConfig{
		Degraded: degraded.Policy{Window: time.Minute, ErrorPct: 50},
	}, zap.New(core))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	traffic.RecordSuccess()
	traffic.RecordSuccess()
	w := httptest.NewRecorder()
	f.handler.GetHealth(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("first GetHealth status = %d, want 200", w.Code)
	}
	if n := logs.FilterMessage("health status transition").Len(); n != 0 {
		t.Fatalf("first call logged %d transitions, want 0", n)
	}

	traffic.RecordError()
	traffic.RecordError()
	w2 := httptest.NewRecorder()
	f.handler.GetHealth(w2, req)
	if w2.Code != http.StatusServiceUnavailable {
		t.Fatalf("second GetHealth status = %d, want 503", w2.Code)
	}
	checks, _ := decodeHealth(t, w2)["checks"].(map[string]interface{})
	if checks["weatherApi"] != "unhealthy" {
		t.Errorf("checks = %v, want weatherApi unhealthy", checks)
	}

	entries := logs.FilterMessage("health status transition").All()
	if len(entries) != 1 {
		t.Fatalf("want 1 transition log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["previous_status"] != "healthy" || fields["current_status"] != "degraded" || fields["reason"] != "error_rate_breach" {
		t.Errorf("transition fields = %v", fields)
	}

	w3 := httptest.NewRecorder()
	f.handler.GetHealth(w3, req)
	if n := logs.FilterMessage("health status transition").Len(); n != 1 {
		t.Errorf("unchanged status should not log; transitions = %d, want 1", n)
	}
}
