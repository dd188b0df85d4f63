package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/kjstillabower/weather-widget/internal/models"
)

func testForecast(t *testing.T, kelvin float64) models.Forecast {
	t.Helper()
	raw := `{"city":{"name":"Berlin","country":"DE"},"list":[{"main":{"temp":` +
		jsonFloat(kelvin) +
		`,"humidity":71},"weather":[{"main":"Clouds","description":"broken clouds"}],"wind":{"speed":4.1}}]}`
	var f models.Forecast
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		t.Fatalf("unmarshal forecast: %v", err)
	}
	return f
}

func jsonFloat(v float64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestKelvinToCelsius(t *testing.T) {
	tests := []struct {
		kelvin float64
		want   float64
	}{
		{273.15, 0},
		{283.15, 10},
		{293.71, 20.6},
		{300.0, 26.9},
		{263.15, -10},
	}
	for _, tt := range tests {
		if got := KelvinToCelsius(tt.kelvin); got != tt.want {
			t.Errorf("KelvinToCelsius(%v) = %v, want %v", tt.kelvin, got, tt.want)
		}
	}
}

func TestNewForecastView(t *testing.T) {
	view, err := NewForecastView(testForecast(t, 293.71), "Berlin, DE")
	if err != nil {
		t.Fatalf("NewForecastView() error = %v", err)
	}
	want := ForecastView{City: "Berlin, DE", TemperatureC: 20.6, Description: "broken clouds", Humidity: 71, WindSpeed: 4.1}
	if view != want {
		t.Errorf("view = %+v, want %+v", view, want)
	}

	view, _ = NewForecastView(testForecast(t, 293.71), "")
	if view.City != "Berlin" {
		t.Errorf("City fallback = %q, want Berlin", view.City)
	}

	if _, err := NewForecastView(models.Forecast{}, "x"); !errors.Is(err, ErrEmptyForecast) {
		t.Errorf("empty forecast error = %v, want ErrEmptyForecast", err)
	}
}

func TestRenderForecast(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderForecast(&buf, testForecast(t, 293.71), "Berlin, DE"); err != nil {
		t.Fatalf("RenderForecast() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`<section id="weather-output"`,
		"Berlin, DE",
		"20.6°C",
		"broken clouds",
		"71%",
		"4.1 m/s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderError_EscapesMessage(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderError(&buf, "City not found. <b>Please</b> try again."); err != nil {
		t.Fatalf("RenderError() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "City not found. &lt;b&gt;Please&lt;/b&gt; try again.") {
		t.Errorf("message not escaped as plain text:\n%s", out)
	}
	if strings.Contains(out, "Temperature") {
		t.Error("error output should not contain forecast markup")
	}
}

func TestRenderOutput_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderOutput(&buf, Output{}); err != nil {
		t.Fatalf("RenderOutput() error = %v", err)
	}
	if got := buf.String(); got != `<section id="weather-output" aria-live="polite"></section>` {
		t.Errorf("empty output = %q", got)
	}
}

func TestRenderPage(t *testing.T) {
	view := ForecastView{City: "Berlin, DE", TemperatureC: 10, Description: "clear sky", Humidity: 40, WindSpeed: 2}
	var buf bytes.Buffer
	if err := RenderPage(&buf, Page{City: `"berlin"`, Output: Output{Forecast: &view}}); err != nil {
		t.Fatalf("RenderPage() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`<form id="weather-form" method="post" action="/">`,
		`name="city"`,
		`value="&#34;berlin&#34;"`,
		`maxlength="100"`,
		`<section id="weather-output"`,
		"10.0°C",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("page missing %q", want)
		}
	}
}
