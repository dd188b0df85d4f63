// Package render writes the widget page and its output region.
package render

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"math"

	"github.com/kjstillabower/weather-widget/internal/models"
	"github.com/kjstillabower/weather-widget/internal/validation"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// ErrEmptyForecast is returned when a forecast has no entries to show.
var ErrEmptyForecast = errors.New("forecast has no entries")

// ForecastView is what the widget displays, taken from the first entry of
// the forecast time series.
type ForecastView struct {
	City         string  `json:"city"`
	TemperatureC float64 `json:"temperatureC"`
	Description  string  `json:"description"`
	Humidity     int     `json:"humidity"`
	WindSpeed    float64 `json:"windSpeed"`
}

// Output is the content of the output region: a forecast, an error
// message, or nothing.
type Output struct {
	Forecast *ForecastView
	Error    string
}

// Page is the full widget page.
type Page struct {
	// City pre-fills the form field.
	City   string
	Output Output
}

// KelvinToCelsius converts and rounds to one decimal place.
func KelvinToCelsius(k float64) float64 {
	return math.Round((k-273.15)*10) / 10
}

// NewForecastView builds the view for city from the first forecast entry.
// An empty city falls back to the name in the payload.
func NewForecastView(forecast models.Forecast, city string) (ForecastView, error) {
	entry, ok := forecast.First()
	if !ok {
		return ForecastView{}, ErrEmptyForecast
	}
	if city == "" {
		city = forecast.City.Name
	}
	var description string
	if len(entry.Weather) > 0 {
		description = entry.Weather[0].Description
		if description == "" {
			description = entry.Weather[0].Main
		}
	}
	return ForecastView{
		City:         city,
		TemperatureC: KelvinToCelsius(entry.Main.Temp),
		Description:  description,
		Humidity:     entry.Main.Humidity,
		WindSpeed:    entry.Wind.Speed,
	}, nil
}

// RenderForecast writes the output region holding the forecast for city.
func RenderForecast(w io.Writer, forecast models.Forecast, city string) error {
	view, err := NewForecastView(forecast, city)
	if err != nil {
		return err
	}
	return RenderOutput(w, Output{Forecast: &view})
}

// RenderError writes the output region holding message as plain text.
func RenderError(w io.Writer, message string) error {
	return RenderOutput(w, Output{Error: message})
}

// RenderOutput writes the output region only. Each call produces the whole
// region, replacing whatever was shown before.
func RenderOutput(w io.Writer, out Output) error {
	if err := templates.ExecuteTemplate(w, "output", out); err != nil {
		return fmt.Errorf("render output: %w", err)
	}
	return nil
}

// RenderPage writes the complete page: the form and the output region.
func RenderPage(w io.Writer, p Page) error {
	data := struct {
		Page
		MaxLength int
	}{Page: p, MaxLength: validation.MaxCityLength}
	if err := templates.ExecuteTemplate(w, "page", data); err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	return nil
}
