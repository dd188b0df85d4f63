package widget

import (
	"errors"

	"github.com/kjstillabower/weather-widget/internal/client"
	"github.com/kjstillabower/weather-widget/internal/validation"
)

// Messages shown in the output region.
const (
	MessageCityNotFound    = "City not found. Please try again."
	MessageCityName        = "Failed to get city name. Please try again."
	MessageWeatherNotFound = "Weather data not found. Please try again later."
	MessageGeneric         = "Something went wrong. Please try again later."
	MessageCityTooShort    = "Please enter a city name of at least 2 characters."
	MessageCityTooLong     = "Please enter a city name of at most 100 characters."
)

// Lookup outcomes used in metrics.
const (
	OutcomeSuccess         = "success"
	OutcomeInvalid         = "invalid"
	OutcomeCityNotFound    = "city_not_found"
	OutcomeCityName        = "city_name"
	OutcomeWeatherNotFound = "weather_not_found"
	OutcomeError           = "error"
	OutcomeSuperseded      = "superseded"
)

// MessageFor maps a lookup or validation error to its user-facing message.
func MessageFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, validation.ErrCityTooShort):
		return MessageCityTooShort
	case errors.Is(err, validation.ErrCityTooLong):
		return MessageCityTooLong
	case errors.Is(err, client.ErrCityNotFound):
		return MessageCityNotFound
	case errors.Is(err, client.ErrCityNameLookup):
		return MessageCityName
	case errors.Is(err, client.ErrForecastNotFound):
		return MessageWeatherNotFound
	default:
		return MessageGeneric
	}
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrSuperseded):
		return OutcomeSuperseded
	case IsValidationError(err):
		return OutcomeInvalid
	case errors.Is(err, client.ErrCityNotFound):
		return OutcomeCityNotFound
	case errors.Is(err, client.ErrCityNameLookup):
		return OutcomeCityName
	case errors.Is(err, client.ErrForecastNotFound):
		return OutcomeWeatherNotFound
	default:
		return OutcomeError
	}
}

// IsValidationError reports whether err came from input validation.
func IsValidationError(err error) bool {
	return errors.Is(err, validation.ErrCityTooShort) || errors.Is(err, validation.ErrCityTooLong)
}
