package validation

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Length bounds for a normalized city, inclusive, counted in runes.
const (
	MinCityLength = 2
	MaxCityLength = 100
)

// ErrCityTooShort is returned when the normalized city is shorter than MinCityLength.
var ErrCityTooShort = errors.New("city too short")

// ErrCityTooLong is returned when the normalized city is longer than MaxCityLength.
var ErrCityTooLong = errors.New("city too long")

// Normalize trims surrounding whitespace and lowercases the input.
// The result is used both as the cache key and as the geocoding query.
func Normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// IsValid reports whether a normalized city is within the length bounds.
// Digits, punctuation and inner whitespace are all accepted.
func IsValid(normalized string) bool {
	return checkLength(normalized) == nil
}

// Validate normalizes raw and checks it. Returns the normalized city or
// ErrCityTooShort / ErrCityTooLong.
func Validate(raw string) (string, error) {
	s := Normalize(raw)
	if err := checkLength(s); err != nil {
		return "", err
	}
	return s, nil
}

func checkLength(s string) error {
	n := utf8.RuneCountInString(s)
	if n < MinCityLength {
		return ErrCityTooShort
	}
	if n > MaxCityLength {
		return ErrCityTooLong
	}
	return nil
}
