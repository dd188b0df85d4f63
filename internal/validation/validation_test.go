package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trim and lower", "  Berlin  ", "berlin"},
		{"already normalized", "berlin", "berlin"},
		{"mixed case", "SaN FrAnCiScO", "san francisco"},
		{"tabs and newlines", "\tParis\n", "paris"},
		{"inner whitespace kept", " New   York ", "new   york"},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		{"unicode", " MÜNCHEN ", "münchen"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsValid_Bounds(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"empty", "", false},
		{"one char", "x", false},
		{"two chars", "xy", true},
		{"digits accepted", "42", true},
		{"punctuation accepted", "!?", true},
		{"exactly max", strings.Repeat("a", MaxCityLength), true},
		{"one over max", strings.Repeat("a", MaxCityLength+1), false},
		{"two runes multibyte", "üß", true},
		{"max runes multibyte", strings.Repeat("ü", MaxCityLength), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.in); got != tt.want {
				t.Errorf("IsValid(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// TestIsValid_MatchesNormalizedLength checks that validity of a raw input
// depends only on the rune length of its normalized form.
func TestIsValid_MatchesNormalizedLength(t *testing.T) {
	inputs := []string{"  x  ", " ab ", "\t\n", "Berlin", "  " + strings.Repeat("Z", 100) + "  ", strings.Repeat("Z", 101)}
	for _, in := range inputs {
		n := len([]rune(Normalize(in)))
		want := n >= 2 && n <= 100
		if got := IsValid(Normalize(in)); got != want {
			t.Errorf("IsValid(Normalize(%q)) = %v, want %v (len %d)", in, got, want, n)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{"valid padded", "  Berlin  ", "berlin", nil},
		{"too short", "x", "", ErrCityTooShort},
		{"empty after trim", "    ", "", ErrCityTooShort},
		{"too long", strings.Repeat("a", 101), "", ErrCityTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate(%q) error = %v, want %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Validate(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
