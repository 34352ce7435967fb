package core

import (
	"errors"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"12.34", 12.34},
		{"12,34", 12.34},
		{"12", 12.00},
		{"12.345", 12.35}, // half-up on the third decimal
		{"12.344", 12.34},
		{"12.346", 12.35},
		{"0.01", 0.01},
		{" 7.5 ", 7.50},
	}
	for i, tc := range cases {
		got, err := ParseAmount(tc.in)
		if err != nil {
			t.Fatalf("case %d (%q): unexpected error: %v", i, tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("case %d (%q): got %v, want %v", i, tc.in, got, tc.want)
		}
	}
}

func TestParseAmountInvalid(t *testing.T) {
	bads := []string{"", "abc", "1.2.3", "-5", "+5", "0", "0.00", "12x"}
	for i, in := range bads {
		if _, err := ParseAmount(in); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d (%q): expected ErrValidation, got %v", i, in, err)
		}
	}
}

func TestRound2(t *testing.T) {
	if got := Round2(13.333333333333334); got != 13.33 {
		t.Fatalf("got %v, want 13.33", got)
	}
	if got := Round2(19.996); got != 20.00 {
		t.Fatalf("got %v, want 20.00", got)
	}
}
