package deskctl

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		out  string
	}{
		{"short", "zoom", 10, "zoom"},
		{"ascii", "abcdef", 3, "abc"},
		{"rune boundary", "aéé", 3, "aé"},
		{"inside rune", "aéé", 4, "aé"},
		{"three byte rune", "a€", 3, "a"},
		{"invalid input", "a\xffb", 10, "a�b"},
		{"zero", "é", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.in, tt.max)
			if got != tt.out {
				t.Fatalf("Truncate(%q, %d) = %q, expected %q", tt.in, tt.max, got, tt.out)
			}
			if !utf8.ValidString(got) || len(got) > tt.max {
				t.Fatalf("Truncate(%q, %d) = %q is not valid", tt.in, tt.max, got)
			}
		})
	}

	long := strings.Repeat("é", 1000)
	if got := Truncate(long, maxErrorLength); len(got) != maxErrorLength || !utf8.ValidString(got) {
		t.Fatalf("Unexpected truncation to %d bytes", len(got))
	}
}
