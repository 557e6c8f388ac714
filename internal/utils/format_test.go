package utils

import (
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"zero", 0, "0s"},
		{"seconds", 45 * time.Second, "45s"},
		{"rounds seconds", 1500 * time.Millisecond, "2s"},
		{"one minute", time.Minute, "1m"},
		{"rounds minutes", 2*time.Minute + 40*time.Second, "3m"},
		{"one hour", time.Hour, "1.0h"},
		{"fractional hours", 90 * time.Minute, "1.5h"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FormatDuration(tt.duration)
			if result != tt.expected {
				t.Errorf("FormatDuration(%v) = %s; want %s", tt.duration, result, tt.expected)
			}
		})
	}
}

func TestTruncateText(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxLen   int
		expected string
	}{
		{"short text", "hello", 10, "hello"},
		{"exact length", "hello", 5, "hello"},
		{"truncated", "hello world", 8, "hello..."},
		{"newlines removed", "line1\nline2", 20, "line1 line2"},
		{"tiny max", "hello", 2, "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := TruncateText(tt.text, tt.maxLen)
			if result != tt.expected {
				t.Errorf("TruncateText(%q, %d) = %q; want %q", tt.text, tt.maxLen, result, tt.expected)
			}
		})
	}
}

func TestLocalPart(t *testing.T) {
	tests := map[string]string{
		"alice@example.com": "alice",
		"bob":               "bob",
		"@example.com":      "@example.com",
	}
	for in, want := range tests {
		if got := LocalPart(in); got != want {
			t.Errorf("LocalPart(%q) = %q; want %q", in, got, want)
		}
	}
}
