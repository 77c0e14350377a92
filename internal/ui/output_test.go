package ui

import (
	"strings"
	"testing"
)

func TestCenter(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		width    int
		expected string
	}{
		{
			name:     "text shorter than width",
			text:     "Hello",
			width:    15,
			expected: "     Hello",
		},
		{
			name:     "text same as width",
			text:     "Hello",
			width:    5,
			expected: "Hello",
		},
		{
			name:     "text longer than width",
			text:     "Hello World",
			width:    5,
			expected: "Hello World",
		},
		{
			name:     "even padding",
			text:     "Test",
			width:    10,
			expected: "   Test",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := center(tt.text, tt.width)
			if result != tt.expected {
				t.Errorf("center(%q, %d) = %q; want %q", tt.text, tt.width, result, tt.expected)
			}
		})
	}
}

func TestColorFunctions(t *testing.T) {
	// These tests verify that the color functions don't panic
	// We can't easily test the actual color output without mocking
	tests := []struct {
		name string
		fn   func()
	}{
		{
			name: "Header",
			fn:   func() { Header("OFX Import") },
		},
		{
			name: "Step",
			fn:   func() { Step(1, 4, "Parsing statement") },
		},
		{
			name: "Success",
			fn:   func() { Success("2 transactions imported") },
		},
		{
			name: "Info",
			fn:   func() { Info("1 duplicate skipped") },
		},
		{
			name: "Warning",
			fn:   func() { Warning("transaction without fitid") },
		},
		{
			name: "Error",
			fn:   func() { Error("commit failed") },
		},
		{
			name: "BlueText",
			fn:   func() { BlueText("preview only") },
		},
		{
			name: "YellowText",
			fn:   func() { YellowText("fallback extraction used") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Should not panic
			tt.fn()
		})
	}
}

func TestHeaderFormat(t *testing.T) {
	// Verify that header uses the correct line length
	text := "Test"
	expectedLineLength := 60

	// Check that center produces correct padding
	centered := center(text, expectedLineLength)

	// The centered text should have padding added
	if !strings.Contains(centered, text) {
		t.Errorf("center() should contain original text %q", text)
	}
}
