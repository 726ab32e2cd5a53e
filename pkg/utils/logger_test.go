package utils

import "testing"

func TestMaskSensitiveString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "long key keeps edges",
			input:    "sk-1234567890abcdef",
			expected: "sk-1****cdef",
		},
		{
			name:     "short key fully masked",
			input:    "12345678",
			expected: "****",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskSensitiveString(tt.input); got != tt.expected {
				t.Errorf("MaskSensitiveString(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
