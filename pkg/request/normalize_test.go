package request

import "testing"

func TestNormalizeProvider(t *testing.T) {
	tests := []struct {
		host     string
		expected string
	}{
		{"en.wikipedia.org", "wikipedia"},
		{"fr.wikipedia.org", "wikipedia"},
		{"generativelanguage.googleapis.com", "gemini"},
		{"places.example.com", "places.example.com"},
		{"127.0.0.1:8080", "127.0.0.1"},
		{"other.com", "other.com"},
	}

	for _, tt := range tests {
		got := normalizeProvider(tt.host)
		if got != tt.expected {
			t.Errorf("normalizeProvider(%q) = %q; want %q", tt.host, got, tt.expected)
		}
	}
}
