package marketplace

import "testing"

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want float64
	}{
		{"plain", "100 zł", 100.0},
		{"comma decimal", "200,50 zł", 200.5},
		{"space thousands", "1 234,56 zł", 1234.56},
		{"dot thousands", "1.234,56 zł", 1234.56},
		{"non-breaking space", "2\u00a0500 zł", 2500.0},
		{"currency prefix", "PLN 75", 75.0},
		{"negotiable suffix", "45 złdo negocjacji", 45.0},
		{"letters only", "abc", 0.0},
		{"empty", "", 0.0},
		{"free", "Za darmo", 0.0},
		{"separators only", ",.", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParsePrice(tt.in); got != tt.want {
				t.Errorf("ParsePrice(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
