package billing

import "testing"

func TestFormatINR(t *testing.T) {
	tests := []struct {
		amount float64
		want   string
	}{
		{0, "₹0"},
		{1, "₹1"},
		{999, "₹999"},
		{1000, "₹1,000"},
		{6372, "₹6,372"},
		{20650, "₹20,650"},
		{100000, "₹1,00,000"},
		{1234567, "₹12,34,567"},
		{12345678, "₹1,23,45,678"},
		{106.2, "₹106.20"},
		{41.3, "₹41.30"},
		{-600, "-₹600"},
	}
	for _, tt := range tests {
		if got := FormatINR(tt.amount); got != tt.want {
			t.Errorf("FormatINR(%v) = %q, want %q", tt.amount, got, tt.want)
		}
	}
}
