package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRound(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.005", "1.01"},
		{"1.004", "1.00"},
		{"2.675", "2.68"},
		{"0.125", "0.13"},
		{"10", "10.00"},
		{"-1.005", "-1.01"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Round(decimal.RequireFromString(tt.in))
			assert.Equal(t, tt.want, String(got))
		})
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		percent string
		want    string
	}{
		{"ten percent", "200.00", "10", "20.00"},
		{"half cent rounds up", "0.05", "10", "0.01"},
		{"fractional percent", "99.99", "12.5", "12.50"},
		{"full discount", "45.10", "100", "45.10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percent(decimal.RequireFromString(tt.amount), decimal.RequireFromString(tt.percent))
			assert.Equal(t, tt.want, String(got))
		})
	}
}

func TestLineTotal(t *testing.T) {
	assert.Equal(t, "300.00", String(LineTotal(decimal.RequireFromString("100.00"), 3)))
	assert.Equal(t, "0.03", String(LineTotal(decimal.RequireFromString("0.005"), 5)))
}

func TestDisplay(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0"},
		{"999", "999"},
		{"1000", "1,000"},
		{"1234567.49", "1,234,567"},
		{"150000.50", "150,001"},
		{"-25000", "-25,000"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Display(decimal.RequireFromString(tt.in)))
		})
	}
}
