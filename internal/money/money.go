// Package money holds the decimal helpers shared by pricing and promo code
// calculations. All amounts carry two fractional digits.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits kept for monetary amounts.
const Places = 2

var hundred = decimal.NewFromInt(100)

// MaxAmount is the largest amount a NUMERIC(12,2) column holds.
var MaxAmount = decimal.RequireFromString("9999999999.99")

// Round rounds d to two places, a trailing 5 going away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Percent returns Round(amount * percent / 100).
func Percent(amount, percent decimal.Decimal) decimal.Decimal {
	return Round(amount.Mul(percent).Div(hundred))
}

// LineTotal returns Round(price * qty).
func LineTotal(price decimal.Decimal, qty int) decimal.Decimal {
	return Round(price.Mul(decimal.NewFromInt(int64(qty))))
}

// String renders d with exactly two fractional digits, e.g. "180.00".
func String(d decimal.Decimal) string {
	return d.StringFixed(Places)
}

// Display renders d rounded to whole units with comma thousands separators,
// e.g. "1,234,567". Used in staff-facing chat messages.
func Display(d decimal.Decimal) string {
	s := d.Round(0).StringFixed(0)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
