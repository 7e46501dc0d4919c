package quote

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatCurrency renders d as US dollars with thousands separators, e.g. -$1,234.50
func FormatCurrency(d decimal.Decimal) string {
	sign := ""
	if d.Round(2).IsNegative() {
		sign = "-"
	}
	abs := d.Abs().Round(2)
	whole := abs.IntPart()
	cents := abs.Sub(decimal.NewFromInt(whole)).StringFixed(2)[1:]
	return sign + "$" + FormatNumber(whole) + cents
}

// FormatPercent renders d with an explicit sign and two decimals, e.g. +0.86%
func FormatPercent(d decimal.Decimal) string {
	s := d.StringFixed(2)
	if !d.Round(2).IsNegative() {
		s = "+" + s
	}
	return s + "%"
}

// FormatNumber renders n with thousands separators
func FormatNumber(n int64) string {
	return message.NewPrinter(language.English).Sprintf("%d", n)
}
