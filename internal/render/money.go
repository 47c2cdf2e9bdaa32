package render

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Money formats an amount in currency, e.g. "$1,800.00". Unknown currencies
// fall back to a plain two-decimal number followed by the code.
func Money(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		s := amount.StringFixed(2)
		if currency != "" {
			s += " " + currency
		}
		return s
	}

	factor, _ := decimal.NewFromInt(10).PowInt32(int32(cur.Fraction))
	minor := amount.Mul(factor).Round(0)
	return money.New(minor.IntPart(), cur.Code).Display()
}

// Decimal formats a nullable decimal, "-" when unknown.
func Decimal(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.String()
}

// MoneyPtr formats a nullable amount, "-" when unknown.
func MoneyPtr(d *decimal.Decimal, currency string) string {
	if d == nil {
		return "-"
	}
	return Money(*d, currency)
}
