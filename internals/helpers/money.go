package helper

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PercentOf returns base × percent / 100, rounded up to 2 places so the
// figure shown to a payer is always enough.
func PercentOf(base decimal.Decimal, percent decimal.Decimal) decimal.Decimal {
	return base.Mul(percent).Div(hundred).RoundCeil(2)
}

// ValidPercent reports 0 ≤ p ≤ 100.
func ValidPercent(p decimal.Decimal) bool {
	return !p.IsNegative() && !p.GreaterThan(hundred)
}

// BelowPercentOf reports amount < base × percent / 100. The threshold is not
// rounded, so 300.00 is below 30% of 1000.01.
func BelowPercentOf(amount, base, percent decimal.Decimal) bool {
	return amount.Mul(hundred).LessThan(base.Mul(percent))
}

// Ratio returns part / whole × 100; zero when whole is zero.
func Ratio(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).Div(whole)
}

// zero-decimal currencies; everything else uses two minor digits
var zeroDecimal = map[string]bool{"JPY": true, "KRW": true, "VND": true, "CLP": true, "UGX": true}

func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	if zeroDecimal[strings.ToUpper(currency)] {
		return amount.Round(0).IntPart()
	}
	return amount.Mul(hundred).Round(0).IntPart()
}

func FromMinorUnits(minor int64, currency string) decimal.Decimal {
	if zeroDecimal[strings.ToUpper(currency)] {
		return decimal.NewFromInt(minor)
	}
	return decimal.NewFromInt(minor).Div(hundred)
}
