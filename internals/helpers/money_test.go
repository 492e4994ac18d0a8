package helper

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestBelowPercentOfUsesExactThreshold(t *testing.T) {
	cases := []struct {
		amount, base, percent string
		below                 bool
	}{
		{"300.00", "1000.01", "30", true},
		{"300.01", "1000.01", "30", false},
		{"3000", "10000", "30", false},
		{"2999.99", "10000", "30", true},
		{"0", "0", "30", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.below, BelowPercentOf(d(c.amount), d(c.base), d(c.percent)), "%s vs %s%% of %s", c.amount, c.percent, c.base)
	}
}

func TestPercentOfRoundsUp(t *testing.T) {
	assert.True(t, PercentOf(d("1000.01"), d("30")).Equal(d("300.01")))
	assert.True(t, PercentOf(d("10000"), d("30")).Equal(d("3000")))
}

func TestValidPercent(t *testing.T) {
	assert.True(t, ValidPercent(d("0")))
	assert.True(t, ValidPercent(d("100")))
	assert.False(t, ValidPercent(d("100.01")))
	assert.False(t, ValidPercent(d("-1")))
}
