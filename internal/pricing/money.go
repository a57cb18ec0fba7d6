package pricing

import (
	"strconv"
	"strings"
)

// Money represents a monetary value stored in minor units (øre).
type Money = int64

// Rates holds the family discount rates expressed in basis points (1/100 of a percent).
type Rates struct {
	SingleCourseBps int64
	TwoCoursesBps   int64
	ThreePlusBps    int64
	ToddlerBps      int64
}

// DefaultRates returns the studio's standard family discount rates.
func DefaultRates() Rates {
	return Rates{
		SingleCourseBps: 1500,
		TwoCoursesBps:   3000,
		ThreePlusBps:    5000,
		ToddlerBps:      3000,
	}
}

func (r Rates) isZero() bool {
	return r == Rates{}
}

func (r Rates) forCount(count int) int64 {
	switch {
	case count <= 0:
		return 0
	case count == 1:
		return r.SingleCourseBps
	case count == 2:
		return r.TwoCoursesBps
	default:
		return r.ThreePlusBps
	}
}

// applyBps returns the floored share of amount described by bps, never more than amount.
func applyBps(amount Money, bps int64) Money {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	discount := (amount * bps) / 10000
	if discount > amount {
		discount = amount
	}
	return discount
}

// FormatNOK renders minor units as a Norwegian krone string, e.g. "1 700,00 kr".
func FormatNOK(m Money) string {
	sign := ""
	if m < 0 {
		sign = "-"
		m = -m
	}
	kroner := strconv.FormatInt(m/100, 10)
	ore := m % 100

	var b strings.Builder
	for i, r := range kroner {
		if i > 0 && (len(kroner)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	oreStr := strconv.FormatInt(ore, 10)
	if ore < 10 {
		oreStr = "0" + oreStr
	}
	return sign + b.String() + "," + oreStr + " kr"
}
