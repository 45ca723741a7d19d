// Package chart turns raw market_chart payloads into chart-ready series.
package chart

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Round rounds x to the given number of decimals, half away from zero.
// NaN and infinities round to 0.
func Round(x float64, decimals int32) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return decimal.NewFromFloat(x).Round(decimals).InexactFloat64()
}

// round2 is the precision every ChartPoint field is stored at.
func round2(x float64) float64 {
	return Round(x, 2)
}

// Labeler formats display labels for chart points.
type Labeler struct {
	// Location is the zone labels are rendered in. Nil means UTC.
	Location *time.Location
}

func (l Labeler) at(ts int64) time.Time {
	loc := l.Location
	if loc == nil {
		loc = time.UTC
	}
	return time.UnixMilli(ts).In(loc)
}

// Date returns the timeframe-sensitive label for ts: time-only for a day or
// less, weekday and time up to a week, month and day up to a month, month
// and year beyond that.
func (l Labeler) Date(ts int64, days int) string {
	t := l.at(ts)
	switch {
	case days <= 1:
		return t.Format("15:04")
	case days <= 7:
		return t.Format("Mon 15:04")
	case days <= 30:
		return t.Format("Jan 2")
	default:
		return t.Format("Jan 2006")
	}
}

// Time returns the hour:minute label for ts.
func (l Labeler) Time(ts int64) string {
	return l.at(ts).Format("15:04")
}
