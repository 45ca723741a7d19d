package chart

import (
	"time"

	"github.com/rewired-gh/cryptodash/internal/models"
)

// Statistics summarizes a normalized series. An empty series yields zeros.
func Statistics(points []models.ChartPoint) models.SeriesStats {
	if len(points) == 0 {
		return models.SeriesStats{}
	}

	var w welford
	first := points[0].Price
	current := points[len(points)-1].Price
	high, low := first, first
	var sum, volume float64
	for _, p := range points {
		if p.Price > high {
			high = p.Price
		}
		if p.Price < low {
			low = p.Price
		}
		sum += p.Price
		volume += p.Volume
		w.add(p.Price)
	}

	return models.SeriesStats{
		Current:       round2(current),
		High:          round2(high),
		Low:           round2(low),
		Average:       round2(sum / float64(len(points))),
		Change:        round2(current - first),
		ChangePercent: percentChange(first, current),
		Volume:        round2(volume),
		StartPrice:    round2(first),
		EndPrice:      round2(current),
		Volatility:    round2(w.stddev()),
	}
}

// DefaultCandleInterval is used when Candlesticks gets a non-positive interval.
const DefaultCandleInterval = time.Hour

// Candlesticks buckets raw price samples into OHLC candles aligned on
// interval. Samples are expected in timestamp order; a sample that lands in
// a different bucket than its predecessor opens a new candle.
func (n *Normalizer) Candlesticks(prices []models.Sample, interval time.Duration) []models.Candle {
	if interval <= 0 {
		interval = DefaultCandleInterval
	}
	bucket := interval.Milliseconds()

	candles := make([]models.Candle, 0)
	var current *models.Candle
	for _, s := range prices {
		start := s.Timestamp / bucket * bucket
		if current == nil || current.Timestamp != start {
			if current != nil {
				candles = append(candles, *current)
			}
			price := round2(s.Value)
			current = &models.Candle{
				Timestamp: start,
				Date:      n.Labels.Date(start, 7),
				Time:      n.Labels.Time(start),
				Open:      price,
				High:      price,
				Low:       price,
				Close:     price,
			}
			continue
		}
		price := round2(s.Value)
		current.High = max(current.High, price)
		current.Low = min(current.Low, price)
		current.Close = price
	}
	if current != nil {
		candles = append(candles, *current)
	}
	return candles
}

// FilterWindow keeps the points no older than window before now. A zero
// window keeps everything.
func FilterWindow(points []models.ChartPoint, window time.Duration, now time.Time) []models.ChartPoint {
	if window <= 0 || len(points) == 0 {
		return points
	}
	cutoff := now.Add(-window).UnixMilli()
	out := make([]models.ChartPoint, 0, len(points))
	for _, p := range points {
		if p.Timestamp >= cutoff {
			out = append(out, p)
		}
	}
	return out
}
