package chart

import (
	"sort"

	"github.com/rewired-gh/cryptodash/internal/models"
)

// MaxPoints is the ceiling on points emitted for one series.
const MaxPoints = 100

// MaxDays is the longest timeframe the pipeline accepts. Longer windows are
// clamped to it.
const MaxDays = 3650

// ClampDays bounds days to [1, MaxDays].
func ClampDays(days int) int {
	return min(max(days, 1), MaxDays)
}

// SeriesSource produces a complete series for a timeframe. The fallback
// generator implements it.
type SeriesSource interface {
	Series(days int) []models.ChartPoint
}

// Normalizer converts raw market_chart payloads into ChartPoints.
type Normalizer struct {
	Labels   Labeler
	Fallback SeriesSource
}

// NewNormalizer creates a normalizer that substitutes fallback output for
// absent or empty payloads.
func NewNormalizer(labels Labeler, fallback SeriesSource) *Normalizer {
	return &Normalizer{Labels: labels, Fallback: fallback}
}

// SampleInterval returns the stride used to downsample n samples covering
// days days. Series of MaxPoints or fewer are kept whole.
func SampleInterval(n, days int) int {
	if n <= MaxPoints {
		return 1
	}
	days = ClampDays(days)
	k := max(ceilDiv(n, MaxPoints), ceilDiv(n, days*24))
	return max(k, 1)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// Normalize downsamples raw into at most MaxPoints points with OHLC and
// change fields. Absent or empty payloads are an expected condition and
// yield the fallback series for the same timeframe.
func (n *Normalizer) Normalize(raw *models.RawSeries, days int) []models.ChartPoint {
	if raw.Empty() {
		if n.Fallback == nil {
			return []models.ChartPoint{}
		}
		return n.Fallback.Series(days)
	}

	prices, volumes := orderedSamples(raw)
	k := SampleInterval(len(prices), days)

	points := make([]models.ChartPoint, 0, len(prices)/k+1)
	for i := 0; i < len(prices); i += k {
		ts := prices[i].Timestamp
		price := round2(prices[i].Value)

		var volume float64
		if i < len(volumes) {
			volume = round2(volumes[i].Value)
		}

		open := price
		if i-k >= 0 {
			open = round2(prices[i-k].Value)
		}
		high, low := windowRange(prices, i, k)

		points = append(points, models.ChartPoint{
			Timestamp: ts,
			Date:      n.Labels.Date(ts, days),
			Time:      n.Labels.Time(ts),
			Price:     price,
			Volume:    volume,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     price,
		})
	}

	return WithChanges(points)
}

// orderedSamples returns prices sorted by timestamp, with volumes permuted
// alongside so they stay paired by original position.
func orderedSamples(raw *models.RawSeries) ([]models.Sample, []models.Sample) {
	isSorted := sort.SliceIsSorted(raw.Prices, func(i, j int) bool {
		return raw.Prices[i].Timestamp < raw.Prices[j].Timestamp
	})
	if isSorted {
		return raw.Prices, raw.TotalVolumes
	}

	idx := make([]int, len(raw.Prices))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return raw.Prices[idx[a]].Timestamp < raw.Prices[idx[b]].Timestamp
	})

	prices := make([]models.Sample, len(idx))
	volumes := make([]models.Sample, 0, len(idx))
	for pos, i := range idx {
		prices[pos] = raw.Prices[i]
		if i < len(raw.TotalVolumes) {
			volumes = append(volumes, raw.TotalVolumes[i])
		} else {
			volumes = append(volumes, models.Sample{Timestamp: raw.Prices[i].Timestamp})
		}
	}
	return prices, volumes
}

// windowRange returns the rounded max and min price over [start, start+k).
func windowRange(prices []models.Sample, start, k int) (float64, float64) {
	end := min(start+k, len(prices))
	high := prices[start].Value
	low := prices[start].Value
	for i := start + 1; i < end; i++ {
		if prices[i].Value > high {
			high = prices[i].Value
		}
		if prices[i].Value < low {
			low = prices[i].Value
		}
	}
	return round2(high), round2(low)
}

// WithChanges fills change fields against the first point and the previous
// point. The input slice is not modified.
func WithChanges(points []models.ChartPoint) []models.ChartPoint {
	out := make([]models.ChartPoint, len(points))
	copy(out, points)
	if len(out) == 0 {
		return out
	}

	first := out[0].Price
	for i := range out {
		p := out[i].Price
		out[i].Change = round2(p - first)
		out[i].ChangePercent = percentChange(first, p)
		if i == 0 {
			out[i].DailyChange = 0
			out[i].DailyChangePercent = 0
			continue
		}
		prev := out[i-1].Price
		out[i].DailyChange = round2(p - prev)
		out[i].DailyChangePercent = percentChange(prev, p)
	}
	return out
}

func percentChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return round2((to - from) / from * 100)
}
