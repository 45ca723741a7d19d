package chart

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/cryptodash/internal/models"
)

type stubSource struct {
	calls    int
	lastDays int
}

func (s *stubSource) Series(days int) []models.ChartPoint {
	s.calls++
	s.lastDays = days
	return []models.ChartPoint{{Timestamp: 1, Price: 42}}
}

func samples(values ...float64) []models.Sample {
	out := make([]models.Sample, len(values))
	for i, v := range values {
		out[i] = models.Sample{Timestamp: int64(i) * 1000, Value: v}
	}
	return out
}

func TestNormalize_ThreePoints(t *testing.T) {
	n := NewNormalizer(Labeler{}, &stubSource{})
	raw := &models.RawSeries{
		Prices:       samples(100, 110, 90),
		TotalVolumes: samples(5, 6, 4),
	}

	points := n.Normalize(raw, 7)
	require.Len(t, points, 3)

	assert.Equal(t, 100.0, points[0].Price)
	assert.Equal(t, 0.0, points[0].ChangePercent)
	assert.Equal(t, 0.0, points[0].Change)
	assert.Equal(t, 5.0, points[0].Volume)
	assert.Equal(t, 100.0, points[0].Open)

	assert.Equal(t, 110.0, points[1].Price)
	assert.Equal(t, 100.0, points[1].Open)
	assert.Equal(t, 10.0, points[1].ChangePercent)
	assert.Equal(t, 10.0, points[1].DailyChange)

	assert.Equal(t, 90.0, points[2].Price)
	assert.Equal(t, 90.0, points[2].Close)
	assert.Equal(t, -10.0, points[2].Change)
	assert.Equal(t, -10.0, points[2].ChangePercent)
	assert.Equal(t, -20.0, points[2].DailyChange)
	assert.Equal(t, -18.18, points[2].DailyChangePercent)
	assert.Equal(t, int64(2000), points[2].Timestamp)
}

func TestNormalize_MissingPayloadUsesFallback(t *testing.T) {
	tests := []struct {
		name string
		raw  *models.RawSeries
	}{
		{"nil payload", nil},
		{"nil prices", &models.RawSeries{TotalVolumes: samples(1)}},
		{"nil volumes", &models.RawSeries{Prices: samples(1)}},
		{"empty sequences", &models.RawSeries{Prices: []models.Sample{}, TotalVolumes: []models.Sample{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &stubSource{}
			n := NewNormalizer(Labeler{}, src)
			points := n.Normalize(tt.raw, 14)
			assert.Equal(t, 1, src.calls)
			assert.Equal(t, 14, src.lastDays)
			assert.Equal(t, 42.0, points[0].Price)
		})
	}
}

func TestNormalize_NoFallbackConfigured(t *testing.T) {
	n := NewNormalizer(Labeler{}, nil)
	points := n.Normalize(nil, 7)
	assert.NotNil(t, points)
	assert.Empty(t, points)
}

func TestNormalize_Downsamples(t *testing.T) {
	values := make([]float64, 300)
	for i := range values {
		values[i] = float64(i)
	}
	raw := &models.RawSeries{Prices: samples(values...), TotalVolumes: samples(values...)}
	n := NewNormalizer(Labeler{}, nil)

	points := n.Normalize(raw, 7)
	require.Len(t, points, 100)
	assert.Equal(t, 0.0, points[0].Low)
	assert.Equal(t, 2.0, points[0].High)
	assert.Equal(t, 0.0, points[1].Open)
	assert.Equal(t, 3.0, points[1].Close)
	assert.Equal(t, 299.0, points[99].High)
	assert.Equal(t, 297.0, points[99].Low)

	hourly := n.Normalize(raw, 1)
	assert.Len(t, hourly, 24)
	for _, p := range hourly {
		assert.LessOrEqual(t, p.Low, p.Price)
		assert.GreaterOrEqual(t, p.High, p.Price)
	}
}

func TestNormalize_TimestampsNonDecreasing(t *testing.T) {
	raw := &models.RawSeries{
		Prices: []models.Sample{
			{Timestamp: 2000, Value: 90},
			{Timestamp: 0, Value: 100},
			{Timestamp: 1000, Value: 110},
		},
		TotalVolumes: []models.Sample{
			{Timestamp: 2000, Value: 4},
			{Timestamp: 0, Value: 5},
			{Timestamp: 1000, Value: 6},
		},
	}
	n := NewNormalizer(Labeler{}, nil)

	points := n.Normalize(raw, 7)
	require.Len(t, points, 3)
	for i := 1; i < len(points); i++ {
		assert.GreaterOrEqual(t, points[i].Timestamp, points[i-1].Timestamp)
	}
	assert.Equal(t, []float64{100, 110, 90}, []float64{points[0].Price, points[1].Price, points[2].Price})
	assert.Equal(t, []float64{5, 6, 4}, []float64{points[0].Volume, points[1].Volume, points[2].Volume})
}

func TestNormalize_ShortVolumeSeries(t *testing.T) {
	raw := &models.RawSeries{Prices: samples(1, 2, 3), TotalVolumes: samples(7)}
	points := NewNormalizer(Labeler{}, nil).Normalize(raw, 7)
	require.Len(t, points, 3)
	assert.Equal(t, 7.0, points[0].Volume)
	assert.Equal(t, 0.0, points[1].Volume)
	assert.Equal(t, 0.0, points[2].Volume)
}

func TestNormalize_RoundsBeforeDeriving(t *testing.T) {
	raw := &models.RawSeries{Prices: samples(0.004, 10.126), TotalVolumes: samples(1.239, 1)}
	points := NewNormalizer(Labeler{}, nil).Normalize(raw, 7)
	require.Len(t, points, 2)
	assert.Equal(t, 0.0, points[0].Price)
	assert.Equal(t, 1.24, points[0].Volume)
	assert.Equal(t, 10.13, points[1].Price)
	assert.Equal(t, 10.13, points[1].Change)
	assert.Equal(t, 0.0, points[1].ChangePercent, "zero baseline price yields zero percent")
}

func TestSampleInterval(t *testing.T) {
	tests := []struct {
		n, days, want int
	}{
		{3, 7, 1},
		{100, 1, 1},
		{101, 7, 2},
		{300, 7, 3},
		{300, 1, 13},
		{2000, 30, 20},
		{500, 0, 21},
		{1000, 1 << 62, 10},
		{1000, MaxDays + 1, 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SampleInterval(tt.n, tt.days), "n=%d days=%d", tt.n, tt.days)
	}
}

func TestClampDays(t *testing.T) {
	assert.Equal(t, 1, ClampDays(-5))
	assert.Equal(t, 1, ClampDays(0))
	assert.Equal(t, 30, ClampDays(30))
	assert.Equal(t, MaxDays, ClampDays(MaxDays))
	assert.Equal(t, MaxDays, ClampDays(1<<62))
}

func TestRound(t *testing.T) {
	assert.Equal(t, 1.01, Round(1.005, 2))
	assert.Equal(t, -1.01, Round(-1.005, 2))
	assert.Equal(t, 2.68, Round(2.675, 2))
	assert.Equal(t, 3.0, Round(2.999, 2))
	assert.Equal(t, 0.0, Round(math.NaN(), 2))
	assert.Equal(t, 0.0, Round(math.Inf(1), 2))
}

func TestLabeler(t *testing.T) {
	l := Labeler{}
	assert.Equal(t, "00:00", l.Date(0, 1))
	assert.Equal(t, "Thu 00:00", l.Date(0, 7))
	assert.Equal(t, "Jan 1", l.Date(0, 30))
	assert.Equal(t, "Jan 1970", l.Date(0, 90))
	assert.Equal(t, "Jan 1970", l.Date(0, 365))
	assert.Equal(t, "00:00", l.Time(0))

	tokyo := time.FixedZone("JST", 9*3600)
	assert.Equal(t, "09:00", Labeler{Location: tokyo}.Time(0))
}

func TestWithChanges_DoesNotMutateInput(t *testing.T) {
	in := []models.ChartPoint{{Price: 10}, {Price: 20}}
	out := WithChanges(in)
	assert.Equal(t, 0.0, in[1].Change)
	assert.Equal(t, 10.0, out[1].Change)
	assert.Equal(t, 100.0, out[1].DailyChangePercent)
	assert.Empty(t, WithChanges(nil))
}
