package chart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/cryptodash/internal/models"
)

func TestStatistics(t *testing.T) {
	points := WithChanges([]models.ChartPoint{
		{Price: 100, Volume: 5},
		{Price: 110, Volume: 6},
		{Price: 90, Volume: 4},
	})

	stats := Statistics(points)
	assert.Equal(t, 90.0, stats.Current)
	assert.Equal(t, 110.0, stats.High)
	assert.Equal(t, 90.0, stats.Low)
	assert.Equal(t, 100.0, stats.Average)
	assert.Equal(t, -10.0, stats.Change)
	assert.Equal(t, -10.0, stats.ChangePercent)
	assert.Equal(t, 15.0, stats.Volume)
	assert.Equal(t, 100.0, stats.StartPrice)
	assert.Equal(t, 90.0, stats.EndPrice)
	assert.Equal(t, 10.0, stats.Volatility)
}

func TestStatistics_Empty(t *testing.T) {
	assert.Equal(t, models.SeriesStats{}, Statistics(nil))
}

func TestCandlesticks(t *testing.T) {
	n := NewNormalizer(Labeler{}, nil)
	minute := time.Minute.Milliseconds()
	prices := []models.Sample{
		{Timestamp: 0, Value: 10},
		{Timestamp: 30 * minute, Value: 12},
		{Timestamp: 59 * minute, Value: 8},
		{Timestamp: 60 * minute, Value: 9},
	}

	candles := n.Candlesticks(prices, time.Hour)
	require.Len(t, candles, 2)
	assert.Equal(t, models.Candle{
		Timestamp: 0, Date: "Thu 00:00", Time: "00:00",
		Open: 10, High: 12, Low: 8, Close: 8,
	}, candles[0])
	assert.Equal(t, int64(60*minute), candles[1].Timestamp)
	assert.Equal(t, 9.0, candles[1].Open)
	assert.Equal(t, 9.0, candles[1].Close)

	assert.Len(t, n.Candlesticks(prices, 0), 2, "non-positive interval uses the hourly default")
	assert.Empty(t, n.Candlesticks(nil, time.Hour))
}

func TestFilterWindow(t *testing.T) {
	points := []models.ChartPoint{{Timestamp: 1000}, {Timestamp: 5000}, {Timestamp: 9000}}
	now := time.UnixMilli(10000)

	assert.Len(t, FilterWindow(points, 5*time.Second, now), 2)
	assert.Len(t, FilterWindow(points, 0, now), 3)
	assert.Empty(t, FilterWindow(points, time.Millisecond, now))
}

func TestWelford(t *testing.T) {
	var w welford
	assert.Equal(t, 0.0, w.stddev())
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		w.add(v)
	}
	assert.InDelta(t, 2.138, w.stddev(), 0.001)
}
