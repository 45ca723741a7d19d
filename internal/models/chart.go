// Package models defines the core domain entities: chart points, market
// snapshots, top performers, and the dashboard state.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Sample is one [timestamp, value] pair of a CoinGecko market_chart series.
type Sample struct {
	Timestamp int64
	Value     float64
}

// UnmarshalJSON decodes the two-element array form used on the wire.
func (s *Sample) UnmarshalJSON(data []byte) error {
	var pair []*float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("sample must be a [timestamp, value] array: %w", err)
	}
	if len(pair) != 2 || pair[0] == nil || pair[1] == nil {
		return fmt.Errorf("sample must be a [timestamp, value] array, got %s", string(data))
	}
	if math.IsNaN(*pair[1]) || math.IsInf(*pair[1], 0) {
		return errors.New("sample value must be finite")
	}
	s.Timestamp = int64(*pair[0])
	s.Value = *pair[1]
	return nil
}

// MarshalJSON encodes the sample back into its array form.
func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{float64(s.Timestamp), s.Value})
}

// RawSeries is the untrusted market_chart payload. Prices and volumes are
// aligned by position, not necessarily by timestamp.
type RawSeries struct {
	Prices       []Sample `json:"prices"`
	TotalVolumes []Sample `json:"total_volumes"`
}

// Empty reports whether the payload carries nothing to normalize.
func (r *RawSeries) Empty() bool {
	return r == nil || len(r.Prices) == 0 || len(r.TotalVolumes) == 0
}

// ChartPoint is one normalized, chart-ready point.
type ChartPoint struct {
	Timestamp          int64   `json:"timestamp"`
	Date               string  `json:"date"`
	Time               string  `json:"time"`
	Price              float64 `json:"price"`
	Volume             float64 `json:"volume"`
	Open               float64 `json:"open"`
	High               float64 `json:"high"`
	Low                float64 `json:"low"`
	Close              float64 `json:"close"`
	Change             float64 `json:"change"`
	ChangePercent      float64 `json:"changePercent"`
	DailyChange        float64 `json:"dailyChange"`
	DailyChangePercent float64 `json:"dailyChangePercent"`
}

// Candle is an OHLC bucket built from raw price samples.
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Date      string  `json:"date"`
	Time      string  `json:"time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// SeriesStats summarizes a normalized series.
type SeriesStats struct {
	Current       float64 `json:"current"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Average       float64 `json:"average"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	Volume        float64 `json:"volume"`
	StartPrice    float64 `json:"startPrice"`
	EndPrice      float64 `json:"endPrice"`
	Volatility    float64 `json:"volatility"`
}
