package models

import (
	"errors"
)

// MarketSnapshot is one element of the CoinGecko /coins/markets response.
// Nullable numeric fields are pointers.
type MarketSnapshot struct {
	ID                       string   `json:"id"`
	Symbol                   string   `json:"symbol"`
	Name                     string   `json:"name"`
	Image                    string   `json:"image"`
	CurrentPrice             float64  `json:"current_price"`
	MarketCap                float64  `json:"market_cap"`
	MarketCapRank            int      `json:"market_cap_rank"`
	TotalVolume              float64  `json:"total_volume"`
	High24h                  *float64 `json:"high_24h"`
	Low24h                   *float64 `json:"low_24h"`
	PriceChange24h           *float64 `json:"price_change_24h"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h"`
	ATH                      float64  `json:"ath"`
	ATHChangePercentage      float64  `json:"ath_change_percentage"`
	ATL                      float64  `json:"atl"`
	ATLChangePercentage      float64  `json:"atl_change_percentage"`
	LastUpdated              string   `json:"last_updated"`
}

// LeaderKind selects which side of the market a top performer represents.
type LeaderKind string

const (
	Gainer LeaderKind = "gainer"
	Loser  LeaderKind = "loser"
)

// TopPerformerRecord is a flattened market snapshot shown as top gainer or
// top loser.
type TopPerformerRecord struct {
	ID                       string  `json:"id"`
	Name                     string  `json:"name"`
	Symbol                   string  `json:"symbol"`
	CurrentPrice             float64 `json:"current_price"`
	PriceChangePercentage24h float64 `json:"price_change_percentage_24h"`
	High24h                  float64 `json:"high_24h"`
	Low24h                   float64 `json:"low_24h"`
	MarketCap                float64 `json:"market_cap"`
	TotalVolume              float64 `json:"total_volume"`
	Image                    string  `json:"image"`
	LastUpdated              string  `json:"last_updated"`
	PriceChange              float64 `json:"price_change"`
	MarketCapRank            int     `json:"market_cap_rank"`
	ATH                      float64 `json:"ath"`
	ATHChangePercentage      float64 `json:"ath_change_percentage"`
	ATL                      float64 `json:"atl"`
	ATLChangePercentage      float64 `json:"atl_change_percentage"`
}

// Validate checks record field constraints.
func (r *TopPerformerRecord) Validate() error {
	if r.ID == "" {
		return errors.New("record ID must not be empty")
	}
	if r.Symbol == "" {
		return errors.New("record symbol must not be empty")
	}
	if r.CurrentPrice <= 0 {
		return errors.New("current price must be positive")
	}
	if r.High24h < r.Low24h {
		return errors.New("24h high must be >= 24h low")
	}
	if r.MarketCap < 0 {
		return errors.New("market cap must not be negative")
	}
	if r.TotalVolume < 0 {
		return errors.New("total volume must not be negative")
	}
	return nil
}
