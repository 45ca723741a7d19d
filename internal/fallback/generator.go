// Package fallback produces synthetic series and top performers with the
// same shape as live data. It backs the dashboard whenever upstream data is
// absent, malformed, or unavailable after retries.
package fallback

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rewired-gh/cryptodash/internal/chart"
	"github.com/rewired-gh/cryptodash/internal/models"
)

const (
	BasePrice   = 40000.0
	MinPrice    = 30000.0
	MaxPrice    = 70000.0
	BaseVolume  = 25000000000.0
	maxStep     = 2000.0
	defaultDays = 7
)

// Generator produces synthetic dashboard data. It is safe for concurrent use.
type Generator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	now    func() time.Time
	labels chart.Labeler
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed uses a deterministic PCG source seeded with seed.
func WithSeed(seed uint64) Option {
	return func(g *Generator) { g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithClock sets the clock synthetic series end at.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithLabels sets the label formatter.
func WithLabels(l chart.Labeler) Option {
	return func(g *Generator) { g.labels = l }
}

// NewGenerator creates a generator backed by a time-seeded random source
// unless options say otherwise.
func NewGenerator(opts ...Option) *Generator {
	seed := uint64(time.Now().UnixNano())
	g := &Generator{
		rng: rand.New(rand.NewPCG(seed, seed>>1)),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Series returns up to chart.MaxPoints points of a bounded random walk
// spanning days days and ending now.
func (g *Generator) Series(days int) []models.ChartPoint {
	if days < 1 {
		days = defaultDays
	}
	days = chart.ClampDays(days)
	n := min(days*24, chart.MaxPoints)
	span := time.Duration(days) * 24 * time.Hour
	step := span / time.Duration(n)
	end := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	points := make([]models.ChartPoint, 0, n)
	price := BasePrice
	for i := 0; i < n; i++ {
		ts := end.Add(-time.Duration(n-i-1) * step).UnixMilli()

		price += (g.rng.Float64() - 0.5) * maxStep
		price = max(MinPrice, min(MaxPrice, price))
		volume := BaseVolume * (0.8 + g.rng.Float64()*0.4)

		p := chart.Round(price, 2)
		points = append(points, models.ChartPoint{
			Timestamp: ts,
			Date:      g.labels.Date(ts, days),
			Time:      g.labels.Time(ts),
			Price:     p,
			Volume:    chart.Round(volume, 2),
			High:      chart.Round(price*(1+g.rng.Float64()*0.02), 2),
			Low:       chart.Round(price*(1-g.rng.Float64()*0.02), 2),
			Open:      chart.Round(price*(1+(g.rng.Float64()-0.5)*0.01), 2),
			Close:     p,
		})
	}

	return chart.WithChanges(points)
}

// Leader returns the fixed illustrative record for kind.
func (g *Generator) Leader(kind models.LeaderKind) models.TopPerformerRecord {
	if kind == models.Gainer {
		return GainerRecord
	}
	return LoserRecord
}

// GainerRecord is the synthetic top gainer.
var GainerRecord = models.TopPerformerRecord{
	ID:                       "ethereum",
	Name:                     "Ethereum",
	Symbol:                   "ETH",
	CurrentPrice:             3500,
	PriceChangePercentage24h: 8.5,
	High24h:                  3600,
	Low24h:                   3400,
	MarketCap:                420000000000,
	TotalVolume:              15000000000,
	PriceChange:              275,
	MarketCapRank:            2,
	ATH:                      4800,
	ATHChangePercentage:      -27.08,
	ATL:                      0.432,
	ATLChangePercentage:      810000,
}

// LoserRecord is the synthetic top loser.
var LoserRecord = models.TopPerformerRecord{
	ID:                       "dogecoin",
	Name:                     "Dogecoin",
	Symbol:                   "DOGE",
	CurrentPrice:             0.15,
	PriceChangePercentage24h: -4.2,
	High24h:                  0.16,
	Low24h:                   0.14,
	MarketCap:                21000000000,
	TotalVolume:              800000000,
	PriceChange:              -0.006,
	MarketCapRank:            10,
	ATH:                      0.74,
	ATHChangePercentage:      -79.73,
	ATL:                      0.0000869,
	ATLChangePercentage:      172000,
}
