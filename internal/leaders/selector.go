// Package leaders picks the top gainer and top loser from a batch of market
// snapshots.
package leaders

import (
	"strings"

	"github.com/rewired-gh/cryptodash/internal/models"
)

// Source supplies a synthetic record when live data cannot provide one.
type Source interface {
	Leader(kind models.LeaderKind) models.TopPerformerRecord
}

// Selection is the outcome of a leader pick, with provenance flags for
// records that came from the fallback source.
type Selection struct {
	Gainer          models.TopPerformerRecord
	Loser           models.TopPerformerRecord
	GainerSynthetic bool
	LoserSynthetic  bool
}

// Synthetic reports whether either record came from the fallback source.
func (s Selection) Synthetic() bool {
	return s.GainerSynthetic || s.LoserSynthetic
}

// Select returns the best gainer and worst loser among snapshots.
func Select(snapshots []models.MarketSnapshot, fallback Source) (models.TopPerformerRecord, models.TopPerformerRecord) {
	s := Pick(snapshots, fallback)
	return s.Gainer, s.Loser
}

// Pick selects leaders the way Select does and reports provenance.
// Snapshots without a 24h change or with a non-positive price are ignored.
// The two live records never share an id.
func Pick(snapshots []models.MarketSnapshot, fallback Source) Selection {
	eligible := qualifying(snapshots)
	if len(eligible) == 0 {
		return Selection{
			Gainer:          fallback.Leader(models.Gainer),
			Loser:           fallback.Leader(models.Loser),
			GainerSynthetic: true,
			LoserSynthetic:  true,
		}
	}

	gainer := pick(eligible, func(c float64) bool { return c > 0 }, greater)
	if gainer < 0 {
		// Universal decline: the least negative move wins.
		gainer = pick(eligible, nil, greater)
	}
	loser := pick(eligible, func(c float64) bool { return c < 0 }, less)
	if loser < 0 {
		loser = pick(eligible, nil, less)
	}

	sel := Selection{Gainer: ToRecord(eligible[gainer])}
	if eligible[loser].ID != eligible[gainer].ID {
		sel.Loser = ToRecord(eligible[loser])
		return sel
	}

	alt := pick(eligible, func(c float64) bool { return c < 0 }, less, eligible[gainer].ID)
	if alt < 0 {
		// The synthetic loser is always the fixed record, even when the live
		// gainer shares its id. LoserSynthetic tells the two apart.
		sel.Loser = fallback.Leader(models.Loser)
		sel.LoserSynthetic = true
		return sel
	}
	sel.Loser = ToRecord(eligible[alt])
	return sel
}

func qualifying(snapshots []models.MarketSnapshot) []models.MarketSnapshot {
	out := make([]models.MarketSnapshot, 0, len(snapshots))
	for _, s := range snapshots {
		if s.PriceChangePercentage24h == nil || s.CurrentPrice <= 0 {
			continue
		}
		out = append(out, s)
	}
	return out
}

func greater(a, b float64) bool { return a > b }
func less(a, b float64) bool    { return a < b }

// pick returns the index of the snapshot whose change is best under better,
// among those accepted by filter and not excluded by id. Ties keep the first
// occurrence. It returns -1 when nothing qualifies.
func pick(snapshots []models.MarketSnapshot, filter func(float64) bool, better func(a, b float64) bool, exclude ...string) int {
	best := -1
	var bestChange float64
	for i, s := range snapshots {
		if excluded(s.ID, exclude) {
			continue
		}
		c := *s.PriceChangePercentage24h
		if filter != nil && !filter(c) {
			continue
		}
		if best < 0 || better(c, bestChange) {
			best = i
			bestChange = c
		}
	}
	return best
}

func excluded(id string, ids []string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// ToRecord flattens a snapshot into a TopPerformerRecord.
func ToRecord(s models.MarketSnapshot) models.TopPerformerRecord {
	r := models.TopPerformerRecord{
		ID:                  s.ID,
		Name:                s.Name,
		Symbol:              strings.ToUpper(s.Symbol),
		CurrentPrice:        s.CurrentPrice,
		High24h:             s.CurrentPrice,
		Low24h:              s.CurrentPrice,
		MarketCap:           s.MarketCap,
		TotalVolume:         s.TotalVolume,
		Image:               s.Image,
		LastUpdated:         s.LastUpdated,
		MarketCapRank:       s.MarketCapRank,
		ATH:                 s.ATH,
		ATHChangePercentage: s.ATHChangePercentage,
		ATL:                 s.ATL,
		ATLChangePercentage: s.ATLChangePercentage,
	}
	if s.PriceChangePercentage24h != nil {
		r.PriceChangePercentage24h = *s.PriceChangePercentage24h
	}
	if s.High24h != nil && *s.High24h != 0 {
		r.High24h = *s.High24h
	}
	if s.Low24h != nil && *s.Low24h != 0 {
		r.Low24h = *s.Low24h
	}
	if s.PriceChange24h != nil {
		r.PriceChange = *s.PriceChange24h
	}
	return r
}

// Merge concatenates snapshot sets, dropping repeated ids. The first
// occurrence of an id wins.
func Merge(sets ...[]models.MarketSnapshot) []models.MarketSnapshot {
	seen := make(map[string]bool)
	var out []models.MarketSnapshot
	for _, set := range sets {
		for _, s := range set {
			if seen[s.ID] {
				continue
			}
			seen[s.ID] = true
			out = append(out, s)
		}
	}
	return out
}
