// Package dashboard owns the dashboard state and the fetch-and-reconcile
// cycle that keeps it current.
package dashboard

import (
	"time"

	"github.com/rewired-gh/cryptodash/internal/models"
)

// Action is a state transition message. The set is closed.
type Action interface {
	isAction()
}

// SelectCrypto changes the selected asset.
type SelectCrypto struct {
	ID string
}

// SelectTimeframe changes the selected window in days.
type SelectTimeframe struct {
	Days int
}

// FetchStart marks the start of a new fetch cycle.
type FetchStart struct {
	Generation uint64
}

// FetchSuccess commits data from a completed attempt. UsingMockData is set
// when any part of it had to be synthesized.
type FetchSuccess struct {
	Series        []models.ChartPoint
	Gainer        models.TopPerformerRecord
	Loser         models.TopPerformerRecord
	UsingMockData bool
	At            time.Time
}

// FetchError records a failed attempt that will be retried.
type FetchError struct {
	Message string
	Attempt int
}

// UseFallback commits fully synthetic data after retries are exhausted.
type UseFallback struct {
	Series []models.ChartPoint
	Gainer models.TopPerformerRecord
	Loser  models.TopPerformerRecord
	At     time.Time
}

func (SelectCrypto) isAction()    {}
func (SelectTimeframe) isAction() {}
func (FetchStart) isAction()      {}
func (FetchSuccess) isAction()    {}
func (FetchError) isAction()      {}
func (UseFallback) isAction()     {}

// Reduce applies a to s and returns the next state.
func Reduce(s models.DashboardState, a Action) models.DashboardState {
	switch a := a.(type) {
	case SelectCrypto:
		s.SelectedCrypto = a.ID
	case SelectTimeframe:
		s.Timeframe = a.Days
	case FetchStart:
		s.Loading = true
		s.Error = ""
		s.Phase = models.PhaseFetching
		s.Attempt = 0
		s.Generation = a.Generation
	case FetchSuccess:
		s.Loading = false
		s.Error = ""
		s.Series = a.Series
		s.TopGainer = a.Gainer
		s.TopLoser = a.Loser
		s.UsingMockData = a.UsingMockData
		s.LastUpdated = a.At
		s.Attempt = 0
		s.Phase = models.PhaseSuccess
		if a.UsingMockData {
			s.Phase = models.PhaseFallback
		}
	case FetchError:
		s.Error = a.Message
		s.Attempt = a.Attempt
		s.Phase = models.PhaseRetrying
	case UseFallback:
		s.Loading = false
		s.Error = ""
		s.Series = a.Series
		s.TopGainer = a.Gainer
		s.TopLoser = a.Loser
		s.UsingMockData = true
		s.LastUpdated = a.At
		s.Attempt = 0
		s.Phase = models.PhaseFallback
	}
	return s
}

// Placeholder builds the state shown before the first fetch completes.
func Placeholder(crypto string, days int, src Synthesizer, now time.Time) models.DashboardState {
	return models.DashboardState{
		SelectedCrypto: crypto,
		Timeframe:      days,
		Series:         src.Series(days),
		TopGainer:      src.Leader(models.Gainer),
		TopLoser:       src.Leader(models.Loser),
		UsingMockData:  true,
		LastUpdated:    now,
		Phase:          models.PhaseIdle,
	}
}
