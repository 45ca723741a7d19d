package models

import (
	"errors"
	"fmt"
	"time"
)

// Phase is the orchestrator's position in its fetch cycle.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseFetching Phase = "fetching"
	PhaseSuccess  Phase = "success"
	PhaseRetrying Phase = "retrying"
	PhaseFallback Phase = "fallback"
)

// DashboardState is the single snapshot handed to the UI.
type DashboardState struct {
	SelectedCrypto string             `json:"selectedCrypto"`
	Timeframe      int                `json:"timeframe"`
	Series         []ChartPoint       `json:"series"`
	TopGainer      TopPerformerRecord `json:"topGainer"`
	TopLoser       TopPerformerRecord `json:"topLoser"`
	Loading        bool               `json:"loading"`
	Error          string             `json:"error,omitempty"`
	UsingMockData  bool               `json:"usingMockData"`
	LastUpdated    time.Time          `json:"lastUpdated"`

	Phase      Phase  `json:"phase"`
	Attempt    int    `json:"attempt"`
	Generation uint64 `json:"generation"`
}

// Clone returns a copy that shares no slices with s.
func (s DashboardState) Clone() DashboardState {
	c := s
	if s.Series != nil {
		c.Series = make([]ChartPoint, len(s.Series))
		copy(c.Series, s.Series)
	}
	return c
}

// CycleOutcome is how a fetch cycle ended.
type CycleOutcome string

const (
	OutcomeSuccess    CycleOutcome = "success"
	OutcomeFallback   CycleOutcome = "fallback"
	OutcomeSuperseded CycleOutcome = "superseded"
)

// Cycle is a journal entry for one fetch cycle.
type Cycle struct {
	ID            string       `json:"id"`
	Generation    uint64       `json:"generation"`
	Crypto        string       `json:"crypto"`
	Timeframe     int          `json:"timeframe"`
	Attempts      int          `json:"attempts"`
	Outcome       CycleOutcome `json:"outcome"`
	UsingMockData bool         `json:"usingMockData"`
	Error         string       `json:"error,omitempty"`
	PointCount    int          `json:"pointCount"`
	GainerID      string       `json:"gainerId"`
	LoserID       string       `json:"loserId"`
	StartedAt     time.Time    `json:"startedAt"`
	FinishedAt    time.Time    `json:"finishedAt"`
}

// Validate checks journal entry constraints.
func (c *Cycle) Validate() error {
	if c.ID == "" {
		return errors.New("cycle ID must not be empty")
	}
	switch c.Outcome {
	case OutcomeSuccess, OutcomeFallback, OutcomeSuperseded:
	default:
		return fmt.Errorf("unknown cycle outcome %q", c.Outcome)
	}
	if c.Attempts < 0 {
		return errors.New("attempts must not be negative")
	}
	if c.FinishedAt.Before(c.StartedAt) {
		return errors.New("cycle finished before it started")
	}
	return nil
}
