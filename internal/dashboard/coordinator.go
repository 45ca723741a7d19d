package dashboard

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/cryptodash/internal/chart"
	"github.com/rewired-gh/cryptodash/internal/coingecko"
	"github.com/rewired-gh/cryptodash/internal/leaders"
	"github.com/rewired-gh/cryptodash/internal/logger"
	"github.com/rewired-gh/cryptodash/internal/metrics"
	"github.com/rewired-gh/cryptodash/internal/models"
)

// ErrStopped is returned by actions once the coordinator has stopped.
var ErrStopped = errors.New("coordinator stopped")

// Upstream is the market data boundary.
type Upstream interface {
	MarketChart(ctx context.Context, coinID string, days int) (*models.RawSeries, error)
	Markets(ctx context.Context, order string) ([]models.MarketSnapshot, error)
}

// Synthesizer produces fallback data of the live shape.
type Synthesizer interface {
	Series(days int) []models.ChartPoint
	Leader(kind models.LeaderKind) models.TopPerformerRecord
}

// Recorder journals finished cycles.
type Recorder interface {
	RecordCycle(ctx context.Context, c *models.Cycle) error
}

// Notifier is told when the dashboard falls back to demo data and when it
// recovers.
type Notifier interface {
	SendFallback(state models.DashboardState, cause string) error
	SendRecovery(fallbackCycles int) error
}

// Config holds coordinator behavior configuration.
type Config struct {
	DefaultCrypto    string
	DefaultTimeframe int
	// Timeframes lists the selectable windows in days. Empty accepts any
	// window up to chart.MaxDays.
	Timeframes       []int
	RefreshInterval  time.Duration
	Retry            RetryPolicy
}

// DefaultConfig returns the dashboard defaults: bitcoin over 7 days,
// refreshed every two minutes.
func DefaultConfig() Config {
	return Config{
		DefaultCrypto:    "bitcoin",
		DefaultTimeframe: 7,
		RefreshInterval:  2 * time.Minute,
		Retry:            DefaultRetryPolicy,
	}
}

// Option configures optional collaborators.
type Option func(*Coordinator)

// WithRecorder journals every finished cycle.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// WithNotifier reports fallback and recovery transitions.
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

// WithMetrics records attempts and cycles.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

type selection struct {
	crypto string
	days   int
}

type commandKind int

const (
	cmdSelectCrypto commandKind = iota
	cmdSelectTimeframe
	cmdRetry
)

type command struct {
	kind   commandKind
	crypto string
	days   int
}

type fetchResult struct {
	gen     uint64
	sel     selection
	raw     *models.RawSeries
	gainers []models.MarketSnapshot
	losers  []models.MarketSnapshot
	err     error
}

// cycle tracks the fetch cycle for the latest generation. Only the Run
// goroutine touches it.
type cycle struct {
	id       string
	gen      uint64
	sel      selection
	attempt  int
	started  time.Time
	cancel   context.CancelFunc
	inFlight bool
	retry    *time.Timer
	lastErr  error
}

func (cy *cycle) active() bool {
	return cy.inFlight || cy.retry != nil
}

// Coordinator is the single writer of DashboardState. Run drives it;
// Snapshot and Subscribe read it from any goroutine.
type Coordinator struct {
	upstream   Upstream
	normalizer *chart.Normalizer
	synth      Synthesizer
	cfg        Config
	recorder   Recorder
	notifier   Notifier
	metrics    *metrics.Metrics

	commands chan command
	results  chan fetchResult
	done     chan struct{}

	// owned by Run
	state          models.DashboardState
	cur            cycle
	gen            uint64
	fallbackCycles int

	mu       sync.RWMutex
	snapshot models.DashboardState
	prices   []models.Sample
	subs     map[chan models.DashboardState]struct{}
}

// New creates a coordinator whose state starts as synthetic placeholder data.
func New(upstream Upstream, normalizer *chart.Normalizer, synth Synthesizer, cfg Config, opts ...Option) *Coordinator {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultConfig().RefreshInterval
	}
	if cfg.DefaultCrypto == "" {
		cfg.DefaultCrypto = DefaultConfig().DefaultCrypto
	}
	if cfg.DefaultTimeframe < 1 || cfg.DefaultTimeframe > chart.MaxDays {
		cfg.DefaultTimeframe = DefaultConfig().DefaultTimeframe
	}
	cfg.Retry = cfg.Retry.normalized()

	c := &Coordinator{
		upstream:   upstream,
		normalizer: normalizer,
		synth:      synth,
		cfg:        cfg,
		commands:   make(chan command, 16),
		results:    make(chan fetchResult),
		done:       make(chan struct{}),
		subs:       make(map[chan models.DashboardState]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.state = Placeholder(cfg.DefaultCrypto, cfg.DefaultTimeframe, synth, time.Now())
	c.snapshot = c.state.Clone()
	c.prices = pointSamples(c.state.Series)
	return c
}

// Snapshot returns a copy of the current state.
func (c *Coordinator) Snapshot() models.DashboardState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot.Clone()
}

// Candles buckets the prices behind the current series into OHLC candles.
// Live commits use the raw upstream samples; synthetic series use their own
// points.
func (c *Coordinator) Candles(interval time.Duration) []models.Candle {
	c.mu.RLock()
	prices := c.prices
	c.mu.RUnlock()
	return c.normalizer.Candlesticks(prices, interval)
}

// Subscribe returns a channel that always holds the latest state. Slow
// readers skip intermediate states. Call the returned func to unsubscribe.
func (c *Coordinator) Subscribe() (<-chan models.DashboardState, func()) {
	ch := make(chan models.DashboardState, 1)

	c.mu.Lock()
	c.subs[ch] = struct{}{}
	ch <- c.snapshot.Clone()
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, ch)
			c.mu.Unlock()
		})
	}
}

// SelectCrypto switches the dashboard to another asset.
func (c *Coordinator) SelectCrypto(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("crypto id must not be empty")
	}
	return c.send(ctx, command{kind: cmdSelectCrypto, crypto: id})
}

// SelectTimeframe switches the dashboard to another window.
func (c *Coordinator) SelectTimeframe(ctx context.Context, days int) error {
	if days < 1 || days > chart.MaxDays {
		return fmt.Errorf("timeframe must be between 1 and %d days, got %d", chart.MaxDays, days)
	}
	if len(c.cfg.Timeframes) > 0 && !slices.Contains(c.cfg.Timeframes, days) {
		return fmt.Errorf("unsupported timeframe: %d days", days)
	}
	return c.send(ctx, command{kind: cmdSelectTimeframe, days: days})
}

// Retry resets the retry counter and fetches immediately.
func (c *Coordinator) Retry(ctx context.Context) error {
	return c.send(ctx, command{kind: cmdRetry})
}

func (c *Coordinator) send(ctx context.Context, cmd command) error {
	select {
	case c.commands <- cmd:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run fetches immediately, then on every refresh tick and action, until ctx
// is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.RefreshInterval)
	defer ticker.Stop()
	defer c.abandonCycle(context.Background())

	logger.Info("Dashboard coordinator started (crypto: %s, timeframe: %dd, refresh: %v)",
		c.state.SelectedCrypto, c.state.Timeframe, c.cfg.RefreshInterval)
	c.startCycle(ctx)

	for {
		var retryC <-chan time.Time
		if c.cur.retry != nil {
			retryC = c.cur.retry.C
		}

		select {
		case <-ctx.Done():
			logger.Info("Dashboard coordinator stopped")
			return ctx.Err()

		case cmd := <-c.commands:
			c.handleCommand(ctx, cmd)

		case <-ticker.C:
			if c.cur.active() {
				logger.Debug("Skipping refresh tick: cycle %d still active", c.cur.gen)
				continue
			}
			logger.Debug("Starting scheduled refresh")
			c.startCycle(ctx)

		case <-retryC:
			c.cur.retry = nil
			c.launch(ctx)

		case res := <-c.results:
			c.handleResult(ctx, res)
		}
	}
}

func (c *Coordinator) handleCommand(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdSelectCrypto:
		if cmd.crypto == c.state.SelectedCrypto {
			return
		}
		logger.Info("Selected crypto %s", cmd.crypto)
		c.dispatch(SelectCrypto{ID: cmd.crypto})
	case cmdSelectTimeframe:
		if cmd.days == c.state.Timeframe {
			return
		}
		logger.Info("Selected timeframe %dd", cmd.days)
		c.dispatch(SelectTimeframe{Days: cmd.days})
	case cmdRetry:
		logger.Info("Manual retry requested")
	}
	c.startCycle(ctx)
}

// startCycle supersedes any active cycle and launches the first attempt of
// a new generation.
func (c *Coordinator) startCycle(ctx context.Context) {
	c.abandonCycle(ctx)

	c.gen++
	c.cur = cycle{
		id:      uuid.NewString(),
		gen:     c.gen,
		sel:     selection{crypto: c.state.SelectedCrypto, days: c.state.Timeframe},
		started: time.Now(),
	}
	c.dispatch(FetchStart{Generation: c.gen})
	c.launch(ctx)
}

// abandonCycle cancels the in-flight attempt and pending retry of the
// current cycle, if any. Their late results are discarded by generation.
func (c *Coordinator) abandonCycle(ctx context.Context) {
	if !c.cur.active() {
		return
	}
	if c.cur.cancel != nil {
		c.cur.cancel()
	}
	if c.cur.retry != nil {
		c.cur.retry.Stop()
	}
	c.cur.inFlight = false
	c.cur.retry = nil
	logger.Debug("Cycle %d superseded after %d attempt(s)", c.cur.gen, c.cur.attempt)
	c.record(ctx, models.OutcomeSuperseded, false)
}

func (c *Coordinator) launch(ctx context.Context) {
	c.cur.attempt++
	actx, cancel := context.WithCancel(ctx)
	c.cur.cancel = cancel
	c.cur.inFlight = true

	gen, sel, attempt := c.cur.gen, c.cur.sel, c.cur.attempt
	logger.Debug("Fetching %s/%dd (cycle %d, attempt %d/%d)", sel.crypto, sel.days, gen, attempt, c.cfg.Retry.MaxAttempts)

	go func() {
		res := c.fetch(actx, sel)
		res.gen = gen
		select {
		case c.results <- res:
		case <-ctx.Done():
		}
	}()
}

// fetch fans out the three upstream calls and waits for all of them.
// Malformed payloads are not errors here; they come back as nil data.
func (c *Coordinator) fetch(ctx context.Context, sel selection) fetchResult {
	res := fetchResult{sel: sel}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		raw, err := c.upstream.MarketChart(gctx, sel.crypto, sel.days)
		if errors.Is(err, coingecko.ErrMalformedPayload) {
			logger.Warn("Malformed market chart payload for %s: %v", sel.crypto, err)
			return nil
		}
		res.raw = raw
		return err
	})
	g.Go(func() error {
		snaps, err := c.upstream.Markets(gctx, coingecko.OrderGainers)
		if errors.Is(err, coingecko.ErrMalformedPayload) {
			logger.Warn("Malformed gainers payload: %v", err)
			return nil
		}
		res.gainers = snaps
		return err
	})
	g.Go(func() error {
		snaps, err := c.upstream.Markets(gctx, coingecko.OrderLosers)
		if errors.Is(err, coingecko.ErrMalformedPayload) {
			logger.Warn("Malformed losers payload: %v", err)
			return nil
		}
		res.losers = snaps
		return err
	})

	res.err = g.Wait()
	return res
}

func (c *Coordinator) handleResult(ctx context.Context, res fetchResult) {
	if res.gen != c.cur.gen || !c.cur.inFlight || res.sel != c.currentSelection() {
		logger.Debug("Discarding stale result for %s/%dd (cycle %d, current %d)",
			res.sel.crypto, res.sel.days, res.gen, c.cur.gen)
		if c.metrics != nil {
			c.metrics.RecordStale()
		}
		return
	}

	c.cur.inFlight = false
	c.cur.cancel()

	if res.err != nil {
		c.handleFailure(ctx, res.err)
		return
	}
	if c.metrics != nil {
		c.metrics.RecordAttempt("ok")
	}

	days := res.sel.days
	series := c.normalizer.Normalize(res.raw, days)
	picked := leaders.Pick(leaders.Merge(res.gainers, res.losers), c.synth)
	usingMock := res.raw.Empty() || picked.Synthetic()

	prices := pointSamples(series)
	if !res.raw.Empty() {
		prices = sortedPrices(res.raw.Prices)
	}
	c.setPrices(prices)
	c.dispatch(FetchSuccess{
		Series:        series,
		Gainer:        picked.Gainer,
		Loser:         picked.Loser,
		UsingMockData: usingMock,
		At:            time.Now(),
	})

	if usingMock {
		logger.Info("Committed %d points for %s/%dd with partial demo data", len(series), res.sel.crypto, days)
		c.record(ctx, models.OutcomeFallback, false)
		return
	}
	logger.Info("Committed %d live points for %s/%dd (gainer: %s, loser: %s)",
		len(series), res.sel.crypto, days, picked.Gainer.ID, picked.Loser.ID)
	c.record(ctx, models.OutcomeSuccess, true)
}

func (c *Coordinator) handleFailure(ctx context.Context, err error) {
	c.cur.lastErr = err
	result := "error"
	if coingecko.IsRateLimited(err) {
		result = "rate_limited"
	}
	if c.metrics != nil {
		c.metrics.RecordAttempt(result)
	}

	if c.cfg.Retry.ShouldRetry(c.cur.attempt) {
		logger.Warn("Fetch attempt %d/%d failed, retrying in %v: %v",
			c.cur.attempt, c.cfg.Retry.MaxAttempts, c.cfg.Retry.Delay, err)
		c.dispatch(FetchError{Message: coingecko.Describe(err), Attempt: c.cur.attempt})
		c.cur.retry = time.NewTimer(c.cfg.Retry.Delay)
		return
	}

	logger.Warn("Fetch failed after %d attempts, using demo data: %v", c.cur.attempt, err)
	series := c.synth.Series(c.cur.sel.days)
	c.setPrices(pointSamples(series))
	c.dispatch(UseFallback{
		Series: series,
		Gainer: c.synth.Leader(models.Gainer),
		Loser:  c.synth.Leader(models.Loser),
		At:     time.Now(),
	})
	c.record(ctx, models.OutcomeFallback, false)
	c.fallbackCycles++
	if c.fallbackCycles == 1 {
		state, cause := c.state.Clone(), coingecko.Describe(err)
		c.notify(func(n Notifier) error { return n.SendFallback(state, cause) })
	}
}

func (c *Coordinator) currentSelection() selection {
	return selection{crypto: c.state.SelectedCrypto, days: c.state.Timeframe}
}

// record journals the current cycle. A live commit closes out any run of
// failed cycles.
func (c *Coordinator) record(ctx context.Context, outcome models.CycleOutcome, live bool) {
	elapsed := time.Since(c.cur.started)
	if c.metrics != nil {
		c.metrics.RecordCycle(string(outcome), elapsed, c.state.UsingMockData, len(c.state.Series))
	}

	if live && c.fallbackCycles > 0 {
		failed := c.fallbackCycles
		c.fallbackCycles = 0
		c.notify(func(n Notifier) error { return n.SendRecovery(failed) })
	}

	if c.recorder == nil {
		return
	}
	entry := &models.Cycle{
		ID:            c.cur.id,
		Generation:    c.cur.gen,
		Crypto:        c.cur.sel.crypto,
		Timeframe:     c.cur.sel.days,
		Attempts:      c.cur.attempt,
		Outcome:       outcome,
		UsingMockData: c.state.UsingMockData,
		StartedAt:     c.cur.started,
		FinishedAt:    time.Now(),
	}
	if c.cur.lastErr != nil {
		entry.Error = c.cur.lastErr.Error()
	}
	if outcome != models.OutcomeSuperseded {
		entry.PointCount = len(c.state.Series)
		entry.GainerID = c.state.TopGainer.ID
		entry.LoserID = c.state.TopLoser.ID
	}
	if err := c.recorder.RecordCycle(ctx, entry); err != nil {
		logger.Warn("Failed to record cycle %d: %v", c.cur.gen, err)
	}
}

// notify runs the notifier off the loop so slow deliveries never delay
// state transitions.
func (c *Coordinator) notify(fn func(Notifier) error) {
	if c.notifier == nil {
		return
	}
	go func() {
		if err := fn(c.notifier); err != nil {
			logger.Warn("Failed to send notification: %v", err)
		}
	}()
}

func (c *Coordinator) setPrices(prices []models.Sample) {
	c.mu.Lock()
	c.prices = prices
	c.mu.Unlock()
}

func pointSamples(points []models.ChartPoint) []models.Sample {
	out := make([]models.Sample, len(points))
	for i, p := range points {
		out[i] = models.Sample{Timestamp: p.Timestamp, Value: p.Price}
	}
	return out
}

func sortedPrices(prices []models.Sample) []models.Sample {
	out := slices.Clone(prices)
	slices.SortStableFunc(out, func(a, b models.Sample) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
	return out
}

func (c *Coordinator) dispatch(a Action) {
	c.state = Reduce(c.state, a)
	c.publish()
}

func (c *Coordinator) publish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = c.state.Clone()
	for ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- c.snapshot.Clone()
	}
}
