// Package server exposes the dashboard state over HTTP and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/rewired-gh/cryptodash/internal/chart"
	"github.com/rewired-gh/cryptodash/internal/logger"
	"github.com/rewired-gh/cryptodash/internal/models"
	"github.com/rewired-gh/cryptodash/internal/storage"
)

// maxBodyBytes caps action request bodies.
const maxBodyBytes = 4 << 10

// Dashboard is the state owner the server reads from and acts on.
type Dashboard interface {
	Snapshot() models.DashboardState
	Subscribe() (<-chan models.DashboardState, func())
	Candles(interval time.Duration) []models.Candle
	SelectCrypto(ctx context.Context, id string) error
	SelectTimeframe(ctx context.Context, days int) error
	Retry(ctx context.Context) error
}

// CycleStore reads the cycle journal. GetCycle wraps storage.ErrNotFound for
// unknown ids.
type CycleStore interface {
	RecentCycles(ctx context.Context, limit int) ([]models.Cycle, error)
	GetCycle(ctx context.Context, id string) (*models.Cycle, error)
	OutcomeCounts(ctx context.Context) (map[models.CycleOutcome]int, error)
}

// Config holds what the server accepts from clients. A nil SupportsCrypto
// accepts any id.
type Config struct {
	Addr           string
	Cryptos        []string
	Timeframes     []int
	SupportsCrypto func(id string) bool
}

// Option configures optional endpoints.
type Option func(*Server)

// WithCycles enables the /api/cycles endpoints and journal counts on
// /healthz.
func WithCycles(store CycleStore) Option {
	return func(s *Server) { s.cycles = store }
}

// WithMetrics mounts h at GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

type Server struct {
	router    *http.ServeMux
	server    *http.Server
	dashboard Dashboard
	cycles    CycleStore
	metrics   http.Handler
	cfg       Config
	now       func() time.Time
}

func NewServer(cfg Config, dashboard Dashboard, opts ...Option) *Server {
	s := &Server{
		router:    http.NewServeMux(),
		dashboard: dashboard,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	// State
	s.router.HandleFunc("GET /api/state", s.handleState)
	s.router.HandleFunc("GET /api/statistics", s.handleStatistics)
	s.router.HandleFunc("GET /api/candles", s.handleCandles)
	s.router.HandleFunc("GET /api/options", s.handleOptions)

	// Actions
	s.router.HandleFunc("POST /api/crypto", s.handleSelectCrypto)
	s.router.HandleFunc("POST /api/timeframe", s.handleSelectTimeframe)
	s.router.HandleFunc("POST /api/retry", s.handleRetry)

	// Journal
	if s.cycles != nil {
		s.router.HandleFunc("GET /api/cycles", s.handleCycles)
		s.router.HandleFunc("GET /api/cycles/{id}", s.handleCycle)
	}

	// Stream
	s.router.HandleFunc("GET /ws", s.handleWS)

	// Ops
	if s.metrics != nil {
		s.router.Handle("GET /metrics", s.metrics)
	}
	s.router.HandleFunc("GET /healthz", s.handleHealth)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	logger.Info("Starting web server on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dashboard.Snapshot())
}

type statisticsResponse struct {
	Crypto        string             `json:"crypto"`
	Timeframe     int                `json:"timeframe"`
	UsingMockData bool               `json:"usingMockData"`
	Points        int                `json:"points"`
	Stats         models.SeriesStats `json:"stats"`
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	window, err := parseDuration(r, "window")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	state := s.dashboard.Snapshot()
	points := chart.FilterWindow(state.Series, window, s.now())
	writeJSON(w, http.StatusOK, statisticsResponse{
		Crypto:        state.SelectedCrypto,
		Timeframe:     state.Timeframe,
		UsingMockData: state.UsingMockData,
		Points:        len(points),
		Stats:         chart.Statistics(points),
	})
}

func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	interval, err := parseDuration(r, "interval")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.dashboard.Candles(interval))
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"cryptos":    s.cfg.Cryptos,
		"timeframes": s.cfg.Timeframes,
	})
}

func (s *Server) handleSelectCrypto(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "body must be {\"id\": \"<coin id>\"}")
		return
	}
	if s.cfg.SupportsCrypto != nil && !s.cfg.SupportsCrypto(req.ID) {
		writeError(w, http.StatusBadRequest, "unsupported crypto: "+req.ID)
		return
	}
	if err := s.dashboard.SelectCrypto(r.Context(), req.ID); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleSelectTimeframe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Days int `json:"days"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Days < 1 {
		writeError(w, http.StatusBadRequest, "body must be {\"days\": <positive integer>}")
		return
	}
	if len(s.cfg.Timeframes) > 0 && !slices.Contains(s.cfg.Timeframes, req.Days) {
		writeError(w, http.StatusBadRequest, "unsupported timeframe: "+strconv.Itoa(req.Days))
		return
	}
	if err := s.dashboard.SelectTimeframe(r.Context(), req.Days); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	if err := s.dashboard.Retry(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	cycles, err := s.cycles.RecentCycles(r.Context(), limit)
	if err != nil {
		logger.Error("Failed to list cycles: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list cycles")
		return
	}
	writeJSON(w, http.StatusOK, cycles)
}

func (s *Server) handleCycle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	c, err := s.cycles.GetCycle(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "cycle not found: "+id)
		return
	}
	if err != nil {
		logger.Error("Failed to get cycle %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to get cycle")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.dashboard.Snapshot()
	body := map[string]any{
		"status":        "ok",
		"phase":         state.Phase,
		"usingMockData": state.UsingMockData,
	}
	if s.cycles != nil {
		counts, err := s.cycles.OutcomeCounts(r.Context())
		if err != nil {
			logger.Warn("Failed to count cycles: %v", err)
		} else {
			body["cycles"] = counts
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func parseDuration(r *http.Request, key string) (time.Duration, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, errors.New(key + " must be a non-negative duration such as 24h")
	}
	return d, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
