// Package storage provides a SQLite-backed journal of dashboard fetch cycles.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rewired-gh/cryptodash/internal/models"
)

// ErrNotFound is returned when a cycle does not exist.
var ErrNotFound = errors.New("cycle not found")

// Storage wraps a SQLite database holding the cycle journal.
type Storage struct {
	db        *sql.DB
	maxCycles int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/cryptodash/data.db.
func New(maxCycles int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "cryptodash", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxCycles: maxCycles}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cycles (
			id              TEXT PRIMARY KEY,
			generation      INTEGER NOT NULL,
			crypto          TEXT NOT NULL,
			timeframe       INTEGER NOT NULL,
			attempts        INTEGER NOT NULL,
			outcome         TEXT NOT NULL,
			using_mock_data INTEGER NOT NULL DEFAULT 0,
			error           TEXT,
			point_count     INTEGER NOT NULL DEFAULT 0,
			gainer_id       TEXT,
			loser_id        TEXT,
			started_at      INTEGER NOT NULL,
			finished_at     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_finished_at ON cycles(finished_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_outcome ON cycles(outcome)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// RecordCycle appends c to the journal and trims it to maxCycles entries.
func (s *Storage) RecordCycle(ctx context.Context, c *models.Cycle) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid cycle: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cycles
			(id, generation, crypto, timeframe, attempts, outcome, using_mock_data,
			 error, point_count, gainer_id, loser_id, started_at, finished_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, int64(c.Generation), c.Crypto, c.Timeframe, c.Attempts, string(c.Outcome),
		boolToInt(c.UsingMockData), c.Error, c.PointCount, c.GainerID, c.LoserID,
		c.StartedAt.UnixNano(), c.FinishedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert cycle: %w", err)
	}

	if s.maxCycles > 0 {
		if _, err = tx.ExecContext(ctx, rotateSQL, s.maxCycles); err != nil {
			return fmt.Errorf("failed to enforce cycle cap: %w", err)
		}
	}

	return tx.Commit()
}

// GetCycle returns the cycle with the given id.
func (s *Storage) GetCycle(ctx context.Context, id string) (*models.Cycle, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+cycleCols+` FROM cycles WHERE id = ?`, id)
	c, err := scanCycle(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cycle: %w", err)
	}
	return c, nil
}

// RecentCycles returns up to limit cycles, newest first.
func (s *Storage) RecentCycles(ctx context.Context, limit int) ([]models.Cycle, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cycleCols+` FROM cycles ORDER BY finished_at DESC, generation DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles: %w", err)
	}
	defer rows.Close()

	cycles := []models.Cycle{}
	for rows.Next() {
		c, err := scanCycle(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		cycles = append(cycles, *c)
	}
	return cycles, rows.Err()
}

// OutcomeCounts returns how many journaled cycles ended with each outcome.
func (s *Storage) OutcomeCounts(ctx context.Context) (map[models.CycleOutcome]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM cycles GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("failed to count cycles: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.CycleOutcome]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[models.CycleOutcome(outcome)] = n
	}
	return counts, rows.Err()
}

// RotateCycles keeps at most maxCycles newest cycles by finished_at.
func (s *Storage) RotateCycles(ctx context.Context) error {
	if s.maxCycles <= 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, rotateSQL, s.maxCycles); err != nil {
		return fmt.Errorf("failed to rotate cycles: %w", err)
	}
	return nil
}

const rotateSQL = `
	DELETE FROM cycles WHERE id NOT IN (
		SELECT id FROM cycles ORDER BY finished_at DESC, generation DESC LIMIT ?
	)`

const cycleCols = `id, generation, crypto, timeframe, attempts, outcome, using_mock_data,
	error, point_count, gainer_id, loser_id, started_at, finished_at`

func scanCycle(scan func(...any) error) (*models.Cycle, error) {
	var c models.Cycle
	var generation int64
	var outcome string
	var mock int
	var errText, gainerID, loserID sql.NullString
	var startedAtNano, finishedAtNano int64
	err := scan(
		&c.ID, &generation, &c.Crypto, &c.Timeframe, &c.Attempts, &outcome, &mock,
		&errText, &c.PointCount, &gainerID, &loserID,
		&startedAtNano, &finishedAtNano,
	)
	if err != nil {
		return nil, err
	}
	c.Generation = uint64(generation)
	c.Outcome = models.CycleOutcome(outcome)
	c.UsingMockData = mock != 0
	c.Error = errText.String
	c.GainerID = gainerID.String
	c.LoserID = loserID.String
	c.StartedAt = time.Unix(0, startedAtNano)
	c.FinishedAt = time.Unix(0, finishedAtNano)
	return &c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
