package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/brensch/numberflow/game"
)

// RoundResult is the summary kept for every finished round.
type RoundResult struct {
	ID         string        `json:"id"`
	Source     string        `json:"source"` // "server", "autoplay", "tui"
	Policy     string        `json:"policy,omitempty"`
	Seed       int64         `json:"seed"`
	Phase      string        `json:"phase"`
	Score      int           `json:"score"`
	Highest    int           `json:"highest"`
	Ticks      int           `json:"ticks"`
	Pieces     int           `json:"pieces"`
	SpeedLevel int           `json:"speed_level"`
	Duration   time.Duration `json:"duration_ns"`
	FinishedAt time.Time     `json:"finished_at"`
}

// NewRoundResult fills the state-derived fields of a summary.
func NewRoundResult(id, source string, s *game.RoundState) RoundResult {
	return RoundResult{
		ID:         id,
		Source:     source,
		Phase:      s.Phase.String(),
		Score:      s.Score,
		Highest:    s.Highest,
		Ticks:      s.Ticks,
		Pieces:     s.PieceCount,
		SpeedLevel: s.SpeedLevel,
	}
}

// Stats aggregates every recorded round.
type Stats struct {
	Rounds    int     `json:"rounds"`
	Won       int     `json:"won"`
	Lost      int     `json:"lost"`
	BestScore int     `json:"best_score"`
	MeanScore float64 `json:"mean_score"`
	MeanTicks float64 `json:"mean_ticks"`
}

// Results is the SQLite-backed round summary table.
type Results struct {
	db *sql.DB
}

// OpenResults opens (creating if needed) the database at path and migrates it.
// ":memory:" keeps everything in process.
func OpenResults(path string) (*Results, error) {
	if path == "" {
		return nil, errors.New("empty results db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create results dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open results db: %w", err)
	}
	// A single connection serialises writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	r := &Results{db: db}
	if err := r.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Results) init() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := r.db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return r.Migrate()
}

func (r *Results) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS rounds (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			policy TEXT NOT NULL DEFAULT '',
			seed INTEGER NOT NULL DEFAULT 0,
			phase TEXT NOT NULL,
			score INTEGER NOT NULL,
			highest INTEGER NOT NULL,
			ticks INTEGER NOT NULL,
			pieces INTEGER NOT NULL,
			speed_level INTEGER NOT NULL,
			duration_ns INTEGER NOT NULL,
			finished_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_score ON rounds(score DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_source ON rounds(source)`,
	}
	for _, m := range migrations {
		if _, err := r.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (r *Results) Close() error { return r.db.Close() }

// Record stores res, assigning an ID and finish time when they are unset.
// It returns the stored ID.
func (r *Results) Record(ctx context.Context, res RoundResult) (string, error) {
	if res.ID == "" {
		res.ID = uuid.New().String()
	}
	if res.FinishedAt.IsZero() {
		res.FinishedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO rounds (
		id, source, policy, seed, phase, score, highest, ticks, pieces,
		speed_level, duration_ns, finished_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.Source, res.Policy, res.Seed, res.Phase, res.Score, res.Highest,
		res.Ticks, res.Pieces, res.SpeedLevel, int64(res.Duration), res.FinishedAt.UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("insert round %s: %w", res.ID, err)
	}
	return res.ID, nil
}

// RecordMany stores a batch in one transaction.
func (r *Results) RecordMany(ctx context.Context, batch []RoundResult) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO rounds (
		id, source, policy, seed, phase, score, highest, ticks, pieces,
		speed_level, duration_ns, finished_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, res := range batch {
		if res.ID == "" {
			res.ID = uuid.New().String()
		}
		if res.FinishedAt.IsZero() {
			res.FinishedAt = now
		}
		if _, err := stmt.ExecContext(ctx,
			res.ID, res.Source, res.Policy, res.Seed, res.Phase, res.Score, res.Highest,
			res.Ticks, res.Pieces, res.SpeedLevel, int64(res.Duration), res.FinishedAt.UnixNano(),
		); err != nil {
			return fmt.Errorf("insert round %s: %w", res.ID, err)
		}
	}
	return tx.Commit()
}

// Top returns up to n rounds ordered by score, best first. Ties go to the
// round that finished first.
func (r *Results) Top(ctx context.Context, n int) ([]RoundResult, error) {
	if n <= 0 {
		n = 10
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id, source, policy, seed, phase, score,
		highest, ticks, pieces, speed_level, duration_ns, finished_at
		FROM rounds ORDER BY score DESC, finished_at ASC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query top rounds: %w", err)
	}
	defer rows.Close()

	var out []RoundResult
	for rows.Next() {
		var (
			res      RoundResult
			duration int64
			finished int64
		)
		if err := rows.Scan(&res.ID, &res.Source, &res.Policy, &res.Seed, &res.Phase, &res.Score,
			&res.Highest, &res.Ticks, &res.Pieces, &res.SpeedLevel, &duration, &finished); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		res.Duration = time.Duration(duration)
		res.FinishedAt = time.Unix(0, finished)
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *Results) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var best sql.NullInt64
	var meanScore, meanTicks sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN phase = 'won' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN phase = 'lost' THEN 1 ELSE 0 END), 0),
		MAX(score), AVG(score), AVG(ticks)
		FROM rounds`).Scan(&st.Rounds, &st.Won, &st.Lost, &best, &meanScore, &meanTicks)
	if err != nil {
		return st, fmt.Errorf("query stats: %w", err)
	}
	st.BestScore = int(best.Int64)
	st.MeanScore = meanScore.Float64
	st.MeanTicks = meanTicks.Float64
	return st, nil
}
