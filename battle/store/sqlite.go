// Package store keeps a history of finished matches in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/zgrow/robobattler/battle"
)

// NewMatchID returns a fresh match identifier.
func NewMatchID() string {
	return uuid.NewString()
}

// MatchRecord is one stored match.
type MatchRecord struct {
	ID        string
	PlayedAt  time.Time
	GridSide  int
	ArmySize  int
	MaxRounds int
	Seed      int64
	Turns     int
	Reason    string
	Winner    string
	TurnLog   string         // path of the exported turn log, if any
	Survivors map[string]int // controller -> live units at the end
	Forfeits  map[string]int // controller -> forfeited units
}

// NewMatchRecord fills a record from a finished match.
func NewMatchRecord(id string, cfg battle.MatchConfig, s *battle.MatchSummary, turnLog string) MatchRecord {
	rec := MatchRecord{
		ID:        id,
		PlayedAt:  time.Now().UTC(),
		GridSide:  cfg.GridSide,
		ArmySize:  cfg.ArmySize,
		MaxRounds: cfg.MaxRounds,
		Seed:      cfg.Seed,
		Turns:     s.Turns,
		Reason:    string(s.Reason),
		Winner:    s.Winner,
		TurnLog:   turnLog,
		Survivors: make(map[string]int, len(s.Survivors)),
		Forfeits:  make(map[string]int),
	}
	for name, n := range s.Survivors {
		rec.Survivors[name] = n
	}
	for _, f := range s.Forfeits {
		rec.Forfeits[f.Controller]++
	}
	return rec
}

// Controllers returns the controller names in sorted order.
func (r MatchRecord) Controllers() []string {
	names := make([]string, 0, len(r.Survivors))
	for name := range r.Survivors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SQLiteStore persists MatchRecords.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS matches (
			id TEXT PRIMARY KEY,
			played_at TEXT NOT NULL,
			grid_side INTEGER NOT NULL,
			army_size INTEGER NOT NULL,
			max_rounds INTEGER NOT NULL,
			seed INTEGER NOT NULL,
			turns INTEGER NOT NULL,
			reason TEXT NOT NULL,
			winner TEXT NOT NULL,
			turn_log TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS results (
			match_id TEXT NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
			controller TEXT NOT NULL,
			survivors INTEGER NOT NULL,
			forfeits INTEGER NOT NULL,
			PRIMARY KEY (match_id, controller)
		);`,
		`CREATE INDEX IF NOT EXISTS matches_played_at ON matches(played_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveMatch stores rec and its per-controller results in one transaction.
func (s *SQLiteStore) SaveMatch(ctx context.Context, rec MatchRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO matches (id, played_at, grid_side, army_size, max_rounds, seed, turns, reason, winner, turn_log)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.PlayedAt.UTC().Format(time.RFC3339Nano), rec.GridSide, rec.ArmySize, rec.MaxRounds,
		rec.Seed, rec.Turns, rec.Reason, rec.Winner, rec.TurnLog)
	if err != nil {
		return fmt.Errorf("insert match %s: %w", rec.ID, err)
	}
	for _, name := range rec.Controllers() {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO results (match_id, controller, survivors, forfeits) VALUES (?, ?, ?, ?)`,
			rec.ID, name, rec.Survivors[name], rec.Forfeits[name])
		if err != nil {
			return fmt.Errorf("insert result %s/%s: %w", rec.ID, name, err)
		}
	}
	return tx.Commit()
}

// ListMatches returns up to limit matches, most recent first. A limit of
// zero or less returns every match.
func (s *SQLiteStore) ListMatches(ctx context.Context, limit int) ([]MatchRecord, error) {
	q := `SELECT id, played_at, grid_side, army_size, max_rounds, seed, turns, reason, winner, turn_log
		FROM matches ORDER BY played_at DESC, id`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	var out []MatchRecord
	for rows.Next() {
		var rec MatchRecord
		var playedAt string
		if err := rows.Scan(&rec.ID, &playedAt, &rec.GridSide, &rec.ArmySize, &rec.MaxRounds,
			&rec.Seed, &rec.Turns, &rec.Reason, &rec.Winner, &rec.TurnLog); err != nil {
			_ = rows.Close()
			return nil, err
		}
		rec.PlayedAt, err = time.Parse(time.RFC3339Nano, playedAt)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("match %s: bad played_at %q: %w", rec.ID, playedAt, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range out {
		if err := s.loadResults(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLiteStore) loadResults(ctx context.Context, rec *MatchRecord) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT controller, survivors, forfeits FROM results WHERE match_id = ?`, rec.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	rec.Survivors = make(map[string]int)
	rec.Forfeits = make(map[string]int)
	for rows.Next() {
		var name string
		var survivors, forfeits int
		if err := rows.Scan(&name, &survivors, &forfeits); err != nil {
			return err
		}
		rec.Survivors[name] = survivors
		rec.Forfeits[name] = forfeits
	}
	return rows.Err()
}
