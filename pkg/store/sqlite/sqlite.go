// Package sqlite keeps scored episodes in SQLite and aggregates them.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nstogner/arena/pkg/multiagent"
	"github.com/nstogner/arena/pkg/store"
)

// Store implements store.ResultStore using SQLite.
type Store struct {
	db *sql.DB
}

// Verify interface compliance at compile time.
var _ store.ResultStore = (*Store)(nil)

// New opens (or creates) a SQLite database at the given path and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS results (
		episode_id TEXT PRIMARY KEY,
		task TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		game_result TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_results_task ON results(task, created_at);

	CREATE TABLE IF NOT EXISTS result_players (
		episode_id TEXT NOT NULL,
		seat INTEGER NOT NULL,
		role TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL DEFAULT '',
		wins INTEGER NOT NULL DEFAULT 0,
		tie INTEGER NOT NULL DEFAULT 0,
		score INTEGER NOT NULL DEFAULT 0,
		deduction_accuracy REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (episode_id, seat),
		FOREIGN KEY (episode_id) REFERENCES results(episode_id) ON DELETE CASCADE
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveResult stores r, replacing any earlier record of the same episode.
func (s *Store) SaveResult(ctx context.Context, r store.Record) error {
	if r.EpisodeID == "" {
		return fmt.Errorf("episode ID is required")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM result_players WHERE episode_id=?`, r.EpisodeID); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO results (episode_id, task, model, status, game_result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.EpisodeID, r.Task, r.Model, r.Status, r.GameResult, r.CreatedAt,
	)
	if err != nil {
		return err
	}
	for _, p := range r.Players {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO result_players (episode_id, seat, role, kind, wins, tie, score, deduction_accuracy)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.EpisodeID, p.Seat, p.Role, p.Kind, p.Wins, p.Tie, p.Score, p.DeductionAccuracy,
		)
		if err != nil {
			return fmt.Errorf("seat %d: %w", p.Seat, err)
		}
	}
	return tx.Commit()
}

// ListResults returns the records of task in the order they were created.
// An empty task lists every record.
func (s *Store) ListResults(ctx context.Context, task string) ([]store.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT episode_id, task, model, status, game_result, created_at
		 FROM results WHERE (? = '' OR task = ?) ORDER BY created_at, episode_id`,
		task, task,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []store.Record
	for rows.Next() {
		var r store.Record
		if err := rows.Scan(&r.EpisodeID, &r.Task, &r.Model, &r.Status, &r.GameResult, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range records {
		players, err := s.players(ctx, records[i].EpisodeID)
		if err != nil {
			return nil, err
		}
		records[i].Players = players
	}
	return records, nil
}

func (s *Store) players(ctx context.Context, episodeID string) ([]store.PlayerRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seat, role, kind, wins, tie, score, deduction_accuracy
		 FROM result_players WHERE episode_id=? ORDER BY seat`, episodeID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []store.PlayerRecord
	for rows.Next() {
		var p store.PlayerRecord
		if err := rows.Scan(&p.Seat, &p.Role, &p.Kind, &p.Wins, &p.Tie, &p.Score, &p.DeductionAccuracy); err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// Overall aggregates every record of task. Seats of episodes that ended early
// count as losses; deduction accuracy only averages completed episodes.
func (s *Store) Overall(ctx context.Context, task string) (store.Overall, error) {
	o := store.Overall{
		Task:         task,
		StatusCounts: map[string]int{},
		SeatWinRates: map[int]float64{},
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM results WHERE task=? GROUP BY status`, task)
	if err != nil {
		return o, err
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return o, err
		}
		o.StatusCounts[status] = n
		o.Episodes += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return o, err
	}
	o.Completed = o.StatusCounts[string(multiagent.StatusCompleted)]
	if o.Episodes == 0 {
		return o, nil
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(p.wins), 0), COALESCE(AVG(p.tie), 0)
		 FROM result_players p JOIN results r ON r.episode_id = p.episode_id
		 WHERE r.task=?`, task,
	).Scan(&o.WinRate, &o.TieRate)
	if err != nil {
		return o, err
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(p.deduction_accuracy), 0)
		 FROM result_players p JOIN results r ON r.episode_id = p.episode_id
		 WHERE r.task=? AND r.status=?`, task, string(multiagent.StatusCompleted),
	).Scan(&o.AvgDeductionAccuracy)
	if err != nil {
		return o, err
	}

	seatRows, err := s.db.QueryContext(ctx,
		`SELECT p.seat, AVG(p.wins)
		 FROM result_players p JOIN results r ON r.episode_id = p.episode_id
		 WHERE r.task=? GROUP BY p.seat ORDER BY p.seat`, task,
	)
	if err != nil {
		return o, err
	}
	defer seatRows.Close()
	for seatRows.Next() {
		var seat int
		var rate float64
		if err := seatRows.Scan(&seat, &rate); err != nil {
			return o, err
		}
		o.SeatWinRates[seat] = rate
	}
	return o, seatRows.Err()
}
