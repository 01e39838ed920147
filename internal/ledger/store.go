// Package ledger records every run of the loop in SQLite: attempts, grid
// trials, trained models and per-iteration summaries.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	started_at   TEXT NOT NULL,
	finished_at  TEXT,
	status       TEXT NOT NULL,
	seed         TEXT NOT NULL,
	config_json  TEXT,
	error        TEXT
);

CREATE TABLE IF NOT EXISTS attempts (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id         TEXT NOT NULL,
	iteration      INTEGER NOT NULL,
	split          TEXT NOT NULL,
	problem        TEXT NOT NULL,
	log_path       TEXT NOT NULL,
	solved         INTEGER NOT NULL,
	instantiations INTEGER,
	problem_name   TEXT,
	duration_ms    INTEGER NOT NULL,
	error          TEXT,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS iterations (
	run_id          TEXT NOT NULL,
	iteration       INTEGER NOT NULL,
	split           TEXT NOT NULL,
	attempted       INTEGER NOT NULL,
	failed          INTEGER NOT NULL,
	solved_now      INTEGER NOT NULL,
	newly_solved    INTEGER NOT NULL,
	solved_all_time INTEGER NOT NULL,
	avg_inst        REAL,
	unit_examples   INTEGER NOT NULL,
	tuple_examples  INTEGER NOT NULL,
	duration_ms     INTEGER NOT NULL,
	PRIMARY KEY (run_id, iteration, split),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS grid_trials (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	iteration   INTEGER NOT NULL,
	pool        TEXT NOT NULL,
	point       INTEGER NOT NULL,
	params_json TEXT NOT NULL,
	auc         REAL,
	error       TEXT,
	best        INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS models (
	run_id      TEXT NOT NULL,
	iteration   INTEGER NOT NULL,
	pool        TEXT NOT NULL,
	path        TEXT NOT NULL,
	params_json TEXT,
	created_at  TEXT NOT NULL,
	PRIMARY KEY (run_id, iteration, pool),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`
// #endregion schema

// timeFormat is fixed-width so that stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// #region store-struct
// Store manages the run ledger in SQLite.
type Store struct {
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
// #endregion close

// #region start-run
// StartRun inserts a running run and returns the recorder bound to it.
func (s *Store) StartRun(ctx context.Context, seed uint64, configJSON string) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, status, seed, config_json)
		 VALUES (?, ?, ?, ?, ?)`,
		id, now.Format(timeFormat), StatusRunning,
		strconv.FormatUint(seed, 10), nullIfEmpty(configJSON),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return &Run{db: s.db, id: id}, nil
}
// #endregion start-run

// #region list-runs
// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, started_at, finished_at, status, seed, config_json, error
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, started_at, finished_at, status, seed, config_json, error
		 FROM runs WHERE run_id = ?`, runID,
	)
	rec, err := scanRun(row)
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunRecord, error) {
	var rec RunRecord
	var startedStr string
	var finishedStr, configJSON, errStr sql.NullString
	if err := row.Scan(&rec.RunID, &startedStr, &finishedStr, &rec.Status, &rec.Seed, &configJSON, &errStr); err != nil {
		return RunRecord{}, fmt.Errorf("scan run: %w", err)
	}
	rec.StartedAt, _ = time.Parse(timeFormat, startedStr)
	if finishedStr.Valid {
		rec.FinishedAt, _ = time.Parse(timeFormat, finishedStr.String)
	}
	rec.ConfigJSON = configJSON.String
	rec.Error = errStr.String
	return rec, nil
}
// #endregion list-runs

// #region helpers
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
// #endregion helpers
