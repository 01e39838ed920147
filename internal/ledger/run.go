package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/batch"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/dataset"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/gridsearch"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/hparams"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/loop"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/tracker"
)

// #region run-struct
// Run writes one run's records. It satisfies loop.Recorder.
type Run struct {
	db *sql.DB
	id string
}

var _ loop.Recorder = (*Run)(nil)

// ID returns the run's UUID.
func (r *Run) ID() string { return r.id }
// #endregion run-struct

// #region record-attempts
// RecordAttempts inserts one row per attempt in a single transaction.
func (r *Run) RecordAttempts(ctx context.Context, iteration int, split string, attempts []batch.Attempt) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO attempts (run_id, iteration, split, problem, log_path, solved, instantiations, problem_name, duration_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare attempts: %w", err)
	}
	defer stmt.Close()

	for _, a := range attempts {
		var inst any
		if a.HasInstantiations {
			inst = a.Instantiations
		}
		var errStr string
		if a.Err != nil {
			errStr = a.Err.Error()
		}
		if _, err := stmt.ExecContext(ctx,
			r.id, iteration, split, a.Problem, a.LogPath, boolInt(a.Solved), inst,
			nullIfEmpty(a.ProblemName), a.Duration.Milliseconds(), nullIfEmpty(errStr),
		); err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}
	}
	return tx.Commit()
}
// #endregion record-attempts

// #region record-grid
// RecordGrid inserts every trial of a grid search.
func (r *Run) RecordGrid(ctx context.Context, iteration int, report gridsearch.Report) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, t := range report.Trials {
		params, err := json.Marshal(t.Params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		var auc any
		var errStr string
		if t.Err != nil {
			errStr = t.Err.Error()
		} else {
			auc = t.AUC
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO grid_trials (run_id, iteration, pool, point, params_json, auc, error, best, duration_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.id, iteration, string(report.Pool), t.Index, string(params), auc,
			nullIfEmpty(errStr), boolInt(t.Index == report.Best), t.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("insert trial: %w", err)
		}
	}
	return tx.Commit()
}
// #endregion record-grid

// #region record-model
// RecordModel stores a trained artifact. A nil params means the default
// config was used.
func (r *Run) RecordModel(ctx context.Context, iteration int, pool dataset.Pool, path string, params hparams.Params) error {
	var paramsJSON string
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		paramsJSON = string(raw)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO models (run_id, iteration, pool, path, params_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, iteration, pool) DO UPDATE SET path = excluded.path, params_json = excluded.params_json`,
		r.id, iteration, string(pool), path, nullIfEmpty(paramsJSON), time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("insert model: %w", err)
	}
	return nil
}
// #endregion record-model

// #region record-iteration
// RecordIteration stores one row per split of the summary.
func (r *Run) RecordIteration(ctx context.Context, s loop.Summary) error {
	splits := []tracker.SplitStats{s.Train}
	if s.Test != nil {
		splits = append(splits, *s.Test)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, st := range splits {
		var avg any
		if st.HasAvgInst {
			avg = st.AvgInst
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO iterations (run_id, iteration, split, attempted, failed, solved_now, newly_solved,
			                         solved_all_time, avg_inst, unit_examples, tuple_examples, duration_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.id, s.Iteration, st.Split, st.Attempted, st.Failed, st.SolvedNow, st.NewlySolved,
			st.SolvedAllTime, avg, s.Examples[dataset.PoolUnit], s.Examples[dataset.PoolTuple],
			s.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("insert iteration: %w", err)
		}
	}
	return tx.Commit()
}
// #endregion record-iteration

// #region finish
// Finish marks the run completed, or failed with runErr.
func (r *Run) Finish(ctx context.Context, runErr error) error {
	status := StatusCompleted
	var errStr string
	if runErr != nil {
		status = StatusFailed
		errStr = runErr.Error()
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, error = ? WHERE run_id = ?`,
		status, time.Now().UTC().Format(timeFormat), nullIfEmpty(errStr), r.id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}
// #endregion finish
