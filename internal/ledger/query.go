package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// #region iterations
// Iterations returns the per-split summaries of a run in iteration order.
func (s *Store) Iterations(ctx context.Context, runID string) ([]IterationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, iteration, split, attempted, failed, solved_now, newly_solved,
		        solved_all_time, avg_inst, unit_examples, tuple_examples, duration_ms
		 FROM iterations WHERE run_id = ? ORDER BY iteration, split DESC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list iterations: %w", err)
	}
	defer rows.Close()

	var out []IterationRecord
	for rows.Next() {
		var rec IterationRecord
		var avg sql.NullFloat64
		if err := rows.Scan(&rec.RunID, &rec.Iteration, &rec.Split, &rec.Attempted, &rec.Failed,
			&rec.SolvedNow, &rec.NewlySolved, &rec.SolvedAllTime, &avg,
			&rec.UnitExamples, &rec.TupleExamples, &rec.DurationMS); err != nil {
			return nil, fmt.Errorf("scan iteration: %w", err)
		}
		rec.AvgInst, rec.HasAvgInst = avg.Float64, avg.Valid
		out = append(out, rec)
	}
	return out, rows.Err()
}
// #endregion iterations

// #region trials
// Trials returns a run's grid trials, optionally restricted to one
// iteration (iteration <= 0 returns all).
func (s *Store) Trials(ctx context.Context, runID string, iteration int) ([]TrialRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT iteration, pool, point, params_json, auc, error, best, duration_ms
		 FROM grid_trials WHERE run_id = ? AND (? <= 0 OR iteration = ?)
		 ORDER BY iteration, pool DESC, point`, runID, iteration, iteration,
	)
	if err != nil {
		return nil, fmt.Errorf("list trials: %w", err)
	}
	defer rows.Close()

	var out []TrialRecord
	for rows.Next() {
		var rec TrialRecord
		var auc sql.NullFloat64
		var errStr sql.NullString
		var best int
		if err := rows.Scan(&rec.Iteration, &rec.Pool, &rec.Point, &rec.ParamsJSON, &auc, &errStr, &best, &rec.DurationMS); err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}
		rec.AUC = auc.Float64
		rec.Error = errStr.String
		rec.Best = best == 1
		out = append(out, rec)
	}
	return out, rows.Err()
}
// #endregion trials

// #region models
// Models returns a run's trained artifacts in iteration order.
func (s *Store) Models(ctx context.Context, runID string) ([]ModelRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT iteration, pool, path, params_json, created_at
		 FROM models WHERE run_id = ? ORDER BY iteration, pool DESC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	var out []ModelRecord
	for rows.Next() {
		var rec ModelRecord
		var params sql.NullString
		var createdStr string
		if err := rows.Scan(&rec.Iteration, &rec.Pool, &rec.Path, &params, &createdStr); err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		rec.ParamsJSON = params.String
		rec.CreatedAt, _ = time.Parse(timeFormat, createdStr)
		out = append(out, rec)
	}
	return out, rows.Err()
}
// #endregion models

// #region solved-problems
// SolvedProblems returns the distinct problems a run solved in split.
func (s *Store) SolvedProblems(ctx context.Context, runID, split string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT problem FROM attempts
		 WHERE run_id = ? AND split = ? AND solved = 1 ORDER BY problem`, runID, split,
	)
	if err != nil {
		return nil, fmt.Errorf("list solved: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan problem: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
// #endregion solved-problems
