package ledger

import "time"

// #region run-record
// RunRecord is one row of the runs table.
type RunRecord struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Status     string    // "running" | "completed" | "failed"
	Seed       string
	ConfigJSON string
	Error      string
}
// #endregion run-record

// #region iteration-record
// IterationRecord is the per-split summary of one iteration.
type IterationRecord struct {
	RunID         string  `json:"run_id"`
	Iteration     int     `json:"iteration"`
	Split         string  `json:"split"`
	Attempted     int     `json:"attempted"`
	Failed        int     `json:"failed"`
	SolvedNow     int     `json:"solved_now"`
	NewlySolved   int     `json:"newly_solved"`
	SolvedAllTime int     `json:"solved_all_time"`
	AvgInst       float64 `json:"avg_instantiations,omitempty"`
	HasAvgInst    bool    `json:"has_avg_instantiations"`
	UnitExamples  int     `json:"unit_examples"`
	TupleExamples int     `json:"tuple_examples"`
	DurationMS    int64   `json:"duration_ms"`
}
// #endregion iteration-record

// #region trial-record
// TrialRecord is one evaluated grid point.
type TrialRecord struct {
	Iteration  int     `json:"iteration"`
	Pool       string  `json:"pool"`
	Point      int     `json:"point"`
	ParamsJSON string  `json:"params"`
	AUC        float64 `json:"auc"`
	Error      string  `json:"error,omitempty"`
	Best       bool    `json:"best"`
	DurationMS int64   `json:"duration_ms"`
}
// #endregion trial-record

// #region model-record
// ModelRecord is one trained artifact.
type ModelRecord struct {
	Iteration  int       `json:"iteration"`
	Pool       string    `json:"pool"`
	Path       string    `json:"path"`
	ParamsJSON string    `json:"params,omitempty"` // empty when the default config was used
	CreatedAt  time.Time `json:"created_at"`
}
// #endregion model-record
