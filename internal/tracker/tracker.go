// Package tracker keeps the run's running totals per split and derives the
// per-iteration statistics the loop reports.
package tracker

import (
	"github.com/montanaflynn/stats"

	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/batch"
)

// Split names.
const (
	SplitTrain = "train"
	SplitTest  = "test"
)

// #region types

// SplitStats summarizes one split in one iteration.
type SplitStats struct {
	Split         string
	Iteration     int
	Attempted     int
	Failed        int // attempts with a gateway or log-read error
	SolvedNow     int
	NewlySolved   int // solved now and never before
	SolvedAllTime int
	LogsAllTime   int // solved logs retained across iterations
	AvgInst       float64
	HasAvgInst    bool // false when no solved attempt reported a count
}

type splitState struct {
	solved   map[string]bool
	logs     map[string]bool
	baseline []batch.Attempt
	seeded   bool
}

// #endregion types

// #region tracker

// Tracker accumulates solved problems and logs. It is owned by the loop and
// not safe for concurrent use.
type Tracker struct {
	splits map[string]*splitState
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{splits: make(map[string]*splitState)}
}

func (t *Tracker) split(name string) *splitState {
	s, ok := t.splits[name]
	if !ok {
		s = &splitState{solved: make(map[string]bool), logs: make(map[string]bool)}
		t.splits[name] = s
	}
	return s
}

// Observe folds one iteration's attempts for split into the running totals.
// The solved attempts of the first observed iteration become the baseline.
func (t *Tracker) Observe(split string, iteration int, attempts []batch.Attempt) SplitStats {
	s := t.split(split)
	solved := batch.Solved(attempts)
	if !s.seeded {
		s.baseline = solved
		s.seeded = true
	}

	st := SplitStats{Split: split, Iteration: iteration, Attempted: len(attempts), SolvedNow: len(solved)}
	var counts []float64
	for _, a := range attempts {
		if a.Err != nil {
			st.Failed++
		}
	}
	for _, a := range solved {
		if !s.solved[a.Problem] {
			s.solved[a.Problem] = true
			st.NewlySolved++
		}
		s.logs[a.LogPath] = true
		if a.HasInstantiations {
			counts = append(counts, float64(a.Instantiations))
		}
	}
	st.SolvedAllTime = len(s.solved)
	st.LogsAllTime = len(s.logs)
	if mean, err := stats.Mean(counts); err == nil {
		st.AvgInst, st.HasAvgInst = mean, true
	}
	return st
}

// Baseline returns the first iteration's solved attempts for split.
func (t *Tracker) Baseline(split string) []batch.Attempt {
	if s, ok := t.splits[split]; ok {
		return s.baseline
	}
	return nil
}

// SolvedAllTime returns the number of distinct problems ever solved in split.
func (t *Tracker) SolvedAllTime(split string) int {
	if s, ok := t.splits[split]; ok {
		return len(s.solved)
	}
	return 0
}

// #endregion tracker
