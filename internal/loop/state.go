// Package loop sequences proving, mining, searching and training once per
// iteration and owns the state that accumulates across iterations.
package loop

import (
	"time"

	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/batch"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/dataset"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/gridsearch"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/hparams"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/mining"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/tracker"
)

// #region phase

// Phase is a state of the loop's state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseIterationStart
	PhaseProving
	PhaseMining
	PhaseSearchingAndTraining
	PhaseIterationEnd
	PhaseDone
)

var phaseNames = [...]string{
	PhaseIdle:                 "idle",
	PhaseIterationStart:       "iteration_start",
	PhaseProving:              "proving",
	PhaseMining:               "mining",
	PhaseSearchingAndTraining: "searching_and_training",
	PhaseIterationEnd:         "iteration_end",
	PhaseDone:                 "done",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// #endregion phase

// #region state

// State is everything the loop carries between iterations. Only the loop
// mutates it, and only between phases.
type State struct {
	Iteration int
	Phase     Phase

	// Attempts holds every attempt ever made, per split.
	Attempts map[string][]batch.Attempt
	// Examples holds the running example set per pool.
	Examples map[dataset.Pool]*dataset.Set
	// Models are the current artifacts per pool; empty before the first
	// training.
	Models map[dataset.Pool]string

	Tracker   *tracker.Tracker
	Summaries []Summary
}

// NewState returns the empty state a run starts from.
func NewState() *State {
	s := &State{
		Attempts: make(map[string][]batch.Attempt),
		Examples: make(map[dataset.Pool]*dataset.Set),
		Models:   make(map[dataset.Pool]string),
		Tracker:  tracker.New(),
	}
	for _, pool := range dataset.Pools {
		s.Examples[pool] = dataset.NewSet()
	}
	return s
}

// Batch returns the batch descriptor for proving split with the current
// models.
func (s *State) Batch(split string) batch.Batch {
	return batch.Batch{
		Split:      split,
		Iteration:  s.Iteration,
		Model:      s.Models[dataset.PoolUnit],
		TupleModel: s.Models[dataset.PoolTuple],
	}
}

// #endregion state

// #region deltas

// ProvingDelta is the output of the proving phase.
type ProvingDelta struct {
	Attempts map[string][]batch.Attempt
	Errors   map[string]error // per split; the other split still ran
}

// MiningDelta is the output of the mining phase.
type MiningDelta struct {
	Mined map[dataset.Pool]mining.Result
}

// TrainingResult is the outcome of searching and training one pool.
type TrainingResult struct {
	Params  hparams.Params // nil when the default config was used
	Report  gridsearch.Report
	Model   string
	Skipped bool // pool had no examples; the previous model is kept
}

// TrainingDelta is the output of the searching-and-training phase.
type TrainingDelta struct {
	Pools map[dataset.Pool]TrainingResult
}

// ApplyProving appends the delta's attempts.
func (s *State) ApplyProving(d ProvingDelta) {
	for split, attempts := range d.Attempts {
		s.Attempts[split] = append(s.Attempts[split], attempts...)
	}
}

// ApplyMining unions the mined examples into the running sets and returns
// how many new examples each pool gained.
func (s *State) ApplyMining(d MiningDelta) map[dataset.Pool]int {
	added := make(map[dataset.Pool]int, len(d.Mined))
	for pool, res := range d.Mined {
		added[pool] = s.Examples[pool].Union(res.Examples)
	}
	return added
}

// ApplyTraining replaces the current model of every pool that was trained.
func (s *State) ApplyTraining(d TrainingDelta) {
	for pool, res := range d.Pools {
		if !res.Skipped {
			s.Models[pool] = res.Model
		}
	}
}

// #endregion deltas

// #region summary

// Summary is the per-iteration report.
type Summary struct {
	Iteration int
	Train     tracker.SplitStats
	Test      *tracker.SplitStats // nil without a testing split
	Examples  map[dataset.Pool]int
	Models    map[dataset.Pool]string
	Duration  time.Duration
}

// #endregion summary
