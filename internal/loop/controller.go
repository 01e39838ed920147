package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/batch"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/dataset"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/gridsearch"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/hparams"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/metrics"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/mining"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/tracker"
)

// #region collaborators

// Prover proves a whole split. *batch.Prover implements it.
type Prover interface {
	ProveAll(ctx context.Context, problems []string, b batch.Batch) ([]batch.Attempt, error)
}

// Miner mines one pool. *mining.Miner implements it.
type Miner interface {
	Mine(logs []string, ratio float64, pool dataset.Pool, rng *rand.Rand) mining.Result
}

// Searcher picks hyperparameters. *gridsearch.Searcher implements it.
type Searcher interface {
	Search(ctx context.Context, set *dataset.Set, grid hparams.Grid, pool dataset.Pool, rng *rand.Rand) (hparams.Params, gridsearch.Report, error)
}

// Trainer produces a model artifact. *trainer.Trainer implements it.
type Trainer interface {
	Train(ctx context.Context, set *dataset.Set, params hparams.Params, pool dataset.Pool, iteration int) (string, error)
}

// Recorder persists what the loop observes. Recording failures are logged
// and never stop the run.
type Recorder interface {
	RecordAttempts(ctx context.Context, iteration int, split string, attempts []batch.Attempt) error
	RecordGrid(ctx context.Context, iteration int, report gridsearch.Report) error
	RecordModel(ctx context.Context, iteration int, pool dataset.Pool, path string, params hparams.Params) error
	RecordIteration(ctx context.Context, s Summary) error
}

// #endregion collaborators

// #region options

// Options configures a Controller.
type Options struct {
	TrainProblems []string
	TestProblems  []string // optional
	Iterations    int
	NegPosRatio   float64
	Grid          hparams.Grid
	// DataDir receives the per-iteration instantiation comparison CSVs;
	// empty disables them.
	DataDir  string
	Rand     *rand.Rand
	Recorder Recorder
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	// OnPhase is called on every phase transition.
	OnPhase func(iteration int, p Phase)
}

// NewRand returns the PCG source every random draw of a run comes from.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// #endregion options

// #region controller

// Controller runs the prove-then-learn loop.
type Controller struct {
	prover   Prover
	miner    Miner
	searcher Searcher
	trainer  Trainer
	opts     Options
	logger   *slog.Logger
}

// New wires a Controller.
func New(p Prover, m Miner, s Searcher, t Trainer, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Rand == nil {
		opts.Rand = NewRand(uint64(time.Now().UnixNano()))
	}
	return &Controller{
		prover:   p,
		miner:    m,
		searcher: s,
		trainer:  t,
		opts:     opts,
		logger:   opts.Logger.With("component", "loop"),
	}
}

// Run executes the configured number of iterations from an empty state. It
// returns the final state even when it stops early with an error.
func (c *Controller) Run(ctx context.Context) (*State, error) {
	s := NewState()
	c.logger.Info("starting loop", "iterations", c.opts.Iterations,
		"train_problems", len(c.opts.TrainProblems), "test_problems", len(c.opts.TestProblems),
		"neg_pos_ratio", c.opts.NegPosRatio, "grid_points", c.opts.Grid.Size())

	for s.Iteration < c.opts.Iterations {
		if err := c.Step(ctx, s); err != nil {
			return s, err
		}
	}
	c.enter(s, PhaseDone)
	return s, nil
}

// Step runs one full iteration on s.
func (c *Controller) Step(ctx context.Context, s *State) error {
	start := time.Now()
	s.Iteration++
	c.enter(s, PhaseIterationStart)
	c.opts.Metrics.SetIteration(s.Iteration)
	c.logger.Info("iteration", "iteration", s.Iteration,
		"model", s.Models[dataset.PoolUnit], "tuple_model", s.Models[dataset.PoolTuple])

	c.enter(s, PhaseProving)
	proved, err := c.prove(ctx, s)
	if err != nil {
		return err
	}
	s.ApplyProving(proved)

	c.enter(s, PhaseMining)
	mined := c.mine(s, proved.Attempts[tracker.SplitTrain])
	added := s.ApplyMining(mined)
	for _, pool := range dataset.Pools {
		c.opts.Metrics.SetExamples(string(pool), s.Examples[pool].Len())
		c.logger.Info("mined", "iteration", s.Iteration, "pool", pool,
			"positives", mined.Mined[pool].Positives, "negatives_kept", mined.Mined[pool].NegativesKept,
			"new", added[pool], "total", s.Examples[pool].Len())
	}

	c.enter(s, PhaseSearchingAndTraining)
	trained, err := c.searchAndTrain(ctx, s)
	if err != nil {
		return err
	}
	s.ApplyTraining(trained)

	c.enter(s, PhaseIterationEnd)
	s.Summaries = append(s.Summaries, c.finish(ctx, s, proved, time.Since(start)))
	return nil
}

func (c *Controller) enter(s *State, p Phase) {
	s.Phase = p
	c.logger.Debug("phase", "iteration", s.Iteration, "phase", p.String())
	if c.opts.OnPhase != nil {
		c.opts.OnPhase(s.Iteration, p)
	}
}

// #endregion controller

// #region phases

type split struct {
	name     string
	problems []string
}

// splits lists the configured splits; the testing split only when it has
// problems.
func (c *Controller) splits() []split {
	out := []split{{name: tracker.SplitTrain, problems: c.opts.TrainProblems}}
	if len(c.opts.TestProblems) > 0 {
		out = append(out, split{name: tracker.SplitTest, problems: c.opts.TestProblems})
	}
	return out
}

func (c *Controller) prove(ctx context.Context, s *State) (ProvingDelta, error) {
	d := ProvingDelta{Attempts: make(map[string][]batch.Attempt), Errors: make(map[string]error)}
	for _, sp := range c.splits() {
		if len(sp.problems) == 0 {
			continue
		}
		attempts, err := c.prover.ProveAll(ctx, sp.problems, s.Batch(sp.name))
		if err != nil {
			if ctx.Err() != nil {
				return d, fmt.Errorf("iteration %d: %w", s.Iteration, err)
			}
			d.Errors[sp.name] = err
			c.logger.Error("proving split failed", "iteration", s.Iteration,
				"phase", PhaseProving.String(), "split", sp.name, "err", err)
			continue
		}
		d.Attempts[sp.name] = attempts
		c.record(c.recorder().RecordAttempts(ctx, s.Iteration, sp.name, attempts), "attempts", s)
	}
	return d, nil
}

// mine reads only this iteration's solved training logs; testing logs never
// reach the example sets.
func (c *Controller) mine(s *State, train []batch.Attempt) MiningDelta {
	logs := batch.LogPaths(batch.Solved(train))
	d := MiningDelta{Mined: make(map[dataset.Pool]mining.Result, len(dataset.Pools))}
	for _, pool := range dataset.Pools {
		d.Mined[pool] = c.miner.Mine(logs, c.opts.NegPosRatio, pool, c.opts.Rand)
	}
	return d
}

func (c *Controller) searchAndTrain(ctx context.Context, s *State) (TrainingDelta, error) {
	d := TrainingDelta{Pools: make(map[dataset.Pool]TrainingResult, len(dataset.Pools))}
	for _, pool := range dataset.Pools {
		set := s.Examples[pool]
		if set.Len() == 0 {
			c.logger.Warn("no examples, keeping previous model", "iteration", s.Iteration,
				"pool", pool, "model", s.Models[pool])
			d.Pools[pool] = TrainingResult{Skipped: true, Report: gridsearch.Report{Pool: pool, Best: -1}}
			continue
		}

		params, report, err := c.searcher.Search(ctx, set, c.opts.Grid, pool, c.opts.Rand)
		switch {
		case ctx.Err() != nil:
			return d, fmt.Errorf("iteration %d: %w", s.Iteration, ctx.Err())
		case errors.Is(err, gridsearch.ErrNoTrial):
			c.logger.Warn("grid search found nothing, training with default config",
				"iteration", s.Iteration, "pool", pool, "err", err)
			params = nil
		case err != nil:
			return d, fmt.Errorf("iteration %d: %w", s.Iteration, err)
		}
		c.record(c.recorder().RecordGrid(ctx, s.Iteration, report), "grid", s)

		model, err := c.trainer.Train(ctx, set, params, pool, s.Iteration)
		if err != nil {
			c.logger.Error("training failed", "iteration", s.Iteration,
				"phase", PhaseSearchingAndTraining.String(), "pool", pool, "err", err)
			return d, fmt.Errorf("iteration %d: %w", s.Iteration, err)
		}
		c.record(c.recorder().RecordModel(ctx, s.Iteration, pool, model, params), "model", s)
		d.Pools[pool] = TrainingResult{Params: params, Report: report, Model: model}
	}
	return d, nil
}

func (c *Controller) finish(ctx context.Context, s *State, proved ProvingDelta, elapsed time.Duration) Summary {
	sum := Summary{
		Iteration: s.Iteration,
		Examples:  make(map[dataset.Pool]int, len(dataset.Pools)),
		Models:    make(map[dataset.Pool]string, len(dataset.Pools)),
		Duration:  elapsed,
	}
	for _, pool := range dataset.Pools {
		sum.Examples[pool] = s.Examples[pool].Len()
		sum.Models[pool] = s.Models[pool]
	}

	for _, sp := range c.splits() {
		attempts := proved.Attempts[sp.name]
		st := s.Tracker.Observe(sp.name, s.Iteration, attempts)
		c.opts.Metrics.SetSolvedAllTime(sp.name, st.SolvedAllTime)
		if sp.name == tracker.SplitTrain {
			sum.Train = st
		} else {
			sum.Test = &st
		}
		c.compare(s, sp.name, batch.Solved(attempts))

		args := []any{"iteration", s.Iteration, "split", sp.name,
			"solved_now", st.SolvedNow, "solved_all_time", st.SolvedAllTime,
			"new", st.NewlySolved, "failed", st.Failed}
		if st.HasAvgInst {
			args = append(args, "avg_instantiations", st.AvgInst)
		}
		c.logger.Info("iteration summary", args...)
	}
	c.logger.Info("iteration done", "iteration", s.Iteration,
		"unit_examples", sum.Examples[dataset.PoolUnit], "tuple_examples", sum.Examples[dataset.PoolTuple],
		"elapsed", elapsed)
	c.record(c.recorder().RecordIteration(ctx, sum), "iteration", s)
	return sum
}

func (c *Controller) compare(s *State, splitName string, solved []batch.Attempt) {
	if c.opts.DataDir == "" {
		return
	}
	pairs, ok := tracker.Compare(s.Tracker.Baseline(splitName), solved)
	if !ok {
		return
	}
	path := filepath.Join(c.opts.DataDir, "insts_"+splitName+"_"+strconv.Itoa(s.Iteration)+".csv")
	err := os.MkdirAll(c.opts.DataDir, 0o755)
	if err == nil {
		err = tracker.WriteCSV(path, pairs)
	}
	if err != nil {
		c.logger.Warn("instantiation comparison not written", "path", path, "err", err)
	}
}

// #endregion phases

// #region recording

type nopRecorder struct{}

func (nopRecorder) RecordAttempts(context.Context, int, string, []batch.Attempt) error { return nil }
func (nopRecorder) RecordGrid(context.Context, int, gridsearch.Report) error { return nil }
func (nopRecorder) RecordIteration(context.Context, Summary) error { return nil }
func (nopRecorder) RecordModel(context.Context, int, dataset.Pool, string, hparams.Params) error {
	return nil
}

func (c *Controller) recorder() Recorder {
	if c.opts.Recorder == nil {
		return nopRecorder{}
	}
	return c.opts.Recorder
}

func (c *Controller) record(err error, what string, s *State) {
	if err != nil {
		c.logger.Warn("ledger write failed", "what", what, "iteration", s.Iteration, "err", err)
	}
}

// #endregion recording
