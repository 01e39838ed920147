// Package batch fans the prover gateway out over a problem set with a fixed
// number of workers and classifies every attempt from its log.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/metrics"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/prooflog"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/prover"
)

// DefaultWorkers is the pool width used when Options.Workers is not positive.
const DefaultWorkers = 10

// #region types

// Attempt is the outcome of running the prover once on a problem.
type Attempt struct {
	Problem           string
	LogPath           string
	Solved            bool
	Instantiations    int
	HasInstantiations bool
	ProblemName       string
	Duration          time.Duration
	Err               error // gateway or log-read failure; informational only
}

// Batch identifies one proving pass for logging and model selection.
type Batch struct {
	Split      string
	Iteration  int
	Model      string
	TupleModel string
}

// Options configures a Prover.
type Options struct {
	LogsDir   string
	Workers   int
	TimeLimit time.Duration
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// #endregion types

// #region prover

// Prover runs whole problem sets through a prover.Gateway.
type Prover struct {
	gateway   prover.Gateway
	logsDir   string
	workers   int
	timeLimit time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
	logName   func() string
}

// New creates a Prover that writes logs under opts.LogsDir.
func New(gw prover.Gateway, opts Options) *Prover {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Prover{
		gateway:   gw,
		logsDir:   opts.LogsDir,
		workers:   opts.Workers,
		timeLimit: opts.TimeLimit,
		metrics:   opts.Metrics,
		logger:    opts.Logger.With("component", "batch"),
		logName:   func() string { return uuid.NewString() + ".log" },
	}
}

// LogsDir returns the directory attempt logs are written to.
func (p *Prover) LogsDir() string { return p.logsDir }

// ProveAll proves every problem and returns one Attempt per input, in input
// order. It returns only after every worker has finished. Individual
// failures are recorded on the Attempt; the only error returned is context
// cancellation or an unusable logs directory.
func (p *Prover) ProveAll(ctx context.Context, problems []string, b Batch) ([]Attempt, error) {
	if len(problems) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(p.logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}

	attempts := make([]Attempt, len(problems))
	for i, problem := range problems {
		attempts[i] = Attempt{
			Problem: problem,
			LogPath: filepath.Join(p.logsDir, p.logName()),
		}
	}

	p.logger.Info("proving", "split", b.Split, "iteration", b.Iteration,
		"problems", len(problems), "workers", p.workers, "logs", p.logsDir,
		"model", b.Model, "tuple_model", b.TupleModel)

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i := range attempts {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			a := &attempts[i]
			start := time.Now()
			a.Err = p.gateway.Prove(ctx, prover.Request{
				Problem:    a.Problem,
				LogPath:    a.LogPath,
				TimeLimit:  p.timeLimit,
				Model:      b.Model,
				TupleModel: b.TupleModel,
			})
			a.Duration = time.Since(start)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("prove %s split: %w", b.Split, err)
	}

	for i := range attempts {
		p.classify(&attempts[i], b)
	}
	return attempts, nil
}

func (p *Prover) classify(a *Attempt, b Batch) {
	st, err := prooflog.ReadStatus(a.LogPath)
	if err != nil {
		a.Err = errors.Join(a.Err, err)
	} else {
		a.Solved = st.Solved && !errors.Is(a.Err, prover.ErrTimedOut)
		a.Instantiations = st.Instantiations
		a.HasInstantiations = st.HasInstantiations
		a.ProblemName = st.ProblemName
	}

	outcome := "unsolved"
	switch {
	case a.Solved:
		outcome = "solved"
	case a.Err != nil:
		outcome = "failed"
		p.logger.Warn("attempt failed", "split", b.Split, "iteration", b.Iteration,
			"problem", a.Problem, "log", a.LogPath, "err", a.Err)
	}
	p.metrics.ObserveAttempt(b.Split, outcome, a.Duration)
}

// #endregion prover

// #region projections

// Solved returns the solved attempts, preserving order.
func Solved(attempts []Attempt) []Attempt {
	out := make([]Attempt, 0, len(attempts))
	for _, a := range attempts {
		if a.Solved {
			out = append(out, a)
		}
	}
	return out
}

// LogPaths returns the log path of each attempt.
func LogPaths(attempts []Attempt) []string {
	out := make([]string, len(attempts))
	for i, a := range attempts {
		out[i] = a.LogPath
	}
	return out
}

// #endregion projections
