// Package gridsearch picks trainer hyperparameters by fitting one model per
// grid point on a fixed split and ranking the points by held-out AUC.
package gridsearch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/dataset"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/gbdt"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/hparams"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/metrics"
)

// HoldoutFraction is the share of examples, taken from the front of the
// shuffled sequence, that is used for evaluation.
const HoldoutFraction = 0.25

// #region types

// Trial is the evaluation of one grid point.
type Trial struct {
	Index    int
	Params   hparams.Params
	AUC      float64
	Duration time.Duration
	Err      error // fit or predict failure; the point is skipped
}

// Report describes one search.
type Report struct {
	Pool       dataset.Pool
	Train      int
	Heldout    int
	Degenerate bool // held-out split lacks a class; every point scored 0.5
	Trials     []Trial
	Best       int // index into Trials, -1 when no point succeeded
	BestAUC    float64
}

// Options configures a Searcher.
type Options struct {
	// Base is merged under every grid point.
	Base hparams.Params
	// Workers bounds concurrently evaluated points; 1 evaluates in order.
	Workers int
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// #endregion types

// #region searcher

// ErrNoTrial is returned when every grid point failed.
var ErrNoTrial = errors.New("no grid point could be evaluated")

// Searcher runs grid searches through a gbdt.Fitter.
type Searcher struct {
	fitter  gbdt.Fitter
	base    hparams.Params
	workers int
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Searcher.
func New(fitter gbdt.Fitter, opts Options) *Searcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Searcher{
		fitter:  fitter,
		base:    opts.Base,
		workers: opts.Workers,
		metrics: opts.Metrics,
		logger:  opts.Logger.With("component", "gridsearch"),
	}
}

// Search returns the base settings merged with the best grid point for set.
// An empty set yields nil params and no error. The pre-split order is the
// set's sorted order shuffled by rng, so a seeded rng reproduces the split.
func (s *Searcher) Search(ctx context.Context, set *dataset.Set, grid hparams.Grid, pool dataset.Pool, rng *rand.Rand) (hparams.Params, Report, error) {
	report := Report{Pool: pool, Best: -1}
	if set.Len() == 0 {
		return nil, report, nil
	}

	heldout, train := Split(set, rng)
	report.Train, report.Heldout = len(train), len(heldout)
	labels := make([]bool, len(heldout))
	for i, ex := range heldout {
		labels[i] = ex.Positive()
	}

	points := grid.Points()
	report.Trials = make([]Trial, len(points))
	s.logger.Info("grid search", "pool", pool, "points", len(points),
		"train", len(train), "heldout", len(heldout), "workers", s.workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, point := range points {
		g.Go(func() error {
			t := &report.Trials[i]
			t.Index = i
			t.Params = s.base.Merge(point)
			if err := gctx.Err(); err != nil {
				t.Err = err
				return nil
			}
			start := time.Now()
			t.AUC, t.Err = s.evaluate(gctx, t.Params, train, heldout, labels)
			t.Duration = time.Since(start)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, report, fmt.Errorf("grid search %s: %w", pool, err)
	}

	best := math.Inf(-1)
	for i := range report.Trials {
		t := &report.Trials[i]
		if errors.Is(t.Err, ErrDegenerate) {
			report.Degenerate = true
			t.Err = nil
		}
		s.metrics.ObserveGridTrial(string(pool), t.Err == nil)
		if t.Err != nil {
			s.logger.Warn("grid point failed", "pool", pool, "point", i,
				"params", t.Params.String(), "err", t.Err)
			continue
		}
		s.logger.Debug("grid point", "pool", pool, "point", i,
			"params", t.Params.String(), "auc", t.AUC, "elapsed", t.Duration)
		if t.AUC > best {
			best = t.AUC
			report.Best = i
		}
	}
	if report.Best < 0 {
		return nil, report, fmt.Errorf("grid search %s: %w", pool, ErrNoTrial)
	}
	report.BestAUC = best
	s.metrics.SetBestAUC(string(pool), best)

	chosen := report.Trials[report.Best].Params
	s.logger.Info("best grid point", "pool", pool, "auc", best,
		"params", chosen.String(), "degenerate", report.Degenerate)
	return chosen, report, nil
}

func (s *Searcher) evaluate(ctx context.Context, params hparams.Params, train, heldout []dataset.Example, labels []bool) (float64, error) {
	model, err := s.fitter.Fit(ctx, params, train)
	if err != nil {
		return 0, fmt.Errorf("fit: %w", err)
	}
	scores, err := model.Predict(ctx, heldout)
	if err != nil {
		return 0, fmt.Errorf("predict: %w", err)
	}
	return AUC(scores, labels)
}

// #endregion searcher

// #region split

// Split shuffles the set's sorted examples with rng (the global source when
// nil) and holds out the first floor(HoldoutFraction*n) of them.
func Split(set *dataset.Set, rng *rand.Rand) (heldout, train []dataset.Example) {
	examples := set.Sorted()
	shuffle := rand.Shuffle
	if rng != nil {
		shuffle = rng.Shuffle
	}
	shuffle(len(examples), func(i, j int) { examples[i], examples[j] = examples[j], examples[i] })

	n := int(math.Floor(HoldoutFraction * float64(len(examples))))
	return examples[:n], examples[n:]
}

// #endregion split
