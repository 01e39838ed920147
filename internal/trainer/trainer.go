package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/dataset"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/hparams"
)

// ErrNoArtifact is returned when the trainer finished without leaving a
// model file behind.
var ErrNoArtifact = errors.New("trainer produced no model")

// #region artifacts

// Artifacts are the files one training call reads and writes.
type Artifacts struct {
	Examples string
	Config   string
	Model    string
}

// ArtifactsFor names the files for pool in iteration inside dir:
// training_examples_<i>, training_<i>.config and model_<i> for the unit
// pool, with a "tuples_" infix for the tuple pool.
func ArtifactsFor(dir string, pool dataset.Pool, iteration int) Artifacts {
	i := strconv.Itoa(iteration)
	if pool.Tuples() {
		return Artifacts{
			Examples: filepath.Join(dir, "training_examples_tuples_"+i),
			Config:   filepath.Join(dir, "training_tuples_"+i+".config"),
			Model:    filepath.Join(dir, "model_tuples_"+i),
		}
	}
	return Artifacts{
		Examples: filepath.Join(dir, "training_examples_"+i),
		Config:   filepath.Join(dir, "training_"+i+".config"),
		Model:    filepath.Join(dir, "model_"+i),
	}
}

// #endregion artifacts

// #region trainer

// Options configures a Trainer.
type Options struct {
	// Dir receives example files, configs and models.
	Dir string
	// DefaultConfig is copied verbatim when no hyperparameters are given.
	DefaultConfig string
	// Base is written as the config when neither params nor DefaultConfig
	// are available.
	Base   hparams.Params
	Logger *slog.Logger
}

// Trainer writes training inputs and runs the Gateway over them.
type Trainer struct {
	gateway       Gateway
	dir           string
	defaultConfig string
	base          hparams.Params
	logger        *slog.Logger
}

// New creates a Trainer.
func New(gw Gateway, opts Options) *Trainer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Trainer{
		gateway:       gw,
		dir:           opts.Dir,
		defaultConfig: opts.DefaultConfig,
		base:          opts.Base,
		logger:        opts.Logger.With("component", "trainer"),
	}
}

// Train writes set and the chosen config for pool and iteration, runs the
// trainer and returns the model path. A nil params selects the default
// config. Any model left from an earlier run at the same path is removed
// first so a stale file is never mistaken for a fresh artifact.
func (t *Trainer) Train(ctx context.Context, set *dataset.Set, params hparams.Params, pool dataset.Pool, iteration int) (string, error) {
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return "", fmt.Errorf("create training dir: %w", err)
	}
	a := ArtifactsFor(t.dir, pool, iteration)

	if err := dataset.WriteFile(a.Examples, set.Sorted()); err != nil {
		return "", err
	}
	if err := t.writeConfig(a.Config, params); err != nil {
		return "", err
	}
	if err := os.Remove(a.Model); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("remove stale model: %w", err)
	}

	t.logger.Info("training", "pool", pool, "iteration", iteration,
		"examples", set.Len(), "config", a.Config, "params", params.String())

	runErr := t.gateway.Train(ctx, a.Examples, a.Model, a.Config)
	if ctx.Err() != nil {
		return "", fmt.Errorf("train %s model: %w", pool, ctx.Err())
	}
	if _, err := os.Stat(a.Model); err != nil {
		return "", fmt.Errorf("train %s model %s: %w", pool, a.Model, errors.Join(ErrNoArtifact, runErr))
	}
	if runErr != nil {
		t.logger.Warn("trainer reported an error but left a model", "pool", pool,
			"iteration", iteration, "model", a.Model, "err", runErr)
	}
	return a.Model, nil
}

func (t *Trainer) writeConfig(path string, params hparams.Params) error {
	if params != nil {
		return hparams.WriteConfig(path, params)
	}
	if t.defaultConfig != "" {
		raw, err := os.ReadFile(t.defaultConfig)
		if err != nil {
			return fmt.Errorf("read default training config: %w", err)
		}
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			return fmt.Errorf("write training config: %w", err)
		}
		return nil
	}
	return hparams.WriteConfig(path, t.base)
}

// #endregion trainer
