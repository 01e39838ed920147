package gbdt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dmitryikh/leaves"
	"github.com/google/uuid"

	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/dataset"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/hparams"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/trainer"
)

// #region script-fitter

// ScriptFitter trains through the trainer gateway in a scratch directory and
// loads the resulting LightGBM text model in-process for scoring.
type ScriptFitter struct {
	gateway trainer.Gateway
	scratch string
	keep    bool
	logger  *slog.Logger
	load    func(path string) (Model, error)
}

// NewScriptFitter creates a fitter that works under scratchDir/<uuid>/.
// With keep set the per-fit directories are left on disk for inspection.
func NewScriptFitter(gw trainer.Gateway, scratchDir string, keep bool, logger *slog.Logger) *ScriptFitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScriptFitter{
		gateway: gw,
		scratch: scratchDir,
		keep:    keep,
		logger:  logger.With("component", "gbdt"),
		load:    LoadLightGBM,
	}
}

// Fit writes train and params, runs the trainer and loads its model.
func (f *ScriptFitter) Fit(ctx context.Context, params hparams.Params, train []dataset.Example) (Model, error) {
	dir := filepath.Join(f.scratch, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	if !f.keep {
		defer os.RemoveAll(dir)
	}

	examples := filepath.Join(dir, "train")
	config := filepath.Join(dir, "train.config")
	model := filepath.Join(dir, "model")
	if err := dataset.WriteFile(examples, train); err != nil {
		return nil, err
	}
	if err := hparams.WriteConfig(config, params); err != nil {
		return nil, err
	}

	runErr := f.gateway.Train(ctx, examples, model, config)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if _, err := os.Stat(model); err != nil {
		return nil, fmt.Errorf("fit %s: %w", dir, errors.Join(trainer.ErrNoArtifact, runErr))
	}
	if runErr != nil {
		f.logger.Debug("trainer reported an error but left a model", "dir", dir, "err", runErr)
	}
	return f.load(model)
}

// #endregion script-fitter

// #region leaves-model

// LightGBMModel scores examples with an in-memory tree ensemble.
type LightGBMModel struct {
	ensemble *leaves.Ensemble
}

// LoadLightGBM reads a LightGBM text model, applying its output
// transformation so binary models yield probabilities.
func LoadLightGBM(path string) (Model, error) {
	ens, err := leaves.LGEnsembleFromFile(path, true)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", path, err)
	}
	return &LightGBMModel{ensemble: ens}, nil
}

// Predict scores each example with every tree of the ensemble.
func (m *LightGBMModel) Predict(ctx context.Context, examples []dataset.Example) ([]float64, error) {
	width := m.ensemble.NFeatures()
	scores := make([]float64, len(examples))
	for i, ex := range examples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scores[i] = m.ensemble.PredictSingle(ex.Dense(width), 0)
	}
	return scores, nil
}

// #endregion leaves-model
