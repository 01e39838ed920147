// Package gbdt fits and scores gradient-boosted tree models for the grid
// search. Fitting is delegated either to the external trainer script or to
// a remote booster service.
package gbdt

import (
	"context"

	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/dataset"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/hparams"
)

// Model scores examples; higher means more likely positive.
type Model interface {
	Predict(ctx context.Context, examples []dataset.Example) ([]float64, error)
}

// Fitter trains a Model on labeled examples with the given settings.
type Fitter interface {
	Fit(ctx context.Context, params hparams.Params, train []dataset.Example) (Model, error)
}
