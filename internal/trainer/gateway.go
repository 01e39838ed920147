// Package trainer drives the external model-training script and turns an
// example set plus hyperparameters into a model artifact on disk.
package trainer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/process"
)

// #region gateway

// Gateway invokes the trainer once. The model file at modelPath is the only
// result; callers check for it rather than trusting the exit status.
type Gateway interface {
	Train(ctx context.Context, examplesPath, modelPath, configPath string) error
}

// ScriptGateway runs `<script> <examples> <model> <config>`.
type ScriptGateway struct {
	script string
	runner process.Runner
	logger *slog.Logger
}

// NewScriptGateway creates a gateway for script.
func NewScriptGateway(script string, runner process.Runner, logger *slog.Logger) *ScriptGateway {
	if runner == nil {
		runner = process.NewExecRunner()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ScriptGateway{
		script: script,
		runner: runner,
		logger: logger.With("component", "trainer"),
	}
}

// Train runs the script and blocks until it exits.
func (g *ScriptGateway) Train(ctx context.Context, examplesPath, modelPath, configPath string) error {
	out, err := g.runner.Run(ctx, g.script, examplesPath, modelPath, configPath)
	if err != nil {
		g.logger.Debug("trainer exited with error",
			"examples", examplesPath, "model", modelPath, "err", err, "output", tail(out, 512))
		return fmt.Errorf("train %s: %w", modelPath, err)
	}
	return nil
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}

// #endregion gateway
