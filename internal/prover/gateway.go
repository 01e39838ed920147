// Package prover invokes the external proving script once per problem.
package prover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/process"
)

// ErrTimedOut reports that the supervisory timeout killed the prover.
var ErrTimedOut = errors.New("prover exceeded its time budget")

// #region types

// Request describes one proving attempt.
type Request struct {
	Problem    string
	LogPath    string
	TimeLimit  time.Duration
	Model      string // empty before the first model is trained
	TupleModel string
}

// Gateway runs the prover for a single request and blocks until it exits.
// The log at LogPath is the only result; a returned error means the attempt
// failed and is never fatal to the run.
type Gateway interface {
	Prove(ctx context.Context, req Request) error
}

// #endregion types

// #region script-gateway

// ScriptGateway runs a proving script as
// `<script> <problem> <log> <seconds> [<model> <tupleModel>]`.
type ScriptGateway struct {
	script    string
	killGrace time.Duration
	runner    process.Runner
	logger    *slog.Logger
}

// NewScriptGateway creates a gateway for script. killGrace is added on top of
// each request's time limit before the process is forcibly terminated.
func NewScriptGateway(script string, killGrace time.Duration, runner process.Runner, logger *slog.Logger) *ScriptGateway {
	if runner == nil {
		runner = process.NewExecRunner()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ScriptGateway{
		script:    script,
		killGrace: killGrace,
		runner:    runner,
		logger:    logger.With("component", "prover"),
	}
}

// Prove runs the script for req under a supervisory deadline.
func (g *ScriptGateway) Prove(ctx context.Context, req Request) error {
	callCtx := ctx
	if req.TimeLimit > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, req.TimeLimit+g.killGrace)
		defer cancel()
	}

	start := time.Now()
	out, err := g.runner.Run(callCtx, g.script, Args(req)...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		g.logger.Warn("prover killed after deadline",
			"problem", req.Problem, "log", req.LogPath, "elapsed", time.Since(start))
		return fmt.Errorf("prove %s: %w", req.Problem, ErrTimedOut)
	}
	g.logger.Debug("prover exited with error",
		"problem", req.Problem, "err", err, "output", tail(out, 512))
	return fmt.Errorf("prove %s: %w", req.Problem, err)
}

// Args builds the script arguments for req. The model pair is passed only
// when at least one reference is set, and then always as two positions.
func Args(req Request) []string {
	seconds := int(req.TimeLimit / time.Second)
	args := []string{req.Problem, req.LogPath, strconv.Itoa(seconds)}
	if req.Model != "" || req.TupleModel != "" {
		args = append(args, req.Model, req.TupleModel)
	}
	return args
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}

// #endregion script-gateway
