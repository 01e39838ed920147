// Command loop runs the prove-then-learn bootstrapping loop.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/config"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/hparams"
)

// #region main
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:           "loop",
		Short:         "Alternate proving and model training to bootstrap instantiation guidance",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&o.configPath, "config", "", "YAML config file")
	pf.StringVar(&o.envFile, "env-file", ".env", "dotenv file with PREMSEL_* overrides")
	pf.StringVar(&o.logLevel, "log-level", "info", "debug|info|warn|error")
	pf.StringVar(&o.logFormat, "log-format", "text", "text|json")
	o.bind(root)

	root.AddCommand(newRunCmd(o), newGridCmd(o))
	return root
}
// #endregion main

// #region options

// options holds the raw flag values; only flags the user set override the
// file and environment.
type options struct {
	configPath string
	envFile    string
	logLevel   string
	logFormat  string

	flags config.Config
	grid  string
}

func (o *options) bind(root *cobra.Command) {
	d := config.Default()
	pf := root.PersistentFlags()
	pf.StringVar(&o.flags.TrainingProblems, "training-problems", "", "file listing training problems")
	pf.StringVar(&o.flags.TestingProblems, "testing-problems", "", "file listing testing problems (optional)")
	pf.StringVar(&o.flags.ProvingScript, "proving-script", "", "prover wrapper script")
	pf.StringVar(&o.flags.TrainingScript, "training-script", "", "trainer wrapper script")
	pf.StringVar(&o.flags.TrainingConfig, "training-config", "", "trainer config used when no grid point is chosen")
	pf.StringVar(&o.flags.DataDir, "data-dir", "", "directory for logs, examples, models and the ledger")
	pf.IntVar(&o.flags.Workers, "n-jobs", d.Workers, "parallel prover workers")
	pf.IntVar(&o.flags.Iterations, "iterations", d.Iterations, "loop iterations")
	pf.DurationVar(&o.flags.SolvingTimeLimit, "solving-time-limit", d.SolvingTimeLimit, "per-problem time limit")
	pf.DurationVar(&o.flags.KillGrace, "kill-grace", d.KillGrace, "extra time before a stalled prover is killed")
	pf.Float64Var(&o.flags.NegPosRatio, "neg-pos-ratio", d.NegPosRatio, "negatives kept per positive example")
	pf.Uint64Var(&o.flags.Seed, "seed", 0, "random seed (0 derives one from the clock)")
	pf.StringVar(&o.grid, "grid", "", `hyperparameter grid, e.g. "eta:0.01,0.1;num_trees:10,50"`)
	pf.IntVar(&o.flags.GridWorkers, "grid-workers", d.GridWorkers, "grid points evaluated in parallel")
	pf.BoolVar(&o.flags.KeepScratch, "keep-scratch", false, "keep per-point grid search directories")
	pf.StringVar(&o.flags.Backend, "backend", d.Backend, "grid search fit backend: script|grpc")
	pf.StringVar(&o.flags.BackendAddr, "backend-addr", "", "booster service address for the grpc backend")
	pf.StringVar(&o.flags.Ledger, "ledger", "", "ledger database (default <data-dir>/ledger.db)")
	pf.StringVar(&o.flags.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
}

// resolve layers defaults, the config file, the environment and set flags.
func (o *options) resolve(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if err := config.LoadEnv(&cfg, o.envFile); err != nil {
		return config.Config{}, err
	}

	set := func(name string) bool { return cmd.Flags().Changed(name) }
	str := func(name string, dst *string, v string) {
		if set(name) {
			*dst = v
		}
	}
	str("training-problems", &cfg.TrainingProblems, o.flags.TrainingProblems)
	str("testing-problems", &cfg.TestingProblems, o.flags.TestingProblems)
	str("proving-script", &cfg.ProvingScript, o.flags.ProvingScript)
	str("training-script", &cfg.TrainingScript, o.flags.TrainingScript)
	str("training-config", &cfg.TrainingConfig, o.flags.TrainingConfig)
	str("data-dir", &cfg.DataDir, o.flags.DataDir)
	str("backend", &cfg.Backend, o.flags.Backend)
	str("backend-addr", &cfg.BackendAddr, o.flags.BackendAddr)
	str("ledger", &cfg.Ledger, o.flags.Ledger)
	str("metrics-addr", &cfg.MetricsAddr, o.flags.MetricsAddr)
	if set("n-jobs") {
		cfg.Workers = o.flags.Workers
	}
	if set("iterations") {
		cfg.Iterations = o.flags.Iterations
	}
	if set("solving-time-limit") {
		cfg.SolvingTimeLimit = o.flags.SolvingTimeLimit
	}
	if set("kill-grace") {
		cfg.KillGrace = o.flags.KillGrace
	}
	if set("neg-pos-ratio") {
		cfg.NegPosRatio = o.flags.NegPosRatio
	}
	if set("seed") {
		cfg.Seed = o.flags.Seed
	}
	if set("grid-workers") {
		cfg.GridWorkers = o.flags.GridWorkers
	}
	if set("keep-scratch") {
		cfg.KeepScratch = o.flags.KeepScratch
	}
	if set("grid") {
		g, err := hparams.ParseGrid(o.grid)
		if err != nil {
			return config.Config{}, fmt.Errorf("--grid: %w", err)
		}
		cfg.Grid = g
	}
	return cfg, nil
}

// #endregion options

// #region logging

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lv}
	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("--log-format: unknown format %q", format)
	}
}

// #endregion logging
