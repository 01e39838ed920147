package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/batch"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/config"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/gbdt"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/gridsearch"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/hparams"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/ledger"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/loop"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/metrics"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/mining"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/process"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/prover"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/runlock"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/trainer"
)

// #region run-cmd
func newRunCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full prove/mine/search/train loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.resolve(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr(), o.logLevel, o.logFormat)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runLoop(ctx, cfg, logger)
		},
	}
}
// #endregion run-cmd

// #region run-loop
func runLoop(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	lock, err := runlock.Acquire(cfg.LockPath())
	if err != nil {
		return err
	}
	defer lock.Release()

	trainProblems, err := config.ReadProblems(cfg.TrainingProblems)
	if err != nil {
		return err
	}
	testProblems, err := config.ReadProblems(cfg.TestingProblems)
	if err != nil {
		return err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	logger.Info("run configured", "data_dir", cfg.DataDir, "seed", seed,
		"train_problems", len(trainProblems), "test_problems", len(testProblems),
		"workers", cfg.Workers, "backend", cfg.Backend)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer shutdown(srv)
	}

	store, err := ledger.NewStore(cfg.LedgerPath())
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()
	cfgJSON, _ := json.Marshal(cfg)
	run, err := store.StartRun(ctx, seed, string(cfgJSON))
	if err != nil {
		return err
	}
	logger.Info("ledger run started", "run_id", run.ID(), "ledger", cfg.LedgerPath())

	runner := process.NewExecRunner()
	proverGW := prover.NewScriptGateway(cfg.ProvingScript, cfg.KillGrace, runner, logger)
	bp := batch.New(proverGW, batch.Options{
		LogsDir:   cfg.LogsDir(),
		Workers:   cfg.Workers,
		TimeLimit: cfg.SolvingTimeLimit,
		Metrics:   m,
		Logger:    logger,
	})

	trainGW := trainer.NewScriptGateway(cfg.TrainingScript, runner, logger)
	base := hparams.Base(cfg.Workers)
	tr := trainer.New(trainGW, trainer.Options{
		Dir:           cfg.DataDir,
		DefaultConfig: cfg.TrainingConfig,
		Base:          base,
		Logger:        logger,
	})

	fitter, closeFitter, err := newFitter(cfg, trainGW, logger)
	if err != nil {
		return err
	}
	defer closeFitter()
	searcher := gridsearch.New(fitter, gridsearch.Options{
		Base:    base,
		Workers: cfg.GridWorkers,
		Metrics: m,
		Logger:  logger,
	})

	ctrl := loop.New(bp, mining.New(logger), searcher, tr, loop.Options{
		TrainProblems: trainProblems,
		TestProblems:  testProblems,
		Iterations:    cfg.Iterations,
		NegPosRatio:   cfg.NegPosRatio,
		Grid:          cfg.Grid,
		DataDir:       cfg.DataDir,
		Rand:          loop.NewRand(seed),
		Recorder:      run,
		Metrics:       m,
		Logger:        logger,
	})

	_, runErr := ctrl.Run(ctx)
	if err := run.Finish(context.Background(), runErr); err != nil {
		logger.Warn("ledger finish failed", "run_id", run.ID(), "err", err)
	}
	if runErr != nil {
		return fmt.Errorf("run %s: %w", run.ID(), runErr)
	}
	logger.Info("loop finished", "run_id", run.ID())
	return nil
}
// #endregion run-loop

// #region wiring
// newFitter returns the grid-search fit capability for cfg.Backend and a
// func releasing its resources.
func newFitter(cfg config.Config, gw trainer.Gateway, logger *slog.Logger) (gbdt.Fitter, func() error, error) {
	switch cfg.Backend {
	case config.BackendGRPC:
		rf, err := gbdt.NewRemoteFitter(cfg.BackendAddr)
		if err != nil {
			return nil, nil, err
		}
		return rf, rf.Close, nil
	default:
		return gbdt.NewScriptFitter(gw, cfg.ScratchDir(), cfg.KeepScratch, logger), func() error { return nil }, nil
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "addr", addr, "err", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return srv
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
// #endregion wiring
