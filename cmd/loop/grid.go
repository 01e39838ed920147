package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/config"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/dataset"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/gridsearch"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/hparams"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/loop"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/trainer"
)

// #region grid-cmd
func newGridCmd(o *options) *cobra.Command {
	var examples, out, pool string
	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Run one grid search over an existing example file and print the best config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.resolve(cmd)
			if err != nil {
				return err
			}
			if examples == "" {
				return fmt.Errorf("%w: --examples is required", config.ErrInvalid)
			}
			if cfg.Backend == config.BackendScript && cfg.TrainingScript == "" {
				return fmt.Errorf("%w: training_script is required", config.ErrInvalid)
			}
			if cfg.DataDir == "" {
				cfg.DataDir = "."
			}
			logger, err := newLogger(cmd.ErrOrStderr(), o.logLevel, o.logFormat)
			if err != nil {
				return err
			}

			set, err := dataset.ReadFile(examples)
			if err != nil {
				return err
			}
			gw := trainer.NewScriptGateway(cfg.TrainingScript, nil, logger)
			fitter, closeFitter, err := newFitter(cfg, gw, logger)
			if err != nil {
				return err
			}
			defer closeFitter()

			searcher := gridsearch.New(fitter, gridsearch.Options{
				Base:    hparams.Base(cfg.Workers),
				Workers: cfg.GridWorkers,
				Logger:  logger,
			})
			params, report, err := searcher.Search(cmd.Context(), set, cfg.Grid, dataset.Pool(pool), loop.NewRand(cfg.Seed))
			if err != nil {
				return err
			}
			if params == nil {
				return errors.New("example file is empty")
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "best auc %.4f over %d points (train %d, heldout %d)\n",
				report.BestAUC, len(report.Trials), report.Train, report.Heldout)
			if out != "" {
				return hparams.WriteConfig(out, params)
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(params.ConfigLines(), "\n"))
			return nil
		},
	}
	cmd.Flags().StringVar(&examples, "examples", "", "labeled example file")
	cmd.Flags().StringVar(&out, "out", "", "write the chosen config here instead of stdout")
	cmd.Flags().StringVar(&pool, "pool", string(dataset.PoolUnit), "pool label for logs: unit|tuple")
	return cmd
}
// #endregion grid-cmd
