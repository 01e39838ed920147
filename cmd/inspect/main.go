// Command inspect reads a loop ledger and prints runs, per-iteration
// progress, grid trials and models.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/ledger"
	"github.com/BartoszPiotrowski/ml-guidance-for-instantiation-in-CVC5/internal/tracker"
)

// #region main

type options struct {
	dbPath  string
	jsonOut bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:           "inspect",
		Short:         "Inspect a loop ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&o.dbPath, "ledger", "", "path to ledger.db")
	root.PersistentFlags().BoolVar(&o.jsonOut, "json", false, "output as JSON instead of table")
	_ = root.MarkPersistentFlagRequired("ledger")

	root.AddCommand(newRunsCmd(o), newShowCmd(o), newTrialsCmd(o), newSolvedCmd(o))
	return root
}

func (o *options) open() (*ledger.Store, error) {
	store, err := ledger.NewStore(o.dbPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return store, nil
}

// #endregion main

// #region runs

type runRow struct {
	RunID      string `json:"run_id"`
	Status     string `json:"status"`
	Seed       string `json:"seed"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	Error      string `json:"error,omitempty"`
}

func newRunsCmd(o *options) *cobra.Command {
	var last int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List the most recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := o.open()
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), last)
			if err != nil {
				return err
			}
			rows := make([]runRow, len(runs))
			for i, r := range runs {
				rows[i] = toRunRow(r)
			}
			w := cmd.OutOrStdout()
			if o.jsonOut {
				return printJSON(w, rows)
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no runs found")
				return nil
			}
			printRunsTable(w, rows)
			return nil
		},
	}
	cmd.Flags().IntVar(&last, "last", 20, "show N most recent runs")
	return cmd
}

func toRunRow(r ledger.RunRecord) runRow {
	row := runRow{
		RunID:     r.RunID,
		Status:    r.Status,
		Seed:      r.Seed,
		StartedAt: r.StartedAt.Format("2006-01-02T15:04:05Z"),
		Error:     r.Error,
	}
	if !r.FinishedAt.IsZero() {
		row.FinishedAt = r.FinishedAt.Format("2006-01-02T15:04:05Z")
	}
	return row
}

func printRunsTable(w io.Writer, rows []runRow) {
	fmt.Fprintf(w, "%-10s  %-10s  %-20s  %-20s  %s\n", "Run", "Status", "Started", "Finished", "Seed")
	fmt.Fprintf(w, "%-10s+-%-10s+-%-20s+-%-20s+-%s\n",
		"----------", "----------", "--------------------", "--------------------", "----")
	for _, r := range rows {
		finished := "-"
		if r.FinishedAt != "" {
			finished = r.FinishedAt
		}
		fmt.Fprintf(w, "%-10s  %-10s  %-20s  %-20s  %s\n", shortID(r.RunID), r.Status, r.StartedAt, finished, r.Seed)
	}
}

// #endregion runs

// #region show

type showOutput struct {
	Run        runRow                   `json:"run"`
	Iterations []ledger.IterationRecord `json:"iterations"`
	Models     []ledger.ModelRecord     `json:"models"`
}

func newShowCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show per-iteration progress and models of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := o.open()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			run, err := store.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			its, err := store.Iterations(ctx, run.RunID)
			if err != nil {
				return err
			}
			models, err := store.Models(ctx, run.RunID)
			if err != nil {
				return err
			}
			out := showOutput{Run: toRunRow(run), Iterations: its, Models: models}

			w := cmd.OutOrStdout()
			if o.jsonOut {
				return printJSON(w, out)
			}
			printShow(w, out)
			return nil
		},
	}
}

func printShow(w io.Writer, out showOutput) {
	fmt.Fprintf(w, "Run:      %s\n", out.Run.RunID)
	fmt.Fprintf(w, "Status:   %s\n", out.Run.Status)
	fmt.Fprintf(w, "Seed:     %s\n", out.Run.Seed)
	fmt.Fprintf(w, "Started:  %s\n", out.Run.StartedAt)
	if out.Run.FinishedAt != "" {
		fmt.Fprintf(w, "Finished: %s\n", out.Run.FinishedAt)
	}
	if out.Run.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", out.Run.Error)
	}

	fmt.Fprintf(w, "\nIterations:\n")
	fmt.Fprintf(w, "  %4s  %-5s  %6s  %6s  %6s  %6s  %8s  %10s  %6s  %6s\n",
		"Iter", "Split", "Tried", "Failed", "Solved", "New", "AllTime", "AvgInst", "Unit", "Tuple")
	for _, it := range out.Iterations {
		avg := "-"
		if it.HasAvgInst {
			avg = fmt.Sprintf("%.2f", it.AvgInst)
		}
		unit, tuple := "", ""
		if it.Split == tracker.SplitTrain {
			unit, tuple = fmt.Sprint(it.UnitExamples), fmt.Sprint(it.TupleExamples)
		}
		fmt.Fprintf(w, "  %4d  %-5s  %6d  %6d  %6d  %6d  %8d  %10s  %6s  %6s\n",
			it.Iteration, it.Split, it.Attempted, it.Failed, it.SolvedNow, it.NewlySolved,
			it.SolvedAllTime, avg, unit, tuple)
	}

	if len(out.Models) > 0 {
		fmt.Fprintf(w, "\nModels:\n")
		for _, m := range out.Models {
			params := "default config"
			if m.ParamsJSON != "" {
				params = m.ParamsJSON
			}
			fmt.Fprintf(w, "  %4d  %-5s  %s  (%s)\n", m.Iteration, m.Pool, m.Path, params)
		}
	}
}

// #endregion show

// #region trials

func newTrialsCmd(o *options) *cobra.Command {
	var iteration int
	cmd := &cobra.Command{
		Use:   "trials <run-id>",
		Short: "List the grid search trials of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := o.open()
			if err != nil {
				return err
			}
			defer store.Close()

			trials, err := store.Trials(cmd.Context(), args[0], iteration)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if o.jsonOut {
				return printJSON(w, trials)
			}
			fmt.Fprintf(w, "%4s  %-5s  %5s  %6s  %4s  %s\n", "Iter", "Pool", "Point", "AUC", "Best", "Params")
			for _, t := range trials {
				auc := fmt.Sprintf("%.4f", t.AUC)
				if t.Error != "" {
					auc = "error"
				}
				best := ""
				if t.Best {
					best = "*"
				}
				fmt.Fprintf(w, "%4d  %-5s  %5d  %6s  %4s  %s\n", t.Iteration, t.Pool, t.Point, auc, best, t.ParamsJSON)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&iteration, "iteration", 0, "restrict to one iteration (0 lists all)")
	return cmd
}

// #endregion trials

// #region solved

func newSolvedCmd(o *options) *cobra.Command {
	var split string
	cmd := &cobra.Command{
		Use:   "solved <run-id>",
		Short: "List the distinct problems a run solved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := o.open()
			if err != nil {
				return err
			}
			defer store.Close()

			problems, err := store.SolvedProblems(cmd.Context(), args[0], split)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if o.jsonOut {
				return printJSON(w, problems)
			}
			for _, p := range problems {
				fmt.Fprintln(w, p)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&split, "split", tracker.SplitTrain, "train|test")
	return cmd
}

// #endregion solved

// #region output

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
