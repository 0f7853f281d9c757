package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"walkforward-backtest/internal/backtest"
	"walkforward-backtest/internal/service"
)

var (
	btOut    string
	btModel  string
	btTrain  string
	btTest   string
	btOnline bool
	btFolds  bool
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run a walk-forward backtest and write its artifacts",
	Long: `Loads the dataset, runs the walk-forward engine and writes report.json,
trades.csv, equity_curve.csv and feature_importance.json under --out/<run id>.
Interrupting the run (Ctrl-C) stops before the next fold and still writes the
partial result.`,
	RunE: runBacktest,
}

func init() {
	f := backtestCmd.Flags()
	f.StringVar(&btOut, "out", "", "Artifact directory (overrides artifacts.dir)")
	f.StringVar(&btModel, "model", "", "Model kind: sgdc, sgdr, ridge, centroid")
	f.StringVar(&btTrain, "train", "", "Train window, e.g. 90d")
	f.StringVar(&btTest, "test", "", "Test window, e.g. 7d")
	f.BoolVar(&btOnline, "online", false, "Update the model incrementally between folds")
	f.BoolVar(&btFolds, "folds", false, "Print the per-fold table")
}

func runBacktest(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if btOut != "" {
		cfg.Artifacts.Dir = btOut
	}
	if btModel != "" && btModel != cfg.Model.Kind {
		cfg.Model.Kind = btModel
		cfg.Model.Params = nil
	}
	if btTrain != "" {
		cfg.Backtest.TrainWindow = btTrain
	}
	if btTest != "" {
		cfg.Backtest.TestWindow = btTest
	}
	if cmd.Flags().Changed("online") {
		cfg.Backtest.OnlineLearning = btOnline
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	svc, _, err := newService(cfg)
	if err != nil {
		return err
	}
	out, runErr := svc.Backtest(cmd.Context(), "", cfg, func(done, total int) {
		fmt.Fprintf(os.Stderr, "\rfold %d/%d", done, total)
	})
	fmt.Fprintln(os.Stderr)
	if out == nil {
		return runErr
	}
	printOutcome(out)
	if runErr != nil && !errors.Is(runErr, backtest.ErrCanceled) {
		return runErr
	}
	return nil
}

func printOutcome(out *service.BacktestOutcome) {
	res := out.Result
	fmt.Printf("Run %s  %s  model=%s task=%s status=%s\n", out.RunID, out.Symbol, out.Model, out.Task, res.Status)
	if btFolds {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FOLD\tTEST START\tTEST END\tTRAIN\tTEST\tUPDATE\tTRADES\tPNL\tNOTE")
		for _, f := range res.Folds {
			note := ""
			if f.Skipped {
				note = f.SkipReason
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\t%d\t%.2f\t%s\n",
				f.Index, f.TestStart.Format("2006-01-02"), f.TestEnd.Format("2006-01-02"),
				f.TrainSamples, f.TestSamples, f.UpdateMode, f.Trades, f.PnL, note)
		}
		_ = w.Flush()
	}
	if s := res.Summary; s != nil {
		fmt.Printf("Final capital %.2f (%+.2f%%)  trades=%d win_rate=%.1f%%\n",
			s.FinalCapital, s.TotalReturnPct, s.TotalTrades, s.WinRate*100)
		fmt.Printf("Sharpe %.3f  max drawdown %.2f%%  folds evaluated=%d skipped=%d\n",
			s.SharpeRatio, s.MaxDrawdownPct, s.EvaluatedFolds, s.SkippedFolds)
	}
	for _, b := range out.Benchmarks {
		fmt.Printf("Benchmark %-13s final=%.2f (%+.2f%%) trades=%d\n", b.Name, b.FinalCapital, b.TotalReturnPct, b.Trades)
	}
	if out.ArtifactDir != "" {
		fmt.Printf("Artifacts written to %s\n", out.ArtifactDir)
	}
}
