package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"walkforward-backtest/internal/backtest"
	"walkforward-backtest/internal/config"
)

var (
	fdTrain string
	fdTest  string
)

var foldsCmd = &cobra.Command{
	Use:   "folds",
	Short: "Print the walk-forward fold schedule of a dataset",
	Long: `Prints every fold the engine would run over the dataset, with the number
of rows in each train and test window. Folds whose row counts fall below
backtest.min_train_rows or backtest.min_test_rows are marked as skipped.`,
	RunE: runFolds,
}

func init() {
	foldsCmd.Flags().StringVar(&fdTrain, "train", "", "Train window, e.g. 100d")
	foldsCmd.Flags().StringVar(&fdTest, "test", "", "Test window, e.g. 20d")
}

func runFolds(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if fdTrain != "" {
		cfg.Backtest.TrainWindow = fdTrain
	}
	if fdTest != "" {
		cfg.Backtest.TestWindow = fdTest
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	train, _ := config.ParseWindow(cfg.Backtest.TrainWindow)
	test, _ := config.ParseWindow(cfg.Backtest.TestWindow)

	svc, _, err := newService(cfg)
	if err != nil {
		return err
	}
	task, err := cfg.Model.Task()
	if err != nil {
		return err
	}
	series, err := svc.LoadSeries(cfg, task)
	if err != nil {
		return err
	}
	folds, err := backtest.Folds(series.Start(), series.End(), train, test)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d rows from %s to %s, %d folds\n", series.Symbol, len(series.Bars),
		series.Start().Format(time.RFC3339), series.End().Format(time.RFC3339), len(folds))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FOLD\tTRAIN START\tTRAIN END\tTEST START\tTEST END\tTRAIN ROWS\tTEST ROWS\tNOTE")
	for _, f := range folds {
		nTrain := len(series.Slice(f.TrainStart, f.TrainEnd))
		nTest := len(series.Slice(f.TestStart, f.TestEnd))
		note := ""
		if nTrain < cfg.Backtest.MinTrainRows || nTest < cfg.Backtest.MinTestRows {
			note = "skipped"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n", f.Index,
			f.TrainStart.Format("2006-01-02 15:04"), f.TrainEnd.Format("2006-01-02 15:04"),
			f.TestStart.Format("2006-01-02 15:04"), f.TestEnd.Format("2006-01-02 15:04"),
			nTrain, nTest, note)
	}
	return w.Flush()
}
