package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"walkforward-backtest/internal/backtest"
)

var (
	trName       string
	trModel      string
	trTrainRatio float64
	trValidRatio float64
	trModelDir   string
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Fit a model on a chronological split and save it",
	Long: `Splits the dataset in time order into train, validation and test parts,
fits the configured model on the train part, prints validation and test
metrics, and saves the model under artifacts.model_dir/<name>.`,
	RunE: runTrain,
}

func init() {
	f := trainCmd.Flags()
	f.StringVar(&trName, "name", "", "Model name (generated when empty)")
	f.StringVar(&trModel, "model", "", "Model kind: sgdc, sgdr, ridge, centroid")
	f.Float64Var(&trTrainRatio, "train-ratio", 0.7, "Fraction of rows used for fitting")
	f.Float64Var(&trValidRatio, "valid-ratio", 0.15, "Fraction of rows used for validation")
	f.StringVar(&trModelDir, "model-dir", "", "Model directory (overrides artifacts.model_dir)")
}

func runTrain(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if trModel != "" && trModel != cfg.Model.Kind {
		cfg.Model.Kind = trModel
		cfg.Model.Params = nil
	}
	if trModelDir != "" {
		cfg.Artifacts.ModelDir = trModelDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	svc, _, err := newService(cfg)
	if err != nil {
		return err
	}
	out, err := svc.Train(cmd.Context(), cfg, trName, trTrainRatio, trValidRatio, nil)
	if err != nil {
		return err
	}

	info := out.Info
	fmt.Printf("Model %s (%s, %s) on %s\n", info.Name, info.Kind, info.Task, info.Symbol)
	fmt.Printf("Rows train=%d valid=%d test=%d features=%d\n", info.TrainRows, info.ValidRows, info.TestRows, len(info.FeatureNames))
	printMetrics("validation", info.Validation)
	printMetrics("test", info.Test)
	fmt.Printf("Saved to %s\n", out.Dir)
	return nil
}

func printMetrics(split string, m *backtest.FoldMetrics) {
	switch {
	case m == nil:
		fmt.Printf("%-10s (empty split)\n", split)
	case m.Classification != nil:
		c := m.Classification
		auc := "n/a"
		if c.AUC != nil {
			auc = fmt.Sprintf("%.3f", *c.AUC)
		}
		fmt.Printf("%-10s accuracy=%.3f precision=%.3f recall=%.3f f1=%.3f auc=%s\n",
			split, c.Accuracy, c.Precision, c.Recall, c.F1, auc)
	case m.Regression != nil:
		r := m.Regression
		r2 := "n/a"
		if r.R2 != nil {
			r2 = fmt.Sprintf("%.3f", *r.R2)
		}
		fmt.Printf("%-10s mae=%.5f rmse=%.5f r2=%s\n", split, r.MAE, r.RMSE, r2)
	}
}
