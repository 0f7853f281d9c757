package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"walkforward-backtest/internal/backtest"
	"walkforward-backtest/internal/config"
	"walkforward-backtest/internal/data"
	"walkforward-backtest/internal/logging"
	"walkforward-backtest/internal/predictor"
	"walkforward-backtest/internal/strategy"
)

// Demo:
// - Generate a synthetic hourly random walk
// - Build features and forward-return targets
// - Walk a regression model forward over it and compare with benchmarks
func main() {
	kind := flag.String("model", predictor.KindRidge, "Regression model: ridge or sgdr")
	bars := flag.Int("bars", 24*180, "Number of synthetic hourly bars")
	seed := flag.Int64("seed", 7, "Random walk seed")
	train := flag.String("train", "30d", "Train window")
	test := flag.String("test", "7d", "Test window")
	online := flag.Bool("online", false, "Use partial fits between folds (sgdr only)")
	outCSV := flag.String("out", "", "Optional path to write the trade log CSV")
	verbose := flag.Bool("v", false, "Log every fold")
	flag.Parse()

	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.InfoLevel
	}
	log := logging.NewWithWriter(os.Stderr, "console", level)

	if err := run(*kind, *bars, *seed, *train, *test, *online, *outCSV, log); err != nil {
		log.Fatal().Err(err).Msg("demo failed")
	}
}

func run(kind string, n int, seed int64, trainWin, testWin string, online bool, outCSV string, log zerolog.Logger) error {
	if kind != predictor.KindRidge && kind != predictor.KindSGDRegressor {
		return fmt.Errorf("demo supports ridge and sgdr, got %q", kind)
	}

	syn := data.DefaultSyntheticConfig()
	syn.Bars = n
	syn.Seed = seed
	cfg := config.Default()
	cfg.Model.Kind = kind
	cfg.Backtest.TrainWindow = trainWin
	cfg.Backtest.TestWindow = testWin
	cfg.Backtest.OnlineLearning = online
	if err := cfg.Validate(); err != nil {
		return err
	}

	task, err := cfg.Model.Task()
	if err != nil {
		return err
	}
	series, err := data.Prepare(data.Synthetic(syn), cfg.Data.Features, cfg.Data.Horizon, task, cfg.Data.Thresholds())
	if err != nil {
		return err
	}
	p, err := predictor.New(kind, nil)
	if err != nil {
		return err
	}
	ec, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	ec.Logger = &log

	fmt.Printf("Synthetic %s: %d rows, %d features, %s to %s\n", series.Symbol, len(series.Bars), len(series.FeatureNames),
		series.Start().Format("2006-01-02"), series.End().Format("2006-01-02"))

	start := time.Now()
	res, err := backtest.New().Run(context.Background(), series, p, ec)
	if err != nil {
		return err
	}
	s := res.Summary
	if s == nil {
		return fmt.Errorf("run %s without a summary", res.Status)
	}
	fmt.Printf("%s walk-forward (%s train / %s test, online=%v) in %s\n", kind, trainWin, testWin, online, time.Since(start).Round(time.Millisecond))
	fmt.Printf("  folds evaluated=%d skipped=%d\n", s.EvaluatedFolds, s.SkippedFolds)
	fmt.Printf("  final capital %.2f (%+.2f%%), %d trades, win rate %.1f%%\n", s.FinalCapital, s.TotalReturnPct, s.TotalTrades, s.WinRate*100)
	fmt.Printf("  sharpe %.3f, max drawdown %.2f%%\n", s.SharpeRatio, s.MaxDrawdownPct)

	evaluated := res.Evaluated()
	if len(evaluated) > 0 {
		span := series.Slice(evaluated[0].TestStart, evaluated[len(evaluated)-1].TestEnd)
		sim := backtest.NewSimulator(ec.FeesBps, ec.SlippageBps)
		for _, name := range []string{"buy_and_hold", "oracle"} {
			strat, err := strategy.ByName(name, sim.CostBps, nil)
			if err != nil {
				return err
			}
			b, err := strategy.Evaluate(strat, span, sim, ec.InitialCapital)
			if err != nil {
				return err
			}
			fmt.Printf("  benchmark %-13s %.2f (%+.2f%%)\n", b.Name, b.FinalCapital, b.TotalReturnPct)
		}
	}

	if outCSV != "" {
		if err := backtest.WriteTradesCSV(outCSV, res.Trades); err != nil {
			return err
		}
		fmt.Printf("Wrote %d trades to %s\n", len(res.Trades), outCSV)
	}
	return nil
}
