package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"walkforward-backtest/internal/config"
	"walkforward-backtest/internal/data"
	"walkforward-backtest/internal/logging"
	"walkforward-backtest/internal/service"
	"walkforward-backtest/internal/telemetry"
)

// Flags shared by every subcommand.
var (
	cfgPath  string
	dataPath string
	symbol   string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "cli",
	Short: "Walk-forward backtesting for ML trading signals",
	Long: `Runs walk-forward backtests of a predictive model over OHLCV data:
the model is refit on a rolling train window, trades long/flat on the
following test window, and results are aggregated across folds.

Examples:
  cli backtest --data data/btc_1h.csv --config configs/sgd.yaml --out artifacts
  cli train --data data/btc_1h.csv --config configs/ridge.yaml
  cli folds --data data/btc_1h.csv --train 100d --test 20d
  cli rank --data data/universe.csv --cost-bps 10
  cli optimize --data data/btc_1h.csv --config configs/ridge.yaml --generations 20`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to YAML config (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVar(&dataPath, "data", "", "OHLCV CSV, series JSON or catalog dataset id")
	rootCmd.PersistentFlags().StringVar(&symbol, "symbol", "", "Symbol to select from multi-symbol files")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level")

	rootCmd.AddCommand(backtestCmd, trainCmd, foldsCmd, rankCmd, optimizeCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig applies --config, --data, --symbol and --log-level. Validation
// is left to the caller so subcommands can override more fields first.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if cfgPath != "" {
		var err error
		if cfg, err = config.LoadUnchecked(cfgPath); err != nil {
			return nil, err
		}
	}
	if dataPath != "" {
		cfg.Data.Path = dataPath
	}
	if symbol != "" {
		cfg.Data.Symbols = []string{symbol}
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if cfg.Data.Path == "" {
		return nil, fmt.Errorf("--data or data.path in the config is required")
	}
	return cfg, nil
}

func newService(cfg *config.Config) (*service.Service, zerolog.Logger, error) {
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	rec := telemetry.New(prometheus.NewRegistry())
	return service.New(cfg, data.NewSeriesCache(time.Hour), rec, log), log, nil
}
