package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"walkforward-backtest/internal/analysis"
	"walkforward-backtest/internal/data"
	"walkforward-backtest/internal/model"
)

var rkCostBps float64

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank symbols by their perfect-foresight return",
	Long: `Computes a return-distribution summary per symbol and ranks the symbols by
what a long/flat strategy with perfect foresight could have earned after
costs. --data takes comma-separated OHLCV CSV files or directories of them.`,
	RunE: runRank,
}

func init() {
	rankCmd.Flags().Float64Var(&rkCostBps, "cost-bps", 10, "Per-leg cost in basis points")
}

func runRank(_ *cobra.Command, _ []string) error {
	if dataPath == "" {
		return fmt.Errorf("--data is required")
	}
	bySymbol := map[string][]model.Bar{}
	for _, p := range splitPaths(dataPath) {
		files, err := csvFiles(p)
		if err != nil {
			return err
		}
		for _, f := range files {
			bars, err := data.LoadOHLCVCSV(f)
			if err != nil {
				return fmt.Errorf("%s: %w", f, err)
			}
			for sym, group := range data.GroupBySymbol(bars) {
				bySymbol[sym] = append(bySymbol[sym], group...)
			}
		}
	}

	ranked := analysis.RankByOracleReturn(bySymbol, rkCostBps)
	fmt.Printf("%-4s %-12s %-7s %-9s %-10s %-11s %-10s\n", "rank", "symbol", "count", "vol", "p95-p05", "buy&hold", "oracle")
	for i, r := range ranked {
		fmt.Printf("%-4d %-12s %-7d %-9.5f %-10.5f %-+11.4f %-+10.4f\n",
			i+1, r.Symbol, r.Count, r.Volatility, r.SpreadP95P05, r.BuyHoldReturn, r.OracleReturn)
	}
	return nil
}

func csvFiles(p string) ([]string, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{p}, nil
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			out = append(out, filepath.Join(p, e.Name()))
		}
	}
	return out, nil
}

func splitPaths(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
