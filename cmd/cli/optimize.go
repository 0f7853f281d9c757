package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"walkforward-backtest/internal/service"
)

var (
	optModel       string
	optPopulation  int
	optGenerations int
	optObjective   string
	optSeed        int64
	optOut         string
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Search signal thresholds with a genetic algorithm",
	Long: `Scores each candidate set of signal thresholds by a full walk-forward run
and evolves them with tournament selection, crossover, mutation and elitism.
Probability thresholds are searched for classifiers, predicted-return bounds for
regressors. Ctrl-C stops after the current generation and prints the best so far.`,
	RunE: runOptimize,
}

func init() {
	f := optimizeCmd.Flags()
	f.StringVar(&optModel, "model", "", "Model kind: sgdc, sgdr, ridge, centroid")
	f.IntVar(&optPopulation, "population", 0, "Population size (overrides optimize.population)")
	f.IntVar(&optGenerations, "generations", 0, "Generations (overrides optimize.generations)")
	f.StringVar(&optObjective, "objective", "", "sharpe, return or win_rate")
	f.Int64Var(&optSeed, "seed", 0, "Random seed (overrides optimize.seed)")
	f.StringVar(&optOut, "out", "", "Write the outcome as JSON to this file")
}

func runOptimize(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if optModel != "" && optModel != cfg.Model.Kind {
		cfg.Model.Kind = optModel
		cfg.Model.Params = nil
	}
	if optPopulation > 0 {
		cfg.Optimize.Population = optPopulation
	}
	if optGenerations > 0 {
		cfg.Optimize.Generations = optGenerations
	}
	if optObjective != "" {
		cfg.Optimize.Objective = optObjective
	}
	if cmd.Flags().Changed("seed") {
		cfg.Optimize.Seed = optSeed
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	svc, _, err := newService(cfg)
	if err != nil {
		return err
	}
	out, runErr := svc.OptimizeSignals(cmd.Context(), cfg, func(gen int, best float64) {
		fmt.Fprintf(os.Stderr, "\rgeneration %d/%d best=%.4f", gen+1, cfg.Optimize.Generations, best)
	})
	fmt.Fprintln(os.Stderr)
	if out == nil {
		return runErr
	}
	printOptimize(out)
	if optOut != "" {
		raw, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(optOut, raw, 0o644); err != nil {
			return err
		}
		fmt.Printf("Outcome written to %s\n", optOut)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func printOptimize(out *service.OptimizeOutcome) {
	fmt.Printf("%s  model=%s task=%s objective=%s\n", out.Symbol, out.Model, out.Task, out.Objective.Metric)
	fmt.Printf("Baseline fitness %.4f  best %.4f  evaluations=%d\n",
		out.Baseline, out.Search.BestFitness, out.Search.Evaluations)
	names := make([]string, 0, len(out.Search.Best))
	for name := range out.Search.Best {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-24s %.4f\n", name, out.Search.Best[name])
	}
	if s := out.Summary; s != nil {
		fmt.Printf("Best run: final capital %.2f (%+.2f%%)  sharpe %.3f  trades=%d\n",
			s.FinalCapital, s.TotalReturnPct, s.SharpeRatio, s.TotalTrades)
	}
}
