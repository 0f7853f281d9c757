package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"walkforward-backtest/internal/backtest"
	"walkforward-backtest/internal/config"
	"walkforward-backtest/internal/model"
	"walkforward-backtest/internal/optimize"
	"walkforward-backtest/internal/predictor"
)

// OptimizeOutcome is the result of a threshold search. Baseline is the
// fitness of the configured thresholds.
type OptimizeOutcome struct {
	Symbol    string                `json:"symbol"`
	Model     string                `json:"model"`
	Task      model.Task            `json:"task"`
	Objective optimize.Objective    `json:"objective"`
	Baseline  float64               `json:"baseline_fitness"`
	Signals   backtest.SignalConfig `json:"signals"`
	Summary   *backtest.Summary     `json:"summary,omitempty"`
	Search    *optimize.Result      `json:"search"`
}

// OptimizeSignals searches signal thresholds with a genetic algorithm, scoring
// each candidate by a full walk-forward run. On cancellation the best
// thresholds found so far are returned with the error.
func (s *Service) OptimizeSignals(ctx context.Context, cfg *config.Config, onGeneration func(gen int, best float64)) (*OptimizeOutcome, error) {
	task, err := cfg.Model.Task()
	if err != nil {
		return nil, err
	}
	goal := cfg.Optimize.Goal()
	if err := goal.Validate(); err != nil {
		return nil, err
	}
	ga, err := optimize.New(optimize.ThresholdGenes(task == model.TaskClassification), cfg.Optimize.Params())
	if err != nil {
		return nil, err
	}
	ga.OnGeneration = onGeneration

	series, err := s.LoadSeries(cfg, task)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	ec, err := cfg.EngineConfig()
	if err != nil {
		return nil, err
	}
	quiet := s.Log.Level(zerolog.WarnLevel)
	ec.Logger = &quiet

	run := func(ctx context.Context, sc backtest.SignalConfig) (*backtest.Summary, error) {
		p, err := predictor.New(cfg.Model.Kind, cfg.Model.Params)
		if err != nil {
			return nil, err
		}
		rc := ec
		rc.Signals = sc
		res, err := s.engine.Run(ctx, series, p, rc)
		if err != nil {
			return nil, err
		}
		return res.Summary, nil
	}

	log := s.Log.With().Str("model", cfg.Model.Kind).Str("objective", goal.Metric).Logger()
	log.Info().Str("symbol", series.Symbol).Int("population", ga.Params.PopulationSize).
		Int("generations", ga.Params.Generations).Msg("threshold search started")
	started := time.Now()

	baseline, err := run(ctx, ec.Signals)
	if err != nil {
		return nil, fmt.Errorf("baseline run: %w", err)
	}
	out := &OptimizeOutcome{
		Symbol:    series.Symbol,
		Model:     cfg.Model.Kind,
		Task:      task,
		Objective: goal,
		Baseline:  goal.Score(baseline),
	}

	search, searchErr := ga.Run(ctx, func(ctx context.Context, v map[string]float64) (float64, error) {
		sum, err := run(ctx, optimize.ApplyThresholds(ec.Signals, v))
		if err != nil {
			return 0, err
		}
		return goal.Score(sum), nil
	})
	if search == nil {
		return nil, searchErr
	}
	out.Search = search
	out.Signals = optimize.ApplyThresholds(ec.Signals, search.Best)
	if searchErr == nil {
		if out.Summary, err = run(ctx, out.Signals); err != nil {
			return nil, fmt.Errorf("rerun best thresholds: %w", err)
		}
	}

	log.Info().Float64("baseline", out.Baseline).Float64("best", search.BestFitness).
		Int("evaluations", search.Evaluations).Dur("elapsed", time.Since(started)).
		Msg("threshold search finished")
	return out, searchErr
}
