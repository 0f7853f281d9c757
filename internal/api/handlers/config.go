package handlers

import (
	"walkforward-backtest/internal/api/models"
	"walkforward-backtest/internal/config"
)

// backtestConfig overlays the fields set in req onto a copy of base and
// validates the result.
func backtestConfig(base *config.Config, req models.BacktestRequest) (*config.Config, error) {
	cfg := overlay(base, req.Dataset, req.Symbols, req.Horizon, req.Model, req.Params)
	if req.Timeframe != "" {
		cfg.Data.Timeframe = req.Timeframe
	}

	bt := &cfg.Backtest
	if req.TrainWindow != "" {
		bt.TrainWindow = req.TrainWindow
	}
	if req.TestWindow != "" {
		bt.TestWindow = req.TestWindow
	}
	if req.MinTrainRows > 0 {
		bt.MinTrainRows = req.MinTrainRows
	}
	if req.MinTestRows > 0 {
		bt.MinTestRows = req.MinTestRows
	}
	if req.OnlineLearning != nil {
		bt.OnlineLearning = *req.OnlineLearning
	}
	if req.InitialCapital > 0 {
		bt.InitialCapital = req.InitialCapital
	}
	if req.PeriodsPerYear > 0 {
		bt.PeriodsPerYear = req.PeriodsPerYear
	}
	if req.Calendar != "" {
		bt.Calendar = req.Calendar
	}
	if len(req.Benchmarks) > 0 {
		cfg.Benchmarks = make([]config.BenchmarkConfig, len(req.Benchmarks))
		for i, b := range req.Benchmarks {
			cfg.Benchmarks[i] = config.BenchmarkConfig{Name: b.Name, Params: b.Params}
		}
	}

	setFloat(&cfg.Costs.FeesBps, req.FeesBps)
	setFloat(&cfg.Costs.SlippageBps, req.SlippageBps)
	setFloat(&cfg.Signals.BuyThreshold, req.BuyThreshold)
	setFloat(&cfg.Signals.SellThreshold, req.SellThreshold)
	setFloat(&cfg.Signals.RegressionBuyReturn, req.RegressionBuyReturn)
	setFloat(&cfg.Signals.RegressionSellReturn, req.RegressionSellReturn)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func trainConfig(base *config.Config, req models.TrainRequest) (*config.Config, error) {
	cfg := overlay(base, req.Dataset, req.Symbols, req.Horizon, req.Model, req.Params)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overlay(base *config.Config, dataset string, symbols []string, horizon int, kind string, params map[string]interface{}) *config.Config {
	cfg := *base
	cfg.Data.Path = dataset
	if len(symbols) > 0 {
		cfg.Data.Symbols = symbols
	}
	if horizon > 0 {
		cfg.Data.Horizon = horizon
	}
	override := config.ModelConfig{Kind: kind, Params: params}
	if kind != "" && kind != base.Model.Kind {
		// Params of another kind do not carry over.
		cfg.Model = config.ModelConfig{Kind: kind, Params: params}
	} else {
		cfg.Model = config.MergeModel(base.Model, override)
	}
	return &cfg
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
