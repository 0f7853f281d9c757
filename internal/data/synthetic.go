package data

import (
	"math"
	"math/rand"
	"time"

	"walkforward-backtest/internal/model"
)

// SyntheticConfig parameterizes a geometric random walk.
type SyntheticConfig struct {
	Symbol     string
	Start      time.Time
	Step       time.Duration
	Bars       int
	StartPrice float64
	// Drift and Volatility are per-bar log-return mean and stddev.
	Drift      float64
	Volatility float64
	Seed       int64
}

func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Symbol:     "SYNTH",
		Start:      time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		Step:       time.Hour,
		Bars:       24 * 365,
		StartPrice: 100,
		Drift:      0.00005,
		Volatility: 0.01,
		Seed:       1,
	}
}

// Synthetic generates deterministic OHLCV bars for demos and tests.
func Synthetic(cfg SyntheticConfig) []model.Bar {
	rng := rand.New(rand.NewSource(cfg.Seed))
	bars := make([]model.Bar, cfg.Bars)
	price := cfg.StartPrice
	for i := range bars {
		open := price
		ret := cfg.Drift + cfg.Volatility*rng.NormFloat64()
		price = open * math.Exp(ret)
		wick := math.Abs(cfg.Volatility * rng.NormFloat64() * open / 2)
		bars[i] = model.Bar{
			Timestamp: cfg.Start.Add(time.Duration(i) * cfg.Step),
			Symbol:    cfg.Symbol,
			Open:      open,
			High:      math.Max(open, price) + wick,
			Low:       math.Max(math.Min(open, price)-wick, open*0.5),
			Close:     price,
			Volume:    1000 * (1 + rng.Float64()),
		}
	}
	return bars
}
