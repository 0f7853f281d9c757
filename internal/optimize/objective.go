package optimize

import (
	"fmt"

	"walkforward-backtest/internal/backtest"
)

// Penalty is the fitness of a run that breaks a constraint or has no summary.
const Penalty = -1000

// Metrics accepted by Objective.
const (
	MetricSharpe  = "sharpe"
	MetricReturn  = "return"
	MetricWinRate = "win_rate"
)

// Objective turns a backtest summary into a fitness score.
type Objective struct {
	Metric string `json:"metric"`
	// MaxDrawdown is a floor on the (negative) max drawdown, e.g. -0.2.
	MaxDrawdown *float64 `json:"max_drawdown,omitempty"`
	MinWinRate  *float64 `json:"min_win_rate,omitempty"`
	// MinTrades rejects candidates that barely trade.
	MinTrades int `json:"min_trades,omitempty"`
}

func (o Objective) Validate() error {
	switch o.Metric {
	case MetricSharpe, MetricReturn, MetricWinRate:
		return nil
	default:
		return fmt.Errorf("unknown objective metric %q", o.Metric)
	}
}

func (o Objective) Score(s *backtest.Summary) float64 {
	if s == nil {
		return Penalty
	}
	if o.MaxDrawdown != nil && s.MaxDrawdown < *o.MaxDrawdown {
		return Penalty
	}
	if o.MinWinRate != nil && s.WinRate < *o.MinWinRate {
		return Penalty
	}
	if s.TotalTrades < o.MinTrades {
		return Penalty
	}
	switch o.Metric {
	case MetricReturn:
		return s.TotalReturn
	case MetricWinRate:
		return s.WinRate
	default:
		return s.SharpeRatio
	}
}

// ThresholdGenes returns the signal thresholds searched for a task.
func ThresholdGenes(classification bool) []Gene {
	if classification {
		return []Gene{
			{Name: "buy_threshold", Min: 0.34, Max: 0.9},
			{Name: "sell_threshold", Min: 0.34, Max: 0.9},
		}
	}
	return []Gene{
		{Name: "regression_buy_return", Min: 0, Max: 0.03},
		{Name: "regression_sell_return", Min: -0.03, Max: 0},
	}
}

// ApplyThresholds copies the named values onto cfg.
func ApplyThresholds(cfg backtest.SignalConfig, values map[string]float64) backtest.SignalConfig {
	for name, v := range values {
		switch name {
		case "buy_threshold":
			cfg.BuyThreshold = v
		case "sell_threshold":
			cfg.SellThreshold = v
		case "regression_buy_return":
			cfg.RegressionBuyReturn = v
		case "regression_sell_return":
			cfg.RegressionSellReturn = v
		}
	}
	return cfg
}
