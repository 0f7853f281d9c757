package backtest

import (
	"errors"
	"fmt"

	"walkforward-backtest/internal/model"
)

// SignalConfig holds the thresholds that turn model output into signals.
type SignalConfig struct {
	// BuyThreshold is the minimum P(BUY) (or P(positive) for binary models).
	BuyThreshold float64 `json:"buy_threshold" yaml:"buy_threshold"`
	// SellThreshold: 3-class models sell when P(SELL) >= 1-SellThreshold,
	// binary models when P(positive) <= SellThreshold.
	SellThreshold float64 `json:"sell_threshold" yaml:"sell_threshold"`

	RegressionBuyReturn  float64 `json:"regression_buy_return" yaml:"regression_buy_return"`
	RegressionSellReturn float64 `json:"regression_sell_return" yaml:"regression_sell_return"`
}

func DefaultSignalConfig() SignalConfig {
	return SignalConfig{
		BuyThreshold:         0.6,
		SellThreshold:        0.4,
		RegressionBuyReturn:  0.01,
		RegressionSellReturn: -0.005,
	}
}

func (c SignalConfig) Validate() error {
	if c.BuyThreshold < 0 || c.BuyThreshold > 1 {
		return fmt.Errorf("buy threshold %v outside [0,1]", c.BuyThreshold)
	}
	if c.SellThreshold < 0 || c.SellThreshold > 1 {
		return fmt.Errorf("sell threshold %v outside [0,1]", c.SellThreshold)
	}
	if c.RegressionSellReturn > c.RegressionBuyReturn {
		return fmt.Errorf("regression sell return %v above buy return %v",
			c.RegressionSellReturn, c.RegressionBuyReturn)
	}
	return nil
}

// ModelOutput is a fold's raw predictions. Proba is required for
// classification and ignored for regression.
type ModelOutput struct {
	Predictions []float64
	Proba       [][]float64
}

// Generate maps model output to one signal per test row.
func (c SignalConfig) Generate(task model.Task, out ModelOutput) ([]model.Signal, error) {
	switch task {
	case model.TaskClassification:
		return c.fromProba(out.Proba)
	case model.TaskRegression:
		return c.fromReturns(out.Predictions), nil
	default:
		return nil, fmt.Errorf("unknown task %q", task)
	}
}

func (c SignalConfig) fromProba(proba [][]float64) ([]model.Signal, error) {
	if len(proba) == 0 {
		return []model.Signal{}, nil
	}
	width := len(proba[0])
	if width != 2 && width != 3 {
		return nil, fmt.Errorf("probability rows have %d columns, want 2 or 3", width)
	}
	signals := make([]model.Signal, len(proba))
	for i, p := range proba {
		if len(p) != width {
			return nil, fmt.Errorf("probability row %d has %d columns, want %d", i, len(p), width)
		}
		signals[i] = model.SignalHold
		if width == 3 {
			switch {
			case p[model.ClassBuy] >= c.BuyThreshold:
				signals[i] = model.SignalBuy
			case p[model.ClassSell] >= 1-c.SellThreshold:
				signals[i] = model.SignalSell
			}
			continue
		}
		switch {
		case p[1] >= c.BuyThreshold:
			signals[i] = model.SignalBuy
		case p[1] <= c.SellThreshold:
			signals[i] = model.SignalSell
		}
	}
	return signals, nil
}

func (c SignalConfig) fromReturns(pred []float64) []model.Signal {
	signals := make([]model.Signal, len(pred))
	for i, r := range pred {
		switch {
		case r >= c.RegressionBuyReturn:
			signals[i] = model.SignalBuy
		case r <= c.RegressionSellReturn:
			signals[i] = model.SignalSell
		default:
			signals[i] = model.SignalHold
		}
	}
	return signals
}

var errClassMismatch = errors.New("predicted class not in label set")

// alignProba reorders probability columns from the model's class order into
// the run's label set, filling classes the model has not seen with zero.
func alignProba(proba [][]float64, have, want []float64) ([][]float64, error) {
	if len(have) == 0 || len(want) == 0 || equalFloats(have, want) {
		return proba, nil
	}
	idx := make([]int, len(have))
	for j, label := range have {
		idx[j] = -1
		for k, w := range want {
			if w == label {
				idx[j] = k
				break
			}
		}
		if idx[j] < 0 {
			return nil, fmt.Errorf("%w: %v", errClassMismatch, label)
		}
	}
	out := make([][]float64, len(proba))
	for i, row := range proba {
		aligned := make([]float64, len(want))
		for j, v := range row {
			if j < len(idx) {
				aligned[idx[j]] = v
			}
		}
		out[i] = aligned
	}
	return out, nil
}

func equalFloats(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
