package features

import (
	"errors"
	"fmt"

	"walkforward-backtest/internal/model"
)

// Thresholds split forward returns into BUY / HOLD / SELL classes.
type Thresholds struct {
	Buy  float64 `yaml:"buy" json:"buy"`
	Sell float64 `yaml:"sell" json:"sell"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Buy: 0.015, Sell: -0.01}
}

// Label sets each bar's target from the close-to-close return over the next
// horizon bars. Bars near the end that have no forward price are dropped.
func Label(s model.Series, horizon int, task model.Task, th Thresholds) (model.Series, error) {
	if horizon <= 0 {
		return model.Series{}, fmt.Errorf("label horizon must be positive, got %d", horizon)
	}
	if !task.Valid() {
		return model.Series{}, fmt.Errorf("unknown task %q", task)
	}
	if th.Sell >= th.Buy {
		return model.Series{}, fmt.Errorf("sell threshold %v must be below buy threshold %v", th.Sell, th.Buy)
	}
	if len(s.Bars) <= horizon {
		return model.Series{}, errors.New("not enough bars for the label horizon")
	}

	out := s
	out.Bars = make([]model.Bar, 0, len(s.Bars)-horizon)
	for i := 0; i+horizon < len(s.Bars); i++ {
		b := s.Bars[i]
		if b.Close == 0 {
			continue
		}
		fwd := s.Bars[i+horizon].Close/b.Close - 1
		switch task {
		case model.TaskRegression:
			b.Target = fwd
		default:
			b.Target = classify(fwd, th)
		}
		out.Bars = append(out.Bars, b)
	}
	return out, nil
}

func classify(ret float64, th Thresholds) float64 {
	switch {
	case ret >= th.Buy:
		return model.ClassBuy
	case ret <= th.Sell:
		return model.ClassSell
	default:
		return model.ClassHold
	}
}

// ClassCounts tallies classification targets, handy for dataset summaries.
func ClassCounts(bars []model.Bar) map[int]int {
	counts := map[int]int{}
	for _, b := range bars {
		counts[int(b.Target)]++
	}
	return counts
}
