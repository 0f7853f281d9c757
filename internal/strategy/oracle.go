package strategy

import (
	"fmt"
	"math"

	"walkforward-backtest/internal/model"
)

// Oracle is the perfect-foresight long-only plan: it knows every close in
// the window and picks the entries and exits that maximize final capital
// under the simulator's per-leg cost. It is an upper bound, not a tradable
// strategy.
type Oracle struct {
	CostBps float64
}

func (o *Oracle) Name() string { return "oracle" }

// Signals solves a two-state (FLAT/LONG) dynamic program in log-capital
// space and backtracks the transitions. At most one transition happens per
// bar, matching the simulator. A position still open at the end is
// assumed closed at the last close.
func (o *Oracle) Signals(bars []model.Bar) ([]model.Signal, error) {
	n := len(bars)
	out := make([]model.Signal, n)
	if n == 0 {
		return out, nil
	}
	c := o.CostBps / 10000
	if c < 0 || c >= 1 {
		return nil, fmt.Errorf("oracle: cost %v bps out of range", o.CostBps)
	}
	enterCost := math.Log(1 + c)
	exitCost := math.Log(1 - c)

	// flat[t]: best log-capital when flat after bar t.
	// long[t]: best log-capital minus log(entry fill) when long after bar t.
	flat := make([]float64, n)
	long := make([]float64, n)
	// entered[t]: LONG at t came from a BUY at t; exited[t]: FLAT at t came
	// from a SELL at t.
	entered := make([]bool, n)
	exited := make([]bool, n)

	prevFlat, prevLong := 0.0, math.Inf(-1)
	for t, b := range bars {
		if b.Close <= 0 {
			return nil, fmt.Errorf("oracle: bar %d has non-positive close %v", t, b.Close)
		}
		lp := math.Log(b.Close)

		flat[t] = prevFlat
		if v := prevLong + lp + exitCost; v > flat[t] {
			flat[t] = v
			exited[t] = true
		}
		long[t] = prevLong
		if v := prevFlat - lp - enterCost; v > long[t] {
			long[t] = v
			entered[t] = true
		}
		prevFlat, prevLong = flat[t], long[t]
	}

	last := n - 1
	inLong := long[last]+math.Log(bars[last].Close)+exitCost > flat[last]
	for t := last; t >= 0; t-- {
		if inLong {
			if entered[t] {
				out[t] = model.SignalBuy
				inLong = false
			}
		} else if exited[t] {
			out[t] = model.SignalSell
			inLong = true
		}
	}
	return out, nil
}

// Return is the oracle's total return (fraction) over bars.
func (o *Oracle) Return(bars []model.Bar) (float64, error) {
	signals, err := o.Signals(bars)
	if err != nil {
		return 0, err
	}
	c := o.CostBps / 10000
	capital := 1.0
	entry := 0.0
	for i, b := range bars {
		switch {
		case signals[i] == model.SignalBuy && entry == 0:
			entry = b.Close * (1 + c)
		case signals[i] == model.SignalSell && entry > 0:
			capital *= b.Close * (1 - c) / entry
			entry = 0
		}
	}
	if entry > 0 {
		capital *= bars[len(bars)-1].Close * (1 - c) / entry
	}
	return capital - 1, nil
}
