package analysis

import (
	"math"
	"sort"
	"time"

	"walkforward-backtest/internal/model"
	"walkforward-backtest/internal/strategy"
)

// Potential is a symbol-level summary used to pick what to backtest. It
// does not depend on any model: it combines return statistics with the
// perfect-foresight long-only return at a given cost.
type Potential struct {
	Symbol string    `json:"symbol"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Count  int       `json:"count"`

	MinClose float64 `json:"min_close"`
	MaxClose float64 `json:"max_close"`

	// Per-bar simple returns.
	MeanReturn   float64 `json:"mean_return"`
	Volatility   float64 `json:"volatility"`
	P05Return    float64 `json:"p05_return"`
	P95Return    float64 `json:"p95_return"`
	SpreadP95P05 float64 `json:"spread_p95_p05"`

	BuyHoldReturn float64 `json:"buy_hold_return"`
	OracleReturn  float64 `json:"oracle_return"`
}

// ComputePotential summarizes bars, which must be sorted by time.
func ComputePotential(bars []model.Bar, costBps float64) Potential {
	p := Potential{}
	if len(bars) == 0 {
		return p
	}
	p.Symbol = bars[0].Symbol
	p.Count = len(bars)
	p.Start = bars[0].Timestamp
	p.End = bars[len(bars)-1].Timestamp

	p.MinClose, p.MaxClose = math.Inf(1), math.Inf(-1)
	for _, b := range bars {
		p.MinClose = math.Min(p.MinClose, b.Close)
		p.MaxClose = math.Max(p.MaxClose, b.Close)
	}

	rets := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		if bars[i-1].Close > 0 {
			rets = append(rets, bars[i].Close/bars[i-1].Close-1)
		}
	}
	if len(rets) > 0 {
		sum := 0.0
		for _, r := range rets {
			sum += r
		}
		p.MeanReturn = sum / float64(len(rets))
		ss := 0.0
		for _, r := range rets {
			ss += (r - p.MeanReturn) * (r - p.MeanReturn)
		}
		if len(rets) > 1 {
			p.Volatility = math.Sqrt(ss / float64(len(rets)-1))
		}
		sorted := append([]float64(nil), rets...)
		sort.Float64s(sorted)
		p.P05Return = percentileSorted(sorted, 0.05)
		p.P95Return = percentileSorted(sorted, 0.95)
		p.SpreadP95P05 = p.P95Return - p.P05Return
	}

	c := costBps / 10000
	if first, last := bars[0].Close, bars[len(bars)-1].Close; first > 0 {
		p.BuyHoldReturn = last*(1-c)/(first*(1+c)) - 1
	}
	if r, err := (&strategy.Oracle{CostBps: costBps}).Return(bars); err == nil {
		p.OracleReturn = r
	}
	return p
}

func percentileSorted(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	// Linear interpolation between order stats.
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
