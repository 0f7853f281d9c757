package backtest

import (
	"fmt"

	"walkforward-backtest/internal/model"
)

// Simulator executes a long-only FLAT/LONG state machine over one fold.
// CostBps is charged in full on each leg: entries fill at close*(1+bps),
// exits at close*(1-bps).
type Simulator struct {
	CostBps float64
}

func NewSimulator(feesBps, slippageBps float64) Simulator {
	return Simulator{CostBps: feesBps + slippageBps}
}

func (s Simulator) entryPrice(close float64) float64 { return close * (1 + s.CostBps/10000) }
func (s Simulator) exitPrice(close float64) float64  { return close * (1 - s.CostBps/10000) }

// Run processes signals row by row starting from state and returns the
// updated state with the trades and one equity point per row. The input
// state is not modified.
func (s Simulator) Run(state model.PositionState, bars []model.Bar, signals []model.Signal) (model.PositionState, []TradeRecord, []EquityPoint, error) {
	if len(bars) != len(signals) {
		return state, nil, nil, fmt.Errorf("simulate: %d bars but %d signals", len(bars), len(signals))
	}
	if err := state.Validate(); err != nil {
		return state, nil, nil, fmt.Errorf("simulate: %w", err)
	}

	var trades []TradeRecord
	equity := make([]EquityPoint, 0, len(bars))
	for i, b := range bars {
		if b.Close <= 0 {
			return state, nil, nil, fmt.Errorf("simulate: bar %d at %s has non-positive close %v", i, b.Timestamp, b.Close)
		}
		switch {
		case signals[i] == model.SignalBuy && state.Side == model.SideFlat:
			state.Side = model.SideLong
			state.EntryPrice = s.entryPrice(b.Close)
			trades = append(trades, TradeRecord{
				Timestamp:    b.Timestamp,
				Action:       model.ActionBuy,
				Price:        b.Close,
				Cost:         state.EntryPrice,
				CapitalAfter: state.Capital,
			})
		case signals[i] == model.SignalSell && state.Side == model.SideLong:
			var t TradeRecord
			state, t = s.close(state, b)
			trades = append(trades, t)
		}

		pt := EquityPoint{
			Timestamp: b.Timestamp,
			Capital:   state.Capital,
			Position:  state.Side,
			MarkPrice: b.Close,
			Equity:    state.Equity(b.Close),
		}
		if state.IsLong() {
			pt.EntryPrice = state.EntryPrice
		}
		equity = append(equity, pt)
	}
	return state, trades, equity, nil
}

// ForceClose realizes an open position at bar's close with the usual exit
// cost. A FLAT state is returned unchanged with ok=false.
func (s Simulator) ForceClose(state model.PositionState, bar model.Bar) (model.PositionState, TradeRecord, bool) {
	if !state.IsLong() || bar.Close <= 0 {
		return state, TradeRecord{}, false
	}
	next, t := s.close(state, bar)
	t.Forced = true
	return next, t, true
}

func (s Simulator) close(state model.PositionState, b model.Bar) (model.PositionState, TradeRecord) {
	exit := s.exitPrice(b.Close)
	pnl := state.Capital * (exit - state.EntryPrice) / state.EntryPrice
	state.Capital += pnl
	state.Side = model.SideFlat
	state.EntryPrice = 0
	return state, TradeRecord{
		Timestamp:    b.Timestamp,
		Action:       model.ActionSell,
		Price:        b.Close,
		ExitPrice:    exit,
		PnL:          pnl,
		CapitalAfter: state.Capital,
	}
}
