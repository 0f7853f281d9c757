package strategy

import (
	"fmt"

	"walkforward-backtest/internal/backtest"
	"walkforward-backtest/internal/model"
)

// Strategy emits one signal per bar over a window it sees in full. These
// are reference strategies to compare model-driven runs against.
type Strategy interface {
	Name() string
	Signals(bars []model.Bar) ([]model.Signal, error)
}

// Benchmark is the outcome of running a Strategy through the simulator.
type Benchmark struct {
	Name           string  `json:"name"`
	FinalCapital   float64 `json:"final_capital"`
	TotalReturnPct float64 `json:"total_return_pct"`
	Trades         int     `json:"trades"`
}

// Evaluate simulates s over bars from a flat book, closing any open
// position at the last bar.
func Evaluate(s Strategy, bars []model.Bar, sim backtest.Simulator, capital float64) (Benchmark, error) {
	if len(bars) == 0 {
		return Benchmark{}, fmt.Errorf("%s: no bars", s.Name())
	}
	signals, err := s.Signals(bars)
	if err != nil {
		return Benchmark{}, fmt.Errorf("%s: %w", s.Name(), err)
	}
	state, err := model.NewPositionState(capital)
	if err != nil {
		return Benchmark{}, err
	}
	state, trades, _, err := sim.Run(state, bars, signals)
	if err != nil {
		return Benchmark{}, fmt.Errorf("%s: %w", s.Name(), err)
	}
	n := len(trades)
	if next, _, ok := sim.ForceClose(state, bars[len(bars)-1]); ok {
		state = next
		n++
	}
	return Benchmark{
		Name:           s.Name(),
		FinalCapital:   state.Capital,
		TotalReturnPct: (state.Capital - capital) / capital * 100,
		Trades:         n,
	}, nil
}

// BuyAndHold enters on the first bar and never exits on its own.
type BuyAndHold struct{}

func (BuyAndHold) Name() string { return "buy_and_hold" }

func (BuyAndHold) Signals(bars []model.Bar) ([]model.Signal, error) {
	out := make([]model.Signal, len(bars))
	if len(out) > 0 {
		out[0] = model.SignalBuy
	}
	return out, nil
}

// ByName builds a reference strategy. costBps is used by the oracle.
func ByName(name string, costBps float64, params map[string]any) (Strategy, error) {
	switch name {
	case "buy_and_hold":
		return BuyAndHold{}, nil
	case "oracle":
		return &Oracle{CostBps: costBps}, nil
	case "schedule":
		return NewSchedule(ScheduleParams{
			EntryTime: str(params, "entry_time", "09:00"),
			ExitTime:  str(params, "exit_time", "17:00"),
		})
	default:
		return nil, fmt.Errorf("unsupported strategy: %q", name)
	}
}

// Names lists the strategies ByName accepts.
func Names() []string { return []string{"buy_and_hold", "oracle", "schedule"} }

func str(m map[string]any, key, def string) string {
	if v, ok := m[key]; ok && v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}
