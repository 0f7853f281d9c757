package analysis

import (
	"sort"

	"walkforward-backtest/internal/model"
)

// RankByOracleReturn computes potentials per symbol and sorts them by
// oracle return, highest first.
func RankByOracleReturn(bySymbol map[string][]model.Bar, costBps float64) []Potential {
	out := make([]Potential, 0, len(bySymbol))
	for sym, bars := range bySymbol {
		s := model.Series{Bars: append([]model.Bar(nil), bars...)}
		s.SortByTime()
		p := ComputePotential(s.Bars, costBps)
		if p.Symbol == "" {
			p.Symbol = sym
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OracleReturn == out[j].OracleReturn {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].OracleReturn > out[j].OracleReturn
	})
	return out
}
