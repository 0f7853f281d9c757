package backtest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walkforward-backtest/internal/model"
)

func TestMaxDrawdown(t *testing.T) {
	assert.Equal(t, 0.0, MaxDrawdown(nil))
	assert.Equal(t, 0.0, MaxDrawdown([]float64{100, 100, 101, 150}))
	assert.InDelta(t, (99.0-110)/110, MaxDrawdown([]float64{100, 110, 99, 120, 115}), 1e-12)

	dd := MaxDrawdown([]float64{100, 100.0001, 100})
	assert.Less(t, dd, 0.0)
}

func TestSharpe(t *testing.T) {
	assert.Equal(t, 0.0, Sharpe([]float64{100, 100, 100, 100}, 252))
	assert.Equal(t, 0.0, Sharpe([]float64{100, 101}, 252), "single return has no spread")

	eq := []float64{100, 101, 100.5, 102, 101.8}
	r := []float64{0.01, 100.5/101 - 1, 102/100.5 - 1, 101.8/102 - 1}
	mean := (r[0] + r[1] + r[2] + r[3]) / 4
	ss := 0.0
	for _, x := range r {
		ss += (x - mean) * (x - mean)
	}
	want := mean / math.Sqrt(ss/3) * math.Sqrt(252)
	assert.InDelta(t, want, Sharpe(eq, 252), 1e-9)
	assert.InDelta(t, want/math.Sqrt(252)*math.Sqrt(8760), Sharpe(eq, 8760), 1e-9)
	assert.InDelta(t, want, Sharpe(eq, 0), 1e-9, "zero falls back to the default")
}

func TestSummarizeCountsSellsOnly(t *testing.T) {
	trades := []TradeRecord{
		{Action: model.ActionBuy},
		{Action: model.ActionSell, PnL: 10},
		{Action: model.ActionBuy},
		{Action: model.ActionSell, PnL: -4},
		{Action: model.ActionBuy},
		{Action: model.ActionSell, PnL: 0},
	}
	s := Summarize(1000, 1006, trades, nil, 252)
	assert.Equal(t, 3, s.TotalTrades)
	assert.Equal(t, 1, s.WinningTrades)
	assert.Equal(t, 1, s.LosingTrades)
	assert.InDelta(t, 1.0/3, s.WinRate, 1e-12)
	assert.InDelta(t, 0.006, s.TotalReturn, 1e-12)
	assert.InDelta(t, 0.6, s.TotalReturnPct, 1e-9)
	assert.Equal(t, 0.0, s.SharpeRatio)
	assert.Equal(t, 0.0, s.MaxDrawdown)
}

func TestSummarizeNoTrades(t *testing.T) {
	s := Summarize(1000, 1000, nil, []EquityPoint{{Equity: 1000}, {Equity: 1000}}, 252)
	assert.Equal(t, 0, s.TotalTrades)
	assert.Equal(t, 0.0, s.WinRate)
	assert.False(t, math.IsNaN(s.WinRate))
	assert.Equal(t, 0.0, s.SharpeRatio)
}

func TestScoreClassification(t *testing.T) {
	yTrue := []float64{0, 1, 2, 2, 1, 0}
	yPred := []float64{0, 1, 2, 1, 1, 0}
	proba := [][]float64{
		{0.8, 0.1, 0.1},
		{0.1, 0.8, 0.1},
		{0.1, 0.1, 0.8},
		{0.1, 0.5, 0.4},
		{0.2, 0.7, 0.1},
		{0.9, 0.05, 0.05},
	}
	m := ScoreClassification(yTrue, yPred, proba, []float64{0, 1, 2})
	assert.InDelta(t, 5.0/6, m.Accuracy, 1e-12)

	// class 1: precision 2/3 recall 1; class 2: precision 1 recall 1/2
	wantP := (2.0/6)*1 + (2.0/6)*(2.0/3) + (2.0/6)*1
	wantR := (2.0/6)*1 + (2.0/6)*1 + (2.0/6)*0.5
	assert.InDelta(t, wantP, m.Precision, 1e-12)
	assert.InDelta(t, wantR, m.Recall, 1e-12)
	assert.Greater(t, m.F1, 0.0)
	require.NotNil(t, m.AUC)
	assert.Greater(t, *m.AUC, 0.9)
	assert.LessOrEqual(t, *m.AUC, 1.0)
}

func TestScoreClassificationBinaryAUC(t *testing.T) {
	yTrue := []float64{0, 0, 1, 1}
	proba := [][]float64{{0.9, 0.1}, {0.6, 0.4}, {0.65, 0.35}, {0.2, 0.8}}
	m := ScoreClassification(yTrue, []float64{0, 0, 0, 1}, proba, []float64{0, 1})
	require.NotNil(t, m.AUC)
	assert.InDelta(t, 0.75, *m.AUC, 1e-12)
}

func TestScoreClassificationDegenerateAUC(t *testing.T) {
	yTrue := []float64{1, 1, 1}
	proba := [][]float64{{0, 1, 0}, {0, 1, 0}, {0, 1, 0}}
	m := ScoreClassification(yTrue, yTrue, proba, []float64{0, 1, 2})
	assert.Nil(t, m.AUC)
	assert.Equal(t, 1.0, m.Accuracy)

	m = ScoreClassification([]float64{0, 1}, []float64{0, 1}, nil, []float64{0, 1})
	assert.Nil(t, m.AUC)

	m = ScoreClassification([]float64{0, 1}, []float64{1, 1}, [][]float64{{0.5}, {0.5}}, []float64{0, 1})
	assert.Nil(t, m.AUC)
	assert.Equal(t, 0.25, m.Precision, "zero division counts as 0")
}

func TestScoreRegression(t *testing.T) {
	m := ScoreRegression([]float64{1, 2, 3}, []float64{1, 2, 4})
	assert.InDelta(t, 1.0/3, m.MAE, 1e-12)
	assert.InDelta(t, 1.0/3, m.MSE, 1e-12)
	assert.InDelta(t, math.Sqrt(1.0/3), m.RMSE, 1e-12)
	require.NotNil(t, m.R2)
	assert.InDelta(t, 1-(1.0/2), *m.R2, 1e-12)

	m = ScoreRegression([]float64{2, 2}, []float64{1, 3})
	assert.Nil(t, m.R2)
	assert.Equal(t, 1.0, m.MAE)
}

func TestPeriodsPerYearFor(t *testing.T) {
	cases := []struct {
		tf, calendar string
		want         float64
	}{
		{"", "", DefaultPeriodsPerYear},
		{"1d", "", 252},
		{"1d", CalendarTrading, 252},
		{"1d", CalendarCrypto, 365},
		{"1h", CalendarCrypto, 8760},
		{"1h", CalendarTrading, 6048},
		{"4h", CalendarCrypto, 2190},
		{"15m", CalendarCrypto, 35040},
		{"1w", CalendarCrypto, 52},
	}
	for _, c := range cases {
		got, err := PeriodsPerYearFor(c.tf, c.calendar)
		require.NoError(t, err, c.tf)
		assert.InDelta(t, c.want, got, 1e-9, c.tf+"/"+c.calendar)
	}
	_, err := PeriodsPerYearFor("hourly", "")
	assert.Error(t, err)
	_, err = PeriodsPerYearFor("3y", "")
	assert.Error(t, err)
	_, err = PeriodsPerYearFor("1d", "lunar")
	assert.Error(t, err)
}
