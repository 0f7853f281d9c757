package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walkforward-backtest/internal/model"
)

func TestThreeClassSignals(t *testing.T) {
	cfg := DefaultSignalConfig()
	out := ModelOutput{Proba: [][]float64{
		{0.1, 0.2, 0.7},  // buy
		{0.65, 0.3, 0.05}, // sell: P(SELL) >= 1-0.4
		{0.5, 0.3, 0.2},  // hold
		{0, 1, 0},        // hold
	}}
	got, err := cfg.Generate(model.TaskClassification, out)
	require.NoError(t, err)
	assert.Equal(t, []model.Signal{model.SignalBuy, model.SignalSell, model.SignalHold, model.SignalHold}, got)
}

func TestThreeClassBuyWinsTie(t *testing.T) {
	cfg := SignalConfig{BuyThreshold: 0.4, SellThreshold: 0.6}
	got, err := cfg.Generate(model.TaskClassification, ModelOutput{Proba: [][]float64{{0.45, 0.1, 0.45}}})
	require.NoError(t, err)
	assert.Equal(t, []model.Signal{model.SignalBuy}, got)
}

func TestBinarySignals(t *testing.T) {
	cfg := DefaultSignalConfig()
	got, err := cfg.Generate(model.TaskClassification, ModelOutput{Proba: [][]float64{
		{0.3, 0.7}, {0.65, 0.35}, {0.5, 0.5}, {0.4, 0.6}, {0.6, 0.4},
	}})
	require.NoError(t, err)
	assert.Equal(t, []model.Signal{
		model.SignalBuy, model.SignalSell, model.SignalHold, model.SignalBuy, model.SignalSell,
	}, got)
}

func TestRegressionSignalsUseConfiguredBounds(t *testing.T) {
	cfg := DefaultSignalConfig()
	got, err := cfg.Generate(model.TaskRegression, ModelOutput{Predictions: []float64{0.01, 0.009, -0.005, -0.004, 0.2}})
	require.NoError(t, err)
	assert.Equal(t, []model.Signal{
		model.SignalBuy, model.SignalHold, model.SignalSell, model.SignalHold, model.SignalBuy,
	}, got)

	cfg.RegressionBuyReturn = 0.5
	got, err = cfg.Generate(model.TaskRegression, ModelOutput{Predictions: []float64{0.2}})
	require.NoError(t, err)
	assert.Equal(t, []model.Signal{model.SignalHold}, got)
}

func TestSignalsRejectMalformedProba(t *testing.T) {
	cfg := DefaultSignalConfig()
	_, err := cfg.Generate(model.TaskClassification, ModelOutput{Proba: [][]float64{{1}}})
	assert.Error(t, err)
	_, err = cfg.Generate(model.TaskClassification, ModelOutput{Proba: [][]float64{{0.5, 0.5}, {0.2, 0.3, 0.5}}})
	assert.Error(t, err)
	_, err = cfg.Generate(model.Task("ranking"), ModelOutput{})
	assert.Error(t, err)

	assert.Error(t, SignalConfig{BuyThreshold: 1.2}.Validate())
	assert.NoError(t, DefaultSignalConfig().Validate())

	inverted := DefaultSignalConfig()
	inverted.RegressionBuyReturn, inverted.RegressionSellReturn = -0.01, 0.01
	assert.Error(t, inverted.Validate())
}

func TestAlignProbaFillsMissingClasses(t *testing.T) {
	got, err := alignProba([][]float64{{0.3, 0.7}}, []float64{0, 2}, []float64{0, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.3, 0, 0.7}}, got)

	same := [][]float64{{0.2, 0.8}}
	got, err = alignProba(same, []float64{0, 1}, []float64{0, 1})
	require.NoError(t, err)
	assert.Equal(t, same, got)

	_, err = alignProba([][]float64{{1}}, []float64{5}, []float64{0, 1})
	assert.ErrorIs(t, err, errClassMismatch)
}
