package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walkforward-backtest/internal/api/models"
	"walkforward-backtest/internal/config"
)

func ptr[T any](v T) *T { return &v }

func TestBacktestConfigOverlaysRequest(t *testing.T) {
	base := config.Default()
	base.Model.Params = map[string]any{"alpha": 0.001, "epochs": 5}

	cfg, err := backtestConfig(base, models.BacktestRequest{
		Dataset:        "btc-1h",
		Symbols:        []string{"BTCUSDT"},
		Params:         map[string]interface{}{"alpha": 0.01},
		TrainWindow:    "30d",
		OnlineLearning: ptr(true),
		FeesBps:        ptr(0.0),
		BuyThreshold:   ptr(0.7),
	})
	require.NoError(t, err)

	assert.Equal(t, "btc-1h", cfg.Data.Path)
	assert.Equal(t, "30d", cfg.Backtest.TrainWindow)
	assert.Equal(t, "7d", cfg.Backtest.TestWindow)
	assert.True(t, cfg.Backtest.OnlineLearning)
	assert.Equal(t, 0.0, cfg.Costs.FeesBps)
	assert.Equal(t, 5.0, cfg.Costs.SlippageBps)
	assert.Equal(t, 0.7, cfg.Signals.BuyThreshold)
	assert.Equal(t, 0.01, cfg.Model.Params["alpha"])
	assert.Equal(t, 5, cfg.Model.Params["epochs"])

	// The shared base is untouched.
	assert.Equal(t, 0.001, base.Model.Params["alpha"])
	assert.Equal(t, 5.0, base.Costs.FeesBps)
	assert.False(t, base.Backtest.OnlineLearning)
}

func TestBacktestConfigDropsParamsOfOtherKind(t *testing.T) {
	base := config.Default()
	base.Model.Params = map[string]any{"epochs": 5}

	cfg, err := backtestConfig(base, models.BacktestRequest{Dataset: "x.csv", Model: "ridge"})
	require.NoError(t, err)
	assert.Equal(t, "ridge", cfg.Model.Kind)
	assert.Empty(t, cfg.Model.Params)
}

func TestBacktestConfigValidates(t *testing.T) {
	_, err := backtestConfig(config.Default(), models.BacktestRequest{Dataset: "x.csv", TestWindow: "soon"})
	assert.Error(t, err)

	_, err = backtestConfig(config.Default(), models.BacktestRequest{Dataset: "x.csv", Timeframe: "7x"})
	assert.Error(t, err)

	_, err = backtestConfig(config.Default(), models.BacktestRequest{Dataset: "x.csv", Timeframe: "7x", PeriodsPerYear: 52})
	assert.NoError(t, err)
}

func TestBacktestConfigBenchmarksAndCalendar(t *testing.T) {
	base := config.Default()
	cfg, err := backtestConfig(base, models.BacktestRequest{
		Dataset:  "x.csv",
		Calendar: "crypto",
		Benchmarks: []models.BenchmarkSpec{
			{Name: "schedule", Params: map[string]interface{}{"entry_time": "09:30", "exit_time": "16:00"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "crypto", cfg.Backtest.Calendar)
	require.Len(t, cfg.BenchmarkList(), 1)
	assert.Equal(t, "schedule", cfg.BenchmarkList()[0].Name)
	assert.Empty(t, base.Benchmarks)

	_, err = backtestConfig(base, models.BacktestRequest{
		Dataset:    "x.csv",
		Benchmarks: []models.BenchmarkSpec{{Name: "schedule", Params: map[string]interface{}{"exit_time": "noon"}}},
	})
	assert.Error(t, err)
}
