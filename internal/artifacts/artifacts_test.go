package artifacts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walkforward-backtest/internal/backtest"
	"walkforward-backtest/internal/model"
	"walkforward-backtest/internal/predictor"
)

var t0 = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

func sampleResult() *backtest.Result {
	return &backtest.Result{
		Status: backtest.StatusCompleted,
		Trades: []backtest.TradeRecord{
			{Fold: 0, Timestamp: t0, Action: model.ActionBuy, Price: 100, Cost: 0.1, CapitalAfter: 9999.9},
			{Fold: 0, Timestamp: t0.Add(time.Hour), Action: model.ActionSell, Price: 101, PnL: 98, CapitalAfter: 10098, Forced: true},
		},
		Equity: []backtest.EquityPoint{
			{Fold: 0, Timestamp: t0, Capital: 9999.9, Position: model.SideLong, EntryPrice: 100, MarkPrice: 100, Equity: 9999.9},
		},
		Summary: &backtest.Summary{InitialCapital: 10000, FinalCapital: 10098, TotalTrades: 2},
	}
}

func TestSaveWritesAllFiles(t *testing.T) {
	dir := t.TempDir()
	rep := Report{
		RunID:        "run-1",
		CreatedAt:    t0,
		Symbol:       "BTCUSDT",
		Model:        "sgdc",
		Task:         model.TaskClassification,
		FeatureNames: []string{"rsi", "macd"},
		Result:       sampleResult(),
	}
	runDir, err := Save(dir, rep, []float64{0.2, 0.9})
	require.NoError(t, err)

	for _, f := range []string{ReportFile, TradesFile, EquityFile, ImportanceFile} {
		assert.FileExists(t, filepath.Join(runDir, f))
	}
	trades, err := os.ReadFile(filepath.Join(runDir, TradesFile))
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(trades), "\n"))

	loaded, err := Load(dir, "run-1")
	require.NoError(t, err)
	assert.Empty(t, loaded.Result.Trades, "trades live in the csv")
	assert.Equal(t, 2, loaded.Result.Summary.TotalTrades)
	assert.Len(t, rep.Result.Trades, 2, "caller's result is untouched")
}

func TestSaveSkipsMismatchedImportance(t *testing.T) {
	dir := t.TempDir()
	runDir, err := Save(dir, Report{RunID: "r", FeatureNames: []string{"a"}, Result: sampleResult()}, []float64{1, 2})
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(runDir, ImportanceFile))

	_, err = Save(dir, Report{Result: sampleResult()}, nil)
	assert.Error(t, err)
}

func TestRankImportance(t *testing.T) {
	got := RankImportance([]string{"a", "b", "c"}, []float64{0.1, 0.5, 0.3})
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0].Feature)
	assert.Equal(t, "a", got[2].Feature)
	assert.Nil(t, RankImportance([]string{"a"}, nil))
}

func TestListNewestFirst(t *testing.T) {
	dir := t.TempDir()
	for i, id := range []string{"old", "new", "mid"} {
		created := t0.Add(time.Duration([]int{0, 2, 1}[i]) * time.Hour)
		_, err := Save(dir, Report{RunID: id, CreatedAt: created, Result: sampleResult()}, nil)
		require.NoError(t, err)
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "junk"), 0o755))

	runs, err := List(dir)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{runs[0].RunID, runs[1].RunID, runs[2].RunID})
	assert.Equal(t, backtest.StatusCompleted, runs[0].Status)

	none, err := List(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSaveAndLoadModel(t *testing.T) {
	dir := t.TempDir()
	p := predictor.NewRidge(0.5)
	X := [][]float64{{1, 0}, {0, 1}, {1, 1}, {2, 1}}
	y := []float64{1, 2, 3, 4}
	require.NoError(t, p.Fit(X, y))

	_, err := SaveModel(dir, ModelInfo{Name: "ridge-btc", FeatureNames: []string{"a", "b"}, TrainedAt: t0}, p)
	require.NoError(t, err)

	loaded, info, err := LoadModel(dir, "ridge-btc")
	require.NoError(t, err)
	assert.Equal(t, predictor.KindRidge, info.Kind)
	assert.Equal(t, model.TaskRegression, info.Task)

	want, err := p.Predict(X)
	require.NoError(t, err)
	got, err := loaded.Predict(X)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, got, 1e-9)

	list, err := ListModels(dir)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ridge-btc", list[0].Name)
}
