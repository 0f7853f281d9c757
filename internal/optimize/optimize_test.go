package optimize

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walkforward-backtest/internal/backtest"
)

func bowl(_ context.Context, v map[string]float64) (float64, error) {
	dx, dy := v["x"]-0.3, v["y"]-0.7
	return -(dx*dx + dy*dy), nil
}

func smallParams() Params {
	p := DefaultParams()
	p.PopulationSize = 30
	p.Generations = 40
	p.MutationRate = 0.3
	p.Elitism = 2
	p.Seed = 7
	return p
}

func TestGAFindsMaximum(t *testing.T) {
	ga, err := New([]Gene{{Name: "x", Min: 0, Max: 1}, {Name: "y", Min: 0, Max: 1}}, smallParams())
	require.NoError(t, err)

	var gens int
	ga.OnGeneration = func(int, float64) { gens++ }
	res, err := ga.Run(context.Background(), bowl)
	require.NoError(t, err)

	assert.InDelta(t, 0.3, res.Best["x"], 0.05)
	assert.InDelta(t, 0.7, res.Best["y"], 0.05)
	assert.Equal(t, 30*40, res.Evaluations)
	assert.Equal(t, 40, gens)
	require.Len(t, res.History, 40)
	for i := 1; i < len(res.History); i++ {
		assert.GreaterOrEqual(t, res.History[i], res.History[i-1])
	}
	assert.Equal(t, res.History[39], res.BestFitness)
}

func TestGAIsDeterministicForSeed(t *testing.T) {
	genes := []Gene{{Name: "x", Min: 0, Max: 1}, {Name: "y", Min: 0, Max: 1}}
	a, err := New(genes, smallParams())
	require.NoError(t, err)
	b, err := New(genes, smallParams())
	require.NoError(t, err)

	ra, err := a.Run(context.Background(), bowl)
	require.NoError(t, err)
	rb, err := b.Run(context.Background(), bowl)
	require.NoError(t, err)
	assert.Equal(t, ra.Best, rb.Best)
}

func TestGAKeepsGenesInBounds(t *testing.T) {
	p := smallParams()
	p.MutationRate = 1
	p.MutationScale = 5
	ga, err := New([]Gene{{Name: "x", Min: -1, Max: 1}, {Name: "y", Min: 2, Max: 3}}, p)
	require.NoError(t, err)

	_, err = ga.Run(context.Background(), func(_ context.Context, v map[string]float64) (float64, error) {
		if v["x"] < -1 || v["x"] > 1 || v["y"] < 2 || v["y"] > 3 {
			return 0, errors.New("out of bounds")
		}
		return v["x"], nil
	})
	require.NoError(t, err)
}

func TestGAFitnessErrorAborts(t *testing.T) {
	ga, err := New([]Gene{{Name: "x", Min: 0, Max: 1}}, smallParams())
	require.NoError(t, err)
	_, err = ga.Run(context.Background(), func(context.Context, map[string]float64) (float64, error) {
		return 0, errors.New("backtest failed")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generation 0")
}

func TestGACancellationKeepsBest(t *testing.T) {
	ga, err := New([]Gene{{Name: "x", Min: 0, Max: 1}, {Name: "y", Min: 0, Max: 1}}, smallParams())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	ga.OnGeneration = func(gen int, _ float64) {
		if gen == 2 {
			cancel()
		}
	}
	res, err := ga.Run(ctx, bowl)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Len(t, res.History, 3)
	assert.Contains(t, res.Best, "x")
}

func TestNewRejectsBadSetup(t *testing.T) {
	_, err := New(nil, DefaultParams())
	assert.Error(t, err)
	_, err = New([]Gene{{Name: "x", Min: 1, Max: 1}}, DefaultParams())
	assert.Error(t, err)

	p := DefaultParams()
	p.Elitism = p.PopulationSize
	_, err = New([]Gene{{Name: "x", Min: 0, Max: 1}}, p)
	assert.Error(t, err)
}

func TestObjectiveScore(t *testing.T) {
	s := &backtest.Summary{SharpeRatio: 1.2, TotalReturn: 0.1, WinRate: 0.6, MaxDrawdown: -0.15, TotalTrades: 8}

	assert.Equal(t, 1.2, Objective{Metric: MetricSharpe}.Score(s))
	assert.Equal(t, 0.1, Objective{Metric: MetricReturn}.Score(s))
	assert.Equal(t, 0.6, Objective{Metric: MetricWinRate}.Score(s))

	tight, loose := -0.1, -0.2
	assert.Equal(t, float64(Penalty), Objective{Metric: MetricSharpe, MaxDrawdown: &tight}.Score(s))
	assert.Equal(t, 1.2, Objective{Metric: MetricSharpe, MaxDrawdown: &loose}.Score(s))
	minWin := 0.7
	assert.Equal(t, float64(Penalty), Objective{Metric: MetricSharpe, MinWinRate: &minWin}.Score(s))
	assert.Equal(t, float64(Penalty), Objective{Metric: MetricSharpe, MinTrades: 10}.Score(s))
	assert.Equal(t, float64(Penalty), Objective{Metric: MetricSharpe}.Score(nil))

	assert.Error(t, Objective{Metric: "sortino"}.Validate())
}

func TestApplyThresholds(t *testing.T) {
	cfg := ApplyThresholds(backtest.DefaultSignalConfig(), map[string]float64{
		"buy_threshold":          0.75,
		"regression_sell_return": -0.02,
		"unknown":                1,
	})
	assert.Equal(t, 0.75, cfg.BuyThreshold)
	assert.Equal(t, -0.02, cfg.RegressionSellReturn)
	assert.Equal(t, backtest.DefaultSignalConfig().SellThreshold, cfg.SellThreshold)

	for _, classification := range []bool{true, false} {
		for _, g := range ThresholdGenes(classification) {
			assert.Less(t, g.Min, g.Max, g.Name)
		}
	}
}
