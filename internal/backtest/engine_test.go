package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walkforward-backtest/internal/model"
	"walkforward-backtest/internal/predictor"
)

// stubPredictor returns a fixed output and records how it was trained.
type stubPredictor struct {
	task        model.Task
	value       float64
	proba       []float64
	incremental bool
	failFitAt   int

	fits       int
	partials   int
	trainSizes []int
}

func (s *stubPredictor) Kind() string              { return "stub" }
func (s *stubPredictor) Task() model.Task          { return s.task }
func (s *stubPredictor) SupportsIncremental() bool { return s.incremental }

func (s *stubPredictor) Fit(X [][]float64, _ []float64) error {
	s.fits++
	if s.failFitAt > 0 && s.fits == s.failFitAt {
		return errors.New("boom")
	}
	s.trainSizes = append(s.trainSizes, len(X))
	return nil
}

func (s *stubPredictor) PartialFit(X [][]float64, _ []float64, _ []float64) error {
	if !s.incremental {
		return predictor.ErrUnsupported
	}
	s.partials++
	s.trainSizes = append(s.trainSizes, len(X))
	return nil
}

func (s *stubPredictor) Predict(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i := range out {
		out[i] = s.value
	}
	return out, nil
}

func (s *stubPredictor) PredictProba(X [][]float64) ([][]float64, error) {
	if s.task == model.TaskRegression {
		return nil, predictor.ErrUnsupported
	}
	out := make([][]float64, len(X))
	for i := range out {
		out[i] = append([]float64(nil), s.proba...)
	}
	return out, nil
}

// dailySeries builds n daily bars whose close grows by growth per bar.
// Targets cycle through the three classes.
func dailySeries(n int, growth float64) model.Series {
	bars := make([]model.Bar, n)
	price := 100.0
	for i := range bars {
		bars[i] = model.Bar{
			Timestamp: t0.Add(time.Duration(i) * day),
			Close:     price,
			Features:  []float64{float64(i)},
			Target:    float64(i % 3),
		}
		price *= 1 + growth
	}
	return model.Series{Timeframe: "1d", FeatureNames: []string{"i"}, Bars: bars}
}

func baseConfig() Config {
	cfg := DefaultConfig()
	cfg.TrainWindow = 100 * day
	cfg.TestWindow = 20 * day
	return cfg
}

func TestRisingSeriesWithBullishRegressor(t *testing.T) {
	series := dailySeries(200, 0.01)
	p := &stubPredictor{task: model.TaskRegression, value: 0.02}

	res, err := New().Run(context.Background(), series, p, baseConfig())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	require.Len(t, res.Folds, 4)

	require.Len(t, res.Trades, 2)
	buy, sell := res.Trades[0], res.Trades[1]
	assert.Equal(t, model.ActionBuy, buy.Action)
	assert.Equal(t, t0.Add(100*day), buy.Timestamp)
	assert.Equal(t, model.ActionSell, sell.Action)
	assert.True(t, sell.Forced)
	assert.Equal(t, series.Bars[179].Timestamp, sell.Timestamp)
	assert.Equal(t, 3, sell.Fold)

	require.NotNil(t, res.Summary)
	assert.Greater(t, res.Summary.TotalReturn, 0.0)
	assert.Equal(t, 1, res.Summary.TotalTrades)
	assert.Equal(t, 1.0, res.Summary.WinRate)
	assert.Equal(t, 0.0, res.Summary.MaxDrawdown)
	assert.Equal(t, model.SideFlat, res.FinalState.Side)
	assert.Len(t, res.Equity, 80)

	for _, f := range res.Folds {
		require.NotNil(t, f.Metrics.Regression)
		assert.Equal(t, UpdateFit, f.UpdateMode)
	}
	assert.Equal(t, 4, p.fits)
}

func TestCertainHoldClassifierNeverTrades(t *testing.T) {
	p := &stubPredictor{task: model.TaskClassification, value: model.ClassHold, proba: []float64{0, 1, 0}}

	res, err := New().Run(context.Background(), dailySeries(200, 0.01), p, baseConfig())
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	require.NotNil(t, res.Summary)
	assert.Equal(t, 0.0, res.Summary.TotalReturn)
	assert.Equal(t, 0.0, res.Summary.MaxDrawdown)
	assert.Equal(t, 0.0, res.Summary.WinRate)
	assert.Equal(t, 0, res.Summary.TotalTrades)
	for _, f := range res.Folds {
		require.NotNil(t, f.Metrics.Classification)
		assert.InDelta(t, 0.0, f.PnL, 1e-12)
	}
}

func TestOnlineModeFallsBackToRefit(t *testing.T) {
	p := &stubPredictor{task: model.TaskRegression, value: 0}
	cfg := baseConfig()
	cfg.OnlineLearning = true

	res, err := New().Run(context.Background(), dailySeries(200, 0.01), p, cfg)
	require.NoError(t, err)
	require.Len(t, res.Folds, 4)
	assert.Equal(t, UpdateFit, res.Folds[0].UpdateMode)
	for _, f := range res.Folds[1:] {
		assert.Equal(t, UpdateRefit, f.UpdateMode)
	}
	for _, f := range res.Folds {
		assert.Equal(t, 100, f.TrainSamples, "train window is re-sliced, not cumulative")
	}
	assert.Equal(t, 4, p.fits)
	assert.Equal(t, []int{100, 100, 100, 100}, p.trainSizes)
}

func TestOnlineModeUsesPartialFit(t *testing.T) {
	p := &stubPredictor{task: model.TaskRegression, incremental: true}
	cfg := baseConfig()
	cfg.OnlineLearning = true

	res, err := New().Run(context.Background(), dailySeries(200, 0.01), p, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, p.fits)
	assert.Equal(t, 3, p.partials)
	assert.Equal(t, UpdatePartialFit, res.Folds[3].UpdateMode)
}

func TestSparseFoldsAreSkippedAndRecorded(t *testing.T) {
	series := dailySeries(200, 0.01)
	// drop days 101..115 so fold 0's test window is undersized
	kept := append([]model.Bar{}, series.Bars[:101]...)
	kept = append(kept, series.Bars[116:]...)
	series.Bars = kept

	p := &stubPredictor{task: model.TaskRegression, incremental: true}
	cfg := baseConfig()
	cfg.OnlineLearning = true
	cfg.MinTrainRows = 50

	res, err := New().Run(context.Background(), series, p, cfg)
	require.NoError(t, err)
	require.Len(t, res.Folds, 4)

	assert.True(t, res.Folds[0].Skipped)
	assert.Equal(t, 5, res.Folds[0].TestSamples)
	assert.NotEmpty(t, res.Folds[0].SkipReason)
	assert.Nil(t, res.Folds[0].Metrics)

	assert.Equal(t, UpdateFit, res.Folds[1].UpdateMode, "first evaluated fold is a full fit")
	assert.Equal(t, UpdatePartialFit, res.Folds[2].UpdateMode)
	assert.Equal(t, 3, res.Summary.EvaluatedFolds)
	assert.Equal(t, 1, res.Summary.SkippedFolds)
	assert.Len(t, res.Evaluated(), 3)
}

func TestNoRowInBothTrainAndTest(t *testing.T) {
	series := dailySeries(200, 0.0)
	for _, f := range mustFolds(t, series, 100*day, 20*day) {
		train := series.Slice(f.TrainStart, f.TrainEnd)
		test := series.Slice(f.TestStart, f.TestEnd)
		require.NotEmpty(t, test)
		assert.True(t, train[len(train)-1].Timestamp.Before(test[0].Timestamp))
	}
}

func mustFolds(t *testing.T, s model.Series, train, test time.Duration) []Fold {
	folds, err := Folds(s.Start(), s.End(), train, test)
	require.NoError(t, err)
	return folds
}

func TestModelErrorAbortsWithFoldIndex(t *testing.T) {
	p := &stubPredictor{task: model.TaskRegression, value: 0.02, failFitAt: 3}

	res, err := New().Run(context.Background(), dailySeries(200, 0.01), p, baseConfig())
	require.Error(t, err)

	var fe *FoldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 2, fe.Fold)
	assert.Equal(t, StageFit, fe.Stage)
	assert.Contains(t, err.Error(), "boom")

	require.NotNil(t, res)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Nil(t, res.Summary)
	assert.Len(t, res.Folds, 2)
}

type cancelAfter struct {
	n      int
	cancel context.CancelFunc
	done   int
}

func (c *cancelAfter) FoldStarted(Fold) {}
func (c *cancelAfter) FoldCompleted(FoldReport) {
	c.done++
	if c.done == c.n {
		c.cancel()
	}
}

func TestCancellationReturnsPartialResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := baseConfig()
	cfg.Observer = &cancelAfter{n: 2, cancel: cancel}
	p := &stubPredictor{task: model.TaskRegression, value: 0.02}

	res, err := New().Run(ctx, dailySeries(200, 0.01), p, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)

	require.NotNil(t, res)
	assert.Equal(t, StatusPartial, res.Status)
	assert.Len(t, res.Folds, 2)
	assert.Len(t, res.Equity, 40)
	assert.Equal(t, model.SideLong, res.FinalState.Side, "partial runs keep the open position")
	require.NotNil(t, res.Summary)
	assert.Equal(t, 0, res.Summary.TotalTrades)
}

func TestRunRejectsBadConfiguration(t *testing.T) {
	p := &stubPredictor{task: model.TaskRegression}
	series := dailySeries(200, 0.01)

	cfg := baseConfig()
	cfg.TestWindow = 0
	_, err := New().Run(context.Background(), series, p, cfg)
	assert.ErrorIs(t, err, ErrInvalidWindow)

	cfg = baseConfig()
	cfg.InitialCapital = 0
	_, err = New().Run(context.Background(), series, p, cfg)
	assert.Error(t, err)

	_, err = New().Run(context.Background(), model.Series{}, p, baseConfig())
	assert.Error(t, err)

	_, err = New().Run(context.Background(), series, nil, baseConfig())
	assert.Error(t, err)

	unordered := dailySeries(200, 0.01)
	unordered.Bars[5], unordered.Bars[6] = unordered.Bars[6], unordered.Bars[5]
	_, err = New().Run(context.Background(), unordered, p, baseConfig())
	assert.Error(t, err)
}

func TestFoldPnLSumsToEquityChange(t *testing.T) {
	series := dailySeries(200, 0.005)
	// alternate bullish and bearish folds
	p := &flipPredictor{}
	cfg := baseConfig()
	cfg.FeesBps, cfg.SlippageBps = 0, 0

	res, err := New().Run(context.Background(), series, p, cfg)
	require.NoError(t, err)

	sum := 0.0
	for _, f := range res.Folds {
		sum += f.PnL
	}
	last := res.Equity[len(res.Equity)-1].Equity
	assert.InDelta(t, last-cfg.InitialCapital, sum, 1e-6)
	assert.Positive(t, res.Summary.TotalTrades)
	assert.LessOrEqual(t, res.Summary.MaxDrawdown, 0.0)
	assert.GreaterOrEqual(t, res.Summary.WinRate, 0.0)
	assert.LessOrEqual(t, res.Summary.WinRate, 1.0)
}

// flipPredictor predicts +2% on even fits and -2% on odd ones.
type flipPredictor struct {
	stubPredictor
}

func (f *flipPredictor) Task() model.Task { return model.TaskRegression }

func (f *flipPredictor) Predict(X [][]float64) ([]float64, error) {
	v := 0.02
	if f.fits%2 == 0 {
		v = -0.02
	}
	out := make([]float64, len(X))
	for i := range out {
		out[i] = v
	}
	return out, nil
}

func TestClassifierProbaIsAlignedToLabelSet(t *testing.T) {
	// model only knows classes 0 and 2; run label set is {0,1,2}
	p := &knownClasses{stubPredictor: stubPredictor{task: model.TaskClassification, proba: []float64{0.1, 0.9}}}
	res, err := New().Run(context.Background(), dailySeries(200, 0.01), p, baseConfig())
	require.NoError(t, err)
	require.NotEmpty(t, res.Trades)
	assert.Equal(t, model.ActionBuy, res.Trades[0].Action)
}

type knownClasses struct {
	stubPredictor
}

func (k *knownClasses) Classes() []float64 { return []float64{0, 2} }

func TestOnlineClassifierAcceptsLateClass(t *testing.T) {
	series := dailySeries(200, 0.005)
	series.FeatureNames = []string{"dow", "mod5"}
	for i := range series.Bars {
		series.Bars[i].Features = []float64{float64(i % 7), float64(i % 5)}
		if i < 120 {
			series.Bars[i].Target = float64(1 + i%2)
		}
	}
	p := predictor.NewSGDClassifier(predictor.DefaultSGDParams())
	cfg := baseConfig()
	cfg.OnlineLearning = true

	res, err := New().Run(context.Background(), series, p, cfg)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	require.NotNil(t, res.Summary)
	require.Len(t, res.Folds, 4)
	assert.Equal(t, UpdateFit, res.Folds[0].UpdateMode)
	assert.Equal(t, UpdatePartialFit, res.Folds[2].UpdateMode)
	assert.Equal(t, []float64{0, 1, 2}, p.Classes())
}
