package predictor

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walkforward-backtest/internal/model"
)

// linearData returns y = 2*x0 - x1 + 0.5 on a small grid.
func linearData() ([][]float64, []float64) {
	var X [][]float64
	var y []float64
	for i := 0; i < 20; i++ {
		for j := 0; j < 5; j++ {
			x0, x1 := float64(i)/10, float64(j)/5
			X = append(X, []float64{x0, x1})
			y = append(y, 2*x0-x1+0.5)
		}
	}
	return X, y
}

// blobs returns three well separated clusters labelled 0, 1, 2.
func blobs() ([][]float64, []float64) {
	centers := [][]float64{{-5, -5}, {0, 0}, {5, 5}}
	var X [][]float64
	var y []float64
	for k, c := range centers {
		for i := 0; i < 30; i++ {
			dx := float64(i%5)/10 - 0.2
			dy := float64(i/5)/10 - 0.25
			X = append(X, []float64{c[0] + dx, c[1] + dy})
			y = append(y, float64(k))
		}
	}
	return X, y
}

func TestRidgeRecoversLinearRelationship(t *testing.T) {
	X, y := linearData()
	m := NewRidge(1e-6)
	require.NoError(t, m.Fit(X, y))

	pred, err := m.Predict([][]float64{{1, 0.4}})
	require.NoError(t, err)
	assert.InDelta(t, 2*1-0.4+0.5, pred[0], 1e-4)

	assert.False(t, m.SupportsIncremental())
	assert.ErrorIs(t, m.PartialFit(X, y, nil), ErrUnsupported)
	_, err = m.PredictProba(X)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestPredictBeforeFit(t *testing.T) {
	for _, kind := range []string{KindSGDClassifier, KindSGDRegressor, KindRidge, KindCentroid} {
		p, err := New(kind, nil)
		require.NoError(t, err)
		_, err = p.Predict([][]float64{{1, 2}})
		assert.ErrorIs(t, err, ErrNotFitted, kind)
	}
}

func TestSGDRegressorLearnsAndUpdates(t *testing.T) {
	X, y := linearData()
	m := NewSGDRegressor(SGDParams{LearningRate: 0.01, Epochs: 200, Seed: 1})
	require.NoError(t, m.Fit(X, y))

	pred, err := m.Predict([][]float64{{1, 0.4}})
	require.NoError(t, err)
	assert.InDelta(t, 2.1, pred[0], 0.05)

	before := append([]float64(nil), m.Weights...)
	shifted := make([]float64, len(y))
	for i := range y {
		shifted[i] = y[i] + 1
	}
	require.NoError(t, m.PartialFit(X, shifted, nil))
	assert.NotEqual(t, before, m.Weights)
}

func TestSGDClassifierSeparatesBlobs(t *testing.T) {
	X, y := blobs()
	m := NewSGDClassifier(SGDParams{LearningRate: 0.1, Epochs: 50, Seed: 7})
	require.NoError(t, m.Fit(X, y))
	assert.Equal(t, []float64{0, 1, 2}, m.Classes())

	pred, err := m.Predict([][]float64{{-5, -5}, {0, 0}, {5, 5}})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2}, pred)

	proba, err := m.PredictProba([][]float64{{5, 5}})
	require.NoError(t, err)
	require.Len(t, proba[0], 3)
	sum := proba[0][0] + proba[0][1] + proba[0][2]
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Greater(t, proba[0][2], 0.5)
}

func TestSGDClassifierPartialFitRejectsUnknownLabel(t *testing.T) {
	X, y := blobs()
	m := NewSGDClassifier(DefaultSGDParams())
	require.NoError(t, m.PartialFit(X, y, []float64{0, 1, 2}))
	err := m.PartialFit([][]float64{{1, 1}}, []float64{9}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in known classes")
}

func TestSGDClassifierSetClassesBeforeFit(t *testing.T) {
	X, y := blobs()
	var Xa [][]float64
	var ya []float64
	for i := range y {
		if y[i] != 0 {
			Xa, ya = append(Xa, X[i]), append(ya, y[i])
		}
	}
	m := NewSGDClassifier(DefaultSGDParams())
	m.SetClasses([]float64{0, 1, 2})
	require.NoError(t, m.Fit(Xa, ya))
	assert.Equal(t, []float64{0, 1, 2}, m.Classes())
	require.NoError(t, m.PartialFit(X, y, nil))

	var _ ClassSetter = (*Centroid)(nil)
}

func TestCentroidProbabilities(t *testing.T) {
	X, y := blobs()
	m := NewCentroid(1, []float64{0, 1, 2, 3})
	require.NoError(t, m.Fit(X, y))

	proba, err := m.PredictProba([][]float64{{-5, -5}})
	require.NoError(t, err)
	require.Len(t, proba[0], 4)
	assert.Equal(t, 0.0, proba[0][3], "unseen class must get zero mass")
	assert.Greater(t, proba[0][0], proba[0][1])

	pred, err := m.Predict([][]float64{{5.1, 4.9}})
	require.NoError(t, err)
	assert.Equal(t, 2.0, pred[0])
}

func TestNewUnknownKind(t *testing.T) {
	_, err := New("xgb", nil)
	assert.Error(t, err)
	_, err = TaskOf("xgb")
	assert.Error(t, err)

	task, err := TaskOf(KindCentroid)
	require.NoError(t, err)
	assert.Equal(t, model.TaskClassification, task)
}

func TestNewReadsParams(t *testing.T) {
	p, err := New(KindSGDClassifier, map[string]any{
		"learning_rate": 0.5,
		"epochs":        3,
		"classes":       []any{0, 1, 2},
	})
	require.NoError(t, err)
	c := p.(*SGDClassifier)
	assert.Equal(t, 0.5, c.Params.LearningRate)
	assert.Equal(t, 3, c.Params.Epochs)
	assert.Equal(t, []float64{0, 1, 2}, c.Params.Classes)
}

func TestSaveLoadRoundTripPredictions(t *testing.T) {
	X, y := linearData()
	m := NewRidge(0.1)
	require.NoError(t, m.Fit(X, y))

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, m))
	restored, err := Load(&buf)
	require.NoError(t, err)
	assert.Equal(t, KindRidge, restored.Kind())

	want, _ := m.Predict(X[:3])
	got, err := restored.Predict(X[:3])
	require.NoError(t, err)
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-12)
	}
}

func TestScalerConstantColumn(t *testing.T) {
	var s StandardScaler
	out, err := s.FitTransform([][]float64{{1, 5}, {3, 5}})
	require.NoError(t, err)
	assert.Equal(t, 0.0, out[0][1])
	assert.False(t, math.IsNaN(out[1][1]))

	_, err = s.Transform([][]float64{{1}})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFitted))
}
