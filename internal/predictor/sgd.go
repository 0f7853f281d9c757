package predictor

import (
	"fmt"
	"math"
	"math/rand"

	"walkforward-backtest/internal/model"
)

// SGDParams controls the stochastic gradient learners.
type SGDParams struct {
	LearningRate float64   `json:"learning_rate"`
	Alpha        float64   `json:"alpha"` // L2 penalty
	Epochs       int       `json:"epochs"`
	Seed         int64     `json:"seed"`
	Classes      []float64 `json:"classes,omitempty"`
}

func DefaultSGDParams() SGDParams {
	return SGDParams{LearningRate: 0.01, Alpha: 1e-4, Epochs: 20, Seed: 42}
}

// SGDClassifier is a multinomial logistic regression. Fit runs Params.Epochs
// passes from fresh weights; PartialFit runs a single pass on the current weights.
type SGDClassifier struct {
	Params  SGDParams      `json:"params"`
	Scaler  StandardScaler `json:"scaler"`
	Labels  []float64      `json:"classes"`
	Weights [][]float64    `json:"weights"`
	Bias    []float64      `json:"bias"`
}

func NewSGDClassifier(p SGDParams) *SGDClassifier { return &SGDClassifier{Params: p} }

func (m *SGDClassifier) Kind() string              { return KindSGDClassifier }
func (m *SGDClassifier) Task() model.Task          { return model.TaskClassification }
func (m *SGDClassifier) SupportsIncremental() bool { return true }
func (m *SGDClassifier) Classes() []float64        { return m.Labels }

func (m *SGDClassifier) SetClasses(classes []float64) {
	m.Params.Classes = append([]float64(nil), classes...)
}

func (m *SGDClassifier) Fit(X [][]float64, y []float64) error {
	if err := checkXY(X, y); err != nil {
		return err
	}
	m.Scaler = StandardScaler{}
	Xs, err := m.Scaler.FitTransform(X)
	if err != nil {
		return err
	}
	classes := m.Params.Classes
	if len(classes) == 0 {
		classes = uniqueSorted(y)
	}
	m.init(classes, len(X[0]))
	rng := rand.New(rand.NewSource(m.Params.Seed))
	for e := 0; e < max(1, m.Params.Epochs); e++ {
		if err := m.epoch(Xs, y, rng); err != nil {
			return err
		}
	}
	return nil
}

func (m *SGDClassifier) PartialFit(X [][]float64, y []float64, knownClasses []float64) error {
	if err := checkXY(X, y); err != nil {
		return err
	}
	if !m.Scaler.Fitted() {
		m.Scaler.Fit(X)
	}
	Xs, err := m.Scaler.Transform(X)
	if err != nil {
		return err
	}
	if m.Weights == nil {
		classes := knownClasses
		if len(classes) == 0 {
			classes = m.Params.Classes
		}
		if len(classes) == 0 {
			classes = uniqueSorted(y)
		}
		m.init(classes, len(X[0]))
	}
	return m.epoch(Xs, y, rand.New(rand.NewSource(m.Params.Seed)))
}

func (m *SGDClassifier) init(classes []float64, d int) {
	m.Labels = append([]float64(nil), classes...)
	m.Weights = make([][]float64, len(classes))
	for k := range m.Weights {
		m.Weights[k] = make([]float64, d)
	}
	m.Bias = make([]float64, len(classes))
}

func (m *SGDClassifier) epoch(Xs [][]float64, y []float64, rng *rand.Rand) error {
	order := rng.Perm(len(Xs))
	probs := make([]float64, len(m.Labels))
	for _, i := range order {
		target := classIndex(m.Labels, y[i])
		if target < 0 {
			return fmt.Errorf("predictor: label %v not in known classes %v", y[i], m.Labels)
		}
		m.softmax(Xs[i], probs)
		for k := range m.Weights {
			grad := probs[k]
			if k == target {
				grad -= 1
			}
			w := m.Weights[k]
			for j, v := range Xs[i] {
				w[j] -= m.Params.LearningRate * (grad*v + m.Params.Alpha*w[j])
			}
			m.Bias[k] -= m.Params.LearningRate * grad
		}
	}
	return nil
}

func (m *SGDClassifier) softmax(x []float64, out []float64) {
	maxZ := math.Inf(-1)
	for k, w := range m.Weights {
		z := m.Bias[k]
		for j, v := range x {
			z += w[j] * v
		}
		out[k] = z
		if z > maxZ {
			maxZ = z
		}
	}
	sum := 0.0
	for k := range out {
		out[k] = math.Exp(out[k] - maxZ)
		sum += out[k]
	}
	for k := range out {
		out[k] /= sum
	}
}

func (m *SGDClassifier) PredictProba(X [][]float64) ([][]float64, error) {
	if m.Weights == nil {
		return nil, ErrNotFitted
	}
	Xs, err := m.Scaler.Transform(X)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(Xs))
	for i, x := range Xs {
		out[i] = make([]float64, len(m.Labels))
		m.softmax(x, out[i])
	}
	return out, nil
}

func (m *SGDClassifier) Predict(X [][]float64) ([]float64, error) {
	proba, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return argmaxLabels(proba, m.Labels), nil
}

// FeatureImportance is the mean absolute weight per feature across classes.
func (m *SGDClassifier) FeatureImportance() []float64 {
	if len(m.Weights) == 0 {
		return nil
	}
	out := make([]float64, len(m.Weights[0]))
	for _, w := range m.Weights {
		for j, v := range w {
			out[j] += math.Abs(v) / float64(len(m.Weights))
		}
	}
	return out
}

// SGDRegressor is a squared-loss linear model.
type SGDRegressor struct {
	Params  SGDParams      `json:"params"`
	Scaler  StandardScaler `json:"scaler"`
	Weights []float64      `json:"weights"`
	Bias    float64        `json:"bias"`
}

func NewSGDRegressor(p SGDParams) *SGDRegressor { return &SGDRegressor{Params: p} }

func (m *SGDRegressor) Kind() string              { return KindSGDRegressor }
func (m *SGDRegressor) Task() model.Task          { return model.TaskRegression }
func (m *SGDRegressor) SupportsIncremental() bool { return true }

func (m *SGDRegressor) Fit(X [][]float64, y []float64) error {
	if err := checkXY(X, y); err != nil {
		return err
	}
	m.Scaler = StandardScaler{}
	Xs, err := m.Scaler.FitTransform(X)
	if err != nil {
		return err
	}
	m.Weights = make([]float64, len(X[0]))
	m.Bias = 0
	rng := rand.New(rand.NewSource(m.Params.Seed))
	for e := 0; e < max(1, m.Params.Epochs); e++ {
		m.epoch(Xs, y, rng)
	}
	return nil
}

func (m *SGDRegressor) PartialFit(X [][]float64, y []float64, _ []float64) error {
	if err := checkXY(X, y); err != nil {
		return err
	}
	if !m.Scaler.Fitted() {
		m.Scaler.Fit(X)
	}
	Xs, err := m.Scaler.Transform(X)
	if err != nil {
		return err
	}
	if m.Weights == nil {
		m.Weights = make([]float64, len(X[0]))
	}
	m.epoch(Xs, y, rand.New(rand.NewSource(m.Params.Seed)))
	return nil
}

func (m *SGDRegressor) epoch(Xs [][]float64, y []float64, rng *rand.Rand) {
	for _, i := range rng.Perm(len(Xs)) {
		grad := m.predictOne(Xs[i]) - y[i]
		for j, v := range Xs[i] {
			m.Weights[j] -= m.Params.LearningRate * (grad*v + m.Params.Alpha*m.Weights[j])
		}
		m.Bias -= m.Params.LearningRate * grad
	}
}

func (m *SGDRegressor) predictOne(x []float64) float64 {
	z := m.Bias
	for j, v := range x {
		z += m.Weights[j] * v
	}
	return z
}

func (m *SGDRegressor) Predict(X [][]float64) ([]float64, error) {
	if m.Weights == nil {
		return nil, ErrNotFitted
	}
	Xs, err := m.Scaler.Transform(X)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(Xs))
	for i, x := range Xs {
		out[i] = m.predictOne(x)
	}
	return out, nil
}

func (m *SGDRegressor) PredictProba([][]float64) ([][]float64, error) {
	return nil, fmt.Errorf("%w: predict_proba on regression model", ErrUnsupported)
}

func (m *SGDRegressor) FeatureImportance() []float64 {
	out := make([]float64, len(m.Weights))
	for j, v := range m.Weights {
		out[j] = math.Abs(v)
	}
	return out
}
