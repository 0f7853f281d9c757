package predictor

import (
	"errors"
	"fmt"
	"math"

	"walkforward-backtest/internal/model"
)

// Ridge solves (XᵀX + αI)w = Xᵀ(y − ȳ) on standardized features.
// It has no incremental form; every Fit starts from scratch.
type Ridge struct {
	Alpha     float64        `json:"alpha"`
	Scaler    StandardScaler `json:"scaler"`
	Weights   []float64      `json:"weights"`
	Intercept float64        `json:"intercept"`
}

func NewRidge(alpha float64) *Ridge { return &Ridge{Alpha: alpha} }

func (m *Ridge) Kind() string              { return KindRidge }
func (m *Ridge) Task() model.Task          { return model.TaskRegression }
func (m *Ridge) SupportsIncremental() bool { return false }

func (m *Ridge) Fit(X [][]float64, y []float64) error {
	if err := checkXY(X, y); err != nil {
		return err
	}
	m.Scaler = StandardScaler{}
	Xs, err := m.Scaler.FitTransform(X)
	if err != nil {
		return err
	}
	d := len(Xs[0])
	mean := 0.0
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))

	A := make([][]float64, d)
	b := make([]float64, d)
	for j := range A {
		A[j] = make([]float64, d)
		A[j][j] = m.Alpha
	}
	for i, x := range Xs {
		r := y[i] - mean
		for j := 0; j < d; j++ {
			b[j] += x[j] * r
			for k := j; k < d; k++ {
				A[j][k] += x[j] * x[k]
			}
		}
	}
	for j := 0; j < d; j++ {
		for k := 0; k < j; k++ {
			A[j][k] = A[k][j]
		}
	}
	w, err := solve(A, b)
	if err != nil {
		return fmt.Errorf("ridge fit: %w", err)
	}
	m.Weights = w
	m.Intercept = mean
	return nil
}

func (m *Ridge) Predict(X [][]float64) ([]float64, error) {
	if m.Weights == nil {
		return nil, ErrNotFitted
	}
	Xs, err := m.Scaler.Transform(X)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(Xs))
	for i, x := range Xs {
		z := m.Intercept
		for j, v := range x {
			z += m.Weights[j] * v
		}
		out[i] = z
	}
	return out, nil
}

func (m *Ridge) PredictProba([][]float64) ([][]float64, error) {
	return nil, fmt.Errorf("%w: predict_proba on regression model", ErrUnsupported)
}

func (m *Ridge) PartialFit([][]float64, []float64, []float64) error {
	return fmt.Errorf("%w: ridge does not support partial_fit", ErrUnsupported)
}

func (m *Ridge) FeatureImportance() []float64 {
	out := make([]float64, len(m.Weights))
	for j, v := range m.Weights {
		out[j] = math.Abs(v)
	}
	return out
}

// solve runs Gaussian elimination with partial pivoting. A and b are overwritten.
func solve(A [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(A[r][col]) > math.Abs(A[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(A[pivot][col]) < 1e-12 {
			return nil, errors.New("singular system")
		}
		A[col], A[pivot] = A[pivot], A[col]
		b[col], b[pivot] = b[pivot], b[col]
		for r := col + 1; r < n; r++ {
			f := A[r][col] / A[col][col]
			for c := col; c < n; c++ {
				A[r][c] -= f * A[col][c]
			}
			b[r] -= f * b[col]
		}
	}
	x := make([]float64, n)
	for r := n - 1; r >= 0; r-- {
		s := b[r]
		for c := r + 1; c < n; c++ {
			s -= A[r][c] * x[c]
		}
		x[r] = s / A[r][r]
	}
	return x, nil
}

// Centroid assigns each sample to the nearest class mean in standardized space.
// Probabilities are a softmax over negative distances scaled by Temperature.
type Centroid struct {
	Temperature float64        `json:"temperature"`
	Fixed       []float64      `json:"fixed_classes,omitempty"`
	Scaler      StandardScaler `json:"scaler"`
	Labels      []float64      `json:"classes"`
	Centers     [][]float64    `json:"centers"`
	Seen        []bool         `json:"seen"`
}

func NewCentroid(temperature float64, classes []float64) *Centroid {
	if temperature <= 0 {
		temperature = 1
	}
	return &Centroid{Temperature: temperature, Fixed: classes}
}

func (m *Centroid) Kind() string              { return KindCentroid }
func (m *Centroid) Task() model.Task          { return model.TaskClassification }
func (m *Centroid) SupportsIncremental() bool { return false }
func (m *Centroid) Classes() []float64        { return m.Labels }

func (m *Centroid) SetClasses(classes []float64) { m.Fixed = append([]float64(nil), classes...) }

func (m *Centroid) Fit(X [][]float64, y []float64) error {
	if err := checkXY(X, y); err != nil {
		return err
	}
	m.Scaler = StandardScaler{}
	Xs, err := m.Scaler.FitTransform(X)
	if err != nil {
		return err
	}
	classes := m.Fixed
	if len(classes) == 0 {
		classes = uniqueSorted(y)
	}
	d := len(Xs[0])
	centers := make([][]float64, len(classes))
	counts := make([]float64, len(classes))
	for k := range centers {
		centers[k] = make([]float64, d)
	}
	for i, x := range Xs {
		k := classIndex(classes, y[i])
		if k < 0 {
			return fmt.Errorf("predictor: label %v not in known classes %v", y[i], classes)
		}
		counts[k]++
		for j, v := range x {
			centers[k][j] += v
		}
	}
	seen := make([]bool, len(classes))
	for k := range centers {
		if counts[k] == 0 {
			continue
		}
		seen[k] = true
		for j := range centers[k] {
			centers[k][j] /= counts[k]
		}
	}
	m.Labels = append([]float64(nil), classes...)
	m.Centers = centers
	m.Seen = seen
	return nil
}

func (m *Centroid) PredictProba(X [][]float64) ([][]float64, error) {
	if m.Centers == nil {
		return nil, ErrNotFitted
	}
	Xs, err := m.Scaler.Transform(X)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(Xs))
	for i, x := range Xs {
		row := make([]float64, len(m.Centers))
		best := math.Inf(1)
		for k, c := range m.Centers {
			if !m.Seen[k] {
				// classes absent from training get zero probability
				row[k] = math.Inf(1)
				continue
			}
			d := 0.0
			for j, v := range x {
				diff := v - c[j]
				d += diff * diff
			}
			row[k] = math.Sqrt(d)
			if row[k] < best {
				best = row[k]
			}
		}
		sum := 0.0
		for k := range row {
			if math.IsInf(row[k], 1) {
				row[k] = 0
				continue
			}
			row[k] = math.Exp(-(row[k] - best) / m.Temperature)
			sum += row[k]
		}
		for k := range row {
			row[k] /= sum
		}
		out[i] = row
	}
	return out, nil
}

func (m *Centroid) Predict(X [][]float64) ([]float64, error) {
	proba, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return argmaxLabels(proba, m.Labels), nil
}

func (m *Centroid) PartialFit([][]float64, []float64, []float64) error {
	return fmt.Errorf("%w: centroid does not support partial_fit", ErrUnsupported)
}
