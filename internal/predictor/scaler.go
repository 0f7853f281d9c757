package predictor

import (
	"fmt"
	"math"
)

// StandardScaler centers features to zero mean and unit variance.
// Constant columns get unit scale so they pass through centered.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func (s *StandardScaler) Fitted() bool { return s != nil && len(s.Mean) > 0 }

func (s *StandardScaler) Fit(X [][]float64) {
	if len(X) == 0 {
		return
	}
	d := len(X[0])
	mean := make([]float64, d)
	for _, row := range X {
		for j := 0; j < d; j++ {
			mean[j] += row[j]
		}
	}
	n := float64(len(X))
	for j := range mean {
		mean[j] /= n
	}
	scale := make([]float64, d)
	for _, row := range X {
		for j := 0; j < d; j++ {
			diff := row[j] - mean[j]
			scale[j] += diff * diff
		}
	}
	for j := range scale {
		scale[j] = math.Sqrt(scale[j] / n)
		if scale[j] == 0 {
			scale[j] = 1
		}
	}
	s.Mean = mean
	s.Scale = scale
}

func (s *StandardScaler) Transform(X [][]float64) ([][]float64, error) {
	if !s.Fitted() {
		return nil, ErrNotFitted
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		if len(row) != len(s.Mean) {
			return nil, fmt.Errorf("predictor: row %d has %d features, want %d", i, len(row), len(s.Mean))
		}
		r := make([]float64, len(row))
		for j, v := range row {
			r[j] = (v - s.Mean[j]) / s.Scale[j]
		}
		out[i] = r
	}
	return out, nil
}

func (s *StandardScaler) FitTransform(X [][]float64) ([][]float64, error) {
	s.Fit(X)
	return s.Transform(X)
}
