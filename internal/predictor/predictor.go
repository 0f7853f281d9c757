package predictor

import (
	"errors"
	"fmt"
	"sort"

	"walkforward-backtest/internal/model"
)

var (
	// ErrUnsupported is returned for operations a predictor does not offer,
	// e.g. PredictProba on a regressor or PartialFit on a batch-only model.
	ErrUnsupported = errors.New("predictor: unsupported operation")
	// ErrNotFitted is returned when predicting before any fit.
	ErrNotFitted = errors.New("predictor: model not fitted")
)

// Predictor is the model contract the backtest engine depends on.
// Task is fixed for the lifetime of a predictor.
type Predictor interface {
	Kind() string
	Task() model.Task

	// Fit fully retrains, discarding previously learned parameters.
	Fit(X [][]float64, y []float64) error
	Predict(X [][]float64) ([]float64, error)
	// PredictProba returns one row per sample with columns ordered as Classes().
	PredictProba(X [][]float64) ([][]float64, error)

	SupportsIncremental() bool
	// PartialFit updates learned parameters with one pass over the batch.
	// knownClasses may be nil; it seeds the class set on the first call.
	PartialFit(X [][]float64, y []float64, knownClasses []float64) error
}

// Classifier is implemented by predictors that expose their class order.
type Classifier interface {
	Classes() []float64
}

// ClassSetter is implemented by classifiers whose label set can be fixed
// before the first fit, so later batches may carry classes the first one lacked.
type ClassSetter interface {
	SetClasses(classes []float64)
}

// Importancer is implemented by predictors that can rank their inputs.
type Importancer interface {
	FeatureImportance() []float64
}

// Kind codes accepted by New.
const (
	KindSGDClassifier = "sgdc"
	KindSGDRegressor  = "sgdr"
	KindRidge         = "ridge"
	KindCentroid      = "centroid"
)

// Info describes a predictor kind for listings.
type Info struct {
	Kind        string
	Task        model.Task
	Incremental bool
	Description string
}

// Catalog lists every kind New can build.
func Catalog() []Info {
	return []Info{
		{KindSGDClassifier, model.TaskClassification, true, "Multinomial logistic regression trained by SGD."},
		{KindSGDRegressor, model.TaskRegression, true, "Linear regression trained by SGD."},
		{KindRidge, model.TaskRegression, false, "Closed-form ridge regression."},
		{KindCentroid, model.TaskClassification, false, "Nearest-centroid classifier with softmax probabilities."},
	}
}

// New builds an unfitted predictor. params may be nil.
func New(kind string, params map[string]any) (Predictor, error) {
	switch kind {
	case KindSGDClassifier:
		return NewSGDClassifier(sgdParamsFrom(params)), nil
	case KindSGDRegressor:
		return NewSGDRegressor(sgdParamsFrom(params)), nil
	case KindRidge:
		return NewRidge(num(params, "alpha", 1.0)), nil
	case KindCentroid:
		return NewCentroid(num(params, "temperature", 1.0), floats(params, "classes")), nil
	default:
		return nil, fmt.Errorf("unknown model kind %q", kind)
	}
}

// TaskOf reports the task of a kind without building it.
func TaskOf(kind string) (model.Task, error) {
	for _, info := range Catalog() {
		if info.Kind == kind {
			return info.Task, nil
		}
	}
	return "", fmt.Errorf("unknown model kind %q", kind)
}

func sgdParamsFrom(params map[string]any) SGDParams {
	p := DefaultSGDParams()
	p.LearningRate = num(params, "learning_rate", p.LearningRate)
	p.Alpha = num(params, "alpha", p.Alpha)
	p.Epochs = int(num(params, "epochs", float64(p.Epochs)))
	p.Seed = int64(num(params, "random_state", float64(p.Seed)))
	p.Classes = floats(params, "classes")
	return p
}

func num(m map[string]any, key string, def float64) float64 {
	if v, ok := m[key]; ok && v != nil {
		switch x := v.(type) {
		case float64:
			return x
		case int:
			return float64(x)
		case int64:
			return float64(x)
		}
	}
	return def
}

func floats(m map[string]any, key string) []float64 {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(raw))
	for _, v := range raw {
		switch x := v.(type) {
		case float64:
			out = append(out, x)
		case int:
			out = append(out, float64(x))
		}
	}
	return out
}

func checkXY(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return errors.New("predictor: empty training set")
	}
	if len(X) != len(y) {
		return fmt.Errorf("predictor: %d rows but %d targets", len(X), len(y))
	}
	return nil
}

func uniqueSorted(y []float64) []float64 {
	seen := map[float64]bool{}
	out := []float64{}
	for _, v := range y {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

func classIndex(classes []float64, label float64) int {
	for i, c := range classes {
		if c == label {
			return i
		}
	}
	return -1
}

func argmaxLabels(proba [][]float64, classes []float64) []float64 {
	out := make([]float64, len(proba))
	for i, row := range proba {
		best := 0
		for j := range row {
			if row[j] > row[best] {
				best = j
			}
		}
		out[i] = classes[best]
	}
	return out
}
