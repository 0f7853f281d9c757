package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"walkforward-backtest/internal/backtest"
	"walkforward-backtest/internal/model"
	"walkforward-backtest/internal/predictor"
)

const (
	modelFile = "model.json"
	metaFile  = "meta.json"
)

// ModelInfo describes a trained predictor saved by SaveModel.
type ModelInfo struct {
	Name         string                `json:"name"`
	Kind         string                `json:"kind"`
	Task         model.Task            `json:"task"`
	Symbol       string                `json:"symbol,omitempty"`
	FeatureNames []string              `json:"feature_names"`
	TrainRows    int                   `json:"train_rows"`
	ValidRows    int                   `json:"valid_rows"`
	TestRows     int                   `json:"test_rows"`
	Validation   *backtest.FoldMetrics `json:"validation,omitempty"`
	Test         *backtest.FoldMetrics `json:"test,omitempty"`
	TrainedAt    time.Time             `json:"trained_at"`
}

// SaveModel writes dir/<name>/model.json and meta.json.
func SaveModel(dir string, info ModelInfo, p predictor.Predictor) (string, error) {
	if info.Name == "" {
		return "", errors.New("artifacts: model name is required")
	}
	modelDir := filepath.Join(dir, info.Name)
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(filepath.Join(modelDir, modelFile))
	if err != nil {
		return "", err
	}
	if err := predictor.Save(f, p); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	info.Kind = p.Kind()
	info.Task = p.Task()
	if err := writeJSON(filepath.Join(modelDir, metaFile), info); err != nil {
		return "", err
	}
	return modelDir, nil
}

// LoadModel restores a saved predictor and its metadata.
func LoadModel(dir, name string) (predictor.Predictor, ModelInfo, error) {
	info, err := readModelInfo(filepath.Join(dir, name))
	if err != nil {
		return nil, ModelInfo{}, err
	}
	f, err := os.Open(filepath.Join(dir, name, modelFile))
	if err != nil {
		return nil, ModelInfo{}, err
	}
	defer f.Close()
	p, err := predictor.Load(f)
	if err != nil {
		return nil, ModelInfo{}, err
	}
	return p, info, nil
}

// ListModels returns saved models, most recently trained first.
func ListModels(dir string) ([]ModelInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []ModelInfo{}, nil
		}
		return nil, err
	}
	out := make([]ModelInfo, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := readModelInfo(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrainedAt.After(out[j].TrainedAt) })
	return out, nil
}

func readModelInfo(modelDir string) (ModelInfo, error) {
	raw, err := os.ReadFile(filepath.Join(modelDir, metaFile))
	if err != nil {
		return ModelInfo{}, err
	}
	var info ModelInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return ModelInfo{}, fmt.Errorf("decode %s: %w", modelDir, err)
	}
	return info, nil
}
