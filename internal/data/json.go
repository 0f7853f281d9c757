package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"walkforward-backtest/internal/model"
)

// LoadSeriesJSON reads a model-ready series written by SaveSeriesJSON.
func LoadSeriesJSON(path string) (model.Series, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.Series{}, err
	}
	var s model.Series
	if err := json.Unmarshal(raw, &s); err != nil {
		return model.Series{}, fmt.Errorf("parse %s: %w", path, err)
	}
	s.SortByTime()
	if err := s.Validate(); err != nil {
		return model.Series{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func SaveSeriesJSON(path string, s model.Series) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0644)
}

// GroupBySymbol splits bars into symbol-keyed slices, preserving order.
func GroupBySymbol(bars []model.Bar) map[string][]model.Bar {
	out := map[string][]model.Bar{}
	for _, b := range bars {
		out[b.Symbol] = append(out[b.Symbol], b)
	}
	return out
}
