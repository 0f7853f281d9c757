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
)

const (
	ReportFile     = "report.json"
	TradesFile     = "trades.csv"
	EquityFile     = "equity_curve.csv"
	ImportanceFile = "feature_importance.json"
)

// Report is the persisted description of one backtest run. Trades and the
// equity curve go to CSV files next to it.
type Report struct {
	RunID        string           `json:"run_id"`
	CreatedAt    time.Time        `json:"created_at"`
	Symbol       string           `json:"symbol"`
	Model        string           `json:"model"`
	Task         model.Task       `json:"task"`
	FeatureNames []string         `json:"feature_names,omitempty"`
	Config       any              `json:"config,omitempty"`
	Result       *backtest.Result `json:"result"`
}

type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// RunInfo is the listing entry for a saved run.
type RunInfo struct {
	RunID     string            `json:"run_id"`
	CreatedAt time.Time         `json:"created_at"`
	Symbol    string            `json:"symbol"`
	Model     string            `json:"model"`
	Status    backtest.Status   `json:"status"`
	Summary   *backtest.Summary `json:"summary,omitempty"`
	Path      string            `json:"path"`
}

// Save writes the run under dir/<run id> and returns that directory.
// importance is written only when it lines up with the feature names.
func Save(dir string, rep Report, importance []float64) (string, error) {
	if rep.RunID == "" {
		return "", errors.New("artifacts: run id is required")
	}
	if rep.Result == nil {
		return "", errors.New("artifacts: result is required")
	}
	runDir := filepath.Join(dir, rep.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	full := rep.Result
	slim := *full
	slim.Trades, slim.Equity = nil, nil
	rep.Result = &slim
	if err := writeJSON(filepath.Join(runDir, ReportFile), rep); err != nil {
		return "", err
	}
	if err := backtest.WriteTradesCSV(filepath.Join(runDir, TradesFile), full.Trades); err != nil {
		return "", err
	}
	if err := backtest.WriteEquityCSV(filepath.Join(runDir, EquityFile), full.Equity); err != nil {
		return "", err
	}
	if fi := RankImportance(rep.FeatureNames, importance); fi != nil {
		if err := writeJSON(filepath.Join(runDir, ImportanceFile), fi); err != nil {
			return "", err
		}
	}
	return runDir, nil
}

// RankImportance pairs names with scores, highest first. Returns nil when
// the lengths differ.
func RankImportance(names []string, scores []float64) []FeatureImportance {
	if len(scores) == 0 || len(scores) != len(names) {
		return nil
	}
	out := make([]FeatureImportance, len(names))
	for i := range names {
		out[i] = FeatureImportance{Feature: names[i], Importance: scores[i]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	return out
}

// Load reads report.json of one run.
func Load(dir, runID string) (*Report, error) {
	raw, err := os.ReadFile(filepath.Join(dir, runID, ReportFile))
	if err != nil {
		return nil, err
	}
	var rep Report
	if err := json.Unmarshal(raw, &rep); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", runID, err)
	}
	return &rep, nil
}

// List returns saved runs, newest first. A missing dir yields no runs.
func List(dir string) ([]RunInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunInfo{}, nil
		}
		return nil, err
	}
	out := make([]RunInfo, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		rep, err := Load(dir, e.Name())
		if err != nil {
			continue
		}
		info := RunInfo{
			RunID:     rep.RunID,
			CreatedAt: rep.CreatedAt,
			Symbol:    rep.Symbol,
			Model:     rep.Model,
			Path:      filepath.Join(dir, e.Name()),
		}
		if rep.Result != nil {
			info.Status = rep.Result.Status
			info.Summary = rep.Result.Summary
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
