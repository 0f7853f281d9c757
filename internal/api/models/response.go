package models

import (
	"time"

	"walkforward-backtest/internal/backtest"
	"walkforward-backtest/internal/strategy"
)

// JobResponse is the public view of a background job.
type JobResponse struct {
	JobID      string    `json:"job_id"`
	Kind       string    `json:"kind"`
	Status     string    `json:"status"`
	Progress   float64   `json:"progress"`
	FoldsDone  int       `json:"folds_done,omitempty"`
	FoldsTotal int       `json:"folds_total,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// BacktestStatusResponse carries the report once the job has produced one.
type BacktestStatusResponse struct {
	Job    JobResponse       `json:"job"`
	Report *BacktestResponse `json:"report,omitempty"`
}

// BacktestResponse is the aggregate report of a run.
type BacktestResponse struct {
	RunID       string                 `json:"run_id"`
	Status      string                 `json:"status"`
	Symbol      string                 `json:"symbol"`
	Model       string                 `json:"model"`
	Task        string                 `json:"task"`
	Summary     *backtest.Summary      `json:"summary,omitempty"`
	Folds       []backtest.FoldReport  `json:"folds"`
	Trades      []backtest.TradeRecord `json:"trades,omitempty"`
	EquityCurve []backtest.EquityPoint `json:"equity_curve,omitempty"`
	Benchmarks  []strategy.Benchmark   `json:"benchmarks,omitempty"`
	ArtifactDir string                 `json:"artifact_dir,omitempty"`
}

// TrainStatusResponse carries the trained model's metadata once done.
type TrainStatusResponse struct {
	Job   JobResponse `json:"job"`
	Model interface{} `json:"model,omitempty"`
}

// StrategyInfo describes a model kind the API can run.
type StrategyInfo struct {
	Name        string          `json:"name"`
	Task        string          `json:"task"`
	Incremental bool            `json:"incremental"`
	Description string          `json:"description"`
	Parameters  []ParameterInfo `json:"parameters"`
}

// ParameterInfo describes a strategy parameter
type ParameterInfo struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"` // "float", "int", "list"
	Description string      `json:"description"`
	Default     interface{} `json:"default,omitempty"`
}

// DatasetInfo is one registered dataset.
type DatasetInfo struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe,omitempty"`
	Task      string    `json:"task,omitempty"`
	Rows      int       `json:"rows"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NewError builds an ErrorResponse.
func NewError(code, message string) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Code: code, Message: message}}
}

// Ranking is one row of GET /api/v1/rank.
type Ranking struct {
	Rank          int     `json:"rank"`
	Symbol        string  `json:"symbol"`
	Count         int     `json:"count"`
	Volatility    float64 `json:"volatility"`
	SpreadP95P05  float64 `json:"spread_p95_p05"`
	BuyHoldReturn float64 `json:"buy_hold_return"`
	OracleReturn  float64 `json:"oracle_return"`
}

// RankResponse represents the ranking response
type RankResponse struct {
	Rankings []Ranking `json:"rankings"`
}
