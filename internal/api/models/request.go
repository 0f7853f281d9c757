package models

// BacktestRequest is the body of POST /api/v1/backtest/run. Zero fields
// fall back to the server configuration.
type BacktestRequest struct {
	Dataset   string   `json:"dataset" binding:"required"` // catalog id or file path
	Symbols   []string `json:"symbols,omitempty"`
	Timeframe string   `json:"timeframe,omitempty"`
	Horizon   int      `json:"horizon,omitempty" binding:"omitempty,gte=1"`

	Model  string                 `json:"model,omitempty" binding:"omitempty,oneof=sgdc sgdr ridge centroid"`
	Params map[string]interface{} `json:"params,omitempty"`

	TrainWindow    string   `json:"train_window,omitempty"` // e.g. "365d"
	TestWindow     string   `json:"test_window,omitempty"`  // e.g. "30d"
	MinTrainRows   int      `json:"min_train_rows,omitempty" binding:"omitempty,gte=1"`
	MinTestRows    int      `json:"min_test_rows,omitempty" binding:"omitempty,gte=1"`
	OnlineLearning *bool    `json:"online_learning,omitempty"`
	FeesBps        *float64 `json:"fees_bps,omitempty" binding:"omitempty,gte=0"`
	SlippageBps    *float64 `json:"slippage_bps,omitempty" binding:"omitempty,gte=0"`
	InitialCapital float64  `json:"initial_capital,omitempty" binding:"omitempty,gt=0"`
	PeriodsPerYear float64  `json:"periods_per_year,omitempty" binding:"omitempty,gt=0"`
	Calendar       string   `json:"calendar,omitempty" binding:"omitempty,oneof=trading crypto"`

	// Probability thresholds for classifiers.
	BuyThreshold  *float64 `json:"buy_threshold,omitempty" binding:"omitempty,gte=0,lte=1"`
	SellThreshold *float64 `json:"sell_threshold,omitempty" binding:"omitempty,gte=0,lte=1"`
	// Predicted-return thresholds for regressors.
	RegressionBuyReturn  *float64 `json:"regression_buy_return,omitempty"`
	RegressionSellReturn *float64 `json:"regression_sell_return,omitempty"`

	// Benchmarks replaces the configured reference strategies when set.
	Benchmarks []BenchmarkSpec `json:"benchmarks,omitempty" binding:"omitempty,dive"`

	Options BacktestOptions `json:"options,omitempty"`
}

// BenchmarkSpec names a reference strategy, e.g. {"name": "schedule",
// "params": {"entry_time": "09:30", "exit_time": "16:00"}}.
type BenchmarkSpec struct {
	Name   string                 `json:"name" binding:"required,oneof=buy_and_hold oracle schedule"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// BacktestOptions controls the size of the status response.
type BacktestOptions struct {
	IncludeTrades bool `json:"include_trades,omitempty"`
	IncludeEquity bool `json:"include_equity,omitempty"`
}

// TrainRequest is the body of POST /api/v1/train/start.
type TrainRequest struct {
	Dataset string                 `json:"dataset" binding:"required"`
	Symbols []string               `json:"symbols,omitempty"`
	Horizon int                    `json:"horizon,omitempty" binding:"omitempty,gte=1"`
	Model   string                 `json:"model,omitempty" binding:"omitempty,oneof=sgdc sgdr ridge centroid"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Name    string                 `json:"name,omitempty"`

	TrainRatio float64 `json:"train_ratio,omitempty" default:"0.7" binding:"gt=0,lt=1"`
	ValidRatio float64 `json:"valid_ratio,omitempty" default:"0.15" binding:"gte=0,lt=1"`
}

// StatusQuery is bound from ?job_id=.
type StatusQuery struct {
	JobID string `form:"job_id" binding:"required"`
}

// ListQuery is bound from ?limit=.
type ListQuery struct {
	Limit int `form:"limit" default:"20" binding:"gte=1,lte=500"`
}

// RankRequest is bound from the query of GET /api/v1/rank.
type RankRequest struct {
	Dataset string  `form:"dataset" binding:"required"`
	Symbols string  `form:"symbols"` // comma-separated, optional
	CostBps float64 `form:"cost_bps" binding:"gte=0"`
	Limit   int     `form:"limit" default:"10" binding:"gte=1"`
}
