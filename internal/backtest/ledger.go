package backtest

import (
	"time"

	"walkforward-backtest/internal/model"
)

// TradeRecord is one executed fill. Records are appended in arrival order
// across all folds and never modified afterwards.
type TradeRecord struct {
	Fold      int          `json:"fold"`
	Timestamp time.Time    `json:"timestamp"`
	Action    model.Action `json:"action"`

	// Price is the raw bar close the fill was based on.
	Price float64 `json:"price"`
	// Cost is the cost-loaded entry price (BUY only).
	Cost float64 `json:"cost,omitempty"`
	// ExitPrice is the cost-reduced exit price (SELL only).
	ExitPrice float64 `json:"exit_price,omitempty"`

	PnL          float64 `json:"pnl"`
	CapitalAfter float64 `json:"capital_after"`

	// Forced marks the end-of-run close of a still open position.
	Forced bool `json:"forced,omitempty"`
}

// EquityPoint is the mark-to-market state after one test row.
type EquityPoint struct {
	Fold       int        `json:"fold"`
	Timestamp  time.Time  `json:"timestamp"`
	Capital    float64    `json:"capital"`
	Position   model.Side `json:"position"`
	EntryPrice float64    `json:"entry_price"`
	MarkPrice  float64    `json:"mark_price"`
	Equity     float64    `json:"equity"`
}

// Update modes recorded per fold.
const (
	UpdateFit        = "fit"
	UpdatePartialFit = "partial_fit"
	UpdateRefit      = "refit_fallback"
)

// FoldReport summarizes one scheduled fold. Skipped folds carry only the
// window, sample counts and the reason.
type FoldReport struct {
	Fold

	TrainSamples int `json:"train_samples"`
	TestSamples  int `json:"test_samples"`

	Skipped    bool   `json:"skipped,omitempty"`
	SkipReason string `json:"skip_reason,omitempty"`

	UpdateMode string       `json:"update_mode,omitempty"`
	Metrics    *FoldMetrics `json:"metrics,omitempty"`
	Trades     int          `json:"trades"`
	PnL        float64      `json:"pnl"`
}

// Summary is the aggregate report over the whole run.
type Summary struct {
	InitialCapital float64 `json:"initial_capital"`
	FinalCapital   float64 `json:"final_capital"`
	TotalReturn    float64 `json:"total_return"`
	TotalReturnPct float64 `json:"total_return_pct"`

	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`

	SharpeRatio    float64 `json:"sharpe_ratio"`
	PeriodsPerYear float64 `json:"periods_per_year"`
	MaxDrawdown    float64 `json:"max_drawdown"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`

	EvaluatedFolds int `json:"evaluated_folds"`
	SkippedFolds   int `json:"skipped_folds"`
}

// Status of a run result.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
)

// Result is everything a run produced. Summary is nil for failed runs.
type Result struct {
	Status     Status              `json:"status"`
	Folds      []FoldReport        `json:"folds"`
	Trades     []TradeRecord       `json:"trades"`
	Equity     []EquityPoint       `json:"equity_curve"`
	Summary    *Summary            `json:"summary,omitempty"`
	FinalState model.PositionState `json:"final_state"`
}

// Evaluated returns the fold reports that were not skipped.
func (r *Result) Evaluated() []FoldReport {
	out := make([]FoldReport, 0, len(r.Folds))
	for _, f := range r.Folds {
		if !f.Skipped {
			out = append(out, f)
		}
	}
	return out
}
