package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"walkforward-backtest/internal/model"
	"walkforward-backtest/internal/predictor"
)

// ErrCanceled wraps the context error of a run stopped between folds.
var ErrCanceled = errors.New("backtest canceled")

// Fold stages reported in FoldError.
const (
	StageFit      = "fit"
	StageUpdate   = "partial_fit"
	StagePredict  = "predict"
	StageSignals  = "signals"
	StageSimulate = "simulate"
)

// FoldError is a fatal model or simulation failure inside one fold.
type FoldError struct {
	Fold  int
	Stage string
	Err   error
}

func (e *FoldError) Error() string {
	return fmt.Sprintf("fold %d %s: %v", e.Fold, e.Stage, e.Err)
}

func (e *FoldError) Unwrap() error { return e.Err }

// Observer receives progress callbacks. Calls happen on the Run goroutine.
type Observer interface {
	FoldStarted(f Fold)
	FoldCompleted(r FoldReport)
}

// Config controls one walk-forward run.
type Config struct {
	TrainWindow time.Duration
	TestWindow  time.Duration

	MinTrainRows int
	MinTestRows  int

	OnlineLearning bool

	FeesBps        float64
	SlippageBps    float64
	InitialCapital float64

	Signals SignalConfig

	// PeriodsPerYear annualizes Sharpe; 0 means DefaultPeriodsPerYear.
	PeriodsPerYear float64

	// Classes fixes the label set for classification runs. When empty the
	// distinct targets of the series are used.
	Classes []float64

	Logger   *zerolog.Logger
	Observer Observer
}

func DefaultConfig() Config {
	return Config{
		MinTrainRows:   DefaultMinTrainRows,
		MinTestRows:    DefaultMinTestRows,
		FeesBps:        5,
		SlippageBps:    5,
		InitialCapital: 10000,
		Signals:        DefaultSignalConfig(),
		PeriodsPerYear: DefaultPeriodsPerYear,
	}
}

func (c Config) withDefaults() Config {
	if c.MinTrainRows <= 0 {
		c.MinTrainRows = DefaultMinTrainRows
	}
	if c.MinTestRows <= 0 {
		c.MinTestRows = DefaultMinTestRows
	}
	if c.PeriodsPerYear <= 0 {
		c.PeriodsPerYear = DefaultPeriodsPerYear
	}
	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}
	return c
}

type Engine struct{}

func New() *Engine { return &Engine{} }

// Run executes the walk-forward protocol over series. The predictor is
// reused across folds. On a model failure the returned result has status
// failed, keeps the folds completed so far and has no summary. When ctx is
// canceled between folds the result has status partial.
func (e *Engine) Run(ctx context.Context, series model.Series, p predictor.Predictor, cfg Config) (*Result, error) {
	if p == nil {
		return nil, fmt.Errorf("predictor is nil")
	}
	if len(series.Bars) == 0 {
		return nil, fmt.Errorf("no bars")
	}
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("series: %w", err)
	}
	if err := cfg.Signals.Validate(); err != nil {
		return nil, err
	}
	if cfg.FeesBps < 0 || cfg.SlippageBps < 0 {
		return nil, fmt.Errorf("fees and slippage must be >= 0")
	}
	cfg = cfg.withDefaults()
	log := cfg.Logger

	it, err := Schedule(series.Start(), series.End(), cfg.TrainWindow, cfg.TestWindow)
	if err != nil {
		return nil, err
	}
	state, err := model.NewPositionState(cfg.InitialCapital)
	if err != nil {
		return nil, err
	}

	task := p.Task()
	var classes []float64
	if task == model.TaskClassification {
		classes = cfg.Classes
		if len(classes) == 0 {
			classes = labelSet(series.Bars)
		}
		if cs, ok := p.(predictor.ClassSetter); ok {
			cs.SetClasses(classes)
		}
	}

	sim := NewSimulator(cfg.FeesBps, cfg.SlippageBps)
	res := &Result{Status: StatusCompleted}
	fitted := false
	lastEquity := cfg.InitialCapital
	var lastBar *model.Bar

	fail := func(fe *FoldError) (*Result, error) {
		log.Error().Err(fe.Err).Int("fold", fe.Fold).Str("stage", fe.Stage).Msg("fold failed")
		res.Status = StatusFailed
		res.FinalState = state
		return res, fe
	}

	for {
		f, ok := it.Next()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			log.Warn().Int("fold", f.Index).Msg("backtest canceled")
			res.Status = StatusPartial
			res.FinalState = state
			s := e.summarize(cfg, state.Capital, res)
			res.Summary = &s
			return res, fmt.Errorf("%w before fold %d: %w", ErrCanceled, f.Index, err)
		}
		if cfg.Observer != nil {
			cfg.Observer.FoldStarted(f)
		}

		train := series.Slice(f.TrainStart, f.TrainEnd)
		test := series.Slice(f.TestStart, f.TestEnd)
		rep := FoldReport{Fold: f, TrainSamples: len(train), TestSamples: len(test)}

		if len(train) < cfg.MinTrainRows || len(test) < cfg.MinTestRows {
			rep.Skipped = true
			rep.SkipReason = fmt.Sprintf("train rows %d (min %d), test rows %d (min %d)",
				len(train), cfg.MinTrainRows, len(test), cfg.MinTestRows)
			log.Debug().Int("fold", f.Index).Str("reason", rep.SkipReason).Msg("fold skipped")
			res.Folds = append(res.Folds, rep)
			if cfg.Observer != nil {
				cfg.Observer.FoldCompleted(rep)
			}
			continue
		}

		Xtr, ytr := model.Matrix(train)
		switch {
		case !fitted || !cfg.OnlineLearning:
			rep.UpdateMode = UpdateFit
			if err := p.Fit(Xtr, ytr); err != nil {
				return fail(&FoldError{Fold: f.Index, Stage: StageFit, Err: err})
			}
		case p.SupportsIncremental():
			rep.UpdateMode = UpdatePartialFit
			if err := p.PartialFit(Xtr, ytr, classes); err != nil {
				return fail(&FoldError{Fold: f.Index, Stage: StageUpdate, Err: err})
			}
		default:
			rep.UpdateMode = UpdateRefit
			if err := p.Fit(Xtr, ytr); err != nil {
				return fail(&FoldError{Fold: f.Index, Stage: StageFit, Err: err})
			}
		}
		fitted = true

		Xte, yte := model.Matrix(test)
		out := ModelOutput{}
		out.Predictions, err = p.Predict(Xte)
		if err != nil {
			return fail(&FoldError{Fold: f.Index, Stage: StagePredict, Err: err})
		}
		metrics := &FoldMetrics{}
		if task == model.TaskClassification {
			proba, err := p.PredictProba(Xte)
			if err != nil {
				return fail(&FoldError{Fold: f.Index, Stage: StagePredict, Err: err})
			}
			if c, ok := p.(predictor.Classifier); ok {
				proba, err = alignProba(proba, c.Classes(), classes)
				if err != nil {
					return fail(&FoldError{Fold: f.Index, Stage: StagePredict, Err: err})
				}
			}
			out.Proba = proba
			cm := ScoreClassification(yte, out.Predictions, proba, classes)
			metrics.Classification = &cm
		} else {
			rm := ScoreRegression(yte, out.Predictions)
			metrics.Regression = &rm
		}

		signals, err := cfg.Signals.Generate(task, out)
		if err != nil {
			return fail(&FoldError{Fold: f.Index, Stage: StageSignals, Err: err})
		}
		next, trades, equity, err := sim.Run(state, test, signals)
		if err != nil {
			return fail(&FoldError{Fold: f.Index, Stage: StageSimulate, Err: err})
		}
		state = next
		for i := range trades {
			trades[i].Fold = f.Index
		}
		for i := range equity {
			equity[i].Fold = f.Index
		}
		res.Trades = append(res.Trades, trades...)
		res.Equity = append(res.Equity, equity...)

		rep.Metrics = metrics
		rep.Trades = len(trades)
		if n := len(equity); n > 0 {
			rep.PnL = equity[n-1].Equity - lastEquity
			lastEquity = equity[n-1].Equity
		}
		lastBar = &test[len(test)-1]

		log.Info().
			Int("fold", f.Index).
			Str("mode", rep.UpdateMode).
			Int("train", rep.TrainSamples).
			Int("test", rep.TestSamples).
			Int("trades", rep.Trades).
			Float64("pnl", rep.PnL).
			Msg("fold complete")

		res.Folds = append(res.Folds, rep)
		if cfg.Observer != nil {
			cfg.Observer.FoldCompleted(rep)
		}
	}

	if lastBar != nil {
		if closed, t, ok := sim.ForceClose(state, *lastBar); ok {
			t.Fold = res.Folds[len(res.Folds)-1].Index
			res.Trades = append(res.Trades, t)
			state = closed
			log.Info().Float64("pnl", t.PnL).Time("at", t.Timestamp).Msg("open position force-closed")
		}
	}
	res.FinalState = state
	s := e.summarize(cfg, state.Capital, res)
	res.Summary = &s
	return res, nil
}

func (e *Engine) summarize(cfg Config, finalCapital float64, res *Result) Summary {
	s := Summarize(cfg.InitialCapital, finalCapital, res.Trades, res.Equity, cfg.PeriodsPerYear)
	for _, f := range res.Folds {
		if f.Skipped {
			s.SkippedFolds++
		} else {
			s.EvaluatedFolds++
		}
	}
	return s
}

func labelSet(bars []model.Bar) []float64 {
	seen := map[float64]bool{}
	var out []float64
	for _, b := range bars {
		if !seen[b.Target] {
			seen[b.Target] = true
			out = append(out, b.Target)
		}
	}
	sort.Float64s(out)
	return out
}
