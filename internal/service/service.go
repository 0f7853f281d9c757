package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"walkforward-backtest/internal/artifacts"
	"walkforward-backtest/internal/backtest"
	"walkforward-backtest/internal/config"
	"walkforward-backtest/internal/data"
	"walkforward-backtest/internal/features"
	"walkforward-backtest/internal/jobs"
	"walkforward-backtest/internal/model"
	"walkforward-backtest/internal/predictor"
	"walkforward-backtest/internal/strategy"
	"walkforward-backtest/internal/telemetry"
)

// Service wires data loading, predictors, the engine and artifact storage.
// It is shared by the API and the CLI.
type Service struct {
	Cache       *data.SeriesCache
	CatalogPath string
	ArtifactDir string
	ModelDir    string
	Recorder    *telemetry.Recorder
	Log         zerolog.Logger

	engine *backtest.Engine
	now    func() time.Time
}

func New(cfg *config.Config, cache *data.SeriesCache, rec *telemetry.Recorder, log zerolog.Logger) *Service {
	return &Service{
		Cache:       cache,
		CatalogPath: data.GetDefaultCatalogPath(),
		ArtifactDir: cfg.Artifacts.Dir,
		ModelDir:    cfg.Artifacts.ModelDir,
		Recorder:    rec,
		Log:         log,
		engine:      backtest.New(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// BacktestOutcome is what a backtest job returns.
type BacktestOutcome struct {
	RunID       string               `json:"run_id"`
	Symbol      string               `json:"symbol"`
	Model       string               `json:"model"`
	Task        model.Task           `json:"task"`
	Result      *backtest.Result     `json:"result"`
	Benchmarks  []strategy.Benchmark `json:"benchmarks,omitempty"`
	ArtifactDir string               `json:"artifact_dir,omitempty"`
}

// ResolveDataset maps a catalog id to its file. Anything that is not a
// known id is treated as a path.
func (s *Service) ResolveDataset(ref string) (string, error) {
	if ref == "" {
		return "", errors.New("dataset is required")
	}
	if strings.ContainsAny(ref, `/\.`) {
		return ref, nil
	}
	cat, err := data.LoadCatalog(s.CatalogPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ref, nil
		}
		return "", err
	}
	if d, ok := cat.Find(ref); ok {
		return d.Path, nil
	}
	return ref, nil
}

// LoadSeries loads the configured dataset prepared for task.
func (s *Service) LoadSeries(cfg *config.Config, task model.Task) (model.Series, error) {
	path, err := s.ResolveDataset(cfg.Data.Path)
	if err != nil {
		return model.Series{}, err
	}
	l := &data.Loader{
		Cache:      s.Cache,
		Features:   cfg.Data.Features,
		Horizon:    cfg.Data.Horizon,
		Thresholds: cfg.Data.Thresholds(),
	}
	return l.Load(path, cfg.Data.Symbols, task)
}

// Backtest runs one walk-forward backtest. A canceled or failed run still
// returns its outcome together with the error.
func (s *Service) Backtest(ctx context.Context, runID string, cfg *config.Config, progress jobs.ProgressFunc) (*BacktestOutcome, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	log := s.Log.With().Str("run_id", runID).Str("model", cfg.Model.Kind).Logger()

	task, err := cfg.Model.Task()
	if err != nil {
		return nil, err
	}
	series, err := s.LoadSeries(cfg, task)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	p, err := predictor.New(cfg.Model.Kind, cfg.Model.Params)
	if err != nil {
		return nil, err
	}
	ec, err := cfg.EngineConfig()
	if err != nil {
		return nil, err
	}
	ec.Logger = &log

	folds, err := backtest.Folds(series.Start(), series.End(), ec.TrainWindow, ec.TestWindow)
	if err != nil {
		return nil, err
	}
	ec.Observer = s.Recorder.FoldObserver(&progressObserver{total: len(folds), report: progress})

	log.Info().Str("symbol", series.Symbol).Int("rows", series.Len()).Int("folds", len(folds)).Msg("backtest started")
	started := time.Now()
	res, runErr := s.engine.Run(ctx, series, p, ec)
	if res == nil {
		return nil, runErr
	}
	s.Recorder.RecordRun(string(task), res, time.Since(started))

	out := &BacktestOutcome{
		RunID:  runID,
		Symbol: series.Symbol,
		Model:  cfg.Model.Kind,
		Task:   task,
		Result: res,
	}
	if res.Status != backtest.StatusFailed {
		out.Benchmarks = s.benchmarks(series, res, ec, cfg.BenchmarkList())
	}
	if s.ArtifactDir != "" {
		rep := artifacts.Report{
			RunID:        runID,
			CreatedAt:    s.now(),
			Symbol:       series.Symbol,
			Model:        cfg.Model.Kind,
			Task:         task,
			FeatureNames: series.FeatureNames,
			Config:       runConfigOf(cfg),
			Result:       res,
		}
		var importance []float64
		if imp, ok := p.(predictor.Importancer); ok && res.Status != backtest.StatusFailed {
			importance = imp.FeatureImportance()
		}
		dir, err := artifacts.Save(s.ArtifactDir, rep, importance)
		if err != nil {
			log.Error().Err(err).Msg("save artifacts failed")
		} else {
			out.ArtifactDir = dir
		}
	}

	ev := log.Info()
	if runErr != nil {
		ev = log.Warn().Err(runErr)
	}
	if res.Summary != nil {
		ev = ev.Float64("total_return_pct", res.Summary.TotalReturnPct).Int("trades", res.Summary.TotalTrades)
	}
	ev.Str("status", string(res.Status)).Msg("backtest finished")
	return out, runErr
}

// runConfig is the part of the configuration that shapes a run's result.
type runConfig struct {
	Data       config.DataConfig        `json:"data"`
	Model      config.ModelConfig       `json:"model"`
	Backtest   config.BacktestConfig    `json:"backtest"`
	Signals    config.SignalsConfig     `json:"signals"`
	Costs      config.CostsConfig       `json:"costs"`
	Benchmarks []config.BenchmarkConfig `json:"benchmarks"`
}

func runConfigOf(cfg *config.Config) runConfig {
	return runConfig{
		Data:       cfg.Data,
		Model:      cfg.Model,
		Backtest:   cfg.Backtest,
		Signals:    cfg.Signals,
		Costs:      cfg.Costs,
		Benchmarks: cfg.BenchmarkList(),
	}
}

// benchmarks evaluates reference strategies over the span the model traded.
func (s *Service) benchmarks(series model.Series, res *backtest.Result, ec backtest.Config, list []config.BenchmarkConfig) []strategy.Benchmark {
	evaluated := res.Evaluated()
	if len(evaluated) == 0 {
		return nil
	}
	bars := series.Slice(evaluated[0].TestStart, evaluated[len(evaluated)-1].TestEnd)
	if len(bars) == 0 {
		return nil
	}
	sim := backtest.NewSimulator(ec.FeesBps, ec.SlippageBps)
	var out []strategy.Benchmark
	for _, bc := range list {
		st, err := strategy.ByName(bc.Name, sim.CostBps, bc.Params)
		if err == nil {
			var b strategy.Benchmark
			if b, err = strategy.Evaluate(st, bars, sim, ec.InitialCapital); err == nil {
				out = append(out, b)
				continue
			}
		}
		s.Log.Warn().Err(err).Str("strategy", bc.Name).Msg("benchmark failed")
	}
	return out
}

// progressObserver turns fold callbacks into job progress.
type progressObserver struct {
	total  int
	done   int
	report jobs.ProgressFunc
}

func (o *progressObserver) FoldStarted(backtest.Fold) {}

func (o *progressObserver) FoldCompleted(backtest.FoldReport) {
	o.done++
	if o.report != nil {
		o.report(o.done, o.total)
	}
}

// TrainOutcome is what a train job returns.
type TrainOutcome struct {
	Info artifacts.ModelInfo `json:"model"`
	Dir  string              `json:"dir"`
}

// Train fits a predictor on the chronological train split, scores it on the
// validation and test splits, and saves it under the model directory.
func (s *Service) Train(ctx context.Context, cfg *config.Config, name string, trainRatio, validRatio float64, progress jobs.ProgressFunc) (*TrainOutcome, error) {
	task, err := cfg.Model.Task()
	if err != nil {
		return nil, err
	}
	series, err := s.LoadSeries(cfg, task)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	split, err := features.TimeSeriesSplit(series, trainRatio, validRatio)
	if err != nil {
		return nil, err
	}
	p, err := predictor.New(cfg.Model.Kind, cfg.Model.Params)
	if err != nil {
		return nil, err
	}
	report := func(done int) {
		if progress != nil {
			progress(done, 3)
		}
	}

	X, y := model.Matrix(split.Train)
	if err := p.Fit(X, y); err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}
	report(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	validation, err := score(p, split.Valid)
	if err != nil {
		return nil, fmt.Errorf("score validation: %w", err)
	}
	report(2)
	test, err := score(p, split.Test)
	if err != nil {
		return nil, fmt.Errorf("score test: %w", err)
	}

	if name == "" {
		name = fmt.Sprintf("%s-%s-%s", cfg.Model.Kind, strings.ToLower(series.Symbol), s.now().Format("20060102T150405"))
	}
	info := artifacts.ModelInfo{
		Name:         name,
		Symbol:       series.Symbol,
		FeatureNames: series.FeatureNames,
		TrainRows:    len(split.Train),
		ValidRows:    len(split.Valid),
		TestRows:     len(split.Test),
		Validation:   validation,
		Test:         test,
		TrainedAt:    s.now(),
	}
	dir, err := artifacts.SaveModel(s.ModelDir, info, p)
	if err != nil {
		return nil, err
	}
	info.Kind, info.Task = p.Kind(), p.Task()
	report(3)
	s.Log.Info().Str("model", name).Str("dir", dir).Int("train_rows", info.TrainRows).Msg("model trained")
	return &TrainOutcome{Info: info, Dir: dir}, nil
}

// score returns nil metrics for an empty split.
func score(p predictor.Predictor, bars []model.Bar) (*backtest.FoldMetrics, error) {
	if len(bars) == 0 {
		return nil, nil
	}
	X, y := model.Matrix(bars)
	pred, err := p.Predict(X)
	if err != nil {
		return nil, err
	}
	if p.Task() == model.TaskRegression {
		m := backtest.ScoreRegression(y, pred)
		return &backtest.FoldMetrics{Regression: &m}, nil
	}
	var (
		proba   [][]float64
		classes []float64
	)
	if c, ok := p.(predictor.Classifier); ok {
		if pr, err := p.PredictProba(X); err == nil {
			proba, classes = pr, c.Classes()
		}
	}
	m := backtest.ScoreClassification(y, pred, proba, classes)
	return &backtest.FoldMetrics{Classification: &m}, nil
}
