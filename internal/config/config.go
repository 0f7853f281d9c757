package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"walkforward-backtest/internal/backtest"
	"walkforward-backtest/internal/features"
	"walkforward-backtest/internal/logging"
	"walkforward-backtest/internal/model"
	"walkforward-backtest/internal/optimize"
	"walkforward-backtest/internal/predictor"
	"walkforward-backtest/internal/strategy"
)

// Config is the on-disk configuration shape (YAML).
type Config struct {
	// Optional: load the model section from a separate YAML file.
	// Fields set in Model override the file.
	ModelFile string `yaml:"model_file"`

	Data      DataConfig      `yaml:"data"`
	Model     ModelConfig     `yaml:"model"`
	Backtest  BacktestConfig  `yaml:"backtest"`
	Signals   SignalsConfig   `yaml:"signals"`
	Costs     CostsConfig     `yaml:"costs"`
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Log       logging.Config  `yaml:"log"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Optimize  OptimizeConfig  `yaml:"optimize"`

	// Benchmarks run over the evaluated span next to the model. Empty means
	// buy_and_hold and oracle.
	Benchmarks []BenchmarkConfig `yaml:"benchmarks" validate:"dive"`
}

type DataConfig struct {
	Path      string   `yaml:"path"`
	Symbols   []string `yaml:"symbols"`
	Timeframe string   `yaml:"timeframe" default:"1h"`
	Horizon   int      `yaml:"horizon" default:"1" validate:"gte=1"`
	// Label thresholds on forward returns.
	BuyReturn  float64         `yaml:"label_buy" default:"0.015"`
	SellReturn float64         `yaml:"label_sell" default:"-0.01" validate:"ltfield=BuyReturn"`
	Features   features.Config `yaml:"features"`
	CacheTTL   string          `yaml:"cache_ttl" default:"1h"`
}

type ModelConfig struct {
	Kind   string         `yaml:"kind" default:"sgdc" validate:"oneof=sgdc sgdr ridge centroid"`
	Params map[string]any `yaml:"params"`
}

type BacktestConfig struct {
	TrainWindow    string  `yaml:"train_window" default:"90d" validate:"required"`
	TestWindow     string  `yaml:"test_window" default:"7d" validate:"required"`
	MinTrainRows   int     `yaml:"min_train_rows" default:"100" validate:"gte=1"`
	MinTestRows    int     `yaml:"min_test_rows" default:"10" validate:"gte=1"`
	OnlineLearning bool    `yaml:"online_learning"`
	InitialCapital float64 `yaml:"initial_capital" default:"10000" validate:"gt=0"`
	// PeriodsPerYear overrides the annualization derived from Data.Timeframe
	// and Calendar.
	PeriodsPerYear float64 `yaml:"periods_per_year" validate:"gte=0"`
	Calendar       string  `yaml:"calendar" default:"trading" validate:"oneof=trading crypto"`
}

type SignalsConfig struct {
	BuyThreshold         float64 `yaml:"buy_threshold" default:"0.6" validate:"gte=0,lte=1"`
	SellThreshold        float64 `yaml:"sell_threshold" default:"0.4" validate:"gte=0,lte=1"`
	RegressionBuyReturn  float64 `yaml:"regression_buy_return" default:"0.01"`
	RegressionSellReturn float64 `yaml:"regression_sell_return" default:"-0.005" validate:"ltefield=RegressionBuyReturn"`
}

type CostsConfig struct {
	FeesBps     float64 `yaml:"fees_bps" default:"5" validate:"gte=0"`
	SlippageBps float64 `yaml:"slippage_bps" default:"5" validate:"gte=0"`
}

type ServerConfig struct {
	Port      string  `yaml:"port" default:"8080"`
	Env       string  `yaml:"env" default:"development" validate:"oneof=development production test"`
	RateLimit float64 `yaml:"rate_limit" default:"2" validate:"gte=0"`
	RateBurst int     `yaml:"rate_burst" default:"5" validate:"gte=0"`
	// CORSOrigins lists allowed origins; empty allows any.
	CORSOrigins []string `yaml:"cors_origins"`
}

type StoreConfig struct {
	Backend     string `yaml:"backend" default:"memory" validate:"oneof=memory redis postgres"`
	RedisAddr   string `yaml:"redis_addr" default:"localhost:6379"`
	RedisPrefix string `yaml:"redis_prefix" default:"wfb:job:"`
	JobTTL      string `yaml:"job_ttl" default:"168h"`
	DatabaseURL string `yaml:"database_url"`
}

type BenchmarkConfig struct {
	Name   string         `yaml:"name" json:"name" validate:"required"`
	Params map[string]any `yaml:"params" json:"params,omitempty"`
}

// OptimizeConfig drives the genetic search over signal thresholds.
type OptimizeConfig struct {
	Population    int     `yaml:"population" default:"20" validate:"gte=2"`
	Generations   int     `yaml:"generations" default:"15" validate:"gte=1"`
	MutationRate  float64 `yaml:"mutation_rate" default:"0.1" validate:"gte=0,lte=1"`
	CrossoverRate float64 `yaml:"crossover_rate" default:"0.7" validate:"gte=0,lte=1"`
	Elitism       int     `yaml:"elitism" default:"2" validate:"gte=0,ltfield=Population"`
	Seed          int64   `yaml:"seed" default:"42"`
	Workers       int     `yaml:"workers" default:"4" validate:"gte=1"`
	Objective     string  `yaml:"objective" default:"sharpe" validate:"oneof=sharpe return win_rate"`
	// Constraints; a candidate breaking one scores optimize.Penalty.
	MaxDrawdown *float64 `yaml:"max_drawdown" validate:"omitempty,lte=0"`
	MinWinRate  *float64 `yaml:"min_win_rate" validate:"omitempty,gte=0,lte=1"`
	MinTrades   int      `yaml:"min_trades" default:"1" validate:"gte=0"`
}

// Params converts the section into GA parameters.
func (o OptimizeConfig) Params() optimize.Params {
	p := optimize.DefaultParams()
	p.PopulationSize = o.Population
	p.Generations = o.Generations
	p.MutationRate = o.MutationRate
	p.CrossoverRate = o.CrossoverRate
	p.Elitism = o.Elitism
	p.Seed = o.Seed
	p.Workers = o.Workers
	return p
}

func (o OptimizeConfig) Goal() optimize.Objective {
	return optimize.Objective{
		Metric:      o.Objective,
		MaxDrawdown: o.MaxDrawdown,
		MinWinRate:  o.MinWinRate,
		MinTrades:   o.MinTrades,
	}
}

type ArtifactsConfig struct {
	Dir      string `yaml:"dir" default:"./artifacts"`
	ModelDir string `yaml:"model_dir" default:"./models"`
}

var validate = validator.New()

// Default returns a fully defaulted config.
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &c
}

func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked loads, applies defaults and merges the model file, but does
// not validate. Useful for debugging/printing partial configs.
func LoadUnchecked(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	if c.ModelFile != "" {
		modelPath := c.ModelFile
		if !filepath.IsAbs(modelPath) {
			// Prefer paths relative to the config file, falling back to cwd.
			cand := filepath.Join(filepath.Dir(path), modelPath)
			if _, err := os.Stat(cand); err == nil {
				modelPath = cand
			}
		}
		loaded, err := loadModelFile(modelPath)
		if err != nil {
			return nil, err
		}
		c.Model = MergeModel(loaded, c.Model)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}
	if _, err := ParseWindow(c.Backtest.TrainWindow); err != nil {
		return fmt.Errorf("backtest.train_window: %w", err)
	}
	if _, err := ParseWindow(c.Backtest.TestWindow); err != nil {
		return fmt.Errorf("backtest.test_window: %w", err)
	}
	if _, err := ParseWindow(c.Store.JobTTL); err != nil {
		return fmt.Errorf("store.job_ttl: %w", err)
	}
	if _, err := backtest.PeriodsPerYearFor(c.Data.Timeframe, c.Backtest.Calendar); err != nil && c.Backtest.PeriodsPerYear == 0 {
		return fmt.Errorf("data.timeframe: %w", err)
	}
	for i, b := range c.Benchmarks {
		if _, err := strategy.ByName(b.Name, 0, b.Params); err != nil {
			return fmt.Errorf("benchmarks[%d]: %w", i, err)
		}
	}
	return nil
}

// BenchmarkList returns the configured benchmarks or the default pair.
func (c *Config) BenchmarkList() []BenchmarkConfig {
	if len(c.Benchmarks) > 0 {
		return c.Benchmarks
	}
	return []BenchmarkConfig{{Name: "buy_and_hold"}, {Name: "oracle"}}
}

// ApplyEnv overrides server and store settings from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("API_PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("API_ENV"); v != "" {
		c.Server.Env = v
	}
	if v := os.Getenv("STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Store.RedisAddr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Store.DatabaseURL = v
	}
	if v := os.Getenv("ARTIFACT_DIR"); v != "" {
		c.Artifacts.Dir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// EngineConfig converts the file settings into a backtest configuration.
func (c *Config) EngineConfig() (backtest.Config, error) {
	train, err := ParseWindow(c.Backtest.TrainWindow)
	if err != nil {
		return backtest.Config{}, err
	}
	test, err := ParseWindow(c.Backtest.TestWindow)
	if err != nil {
		return backtest.Config{}, err
	}
	ppy := c.Backtest.PeriodsPerYear
	if ppy == 0 {
		if ppy, err = backtest.PeriodsPerYearFor(c.Data.Timeframe, c.Backtest.Calendar); err != nil {
			return backtest.Config{}, err
		}
	}
	return backtest.Config{
		TrainWindow:    train,
		TestWindow:     test,
		MinTrainRows:   c.Backtest.MinTrainRows,
		MinTestRows:    c.Backtest.MinTestRows,
		OnlineLearning: c.Backtest.OnlineLearning,
		FeesBps:        c.Costs.FeesBps,
		SlippageBps:    c.Costs.SlippageBps,
		InitialCapital: c.Backtest.InitialCapital,
		PeriodsPerYear: ppy,
		Signals: backtest.SignalConfig{
			BuyThreshold:         c.Signals.BuyThreshold,
			SellThreshold:        c.Signals.SellThreshold,
			RegressionBuyReturn:  c.Signals.RegressionBuyReturn,
			RegressionSellReturn: c.Signals.RegressionSellReturn,
		},
	}, nil
}

// Thresholds returns the labeling thresholds.
func (d DataConfig) Thresholds() features.Thresholds {
	return features.Thresholds{Buy: d.BuyReturn, Sell: d.SellReturn}
}

// Task reports the task implied by the model kind.
func (m ModelConfig) Task() (model.Task, error) {
	return predictor.TaskOf(m.Kind)
}

type modelFileWrapper struct {
	Model ModelConfig `yaml:"model"`
}

func loadModelFile(path string) (ModelConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ModelConfig{}, err
	}
	var w modelFileWrapper
	if err := yaml.Unmarshal(raw, &w); err != nil {
		return ModelConfig{}, err
	}
	return w.Model, nil
}

// MergeModel overlays the kind and params set in override onto base.
func MergeModel(base, override ModelConfig) ModelConfig {
	out := base
	if override.Kind != "" {
		out.Kind = override.Kind
	}
	if len(override.Params) > 0 {
		params := make(map[string]any, len(base.Params)+len(override.Params))
		for k, v := range base.Params {
			params[k] = v
		}
		for k, v := range override.Params {
			params[k] = v
		}
		out.Params = params
	}
	return out
}

// ParseWindow parses durations such as "30d", "2w", "12h" or "90m".
func ParseWindow(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty window")
	}
	unit := s[len(s)-1]
	if unit == 'd' || unit == 'w' {
		n, err := strconv.ParseFloat(s[:len(s)-1], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid window %q: %w", s, err)
		}
		day := 24 * time.Hour
		if unit == 'w' {
			day *= 7
		}
		return time.Duration(n * float64(day)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid window %q: %w", s, err)
	}
	return d, nil
}
