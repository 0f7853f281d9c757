package data

import (
	"fmt"
	"path/filepath"
	"strings"

	"walkforward-backtest/internal/features"
	"walkforward-backtest/internal/model"
)

// Loader turns a dataset path into a model-ready series. JSON files are
// read as-is; CSV files are treated as raw OHLCV and go through feature
// engineering and labeling.
type Loader struct {
	Cache      *SeriesCache
	Features   features.Config
	Horizon    int
	Thresholds features.Thresholds
}

func NewLoader(cache *SeriesCache) *Loader {
	return &Loader{
		Cache:      cache,
		Features:   features.DefaultConfig(),
		Horizon:    1,
		Thresholds: features.DefaultThresholds(),
	}
}

// Load prepares the series at path for task. Only one symbol may remain
// after filtering.
func (l *Loader) Load(path string, symbols []string, task model.Task) (model.Series, error) {
	key := CacheKey(path+"|"+l.variant(), symbols, task, l.Horizon)
	if s, ok := l.Cache.Get(key); ok {
		return s, nil
	}

	var (
		s   model.Series
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		s, err = l.loadJSON(path, symbols)
	case ".csv":
		s, err = l.loadCSV(path, symbols, task)
	default:
		return model.Series{}, fmt.Errorf("unsupported dataset format %q", filepath.Ext(path))
	}
	if err != nil {
		return model.Series{}, err
	}
	l.Cache.Set(key, s)
	return s, nil
}

func (l *Loader) loadJSON(path string, symbols []string) (model.Series, error) {
	s, err := LoadSeriesJSON(path)
	if err != nil {
		return model.Series{}, err
	}
	if len(symbols) == 0 || len(s.Bars) == 0 {
		return s, nil
	}
	groups := GroupBySymbol(s.Bars)
	if _, untagged := groups[""]; untagged && len(groups) == 1 {
		return s, nil
	}
	bars, err := pickSymbol(groups, symbols)
	if err != nil {
		return model.Series{}, err
	}
	s.Bars = bars
	s.Symbol = bars[0].Symbol
	return s, nil
}

func (l *Loader) loadCSV(path string, symbols []string, task model.Task) (model.Series, error) {
	bars, err := LoadOHLCVCSV(path, symbols...)
	if err != nil {
		return model.Series{}, err
	}
	if len(bars) == 0 {
		return model.Series{}, fmt.Errorf("%s: no rows for symbols %v", path, symbols)
	}
	groups := GroupBySymbol(bars)
	if len(groups) > 1 {
		return model.Series{}, fmt.Errorf("%s holds %d symbols; select one", path, len(groups))
	}
	raw := model.Series{Bars: bars}
	raw.SortByTime()
	return Prepare(raw.Bars, l.Features, l.Horizon, task, l.Thresholds)
}

// variant distinguishes cache entries built with different feature or
// label settings.
func (l *Loader) variant() string {
	return fmt.Sprintf("%+v|%+v", l.Features, l.Thresholds)
}

// Prepare runs feature engineering followed by labeling.
func Prepare(bars []model.Bar, cfg features.Config, horizon int, task model.Task, th features.Thresholds) (model.Series, error) {
	s, err := features.Build(bars, cfg)
	if err != nil {
		return model.Series{}, err
	}
	return features.Label(s, horizon, task, th)
}

func pickSymbol(groups map[string][]model.Bar, symbols []string) ([]model.Bar, error) {
	var found []string
	for _, sym := range symbols {
		if _, ok := groups[strings.ToUpper(sym)]; ok {
			found = append(found, strings.ToUpper(sym))
		}
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("no rows for symbols %v", symbols)
	case 1:
		return groups[found[0]], nil
	default:
		return nil, fmt.Errorf("multi-asset runs are not supported (got %v)", found)
	}
}
