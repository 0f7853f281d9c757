package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"walkforward-backtest/internal/config"
	"walkforward-backtest/internal/data"
	"walkforward-backtest/internal/logging"
	"walkforward-backtest/internal/model"
)

// make-dataset turns a raw OHLCV CSV into a model-ready series JSON (features
// plus labels) and registers it in the dataset catalog.
func main() {
	var (
		input     = flag.String("input", "", "OHLCV CSV (timestamp,symbol,open,high,low,close,volume)")
		synthetic = flag.Int("synthetic", 0, "Generate N synthetic hourly bars instead of reading --input")
		symbol    = flag.String("symbol", "", "Symbol to extract from multi-symbol files")
		cfgPath   = flag.String("config", "", "YAML config for features, horizon and label thresholds")
		task      = flag.String("task", "", "classification or regression (default: implied by model.kind)")
		id        = flag.String("id", "", "Catalog id (default: <symbol>_<timeframe>_<task>)")
		output    = flag.String("output", "", "Output JSON path (default: ./data/<id>.json)")
		catalog   = flag.String("catalog", data.GetDefaultCatalogPath(), "Catalog file to update")
	)
	flag.Parse()

	log := logging.NewWithWriter(os.Stderr, "console", zerolog.InfoLevel)

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			log.Fatal().Err(err).Msg("load config")
		}
	}

	t := model.Task(*task)
	if t == "" {
		var err error
		if t, err = cfg.Model.Task(); err != nil {
			log.Fatal().Err(err).Msg("resolve task")
		}
	}
	if t != model.TaskClassification && t != model.TaskRegression {
		log.Fatal().Str("task", *task).Msg("task must be classification or regression")
	}

	bars, err := loadBars(*input, *synthetic, *symbol)
	if err != nil {
		log.Fatal().Err(err).Msg("load bars")
	}
	series, err := data.Prepare(bars, cfg.Data.Features, cfg.Data.Horizon, t, cfg.Data.Thresholds())
	if err != nil {
		log.Fatal().Err(err).Msg("prepare series")
	}

	if *id == "" {
		*id = strings.ToLower(fmt.Sprintf("%s_%s_%s", series.Symbol, cfg.Data.Timeframe, t))
	}
	if *output == "" {
		*output = filepath.Join("data", *id+".json")
	}
	if err := data.SaveSeriesJSON(*output, series); err != nil {
		log.Fatal().Err(err).Msg("save series")
	}

	cat, err := data.LoadCatalog(*catalog)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Fatal().Err(err).Msg("load catalog")
		}
		cat = &data.Catalog{}
	}
	cat.Upsert(data.Dataset{
		ID:           *id,
		Path:         *output,
		Symbol:       series.Symbol,
		Timeframe:    cfg.Data.Timeframe,
		Task:         string(t),
		Rows:         len(series.Bars),
		Features:     len(series.FeatureNames),
		Start:        series.Start(),
		End:          series.End(),
		RegisteredAt: time.Now().UTC(),
	})
	if err := data.SaveCatalog(cat, *catalog); err != nil {
		log.Fatal().Err(err).Msg("save catalog")
	}

	fmt.Printf("Wrote %d rows x %d features (%s) to %s\n", len(series.Bars), len(series.FeatureNames), t, *output)
	fmt.Printf("Registered %q in %s (%d datasets)\n", *id, *catalog, len(cat.Datasets))
}

func loadBars(input string, synthetic int, symbol string) ([]model.Bar, error) {
	if synthetic > 0 {
		syn := data.DefaultSyntheticConfig()
		syn.Bars = synthetic
		if symbol != "" {
			syn.Symbol = strings.ToUpper(symbol)
		}
		return data.Synthetic(syn), nil
	}
	if input == "" {
		return nil, fmt.Errorf("--input or --synthetic is required")
	}
	var filter []string
	if symbol != "" {
		filter = append(filter, symbol)
	}
	bars, err := data.LoadOHLCVCSV(input, filter...)
	if err != nil {
		return nil, err
	}
	groups := data.GroupBySymbol(bars)
	if len(groups) != 1 {
		syms := make([]string, 0, len(groups))
		for s := range groups {
			syms = append(syms, s)
		}
		sort.Strings(syms)
		return nil, fmt.Errorf("input holds %d symbols %v; pick one with --symbol", len(syms), syms)
	}
	for _, g := range groups {
		return g, nil
	}
	return nil, nil
}

