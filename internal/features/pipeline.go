package features

import (
	"errors"
	"fmt"
	"math"

	"walkforward-backtest/internal/model"
)

// Config selects indicator parameters. Zero values fall back to DefaultConfig.
type Config struct {
	EMAPeriods  []int `yaml:"ema_periods" json:"ema_periods,omitempty"`
	RSIPeriod   int   `yaml:"rsi_period" json:"rsi_period,omitempty"`
	MACDFast    int   `yaml:"macd_fast" json:"macd_fast,omitempty"`
	MACDSlow    int   `yaml:"macd_slow" json:"macd_slow,omitempty"`
	MACDSignal  int   `yaml:"macd_signal" json:"macd_signal,omitempty"`
	ATRPeriod   int   `yaml:"atr_period" json:"atr_period,omitempty"`
	BBPeriod    int   `yaml:"bb_period" json:"bb_period,omitempty"`
	ReturnLags  []int `yaml:"return_lags" json:"return_lags,omitempty"`
	MomentumLag int   `yaml:"momentum_lag" json:"momentum_lag,omitempty"`
	VolumeEMA   int   `yaml:"volume_ema" json:"volume_ema,omitempty"`
	SkipReturns bool  `yaml:"skip_returns" json:"skip_returns,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		EMAPeriods:  []int{12, 26, 50, 200},
		RSIPeriod:   14,
		MACDFast:    12,
		MACDSlow:    26,
		MACDSignal:  9,
		ATRPeriod:   14,
		BBPeriod:    20,
		ReturnLags:  []int{1, 3, 6, 12, 24},
		MomentumLag: 12,
		VolumeEMA:   20,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if len(c.EMAPeriods) == 0 {
		c.EMAPeriods = d.EMAPeriods
	}
	if c.RSIPeriod == 0 {
		c.RSIPeriod = d.RSIPeriod
	}
	if c.MACDFast == 0 {
		c.MACDFast = d.MACDFast
	}
	if c.MACDSlow == 0 {
		c.MACDSlow = d.MACDSlow
	}
	if c.MACDSignal == 0 {
		c.MACDSignal = d.MACDSignal
	}
	if c.ATRPeriod == 0 {
		c.ATRPeriod = d.ATRPeriod
	}
	if c.BBPeriod == 0 {
		c.BBPeriod = d.BBPeriod
	}
	if len(c.ReturnLags) == 0 {
		c.ReturnLags = d.ReturnLags
	}
	if c.MomentumLag == 0 {
		c.MomentumLag = d.MomentumLag
	}
	if c.VolumeEMA == 0 {
		c.VolumeEMA = d.VolumeEMA
	}
	return c
}

type column struct {
	name   string
	values []float64
}

// Build computes the indicator columns for an OHLCV bar sequence and returns
// a series containing only rows where every feature is defined.
func Build(bars []model.Bar, cfg Config) (model.Series, error) {
	if len(bars) == 0 {
		return model.Series{}, errors.New("features: no bars")
	}
	cfg = cfg.withDefaults()

	n := len(bars)
	high, low, close, volume := make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n)
	for i, b := range bars {
		high[i], low[i], close[i], volume[i] = b.High, b.Low, b.Close, b.Volume
	}

	var cols []column
	emas := map[int][]float64{}
	for _, p := range cfg.EMAPeriods {
		emas[p] = EMA(close, p)
		cols = append(cols, column{fmt.Sprintf("ema_%d", p), emas[p]})
	}
	cols = append(cols, column{"rsi", RSI(close, cfg.RSIPeriod)})

	line, sig, diff := MACD(close, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)
	cols = append(cols, column{"macd", line}, column{"macd_signal", sig}, column{"macd_diff", diff})
	cols = append(cols, column{"atr", ATR(high, low, close, cfg.ATRPeriod)})

	up, mid, lo, width := Bollinger(close, cfg.BBPeriod, 2)
	cols = append(cols, column{"bb_upper", up}, column{"bb_middle", mid}, column{"bb_lower", lo}, column{"bb_width", width})

	volEMA := EMA(volume, cfg.VolumeEMA)
	ratio := nanSlice(n)
	for i := range volume {
		if !math.IsNaN(volEMA[i]) {
			ratio[i] = volume[i] / (volEMA[i] + 1e-8)
		}
	}
	cols = append(cols, column{"volume_ema", volEMA}, column{"volume_ratio", ratio})

	if !cfg.SkipReturns {
		for _, lag := range cfg.ReturnLags {
			cols = append(cols, column{fmt.Sprintf("return_%d", lag), PctChange(close, lag)})
		}
	}
	for _, p := range []int{12, 26, 50} {
		ema, ok := emas[p]
		if !ok {
			continue
		}
		rel := nanSlice(n)
		for i := range close {
			if !math.IsNaN(ema[i]) {
				rel[i] = (close[i] - ema[i]) / (ema[i] + 1e-8)
			}
		}
		cols = append(cols, column{fmt.Sprintf("price_to_ema_%d", p), rel})
	}
	cols = append(cols, column{fmt.Sprintf("momentum_%d", cfg.MomentumLag), Momentum(close, cfg.MomentumLag)})

	names := make([]string, len(cols))
	for j, c := range cols {
		names[j] = c.name
	}
	out := model.Series{Symbol: bars[0].Symbol, FeatureNames: names, Bars: make([]model.Bar, 0, n)}
rows:
	for i, b := range bars {
		feat := make([]float64, len(cols))
		for j, c := range cols {
			v := c.values[i]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue rows
			}
			feat[j] = v
		}
		b.Features = feat
		out.Bars = append(out.Bars, b)
	}
	if len(out.Bars) == 0 {
		return out, fmt.Errorf("features: all %d bars fall inside the indicator warm-up", n)
	}
	return out, nil
}
