package features

import "math"

// All indicators return a slice the same length as their input. Positions
// without enough history hold NaN so callers can drop warm-up rows uniformly.

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// EMA is an exponential moving average seeded with the first value and
// reported only once `period` observations have been seen.
func EMA(x []float64, period int) []float64 {
	out := nanSlice(len(x))
	if period <= 0 || len(x) == 0 {
		return out
	}
	alpha := 2 / float64(period+1)
	ema := x[0]
	for i, v := range x {
		if i > 0 {
			ema = alpha*v + (1-alpha)*ema
		}
		if i >= period-1 {
			out[i] = ema
		}
	}
	return out
}

// SMA is a simple moving average over `period` values.
func SMA(x []float64, period int) []float64 {
	out := nanSlice(len(x))
	if period <= 0 {
		return out
	}
	sum := 0.0
	for i, v := range x {
		sum += v
		if i >= period {
			sum -= x[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// RSI uses Wilder smoothing of average gains and losses.
func RSI(close []float64, period int) []float64 {
	out := nanSlice(len(close))
	if period <= 0 || len(close) <= period {
		return out
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := close[i] - close[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	gain /= float64(period)
	loss /= float64(period)
	out[period] = rsiValue(gain, loss)
	for i := period + 1; i < len(close); i++ {
		d := close[i] - close[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		gain = (gain*float64(period-1) + g) / float64(period)
		loss = (loss*float64(period-1) + l) / float64(period)
		out[i] = rsiValue(gain, loss)
	}
	return out
}

func rsiValue(gain, loss float64) float64 {
	if loss == 0 {
		if gain == 0 {
			return 50
		}
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}

// MACD returns the MACD line, its signal line and their difference.
func MACD(close []float64, fast, slow, signal int) (line, sig, diff []float64) {
	ef := EMA(close, fast)
	es := EMA(close, slow)
	line = nanSlice(len(close))
	for i := range close {
		if !math.IsNaN(ef[i]) && !math.IsNaN(es[i]) {
			line[i] = ef[i] - es[i]
		}
	}
	// signal EMA over the defined part of the MACD line
	start := firstDefined(line)
	sig = nanSlice(len(close))
	if start >= 0 {
		s := EMA(line[start:], signal)
		copy(sig[start:], s)
	}
	diff = nanSlice(len(close))
	for i := range close {
		if !math.IsNaN(line[i]) && !math.IsNaN(sig[i]) {
			diff[i] = line[i] - sig[i]
		}
	}
	return line, sig, diff
}

// ATR is Wilder's average true range.
func ATR(high, low, close []float64, period int) []float64 {
	n := len(close)
	out := nanSlice(n)
	if period <= 0 || n <= period {
		return out
	}
	tr := make([]float64, n)
	tr[0] = high[0] - low[0]
	for i := 1; i < n; i++ {
		tr[i] = math.Max(high[i]-low[i], math.Max(math.Abs(high[i]-close[i-1]), math.Abs(low[i]-close[i-1])))
	}
	atr := 0.0
	for i := 1; i <= period; i++ {
		atr += tr[i]
	}
	atr /= float64(period)
	out[period] = atr
	for i := period + 1; i < n; i++ {
		atr = (atr*float64(period-1) + tr[i]) / float64(period)
		out[i] = atr
	}
	return out
}

// Bollinger returns upper, middle and lower bands plus relative band width.
func Bollinger(close []float64, period int, k float64) (upper, middle, lower, width []float64) {
	n := len(close)
	middle = SMA(close, period)
	upper, lower, width = nanSlice(n), nanSlice(n), nanSlice(n)
	for i := period - 1; i < n && period > 0; i++ {
		if i < 0 {
			continue
		}
		var ss float64
		for j := i - period + 1; j <= i; j++ {
			d := close[j] - middle[i]
			ss += d * d
		}
		sd := math.Sqrt(ss / float64(period))
		upper[i] = middle[i] + k*sd
		lower[i] = middle[i] - k*sd
		if middle[i] != 0 {
			width[i] = (upper[i] - lower[i]) / middle[i]
		}
	}
	return upper, middle, lower, width
}

// PctChange is x[i]/x[i-n] - 1.
func PctChange(x []float64, n int) []float64 {
	out := nanSlice(len(x))
	for i := n; i < len(x) && n > 0; i++ {
		if x[i-n] != 0 {
			out[i] = x[i]/x[i-n] - 1
		}
	}
	return out
}

// Momentum is x[i] - x[i-n].
func Momentum(x []float64, n int) []float64 {
	out := nanSlice(len(x))
	for i := n; i < len(x) && n > 0; i++ {
		out[i] = x[i] - x[i-n]
	}
	return out
}

func firstDefined(x []float64) int {
	for i, v := range x {
		if !math.IsNaN(v) {
			return i
		}
	}
	return -1
}
