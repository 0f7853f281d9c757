package backtest

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"walkforward-backtest/internal/model"
)

// DefaultPeriodsPerYear annualizes Sharpe for daily bars.
const DefaultPeriodsPerYear = 252

// ClassificationMetrics are computed on one fold's test rows. AUC is nil when
// it is undefined, e.g. a single class in the fold.
type ClassificationMetrics struct {
	Accuracy  float64  `json:"accuracy"`
	Precision float64  `json:"precision"`
	Recall    float64  `json:"recall"`
	F1        float64  `json:"f1"`
	AUC       *float64 `json:"auc,omitempty"`
}

// RegressionMetrics are computed on one fold's test rows. R2 is nil when the
// targets have zero variance.
type RegressionMetrics struct {
	MAE  float64  `json:"mae"`
	MSE  float64  `json:"mse"`
	RMSE float64  `json:"rmse"`
	R2   *float64 `json:"r2,omitempty"`
}

// FoldMetrics holds exactly one of the two metric families.
type FoldMetrics struct {
	Classification *ClassificationMetrics `json:"classification,omitempty"`
	Regression     *RegressionMetrics     `json:"regression,omitempty"`
}

// ScoreClassification computes accuracy and support-weighted
// precision/recall/F1. proba columns must follow classes; pass nil to skip AUC.
func ScoreClassification(yTrue, yPred []float64, proba [][]float64, classes []float64) ClassificationMetrics {
	var m ClassificationMetrics
	n := len(yTrue)
	if n == 0 || len(yPred) != n {
		return m
	}

	labels := map[float64]bool{}
	correct := 0
	for i := range yTrue {
		labels[yTrue[i]] = true
		labels[yPred[i]] = true
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	m.Accuracy = float64(correct) / float64(n)

	for label := range labels {
		var tp, fp, fn, support float64
		for i := range yTrue {
			t, p := yTrue[i] == label, yPred[i] == label
			switch {
			case t && p:
				tp++
			case p:
				fp++
			case t:
				fn++
			}
			if t {
				support++
			}
		}
		if support == 0 {
			continue
		}
		w := support / float64(n)
		prec := safeDiv(tp, tp+fp)
		rec := safeDiv(tp, tp+fn)
		m.Precision += w * prec
		m.Recall += w * rec
		m.F1 += w * safeDiv(2*prec*rec, prec+rec)
	}

	m.AUC = aucScore(yTrue, proba, classes)
	return m
}

// aucScore is binary ROC AUC on the positive column, or one-vs-rest AUC
// weighted by class support for more than two classes.
func aucScore(yTrue []float64, proba [][]float64, classes []float64) *float64 {
	if len(proba) != len(yTrue) || len(classes) < 2 {
		return nil
	}
	for _, row := range proba {
		if len(row) != len(classes) {
			return nil
		}
	}
	present := 0
	for _, c := range classes {
		for _, y := range yTrue {
			if y == c {
				present++
				break
			}
		}
	}
	if present < 2 {
		return nil
	}

	if len(classes) == 2 {
		auc, ok := rocAUC(yTrue, proba, 1, classes[1])
		if !ok {
			return nil
		}
		return &auc
	}

	var total, weight float64
	for k, c := range classes {
		auc, ok := rocAUC(yTrue, proba, k, c)
		if !ok {
			continue
		}
		support := 0.0
		for _, y := range yTrue {
			if y == c {
				support++
			}
		}
		total += auc * support
		weight += support
	}
	if weight == 0 {
		return nil
	}
	auc := total / weight
	return &auc
}

// rocAUC computes the Mann-Whitney statistic with average ranks for ties.
func rocAUC(yTrue []float64, proba [][]float64, col int, positive float64) (float64, bool) {
	type scored struct {
		score float64
		pos   bool
	}
	xs := make([]scored, len(yTrue))
	var nPos, nNeg float64
	for i, y := range yTrue {
		xs[i] = scored{proba[i][col], y == positive}
		if xs[i].pos {
			nPos++
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return 0, false
	}
	sort.Slice(xs, func(i, j int) bool { return xs[i].score < xs[j].score })

	rankSum := 0.0
	for i := 0; i < len(xs); {
		j := i
		for j < len(xs) && xs[j].score == xs[i].score {
			j++
		}
		avg := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			if xs[k].pos {
				rankSum += avg
			}
		}
		i = j
	}
	return (rankSum - nPos*(nPos+1)/2) / (nPos * nNeg), true
}

func ScoreRegression(yTrue, yPred []float64) RegressionMetrics {
	var m RegressionMetrics
	n := len(yTrue)
	if n == 0 || len(yPred) != n {
		return m
	}
	mean := 0.0
	for _, y := range yTrue {
		mean += y
	}
	mean /= float64(n)

	var absSum, sqSum, ssTot float64
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		absSum += math.Abs(d)
		sqSum += d * d
		ssTot += (yTrue[i] - mean) * (yTrue[i] - mean)
	}
	m.MAE = absSum / float64(n)
	m.MSE = sqSum / float64(n)
	m.RMSE = math.Sqrt(m.MSE)
	if ssTot > 0 {
		r2 := 1 - sqSum/ssTot
		m.R2 = &r2
	}
	return m
}

// Summarize derives the aggregate report from the full trade log and equity
// curve. Only SELL records count as trades.
func Summarize(initialCapital, finalCapital float64, trades []TradeRecord, equity []EquityPoint, periodsPerYear float64) Summary {
	s := Summary{
		InitialCapital: initialCapital,
		FinalCapital:   finalCapital,
		PeriodsPerYear: periodsPerYear,
	}
	if initialCapital > 0 {
		s.TotalReturn = (finalCapital - initialCapital) / initialCapital
	}
	s.TotalReturnPct = s.TotalReturn * 100

	for _, t := range trades {
		if t.Action != model.ActionSell {
			continue
		}
		s.TotalTrades++
		switch {
		case t.PnL > 0:
			s.WinningTrades++
		case t.PnL < 0:
			s.LosingTrades++
		}
	}
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades)
	}

	values := make([]float64, len(equity))
	for i, p := range equity {
		values[i] = p.Equity
	}
	s.SharpeRatio = Sharpe(values, periodsPerYear)
	s.MaxDrawdown = MaxDrawdown(values)
	s.MaxDrawdownPct = s.MaxDrawdown * 100
	return s
}

// Sharpe annualizes mean/std of per-period equity returns. It returns 0 when
// there are fewer than two returns or the returns have zero spread.
func Sharpe(equity []float64, periodsPerYear float64) float64 {
	if periodsPerYear <= 0 {
		periodsPerYear = DefaultPeriodsPerYear
	}
	returns := make([]float64, 0, len(equity))
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			continue
		}
		returns = append(returns, equity[i]/equity[i-1]-1)
	}
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	ss := 0.0
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / float64(len(returns)-1))
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std * math.Sqrt(periodsPerYear)
}

// MaxDrawdown is the most negative (equity-peak)/peak over the curve.
// It is 0 for empty or non-decreasing curves and never positive.
func MaxDrawdown(equity []float64) float64 {
	worst := 0.0
	peak := math.Inf(-1)
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		if dd := (v - peak) / peak; dd < worst {
			worst = dd
		}
	}
	return worst
}

// Calendars accepted by PeriodsPerYearFor.
const (
	CalendarTrading = "trading" // 252 sessions a year
	CalendarCrypto  = "crypto"  // 365 days a year
)

// PeriodsPerYearFor maps a bar timeframe such as "1h" or "1d" to a Sharpe
// annualization factor. The trading calendar (the default) counts 252 days a
// year, so daily bars give DefaultPeriodsPerYear; the crypto calendar counts 365.
// An empty timeframe yields DefaultPeriodsPerYear.
func PeriodsPerYearFor(timeframe, calendar string) (float64, error) {
	var daysPerYear float64
	switch strings.TrimSpace(strings.ToLower(calendar)) {
	case "", CalendarTrading:
		daysPerYear = DefaultPeriodsPerYear
	case CalendarCrypto:
		daysPerYear = 365
	default:
		return 0, fmt.Errorf("unknown calendar %q", calendar)
	}
	tf := strings.TrimSpace(strings.ToLower(timeframe))
	if tf == "" {
		return DefaultPeriodsPerYear, nil
	}
	var n int
	var unit string
	if _, err := fmt.Sscanf(tf, "%d%s", &n, &unit); err != nil || n <= 0 {
		return 0, fmt.Errorf("unrecognized timeframe %q", timeframe)
	}
	var perDay float64
	switch unit {
	case "m":
		perDay = 24 * 60 / float64(n)
	case "h":
		perDay = 24 / float64(n)
	case "d":
		perDay = 1 / float64(n)
	case "w":
		return 52 / float64(n), nil
	default:
		return 0, fmt.Errorf("unrecognized timeframe unit in %q", timeframe)
	}
	return daysPerYear * perDay, nil
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
