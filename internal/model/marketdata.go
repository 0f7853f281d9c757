package model

import (
	"fmt"
	"sort"
	"time"
)

// Bar is one row of the model-ready input table: OHLCV prices retained for
// fills, the engineered feature vector and the supervised target.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol,omitempty"`

	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`

	Features []float64 `json:"features,omitempty"`
	Target   float64   `json:"target"`
}

// Series is a chronologically ordered table of bars sharing one feature layout.
type Series struct {
	Symbol       string   `json:"symbol,omitempty"`
	Timeframe    string   `json:"timeframe,omitempty"`
	FeatureNames []string `json:"feature_names"`
	Bars         []Bar    `json:"bars"`
}

func (s Series) Len() int { return len(s.Bars) }

// Start returns the first timestamp, or the zero time for an empty series.
func (s Series) Start() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[0].Timestamp
}

// End returns the last timestamp, or the zero time for an empty series.
func (s Series) End() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[len(s.Bars)-1].Timestamp
}

// Validate checks ordering and feature width. Equal timestamps are allowed.
func (s Series) Validate() error {
	width := len(s.FeatureNames)
	for i, b := range s.Bars {
		if i > 0 && b.Timestamp.Before(s.Bars[i-1].Timestamp) {
			return fmt.Errorf("bar %d: timestamp %s precedes %s", i,
				b.Timestamp.Format(time.RFC3339), s.Bars[i-1].Timestamp.Format(time.RFC3339))
		}
		if width > 0 && len(b.Features) != width {
			return fmt.Errorf("bar %d: %d features, want %d", i, len(b.Features), width)
		}
	}
	return nil
}

// SortByTime orders bars by timestamp, keeping the input order of ties.
func (s *Series) SortByTime() {
	sort.SliceStable(s.Bars, func(i, j int) bool {
		return s.Bars[i].Timestamp.Before(s.Bars[j].Timestamp)
	})
}

// Slice returns the bars with from <= Timestamp < to. The result shares
// backing storage with the series.
func (s Series) Slice(from, to time.Time) []Bar {
	lo := s.lowerBound(from)
	hi := s.lowerBound(to)
	if hi < lo {
		hi = lo
	}
	return s.Bars[lo:hi]
}

// lowerBound returns the first index whose timestamp is >= t.
func (s Series) lowerBound(t time.Time) int {
	return sort.Search(len(s.Bars), func(i int) bool {
		return !s.Bars[i].Timestamp.Before(t)
	})
}

// Matrix splits bars into a feature matrix and target vector.
func Matrix(bars []Bar) ([][]float64, []float64) {
	X := make([][]float64, len(bars))
	y := make([]float64, len(bars))
	for i, b := range bars {
		X[i] = b.Features
		y[i] = b.Target
	}
	return X, y
}
