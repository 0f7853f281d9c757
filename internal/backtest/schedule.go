package backtest

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidWindow is returned for non-positive windows or an inverted date range.
var ErrInvalidWindow = errors.New("invalid backtest window")

const (
	DefaultMinTrainRows = 100
	DefaultMinTestRows  = 10
)

// Fold is one train/test window pair. Both intervals are half-open and the
// test interval starts where the train interval ends.
type Fold struct {
	Index      int       `json:"fold"`
	TrainStart time.Time `json:"train_start"`
	TrainEnd   time.Time `json:"train_end"`
	TestStart  time.Time `json:"test_start"`
	TestEnd    time.Time `json:"test_end"`
}

// FoldIterator yields folds lazily in chronological order.
type FoldIterator struct {
	end       time.Time
	train     time.Duration
	test      time.Duration
	testStart time.Time
	index     int
}

// Schedule validates the windows and returns an iterator positioned before
// the first fold, whose test window starts at start+train.
func Schedule(start, end time.Time, train, test time.Duration) (*FoldIterator, error) {
	if train <= 0 {
		return nil, fmt.Errorf("%w: train window %s must be positive", ErrInvalidWindow, train)
	}
	if test <= 0 {
		return nil, fmt.Errorf("%w: test window %s must be positive", ErrInvalidWindow, test)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s is before start %s", ErrInvalidWindow,
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return &FoldIterator{
		end:       end,
		train:     train,
		test:      test,
		testStart: start.Add(train),
	}, nil
}

// Next returns the next fold, or false once no full test window fits.
func (it *FoldIterator) Next() (Fold, bool) {
	testEnd := it.testStart.Add(it.test)
	if testEnd.After(it.end) {
		return Fold{}, false
	}
	f := Fold{
		Index:      it.index,
		TrainStart: it.testStart.Add(-it.train),
		TrainEnd:   it.testStart,
		TestStart:  it.testStart,
		TestEnd:    testEnd,
	}
	it.index++
	it.testStart = testEnd
	return f, true
}

// Folds drains a fresh schedule into a slice.
func Folds(start, end time.Time, train, test time.Duration) ([]Fold, error) {
	it, err := Schedule(start, end, train, test)
	if err != nil {
		return nil, err
	}
	var out []Fold
	for f, ok := it.Next(); ok; f, ok = it.Next() {
		out = append(out, f)
	}
	return out, nil
}
