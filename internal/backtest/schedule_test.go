package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func TestScheduleFirstFold(t *testing.T) {
	folds, err := Folds(t0, t0.Add(199*day), 100*day, 20*day)
	require.NoError(t, err)
	require.Len(t, folds, 4)

	f := folds[0]
	assert.Equal(t, 0, f.Index)
	assert.Equal(t, t0, f.TrainStart)
	assert.Equal(t, t0.Add(100*day), f.TrainEnd)
	assert.Equal(t, f.TrainEnd, f.TestStart)
	assert.Equal(t, t0.Add(120*day), f.TestEnd)
}

func TestScheduleFoldCount(t *testing.T) {
	cases := []struct {
		span, train, test time.Duration
	}{
		{199 * day, 100 * day, 20 * day},
		{200 * day, 100 * day, 20 * day},
		{365 * day, 30 * day, 7 * day},
		{50 * day, 100 * day, 20 * day},
		{120 * day, 100 * day, 20 * day},
		{1000 * time.Hour, 240 * time.Hour, 72 * time.Hour},
	}
	for _, c := range cases {
		folds, err := Folds(t0, t0.Add(c.span), c.train, c.test)
		require.NoError(t, err)
		want := 0
		if c.span >= c.train {
			want = int((c.span - c.train) / c.test)
		}
		assert.Len(t, folds, want, "span=%s train=%s test=%s", c.span, c.train, c.test)
	}
}

func TestScheduleTestWindowsTileRange(t *testing.T) {
	train, test := 30*day, 7*day
	folds, err := Folds(t0, t0.Add(365*day), train, test)
	require.NoError(t, err)
	require.NotEmpty(t, folds)

	assert.Equal(t, t0.Add(train), folds[0].TestStart)
	for i := 1; i < len(folds); i++ {
		assert.Equal(t, folds[i-1].TestEnd, folds[i].TestStart, "gap or overlap at fold %d", i)
		assert.Equal(t, i, folds[i].Index)
	}
	for _, f := range folds {
		assert.Equal(t, f.TestStart.Add(-train), f.TrainStart)
		assert.False(t, f.TestEnd.After(t0.Add(365*day)))
	}
	last := folds[len(folds)-1]
	assert.True(t, last.TestEnd.Add(test).After(t0.Add(365*day)))
}

func TestScheduleRejectsInvalidWindows(t *testing.T) {
	_, err := Schedule(t0, t0.Add(day), 0, day)
	assert.ErrorIs(t, err, ErrInvalidWindow)
	_, err = Schedule(t0, t0.Add(day), day, -day)
	assert.ErrorIs(t, err, ErrInvalidWindow)
	_, err = Schedule(t0.Add(day), t0, day, day)
	assert.ErrorIs(t, err, ErrInvalidWindow)

	folds, err := Folds(t0, t0, day, day)
	require.NoError(t, err)
	assert.Empty(t, folds)
}
