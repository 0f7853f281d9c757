package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"walkforward-backtest/internal/backtest"
)

type countingObserver struct{ started, completed int }

func (c *countingObserver) FoldStarted(backtest.Fold)         { c.started++ }
func (c *countingObserver) FoldCompleted(backtest.FoldReport) { c.completed++ }

func TestRecordRun(t *testing.T) {
	r := New(prometheus.NewRegistry())
	res := &backtest.Result{
		Status: backtest.StatusCompleted,
		Trades: make([]backtest.TradeRecord, 3),
	}
	r.RecordRun("classification", res, 2*time.Second)
	r.RecordRun("classification", res, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.runsTotal.WithLabelValues("classification", "completed")))
	assert.Equal(t, 6.0, testutil.ToFloat64(r.tradesTotal))
}

func TestFoldObserverCountsAndForwards(t *testing.T) {
	r := New(prometheus.NewRegistry())
	next := &countingObserver{}
	obs := r.FoldObserver(next)

	obs.FoldStarted(backtest.Fold{Index: 0})
	obs.FoldCompleted(backtest.FoldReport{Skipped: true})
	obs.FoldStarted(backtest.Fold{Index: 1})
	obs.FoldCompleted(backtest.FoldReport{})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.foldsTotal.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.foldsTotal.WithLabelValues("evaluated")))
	assert.Equal(t, 2, next.started)
	assert.Equal(t, 2, next.completed)
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.RecordRun("regression", &backtest.Result{}, time.Second)
	r.JobStarted()
	r.JobFinished()
	r.RecordRequest("/x", "GET", "200", time.Millisecond)
	r.RecordStoreError("redis", "get")
	obs := r.FoldObserver(nil)
	obs.FoldStarted(backtest.Fold{})
	obs.FoldCompleted(backtest.FoldReport{})
}

func TestJobsGauge(t *testing.T) {
	r := New(prometheus.NewRegistry())
	r.JobStarted()
	r.JobStarted()
	r.JobFinished()
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobsInFlight))
}
