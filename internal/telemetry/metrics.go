package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"walkforward-backtest/internal/backtest"
)

// Recorder holds the Prometheus collectors for runs, folds, jobs and HTTP.
type Recorder struct {
	runsTotal        *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	foldsTotal       *prometheus.CounterVec
	foldDuration     prometheus.Histogram
	tradesTotal      prometheus.Counter
	jobsInFlight     prometheus.Gauge
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	storeErrorsTotal *prometheus.CounterVec
}

// New registers collectors on reg. Pass prometheus.DefaultRegisterer in
// binaries and a fresh registry in tests.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		runsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wfb_runs_total",
				Help: "Walk-forward runs by task and final status",
			},
			[]string{"task", "status"},
		),
		runDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wfb_run_duration_seconds",
				Help:    "Wall time of walk-forward runs",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"task"},
		),
		foldsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wfb_folds_total",
				Help: "Folds processed, by outcome",
			},
			[]string{"outcome"},
		),
		foldDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "wfb_fold_duration_seconds",
			Help:    "Wall time per fold including model update",
			Buckets: prometheus.DefBuckets,
		}),
		tradesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "wfb_trades_total",
			Help: "Simulated trades across all runs",
		}),
		jobsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "wfb_jobs_in_flight",
			Help: "Background jobs currently running",
		}),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wfb_http_requests_total",
				Help: "HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wfb_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"route", "method"},
		),
		storeErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wfb_store_errors_total",
				Help: "Job store failures by backend and operation",
			},
			[]string{"backend", "op"},
		),
	}
}

// RecordRun records a finished run. A nil Recorder is a no-op.
func (r *Recorder) RecordRun(task string, res *backtest.Result, elapsed time.Duration) {
	if r == nil || res == nil {
		return
	}
	r.runsTotal.WithLabelValues(task, string(res.Status)).Inc()
	r.runDuration.WithLabelValues(task).Observe(elapsed.Seconds())
	r.tradesTotal.Add(float64(len(res.Trades)))
}

func (r *Recorder) JobStarted() {
	if r != nil {
		r.jobsInFlight.Inc()
	}
}

func (r *Recorder) JobFinished() {
	if r != nil {
		r.jobsInFlight.Dec()
	}
}

func (r *Recorder) RecordRequest(route, method, status string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(route, method, status).Inc()
	r.httpDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func (r *Recorder) RecordStoreError(backend, op string) {
	if r != nil {
		r.storeErrorsTotal.WithLabelValues(backend, op).Inc()
	}
}

// FoldObserver counts and times folds, then forwards to next (may be nil).
// One observer serves one run.
func (r *Recorder) FoldObserver(next backtest.Observer) backtest.Observer {
	return &foldObserver{rec: r, next: next, now: time.Now}
}

type foldObserver struct {
	rec     *Recorder
	next    backtest.Observer
	now     func() time.Time
	started time.Time
}

func (o *foldObserver) FoldStarted(f backtest.Fold) {
	o.started = o.now()
	if o.next != nil {
		o.next.FoldStarted(f)
	}
}

func (o *foldObserver) FoldCompleted(rep backtest.FoldReport) {
	if o.rec != nil {
		outcome := "evaluated"
		if rep.Skipped {
			outcome = "skipped"
		}
		o.rec.foldsTotal.WithLabelValues(outcome).Inc()
		o.rec.foldDuration.Observe(o.now().Sub(o.started).Seconds())
	}
	if o.next != nil {
		o.next.FoldCompleted(rep)
	}
}
