package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"walkforward-backtest/internal/telemetry"
)

var ErrNotRunning = errors.New("job is not running")

// ProgressFunc reports done out of total units of work.
type ProgressFunc func(done, total int)

// Work is the body of a job. A non-empty status overrides the one derived
// from err; result is stored even when err is set.
type Work func(ctx context.Context, progress ProgressFunc) (result any, status Status, err error)

// Runner executes jobs in the background and mirrors their state to a Store.
type Runner struct {
	store Store
	log   zerolog.Logger
	rec   *telemetry.Recorder
	sem   chan struct{}
	now   func() time.Time

	mu      sync.Mutex
	running map[string]*runningJob
	wg      sync.WaitGroup
}

type runningJob struct {
	cancel   context.CancelFunc
	canceled bool
}

// NewRunner allows at most maxConcurrent jobs to execute at once; the rest
// wait in running state.
func NewRunner(store Store, maxConcurrent int, rec *telemetry.Recorder, log zerolog.Logger) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Runner{
		store:   store,
		log:     log,
		rec:     rec,
		sem:     make(chan struct{}, maxConcurrent),
		now:     func() time.Time { return time.Now().UTC() },
		running: make(map[string]*runningJob),
	}
}

func (r *Runner) Store() Store { return r.store }

// Submit persists a new running job and starts work in the background. The
// job outlives ctx; use Cancel to stop it.
func (r *Runner) Submit(ctx context.Context, kind Kind, request any, work Work) (Job, error) {
	req, err := json.Marshal(request)
	if err != nil {
		return Job{}, fmt.Errorf("marshal request: %w", err)
	}
	now := r.now()
	job := Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    StatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
		Request:   req,
	}
	if err := r.store.Put(ctx, job); err != nil {
		return Job{}, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.running[job.ID] = &runningJob{cancel: cancel}
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run(runCtx, cancel, job, work)
	return job, nil
}

func (r *Runner) run(ctx context.Context, cancel context.CancelFunc, job Job, work Work) {
	defer r.wg.Done()
	defer cancel()
	r.rec.JobStarted()
	defer r.rec.JobFinished()

	log := r.log.With().Str("job_id", job.ID).Str("kind", string(job.Kind)).Logger()
	persistCtx := context.WithoutCancel(ctx)

	var (
		result any
		status Status
		err    error
	)
	select {
	case r.sem <- struct{}{}:
		log.Info().Msg("job started")
		result, status, err = work(ctx, func(done, total int) {
			job.FoldsDone, job.FoldsTotal = done, total
			if total > 0 {
				job.Progress = float64(done) / float64(total)
			}
			job.UpdatedAt = r.now()
			if perr := r.store.Put(persistCtx, job); perr != nil {
				log.Warn().Err(perr).Msg("persist progress failed")
			}
		})
		<-r.sem
	case <-ctx.Done():
		err = ctx.Err()
	}

	r.mu.Lock()
	canceled := r.running[job.ID].canceled
	delete(r.running, job.ID)
	r.mu.Unlock()

	if result != nil {
		if raw, merr := json.Marshal(result); merr != nil {
			log.Error().Err(merr).Msg("marshal job result failed")
		} else {
			job.Result = raw
		}
	}
	switch {
	case status != "":
		job.Status = status
	case err != nil && canceled:
		job.Status = StatusCanceled
	case err != nil:
		job.Status = StatusFailed
	default:
		job.Status = StatusCompleted
	}
	if err != nil {
		job.Error = err.Error()
	}
	if job.Status == StatusCompleted {
		job.Progress = 1
	}
	job.UpdatedAt = r.now()

	if perr := r.store.Put(persistCtx, job); perr != nil {
		log.Error().Err(perr).Msg("persist final job state failed")
	}
	ev := log.Info()
	if err != nil {
		ev = log.Warn().Err(err)
	}
	ev.Str("status", string(job.Status)).Msg("job finished")
}

// Get returns the stored job.
func (r *Runner) Get(ctx context.Context, id string) (Job, error) {
	return r.store.Get(ctx, id)
}

// Cancel stops a running job. The job records its final state itself.
func (r *Runner) Cancel(ctx context.Context, id string) error {
	r.mu.Lock()
	rj, ok := r.running[id]
	if ok {
		rj.canceled = true
		rj.cancel()
	}
	r.mu.Unlock()
	if ok {
		return nil
	}
	if _, err := r.store.Get(ctx, id); err != nil {
		return err
	}
	return ErrNotRunning
}

// Wait blocks until every submitted job has finished.
func (r *Runner) Wait() { r.wg.Wait() }

// Shutdown cancels all running jobs and waits for them until ctx expires.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	for _, rj := range r.running {
		rj.canceled = true
		rj.cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
