package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/creasty/defaults"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"walkforward-backtest/internal/api/models"
	"walkforward-backtest/internal/backtest"
	"walkforward-backtest/internal/config"
	"walkforward-backtest/internal/jobs"
	"walkforward-backtest/internal/service"
)

// BacktestHandler handles backtest and training jobs.
type BacktestHandler struct {
	base   *config.Config
	svc    *service.Service
	runner *jobs.Runner
	log    zerolog.Logger
}

// NewBacktestHandler creates a new backtest handler. base supplies every
// setting a request leaves unset.
func NewBacktestHandler(base *config.Config, svc *service.Service, runner *jobs.Runner, log zerolog.Logger) *BacktestHandler {
	return &BacktestHandler{base: base, svc: svc, runner: runner, log: log}
}

// RunBacktest handles POST /api/v1/backtest/run
func (h *BacktestHandler) RunBacktest(c *gin.Context) {
	var req models.BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewError("INVALID_REQUEST", err.Error()))
		return
	}
	cfg, err := backtestConfig(h.base, req)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewError("INVALID_CONFIG", err.Error()))
		return
	}

	job, err := h.runner.Submit(c.Request.Context(), jobs.KindBacktest, req, func(ctx context.Context, progress jobs.ProgressFunc) (any, jobs.Status, error) {
		out, err := h.svc.Backtest(ctx, "", cfg, progress)
		if out == nil {
			return nil, "", err
		}
		status := jobs.StatusCompleted
		switch out.Result.Status {
		case backtest.StatusPartial:
			status = jobs.StatusPartial
		case backtest.StatusFailed:
			status = jobs.StatusFailed
		}
		return out, status, err
	})
	if err != nil {
		h.log.Error().Err(err).Msg("submit backtest failed")
		c.JSON(http.StatusServiceUnavailable, models.NewError("STORE_UNAVAILABLE", err.Error()))
		return
	}
	c.JSON(http.StatusAccepted, toJobResponse(job))
}

// GetBacktestStatus handles GET /api/v1/backtest/status?job_id=
func (h *BacktestHandler) GetBacktestStatus(c *gin.Context) {
	job, ok := h.lookup(c, jobs.KindBacktest)
	if !ok {
		return
	}
	resp := models.BacktestStatusResponse{Job: toJobResponse(job)}
	if len(job.Result) > 0 {
		var out service.BacktestOutcome
		if err := json.Unmarshal(job.Result, &out); err != nil {
			c.JSON(http.StatusInternalServerError, models.NewError("CORRUPT_RESULT", err.Error()))
			return
		}
		var opts models.BacktestOptions
		var req models.BacktestRequest
		if err := json.Unmarshal(job.Request, &req); err == nil {
			opts = req.Options
		}
		resp.Report = toBacktestResponse(&out, opts)
	}
	c.JSON(http.StatusOK, resp)
}

// CancelBacktest handles POST /api/v1/backtest/:id/cancel
func (h *BacktestHandler) CancelBacktest(c *gin.Context) {
	id := c.Param("id")
	err := h.runner.Cancel(c.Request.Context(), id)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		c.JSON(http.StatusNotFound, models.NewError("JOB_NOT_FOUND", err.Error()))
	case errors.Is(err, jobs.ErrNotRunning):
		c.JSON(http.StatusConflict, models.NewError("JOB_NOT_RUNNING", err.Error()))
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, models.NewError("STORE_UNAVAILABLE", err.Error()))
	default:
		c.JSON(http.StatusAccepted, gin.H{"job_id": id, "status": "canceling"})
	}
}

// StartTraining handles POST /api/v1/train/start
func (h *BacktestHandler) StartTraining(c *gin.Context) {
	var req models.TrainRequest
	if err := defaults.Set(&req); err != nil {
		c.JSON(http.StatusInternalServerError, models.NewError("INTERNAL_ERROR", err.Error()))
		return
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.NewError("INVALID_REQUEST", err.Error()))
		return
	}
	if req.TrainRatio+req.ValidRatio >= 1 {
		c.JSON(http.StatusBadRequest, models.NewError("INVALID_REQUEST", "train_ratio + valid_ratio must be below 1"))
		return
	}
	cfg, err := trainConfig(h.base, req)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.NewError("INVALID_CONFIG", err.Error()))
		return
	}

	job, err := h.runner.Submit(c.Request.Context(), jobs.KindTrain, req, func(ctx context.Context, progress jobs.ProgressFunc) (any, jobs.Status, error) {
		out, err := h.svc.Train(ctx, cfg, req.Name, req.TrainRatio, req.ValidRatio, progress)
		if out == nil {
			return nil, "", err
		}
		return out, "", err
	})
	if err != nil {
		h.log.Error().Err(err).Msg("submit training failed")
		c.JSON(http.StatusServiceUnavailable, models.NewError("STORE_UNAVAILABLE", err.Error()))
		return
	}
	c.JSON(http.StatusAccepted, toJobResponse(job))
}

// GetTrainStatus handles GET /api/v1/train/status?job_id=
func (h *BacktestHandler) GetTrainStatus(c *gin.Context) {
	job, ok := h.lookup(c, jobs.KindTrain)
	if !ok {
		return
	}
	resp := models.TrainStatusResponse{Job: toJobResponse(job)}
	if len(job.Result) > 0 {
		var out service.TrainOutcome
		if err := json.Unmarshal(job.Result, &out); err != nil {
			c.JSON(http.StatusInternalServerError, models.NewError("CORRUPT_RESULT", err.Error()))
			return
		}
		resp.Model = out.Info
	}
	c.JSON(http.StatusOK, resp)
}

// ListJobs handles GET /api/v1/jobs
func (h *BacktestHandler) ListJobs(c *gin.Context) {
	var q models.ListQuery
	if err := defaults.Set(&q); err != nil {
		c.JSON(http.StatusInternalServerError, models.NewError("INTERNAL_ERROR", err.Error()))
		return
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, models.NewError("INVALID_REQUEST", err.Error()))
		return
	}
	list, err := h.runner.Store().List(c.Request.Context(), q.Limit)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, models.NewError("STORE_UNAVAILABLE", err.Error()))
		return
	}
	out := make([]models.JobResponse, len(list))
	for i, j := range list {
		out[i] = toJobResponse(j)
	}
	c.JSON(http.StatusOK, gin.H{"jobs": out, "count": len(out)})
}

// lookup binds ?job_id= and loads the job, writing the error response
// itself when it returns false.
func (h *BacktestHandler) lookup(c *gin.Context, kind jobs.Kind) (jobs.Job, bool) {
	var q models.StatusQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, models.NewError("MISSING_PARAM", "job_id query parameter is required"))
		return jobs.Job{}, false
	}
	job, err := h.runner.Get(c.Request.Context(), q.JobID)
	if errors.Is(err, jobs.ErrNotFound) || (err == nil && job.Kind != kind) {
		c.JSON(http.StatusNotFound, models.NewError("JOB_NOT_FOUND", "no "+string(kind)+" job "+q.JobID))
		return jobs.Job{}, false
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, models.NewError("STORE_UNAVAILABLE", err.Error()))
		return jobs.Job{}, false
	}
	return job, true
}

func toJobResponse(j jobs.Job) models.JobResponse {
	return models.JobResponse{
		JobID:      j.ID,
		Kind:       string(j.Kind),
		Status:     string(j.Status),
		Progress:   j.Progress,
		FoldsDone:  j.FoldsDone,
		FoldsTotal: j.FoldsTotal,
		Error:      j.Error,
		CreatedAt:  j.CreatedAt,
		UpdatedAt:  j.UpdatedAt,
	}
}

func toBacktestResponse(out *service.BacktestOutcome, opts models.BacktestOptions) *models.BacktestResponse {
	resp := &models.BacktestResponse{
		RunID:       out.RunID,
		Symbol:      out.Symbol,
		Model:       out.Model,
		Task:        string(out.Task),
		Benchmarks:  out.Benchmarks,
		ArtifactDir: out.ArtifactDir,
	}
	if res := out.Result; res != nil {
		resp.Status = string(res.Status)
		resp.Summary = res.Summary
		resp.Folds = res.Folds
		if opts.IncludeTrades {
			resp.Trades = res.Trades
		}
		if opts.IncludeEquity {
			resp.EquityCurve = res.Equity
		}
	}
	return resp
}
