package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("job not found")

type Kind string

const (
	KindBacktest Kind = "backtest"
	KindTrain    Kind = "train"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether no further updates will happen.
func (s Status) Terminal() bool {
	return s != StatusRunning
}

// Job is the persisted state of one background run. Request and Result are
// kept as raw JSON so stores stay independent of the payload types.
type Job struct {
	ID         string          `json:"job_id"`
	Kind       Kind            `json:"kind"`
	Status     Status          `json:"status"`
	Progress   float64         `json:"progress"`
	FoldsDone  int             `json:"folds_done"`
	FoldsTotal int             `json:"folds_total"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Request    json.RawMessage `json:"request,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// Store persists jobs keyed by ID. Put overwrites. List returns the newest
// jobs first, at most limit of them (all when limit <= 0).
type Store interface {
	Put(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (Job, error)
	List(ctx context.Context, limit int) ([]Job, error)
}
