package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"walkforward-backtest/internal/telemetry"
)

// BreakerStore guards a remote Store with a circuit breaker. ErrNotFound
// counts as success.
type BreakerStore struct {
	next    Store
	cb      *gobreaker.CircuitBreaker
	backend string
	rec     *telemetry.Recorder
}

type BreakerConfig struct {
	Name                string
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:                name,
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

func NewBreakerStore(next Store, cfg BreakerConfig, rec *telemetry.Recorder, log zerolog.Logger) *BreakerStore {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("store", name).Str("from", from.String()).Str("to", to.String()).Msg("job store breaker state change")
		},
	}
	return &BreakerStore{next: next, cb: gobreaker.NewCircuitBreaker(settings), backend: cfg.Name, rec: rec}
}

// State exposes the breaker state for health reporting.
func (s *BreakerStore) State() gobreaker.State { return s.cb.State() }

func (s *BreakerStore) Put(ctx context.Context, job Job) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.next.Put(ctx, job)
	})
	s.observe("put", err)
	return err
}

func (s *BreakerStore) Get(ctx context.Context, id string) (Job, error) {
	v, err := s.cb.Execute(func() (interface{}, error) {
		return s.next.Get(ctx, id)
	})
	s.observe("get", err)
	if err != nil {
		return Job{}, err
	}
	return v.(Job), nil
}

func (s *BreakerStore) List(ctx context.Context, limit int) ([]Job, error) {
	v, err := s.cb.Execute(func() (interface{}, error) {
		return s.next.List(ctx, limit)
	})
	s.observe("list", err)
	if err != nil {
		return nil, err
	}
	return v.([]Job), nil
}

func (s *BreakerStore) observe(op string, err error) {
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.rec.RecordStoreError(s.backend, op)
	}
}
