package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sampleJob(id string, created time.Time) Job {
	return Job{
		ID:        id,
		Kind:      KindBacktest,
		Status:    StatusRunning,
		CreatedAt: created,
		UpdatedAt: created,
		Request:   json.RawMessage(`{"model":"sgdc"}`),
	}
}

func TestMemoryStoreListsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Put(ctx, sampleJob("a", t0)))
	require.NoError(t, s.Put(ctx, sampleJob("b", t0.Add(time.Minute))))
	require.NoError(t, s.Put(ctx, sampleJob("c", t0.Add(-time.Minute))))

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{all[0].ID, all[1].ID, all[2].ID})

	two, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)

	_, err = s.Get(ctx, "zzz")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	s := NewRedisStore(client, "test:", time.Hour)

	job := sampleJob("abc", t0)
	data, err := json.Marshal(job)
	require.NoError(t, err)

	t.Run("put writes payload and index", func(t *testing.T) {
		mock.ExpectSet("test:abc", string(data), time.Hour).SetVal("OK")
		mock.ExpectZAdd("test:index", &redis.Z{Score: float64(t0.UnixNano()), Member: "abc"}).SetVal(1)
		require.NoError(t, s.Put(ctx, job))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get hit and miss", func(t *testing.T) {
		mock.ExpectGet("test:abc").SetVal(string(data))
		got, err := s.Get(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)
		assert.True(t, t0.Equal(got.CreatedAt))

		mock.ExpectGet("test:nope").RedisNil()
		_, err = s.Get(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("list prunes expired ids and fills the page", func(t *testing.T) {
		newer := sampleJob("def", t0.Add(-time.Minute))
		newerData, err := json.Marshal(newer)
		require.NoError(t, err)

		mock.ExpectZRevRange("test:index", 0, 1).SetVal([]string{"abc", "gone"})
		mock.ExpectMGet("test:abc", "test:gone").SetVal([]interface{}{string(data), nil})
		mock.ExpectZRem("test:index", "gone").SetVal(1)
		mock.ExpectZRevRange("test:index", 1, 1).SetVal([]string{"def"})
		mock.ExpectMGet("test:def").SetVal([]interface{}{string(newerData)})

		got, err := s.List(ctx, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "abc", got[0].ID)
		assert.Equal(t, "def", got[1].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("list stops at the end of the index", func(t *testing.T) {
		mock.ExpectZRevRange("test:index", 0, 4).SetVal([]string{"gone"})
		mock.ExpectMGet("test:gone").SetVal([]interface{}{nil})
		mock.ExpectZRem("test:index", "gone").SetVal(1)

		got, err := s.List(ctx, 5)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis error is wrapped", func(t *testing.T) {
		mock.ExpectGet("test:abc").SetErr(redis.TxFailedErr)
		_, err := s.Get(ctx, "abc")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
	})
}

func newPostgresMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(sqlx.NewDb(db, "sqlmock"), time.Second), mock
}

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()
	s, mock := newPostgresMock(t)
	job := sampleJob("abc", t0)
	data, err := json.Marshal(job)
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS jobs").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, s.Migrate(ctx))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO jobs")).
		WithArgs("abc", "backtest", "running", 0.0, "", t0, t0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Put(ctx, job))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT payload FROM jobs WHERE id = $1")).
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(data))
	got, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, KindBacktest, got.Kind)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT payload FROM jobs WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}))
	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	other, _ := json.Marshal(sampleJob("def", t0.Add(time.Hour)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT payload FROM jobs ORDER BY created_at DESC")).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(other).AddRow(data))
	list, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "def", list[0].ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

type failingStore struct{ calls int }

func (f *failingStore) Put(context.Context, Job) error {
	f.calls++
	return errors.New("down")
}

func (f *failingStore) Get(context.Context, string) (Job, error) {
	f.calls++
	return Job{}, ErrNotFound
}

func (f *failingStore) List(context.Context, int) ([]Job, error) {
	f.calls++
	return nil, errors.New("down")
}

func TestBreakerStoreOpensOnFailures(t *testing.T) {
	ctx := context.Background()
	inner := &failingStore{}
	cfg := DefaultBreakerConfig("test")
	cfg.ConsecutiveFailures = 3
	s := NewBreakerStore(inner, cfg, nil, zerolog.Nop())

	for i := 0; i < 5; i++ {
		_, err := s.Get(ctx, "x")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, gobreaker.StateClosed, s.State())

	for i := 0; i < 3; i++ {
		assert.Error(t, s.Put(ctx, Job{}))
	}
	assert.Equal(t, gobreaker.StateOpen, s.State())

	calls := inner.calls
	_, err := s.List(ctx, 1)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, calls, inner.calls, "open breaker short-circuits")
}

func TestRunnerCompletesWithProgress(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := NewRunner(store, 2, nil, zerolog.Nop())

	job, err := r.Submit(ctx, KindBacktest, map[string]string{"model": "ridge"}, func(ctx context.Context, progress ProgressFunc) (any, Status, error) {
		progress(1, 2)
		progress(2, 2)
		return map[string]int{"trades": 4}, "", nil
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, job.Status)
	assert.NotEmpty(t, job.ID)
	r.Wait()

	got, err := r.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 1.0, got.Progress)
	assert.Equal(t, 2, got.FoldsTotal)
	assert.JSONEq(t, `{"trades":4}`, string(got.Result))
	assert.JSONEq(t, `{"model":"ridge"}`, string(got.Request))

	assert.ErrorIs(t, r.Cancel(ctx, job.ID), ErrNotRunning)
	assert.ErrorIs(t, r.Cancel(ctx, "unknown"), ErrNotFound)
}

func TestRunnerRecordsFailureAndStatusOverride(t *testing.T) {
	ctx := context.Background()
	r := NewRunner(NewMemoryStore(), 1, nil, zerolog.Nop())

	failed, err := r.Submit(ctx, KindTrain, nil, func(context.Context, ProgressFunc) (any, Status, error) {
		return nil, "", errors.New("fit exploded")
	})
	require.NoError(t, err)
	partial, err := r.Submit(ctx, KindBacktest, nil, func(context.Context, ProgressFunc) (any, Status, error) {
		return map[string]string{"status": "partial"}, StatusPartial, errors.New("canceled before fold 3")
	})
	require.NoError(t, err)
	r.Wait()

	got, err := r.Get(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "fit exploded", got.Error)

	got, err = r.Get(ctx, partial.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, got.Status)
	assert.NotEmpty(t, got.Result)
	assert.Contains(t, got.Error, "fold 3")
}

func TestRunnerCancel(t *testing.T) {
	ctx := context.Background()
	r := NewRunner(NewMemoryStore(), 1, nil, zerolog.Nop())
	started := make(chan struct{})

	job, err := r.Submit(ctx, KindBacktest, nil, func(ctx context.Context, _ ProgressFunc) (any, Status, error) {
		close(started)
		<-ctx.Done()
		return nil, "", ctx.Err()
	})
	require.NoError(t, err)
	<-started
	require.NoError(t, r.Cancel(ctx, job.ID))
	r.Wait()

	got, err := r.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, got.Status)
	assert.True(t, got.Status.Terminal())
}

func TestRunnerShutdown(t *testing.T) {
	r := NewRunner(NewMemoryStore(), 1, nil, zerolog.Nop())
	started := make(chan struct{})
	_, err := r.Submit(context.Background(), KindTrain, nil, func(ctx context.Context, _ ProgressFunc) (any, Status, error) {
		close(started)
		<-ctx.Done()
		return nil, "", ctx.Err()
	})
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, r.Shutdown(ctx))
}
