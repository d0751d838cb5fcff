package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/odyssey-billing/internal/jobs"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

type fakeResyncer struct {
	calls []string
	err   error
}

func (f *fakeResyncer) Resync(_ context.Context, companyID, productID string) (decimal.Decimal, error) {
	f.calls = append(f.calls, companyID+"/"+productID)
	return decimal.NewFromInt(7), f.err
}

func newLocker(t *testing.T) *redislock.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redislock.New(client)
}

func resyncTask(t *testing.T, companyID, productID string) *asynq.Task {
	t.Helper()
	task, err := NewStockResyncTask(StockResyncPayload{CompanyID: companyID, ProductID: productID})
	require.NoError(t, err)
	return task
}

func TestStockResyncRunsUnderLock(t *testing.T) {
	locker := newLocker(t)
	ledger := &fakeResyncer{}
	job := NewStockResyncJob(ledger, locker, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	ctx := context.Background()

	require.NoError(t, job.Handle(ctx, resyncTask(t, "c1", "p1")))
	require.Equal(t, []string{"c1/p1"}, ledger.calls)

	// lock is released after the run
	lock, err := locker.Obtain(ctx, shared.StockResyncLockKey("c1", "p1"), time.Second, nil)
	require.NoError(t, err)

	err = job.Handle(ctx, resyncTask(t, "c1", "p1"))
	require.ErrorIs(t, err, redislock.ErrNotObtained)
	require.Len(t, ledger.calls, 1)

	// other products are not blocked
	require.NoError(t, job.Handle(ctx, resyncTask(t, "c1", "p2")))
	require.NoError(t, lock.Release(ctx))
}

func TestStockResyncPropagatesFailure(t *testing.T) {
	boom := errors.New("boom")
	job := NewStockResyncJob(&fakeResyncer{err: boom}, newLocker(t), nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	require.ErrorIs(t, job.Handle(context.Background(), resyncTask(t, "c1", "p1")), boom)
}

func TestStockResyncRejectsBadPayload(t *testing.T) {
	job := NewStockResyncJob(&fakeResyncer{}, nil, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	err := job.Handle(context.Background(), asynq.NewTask(TaskStockResync, []byte(`{"company_id":"c1"}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type fakeExpirer struct {
	asOf time.Time
	n    int
}

func (f *fakeExpirer) ExpireStale(_ context.Context, asOf time.Time) (int, error) {
	f.asOf = asOf
	return f.n, nil
}

func TestExpireDocuments(t *testing.T) {
	expirer := &fakeExpirer{n: 2}
	job := NewExpireDocumentsJob(expirer, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	fixed := time.Date(2025, 3, 1, 1, 0, 0, 0, time.UTC)
	job.clock = func() time.Time { return fixed }

	// cron tasks carry no timestamp
	task, err := NewDocumentsExpireTask(time.Time{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, fixed, expirer.asOf)

	at := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	task, err = NewDocumentsExpireTask(at)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.True(t, at.Equal(expirer.asOf))
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, nil).MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out []queueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 2)
	require.Equal(t, QueueCritical, out[0].Queue)
}
