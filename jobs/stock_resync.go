package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	jobmetrics "github.com/odyssey-erp/odyssey-billing/internal/jobs"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// StockResyncer rebuilds the cached quantity of one product.
type StockResyncer interface {
	Resync(ctx context.Context, companyID, productID string) (decimal.Decimal, error)
}

// StockResyncJob repairs product stock projections that drifted after a failed update.
type StockResyncJob struct {
	Ledger  StockResyncer
	Locker  *redislock.Client
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	LockTTL time.Duration
}

// NewStockResyncJob wires the resync handler.
func NewStockResyncJob(ledger StockResyncer, locker *redislock.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockResyncJob {
	return &StockResyncJob{Ledger: ledger, Locker: locker, Logger: logger, Metrics: metrics, LockTTL: 30 * time.Second}
}

// Handle processes TaskStockResync tasks. Only one rebuild per product runs at a
// time; a task that cannot take the lock is retried by the queue.
func (j *StockResyncJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Ledger == nil {
		return errors.New("stock resync: handler not configured")
	}
	var payload StockResyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.CompanyID == "" || payload.ProductID == "" {
		return fmt.Errorf("stock resync: bad payload: %w", asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskStockResync)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("company_id", payload.CompanyID), slog.String("product_id", payload.ProductID))
	if j.Locker != nil {
		lock, err := j.Locker.Obtain(ctx, shared.StockResyncLockKey(payload.CompanyID, payload.ProductID), j.lockTTL(), nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			logger.Info("stock resync already running")
			return fmt.Errorf("stock resync: %w", err)
		}
		if err != nil {
			return fmt.Errorf("stock resync: obtain lock: %w", err)
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				logger.Warn("release stock resync lock", slog.Any("error", err))
			}
		}()
	}

	qty, err := j.Ledger.Resync(ctx, payload.CompanyID, payload.ProductID)
	if err != nil {
		logger.Error("stock resync", slog.Any("error", err))
		return err
	}
	j.metrics().AddItems(TaskStockResync, 1)
	logger.Info("stock resynced", slog.String("quantity", qty.String()))
	return nil
}

func (j *StockResyncJob) lockTTL() time.Duration {
	if j.LockTTL <= 0 {
		return 30 * time.Second
	}
	return j.LockTTL
}

func (j *StockResyncJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *StockResyncJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
