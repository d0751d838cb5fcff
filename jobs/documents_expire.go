package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-billing/internal/jobs"
)

// DocumentExpirer expires quotations whose validity has passed.
type DocumentExpirer interface {
	ExpireStale(ctx context.Context, asOf time.Time) (int, error)
}

// ExpireDocumentsJob runs the nightly quotation expiry.
type ExpireDocumentsJob struct {
	Documents DocumentExpirer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewExpireDocumentsJob wires the expiry handler.
func NewExpireDocumentsJob(documents DocumentExpirer, logger *slog.Logger, metrics *jobmetrics.Metrics) *ExpireDocumentsJob {
	return &ExpireDocumentsJob{
		Documents: documents,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskDocumentsExpire tasks.
func (j *ExpireDocumentsJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Documents == nil {
		return errors.New("documents expire: handler not configured")
	}
	var payload DocumentsExpirePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	asOf := payload.ScheduledFor
	if asOf.IsZero() {
		asOf = j.now()
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskDocumentsExpire)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	expired, err := j.Documents.ExpireStale(ctx, asOf)
	if err != nil {
		logger.Error("expire documents", slog.Any("error", err))
		return err
	}
	metrics.AddItems(TaskDocumentsExpire, expired)
	logger.Info("expired documents", slog.Int("count", expired), slog.Time("as_of", asOf))
	return nil
}

func (j *ExpireDocumentsJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
