package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries stock projection repairs.
	QueueCritical = "critical"

	// TaskStockResync rebuilds a product's cached stock quantity from the ledger.
	TaskStockResync = "stock:resync"
	// TaskDocumentsExpire marks quotations past their validity as expired.
	TaskDocumentsExpire = "documents:expire"
)

// StockResyncPayload names the product to rebuild.
type StockResyncPayload struct {
	CompanyID string `json:"company_id"`
	ProductID string `json:"product_id"`
}

// NewStockResyncTask constructs a resync task. Duplicate requests for the same
// product collapse while one is queued.
func NewStockResyncTask(payload StockResyncPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockResync, body,
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(10),
		asynq.Unique(time.Minute),
	), nil
}

// DocumentsExpirePayload carries scheduling metadata.
type DocumentsExpirePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewDocumentsExpireTask constructs the nightly expiry task.
func NewDocumentsExpireTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(DocumentsExpirePayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDocumentsExpire, body, asynq.Queue(QueueDefault)), nil
}
