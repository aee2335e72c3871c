package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskValuationSnapshot computes and broadcasts inventory valuations.
	TaskValuationSnapshot = "inventory:valuation_snapshot"
	// TaskLowStockScan reports items at or below their reorder point.
	TaskLowStockScan = "inventory:low_stock_scan"
	// TaskIdempotencyCleanup drops expired idempotency keys.
	TaskIdempotencyCleanup = "inventory:idempotency_cleanup"
	// TaskCostRecalculate rebuilds item cost figures from receipts.
	TaskCostRecalculate = "inventory:cost_recalculate"
)

// ValuationSnapshotPayload selects the methods to compute. Empty means all.
type ValuationSnapshotPayload struct {
	Methods      []string  `json:"methods,omitempty"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewValuationSnapshotTask constructs an Asynq task for the valuation snapshot.
func NewValuationSnapshotTask(at time.Time, methods ...string) (*asynq.Task, error) {
	body, err := json.Marshal(ValuationSnapshotPayload{Methods: methods, ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskValuationSnapshot, body, asynq.Queue(QueueDefault)), nil
}

// LowStockScanPayload carries scheduling metadata.
type LowStockScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLowStockScanTask constructs an Asynq task for the low stock scan.
func NewLowStockScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload sets how long processed keys are retained.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs an Asynq task for key cleanup.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention.Hours())})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// CostRecalculatePayload names one item, or every item when ItemID is empty.
type CostRecalculatePayload struct {
	ItemID string `json:"item_id,omitempty"`
}

// NewCostRecalculateTask constructs an Asynq task for cost repair.
func NewCostRecalculateTask(itemID string) (*asynq.Task, error) {
	body, err := json.Marshal(CostRecalculatePayload{ItemID: itemID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCostRecalculate, body, asynq.Queue(QueueDefault)), nil
}
