package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/stockledger/internal/jobs"
	"github.com/odyssey-erp/stockledger/internal/inventory"
)

const defaultKeyRetention = 7 * 24 * time.Hour

// KeyCleaner drops processed idempotency keys older than a retention window.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// CostRepairer rebuilds item cost figures.
type CostRepairer interface {
	ListItems(ctx context.Context, activeOnly bool) ([]inventory.Item, error)
	RecalculateCost(ctx context.Context, itemID string) (inventory.Item, error)
}

// MaintenanceJobs groups housekeeping handlers.
type MaintenanceJobs struct {
	Keys    KeyCleaner
	Costs   CostRepairer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// HandleIdempotencyCleanup removes expired idempotency keys.
func (j *MaintenanceJobs) HandleIdempotencyCleanup(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Keys == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	retention := time.Duration(payload.RetentionHours) * time.Hour
	if retention <= 0 {
		retention = defaultKeyRetention
	}
	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	removed, err := j.Keys.Cleanup(ctx, retention)
	if err != nil {
		return err
	}
	j.logger().Info("idempotency cleanup", slog.Int64("removed", removed), slog.Duration("retention", retention))
	return nil
}

// HandleCostRecalculate repairs one item, or every item when the payload
// names none. A locked item is retried later by asynq.
func (j *MaintenanceJobs) HandleCostRecalculate(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Costs == nil {
		return errors.New("cost recalculate: handler not configured")
	}
	var payload CostRecalculatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskCostRecalculate)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	ids := []string{payload.ItemID}
	if payload.ItemID == "" {
		items, err := j.Costs.ListItems(ctx, false)
		if err != nil {
			return err
		}
		ids = ids[:0]
		for _, item := range items {
			ids = append(ids, item.ID)
		}
	}
	for _, id := range ids {
		item, err := j.Costs.RecalculateCost(ctx, id)
		if errors.Is(err, inventory.ErrNotFound) {
			j.logger().Warn("cost recalculate: item missing", slog.String("item_id", id))
			return asynq.SkipRetry
		}
		if err != nil {
			return err
		}
		j.logger().Debug("cost recalculated",
			slog.String("item_id", id),
			slog.Float64("avg_cost", item.AvgCost),
			slog.Float64("last_cost", item.LastCost),
		)
	}
	j.logger().Info("cost recalculate", slog.Int("items", len(ids)))
	return nil
}

func (j *MaintenanceJobs) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
