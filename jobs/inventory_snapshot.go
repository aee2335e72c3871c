package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/stockledger/internal/jobs"
	"github.com/odyssey-erp/stockledger/internal/inventory"
)

// InventoryReports is the slice of the inventory service used by the jobs.
type InventoryReports interface {
	Valuation(ctx context.Context, method inventory.ValuationMethod) (inventory.Valuation, error)
	LowStockItems(ctx context.Context) ([]inventory.LowStockRow, error)
}

// InventoryJobs runs the scheduled inventory reports and broadcasts results.
type InventoryJobs struct {
	Reports InventoryReports
	Events  inventory.EventPublisher
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewInventoryJobs initialises the inventory report handlers.
func NewInventoryJobs(reports InventoryReports, events inventory.EventPublisher, logger *slog.Logger, metrics *jobmetrics.Metrics) *InventoryJobs {
	return &InventoryJobs{
		Reports: reports,
		Events:  events,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

var allMethods = []inventory.ValuationMethod{inventory.ValuationAverage, inventory.ValuationFIFO, inventory.ValuationLIFO}

// HandleValuationSnapshot computes each requested valuation and publishes a
// valuation.snapshot event per method.
func (j *InventoryJobs) HandleValuationSnapshot(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Reports == nil {
		return errors.New("valuation snapshot: handler not configured")
	}
	var payload ValuationSnapshotPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	methods := allMethods
	if len(payload.Methods) > 0 {
		methods = make([]inventory.ValuationMethod, 0, len(payload.Methods))
		for _, m := range payload.Methods {
			method := inventory.ValuationMethod(m)
			if !method.Valid() {
				j.logger().Warn("skip unknown valuation method", slog.String("method", m))
				return asynq.SkipRetry
			}
			methods = append(methods, method)
		}
	}

	tracker := j.Metrics.Track(TaskValuationSnapshot)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	for _, method := range methods {
		report, err := j.Reports.Valuation(ctx, method)
		if err != nil {
			j.logger().Error("valuation failed", slog.String("method", string(method)), slog.Any("error", err))
			return fmt.Errorf("valuation snapshot %s: %w", method, err)
		}
		j.Metrics.SetValuation(string(method), report.TotalValue)
		j.publish(ctx, inventory.EventValuationSnapshot, string(method), report)
		j.logger().Info("valuation snapshot",
			slog.String("method", string(method)),
			slog.Int("items", len(report.Rows)),
			slog.Float64("total_value", report.TotalValue),
		)
	}
	return nil
}

// HandleLowStockScan publishes an inventory.low_stock event per item at or
// below its reorder point.
func (j *InventoryJobs) HandleLowStockScan(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Reports == nil {
		return errors.New("low stock scan: handler not configured")
	}
	tracker := j.Metrics.Track(TaskLowStockScan)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	rows, err := j.Reports.LowStockItems(ctx)
	if err != nil {
		j.logger().Error("low stock scan failed", slog.Any("error", err))
		return err
	}
	j.Metrics.SetLowStock(len(rows))
	for _, row := range rows {
		j.publish(ctx, inventory.EventLowStock, row.ItemID, row)
	}
	j.logger().Info("low stock scan", slog.Int("items", len(rows)))
	return nil
}

func (j *InventoryJobs) publish(ctx context.Context, eventType, entityID string, payload any) {
	if j.Events == nil {
		return
	}
	evt := inventory.Event{Type: eventType, EntityID: entityID, OccurredAt: j.now(), Payload: payload}
	if err := j.Events.Publish(ctx, evt); err != nil {
		j.logger().Warn("publish job event", slog.String("type", eventType), slog.Any("error", err))
	}
}

func (j *InventoryJobs) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (j *InventoryJobs) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
