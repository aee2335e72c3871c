package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/jobs"
)

type stubQueue struct {
	triggered string
	opts      TriggerOptions
	err       error
}

func (s *stubQueue) Trigger(_ context.Context, name string, opts TriggerOptions) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.triggered, s.opts = name, opts
	return &asynq.TaskInfo{ID: "t-1", Type: name, Queue: jobs.QueueDefault}, nil
}

func (s *stubQueue) InspectQueue(context.Context) (QueueStats, error) {
	return QueueStats{Queue: jobs.QueueDefault, Pending: 3, Retry: 1}, nil
}

func (s *stubQueue) ListScheduled(context.Context, int) ([]*asynq.TaskInfo, error) {
	return []*asynq.TaskInfo{{ID: "s-1", Type: jobs.TaskLowStockScan, NextProcessAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}}, nil
}

type stubLedger struct {
	item, warehouse string
}

func (s *stubLedger) StockLevel(_ context.Context, itemID, warehouseID string) (float64, error) {
	s.item, s.warehouse = itemID, warehouseID
	return 120, nil
}

func (s *stubLedger) Valuation(_ context.Context, method inventory.ValuationMethod) (inventory.Valuation, error) {
	return inventory.Valuation{
		Method:     method,
		Rows:       []inventory.ValuationRow{{ItemNumber: "PIPE-2", Quantity: 120, UnitCost: 12.5, Value: 1500}},
		TotalValue: 1500,
	}, nil
}

func (s *stubLedger) LowStockItems(context.Context) ([]inventory.LowStockRow, error) {
	return []inventory.LowStockRow{{ItemNumber: "BOLT", Quantity: 2, ReorderPoint: 10, Deficit: 8}}, nil
}

type stubEvents struct {
	payloads []string
}

func (s *stubEvents) Subscribe(ctx context.Context, fn func(context.Context, []byte)) error {
	for _, p := range s.payloads {
		if ctx.Err() != nil {
			return nil
		}
		fn(ctx, []byte(p))
	}
	<-ctx.Done()
	return nil
}

type stubSchema struct {
	status db.MigrationStatus
}

func (s stubSchema) Migrate(context.Context) (db.MigrationStatus, error) { return s.status, nil }

func run(t *testing.T, rt *Runtime, args ...string) (string, error) {
	t.Helper()
	closed := false
	rt.Close = func() error { closed = true; return nil }
	root := NewRootCommand(func(context.Context) (*Runtime, error) { return rt, nil })
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	if err == nil {
		require.True(t, closed, "runtime must be closed")
	}
	return out.String(), err
}

func TestJobsTrigger(t *testing.T) {
	queue := &stubQueue{}
	out, err := run(t, &Runtime{Jobs: queue}, "jobs", "trigger", jobs.TaskCostRecalculate, "--item", "item-9")
	require.NoError(t, err)
	require.Equal(t, jobs.TaskCostRecalculate, queue.triggered)
	require.Equal(t, "item-9", queue.opts.ItemID)
	require.Contains(t, out, "enqueued inventory:cost_recalculate (t-1)")

	_, err = run(t, &Runtime{Jobs: queue}, "jobs", "trigger", jobs.TaskValuationSnapshot, "--method", "fifo,lifo")
	require.NoError(t, err)
	require.Equal(t, []string{"fifo", "lifo"}, queue.opts.Methods)

	_, err = run(t, &Runtime{Jobs: &stubQueue{err: errors.New("redis down")}}, "jobs", "trigger", jobs.TaskLowStockScan)
	require.ErrorContains(t, err, "redis down")
}

func TestJobsInspectAndScheduled(t *testing.T) {
	out, err := run(t, &Runtime{Jobs: &stubQueue{}}, "jobs", "inspect", "--json")
	require.NoError(t, err)
	var stats QueueStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	require.Equal(t, 3, stats.Pending)

	out, err = run(t, &Runtime{Jobs: &stubQueue{}}, "jobs", "scheduled")
	require.NoError(t, err)
	require.Contains(t, out, "s-1\tinventory:low_stock_scan\t2024-03-01T09:00:00Z")
}

func TestStockCommands(t *testing.T) {
	ledger := &stubLedger{}
	out, err := run(t, &Runtime{Ledger: ledger}, "stock", "level", "--item", "a", "--warehouse", "w")
	require.NoError(t, err)
	require.Equal(t, "120.00\n", out)
	require.Equal(t, "a", ledger.item)
	require.Equal(t, "w", ledger.warehouse)

	_, err = run(t, &Runtime{Ledger: ledger}, "stock", "level")
	require.Error(t, err)

	out, err = run(t, &Runtime{Ledger: ledger}, "stock", "low")
	require.NoError(t, err)
	require.Contains(t, out, "BOLT\t2.00\treorder=10.00\tdeficit=8.00")
}

func TestValuationCommand(t *testing.T) {
	out, err := run(t, &Runtime{Ledger: &stubLedger{}}, "valuation", "--method", "FIFO")
	require.NoError(t, err)
	require.Contains(t, out, "PIPE-2\t120.00\t12.50\t1500.00")
	require.Contains(t, out, "total (fifo)\t1500.00")

	_, err = run(t, &Runtime{Ledger: &stubLedger{}}, "valuation", "--method", "median")
	require.ErrorContains(t, err, "unknown valuation method")
}

func TestEventsTail(t *testing.T) {
	events := &stubEvents{payloads: []string{
		`{"type":"inventory.received","entity_id":"t1"}`,
		`{"type":"item.created","entity_id":"i1"}`,
		`{"type":"inventory.issued","entity_id":"t2"}`,
	}}
	out, err := run(t, &Runtime{Events: events}, "events", "tail", "--type", "inventory.", "--count", "2")
	require.NoError(t, err)
	require.Equal(t, events.payloads[0]+"\n"+events.payloads[2]+"\n", out)
}

func TestBuildTask(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, name := range []string{jobs.TaskValuationSnapshot, jobs.TaskLowStockScan, jobs.TaskIdempotencyCleanup, jobs.TaskCostRecalculate} {
		task, err := BuildTask(name, TriggerOptions{}, now)
		require.NoError(t, err)
		require.Equal(t, name, task.Type())
	}
	_, err := BuildTask("email:send", TriggerOptions{}, now)
	require.ErrorContains(t, err, "unsupported job")
}

func TestMigrateCommand(t *testing.T) {
	out, err := run(t, &Runtime{Schema: stubSchema{status: db.MigrationStatus{From: 0, To: 1}}}, "migrate")
	require.NoError(t, err)
	require.Equal(t, "migrated schema from version 0 to 1\n", out)

	out, err = run(t, &Runtime{Schema: stubSchema{status: db.MigrationStatus{From: 1, To: 1}}}, "migrate", "--json")
	require.NoError(t, err)
	require.JSONEq(t, `{"from":1,"to":1}`, out)

	_, err = run(t, &Runtime{}, "migrate")
	require.ErrorContains(t, err, "schema migrator not configured")
}
