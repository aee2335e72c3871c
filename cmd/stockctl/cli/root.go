// Package cli implements the stockctl operator commands.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
)

// JobQueue enqueues and inspects background jobs.
type JobQueue interface {
	Trigger(ctx context.Context, name string, opts TriggerOptions) (*asynq.TaskInfo, error)
	InspectQueue(ctx context.Context) (QueueStats, error)
	ListScheduled(ctx context.Context, size int) ([]*asynq.TaskInfo, error)
}

// LedgerReader answers stock and valuation queries.
type LedgerReader interface {
	StockLevel(ctx context.Context, itemID, warehouseID string) (float64, error)
	Valuation(ctx context.Context, method inventory.ValuationMethod) (inventory.Valuation, error)
	LowStockItems(ctx context.Context) ([]inventory.LowStockRow, error)
}

// EventSource streams raw event payloads until ctx ends.
type EventSource interface {
	Subscribe(ctx context.Context, fn func(context.Context, []byte)) error
}

// SchemaMigrator applies pending schema migrations.
type SchemaMigrator interface {
	Migrate(ctx context.Context) (db.MigrationStatus, error)
}

// Runtime bundles the collaborators a command may need. Members a command
// does not use may be nil.
type Runtime struct {
	Jobs   JobQueue
	Ledger LedgerReader
	Events EventSource
	Schema SchemaMigrator
	Close  func() error
}

// Opener builds a Runtime on demand so commands only connect when they run.
type Opener func(ctx context.Context) (*Runtime, error)

// NewRootCommand assembles the stockctl command tree.
func NewRootCommand(open Opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "stockctl",
		Short:         "Operate the stock ledger: jobs, stock levels, valuation and events",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Bool("json", false, "Print machine readable JSON")
	root.AddCommand(newJobsCommand(open), newStockCommand(open), newValuationCommand(open), newEventsCommand(open), newMigrateCommand(open))
	return root
}

func withRuntime(cmd *cobra.Command, open Opener, fn func(*Runtime) error) error {
	rt, err := open(cmd.Context())
	if err != nil {
		return err
	}
	if rt.Close != nil {
		defer func() { _ = rt.Close() }()
	}
	return fn(rt)
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newJobsCommand(open Opener) *cobra.Command {
	jobsCmd := &cobra.Command{Use: "jobs", Short: "Trigger and inspect background jobs"}

	var opts TriggerOptions
	trigger := &cobra.Command{
		Use:   "trigger <task>",
		Short: "Enqueue a job, e.g. inventory:valuation_snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, open, func(rt *Runtime) error {
				if rt.Jobs == nil {
					return errors.New("job queue not configured")
				}
				info, err := rt.Jobs.Trigger(cmd.Context(), args[0], opts)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(cmd.OutOrStdout(), map[string]string{"id": info.ID, "type": info.Type, "queue": info.Queue})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s (%s) on %s\n", info.Type, info.ID, info.Queue)
				return nil
			})
		},
	}
	trigger.Flags().StringVar(&opts.ItemID, "item", "", "Item id for inventory:cost_recalculate (all items when empty)")
	trigger.Flags().StringSliceVar(&opts.Methods, "method", nil, "Valuation methods for inventory:valuation_snapshot")
	trigger.Flags().DurationVar(&opts.Retention, "retention", 0, "Key retention for inventory:idempotency_cleanup")

	inspect := &cobra.Command{
		Use:   "inspect",
		Short: "Show queue depth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, open, func(rt *Runtime) error {
				if rt.Jobs == nil {
					return errors.New("job queue not configured")
				}
				stats, err := rt.Jobs.InspectQueue(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(cmd.OutOrStdout(), stats)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
					stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
				return nil
			})
		},
	}

	var size int
	scheduled := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, open, func(rt *Runtime) error {
				if rt.Jobs == nil {
					return errors.New("job queue not configured")
				}
				tasks, err := rt.Jobs.ListScheduled(cmd.Context(), size)
				if err != nil {
					return err
				}
				for _, t := range tasks {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
	scheduled.Flags().IntVar(&size, "size", 10, "Maximum number of tasks to list")

	jobsCmd.AddCommand(trigger, inspect, scheduled)
	return jobsCmd
}

func newStockCommand(open Opener) *cobra.Command {
	stockCmd := &cobra.Command{Use: "stock", Short: "Query stock levels"}

	var itemID, warehouseID string
	level := &cobra.Command{
		Use:   "level",
		Short: "Print on-hand quantity for an item, optionally in one warehouse",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, open, func(rt *Runtime) error {
				if rt.Ledger == nil {
					return errors.New("ledger not configured")
				}
				qty, err := rt.Ledger.StockLevel(cmd.Context(), itemID, warehouseID)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(cmd.OutOrStdout(), map[string]any{"item_id": itemID, "warehouse_id": warehouseID, "quantity": qty})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%.2f\n", qty)
				return nil
			})
		},
	}
	level.Flags().StringVar(&itemID, "item", "", "Item id")
	level.Flags().StringVar(&warehouseID, "warehouse", "", "Warehouse id (all warehouses when empty)")
	_ = level.MarkFlagRequired("item")

	low := &cobra.Command{
		Use:   "low",
		Short: "List items at or below their reorder point",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, open, func(rt *Runtime) error {
				if rt.Ledger == nil {
					return errors.New("ledger not configured")
				}
				rows, err := rt.Ledger.LowStockItems(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(cmd.OutOrStdout(), rows)
				}
				for _, row := range rows {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%.2f\treorder=%.2f\tdeficit=%.2f\n",
						row.ItemNumber, row.Quantity, row.ReorderPoint, row.Deficit)
				}
				return nil
			})
		},
	}

	stockCmd.AddCommand(level, low)
	return stockCmd
}

func newValuationCommand(open Opener) *cobra.Command {
	var method string
	cmd := &cobra.Command{
		Use:   "valuation",
		Short: "Value on-hand inventory by average, fifo or lifo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m := inventory.ValuationMethod(strings.ToLower(method))
			if !m.Valid() {
				return fmt.Errorf("unknown valuation method %q", method)
			}
			return withRuntime(cmd, open, func(rt *Runtime) error {
				if rt.Ledger == nil {
					return errors.New("ledger not configured")
				}
				report, err := rt.Ledger.Valuation(cmd.Context(), m)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(cmd.OutOrStdout(), report)
				}
				for _, row := range report.Rows {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%.2f\t%.2f\t%.2f\n", row.ItemNumber, row.Quantity, row.UnitCost, row.Value)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "total (%s)\t%.2f\n", report.Method, report.TotalValue)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&method, "method", string(inventory.ValuationAverage), "Valuation method: average, fifo or lifo")
	return cmd
}

func newEventsCommand(open Opener) *cobra.Command {
	eventsCmd := &cobra.Command{Use: "events", Short: "Observe ledger notifications"}

	var (
		count   int
		filter  string
		timeout time.Duration
	)
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print events as they are published",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, open, func(rt *Runtime) error {
				if rt.Events == nil {
					return errors.New("event source not configured")
				}
				ctx, cancel := context.WithCancel(cmd.Context())
				defer cancel()
				if timeout > 0 {
					ctx, cancel = context.WithTimeout(ctx, timeout)
					defer cancel()
				}
				seen := 0
				return rt.Events.Subscribe(ctx, func(_ context.Context, payload []byte) {
					if filter != "" {
						var evt inventory.Event
						if err := json.Unmarshal(payload, &evt); err != nil || !strings.HasPrefix(evt.Type, filter) {
							return
						}
					}
					fmt.Fprintln(cmd.OutOrStdout(), string(payload))
					seen++
					if count > 0 && seen >= count {
						cancel()
					}
				})
			})
		},
	}
	tail.Flags().IntVar(&count, "count", 0, "Stop after this many events (0 = until interrupted)")
	tail.Flags().StringVar(&filter, "type", "", "Only print events whose type starts with this prefix")
	tail.Flags().DurationVar(&timeout, "timeout", 0, "Stop after this duration")

	eventsCmd.AddCommand(tail)
	return eventsCmd
}

func newMigrateCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, open, func(rt *Runtime) error {
				if rt.Schema == nil {
					return errors.New("schema migrator not configured")
				}
				status, err := rt.Schema.Migrate(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(cmd.OutOrStdout(), status)
				}
				if !status.Changed() {
					fmt.Fprintf(cmd.OutOrStdout(), "schema up to date at version %d\n", status.To)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "migrated schema from version %d to %d\n", status.From, status.To)
				return nil
			})
		},
	}
}
