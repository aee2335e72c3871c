package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
)

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Handlers    []TaskHandler
	Cron        []CronRegistration
}

// InventoryHandlers lists the task handlers served by the stock ledger worker.
func InventoryHandlers(reports *InventoryJobs, maintenance *MaintenanceJobs) []TaskHandler {
	return []TaskHandler{
		{Type: TaskValuationSnapshot, Handler: reports.HandleValuationSnapshot},
		{Type: TaskLowStockScan, Handler: reports.HandleLowStockScan},
		{Type: TaskIdempotencyCleanup, Handler: maintenance.HandleIdempotencyCleanup},
		{Type: TaskCostRecalculate, Handler: maintenance.HandleCostRecalculate},
	}
}

// ScheduleSpecs holds the standard five-field cron expressions for the
// periodic inventory jobs. Empty fields fall back to DefaultSpecs.
type ScheduleSpecs struct {
	Valuation string
	LowStock  string
	Cleanup   string
}

// DefaultSpecs runs the snapshot nightly, the low-stock scan hourly and key
// cleanup once a day.
var DefaultSpecs = ScheduleSpecs{
	Valuation: "0 1 * * *",
	LowStock:  "0 * * * *",
	Cleanup:   "30 3 * * *",
}

// DefaultSchedule builds the cron registrations for the periodic inventory
// jobs. Every spec is parsed before anything is registered.
func DefaultSchedule(now time.Time, keyRetention time.Duration, specs ScheduleSpecs) ([]CronRegistration, error) {
	snapshot, err := NewValuationSnapshotTask(now)
	if err != nil {
		return nil, err
	}
	lowStock, err := NewLowStockScanTask(now)
	if err != nil {
		return nil, err
	}
	cleanup, err := NewIdempotencyCleanupTask(keyRetention)
	if err != nil {
		return nil, err
	}
	regs := []CronRegistration{
		{Spec: orDefault(specs.Valuation, DefaultSpecs.Valuation), Task: snapshot},
		{Spec: orDefault(specs.LowStock, DefaultSpecs.LowStock), Task: lowStock},
		{Spec: orDefault(specs.Cleanup, DefaultSpecs.Cleanup), Task: cleanup},
	}
	for _, reg := range regs {
		if _, err := cron.ParseStandard(reg.Spec); err != nil {
			return nil, fmt.Errorf("jobs: schedule for %s: %w", reg.Task.Type(), err)
		}
	}
	return regs, nil
}

func orDefault(spec, fallback string) string {
	if spec == "" {
		return fallback
	}
	return spec
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueDefault: 1,
		},
		Logger: asynqLogger{logger: cfg.Logger},
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	client := asynq.NewClient(redisOpts)
	return &Client{client: client}, nil
}

// Enqueue submits a prepared task to the default queue.
func (c *Client) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs client not initialised")
	}
	opts = append([]asynq.Option{asynq.Queue(QueueDefault)}, opts...)
	return c.client.EnqueueContext(ctx, task, opts...)
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// Handler exposes HTTP endpoints for job observability.
type Handler struct {
	inspector *asynq.Inspector
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector *asynq.Inspector, logger *slog.Logger) *Handler {
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"queue":"default","pending":0}`))
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	pending := 0
	queueName := QueueDefault
	if info != nil {
		pending = int(info.Pending)
		queueName = info.Queue
	}
	_, _ = w.Write([]byte(`{"queue":"` + queueName + `","pending":` + itoa(pending) + `}`))
}

func itoa(i int) string {
	return strconv.FormatInt(int64(i), 10)
}

// asynqLogger routes asynq's internal logging through slog. Fatal logs and
// then terminates the process through exit, os.Exit when unset.
type asynqLogger struct {
	logger *slog.Logger
	exit   func(int)
}

func (l asynqLogger) log() *slog.Logger {
	if l.logger != nil {
		return l.logger.With(slog.String("component", "asynq"))
	}
	return slog.Default()
}

func (l asynqLogger) Debug(args ...interface{}) { l.log().Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log().Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log().Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log().Error(fmt.Sprint(args...)) }

func (l asynqLogger) Fatal(args ...interface{}) {
	l.log().Error(fmt.Sprint(args...), slog.Bool("fatal", true))
	exit := l.exit
	if exit == nil {
		exit = os.Exit
	}
	exit(1)
}
