package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/stockledger/cmd/stockctl/cli"
	"github.com/odyssey-erp/stockledger/internal/app"
	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/platform/cache"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/platform/eventbus"
	"github.com/odyssey-erp/stockledger/migrations"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping stockctl")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(openRuntime).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "stockctl:", err)
		os.Exit(1)
	}
}

// openRuntime connects to Postgres and Redis using the server configuration.
func openRuntime(ctx context.Context) (*cli.Runtime, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
	if err != nil {
		return nil, err
	}
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		pool.Close()
		return nil, err
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, err
	}

	service := inventory.NewService(inventory.NewRepository(pool), inventory.ServiceDeps{Logger: logger})
	return &cli.Runtime{
		Jobs:   jobsCLI,
		Ledger: service,
		Events: eventbus.New(redisClient, cfg.EventsChannel),
		Schema: schema{dsn: cfg.PGDSN},
		Close: func() error {
			pool.Close()
			return errors.Join(jobsCLI.Close(), redisClient.Close())
		},
	}, nil
}

type schema struct{ dsn string }

func (s schema) Migrate(ctx context.Context) (db.MigrationStatus, error) {
	return db.Migrate(ctx, s.dsn, migrations.Files)
}
