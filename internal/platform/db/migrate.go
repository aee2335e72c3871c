package db

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationStatus reports the schema version before and after a run.
type MigrationStatus struct {
	From uint `json:"from"`
	To   uint `json:"to"`
}

// Changed reports whether the run applied anything.
func (s MigrationStatus) Changed() bool { return s.From != s.To }

// Migrate applies every pending up migration in files against dsn.
func Migrate(ctx context.Context, dsn string, files fs.FS) (MigrationStatus, error) {
	src, err := iofs.New(files, ".")
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("platform/db: open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(dsn))
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("platform/db: init migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.GracefulStop <- true
		case <-done:
		}
	}()

	var status MigrationStatus
	if status.From, err = version(m); err != nil {
		return status, err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return status, fmt.Errorf("platform/db: migrate up: %w", err)
	}
	status.To, err = version(m)
	return status, err
}

func version(m *migrate.Migrate) (uint, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("platform/db: read version: %w", err)
	}
	if dirty {
		return v, fmt.Errorf("platform/db: schema version %d is dirty", v)
	}
	return v, nil
}

// migrateURL rewrites a libpq style URL to the scheme the pgx/v5 driver registers.
func migrateURL(dsn string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}
