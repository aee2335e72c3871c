package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	defaultTrailLimit = 100
	maxTrailLimit     = 500
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID  string         `json:"actor_id"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
	At       time.Time      `json:"at"`
}

// AuditLogger appends to and reads from audit_logs.
type AuditLogger struct {
	db Querier
}

// NewAuditLogger returns an AuditLogger backed by db.
func NewAuditLogger(db Querier) *AuditLogger {
	return &AuditLogger{db: db}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.db == nil {
		return errors.New("audit logger not initialised")
	}
	if err := log.validate(); err != nil {
		return err
	}
	var meta []byte
	if len(log.Meta) > 0 {
		var err error
		if meta, err = json.Marshal(log.Meta); err != nil {
			return fmt.Errorf("audit meta: %w", err)
		}
	}
	var at any
	if !log.At.IsZero() {
		at = log.At.UTC()
	}
	_, err := l.db.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`, log.ActorID, log.Action, log.Entity, log.EntityID, meta, at)
	return err
}

// ListByEntity returns the trail of one entity, oldest first.
func (l *AuditLogger) ListByEntity(ctx context.Context, entity, entityID string, limit int) ([]AuditLog, error) {
	if l == nil || l.db == nil {
		return nil, errors.New("audit logger not initialised")
	}
	if limit <= 0 || limit > maxTrailLimit {
		limit = defaultTrailLimit
	}
	rows, err := l.db.Query(ctx, `SELECT actor_id, action, entity, entity_id, meta, occurred_at
FROM audit_logs WHERE entity=$1 AND entity_id=$2 ORDER BY occurred_at ASC, id ASC LIMIT $3`, entity, entityID, limit)
	if err != nil {
		return nil, err
	}
	logs, err := pgx.CollectRows(rows, scanAuditLog)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []AuditLog{}
	}
	return logs, nil
}

func scanAuditLog(row pgx.CollectableRow) (AuditLog, error) {
	var (
		entry AuditLog
		meta  []byte
	)
	if err := row.Scan(&entry.ActorID, &entry.Action, &entry.Entity, &entry.EntityID, &meta, &entry.At); err != nil {
		return AuditLog{}, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &entry.Meta); err != nil {
			return AuditLog{}, fmt.Errorf("audit meta: %w", err)
		}
	}
	return entry, nil
}

func (log AuditLog) validate() error {
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action, entity and entity_id")
	}
	return nil
}
