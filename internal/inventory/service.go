package inventory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// RepositoryPort abstracts the ledger store used by the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, id string) (Item, error)
	ListItems(ctx context.Context, activeOnly bool) ([]Item, error)
	GetWarehouse(ctx context.Context, id string) (Warehouse, error)
	ListWarehouses(ctx context.Context, activeOnly bool) ([]Warehouse, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	GetRequisition(ctx context.Context, id string) (Requisition, error)
	ListRequisitions(ctx context.Context, filter RequisitionFilter) ([]Requisition, error)
	ListRequisitionFills(ctx context.Context, requisitionID string) ([]RequisitionFill, error)
	GetCount(ctx context.Context, id string) (Count, error)
	ListCounts(ctx context.Context, filter CountFilter) ([]Count, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against replayed postings.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Locker serialises writers of the same item.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(context.Context) error, error)
}

// MetricsPort records ledger postings.
type MetricsPort interface {
	ObservePosting(txType string, totalCost float64)
}

// ServiceDeps groups optional collaborators. Nil members are skipped.
type ServiceDeps struct {
	Audit       AuditPort
	Idempotency IdempotencyPort
	Locker      Locker
	Events      EventPublisher
	Metrics     MetricsPort
	Logger      *slog.Logger
	Clock       func() time.Time
}

// Service coordinates inventory operations.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	locker      Locker
	events      EventPublisher
	metrics     MetricsPort
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
}

// NewService builds Service.
func NewService(repo RepositoryPort, deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repo:        repo,
		audit:       deps.Audit,
		idempotency: deps.Idempotency,
		locker:      deps.Locker,
		events:      deps.Events,
		metrics:     deps.Metrics,
		logger:      logger,
		now:         clock,
		newID:       func() string { return uuid.NewString() },
	}
}

// today is the current date at midnight UTC.
func (s *Service) today() time.Time {
	n := s.now()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

func itemLockKey(itemID string) string {
	return fmt.Sprintf("inventory:item:%s:lock", itemID)
}

// withItemLock runs fn while holding the per-item writer lock.
func (s *Service) withItemLock(ctx context.Context, itemID string, fn func() error) error {
	if s.locker == nil {
		return fn()
	}
	release, err := s.locker.Acquire(ctx, itemLockKey(itemID))
	if err != nil {
		if errors.Is(err, shared.ErrLockHeld) {
			return fmt.Errorf("%w: item %s", ErrLocked, itemID)
		}
		return err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release item lock", slog.String("item_id", itemID), slog.Any("error", err))
		}
	}()
	return fn()
}

// claimKey reserves an idempotency key. The returned undo drops it again.
func (s *Service) claimKey(ctx context.Context, key string) (func(), error) {
	if s.idempotency == nil || key == "" {
		return func() {}, nil
	}
	if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			return nil, fmt.Errorf("%w: request %s already processed", ErrDuplicate, key)
		}
		return nil, err
	}
	return func() {
		if err := s.idempotency.Delete(context.WithoutCancel(ctx), key); err != nil {
			s.logger.Warn("drop idempotency key", slog.String("key", key), slog.Any("error", err))
		}
	}, nil
}

func (s *Service) recordAudit(ctx context.Context, actor, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
