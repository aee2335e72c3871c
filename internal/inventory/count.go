package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// CreateCountInput opens a count line. SystemQuantity is replayed from the
// ledger when nil.
type CreateCountInput struct {
	WarehouseID     string
	ItemID          string
	CountDate       time.Time
	SystemQuantity  *float64
	CountedQuantity float64
	CountedBy       string
	Notes           string
}

// CreateCount stores a draft count with its variance snapshot.
func (s *Service) CreateCount(ctx context.Context, input CreateCountInput) (Count, error) {
	if strings.TrimSpace(input.WarehouseID) == "" || strings.TrimSpace(input.ItemID) == "" {
		return Count{}, invalid("item and warehouse required")
	}
	if input.CountedQuantity < 0 {
		return Count{}, invalid("counted quantity must be >= 0")
	}
	if _, err := s.repo.GetItem(ctx, input.ItemID); err != nil {
		return Count{}, err
	}
	if _, err := s.repo.GetWarehouse(ctx, input.WarehouseID); err != nil {
		return Count{}, err
	}
	var system float64
	if input.SystemQuantity != nil {
		system = round2(*input.SystemQuantity)
	} else {
		level, err := stockLevel(ctx, s.repo, input.ItemID, input.WarehouseID)
		if err != nil {
			return Count{}, err
		}
		system = level
	}
	now := s.now()
	count := Count{
		ID:              s.newID(),
		WarehouseID:     input.WarehouseID,
		ItemID:          input.ItemID,
		CountDate:       input.CountDate,
		SystemQuantity:  system,
		CountedQuantity: round2(input.CountedQuantity),
		Status:          CountStatusDraft,
		CountedBy:       input.CountedBy,
		Notes:           input.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if count.CountDate.IsZero() {
		count.CountDate = s.today()
	}
	count.Variance = round2(count.CountedQuantity - count.SystemQuantity)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertCount(ctx, count)
	})
	if err != nil {
		return Count{}, err
	}
	s.recordAudit(ctx, input.CountedBy, "inventory:count_create", "inventory_count", count.ID, map[string]any{"variance": count.Variance})
	s.notify(ctx, EventCountCreated, count.ID, count)
	return count, nil
}

// GetCount loads a count by id.
func (s *Service) GetCount(ctx context.Context, id string) (Count, error) {
	return s.repo.GetCount(ctx, id)
}

// ListCounts lists counts, newest first.
func (s *Service) ListCounts(ctx context.Context, filter CountFilter) ([]Count, error) {
	return s.repo.ListCounts(ctx, filter)
}

// UpdateCountLine records a new counted quantity against the stored system
// snapshot and moves the count back to in_progress.
func (s *Service) UpdateCountLine(ctx context.Context, id string, counted float64, actorID string) (Count, error) {
	if counted < 0 {
		return Count{}, invalid("counted quantity must be >= 0")
	}
	return s.transitionCount(ctx, id, actorID, EventCountUpdated, func(c *Count) error {
		if c.Status == CountStatusPosted {
			return countConflict("update", c.Status)
		}
		c.CountedQuantity = round2(counted)
		c.Variance = round2(c.CountedQuantity - c.SystemQuantity)
		c.Status = CountStatusInProgress
		if actorID != "" {
			c.CountedBy = actorID
		}
		return nil
	})
}

// CompleteCount marks a count ready for posting.
func (s *Service) CompleteCount(ctx context.Context, id, actorID string) (Count, error) {
	return s.transitionCount(ctx, id, actorID, EventCountCompleted, func(c *Count) error {
		if c.Status == CountStatusPosted {
			return countConflict("complete", c.Status)
		}
		c.Status = CountStatusCompleted
		return nil
	})
}

// PostCount books the variance as an adjustment and marks the count posted.
// Only completed counts can be posted, so a second post is rejected.
func (s *Service) PostCount(ctx context.Context, id, actorID string) (Count, error) {
	current, err := s.repo.GetCount(ctx, id)
	if err != nil {
		return Count{}, err
	}
	if current.Status != CountStatusCompleted {
		return Count{}, countConflict("post", current.Status)
	}

	var (
		posted     Count
		adjustment *Transaction
	)
	err = s.withItemLock(ctx, current.ItemID, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			c, err := tx.GetCountForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if c.Status != CountStatusCompleted {
				return countConflict("post", c.Status)
			}
			if c.Variance != 0 {
				txn, err := s.postInTx(ctx, tx, postingParams{txn: Transaction{
					ItemID:      c.ItemID,
					WarehouseID: c.WarehouseID,
					Type:        TransactionTypeAdjustment,
					Quantity:    c.Variance,
					Date:        c.CountDate,
					Reference:   c.ID,
					Notes:       fmt.Sprintf("Physical count variance %s", c.ID),
					CreatedBy:   actorID,
				}})
				if err != nil {
					return err
				}
				adjustment = &txn
				c.AdjustmentTransactionID = txn.ID
			}
			c.AdjustmentPosted = true
			c.Status = CountStatusPosted
			c.UpdatedAt = s.now()
			if err := tx.UpdateCount(ctx, c); err != nil {
				return err
			}
			posted = c
			return nil
		})
	})
	if err != nil {
		return Count{}, err
	}
	if adjustment != nil {
		s.afterPosting(ctx, *adjustment)
	}
	s.recordAudit(ctx, actorID, "inventory:count_post", "inventory_count", id, map[string]any{
		"variance":       posted.Variance,
		"transaction_id": posted.AdjustmentTransactionID,
	})
	s.notify(ctx, EventCountPosted, id, posted)
	return posted, nil
}

func (s *Service) transitionCount(ctx context.Context, id, actorID, eventType string, mutate func(*Count) error) (Count, error) {
	var updated Count
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		c, err := tx.GetCountForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := mutate(&c); err != nil {
			return err
		}
		c.UpdatedAt = s.now()
		if err := tx.UpdateCount(ctx, c); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return Count{}, err
	}
	s.recordAudit(ctx, actorID, "inventory:"+strings.ReplaceAll(eventType, ".", "_"), "inventory_count", id, map[string]any{
		"status":   updated.Status,
		"variance": updated.Variance,
	})
	s.notify(ctx, eventType, id, updated)
	return updated, nil
}

func countConflict(action string, status CountStatus) error {
	return fmt.Errorf("%w: cannot %s count in status %s", ErrStateConflict, action, status)
}
