package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateRequisitionInput describes a new material request.
type CreateRequisitionInput struct {
	Number      string
	JobID       string
	ItemID      string
	WarehouseID string
	Quantity    float64
	RequestedBy string
	NeededBy    time.Time
	Notes       string
}

// CreateRequisition stores a requisition in draft status.
func (s *Service) CreateRequisition(ctx context.Context, input CreateRequisitionInput) (Requisition, error) {
	if strings.TrimSpace(input.ItemID) == "" {
		return Requisition{}, invalid("item required")
	}
	if round2(input.Quantity) <= 0 {
		return Requisition{}, invalid("requested quantity must be > 0")
	}
	if _, err := s.repo.GetItem(ctx, input.ItemID); err != nil {
		return Requisition{}, err
	}
	if input.WarehouseID != "" {
		if _, err := s.repo.GetWarehouse(ctx, input.WarehouseID); err != nil {
			return Requisition{}, err
		}
	}
	now := s.now()
	req := Requisition{
		ID:          s.newID(),
		Number:      strings.TrimSpace(input.Number),
		JobID:       input.JobID,
		ItemID:      input.ItemID,
		WarehouseID: input.WarehouseID,
		Quantity:    round2(input.Quantity),
		Status:      RequisitionStatusDraft,
		RequestedBy: input.RequestedBy,
		NeededBy:    input.NeededBy,
		Notes:       input.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Number == "" {
		req.Number = generateNumber("REQ", now)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertRequisition(ctx, req)
	})
	if err != nil {
		return Requisition{}, err
	}
	s.recordAudit(ctx, input.RequestedBy, "inventory:requisition_create", "inventory_requisition", req.ID, map[string]any{"number": req.Number})
	s.notify(ctx, EventRequisitionCreated, req.ID, req)
	return req, nil
}

// GetRequisition loads a requisition by id.
func (s *Service) GetRequisition(ctx context.Context, id string) (Requisition, error) {
	return s.repo.GetRequisition(ctx, id)
}

// ListRequisitions lists requisitions, newest first.
func (s *Service) ListRequisitions(ctx context.Context, filter RequisitionFilter) ([]Requisition, error) {
	return s.repo.ListRequisitions(ctx, filter)
}

// ListRequisitionFills returns the fill history of a requisition, oldest first.
func (s *Service) ListRequisitionFills(ctx context.Context, id string) ([]RequisitionFill, error) {
	if _, err := s.repo.GetRequisition(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListRequisitionFills(ctx, id)
}

// SubmitRequisition moves a draft requisition to submitted.
func (s *Service) SubmitRequisition(ctx context.Context, id, actorID string) (Requisition, error) {
	return s.transitionRequisition(ctx, id, actorID, EventRequisitionSubmitted, func(req *Requisition) error {
		if req.Status != RequisitionStatusDraft {
			return requisitionConflict("submit", req.Status)
		}
		req.Status = RequisitionStatusSubmitted
		return nil
	})
}

// ApproveRequisition approves a submitted requisition.
func (s *Service) ApproveRequisition(ctx context.Context, id, approverID string) (Requisition, error) {
	return s.transitionRequisition(ctx, id, approverID, EventRequisitionApproved, func(req *Requisition) error {
		if req.Status != RequisitionStatusSubmitted {
			return requisitionConflict("approve", req.Status)
		}
		req.Status = RequisitionStatusApproved
		req.ApprovedBy = approverID
		req.ApprovedAt = s.now()
		return nil
	})
}

// FillRequisition accumulates a fulfilled quantity. It does not post an issue
// to the ledger and does not cap the filled quantity at the requested one.
func (s *Service) FillRequisition(ctx context.Context, id string, quantity float64, actorID string) (Requisition, error) {
	if round2(quantity) <= 0 {
		return Requisition{}, invalid("fill quantity must be > 0")
	}
	return s.transitionRequisition(ctx, id, actorID, EventRequisitionFilled, func(req *Requisition) error {
		if req.Status != RequisitionStatusApproved && req.Status != RequisitionStatusPartiallyFilled {
			return requisitionConflict("fill", req.Status)
		}
		req.FilledQuantity = round2(req.FilledQuantity + quantity)
		if req.FilledQuantity >= req.Quantity {
			req.Status = RequisitionStatusFilled
		} else {
			req.Status = RequisitionStatusPartiallyFilled
		}
		return nil
	}, RequisitionFill{Quantity: round2(quantity), FilledBy: actorID})
}

// CancelRequisition cancels a requisition that is neither filled nor cancelled.
func (s *Service) CancelRequisition(ctx context.Context, id, actorID string) (Requisition, error) {
	return s.transitionRequisition(ctx, id, actorID, EventRequisitionCancelled, func(req *Requisition) error {
		if req.Status == RequisitionStatusFilled || req.Status == RequisitionStatusCancelled {
			return requisitionConflict("cancel", req.Status)
		}
		req.Status = RequisitionStatusCancelled
		return nil
	})
}

// transitionRequisition applies mutate under a row lock. The guard inside
// mutate runs before anything is written.
func (s *Service) transitionRequisition(ctx context.Context, id, actorID, eventType string, mutate func(*Requisition) error, fills ...RequisitionFill) (Requisition, error) {
	var updated Requisition
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetRequisitionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := mutate(&req); err != nil {
			return err
		}
		req.UpdatedAt = s.now()
		if err := tx.UpdateRequisition(ctx, req); err != nil {
			return err
		}
		for _, fill := range fills {
			fill.ID = s.newID()
			fill.RequisitionID = req.ID
			fill.FilledAt = req.UpdatedAt
			if err := tx.InsertRequisitionFill(ctx, fill); err != nil {
				return err
			}
		}
		updated = req
		return nil
	})
	if err != nil {
		return Requisition{}, err
	}
	s.recordAudit(ctx, actorID, "inventory:"+strings.ReplaceAll(eventType, ".", "_"), "inventory_requisition", id, map[string]any{
		"status":          updated.Status,
		"filled_quantity": updated.FilledQuantity,
	})
	s.notify(ctx, eventType, id, updated)
	return updated, nil
}

func requisitionConflict(action string, status RequisitionStatus) error {
	return fmt.Errorf("%w: cannot %s requisition in status %s", ErrStateConflict, action, status)
}

func generateNumber(prefix string, at time.Time) string {
	return fmt.Sprintf("%s-%s-%s", prefix, at.Format("20060102"), strings.ToUpper(uuid.NewString()[:8]))
}
