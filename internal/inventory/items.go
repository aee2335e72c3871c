package inventory

import (
	"context"
	"strings"
)

// ItemInput carries item master fields editable by callers.
type ItemInput struct {
	Number          string
	Description     string
	UnitOfMeasure   string
	Category        string
	PreferredVendor string
	ReorderPoint    float64
	ReorderQuantity float64
	UnitCost        float64
	ActorID         string
}

func (in ItemInput) validate() error {
	if strings.TrimSpace(in.Number) == "" {
		return invalid("item number is required")
	}
	if in.ReorderPoint < 0 || in.ReorderQuantity < 0 {
		return invalid("reorder point and quantity must be >= 0")
	}
	if in.UnitCost < 0 {
		return invalid("unit cost must be >= 0")
	}
	return nil
}

// CreateItem adds an item to the master. Costs start at zero until the first receipt.
func (s *Service) CreateItem(ctx context.Context, input ItemInput) (Item, error) {
	if err := input.validate(); err != nil {
		return Item{}, err
	}
	now := s.now()
	item := Item{
		ID:              s.newID(),
		Number:          strings.TrimSpace(input.Number),
		Description:     input.Description,
		UnitOfMeasure:   input.UnitOfMeasure,
		Category:        input.Category,
		PreferredVendor: input.PreferredVendor,
		ReorderPoint:    round2(input.ReorderPoint),
		ReorderQuantity: round2(input.ReorderQuantity),
		UnitCost:        round2(input.UnitCost),
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertItem(ctx, item)
	})
	if err != nil {
		return Item{}, err
	}
	s.recordAudit(ctx, input.ActorID, "inventory:item_create", "inventory_item", item.ID, map[string]any{"number": item.Number})
	s.notify(ctx, EventItemCreated, item.ID, item)
	return item, nil
}

// UpdateItem changes master fields. LastCost and AvgCost are never touched here.
func (s *Service) UpdateItem(ctx context.Context, id string, input ItemInput) (Item, error) {
	if err := input.validate(); err != nil {
		return Item{}, err
	}
	var updated Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, id)
		if err != nil {
			return err
		}
		item.Number = strings.TrimSpace(input.Number)
		item.Description = input.Description
		item.UnitOfMeasure = input.UnitOfMeasure
		item.Category = input.Category
		item.PreferredVendor = input.PreferredVendor
		item.ReorderPoint = round2(input.ReorderPoint)
		item.ReorderQuantity = round2(input.ReorderQuantity)
		item.UnitCost = round2(input.UnitCost)
		item.UpdatedAt = s.now()
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	s.recordAudit(ctx, input.ActorID, "inventory:item_update", "inventory_item", id, map[string]any{"number": updated.Number})
	s.notify(ctx, EventItemUpdated, id, updated)
	return updated, nil
}

// DeactivateItem flags the item inactive. Items are never deleted.
func (s *Service) DeactivateItem(ctx context.Context, id, actorID string) (Item, error) {
	var updated Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, id)
		if err != nil {
			return err
		}
		item.Active = false
		item.UpdatedAt = s.now()
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	s.recordAudit(ctx, actorID, "inventory:item_deactivate", "inventory_item", id, nil)
	s.notify(ctx, EventItemDeactivated, id, nil)
	return updated, nil
}

// GetItem loads an item by id.
func (s *Service) GetItem(ctx context.Context, id string) (Item, error) {
	return s.repo.GetItem(ctx, id)
}

// ListItems lists items ordered by number.
func (s *Service) ListItems(ctx context.Context, activeOnly bool) ([]Item, error) {
	return s.repo.ListItems(ctx, activeOnly)
}

// WarehouseInput describes a new stock location.
type WarehouseInput struct {
	Name    string
	Type    WarehouseType
	JobID   string
	ActorID string
}

// CreateWarehouse adds a stock location.
func (s *Service) CreateWarehouse(ctx context.Context, input WarehouseInput) (Warehouse, error) {
	if strings.TrimSpace(input.Name) == "" {
		return Warehouse{}, invalid("warehouse name is required")
	}
	if input.Type == "" {
		input.Type = WarehouseTypeWarehouse
	}
	switch input.Type {
	case WarehouseTypeWarehouse, WarehouseTypeYard, WarehouseTypeJobSite, WarehouseTypeVehicle:
	default:
		return Warehouse{}, invalid("unknown warehouse type %q", input.Type)
	}
	wh := Warehouse{
		ID:        s.newID(),
		Name:      strings.TrimSpace(input.Name),
		Type:      input.Type,
		JobID:     input.JobID,
		Active:    true,
		CreatedAt: s.now(),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertWarehouse(ctx, wh)
	})
	if err != nil {
		return Warehouse{}, err
	}
	s.recordAudit(ctx, input.ActorID, "inventory:warehouse_create", "inventory_warehouse", wh.ID, map[string]any{"name": wh.Name})
	s.notify(ctx, EventWarehouseCreated, wh.ID, wh)
	return wh, nil
}

// DeactivateWarehouse flags the location inactive.
func (s *Service) DeactivateWarehouse(ctx context.Context, id, actorID string) (Warehouse, error) {
	var updated Warehouse
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		wh, err := tx.GetWarehouse(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeactivateWarehouse(ctx, id); err != nil {
			return err
		}
		wh.Active = false
		updated = wh
		return nil
	})
	if err != nil {
		return Warehouse{}, err
	}
	s.recordAudit(ctx, actorID, "inventory:warehouse_deactivate", "inventory_warehouse", id, nil)
	s.notify(ctx, EventWarehouseDeactivated, id, nil)
	return updated, nil
}

// GetWarehouse loads a warehouse by id.
func (s *Service) GetWarehouse(ctx context.Context, id string) (Warehouse, error) {
	return s.repo.GetWarehouse(ctx, id)
}

// ListWarehouses lists warehouses ordered by name.
func (s *Service) ListWarehouses(ctx context.Context, activeOnly bool) ([]Warehouse, error) {
	return s.repo.ListWarehouses(ctx, activeOnly)
}
