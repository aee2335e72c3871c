package inventory

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

type itemRequest struct {
	Number          string  `json:"number" validate:"required,max=64"`
	Description     string  `json:"description" validate:"max=255"`
	UnitOfMeasure   string  `json:"unit_of_measure" validate:"max=16"`
	Category        string  `json:"category" validate:"max=64"`
	PreferredVendor string  `json:"preferred_vendor" validate:"max=128"`
	ReorderPoint    float64 `json:"reorder_point" validate:"gte=0"`
	ReorderQuantity float64 `json:"reorder_quantity" validate:"gte=0"`
	UnitCost        float64 `json:"unit_cost" validate:"gte=0"`
}

func (r itemRequest) toInput(actor string) ItemInput {
	return ItemInput{
		Number:          strings.TrimSpace(r.Number),
		Description:     r.Description,
		UnitOfMeasure:   r.UnitOfMeasure,
		Category:        r.Category,
		PreferredVendor: r.PreferredVendor,
		ReorderPoint:    r.ReorderPoint,
		ReorderQuantity: r.ReorderQuantity,
		UnitCost:        r.UnitCost,
		ActorID:         actor,
	}
}

type warehouseRequest struct {
	Name  string `json:"name" validate:"required,max=128"`
	Type  string `json:"type" validate:"omitempty,oneof=warehouse yard job_site vehicle"`
	JobID string `json:"job_id" validate:"max=64"`
}

// postingRequest carries the fields shared by every ledger posting. Quantity
// sign rules are enforced per type by the service.
type postingRequest struct {
	ItemID          string   `json:"item_id" validate:"required"`
	WarehouseID     string   `json:"warehouse_id"`
	FromWarehouseID string   `json:"from_warehouse_id"`
	ToWarehouseID   string   `json:"to_warehouse_id"`
	Quantity        float64  `json:"quantity" validate:"ne=0"`
	UnitCost        *float64 `json:"unit_cost" validate:"omitempty,gte=0"`
	Date            string   `json:"date" validate:"omitempty,datetime=2006-01-02"`
	JobID           string   `json:"job_id" validate:"max=64"`
	CostCode        string   `json:"cost_code" validate:"max=64"`
	Reference       string   `json:"reference" validate:"max=128"`
	LotNumber       string   `json:"lot_number" validate:"max=64"`
	PONumber        string   `json:"po_number" validate:"max=64"`
	Notes           string   `json:"notes" validate:"max=1000"`
}

func (r postingRequest) date() time.Time {
	d, _ := parseDate(r.Date)
	return d
}

func (r postingRequest) receipt(actor, key string) ReceiptInput {
	in := ReceiptInput{
		ItemID: r.ItemID, WarehouseID: r.WarehouseID, Quantity: r.Quantity, Date: r.date(),
		JobID: r.JobID, CostCode: r.CostCode, Reference: r.Reference, LotNumber: r.LotNumber,
		PONumber: r.PONumber, Notes: r.Notes, ActorID: actor, IdempotencyKey: key,
	}
	if r.UnitCost != nil {
		in.UnitCost = *r.UnitCost
	}
	return in
}

func (r postingRequest) issue(actor, key string) IssueInput {
	return IssueInput{
		ItemID: r.ItemID, WarehouseID: r.WarehouseID, Quantity: r.Quantity, Date: r.date(),
		JobID: r.JobID, CostCode: r.CostCode, Reference: r.Reference, LotNumber: r.LotNumber,
		Notes: r.Notes, ActorID: actor, IdempotencyKey: key,
	}
}

func (r postingRequest) transfer(actor, key string) TransferInput {
	from := r.FromWarehouseID
	if from == "" {
		from = r.WarehouseID
	}
	return TransferInput{
		ItemID: r.ItemID, FromWarehouseID: from, ToWarehouseID: r.ToWarehouseID, Quantity: r.Quantity,
		Date: r.date(), JobID: r.JobID, Reference: r.Reference, LotNumber: r.LotNumber,
		Notes: r.Notes, ActorID: actor, IdempotencyKey: key,
	}
}

func (r postingRequest) adjustment(actor, key string) AdjustmentInput {
	return AdjustmentInput{
		ItemID: r.ItemID, WarehouseID: r.WarehouseID, Quantity: r.Quantity, UnitCost: r.UnitCost,
		Date: r.date(), JobID: r.JobID, CostCode: r.CostCode, Reference: r.Reference,
		Notes: r.Notes, ActorID: actor, IdempotencyKey: key,
	}
}

func (r postingRequest) waste(actor, key string) WasteInput {
	return WasteInput{
		ItemID: r.ItemID, WarehouseID: r.WarehouseID, Quantity: r.Quantity, Date: r.date(),
		JobID: r.JobID, CostCode: r.CostCode, Reference: r.Reference, Notes: r.Notes,
		ActorID: actor, IdempotencyKey: key,
	}
}

type requisitionRequest struct {
	Number      string  `json:"number" validate:"max=64"`
	JobID       string  `json:"job_id" validate:"max=64"`
	ItemID      string  `json:"item_id" validate:"required"`
	WarehouseID string  `json:"warehouse_id"`
	Quantity    float64 `json:"quantity" validate:"gt=0"`
	NeededBy    string  `json:"needed_by" validate:"omitempty,datetime=2006-01-02"`
	Notes       string  `json:"notes" validate:"max=1000"`
}

type fillRequest struct {
	Quantity float64 `json:"quantity" validate:"gt=0"`
}

type countRequest struct {
	WarehouseID     string   `json:"warehouse_id" validate:"required"`
	ItemID          string   `json:"item_id" validate:"required"`
	CountDate       string   `json:"count_date" validate:"omitempty,datetime=2006-01-02"`
	SystemQuantity  *float64 `json:"system_quantity"`
	CountedQuantity float64  `json:"counted_quantity" validate:"gte=0"`
	Notes           string   `json:"notes" validate:"max=1000"`
}

type countLineRequest struct {
	CountedQuantity float64 `json:"counted_quantity" validate:"gte=0"`
}

type stockResponse struct {
	ItemID      string  `json:"item_id"`
	WarehouseID string  `json:"warehouse_id,omitempty"`
	Quantity    float64 `json:"quantity"`
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrValidation, raw)
	}
	return d, nil
}
