package inventory

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
)

// TransactionType enumerates supported ledger movements.
type TransactionType string

const (
	// TransactionTypeReceipt records stock received into a warehouse.
	TransactionTypeReceipt TransactionType = "receipt"
	// TransactionTypeIssue records stock issued out of a warehouse, usually to a job.
	TransactionTypeIssue TransactionType = "issue"
	// TransactionTypeTransfer moves stock from WarehouseID to ToWarehouseID.
	TransactionTypeTransfer TransactionType = "transfer"
	// TransactionTypeAdjustment corrects stock; quantity is signed.
	TransactionTypeAdjustment TransactionType = "adjustment"
	// TransactionTypeWaste records scrapped or spoiled stock.
	TransactionTypeWaste TransactionType = "waste"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeReceipt, TransactionTypeIssue, TransactionTypeTransfer, TransactionTypeAdjustment, TransactionTypeWaste:
		return true
	}
	return false
}

// WarehouseType classifies stock locations.
type WarehouseType string

const (
	WarehouseTypeWarehouse WarehouseType = "warehouse"
	WarehouseTypeYard      WarehouseType = "yard"
	WarehouseTypeJobSite   WarehouseType = "job_site"
	WarehouseTypeVehicle   WarehouseType = "vehicle"
)

// Item is the item master record.
type Item struct {
	ID              string    `json:"id"`
	Number          string    `json:"number"`
	Description     string    `json:"description"`
	UnitOfMeasure   string    `json:"unit_of_measure"`
	Category        string    `json:"category"`
	PreferredVendor string    `json:"preferred_vendor"`
	ReorderPoint    float64   `json:"reorder_point"`
	ReorderQuantity float64   `json:"reorder_quantity"`
	UnitCost        float64   `json:"unit_cost"`
	LastCost        float64   `json:"last_cost"`
	AvgCost         float64   `json:"avg_cost"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// currentCost is the cost used for outbound movements: the running average,
// or the manual baseline while no receipt has established one.
func (i Item) currentCost() float64 {
	if i.AvgCost != 0 {
		return i.AvgCost
	}
	return i.UnitCost
}

// Warehouse is a stock location.
type Warehouse struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Type      WarehouseType `json:"type"`
	JobID     string        `json:"job_id,omitempty"`
	Active    bool          `json:"active"`
	CreatedAt time.Time     `json:"created_at"`
}

// Transaction is an immutable ledger entry.
type Transaction struct {
	ID            string          `json:"id"`
	ItemID        string          `json:"item_id"`
	WarehouseID   string          `json:"warehouse_id"`
	ToWarehouseID string          `json:"to_warehouse_id,omitempty"`
	Type          TransactionType `json:"type"`
	Quantity      float64         `json:"quantity"`
	UnitCost      float64         `json:"unit_cost"`
	TotalCost     float64         `json:"total_cost"`
	Date          time.Time       `json:"date"`
	JobID         string          `json:"job_id,omitempty"`
	CostCode      string          `json:"cost_code,omitempty"`
	Reference     string          `json:"reference,omitempty"`
	LotNumber     string          `json:"lot_number,omitempty"`
	PONumber      string          `json:"po_number,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	CreatedBy     string          `json:"created_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// TransactionFilter narrows ledger queries. Zero values are ignored.
type TransactionFilter struct {
	ItemID        string
	WarehouseID   string
	ToWarehouseID string
	JobID         string
	Types         []TransactionType
	From          time.Time
	To            time.Time
	Limit         int
}

// RequisitionStatus is the requisition lifecycle state.
type RequisitionStatus string

const (
	RequisitionStatusDraft           RequisitionStatus = "draft"
	RequisitionStatusSubmitted       RequisitionStatus = "submitted"
	RequisitionStatusApproved        RequisitionStatus = "approved"
	RequisitionStatusPartiallyFilled RequisitionStatus = "partially_filled"
	RequisitionStatusFilled          RequisitionStatus = "filled"
	RequisitionStatusCancelled       RequisitionStatus = "cancelled"
)

// Requisition is a material request raised from a job site.
type Requisition struct {
	ID             string            `json:"id"`
	Number         string            `json:"number"`
	JobID          string            `json:"job_id,omitempty"`
	ItemID         string            `json:"item_id"`
	WarehouseID    string            `json:"warehouse_id,omitempty"`
	Quantity       float64           `json:"quantity"`
	FilledQuantity float64           `json:"filled_quantity"`
	Status         RequisitionStatus `json:"status"`
	RequestedBy    string            `json:"requested_by,omitempty"`
	NeededBy       time.Time         `json:"needed_by,omitzero"`
	Notes          string            `json:"notes,omitempty"`
	ApprovedBy     string            `json:"approved_by,omitempty"`
	ApprovedAt     time.Time         `json:"approved_at,omitzero"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// RequisitionFill is one fulfilment entry against a requisition.
type RequisitionFill struct {
	ID            string    `json:"id"`
	RequisitionID string    `json:"requisition_id"`
	Quantity      float64   `json:"quantity"`
	FilledBy      string    `json:"filled_by,omitempty"`
	FilledAt      time.Time `json:"filled_at"`
}

// RequisitionFilter narrows requisition listings.
type RequisitionFilter struct {
	JobID  string
	ItemID string
	Status RequisitionStatus
}

// CountStatus is the physical count lifecycle state.
type CountStatus string

const (
	CountStatusDraft      CountStatus = "draft"
	CountStatusInProgress CountStatus = "in_progress"
	CountStatusCompleted  CountStatus = "completed"
	CountStatusPosted     CountStatus = "posted"
)

// Count is one physical count line for an item in a warehouse.
type Count struct {
	ID                      string      `json:"id"`
	WarehouseID             string      `json:"warehouse_id"`
	ItemID                  string      `json:"item_id"`
	CountDate               time.Time   `json:"count_date"`
	SystemQuantity          float64     `json:"system_quantity"`
	CountedQuantity         float64     `json:"counted_quantity"`
	Variance                float64     `json:"variance"`
	Status                  CountStatus `json:"status"`
	CountedBy               string      `json:"counted_by,omitempty"`
	Notes                   string      `json:"notes,omitempty"`
	AdjustmentPosted        bool        `json:"adjustment_posted"`
	AdjustmentTransactionID string      `json:"adjustment_transaction_id,omitempty"`
	CreatedAt               time.Time   `json:"created_at"`
	UpdatedAt               time.Time   `json:"updated_at"`
}

// CountFilter narrows count listings.
type CountFilter struct {
	WarehouseID string
	ItemID      string
	Status      CountStatus
}

var (
	// ErrNotFound indicates a referenced record does not exist.
	ErrNotFound = fmt.Errorf("inventory: %w", httpx.ErrNotFound)
	// ErrStateConflict indicates a workflow transition not allowed from the current status.
	ErrStateConflict = fmt.Errorf("inventory: invalid state transition: %w", httpx.ErrConflict)
	// ErrValidation indicates invalid input.
	ErrValidation = fmt.Errorf("inventory: %w", httpx.ErrValidation)
	// ErrDuplicate indicates a unique key is already taken.
	ErrDuplicate = fmt.Errorf("inventory: %w", httpx.ErrDuplicate)
	// ErrLocked indicates another writer holds the item lock.
	ErrLocked = fmt.Errorf("inventory: item busy: %w", httpx.ErrLocked)
)
