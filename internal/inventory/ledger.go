package inventory

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// ReceiptInput records stock received at a purchase cost.
type ReceiptInput struct {
	ItemID         string
	WarehouseID    string
	Quantity       float64
	UnitCost       float64
	Date           time.Time
	JobID          string
	CostCode       string
	Reference      string
	LotNumber      string
	PONumber       string
	Notes          string
	ActorID        string
	IdempotencyKey string
}

// IssueInput records stock issued out of a warehouse.
type IssueInput struct {
	ItemID         string
	WarehouseID    string
	Quantity       float64
	Date           time.Time
	JobID          string
	CostCode       string
	Reference      string
	LotNumber      string
	Notes          string
	ActorID        string
	IdempotencyKey string
}

// TransferInput moves stock between two locations.
type TransferInput struct {
	ItemID          string
	FromWarehouseID string
	ToWarehouseID   string
	Quantity        float64
	Date            time.Time
	JobID           string
	Reference       string
	LotNumber       string
	Notes           string
	ActorID         string
	IdempotencyKey  string
}

// AdjustmentInput corrects stock. Quantity is signed; UnitCost overrides the
// item's current cost when set.
type AdjustmentInput struct {
	ItemID         string
	WarehouseID    string
	Quantity       float64
	UnitCost       *float64
	Date           time.Time
	JobID          string
	CostCode       string
	Reference      string
	Notes          string
	ActorID        string
	IdempotencyKey string
}

// WasteInput records scrapped stock.
type WasteInput struct {
	ItemID         string
	WarehouseID    string
	Quantity       float64
	Date           time.Time
	JobID          string
	CostCode       string
	Reference      string
	Notes          string
	ActorID        string
	IdempotencyKey string
}

// Receive posts a receipt and refreshes the item's cost figures.
func (s *Service) Receive(ctx context.Context, input ReceiptInput) (Transaction, error) {
	if input.UnitCost < 0 {
		return Transaction{}, invalid("unit cost must be >= 0")
	}
	cost := input.UnitCost
	return s.record(ctx, postingParams{
		txn: Transaction{
			ItemID:      input.ItemID,
			WarehouseID: input.WarehouseID,
			Type:        TransactionTypeReceipt,
			Quantity:    input.Quantity,
			Date:        input.Date,
			JobID:       input.JobID,
			CostCode:    input.CostCode,
			Reference:   input.Reference,
			LotNumber:   input.LotNumber,
			PONumber:    input.PONumber,
			Notes:       input.Notes,
			CreatedBy:   input.ActorID,
		},
		cost:           &cost,
		idempotencyKey: input.IdempotencyKey,
	})
}

// Issue posts an issue valued at the item's current cost.
func (s *Service) Issue(ctx context.Context, input IssueInput) (Transaction, error) {
	return s.record(ctx, postingParams{
		txn: Transaction{
			ItemID:      input.ItemID,
			WarehouseID: input.WarehouseID,
			Type:        TransactionTypeIssue,
			Quantity:    input.Quantity,
			Date:        input.Date,
			JobID:       input.JobID,
			CostCode:    input.CostCode,
			Reference:   input.Reference,
			LotNumber:   input.LotNumber,
			Notes:       input.Notes,
			CreatedBy:   input.ActorID,
		},
		idempotencyKey: input.IdempotencyKey,
	})
}

// Transfer posts a single transfer entry carrying both legs.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (Transaction, error) {
	if strings.TrimSpace(input.ToWarehouseID) == "" {
		return Transaction{}, invalid("destination warehouse is required")
	}
	if input.FromWarehouseID == input.ToWarehouseID {
		return Transaction{}, invalid("source and destination warehouse must differ")
	}
	return s.record(ctx, postingParams{
		txn: Transaction{
			ItemID:        input.ItemID,
			WarehouseID:   input.FromWarehouseID,
			ToWarehouseID: input.ToWarehouseID,
			Type:          TransactionTypeTransfer,
			Quantity:      input.Quantity,
			Date:          input.Date,
			JobID:         input.JobID,
			Reference:     input.Reference,
			LotNumber:     input.LotNumber,
			Notes:         input.Notes,
			CreatedBy:     input.ActorID,
		},
		idempotencyKey: input.IdempotencyKey,
	})
}

// Adjust posts a signed stock correction.
func (s *Service) Adjust(ctx context.Context, input AdjustmentInput) (Transaction, error) {
	if input.UnitCost != nil && *input.UnitCost < 0 {
		return Transaction{}, invalid("unit cost must be >= 0")
	}
	return s.record(ctx, postingParams{
		txn: Transaction{
			ItemID:      input.ItemID,
			WarehouseID: input.WarehouseID,
			Type:        TransactionTypeAdjustment,
			Quantity:    input.Quantity,
			Date:        input.Date,
			JobID:       input.JobID,
			CostCode:    input.CostCode,
			Reference:   input.Reference,
			Notes:       input.Notes,
			CreatedBy:   input.ActorID,
		},
		cost:           input.UnitCost,
		idempotencyKey: input.IdempotencyKey,
	})
}

// RecordWaste posts scrapped stock valued at the item's current cost.
func (s *Service) RecordWaste(ctx context.Context, input WasteInput) (Transaction, error) {
	return s.record(ctx, postingParams{
		txn: Transaction{
			ItemID:      input.ItemID,
			WarehouseID: input.WarehouseID,
			Type:        TransactionTypeWaste,
			Quantity:    input.Quantity,
			Date:        input.Date,
			JobID:       input.JobID,
			CostCode:    input.CostCode,
			Reference:   input.Reference,
			Notes:       input.Notes,
			CreatedBy:   input.ActorID,
		},
		idempotencyKey: input.IdempotencyKey,
	})
}

// ListTransactions returns ledger entries matching filter, oldest first.
func (s *Service) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	return s.repo.ListTransactions(ctx, filter)
}

type postingParams struct {
	txn            Transaction
	cost           *float64
	idempotencyKey string
}

func (p postingParams) validate() error {
	if strings.TrimSpace(p.txn.ItemID) == "" || strings.TrimSpace(p.txn.WarehouseID) == "" {
		return invalid("item and warehouse required")
	}
	q := p.txn.Quantity
	if math.IsNaN(q) || math.IsInf(q, 0) {
		return invalid("quantity must be a finite number")
	}
	if p.txn.Type == TransactionTypeAdjustment {
		if round2(q) == 0 {
			return invalid("adjustment quantity must be non zero")
		}
		return nil
	}
	if round2(q) <= 0 {
		return invalid("quantity must be > 0")
	}
	return nil
}

// record is the single insertion path for every ledger intent.
func (s *Service) record(ctx context.Context, params postingParams) (Transaction, error) {
	if err := params.validate(); err != nil {
		return Transaction{}, err
	}
	undo, err := s.claimKey(ctx, params.idempotencyKey)
	if err != nil {
		return Transaction{}, err
	}
	var posted Transaction
	err = s.withItemLock(ctx, params.txn.ItemID, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			txn, err := s.postInTx(ctx, tx, params)
			if err != nil {
				return err
			}
			posted = txn
			return nil
		})
	})
	if err != nil {
		undo()
		return Transaction{}, err
	}
	s.afterPosting(ctx, posted)
	return posted, nil
}

// postInTx inserts the transaction and, for receipts, refreshes item costs
// within the caller's repository transaction.
func (s *Service) postInTx(ctx context.Context, tx TxRepository, params postingParams) (Transaction, error) {
	item, err := tx.GetItemForUpdate(ctx, params.txn.ItemID)
	if err != nil {
		return Transaction{}, err
	}
	if _, err := tx.GetWarehouse(ctx, params.txn.WarehouseID); err != nil {
		return Transaction{}, err
	}
	if params.txn.ToWarehouseID != "" {
		if _, err := tx.GetWarehouse(ctx, params.txn.ToWarehouseID); err != nil {
			return Transaction{}, err
		}
	}

	txn := params.txn
	txn.ID = s.newID()
	txn.Quantity = round2(txn.Quantity)
	txn.UnitCost = round2(resolveCost(txn.Type, item, params.cost))
	txn.TotalCost = lineTotal(txn.Quantity, txn.UnitCost)
	if txn.Date.IsZero() {
		txn.Date = s.today()
	}
	txn.CreatedAt = s.now()

	if err := tx.InsertTransaction(ctx, txn); err != nil {
		return Transaction{}, fmt.Errorf("inventory: insert transaction: %w", err)
	}
	if txn.Type == TransactionTypeReceipt {
		if _, err := s.recalculateCost(ctx, tx, item, txn.UnitCost); err != nil {
			return Transaction{}, err
		}
	}
	return txn, nil
}

// resolveCost applies the per-type cost policy.
func resolveCost(txType TransactionType, item Item, override *float64) float64 {
	switch txType {
	case TransactionTypeReceipt:
		if override != nil {
			return *override
		}
		return 0
	case TransactionTypeAdjustment:
		if override != nil {
			return *override
		}
	}
	return item.currentCost()
}

func (s *Service) afterPosting(ctx context.Context, txn Transaction) {
	if s.metrics != nil {
		s.metrics.ObservePosting(string(txn.Type), txn.TotalCost)
	}
	s.recordAudit(ctx, txn.CreatedBy, fmt.Sprintf("inventory:%s", txn.Type), "inventory_tx", txn.ID, map[string]any{
		"item_id":         txn.ItemID,
		"warehouse_id":    txn.WarehouseID,
		"to_warehouse_id": txn.ToWarehouseID,
		"qty":             txn.Quantity,
		"unit_cost":       txn.UnitCost,
		"reference":       txn.Reference,
	})
	s.notify(ctx, transactionEvents[txn.Type], txn.ID, txn)
}
