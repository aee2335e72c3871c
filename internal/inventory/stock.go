package inventory

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// ledgerReader is satisfied by both RepositoryPort and TxRepository.
type ledgerReader interface {
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
}

// StockRow is the on-hand quantity of one item in a warehouse.
type StockRow struct {
	ItemID        string  `json:"item_id"`
	ItemNumber    string  `json:"item_number"`
	Description   string  `json:"description"`
	UnitOfMeasure string  `json:"unit_of_measure"`
	Quantity      float64 `json:"quantity"`
}

// LowStockRow is an item at or below its reorder point.
type LowStockRow struct {
	ItemID          string  `json:"item_id"`
	ItemNumber      string  `json:"item_number"`
	Description     string  `json:"description"`
	PreferredVendor string  `json:"preferred_vendor"`
	Quantity        float64 `json:"quantity"`
	ReorderPoint    float64 `json:"reorder_point"`
	ReorderQuantity float64 `json:"reorder_quantity"`
	Deficit         float64 `json:"deficit"`
}

// StockLevel replays the ledger for an item. An empty warehouseID yields the
// total across all locations.
func (s *Service) StockLevel(ctx context.Context, itemID, warehouseID string) (float64, error) {
	if _, err := s.repo.GetItem(ctx, itemID); err != nil {
		return 0, err
	}
	if warehouseID != "" {
		if _, err := s.repo.GetWarehouse(ctx, warehouseID); err != nil {
			return 0, err
		}
	}
	return stockLevel(ctx, s.repo, itemID, warehouseID)
}

func stockLevel(ctx context.Context, r ledgerReader, itemID, warehouseID string) (float64, error) {
	primary, err := r.ListTransactions(ctx, TransactionFilter{ItemID: itemID, WarehouseID: warehouseID})
	if err != nil {
		return 0, err
	}
	var inbound []Transaction
	if warehouseID != "" {
		inbound, err = r.ListTransactions(ctx, TransactionFilter{
			ItemID:        itemID,
			ToWarehouseID: warehouseID,
			Types:         []TransactionType{TransactionTypeTransfer},
		})
		if err != nil {
			return 0, err
		}
	}
	return replayStock(primary, inbound, warehouseID), nil
}

// replayStock folds transactions into an on-hand quantity.
//
// primary holds the entries whose source warehouse is in scope (or all entries
// when warehouseID is empty); inbound holds transfers whose destination is the
// scope. Unscoped, transfers net to zero.
func replayStock(primary, inbound []Transaction, warehouseID string) float64 {
	qty := decimal.Zero
	for _, t := range primary {
		q := decimal.NewFromFloat(t.Quantity)
		switch t.Type {
		case TransactionTypeReceipt, TransactionTypeAdjustment:
			qty = qty.Add(q)
		case TransactionTypeIssue, TransactionTypeWaste:
			qty = qty.Sub(q)
		case TransactionTypeTransfer:
			if warehouseID == "" {
				continue
			}
			if t.WarehouseID == warehouseID {
				qty = qty.Sub(q)
			}
			if t.ToWarehouseID == warehouseID {
				qty = qty.Add(q)
			}
		}
	}
	for _, t := range inbound {
		if t.Type != TransactionTypeTransfer || t.ToWarehouseID != warehouseID {
			continue
		}
		// Already counted by the first pass.
		if t.WarehouseID == warehouseID {
			continue
		}
		qty = qty.Add(decimal.NewFromFloat(t.Quantity))
	}
	f, _ := qty.Round(2).Float64()
	return f
}

// StockByWarehouse lists non-zero on-hand quantities per item in a warehouse.
func (s *Service) StockByWarehouse(ctx context.Context, warehouseID string) ([]StockRow, error) {
	if _, err := s.repo.GetWarehouse(ctx, warehouseID); err != nil {
		return nil, err
	}
	primary, err := s.repo.ListTransactions(ctx, TransactionFilter{WarehouseID: warehouseID})
	if err != nil {
		return nil, err
	}
	inbound, err := s.repo.ListTransactions(ctx, TransactionFilter{
		ToWarehouseID: warehouseID,
		Types:         []TransactionType{TransactionTypeTransfer},
	})
	if err != nil {
		return nil, err
	}
	items, err := s.itemIndex(ctx, false)
	if err != nil {
		return nil, err
	}
	primaryByItem := groupByItem(primary)
	inboundByItem := groupByItem(inbound)
	seen := make(map[string]struct{}, len(primaryByItem)+len(inboundByItem))
	rows := []StockRow{}
	collect := func(itemID string) {
		if _, ok := seen[itemID]; ok {
			return
		}
		seen[itemID] = struct{}{}
		qty := replayStock(primaryByItem[itemID], inboundByItem[itemID], warehouseID)
		if qty == 0 {
			return
		}
		item := items[itemID]
		rows = append(rows, StockRow{
			ItemID:        itemID,
			ItemNumber:    item.Number,
			Description:   item.Description,
			UnitOfMeasure: item.UnitOfMeasure,
			Quantity:      qty,
		})
	}
	for itemID := range primaryByItem {
		collect(itemID)
	}
	for itemID := range inboundByItem {
		collect(itemID)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ItemNumber == rows[j].ItemNumber {
			return rows[i].ItemID < rows[j].ItemID
		}
		return rows[i].ItemNumber < rows[j].ItemNumber
	})
	return rows, nil
}

// LowStockItems lists active items whose total stock is at or below their
// reorder point, largest deficit first. Items without a reorder point are skipped.
func (s *Service) LowStockItems(ctx context.Context) ([]LowStockRow, error) {
	items, err := s.repo.ListItems(ctx, true)
	if err != nil {
		return nil, err
	}
	all, err := s.repo.ListTransactions(ctx, TransactionFilter{})
	if err != nil {
		return nil, err
	}
	byItem := groupByItem(all)
	rows := []LowStockRow{}
	for _, item := range items {
		if item.ReorderPoint <= 0 {
			continue
		}
		qty := replayStock(byItem[item.ID], nil, "")
		if qty > item.ReorderPoint {
			continue
		}
		rows = append(rows, LowStockRow{
			ItemID:          item.ID,
			ItemNumber:      item.Number,
			Description:     item.Description,
			PreferredVendor: item.PreferredVendor,
			Quantity:        qty,
			ReorderPoint:    item.ReorderPoint,
			ReorderQuantity: item.ReorderQuantity,
			Deficit:         round2(item.ReorderPoint - qty),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Deficit == rows[j].Deficit {
			return rows[i].ItemNumber < rows[j].ItemNumber
		}
		return rows[i].Deficit > rows[j].Deficit
	})
	return rows, nil
}

func groupByItem(txns []Transaction) map[string][]Transaction {
	out := make(map[string][]Transaction)
	for _, t := range txns {
		out[t.ItemID] = append(out[t.ItemID], t)
	}
	return out
}

func (s *Service) itemIndex(ctx context.Context, activeOnly bool) (map[string]Item, error) {
	items, err := s.repo.ListItems(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	idx := make(map[string]Item, len(items))
	for _, item := range items {
		idx[item.ID] = item
	}
	return idx, nil
}
