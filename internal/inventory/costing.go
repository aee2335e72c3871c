package inventory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// recalculateCost re-aggregates every receipt of the item and stores the
// weighted average together with the cost of the latest receipt by business
// date, then creation time. fallback is used when the item has no receipts.
func (s *Service) recalculateCost(ctx context.Context, tx TxRepository, item Item, fallback float64) (Item, error) {
	receipts, err := tx.ListTransactions(ctx, TransactionFilter{
		ItemID: item.ID,
		Types:  []TransactionType{TransactionTypeReceipt},
	})
	if err != nil {
		return Item{}, fmt.Errorf("inventory: load receipts: %w", err)
	}
	item.LastCost = round2(latestReceiptCost(receipts, fallback))
	item.AvgCost = weightedAverage(receipts, item.LastCost)
	item.UpdatedAt = s.now()
	if err := tx.UpdateItemCosts(ctx, item.ID, item.LastCost, item.AvgCost); err != nil {
		return Item{}, fmt.Errorf("inventory: update item costs: %w", err)
	}
	return item, nil
}

// latestReceiptCost returns the unit cost of the receipt with the greatest
// (date, created_at), or fallback when there is none.
func latestReceiptCost(receipts []Transaction, fallback float64) float64 {
	var latest *Transaction
	for i := range receipts {
		r := &receipts[i]
		if r.Type != TransactionTypeReceipt {
			continue
		}
		if latest == nil || r.Date.After(latest.Date) ||
			(r.Date.Equal(latest.Date) && r.CreatedAt.After(latest.CreatedAt)) {
			latest = r
		}
	}
	if latest == nil {
		return fallback
	}
	return latest.UnitCost
}

// weightedAverage is round2(Σ totalCost / Σ quantity) over receipts, or
// fallback when there is no received quantity.
func weightedAverage(receipts []Transaction, fallback float64) float64 {
	totalValue := decimal.Zero
	totalQty := decimal.Zero
	for _, r := range receipts {
		if r.Type != TransactionTypeReceipt {
			continue
		}
		totalValue = totalValue.Add(decimal.NewFromFloat(r.TotalCost))
		totalQty = totalQty.Add(decimal.NewFromFloat(r.Quantity))
	}
	if totalQty.IsZero() {
		return fallback
	}
	return ratio2(totalValue, totalQty)
}

// RecalculateCost rebuilds LastCost and AvgCost for an item from its receipts.
// Used to repair item costs after data imports.
func (s *Service) RecalculateCost(ctx context.Context, itemID string) (Item, error) {
	var updated Item
	err := s.withItemLock(ctx, itemID, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			item, err := tx.GetItemForUpdate(ctx, itemID)
			if err != nil {
				return err
			}
			updated, err = s.recalculateCost(ctx, tx, item, item.LastCost)
			return err
		})
	})
	if err != nil {
		return Item{}, err
	}
	return updated, nil
}
