package inventory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ValuationMethod selects how on-hand stock is priced.
type ValuationMethod string

const (
	ValuationAverage ValuationMethod = "average"
	ValuationFIFO    ValuationMethod = "fifo"
	ValuationLIFO    ValuationMethod = "lifo"
)

// Valid reports whether m is a supported method.
func (m ValuationMethod) Valid() bool {
	switch m {
	case ValuationAverage, ValuationFIFO, ValuationLIFO:
		return true
	}
	return false
}

// ValuationRow values one item's on-hand stock.
type ValuationRow struct {
	ItemID        string  `json:"item_id"`
	ItemNumber    string  `json:"item_number"`
	Description   string  `json:"description"`
	UnitOfMeasure string  `json:"unit_of_measure"`
	Quantity      float64 `json:"quantity"`
	UnitCost      float64 `json:"unit_cost"`
	Value         float64 `json:"value"`
}

// Valuation is the report for one method.
type Valuation struct {
	Method      ValuationMethod `json:"method"`
	Rows        []ValuationRow  `json:"rows"`
	TotalValue  float64         `json:"total_value"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// costLayer is an inbound priced batch.
type costLayer struct {
	Date      time.Time
	CreatedAt time.Time
	Quantity  float64
	UnitCost  float64
}

// Valuation prices the on-hand quantity of every item with positive stock.
func (s *Service) Valuation(ctx context.Context, method ValuationMethod) (Valuation, error) {
	if !method.Valid() {
		return Valuation{}, invalid("unknown valuation method %q", method)
	}
	items, err := s.repo.ListItems(ctx, false)
	if err != nil {
		return Valuation{}, err
	}
	all, err := s.repo.ListTransactions(ctx, TransactionFilter{})
	if err != nil {
		return Valuation{}, err
	}
	byItem := groupByItem(all)
	report := Valuation{Method: method, Rows: []ValuationRow{}, GeneratedAt: s.now()}
	total := decimal.Zero
	for _, item := range items {
		history := byItem[item.ID]
		qty := replayStock(history, nil, "")
		if qty <= 0 {
			continue
		}
		value := valueItem(item, history, qty, method)
		row := ValuationRow{
			ItemID:        item.ID,
			ItemNumber:    item.Number,
			Description:   item.Description,
			UnitOfMeasure: item.UnitOfMeasure,
			Quantity:      qty,
			UnitCost:      ratio2(decimal.NewFromFloat(value), decimal.NewFromFloat(qty)),
			Value:         value,
		}
		report.Rows = append(report.Rows, row)
		total = total.Add(decimal.NewFromFloat(value))
	}
	report.TotalValue, _ = total.Round(2).Float64()
	return report, nil
}

// valueItem prices qty units of item using its transaction history.
func valueItem(item Item, history []Transaction, qty float64, method ValuationMethod) float64 {
	if method == ValuationAverage {
		return lineTotal(qty, item.currentCost())
	}
	return valueLayers(buildLayers(history), qty, method, item.currentCost())
}

// buildLayers returns receipts and positive adjustments, oldest first.
func buildLayers(history []Transaction) []costLayer {
	layers := make([]costLayer, 0, len(history))
	for _, t := range history {
		inbound := t.Type == TransactionTypeReceipt ||
			(t.Type == TransactionTypeAdjustment && t.Quantity > 0)
		if !inbound {
			continue
		}
		layers = append(layers, costLayer{Date: t.Date, CreatedAt: t.CreatedAt, Quantity: t.Quantity, UnitCost: t.UnitCost})
	}
	sort.SliceStable(layers, func(i, j int) bool {
		if layers[i].Date.Equal(layers[j].Date) {
			return layers[i].CreatedAt.Before(layers[j].CreatedAt)
		}
		return layers[i].Date.Before(layers[j].Date)
	})
	return layers
}

// valueLayers prices qty against sorted layers. FIFO consumes the oldest
// layers first, so what remains sits in the newest layers; LIFO is the
// mirror image. Quantity not covered by any layer is priced at fallback.
func valueLayers(layers []costLayer, qty float64, method ValuationMethod, fallback float64) float64 {
	remaining := decimal.NewFromFloat(qty)
	value := decimal.Zero
	take := func(l costLayer) {
		if !remaining.IsPositive() {
			return
		}
		q := decimal.Min(remaining, decimal.NewFromFloat(l.Quantity))
		value = value.Add(q.Mul(decimal.NewFromFloat(l.UnitCost)))
		remaining = remaining.Sub(q)
	}
	if method == ValuationLIFO {
		for i := 0; i < len(layers); i++ {
			take(layers[i])
		}
	} else {
		for i := len(layers) - 1; i >= 0; i-- {
			take(layers[i])
		}
	}
	if remaining.IsPositive() {
		value = value.Add(remaining.Mul(decimal.NewFromFloat(fallback)))
	}
	f, _ := value.Round(2).Float64()
	return f
}
