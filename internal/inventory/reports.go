package inventory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// JobMaterialRow aggregates issued and wasted material for one item on a job.
type JobMaterialRow struct {
	ItemID         string  `json:"item_id"`
	ItemNumber     string  `json:"item_number"`
	Description    string  `json:"description"`
	UnitOfMeasure  string  `json:"unit_of_measure"`
	IssuedQuantity float64 `json:"issued_quantity"`
	IssuedCost     float64 `json:"issued_cost"`
	WastedQuantity float64 `json:"wasted_quantity"`
	WastedCost     float64 `json:"wasted_cost"`
	TotalCost      float64 `json:"total_cost"`
}

// JobMaterialSummary is the material consumption of a job.
type JobMaterialSummary struct {
	JobID      string           `json:"job_id"`
	Rows       []JobMaterialRow `json:"rows"`
	IssuedCost float64          `json:"issued_cost"`
	WastedCost float64          `json:"wasted_cost"`
	TotalCost  float64          `json:"total_cost"`
}

// WasteFilter narrows the waste report. Zero values are ignored.
type WasteFilter struct {
	From        time.Time
	To          time.Time
	WarehouseID string
	JobID       string
	ItemID      string
}

// WasteRow is a waste transaction joined with item and warehouse names.
type WasteRow struct {
	TransactionID string    `json:"transaction_id"`
	Date          time.Time `json:"date"`
	ItemID        string    `json:"item_id"`
	ItemNumber    string    `json:"item_number"`
	Description   string    `json:"description"`
	WarehouseID   string    `json:"warehouse_id"`
	WarehouseName string    `json:"warehouse_name"`
	JobID         string    `json:"job_id,omitempty"`
	Quantity      float64   `json:"quantity"`
	UnitCost      float64   `json:"unit_cost"`
	TotalCost     float64   `json:"total_cost"`
	Notes         string    `json:"notes,omitempty"`
}

// WasteReport lists waste entries and their total cost.
type WasteReport struct {
	Rows      []WasteRow `json:"rows"`
	TotalCost float64    `json:"total_cost"`
}

type jobAccumulator struct {
	issuedQty, issuedCost, wastedQty, wastedCost decimal.Decimal
}

// JobMaterialSummary totals issue and waste transactions recorded against jobID.
func (s *Service) JobMaterialSummary(ctx context.Context, jobID string) (JobMaterialSummary, error) {
	if strings.TrimSpace(jobID) == "" {
		return JobMaterialSummary{}, invalid("job id is required")
	}
	txns, err := s.repo.ListTransactions(ctx, TransactionFilter{
		JobID: jobID,
		Types: []TransactionType{TransactionTypeIssue, TransactionTypeWaste},
	})
	if err != nil {
		return JobMaterialSummary{}, err
	}
	items, err := s.itemIndex(ctx, false)
	if err != nil {
		return JobMaterialSummary{}, err
	}
	acc := make(map[string]*jobAccumulator)
	for _, t := range txns {
		a, ok := acc[t.ItemID]
		if !ok {
			a = &jobAccumulator{}
			acc[t.ItemID] = a
		}
		q := decimal.NewFromFloat(t.Quantity)
		c := decimal.NewFromFloat(t.TotalCost)
		switch t.Type {
		case TransactionTypeIssue:
			a.issuedQty = a.issuedQty.Add(q)
			a.issuedCost = a.issuedCost.Add(c)
		case TransactionTypeWaste:
			a.wastedQty = a.wastedQty.Add(q)
			a.wastedCost = a.wastedCost.Add(c)
		}
	}
	summary := JobMaterialSummary{JobID: jobID, Rows: make([]JobMaterialRow, 0, len(acc))}
	var issued, wasted decimal.Decimal
	for itemID, a := range acc {
		item := items[itemID]
		summary.Rows = append(summary.Rows, JobMaterialRow{
			ItemID:         itemID,
			ItemNumber:     item.Number,
			Description:    item.Description,
			UnitOfMeasure:  item.UnitOfMeasure,
			IssuedQuantity: toFloat(a.issuedQty),
			IssuedCost:     toFloat(a.issuedCost),
			WastedQuantity: toFloat(a.wastedQty),
			WastedCost:     toFloat(a.wastedCost),
			TotalCost:      toFloat(a.issuedCost.Add(a.wastedCost)),
		})
		issued = issued.Add(a.issuedCost)
		wasted = wasted.Add(a.wastedCost)
	}
	sort.Slice(summary.Rows, func(i, j int) bool { return summary.Rows[i].ItemNumber < summary.Rows[j].ItemNumber })
	summary.IssuedCost = toFloat(issued)
	summary.WastedCost = toFloat(wasted)
	summary.TotalCost = toFloat(issued.Add(wasted))
	return summary, nil
}

// WasteReport lists waste transactions matching filter, oldest first.
func (s *Service) WasteReport(ctx context.Context, filter WasteFilter) (WasteReport, error) {
	txns, err := s.repo.ListTransactions(ctx, TransactionFilter{
		ItemID:      filter.ItemID,
		WarehouseID: filter.WarehouseID,
		JobID:       filter.JobID,
		Types:       []TransactionType{TransactionTypeWaste},
		From:        filter.From,
		To:          filter.To,
	})
	if err != nil {
		return WasteReport{}, err
	}
	items, err := s.itemIndex(ctx, false)
	if err != nil {
		return WasteReport{}, err
	}
	warehouses, err := s.repo.ListWarehouses(ctx, false)
	if err != nil {
		return WasteReport{}, err
	}
	names := make(map[string]string, len(warehouses))
	for _, w := range warehouses {
		names[w.ID] = w.Name
	}
	report := WasteReport{Rows: make([]WasteRow, 0, len(txns))}
	total := decimal.Zero
	for _, t := range txns {
		item := items[t.ItemID]
		report.Rows = append(report.Rows, WasteRow{
			TransactionID: t.ID,
			Date:          t.Date,
			ItemID:        t.ItemID,
			ItemNumber:    item.Number,
			Description:   item.Description,
			WarehouseID:   t.WarehouseID,
			WarehouseName: names[t.WarehouseID],
			JobID:         t.JobID,
			Quantity:      t.Quantity,
			UnitCost:      t.UnitCost,
			TotalCost:     t.TotalCost,
			Notes:         t.Notes,
		})
		total = total.Add(decimal.NewFromFloat(t.TotalCost))
	}
	report.TotalCost = toFloat(total)
	return report, nil
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}
