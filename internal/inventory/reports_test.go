package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJobMaterialSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pipe := f.item(t, "PIPE", 0)
	elbow := f.item(t, "ELBOW", 0)
	wh := f.warehouse(t, "Site")

	f.receive(t, pipe.ID, wh.ID, 100, 4)
	f.receive(t, elbow.ID, wh.ID, 50, 1.5)
	_, err := f.svc.Issue(ctx, IssueInput{ItemID: pipe.ID, WarehouseID: wh.ID, Quantity: 10, JobID: "J1"})
	require.NoError(t, err)
	_, err = f.svc.Issue(ctx, IssueInput{ItemID: pipe.ID, WarehouseID: wh.ID, Quantity: 5, JobID: "J1"})
	require.NoError(t, err)
	_, err = f.svc.RecordWaste(ctx, WasteInput{ItemID: pipe.ID, WarehouseID: wh.ID, Quantity: 2, JobID: "J1"})
	require.NoError(t, err)
	_, err = f.svc.Issue(ctx, IssueInput{ItemID: elbow.ID, WarehouseID: wh.ID, Quantity: 8, JobID: "J1"})
	require.NoError(t, err)
	_, err = f.svc.Issue(ctx, IssueInput{ItemID: elbow.ID, WarehouseID: wh.ID, Quantity: 8, JobID: "J2"})
	require.NoError(t, err)

	summary, err := f.svc.JobMaterialSummary(ctx, "J1")
	require.NoError(t, err)
	require.Len(t, summary.Rows, 2)
	require.Equal(t, "ELBOW", summary.Rows[0].ItemNumber)
	require.Equal(t, 12.0, summary.Rows[0].IssuedCost)

	pipeRow := summary.Rows[1]
	require.Equal(t, 15.0, pipeRow.IssuedQuantity)
	require.Equal(t, 60.0, pipeRow.IssuedCost)
	require.Equal(t, 2.0, pipeRow.WastedQuantity)
	require.Equal(t, 8.0, pipeRow.WastedCost)
	require.Equal(t, 68.0, pipeRow.TotalCost)

	require.Equal(t, 72.0, summary.IssuedCost)
	require.Equal(t, 8.0, summary.WastedCost)
	require.Equal(t, 80.0, summary.TotalCost)

	_, err = f.svc.JobMaterialSummary(ctx, "")
	requireKind(t, err, ErrValidation)
}

func TestWasteReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, "PAINT", 0)
	shop := f.warehouse(t, "Shop")
	truck := f.warehouse(t, "Truck")

	f.receive(t, item.ID, shop.ID, 10, 9)
	f.receive(t, item.ID, truck.ID, 10, 9)
	_, err := f.svc.RecordWaste(ctx, WasteInput{ItemID: item.ID, WarehouseID: shop.ID, Quantity: 1, Notes: "spilled"})
	require.NoError(t, err)
	_, err = f.svc.RecordWaste(ctx, WasteInput{ItemID: item.ID, WarehouseID: truck.ID, Quantity: 2.5})
	require.NoError(t, err)

	report, err := f.svc.WasteReport(ctx, WasteFilter{})
	require.NoError(t, err)
	require.Len(t, report.Rows, 2)
	require.Equal(t, 31.5, report.TotalCost)
	require.Equal(t, "Shop", report.Rows[0].WarehouseName)
	require.Equal(t, "PAINT", report.Rows[0].ItemNumber)
	require.Equal(t, "spilled", report.Rows[0].Notes)

	scoped, err := f.svc.WasteReport(ctx, WasteFilter{WarehouseID: truck.ID})
	require.NoError(t, err)
	require.Len(t, scoped.Rows, 1)
	require.Equal(t, 22.5, scoped.TotalCost)
}
