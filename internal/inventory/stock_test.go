package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransferConservesQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, "REBAR", 2)
	a := f.warehouse(t, "A")
	b := f.warehouse(t, "B")
	f.receive(t, item.ID, a.ID, 80, 2)

	for _, qty := range []float64{10, 5.5, 20} {
		beforeA, beforeB, total := f.stock(t, item.ID, a.ID), f.stock(t, item.ID, b.ID), f.stock(t, item.ID, "")
		_, err := f.svc.Transfer(ctx, TransferInput{ItemID: item.ID, FromWarehouseID: a.ID, ToWarehouseID: b.ID, Quantity: qty})
		require.NoError(t, err)
		require.Equal(t, round2(beforeA-qty), f.stock(t, item.ID, a.ID))
		require.Equal(t, round2(beforeB+qty), f.stock(t, item.ID, b.ID))
		require.Equal(t, total, f.stock(t, item.ID, ""))
	}
	require.Equal(t, 44.5, f.stock(t, item.ID, a.ID))
	require.Equal(t, 35.5, f.stock(t, item.ID, b.ID))
}

func TestStockLevelAllTypes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, "CEMENT", 5)
	wh := f.warehouse(t, "Yard")

	f.receive(t, item.ID, wh.ID, 50, 5)
	_, err := f.svc.Issue(ctx, IssueInput{ItemID: item.ID, WarehouseID: wh.ID, Quantity: 12})
	require.NoError(t, err)
	_, err = f.svc.RecordWaste(ctx, WasteInput{ItemID: item.ID, WarehouseID: wh.ID, Quantity: 3})
	require.NoError(t, err)
	_, err = f.svc.Adjust(ctx, AdjustmentInput{ItemID: item.ID, WarehouseID: wh.ID, Quantity: -4})
	require.NoError(t, err)
	_, err = f.svc.Adjust(ctx, AdjustmentInput{ItemID: item.ID, WarehouseID: wh.ID, Quantity: 1.5})
	require.NoError(t, err)

	require.Equal(t, 32.5, f.stock(t, item.ID, wh.ID))
	require.Equal(t, 32.5, f.stock(t, item.ID, ""))

	_, err = f.svc.StockLevel(ctx, "missing", "")
	requireKind(t, err, ErrNotFound)
	_, err = f.svc.StockLevel(ctx, item.ID, "missing")
	requireKind(t, err, ErrNotFound)
}

func TestReplayStockScoped(t *testing.T) {
	primary := []Transaction{
		{Type: TransactionTypeReceipt, WarehouseID: "A", Quantity: 10},
		{Type: TransactionTypeTransfer, WarehouseID: "A", ToWarehouseID: "B", Quantity: 4},
		{Type: TransactionTypeIssue, WarehouseID: "A", Quantity: 1},
	}
	inbound := []Transaction{
		{Type: TransactionTypeTransfer, WarehouseID: "C", ToWarehouseID: "A", Quantity: 2.25},
		{Type: TransactionTypeReceipt, WarehouseID: "C", ToWarehouseID: "A", Quantity: 100},
	}
	require.Equal(t, 7.25, replayStock(primary, inbound, "A"))
	require.Equal(t, 9.0, replayStock(primary, nil, ""))
}

func TestReplayStockSkipsSelfTransferInInbound(t *testing.T) {
	self := Transaction{Type: TransactionTypeTransfer, WarehouseID: "A", ToWarehouseID: "A", Quantity: 3}
	// The first pass nets the self transfer to zero; the second pass must not add it again.
	require.Equal(t, 0.0, replayStock([]Transaction{self}, []Transaction{self}, "A"))
}

func TestStockByWarehouse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	zed := f.item(t, "ZED", 1)
	abc := f.item(t, "ABC", 1)
	gone := f.item(t, "GONE", 1)
	a := f.warehouse(t, "A")
	b := f.warehouse(t, "B")

	f.receive(t, zed.ID, a.ID, 5, 1)
	f.receive(t, abc.ID, b.ID, 9, 1)
	f.receive(t, gone.ID, a.ID, 2, 1)
	_, err := f.svc.Issue(ctx, IssueInput{ItemID: gone.ID, WarehouseID: a.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = f.svc.Transfer(ctx, TransferInput{ItemID: abc.ID, FromWarehouseID: b.ID, ToWarehouseID: a.ID, Quantity: 4})
	require.NoError(t, err)

	rows, err := f.svc.StockByWarehouse(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "ABC", rows[0].ItemNumber)
	require.Equal(t, 4.0, rows[0].Quantity)
	require.Equal(t, "ZED", rows[1].ItemNumber)
	require.Equal(t, 5.0, rows[1].Quantity)
}

func TestLowStockItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wh := f.warehouse(t, "Shop")

	low, err := f.svc.CreateItem(ctx, ItemInput{Number: "LOW", ReorderPoint: 10, ReorderQuantity: 50})
	require.NoError(t, err)
	lower, err := f.svc.CreateItem(ctx, ItemInput{Number: "LOWER", ReorderPoint: 20})
	require.NoError(t, err)
	ok, err := f.svc.CreateItem(ctx, ItemInput{Number: "OK", ReorderPoint: 5})
	require.NoError(t, err)
	_, err = f.svc.CreateItem(ctx, ItemInput{Number: "UNTRACKED"})
	require.NoError(t, err)

	f.receive(t, low.ID, wh.ID, 10, 1)
	f.receive(t, lower.ID, wh.ID, 2, 1)
	f.receive(t, ok.ID, wh.ID, 6, 1)

	rows, err := f.svc.LowStockItems(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "LOWER", rows[0].ItemNumber)
	require.Equal(t, 18.0, rows[0].Deficit)
	require.Equal(t, "LOW", rows[1].ItemNumber)
	require.Equal(t, 0.0, rows[1].Deficit)
	require.Equal(t, 50.0, rows[1].ReorderQuantity)
}

func TestLowStockItemsSkipsItemsWithoutReorderPoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wh := f.warehouse(t, "Yard")

	untracked, err := f.svc.CreateItem(ctx, ItemInput{Number: "NOPOLICY"})
	require.NoError(t, err)
	tracked, err := f.svc.CreateItem(ctx, ItemInput{Number: "POLICY", ReorderPoint: 1})
	require.NoError(t, err)

	f.receive(t, untracked.ID, wh.ID, 5, 2)
	_, err = f.svc.Issue(ctx, IssueInput{ItemID: untracked.ID, WarehouseID: wh.ID, Quantity: 5})
	require.NoError(t, err)
	require.Zero(t, f.stock(t, untracked.ID, wh.ID))

	rows, err := f.svc.LowStockItems(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, tracked.ID, rows[0].ItemID)
	require.Equal(t, 1.0, rows[0].Deficit)
}
