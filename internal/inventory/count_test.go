package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPostCountIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, "VALVE", 20)
	wh := f.warehouse(t, "Shop")
	f.receive(t, item.ID, wh.ID, 10, 20)

	count, err := f.svc.CreateCount(ctx, CreateCountInput{WarehouseID: wh.ID, ItemID: item.ID, CountedQuantity: 7})
	require.NoError(t, err)
	require.Equal(t, 10.0, count.SystemQuantity)
	require.Equal(t, -3.0, count.Variance)
	require.Equal(t, CountStatusDraft, count.Status)

	_, err = f.svc.PostCount(ctx, count.ID, "auditor")
	requireKind(t, err, ErrStateConflict)

	_, err = f.svc.CompleteCount(ctx, count.ID, "auditor")
	require.NoError(t, err)

	posted, err := f.svc.PostCount(ctx, count.ID, "auditor")
	require.NoError(t, err)
	require.Equal(t, CountStatusPosted, posted.Status)
	require.True(t, posted.AdjustmentPosted)
	require.NotEmpty(t, posted.AdjustmentTransactionID)
	require.Len(t, f.repo.txns, 2)

	adj := f.repo.txns[1]
	require.Equal(t, TransactionTypeAdjustment, adj.Type)
	require.Equal(t, -3.0, adj.Quantity)
	require.Equal(t, -60.0, adj.TotalCost)
	require.Equal(t, count.ID, adj.Reference)
	require.Equal(t, 7.0, f.stock(t, item.ID, wh.ID))

	_, err = f.svc.PostCount(ctx, count.ID, "auditor")
	requireKind(t, err, ErrStateConflict)
	require.Len(t, f.repo.txns, 2)
	require.Equal(t, 1, f.metrics.postings["adjustment"])
}

func TestPostCountWithoutVarianceWritesNoTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, "HOSE", 1)
	wh := f.warehouse(t, "Shop")
	system := 4.0

	count, err := f.svc.CreateCount(ctx, CreateCountInput{WarehouseID: wh.ID, ItemID: item.ID, SystemQuantity: &system, CountedQuantity: 4})
	require.NoError(t, err)
	_, err = f.svc.CompleteCount(ctx, count.ID, "")
	require.NoError(t, err)

	posted, err := f.svc.PostCount(ctx, count.ID, "")
	require.NoError(t, err)
	require.True(t, posted.AdjustmentPosted)
	require.Empty(t, posted.AdjustmentTransactionID)
	require.Empty(t, f.repo.txns)
}

func TestPostCountRollsBackOnInsertFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, "FUSE", 1)
	wh := f.warehouse(t, "Shop")
	system := 2.0

	count, err := f.svc.CreateCount(ctx, CreateCountInput{WarehouseID: wh.ID, ItemID: item.ID, SystemQuantity: &system, CountedQuantity: 5})
	require.NoError(t, err)
	_, err = f.svc.CompleteCount(ctx, count.ID, "")
	require.NoError(t, err)

	f.repo.failInsert = context.DeadlineExceeded
	_, err = f.svc.PostCount(ctx, count.ID, "")
	require.Error(t, err)

	stored, err := f.svc.GetCount(ctx, count.ID)
	require.NoError(t, err)
	require.Equal(t, CountStatusCompleted, stored.Status)
	require.False(t, stored.AdjustmentPosted)
}

func TestCountLineUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.item(t, "LAMP", 1)
	wh := f.warehouse(t, "Shop")
	system := 12.0

	count, err := f.svc.CreateCount(ctx, CreateCountInput{WarehouseID: wh.ID, ItemID: item.ID, SystemQuantity: &system})
	require.NoError(t, err)

	count, err = f.svc.UpdateCountLine(ctx, count.ID, 15.5, "auditor")
	require.NoError(t, err)
	require.Equal(t, CountStatusInProgress, count.Status)
	require.Equal(t, 3.5, count.Variance)
	require.Equal(t, "auditor", count.CountedBy)

	_, err = f.svc.UpdateCountLine(ctx, count.ID, -1, "auditor")
	requireKind(t, err, ErrValidation)

	_, err = f.svc.CompleteCount(ctx, count.ID, "auditor")
	require.NoError(t, err)
	_, err = f.svc.PostCount(ctx, count.ID, "auditor")
	require.NoError(t, err)

	_, err = f.svc.UpdateCountLine(ctx, count.ID, 1, "auditor")
	requireKind(t, err, ErrStateConflict)
	_, err = f.svc.CompleteCount(ctx, count.ID, "auditor")
	requireKind(t, err, ErrStateConflict)

	list, err := f.svc.ListCounts(ctx, CountFilter{Status: CountStatusPosted})
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = f.svc.GetCount(ctx, "missing")
	requireKind(t, err, ErrNotFound)
}
