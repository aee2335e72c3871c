package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

type memoryRepo struct {
	mu           sync.Mutex
	items        map[string]Item
	warehouses   map[string]Warehouse
	txns         []Transaction
	requisitions map[string]Requisition
	fills        []RequisitionFill
	counts       map[string]Count
	failInsert   error
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		items:        make(map[string]Item),
		warehouses:   make(map[string]Warehouse),
		requisitions: make(map[string]Requisition),
		counts:       make(map[string]Count),
	}
}

// snapshot copies mutable state so WithTx can roll back on error.
func (r *memoryRepo) snapshot() *memoryRepo {
	cp := newMemoryRepo()
	for k, v := range r.items {
		cp.items[k] = v
	}
	for k, v := range r.warehouses {
		cp.warehouses[k] = v
	}
	for k, v := range r.requisitions {
		cp.requisitions[k] = v
	}
	for k, v := range r.counts {
		cp.counts[k] = v
	}
	cp.txns = append([]Transaction(nil), r.txns...)
	cp.fills = append([]RequisitionFill(nil), r.fills...)
	return cp
}

func (r *memoryRepo) restore(from *memoryRepo) {
	r.items = from.items
	r.warehouses = from.warehouses
	r.requisitions = from.requisitions
	r.counts = from.counts
	r.txns = from.txns
	r.fills = from.fills
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	before := r.snapshot()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.restore(before)
		return err
	}
	return nil
}

func (r *memoryRepo) GetItem(_ context.Context, id string) (Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getItem(id)
}

func (r *memoryRepo) getItem(id string) (Item, error) {
	item, ok := r.items[id]
	if !ok {
		return Item{}, notFound("item", id)
	}
	return item, nil
}

func (r *memoryRepo) ListItems(_ context.Context, activeOnly bool) ([]Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Item{}
	for _, item := range r.items {
		if activeOnly && !item.Active {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (r *memoryRepo) GetWarehouse(_ context.Context, id string) (Warehouse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getWarehouse(id)
}

func (r *memoryRepo) getWarehouse(id string) (Warehouse, error) {
	wh, ok := r.warehouses[id]
	if !ok {
		return Warehouse{}, notFound("warehouse", id)
	}
	return wh, nil
}

func (r *memoryRepo) ListWarehouses(_ context.Context, activeOnly bool) ([]Warehouse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Warehouse{}
	for _, wh := range r.warehouses {
		if activeOnly && !wh.Active {
			continue
		}
		out = append(out, wh)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepo) ListTransactions(_ context.Context, filter TransactionFilter) ([]Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listTransactions(filter), nil
}

func (r *memoryRepo) listTransactions(filter TransactionFilter) []Transaction {
	out := []Transaction{}
	for _, t := range r.txns {
		if filter.ItemID != "" && t.ItemID != filter.ItemID {
			continue
		}
		if filter.WarehouseID != "" && t.WarehouseID != filter.WarehouseID {
			continue
		}
		if filter.ToWarehouseID != "" && t.ToWarehouseID != filter.ToWarehouseID {
			continue
		}
		if filter.JobID != "" && t.JobID != filter.JobID {
			continue
		}
		if len(filter.Types) > 0 && !containsType(filter.Types, t.Type) {
			continue
		}
		if !filter.From.IsZero() && t.Date.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && t.Date.After(filter.To) {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Date.Before(out[j].Date)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func containsType(types []TransactionType, t TransactionType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func (r *memoryRepo) GetRequisition(_ context.Context, id string) (Requisition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requisitions[id]
	if !ok {
		return Requisition{}, notFound("requisition", id)
	}
	return req, nil
}

func (r *memoryRepo) ListRequisitions(_ context.Context, filter RequisitionFilter) ([]Requisition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Requisition{}
	for _, req := range r.requisitions {
		if filter.JobID != "" && req.JobID != filter.JobID {
			continue
		}
		if filter.ItemID != "" && req.ItemID != filter.ItemID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepo) ListRequisitionFills(_ context.Context, requisitionID string) ([]RequisitionFill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []RequisitionFill{}
	for _, f := range r.fills {
		if f.RequisitionID == requisitionID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetCount(_ context.Context, id string) (Count, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.counts[id]
	if !ok {
		return Count{}, notFound("count", id)
	}
	return c, nil
}

func (r *memoryRepo) ListCounts(_ context.Context, filter CountFilter) ([]Count, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Count{}
	for _, c := range r.counts {
		if filter.WarehouseID != "" && c.WarehouseID != filter.WarehouseID {
			continue
		}
		if filter.ItemID != "" && c.ItemID != filter.ItemID {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (tx *memoryTx) GetItemForUpdate(_ context.Context, id string) (Item, error) {
	return tx.repo.getItem(id)
}

func (tx *memoryTx) InsertItem(_ context.Context, item Item) error {
	for _, existing := range tx.repo.items {
		if existing.Number == item.Number {
			return fmt.Errorf("%w: item number %s", ErrDuplicate, item.Number)
		}
	}
	tx.repo.items[item.ID] = item
	return nil
}

func (tx *memoryTx) UpdateItem(_ context.Context, item Item) error {
	for _, existing := range tx.repo.items {
		if existing.Number == item.Number && existing.ID != item.ID {
			return fmt.Errorf("%w: item number %s", ErrDuplicate, item.Number)
		}
	}
	current, ok := tx.repo.items[item.ID]
	if !ok {
		return notFound("item", item.ID)
	}
	item.LastCost = current.LastCost
	item.AvgCost = current.AvgCost
	tx.repo.items[item.ID] = item
	return nil
}

func (tx *memoryTx) UpdateItemCosts(_ context.Context, id string, lastCost, avgCost float64) error {
	item, ok := tx.repo.items[id]
	if !ok {
		return notFound("item", id)
	}
	item.LastCost = lastCost
	item.AvgCost = avgCost
	tx.repo.items[id] = item
	return nil
}

func (tx *memoryTx) GetWarehouse(_ context.Context, id string) (Warehouse, error) {
	return tx.repo.getWarehouse(id)
}

func (tx *memoryTx) InsertWarehouse(_ context.Context, wh Warehouse) error {
	tx.repo.warehouses[wh.ID] = wh
	return nil
}

func (tx *memoryTx) DeactivateWarehouse(_ context.Context, id string) error {
	wh, ok := tx.repo.warehouses[id]
	if !ok {
		return notFound("warehouse", id)
	}
	wh.Active = false
	tx.repo.warehouses[id] = wh
	return nil
}

func (tx *memoryTx) InsertTransaction(_ context.Context, txn Transaction) error {
	if tx.repo.failInsert != nil {
		return tx.repo.failInsert
	}
	tx.repo.txns = append(tx.repo.txns, txn)
	return nil
}

func (tx *memoryTx) ListTransactions(_ context.Context, filter TransactionFilter) ([]Transaction, error) {
	return tx.repo.listTransactions(filter), nil
}

func (tx *memoryTx) GetRequisitionForUpdate(_ context.Context, id string) (Requisition, error) {
	req, ok := tx.repo.requisitions[id]
	if !ok {
		return Requisition{}, notFound("requisition", id)
	}
	return req, nil
}

func (tx *memoryTx) InsertRequisition(_ context.Context, req Requisition) error {
	tx.repo.requisitions[req.ID] = req
	return nil
}

func (tx *memoryTx) UpdateRequisition(_ context.Context, req Requisition) error {
	if _, ok := tx.repo.requisitions[req.ID]; !ok {
		return notFound("requisition", req.ID)
	}
	tx.repo.requisitions[req.ID] = req
	return nil
}

func (tx *memoryTx) InsertRequisitionFill(_ context.Context, fill RequisitionFill) error {
	tx.repo.fills = append(tx.repo.fills, fill)
	return nil
}

func (tx *memoryTx) GetCountForUpdate(_ context.Context, id string) (Count, error) {
	c, ok := tx.repo.counts[id]
	if !ok {
		return Count{}, notFound("count", id)
	}
	return c, nil
}

func (tx *memoryTx) InsertCount(_ context.Context, c Count) error {
	tx.repo.counts[c.ID] = c
	return nil
}

func (tx *memoryTx) UpdateCount(_ context.Context, c Count) error {
	if _, ok := tx.repo.counts[c.ID]; !ok {
		return notFound("count", c.ID)
	}
	tx.repo.counts[c.ID] = c
	return nil
}

type memoryAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

type memoryEvents struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (e *memoryEvents) Publish(_ context.Context, evt Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.events = append(e.events, evt)
	return nil
}

func (e *memoryEvents) types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, evt := range e.events {
		out = append(out, evt.Type)
	}
	return out
}

type memoryIdempotency struct {
	keys map[string]struct{}
}

func (m *memoryIdempotency) CheckAndInsert(_ context.Context, key, _ string) error {
	if _, ok := m.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = struct{}{}
	return nil
}

func (m *memoryIdempotency) Delete(_ context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

type heldLocker struct{}

func (heldLocker) Acquire(context.Context, string) (func(context.Context) error, error) {
	return nil, shared.ErrLockHeld
}

type countingMetrics struct {
	postings map[string]int
}

func (m *countingMetrics) ObservePosting(txType string, _ float64) {
	m.postings[txType]++
}

type fixture struct {
	svc     *Service
	repo    *memoryRepo
	audit   *memoryAudit
	events  *memoryEvents
	metrics *countingMetrics
}

// newFixture wires a service whose clock ticks one second per call, so
// CreatedAt orders transactions posted on the same business date.
func newFixture(t testing.TB) *fixture {
	t.Helper()
	repo := newMemoryRepo()
	audit := &memoryAudit{}
	events := &memoryEvents{}
	metrics := &countingMetrics{postings: map[string]int{}}
	clock := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	svc := NewService(repo, ServiceDeps{
		Audit:       audit,
		Idempotency: &memoryIdempotency{keys: map[string]struct{}{}},
		Events:      events,
		Metrics:     metrics,
		Clock: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			clock = clock.Add(time.Second)
			return clock
		},
	})
	return &fixture{svc: svc, repo: repo, audit: audit, events: events, metrics: metrics}
}

func (f *fixture) item(t testing.TB, number string, unitCost float64) Item {
	t.Helper()
	item, err := f.svc.CreateItem(context.Background(), ItemInput{Number: number, Description: number, UnitOfMeasure: "EA", UnitCost: unitCost})
	require.NoError(t, err)
	return item
}

func (f *fixture) warehouse(t testing.TB, name string) Warehouse {
	t.Helper()
	wh, err := f.svc.CreateWarehouse(context.Background(), WarehouseInput{Name: name})
	require.NoError(t, err)
	return wh
}

func (f *fixture) receive(t testing.TB, itemID, whID string, qty, cost float64) Transaction {
	t.Helper()
	txn, err := f.svc.Receive(context.Background(), ReceiptInput{ItemID: itemID, WarehouseID: whID, Quantity: qty, UnitCost: cost})
	require.NoError(t, err)
	return txn
}

func (f *fixture) stock(t testing.TB, itemID, whID string) float64 {
	t.Helper()
	qty, err := f.svc.StockLevel(context.Background(), itemID, whID)
	require.NoError(t, err)
	return qty
}

func requireKind(t *testing.T, err, kind error) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, errors.Is(err, kind), "expected %v, got %v", kind, err)
}
