package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockledger/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, id string) (Item, error)
	InsertItem(ctx context.Context, item Item) error
	UpdateItem(ctx context.Context, item Item) error
	UpdateItemCosts(ctx context.Context, id string, lastCost, avgCost float64) error
	GetWarehouse(ctx context.Context, id string) (Warehouse, error)
	InsertWarehouse(ctx context.Context, wh Warehouse) error
	DeactivateWarehouse(ctx context.Context, id string) error
	InsertTransaction(ctx context.Context, txn Transaction) error
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	GetRequisitionForUpdate(ctx context.Context, id string) (Requisition, error)
	InsertRequisition(ctx context.Context, req Requisition) error
	UpdateRequisition(ctx context.Context, req Requisition) error
	InsertRequisitionFill(ctx context.Context, fill RequisitionFill) error
	GetCountForUpdate(ctx context.Context, id string) (Count, error)
	InsertCount(ctx context.Context, c Count) error
	UpdateCount(ctx context.Context, c Count) error
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const itemColumns = `id, number, description, unit_of_measure, category, preferred_vendor, reorder_point, reorder_quantity, unit_cost, last_cost, avg_cost, active, created_at, updated_at`

const warehouseColumns = `id, name, wh_type, job_id, active, created_at`

const transactionColumns = `id, item_id, warehouse_id, to_warehouse_id, tx_type, quantity, unit_cost, total_cost, tx_date, job_id, cost_code, reference, lot_number, po_number, notes, created_by, created_at`

const requisitionColumns = `id, number, job_id, item_id, warehouse_id, quantity, filled_quantity, status, requested_by, needed_by, notes, approved_by, approved_at, created_at, updated_at`

const countColumns = `id, warehouse_id, item_id, count_date, system_quantity, counted_quantity, variance, status, counted_by, notes, adjustment_posted, adjustment_tx_id, created_at, updated_at`

func (r *Repository) GetItem(ctx context.Context, id string) (Item, error) {
	return getItem(ctx, r.pool, id, false)
}

func (r *Repository) ListItems(ctx context.Context, activeOnly bool) ([]Item, error) {
	sql := `SELECT ` + itemColumns + ` FROM inventory_items`
	if activeOnly {
		sql += ` WHERE active`
	}
	sql += ` ORDER BY number ASC`
	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *Repository) GetWarehouse(ctx context.Context, id string) (Warehouse, error) {
	return getWarehouse(ctx, r.pool, id)
}

func (r *Repository) ListWarehouses(ctx context.Context, activeOnly bool) ([]Warehouse, error) {
	sql := `SELECT ` + warehouseColumns + ` FROM inventory_warehouses`
	if activeOnly {
		sql += ` WHERE active`
	}
	sql += ` ORDER BY name ASC`
	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	warehouses := []Warehouse{}
	for rows.Next() {
		var wh Warehouse
		if err := rows.Scan(&wh.ID, &wh.Name, &wh.Type, &wh.JobID, &wh.Active, &wh.CreatedAt); err != nil {
			return nil, err
		}
		warehouses = append(warehouses, wh)
	}
	return warehouses, rows.Err()
}

func (r *Repository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	return listTransactions(ctx, r.pool, filter)
}

func (r *Repository) GetRequisition(ctx context.Context, id string) (Requisition, error) {
	return getRequisition(ctx, r.pool, id, false)
}

func (r *Repository) ListRequisitions(ctx context.Context, filter RequisitionFilter) ([]Requisition, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.JobID != "" {
		add("job_id = $%d", filter.JobID)
	}
	if filter.ItemID != "" {
		add("item_id = $%d", filter.ItemID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	sql := `SELECT ` + requisitionColumns + ` FROM inventory_requisitions` + where(conds) + ` ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Requisition{}
	for rows.Next() {
		req, err := scanRequisition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (r *Repository) ListRequisitionFills(ctx context.Context, requisitionID string) ([]RequisitionFill, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, requisition_id, quantity, filled_by, filled_at
FROM inventory_requisition_fills WHERE requisition_id=$1 ORDER BY filled_at ASC, id ASC`, requisitionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	fills := []RequisitionFill{}
	for rows.Next() {
		var f RequisitionFill
		if err := rows.Scan(&f.ID, &f.RequisitionID, &f.Quantity, &f.FilledBy, &f.FilledAt); err != nil {
			return nil, err
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

func (r *Repository) GetCount(ctx context.Context, id string) (Count, error) {
	return getCount(ctx, r.pool, id, false)
}

func (r *Repository) ListCounts(ctx context.Context, filter CountFilter) ([]Count, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.WarehouseID != "" {
		add("warehouse_id = $%d", filter.WarehouseID)
	}
	if filter.ItemID != "" {
		add("item_id = $%d", filter.ItemID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	sql := `SELECT ` + countColumns + ` FROM inventory_counts` + where(conds) + ` ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Count{}
	for rows.Next() {
		c, err := scanCount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *txRepository) GetItemForUpdate(ctx context.Context, id string) (Item, error) {
	return getItem(ctx, r.tx, id, true)
}

func (r *txRepository) InsertItem(ctx context.Context, item Item) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_items (`+itemColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		item.ID, item.Number, item.Description, item.UnitOfMeasure, item.Category, item.PreferredVendor,
		item.ReorderPoint, item.ReorderQuantity, item.UnitCost, item.LastCost, item.AvgCost, item.Active,
		item.CreatedAt, item.UpdatedAt)
	return mapWriteError(err, "item number "+item.Number)
}

func (r *txRepository) UpdateItem(ctx context.Context, item Item) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_items SET number=$2, description=$3, unit_of_measure=$4, category=$5,
preferred_vendor=$6, reorder_point=$7, reorder_quantity=$8, unit_cost=$9, active=$10, updated_at=$11 WHERE id=$1`,
		item.ID, item.Number, item.Description, item.UnitOfMeasure, item.Category, item.PreferredVendor,
		item.ReorderPoint, item.ReorderQuantity, item.UnitCost, item.Active, item.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "item number "+item.Number)
	}
	if tag.RowsAffected() == 0 {
		return notFound("item", item.ID)
	}
	return nil
}

func (r *txRepository) UpdateItemCosts(ctx context.Context, id string, lastCost, avgCost float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_items SET last_cost=$2, avg_cost=$3, updated_at=NOW() WHERE id=$1`, id, lastCost, avgCost)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound("item", id)
	}
	return nil
}

func (r *txRepository) GetWarehouse(ctx context.Context, id string) (Warehouse, error) {
	return getWarehouse(ctx, r.tx, id)
}

func (r *txRepository) InsertWarehouse(ctx context.Context, wh Warehouse) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_warehouses (`+warehouseColumns+`) VALUES ($1,$2,$3,$4,$5,$6)`,
		wh.ID, wh.Name, string(wh.Type), wh.JobID, wh.Active, wh.CreatedAt)
	return mapWriteError(err, "warehouse "+wh.Name)
}

func (r *txRepository) DeactivateWarehouse(ctx context.Context, id string) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_warehouses SET active=FALSE WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound("warehouse", id)
	}
	return nil
}

func (r *txRepository) InsertTransaction(ctx context.Context, txn Transaction) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_transactions (`+transactionColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		txn.ID, txn.ItemID, txn.WarehouseID, txn.ToWarehouseID, string(txn.Type), txn.Quantity, txn.UnitCost,
		txn.TotalCost, txn.Date, txn.JobID, txn.CostCode, txn.Reference, txn.LotNumber, txn.PONumber, txn.Notes,
		txn.CreatedBy, txn.CreatedAt)
	return err
}

func (r *txRepository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	return listTransactions(ctx, r.tx, filter)
}

func (r *txRepository) GetRequisitionForUpdate(ctx context.Context, id string) (Requisition, error) {
	return getRequisition(ctx, r.tx, id, true)
}

func (r *txRepository) InsertRequisition(ctx context.Context, req Requisition) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_requisitions (`+requisitionColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		req.ID, req.Number, req.JobID, req.ItemID, req.WarehouseID, req.Quantity, req.FilledQuantity,
		string(req.Status), req.RequestedBy, nullTime(req.NeededBy), req.Notes, req.ApprovedBy,
		nullTime(req.ApprovedAt), req.CreatedAt, req.UpdatedAt)
	return mapWriteError(err, "requisition number "+req.Number)
}

func (r *txRepository) UpdateRequisition(ctx context.Context, req Requisition) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_requisitions SET filled_quantity=$2, status=$3, approved_by=$4,
approved_at=$5, updated_at=$6 WHERE id=$1`,
		req.ID, req.FilledQuantity, string(req.Status), req.ApprovedBy, nullTime(req.ApprovedAt), req.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound("requisition", req.ID)
	}
	return nil
}

func (r *txRepository) InsertRequisitionFill(ctx context.Context, fill RequisitionFill) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_requisition_fills (id, requisition_id, quantity, filled_by, filled_at)
VALUES ($1,$2,$3,$4,$5)`, fill.ID, fill.RequisitionID, fill.Quantity, fill.FilledBy, fill.FilledAt)
	return err
}

func (r *txRepository) GetCountForUpdate(ctx context.Context, id string) (Count, error) {
	return getCount(ctx, r.tx, id, true)
}

func (r *txRepository) InsertCount(ctx context.Context, c Count) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_counts (`+countColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		c.ID, c.WarehouseID, c.ItemID, c.CountDate, c.SystemQuantity, c.CountedQuantity, c.Variance,
		string(c.Status), c.CountedBy, c.Notes, c.AdjustmentPosted, c.AdjustmentTransactionID, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r *txRepository) UpdateCount(ctx context.Context, c Count) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_counts SET counted_quantity=$2, variance=$3, status=$4, counted_by=$5,
adjustment_posted=$6, adjustment_tx_id=$7, updated_at=$8 WHERE id=$1 AND status <> 'posted'`,
		c.ID, c.CountedQuantity, c.Variance, string(c.Status), c.CountedBy, c.AdjustmentPosted,
		c.AdjustmentTransactionID, c.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: count %s is posted or missing", ErrStateConflict, c.ID)
	}
	return nil
}

// buildTransactionQuery renders the ledger query for filter. Rows are ordered
// by business date then insertion time.
func buildTransactionQuery(filter TransactionFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.ItemID != "" {
		add("item_id = $%d", filter.ItemID)
	}
	if filter.WarehouseID != "" {
		add("warehouse_id = $%d", filter.WarehouseID)
	}
	if filter.ToWarehouseID != "" {
		add("to_warehouse_id = $%d", filter.ToWarehouseID)
	}
	if filter.JobID != "" {
		add("job_id = $%d", filter.JobID)
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		add("tx_type = ANY($%d)", types)
	}
	if !filter.From.IsZero() {
		add("tx_date >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("tx_date <= $%d", filter.To)
	}
	sql := `SELECT ` + transactionColumns + ` FROM inventory_transactions` + where(conds) + ` ORDER BY tx_date ASC, created_at ASC, id ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return sql, args
}

func listTransactions(ctx context.Context, q querier, filter TransactionFilter) ([]Transaction, error) {
	sql, args := buildTransactionQuery(filter)
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	txns := []Transaction{}
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.ItemID, &t.WarehouseID, &t.ToWarehouseID, &t.Type, &t.Quantity, &t.UnitCost,
			&t.TotalCost, &t.Date, &t.JobID, &t.CostCode, &t.Reference, &t.LotNumber, &t.PONumber, &t.Notes,
			&t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txns, nil
}

func getItem(ctx context.Context, q querier, id string, forUpdate bool) (Item, error) {
	sql := `SELECT ` + itemColumns + ` FROM inventory_items WHERE id=$1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	item, err := scanItem(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, notFound("item", id)
	}
	return item, err
}

func getWarehouse(ctx context.Context, q querier, id string) (Warehouse, error) {
	var wh Warehouse
	err := q.QueryRow(ctx, `SELECT `+warehouseColumns+` FROM inventory_warehouses WHERE id=$1`, id).
		Scan(&wh.ID, &wh.Name, &wh.Type, &wh.JobID, &wh.Active, &wh.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Warehouse{}, notFound("warehouse", id)
	}
	return wh, err
}

func getRequisition(ctx context.Context, q querier, id string, forUpdate bool) (Requisition, error) {
	sql := `SELECT ` + requisitionColumns + ` FROM inventory_requisitions WHERE id=$1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	req, err := scanRequisition(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Requisition{}, notFound("requisition", id)
	}
	return req, err
}

func getCount(ctx context.Context, q querier, id string, forUpdate bool) (Count, error) {
	sql := `SELECT ` + countColumns + ` FROM inventory_counts WHERE id=$1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	c, err := scanCount(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Count{}, notFound("count", id)
	}
	return c, err
}

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.Number, &item.Description, &item.UnitOfMeasure, &item.Category,
		&item.PreferredVendor, &item.ReorderPoint, &item.ReorderQuantity, &item.UnitCost, &item.LastCost,
		&item.AvgCost, &item.Active, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func scanRequisition(row pgx.Row) (Requisition, error) {
	var (
		req        Requisition
		neededBy   pgtype.Timestamptz
		approvedAt pgtype.Timestamptz
	)
	err := row.Scan(&req.ID, &req.Number, &req.JobID, &req.ItemID, &req.WarehouseID, &req.Quantity,
		&req.FilledQuantity, &req.Status, &req.RequestedBy, &neededBy, &req.Notes, &req.ApprovedBy,
		&approvedAt, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return Requisition{}, err
	}
	if neededBy.Valid {
		req.NeededBy = neededBy.Time
	}
	if approvedAt.Valid {
		req.ApprovedAt = approvedAt.Time
	}
	return req, nil
}

func scanCount(row pgx.Row) (Count, error) {
	var c Count
	err := row.Scan(&c.ID, &c.WarehouseID, &c.ItemID, &c.CountDate, &c.SystemQuantity, &c.CountedQuantity,
		&c.Variance, &c.Status, &c.CountedBy, &c.Notes, &c.AdjustmentPosted, &c.AdjustmentTransactionID,
		&c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func where(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func mapWriteError(err error, what string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, what)
	}
	return err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
