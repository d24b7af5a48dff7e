package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/model"
)

// Tx is one atomic local transaction. It records which tables it wrote so
// commit listeners can re-evaluate only what changed.
type Tx struct {
	tx      *sqlx.Tx
	hook    func(table, op string) error
	touched map[string]struct{}
}

// WithTx runs fn inside a single transaction. If fn returns an error, or the
// commit fails, nothing is persisted and no listener is notified. After a
// successful commit every OnCommit listener is called with the written tables.
func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback() // No-op if committed

	tx := &Tx{tx: sqlTx, hook: s.writeHook, touched: make(map[string]struct{})}
	if err := fn(tx); err != nil {
		s.log.Debug("transaction rolled back", zap.Error(err))
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	if tables := tx.Tables(); len(tables) > 0 {
		s.notify(tables)
	}
	return nil
}

// Tables returns the sorted names of the tables written so far.
func (t *Tx) Tables() []string {
	tables := make([]string, 0, len(t.touched))
	for name := range t.touched {
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return tables
}

func (t *Tx) before(table, op string) error {
	if t.hook == nil {
		return nil
	}
	if err := t.hook(table, op); err != nil {
		return fmt.Errorf("%s %s: %w", op, table, err)
	}
	return nil
}

func (t *Tx) exec(ctx context.Context, table, op, query string, args ...any) (sql.Result, error) {
	if err := t.before(table, op); err != nil {
		return nil, err
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, table, err)
	}
	t.touched[table] = struct{}{}
	return res, nil
}

func (t *Tx) namedExec(ctx context.Context, table, op, query string, arg any) error {
	if err := t.before(table, op); err != nil {
		return err
	}
	if _, err := t.tx.NamedExecContext(ctx, query, arg); err != nil {
		return fmt.Errorf("%s %s: %w", op, table, err)
	}
	t.touched[table] = struct{}{}
	return nil
}

// mustAffect turns "no row matched" into ErrNotFound.
func mustAffect(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s: rows affected: %w", what, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return nil
}

// UpsertStore inserts a store or renames an existing one.
func (t *Tx) UpsertStore(ctx context.Context, st model.Store) error {
	return t.namedExec(ctx, "stores", "upsert", `
		INSERT INTO stores (id, name, is_warehouse)
		VALUES (:id, :name, :is_warehouse)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			is_warehouse = excluded.is_warehouse
	`, st)
}

// InsertProduct adds a new product.
func (t *Tx) InsertProduct(ctx context.Context, p model.Product) error {
	return t.namedExec(ctx, "products", "insert", `
		INSERT INTO products
		(id, canonical_id, item_no, item_no_confirmed, name, cost, price,
		 warehouse_stock, restock_level, deleted, created_at, updated_at)
		VALUES
		(:id, :canonical_id, :item_no, :item_no_confirmed, :name, :cost, :price,
		 :warehouse_stock, :restock_level, :deleted, :created_at, :updated_at)
	`, p)
}

// UpdateProduct overwrites every mutable column of the product with p.ID.
// Soft deletion, pricing edits, stock changes and reconciliation all go
// through here so a product row is always written whole.
func (t *Tx) UpdateProduct(ctx context.Context, p model.Product) error {
	if err := t.before("products", "update"); err != nil {
		return err
	}
	res, err := t.tx.NamedExecContext(ctx, `
		UPDATE products SET
			canonical_id = :canonical_id,
			item_no = :item_no,
			item_no_confirmed = :item_no_confirmed,
			name = :name,
			cost = :cost,
			price = :price,
			warehouse_stock = :warehouse_stock,
			restock_level = :restock_level,
			deleted = :deleted,
			updated_at = :updated_at
		WHERE id = :id
	`, p)
	if err != nil {
		return fmt.Errorf("update products: %w", err)
	}
	t.touched["products"] = struct{}{}
	return mustAffect(res, "product", p.ID)
}

// SetInventory creates or updates the (store, product) inventory row.
// row.ID is only used when the row is created.
func (t *Tx) SetInventory(ctx context.Context, row model.InventoryRow) error {
	return t.namedExec(ctx, "inventory", "upsert", `
		INSERT INTO inventory (id, store_id, product_id, stock, updated_at)
		VALUES (:id, :store_id, :product_id, :stock, :updated_at)
		ON CONFLICT(store_id, product_id) DO UPDATE SET
			stock = excluded.stock,
			updated_at = excluded.updated_at
	`, row)
}

// DeleteInventory removes a product from a store.
func (t *Tx) DeleteInventory(ctx context.Context, storeID, productID string) error {
	_, err := t.exec(ctx, "inventory", "delete",
		`DELETE FROM inventory WHERE store_id = ? AND product_id = ?`, storeID, productID)
	return err
}

// InsertTransaction writes a sale and its line items.
func (t *Tx) InsertTransaction(ctx context.Context, txn model.Transaction) error {
	err := t.namedExec(ctx, "transactions", "insert", `
		INSERT INTO transactions (id, canonical_id, store_id, subtotal, tax, total, created_at)
		VALUES (:id, :canonical_id, :store_id, :subtotal, :tax, :total, :created_at)
	`, txn)
	if err != nil {
		return err
	}
	for _, item := range txn.Items {
		err := t.namedExec(ctx, "transaction_items", "insert", `
			INSERT INTO transaction_items (id, transaction_id, product_id, item_name, cost, price, qty)
			VALUES (:id, :transaction_id, :product_id, :item_name, :cost, :price, :qty)
		`, item)
		if err != nil {
			return err
		}
	}
	return nil
}

// InsertAddition writes a stock-in batch and its items.
func (t *Tx) InsertAddition(ctx context.Context, add model.InventoryAddition) error {
	err := t.namedExec(ctx, "inventory_additions", "insert", `
		INSERT INTO inventory_additions (id, canonical_id, reference_id, total_cost, created_at)
		VALUES (:id, :canonical_id, :reference_id, :total_cost, :created_at)
	`, add)
	if err != nil {
		return err
	}
	for _, item := range add.Items {
		err := t.namedExec(ctx, "inventory_addition_items", "insert", `
			INSERT INTO inventory_addition_items (id, addition_id, product_id, item_name, cost, price, qty)
			VALUES (:id, :addition_id, :product_id, :item_name, :cost, :price, :qty)
		`, item)
		if err != nil {
			return err
		}
	}
	return nil
}

// InsertTransfer writes a transfer and its items.
func (t *Tx) InsertTransfer(ctx context.Context, tr model.StockTransfer) error {
	err := t.namedExec(ctx, "stock_transfers", "insert", `
		INSERT INTO stock_transfers (id, canonical_id, from_store_id, to_store_id, status, created_at, updated_at)
		VALUES (:id, :canonical_id, :from_store_id, :to_store_id, :status, :created_at, :updated_at)
	`, tr)
	if err != nil {
		return err
	}
	for _, item := range tr.Items {
		err := t.namedExec(ctx, "stock_transfer_items", "insert", `
			INSERT INTO stock_transfer_items (id, transfer_id, product_id, item_name, qty)
			VALUES (:id, :transfer_id, :product_id, :item_name, :qty)
		`, item)
		if err != nil {
			return err
		}
	}
	return nil
}

// SetTransferStatus moves a transfer to status.
func (t *Tx) SetTransferStatus(ctx context.Context, id string, status model.TransferStatus, at time.Time) error {
	res, err := t.exec(ctx, "stock_transfers", "update",
		`UPDATE stock_transfers SET status = ?, updated_at = ? WHERE id = ?`, status, at, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "transfer", id)
}

// InsertPendingChange writes a new change request.
func (t *Tx) InsertPendingChange(ctx context.Context, c model.PendingChange) error {
	return t.namedExec(ctx, "pending_changes", "insert", `
		INSERT INTO pending_changes
		(id, canonical_id, store_id, product_id, change_type, qty, reason, new_cost, new_price,
		 status, requested_by, decided_by, created_at, decided_at)
		VALUES
		(:id, :canonical_id, :store_id, :product_id, :change_type, :qty, :reason, :new_cost, :new_price,
		 :status, :requested_by, :decided_by, :created_at, :decided_at)
	`, c)
}

// DecidePendingChange records a decision on a change request.
func (t *Tx) DecidePendingChange(ctx context.Context, id string, status model.ChangeStatus, decidedBy string, at time.Time) error {
	res, err := t.exec(ctx, "pending_changes", "update", `
		UPDATE pending_changes SET status = ?, decided_by = ?, decided_at = ? WHERE id = ?
	`, status, decidedBy, at, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "pending change", id)
}

// InsertMovement appends a stock audit row.
func (t *Tx) InsertMovement(ctx context.Context, m model.StockMovement) error {
	return t.namedExec(ctx, "stock_movements", "insert", `
		INSERT INTO stock_movements
		(id, store_id, product_id, kind, delta, before_qty, after_qty, ref_table, ref_id, created_at)
		VALUES
		(:id, :store_id, :product_id, :kind, :delta, :before_qty, :after_qty, :ref_table, :ref_id, :created_at)
	`, m)
}

// canonicalTables lists the tables whose records carry a canonical id.
var canonicalTables = map[string]bool{
	"products":            true,
	"transactions":        true,
	"inventory_additions": true,
	"stock_transfers":     true,
	"pending_changes":     true,
}

// SetCanonicalID stores the server-assigned id of a record.
func (t *Tx) SetCanonicalID(ctx context.Context, table, id, canonicalID string) error {
	if !canonicalTables[table] {
		return fmt.Errorf("set canonical id: table %q has no canonical id", table)
	}
	res, err := t.exec(ctx, table, "update",
		fmt.Sprintf(`UPDATE %s SET canonical_id = ? WHERE id = ?`, table), canonicalID, id)
	if err != nil {
		return err
	}
	return mustAffect(res, table, id)
}

// Enqueue appends an entry to the sync queue. Seq is assigned by the store.
func (t *Tx) Enqueue(ctx context.Context, e model.QueueEntry) error {
	if e.Status == "" {
		e.Status = model.QueueQueued
	}
	return t.namedExec(ctx, "sync_queue", "insert", `
		INSERT INTO sync_queue
		(id, table_name, action, record_id, payload, idempotency_key, enqueued_at, attempts, last_error, status)
		VALUES
		(:id, :table_name, :action, :record_id, :payload, :idempotency_key, :enqueued_at, :attempts, :last_error, :status)
	`, e)
}

// DeleteQueueEntry consumes a confirmed entry.
func (t *Tx) DeleteQueueEntry(ctx context.Context, id string) error {
	res, err := t.exec(ctx, "sync_queue", "delete", `DELETE FROM sync_queue WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "queue entry", id)
}

// RecordAttempt counts a failed send of an entry and sets its status.
func (t *Tx) RecordAttempt(ctx context.Context, id string, status model.QueueStatus, lastError string) error {
	res, err := t.exec(ctx, "sync_queue", "update", `
		UPDATE sync_queue SET attempts = attempts + 1, status = ?, last_error = ? WHERE id = ?
	`, status, lastError, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "queue entry", id)
}

// SetQueueStatus changes an entry's status without counting an attempt.
func (t *Tx) SetQueueStatus(ctx context.Context, id string, status model.QueueStatus) error {
	res, err := t.exec(ctx, "sync_queue", "update",
		`UPDATE sync_queue SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "queue entry", id)
}

// InsertSyncRun records a finished drain and returns its id.
func (t *Tx) InsertSyncRun(ctx context.Context, run model.SyncRun) (int64, error) {
	res, err := t.exec(ctx, "sync_runs", "insert", `
		INSERT INTO sync_runs (started_at, finished_at, synced, remaining, state, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.StartedAt, run.FinishedAt, run.Synced, run.Remaining, run.State, run.Error)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Reads inside the transaction. They see the transaction's own writes.

func (t *Tx) Store(ctx context.Context, id string) (model.Store, error) {
	return getStore(ctx, t.tx, id)
}

func (t *Tx) Product(ctx context.Context, id string) (model.Product, error) {
	return getProduct(ctx, t.tx, id)
}

func (t *Tx) ProductByName(ctx context.Context, name string) (model.Product, error) {
	return getProductByName(ctx, t.tx, name)
}

func (t *Tx) ProductByCanonicalID(ctx context.Context, canonicalID string) (model.Product, error) {
	return getProductByCanonicalID(ctx, t.tx, canonicalID)
}

// NextItemNo returns the provisional display number for a new product.
func (t *Tx) NextItemNo(ctx context.Context) (int64, error) {
	var n int64
	if err := sqlx.GetContext(ctx, t.tx, &n, `SELECT COALESCE(MAX(item_no), 0) + 1 FROM products`); err != nil {
		return 0, fmt.Errorf("next item no: %w", err)
	}
	return n, nil
}

// Inventory returns the (store, product) row. found is false when the store
// holds no row for the product.
func (t *Tx) Inventory(ctx context.Context, storeID, productID string) (row model.InventoryRow, found bool, err error) {
	return getInventory(ctx, t.tx, storeID, productID)
}

func (t *Tx) Transfer(ctx context.Context, id string) (model.StockTransfer, error) {
	return getTransfer(ctx, t.tx, id)
}

func (t *Tx) Addition(ctx context.Context, id string) (model.InventoryAddition, error) {
	return getAddition(ctx, t.tx, id)
}

func (t *Tx) PendingChange(ctx context.Context, id string) (model.PendingChange, error) {
	return getPendingChange(ctx, t.tx, id)
}

func (t *Tx) QueueEntry(ctx context.Context, id string) (model.QueueEntry, error) {
	return getQueueEntry(ctx, t.tx, id)
}

// InventoryRows returns every inventory row.
func (t *Tx) InventoryRows(ctx context.Context) ([]model.InventoryRow, error) {
	return inventoryRows(ctx, t.tx)
}

// QueueCount returns the number of queue entries, as seen by the transaction.
func (t *Tx) QueueCount(ctx context.Context) (int64, error) {
	return queueCount(ctx, t.tx)
}
