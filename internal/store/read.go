package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/model"
)

// Every list read returns an empty slice (not nil) when nothing matches, so
// a fresh device renders empty views instead of errors.

const productColumns = `id, canonical_id, item_no, item_no_confirmed, name, cost, price,
	warehouse_stock, restock_level, deleted, created_at, updated_at`

// Stores returns all stores, warehouse first.
func (s *Store) Stores(ctx context.Context) ([]model.Store, error) {
	stores := []model.Store{}
	err := sqlx.SelectContext(ctx, s.db, &stores, `
		SELECT id, name, is_warehouse FROM stores
		ORDER BY is_warehouse DESC, name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query stores: %w", err)
	}
	return stores, nil
}

// Store returns a store by id.
func (s *Store) Store(ctx context.Context, id string) (model.Store, error) {
	return getStore(ctx, s.db, id)
}

// Products returns the live (not deleted) products ordered by item number.
func (s *Store) Products(ctx context.Context) ([]model.Product, error) {
	products := []model.Product{}
	err := sqlx.SelectContext(ctx, s.db, &products, `
		SELECT `+productColumns+` FROM products
		WHERE deleted = 0
		ORDER BY item_no ASC, name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	return products, nil
}

// Product returns a product by local id, including deleted ones.
func (s *Store) Product(ctx context.Context, id string) (model.Product, error) {
	return getProduct(ctx, s.db, id)
}

// ProductByName returns the live product with the given name.
func (s *Store) ProductByName(ctx context.Context, name string) (model.Product, error) {
	return getProductByName(ctx, s.db, name)
}

// InventoryView returns a store's stock joined with product details.
func (s *Store) InventoryView(ctx context.Context, storeID string) ([]model.InventoryView, error) {
	rows := []model.InventoryView{}
	err := sqlx.SelectContext(ctx, s.db, &rows, `
		SELECT i.store_id, i.product_id, p.item_no, p.name AS product_name, p.cost, p.price,
		       i.stock, p.restock_level, (i.stock <= p.restock_level) AS low_stock
		FROM inventory i
		JOIN products p ON p.id = i.product_id
		WHERE i.store_id = ? AND p.deleted = 0
		ORDER BY p.item_no ASC, p.name ASC
	`, storeID)
	if err != nil {
		return nil, fmt.Errorf("query inventory view: %w", err)
	}
	return rows, nil
}

// InventoryRows returns every inventory row.
func (s *Store) InventoryRows(ctx context.Context) ([]model.InventoryRow, error) {
	return inventoryRows(ctx, s.db)
}

// Inventory returns the (store, product) row; found is false if absent.
func (s *Store) Inventory(ctx context.Context, storeID, productID string) (row model.InventoryRow, found bool, err error) {
	return getInventory(ctx, s.db, storeID, productID)
}

// Transactions returns sales with their items, newest first.
// An empty storeID returns sales of every store.
func (s *Store) Transactions(ctx context.Context, storeID string) ([]model.Transaction, error) {
	txns := []model.Transaction{}
	err := sqlx.SelectContext(ctx, s.db, &txns, `
		SELECT id, canonical_id, store_id, subtotal, tax, total, created_at
		FROM transactions
		WHERE ? = '' OR store_id = ?
		ORDER BY created_at DESC, id DESC
	`, storeID, storeID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}

	items := []model.TransactionItem{}
	err = sqlx.SelectContext(ctx, s.db, &items, `
		SELECT ti.id, ti.transaction_id, ti.product_id, ti.item_name, ti.cost, ti.price, ti.qty
		FROM transaction_items ti
		JOIN transactions t ON t.id = ti.transaction_id
		WHERE ? = '' OR t.store_id = ?
		ORDER BY ti.rowid ASC
	`, storeID, storeID)
	if err != nil {
		return nil, fmt.Errorf("query transaction items: %w", err)
	}

	byTxn := make(map[string][]model.TransactionItem, len(txns))
	for _, item := range items {
		byTxn[item.TransactionID] = append(byTxn[item.TransactionID], item)
	}
	for i := range txns {
		txns[i].Items = byTxn[txns[i].ID]
		if txns[i].Items == nil {
			txns[i].Items = []model.TransactionItem{}
		}
	}
	return txns, nil
}

// Transaction returns one sale with its items.
func (s *Store) Transaction(ctx context.Context, id string) (model.Transaction, error) {
	var txn model.Transaction
	err := sqlx.GetContext(ctx, s.db, &txn, `
		SELECT id, canonical_id, store_id, subtotal, tax, total, created_at
		FROM transactions WHERE id = ?
	`, id)
	if err != nil {
		return txn, notFound(err, "transaction", id)
	}
	txn.Items = []model.TransactionItem{}
	err = sqlx.SelectContext(ctx, s.db, &txn.Items, `
		SELECT id, transaction_id, product_id, item_name, cost, price, qty
		FROM transaction_items WHERE transaction_id = ?
		ORDER BY rowid ASC
	`, id)
	if err != nil {
		return txn, fmt.Errorf("query transaction items: %w", err)
	}
	return txn, nil
}

// Additions returns stock-in batches with their items, newest first.
func (s *Store) Additions(ctx context.Context) ([]model.InventoryAddition, error) {
	adds := []model.InventoryAddition{}
	err := sqlx.SelectContext(ctx, s.db, &adds, `
		SELECT id, canonical_id, reference_id, total_cost, created_at
		FROM inventory_additions
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query additions: %w", err)
	}
	for i := range adds {
		if adds[i].Items, err = additionItems(ctx, s.db, adds[i].ID); err != nil {
			return nil, err
		}
	}
	return adds, nil
}

// Transfers returns all transfers with their items, newest first.
func (s *Store) Transfers(ctx context.Context) ([]model.StockTransfer, error) {
	transfers := []model.StockTransfer{}
	err := sqlx.SelectContext(ctx, s.db, &transfers, `
		SELECT id, canonical_id, from_store_id, to_store_id, status, created_at, updated_at
		FROM stock_transfers
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query transfers: %w", err)
	}
	for i := range transfers {
		if transfers[i].Items, err = transferItems(ctx, s.db, transfers[i].ID); err != nil {
			return nil, err
		}
	}
	return transfers, nil
}

// Transfer returns one transfer with its items.
func (s *Store) Transfer(ctx context.Context, id string) (model.StockTransfer, error) {
	return getTransfer(ctx, s.db, id)
}

// PendingChanges returns change requests, newest first. Empty storeID or
// status match everything.
func (s *Store) PendingChanges(ctx context.Context, storeID string, status model.ChangeStatus) ([]model.PendingChange, error) {
	changes := []model.PendingChange{}
	err := sqlx.SelectContext(ctx, s.db, &changes, `
		SELECT id, canonical_id, store_id, product_id, change_type, qty, reason, new_cost, new_price,
		       status, requested_by, decided_by, created_at, decided_at
		FROM pending_changes
		WHERE (? = '' OR store_id = ?) AND (? = '' OR status = ?)
		ORDER BY created_at DESC, id DESC
	`, storeID, storeID, status, status)
	if err != nil {
		return nil, fmt.Errorf("query pending changes: %w", err)
	}
	return changes, nil
}

// PendingChange returns one change request.
func (s *Store) PendingChange(ctx context.Context, id string) (model.PendingChange, error) {
	return getPendingChange(ctx, s.db, id)
}

// Movements returns the stock audit trail of a product, oldest first.
func (s *Store) Movements(ctx context.Context, productID string) ([]model.StockMovement, error) {
	moves := []model.StockMovement{}
	err := sqlx.SelectContext(ctx, s.db, &moves, `
		SELECT id, store_id, product_id, kind, delta, before_qty, after_qty, ref_table, ref_id, created_at
		FROM stock_movements
		WHERE product_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("query movements: %w", err)
	}
	return moves, nil
}

// LatestSyncRun returns the most recent drain summary.
func (s *Store) LatestSyncRun(ctx context.Context) (model.SyncRun, error) {
	var run model.SyncRun
	err := sqlx.GetContext(ctx, s.db, &run, `
		SELECT id, started_at, finished_at, synced, remaining, state, error
		FROM sync_runs ORDER BY id DESC LIMIT 1
	`)
	if err != nil {
		return run, notFound(err, "sync run", "latest")
	}
	return run, nil
}

// Query runs an ad hoc read. The caller must close the rows before the next
// store call, since the store holds a single connection.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	return s.db.QueryxContext(ctx, query, args...)
}

func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("get %s %s: %w", what, id, err)
}

func getStore(ctx context.Context, q sqlx.QueryerContext, id string) (model.Store, error) {
	var st model.Store
	err := sqlx.GetContext(ctx, q, &st, `SELECT id, name, is_warehouse FROM stores WHERE id = ?`, id)
	if err != nil {
		return st, notFound(err, "store", id)
	}
	return st, nil
}

func getProduct(ctx context.Context, q sqlx.QueryerContext, id string) (model.Product, error) {
	var p model.Product
	err := sqlx.GetContext(ctx, q, &p, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	if err != nil {
		return p, notFound(err, "product", id)
	}
	return p, nil
}

func getProductByName(ctx context.Context, q sqlx.QueryerContext, name string) (model.Product, error) {
	var p model.Product
	err := sqlx.GetContext(ctx, q, &p,
		`SELECT `+productColumns+` FROM products WHERE name = ? AND deleted = 0`, name)
	if err != nil {
		return p, notFound(err, "product", name)
	}
	return p, nil
}

func getProductByCanonicalID(ctx context.Context, q sqlx.QueryerContext, canonicalID string) (model.Product, error) {
	var p model.Product
	err := sqlx.GetContext(ctx, q, &p, `
		SELECT `+productColumns+` FROM products
		WHERE canonical_id = ? OR (canonical_id IS NULL AND id = ?)
		ORDER BY deleted ASC LIMIT 1
	`, canonicalID, canonicalID)
	if err != nil {
		return p, notFound(err, "product", canonicalID)
	}
	return p, nil
}

func getInventory(ctx context.Context, q sqlx.QueryerContext, storeID, productID string) (model.InventoryRow, bool, error) {
	var row model.InventoryRow
	err := sqlx.GetContext(ctx, q, &row, `
		SELECT id, store_id, product_id, stock, updated_at FROM inventory
		WHERE store_id = ? AND product_id = ?
	`, storeID, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.InventoryRow{StoreID: storeID, ProductID: productID}, false, nil
	}
	if err != nil {
		return row, false, fmt.Errorf("get inventory %s/%s: %w", storeID, productID, err)
	}
	return row, true, nil
}

func inventoryRows(ctx context.Context, q sqlx.QueryerContext) ([]model.InventoryRow, error) {
	rows := []model.InventoryRow{}
	err := sqlx.SelectContext(ctx, q, &rows, `
		SELECT id, store_id, product_id, stock, updated_at FROM inventory
		ORDER BY store_id ASC, product_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	return rows, nil
}

func getTransfer(ctx context.Context, q sqlx.QueryerContext, id string) (model.StockTransfer, error) {
	var tr model.StockTransfer
	err := sqlx.GetContext(ctx, q, &tr, `
		SELECT id, canonical_id, from_store_id, to_store_id, status, created_at, updated_at
		FROM stock_transfers WHERE id = ?
	`, id)
	if err != nil {
		return tr, notFound(err, "transfer", id)
	}
	tr.Items, err = transferItems(ctx, q, id)
	return tr, err
}

func transferItems(ctx context.Context, q sqlx.QueryerContext, transferID string) ([]model.StockTransferItem, error) {
	items := []model.StockTransferItem{}
	err := sqlx.SelectContext(ctx, q, &items, `
		SELECT id, transfer_id, product_id, item_name, qty
		FROM stock_transfer_items WHERE transfer_id = ?
		ORDER BY rowid ASC
	`, transferID)
	if err != nil {
		return nil, fmt.Errorf("query transfer items: %w", err)
	}
	return items, nil
}

func getAddition(ctx context.Context, q sqlx.QueryerContext, id string) (model.InventoryAddition, error) {
	var add model.InventoryAddition
	err := sqlx.GetContext(ctx, q, &add, `
		SELECT id, canonical_id, reference_id, total_cost, created_at
		FROM inventory_additions WHERE id = ?
	`, id)
	if err != nil {
		return add, notFound(err, "addition", id)
	}
	add.Items, err = additionItems(ctx, q, id)
	return add, err
}

func additionItems(ctx context.Context, q sqlx.QueryerContext, additionID string) ([]model.InventoryAdditionItem, error) {
	items := []model.InventoryAdditionItem{}
	err := sqlx.SelectContext(ctx, q, &items, `
		SELECT id, addition_id, product_id, item_name, cost, price, qty
		FROM inventory_addition_items WHERE addition_id = ?
		ORDER BY rowid ASC
	`, additionID)
	if err != nil {
		return nil, fmt.Errorf("query addition items: %w", err)
	}
	return items, nil
}

func getPendingChange(ctx context.Context, q sqlx.QueryerContext, id string) (model.PendingChange, error) {
	var c model.PendingChange
	err := sqlx.GetContext(ctx, q, &c, `
		SELECT id, canonical_id, store_id, product_id, change_type, qty, reason, new_cost, new_price,
		       status, requested_by, decided_by, created_at, decided_at
		FROM pending_changes WHERE id = ?
	`, id)
	if err != nil {
		return c, notFound(err, "pending change", id)
	}
	return c, nil
}
