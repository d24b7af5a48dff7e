package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// WarehouseID is the fixed id of the central warehouse pseudo-store.
const WarehouseID = "warehouse"

// Store is a shop or the warehouse pseudo-store.
type Store struct {
	ID          string `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	IsWarehouse bool   `db:"is_warehouse" json:"isWarehouse"`
}

// Product is a catalog item. WarehouseStock is the central stock pool.
//
// ItemNo is the display sequence number. It is provisional until the server
// confirms it (ItemNoConfirmed).
type Product struct {
	ID              string          `db:"id" json:"id"`
	CanonicalID     *string         `db:"canonical_id" json:"canonicalId,omitempty"`
	ItemNo          int64           `db:"item_no" json:"itemNo"`
	ItemNoConfirmed bool            `db:"item_no_confirmed" json:"itemNoConfirmed"`
	Name            string          `db:"name" json:"name"`
	Cost            decimal.Decimal `db:"cost" json:"cost"`
	Price           decimal.Decimal `db:"price" json:"price"`
	WarehouseStock  int64           `db:"warehouse_stock" json:"warehouseStock"`
	RestockLevel    int64           `db:"restock_level" json:"restockLevel"`
	Deleted         bool            `db:"deleted" json:"deleted"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`
}

// InventoryRow is the stock of one product in one store.
type InventoryRow struct {
	ID        string    `db:"id" json:"id"`
	StoreID   string    `db:"store_id" json:"storeId"`
	ProductID string    `db:"product_id" json:"productId"`
	Stock     int64     `db:"stock" json:"stock"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// InventoryView joins an inventory row with its product for display.
type InventoryView struct {
	StoreID      string          `db:"store_id" json:"storeId"`
	ProductID    string          `db:"product_id" json:"productId"`
	ItemNo       int64           `db:"item_no" json:"itemNo"`
	ProductName  string          `db:"product_name" json:"productName"`
	Cost         decimal.Decimal `db:"cost" json:"cost"`
	Price        decimal.Decimal `db:"price" json:"price"`
	Stock        int64           `db:"stock" json:"stock"`
	RestockLevel int64           `db:"restock_level" json:"restockLevel"`
	LowStock     bool            `db:"low_stock" json:"lowStock"`
}

// Transaction is a completed sale. Sales are append-only.
type Transaction struct {
	ID          string            `db:"id" json:"id"`
	CanonicalID *string           `db:"canonical_id" json:"canonicalId,omitempty"`
	StoreID     string            `db:"store_id" json:"storeId"`
	Subtotal    decimal.Decimal   `db:"subtotal" json:"subtotal"`
	Tax         decimal.Decimal   `db:"tax" json:"tax"`
	Total       decimal.Decimal   `db:"total" json:"total"`
	CreatedAt   time.Time         `db:"created_at" json:"createdAt"`
	Items       []TransactionItem `db:"-" json:"items"`
}

// TransactionItem snapshots the product at the time of sale.
type TransactionItem struct {
	ID            string          `db:"id" json:"id"`
	TransactionID string          `db:"transaction_id" json:"transactionId"`
	ProductID     string          `db:"product_id" json:"productId"`
	ItemName      string          `db:"item_name" json:"itemName"`
	Cost          decimal.Decimal `db:"cost" json:"cost"`
	Price         decimal.Decimal `db:"price" json:"price"`
	Qty           int64           `db:"qty" json:"qty"`
}

// InventoryAddition is a warehouse stock-in batch.
type InventoryAddition struct {
	ID          string                  `db:"id" json:"id"`
	CanonicalID *string                 `db:"canonical_id" json:"canonicalId,omitempty"`
	ReferenceID string                  `db:"reference_id" json:"referenceId"`
	TotalCost   decimal.Decimal         `db:"total_cost" json:"totalCost"`
	CreatedAt   time.Time               `db:"created_at" json:"createdAt"`
	Items       []InventoryAdditionItem `db:"-" json:"items"`
}

type InventoryAdditionItem struct {
	ID         string          `db:"id" json:"id"`
	AdditionID string          `db:"addition_id" json:"additionId"`
	ProductID  string          `db:"product_id" json:"productId"`
	ItemName   string          `db:"item_name" json:"itemName"`
	Cost       decimal.Decimal `db:"cost" json:"cost"`
	Price      decimal.Decimal `db:"price" json:"price"`
	Qty        int64           `db:"qty" json:"qty"`
}

// StockTransfer moves quantities from the warehouse to a store.
type StockTransfer struct {
	ID          string              `db:"id" json:"id"`
	CanonicalID *string             `db:"canonical_id" json:"canonicalId,omitempty"`
	FromStoreID string              `db:"from_store_id" json:"fromStoreId"`
	ToStoreID   string              `db:"to_store_id" json:"toStoreId"`
	Status      TransferStatus      `db:"status" json:"status"`
	CreatedAt   time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time           `db:"updated_at" json:"updatedAt"`
	Items       []StockTransferItem `db:"-" json:"items"`
}

type StockTransferItem struct {
	ID         string `db:"id" json:"id"`
	TransferID string `db:"transfer_id" json:"transferId"`
	ProductID  string `db:"product_id" json:"productId"`
	ItemName   string `db:"item_name" json:"itemName"`
	Qty        int64  `db:"qty" json:"qty"`
}

// PendingChange is a store-initiated stock request awaiting a decision.
// It never moves stock until it is approved.
type PendingChange struct {
	ID          string              `db:"id" json:"id"`
	CanonicalID *string             `db:"canonical_id" json:"canonicalId,omitempty"`
	StoreID     string              `db:"store_id" json:"storeId"`
	ProductID   string              `db:"product_id" json:"productId"`
	ChangeType  ChangeType          `db:"change_type" json:"changeType"`
	Qty         int64               `db:"qty" json:"qty"`
	Reason      string              `db:"reason" json:"reason"`
	NewCost     decimal.NullDecimal `db:"new_cost" json:"newCost"`
	NewPrice    decimal.NullDecimal `db:"new_price" json:"newPrice"`
	Status      ChangeStatus        `db:"status" json:"status"`
	RequestedBy string              `db:"requested_by" json:"requestedBy"`
	DecidedBy   string              `db:"decided_by" json:"decidedBy"`
	CreatedAt   time.Time           `db:"created_at" json:"createdAt"`
	DecidedAt   *time.Time          `db:"decided_at" json:"decidedAt,omitempty"`
}

// StockMovement records one stock change with its before and after levels.
// StoreID is WarehouseID for warehouse stock.
type StockMovement struct {
	ID        string    `db:"id" json:"id"`
	StoreID   string    `db:"store_id" json:"storeId"`
	ProductID string    `db:"product_id" json:"productId"`
	Kind      string    `db:"kind" json:"kind"`
	Delta     int64     `db:"delta" json:"delta"`
	BeforeQty int64     `db:"before_qty" json:"beforeQty"`
	AfterQty  int64     `db:"after_qty" json:"afterQty"`
	RefTable  string    `db:"ref_table" json:"refTable"`
	RefID     string    `db:"ref_id" json:"refId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// QueueEntry is one mutation the server has not confirmed yet.
// Entries drain in Seq order.
type QueueEntry struct {
	Seq            int64       `db:"seq" json:"seq"`
	ID             string      `db:"id" json:"id"`
	Table          string      `db:"table_name" json:"table"`
	Action         string      `db:"action" json:"action"`
	RecordID       string      `db:"record_id" json:"recordId"`
	Payload        string      `db:"payload" json:"payload"`
	IdempotencyKey string      `db:"idempotency_key" json:"idempotencyKey"`
	EnqueuedAt     time.Time   `db:"enqueued_at" json:"enqueuedAt"`
	Attempts       int64       `db:"attempts" json:"attempts"`
	LastError      string      `db:"last_error" json:"lastError"`
	Status         QueueStatus `db:"status" json:"status"`
}

// SyncRun summarises one drain of the queue.
type SyncRun struct {
	ID         int64      `db:"id" json:"id"`
	StartedAt  time.Time  `db:"started_at" json:"startedAt"`
	FinishedAt *time.Time `db:"finished_at" json:"finishedAt,omitempty"`
	Synced     int64      `db:"synced" json:"synced"`
	Remaining  int64      `db:"remaining" json:"remaining"`
	State      string     `db:"state" json:"state"`
	Error      string     `db:"error" json:"error"`
}
