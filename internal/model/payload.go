package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Request bodies queued for the server. They are stored as canonical JSON,
// so optional fields use omitempty and slices are never nil.

// SalePayload is the body of POST /api/transactions.
type SalePayload struct {
	LocalID   string          `json:"localId"`
	StoreID   string          `json:"storeId"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Tax       decimal.Decimal `json:"tax"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"createdAt"`
	Items     []SaleItem      `json:"items"`
}

type SaleItem struct {
	ProductID string          `json:"productId"`
	ItemName  string          `json:"itemName"`
	Cost      decimal.Decimal `json:"cost"`
	Price     decimal.Decimal `json:"price"`
	Qty       int64           `json:"qty"`
}

// ProductPayload is the body of POST /api/products and one element of the
// bulk import body.
type ProductPayload struct {
	LocalID        string          `json:"localId"`
	Name           string          `json:"name"`
	Cost           decimal.Decimal `json:"cost"`
	Price          decimal.Decimal `json:"price"`
	WarehouseStock int64           `json:"warehouseStock"`
	RestockLevel   int64           `json:"restockLevel"`
}

// ProductBulkPayload is the body of POST /api/products/bulk. A batch with
// an id is replayed as a whole; without one each product is replayed by its
// local id.
type ProductBulkPayload struct {
	BatchID  string           `json:"batchId,omitempty"`
	Products []ProductPayload `json:"products"`
}

// PricingPayload is the body of PUT /api/products/{id}.
type PricingPayload struct {
	LocalID string          `json:"localId"`
	Cost    decimal.Decimal `json:"cost"`
	Price   decimal.Decimal `json:"price"`
}

// DeletePayload is the body of DELETE /api/products/{id}.
type DeletePayload struct {
	LocalID string `json:"localId"`
}

// AdditionPayload is the body of POST /api/inventory/addition.
type AdditionPayload struct {
	LocalID     string          `json:"localId"`
	ReferenceID string          `json:"referenceId"`
	TotalCost   decimal.Decimal `json:"totalCost"`
	Items       []AdditionItem  `json:"items"`
}

type AdditionItem struct {
	ProductID string          `json:"productId"`
	ItemName  string          `json:"itemName"`
	Cost      decimal.Decimal `json:"cost"`
	Price     decimal.Decimal `json:"price"`
	Qty       int64           `json:"qty"`
}

// TransferPayload is the body of POST /api/transfer.
type TransferPayload struct {
	LocalID     string         `json:"localId"`
	FromStoreID string         `json:"fromStoreId"`
	ToStoreID   string         `json:"toStoreId"`
	Items       []TransferItem `json:"items"`
}

type TransferItem struct {
	ProductID string `json:"productId"`
	ItemName  string `json:"itemName"`
	Qty       int64  `json:"qty"`
}

// ChangePayload is the body of POST /api/inventory/pending-changes.
type ChangePayload struct {
	LocalID     string           `json:"localId"`
	StoreID     string           `json:"storeId"`
	ProductID   string           `json:"productId"`
	ChangeType  ChangeType       `json:"changeType"`
	Qty         int64            `json:"qty"`
	Reason      string           `json:"reason,omitempty"`
	NewCost     *decimal.Decimal `json:"newCost,omitempty"`
	NewPrice    *decimal.Decimal `json:"newPrice,omitempty"`
	RequestedBy string           `json:"requestedBy,omitempty"`
}

// TransitionPayload is the body of the state transition endpoints
// (transfer confirm/cancel, change approve/reject/complete).
type TransitionPayload struct {
	LocalID   string `json:"localId"`
	DecidedBy string `json:"decidedBy,omitempty"`
}

// SyncResponse is the body the server returns for every accepted mutation.
type SyncResponse struct {
	// ID is the canonical id of the record.
	ID string `json:"id"`
	// ItemNo is the confirmed display number of a created product.
	ItemNo *int64 `json:"itemNo,omitempty"`
	// Items echoes the quantities the server booked for an inventory addition.
	Items []ConfirmedItem `json:"items,omitempty"`
	// Products acknowledges each element of a bulk import.
	Products []ProductAck `json:"products,omitempty"`
}

type ConfirmedItem struct {
	ProductID string `json:"productId"`
	Qty       int64  `json:"qty"`
}

type ProductAck struct {
	LocalID string `json:"localId"`
	ID      string `json:"id"`
	ItemNo  int64  `json:"itemNo"`
}

// Snapshot is the authoritative state returned by GET /api/snapshot.
// Product and inventory ids are canonical.
type Snapshot struct {
	Stores    []Store             `json:"stores"`
	Products  []SnapshotProduct   `json:"products"`
	Inventory []SnapshotInventory `json:"inventory"`
}

type SnapshotProduct struct {
	ID             string          `json:"id"`
	ItemNo         int64           `json:"itemNo"`
	Name           string          `json:"name"`
	Cost           decimal.Decimal `json:"cost"`
	Price          decimal.Decimal `json:"price"`
	WarehouseStock int64           `json:"warehouseStock"`
	RestockLevel   int64           `json:"restockLevel"`
	Deleted        bool            `json:"deleted"`
}

type SnapshotInventory struct {
	StoreID   string `json:"storeId"`
	ProductID string `json:"productId"`
	Stock     int64  `json:"stock"`
}
