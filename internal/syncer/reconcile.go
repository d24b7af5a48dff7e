package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/model"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/store"
)

// sqlTables maps queue collections to the SQL table holding their records.
var sqlTables = map[string]string{
	model.QueueProducts:           "products",
	model.QueueInventoryAdditions: "inventory_additions",
	model.QueueStockTransfers:     "stock_transfers",
	model.QueuePendingChanges:     "pending_changes",
	model.QueueTransactions:       "transactions",
}

// reconcile applies the server's answer for entry to the local records.
func (e *Engine) reconcile(ctx context.Context, tx *store.Tx, entry model.QueueEntry, ack model.SyncResponse) error {
	switch {
	case entry.Table == model.QueueProducts && entry.Action == model.ActionCreate:
		return confirmProduct(ctx, tx, entry.RecordID, ack.ID, ack.ItemNo)

	case entry.Table == model.QueueProducts && entry.Action == model.ActionImport:
		for _, p := range ack.Products {
			itemNo := p.ItemNo
			if err := confirmProduct(ctx, tx, p.LocalID, p.ID, &itemNo); err != nil {
				return err
			}
		}
		return nil

	case entry.Table == model.QueueInventoryAdditions && entry.Action == model.ActionCreate:
		if err := setCanonical(ctx, tx, entry, ack.ID); err != nil {
			return err
		}
		return e.stockIn(ctx, tx, entry.RecordID, ack.Items)

	case entry.Action == model.ActionCreate:
		return setCanonical(ctx, tx, entry, ack.ID)
	}
	// Updates, deletes and state transitions carry nothing back.
	return nil
}

func setCanonical(ctx context.Context, tx *store.Tx, entry model.QueueEntry, canonicalID string) error {
	if canonicalID == "" {
		return nil
	}
	table, ok := sqlTables[entry.Table]
	if !ok {
		return fmt.Errorf("unknown queue table %q", entry.Table)
	}
	return tx.SetCanonicalID(ctx, table, entry.RecordID, canonicalID)
}

// confirmProduct stores a product's canonical id and replaces its
// provisional item number with the server's.
func confirmProduct(ctx context.Context, tx *store.Tx, localID, canonicalID string, itemNo *int64) error {
	p, err := tx.Product(ctx, localID)
	if errors.Is(err, store.ErrNotFound) {
		// Acknowledged products we never created locally are picked up by
		// the next refresh.
		return nil
	}
	if err != nil {
		return err
	}
	if canonicalID != "" {
		p.CanonicalID = &canonicalID
	}
	if itemNo != nil {
		p.ItemNo, p.ItemNoConfirmed = *itemNo, true
	}
	return tx.UpdateProduct(ctx, p)
}

// stockIn books the quantities the server confirmed for an inventory
// addition into warehouse stock.
func (e *Engine) stockIn(ctx context.Context, tx *store.Tx, additionID string, items []model.ConfirmedItem) error {
	now := e.clock.Now()
	for _, item := range items {
		if item.Qty <= 0 {
			continue
		}
		p, err := tx.Product(ctx, item.ProductID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		before := p.WarehouseStock
		p.WarehouseStock += item.Qty
		p.UpdatedAt = now
		if err := tx.UpdateProduct(ctx, p); err != nil {
			return err
		}
		err = tx.InsertMovement(ctx, model.StockMovement{
			ID:        e.newID(),
			StoreID:   model.WarehouseID,
			ProductID: p.ID,
			Kind:      "stock_in",
			Delta:     item.Qty,
			BeforeQty: before,
			AfterQty:  p.WarehouseStock,
			RefTable:  "inventory_additions",
			RefID:     additionID,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
