package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/model"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/store"
)

// Refresh overwrites local stock and pricing with the server's snapshot.
//
// It only runs when the queue is empty: while anything is queued the local
// state holds changes the server has not seen, and overwriting them would
// lose them. It reports whether the refresh ran.
func (e *Engine) Refresh(ctx context.Context) (bool, error) {
	n, err := e.st.QueueCount(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		e.log.Debug("refresh skipped: queue not empty", zap.Int64("queued", n))
		return false, nil
	}

	snap, err := e.client.Snapshot(ctx)
	if err != nil {
		return false, fmt.Errorf("fetch snapshot: %w", err)
	}

	err = e.st.WithTx(ctx, func(tx *store.Tx) error {
		// A mutation recorded while the snapshot was in flight wins.
		if queued, err := tx.QueueCount(ctx); err != nil {
			return err
		} else if queued > 0 {
			return errQueueChanged
		}
		return e.apply(ctx, tx, snap)
	})
	if errors.Is(err, errQueueChanged) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("apply snapshot: %w", err)
	}
	e.log.Info("local store refreshed from server",
		zap.Int("products", len(snap.Products)),
		zap.Int("inventory_rows", len(snap.Inventory)))
	return true, nil
}

var errQueueChanged = errors.New("queue changed during refresh")

func (e *Engine) apply(ctx context.Context, tx *store.Tx, snap *model.Snapshot) error {
	now := e.clock.Now()

	for _, st := range snap.Stores {
		if err := tx.UpsertStore(ctx, st); err != nil {
			return err
		}
	}

	// canonical product id -> local product id
	local := make(map[string]string, len(snap.Products))
	for _, sp := range snap.Products {
		p, err := tx.ProductByCanonicalID(ctx, sp.ID)
		if errors.Is(err, store.ErrNotFound) && !sp.Deleted {
			p, err = tx.ProductByName(ctx, sp.Name)
		}
		switch {
		case errors.Is(err, store.ErrNotFound):
			if sp.Deleted {
				continue
			}
			canonical := sp.ID
			p = model.Product{ID: sp.ID, CanonicalID: &canonical, CreatedAt: now}
			fillProduct(&p, sp, now)
			if err := tx.InsertProduct(ctx, p); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			canonical := sp.ID
			p.CanonicalID = &canonical
			fillProduct(&p, sp, now)
			if err := tx.UpdateProduct(ctx, p); err != nil {
				return err
			}
		}
		local[sp.ID] = p.ID
	}

	want := make(map[[2]string]int64, len(snap.Inventory))
	for _, inv := range snap.Inventory {
		productID, ok := local[inv.ProductID]
		if !ok {
			continue
		}
		want[[2]string{inv.StoreID, productID}] = inv.Stock
	}

	rows, err := tx.InventoryRows(ctx)
	if err != nil {
		return err
	}
	have := make(map[[2]string]bool, len(rows))
	for _, row := range rows {
		key := [2]string{row.StoreID, row.ProductID}
		have[key] = true
		stock, ok := want[key]
		switch {
		case !ok:
			if err := tx.DeleteInventory(ctx, row.StoreID, row.ProductID); err != nil {
				return err
			}
		case stock != row.Stock:
			row.Stock, row.UpdatedAt = stock, now
			if err := tx.SetInventory(ctx, row); err != nil {
				return err
			}
		}
	}
	for key, stock := range want {
		if have[key] {
			continue
		}
		err := tx.SetInventory(ctx, model.InventoryRow{
			ID: e.newID(), StoreID: key[0], ProductID: key[1], Stock: stock, UpdatedAt: now,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func fillProduct(p *model.Product, sp model.SnapshotProduct, now time.Time) {
	p.ItemNo, p.ItemNoConfirmed = sp.ItemNo, true
	p.Name = sp.Name
	p.Cost, p.Price = sp.Cost, sp.Price
	p.WarehouseStock = sp.WarehouseStock
	p.RestockLevel = sp.RestockLevel
	p.Deleted = sp.Deleted
	p.UpdatedAt = now
}
