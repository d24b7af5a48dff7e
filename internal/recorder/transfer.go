package recorder

import (
	"context"
	"errors"
	"fmt"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/model"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/stock"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/store"
)

// TransferLine is one product moved by a transfer.
type TransferLine struct {
	ProductID string
	Qty       int64
}

// TransferInput moves stock from the warehouse to a shop.
type TransferInput struct {
	ToStoreID string
	Items     []TransferLine
}

func (in TransferInput) validate() error {
	if in.ToStoreID == "" {
		return invalidf("toStoreId", ErrUnknownStore, "destination store is required")
	}
	if len(in.Items) == 0 {
		return invalid("items", ErrNoItems)
	}
	seen := make(map[string]bool, len(in.Items))
	for i, line := range in.Items {
		field := fmt.Sprintf("items[%d]", i)
		if line.ProductID == "" {
			return invalidf(field+".productId", ErrUnknownProduct, "product is required")
		}
		if line.Qty <= 0 {
			return invalid(field+".qty", ErrNonPositiveQuantity)
		}
		if seen[line.ProductID] {
			return invalidf(field+".productId", ErrInvalidValue, "product %q listed twice", line.ProductID)
		}
		seen[line.ProductID] = true
	}
	return nil
}

// CreateTransfer reserves stock in the warehouse for a shop. The warehouse
// is decremented now; the destination only receives the stock when the
// transfer is confirmed.
func (r *Recorder) CreateTransfer(ctx context.Context, in TransferInput) (model.StockTransfer, error) {
	if err := in.validate(); err != nil {
		return model.StockTransfer{}, err
	}

	now := r.clock.Now()
	tr := model.StockTransfer{
		ID:          r.ids.NewID(),
		FromStoreID: model.WarehouseID,
		ToStoreID:   in.ToStoreID,
		Status:      model.TransferPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		Items:       make([]model.StockTransferItem, 0, len(in.Items)),
	}

	err := r.commit(ctx, "create transfer", func(tx *store.Tx) error {
		if _, err := shop(ctx, tx, "toStoreId", in.ToStoreID); err != nil {
			return err
		}

		payload := model.TransferPayload{
			LocalID:     tr.ID,
			FromStoreID: tr.FromStoreID,
			ToStoreID:   tr.ToStoreID,
			Items:       make([]model.TransferItem, 0, len(in.Items)),
		}
		products := make([]model.Product, 0, len(in.Items))
		for i, line := range in.Items {
			field := fmt.Sprintf("items[%d]", i)
			p, err := liveProduct(ctx, tx, field+".productId", line.ProductID)
			if err != nil {
				return err
			}
			if _, err := stock.Reserve(p.WarehouseStock, line.Qty); err != nil {
				return invalidf(field+".qty", ErrInsufficientStock,
					"%s: need %d, warehouse has %d", p.Name, line.Qty, p.WarehouseStock)
			}
			products = append(products, p)
			tr.Items = append(tr.Items, model.StockTransferItem{
				ID:         r.ids.NewID(),
				TransferID: tr.ID,
				ProductID:  p.ID,
				ItemName:   p.Name,
				Qty:        line.Qty,
			})
			payload.Items = append(payload.Items, model.TransferItem{
				ProductID: p.ID,
				ItemName:  p.Name,
				Qty:       line.Qty,
			})
		}

		if err := tx.InsertTransfer(ctx, tr); err != nil {
			return err
		}
		for i := range products {
			next, _ := stock.Reserve(products[i].WarehouseStock, in.Items[i].Qty)
			if err := r.setWarehouse(ctx, tx, &products[i], next, "transfer_reserve", "stock_transfers", tr.ID, now); err != nil {
				return err
			}
		}
		return r.enqueue(ctx, tx, model.QueueStockTransfers, model.ActionCreate, tr.ID, payload, now)
	})
	if err != nil {
		return model.StockTransfer{}, err
	}
	return tr, nil
}

// ConfirmTransfer marks a pending transfer received and credits the
// destination store.
func (r *Recorder) ConfirmTransfer(ctx context.Context, id string) (model.StockTransfer, error) {
	return r.finishTransfer(ctx, id, model.TransferConfirmed)
}

// CancelTransfer abandons a pending transfer and returns the reserved stock
// to the warehouse.
func (r *Recorder) CancelTransfer(ctx context.Context, id string) (model.StockTransfer, error) {
	return r.finishTransfer(ctx, id, model.TransferCancelled)
}

func (r *Recorder) finishTransfer(ctx context.Context, id string, next model.TransferStatus) (model.StockTransfer, error) {
	op, action := "confirm transfer", model.ActionConfirm
	if next == model.TransferCancelled {
		op, action = "cancel transfer", model.ActionCancel
	}

	var tr model.StockTransfer
	err := r.commit(ctx, op, func(tx *store.Tx) error {
		var err error
		tr, err = tx.Transfer(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return invalidf("id", ErrUnknownRecord, "unknown transfer %q", id)
		}
		if err != nil {
			return err
		}
		if !tr.Status.CanTransition(next) {
			return invalidf("status", ErrInvalidTransition, "transfer is %s", tr.Status)
		}

		now := r.clock.Now()
		for _, item := range tr.Items {
			if next == model.TransferConfirmed {
				row, found, err := tx.Inventory(ctx, tr.ToStoreID, item.ProductID)
				if err != nil {
					return err
				}
				if err := r.setShopStock(ctx, tx, row, found, row.Stock+item.Qty, "transfer_in", "stock_transfers", tr.ID, now); err != nil {
					return err
				}
				continue
			}
			p, err := tx.Product(ctx, item.ProductID)
			if err != nil {
				return err
			}
			if err := r.setWarehouse(ctx, tx, &p, p.WarehouseStock+item.Qty, "transfer_cancel", "stock_transfers", tr.ID, now); err != nil {
				return err
			}
		}

		if err := tx.SetTransferStatus(ctx, tr.ID, next, now); err != nil {
			return err
		}
		tr.Status, tr.UpdatedAt = next, now
		return r.enqueue(ctx, tx, model.QueueStockTransfers, action, tr.ID,
			model.TransitionPayload{LocalID: tr.ID}, now)
	})
	if err != nil {
		return model.StockTransfer{}, err
	}
	return tr, nil
}
