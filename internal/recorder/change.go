package recorder

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/model"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/stock"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/store"
)

// ChangeInput is a store's request to change its stock of one product.
//
// Qty is the amount to add, remove or return, or the target level for an
// adjust. A remove_product request with Qty 0 takes the store's whole stock.
// NewCost and NewPrice are only applied by adjust.
type ChangeInput struct {
	StoreID     string
	ProductID   string
	Type        model.ChangeType
	Qty         int64
	Reason      string
	NewCost     *decimal.Decimal
	NewPrice    *decimal.Decimal
	RequestedBy string
}

func (in ChangeInput) validate() error {
	if in.StoreID == "" {
		return invalidf("storeId", ErrUnknownStore, "store is required")
	}
	if in.ProductID == "" {
		return invalidf("productId", ErrUnknownProduct, "product is required")
	}
	if !in.Type.Valid() {
		return invalidf("changeType", ErrInvalidValue, "unknown change type %q", in.Type)
	}
	if err := stock.ValidateQty(in.Type, in.Qty); err != nil {
		if errors.Is(err, stock.ErrNonPositiveQuantity) {
			return invalid("qty", ErrNonPositiveQuantity)
		}
		return invalidf("qty", ErrInvalidValue, "%v", err)
	}
	if in.NewCost != nil {
		if err := checkMoney("newCost", *in.NewCost); err != nil {
			return err
		}
	}
	if in.NewPrice != nil {
		if err := checkMoney("newPrice", *in.NewPrice); err != nil {
			return err
		}
	}
	return nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

// RequestChange records a change request. Stock is untouched until the
// request is approved.
func (r *Recorder) RequestChange(ctx context.Context, in ChangeInput) (model.PendingChange, error) {
	if err := in.validate(); err != nil {
		return model.PendingChange{}, err
	}

	now := r.clock.Now()
	c := model.PendingChange{
		ID:          r.ids.NewID(),
		StoreID:     in.StoreID,
		ProductID:   in.ProductID,
		ChangeType:  in.Type,
		Qty:         in.Qty,
		Reason:      strings.TrimSpace(in.Reason),
		NewCost:     nullDecimal(in.NewCost),
		NewPrice:    nullDecimal(in.NewPrice),
		Status:      model.ChangePending,
		RequestedBy: in.RequestedBy,
		CreatedAt:   now,
	}

	err := r.commit(ctx, "request change", func(tx *store.Tx) error {
		if _, err := shop(ctx, tx, "storeId", in.StoreID); err != nil {
			return err
		}
		if _, err := liveProduct(ctx, tx, "productId", in.ProductID); err != nil {
			return err
		}
		if c.ChangeType == model.ChangeRemoveProduct && c.Qty == 0 {
			row, _, err := tx.Inventory(ctx, c.StoreID, c.ProductID)
			if err != nil {
				return err
			}
			c.Qty = row.Stock
		}

		if err := tx.InsertPendingChange(ctx, c); err != nil {
			return err
		}
		return r.enqueue(ctx, tx, model.QueuePendingChanges, model.ActionCreate, c.ID, model.ChangePayload{
			LocalID:     c.ID,
			StoreID:     c.StoreID,
			ProductID:   c.ProductID,
			ChangeType:  c.ChangeType,
			Qty:         c.Qty,
			Reason:      c.Reason,
			NewCost:     in.NewCost,
			NewPrice:    in.NewPrice,
			RequestedBy: c.RequestedBy,
		}, now)
	})
	if err != nil {
		return model.PendingChange{}, err
	}
	return c, nil
}

// decide loads a change and checks that it may move to next.
func decide(ctx context.Context, tx *store.Tx, id string, next model.ChangeStatus) (model.PendingChange, error) {
	c, err := tx.PendingChange(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return c, invalidf("id", ErrUnknownRecord, "unknown change %q", id)
	}
	if err != nil {
		return c, err
	}
	if !c.Status.CanTransition(c.ChangeType, next) {
		return c, invalidf("status", ErrInvalidTransition, "%s change is %s", c.ChangeType, c.Status)
	}
	return c, nil
}

// ApproveChange applies a pending change to the store and the warehouse and
// marks it approved.
func (r *Recorder) ApproveChange(ctx context.Context, id, decidedBy string) (model.PendingChange, error) {
	var c model.PendingChange
	err := r.commit(ctx, "approve change", func(tx *store.Tx) error {
		var err error
		if c, err = decide(ctx, tx, id, model.ChangeApproved); err != nil {
			return err
		}
		p, err := liveProduct(ctx, tx, "productId", c.ProductID)
		if err != nil {
			return err
		}
		row, found, err := tx.Inventory(ctx, c.StoreID, c.ProductID)
		if err != nil {
			return err
		}

		before := stock.Levels{Store: row.Stock, Warehouse: p.WarehouseStock, Exists: found}
		out, err := stock.ApplyChange(c.ChangeType, c.Qty, before)
		if err != nil {
			return invalidf("qty", ErrInvalidValue, "%v", err)
		}

		now := r.clock.Now()
		kind := "change_" + string(c.ChangeType)
		if err := r.applyOutcome(ctx, tx, c, p, row, found, out, kind, now); err != nil {
			return err
		}

		if err := tx.DecidePendingChange(ctx, c.ID, model.ChangeApproved, decidedBy, now); err != nil {
			return err
		}
		c.Status, c.DecidedBy, c.DecidedAt = model.ChangeApproved, decidedBy, &now
		return r.enqueue(ctx, tx, model.QueuePendingChanges, model.ActionApprove, c.ID,
			model.TransitionPayload{LocalID: c.ID, DecidedBy: decidedBy}, now)
	})
	if err != nil {
		return model.PendingChange{}, err
	}
	return c, nil
}

func (r *Recorder) applyOutcome(ctx context.Context, tx *store.Tx, c model.PendingChange, p model.Product, row model.InventoryRow, found bool, out stock.Outcome, kind string, now time.Time) error {
	repriced := false
	if c.ChangeType == model.ChangeAdjust {
		if c.NewCost.Valid {
			p.Cost, repriced = c.NewCost.Decimal, true
		}
		if c.NewPrice.Valid {
			p.Price, repriced = c.NewPrice.Decimal, true
		}
	}
	if repriced && out.Warehouse == p.WarehouseStock {
		p.UpdatedAt = now
		if err := tx.UpdateProduct(ctx, p); err != nil {
			return err
		}
	}
	if err := r.setWarehouse(ctx, tx, &p, out.Warehouse, kind, "pending_changes", c.ID, now); err != nil {
		return err
	}

	switch {
	case out.DeleteRow:
		if err := tx.DeleteInventory(ctx, c.StoreID, c.ProductID); err != nil {
			return err
		}
		return r.movement(ctx, tx, c.StoreID, c.ProductID, kind, row.Stock, 0, "pending_changes", c.ID, now)
	case !found && out.Store == 0:
		return nil
	default:
		return r.setShopStock(ctx, tx, row, found, out.Store, kind, "pending_changes", c.ID, now)
	}
}

// RejectChange closes a pending change without touching stock.
func (r *Recorder) RejectChange(ctx context.Context, id, decidedBy string) (model.PendingChange, error) {
	return r.transition(ctx, "reject change", id, model.ChangeRejected, model.ActionReject, decidedBy)
}

// CompleteReturn closes an approved return once the goods are back in the
// warehouse.
func (r *Recorder) CompleteReturn(ctx context.Context, id string) (model.PendingChange, error) {
	return r.transition(ctx, "complete return", id, model.ChangeCompleted, model.ActionComplete, "")
}

// transition moves a change to a status that has no stock effect.
// An empty decidedBy keeps the recorded decider.
func (r *Recorder) transition(ctx context.Context, op, id string, next model.ChangeStatus, action, decidedBy string) (model.PendingChange, error) {
	var c model.PendingChange
	err := r.commit(ctx, op, func(tx *store.Tx) error {
		var err error
		if c, err = decide(ctx, tx, id, next); err != nil {
			return err
		}
		if decidedBy == "" {
			decidedBy = c.DecidedBy
		}
		now := r.clock.Now()
		if err := tx.DecidePendingChange(ctx, c.ID, next, decidedBy, now); err != nil {
			return err
		}
		c.Status, c.DecidedBy, c.DecidedAt = next, decidedBy, &now
		return r.enqueue(ctx, tx, model.QueuePendingChanges, action, c.ID,
			model.TransitionPayload{LocalID: c.ID, DecidedBy: decidedBy}, now)
	})
	if err != nil {
		return model.PendingChange{}, err
	}
	return c, nil
}
