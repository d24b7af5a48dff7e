// Package stock holds the stock arithmetic shared by the device's mutation
// recorder and the reconciliation server, so both apply an approved change
// the same way.
//
// All functions are pure. Quantities never go below zero: decrements are
// floored and the amount actually removed is reported so callers can keep
// warehouse and store stock conserved.
package stock

import (
	"errors"
	"fmt"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/model"
)

var (
	ErrNonPositiveQuantity = errors.New("quantity must be positive")
	ErrNegativeQuantity    = errors.New("quantity must not be negative")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrUnknownChangeType   = errors.New("unknown change type")
)

// Decrement subtracts qty from current, floored at zero.
// It returns the new level and the amount actually removed.
func Decrement(current, qty int64) (next, removed int64) {
	next = current - qty
	if next < 0 {
		next = 0
	}
	return next, current - next
}

// Reserve takes qty out of warehouse for a transfer. Unlike Decrement it
// refuses to go short.
func Reserve(warehouse, qty int64) (int64, error) {
	if qty <= 0 {
		return warehouse, ErrNonPositiveQuantity
	}
	if qty > warehouse {
		return warehouse, fmt.Errorf("%w: need %d, warehouse has %d", ErrInsufficientStock, qty, warehouse)
	}
	return warehouse - qty, nil
}

// Levels are the stock levels a change is applied to.
type Levels struct {
	Store     int64
	Warehouse int64
	// Exists is false when the store has no inventory row for the product.
	Exists bool
}

// Outcome is the result of applying a change.
type Outcome struct {
	Store     int64
	Warehouse int64
	// DeleteRow means the store's inventory row must be removed.
	DeleteRow bool
}

// StoreDelta returns the signed change to store stock.
func (o Outcome) StoreDelta(before Levels) int64 { return o.Store - before.Store }

// WarehouseDelta returns the signed change to warehouse stock.
func (o Outcome) WarehouseDelta(before Levels) int64 { return o.Warehouse - before.Warehouse }

// ApplyChange computes the effect of approving a change of the given kind.
//
//	add            warehouse -= qty (floored), store += qty
//	remove         store -= qty (floored)
//	return         store -= qty (floored), warehouse += amount removed
//	remove_product warehouse += qty, row deleted
//	adjust         store = qty; a raise is taken from the warehouse
//	               (floored), a cut is given back to it
func ApplyChange(kind model.ChangeType, qty int64, lv Levels) (Outcome, error) {
	if err := ValidateQty(kind, qty); err != nil {
		return Outcome{}, err
	}

	out := Outcome{Store: lv.Store, Warehouse: lv.Warehouse}
	switch kind {
	case model.ChangeAdd:
		out.Warehouse, _ = Decrement(lv.Warehouse, qty)
		out.Store = lv.Store + qty
	case model.ChangeRemove:
		out.Store, _ = Decrement(lv.Store, qty)
	case model.ChangeReturn:
		var removed int64
		out.Store, removed = Decrement(lv.Store, qty)
		out.Warehouse = lv.Warehouse + removed
	case model.ChangeRemoveProduct:
		out.Warehouse = lv.Warehouse + qty
		out.Store = 0
		out.DeleteRow = lv.Exists
	case model.ChangeAdjust:
		delta := qty - lv.Store
		if delta > 0 {
			out.Warehouse, _ = Decrement(lv.Warehouse, delta)
		} else {
			out.Warehouse = lv.Warehouse - delta
		}
		out.Store = qty
	}
	return out, nil
}

// ValidateQty checks qty for a change of the given kind. Adjust targets and
// remove_product requests may be zero; every other kind needs a positive
// quantity.
func ValidateQty(kind model.ChangeType, qty int64) error {
	switch kind {
	case model.ChangeAdd, model.ChangeRemove, model.ChangeReturn:
		if qty <= 0 {
			return ErrNonPositiveQuantity
		}
	case model.ChangeAdjust, model.ChangeRemoveProduct:
		if qty < 0 {
			return ErrNegativeQuantity
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownChangeType, kind)
	}
	return nil
}
