package recorder

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/model"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/store"
)

// AdditionLine is one product of a stock-in batch. Nil Cost or Price take
// the product's current value.
type AdditionLine struct {
	ProductID string
	Qty       int64
	Cost      *decimal.Decimal
	Price     *decimal.Decimal
}

// AdditionInput is a warehouse stock-in batch.
type AdditionInput struct {
	ReferenceID string
	Items       []AdditionLine
}

func (in AdditionInput) validate() error {
	if len(in.Items) == 0 {
		return invalid("items", ErrNoItems)
	}
	for i, line := range in.Items {
		field := fmt.Sprintf("items[%d]", i)
		if line.ProductID == "" {
			return invalidf(field+".productId", ErrUnknownProduct, "product is required")
		}
		if line.Qty <= 0 {
			return invalid(field+".qty", ErrNonPositiveQuantity)
		}
		if line.Cost != nil {
			if err := checkMoney(field+".cost", *line.Cost); err != nil {
				return err
			}
		}
		if line.Price != nil {
			if err := checkMoney(field+".price", *line.Price); err != nil {
				return err
			}
		}
	}
	return nil
}

// AddInventoryBatch records a stock-in batch for the warehouse.
//
// Warehouse stock is not incremented here. The server books stock-in and the
// confirmed quantities are applied when the batch syncs.
func (r *Recorder) AddInventoryBatch(ctx context.Context, in AdditionInput) (model.InventoryAddition, error) {
	if err := in.validate(); err != nil {
		return model.InventoryAddition{}, err
	}

	now := r.clock.Now()
	add := model.InventoryAddition{
		ID:          r.ids.NewID(),
		ReferenceID: strings.TrimSpace(in.ReferenceID),
		TotalCost:   decimal.Zero,
		CreatedAt:   now,
		Items:       make([]model.InventoryAdditionItem, 0, len(in.Items)),
	}
	if add.ReferenceID == "" {
		add.ReferenceID = add.ID
	}

	err := r.commit(ctx, "add inventory", func(tx *store.Tx) error {
		payload := model.AdditionPayload{
			LocalID:     add.ID,
			ReferenceID: add.ReferenceID,
			Items:       make([]model.AdditionItem, 0, len(in.Items)),
		}
		for i, line := range in.Items {
			p, err := liveProduct(ctx, tx, fmt.Sprintf("items[%d].productId", i), line.ProductID)
			if err != nil {
				return err
			}
			cost, price := p.Cost, p.Price
			if line.Cost != nil {
				cost = *line.Cost
			}
			if line.Price != nil {
				price = *line.Price
			}
			add.Items = append(add.Items, model.InventoryAdditionItem{
				ID:         r.ids.NewID(),
				AdditionID: add.ID,
				ProductID:  p.ID,
				ItemName:   p.Name,
				Cost:       cost,
				Price:      price,
				Qty:        line.Qty,
			})
			payload.Items = append(payload.Items, model.AdditionItem{
				ProductID: p.ID,
				ItemName:  p.Name,
				Cost:      cost,
				Price:     price,
				Qty:       line.Qty,
			})
			add.TotalCost = add.TotalCost.Add(cost.Mul(decimal.NewFromInt(line.Qty)))
		}
		payload.TotalCost = add.TotalCost

		if err := tx.InsertAddition(ctx, add); err != nil {
			return err
		}
		return r.enqueue(ctx, tx, model.QueueInventoryAdditions, model.ActionCreate, add.ID, payload, now)
	})
	if err != nil {
		return model.InventoryAddition{}, err
	}
	return add, nil
}
