package recorder

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/model"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/stock"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/store"
)

// SaleLine is one cart line. Nil Price or Cost take the product's current
// value.
type SaleLine struct {
	ProductID string
	Qty       int64
	Price     *decimal.Decimal
	Cost      *decimal.Decimal
}

// SaleInput is a checkout at one store.
type SaleInput struct {
	StoreID string
	Lines   []SaleLine
}

func (in SaleInput) validate() error {
	if len(in.Lines) == 0 {
		return invalid("lines", ErrEmptyCart)
	}
	if in.StoreID == "" {
		return invalidf("storeId", ErrUnknownStore, "store is required")
	}
	for i, line := range in.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		if line.ProductID == "" {
			return invalidf(field+".productId", ErrUnknownProduct, "product is required")
		}
		if line.Qty <= 0 {
			return invalid(field+".qty", ErrNonPositiveQuantity)
		}
		if line.Price != nil {
			if err := checkMoney(field+".price", *line.Price); err != nil {
				return err
			}
		}
		if line.Cost != nil {
			if err := checkMoney(field+".cost", *line.Cost); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordSale records a completed sale. In one transaction it writes the
// transaction and its items, decrements the store's inventory for every line
// (clamped at zero), and queues the sale for the server.
func (r *Recorder) RecordSale(ctx context.Context, in SaleInput) (model.Transaction, error) {
	if err := in.validate(); err != nil {
		return model.Transaction{}, err
	}

	now := r.clock.Now()
	txn := model.Transaction{
		ID:        r.ids.NewID(),
		StoreID:   in.StoreID,
		CreatedAt: now,
		Items:     make([]model.TransactionItem, 0, len(in.Lines)),
	}
	payload := model.SalePayload{
		LocalID:   txn.ID,
		StoreID:   in.StoreID,
		CreatedAt: now,
		Items:     make([]model.SaleItem, 0, len(in.Lines)),
	}

	err := r.commit(ctx, "record sale", func(tx *store.Tx) error {
		if _, err := shop(ctx, tx, "storeId", in.StoreID); err != nil {
			return err
		}

		subtotal := decimal.Zero
		for i, line := range in.Lines {
			p, err := liveProduct(ctx, tx, fmt.Sprintf("lines[%d].productId", i), line.ProductID)
			if err != nil {
				return err
			}
			price, cost := p.Price, p.Cost
			if line.Price != nil {
				price = *line.Price
			}
			if line.Cost != nil {
				cost = *line.Cost
			}

			txn.Items = append(txn.Items, model.TransactionItem{
				ID:            r.ids.NewID(),
				TransactionID: txn.ID,
				ProductID:     p.ID,
				ItemName:      p.Name,
				Cost:          cost,
				Price:         price,
				Qty:           line.Qty,
			})
			payload.Items = append(payload.Items, model.SaleItem{
				ProductID: p.ID,
				ItemName:  p.Name,
				Cost:      cost,
				Price:     price,
				Qty:       line.Qty,
			})
			subtotal = subtotal.Add(price.Mul(decimal.NewFromInt(line.Qty)))
		}

		txn.Subtotal = subtotal
		txn.Tax = subtotal.Mul(r.taxRate).Round(2)
		txn.Total = txn.Subtotal.Add(txn.Tax)
		payload.Subtotal, payload.Tax, payload.Total = txn.Subtotal, txn.Tax, txn.Total

		if err := tx.InsertTransaction(ctx, txn); err != nil {
			return err
		}

		for _, line := range in.Lines {
			row, found, err := tx.Inventory(ctx, in.StoreID, line.ProductID)
			if err != nil {
				return err
			}
			if !found {
				// Nothing on record to decrement; the sale still stands.
				continue
			}
			next, _ := stock.Decrement(row.Stock, line.Qty)
			if err := r.setShopStock(ctx, tx, row, true, next, "sale", "transactions", txn.ID, now); err != nil {
				return err
			}
		}

		return r.enqueue(ctx, tx, model.QueueTransactions, model.ActionCreate, txn.ID, payload, now)
	})
	if err != nil {
		return model.Transaction{}, err
	}
	return txn, nil
}
