package recorder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/model"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/store"
)

// ProductInput describes a product to add or import.
type ProductInput struct {
	Name           string
	Cost           decimal.Decimal
	Price          decimal.Decimal
	WarehouseStock int64
	RestockLevel   int64
}

func (in *ProductInput) validate(field string) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return invalidf(field+"name", ErrInvalidValue, "name is required")
	}
	if err := checkMoney(field+"cost", in.Cost); err != nil {
		return err
	}
	if err := checkMoney(field+"price", in.Price); err != nil {
		return err
	}
	if in.WarehouseStock < 0 {
		return invalidf(field+"warehouseStock", ErrInvalidValue, "must not be negative")
	}
	if in.RestockLevel < 0 {
		return invalidf(field+"restockLevel", ErrInvalidValue, "must not be negative")
	}
	return nil
}

func productPayload(p model.Product) model.ProductPayload {
	return model.ProductPayload{
		LocalID:        p.ID,
		Name:           p.Name,
		Cost:           p.Cost,
		Price:          p.Price,
		WarehouseStock: p.WarehouseStock,
		RestockLevel:   p.RestockLevel,
	}
}

// insertProduct creates a product with a provisional item number.
func (r *Recorder) insertProduct(ctx context.Context, tx *store.Tx, in ProductInput, refTable, refID string) (model.Product, error) {
	itemNo, err := tx.NextItemNo(ctx)
	if err != nil {
		return model.Product{}, err
	}
	now := r.clock.Now()
	p := model.Product{
		ID:           r.ids.NewID(),
		ItemNo:       itemNo,
		Name:         in.Name,
		Cost:         in.Cost,
		Price:        in.Price,
		RestockLevel: in.RestockLevel,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.InsertProduct(ctx, p); err != nil {
		return p, err
	}
	if refID == "" {
		refID = p.ID
	}
	if err := r.setWarehouse(ctx, tx, &p, in.WarehouseStock, "initial", refTable, refID, now); err != nil {
		return p, err
	}
	return p, nil
}

// AddProduct creates a product. Its item number is provisional until the
// server confirms it.
func (r *Recorder) AddProduct(ctx context.Context, in ProductInput) (model.Product, error) {
	if err := in.validate(""); err != nil {
		return model.Product{}, err
	}

	var p model.Product
	err := r.commit(ctx, "add product", func(tx *store.Tx) error {
		if _, err := tx.ProductByName(ctx, in.Name); err == nil {
			return invalidf("name", ErrDuplicateProduct, "product %q already exists", in.Name)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		var err error
		if p, err = r.insertProduct(ctx, tx, in, "products", ""); err != nil {
			return err
		}
		return r.enqueue(ctx, tx, model.QueueProducts, model.ActionCreate, p.ID, productPayload(p), p.CreatedAt)
	})
	if err != nil {
		return model.Product{}, err
	}
	return p, nil
}

// ImportProducts upserts products by name: new names are created, existing
// products get the imported cost and price. The whole import is one queue
// entry for the bulk endpoint.
func (r *Recorder) ImportProducts(ctx context.Context, inputs []ProductInput) ([]model.Product, error) {
	if len(inputs) == 0 {
		return nil, invalid("products", ErrNoItems)
	}
	seen := make(map[string]bool, len(inputs))
	for i := range inputs {
		field := fmt.Sprintf("products[%d].", i)
		if err := inputs[i].validate(field); err != nil {
			return nil, err
		}
		if seen[inputs[i].Name] {
			return nil, invalidf(field+"name", ErrDuplicateProduct, "%q appears twice in the import", inputs[i].Name)
		}
		seen[inputs[i].Name] = true
	}

	batchID := r.ids.NewID()
	products := make([]model.Product, 0, len(inputs))
	err := r.commit(ctx, "import products", func(tx *store.Tx) error {
		now := r.clock.Now()
		bulk := model.ProductBulkPayload{BatchID: batchID, Products: make([]model.ProductPayload, 0, len(inputs))}

		for _, in := range inputs {
			p, err := tx.ProductByName(ctx, in.Name)
			switch {
			case errors.Is(err, store.ErrNotFound):
				if p, err = r.insertProduct(ctx, tx, in, "products", batchID); err != nil {
					return err
				}
			case err != nil:
				return err
			default:
				p.Cost, p.Price, p.RestockLevel, p.UpdatedAt = in.Cost, in.Price, in.RestockLevel, now
				if err := tx.UpdateProduct(ctx, p); err != nil {
					return err
				}
				if err := r.setWarehouse(ctx, tx, &p, p.WarehouseStock+in.WarehouseStock, "import", "products", batchID, now); err != nil {
					return err
				}
			}
			products = append(products, p)
			// The server adds the payload's stock to a product it already
			// has, so only the imported quantity travels.
			payload := productPayload(p)
			payload.WarehouseStock = in.WarehouseStock
			bulk.Products = append(bulk.Products, payload)
		}

		return r.enqueue(ctx, tx, model.QueueProducts, model.ActionImport, batchID, bulk, now)
	})
	if err != nil {
		return nil, err
	}
	return products, nil
}

// UpdatePricing changes a product's cost and price.
func (r *Recorder) UpdatePricing(ctx context.Context, productID string, cost, price decimal.Decimal) (model.Product, error) {
	if err := checkMoney("cost", cost); err != nil {
		return model.Product{}, err
	}
	if err := checkMoney("price", price); err != nil {
		return model.Product{}, err
	}

	var p model.Product
	err := r.commit(ctx, "update pricing", func(tx *store.Tx) error {
		var err error
		if p, err = liveProduct(ctx, tx, "productId", productID); err != nil {
			return err
		}
		now := r.clock.Now()
		p.Cost, p.Price, p.UpdatedAt = cost, price, now
		if err := tx.UpdateProduct(ctx, p); err != nil {
			return err
		}
		return r.enqueue(ctx, tx, model.QueueProducts, model.ActionUpdate, p.ID,
			model.PricingPayload{LocalID: p.ID, Cost: cost, Price: price}, now)
	})
	if err != nil {
		return model.Product{}, err
	}
	return p, nil
}

// DeleteProduct soft-deletes a product. Historical sales keep referencing it.
func (r *Recorder) DeleteProduct(ctx context.Context, productID string) error {
	return r.commit(ctx, "delete product", func(tx *store.Tx) error {
		p, err := liveProduct(ctx, tx, "productId", productID)
		if err != nil {
			return err
		}
		now := r.clock.Now()
		p.Deleted, p.UpdatedAt = true, now
		if err := tx.UpdateProduct(ctx, p); err != nil {
			return err
		}
		return r.enqueue(ctx, tx, model.QueueProducts, model.ActionDelete, p.ID,
			model.DeletePayload{LocalID: p.ID}, now)
	})
}
