package recorder

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/catalog"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/model"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/store"
)

// SeedCatalog writes a catalog's stores and products as local reference
// data. The server already knows them, so nothing is queued. Products that
// already exist locally are left alone, which makes reseeding safe.
func (r *Recorder) SeedCatalog(ctx context.Context, cat *catalog.Catalog) error {
	seeded := 0
	err := r.commit(ctx, "seed catalog", func(tx *store.Tx) error {
		err := tx.UpsertStore(ctx, model.Store{ID: model.WarehouseID, Name: "Warehouse", IsWarehouse: true})
		if err != nil {
			return err
		}
		for _, st := range cat.Stores {
			if err := tx.UpsertStore(ctx, st); err != nil {
				return err
			}
		}

		now := r.clock.Now()
		for _, cp := range cat.Products {
			_, err := tx.Product(ctx, cp.ID)
			if err == nil {
				continue
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if _, err := tx.ProductByName(ctx, cp.Name); err == nil {
				return invalidf("products", ErrDuplicateProduct, "product %q already exists under another id", cp.Name)
			}

			id := cp.ID
			p := model.Product{
				ID:              cp.ID,
				CanonicalID:     &id,
				ItemNo:          cp.ItemNo,
				ItemNoConfirmed: true,
				Name:            cp.Name,
				Cost:            cp.Cost,
				Price:           cp.Price,
				RestockLevel:    cp.RestockLevel,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := tx.InsertProduct(ctx, p); err != nil {
				return err
			}
			if err := r.setWarehouse(ctx, tx, &p, cp.WarehouseStock, "seed", "products", p.ID, now); err != nil {
				return err
			}

			storeIDs := make([]string, 0, len(cp.Stock))
			for storeID := range cp.Stock {
				storeIDs = append(storeIDs, storeID)
			}
			sort.Strings(storeIDs)
			for _, storeID := range storeIDs {
				row := model.InventoryRow{StoreID: storeID, ProductID: p.ID}
				if err := r.setShopStock(ctx, tx, row, false, cp.Stock[storeID], "seed", "products", p.ID, now); err != nil {
					return err
				}
			}
			seeded++
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.log.Info("catalog seeded",
		zap.Int("stores", len(cat.Stores)),
		zap.Int("products", seeded))
	return nil
}
