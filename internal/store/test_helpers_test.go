package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/model"
)

var testTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestProduct returns a product with minimal required fields.
func createTestProduct(id, name string, itemNo, warehouse int64) model.Product {
	return model.Product{
		ID:             id,
		ItemNo:         itemNo,
		Name:           name,
		Cost:           decimal.RequireFromString("2.00"),
		Price:          decimal.RequireFromString("3.50"),
		WarehouseStock: warehouse,
		RestockLevel:   2,
		CreatedAt:      testTime,
		UpdatedAt:      testTime,
	}
}

// seedBasics writes the warehouse, one shop and one product.
func seedBasics(t *testing.T, s *Store) {
	t.Helper()
	err := s.WithTx(context.Background(), func(tx *Tx) error {
		if err := tx.UpsertStore(context.Background(), model.Store{ID: model.WarehouseID, Name: "Warehouse", IsWarehouse: true}); err != nil {
			return err
		}
		if err := tx.UpsertStore(context.Background(), model.Store{ID: "store-a", Name: "Store A"}); err != nil {
			return err
		}
		return tx.InsertProduct(context.Background(), createTestProduct("p1", "Soap", 1, 20))
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}
