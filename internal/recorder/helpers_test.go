package recorder

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/catalog"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/model"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/store"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/testutil"
)

var errInjected = errors.New("injected disk failure")

type fixture struct {
	st  *store.Store
	rec *Recorder
	// failOn makes the store reject writes to the named table.
	failOn string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}
	st, err := store.Open(filepath.Join(t.TempDir(), "pos.db"), store.WithWriteHook(func(table, op string) error {
		if f.failOn != "" && table == f.failOn {
			return errInjected
		}
		return nil
	}))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f.st = st
	f.rec = New(st,
		WithClock(testutil.NewFixedClock(time.Time{}, time.Second)),
		WithIDs(testutil.NewSequentialIDs("id")),
		WithDeviceID("till-1"),
	)
	return f
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func moneyPtr(s string) *decimal.Decimal {
	d := money(s)
	return &d
}

// seed writes store-a, store-b and two products: soap (warehouse 20,
// store-a 5) and rice (warehouse 50, no shop stock).
func (f *fixture) seed(t *testing.T) {
	t.Helper()
	err := f.rec.SeedCatalog(t.Context(), &catalog.Catalog{
		Stores: []model.Store{{ID: "store-a", Name: "Store A"}, {ID: "store-b", Name: "Store B"}},
		Products: []catalog.Product{
			{ID: "soap", ItemNo: 1, Name: "Soap", Cost: money("2.00"), Price: money("3.50"),
				WarehouseStock: 20, RestockLevel: 2, Stock: map[string]int64{"store-a": 5}},
			{ID: "rice", ItemNo: 2, Name: "Rice", Cost: money("10.00"), Price: money("12.00"),
				WarehouseStock: 50, RestockLevel: 5},
		},
	})
	require.NoError(t, err)
}

// setStock overwrites a shop's stock directly, bypassing the recorder.
func (f *fixture) setStock(t *testing.T, storeID, productID string, qty int64) {
	t.Helper()
	err := f.st.WithTx(context.Background(), func(tx *store.Tx) error {
		return tx.SetInventory(context.Background(), model.InventoryRow{
			ID: "row-" + storeID + "-" + productID, StoreID: storeID, ProductID: productID,
			Stock: qty, UpdatedAt: testutil.DefaultStart,
		})
	})
	require.NoError(t, err)
}

func (f *fixture) setWarehouse(t *testing.T, productID string, qty int64) {
	t.Helper()
	err := f.st.WithTx(context.Background(), func(tx *store.Tx) error {
		p, err := tx.Product(context.Background(), productID)
		if err != nil {
			return err
		}
		p.WarehouseStock = qty
		return tx.UpdateProduct(context.Background(), p)
	})
	require.NoError(t, err)
}

func (f *fixture) shopStock(t *testing.T, storeID, productID string) (int64, bool) {
	t.Helper()
	row, found, err := f.st.Inventory(t.Context(), storeID, productID)
	require.NoError(t, err)
	return row.Stock, found
}

func (f *fixture) warehouse(t *testing.T, productID string) int64 {
	t.Helper()
	p, err := f.st.Product(t.Context(), productID)
	require.NoError(t, err)
	return p.WarehouseStock
}

func (f *fixture) queue(t *testing.T) []model.QueueEntry {
	t.Helper()
	entries, err := f.st.QueueEntries(t.Context())
	require.NoError(t, err)
	return entries
}
