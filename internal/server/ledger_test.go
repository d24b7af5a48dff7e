package server

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/catalog"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/model"
)

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seededLedger(t *testing.T, opts ...LedgerOption) *Ledger {
	t.Helper()
	l := NewLedger(opts...)
	l.Seed(&catalog.Catalog{
		Stores: []model.Store{{ID: "store-a", Name: "Store A"}, {ID: "store-b", Name: "Store B"}},
		Products: []catalog.Product{
			{ID: "soap", ItemNo: 1, Name: "Soap", Cost: money("1.00"), Price: money("2.50"), WarehouseStock: 20,
				Stock: map[string]int64{"store-a": 5}},
			{ID: "rice", ItemNo: 2, Name: "Rice", Cost: money("10"), Price: money("14"), WarehouseStock: 50},
		},
	})
	return l
}

func (l *Ledger) stockAt(storeID, productID string) (int64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if storeID == model.WarehouseID {
		return l.products[productID].WarehouseStock, true
	}
	n, ok := l.inventory[invKey{storeID, productID}]
	return n, ok
}

func TestCreateProduct_AssignsIDsAndReplays(t *testing.T) {
	l := seededLedger(t)
	in := model.ProductPayload{LocalID: "local-1", Name: " Soda ", Cost: money("0.5"), Price: money("1"), WarehouseStock: 12}

	first, err := l.CreateProduct(in)
	require.NoError(t, err)
	assert.Equal(t, "PRD-000001", first.ID)
	require.NotNil(t, first.ItemNo)
	assert.Equal(t, int64(3), *first.ItemNo)

	again, err := l.CreateProduct(in)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	got, _ := l.stockAt(model.WarehouseID, first.ID)
	assert.Equal(t, int64(12), got, "replay must not add stock twice")
}

func TestCreateProduct_UpsertsByName(t *testing.T) {
	l := seededLedger(t)

	reply, err := l.CreateProduct(model.ProductPayload{LocalID: "other-device", Name: "Soap", Cost: money("1.20"), Price: money("3"), WarehouseStock: 4})
	require.NoError(t, err)
	assert.Equal(t, "soap", reply.ID)
	assert.Equal(t, int64(1), *reply.ItemNo)

	w, _ := l.stockAt(model.WarehouseID, "soap")
	assert.Equal(t, int64(24), w)

	// The local id now resolves to the seeded product.
	_, err = l.UpdatePricing("other-device", model.PricingPayload{LocalID: "other-device", Cost: money("1"), Price: money("2")})
	require.NoError(t, err)
	assert.True(t, money("2").Equal(l.Snapshot().Products[0].Price))
}

func TestCreateProduct_Validation(t *testing.T) {
	l := seededLedger(t)
	_, err := l.CreateProduct(model.ProductPayload{LocalID: "x", Name: "  "})
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = l.CreateProduct(model.ProductPayload{LocalID: "x", Name: "Bad", Price: money("-1")})
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = l.CreateProduct(model.ProductPayload{Name: "No id"})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestImportProducts_AllOrNothing(t *testing.T) {
	l := seededLedger(t)

	_, err := l.ImportProducts(model.ProductBulkPayload{Products: []model.ProductPayload{
		{LocalID: "a", Name: "Beans", Cost: money("1"), Price: money("2")},
		{LocalID: "b", Name: "", Cost: money("1"), Price: money("2")},
	}})
	require.ErrorIs(t, err, ErrInvalid)
	assert.Len(t, l.Snapshot().Products, 2)

	batch := model.ProductBulkPayload{Products: []model.ProductPayload{
		{LocalID: "a", Name: "Beans", Cost: money("1"), Price: money("2")},
		{LocalID: "b", Name: "Rice", Cost: money("11"), Price: money("15"), WarehouseStock: 5},
	}}
	reply, err := l.ImportProducts(batch)
	require.NoError(t, err)
	require.Len(t, reply.Products, 2)
	assert.Equal(t, model.ProductAck{LocalID: "a", ID: "PRD-000001", ItemNo: 3}, reply.Products[0])
	assert.Equal(t, model.ProductAck{LocalID: "b", ID: "rice", ItemNo: 2}, reply.Products[1])

	replay, err := l.ImportProducts(batch)
	require.NoError(t, err)
	assert.Equal(t, reply, replay)
	w, _ := l.stockAt(model.WarehouseID, "rice")
	assert.Equal(t, int64(55), w)
}

func TestDeleteProduct(t *testing.T) {
	l := seededLedger(t)

	_, err := l.DeleteProduct("soap")
	require.NoError(t, err)
	_, err = l.DeleteProduct("soap")
	require.NoError(t, err)

	_, err = l.UpdatePricing("soap", model.PricingPayload{Cost: money("1"), Price: money("2")})
	assert.ErrorIs(t, err, ErrConflict)
	_, err = l.DeleteProduct("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, l.Snapshot().Products[0].Deleted)
}

func TestAddInventory(t *testing.T) {
	l := seededLedger(t)
	in := model.AdditionPayload{
		LocalID: "add-1", ReferenceID: "INV-7", TotalCost: money("30"),
		Items: []model.AdditionItem{{ProductID: "rice", Cost: money("10"), Price: money("14"), Qty: 3}},
	}

	reply, err := l.AddInventory(in)
	require.NoError(t, err)
	assert.Equal(t, "ADD-000001", reply.ID)
	assert.Equal(t, []model.ConfirmedItem{{ProductID: "rice", Qty: 3}}, reply.Items)

	_, err = l.AddInventory(in)
	require.NoError(t, err)
	w, _ := l.stockAt(model.WarehouseID, "rice")
	assert.Equal(t, int64(53), w)

	_, err = l.AddInventory(model.AdditionPayload{LocalID: "add-2", Items: []model.AdditionItem{{ProductID: "ghost", Qty: 1}}})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestTransfer_Lifecycle(t *testing.T) {
	l := seededLedger(t)

	reply, err := l.CreateTransfer(model.TransferPayload{
		LocalID: "trf-1", FromStoreID: model.WarehouseID, ToStoreID: "store-b",
		Items: []model.TransferItem{{ProductID: "soap", Qty: 8}},
	})
	require.NoError(t, err)
	assert.Equal(t, "TRF-000001", reply.ID)
	w, _ := l.stockAt(model.WarehouseID, "soap")
	assert.Equal(t, int64(12), w)

	_, err = l.ConfirmTransfer("trf-1")
	require.NoError(t, err)
	_, err = l.ConfirmTransfer("trf-1")
	require.NoError(t, err, "repeating the same transition is a replay")
	got, ok := l.stockAt("store-b", "soap")
	require.True(t, ok)
	assert.Equal(t, int64(8), got)

	_, err = l.CancelTransfer("trf-1")
	assert.ErrorIs(t, err, ErrConflict)
	_, err = l.ConfirmTransfer("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransfer_CancelReturnsStock(t *testing.T) {
	l := seededLedger(t)
	_, err := l.CreateTransfer(model.TransferPayload{
		LocalID: "trf-1", FromStoreID: model.WarehouseID, ToStoreID: "store-a",
		Items: []model.TransferItem{{ProductID: "rice", Qty: 50}},
	})
	require.NoError(t, err)

	_, err = l.CancelTransfer("TRF-000001")
	require.NoError(t, err)
	w, _ := l.stockAt(model.WarehouseID, "rice")
	assert.Equal(t, int64(50), w)
}

func TestTransfer_Rejections(t *testing.T) {
	l := seededLedger(t)
	base := model.TransferPayload{LocalID: "t", FromStoreID: model.WarehouseID, ToStoreID: "store-a"}

	short := base
	short.Items = []model.TransferItem{{ProductID: "soap", Qty: 5}, {ProductID: "rice", Qty: 51}}
	_, err := l.CreateTransfer(short)
	assert.ErrorIs(t, err, ErrConflict)
	w, _ := l.stockAt(model.WarehouseID, "soap")
	assert.Equal(t, int64(20), w, "nothing is reserved when any line is short")

	dup := base
	dup.Items = []model.TransferItem{{ProductID: "soap", Qty: 1}, {ProductID: "soap", Qty: 1}}
	_, err = l.CreateTransfer(dup)
	assert.ErrorIs(t, err, ErrInvalid)

	toWarehouse := base
	toWarehouse.ToStoreID = model.WarehouseID
	toWarehouse.Items = []model.TransferItem{{ProductID: "soap", Qty: 1}}
	_, err = l.CreateTransfer(toWarehouse)
	assert.ErrorIs(t, err, ErrInvalid)

	fromShop := base
	fromShop.FromStoreID = "store-b"
	fromShop.Items = []model.TransferItem{{ProductID: "soap", Qty: 1}}
	_, err = l.CreateTransfer(fromShop)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestChanges(t *testing.T) {
	tests := []struct {
		name          string
		kind          model.ChangeType
		qty           int64
		wantStore     int64
		wantRow       bool
		wantWarehouse int64
	}{
		{"add", model.ChangeAdd, 3, 8, true, 17},
		{"remove", model.ChangeRemove, 7, 0, true, 20},
		{"return", model.ChangeReturn, 2, 3, true, 22},
		{"adjust up", model.ChangeAdjust, 9, 9, true, 16},
		{"adjust down", model.ChangeAdjust, 1, 1, true, 24},
		{"remove product", model.ChangeRemoveProduct, 5, 0, false, 25},
		{"remove product credits qty", model.ChangeRemoveProduct, 2, 0, false, 22},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := seededLedger(t)
			_, err := l.RequestChange(model.ChangePayload{
				LocalID: "chg-1", StoreID: "store-a", ProductID: "soap", ChangeType: tt.kind, Qty: tt.qty,
			})
			require.NoError(t, err)

			_, err = l.ApproveChange("chg-1")
			require.NoError(t, err)
			_, err = l.ApproveChange("chg-1")
			require.NoError(t, err)

			got, ok := l.stockAt("store-a", "soap")
			assert.Equal(t, tt.wantRow, ok)
			assert.Equal(t, tt.wantStore, got)
			w, _ := l.stockAt(model.WarehouseID, "soap")
			assert.Equal(t, tt.wantWarehouse, w)
		})
	}
}

func TestChanges_Transitions(t *testing.T) {
	l := seededLedger(t)
	newPrice := money("3.10")
	_, err := l.RequestChange(model.ChangePayload{LocalID: "adj", StoreID: "store-a", ProductID: "soap",
		ChangeType: model.ChangeAdjust, Qty: 5, NewPrice: &newPrice})
	require.NoError(t, err)
	_, err = l.RequestChange(model.ChangePayload{LocalID: "ret", StoreID: "store-a", ProductID: "soap",
		ChangeType: model.ChangeReturn, Qty: 1})
	require.NoError(t, err)

	_, err = l.CompleteReturn("adj")
	assert.ErrorIs(t, err, ErrConflict, "pending changes cannot complete")

	_, err = l.ApproveChange("adj")
	require.NoError(t, err)
	assert.True(t, newPrice.Equal(l.Snapshot().Products[0].Price))
	_, err = l.CompleteReturn("adj")
	assert.ErrorIs(t, err, ErrConflict, "only returns complete")

	_, err = l.ApproveChange("ret")
	require.NoError(t, err)
	_, err = l.CompleteReturn("ret")
	require.NoError(t, err)
	_, err = l.RejectChange("ret")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = l.RequestChange(model.ChangePayload{LocalID: "bad", StoreID: "store-a", ProductID: "soap",
		ChangeType: model.ChangeAdd, Qty: 0})
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = l.RequestChange(model.ChangePayload{LocalID: "bad", StoreID: "store-a", ProductID: "soap",
		ChangeType: "shrink", Qty: 1})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestRecordSale(t *testing.T) {
	l := seededLedger(t, WithTaxRate(money("0.125")))
	sale := model.SalePayload{
		LocalID: "txn-1", StoreID: "store-a",
		Subtotal: money("20"), Tax: money("2.5"), Total: money("22.5"),
		Items: []model.SaleItem{
			{ProductID: "soap", Price: money("2.50"), Qty: 8},
		},
	}

	reply, err := l.RecordSale(sale)
	require.NoError(t, err)
	assert.Equal(t, "TXN-000001", reply.ID)

	again, err := l.RecordSale(sale)
	require.NoError(t, err)
	assert.Equal(t, reply, again)

	got, _ := l.stockAt("store-a", "soap")
	assert.Equal(t, int64(0), got, "stock floors at zero and replays do not decrement")
}

func TestRecordSale_Validation(t *testing.T) {
	l := seededLedger(t, WithTaxRate(money("0.125")))
	ok := model.SalePayload{
		LocalID: "t", StoreID: "store-a", Subtotal: money("14"), Tax: money("1.75"), Total: money("15.75"),
		Items: []model.SaleItem{{ProductID: "rice", Price: money("14"), Qty: 1}},
	}

	tests := []struct {
		name   string
		mutate func(*model.SalePayload)
	}{
		{"warehouse", func(s *model.SalePayload) { s.StoreID = model.WarehouseID }},
		{"unknown store", func(s *model.SalePayload) { s.StoreID = "store-z" }},
		{"no items", func(s *model.SalePayload) { s.Items = nil }},
		{"subtotal", func(s *model.SalePayload) { s.Subtotal = money("13") }},
		{"tax", func(s *model.SalePayload) { s.Tax = money("0"); s.Total = money("14") }},
		{"total", func(s *model.SalePayload) { s.Total = money("16") }},
		{"unknown product", func(s *model.SalePayload) { s.Items = []model.SaleItem{{ProductID: "x", Price: money("14"), Qty: 1}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sale := ok
			sale.Items = append([]model.SaleItem(nil), ok.Items...)
			tt.mutate(&sale)
			_, err := l.RecordSale(sale)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestSnapshot_Ordered(t *testing.T) {
	l := seededLedger(t)
	snap := l.Snapshot()

	ids := make([]string, 0, len(snap.Stores))
	for _, st := range snap.Stores {
		ids = append(ids, st.ID)
	}
	assert.Equal(t, []string{"store-a", "store-b", model.WarehouseID}, ids)
	assert.Equal(t, "soap", snap.Products[0].ID)
	assert.Equal(t, []model.SnapshotInventory{{StoreID: "store-a", ProductID: "soap", Stock: 5}}, snap.Inventory)
}

func TestImportProducts_BatchReplaysWhole(t *testing.T) {
	l := seededLedger(t)

	batch := model.ProductBulkPayload{BatchID: "batch-1", Products: []model.ProductPayload{
		{LocalID: "soap", Name: "Soap", Cost: money("1.10"), Price: money("2.60"), WarehouseStock: 3},
	}}
	reply, err := l.ImportProducts(batch)
	require.NoError(t, err)
	assert.Equal(t, "soap", reply.Products[0].ID)

	replay, err := l.ImportProducts(batch)
	require.NoError(t, err)
	assert.Equal(t, reply, replay)
	w, _ := l.stockAt(model.WarehouseID, "soap")
	assert.Equal(t, int64(23), w)

	// A later batch for the same product applies again.
	batch.BatchID = "batch-2"
	_, err = l.ImportProducts(batch)
	require.NoError(t, err)
	w, _ = l.stockAt(model.WarehouseID, "soap")
	assert.Equal(t, int64(26), w)
}
