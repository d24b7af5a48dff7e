package recorder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/model"
)

func TestRequestChange_DoesNotMoveStock(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	c, err := f.rec.RequestChange(t.Context(), ChangeInput{
		StoreID: "store-a", ProductID: "soap", Type: model.ChangeRemove, Qty: 2,
		Reason: "damaged", RequestedBy: "clerk",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ChangePending, c.Status)

	stock, _ := f.shopStock(t, "store-a", "soap")
	assert.Equal(t, int64(5), stock)
	assert.Equal(t, int64(20), f.warehouse(t, "soap"))

	entries := f.queue(t)
	require.Len(t, entries, 1)
	assert.Equal(t, model.QueuePendingChanges, entries[0].Table)
	assert.Equal(t, model.ActionCreate, entries[0].Action)
}

func TestApproveChange_Dispatch(t *testing.T) {
	tests := []struct {
		name          string
		kind          model.ChangeType
		qty           int64
		store, wh     int64
		wantStore     int64
		wantWarehouse int64
		wantRow       bool
	}{
		{"add", model.ChangeAdd, 4, 10, 20, 14, 16, true},
		{"add floors warehouse", model.ChangeAdd, 30, 10, 20, 40, 0, true},
		{"remove", model.ChangeRemove, 4, 10, 20, 6, 20, true},
		{"remove floors store", model.ChangeRemove, 15, 10, 20, 0, 20, true},
		{"return", model.ChangeReturn, 3, 10, 20, 7, 23, true},
		{"return more than held", model.ChangeReturn, 15, 10, 20, 0, 30, true},
		{"remove_product", model.ChangeRemoveProduct, 10, 10, 20, 0, 30, false},
		{"remove_product partial qty", model.ChangeRemoveProduct, 3, 10, 20, 0, 23, false},
		{"remove_product above store stock", model.ChangeRemoveProduct, 12, 10, 20, 0, 32, false},
		{"adjust down", model.ChangeAdjust, 12, 20, 15, 12, 23, true},
		{"adjust up", model.ChangeAdjust, 25, 20, 15, 25, 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t)
			f.setStock(t, "store-a", "soap", tt.store)
			f.setWarehouse(t, "soap", tt.wh)

			c, err := f.rec.RequestChange(t.Context(), ChangeInput{
				StoreID: "store-a", ProductID: "soap", Type: tt.kind, Qty: tt.qty,
			})
			require.NoError(t, err)

			approved, err := f.rec.ApproveChange(t.Context(), c.ID, "manager")
			require.NoError(t, err)
			assert.Equal(t, model.ChangeApproved, approved.Status)
			assert.Equal(t, "manager", approved.DecidedBy)

			stock, found := f.shopStock(t, "store-a", "soap")
			assert.Equal(t, tt.wantRow, found)
			assert.Equal(t, tt.wantStore, stock)
			assert.Equal(t, tt.wantWarehouse, f.warehouse(t, "soap"))

			stored, err := f.st.PendingChange(t.Context(), c.ID)
			require.NoError(t, err)
			assert.Equal(t, model.ChangeApproved, stored.Status)
			require.NotNil(t, stored.DecidedAt)

			entries := f.queue(t)
			require.Len(t, entries, 2)
			assert.Equal(t, model.ActionApprove, entries[1].Action)
		})
	}
}

func TestApproveChange_AddCreatesMissingRow(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	c, err := f.rec.RequestChange(t.Context(), ChangeInput{
		StoreID: "store-b", ProductID: "rice", Type: model.ChangeAdd, Qty: 6,
	})
	require.NoError(t, err)
	_, err = f.rec.ApproveChange(t.Context(), c.ID, "manager")
	require.NoError(t, err)

	stock, found := f.shopStock(t, "store-b", "rice")
	require.True(t, found)
	assert.Equal(t, int64(6), stock)
	assert.Equal(t, int64(44), f.warehouse(t, "rice"))
}

func TestApproveChange_AdjustAppliesPriceOverride(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	c, err := f.rec.RequestChange(t.Context(), ChangeInput{
		StoreID: "store-a", ProductID: "soap", Type: model.ChangeAdjust, Qty: 5,
		NewCost: moneyPtr("2.20"), NewPrice: moneyPtr("3.90"),
	})
	require.NoError(t, err)
	_, err = f.rec.ApproveChange(t.Context(), c.ID, "manager")
	require.NoError(t, err)

	p, err := f.st.Product(t.Context(), "soap")
	require.NoError(t, err)
	assert.True(t, money("2.20").Equal(p.Cost))
	assert.True(t, money("3.90").Equal(p.Price))
	assert.Equal(t, int64(20), p.WarehouseStock)
}

func TestRequestChange_RemoveProductDefaultsToStoreStock(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	c, err := f.rec.RequestChange(t.Context(), ChangeInput{
		StoreID: "store-a", ProductID: "soap", Type: model.ChangeRemoveProduct,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), c.Qty)
}

func TestChange_StateMachine(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	rejected, err := f.rec.RequestChange(t.Context(), ChangeInput{
		StoreID: "store-a", ProductID: "soap", Type: model.ChangeAdd, Qty: 1,
	})
	require.NoError(t, err)
	_, err = f.rec.RejectChange(t.Context(), rejected.ID, "manager")
	require.NoError(t, err)

	_, err = f.rec.ApproveChange(t.Context(), rejected.ID, "manager")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	stock, _ := f.shopStock(t, "store-a", "soap")
	assert.Equal(t, int64(5), stock, "rejected change must not move stock")

	_, err = f.rec.CompleteReturn(t.Context(), rejected.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	ret, err := f.rec.RequestChange(t.Context(), ChangeInput{
		StoreID: "store-a", ProductID: "soap", Type: model.ChangeReturn, Qty: 1,
	})
	require.NoError(t, err)
	_, err = f.rec.CompleteReturn(t.Context(), ret.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "a return must be approved before it completes")

	_, err = f.rec.ApproveChange(t.Context(), ret.ID, "manager")
	require.NoError(t, err)
	done, err := f.rec.CompleteReturn(t.Context(), ret.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ChangeCompleted, done.Status)
	assert.Equal(t, "manager", done.DecidedBy)

	_, err = f.rec.ApproveChange(t.Context(), "missing", "manager")
	assert.ErrorIs(t, err, ErrUnknownRecord)

	actions := []string{}
	for _, e := range f.queue(t) {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{
		model.ActionCreate, model.ActionReject,
		model.ActionCreate, model.ActionApprove, model.ActionComplete,
	}, actions)
}

func TestApproveChange_StorageFailureIsAllOrNothing(t *testing.T) {
	for _, table := range []string{"products", "inventory", "stock_movements", "pending_changes", "sync_queue"} {
		t.Run(table, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t)

			c, err := f.rec.RequestChange(t.Context(), ChangeInput{
				StoreID: "store-a", ProductID: "soap", Type: model.ChangeAdd, Qty: 4,
			})
			require.NoError(t, err)

			f.failOn = table
			_, err = f.rec.ApproveChange(t.Context(), c.ID, "manager")
			require.Error(t, err)
			assert.True(t, IsStorage(err))
			f.failOn = ""

			stock, _ := f.shopStock(t, "store-a", "soap")
			assert.Equal(t, int64(5), stock)
			assert.Equal(t, int64(20), f.warehouse(t, "soap"))
			stored, err := f.st.PendingChange(t.Context(), c.ID)
			require.NoError(t, err)
			assert.Equal(t, model.ChangePending, stored.Status)
			assert.Len(t, f.queue(t), 1)
		})
	}
}

func TestRequestChange_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   ChangeInput
		want error
	}{
		{"unknown type", ChangeInput{StoreID: "store-a", ProductID: "soap", Type: "teleport", Qty: 1}, ErrInvalidValue},
		{"zero add", ChangeInput{StoreID: "store-a", ProductID: "soap", Type: model.ChangeAdd}, ErrNonPositiveQuantity},
		{"negative adjust", ChangeInput{StoreID: "store-a", ProductID: "soap", Type: model.ChangeAdjust, Qty: -1}, ErrInvalidValue},
		{"unknown product", ChangeInput{StoreID: "store-a", ProductID: "nope", Type: model.ChangeAdd, Qty: 1}, ErrUnknownProduct},
		{"warehouse", ChangeInput{StoreID: model.WarehouseID, ProductID: "soap", Type: model.ChangeAdd, Qty: 1}, ErrUnknownStore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t)

			_, err := f.rec.RequestChange(t.Context(), tt.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, f.queue(t))
		})
	}
}

func TestRequestChange_StorageFailureCommitsNothing(t *testing.T) {
	for _, table := range []string{"pending_changes", "sync_queue"} {
		t.Run(table, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t)
			f.failOn = table

			_, err := f.rec.RequestChange(t.Context(), ChangeInput{
				StoreID: "store-a", ProductID: "soap", Type: model.ChangeRemove, Qty: 2,
			})
			require.Error(t, err)
			assert.True(t, IsStorage(err))
			f.failOn = ""

			changes, err := f.st.PendingChanges(t.Context(), "", "")
			require.NoError(t, err)
			assert.Empty(t, changes)
			assert.Empty(t, f.queue(t))
		})
	}
}

func TestChangeTransition_StorageFailureKeepsStatus(t *testing.T) {
	tests := []struct {
		name   string
		typ    model.ChangeType
		before model.ChangeStatus
		run    func(*fixture, string) error
	}{
		{
			name:   "reject",
			typ:    model.ChangeRemove,
			before: model.ChangePending,
			run: func(f *fixture, id string) error {
				_, err := f.rec.RejectChange(t.Context(), id, "manager")
				return err
			},
		},
		{
			name:   "complete return",
			typ:    model.ChangeReturn,
			before: model.ChangeApproved,
			run: func(f *fixture, id string) error {
				_, err := f.rec.CompleteReturn(t.Context(), id)
				return err
			},
		},
	}
	for _, tt := range tests {
		for _, table := range []string{"pending_changes", "sync_queue"} {
			t.Run(tt.name+"/"+table, func(t *testing.T) {
				f := newFixture(t)
				f.seed(t)
				c, err := f.rec.RequestChange(t.Context(), ChangeInput{
					StoreID: "store-a", ProductID: "soap", Type: tt.typ, Qty: 2,
				})
				require.NoError(t, err)
				if tt.before == model.ChangeApproved {
					_, err = f.rec.ApproveChange(t.Context(), c.ID, "manager")
					require.NoError(t, err)
				}
				queued := len(f.queue(t))
				wh := f.warehouse(t, "soap")
				stock, _ := f.shopStock(t, "store-a", "soap")

				f.failOn = table
				err = tt.run(f, c.ID)
				require.Error(t, err)
				assert.True(t, IsStorage(err))
				f.failOn = ""

				stored, err := f.st.PendingChange(t.Context(), c.ID)
				require.NoError(t, err)
				assert.Equal(t, tt.before, stored.Status)
				assert.Len(t, f.queue(t), queued)
				assert.Equal(t, wh, f.warehouse(t, "soap"))
				after, _ := f.shopStock(t, "store-a", "soap")
				assert.Equal(t, stock, after)
			})
		}
	}
}
