package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/catalog"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/model"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/recorder"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/remote"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/store"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/testutil"
)

// fakeServer answers sends with handle; a nil handle acknowledges
// everything with a canonical id derived from the path.
type fakeServer struct {
	mu       sync.Mutex
	requests []remote.Request
	handle   func(n int, req remote.Request) (*remote.Response, error)
	snapshot *model.Snapshot
}

func (f *fakeServer) Send(ctx context.Context, req remote.Request) (*remote.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	handle := f.handle
	f.mu.Unlock()

	if handle != nil {
		return handle(n, req)
	}
	return ok(model.SyncResponse{ID: fmt.Sprintf("C-%d", n)}), nil
}

func (f *fakeServer) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	if f.snapshot == nil {
		return nil, &remote.StatusError{Method: "GET", Path: "/api/snapshot", StatusCode: 503}
	}
	return f.snapshot, nil
}

func (f *fakeServer) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.requests))
	for _, r := range f.requests {
		out = append(out, r.Method+" "+r.Path)
	}
	return out
}

func ok(v any) *remote.Response {
	body, _ := json.Marshal(v)
	return &remote.Response{StatusCode: http.StatusCreated, Body: body}
}

type fixture struct {
	st     *store.Store
	rec    *recorder.Recorder
	server *fakeServer
	engine *Engine
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "sync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clock := testutil.NewFixedClock(time.Time{}, time.Second)
	ids := testutil.NewSequentialIDs("id")
	f := &fixture{
		st:     st,
		rec:    recorder.New(st, recorder.WithClock(clock), recorder.WithIDs(ids)),
		server: &fakeServer{},
	}
	opts = append([]Option{WithClock(clock), WithIDs(ids.NewID)}, opts...)
	f.engine = New(st, f.server, opts...)

	require.NoError(t, f.rec.SeedCatalog(t.Context(), &catalog.Catalog{
		Stores: []model.Store{{ID: "store-a", Name: "Store A"}},
		Products: []catalog.Product{{
			ID: "soap", ItemNo: 1, Name: "Soap",
			Cost: decimal.RequireFromString("2"), Price: decimal.RequireFromString("3"),
			WarehouseStock: 20, Stock: map[string]int64{"store-a": 5},
		}},
	}))
	return f
}

func (f *fixture) sell(t *testing.T, qty int64) model.Transaction {
	t.Helper()
	txn, err := f.rec.RecordSale(t.Context(), recorder.SaleInput{
		StoreID: "store-a",
		Lines:   []recorder.SaleLine{{ProductID: "soap", Qty: qty}},
	})
	require.NoError(t, err)
	return txn
}

func (f *fixture) queued(t *testing.T) []model.QueueEntry {
	t.Helper()
	entries, err := f.st.QueueEntries(t.Context())
	require.NoError(t, err)
	return entries
}

func TestSync_DrainsInOrderAndReconciles(t *testing.T) {
	f := newFixture(t)

	p, err := f.rec.AddProduct(t.Context(), recorder.ProductInput{
		Name: "Sugar", Cost: decimal.RequireFromString("1"), Price: decimal.RequireFromString("2"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.ItemNo)
	txn := f.sell(t, 1)

	f.server.handle = func(n int, req remote.Request) (*remote.Response, error) {
		if req.Path == "/api/products" {
			itemNo := int64(7)
			return ok(model.SyncResponse{ID: "PRD-7", ItemNo: &itemNo}), nil
		}
		return ok(model.SyncResponse{ID: "TXN-000001"}), nil
	}

	res, err := f.engine.Sync(t.Context())
	require.NoError(t, err)
	assert.Equal(t, StateSynced, res.State)
	assert.Equal(t, int64(2), res.Synced)
	assert.Equal(t, int64(0), res.Remaining)
	assert.Equal(t, []string{"POST /api/products", "POST /api/transactions"}, f.server.paths())

	got, err := f.st.Product(t.Context(), p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CanonicalID)
	assert.Equal(t, "PRD-7", *got.CanonicalID)
	assert.Equal(t, int64(7), got.ItemNo)
	assert.True(t, got.ItemNoConfirmed)

	sale, err := f.st.Transaction(t.Context(), txn.ID)
	require.NoError(t, err)
	require.NotNil(t, sale.CanonicalID)
	assert.Equal(t, "TXN-000001", *sale.CanonicalID)

	assert.Empty(t, f.queued(t))

	run, err := f.st.LatestSyncRun(t.Context())
	require.NoError(t, err)
	assert.Equal(t, res.RunID, run.ID)
	assert.Equal(t, "synced", run.State)
	assert.Equal(t, int64(2), run.Synced)
}

func TestSync_SendsIdempotencyKeyAndPayload(t *testing.T) {
	f := newFixture(t)
	f.sell(t, 1)
	entry := f.queued(t)[0]

	_, err := f.engine.Sync(t.Context())
	require.NoError(t, err)

	require.Len(t, f.server.requests, 1)
	req := f.server.requests[0]
	assert.Equal(t, entry.IdempotencyKey, req.IdempotencyKey)
	assert.Equal(t, entry.Payload, string(req.Body))
}

func TestSync_RetryableFailureStopsAndResumes(t *testing.T) {
	f := newFixture(t)
	f.sell(t, 1)
	f.sell(t, 1)
	f.sell(t, 1)
	entries := f.queued(t)
	require.Len(t, entries, 3)

	f.server.handle = func(n int, req remote.Request) (*remote.Response, error) {
		if n == 2 {
			return nil, &remote.StatusError{Method: req.Method, Path: req.Path, StatusCode: 503}
		}
		return ok(model.SyncResponse{ID: fmt.Sprintf("TXN-%d", n)}), nil
	}

	res, err := f.engine.Sync(t.Context())
	require.NoError(t, err, "per-entry failures are not errors")
	assert.Equal(t, StateDeferred, res.State)
	assert.Equal(t, int64(1), res.Synced)
	assert.Equal(t, int64(2), res.Remaining)
	assert.Contains(t, res.LastError, "503")
	assert.Len(t, f.server.requests, 2, "drain must stop at the failed entry")

	left := f.queued(t)
	require.Len(t, left, 2)
	assert.Equal(t, entries[1].ID, left[0].ID)
	assert.Equal(t, int64(1), left[0].Attempts)
	assert.Equal(t, model.QueueQueued, left[0].Status)
	assert.Equal(t, int64(0), left[1].Attempts)

	res, err = f.engine.Sync(t.Context())
	require.NoError(t, err)
	assert.Equal(t, StateSynced, res.State)
	assert.Equal(t, int64(2), res.Synced)
	assert.Empty(t, f.queued(t))

	assert.Len(t, f.server.paths(), 4)
}

func TestSync_TransportFailureDefers(t *testing.T) {
	f := newFixture(t)
	f.sell(t, 1)
	f.server.handle = func(int, remote.Request) (*remote.Response, error) {
		return nil, &remote.TransportError{Method: "POST", Path: "/api/transactions", Err: context.DeadlineExceeded}
	}

	res, err := f.engine.Sync(t.Context())
	require.NoError(t, err)
	assert.Equal(t, StateDeferred, res.State)
	assert.Equal(t, int64(1), res.Remaining)
	assert.Equal(t, int64(0), res.Attention)
}

func TestSync_CancelledDrainStillRecordsAttempt(t *testing.T) {
	f := newFixture(t)
	f.sell(t, 1)
	entry := f.queued(t)[0]

	ctx, cancel := context.WithCancel(t.Context())
	f.server.handle = func(int, remote.Request) (*remote.Response, error) {
		cancel()
		return nil, &remote.TransportError{Method: "POST", Path: "/api/transactions", Err: context.Canceled}
	}

	res, err := f.engine.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateDeferred, res.State)
	assert.Equal(t, int64(1), res.Remaining)

	held, err := f.st.QueueEntry(t.Context(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), held.Attempts)
	assert.Equal(t, model.QueueQueued, held.Status)
	assert.Contains(t, held.LastError, "canceled")
}

func TestSync_RejectionHoldsQueue(t *testing.T) {
	f := newFixture(t)
	f.sell(t, 1)
	f.sell(t, 1)
	entries := f.queued(t)

	f.server.handle = func(n int, req remote.Request) (*remote.Response, error) {
		return nil, &remote.StatusError{Method: req.Method, Path: req.Path, StatusCode: 422, Body: `{"error":"unknown store"}`}
	}
	res, err := f.engine.Sync(t.Context())
	require.NoError(t, err)
	assert.Equal(t, StateNeedsAttention, res.State)
	assert.Equal(t, int64(1), res.Attention)
	assert.Equal(t, int64(2), res.Remaining)

	held, err := f.st.QueueEntry(t.Context(), entries[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueAttention, held.Status)
	assert.Contains(t, held.LastError, "unknown store")

	// A held entry is not resent automatically, and nothing behind it moves.
	f.server.handle = nil
	res, err = f.engine.Sync(t.Context())
	require.NoError(t, err)
	assert.Equal(t, StateNeedsAttention, res.State)
	assert.Len(t, f.server.requests, 1)

	require.NoError(t, f.engine.Retry(t.Context(), entries[0].ID))
	res, err = f.engine.Sync(t.Context())
	require.NoError(t, err)
	assert.Equal(t, StateSynced, res.State)
	assert.Equal(t, int64(2), res.Synced)
}

func TestDiscard(t *testing.T) {
	f := newFixture(t)
	txn := f.sell(t, 1)
	entry := f.queued(t)[0]

	assert.ErrorIs(t, f.engine.Discard(t.Context(), entry.ID), ErrNotHeld)
	assert.ErrorIs(t, f.engine.Retry(t.Context(), "missing"), ErrEntryNotFound)

	f.server.handle = func(n int, req remote.Request) (*remote.Response, error) {
		return nil, &remote.StatusError{Method: req.Method, Path: req.Path, StatusCode: 409}
	}
	_, err := f.engine.Sync(t.Context())
	require.NoError(t, err)

	require.NoError(t, f.engine.Discard(t.Context(), entry.ID))
	assert.Empty(t, f.queued(t))

	// The local sale stays.
	_, err = f.st.Transaction(t.Context(), txn.ID)
	assert.NoError(t, err)
}

func TestSync_ConcurrentTriggersShareOneDrain(t *testing.T) {
	f := newFixture(t)
	f.sell(t, 1)

	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	f.server.handle = func(n int, req remote.Request) (*remote.Response, error) {
		entered <- struct{}{}
		<-release
		return ok(model.SyncResponse{ID: "TXN-1"}), nil
	}

	var wg sync.WaitGroup
	results := make([]Result, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = f.engine.Sync(context.Background())
	}()
	<-entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _ = f.engine.Sync(context.Background())
	}()
	// Give the second trigger time to join the running drain.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Len(t, f.server.requests, 1)
	assert.Equal(t, int64(1), results[0].Synced)
	assert.Empty(t, f.queued(t))
}

func TestSync_JoinedCallerSeesStartersCancellation(t *testing.T) {
	f := newFixture(t)
	f.sell(t, 1)

	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	f.server.handle = func(n int, req remote.Request) (*remote.Response, error) {
		entered <- struct{}{}
		<-release
		return nil, &remote.TransportError{Method: req.Method, Path: req.Path, Err: context.Canceled}
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	results := make([]Result, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = f.engine.Sync(ctx)
	}()
	<-entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _ = f.engine.Sync(context.Background())
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	close(release)
	wg.Wait()

	assert.Equal(t, StateDeferred, results[0].State)
	assert.Equal(t, StateDeferred, results[1].State)
	require.Len(t, f.queued(t), 1)

	f.server.handle = nil
	res, err := f.engine.Sync(t.Context())
	require.NoError(t, err)
	assert.Equal(t, StateSynced, res.State)
	assert.Empty(t, f.queued(t))
}

func TestSync_AdditionBooksConfirmedStock(t *testing.T) {
	f := newFixture(t)
	add, err := f.rec.AddInventoryBatch(t.Context(), recorder.AdditionInput{
		Items: []recorder.AdditionLine{{ProductID: "soap", Qty: 12}},
	})
	require.NoError(t, err)

	f.server.handle = func(n int, req remote.Request) (*remote.Response, error) {
		return ok(model.SyncResponse{ID: "ADD-000001", Items: []model.ConfirmedItem{{ProductID: "soap", Qty: 12}}}), nil
	}
	_, err = f.engine.Sync(t.Context())
	require.NoError(t, err)

	p, err := f.st.Product(t.Context(), "soap")
	require.NoError(t, err)
	assert.Equal(t, int64(32), p.WarehouseStock)

	adds, err := f.st.Additions(t.Context())
	require.NoError(t, err)
	require.Len(t, adds, 1)
	assert.Equal(t, add.ID, adds[0].ID)
	require.NotNil(t, adds[0].CanonicalID)
	assert.Equal(t, "ADD-000001", *adds[0].CanonicalID)
}

func TestSync_EmptyQueue(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.Sync(t.Context())
	require.NoError(t, err)
	assert.Equal(t, StateSynced, res.State)
	assert.Equal(t, int64(0), res.Synced)
	assert.Empty(t, f.server.requests)
}

func TestRefresh(t *testing.T) {
	f := newFixture(t, WithRefresh(true))
	f.server.snapshot = &model.Snapshot{
		Stores: []model.Store{{ID: model.WarehouseID, Name: "Warehouse", IsWarehouse: true}, {ID: "store-a", Name: "Store A"}},
		Products: []model.SnapshotProduct{
			{ID: "soap", ItemNo: 1, Name: "Soap", Cost: decimal.RequireFromString("2"), Price: decimal.RequireFromString("3.25"), WarehouseStock: 11},
			{ID: "PRD-9", ItemNo: 9, Name: "Tea", Cost: decimal.RequireFromString("1"), Price: decimal.RequireFromString("1.5"), WarehouseStock: 4},
		},
		Inventory: []model.SnapshotInventory{{StoreID: "store-a", ProductID: "soap", Stock: 2}, {StoreID: "store-a", ProductID: "PRD-9", Stock: 1}},
	}

	// Skipped while something is queued.
	f.sell(t, 1)
	ran, err := f.engine.Refresh(t.Context())
	require.NoError(t, err)
	assert.False(t, ran)
	row, _, err := f.st.Inventory(t.Context(), "store-a", "soap")
	require.NoError(t, err)
	assert.Equal(t, int64(4), row.Stock)

	// A drain that empties the queue refreshes.
	res, err := f.engine.Sync(t.Context())
	require.NoError(t, err)
	assert.True(t, res.Refreshed)

	soap, err := f.st.Product(t.Context(), "soap")
	require.NoError(t, err)
	assert.Equal(t, int64(11), soap.WarehouseStock)
	assert.Equal(t, "3.25", soap.Price.String())

	row, _, err = f.st.Inventory(t.Context(), "store-a", "soap")
	require.NoError(t, err)
	assert.Equal(t, int64(2), row.Stock)

	tea, err := f.st.ProductByName(t.Context(), "Tea")
	require.NoError(t, err)
	assert.Equal(t, int64(9), tea.ItemNo)
	teaRow, found, err := f.st.Inventory(t.Context(), "store-a", tea.ID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(1), teaRow.Stock)
}

func TestResolve(t *testing.T) {
	tests := []struct {
		table, action string
		want          string
	}{
		{model.QueueProducts, model.ActionCreate, "POST /api/products"},
		{model.QueueProducts, model.ActionImport, "POST /api/products/bulk"},
		{model.QueueProducts, model.ActionUpdate, "PUT /api/products/r1"},
		{model.QueueProducts, model.ActionDelete, "DELETE /api/products/r1"},
		{model.QueueInventoryAdditions, model.ActionCreate, "POST /api/inventory/addition"},
		{model.QueueStockTransfers, model.ActionCreate, "POST /api/transfer"},
		{model.QueueStockTransfers, model.ActionConfirm, "POST /api/transfer/r1/confirm"},
		{model.QueueStockTransfers, model.ActionCancel, "POST /api/transfer/r1/cancel"},
		{model.QueuePendingChanges, model.ActionCreate, "POST /api/inventory/pending-changes"},
		{model.QueuePendingChanges, model.ActionApprove, "POST /api/inventory/pending-changes/r1/approve"},
		{model.QueuePendingChanges, model.ActionReject, "POST /api/inventory/pending-changes/r1/reject"},
		{model.QueuePendingChanges, model.ActionComplete, "POST /api/inventory/pending-changes/r1/complete"},
		{model.QueueTransactions, model.ActionCreate, "POST /api/transactions"},
	}
	for _, tt := range tests {
		t.Run(tt.table+"/"+tt.action, func(t *testing.T) {
			r, err := Resolve(tt.table, tt.action, "r1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Method+" "+r.Path)
		})
	}

	_, err := Resolve(model.QueueTransactions, model.ActionDelete, "r1")
	assert.Error(t, err)
}
