package connectivity

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/catalog"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/live"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/model"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/recorder"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/store"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/syncer"
)

type countingSyncer struct {
	calls atomic.Int64
}

func (s *countingSyncer) Sync(context.Context) (syncer.Result, error) {
	n := s.calls.Add(1)
	return syncer.Result{State: syncer.StateSynced, Synced: n}, nil
}

type switchPinger struct {
	mu   sync.Mutex
	down bool
}

func (p *switchPinger) set(down bool) {
	p.mu.Lock()
	p.down = down
	p.mu.Unlock()
}

func (p *switchPinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.down {
		return errors.New("connection refused")
	}
	return nil
}

func setup(t *testing.T, opts ...Option) (*Monitor, *countingSyncer, *switchPinger, *recorder.Recorder) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "conn.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	hub := live.NewHub(st, nil)
	rec := recorder.New(st)
	require.NoError(t, rec.SeedCatalog(t.Context(), &catalog.Catalog{
		Stores: []model.Store{{ID: "store-a", Name: "Store A"}},
		Products: []catalog.Product{{
			ID: "soap", ItemNo: 1, Name: "Soap",
			Cost: decimal.RequireFromString("1"), Price: decimal.RequireFromString("2"),
			Stock: map[string]int64{"store-a": 10},
		}},
	}))

	s := &countingSyncer{}
	p := &switchPinger{}
	m, err := New(s, p, hub, opts...)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m, s, p, rec
}

func sell(t *testing.T, rec *recorder.Recorder) {
	t.Helper()
	_, err := rec.RecordSale(t.Context(), recorder.SaleInput{
		StoreID: "store-a",
		Lines:   []recorder.SaleLine{{ProductID: "soap", Qty: 1}},
	})
	require.NoError(t, err)
}

func TestSetOnline_SyncsOncePerTransition(t *testing.T) {
	m, s, _, _ := setup(t)
	ctx := t.Context()

	assert.False(t, m.Online())

	m.SetOnline(ctx, true)
	assert.Equal(t, int64(1), s.calls.Load())

	m.SetOnline(ctx, true)
	assert.Equal(t, int64(1), s.calls.Load(), "staying online must not sync")

	m.SetOnline(ctx, false)
	assert.Equal(t, int64(1), s.calls.Load())

	m.SetOnline(ctx, true)
	assert.Equal(t, int64(2), s.calls.Load())

	st := m.Status()
	require.NotNil(t, st.LastResult)
	assert.Equal(t, int64(2), st.LastResult.Synced)
	assert.NotNil(t, st.LastSyncAt)
}

func TestOffline_MutationsStillRecordAndCount(t *testing.T) {
	m, s, _, rec := setup(t)

	sell(t, rec)
	sell(t, rec)

	st := m.Status()
	assert.False(t, st.Online)
	assert.Equal(t, int64(2), st.Unsynced)
	assert.Equal(t, int64(0), st.Attention)
	assert.Equal(t, int64(0), s.calls.Load())
}

func TestSyncNow_IgnoresOnlineFlag(t *testing.T) {
	m, s, _, _ := setup(t)

	res, err := m.SyncNow(t.Context())
	require.NoError(t, err)
	assert.Equal(t, syncer.StateSynced, res.State)
	assert.Equal(t, int64(1), s.calls.Load())
}

func TestCheck(t *testing.T) {
	m, s, p, _ := setup(t)

	p.set(true)
	assert.False(t, m.Check(t.Context()))
	assert.False(t, m.Online())

	p.set(false)
	assert.True(t, m.Check(t.Context()))
	assert.True(t, m.Online())
	assert.Equal(t, int64(1), s.calls.Load())
}

func TestRun_AutoSyncAfterMutation(t *testing.T) {
	m, s, _, rec := setup(t, WithInterval(time.Hour), WithAutoSync(true))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, m.Online, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return s.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	sell(t, rec)
	assert.Eventually(t, func() bool { return s.calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
