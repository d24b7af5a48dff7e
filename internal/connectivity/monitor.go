// Package connectivity tracks whether the server is reachable and drains the
// sync queue when it is.
//
// Connectivity never gates local writes. It only decides when the queue is
// drained: once on every offline to online transition, on demand, and, with
// auto-sync, after each new local mutation while online.
package connectivity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/live"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/store"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/syncer"
)

// DefaultInterval is how often Run checks the server.
const DefaultInterval = 15 * time.Second

// Syncer drains the queue.
type Syncer interface {
	Sync(ctx context.Context) (syncer.Result, error)
}

// Pinger checks that the server is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Status is the monitor's view for status displays.
type Status struct {
	Online     bool           `json:"online"`
	Unsynced   int64          `json:"unsynced"`
	Attention  int64          `json:"attention"`
	LastResult *syncer.Result `json:"lastResult,omitempty"`
	LastSyncAt *time.Time     `json:"lastSyncAt,omitempty"`
}

// Monitor owns the online flag and the sync triggers.
type Monitor struct {
	syncer   Syncer
	pinger   Pinger
	log      *zap.Logger
	interval time.Duration
	autoSync bool
	now      func() time.Time

	unsynced  *live.Subscription[int64]
	attention *live.Subscription[int64]

	mu         sync.Mutex
	online     bool
	lastResult *syncer.Result
	lastSyncAt *time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

func WithInterval(d time.Duration) Option { return func(m *Monitor) { m.interval = d } }

// WithAutoSync drains the queue after every new local mutation while online.
func WithAutoSync(on bool) Option { return func(m *Monitor) { m.autoSync = on } }

func WithLogger(log *zap.Logger) Option {
	return func(m *Monitor) {
		if log != nil {
			m.log = log
		}
	}
}

// New creates a monitor. It starts offline until a check or SetOnline says
// otherwise. Close releases its live queries.
func New(s Syncer, p Pinger, hub *live.Hub, opts ...Option) (*Monitor, error) {
	m := &Monitor{
		syncer:   s,
		pinger:   p,
		log:      zap.NewNop(),
		interval: DefaultInterval,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}

	var err error
	if m.unsynced, err = live.Watch(context.Background(), hub, live.UnsyncedCount()); err != nil {
		return nil, err
	}
	if m.attention, err = live.Watch(context.Background(), hub, attentionCount()); err != nil {
		m.unsynced.Close()
		return nil, err
	}
	return m, nil
}

// Close stops the monitor's live queries.
func (m *Monitor) Close() {
	m.unsynced.Close()
	m.attention.Close()
}

// Online reports the last known connectivity.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records connectivity. Going from offline to online drains the
// queue once, on the calling goroutine.
func (m *Monitor) SetOnline(ctx context.Context, online bool) {
	m.mu.Lock()
	was := m.online
	m.online = online
	m.mu.Unlock()

	if was == online {
		return
	}
	m.log.Info("connectivity changed", zap.Bool("online", online))
	if online {
		_, _ = m.SyncNow(ctx)
	}
}

// SyncNow drains the queue regardless of the online flag.
func (m *Monitor) SyncNow(ctx context.Context) (syncer.Result, error) {
	res, err := m.syncer.Sync(ctx)
	if err != nil {
		m.log.Error("sync failed", zap.Error(err))
	}
	at := m.now()
	m.mu.Lock()
	m.lastResult, m.lastSyncAt = &res, &at
	m.mu.Unlock()
	return res, err
}

// Check pings the server once and updates the online flag.
func (m *Monitor) Check(ctx context.Context) bool {
	err := m.pinger.Ping(ctx)
	if err != nil {
		m.log.Debug("server check failed", zap.Error(err))
	}
	m.SetOnline(ctx, err == nil)
	return err == nil
}

// Status returns the current status.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Online:     m.online,
		Unsynced:   m.unsynced.Current(),
		Attention:  m.attention.Current(),
		LastResult: m.lastResult,
		LastSyncAt: m.lastSyncAt,
	}
}

// Run checks the server every interval until ctx ends. With auto-sync it
// also drains after each new queue entry while online.
func (m *Monitor) Run(ctx context.Context) error {
	var unsynced <-chan int64
	if m.autoSync {
		unsynced = m.unsynced.Updates()
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	last := m.unsynced.Current()
	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Check(ctx)
		case n, ok := <-unsynced:
			if !ok {
				unsynced = nil
				continue
			}
			// Only growth means a new mutation. Drains shrink the count or
			// leave it unchanged, and must not re-trigger themselves.
			grew := n > last
			last = n
			if grew && m.Online() {
				_, _ = m.SyncNow(ctx)
			}
		}
	}
}

func attentionCount() live.Query[int64] {
	return live.Query[int64]{
		Name:   "attention",
		Tables: []string{"sync_queue"},
		Run: func(ctx context.Context, st *store.Store) (int64, error) {
			return st.AttentionCount(ctx)
		},
	}
}
