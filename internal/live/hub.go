package live

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/store"
)

// watcher is the type-erased side of a Subscription the hub fans out to.
type watcher interface {
	dependsOn(tables []string) bool
	refresh()
}

// Hub routes commit notifications from a store to live subscriptions.
//
// Thread-safety: Hub is safe for concurrent use. Subscriptions may be added
// and closed while commits are being delivered.
type Hub struct {
	st  *store.Store
	log *zap.Logger

	mu       sync.Mutex
	watchers map[int64]watcher
	nextID   atomic.Int64
	commits  atomic.Int64
}

// NewHub creates a hub and registers it for st's commit notifications.
func NewHub(st *store.Store, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		st:       st,
		log:      log,
		watchers: make(map[int64]watcher),
	}
	st.OnCommit(h.onCommit)
	return h
}

// Store returns the store the hub watches.
func (h *Hub) Store() *store.Store { return h.st }

// Commits returns how many commits the hub has observed.
func (h *Hub) Commits() int64 { return h.commits.Load() }

func (h *Hub) add(w watcher) int64 {
	id := h.nextID.Add(1)
	h.mu.Lock()
	h.watchers[id] = w
	h.mu.Unlock()
	return id
}

func (h *Hub) remove(id int64) {
	h.mu.Lock()
	delete(h.watchers, id)
	h.mu.Unlock()
}

// Len returns the number of open subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers)
}

func (h *Hub) onCommit(tables []string) {
	h.commits.Add(1)

	// Snapshot under the lock; queries run without it so they can read the
	// store and so Close may be called from an update consumer.
	h.mu.Lock()
	affected := make([]watcher, 0, len(h.watchers))
	for _, w := range h.watchers {
		if w.dependsOn(tables) {
			affected = append(affected, w)
		}
	}
	h.mu.Unlock()

	for _, w := range affected {
		w.refresh()
	}
}
