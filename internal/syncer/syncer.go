// Package syncer drains the sync queue to the server and folds the server's
// answers back into the local store.
//
// Entries are sent strictly in queue order. The drain stops at the first
// failure so that later entries, which may depend on it, are never sent
// ahead of it. A failure the server may recover from (no connection, 5xx)
// leaves the entry queued for the next trigger; a request the server refuses
// (4xx) is held for an operator and blocks the queue until it is retried or
// discarded.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/model"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/remote"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/store"
)

// State summarises how a drain ended.
type State string

const (
	// StateSynced means the queue is empty.
	StateSynced State = "synced"
	// StateDeferred means a send failed in a way that may clear up; the
	// remaining entries wait for the next trigger.
	StateDeferred State = "deferred"
	// StateNeedsAttention means the server refused an entry and the queue
	// is held until an operator acts.
	StateNeedsAttention State = "needs_attention"
	// StateFailed means the local store could not record the outcome.
	StateFailed State = "failed"
)

// Client is the part of the server client the engine uses.
type Client interface {
	Send(ctx context.Context, req remote.Request) (*remote.Response, error)
	Snapshot(ctx context.Context) (*model.Snapshot, error)
}

// Clock supplies timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Result is the outcome of one drain.
type Result struct {
	State     State  `json:"state"`
	Synced    int64  `json:"synced"`
	Remaining int64  `json:"remaining"`
	Attention int64  `json:"attention"`
	LastError string `json:"lastError,omitempty"`
	// Refreshed is true when the drain emptied the queue and the local
	// store was then refreshed from the server snapshot.
	Refreshed bool  `json:"refreshed"`
	RunID     int64 `json:"runId"`
}

var (
	ErrEntryNotFound = errors.New("queue entry not found")
	ErrNotHeld       = errors.New("queue entry is not held for attention")
)

// Engine drains the sync queue. Only one drain runs at a time; concurrent
// callers of Sync share the running drain and its result.
type Engine struct {
	st      *store.Store
	client  Client
	log     *zap.Logger
	clock   Clock
	newID   func() string
	refresh bool

	group singleflight.Group
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

func WithClock(c Clock) Option { return func(e *Engine) { e.clock = c } }

// WithIDs sets the id generator for rows the engine writes.
func WithIDs(newID func() string) Option { return func(e *Engine) { e.newID = newID } }

// WithRefresh makes a drain that empties the queue pull the server snapshot.
func WithRefresh(on bool) Option { return func(e *Engine) { e.refresh = on } }

// New creates an Engine.
func New(st *store.Store, client Client, opts ...Option) *Engine {
	e := &Engine{
		st:     st,
		client: client,
		log:    zap.NewNop(),
		clock:  systemClock{},
		newID:  func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sync drains the queue. Per-entry failures are reported in the Result,
// never as an error; the error is non-nil only when the local store failed.
//
// A Sync that arrives while a drain is running joins it and gets its Result.
// The drain runs under the ctx of the call that started it, so cancelling
// that call stops the drain for everyone: joined callers see StateDeferred
// and the untouched entries stay queued for the next Sync.
func (e *Engine) Sync(ctx context.Context) (Result, error) {
	v, err, shared := e.group.Do("drain", func() (any, error) {
		return e.drain(ctx)
	})
	if shared {
		e.log.Debug("joined running drain")
	}
	res, _ := v.(Result)
	return res, err
}

func (e *Engine) drain(ctx context.Context) (Result, error) {
	started := e.clock.Now()
	res := Result{State: StateSynced}

	entries, err := e.st.QueueEntries(ctx)
	if err != nil {
		return e.finish(ctx, started, Result{State: StateFailed, LastError: err.Error()}, err)
	}

	for _, entry := range entries {
		if entry.Status == model.QueueAttention {
			res.State = StateNeedsAttention
			res.LastError = entry.LastError
			break
		}
		if err := ctx.Err(); err != nil {
			res.State, res.LastError = StateDeferred, err.Error()
			break
		}

		state, err := e.send(ctx, entry)
		if err != nil {
			res.State, res.LastError = state, err.Error()
			if state == StateFailed {
				return e.finish(ctx, started, res, err)
			}
			break
		}
		res.Synced++
	}
	return e.finish(ctx, started, res, nil)
}

// send delivers one entry and, on success, reconciles and consumes it.
// The returned state says how the drain must stop when err is non-nil.
func (e *Engine) send(ctx context.Context, entry model.QueueEntry) (State, error) {
	log := e.log.With(
		zap.Int64("seq", entry.Seq),
		zap.String("entry_id", entry.ID),
		zap.String("table", entry.Table),
		zap.String("action", entry.Action),
	)

	route, err := Resolve(entry.Table, entry.Action, entry.RecordID)
	if err != nil {
		// Nothing the server could accept; hold it like a rejection.
		log.Error("unroutable queue entry", zap.Error(err))
		return e.hold(ctx, entry, model.QueueAttention, StateNeedsAttention, err)
	}

	resp, err := e.client.Send(ctx, remote.Request{
		Method:         route.Method,
		Path:           route.Path,
		Body:           []byte(entry.Payload),
		IdempotencyKey: entry.IdempotencyKey,
	})
	if err != nil {
		if remote.IsRetryable(err) {
			log.Warn("sync deferred", zap.Error(err))
			return e.hold(ctx, entry, model.QueueQueued, StateDeferred, err)
		}
		log.Error("server rejected queue entry", zap.Error(err))
		return e.hold(ctx, entry, model.QueueAttention, StateNeedsAttention, err)
	}

	var ack model.SyncResponse
	if err := resp.Decode(&ack); err != nil {
		log.Warn("sync deferred: unreadable response", zap.Error(err))
		return e.hold(ctx, entry, model.QueueQueued, StateDeferred, err)
	}

	err = e.st.WithTx(ctx, func(tx *store.Tx) error {
		if err := e.reconcile(ctx, tx, entry, ack); err != nil {
			return err
		}
		return tx.DeleteQueueEntry(ctx, entry.ID)
	})
	if err != nil {
		// The server has the mutation; the entry stays and its replay is
		// answered from the server's idempotency record.
		log.Error("reconcile failed", zap.Error(err))
		return StateFailed, fmt.Errorf("reconcile %s/%s %s: %w", entry.Table, entry.Action, entry.ID, err)
	}
	log.Debug("queue entry synced", zap.String("canonical_id", ack.ID))
	return "", nil
}

// hold records a failed attempt and returns the drain state for it.
// The attempt is written even when the failure was the drain's ctx ending.
func (e *Engine) hold(ctx context.Context, entry model.QueueEntry, status model.QueueStatus, state State, cause error) (State, error) {
	bg := context.WithoutCancel(ctx)
	err := e.st.WithTx(bg, func(tx *store.Tx) error {
		return tx.RecordAttempt(bg, entry.ID, status, cause.Error())
	})
	if err != nil {
		return StateFailed, fmt.Errorf("record attempt on %s: %w", entry.ID, err)
	}
	return state, cause
}

func (e *Engine) finish(ctx context.Context, started time.Time, res Result, failure error) (Result, error) {
	// Bookkeeping must be written even when the drain's ctx has ended.
	bg := context.WithoutCancel(ctx)

	var err error
	if res.Remaining, err = e.st.QueueCount(bg); err != nil {
		return res, errors.Join(failure, err)
	}
	if res.Attention, err = e.st.AttentionCount(bg); err != nil {
		return res, errors.Join(failure, err)
	}

	if failure == nil && res.State == StateSynced && res.Remaining == 0 && e.refresh {
		refreshed, rerr := e.Refresh(ctx)
		if rerr != nil {
			e.log.Warn("refresh after drain failed", zap.Error(rerr))
		}
		res.Refreshed = refreshed
	}

	finished := e.clock.Now()
	err = e.st.WithTx(bg, func(tx *store.Tx) error {
		id, err := tx.InsertSyncRun(bg, model.SyncRun{
			StartedAt:  started,
			FinishedAt: &finished,
			Synced:     res.Synced,
			Remaining:  res.Remaining,
			State:      string(res.State),
			Error:      res.LastError,
		})
		res.RunID = id
		return err
	})
	if err != nil {
		return res, errors.Join(failure, err)
	}

	e.log.Info("sync drain finished",
		zap.String("state", string(res.State)),
		zap.Int64("synced", res.Synced),
		zap.Int64("remaining", res.Remaining),
		zap.Int64("attention", res.Attention))
	return res, failure
}

// Retry releases an entry held for attention so the next drain resends it.
func (e *Engine) Retry(ctx context.Context, entryID string) error {
	return e.st.WithTx(ctx, func(tx *store.Tx) error {
		entry, err := heldEntry(ctx, tx, entryID)
		if err != nil {
			return err
		}
		return tx.SetQueueStatus(ctx, entry.ID, model.QueueQueued)
	})
}

// Discard drops an entry held for attention. The local change it carried is
// kept; the server will simply never hear of it.
func (e *Engine) Discard(ctx context.Context, entryID string) error {
	return e.st.WithTx(ctx, func(tx *store.Tx) error {
		entry, err := heldEntry(ctx, tx, entryID)
		if err != nil {
			return err
		}
		e.log.Warn("discarding queue entry",
			zap.String("entry_id", entry.ID),
			zap.String("table", entry.Table),
			zap.String("action", entry.Action),
			zap.String("last_error", entry.LastError))
		return tx.DeleteQueueEntry(ctx, entry.ID)
	})
}

func heldEntry(ctx context.Context, tx *store.Tx, id string) (model.QueueEntry, error) {
	entry, err := tx.QueueEntry(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return entry, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	if err != nil {
		return entry, err
	}
	if entry.Status != model.QueueAttention {
		return entry, fmt.Errorf("%w: %s is %s", ErrNotHeld, id, entry.Status)
	}
	return entry, nil
}
